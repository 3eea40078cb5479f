// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

// Package web exposes the account flows as a JSON API over gorilla/mux.
package web

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/samber/oops"

	"github.com/hemasrilatha/cms/internal/auth"
)

// Services are the flows served by the API.
type Services struct {
	Registration *auth.RegistrationService
	Sessions     *auth.SessionService
	Recovery     *auth.RecoveryService
	Profile      *auth.ProfileService
	Admin        *auth.AdminService
	Codec        *auth.SessionCodec
}

func (s Services) check() error {
	missing := ""
	switch {
	case s.Registration == nil:
		missing = "registration"
	case s.Sessions == nil:
		missing = "sessions"
	case s.Recovery == nil:
		missing = "recovery"
	case s.Profile == nil:
		missing = "profile"
	case s.Admin == nil:
		missing = "admin"
	case s.Codec == nil:
		missing = "codec"
	}
	if missing != "" {
		return oops.Code("WEB_SERVICE_MISSING").With("service", missing).Errorf("%s service is required", missing)
	}
	return nil
}

// Options configures NewHandler.
type Options struct {
	CORSOrigins []string
	Logger      *slog.Logger
	Observer    HTTPObserver
}

type handlers struct {
	svc    Services
	dec    *decoder
	logger *slog.Logger
}

// NewHandler builds the API handler with its middleware chain.
func NewHandler(svc Services, opts Options) (http.Handler, error) {
	if err := svc.check(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	cors, err := newCORSPolicy(opts.CORSOrigins)
	if err != nil {
		return nil, err
	}

	h := &handlers{svc: svc, dec: newDecoder(opts.Logger), logger: opts.Logger}

	r := mux.NewRouter()
	r.Use(captureRoute)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorMessage(w, http.StatusNotFound, msgNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	public := r.PathPrefix("/api/auth").Subrouter()
	public.HandleFunc("/signup/initiate", h.signupInitiate).Methods(http.MethodPost)
	public.HandleFunc("/signup/verify", h.signupVerify).Methods(http.MethodPost)
	public.HandleFunc("/signup/resend-otp", h.signupResend).Methods(http.MethodPost)
	public.HandleFunc("/signin", h.signIn).Methods(http.MethodPost)
	public.HandleFunc("/forgot-password", h.forgotPassword).Methods(http.MethodPost)
	public.HandleFunc("/verify-reset-token/{token}", h.verifyResetToken).Methods(http.MethodGet)
	public.HandleFunc("/reset-password", h.resetPassword).Methods(http.MethodPost)

	user := r.PathPrefix("/api/user").Subrouter()
	user.Use(bearer(svc.Codec, opts.Logger))
	user.HandleFunc("/details", h.profileDetails).Methods(http.MethodGet)
	user.HandleFunc("/details", h.profileUpdate).Methods(http.MethodPut)
	user.HandleFunc("/email/update/initiate", h.emailInitiate).Methods(http.MethodPost)
	user.HandleFunc("/email/update/verify", h.emailVerify).Methods(http.MethodPost)
	user.HandleFunc("/password", h.profilePassword).Methods(http.MethodPut)
	user.HandleFunc("", h.profileDelete).Methods(http.MethodDelete)
	// Legacy client paths.
	user.HandleFunc("/getuserdetails", h.profileDetails).Methods(http.MethodGet)
	user.HandleFunc("/updatepassword", h.profilePassword).Methods(http.MethodPost)
	user.HandleFunc("/deleteaccount", h.profileDelete).Methods(http.MethodDelete)

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(bearer(svc.Codec, opts.Logger), requireRole(auth.RoleAdmin))
	admin.HandleFunc("/users", h.adminList).Methods(http.MethodGet)
	admin.HandleFunc("/getallusers", h.adminList).Methods(http.MethodGet)
	admin.HandleFunc("/users/{email}", h.adminUpdate).Methods(http.MethodPut)
	admin.HandleFunc("/users/{email}", h.adminDelete).Methods(http.MethodDelete)

	var handler http.Handler = r
	handler = cors.middleware(handler)
	handler = metrics(opts.Observer)(handler)
	handler = accessLog(opts.Logger)(handler)
	handler = requestID(handler)
	return handler, nil
}
