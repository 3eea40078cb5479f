// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/hemasrilatha/cms/internal/auth"
)

type signupRequest struct {
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Username string `json:"username" validate:"max=64"`
	Password string `json:"password" validate:"max=128"`
}

type verifyRequest struct {
	Email string `json:"email" validate:"omitempty,email,max=254"`
	OTP   string `json:"otp" validate:"max=16"`
}

type emailRequest struct {
	Email string `json:"email" validate:"omitempty,email,max=254"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"max=254"`
	Password string `json:"password" validate:"max=128"`
}

type resetRequest struct {
	Token       string `json:"token" validate:"max=256"`
	NewPassword string `json:"newPassword" validate:"max=128"`
}

type otpRequest struct {
	OTP string `json:"otp" validate:"max=16"`
}

type passwordRequest struct {
	Password string `json:"password" validate:"max=128"`
}

type detailsRequest struct {
	Username *string `json:"username" validate:"omitempty,max=64"`
}

type adminUpdateRequest struct {
	NewEmail *string `json:"newEmail" validate:"omitempty,email,max=254"`
	Username *string `json:"username" validate:"omitempty,max=64"`
	Password *string `json:"password" validate:"omitempty,max=128"`
	Admin    bool    `json:"admin"`
	Verified bool    `json:"verified"`
}

func (h *handlers) signupInitiate(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !h.dec.decode(w, r, &req) {
		return
	}
	msg, err := h.svc.Registration.Initiate(r.Context(), auth.SignupRequest{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, msg)
}

func (h *handlers) signupVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.dec.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Registration.Verify(r.Context(), req.Email, req.OTP)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *handlers) signupResend(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.dec.decode(w, r, &req) {
		return
	}
	msg, err := h.svc.Registration.ResendOTP(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, msg)
}

func (h *handlers) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !h.dec.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Sessions.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.dec.decode(w, r, &req) {
		return
	}
	msg, err := h.svc.Recovery.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, msg)
}

func (h *handlers) verifyResetToken(w http.ResponseWriter, r *http.Request) {
	ok, err := h.svc.Recovery.VerifyResetToken(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeErrorMessage(w, http.StatusBadRequest, msgBadToken)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Valid bool `json:"valid"`
	}{Valid: true})
}

func (h *handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !h.dec.decode(w, r, &req) {
		return
	}
	msg, err := h.svc.Recovery.ResetPassword(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, msg)
}

// subject is the email of the authenticated caller.
func subject(r *http.Request) string {
	if claims := ClaimsFrom(r.Context()); claims != nil {
		return claims.Subject
	}
	return ""
}

func (h *handlers) profileDetails(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Profile.Details(r.Context(), subject(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// maxMultipartBody leaves room for the user part next to the image.
const maxMultipartBody = auth.MaxProfileImageBytes + maxJSONBody

// profileUpdate accepts multipart/form-data with an optional JSON "user"
// part and an optional "image" file, or a plain JSON body.
func (h *handlers) profileUpdate(w http.ResponseWriter, r *http.Request) {
	var upd auth.DetailsUpdate

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
		if err := r.ParseMultipartForm(maxMultipartBody); err != nil {
			h.logger.DebugContext(r.Context(), "multipart body rejected", "error", err)
			writeErrorMessage(w, http.StatusBadRequest, msgBadBody)
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		var req detailsRequest
		if raw, ok := userPart(r.MultipartForm); ok {
			if err := json.Unmarshal(raw, &req); err != nil {
				writeErrorMessage(w, http.StatusBadRequest, msgBadBody)
				return
			}
			if !h.dec.check(w, r, &req) {
				return
			}
		}
		upd.Username = req.Username

		img, err := imagePart(r.MultipartForm)
		if err != nil {
			h.logger.DebugContext(r.Context(), "image part rejected", "error", err)
			writeErrorMessage(w, http.StatusBadRequest, msgBadBody)
			return
		}
		upd.Image = img
	} else {
		var req detailsRequest
		if !h.dec.decode(w, r, &req) {
			return
		}
		upd.Username = req.Username
	}

	msg, err := h.svc.Profile.UpdateDetails(r.Context(), subject(r), upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, msg)
}

// userPart returns the "user" part, sent either as a field or as a file.
func userPart(form *multipart.Form) ([]byte, bool) {
	if vals := form.Value["user"]; len(vals) > 0 {
		return []byte(vals[0]), true
	}
	if files := form.File["user"]; len(files) > 0 {
		f, err := files[0].Open()
		if err != nil {
			return nil, false
		}
		defer func() { _ = f.Close() }()
		raw, err := io.ReadAll(f)
		if err != nil {
			return nil, false
		}
		return raw, true
	}
	return nil, false
}

func imagePart(form *multipart.Form) (*auth.ImageUpload, error) {
	files := form.File["image"]
	if len(files) == 0 {
		return nil, nil
	}
	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, auth.MaxProfileImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty image part")
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return &auth.ImageUpload{Filename: fh.Filename, ContentType: contentType, Data: data}, nil
}

func (h *handlers) emailInitiate(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.dec.decode(w, r, &req) {
		return
	}
	msg, err := h.svc.Recovery.InitiateEmailChange(r.Context(), subject(r), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, msg)
}

func (h *handlers) emailVerify(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !h.dec.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Recovery.CompleteEmailChange(r.Context(), subject(r), req.OTP)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) profilePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !h.dec.decode(w, r, &req) {
		return
	}
	msg, err := h.svc.Profile.UpdatePassword(r.Context(), subject(r), req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, msg)
}

func (h *handlers) profileDelete(w http.ResponseWriter, r *http.Request) {
	msg, err := h.svc.Profile.DeleteAccount(r.Context(), subject(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, msg)
}

func (h *handlers) adminList(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.Admin.ListAccounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handlers) adminUpdate(w http.ResponseWriter, r *http.Request) {
	var req adminUpdateRequest
	if !h.dec.decode(w, r, &req) {
		return
	}
	msg, err := h.svc.Admin.UpdateAccount(r.Context(), mux.Vars(r)["email"], auth.AdminUpdate{
		NewEmail: req.NewEmail,
		Username: req.Username,
		Password: req.Password,
		Admin:    req.Admin,
		Verified: req.Verified,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, msg)
}

func (h *handlers) adminDelete(w http.ResponseWriter, r *http.Request) {
	msg, err := h.svc.Admin.DeleteAccount(r.Context(), mux.Vars(r)["email"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, msg)
}
