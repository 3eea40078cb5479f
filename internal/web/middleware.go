// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/samber/oops"

	"github.com/hemasrilatha/cms/internal/auth"
	"github.com/hemasrilatha/cms/internal/logging"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

// HTTPObserver records finished requests.
type HTTPObserver interface {
	ObserveHTTPRequest(method, route string, code int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveHTTPRequest(string, string, int, time.Duration) {}

// statusRecorder captures the status code and size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	//nolint:wrapcheck // ResponseWriter passthrough
	return n, err
}

func (r *statusRecorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// requestID takes a well-formed incoming X-Request-ID or generates one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

// routeKey holds a *string the router fills with the matched template.
type routeKey struct{}

// routeSlot returns r with a route slot in its context, reusing one set by
// an outer middleware.
func routeSlot(r *http.Request) (*http.Request, *string) {
	if slot, ok := r.Context().Value(routeKey{}).(*string); ok {
		return r, slot
	}
	slot := new(string)
	return r.WithContext(context.WithValue(r.Context(), routeKey{}, slot)), slot
}

// captureRoute is installed on the router so outer middleware can label
// requests by route template instead of raw path.
func captureRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slot, ok := r.Context().Value(routeKey{}).(*string); ok {
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					*slot = tmpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

func routeLabel(slot *string) string {
	if slot == nil || *slot == "" {
		return "unmatched"
	}
	return *slot
}

// accessLog logs one line per request.
func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r, slot := routeSlot(r)
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			if rec.code() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", routeLabel(slot),
				"status", rec.code(),
				"bytes", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds())
		})
	}
}

// metrics feeds the observer, labelled by route template.
func metrics(observer HTTPObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r, slot := routeSlot(r)
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			observer.ObserveHTTPRequest(r.Method, routeLabel(slot), rec.code(), time.Since(start))
		})
	}
}

// corsPolicy answers CORS for origins matching any configured glob.
type corsPolicy struct {
	origins []glob.Glob
}

func newCORSPolicy(patterns []string) (*corsPolicy, error) {
	p := &corsPolicy{}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, oops.Code("CORS_PATTERN_INVALID").With("pattern", pattern).Wrap(err)
		}
		p.origins = append(p.origins, g)
	}
	return p, nil
}

func (p *corsPolicy) allowed(origin string) bool {
	for _, g := range p.origins {
		if g.Match(origin) {
			return true
		}
	}
	return false
}

func (p *corsPolicy) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

		if origin != "" {
			w.Header().Add("Vary", "Origin")
			if p.allowed(origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Expose-Headers", RequestIDHeader)
				if preflight {
					h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+RequestIDHeader)
					h.Set("Access-Control-Max-Age", "600")
				}
			}
		}

		if preflight {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type claimsKey struct{}

// ClaimsFrom returns the session claims put in ctx by the bearer middleware.
func ClaimsFrom(ctx context.Context) *auth.SessionClaims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.SessionClaims)
	return claims
}

// bearer rejects requests without a valid session token.
func bearer(codec *auth.SessionCodec, logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeErrorMessage(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}
			claims, err := codec.Parse(token)
			if err != nil {
				logger.DebugContext(r.Context(), "session token rejected", "error", err)
				writeErrorMessage(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// requireRole runs after bearer.
func requireRole(role auth.Role) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := auth.RequireRole(ClaimsFrom(r.Context()), role); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
