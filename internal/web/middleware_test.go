// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemasrilatha/cms/internal/auth"
	"github.com/hemasrilatha/cms/internal/logging"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind auth.Kind
		want int
	}{
		{auth.KindValidation, http.StatusBadRequest},
		{auth.KindConflict, http.StatusConflict},
		{auth.KindAuth, http.StatusUnauthorized},
		{auth.KindForbidden, http.StatusForbidden},
		{auth.KindNotFound, http.StatusNotFound},
		{auth.KindDispatch, http.StatusBadGateway},
		{auth.KindInternal, http.StatusInternalServerError},
		{auth.Kind("mystery"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.kind))
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := requestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = logging.RequestID(r.Context())
	}))

	t.Run("generated when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		id := rec.Header().Get(RequestIDHeader)
		assert.Len(t, id, 36)
		assert.Equal(t, id, seen)
	})

	t.Run("incoming id is kept", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
		assert.Equal(t, "req-42", seen)
	})

	t.Run("malformed id is replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "has space")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.NotEqual(t, "has space", rec.Header().Get(RequestIDHeader))

		req.Header.Set(RequestIDHeader, strings.Repeat("a", maxRequestIDLen+1))
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
	})
}

func TestCORS(t *testing.T) {
	a := newAPI(t)

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/auth/signin", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
	})

	t.Run("disallowed origin gets no grant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/auth/signin", nil)
		req.Header.Set("Origin", "https://evil.test")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	})

	t.Run("simple request is annotated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/verify-reset-token/x", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, RequestIDHeader, rec.Header().Get("Access-Control-Expose-Headers"))
	})
}

func TestCORSPatternInvalid(t *testing.T) {
	_, err := newCORSPolicy([]string{"https://[a-"})
	require.Error(t, err)
}

func TestMetricsUseRouteTemplate(t *testing.T) {
	a := newAPI(t)

	a.do(http.MethodGet, "/api/auth/verify-reset-token/abc", nil, "")
	a.do(http.MethodGet, "/api/nowhere", nil, "")

	require.Len(t, a.observer.seen, 2)
	assert.Equal(t, observed{
		method: http.MethodGet,
		route:  "/api/auth/verify-reset-token/{token}",
		code:   http.StatusBadRequest,
	}, a.observer.seen[0])
	assert.Equal(t, "unmatched", a.observer.seen[1].route)
	assert.Equal(t, http.StatusNotFound, a.observer.seen[1].code)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Token abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := bearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestServerStartStop(t *testing.T) {
	a := newAPI(t)
	srv := NewServer("127.0.0.1:0", a.handler, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Empty(t, srv.Addr())

	errCh, err := srv.Start()
	require.NoError(t, err)

	_, err = srv.Start()
	require.Error(t, err)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + srv.Addr() + "/api/auth/verify-reset-token/nope")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, srv.Stop(ctx))

	_, open := <-errCh
	assert.False(t, open)
}
