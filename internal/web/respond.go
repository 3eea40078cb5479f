// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hemasrilatha/cms/internal/auth"
)

const maxJSONBody = 1 << 20

// Public messages produced by the HTTP layer itself.
const (
	msgBadBody      = "Invalid request body"
	msgUnauthorized = "Unauthorized"
	msgNotFound     = "Not found"
	msgBadToken     = "Invalid or expired token"
)

var kindStatus = map[auth.Kind]int{
	auth.KindValidation: http.StatusBadRequest,
	auth.KindConflict:   http.StatusConflict,
	auth.KindAuth:       http.StatusUnauthorized,
	auth.KindForbidden:  http.StatusForbidden,
	auth.KindNotFound:   http.StatusNotFound,
	auth.KindDispatch:   http.StatusBadGateway,
	auth.KindInternal:   http.StatusInternalServerError,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind auth.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageBody{Message: msg})
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeError answers with the public message of err. Flow services have
// already logged the cause.
func writeError(w http.ResponseWriter, err error) {
	writeErrorMessage(w, StatusFor(auth.KindOf(err)), auth.PublicMessage(err))
}

// decoder reads and validates JSON request bodies.
type decoder struct {
	validate *validator.Validate
	logger   *slog.Logger
}

func newDecoder(logger *slog.Logger) *decoder {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	return &decoder{validate: v, logger: logger}
}

// decode fills dst from the request body. On failure it writes a 400 and
// returns false.
func (d *decoder) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !errors.Is(err, io.EOF) {
			d.logger.DebugContext(r.Context(), "request body rejected", "error", err)
		}
		writeErrorMessage(w, http.StatusBadRequest, msgBadBody)
		return false
	}
	return d.check(w, r, dst)
}

func (d *decoder) check(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := d.validate.Struct(dst)
	if err == nil {
		return true
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid value for "+fieldErrs[0].Field())
		return false
	}
	d.logger.DebugContext(r.Context(), "request validation failed", "error", err)
	writeErrorMessage(w, http.StatusBadRequest, msgBadBody)
	return false
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}
