// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned by repositories when a write would break
// email uniqueness. The database constraint is the source of truth.
var ErrDuplicateEmail = errors.New("email already in use")

// Kind classifies an error for callers outside the core.
type Kind string

// Error kinds.
const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindAuth       Kind = "auth"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
	KindDispatch   Kind = "dispatch"
	KindInternal   Kind = "internal"
)

// DefaultPublicMessage is shown for errors that carry no public message.
const DefaultPublicMessage = "An internal error occurred"

// kindPrecedence orders kinds from most to least specific. A chain can carry
// several tags when an internal error wraps a classified one.
var kindPrecedence = []Kind{
	KindValidation,
	KindConflict,
	KindAuth,
	KindForbidden,
	KindNotFound,
	KindDispatch,
	KindInternal,
}

// KindOf returns the kind attached to err. Errors without a kind are internal.
func KindOf(err error) Kind {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal
	}
	tags := make(map[string]struct{})
	for _, tag := range oopsErr.Tags() {
		tags[tag] = struct{}{}
	}
	for _, kind := range kindPrecedence {
		if _, found := tags[string(kind)]; found {
			return kind
		}
	}
	return KindInternal
}

// PublicMessage returns the user-facing message for err. Raw causes are never
// exposed; they belong in logs.
func PublicMessage(err error) string {
	if KindOf(err) == KindInternal {
		return DefaultPublicMessage
	}
	return oops.GetPublic(err, DefaultPublicMessage)
}

// CodeOf returns the error code carried by err, or "" when there is none.
func CodeOf(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

// HasCode reports whether err carries code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// kindError builds a classified error with a fixed public message.
func kindError(kind Kind, code, public string) error {
	return oops.In("auth").
		Code(code).
		Tags(string(kind)).
		Public(public).
		New(public)
}

func validationError(code, public string) error {
	return kindError(KindValidation, code, public)
}

func authError(code, public string) error {
	return kindError(KindAuth, code, public)
}

func notFoundError(code, public string) error {
	return kindError(KindNotFound, code, public)
}

// dispatchError wraps a notification failure. The cause is kept for logging.
func dispatchError(operation string, err error) error {
	return oops.In("auth").
		Code(CodeDispatchFailed).
		Tags(string(KindDispatch)).
		With("operation", operation).
		Public("Failed to send email").
		Wrap(err)
}

// internalError wraps an unexpected collaborator failure.
func internalError(code, operation string, err error) error {
	return oops.In("auth").
		Code(code).
		Tags(string(KindInternal)).
		With("operation", operation).
		Wrap(err)
}

// Codes of the shared classified errors. oops errors are not comparable, so
// callers match on these rather than with errors.Is.
const (
	CodeOTPInvalid       = "AUTH_OTP_INVALID"
	CodeOTPExpired       = "AUTH_OTP_EXPIRED"
	CodeResetInvalid     = "AUTH_RESET_TOKEN_INVALID"
	CodeResetExpired     = "AUTH_RESET_TOKEN_EXPIRED"
	CodePasswordTooShort = "AUTH_PASSWORD_TOO_SHORT"
	CodePasswordReuse    = "AUTH_PASSWORD_REUSE"
	CodeAccountMissing   = "AUTH_ACCOUNT_NOT_FOUND"
	CodeForbidden        = "AUTH_FORBIDDEN"
	CodeEmailTaken       = "AUTH_EMAIL_TAKEN"
	CodeNotRegistered    = "AUTH_NOT_REGISTERED"
	CodeDispatchFailed   = "AUTH_DISPATCH_FAILED"
)

// Shared classified errors.
var (
	ErrOTPInvalid       = validationError(CodeOTPInvalid, "Invalid verification code")
	ErrOTPExpired       = validationError(CodeOTPExpired, "Verification code has expired. Please request a new one.")
	ErrResetInvalid     = authError(CodeResetInvalid, "Invalid token")
	ErrResetExpired     = authError(CodeResetExpired, "Token has expired")
	ErrPasswordTooShort = validationError(CodePasswordTooShort, passwordTooShortMessage)
	ErrPasswordReuse    = validationError(CodePasswordReuse, "New password cannot be same as old password")
	ErrAccountMissing   = notFoundError(CodeAccountMissing, "User not found")
	ErrForbidden        = kindError(KindForbidden, CodeForbidden, "Access denied")
)

var passwordTooShortMessage = fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength)

func emailTakenError(email string) error {
	return oops.In("auth").
		Code(CodeEmailTaken).
		Tags(string(KindConflict)).
		With("email", email).
		Public(email + " is already registered.").
		Errorf("email %s is already registered", email)
}

func emailTakenByOtherError(email string) error {
	return oops.In("auth").
		Code(CodeEmailTaken).
		Tags(string(KindConflict)).
		With("email", email).
		Public(email + " is already registered by another user.").
		Errorf("email %s is registered to another account", email)
}

func notRegisteredError(email string) error {
	return oops.In("auth").
		Code(CodeNotRegistered).
		Tags(string(KindNotFound)).
		With("email", email).
		Public(email + " is not registered.").
		Errorf("no account for %s", email)
}
