// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth

import (
	"context"
	"errors"
	"strings"
)

// EmailChangeResult is returned when an email change completes. The old
// session is bound to the previous email, so a new token is issued.
type EmailChangeResult struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// InitiateEmailChange mails a code to newEmail. The pending change is held
// under the current email until confirmed.
func (s *RecoveryService) InitiateEmailChange(ctx context.Context, currentEmail, newEmail string) (msg string, err error) {
	ctx, done := s.begin(ctx, "email.initiate")
	defer func() { done(err) }()

	newEmail = strings.TrimSpace(newEmail)
	if newEmail == "" {
		return "", validationError("AUTH_FIELDS_REQUIRED", "New email is required")
	}
	if newEmail == currentEmail {
		return "", validationError("AUTH_EMAIL_UNCHANGED", "New email cannot be the same as your current email")
	}

	if err := s.ensureEmailFree(ctx, newEmail); err != nil {
		return "", err
	}

	if _, err := s.accounts.FindByEmail(ctx, currentEmail); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrAccountMissing
		}
		return "", internalError("AUTH_EMAIL_CHANGE_FAILED", "FindByEmail", err)
	}

	code, err := s.otps.Issue(ctx, currentEmail, PendingEmail{NewEmail: newEmail})
	if err != nil {
		return "", internalError("AUTH_EMAIL_CHANGE_FAILED", "IssueOTP", err)
	}

	if err := s.notifier.SendEmailChangeCode(ctx, newEmail, code); err != nil {
		s.discardOTP(ctx, s.otps, currentEmail)
		return "", dispatchError("SendEmailChangeCode", err)
	}

	return "Verification code sent to " + newEmail, nil
}

// CompleteEmailChange confirms the code and moves the account to the new
// email.
func (s *RecoveryService) CompleteEmailChange(ctx context.Context, currentEmail, code string) (res *EmailChangeResult, err error) {
	ctx, done := s.begin(ctx, "email.complete")
	defer func() { done(err) }()

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, validationError("AUTH_FIELDS_REQUIRED", "Verification code is required")
	}

	var account *Account
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		pending, err := s.otps.Verify(ctx, currentEmail, code, PendingKindEmail)
		if err != nil {
			return err
		}
		change, ok := pending.(PendingEmail)
		if !ok {
			return ErrOTPInvalid
		}

		account, err = s.accounts.FindByEmail(ctx, currentEmail)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrAccountMissing
			}
			return internalError("AUTH_EMAIL_CHANGE_FAILED", "FindByEmail", err)
		}

		// The address may have been claimed since the code was sent.
		if err := s.ensureEmailFree(ctx, change.NewEmail); err != nil {
			return err
		}

		account.Email = change.NewEmail
		account.UpdatedAt = s.now()
		if err := s.accounts.Update(ctx, account); err != nil {
			if errors.Is(err, ErrDuplicateEmail) {
				return emailTakenByOtherError(change.NewEmail)
			}
			return internalError("AUTH_EMAIL_CHANGE_FAILED", "Update", err)
		}
		return nil
	})
	if err != nil {
		if HasCode(err, CodeOTPExpired) {
			s.discardOTP(ctx, s.otps, currentEmail)
		}
		return nil, classify("AUTH_EMAIL_CHANGE_FAILED", "CompleteEmailChange", err)
	}

	token, err := s.sessions.Issue(account.Email, RolesFor(account))
	if err != nil {
		return nil, internalError("AUTH_EMAIL_CHANGE_FAILED", "IssueSession", err)
	}

	return &EmailChangeResult{
		Message: "Email updated successfully",
		Token:   token,
	}, nil
}

func (s *RecoveryService) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.accounts.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return emailTakenByOtherError(email)
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return internalError("AUTH_EMAIL_CHANGE_FAILED", "FindByEmail", err)
	}
}
