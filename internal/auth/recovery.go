// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth

import (
	"context"
	"errors"
	"strings"
)

// RecoveryService handles password reset and email change, both confirmed
// through a secret delivered out of band.
type RecoveryService struct {
	flowBase
	accounts AccountRepository
	otps     *OTPStore
	resets   *ResetStore
	hasher   PasswordHasher
	sessions *SessionCodec
	notifier Notifier
	tx       Transactor
	policy   RecoveryPolicy
}

// RecoveryPolicy holds the deployment choices of the recovery flows.
type RecoveryPolicy struct {
	// RevealUnknownAccounts makes ForgotPassword report an unknown email as
	// NotFound instead of answering with generic success.
	RevealUnknownAccounts bool
}

// NewRecoveryService creates a new RecoveryService.
func NewRecoveryService(c Collaborators, policy RecoveryPolicy, opts ...Option) (*RecoveryService, error) {
	const name = "recovery"
	if err := firstErr(
		requireDep(c.Accounts != nil, name, "account repository"),
		requireDep(c.OTPs != nil, name, "otp store"),
		requireDep(c.Resets != nil, name, "reset store"),
		requireDep(c.Hasher != nil, name, "password hasher"),
		requireDep(c.Sessions != nil, name, "session codec"),
		requireDep(c.Notifier != nil, name, "notifier"),
	); err != nil {
		return nil, err
	}
	return &RecoveryService{
		flowBase: newFlowBase(opts),
		accounts: c.Accounts,
		otps:     c.OTPs,
		resets:   c.Resets,
		hasher:   c.Hasher,
		sessions: c.Sessions,
		notifier: c.Notifier,
		tx:       c.transactor(),
		policy:   policy,
	}, nil
}

const resetLinkSent = "Reset link sent successfully"

// ForgotPassword issues a reset grant and mails the link.
func (s *RecoveryService) ForgotPassword(ctx context.Context, email string) (msg string, err error) {
	ctx, done := s.begin(ctx, "password.forgot")
	defer func() { done(err) }()

	email = strings.TrimSpace(email)
	if email == "" {
		return "", validationError("AUTH_FIELDS_REQUIRED", "Email is required")
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if s.policy.RevealUnknownAccounts {
				return "", notRegisteredError(email)
			}
			return resetLinkSent, nil
		}
		return "", internalError("AUTH_RESET_FAILED", "FindByEmail", err)
	}

	token, err := s.resets.Issue(ctx, account.ID)
	if err != nil {
		return "", internalError("AUTH_RESET_FAILED", "IssueReset", err)
	}

	if err := s.notifier.SendPasswordReset(ctx, account.Email, token); err != nil {
		if discardErr := s.resets.Discard(ctx, account.ID); discardErr != nil {
			s.logger.WarnContext(ctx, "failed to discard reset token",
				"account_id", account.ID,
				"error", discardErr)
		}
		return "", dispatchError("SendPasswordReset", err)
	}

	return resetLinkSent, nil
}

// VerifyResetToken reports whether a reset token is still usable.
func (s *RecoveryService) VerifyResetToken(ctx context.Context, token string) (ok bool, err error) {
	ctx, done := s.begin(ctx, "password.verify_token")
	defer func() { done(err) }()

	ok, err = s.resets.IsValid(ctx, strings.TrimSpace(token))
	if err != nil {
		return false, internalError("AUTH_RESET_FAILED", "IsValid", err)
	}
	return ok, nil
}

// ResetPassword spends a reset grant and sets the new password.
func (s *RecoveryService) ResetPassword(ctx context.Context, token, newPassword string) (msg string, err error) {
	ctx, done := s.begin(ctx, "password.reset")
	defer func() { done(err) }()

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrResetInvalid
	}
	if err := ValidatePassword(newPassword); err != nil {
		return "", err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return "", internalError("AUTH_RESET_FAILED", "Hash", err)
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		accountID, err := s.resets.Consume(ctx, token)
		if err != nil {
			return err
		}

		account, err := s.accounts.FindByID(ctx, accountID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrAccountMissing
			}
			return internalError("AUTH_RESET_FAILED", "FindByID", err)
		}

		account.PasswordHash = hash
		account.UpdatedAt = s.now()
		if err := s.accounts.Update(ctx, account); err != nil {
			return internalError("AUTH_RESET_FAILED", "Update", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrResetExpired) {
			// The tx rolled back the delete Consume made.
			s.discardResetToken(ctx, token)
		}
		return "", classify("AUTH_RESET_FAILED", "ResetPassword", err)
	}

	return "Password reset successful", nil
}

func (s *RecoveryService) discardResetToken(ctx context.Context, token string) {
	if err := s.resets.DiscardToken(ctx, token); err != nil {
		s.logger.WarnContext(ctx, "failed to discard expired reset token", "error", err)
	}
}
