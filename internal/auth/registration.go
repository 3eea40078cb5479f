// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth

import (
	"context"
	"errors"
	"strings"
)

// SignupRequest carries the fields of a new registration.
type SignupRequest struct {
	Email    string
	Username string
	Password string
}

// SignupResult is returned when a registration completes.
type SignupResult struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	Account AccountView `json:"user"`
}

// RegistrationService moves an email from unregistered through pending
// verification to a verified account.
type RegistrationService struct {
	flowBase
	accounts AccountRepository
	otps     *OTPStore
	hasher   PasswordHasher
	sessions *SessionCodec
	notifier Notifier
	tx       Transactor
}

// NewRegistrationService creates a new RegistrationService.
func NewRegistrationService(c Collaborators, opts ...Option) (*RegistrationService, error) {
	const name = "registration"
	if err := firstErr(
		requireDep(c.Accounts != nil, name, "account repository"),
		requireDep(c.OTPs != nil, name, "otp store"),
		requireDep(c.Hasher != nil, name, "password hasher"),
		requireDep(c.Sessions != nil, name, "session codec"),
		requireDep(c.Notifier != nil, name, "notifier"),
	); err != nil {
		return nil, err
	}
	return &RegistrationService{
		flowBase: newFlowBase(opts),
		accounts: c.Accounts,
		otps:     c.OTPs,
		hasher:   c.Hasher,
		sessions: c.Sessions,
		notifier: c.Notifier,
		tx:       c.transactor(),
	}, nil
}

// Initiate starts a registration and mails a verification code.
func (s *RegistrationService) Initiate(ctx context.Context, req SignupRequest) (msg string, err error) {
	ctx, done := s.begin(ctx, "signup.initiate")
	defer func() { done(err) }()

	email := strings.TrimSpace(req.Email)
	if email == "" || strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return "", validationError("AUTH_FIELDS_REQUIRED", "Email, username, and password are required")
	}

	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return "", emailTakenError(email)
	} else if !errors.Is(err, ErrNotFound) {
		return "", internalError("AUTH_SIGNUP_FAILED", "FindByEmail", err)
	}

	if err := ValidatePassword(req.Password); err != nil {
		return "", err
	}
	if err := ValidateUsername(req.Username); err != nil {
		return "", err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return "", internalError("AUTH_SIGNUP_FAILED", "Hash", err)
	}

	code, err := s.otps.Issue(ctx, email, PendingAccount{
		Email:        email,
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
	})
	if err != nil {
		return "", internalError("AUTH_SIGNUP_FAILED", "IssueOTP", err)
	}

	if err := s.notifier.SendSignupCode(ctx, email, code); err != nil {
		s.discardOTP(ctx, s.otps, email)
		return "", dispatchError("SendSignupCode", err)
	}

	return "Verification code sent to " + email, nil
}

// Verify confirms the code and creates the account.
func (s *RegistrationService) Verify(ctx context.Context, email, code string) (res *SignupResult, err error) {
	ctx, done := s.begin(ctx, "signup.verify")
	defer func() { done(err) }()

	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(code) == "" {
		return nil, validationError("AUTH_FIELDS_REQUIRED", "Email and verification code are required")
	}

	var account *Account
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		pending, err := s.otps.Verify(ctx, email, strings.TrimSpace(code), PendingKindAccount)
		if err != nil {
			return err
		}
		pa, ok := pending.(PendingAccount)
		if !ok {
			return ErrOTPInvalid
		}

		account = newVerifiedAccount(pa, s.now())
		if err := s.accounts.Create(ctx, account); err != nil {
			if errors.Is(err, ErrDuplicateEmail) {
				return emailTakenError(pa.Email)
			}
			return internalError("AUTH_SIGNUP_FAILED", "Create", err)
		}
		return nil
	})
	if err != nil {
		if HasCode(err, CodeOTPExpired) {
			s.discardOTP(ctx, s.otps, email)
		}
		return nil, classify("AUTH_SIGNUP_FAILED", "Verify", err)
	}

	token, err := s.sessions.Issue(account.Email, RolesFor(account))
	if err != nil {
		return nil, internalError("AUTH_SIGNUP_FAILED", "IssueSession", err)
	}

	return &SignupResult{
		Message: "Registration successful",
		Token:   token,
		Account: account.View(),
	}, nil
}

// ResendOTP replaces the pending code and mails it again.
func (s *RegistrationService) ResendOTP(ctx context.Context, email string) (msg string, err error) {
	ctx, done := s.begin(ctx, "signup.resend")
	defer func() { done(err) }()

	email = strings.TrimSpace(email)
	if email == "" {
		return "", validationError("AUTH_FIELDS_REQUIRED", "Email is required")
	}

	code, err := s.otps.Resend(ctx, email, PendingKindAccount)
	if err != nil {
		if HasCode(err, CodeOTPInvalid) {
			return "", validationError("AUTH_NO_PENDING_SIGNUP", "No pending registration found for this email")
		}
		return "", internalError("AUTH_SIGNUP_FAILED", "ResendOTP", err)
	}

	if err := s.notifier.SendSignupCode(ctx, email, code); err != nil {
		s.discardOTP(ctx, s.otps, email)
		return "", dispatchError("SendSignupCode", err)
	}

	return "New verification code sent to " + email, nil
}
