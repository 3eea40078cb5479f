// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

// Package auth implements the account lifecycle of the CMS.
//
// # Primitives
//
// The leaves never call upward:
//   - PasswordHasher / Argon2idHasher - credential digests, with legacy bcrypt verification
//   - SessionCodec - HS512 session tokens carrying the subject email and roles
//   - OTPStore - one live six-digit code per email, holding a Pending payload
//   - ResetStore - single-use password reset grants, stored as sha256 hashes
//
// # Flows
//
// Flow services coordinate the primitives with repositories and a Notifier:
//   - RegistrationService - signup initiate, verify, resend
//   - SessionService - credential sign-in
//   - RecoveryService - forgot/reset password and email change
//   - ProfileService - self-service details, password and deletion
//   - AdminService - account management for administrators
//
// Services are created with New*Service constructors that validate their
// Collaborators.
//
// # Errors
//
// Every error returned by a flow is an oops error. KindOf classifies it and
// PublicMessage gives the text that may be shown to a user. Anything
// unclassified is KindInternal.
package auth
