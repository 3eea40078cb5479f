// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth

import (
	"encoding/json"

	"github.com/samber/oops"
)

// PendingKind identifies which flow issued a verification token.
type PendingKind string

// Pending kinds.
const (
	PendingKindAccount PendingKind = "account"
	PendingKindEmail   PendingKind = "email"
)

// Pending is the state held by a verification token until its code is
// confirmed. Only the flow that issued it interprets it.
type Pending interface {
	Kind() PendingKind
}

// PendingAccount is an account waiting for its signup code.
type PendingAccount struct {
	Email        string `json:"email"`
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
}

// Kind implements Pending.
func (PendingAccount) Kind() PendingKind { return PendingKindAccount }

// PendingEmail is a requested email change.
type PendingEmail struct {
	NewEmail string `json:"newEmail"`
}

// Kind implements Pending.
func (PendingEmail) Kind() PendingKind { return PendingKindEmail }

type pendingEnvelope struct {
	Kind    PendingKind     `json:"kind"`
	Account *PendingAccount `json:"account,omitempty"`
	Email   *PendingEmail   `json:"email,omitempty"`
}

// EncodePending serialises p for storage.
func EncodePending(p Pending) (string, error) {
	env := pendingEnvelope{}
	switch v := p.(type) {
	case PendingAccount:
		env.Kind = PendingKindAccount
		env.Account = &v
	case PendingEmail:
		env.Kind = PendingKindEmail
		env.Email = &v
	default:
		return "", oops.Code("PENDING_UNKNOWN_KIND").Errorf("unsupported pending payload %T", p)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return "", oops.Code("PENDING_ENCODE_FAILED").Wrap(err)
	}
	return string(data), nil
}

// DecodePending restores a payload written by EncodePending.
func DecodePending(data string) (Pending, error) {
	var env pendingEnvelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return nil, oops.Code("PENDING_DECODE_FAILED").Wrap(err)
	}

	switch env.Kind {
	case PendingKindAccount:
		if env.Account == nil {
			return nil, oops.Code("PENDING_DECODE_FAILED").Errorf("account payload missing")
		}
		return *env.Account, nil
	case PendingKindEmail:
		if env.Email == nil {
			return nil, oops.Code("PENDING_DECODE_FAILED").Errorf("email payload missing")
		}
		return *env.Email, nil
	default:
		return nil, oops.Code("PENDING_UNKNOWN_KIND").
			With("kind", string(env.Kind)).
			Errorf("unknown pending payload kind %q", env.Kind)
	}
}

// pendingKindOf decodes only enough to learn the kind.
func pendingKindOf(data string) PendingKind {
	var env struct {
		Kind PendingKind `json:"kind"`
	}
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return ""
	}
	return env.Kind
}
