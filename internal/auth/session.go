// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Role is an authorization marker carried in session tokens.
type Role string

// Known roles.
const (
	RoleUser  Role = "ROLE_USER"
	RoleAdmin Role = "ROLE_ADMIN"
)

// Session token configuration.
const (
	DefaultSessionTTL  = time.Hour
	MinSigningKeyBytes = 32
	rolesSeparator     = ","
)

// RolesFor derives the role set from the account's admin flag at issuance.
func RolesFor(a *Account) []Role {
	if a != nil && a.Admin {
		return []Role{RoleUser, RoleAdmin}
	}
	return []Role{RoleUser}
}

// SessionClaims are the claims carried by a session token.
type SessionClaims struct {
	Roles string `json:"roles"`
	jwt.RegisteredClaims
}

// RoleList splits the joined roles claim.
func (c *SessionClaims) RoleList() []Role {
	if c.Roles == "" {
		return nil
	}
	parts := strings.Split(c.Roles, rolesSeparator)
	roles := make([]Role, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roles = append(roles, Role(p))
		}
	}
	return roles
}

// HasRole reports whether the claims include role.
func (c *SessionClaims) HasRole(role Role) bool {
	for _, r := range c.RoleList() {
		if r == role {
			return true
		}
	}
	return false
}

// SessionCodec issues and validates HMAC-signed session tokens. The signing
// key is fixed at construction.
type SessionCodec struct {
	key    []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// SessionOption configures a SessionCodec.
type SessionOption func(*SessionCodec)

// WithSessionTTL overrides the token lifetime.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(c *SessionCodec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithIssuer sets the iss claim.
func WithIssuer(issuer string) SessionOption {
	return func(c *SessionCodec) { c.issuer = issuer }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) SessionOption {
	return func(c *SessionCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewSessionCodec creates a codec bound to secret.
func NewSessionCodec(secret []byte, opts ...SessionOption) (*SessionCodec, error) {
	if len(secret) < MinSigningKeyBytes {
		return nil, oops.Code("SESSION_KEY_TOO_SHORT").
			With("min_bytes", MinSigningKeyBytes).
			Errorf("signing secret must be at least %d bytes", MinSigningKeyBytes)
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	c := &SessionCodec{
		key: key,
		ttl: DefaultSessionTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	return c, nil
}

// TTL returns the configured token lifetime.
func (c *SessionCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for subject carrying roles.
func (c *SessionCodec) Issue(subject string, roles []Role) (string, error) {
	if subject == "" {
		return "", oops.Code("SESSION_SUBJECT_EMPTY").Errorf("session subject cannot be empty")
	}

	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}

	now := c.now()
	claims := SessionClaims{
		Roles: strings.Join(names, rolesSeparator),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.key)
	if err != nil {
		return "", oops.Code("SESSION_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Parse verifies signature and expiry and returns the claims.
func (c *SessionCodec) Parse(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return nil, oops.Code("SESSION_TOKEN_INVALID").Wrap(err)
	}
	if !parsed.Valid {
		return nil, oops.Code("SESSION_TOKEN_INVALID").Errorf("token is not valid")
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return nil, oops.Code("SESSION_TOKEN_INVALID").
			With("issuer", claims.Issuer).
			Errorf("unexpected issuer")
	}
	return claims, nil
}

// Validate reports whether token is well-signed and unexpired. It never fails.
func (c *SessionCodec) Validate(token string) bool {
	_, err := c.Parse(token)
	return err == nil
}

// ExtractSubject returns the subject of a valid token.
func (c *SessionCodec) ExtractSubject(token string) (string, error) {
	claims, err := c.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
