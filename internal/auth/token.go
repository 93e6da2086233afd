// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// MinSecretLen is the shortest HS256 signing secret accepted.
const MinSecretLen = 32

// DefaultTokenTTL is how long a session token stays valid.
const DefaultTokenTTL = 90 * 24 * time.Hour

// Token verification failures.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims are the verified contents of a session token.
type Claims struct {
	IdentityID string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	ID string `json:"id"`
}

// TokenService issues and verifies HS256 session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithTokenClock sets the clock used for iat, exp and expiry checks.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService creates a TokenService. A zero ttl means DefaultTokenTTL.
func NewTokenService(secret []byte, ttl time.Duration, opts ...TokenOption) (*TokenService, error) {
	if len(secret) < MinSecretLen {
		return nil, oops.Code("TOKEN_SECRET_INVALID").
			With("min_length", MinSecretLen).
			Errorf("jwt secret must be at least %d bytes", MinSecretLen)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	s := &TokenService{secret: secret, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a token for identityID.
func (s *TokenService) Issue(identityID string) (string, error) {
	if identityID == "" {
		return "", oops.Code("TOKEN_ISSUE_FAILED").Errorf("identity id is required")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		ID: identityID,
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", oops.Code("TOKEN_ISSUE_FAILED").With("identity_id", identityID).Wrap(err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
// It fails with ErrExpiredToken or ErrInvalidToken.
func (s *TokenService) Verify(raw string) (Claims, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, oops.Code("TOKEN_EXPIRED").Wrap(ErrExpiredToken)
	case err != nil:
		return Claims{}, oops.Code("TOKEN_INVALID").With("reason", err.Error()).Wrap(ErrInvalidToken)
	case claims.ID == "" || claims.IssuedAt == nil:
		return Claims{}, oops.Code("TOKEN_INVALID").With("reason", "missing claims").Wrap(ErrInvalidToken)
	}
	return Claims{
		IdentityID: claims.ID,
		IssuedAt:   claims.IssuedAt.Time,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}
