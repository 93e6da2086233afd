// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/pkg/errutil"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestNewTokenService_RejectsShortSecret(t *testing.T) {
	_, err := auth.NewTokenService([]byte("short"), time.Hour)
	errutil.AssertErrorCode(t, err, "TOKEN_SECRET_INVALID")
}

func TestTokenService_IssueVerify(t *testing.T) {
	c := newClock()
	svc, err := auth.NewTokenService(testSecret, time.Hour, auth.WithTokenClock(c.Now))
	require.NoError(t, err)

	token, err := svc.Issue("01HZXAMPLE")
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "01HZXAMPLE", claims.IdentityID)
	assert.True(t, claims.IssuedAt.Equal(c.t))
	assert.True(t, claims.ExpiresAt.Equal(c.t.Add(time.Hour)))

	c.Advance(2 * time.Hour)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)
	errutil.AssertErrorCode(t, err, "TOKEN_EXPIRED")
}

func TestTokenService_Rejects(t *testing.T) {
	c := newClock()
	svc, err := auth.NewTokenService(testSecret, time.Hour, auth.WithTokenClock(c.Now))
	require.NoError(t, err)
	other, err := auth.NewTokenService([]byte("ffffffffffffffffffffffffffffffff"), time.Hour, auth.WithTokenClock(c.Now))
	require.NoError(t, err)

	foreign, err := other.Issue("id-1")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"id":  "id-1",
		"iat": c.t.Unix(),
		"exp": c.t.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"id":  "id-1",
		"iat": c.t.Unix(),
		"exp": c.t.Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  "id-1",
		"iat": c.t.Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)

	noID, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": c.t.Unix(),
		"exp": c.t.Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)

	tests := map[string]string{
		"malformed":        "not.a.token",
		"empty":            "",
		"wrong secret":     foreign,
		"alg none":         none,
		"other hmac":       hs512,
		"missing exp":      noExpiry,
		"missing id claim": noID,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Verify(token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
			errutil.AssertErrorCode(t, err, "TOKEN_INVALID")
		})
	}
}
