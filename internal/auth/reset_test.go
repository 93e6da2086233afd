// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natours/natours/internal/auth"
)

func TestCreateResetToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("generates secure token", func(t *testing.T) {
		token, hash, expires, err := auth.CreateResetToken(now)
		require.NoError(t, err)
		assert.Len(t, token, 64) // 32 bytes hex-encoded
		assert.Len(t, hash, 64)  // sha256 hex
		assert.NotEqual(t, token, hash)
		assert.Equal(t, now.Add(10*time.Minute), expires)
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		token1, hash1, _, err := auth.CreateResetToken(now)
		require.NoError(t, err)
		token2, hash2, _, err := auth.CreateResetToken(now)
		require.NoError(t, err)

		assert.NotEqual(t, token1, token2)
		assert.NotEqual(t, hash1, hash2)
	})
}

func TestVerifyResetToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token, hash, expires, err := auth.CreateResetToken(now)
	require.NoError(t, err)
	_, otherHash, _, err := auth.CreateResetToken(now)
	require.NoError(t, err)

	tampered := []byte(token)
	tampered[0], tampered[1] = tampered[1], tampered[0]

	tests := []struct {
		name  string
		token string
		hash  string
		at    time.Time
		want  bool
	}{
		{"correct token within window", token, hash, now.Add(5 * time.Minute), true},
		{"correct token at expiry", token, hash, expires, true},
		{"expired", token, hash, expires.Add(time.Second), false},
		{"wrong token", "wrongtoken", hash, now, false},
		{"hash of another identity", token, otherHash, now, false},
		{"swapped characters", string(tampered), hash, now, false},
		{"empty token", "", hash, now, false},
		{"empty hash", token, "", now, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.VerifyResetToken(tt.token, tt.hash, expires, tt.at))
		})
	}
}

func TestHashResetToken_Deterministic(t *testing.T) {
	assert.Equal(t, auth.HashResetToken("abc"), auth.HashResetToken("abc"))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", auth.HashResetToken("abc"))
}
