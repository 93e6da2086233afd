// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes  = 32               // 32 bytes = 64 hex chars
	ResetTokenExpiry = 10 * time.Minute // validity window of an emailed link
)

// CreateResetToken creates a secure random token, its hash and its expiry.
// The plaintext token is sent to the user; only the hash is stored.
func CreateResetToken(now time.Time) (token, hash string, expires time.Time, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", time.Time{}, oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashResetToken(token), now.Add(ResetTokenExpiry), nil
}

// VerifyResetToken reports whether token matches the stored hash and the
// stored expiry has not passed.
func VerifyResetToken(token, hash string, expires, now time.Time) bool {
	if token == "" || hash == "" || now.After(expires) {
		return false
	}
	computed := HashResetToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// HashResetToken computes the SHA256 hex digest stored for a token.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
