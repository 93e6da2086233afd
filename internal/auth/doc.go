// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package auth provides authentication and authorization primitives for
// the natours API.
//
// # Identities
//
// Identities are documents in the users collection, declared by
// UserSchema and accessed through IdentityStore. Deactivated identities
// (active=false) are excluded from every lookup by ActiveScope.
//
// # Tokens
//
// TokenService issues stateless HS256 session tokens. A token is only
// accepted while its identity is active and its iat is not older than the
// identity's passwordChangedAt. Password reset tokens are random values
// whose SHA256 digest is stored for ResetTokenExpiry.
//
// # Services
//
// Service coordinates the flows: Register, Login, Authenticate,
// ForgotPassword, ResetPassword, UpdatePassword, UpdateMe and DeleteMe.
// It is created with NewService, which validates its dependencies.
package auth
