// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/oops"

	"github.com/natours/natours/internal/docstore"
	"github.com/natours/natours/internal/query"
	"github.com/natours/natours/internal/schema"
)

// ErrIdentityNotFound is returned when no active identity matches a lookup.
var ErrIdentityNotFound = errors.New("identity not found")

// IdentityStore persists identities in a document collection. Every lookup
// applies ActiveScope.
type IdentityStore struct {
	coll docstore.Collection
}

// NewIdentityStore wraps coll, which must hold the users collection.
func NewIdentityStore(coll docstore.Collection) *IdentityStore {
	return &IdentityStore{coll: coll}
}

// Collection returns the underlying collection.
func (s *IdentityStore) Collection() docstore.Collection { return s.coll }

// NormalizeEmail case-folds an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *IdentityStore) notFound(err error, key, value string) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return oops.Code("IDENTITY_NOT_FOUND").With(key, value).Wrap(ErrIdentityNotFound)
	}
	return oops.Code("IDENTITY_LOOKUP_FAILED").With(key, value).Wrap(err)
}

// Create inserts doc. The caller has validated it.
func (s *IdentityStore) Create(ctx context.Context, doc docstore.Document) (*Identity, error) {
	if email, ok := doc[FieldEmail].(string); ok {
		doc[FieldEmail] = NormalizeEmail(email)
	}
	stored, err := s.coll.Insert(ctx, doc)
	if err != nil {
		return nil, oops.Code("IDENTITY_CREATE_FAILED").With("email", doc[FieldEmail]).Wrap(err)
	}
	return identityFromDocument(stored), nil
}

// ByID returns the active identity with id.
func (s *IdentityStore) ByID(ctx context.Context, id string) (*Identity, error) {
	doc, err := s.coll.FindByID(ctx, id, ActiveScope()...)
	if err != nil {
		return nil, s.notFound(err, "identity_id", id)
	}
	return identityFromDocument(doc), nil
}

// ByEmail returns the active identity registered with email.
func (s *IdentityStore) ByEmail(ctx context.Context, email string) (*Identity, error) {
	return s.findOne(ctx, "email", query.Eq(FieldEmail, schema.String, NormalizeEmail(email)))
}

// ByResetTokenHash returns the active identity holding a reset token with
// the given hash. Expiry is checked by the caller.
func (s *IdentityStore) ByResetTokenHash(ctx context.Context, hash string) (*Identity, error) {
	return s.findOne(ctx, "reset_token", query.Eq(FieldPasswordResetToken, schema.String, hash))
}

func (s *IdentityStore) findOne(ctx context.Context, key string, cond query.Condition) (*Identity, error) {
	docs, err := s.coll.Find(ctx, &query.Descriptor{
		Conditions: append(ActiveScope(), cond),
		Sort:       []query.SortKey{{Field: schema.IDField, Type: schema.String}},
		Limit:      1,
	})
	if err != nil {
		return nil, oops.Code("IDENTITY_LOOKUP_FAILED").With("by", key).Wrap(err)
	}
	if len(docs) == 0 {
		return nil, oops.Code("IDENTITY_NOT_FOUND").With("by", key).Wrap(ErrIdentityNotFound)
	}
	return identityFromDocument(docs[0]), nil
}

// Update merges patch into the active identity with id. Nil values clear
// fields.
func (s *IdentityStore) Update(ctx context.Context, id string, patch docstore.Document) (*Identity, error) {
	if email, ok := patch[FieldEmail].(string); ok {
		patch[FieldEmail] = NormalizeEmail(email)
	}
	doc, err := s.coll.UpdateByID(ctx, id, patch, ActiveScope()...)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, s.notFound(err, "identity_id", id)
		}
		return nil, oops.Code("IDENTITY_UPDATE_FAILED").With("identity_id", id).Wrap(err)
	}
	return identityFromDocument(doc), nil
}
