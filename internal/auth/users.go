// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"context"

	"github.com/natours/natours/internal/docstore"
	"github.com/natours/natours/internal/resource"
)

func normalizeEmailHook(_ context.Context, doc docstore.Document) error {
	if email, ok := doc[FieldEmail].(string); ok {
		doc[FieldEmail] = NormalizeEmail(email)
	}
	return nil
}

// UserDescriptor configures the administrative users resource. Password
// and account state fields are read-only there and change only through
// Service.
func UserDescriptor(coll docstore.Collection) resource.Descriptor {
	return resource.Descriptor{
		Name:         "user",
		Collection:   coll,
		Schema:       UserSchema,
		ReadScope:    ActiveScope(),
		BeforeCreate: []resource.Hook{normalizeEmailHook},
		BeforeUpdate: []resource.Hook{normalizeEmailHook},
		Conflicts:    map[string]string{FieldEmail: msgEmailTaken},
	}
}
