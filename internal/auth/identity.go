// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"slices"
	"time"

	"github.com/natours/natours/internal/docstore"
	"github.com/natours/natours/internal/query"
	"github.com/natours/natours/internal/schema"
)

// Role gates access to routes.
type Role string

// Roles, from least to most privileged.
const (
	RoleUser      Role = "user"
	RoleGuide     Role = "guide"
	RoleLeadGuide Role = "lead-guide"
	RoleAdmin     Role = "admin"
)

// Roles lists every valid role.
func Roles() []Role {
	return []Role{RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return slices.Contains(Roles(), r)
}

// Field names of the users collection.
const (
	FieldName                 = "name"
	FieldEmail                = "email"
	FieldPhoto                = "photo"
	FieldRole                 = "role"
	FieldPassword             = "password"
	FieldPasswordChangedAt    = "passwordChangedAt"
	FieldPasswordResetToken   = "passwordResetToken"
	FieldPasswordResetExpires = "passwordResetExpires"
	FieldActive               = "active"
)

// DefaultPhoto is assigned to identities that never uploaded a photo.
const DefaultPhoto = "default.jpg"

func roleNames() []string {
	out := make([]string, 0, len(Roles()))
	for _, r := range Roles() {
		out = append(out, string(r))
	}
	return out
}

// UserSchema declares the users collection. Credential bookkeeping fields
// are hidden from responses and cannot be written through the generic
// resource handlers.
var UserSchema = schema.MustNew("users", []schema.Field{
	{Name: FieldName, Type: schema.String, Required: true, Min: schema.Float(1), Max: schema.Float(80),
		Filterable: true, Sortable: true, Description: "Display name"},
	{Name: FieldEmail, Type: schema.String, Required: true, Format: "email", Unique: true,
		Filterable: true, Sortable: true},
	{Name: FieldPhoto, Type: schema.String, Default: DefaultPhoto},
	{Name: FieldRole, Type: schema.String, Enum: roleNames(), Default: string(RoleUser),
		Filterable: true, Sortable: true, AllowMulti: true},
	{Name: FieldPassword, Type: schema.String, Required: true, Hidden: true, ReadOnly: true,
		Description: "argon2id or bcrypt hash"},
	{Name: FieldPasswordChangedAt, Type: schema.Time, ReadOnly: true},
	{Name: FieldPasswordResetToken, Type: schema.String, Hidden: true, ReadOnly: true},
	{Name: FieldPasswordResetExpires, Type: schema.Time, Hidden: true, ReadOnly: true},
	{Name: FieldActive, Type: schema.Bool, Default: true, Hidden: true, ReadOnly: true},
})

// ActiveScope excludes deactivated identities. Documents without the
// active field count as active.
func ActiveScope() []query.Condition {
	return []query.Condition{query.Ne(FieldActive, schema.Bool, false)}
}

// Identity is a registered user.
type Identity struct {
	ID                string
	Name              string
	Email             string
	Photo             string
	Role              Role
	PasswordHash      string
	PasswordChangedAt time.Time
	ResetTokenHash    string
	ResetExpires      time.Time
	Active            bool
	CreatedAt         time.Time

	doc docstore.Document
}

func identityFromDocument(doc docstore.Document) *Identity {
	str := func(k string) string {
		s, _ := doc[k].(string)
		return s
	}
	ts := func(k string) time.Time {
		t, _ := query.AsTime(doc[k])
		return t
	}
	active := true
	if v, ok := doc[FieldActive].(bool); ok {
		active = v
	}
	return &Identity{
		ID:                str(schema.IDField),
		Name:              str(FieldName),
		Email:             str(FieldEmail),
		Photo:             str(FieldPhoto),
		Role:              Role(str(FieldRole)),
		PasswordHash:      str(FieldPassword),
		PasswordChangedAt: ts(FieldPasswordChangedAt),
		ResetTokenHash:    str(FieldPasswordResetToken),
		ResetExpires:      ts(FieldPasswordResetExpires),
		Active:            active,
		CreatedAt:         ts(schema.CreatedAtField),
		doc:               doc,
	}
}

// Public returns the identity as a response document, without credential
// fields.
func (i *Identity) Public() docstore.Document {
	return UserSchema.Strip(i.doc)
}

// ChangedPasswordAfter reports whether the password changed after a token
// issued at iat. Both instants are compared at second granularity.
func (i *Identity) ChangedPasswordAfter(iat time.Time) bool {
	if i.PasswordChangedAt.IsZero() {
		return false
	}
	return i.PasswordChangedAt.Unix() > iat.Unix()
}

// HasRole reports whether the identity holds one of roles.
func (i *Identity) HasRole(roles ...Role) bool {
	return slices.Contains(roles, i.Role)
}
