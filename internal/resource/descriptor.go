// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package resource implements the generic CRUD operations shared by every
// collection exposed over HTTP. A Handler is built from a Descriptor, a
// plain value naming the collection, its schema and the read scope and
// write hooks that apply to it.
package resource

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/natours/natours/internal/docstore"
	"github.com/natours/natours/internal/query"
	"github.com/natours/natours/internal/schema"
)

// Hook transforms a document before it is written. On create it receives
// the full document, on update only the patch.
type Hook func(ctx context.Context, doc docstore.Document) error

// UpdateCheck runs after an update patch has been merged and validated,
// before it is stored. current is the stored document.
type UpdateCheck func(ctx context.Context, current, merged docstore.Document) error

// Op names a write operation.
type Op string

// Write operations.
const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// WriteHook runs after a successful write. before is nil on create and
// after is nil on delete.
type WriteHook func(ctx context.Context, op Op, before, after docstore.Document) error

// Expansion replaces references with the referenced documents on reads.
//
// With Local set, the field of that name holds one id or a list of ids in
// Target and is replaced by the documents. With Foreign set, As receives
// every Target document whose Foreign field holds this document's id.
type Expansion struct {
	As      string
	Target  docstore.Collection
	Schema  *schema.Schema
	Local   string
	Foreign string
	// Fields limits the expanded documents to these fields plus id.
	Fields []string
	// Scope applies to Target lookups.
	Scope []query.Condition
	// OnList also expands the items returned by GetAll.
	OnList bool
	// Nested expansions run on the expanded documents.
	Nested []Expansion
}

// Descriptor configures a Handler.
type Descriptor struct {
	// Name is the singular resource name used in messages and spans.
	Name       string
	Collection docstore.Collection
	Schema     *schema.Schema
	Expansions []Expansion
	// ReadScope applies to every read, update and delete.
	ReadScope    []query.Condition
	BeforeCreate []Hook
	BeforeUpdate []Hook
	UpdateChecks []UpdateCheck
	AfterWrite   []WriteHook
	// Conflicts maps unique fields to the message shown when a write
	// collides on them.
	Conflicts map[string]string
	// Logger reports AfterWrite failures. Defaults to slog.Default().
	Logger *slog.Logger
}

func (d *Descriptor) validate() error {
	switch {
	case d.Name == "":
		return oops.Code("RESOURCE_INVALID_DESCRIPTOR").Errorf("resource name is required")
	case d.Collection == nil:
		return oops.Code("RESOURCE_INVALID_DESCRIPTOR").With("resource", d.Name).Errorf("collection is required")
	case d.Schema == nil:
		return oops.Code("RESOURCE_INVALID_DESCRIPTOR").With("resource", d.Name).Errorf("schema is required")
	}
	return validateExpansions(d.Name, d.Schema, d.Expansions)
}

func validateExpansions(name string, s *schema.Schema, exps []Expansion) error {
	for _, e := range exps {
		invalid := func(msg string) error {
			return oops.Code("RESOURCE_INVALID_DESCRIPTOR").With("resource", name).With("expansion", e.As).Errorf("%s", msg)
		}
		switch {
		case e.As == "" || e.Target == nil || e.Schema == nil:
			return invalid("expansion needs a name, a target collection and its schema")
		case (e.Local == "") == (e.Foreign == ""):
			return invalid("expansion needs exactly one of Local and Foreign")
		}
		if e.Local != "" {
			if _, ok := s.Lookup(e.Local); !ok {
				return invalid("local field is not declared")
			}
		}
		if e.Foreign != "" {
			if _, ok := e.Schema.Lookup(e.Foreign); !ok {
				return invalid("foreign field is not declared on the target")
			}
		}
		for _, f := range e.Fields {
			if field, ok := e.Schema.Lookup(f); !ok || field.Hidden {
				return invalid("expanded field " + f + " is not a visible target field")
			}
		}
		if err := validateExpansions(name, e.Schema, e.Nested); err != nil {
			return err
		}
	}
	return nil
}
