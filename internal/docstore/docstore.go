// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package docstore defines the document collection abstraction the resource
// handlers and the auth subsystem persist through.
//
// A document is a JSON object. Every collection maintains three system
// fields: "id" (assigned on insert when absent), "createdAt" and the
// internal "__v" version counter, which each update increments.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/natours/natours/internal/query"
	"github.com/natours/natours/internal/schema"
)

// Document is one stored JSON object.
type Document = map[string]any

// Sentinel errors returned by every Collection implementation.
var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("duplicate key")
	// ErrConstraint reports a stored document that violates a store-level
	// check.
	ErrConstraint = errors.New("constraint violated")
)

// DuplicateError reports a uniqueness violation on Field.
type DuplicateError struct {
	Collection string
	Field      string
}

func (e *DuplicateError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: duplicate key", e.Collection)
	}
	return fmt.Sprintf("%s: duplicate value for %s", e.Collection, e.Field)
}

// Is makes errors.Is(err, ErrDuplicate) hold.
func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// Collection stores the documents of one resource.
type Collection interface {
	Name() string
	// Insert stores doc and returns it with system fields populated.
	Insert(ctx context.Context, doc Document) (Document, error)
	// FindByID returns the document with id that also satisfies scope.
	FindByID(ctx context.Context, id string, scope ...query.Condition) (Document, error)
	// Find returns matching documents, sorted and windowed. Projection is
	// left to the caller.
	Find(ctx context.Context, d *query.Descriptor) ([]Document, error)
	// Count returns the number of documents matching conds.
	Count(ctx context.Context, conds ...query.Condition) (int64, error)
	// UpdateByID merges patch into the stored document in one atomic step.
	// Keys whose value is nil are removed. It returns the updated document.
	UpdateByID(ctx context.Context, id string, patch Document, scope ...query.Condition) (Document, error)
	// DeleteByID removes the document.
	DeleteByID(ctx context.Context, id string) error
	// Aggregate groups matching documents.
	Aggregate(ctx context.Context, p *Pipeline) ([]Document, error)
}

// KeyFunc transforms a group key before grouping.
type KeyFunc string

// Key transforms.
const (
	KeyValue KeyFunc = ""
	KeyUpper KeyFunc = "upper"
	KeyMonth KeyFunc = "month"
)

// AccOp is an aggregation accumulator.
type AccOp string

// Accumulators. AccPush collects the field values of each group.
const (
	AccCount AccOp = "count"
	AccSum   AccOp = "sum"
	AccAvg   AccOp = "avg"
	AccMin   AccOp = "min"
	AccMax   AccOp = "max"
	AccPush  AccOp = "push"
)

// Accumulator computes one output field per group.
type Accumulator struct {
	As    string
	Op    AccOp
	Field string
}

// Pipeline describes a grouping query.
//
// When Unwind names a list field, each element becomes its own row before
// Match runs, and conditions on that field compare against the element.
type Pipeline struct {
	Unwind     string
	UnwindType schema.Type
	Match      []query.Condition
	GroupBy    string
	GroupType  schema.Type
	KeyFunc    KeyFunc
	// KeyAs names the group key in output documents; default "key".
	KeyAs        string
	Accumulators []Accumulator
	SortBy       string
	SortDesc     bool
	Limit        int
}

// KeyName returns the output field holding the group key.
func (p *Pipeline) KeyName() string {
	if p.KeyAs == "" {
		return "key"
	}
	return p.KeyAs
}

// Validate checks field names and operator combinations.
func (p *Pipeline) Validate() error {
	names := []string{p.GroupBy, p.Unwind, p.KeyName()}
	for _, a := range p.Accumulators {
		names = append(names, a.As, a.Field)
		if a.Op != AccCount && a.Field == "" {
			return fmt.Errorf("accumulator %q needs a field", a.As)
		}
	}
	for _, c := range p.Match {
		names = append(names, c.Field)
	}
	for _, n := range names {
		if n != "" && !schema.ValidFieldName(n) {
			return fmt.Errorf("invalid field name %q", n)
		}
	}
	if p.GroupBy == "" {
		return errors.New("pipeline needs a group field")
	}
	if p.Unwind != "" && !p.UnwindType.IsList() {
		return fmt.Errorf("unwind field %q is not a list", p.Unwind)
	}
	return nil
}

// Clone returns a shallow copy of doc's top level plus copies of nested
// maps and slices, so callers cannot mutate stored state.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := maps.Clone(doc)
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
