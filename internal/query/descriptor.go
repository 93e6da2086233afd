// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package query turns client query-string parameters into a store-neutral
// query Descriptor.
//
// Builder stages run in a fixed chain (Filter, Sort, LimitFields, Paginate)
// and the first failure is kept and reported by Descriptor or Execute.
// Every field name a client supplies is checked against the resource schema
// before it reaches a store.
package query

import (
	"context"

	"github.com/natours/natours/internal/schema"
)

// Op is a comparison operator.
type Op string

// Operators. OpNe matches documents where the field is absent.
const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
)

// Condition compares one field against a value. For OpIn, Value is a []any.
type Condition struct {
	Field string
	Type  schema.Type
	Op    Op
	Value any
}

// Eq matches documents whose field equals v.
func Eq(field string, t schema.Type, v any) Condition {
	return Condition{Field: field, Type: t, Op: OpEq, Value: v}
}

// Ne matches documents whose field is absent or differs from v.
func Ne(field string, t schema.Type, v any) Condition {
	return Condition{Field: field, Type: t, Op: OpNe, Value: v}
}

// Gt matches documents whose field is greater than v.
func Gt(field string, t schema.Type, v any) Condition {
	return Condition{Field: field, Type: t, Op: OpGt, Value: v}
}

// In matches documents whose field equals any of vs.
func In(field string, t schema.Type, vs ...any) Condition {
	return Condition{Field: field, Type: t, Op: OpIn, Value: vs}
}

// SortKey orders results by one field.
type SortKey struct {
	Field string
	Type  schema.Type
	Desc  bool
}

// Projection selects response fields. Include takes precedence; when it is
// empty every field except Exclude is returned.
type Projection struct {
	Include []string
	Exclude []string
}

// Descriptor is a complete store query.
type Descriptor struct {
	Conditions []Condition
	Sort       []SortKey
	Projection Projection
	Page       int
	// Skip and Limit are applied after sorting. Limit 0 means unbounded.
	Skip  int
	Limit int
}

// Finder runs descriptors against a collection of documents.
type Finder interface {
	Find(ctx context.Context, d *Descriptor) ([]map[string]any, error)
}
