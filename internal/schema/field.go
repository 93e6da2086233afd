// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package schema

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Type is the declared type of a document field.
type Type string

// Field types.
const (
	String     Type = "string"
	Number     Type = "number"
	Integer    Type = "integer"
	Bool       Type = "boolean"
	Time       Type = "time"
	Object     Type = "object"
	StringList Type = "string[]"
	TimeList   Type = "time[]"
	ObjectList Type = "object[]"
)

// IsList reports whether t holds an array of values.
func (t Type) IsList() bool {
	return strings.HasSuffix(string(t), "[]")
}

// Elem returns the element type of a list type, or t itself.
func (t Type) Elem() Type {
	return Type(strings.TrimSuffix(string(t), "[]"))
}

// Comparable reports whether values of t can be range-filtered and sorted.
func (t Type) Comparable() bool {
	switch t {
	case String, Number, Integer, Bool, Time:
		return true
	default:
		return false
	}
}

// System fields maintained by the document store.
const (
	IDField        = "id"
	CreatedAtField = "createdAt"
	VersionField   = "__v"
)

var fieldNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidFieldName reports whether name can be used as a document key in
// store queries.
func ValidFieldName(name string) bool {
	return fieldNameRe.MatchString(name)
}

// Field declares one document field.
type Field struct {
	Name     string
	Type     Type
	Required bool
	// Enum restricts string values.
	Enum []string
	// Min and Max bound numbers, or string length when set on a String field.
	Min *float64
	Max *float64
	// Format is a JSON Schema format such as "email".
	Format string
	Unique bool
	// Hidden fields never appear in responses or projections.
	Hidden bool
	// ReadOnly fields cannot be set through the generic resource handlers.
	ReadOnly bool
	Default  any
	// Filterable and Sortable opt the field into the query allow-lists.
	Filterable bool
	Sortable   bool
	// AllowMulti lets a repeated filter parameter match any of its values.
	AllowMulti  bool
	Description string
}

// Float returns a pointer to v, for Field.Min and Field.Max.
func Float(v float64) *float64 { return &v }

var systemFields = map[string]Field{
	IDField:        {Name: IDField, Type: String, Filterable: true, Sortable: true, AllowMulti: true, ReadOnly: true},
	CreatedAtField: {Name: CreatedAtField, Type: Time, Filterable: true, Sortable: true, ReadOnly: true},
}

// Coerce converts a raw query-string value to the Go value for t.
func Coerce(t Type, raw string) (any, error) {
	switch t.Elem() {
	case Number:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, oops.Code("SCHEMA_COERCE_FAILED").With("type", t).Errorf("%q is not a number", raw)
		}
		return v, nil
	case Integer:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, oops.Code("SCHEMA_COERCE_FAILED").With("type", t).Errorf("%q is not an integer", raw)
		}
		return float64(v), nil
	case Bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, oops.Code("SCHEMA_COERCE_FAILED").With("type", t).Errorf("%q is not a boolean", raw)
		}
		return v, nil
	case Time:
		v, err := ParseTime(raw)
		if err != nil {
			return nil, oops.Code("SCHEMA_COERCE_FAILED").With("type", t).Errorf("%q is not a date", raw)
		}
		return v, nil
	case String:
		return raw, nil
	default:
		return nil, oops.Code("SCHEMA_COERCE_FAILED").With("type", t).Errorf("values of type %s cannot be compared", t)
	}
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"}

// ParseTime accepts RFC 3339 timestamps and bare dates.
func ParseTime(raw string) (time.Time, error) {
	var err error
	for _, layout := range timeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

// FormatTime renders t the way documents store timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
