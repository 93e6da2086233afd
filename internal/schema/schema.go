// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package schema

import (
	"fmt"
	"maps"
	"slices"
	"time"

	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
)

// Rule checks a cross-field constraint on a complete document. Rules run on
// full validation only.
type Rule func(doc map[string]any) *FieldError

// Schema is a compiled set of field declarations for one resource.
type Schema struct {
	name    string
	fields  []Field
	index   map[string]int
	rules   []Rule
	full    *jschema.Schema
	partial *jschema.Schema
}

// New compiles the field declarations of resource name.
func New(name string, fields []Field, rules ...Rule) (*Schema, error) {
	s := &Schema{
		name:   name,
		fields: slices.Clone(fields),
		index:  make(map[string]int, len(fields)),
		rules:  rules,
	}
	for i, f := range s.fields {
		if !ValidFieldName(f.Name) {
			return nil, oops.Code("SCHEMA_INVALID_FIELD").With("schema", name).Errorf("invalid field name %q", f.Name)
		}
		if _, ok := systemFields[f.Name]; ok || f.Name == VersionField {
			return nil, oops.Code("SCHEMA_INVALID_FIELD").With("schema", name).Errorf("field %q is reserved", f.Name)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, oops.Code("SCHEMA_INVALID_FIELD").With("schema", name).Errorf("field %q declared twice", f.Name)
		}
		if (f.Filterable || f.Sortable) && !f.Type.Comparable() {
			return nil, oops.Code("SCHEMA_INVALID_FIELD").With("schema", name).
				Errorf("field %q of type %s cannot be filtered or sorted", f.Name, f.Type)
		}
		s.index[f.Name] = i
	}

	var err error
	if s.full, err = compile(name, "full", s.Document(false)); err != nil {
		return nil, err
	}
	if s.partial, err = compile(name, "partial", s.Document(true)); err != nil {
		return nil, err
	}
	return s, nil
}

// MustNew is New that panics on error, for package-level declarations.
func MustNew(name string, fields []Field, rules ...Rule) *Schema {
	s, err := New(name, fields, rules...)
	if err != nil {
		panic(err)
	}
	return s
}

func compile(name, mode string, doc map[string]any) (*jschema.Schema, error) {
	url := fmt.Sprintf("natours://schemas/%s.%s.json", name, mode)
	c := jschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).With("mode", mode).Wrap(err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).With("mode", mode).Wrap(err)
	}
	return sch, nil
}

// Name returns the resource name.
func (s *Schema) Name() string { return s.name }

// Fields returns the declared fields in declaration order.
func (s *Schema) Fields() []Field { return slices.Clone(s.fields) }

// Lookup returns a declared field or one of the store-maintained system
// fields (id, createdAt).
func (s *Schema) Lookup(name string) (Field, bool) {
	if f, ok := systemFields[name]; ok {
		return f, true
	}
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// HiddenFields lists the fields excluded from every response.
func (s *Schema) HiddenFields() []string {
	var out []string
	for _, f := range s.fields {
		if f.Hidden {
			out = append(out, f.Name)
		}
	}
	return out
}

// UniqueFields lists fields with a uniqueness constraint.
func (s *Schema) UniqueFields() []string {
	var out []string
	for _, f := range s.fields {
		if f.Unique {
			out = append(out, f.Name)
		}
	}
	return out
}

// ApplyDefaults sets declared defaults for absent fields. Function defaults
// are called once per document.
func (s *Schema) ApplyDefaults(doc map[string]any) {
	for _, f := range s.fields {
		if f.Default == nil {
			continue
		}
		if v, ok := doc[f.Name]; ok && v != nil {
			continue
		}
		switch d := f.Default.(type) {
		case func() any:
			doc[f.Name] = d()
		default:
			doc[f.Name] = d
		}
	}
}

// Normalize rewrites time values to the stored timestamp layout and drops
// null values. It assumes doc already passed validation.
func (s *Schema) Normalize(doc map[string]any) {
	for k, v := range doc {
		if v == nil {
			delete(doc, k)
			continue
		}
		f, ok := s.Lookup(k)
		if !ok {
			continue
		}
		switch f.Type {
		case Time:
			doc[k] = normalizeTime(v)
		case TimeList:
			if list, ok := v.([]any); ok {
				out := make([]any, len(list))
				for i, item := range list {
					out[i] = normalizeTime(item)
				}
				doc[k] = out
			}
		}
	}
}

func normalizeTime(v any) any {
	switch t := v.(type) {
	case time.Time:
		return FormatTime(t)
	case string:
		if parsed, err := ParseTime(t); err == nil {
			return FormatTime(parsed)
		}
	}
	return v
}

// Strip returns a copy of doc without hidden fields and the version key.
func (s *Schema) Strip(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := maps.Clone(doc)
	delete(out, VersionField)
	for _, f := range s.fields {
		if f.Hidden {
			delete(out, f.Name)
		}
	}
	return out
}
