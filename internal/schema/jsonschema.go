// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package schema

// Document renders the JSON Schema for payloads of this resource. The
// partial form drops "required" so it can validate update patches; in both
// forms optional fields accept null, which clears them.
func (s *Schema) Document(partial bool) map[string]any {
	props := make(map[string]any, len(s.fields))
	var required []any
	for _, f := range s.fields {
		props[f.Name] = fieldDocument(f)
		if f.Required && !partial {
			required = append(required, f.Name)
		}
	}
	doc := map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"title":                s.name,
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func fieldDocument(f Field) map[string]any {
	p := typeDocument(f.Type)
	if len(f.Enum) > 0 {
		enum := make([]any, 0, len(f.Enum)+1)
		for _, e := range f.Enum {
			enum = append(enum, e)
		}
		if !f.Required {
			enum = append(enum, nil)
		}
		p["enum"] = enum
	}
	switch f.Type {
	case String:
		if f.Min != nil {
			p["minLength"] = *f.Min
		}
		if f.Max != nil {
			p["maxLength"] = *f.Max
		}
		if f.Format != "" {
			p["format"] = f.Format
		}
	case Number, Integer:
		if f.Min != nil {
			p["minimum"] = *f.Min
		}
		if f.Max != nil {
			p["maximum"] = *f.Max
		}
	}
	if f.Default != nil {
		if _, fn := f.Default.(func() any); !fn {
			p["default"] = f.Default
		}
	}
	if f.ReadOnly {
		p["readOnly"] = true
	}
	if f.Hidden {
		p["writeOnly"] = true
	}
	if f.Description != "" {
		p["description"] = f.Description
	}
	if !f.Required {
		p["type"] = []any{p["type"], "null"}
	}
	return p
}

func typeDocument(t Type) map[string]any {
	switch t {
	case StringList, TimeList, ObjectList:
		return map[string]any{"type": "array", "items": typeDocument(t.Elem())}
	case Time:
		// Accepts dates as well as timestamps; checked after schema validation.
		return map[string]any{"type": "string"}
	default:
		return map[string]any{"type": string(t)}
	}
}
