// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package schema_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natours/natours/internal/schema"
	"github.com/natours/natours/pkg/errutil"
)

func widgetSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New("widgets", []schema.Field{
		{Name: "name", Type: schema.String, Required: true, Min: schema.Float(3), Max: schema.Float(20), Unique: true, Sortable: true, Filterable: true},
		{Name: "price", Type: schema.Number, Required: true, Min: schema.Float(0), Filterable: true, Sortable: true},
		{Name: "size", Type: schema.String, Enum: []string{"small", "large"}, Default: "small", Filterable: true, AllowMulti: true},
		{Name: "secret", Type: schema.String, Hidden: true},
		{Name: "launch", Type: schema.Time},
		{Name: "tags", Type: schema.StringList},
	}, func(doc map[string]any) *schema.FieldError {
		if doc["name"] == "forbidden" {
			return &schema.FieldError{Field: "name", Message: "is reserved"}
		}
		return nil
	})
	require.NoError(t, err)
	return s
}

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	var ve *schema.ValidationError
	require.ErrorAs(t, err, &ve)
	out := make([]string, len(ve.Errors))
	for i, fe := range ve.Errors {
		out[i] = fe.Field
	}
	return out
}

func TestNew_RejectsBadDeclarations(t *testing.T) {
	tests := []struct {
		name  string
		field schema.Field
	}{
		{"injection in name", schema.Field{Name: "a'b", Type: schema.String}},
		{"reserved id", schema.Field{Name: "id", Type: schema.String}},
		{"reserved version", schema.Field{Name: "__v", Type: schema.Number}},
		{"sortable list", schema.Field{Name: "tags", Type: schema.StringList, Sortable: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.New("bad", []schema.Field{tt.field})
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "SCHEMA_INVALID_FIELD")
		})
	}
}

func TestValidate(t *testing.T) {
	s := widgetSchema(t)

	t.Run("valid document", func(t *testing.T) {
		err := s.Validate(map[string]any{"name": "Sprocket", "price": 12.5, "tags": []any{"a"}})
		assert.NoError(t, err)
	})

	t.Run("missing required fields", func(t *testing.T) {
		err := s.Validate(map[string]any{"size": "small"})
		assert.Equal(t, []string{"name", "price"}, fieldsOf(t, err))
	})

	t.Run("type and range violations", func(t *testing.T) {
		err := s.Validate(map[string]any{"name": "ab", "price": -1.0, "size": "huge"})
		assert.ElementsMatch(t, []string{"name", "price", "size"}, fieldsOf(t, err))
	})

	t.Run("unknown field", func(t *testing.T) {
		err := s.Validate(map[string]any{"name": "Sprocket", "price": 1.0, "colour": "red"})
		assert.Equal(t, []string{"colour"}, fieldsOf(t, err))
	})

	t.Run("bad timestamp", func(t *testing.T) {
		err := s.Validate(map[string]any{"name": "Sprocket", "price": 1.0, "launch": "soon"})
		assert.Equal(t, []string{"launch"}, fieldsOf(t, err))
	})

	t.Run("cross field rule", func(t *testing.T) {
		err := s.Validate(map[string]any{"name": "forbidden", "price": 1.0})
		assert.Equal(t, []string{"name"}, fieldsOf(t, err))
		assert.Contains(t, err.Error(), "invalid input data")
	})
}

func TestValidatePatch(t *testing.T) {
	s := widgetSchema(t)

	assert.NoError(t, s.ValidatePatch(map[string]any{"price": 3.0}), "required fields need not be present")
	assert.NoError(t, s.ValidatePatch(map[string]any{"size": nil}), "optional fields can be cleared")

	err := s.ValidatePatch(map[string]any{"name": nil})
	assert.Equal(t, []string{"name"}, fieldsOf(t, err), "required fields cannot be cleared")

	err = s.ValidatePatch(map[string]any{"price": "cheap"})
	assert.Equal(t, []string{"price"}, fieldsOf(t, err))
}

func TestLookup(t *testing.T) {
	s := widgetSchema(t)

	f, ok := s.Lookup("price")
	require.True(t, ok)
	assert.Equal(t, schema.Number, f.Type)

	f, ok = s.Lookup(schema.IDField)
	require.True(t, ok)
	assert.True(t, f.Filterable)

	_, ok = s.Lookup(schema.CreatedAtField)
	assert.True(t, ok)

	_, ok = s.Lookup("nope")
	assert.False(t, ok)
}

func TestDefaultsNormalizeStrip(t *testing.T) {
	s := widgetSchema(t)
	doc := map[string]any{
		"name":   "Sprocket",
		"secret": "x",
		"launch": "2021-04-25",
		"tags":   nil,
		"__v":    3,
	}
	s.ApplyDefaults(doc)
	s.Normalize(doc)

	assert.Equal(t, "small", doc["size"])
	assert.Equal(t, "2021-04-25T00:00:00Z", doc["launch"])
	assert.NotContains(t, doc, "tags")

	out := s.Strip(doc)
	assert.NotContains(t, out, "secret")
	assert.NotContains(t, out, "__v")
	assert.Contains(t, doc, "secret", "strip copies")
	assert.Equal(t, []string{"secret"}, s.HiddenFields())
	assert.Equal(t, []string{"name"}, s.UniqueFields())
}

func TestCoerce(t *testing.T) {
	v, err := schema.Coerce(schema.Number, "4.5")
	require.NoError(t, err)
	assert.Equal(t, 4.5, v)

	v, err = schema.Coerce(schema.Bool, "true")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = schema.Coerce(schema.Time, "2021-06-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC), v)

	_, err = schema.Coerce(schema.Number, "abc")
	errutil.AssertErrorCode(t, err, "SCHEMA_COERCE_FAILED")

	for _, raw := range []string{"NaN", "Inf", "-Inf", "+infinity"} {
		_, err = schema.Coerce(schema.Number, raw)
		errutil.AssertErrorCode(t, err, "SCHEMA_COERCE_FAILED")
	}

	_, err = schema.Coerce(schema.Object, "x")
	assert.Error(t, err)
}

func TestDocument(t *testing.T) {
	s := widgetSchema(t)
	full := s.Document(false)
	assert.Equal(t, []any{"name", "price"}, full["required"])
	assert.Equal(t, false, full["additionalProperties"])

	partial := s.Document(true)
	assert.NotContains(t, partial, "required")
}
