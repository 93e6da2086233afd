// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FieldError describes one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every field that failed validation.
type ValidationError struct {
	Resource string
	Errors   []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		if fe.Field == "" {
			parts[i] = fe.Message
			continue
		}
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "invalid input data. " + strings.Join(parts, ". ")
}

// Validate checks a complete document, as on create.
func (s *Schema) Validate(doc map[string]any) error {
	errs := s.check(s.full, doc)
	if len(errs) == 0 {
		for _, rule := range s.rules {
			if fe := rule(doc); fe != nil {
				errs = append(errs, *fe)
			}
		}
	}
	return s.result(errs)
}

// ValidatePatch checks only the fields present in patch, as on update.
// Required fields may be changed but not cleared.
func (s *Schema) ValidatePatch(patch map[string]any) error {
	return s.result(s.check(s.partial, patch))
}

func (s *Schema) result(errs []FieldError) error {
	if len(errs) == 0 {
		return nil
	}
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return &ValidationError{Resource: s.name, Errors: errs}
}

func (s *Schema) check(sch *jschema.Schema, doc map[string]any) []FieldError {
	if doc == nil {
		return []FieldError{{Message: "document is empty"}}
	}
	inst, err := canonical(doc)
	if err != nil {
		return []FieldError{{Message: "document is not valid JSON"}}
	}

	var errs []FieldError
	if err := sch.Validate(inst); err != nil {
		var ve *jschema.ValidationError
		if !errors.As(err, &ve) {
			return []FieldError{{Message: err.Error()}}
		}
		collect(ve, &errs)
	}
	errs = append(errs, s.checkTimes(doc)...)
	return errs
}

// canonical round-trips doc through JSON so the validator sees the same
// value types a decoded request body has.
func canonical(doc map[string]any) (any, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return jschema.UnmarshalJSON(bytes.NewReader(b))
}

func collect(ve *jschema.ValidationError, out *[]FieldError) {
	if len(ve.Causes) > 0 {
		for _, c := range ve.Causes {
			collect(c, out)
		}
		return
	}
	loc := strings.Join(ve.InstanceLocation, ".")
	switch k := ve.ErrorKind.(type) {
	case *kind.Required:
		for _, name := range k.Missing {
			*out = append(*out, FieldError{Field: join(loc, name), Message: "is required"})
		}
	case *kind.AdditionalProperties:
		for _, name := range k.Properties {
			*out = append(*out, FieldError{Field: join(loc, name), Message: "is not a recognised field"})
		}
	default:
		*out = append(*out, FieldError{Field: loc, Message: ve.ErrorKind.LocalizedString(printer)})
	}
}

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func (s *Schema) checkTimes(doc map[string]any) []FieldError {
	var errs []FieldError
	for _, f := range s.fields {
		v, ok := doc[f.Name]
		if !ok || v == nil {
			continue
		}
		switch f.Type {
		case Time:
			if !validTime(v) {
				errs = append(errs, FieldError{Field: f.Name, Message: "must be a date or RFC 3339 timestamp"})
			}
		case TimeList:
			list, _ := v.([]any)
			for i, item := range list {
				if !validTime(item) {
					errs = append(errs, FieldError{
						Field:   fmt.Sprintf("%s.%d", f.Name, i),
						Message: "must be a date or RFC 3339 timestamp",
					})
				}
			}
		}
	}
	return errs
}

func validTime(v any) bool {
	switch t := v.(type) {
	case time.Time:
		return true
	case string:
		_, err := ParseTime(t)
		return err == nil
	default:
		return false
	}
}
