// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package apidoc renders JSON Schemas for the request payloads of the API.
package apidoc

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/schema"
	"github.com/natours/natours/internal/tours"
)

// BaseID prefixes the $id of every generated schema.
const BaseID = "https://natours.dev/schemas/"

// authPayloads are reflected from their Go types.
var authPayloads = map[string]any{
	"signup":          &auth.SignupInput{},
	"login":           &auth.LoginInput{},
	"forgot-password": &auth.ForgotPasswordInput{},
	"reset-password":  &auth.ResetPasswordInput{},
	"update-password": &auth.UpdatePasswordInput{},
}

// resourceSchemas are rendered from their field declarations.
var resourceSchemas = []*schema.Schema{auth.UserSchema, tours.TourSchema, tours.ReviewSchema}

// FileName returns the file a schema named name is written to.
func FileName(name string) string { return name + ".schema.json" }

// Generate returns every payload schema keyed by name.
func Generate() (map[string][]byte, error) {
	out := make(map[string][]byte, len(authPayloads)+len(resourceSchemas))

	r := jsonschema.Reflector{DoNotReference: true}
	for _, name := range slices.Sorted(maps.Keys(authPayloads)) {
		s := r.Reflect(authPayloads[name])
		s.ID = jsonschema.ID(BaseID + FileName(name))
		s.Title = "Natours " + name + " request"
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return nil, oops.Code("SCHEMA_MARSHAL_FAILED").With("schema", name).Wrap(err)
		}
		out[name] = data
	}

	for _, s := range resourceSchemas {
		doc := s.Document(false)
		doc["$id"] = BaseID + FileName(s.Name())
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, oops.Code("SCHEMA_MARSHAL_FAILED").With("schema", s.Name()).Wrap(err)
		}
		out[s.Name()] = data
	}
	return out, nil
}
