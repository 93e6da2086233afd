// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package schema declares resource document shapes.
//
// A Schema is built from explicit Field declarations. The declarations drive
// three things: JSON Schema validation of client payloads (full on create,
// partial on update), the allow-lists the query builder uses for filtering,
// sorting and projection, and which fields are hidden from responses.
package schema
