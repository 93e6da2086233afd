// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Command gen-schema writes the API payload JSON Schemas to schemas/.
package main

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/natours/natours/internal/apidoc"
)

func main() {
	schemas, err := apidoc.Generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schemas: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll("schemas", 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	for _, name := range slices.Sorted(maps.Keys(schemas)) {
		outPath := filepath.Join("schemas", apidoc.FileName(name))
		if err := os.WriteFile(outPath, schemas[name], 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated %s\n", outPath)
	}
}
