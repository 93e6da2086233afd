// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package store

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err, "should read embedded migrations directory")

	names := make(map[string]bool)
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	for _, collection := range []string{"000001_users", "000002_tours", "000003_reviews"} {
		assert.True(t, names[collection+".up.sql"], "missing up migration for %s", collection)
		assert.True(t, names[collection+".down.sql"], "missing down migration for %s", collection)
	}

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	for name := range names {
		assert.True(t, pattern.MatchString(name), "file %s should match NNNNNN_name.(up|down).sql", name)
	}
}

func TestMigrationsFS_ToursChecks(t *testing.T) {
	up, err := migrationsFS.ReadFile("migrations/000002_tours.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "CONSTRAINT tours_ratings_average_check CHECK")
	assert.Contains(t, string(up), "CONSTRAINT tours_price_discount_check CHECK")
	assert.Contains(t, string(up), "(doc->>'priceDiscount')::numeric < (doc->>'price')::numeric")
}

func TestMigrations_Sorted(t *testing.T) {
	all, err := Migrations()
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, m := range all {
		assert.Equal(t, uint(i+1), m.Version)
	}
}
