// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/query"
	"github.com/natours/natours/internal/tours"
	"github.com/natours/natours/pkg/errutil"
)

const seedYAML = `
users:
  - id: u-jonas
    name: Jonas Schmedtmann
    email: Admin@Natours.io
    role: admin
    password: test1234
  - id: u-lisa
    name: Lisa Brown
    email: lisa@example.com
    password: test1234
tours:
  - id: t-forest
    name: The Forest Hiker
    slug: ignored
    duration: 5
    maxGroupSize: 25
    difficulty: easy
    price: 397
    summary: Breathtaking hike through the Canadian Banff National Park
    imageCover: tour-1-cover.jpg
    startDates:
      - "2021-04-25T09:00:00Z"
      - "2021-07-20T09:00:00Z"
reviews:
  - review: Amazing!
    rating: 5
    tour: t-forest
    user: u-lisa
  - review: Decent
    rating: 4
    tour: t-forest
    user: u-jonas
`

func writeSeed(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSeed(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		data, err := loadSeed(writeSeed(t, "seed.yaml", seedYAML))
		require.NoError(t, err)
		assert.Len(t, data.Users, 2)
		assert.Len(t, data.Tours, 1)
		assert.Len(t, data.Reviews, 2)
	})

	t.Run("json", func(t *testing.T) {
		data, err := loadSeed(writeSeed(t, "seed.json", `{"tours":[{"name":"The Sea Explorer"}]}`))
		require.NoError(t, err)
		require.Len(t, data.Tours, 1)
		assert.Equal(t, "The Sea Explorer", data.Tours[0]["name"])
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadSeed(filepath.Join(t.TempDir(), "absent.yaml"))
		errutil.AssertErrorCode(t, err, "SEED_READ_FAILED")
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := loadSeed(writeSeed(t, "bad.yaml", "users: [unclosed"))
		errutil.AssertErrorCode(t, err, "SEED_PARSE_FAILED")
	})
}

func TestImportSeed(t *testing.T) {
	ctx := context.Background()
	be := memoryBackend()
	hasher := auth.NewArgon2idHasher(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32})

	data, err := loadSeed(writeSeed(t, "seed.yaml", seedYAML))
	require.NoError(t, err)
	counts, err := importSeed(ctx, be.collections, hasher, data)
	require.NoError(t, err)
	assert.Equal(t, seedCounts{Users: 2, Tours: 1, Reviews: 2}, counts)

	admin, err := be.collections.Users.FindByID(ctx, "u-jonas")
	require.NoError(t, err)
	assert.Equal(t, "admin@natours.io", admin[auth.FieldEmail])
	assert.Equal(t, "admin", admin[auth.FieldRole])
	ok, err := hasher.Verify("test1234", admin[auth.FieldPassword].(string))
	require.NoError(t, err)
	assert.True(t, ok, "seed passwords are stored hashed")

	lisa, err := be.collections.Users.FindByID(ctx, "u-lisa")
	require.NoError(t, err)
	assert.Equal(t, "user", lisa[auth.FieldRole])

	tour, err := be.collections.Tours.FindByID(ctx, "t-forest")
	require.NoError(t, err)
	assert.Equal(t, "the-forest-hiker", tour[tours.FieldSlug])
	assert.Equal(t, 2.0, tour[tours.FieldRatingsQuantity])
	assert.Equal(t, 4.5, tour[tours.FieldRatingsAverage])

	t.Run("invalid documents stop the import", func(t *testing.T) {
		_, err := importSeed(ctx, memoryBackend().collections, hasher,
			seedData{Tours: []map[string]any{{"name": "Short"}}})
		errutil.AssertErrorCode(t, err, "SEED_IMPORT_FAILED")
		errutil.AssertErrorContext(t, err, "kind", "tour")
	})

	t.Run("users need a password", func(t *testing.T) {
		_, err := importSeed(ctx, memoryBackend().collections, hasher,
			seedData{Users: []map[string]any{{"name": "No Password", "email": "np@example.com"}}})
		errutil.AssertErrorCode(t, err, "SEED_IMPORT_FAILED")
	})

	t.Run("delete", func(t *testing.T) {
		n, err := deleteAll(ctx, be.collections)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		left, err := be.collections.Tours.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, left)
		docs, err := be.collections.Users.Find(ctx, &query.Descriptor{})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})
}

func TestSeedCommand_InMemory(t *testing.T) {
	t.Setenv("NATOURS_AUTH__JWT_SECRET", testJWTSecret)
	path := writeSeed(t, "seed.yaml", seedYAML)

	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"seed", "--store", "memory", "--log-level", "error", path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Imported 2 users, 1 tours and 2 reviews")
}

func TestSeedCommand_Args(t *testing.T) {
	t.Setenv("NATOURS_AUTH__JWT_SECRET", testJWTSecret)

	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"seed", "--store", "memory"})
	require.Error(t, cmd.Execute(), "import needs a file")

	cmd = NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"seed", "--store", "memory", "--delete"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Deleted 0 documents")
}
