// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

//go:build integration

package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/natours/natours/internal/docstore"
	"github.com/natours/natours/internal/docstore/postgres"
	"github.com/natours/natours/internal/query"
	"github.com/natours/natours/internal/schema"
	"github.com/natours/natours/internal/store"
)

// testPool is the shared database pool for integration tests.
var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("natours_test"),
		tcpostgres.WithUsername("natours"),
		tcpostgres.WithPassword("natours"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		panic("failed to start postgres container: " + err.Error())
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to get connection string: " + err.Error())
	}

	migrator, err := store.NewMigrator(connStr)
	if err == nil {
		err = migrator.Up()
		_ = migrator.Close()
	}
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to run migrations: " + err.Error())
	}

	pool, err := store.Connect(ctx, connStr, store.ConnectOptions{})
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to create pool: " + err.Error())
	}
	testPool = pool

	code := m.Run()

	pool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func truncate(t *testing.T, tables ...string) {
	t.Helper()
	for _, table := range tables {
		_, err := testPool.Exec(context.Background(), "TRUNCATE "+table)
		require.NoError(t, err)
	}
}

func TestCollection_RoundTrip(t *testing.T) {
	ctx := context.Background()
	truncate(t, "tours")
	tours := postgres.NewCollection(testPool, "tours")

	for i, price := range []float64{497, 397, 997, 1497, 297} {
		_, err := tours.Insert(ctx, docstore.Document{
			"name":           []string{"Sea", "Forest", "Snow", "Star", "Park"}[i],
			"price":          price,
			"difficulty":     []string{"easy", "easy", "difficult", "medium", "easy"}[i],
			"ratingsAverage": 4.5,
			"startDates":     []any{"2021-07-01T09:00:00Z"},
		})
		require.NoError(t, err)
	}

	docs, err := tours.Find(ctx, &query.Descriptor{
		Conditions: []query.Condition{{Field: "price", Type: schema.Number, Op: query.OpLt, Value: 1000.0}},
		Sort:       []query.SortKey{{Field: "price", Type: schema.Number}, {Field: "id", Type: schema.String}},
		Skip:       1,
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Forest", docs[0]["name"])
	assert.Equal(t, "Sea", docs[1]["name"])

	n, err := tours.Count(ctx, query.In("difficulty", schema.String, "easy", "medium"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	_, err = tours.Insert(ctx, docstore.Document{"name": "Sea"})
	assert.ErrorIs(t, err, docstore.ErrDuplicate)

	stats, err := tours.Aggregate(ctx, &docstore.Pipeline{
		GroupBy: "difficulty",
		KeyFunc: docstore.KeyUpper,
		Accumulators: []docstore.Accumulator{
			{As: "numTours", Op: docstore.AccCount},
			{As: "avgPrice", Op: docstore.AccAvg, Field: "price"},
		},
		SortBy: "avgPrice",
	})
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, "EASY", stats[0]["key"])
	assert.Equal(t, 3.0, stats[0]["numTours"])

	_, err = tours.UpdateByID(ctx, docs[0]["id"].(string), docstore.Document{"ratingsAverage": 9})
	assert.ErrorIs(t, err, docstore.ErrConstraint)
}

func TestCollection_ConcurrentUpdatesKeepAllFields(t *testing.T) {
	ctx := context.Background()
	truncate(t, "users")
	users := postgres.NewCollection(testPool, "users")

	doc, err := users.Insert(ctx, docstore.Document{"email": "ann@example.com"})
	require.NoError(t, err)
	id := doc["id"].(string)

	fields := []string{"name", "photo", "role", "city", "bio"}
	var wg sync.WaitGroup
	for _, f := range fields {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := users.UpdateByID(ctx, id, docstore.Document{f: "set"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := users.FindByID(ctx, id)
	require.NoError(t, err)
	for _, f := range fields {
		assert.Equal(t, "set", got[f])
	}
	assert.Equal(t, len(fields), got["__v"])

	_, err = users.Insert(ctx, docstore.Document{"email": "ANN@example.com"})
	assert.ErrorIs(t, err, docstore.ErrDuplicate, "emails are unique regardless of case")
}

func TestCollection_ConcurrentPricePatchesKeepDiscountBelowPrice(t *testing.T) {
	ctx := context.Background()
	truncate(t, "tours")
	tours := postgres.NewCollection(testPool, "tours")

	doc, err := tours.Insert(ctx, docstore.Document{"name": "Forest", "price": 500.0})
	require.NoError(t, err)
	id := doc["id"].(string)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, patch := range []docstore.Document{{"priceDiscount": 450.0}, {"price": 400.0}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = tours.UpdateByID(ctx, id, patch)
		}()
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, docstore.ErrConstraint)
			failed++
		}
	}
	assert.Equal(t, 1, failed)

	got, err := tours.FindByID(ctx, id)
	require.NoError(t, err)
	if discount, ok := got["priceDiscount"].(float64); ok {
		assert.Less(t, discount, got["price"].(float64))
	}
}
