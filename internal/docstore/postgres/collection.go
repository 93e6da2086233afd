// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package postgres implements docstore.Collection on PostgreSQL. Each
// collection is a table of (id, doc jsonb, created_at, version) rows; the
// schema lives in internal/store/migrations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/natours/natours/internal/docstore"
	"github.com/natours/natours/internal/query"
	"github.com/natours/natours/internal/schema"
)

// Querier is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Collection is a docstore.Collection backed by one table.
type Collection struct {
	pool  Querier
	table string
	now   func() time.Time
}

var _ docstore.Collection = (*Collection)(nil)

// NewCollection returns the collection stored in table name.
func NewCollection(pool Querier, name string) *Collection {
	return &Collection{pool: pool, table: name, now: time.Now}
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.table }

// fail maps driver errors onto the docstore sentinels.
func (c *Collection) fail(op string, err error, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("DOCUMENT_NOT_FOUND").With("collection", c.table).With("id", id).Wrap(docstore.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return oops.Code("DOCUMENT_DUPLICATE").
			With("collection", c.table).
			With("constraint", pgErr.ConstraintName).
			Wrap(&docstore.DuplicateError{Collection: c.table, Field: c.constraintField(pgErr.ConstraintName)})
	}
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
		return oops.Code("DOCUMENT_CONSTRAINT").
			With("collection", c.table).
			With("constraint", pgErr.ConstraintName).
			Wrap(docstore.ErrConstraint)
	}
	return oops.Code("DOCUMENT_"+op+"_FAILED").With("collection", c.table).With("id", id).Wrap(err)
}

// constraintField recovers the field from a "<table>_<field>_key" index name.
func (c *Collection) constraintField(name string) string {
	field := strings.TrimPrefix(name, c.table+"_")
	return strings.TrimSuffix(field, "_key")
}

func splitSystem(doc docstore.Document) docstore.Document {
	body := make(docstore.Document, len(doc))
	for k, v := range doc {
		switch k {
		case schema.IDField, schema.CreatedAtField, schema.VersionField:
			continue
		}
		body[k] = v
	}
	return body
}

func scanDocument(row pgx.Row) (docstore.Document, error) {
	var (
		id      string
		raw     []byte
		created time.Time
		version int
	)
	if err := row.Scan(&id, &raw, &created, &version); err != nil {
		return nil, err
	}
	doc := docstore.Document{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
	}
	doc[schema.IDField] = id
	doc[schema.CreatedAtField] = created.UTC()
	doc[schema.VersionField] = version
	return doc, nil
}

// Insert stores doc, assigning a ULID when it carries no id.
func (c *Collection) Insert(ctx context.Context, doc docstore.Document) (docstore.Document, error) {
	id, _ := doc[schema.IDField].(string)
	if id == "" {
		id = ulid.Make().String()
	}
	created := c.now().UTC()
	if t, ok := query.AsTime(doc[schema.CreatedAtField]); ok {
		created = t.UTC()
	}
	body, err := json.Marshal(splitSystem(doc))
	if err != nil {
		return nil, oops.Code("DOCUMENT_ENCODE_FAILED").With("collection", c.table).Wrap(err)
	}

	sql, args, err := psql.Insert(c.table).
		Columns(selectColumns...).
		Values(id, body, created, 0).
		Suffix(returning).
		ToSql()
	if err != nil {
		return nil, oops.Code("DOCUMENT_QUERY_BUILD_FAILED").With("collection", c.table).Wrap(err)
	}
	stored, err := scanDocument(c.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, c.fail("INSERT", err, id)
	}
	return stored, nil
}

// FindByID returns one document, or ErrNotFound when it is missing or
// outside scope.
func (c *Collection) FindByID(ctx context.Context, id string, scope ...query.Condition) (docstore.Document, error) {
	b := psql.Select(selectColumns...).From(c.table).Where(sq.Eq{"id": id})
	if len(scope) > 0 {
		conds, err := where(scope, "")
		if err != nil {
			return nil, oops.Code("DOCUMENT_QUERY_BUILD_FAILED").With("collection", c.table).Wrap(err)
		}
		b = b.Where(conds)
	}
	sql, args, err := b.ToSql()
	if err != nil {
		return nil, oops.Code("DOCUMENT_QUERY_BUILD_FAILED").With("collection", c.table).Wrap(err)
	}
	doc, err := scanDocument(c.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, c.fail("FIND", err, id)
	}
	return doc, nil
}

// Find runs d as one SELECT with ORDER BY, LIMIT and OFFSET.
func (c *Collection) Find(ctx context.Context, d *query.Descriptor) ([]docstore.Document, error) {
	b := psql.Select(selectColumns...).From(c.table)
	if len(d.Conditions) > 0 {
		conds, err := where(d.Conditions, "")
		if err != nil {
			return nil, oops.Code("DOCUMENT_QUERY_BUILD_FAILED").With("collection", c.table).Wrap(err)
		}
		b = b.Where(conds)
	}
	order, err := orderBy(d.Sort)
	if err != nil {
		return nil, oops.Code("DOCUMENT_QUERY_BUILD_FAILED").With("collection", c.table).Wrap(err)
	}
	b = b.OrderBy(order...)
	if d.Limit > 0 {
		b = b.Limit(uint64(d.Limit))
	}
	if d.Skip > 0 {
		b = b.Offset(uint64(d.Skip))
	}

	sql, args, err := b.ToSql()
	if err != nil {
		return nil, oops.Code("DOCUMENT_QUERY_BUILD_FAILED").With("collection", c.table).Wrap(err)
	}
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, c.fail("FIND", err, "")
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (docstore.Document, error) {
		return scanDocument(row)
	})
	if err != nil {
		return nil, c.fail("FIND", err, "")
	}
	return docs, nil
}

// Count returns the number of matching rows.
func (c *Collection) Count(ctx context.Context, conds ...query.Condition) (int64, error) {
	b := psql.Select("count(*)").From(c.table)
	if len(conds) > 0 {
		and, err := where(conds, "")
		if err != nil {
			return 0, oops.Code("DOCUMENT_QUERY_BUILD_FAILED").With("collection", c.table).Wrap(err)
		}
		b = b.Where(and)
	}
	sql, args, err := b.ToSql()
	if err != nil {
		return 0, oops.Code("DOCUMENT_QUERY_BUILD_FAILED").With("collection", c.table).Wrap(err)
	}
	var n int64
	if err := c.pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, c.fail("COUNT", err, "")
	}
	return n, nil
}

// UpdateByID merges patch with a single UPDATE, so concurrent updates never
// lose each other's fields.
func (c *Collection) UpdateByID(ctx context.Context, id string, patch docstore.Document, scope ...query.Condition) (docstore.Document, error) {
	set := docstore.Document{}
	removed := []string{}
	for k, v := range splitSystem(patch) {
		if v == nil {
			removed = append(removed, k)
			continue
		}
		set[k] = v
	}
	body, err := json.Marshal(set)
	if err != nil {
		return nil, oops.Code("DOCUMENT_ENCODE_FAILED").With("collection", c.table).Wrap(err)
	}

	b := psql.Update(c.table).
		Set("doc", sq.Expr("(doc || ?::jsonb) - ?::text[]", body, removed)).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": id})
	if len(scope) > 0 {
		conds, err := where(scope, "")
		if err != nil {
			return nil, oops.Code("DOCUMENT_QUERY_BUILD_FAILED").With("collection", c.table).Wrap(err)
		}
		b = b.Where(conds)
	}
	sql, args, err := b.Suffix(returning).ToSql()
	if err != nil {
		return nil, oops.Code("DOCUMENT_QUERY_BUILD_FAILED").With("collection", c.table).Wrap(err)
	}
	doc, err := scanDocument(c.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, c.fail("UPDATE", err, id)
	}
	return doc, nil
}

// DeleteByID removes one row.
func (c *Collection) DeleteByID(ctx context.Context, id string) error {
	sql, args, err := psql.Delete(c.table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return oops.Code("DOCUMENT_QUERY_BUILD_FAILED").With("collection", c.table).Wrap(err)
	}
	tag, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		return c.fail("DELETE", err, id)
	}
	if tag.RowsAffected() == 0 {
		return c.fail("DELETE", pgx.ErrNoRows, id)
	}
	return nil
}
