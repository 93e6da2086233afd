// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/natours/natours/internal/docstore"
	"github.com/natours/natours/internal/schema"
)

// Aggregate runs p as a GROUP BY query. Each result row is rendered to
// JSON by the database so accumulator types need no per-column scanning.
func (c *Collection) Aggregate(ctx context.Context, p *docstore.Pipeline) ([]docstore.Document, error) {
	if err := p.Validate(); err != nil {
		return nil, oops.Code("PIPELINE_INVALID").With("collection", c.table).Wrap(err)
	}
	inner, err := c.groupQuery(p)
	if err != nil {
		return nil, oops.Code("PIPELINE_INVALID").With("collection", c.table).Wrap(err)
	}

	order := outerOrder(p)
	sql, args, err := psql.Select("to_jsonb(s)").FromSelect(inner, "s").OrderBy(order...).ToSql()
	if err != nil {
		return nil, oops.Code("DOCUMENT_QUERY_BUILD_FAILED").With("collection", c.table).Wrap(err)
	}

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, c.fail("AGGREGATE", err, "")
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (docstore.Document, error) {
		var raw []byte
		if err := row.Scan(&raw); err != nil {
			return nil, err
		}
		doc := docstore.Document{}
		return doc, json.Unmarshal(raw, &doc)
	})
	if err != nil {
		return nil, c.fail("AGGREGATE", err, "")
	}
	return docs, nil
}

func (c *Collection) groupQuery(p *docstore.Pipeline) (sq.SelectBuilder, error) {
	key, err := keyExpr(p)
	if err != nil {
		return sq.SelectBuilder{}, err
	}
	cols := []string{fmt.Sprintf("%s AS %q", key, p.KeyName())}
	for _, acc := range p.Accumulators {
		expr, err := accumulatorExpr(acc)
		if err != nil {
			return sq.SelectBuilder{}, err
		}
		cols = append(cols, fmt.Sprintf("%s AS %q", expr, acc.As))
	}

	b := sq.Select(cols...).From(c.table)
	if p.Unwind != "" {
		b = b.JoinClause(fmt.Sprintf("CROSS JOIN LATERAL jsonb_array_elements_text(doc->'%s') AS u(elem)", p.Unwind))
	}
	if len(p.Match) > 0 {
		conds, err := where(p.Match, p.Unwind)
		if err != nil {
			return sq.SelectBuilder{}, err
		}
		b = b.Where(conds)
	}
	b = b.GroupBy("1").OrderBy(outerOrder(p)...)
	if p.Limit > 0 {
		b = b.Limit(uint64(p.Limit))
	}
	return b, nil
}

func keyExpr(p *docstore.Pipeline) (string, error) {
	text := "doc->>'" + p.GroupBy + "'"
	if p.Unwind != "" && p.GroupBy == p.Unwind {
		text = elemColumn
	}
	switch p.KeyFunc {
	case docstore.KeyUpper:
		return "upper(" + text + ")", nil
	case docstore.KeyMonth:
		ts, err := cast(text, p.GroupBy, schema.Time)
		if err != nil {
			return "", err
		}
		return "extract(month from " + ts + ")::int", nil
	case docstore.KeyValue:
		t := p.GroupType
		if t == "" {
			t = schema.String
		}
		if p.Unwind != "" && p.GroupBy == p.Unwind {
			t = p.UnwindType.Elem()
		}
		return cast(text, p.GroupBy, t)
	default:
		return "", fmt.Errorf("unknown key function %q", p.KeyFunc)
	}
}

func accumulatorExpr(acc docstore.Accumulator) (string, error) {
	switch acc.Op {
	case docstore.AccCount:
		return "count(*)", nil
	case docstore.AccPush:
		return "coalesce(jsonb_agg(doc->'" + acc.Field + "') FILTER (WHERE doc->'" + acc.Field + "' IS NOT NULL), '[]'::jsonb)", nil
	case docstore.AccSum, docstore.AccAvg, docstore.AccMin, docstore.AccMax:
		num, err := cast("doc->>'"+acc.Field+"'", acc.Field, schema.Number)
		if err != nil {
			return "", err
		}
		if acc.Op == docstore.AccSum {
			return "coalesce(sum(" + num + "), 0)", nil
		}
		return string(acc.Op) + "(" + num + ")", nil
	default:
		return "", fmt.Errorf("unknown accumulator %q", acc.Op)
	}
}

func outerOrder(p *docstore.Pipeline) []string {
	key := fmt.Sprintf("%q", p.KeyName())
	if p.SortBy == "" || p.SortBy == p.KeyName() {
		if p.SortDesc {
			return []string{key + " DESC"}
		}
		return []string{key}
	}
	by := fmt.Sprintf("%q", p.SortBy)
	if p.SortDesc {
		by += " DESC"
	}
	return []string{by, key}
}
