// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package postgres

import (
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/natours/natours/internal/query"
	"github.com/natours/natours/internal/schema"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const (
	returning  = "RETURNING id, doc, created_at, version"
	elemColumn = "u.elem"
)

var selectColumns = []string{"id", "doc", "created_at", "version"}

// column maps a document field to a typed SQL expression. Field names are
// checked against the identifier pattern before being spliced into SQL.
func column(field string, t schema.Type) (string, error) {
	switch field {
	case schema.IDField:
		return "id", nil
	case schema.CreatedAtField:
		return "created_at", nil
	case schema.VersionField:
		return "version", nil
	}
	if !schema.ValidFieldName(field) {
		return "", fmt.Errorf("invalid field name %q", field)
	}
	return cast("doc->>'"+field+"'", field, t)
}

func cast(text, field string, t schema.Type) (string, error) {
	switch t {
	case schema.String:
		return text, nil
	case schema.Number, schema.Integer:
		return "(" + text + ")::numeric", nil
	case schema.Bool:
		return "(" + text + ")::boolean", nil
	case schema.Time:
		return "(" + text + ")::timestamptz", nil
	default:
		return "", fmt.Errorf("field %q of type %s cannot be queried", field, t)
	}
}

// predicate renders one condition. Conditions on the unwound field compare
// against the array element instead of the document.
func predicate(c query.Condition, unwound string) (sq.Sqlizer, error) {
	var (
		expr string
		err  error
	)
	if unwound != "" && c.Field == unwound {
		expr, err = cast(elemColumn, c.Field, c.Type)
	} else {
		expr, err = column(c.Field, c.Type)
	}
	if err != nil {
		return nil, err
	}

	switch c.Op {
	case query.OpEq:
		return sq.Expr(expr+" = ?", c.Value), nil
	case query.OpNe:
		return sq.Expr(expr+" IS DISTINCT FROM ?", c.Value), nil
	case query.OpGt:
		return sq.Expr(expr+" > ?", c.Value), nil
	case query.OpGte:
		return sq.Expr(expr+" >= ?", c.Value), nil
	case query.OpLt:
		return sq.Expr(expr+" < ?", c.Value), nil
	case query.OpLte:
		return sq.Expr(expr+" <= ?", c.Value), nil
	case query.OpIn:
		values, _ := c.Value.([]any)
		arr, err := typedArray(c.Type, values)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", c.Field, err)
		}
		return sq.Expr(expr+" = ANY(?)", arr), nil
	default:
		return nil, fmt.Errorf("unsupported operator %q", c.Op)
	}
}

// typedArray converts In values to a slice pgx can encode as a SQL array.
func typedArray(t schema.Type, values []any) (any, error) {
	switch t {
	case schema.String:
		out := make([]string, 0, len(values))
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%v is not a string", v)
			}
			out = append(out, s)
		}
		return out, nil
	case schema.Number, schema.Integer:
		out := make([]float64, 0, len(values))
		for _, v := range values {
			f, ok := query.AsFloat(v)
			if !ok {
				return nil, fmt.Errorf("%v is not a number", v)
			}
			out = append(out, f)
		}
		return out, nil
	case schema.Bool:
		out := make([]bool, 0, len(values))
		for _, v := range values {
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("%v is not a boolean", v)
			}
			out = append(out, b)
		}
		return out, nil
	case schema.Time:
		out := make([]time.Time, 0, len(values))
		for _, v := range values {
			tv, ok := query.AsTime(v)
			if !ok {
				return nil, fmt.Errorf("%v is not a timestamp", v)
			}
			out = append(out, tv)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("type %s has no array form", t)
	}
}

func where(conds []query.Condition, unwound string) (sq.And, error) {
	and := make(sq.And, 0, len(conds))
	for _, c := range conds {
		p, err := predicate(c, unwound)
		if err != nil {
			return nil, err
		}
		and = append(and, p)
	}
	return and, nil
}

func orderBy(keys []query.SortKey) ([]string, error) {
	out := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		expr, err := column(k.Field, k.Type)
		if err != nil {
			return nil, err
		}
		if k.Desc {
			expr += " DESC"
		}
		out = append(out, expr)
	}
	if len(out) == 0 {
		out = append(out, "id")
	}
	return out, nil
}
