// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package resource

import (
	"context"
	"errors"
	"slices"

	"github.com/samber/oops"

	"github.com/natours/natours/internal/docstore"
	"github.com/natours/natours/internal/query"
	"github.com/natours/natours/internal/schema"
)

func expandAll(ctx context.Context, doc docstore.Document, exps []Expansion, listing bool) error {
	for _, e := range exps {
		if listing && !e.OnList {
			continue
		}
		if err := expandOne(ctx, doc, e); err != nil {
			return oops.Code("RESOURCE_EXPAND_FAILED").With("expansion", e.As).Wrap(err)
		}
	}
	return nil
}

func expandOne(ctx context.Context, doc docstore.Document, e Expansion) error {
	if e.Local != "" {
		raw, ok := doc[e.Local]
		if !ok || raw == nil {
			return nil
		}
		single, isSingle := raw.(string)
		ids := []string{single}
		if !isSingle {
			ids = refIDs(raw)
		}

		found := make([]any, 0, len(ids))
		for _, id := range ids {
			target, err := e.Target.FindByID(ctx, id, e.Scope...)
			if errors.Is(err, docstore.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			rendered, err := render(ctx, target, e)
			if err != nil {
				return err
			}
			found = append(found, rendered)
		}

		switch {
		case !isSingle:
			doc[e.As] = found
		case len(found) == 0:
			doc[e.As] = nil
		default:
			doc[e.As] = found[0]
		}
		return nil
	}

	id, _ := doc[schema.IDField].(string)
	if id == "" {
		return nil
	}
	targets, err := e.Target.Find(ctx, &query.Descriptor{
		Conditions: append(slices.Clone(e.Scope), query.Eq(e.Foreign, schema.String, id)),
		Sort: []query.SortKey{
			{Field: schema.CreatedAtField, Type: schema.Time},
			{Field: schema.IDField, Type: schema.String},
		},
		Limit: query.MaxLimit,
	})
	if err != nil {
		return err
	}
	out := make([]any, 0, len(targets))
	for _, t := range targets {
		rendered, err := render(ctx, t, e)
		if err != nil {
			return err
		}
		out = append(out, rendered)
	}
	doc[e.As] = out
	return nil
}

func render(ctx context.Context, target docstore.Document, e Expansion) (docstore.Document, error) {
	out := e.Schema.Strip(target)
	if len(e.Fields) > 0 {
		out = query.Project(out, query.Projection{Include: append([]string{schema.IDField}, e.Fields...)})
	}
	if err := expandAll(ctx, out, e.Nested, false); err != nil {
		return nil, err
	}
	return out, nil
}

func refIDs(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
