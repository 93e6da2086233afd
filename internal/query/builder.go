// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package query

import (
	"context"
	"math"
	"net/url"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/oops"

	"github.com/natours/natours/internal/schema"
	"github.com/natours/natours/pkg/errutil"
)

// Reserved parameters are never treated as filters.
const (
	ParamPage   = "page"
	ParamSort   = "sort"
	ParamLimit  = "limit"
	ParamFields = "fields"
)

// Pagination bounds.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

var (
	reserved = map[string]bool{ParamPage: true, ParamSort: true, ParamLimit: true, ParamFields: true}
	filterRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)(?:\[([a-z]+)\])?$`)
	rangeOps = map[string]Op{"gt": OpGt, "gte": OpGte, "lt": OpLt, "lte": OpLte}
)

// Builder accumulates a Descriptor from query parameters.
type Builder struct {
	params url.Values
	schema *schema.Schema
	desc   Descriptor
	err    error
}

// New starts a query over s. Scope conditions are always applied and cannot
// be widened by client parameters.
func New(s *schema.Schema, params url.Values, scope ...Condition) *Builder {
	if params == nil {
		params = url.Values{}
	}
	return &Builder{
		params: params,
		schema: s,
		desc:   Descriptor{Conditions: slices.Clone(scope)},
	}
}

func invalid(code string, format string, args ...any) error {
	return oops.Code(code).Wrap(errutil.Newf(errutil.KindValidation, format, args...))
}

// last returns the final value of a repeated parameter.
func (b *Builder) last(key string) (string, bool) {
	vals := b.params[key]
	if len(vals) == 0 {
		return "", false
	}
	return vals[len(vals)-1], true
}

// Filter adds a condition for every non-reserved parameter. Parameters take
// the form field=value or field[op]=value with op one of gt, gte, lt, lte.
func (b *Builder) Filter() *Builder {
	if b.err != nil {
		return b
	}
	keys := make([]string, 0, len(b.params))
	for k := range b.params {
		if !reserved[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		cond, err := b.condition(key, b.params[key])
		if err != nil {
			b.err = err
			return b
		}
		b.desc.Conditions = append(b.desc.Conditions, cond)
	}
	return b
}

func (b *Builder) condition(key string, vals []string) (Condition, error) {
	if strings.ContainsAny(key, "$.") {
		return Condition{}, invalid("QUERY_INJECTION", "invalid query parameter %q", key)
	}
	m := filterRe.FindStringSubmatch(key)
	if m == nil {
		return Condition{}, invalid("QUERY_INVALID_PARAMETER", "invalid query parameter %q", key)
	}
	name, opName := m[1], m[2]

	op := OpEq
	if opName != "" {
		var ok bool
		if op, ok = rangeOps[opName]; !ok {
			return Condition{}, invalid("QUERY_UNKNOWN_OPERATOR", "unknown operator %q", opName)
		}
	}

	field, ok := b.schema.Lookup(name)
	if !ok || !field.Filterable || field.Hidden {
		return Condition{}, invalid("QUERY_FIELD_NOT_FILTERABLE", "cannot filter on %q", name)
	}

	for _, v := range vals {
		if unsafeValue(v) {
			return Condition{}, invalid("QUERY_INJECTION", "invalid value for %q", key)
		}
	}

	if op == OpEq && field.AllowMulti && len(vals) > 1 {
		values := make([]any, 0, len(vals))
		for _, raw := range vals {
			v, err := schema.Coerce(field.Type, raw)
			if err != nil {
				return Condition{}, invalid("QUERY_INVALID_VALUE", "invalid value %q for %s", raw, name)
			}
			values = append(values, v)
		}
		return In(name, field.Type, values...), nil
	}

	raw := vals[len(vals)-1]
	v, err := schema.Coerce(field.Type, raw)
	if err != nil {
		return Condition{}, invalid("QUERY_INVALID_VALUE", "invalid value %q for %s", raw, name)
	}
	return Condition{Field: name, Type: field.Type, Op: op, Value: v}, nil
}

// unsafeValue rejects operator-looking values and control characters.
func unsafeValue(v string) bool {
	if strings.HasPrefix(v, "$") {
		return true
	}
	return strings.ContainsFunc(v, func(r rune) bool { return r < 0x20 || r == 0x7f })
}

// Sort orders by the comma-separated sort parameter, where a leading "-"
// means descending. Without one results are ordered by creation time. The
// document id is always the final key so pages are stable.
func (b *Builder) Sort() *Builder {
	if b.err != nil {
		return b
	}
	raw, ok := b.last(ParamSort)
	if !ok || strings.TrimSpace(raw) == "" {
		raw = schema.CreatedAtField
	}

	var keys []SortKey
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		desc := strings.HasPrefix(part, "-")
		name := strings.TrimPrefix(part, "-")
		field, ok := b.schema.Lookup(name)
		if !ok || !field.Sortable || field.Hidden {
			b.err = invalid("QUERY_FIELD_NOT_SORTABLE", "cannot sort on %q", name)
			return b
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		keys = append(keys, SortKey{Field: name, Type: field.Type, Desc: desc})
	}
	if !seen[schema.IDField] {
		keys = append(keys, SortKey{Field: schema.IDField, Type: schema.String})
	}
	b.desc.Sort = keys
	return b
}

// LimitFields applies the fields parameter: either a list of fields to
// include or a list of "-field" exclusions, never a mix. The id is always
// returned and hidden fields never are.
func (b *Builder) LimitFields() *Builder {
	if b.err != nil {
		return b
	}
	exclude := append(b.schema.HiddenFields(), schema.VersionField)

	raw, ok := b.last(ParamFields)
	if !ok || strings.TrimSpace(raw) == "" {
		b.desc.Projection = Projection{Exclude: exclude}
		return b
	}

	var include []string
	excluding := -1
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		neg := strings.HasPrefix(part, "-")
		name := strings.TrimPrefix(part, "-")
		if excluding == -1 {
			excluding = boolInt(neg)
		} else if excluding != boolInt(neg) {
			b.err = invalid("QUERY_MIXED_PROJECTION", "fields cannot mix inclusion and exclusion")
			return b
		}
		if name == schema.VersionField {
			continue
		}
		field, ok := b.schema.Lookup(name)
		if !ok || field.Hidden {
			b.err = invalid("QUERY_UNKNOWN_FIELD", "unknown field %q", name)
			return b
		}
		if neg {
			if name != schema.IDField && !slices.Contains(exclude, name) {
				exclude = append(exclude, name)
			}
			continue
		}
		if !slices.Contains(include, name) {
			include = append(include, name)
		}
	}

	if excluding == 1 || len(include) == 0 {
		b.desc.Projection = Projection{Exclude: exclude}
		return b
	}
	if !slices.Contains(include, schema.IDField) {
		include = append([]string{schema.IDField}, include...)
	}
	b.desc.Projection = Projection{Include: include}
	return b
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Paginate applies page (default 1) and limit (default 10, capped at 100).
// Pages past the end yield no results.
func (b *Builder) Paginate() *Builder {
	if b.err != nil {
		return b
	}
	page, err := b.positive(ParamPage, DefaultPage)
	if err != nil {
		b.err = err
		return b
	}
	limit, err := b.positive(ParamLimit, DefaultLimit)
	if err != nil {
		b.err = err
		return b
	}
	limit = min(limit, MaxLimit)
	if page-1 > math.MaxInt/limit {
		b.err = invalid("QUERY_INVALID_PAGE", "page %d is out of range", page)
		return b
	}
	b.desc.Page = page
	b.desc.Limit = limit
	b.desc.Skip = (page - 1) * limit
	return b
}

func (b *Builder) positive(key string, def int) (int, error) {
	raw, ok := b.last(key)
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, invalid("QUERY_INVALID_"+strings.ToUpper(key), "%s must be a positive integer", key)
	}
	return n, nil
}

// Descriptor returns the built query or the first stage error.
func (b *Builder) Descriptor() (*Descriptor, error) {
	if b.err != nil {
		return nil, b.err
	}
	d := b.desc
	return &d, nil
}

// Conditions returns the filter conditions, for counting matches.
func (b *Builder) Conditions() []Condition {
	return slices.Clone(b.desc.Conditions)
}

// Execute runs the query against f and applies the projection.
func (b *Builder) Execute(ctx context.Context, f Finder) ([]map[string]any, error) {
	d, err := b.Descriptor()
	if err != nil {
		return nil, err
	}
	docs, err := f.Find(ctx, d)
	if err != nil {
		return nil, oops.Code("QUERY_EXECUTE_FAILED").With("resource", b.schema.Name()).Wrap(err)
	}
	for i, doc := range docs {
		docs[i] = Project(doc, d.Projection)
	}
	return docs, nil
}

// Project applies p to doc, returning a new map.
func Project(doc map[string]any, p Projection) map[string]any {
	if doc == nil {
		return nil
	}
	if len(p.Include) > 0 {
		out := make(map[string]any, len(p.Include))
		for _, k := range p.Include {
			if v, ok := doc[k]; ok {
				out[k] = v
			}
		}
		return out
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if !slices.Contains(p.Exclude, k) {
			out[k] = v
		}
	}
	return out
}
