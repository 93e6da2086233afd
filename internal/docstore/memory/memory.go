// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package memory implements docstore.Collection in process memory. It backs
// unit tests and the --store=memory server mode.
package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/natours/natours/internal/docstore"
	"github.com/natours/natours/internal/query"
	"github.com/natours/natours/internal/schema"
)

// Option configures a Collection.
type Option func(*Collection)

// WithUnique enforces uniqueness of the given top-level fields.
func WithUnique(fields ...string) Option {
	return func(c *Collection) { c.unique = append(c.unique, fields...) }
}

// WithClock overrides the time source for createdAt.
func WithClock(now func() time.Time) Option {
	return func(c *Collection) { c.now = now }
}

// Collection is an in-memory document collection safe for concurrent use.
type Collection struct {
	name   string
	unique []string
	now    func() time.Time

	mu   sync.RWMutex
	docs map[string]docstore.Document
}

var _ docstore.Collection = (*Collection)(nil)

// New creates an empty collection.
func New(name string, opts ...Option) *Collection {
	c := &Collection{
		name: name,
		now:  time.Now,
		docs: make(map[string]docstore.Document),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// normalize gives body values the same JSON types a database round trip
// would produce.
func normalize(doc docstore.Document) (docstore.Document, error) {
	body := make(docstore.Document, len(doc))
	for k, v := range doc {
		if k == schema.IDField || k == schema.CreatedAtField || k == schema.VersionField {
			continue
		}
		body[k] = v
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var out docstore.Document
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Insert stores a copy of doc.
func (c *Collection) Insert(_ context.Context, doc docstore.Document) (docstore.Document, error) {
	stored, err := normalize(doc)
	if err != nil {
		return nil, oops.Code("DOCUMENT_ENCODE_FAILED").With("collection", c.name).Wrap(err)
	}
	id, _ := doc[schema.IDField].(string)
	if id == "" {
		id = ulid.Make().String()
	}
	created := c.now().UTC()
	if t, ok := query.AsTime(doc[schema.CreatedAtField]); ok {
		created = t.UTC()
	}
	stored[schema.IDField] = id
	stored[schema.CreatedAtField] = created
	stored[schema.VersionField] = 0

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[id]; exists {
		return nil, oops.Code("DOCUMENT_DUPLICATE").With("collection", c.name).
			Wrap(&docstore.DuplicateError{Collection: c.name, Field: schema.IDField})
	}
	if err := c.checkUnique(id, stored); err != nil {
		return nil, err
	}
	c.docs[id] = stored
	return docstore.Clone(stored), nil
}

// checkUnique must be called with mu held.
func (c *Collection) checkUnique(id string, doc docstore.Document) error {
	for _, field := range c.unique {
		v, ok := doc[field]
		if !ok || v == nil {
			continue
		}
		for otherID, other := range c.docs {
			if otherID != id && other[field] == v {
				return oops.Code("DOCUMENT_DUPLICATE").With("collection", c.name).With("field", field).
					Wrap(&docstore.DuplicateError{Collection: c.name, Field: field})
			}
		}
	}
	return nil
}

// FindByID returns a copy of the document.
func (c *Collection) FindByID(_ context.Context, id string, scope ...query.Condition) (docstore.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[id]
	if !ok || !query.Match(doc, scope) {
		return nil, oops.Code("DOCUMENT_NOT_FOUND").With("collection", c.name).With("id", id).Wrap(docstore.ErrNotFound)
	}
	return docstore.Clone(doc), nil
}

// Find evaluates d over all documents.
func (c *Collection) Find(_ context.Context, d *query.Descriptor) ([]docstore.Document, error) {
	c.mu.RLock()
	matched := make([]docstore.Document, 0, len(c.docs))
	for _, doc := range c.docs {
		if query.Match(doc, d.Conditions) {
			matched = append(matched, docstore.Clone(doc))
		}
	}
	c.mu.RUnlock()

	keys := d.Sort
	if len(keys) == 0 {
		keys = []query.SortKey{{Field: schema.IDField, Type: schema.String}}
	}
	slices.SortStableFunc(matched, func(a, b docstore.Document) int {
		switch {
		case query.Less(a, b, keys):
			return -1
		case query.Less(b, a, keys):
			return 1
		default:
			return 0
		}
	})

	if d.Skip >= len(matched) {
		return []docstore.Document{}, nil
	}
	matched = matched[d.Skip:]
	if d.Limit > 0 && d.Limit < len(matched) {
		matched = matched[:d.Limit]
	}
	return matched, nil
}

// Count returns how many documents match conds.
func (c *Collection) Count(_ context.Context, conds ...query.Condition) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n int64
	for _, doc := range c.docs {
		if query.Match(doc, conds) {
			n++
		}
	}
	return n, nil
}

// UpdateByID merges patch under the write lock.
func (c *Collection) UpdateByID(_ context.Context, id string, patch docstore.Document, scope ...query.Condition) (docstore.Document, error) {
	var removed []string
	set := make(docstore.Document, len(patch))
	for k, v := range patch {
		if v == nil {
			removed = append(removed, k)
			continue
		}
		set[k] = v
	}
	body, err := normalize(set)
	if err != nil {
		return nil, oops.Code("DOCUMENT_ENCODE_FAILED").With("collection", c.name).Wrap(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.docs[id]
	if !ok || !query.Match(current, scope) {
		return nil, oops.Code("DOCUMENT_NOT_FOUND").With("collection", c.name).With("id", id).Wrap(docstore.ErrNotFound)
	}
	next := docstore.Clone(current)
	for k, v := range body {
		next[k] = v
	}
	for _, k := range removed {
		delete(next, k)
	}
	version, _ := next[schema.VersionField].(int)
	next[schema.VersionField] = version + 1
	if err := c.checkUnique(id, next); err != nil {
		return nil, err
	}
	c.docs[id] = next
	return docstore.Clone(next), nil
}

// DeleteByID removes the document.
func (c *Collection) DeleteByID(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return oops.Code("DOCUMENT_NOT_FOUND").With("collection", c.name).With("id", id).Wrap(docstore.ErrNotFound)
	}
	delete(c.docs, id)
	return nil
}

type group struct {
	key    any
	count  int
	sums   map[string]float64
	counts map[string]int
	mins   map[string]float64
	maxs   map[string]float64
	pushed map[string][]any
}

// Aggregate evaluates p over all documents.
func (c *Collection) Aggregate(_ context.Context, p *docstore.Pipeline) ([]docstore.Document, error) {
	if err := p.Validate(); err != nil {
		return nil, oops.Code("PIPELINE_INVALID").With("collection", c.name).Wrap(err)
	}

	c.mu.RLock()
	var rows []docstore.Document
	for _, doc := range c.docs {
		rows = append(rows, unwind(doc, p.Unwind)...)
	}
	c.mu.RUnlock()

	groups := map[string]*group{}
	var order []string
	for _, row := range rows {
		if !query.Match(row, p.Match) {
			continue
		}
		key := groupKey(row[p.GroupBy], p)
		id := keyString(key)
		g, ok := groups[id]
		if !ok {
			g = &group{
				key:    key,
				sums:   map[string]float64{},
				counts: map[string]int{},
				mins:   map[string]float64{},
				maxs:   map[string]float64{},
				pushed: map[string][]any{},
			}
			groups[id] = g
			order = append(order, id)
		}
		g.count++
		for _, acc := range p.Accumulators {
			accumulate(g, acc, row[acc.Field])
		}
	}

	out := make([]docstore.Document, 0, len(groups))
	for _, id := range order {
		g := groups[id]
		doc := docstore.Document{p.KeyName(): g.key}
		for _, acc := range p.Accumulators {
			doc[acc.As] = result(g, acc)
		}
		out = append(out, doc)
	}

	sortBy := p.SortBy
	if sortBy == "" {
		sortBy = p.KeyName()
	}
	slices.SortStableFunc(out, func(a, b docstore.Document) int {
		n := compareAny(a[sortBy], b[sortBy])
		if p.SortDesc {
			n = -n
		}
		if n == 0 {
			n = compareAny(a[p.KeyName()], b[p.KeyName()])
		}
		return n
	})
	if p.Limit > 0 && p.Limit < len(out) {
		out = out[:p.Limit]
	}
	return out, nil
}

func unwind(doc docstore.Document, field string) []docstore.Document {
	if field == "" {
		return []docstore.Document{doc}
	}
	list, _ := doc[field].([]any)
	rows := make([]docstore.Document, 0, len(list))
	for _, item := range list {
		row := docstore.Clone(doc)
		row[field] = item
		rows = append(rows, row)
	}
	return rows
}

func groupKey(v any, p *docstore.Pipeline) any {
	switch p.KeyFunc {
	case docstore.KeyUpper:
		if s, ok := v.(string); ok {
			return strings.ToUpper(s)
		}
	case docstore.KeyMonth:
		if t, ok := query.AsTime(v); ok {
			return float64(t.Month())
		}
		return nil
	}
	return v
}

func keyString(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func accumulate(g *group, acc docstore.Accumulator, v any) {
	switch acc.Op {
	case docstore.AccCount:
		return
	case docstore.AccPush:
		if v != nil {
			g.pushed[acc.As] = append(g.pushed[acc.As], v)
		}
		return
	}
	f, ok := query.AsFloat(v)
	if !ok {
		return
	}
	if g.counts[acc.As] == 0 {
		g.mins[acc.As], g.maxs[acc.As] = f, f
	}
	g.counts[acc.As]++
	g.sums[acc.As] += f
	g.mins[acc.As] = min(g.mins[acc.As], f)
	g.maxs[acc.As] = max(g.maxs[acc.As], f)
}

func result(g *group, acc docstore.Accumulator) any {
	n := g.counts[acc.As]
	switch acc.Op {
	case docstore.AccCount:
		return float64(g.count)
	case docstore.AccPush:
		if g.pushed[acc.As] == nil {
			return []any{}
		}
		return g.pushed[acc.As]
	case docstore.AccSum:
		return g.sums[acc.As]
	}
	if n == 0 {
		return nil
	}
	switch acc.Op {
	case docstore.AccAvg:
		return g.sums[acc.As] / float64(n)
	case docstore.AccMin:
		return g.mins[acc.As]
	case docstore.AccMax:
		return g.maxs[acc.As]
	default:
		return nil
	}
}

func compareAny(a, b any) int {
	if x, ok := query.AsFloat(a); ok {
		if y, ok := query.AsFloat(b); ok {
			return cmp.Compare(x, y)
		}
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	}
	switch {
	case a == nil && b != nil:
		return 1
	case a != nil && b == nil:
		return -1
	default:
		return 0
	}
}
