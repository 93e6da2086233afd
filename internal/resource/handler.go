// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/natours/natours/internal/docstore"
	"github.com/natours/natours/internal/query"
	"github.com/natours/natours/internal/schema"
	"github.com/natours/natours/pkg/errutil"
)

var tracer = otel.Tracer("natours/resource")

// Page is one window of GetAll results.
type Page struct {
	Items []docstore.Document
	// Count is len(Items).
	Count int
	// Total counts every match of the filters, ignoring the window.
	Total int64
	Page  int
	Limit int
}

// Handler runs the CRUD operations for one resource.
type Handler struct {
	d Descriptor
}

// NewHandler validates d and returns a Handler for it.
func NewHandler(d Descriptor) (*Handler, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	d.ReadScope = slices.Clone(d.ReadScope)
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handler{d: d}, nil
}

// Name returns the resource name.
func (h *Handler) Name() string { return h.d.Name }

// Schema returns the resource schema.
func (h *Handler) Schema() *schema.Schema { return h.d.Schema }

func (h *Handler) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("resource.name", h.d.Name))
	return tracer.Start(ctx, "resource."+op, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// fail classifies a failure of op so the HTTP layer can render it.
func (h *Handler) fail(op string, err error, id string) error {
	b := oops.Code("RESOURCE_"+op+"_FAILED").With("resource", h.d.Name)
	if id != "" {
		b = b.With("id", id)
	}
	var (
		dup  *docstore.DuplicateError
		verr *schema.ValidationError
	)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return oops.Code("RESOURCE_NOT_FOUND").With("resource", h.d.Name).With("id", id).
			Wrap(errutil.Wrap(errutil.KindNotFound, fmt.Sprintf("No %s found with that ID", h.d.Name), err))
	case errors.As(err, &dup):
		msg, ok := h.d.Conflicts[dup.Field]
		if !ok {
			msg = fmt.Sprintf("Duplicate value for %s. Please use another value!", dup.Field)
		}
		return oops.Code("RESOURCE_DUPLICATE").With("resource", h.d.Name).With("field", dup.Field).
			Wrap(errutil.Wrap(errutil.KindConflict, msg, err))
	case errors.Is(err, docstore.ErrConstraint):
		return oops.Code("RESOURCE_CONSTRAINT").With("resource", h.d.Name).
			Wrap(errutil.Wrap(errutil.KindValidation, "invalid input data. A stored value is out of range.", err))
	case errors.As(err, &verr):
		if errutil.Operational(err) {
			return b.Wrap(err)
		}
		return oops.Code("RESOURCE_INVALID").With("resource", h.d.Name).
			Wrap(errutil.Classify(errutil.KindValidation, verr))
	default:
		return b.Wrap(err)
	}
}

// checkWritable rejects store-maintained and read-only fields in client
// input.
func (h *Handler) checkWritable(input map[string]any) error {
	var errs []schema.FieldError
	for _, k := range slices.Sorted(maps.Keys(input)) {
		if k == schema.VersionField {
			errs = append(errs, schema.FieldError{Field: k, Message: "cannot be set"})
			continue
		}
		if f, ok := h.d.Schema.Lookup(k); ok && f.ReadOnly {
			errs = append(errs, schema.FieldError{Field: k, Message: "cannot be set"})
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &schema.ValidationError{Resource: h.d.Name, Errors: errs}
}

// CreateOne validates input and stores it as a new document.
func (h *Handler) CreateOne(ctx context.Context, input map[string]any) (doc docstore.Document, err error) {
	ctx, span := h.start(ctx, "create")
	defer func() { end(span, err) }()

	if input == nil {
		return nil, h.fail("CREATE", &schema.ValidationError{Resource: h.d.Name,
			Errors: []schema.FieldError{{Message: "request body is empty"}}}, "")
	}
	if err := h.checkWritable(input); err != nil {
		return nil, h.fail("CREATE", err, "")
	}

	doc = docstore.Clone(input)
	h.d.Schema.ApplyDefaults(doc)
	for _, hook := range h.d.BeforeCreate {
		if err := hook(ctx, doc); err != nil {
			return nil, h.fail("CREATE", err, "")
		}
	}
	if err := h.d.Schema.Validate(doc); err != nil {
		return nil, h.fail("CREATE", err, "")
	}
	h.d.Schema.Normalize(doc)

	stored, err := h.d.Collection.Insert(ctx, doc)
	if err != nil {
		return nil, h.fail("CREATE", err, "")
	}
	span.SetAttributes(attribute.String("resource.id", idOf(stored)))
	h.afterWrite(ctx, OpCreate, nil, stored)
	return h.d.Schema.Strip(stored), nil
}

// GetOne returns the document with id, with expansions resolved when
// expand is set.
func (h *Handler) GetOne(ctx context.Context, id string, expand bool) (doc docstore.Document, err error) {
	ctx, span := h.start(ctx, "get", attribute.String("resource.id", id))
	defer func() { end(span, err) }()

	stored, err := h.d.Collection.FindByID(ctx, id, h.d.ReadScope...)
	if err != nil {
		return nil, h.fail("GET", err, id)
	}
	doc = h.d.Schema.Strip(stored)
	if expand {
		if err := expandAll(ctx, doc, h.d.Expansions, false); err != nil {
			return nil, h.fail("GET", err, id)
		}
	}
	return doc, nil
}

// GetAll runs the client query in params. Scope narrows the result
// further, e.g. to the reviews of one tour on a nested route.
func (h *Handler) GetAll(ctx context.Context, params url.Values, scope ...query.Condition) (page Page, err error) {
	ctx, span := h.start(ctx, "list")
	defer func() { end(span, err) }()

	conds := append(slices.Clone(h.d.ReadScope), scope...)
	b := query.New(h.d.Schema, params, conds...).Filter().Sort().LimitFields().Paginate()
	d, err := b.Descriptor()
	if err != nil {
		return Page{}, err
	}

	items, err := b.Execute(ctx, h.d.Collection)
	if err != nil {
		return Page{}, h.fail("LIST", err, "")
	}
	total, err := h.d.Collection.Count(ctx, d.Conditions...)
	if err != nil {
		return Page{}, h.fail("LIST", err, "")
	}

	out := make([]docstore.Document, len(items))
	for i, item := range items {
		out[i] = h.d.Schema.Strip(item)
		if err := expandAll(ctx, out[i], h.d.Expansions, true); err != nil {
			return Page{}, h.fail("LIST", err, "")
		}
	}
	span.SetAttributes(attribute.Int("resource.results", len(out)), attribute.Int64("resource.total", total))
	return Page{Items: out, Count: len(out), Total: total, Page: d.Page, Limit: d.Limit}, nil
}

// patchDocument normalizes patch, keeping nil values that clear fields.
func (h *Handler) patchDocument(patch map[string]any) docstore.Document {
	out := docstore.Clone(patch)
	var cleared []string
	for k, v := range out {
		if v == nil {
			cleared = append(cleared, k)
		}
	}
	h.d.Schema.Normalize(out)
	for _, k := range cleared {
		out[k] = nil
	}
	return out
}

// UpdateOne validates patch and merges it into the document with id. The
// merged result must still be a valid document.
func (h *Handler) UpdateOne(ctx context.Context, id string, patch map[string]any) (doc docstore.Document, err error) {
	ctx, span := h.start(ctx, "update", attribute.String("resource.id", id))
	defer func() { end(span, err) }()

	if err := h.checkWritable(patch); err != nil {
		return nil, h.fail("UPDATE", err, id)
	}
	if err := h.d.Schema.ValidatePatch(patch); err != nil {
		return nil, h.fail("UPDATE", err, id)
	}

	current, err := h.d.Collection.FindByID(ctx, id, h.d.ReadScope...)
	if err != nil {
		return nil, h.fail("UPDATE", err, id)
	}
	if len(patch) == 0 {
		return h.d.Schema.Strip(current), nil
	}

	changes := docstore.Clone(patch)
	for _, hook := range h.d.BeforeUpdate {
		if err := hook(ctx, changes); err != nil {
			return nil, h.fail("UPDATE", err, id)
		}
	}

	merged := docstore.Clone(current)
	delete(merged, schema.IDField)
	delete(merged, schema.CreatedAtField)
	delete(merged, schema.VersionField)
	for k, v := range changes {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	if err := h.d.Schema.Validate(merged); err != nil {
		return nil, h.fail("UPDATE", err, id)
	}
	for _, check := range h.d.UpdateChecks {
		if err := check(ctx, current, merged); err != nil {
			return nil, h.fail("UPDATE", err, id)
		}
	}

	stored, err := h.d.Collection.UpdateByID(ctx, id, h.patchDocument(changes), h.d.ReadScope...)
	if err != nil {
		return nil, h.fail("UPDATE", err, id)
	}
	h.afterWrite(ctx, OpUpdate, current, stored)
	return h.d.Schema.Strip(stored), nil
}

// DeleteOne removes the document with id.
func (h *Handler) DeleteOne(ctx context.Context, id string) (err error) {
	ctx, span := h.start(ctx, "delete", attribute.String("resource.id", id))
	defer func() { end(span, err) }()

	current, err := h.d.Collection.FindByID(ctx, id, h.d.ReadScope...)
	if err != nil {
		return h.fail("DELETE", err, id)
	}
	if err := h.d.Collection.DeleteByID(ctx, id); err != nil {
		return h.fail("DELETE", err, id)
	}
	h.afterWrite(ctx, OpDelete, current, nil)
	return nil
}

// afterWrite runs the write hooks. The write is already committed, so a
// failing hook is logged and recorded on the span but not returned.
func (h *Handler) afterWrite(ctx context.Context, op Op, before, after docstore.Document) {
	doc := after
	if doc == nil {
		doc = before
	}
	for _, hook := range h.d.AfterWrite {
		if err := hook(ctx, op, before, after); err != nil {
			err = oops.Code("RESOURCE_AFTER_WRITE_FAILED").
				With("resource", h.d.Name).
				With("op", string(op)).
				With("id", idOf(doc)).
				Wrap(err)
			trace.SpanFromContext(ctx).RecordError(err)
			h.d.Logger.ErrorContext(ctx, "after-write hook failed",
				"resource", h.d.Name,
				"op", string(op),
				"id", idOf(doc),
				"error", err)
		}
	}
}

func idOf(doc docstore.Document) string {
	id, _ := doc[schema.IDField].(string)
	return id
}
