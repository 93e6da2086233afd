// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package tours

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/natours/natours/internal/docstore"
	"github.com/natours/natours/internal/query"
	"github.com/natours/natours/internal/resource"
	"github.com/natours/natours/internal/schema"
)

// Conflict key reported when a user reviews the same tour twice. The
// postgres store derives it from the reviews_tour_user_key constraint.
const tourUserKey = "tour_user"

const msgAlreadyReviewed = "You have already reviewed this tour."

// ReviewDescriptor configures the reviews resource. Every write
// recomputes the rating summary of the reviewed tour.
func ReviewDescriptor(c Collections) resource.Descriptor {
	return resource.Descriptor{
		Name:         "review",
		Collection:   c.Reviews,
		Schema:       ReviewSchema,
		Expansions:   []resource.Expansion{reviewerExpansion(c)},
		BeforeCreate: []resource.Hook{requireTour(c.Tours), oneReviewPerUser(c.Reviews)},
		UpdateChecks: []resource.UpdateCheck{movedReview(c.Tours, c.Reviews)},
		AfterWrite:   []resource.WriteHook{RecomputeRatings(c.Tours, c.Reviews)},
		Conflicts:    map[string]string{tourUserKey: msgAlreadyReviewed},
	}
}

// requireTour rejects reviews of tours that do not exist or are secret.
func requireTour(tours docstore.Collection) resource.Hook {
	return func(ctx context.Context, doc docstore.Document) error {
		return checkTour(ctx, tours, doc)
	}
}

func checkTour(ctx context.Context, tours docstore.Collection, doc docstore.Document) error {
	id, _ := doc[FieldTour].(string)
	if id == "" {
		return nil
	}
	_, err := tours.FindByID(ctx, id, SecretScope()...)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return &schema.ValidationError{Resource: "review", Errors: []schema.FieldError{
			{Field: FieldTour, Message: "no tour found with that ID"},
		}}
	case err != nil:
		return err
	}
	return nil
}

// oneReviewPerUser enforces the tour+user uniqueness on stores without a
// composite index.
func oneReviewPerUser(reviews docstore.Collection) resource.Hook {
	return func(ctx context.Context, doc docstore.Document) error {
		return checkUnreviewed(ctx, reviews, doc)
	}
}

func checkUnreviewed(ctx context.Context, reviews docstore.Collection, doc docstore.Document) error {
	tour, _ := doc[FieldTour].(string)
	user, _ := doc[FieldUser].(string)
	if tour == "" || user == "" {
		return nil
	}
	n, err := reviews.Count(ctx,
		query.Eq(FieldTour, schema.String, tour),
		query.Eq(FieldUser, schema.String, user))
	if err != nil {
		return err
	}
	if n > 0 {
		return &docstore.DuplicateError{Collection: reviews.Name(), Field: tourUserKey}
	}
	return nil
}

// movedReview applies the create checks to an update that changes the
// reviewed tour or the author.
func movedReview(tours, reviews docstore.Collection) resource.UpdateCheck {
	return func(ctx context.Context, current, merged docstore.Document) error {
		fromTour, _ := current[FieldTour].(string)
		toTour, _ := merged[FieldTour].(string)
		fromUser, _ := current[FieldUser].(string)
		toUser, _ := merged[FieldUser].(string)
		tourMoved := fromTour != toTour
		if !tourMoved && fromUser == toUser {
			return nil
		}
		if tourMoved {
			if err := checkTour(ctx, tours, merged); err != nil {
				return err
			}
		}
		return checkUnreviewed(ctx, reviews, merged)
	}
}

// RecomputeRatings returns a write hook that refreshes the rating summary
// of the reviewed tour, and of the previous tour when a review moves.
func RecomputeRatings(tours, reviews docstore.Collection) resource.WriteHook {
	return func(ctx context.Context, _ resource.Op, before, after docstore.Document) error {
		prev, _ := before[FieldTour].(string)
		next, _ := after[FieldTour].(string)
		if next != "" {
			if err := UpdateTourRatings(ctx, tours, reviews, next); err != nil {
				return err
			}
		}
		if prev != "" && prev != next {
			return UpdateTourRatings(ctx, tours, reviews, prev)
		}
		return nil
	}
}

// UpdateTourRatings stores the review count and average rating of the tour
// with id. A tour without reviews returns to the defaults. A deleted tour
// is not an error.
func UpdateTourRatings(ctx context.Context, tours, reviews docstore.Collection, id string) error {
	rows, err := reviews.Aggregate(ctx, &docstore.Pipeline{
		Match:     []query.Condition{query.Eq(FieldTour, schema.String, id)},
		GroupBy:   FieldTour,
		GroupType: schema.String,
		KeyAs:     FieldTour,
		Accumulators: []docstore.Accumulator{
			{As: "nRating", Op: docstore.AccCount},
			{As: "avgRating", Op: docstore.AccAvg, Field: FieldRating},
		},
	})
	if err != nil {
		return oops.Code("TOUR_RATINGS_FAILED").With("tour", id).Wrap(err)
	}

	patch := docstore.Document{FieldRatingsQuantity: 0.0, FieldRatingsAverage: DefaultRating}
	if len(rows) > 0 {
		n, _ := query.AsFloat(rows[0]["nRating"])
		avg, _ := query.AsFloat(rows[0]["avgRating"])
		patch[FieldRatingsQuantity] = n
		patch[FieldRatingsAverage] = round1(avg)
	}
	if _, err := tours.UpdateByID(ctx, id, patch); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return oops.Code("TOUR_RATINGS_FAILED").With("tour", id).Wrap(err)
	}
	return nil
}
