// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package tours

import (
	"context"
	"math"
	"net/url"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/docstore"
	"github.com/natours/natours/internal/query"
	"github.com/natours/natours/internal/resource"
)

// Collections holds the stores backing the tours and reviews resources.
type Collections struct {
	Tours   docstore.Collection
	Reviews docstore.Collection
	Users   docstore.Collection
}

// GuideFields are the user fields shown on an expanded tour.
var GuideFields = []string{auth.FieldName, auth.FieldEmail, auth.FieldPhoto, auth.FieldRole}

// ReviewerFields are the user fields shown on a review.
var ReviewerFields = []string{auth.FieldName, auth.FieldPhoto}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// setSlug derives the slug from the name whenever the name is written.
func setSlug(_ context.Context, doc docstore.Document) error {
	if name, ok := doc[FieldName].(string); ok {
		doc[FieldSlug] = Slugify(name)
	}
	return nil
}

// roundRating keeps ratingsAverage at one decimal.
func roundRating(_ context.Context, doc docstore.Document) error {
	if v, ok := query.AsFloat(doc[FieldRatingsAverage]); ok {
		doc[FieldRatingsAverage] = round1(v)
	}
	return nil
}

func reviewerExpansion(c Collections) resource.Expansion {
	return resource.Expansion{
		As:     FieldUser,
		Target: c.Users,
		Schema: auth.UserSchema,
		Local:  FieldUser,
		Fields: ReviewerFields,
		Scope:  auth.ActiveScope(),
		OnList: true,
	}
}

// TourDescriptor configures the tours resource. Single tours expand their
// guides and reviews.
func TourDescriptor(c Collections) resource.Descriptor {
	return resource.Descriptor{
		Name:       "tour",
		Collection: c.Tours,
		Schema:     TourSchema,
		ReadScope:  SecretScope(),
		Expansions: []resource.Expansion{
			{
				As:     FieldGuides,
				Target: c.Users,
				Schema: auth.UserSchema,
				Local:  FieldGuides,
				Fields: GuideFields,
				Scope:  auth.ActiveScope(),
			},
			{
				As:      "reviews",
				Target:  c.Reviews,
				Schema:  ReviewSchema,
				Foreign: FieldTour,
				Nested:  []resource.Expansion{reviewerExpansion(c)},
			},
		},
		BeforeCreate: []resource.Hook{setSlug, roundRating},
		BeforeUpdate: []resource.Hook{setSlug, roundRating},
		Conflicts: map[string]string{
			FieldName: "A tour with that name already exists. Please use another value!",
		},
	}
}

// TopCheapFields is the projection of the top-5-cheap listing.
const TopCheapFields = "name,price,ratingsAverage,summary,difficulty"

// TopCheap returns params prefilled for the five best-rated, cheapest
// tours. Other client parameters are kept.
func TopCheap(params url.Values) url.Values {
	out := url.Values{}
	for k, v := range params {
		out[k] = append([]string(nil), v...)
	}
	out.Set("limit", "5")
	out.Set("sort", "-ratingsAverage,price")
	out.Set("fields", TopCheapFields)
	return out
}
