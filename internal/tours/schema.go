// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package tours declares the tours and reviews resources and the
// aggregate reports built on them.
package tours

import (
	"fmt"

	"github.com/natours/natours/internal/query"
	"github.com/natours/natours/internal/schema"
)

// Tour fields.
const (
	FieldName            = "name"
	FieldSlug            = "slug"
	FieldDuration        = "duration"
	FieldMaxGroupSize    = "maxGroupSize"
	FieldDifficulty      = "difficulty"
	FieldRatingsAverage  = "ratingsAverage"
	FieldRatingsQuantity = "ratingsQuantity"
	FieldPrice           = "price"
	FieldPriceDiscount   = "priceDiscount"
	FieldSummary         = "summary"
	FieldDescription     = "description"
	FieldImageCover      = "imageCover"
	FieldImages          = "images"
	FieldStartDates      = "startDates"
	FieldSecretTour      = "secretTour"
	FieldStartLocation   = "startLocation"
	FieldLocations       = "locations"
	FieldGuides          = "guides"
)

// Review fields.
const (
	FieldReview = "review"
	FieldRating = "rating"
	FieldTour   = "tour"
	FieldUser   = "user"
)

// DefaultRating is the average shown for tours without reviews.
const DefaultRating = 4.5

// Difficulties lists the accepted difficulty levels.
var Difficulties = []string{"easy", "medium", "difficult"}

func priceDiscountBelowPrice(doc map[string]any) *schema.FieldError {
	discount, ok := query.AsFloat(doc[FieldPriceDiscount])
	if !ok {
		return nil
	}
	price, _ := query.AsFloat(doc[FieldPrice])
	if discount >= price {
		return &schema.FieldError{
			Field:   FieldPriceDiscount,
			Message: fmt.Sprintf("discount price (%g) should be below regular price", discount),
		}
	}
	return nil
}

// TourSchema declares the tours collection.
var TourSchema = schema.MustNew("tours", []schema.Field{
	{Name: FieldName, Type: schema.String, Required: true, Unique: true, Min: schema.Float(10), Max: schema.Float(40),
		Filterable: true, Sortable: true, Description: "A tour name must have between 10 and 40 characters"},
	{Name: FieldSlug, Type: schema.String, ReadOnly: true, Filterable: true},
	{Name: FieldDuration, Type: schema.Number, Required: true, Min: schema.Float(1),
		Filterable: true, Sortable: true, AllowMulti: true},
	{Name: FieldMaxGroupSize, Type: schema.Number, Required: true, Min: schema.Float(1),
		Filterable: true, Sortable: true, AllowMulti: true},
	{Name: FieldDifficulty, Type: schema.String, Required: true, Enum: Difficulties,
		Filterable: true, Sortable: true, AllowMulti: true},
	{Name: FieldRatingsAverage, Type: schema.Number, Default: DefaultRating, Min: schema.Float(1), Max: schema.Float(5),
		Filterable: true, Sortable: true, AllowMulti: true},
	{Name: FieldRatingsQuantity, Type: schema.Number, Default: 0.0, Min: schema.Float(0),
		Filterable: true, Sortable: true, AllowMulti: true},
	{Name: FieldPrice, Type: schema.Number, Required: true, Min: schema.Float(0),
		Filterable: true, Sortable: true, AllowMulti: true},
	{Name: FieldPriceDiscount, Type: schema.Number, Min: schema.Float(0), Filterable: true, Sortable: true},
	{Name: FieldSummary, Type: schema.String, Required: true, Min: schema.Float(1)},
	{Name: FieldDescription, Type: schema.String},
	{Name: FieldImageCover, Type: schema.String, Required: true},
	{Name: FieldImages, Type: schema.StringList},
	{Name: FieldStartDates, Type: schema.TimeList},
	{Name: FieldSecretTour, Type: schema.Bool, Default: false},
	{Name: FieldStartLocation, Type: schema.Object, Description: "GeoJSON point with address and description"},
	{Name: FieldLocations, Type: schema.ObjectList},
	{Name: FieldGuides, Type: schema.StringList, Description: "ids of the guiding users"},
}, priceDiscountBelowPrice)

// ReviewSchema declares the reviews collection.
var ReviewSchema = schema.MustNew("reviews", []schema.Field{
	{Name: FieldReview, Type: schema.String, Required: true, Min: schema.Float(1)},
	{Name: FieldRating, Type: schema.Number, Required: true, Min: schema.Float(1), Max: schema.Float(5),
		Filterable: true, Sortable: true, AllowMulti: true},
	{Name: FieldTour, Type: schema.String, Required: true, Filterable: true},
	{Name: FieldUser, Type: schema.String, Required: true, Filterable: true},
})

// SecretScope hides secret tours from every read.
func SecretScope() []query.Condition {
	return []query.Condition{query.Ne(FieldSecretTour, schema.Bool, true)}
}
