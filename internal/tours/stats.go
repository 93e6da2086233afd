// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package tours

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/natours/natours/internal/docstore"
	"github.com/natours/natours/internal/query"
	"github.com/natours/natours/internal/schema"
	"github.com/natours/natours/pkg/errutil"
)

// StatsMinRating is the lowest average rating counted by TourStats.
const StatsMinRating = 4.5

// Reports computes aggregate views over the tours collection.
type Reports struct {
	tours docstore.Collection
}

// NewReports returns Reports over tours.
func NewReports(tours docstore.Collection) *Reports {
	return &Reports{tours: tours}
}

// TourStats groups well-rated tours by difficulty, cheapest group first.
func (r *Reports) TourStats(ctx context.Context) ([]docstore.Document, error) {
	match := append(SecretScope(), query.Condition{
		Field: FieldRatingsAverage, Type: schema.Number, Op: query.OpGte, Value: StatsMinRating,
	})
	rows, err := r.tours.Aggregate(ctx, &docstore.Pipeline{
		Match:     match,
		GroupBy:   FieldDifficulty,
		GroupType: schema.String,
		KeyFunc:   docstore.KeyUpper,
		KeyAs:     FieldDifficulty,
		Accumulators: []docstore.Accumulator{
			{As: "numTours", Op: docstore.AccCount},
			{As: "numRatings", Op: docstore.AccSum, Field: FieldRatingsQuantity},
			{As: "avgRating", Op: docstore.AccAvg, Field: FieldRatingsAverage},
			{As: "avgPrice", Op: docstore.AccAvg, Field: FieldPrice},
			{As: "minPrice", Op: docstore.AccMin, Field: FieldPrice},
			{As: "maxPrice", Op: docstore.AccMax, Field: FieldPrice},
		},
		SortBy: "avgPrice",
	})
	if err != nil {
		return nil, oops.Code("TOUR_STATS_FAILED").Wrap(err)
	}
	return rows, nil
}

// MonthlyPlan counts the tour starts of each month of year, busiest month
// first, with the names of the tours starting in it.
func (r *Reports) MonthlyPlan(ctx context.Context, year int) ([]docstore.Document, error) {
	if year < 1 || year > 9999 {
		return nil, oops.Code("TOUR_PLAN_INVALID_YEAR").With("year", year).
			Wrap(errutil.Newf(errutil.KindValidation, "Invalid year: %d", year))
	}
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year, time.December, 31, 23, 59, 59, 999999999, time.UTC)

	match := append(SecretScope(),
		query.Condition{Field: FieldStartDates, Type: schema.Time, Op: query.OpGte, Value: from},
		query.Condition{Field: FieldStartDates, Type: schema.Time, Op: query.OpLte, Value: to},
	)
	rows, err := r.tours.Aggregate(ctx, &docstore.Pipeline{
		Unwind:     FieldStartDates,
		UnwindType: schema.TimeList,
		Match:      match,
		GroupBy:    FieldStartDates,
		GroupType:  schema.Time,
		KeyFunc:    docstore.KeyMonth,
		KeyAs:      "month",
		Accumulators: []docstore.Accumulator{
			{As: "numTourStarts", Op: docstore.AccCount},
			{As: "tours", Op: docstore.AccPush, Field: FieldName},
		},
		SortBy:   "numTourStarts",
		SortDesc: true,
		Limit:    12,
	})
	if err != nil {
		return nil, oops.Code("TOUR_PLAN_FAILED").With("year", year).Wrap(err)
	}
	return rows, nil
}
