package model

import "time"

// PriceEstimate is one market's estimated resale range. The estimator is
// expected to keep MinPrice <= AvgPrice <= MaxPrice but this is not
// guaranteed; consumers tolerate violations.
type PriceEstimate struct {
	Country           string  `json:"country"`
	CountryCode       string  `json:"country_code"`
	Currency          string  `json:"currency"`
	AvgPrice          float64 `json:"avg_price"`
	MinPrice          float64 `json:"min_price"`
	MaxPrice          float64 `json:"max_price"`
	AvailabilityNotes string  `json:"availability_notes"`
}

// PriceSearch is one completed price lookup for a puzzle. Records are
// immutable: created exactly once by a successful fresh lookup, read many
// times for cache and rate-limit decisions, never updated. SearchDate is the
// conceptual lookup time and is the field all window arithmetic keys on;
// CreatedAt is the row-insertion time and is kept separate on purpose.
type PriceSearch struct {
	ID               string          `json:"id"`
	PuzzleID         string          `json:"puzzle_id"`
	UserID           string          `json:"user_id"`
	SearchDate       time.Time       `json:"search_date"`
	Prices           []PriceEstimate `json:"prices"`
	Snapshot         Snapshot        `json:"snapshot"`
	SourceImageRef   string          `json:"source_image_ref,omitempty"`
	EstimatorVersion string          `json:"estimator_version"`
	CreatedAt        time.Time       `json:"created_at"`
}

// RecommendedPrice averages the per-market average prices of a search.
// Currencies are treated as opaque: no conversion is applied, so the value is
// only meaningful when the markets share a currency or the caller accepts the
// blend. Returns 0 for an empty list.
func RecommendedPrice(prices []PriceEstimate) float64 {
	if len(prices) == 0 {
		return 0
	}
	var sum float64
	for _, p := range prices {
		sum += p.AvgPrice
	}
	return sum / float64(len(prices))
}
