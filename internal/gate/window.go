package gate

import (
	"time"

	"github.com/piececount/puzzledex/internal/model"
)

const (
	// Window is the rolling period over which searches are counted and a
	// cached result stays valid.
	Window = 7 * 24 * time.Hour

	// WeeklySearchLimit caps fresh lookups per puzzle inside the window.
	WeeklySearchLimit = 2
)

// WithinWindow filters records to those with search_date >= start,
// preserving input order. Membership is decided by the conceptual lookup
// time (SearchDate), never the row-creation timestamp.
func WithinWindow(records []model.PriceSearch, start time.Time) []model.PriceSearch {
	var in []model.PriceSearch
	for _, r := range records {
		if !r.SearchDate.Before(start) {
			in = append(in, r)
		}
	}
	return in
}

// cacheValidUntil is the moment a cached search expires.
func cacheValidUntil(searchDate time.Time) time.Time {
	return searchDate.Add(Window)
}

// nextAvailable is the moment the oldest in-window search rolls out of the
// window, freeing a slot.
func nextAvailable(oldestSearchDate time.Time) time.Time {
	return oldestSearchDate.Add(Window)
}

func remaining(count int) int {
	if count >= WeeklySearchLimit {
		return 0
	}
	return WeeklySearchLimit - count
}
