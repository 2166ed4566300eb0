package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/piececount/puzzledex/internal/model"
)

func TestWithinWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	start := now.Add(-Window)

	records := []model.PriceSearch{
		{ID: "fresh", SearchDate: now.Add(-time.Hour)},
		{ID: "boundary", SearchDate: start}, // exactly 7 days old: included
		{ID: "expired", SearchDate: start.Add(-time.Second)},
	}

	in := WithinWindow(records, start)
	assert.Len(t, in, 2)
	assert.Equal(t, "fresh", in[0].ID)
	assert.Equal(t, "boundary", in[1].ID)
}

func TestWithinWindowKeysOnSearchDate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	start := now.Add(-Window)

	// Row created recently, but the lookup itself is old: excluded.
	rec := model.PriceSearch{
		ID:         "backfilled",
		SearchDate: start.Add(-time.Hour),
		CreatedAt:  now,
	}
	assert.Empty(t, WithinWindow([]model.PriceSearch{rec}, start))
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 2, remaining(0))
	assert.Equal(t, 1, remaining(1))
	assert.Equal(t, 0, remaining(2))
	assert.Equal(t, 0, remaining(3))
}

func TestCacheValidUntilAndNextAvailable(t *testing.T) {
	date := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, date.Add(7*24*time.Hour), cacheValidUntil(date))
	assert.Equal(t, date.Add(7*24*time.Hour), nextAvailable(date))
}
