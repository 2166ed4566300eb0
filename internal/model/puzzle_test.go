package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConditionValid(t *testing.T) {
	for _, c := range AllConditions() {
		assert.True(t, c.Valid(), string(c))
	}
	assert.False(t, Condition("mint").Valid())
	assert.False(t, Condition("").Valid())
}

func TestPriceSnapshot(t *testing.T) {
	p := &Puzzle{
		Title:       "Starry Night",
		Author:      "  Clementoni ",
		PiecesCount: 2000,
		Complete:    true,
		HasBox:      false,
		Condition:   ConditionLikeNew,
		Price:       45, // not part of the snapshot
	}

	snap := p.PriceSnapshot()
	assert.Equal(t, Snapshot{
		Condition:   ConditionLikeNew,
		PiecesCount: 2000,
		Complete:    true,
		HasBox:      false,
		Author:      "Clementoni",
	}, snap)
}

func TestRecommendedPrice(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Zero(t, RecommendedPrice(nil))
	})

	t.Run("mean of averages", func(t *testing.T) {
		prices := []PriceEstimate{
			{CountryCode: "IT", Currency: "EUR", AvgPrice: 20},
			{CountryCode: "DE", Currency: "EUR", AvgPrice: 30},
			{CountryCode: "GB", Currency: "GBP", AvgPrice: 25},
		}
		assert.InDelta(t, 25.0, RecommendedPrice(prices), 0.001)
	})
}

func TestSortFieldValid(t *testing.T) {
	assert.True(t, SortByTitle.Valid())
	assert.True(t, SortByUpdatedAt.Valid())
	assert.False(t, SortField("created_at").Valid())
}
