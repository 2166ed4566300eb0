// Package stats computes collection-level dashboard aggregates from the
// catalog and the price-search history.
package stats

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/piececount/puzzledex/internal/model"
	"github.com/piececount/puzzledex/internal/store"
)

// Store is the slice of the data layer the collector needs.
type Store interface {
	ListPuzzles(ctx context.Context, userID string, filter store.PuzzleFilter) ([]model.Puzzle, error)
	ListSearches(ctx context.Context, puzzleID string, limit int) ([]model.PriceSearch, error)
}

// Summary is the dashboard payload for one user's collection.
type Summary struct {
	TotalPuzzles  int `json:"total_puzzles"`
	TotalPieces   int `json:"total_pieces"`
	ListedForSale int `json:"listed_for_sale"`
	Complete      int `json:"complete"`
	Assembled     int `json:"assembled"`
	WithEstimates int `json:"with_estimates"`

	PurchaseValue   float64 `json:"purchase_value"`
	ListedValue     float64 `json:"listed_value"`
	SoldValue       float64 `json:"sold_value"`
	EstimatedValue  float64 `json:"estimated_value"`
	PotentialProfit float64 `json:"potential_profit"`

	ByCondition map[model.Condition]int `json:"by_condition"`
	ByCountry   []CountryStat           `json:"by_country"`

	Underpriced []UnderpricedPuzzle `json:"underpriced"`
}

// CountryStat aggregates the latest estimates across the collection for one
// market.
type CountryStat struct {
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country"`
	Puzzles     int     `json:"puzzles"`
	AvgPrice    float64 `json:"avg_price"`
}

// UnderpricedPuzzle is a listed puzzle whose asking price sits below its
// latest recommended price.
type UnderpricedPuzzle struct {
	PuzzleID    string  `json:"puzzle_id"`
	Title       string  `json:"title"`
	AskingPrice float64 `json:"asking_price"`
	Recommended float64 `json:"recommended_price"`
}

// Collector builds Summary values.
type Collector struct {
	store Store
	// concurrency bounds parallel per-puzzle history loads.
	concurrency int
}

// NewCollector creates a stats collector.
func NewCollector(s Store) *Collector {
	return &Collector{store: s, concurrency: 8}
}

// Collect aggregates the user's whole collection. Per-puzzle price histories
// are fetched concurrently; the newest search per puzzle feeds the estimate
// aggregates.
func (c *Collector) Collect(ctx context.Context, userID string) (*Summary, error) {
	puzzles, err := c.store.ListPuzzles(ctx, userID, store.PuzzleFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "stats: list puzzles")
	}

	summary := &Summary{ByCondition: make(map[model.Condition]int)}
	latest := make([]*model.PriceSearch, len(puzzles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, p := range puzzles {
		g.Go(func() error {
			searches, err := c.store.ListSearches(gctx, p.ID, 1)
			if err != nil {
				return eris.Wrapf(err, "stats: searches for puzzle %s", p.ID)
			}
			if len(searches) > 0 {
				latest[i] = &searches[0]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	countries := make(map[string]*CountryStat)
	for i, p := range puzzles {
		summary.TotalPuzzles++
		summary.TotalPieces += p.PiecesCount
		summary.PurchaseValue += p.PurchasePrice
		summary.ByCondition[p.Condition]++
		if p.ListedForSale {
			summary.ListedForSale++
			summary.ListedValue += p.Price
		}
		if p.Complete {
			summary.Complete++
		}
		if p.Assembled {
			summary.Assembled++
		}
		summary.SoldValue += p.SoldPrice

		search := latest[i]
		if search == nil {
			continue
		}
		summary.WithEstimates++
		recommended := model.RecommendedPrice(search.Prices)
		summary.EstimatedValue += recommended

		for _, est := range search.Prices {
			cs, ok := countries[est.CountryCode]
			if !ok {
				cs = &CountryStat{CountryCode: est.CountryCode, Country: est.Country}
				countries[est.CountryCode] = cs
			}
			// Running mean over the collection's latest estimates.
			cs.AvgPrice = (cs.AvgPrice*float64(cs.Puzzles) + est.AvgPrice) / float64(cs.Puzzles+1)
			cs.Puzzles++
		}

		if p.ListedForSale && p.Price > 0 && p.Price < recommended {
			summary.Underpriced = append(summary.Underpriced, UnderpricedPuzzle{
				PuzzleID:    p.ID,
				Title:       p.Title,
				AskingPrice: p.Price,
				Recommended: recommended,
			})
		}
	}

	summary.PotentialProfit = summary.EstimatedValue - summary.PurchaseValue

	for _, cs := range countries {
		summary.ByCountry = append(summary.ByCountry, *cs)
	}
	sort.Slice(summary.ByCountry, func(i, j int) bool {
		return summary.ByCountry[i].CountryCode < summary.ByCountry[j].CountryCode
	})
	sort.Slice(summary.Underpriced, func(i, j int) bool {
		gapI := summary.Underpriced[i].Recommended - summary.Underpriced[i].AskingPrice
		gapJ := summary.Underpriced[j].Recommended - summary.Underpriced[j].AskingPrice
		return gapI > gapJ
	})

	return summary, nil
}
