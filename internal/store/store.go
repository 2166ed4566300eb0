// Package store defines durable storage for puzzles, their photos, and their
// price-search history, with SQLite and Postgres backends.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/piececount/puzzledex/internal/model"
)

// ErrNotFound is returned when a requested puzzle does not exist within the
// caller's scope.
var ErrNotFound = errors.New("puzzle not found")

// PuzzleFilter specifies criteria and ordering for puzzle listings.
// Pointer fields distinguish "unset" from an explicit false.
type PuzzleFilter struct {
	Search         string          `json:"search,omitempty"`
	Author         string          `json:"author,omitempty"`
	SalePlatform   string          `json:"sale_platform,omitempty"`
	ListedForSale  *bool           `json:"listed_for_sale,omitempty"`
	Complete       *bool           `json:"complete,omitempty"`
	Assembled      *bool           `json:"assembled,omitempty"`
	Condition      model.Condition `json:"condition,omitempty"`
	MinPieces      int             `json:"min_pieces,omitempty"`
	MaxPieces      int             `json:"max_pieces,omitempty"`
	ProductionYear int             `json:"production_year,omitempty"`
	PurchaseYear   int             `json:"purchase_year,omitempty"`
	SortBy         model.SortField `json:"sort_by,omitempty"`
	SortDesc       bool            `json:"sort_desc,omitempty"`
	Limit          int             `json:"limit,omitempty"` // default 100
	Offset         int             `json:"offset,omitempty"`
}

// Store defines all data access for the catalog and the price-lookup gate.
//
// Price-search rows are append-only: they are inserted by
// InsertSearchIfUnderLimit and never updated; they disappear only when the
// parent puzzle is deleted (ON DELETE CASCADE).
type Store interface {
	// Puzzles
	CreatePuzzle(ctx context.Context, p *model.Puzzle) error
	GetPuzzle(ctx context.Context, userID, id string) (*model.Puzzle, error)
	UpdatePuzzle(ctx context.Context, p *model.Puzzle) error
	DeletePuzzle(ctx context.Context, userID, id string) error
	ListPuzzles(ctx context.Context, userID string, filter PuzzleFilter) ([]model.Puzzle, error)

	// Photos
	AddPhoto(ctx context.Context, ph *model.Photo) error
	ListPhotos(ctx context.Context, puzzleID string) ([]model.Photo, error)
	ReorderPhotos(ctx context.Context, puzzleID string, photoIDs []string) error
	// PrimaryPhoto returns the photo with the lowest display order, or
	// (nil, nil) when the puzzle has no photos.
	PrimaryPhoto(ctx context.Context, puzzleID string) (*model.Photo, error)

	// Price searches
	// ListSearchesSince returns searches with search_date >= since, most
	// recent first. The predicate is evaluated in SQL so every caller of a
	// given "since" boundary sees the same window.
	ListSearchesSince(ctx context.Context, puzzleID string, since time.Time) ([]model.PriceSearch, error)
	// ListSearches returns up to limit searches, most recent first.
	ListSearches(ctx context.Context, puzzleID string, limit int) ([]model.PriceSearch, error)
	// InsertSearchIfUnderLimit inserts rec only if fewer than limit searches
	// with search_date >= since exist for the puzzle, counting and inserting
	// in one transaction. Returns false with a nil error when the window was
	// already full.
	InsertSearchIfUnderLimit(ctx context.Context, rec *model.PriceSearch, since time.Time, limit int) (bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
