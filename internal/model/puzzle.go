package model

import (
	"strings"
	"time"
)

// Condition rates the physical state of a puzzle.
type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like_new"
	ConditionGood    Condition = "good"
	ConditionUsed    Condition = "used"
	ConditionDamaged Condition = "damaged"
)

// AllConditions returns the valid condition values in display order.
func AllConditions() []Condition {
	return []Condition{
		ConditionNew,
		ConditionLikeNew,
		ConditionGood,
		ConditionUsed,
		ConditionDamaged,
	}
}

// Valid reports whether c is one of the known condition values.
func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionUsed, ConditionDamaged:
		return true
	}
	return false
}

// Puzzle is a single cataloged puzzle owned by a user.
type Puzzle struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Title          string    `json:"title"`
	Author         string    `json:"author,omitempty"`
	PiecesCount    int       `json:"pieces_count"`
	SalePlatform   string    `json:"sale_platform,omitempty"`
	ListedForSale  bool      `json:"listed_for_sale"`
	Complete       bool      `json:"complete"`
	Assembled      bool      `json:"assembled"`
	HasBox         bool      `json:"has_box"`
	Condition      Condition `json:"condition"`
	PurchasePrice  float64   `json:"purchase_price,omitempty"`
	Price          float64   `json:"price,omitempty"`
	SoldPrice      float64   `json:"sold_price,omitempty"`
	ProductionYear int       `json:"production_year,omitempty"`
	PurchaseYear   int       `json:"purchase_year,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Snapshot holds the five puzzle attributes that affect resale price. A copy
// is frozen onto every price search so later edits to the live puzzle can be
// detected. An unset author and an empty author are the same value; the store
// normalizes NULL to "" on read and "" to NULL on write.
type Snapshot struct {
	Condition   Condition `json:"condition"`
	PiecesCount int       `json:"pieces_count"`
	Complete    bool      `json:"complete"`
	HasBox      bool      `json:"has_box"`
	Author      string    `json:"author,omitempty"`
}

// PriceSnapshot extracts the price-relevant fields of the puzzle.
func (p *Puzzle) PriceSnapshot() Snapshot {
	return Snapshot{
		Condition:   p.Condition,
		PiecesCount: p.PiecesCount,
		Complete:    p.Complete,
		HasBox:      p.HasBox,
		Author:      strings.TrimSpace(p.Author),
	}
}

// Photo is one image attached to a puzzle. The photo with the lowest
// display order is the primary (cover) photo.
type Photo struct {
	ID           string    `json:"id"`
	PuzzleID     string    `json:"puzzle_id"`
	StoragePath  string    `json:"storage_path"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
}

// SortField names a puzzle list ordering.
type SortField string

const (
	SortByTitle     SortField = "title"
	SortByPieces    SortField = "pieces_count"
	SortByAuthor    SortField = "author"
	SortByPrice     SortField = "price"
	SortByUpdatedAt SortField = "updated_at"
)

// Valid reports whether f is a supported sort field.
func (f SortField) Valid() bool {
	switch f {
	case SortByTitle, SortByPieces, SortByAuthor, SortByPrice, SortByUpdatedAt:
		return true
	}
	return false
}
