package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/piececount/puzzledex/internal/model"
)

type scannable interface {
	Scan(dest ...any) error
}

// scanPuzzle reads one puzzle row from either backend, mapping NULL optional
// columns onto zero values.
func scanPuzzle(row scannable) (*model.Puzzle, error) {
	var p model.Puzzle
	var author, notes sql.NullString
	var purchasePrice, price, soldPrice sql.NullFloat64
	var productionYear, purchaseYear sql.NullInt64

	err := row.Scan(&p.ID, &p.UserID, &p.Title, &author, &p.PiecesCount, &p.SalePlatform,
		&p.ListedForSale, &p.Complete, &p.Assembled, &p.HasBox, &p.Condition,
		&purchasePrice, &price, &soldPrice, &productionYear, &purchaseYear,
		&notes, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan puzzle")
	}

	p.Author = author.String
	p.Notes = notes.String
	p.PurchasePrice = purchasePrice.Float64
	p.Price = price.Float64
	p.SoldPrice = soldPrice.Float64
	p.ProductionYear = int(productionYear.Int64)
	p.PurchaseYear = int(purchaseYear.Int64)
	return &p, nil
}
