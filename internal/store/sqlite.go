package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/piececount/puzzledex/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS puzzles (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	title           TEXT NOT NULL,
	author          TEXT,
	pieces_count    INTEGER NOT NULL,
	sale_platform   TEXT NOT NULL DEFAULT '',
	listed_for_sale INTEGER NOT NULL DEFAULT 0,
	complete        INTEGER NOT NULL DEFAULT 1,
	assembled       INTEGER NOT NULL DEFAULT 0,
	has_box         INTEGER NOT NULL DEFAULT 1,
	condition       TEXT NOT NULL,
	purchase_price  REAL,
	price           REAL,
	sold_price      REAL,
	production_year INTEGER,
	purchase_year   INTEGER,
	notes           TEXT,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS puzzle_photos (
	id            TEXT PRIMARY KEY,
	puzzle_id     TEXT NOT NULL REFERENCES puzzles(id) ON DELETE CASCADE,
	storage_path  TEXT NOT NULL,
	display_order INTEGER NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS price_searches (
	id                   TEXT PRIMARY KEY,
	puzzle_id            TEXT NOT NULL REFERENCES puzzles(id) ON DELETE CASCADE,
	user_id              TEXT NOT NULL,
	search_date          DATETIME NOT NULL,
	prices               TEXT NOT NULL,
	puzzle_condition     TEXT NOT NULL,
	puzzle_pieces_count  INTEGER NOT NULL,
	puzzle_complete      INTEGER NOT NULL,
	puzzle_has_box       INTEGER NOT NULL,
	puzzle_author        TEXT,
	source_image_ref     TEXT,
	estimator_version    TEXT NOT NULL DEFAULT '',
	created_at           DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_puzzles_user ON puzzles(user_id);
CREATE INDEX IF NOT EXISTS idx_puzzles_user_updated ON puzzles(user_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_photos_puzzle_order ON puzzle_photos(puzzle_id, display_order);
CREATE INDEX IF NOT EXISTS idx_searches_puzzle_date ON price_searches(puzzle_id, search_date DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreatePuzzle(ctx context.Context, p *model.Puzzle) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO puzzles (id, user_id, title, author, pieces_count, sale_platform,
			listed_for_sale, complete, assembled, has_box, condition,
			purchase_price, price, sold_price, production_year, purchase_year,
			notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Title, nullString(p.Author), p.PiecesCount, p.SalePlatform,
		p.ListedForSale, p.Complete, p.Assembled, p.HasBox, string(p.Condition),
		nullFloat(p.PurchasePrice), nullFloat(p.Price), nullFloat(p.SoldPrice),
		nullInt(p.ProductionYear), nullInt(p.PurchaseYear),
		nullString(p.Notes), now, now,
	)
	return eris.Wrap(err, "sqlite: insert puzzle")
}

const puzzleColumns = `id, user_id, title, author, pieces_count, sale_platform,
	listed_for_sale, complete, assembled, has_box, condition,
	purchase_price, price, sold_price, production_year, purchase_year,
	notes, created_at, updated_at`

func (s *SQLiteStore) GetPuzzle(ctx context.Context, userID, id string) (*model.Puzzle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+puzzleColumns+` FROM puzzles WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	return scanPuzzle(row)
}

func (s *SQLiteStore) UpdatePuzzle(ctx context.Context, p *model.Puzzle) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE puzzles SET title = ?, author = ?, pieces_count = ?, sale_platform = ?,
			listed_for_sale = ?, complete = ?, assembled = ?, has_box = ?, condition = ?,
			purchase_price = ?, price = ?, sold_price = ?, production_year = ?, purchase_year = ?,
			notes = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		p.Title, nullString(p.Author), p.PiecesCount, p.SalePlatform,
		p.ListedForSale, p.Complete, p.Assembled, p.HasBox, string(p.Condition),
		nullFloat(p.PurchasePrice), nullFloat(p.Price), nullFloat(p.SoldPrice),
		nullInt(p.ProductionYear), nullInt(p.PurchaseYear),
		nullString(p.Notes), now, p.ID, p.UserID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update puzzle %s", p.ID)
	}
	p.UpdatedAt = now
	return checkFound(res)
}

func (s *SQLiteStore) DeletePuzzle(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM puzzles WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete puzzle %s", id)
	}
	return checkFound(res)
}

func (s *SQLiteStore) ListPuzzles(ctx context.Context, userID string, filter PuzzleFilter) ([]model.Puzzle, error) {
	query := `SELECT ` + puzzleColumns + ` FROM puzzles WHERE user_id = ?`
	args := []any{userID}

	if filter.Search != "" {
		query += ` AND (title LIKE ? OR author LIKE ?)`
		pat := "%" + filter.Search + "%"
		args = append(args, pat, pat)
	}
	if filter.Author != "" {
		query += ` AND author = ?`
		args = append(args, filter.Author)
	}
	if filter.SalePlatform != "" {
		query += ` AND sale_platform = ?`
		args = append(args, filter.SalePlatform)
	}
	if filter.ListedForSale != nil {
		query += ` AND listed_for_sale = ?`
		args = append(args, *filter.ListedForSale)
	}
	if filter.Complete != nil {
		query += ` AND complete = ?`
		args = append(args, *filter.Complete)
	}
	if filter.Assembled != nil {
		query += ` AND assembled = ?`
		args = append(args, *filter.Assembled)
	}
	if filter.Condition != "" {
		query += ` AND condition = ?`
		args = append(args, string(filter.Condition))
	}
	if filter.MinPieces > 0 {
		query += ` AND pieces_count >= ?`
		args = append(args, filter.MinPieces)
	}
	if filter.MaxPieces > 0 {
		query += ` AND pieces_count <= ?`
		args = append(args, filter.MaxPieces)
	}
	if filter.ProductionYear > 0 {
		query += ` AND production_year = ?`
		args = append(args, filter.ProductionYear)
	}
	if filter.PurchaseYear > 0 {
		query += ` AND purchase_year = ?`
		args = append(args, filter.PurchaseYear)
	}

	sortBy := filter.SortBy
	dir := "ASC"
	if filter.SortDesc {
		dir = "DESC"
	}
	if !sortBy.Valid() {
		// Newest first when no explicit sort was requested.
		sortBy = model.SortByUpdatedAt
		dir = "DESC"
	}
	query += fmt.Sprintf(` ORDER BY %s %s`, string(sortBy), dir)

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list puzzles")
	}
	defer rows.Close()

	var puzzles []model.Puzzle
	for rows.Next() {
		p, err := scanPuzzle(rows)
		if err != nil {
			return nil, err
		}
		puzzles = append(puzzles, *p)
	}
	return puzzles, eris.Wrap(rows.Err(), "sqlite: list puzzles iterate")
}

func (s *SQLiteStore) AddPhoto(ctx context.Context, ph *model.Photo) error {
	if ph.ID == "" {
		ph.ID = uuid.New().String()
	}
	ph.CreatedAt = time.Now().UTC()

	if ph.DisplayOrder == 0 {
		// Append after the current last photo.
		row := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(display_order), 0) + 1 FROM puzzle_photos WHERE puzzle_id = ?`,
			ph.PuzzleID,
		)
		if err := row.Scan(&ph.DisplayOrder); err != nil {
			return eris.Wrap(err, "sqlite: next photo order")
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO puzzle_photos (id, puzzle_id, storage_path, display_order, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		ph.ID, ph.PuzzleID, ph.StoragePath, ph.DisplayOrder, ph.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert photo")
}

func (s *SQLiteStore) ListPhotos(ctx context.Context, puzzleID string) ([]model.Photo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, puzzle_id, storage_path, display_order, created_at
		 FROM puzzle_photos WHERE puzzle_id = ? ORDER BY display_order ASC`,
		puzzleID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list photos")
	}
	defer rows.Close()

	var photos []model.Photo
	for rows.Next() {
		var ph model.Photo
		if err := rows.Scan(&ph.ID, &ph.PuzzleID, &ph.StoragePath, &ph.DisplayOrder, &ph.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan photo")
		}
		photos = append(photos, ph)
	}
	return photos, eris.Wrap(rows.Err(), "sqlite: list photos iterate")
}

func (s *SQLiteStore) ReorderPhotos(ctx context.Context, puzzleID string, photoIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin reorder")
	}
	defer tx.Rollback()

	for i, id := range photoIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE puzzle_photos SET display_order = ? WHERE id = ? AND puzzle_id = ?`,
			i+1, id, puzzleID,
		); err != nil {
			return eris.Wrapf(err, "sqlite: reorder photo %s", id)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit reorder")
}

func (s *SQLiteStore) PrimaryPhoto(ctx context.Context, puzzleID string) (*model.Photo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, puzzle_id, storage_path, display_order, created_at
		 FROM puzzle_photos WHERE puzzle_id = ? ORDER BY display_order ASC LIMIT 1`,
		puzzleID,
	)
	var ph model.Photo
	err := row.Scan(&ph.ID, &ph.PuzzleID, &ph.StoragePath, &ph.DisplayOrder, &ph.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: primary photo")
	}
	return &ph, nil
}

const searchColumns = `id, puzzle_id, user_id, search_date, prices,
	puzzle_condition, puzzle_pieces_count, puzzle_complete, puzzle_has_box, puzzle_author,
	source_image_ref, estimator_version, created_at`

func (s *SQLiteStore) ListSearchesSince(ctx context.Context, puzzleID string, since time.Time) ([]model.PriceSearch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+searchColumns+` FROM price_searches
		 WHERE puzzle_id = ? AND search_date >= ?
		 ORDER BY search_date DESC`,
		puzzleID, since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list searches since")
	}
	defer rows.Close()
	return collectSearches(rows)
}

func (s *SQLiteStore) ListSearches(ctx context.Context, puzzleID string, limit int) ([]model.PriceSearch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+searchColumns+` FROM price_searches
		 WHERE puzzle_id = ? ORDER BY search_date DESC LIMIT ?`,
		puzzleID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list searches")
	}
	defer rows.Close()
	return collectSearches(rows)
}

func (s *SQLiteStore) InsertSearchIfUnderLimit(ctx context.Context, rec *model.PriceSearch, since time.Time, limit int) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = time.Now().UTC()

	pricesJSON, err := json.Marshal(rec.Prices)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal prices")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin insert search")
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_searches WHERE puzzle_id = ? AND search_date >= ?`,
		rec.PuzzleID, since.UTC(),
	).Scan(&count)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: count window searches")
	}
	if count >= limit {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO price_searches (id, puzzle_id, user_id, search_date, prices,
			puzzle_condition, puzzle_pieces_count, puzzle_complete, puzzle_has_box, puzzle_author,
			source_image_ref, estimator_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PuzzleID, rec.UserID, rec.SearchDate.UTC(), string(pricesJSON),
		string(rec.Snapshot.Condition), rec.Snapshot.PiecesCount, rec.Snapshot.Complete,
		rec.Snapshot.HasBox, nullString(rec.Snapshot.Author),
		nullString(rec.SourceImageRef), rec.EstimatorVersion, rec.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert search")
	}
	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: commit insert search")
	}
	return true, nil
}

// helpers

func checkFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f != 0}
}

func nullInt(i int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(i), Valid: i != 0}
}

func collectSearches(rows *sql.Rows) ([]model.PriceSearch, error) {
	var searches []model.PriceSearch
	for rows.Next() {
		var rec model.PriceSearch
		var pricesJSON string
		var author, imageRef sql.NullString

		err := rows.Scan(&rec.ID, &rec.PuzzleID, &rec.UserID, &rec.SearchDate, &pricesJSON,
			&rec.Snapshot.Condition, &rec.Snapshot.PiecesCount, &rec.Snapshot.Complete,
			&rec.Snapshot.HasBox, &author, &imageRef, &rec.EstimatorVersion, &rec.CreatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan search")
		}
		if err := json.Unmarshal([]byte(pricesJSON), &rec.Prices); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal prices")
		}
		rec.Snapshot.Author = author.String
		rec.SourceImageRef = imageRef.String
		searches = append(searches, rec)
	}
	return searches, eris.Wrap(rows.Err(), "sqlite: iterate searches")
}
