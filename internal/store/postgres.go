package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/piececount/puzzledex/internal/db"
	"github.com/piececount/puzzledex/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS puzzles (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id         TEXT NOT NULL,
	title           TEXT NOT NULL,
	author          TEXT,
	pieces_count    INTEGER NOT NULL,
	sale_platform   TEXT NOT NULL DEFAULT '',
	listed_for_sale BOOLEAN NOT NULL DEFAULT false,
	complete        BOOLEAN NOT NULL DEFAULT true,
	assembled       BOOLEAN NOT NULL DEFAULT false,
	has_box         BOOLEAN NOT NULL DEFAULT true,
	condition       TEXT NOT NULL,
	purchase_price  DOUBLE PRECISION,
	price           DOUBLE PRECISION,
	sold_price      DOUBLE PRECISION,
	production_year INTEGER,
	purchase_year   INTEGER,
	notes           TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS puzzle_photos (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	puzzle_id     TEXT NOT NULL REFERENCES puzzles(id) ON DELETE CASCADE,
	storage_path  TEXT NOT NULL,
	display_order INTEGER NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS price_searches (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	puzzle_id           TEXT NOT NULL REFERENCES puzzles(id) ON DELETE CASCADE,
	user_id             TEXT NOT NULL,
	search_date         TIMESTAMPTZ NOT NULL,
	prices              JSONB NOT NULL,
	puzzle_condition    TEXT NOT NULL,
	puzzle_pieces_count INTEGER NOT NULL,
	puzzle_complete     BOOLEAN NOT NULL,
	puzzle_has_box      BOOLEAN NOT NULL,
	puzzle_author       TEXT,
	source_image_ref    TEXT,
	estimator_version   TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_puzzles_user ON puzzles(user_id);
CREATE INDEX IF NOT EXISTS idx_puzzles_user_updated ON puzzles(user_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_photos_puzzle_order ON puzzle_photos(puzzle_id, display_order);
CREATE INDEX IF NOT EXISTS idx_searches_puzzle_date ON price_searches(puzzle_id, search_date DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreatePuzzle(ctx context.Context, p *model.Puzzle) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO puzzles (id, user_id, title, author, pieces_count, sale_platform,
			listed_for_sale, complete, assembled, has_box, condition,
			purchase_price, price, sold_price, production_year, purchase_year,
			notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		p.ID, p.UserID, p.Title, textOrNil(p.Author), p.PiecesCount, p.SalePlatform,
		p.ListedForSale, p.Complete, p.Assembled, p.HasBox, string(p.Condition),
		floatOrNil(p.PurchasePrice), floatOrNil(p.Price), floatOrNil(p.SoldPrice),
		intOrNil(p.ProductionYear), intOrNil(p.PurchaseYear),
		textOrNil(p.Notes), now, now,
	)
	return eris.Wrap(err, "postgres: insert puzzle")
}

func (s *PostgresStore) GetPuzzle(ctx context.Context, userID, id string) (*model.Puzzle, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+puzzleColumns+` FROM puzzles WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	return scanPuzzle(row)
}

func (s *PostgresStore) UpdatePuzzle(ctx context.Context, p *model.Puzzle) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE puzzles SET title = $1, author = $2, pieces_count = $3, sale_platform = $4,
			listed_for_sale = $5, complete = $6, assembled = $7, has_box = $8, condition = $9,
			purchase_price = $10, price = $11, sold_price = $12, production_year = $13, purchase_year = $14,
			notes = $15, updated_at = $16
		 WHERE id = $17 AND user_id = $18`,
		p.Title, textOrNil(p.Author), p.PiecesCount, p.SalePlatform,
		p.ListedForSale, p.Complete, p.Assembled, p.HasBox, string(p.Condition),
		floatOrNil(p.PurchasePrice), floatOrNil(p.Price), floatOrNil(p.SoldPrice),
		intOrNil(p.ProductionYear), intOrNil(p.PurchaseYear),
		textOrNil(p.Notes), now, p.ID, p.UserID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update puzzle %s", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	p.UpdatedAt = now
	return nil
}

func (s *PostgresStore) DeletePuzzle(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM puzzles WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete puzzle %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPuzzles(ctx context.Context, userID string, filter PuzzleFilter) ([]model.Puzzle, error) {
	query := `SELECT ` + puzzleColumns + ` FROM puzzles WHERE user_id = $1`
	args := []any{userID}
	n := 1

	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if filter.Search != "" {
		pat := "%" + filter.Search + "%"
		p1 := arg(pat)
		p2 := arg(pat)
		query += ` AND (title ILIKE ` + p1 + ` OR author ILIKE ` + p2 + `)`
	}
	if filter.Author != "" {
		query += ` AND author = ` + arg(filter.Author)
	}
	if filter.SalePlatform != "" {
		query += ` AND sale_platform = ` + arg(filter.SalePlatform)
	}
	if filter.ListedForSale != nil {
		query += ` AND listed_for_sale = ` + arg(*filter.ListedForSale)
	}
	if filter.Complete != nil {
		query += ` AND complete = ` + arg(*filter.Complete)
	}
	if filter.Assembled != nil {
		query += ` AND assembled = ` + arg(*filter.Assembled)
	}
	if filter.Condition != "" {
		query += ` AND condition = ` + arg(string(filter.Condition))
	}
	if filter.MinPieces > 0 {
		query += ` AND pieces_count >= ` + arg(filter.MinPieces)
	}
	if filter.MaxPieces > 0 {
		query += ` AND pieces_count <= ` + arg(filter.MaxPieces)
	}
	if filter.ProductionYear > 0 {
		query += ` AND production_year = ` + arg(filter.ProductionYear)
	}
	if filter.PurchaseYear > 0 {
		query += ` AND purchase_year = ` + arg(filter.PurchaseYear)
	}

	sortBy := filter.SortBy
	dir := "ASC"
	if filter.SortDesc {
		dir = "DESC"
	}
	if !sortBy.Valid() {
		sortBy = model.SortByUpdatedAt
		dir = "DESC"
	}
	query += fmt.Sprintf(` ORDER BY %s %s`, string(sortBy), dir)

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list puzzles")
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
	return puzzles, eris.Wrap(rows.Err(), "postgres: list puzzles iterate")
}

func (s *PostgresStore) AddPhoto(ctx context.Context, ph *model.Photo) error {
	if ph.ID == "" {
		ph.ID = uuid.New().String()
	}
	ph.CreatedAt = time.Now().UTC()

	if ph.DisplayOrder == 0 {
		row := s.pool.QueryRow(ctx,
			`SELECT COALESCE(MAX(display_order), 0) + 1 FROM puzzle_photos WHERE puzzle_id = $1`,
			ph.PuzzleID,
		)
		if err := row.Scan(&ph.DisplayOrder); err != nil {
			return eris.Wrap(err, "postgres: next photo order")
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO puzzle_photos (id, puzzle_id, storage_path, display_order, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ph.ID, ph.PuzzleID, ph.StoragePath, ph.DisplayOrder, ph.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert photo")
}

func (s *PostgresStore) ListPhotos(ctx context.Context, puzzleID string) ([]model.Photo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, puzzle_id, storage_path, display_order, created_at
		 FROM puzzle_photos WHERE puzzle_id = $1 ORDER BY display_order ASC`,
		puzzleID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list photos")
	}
	defer rows.Close()

	var photos []model.Photo
	for rows.Next() {
		var ph model.Photo
		if err := rows.Scan(&ph.ID, &ph.PuzzleID, &ph.StoragePath, &ph.DisplayOrder, &ph.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan photo")
		}
		photos = append(photos, ph)
	}
	return photos, eris.Wrap(rows.Err(), "postgres: list photos iterate")
}

func (s *PostgresStore) ReorderPhotos(ctx context.Context, puzzleID string, photoIDs []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin reorder")
	}
	defer tx.Rollback(ctx)

	for i, id := range photoIDs {
		if _, err := tx.Exec(ctx,
			`UPDATE puzzle_photos SET display_order = $1 WHERE id = $2 AND puzzle_id = $3`,
			i+1, id, puzzleID,
		); err != nil {
			return eris.Wrapf(err, "postgres: reorder photo %s", id)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit reorder")
}

func (s *PostgresStore) PrimaryPhoto(ctx context.Context, puzzleID string) (*model.Photo, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, puzzle_id, storage_path, display_order, created_at
		 FROM puzzle_photos WHERE puzzle_id = $1 ORDER BY display_order ASC LIMIT 1`,
		puzzleID,
	)
	var ph model.Photo
	err := row.Scan(&ph.ID, &ph.PuzzleID, &ph.StoragePath, &ph.DisplayOrder, &ph.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: primary photo")
	}
	return &ph, nil
}

func (s *PostgresStore) ListSearchesSince(ctx context.Context, puzzleID string, since time.Time) ([]model.PriceSearch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+searchColumns+` FROM price_searches
		 WHERE puzzle_id = $1 AND search_date >= $2
		 ORDER BY search_date DESC`,
		puzzleID, since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list searches since")
	}
	defer rows.Close()
	return collectSearchesPgx(rows)
}

func (s *PostgresStore) ListSearches(ctx context.Context, puzzleID string, limit int) ([]model.PriceSearch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+searchColumns+` FROM price_searches
		 WHERE puzzle_id = $1 ORDER BY search_date DESC LIMIT $2`,
		puzzleID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list searches")
	}
	defer rows.Close()
	return collectSearchesPgx(rows)
}

// InsertSearchIfUnderLimit serializes concurrent inserts for the same puzzle
// by locking the parent row, then counts and inserts in the same transaction.
func (s *PostgresStore) InsertSearchIfUnderLimit(ctx context.Context, rec *model.PriceSearch, since time.Time, limit int) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = time.Now().UTC()

	pricesJSON, err := json.Marshal(rec.Prices)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal prices")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: begin insert search")
	}
	defer tx.Rollback(ctx)

	var lockedID string
	err = tx.QueryRow(ctx,
		`SELECT id FROM puzzles WHERE id = $1 FOR UPDATE`, rec.PuzzleID,
	).Scan(&lockedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, eris.Wrap(err, "postgres: lock puzzle")
	}

	var count int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM price_searches WHERE puzzle_id = $1 AND search_date >= $2`,
		rec.PuzzleID, since.UTC(),
	).Scan(&count)
	if err != nil {
		return false, eris.Wrap(err, "postgres: count window searches")
	}
	if count >= limit {
		return false, nil
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO price_searches (id, puzzle_id, user_id, search_date, prices,
			puzzle_condition, puzzle_pieces_count, puzzle_complete, puzzle_has_box, puzzle_author,
			source_image_ref, estimator_version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.PuzzleID, rec.UserID, rec.SearchDate.UTC(), string(pricesJSON),
		string(rec.Snapshot.Condition), rec.Snapshot.PiecesCount, rec.Snapshot.Complete,
		rec.Snapshot.HasBox, textOrNil(rec.Snapshot.Author),
		textOrNil(rec.SourceImageRef), rec.EstimatorVersion, rec.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert search")
	}
	if err := tx.Commit(ctx); err != nil {
		return false, eris.Wrap(err, "postgres: commit insert search")
	}
	return true, nil
}

// helpers

func textOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func floatOrNil(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}

func intOrNil(i int) any {
	if i == 0 {
		return nil
	}
	return i
}

func collectSearchesPgx(rows pgx.Rows) ([]model.PriceSearch, error) {
	var searches []model.PriceSearch
	for rows.Next() {
		var rec model.PriceSearch
		var pricesJSON []byte
		var author, imageRef *string

		err := rows.Scan(&rec.ID, &rec.PuzzleID, &rec.UserID, &rec.SearchDate, &pricesJSON,
			&rec.Snapshot.Condition, &rec.Snapshot.PiecesCount, &rec.Snapshot.Complete,
			&rec.Snapshot.HasBox, &author, &imageRef, &rec.EstimatorVersion, &rec.CreatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan search")
		}
		if err := json.Unmarshal(pricesJSON, &rec.Prices); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal prices")
		}
		if author != nil {
			rec.Snapshot.Author = *author
		}
		if imageRef != nil {
			rec.SourceImageRef = *imageRef
		}
		searches = append(searches, rec)
	}
	return searches, eris.Wrap(rows.Err(), "postgres: iterate searches")
}
