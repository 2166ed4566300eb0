// Package gate implements the price-lookup gate: the sole authority deciding
// whether a price request is served from cache, rejected as rate-limited, or
// forwarded to the paid estimator.
package gate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/piececount/puzzledex/internal/estimator"
	"github.com/piececount/puzzledex/internal/model"
	"github.com/piececount/puzzledex/internal/monitoring"
)

// Store abstracts the record-store operations the gate needs. Satisfied by
// store.Store.
type Store interface {
	GetPuzzle(ctx context.Context, userID, id string) (*model.Puzzle, error)
	PrimaryPhoto(ctx context.Context, puzzleID string) (*model.Photo, error)
	ListSearchesSince(ctx context.Context, puzzleID string, since time.Time) ([]model.PriceSearch, error)
	InsertSearchIfUnderLimit(ctx context.Context, rec *model.PriceSearch, since time.Time, limit int) (bool, error)
}

// Result is the caller-facing outcome of a served price request. Cached
// distinguishes a cache hit from a fresh lookup; Saved is false only on the
// "lookup succeeded but was not saved" path, in which case the result is
// accompanied by ErrSearchNotSaved.
type Result struct {
	Prices          []model.PriceEstimate `json:"prices"`
	Cached          bool                  `json:"cached"`
	Saved           bool                  `json:"saved"`
	SearchID        string                `json:"search_id,omitempty"`
	SearchDate      time.Time             `json:"search_date"`
	CacheValidUntil time.Time             `json:"cache_valid_until,omitempty"`
	WeekCount       int                   `json:"searches_this_week"`
	Remaining       int                   `json:"searches_remaining"`
}

// Gate coordinates the cache check, the weekly rate limit, and the estimator
// call. It keeps no decision state between calls: every decision is a pure
// function of the queried history.
type Gate struct {
	store     Store
	estimator estimator.Estimator
	metrics   *monitoring.Metrics
	timeout   time.Duration
	now       func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithTimeout bounds the estimator call and the follow-up persist.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) { g.timeout = d }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New creates a Gate with a 45s default estimator timeout.
func New(st Store, est estimator.Estimator, opts ...Option) *Gate {
	g := &Gate{
		store:     st,
		estimator: est,
		timeout:   45 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequestPrice decides cache-hit, rate-limited, or fresh lookup for one
// (puzzle, user) request.
//
// The window boundary is computed once and applied to both the cache check
// and the rate-limit check. The only write is the search insert on the
// fresh-lookup path; every other path is a pure read.
//
// Two concurrent calls for the same puzzle can both pass the read-side
// rate-limit check; the store's conditional insert closes that race at write
// time. When the window filled while the estimator call was in flight, the
// prices are still returned (the paid lookup is not wasted) together with
// ErrSearchNotSaved, and no quota is consumed.
//
// The estimator call and the persist run on a context detached from the
// caller's cancellation, bounded by the gate timeout: a completed paid
// lookup is persisted even if the client disconnects mid-flight.
func (g *Gate) RequestPrice(ctx context.Context, userID, puzzleID string, forceRefresh bool) (*Result, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	now := g.now().UTC()
	windowStart := now.Add(-Window)

	puzzle, err := g.store.GetPuzzle(ctx, userID, puzzleID)
	if err != nil {
		return nil, err
	}
	current := puzzle.PriceSnapshot()

	searches, err := g.store.ListSearchesSince(ctx, puzzleID, windowStart)
	if err != nil {
		return nil, eris.Wrap(err, "gate: load search history")
	}
	weekCount := len(searches)

	// Cache path: newest in-window search with an unchanged snapshot.
	if weekCount > 0 && !forceRefresh {
		mostRecent := searches[0]
		if SnapshotsEqual(mostRecent.Snapshot, current) {
			g.metrics.IncDecision(monitoring.DecisionCacheHit)
			return &Result{
				Prices:          mostRecent.Prices,
				Cached:          true,
				Saved:           true,
				SearchID:        mostRecent.ID,
				SearchDate:      mostRecent.SearchDate,
				CacheValidUntil: cacheValidUntil(mostRecent.SearchDate),
				WeekCount:       weekCount,
				Remaining:       remaining(weekCount),
			}, nil
		}
		// Snapshot changed since the last search: the cache candidate is
		// stale, not an error.
		g.metrics.IncDecision(monitoring.DecisionInvalidated)
		zap.L().Info("price cache invalidated by puzzle edit",
			zap.String("puzzle_id", puzzleID),
			zap.String("search_id", mostRecent.ID),
		)
	}

	if weekCount >= WeeklySearchLimit {
		oldest := searches[weekCount-1]
		g.metrics.IncDecision(monitoring.DecisionRateLimited)
		return nil, &RateLimitedError{
			WeekCount:     weekCount,
			Limit:         WeeklySearchLimit,
			NextAvailable: nextAvailable(oldest.SearchDate),
		}
	}

	// Fresh lookup. Detach from the caller's cancellation so a paid call
	// that completes after a disconnect is still persisted.
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	imageRef := g.primaryPhotoRef(ctx, puzzleID)

	started := g.now()
	est, err := g.estimator.Estimate(lookupCtx, estimator.Request{
		Title:       puzzle.Title,
		Author:      current.Author,
		PiecesCount: current.PiecesCount,
		Condition:   current.Condition,
		Complete:    current.Complete,
		HasBox:      current.HasBox,
		Notes:       puzzle.Notes,
		ImageURL:    imageRef,
	})
	g.metrics.ObserveEstimator(g.now().Sub(started))
	if err != nil {
		var ce *estimator.ContractError
		if errors.As(err, &ce) {
			g.metrics.IncDecision(monitoring.DecisionContractViolation)
			zap.L().Error("estimator response outside contract",
				zap.String("puzzle_id", puzzleID),
				zap.String("reason", ce.Reason),
			)
			return nil, &ContractViolationError{Reason: ce.Reason}
		}
		g.metrics.IncDecision(monitoring.DecisionUnavailable)
		return nil, &UnavailableError{Err: err}
	}

	rec := &model.PriceSearch{
		ID:               uuid.New().String(),
		PuzzleID:         puzzleID,
		UserID:           userID,
		SearchDate:       now,
		Prices:           est.Prices,
		Snapshot:         current,
		SourceImageRef:   imageRef,
		EstimatorVersion: est.Version,
	}

	inserted, err := g.store.InsertSearchIfUnderLimit(lookupCtx, rec, windowStart, WeeklySearchLimit)
	if err != nil || !inserted {
		if err != nil {
			zap.L().Error("price search not persisted",
				zap.String("puzzle_id", puzzleID),
				zap.Error(err),
			)
		} else {
			zap.L().Warn("weekly window filled during lookup, search not persisted",
				zap.String("puzzle_id", puzzleID),
			)
		}
		g.metrics.IncDecision(monitoring.DecisionNotSaved)
		// Quota was not consumed, so the counters reflect the pre-call state.
		return &Result{
			Prices:     est.Prices,
			Saved:      false,
			SearchDate: now,
			WeekCount:  weekCount,
			Remaining:  remaining(weekCount),
		}, eris.Wrap(ErrSearchNotSaved, "gate: persist search")
	}

	g.metrics.IncDecision(monitoring.DecisionFresh)
	zap.L().Info("fresh price lookup recorded",
		zap.String("puzzle_id", puzzleID),
		zap.String("search_id", rec.ID),
		zap.Int("markets", len(est.Prices)),
		zap.Int("week_count", weekCount+1),
	)
	return &Result{
		Prices:     est.Prices,
		Cached:     false,
		Saved:      true,
		SearchID:   rec.ID,
		SearchDate: now,
		WeekCount:  weekCount + 1,
		Remaining:  remaining(weekCount + 1),
	}, nil
}

// primaryPhotoRef resolves the cover photo reference; failures only cost the
// estimator its image input.
func (g *Gate) primaryPhotoRef(ctx context.Context, puzzleID string) string {
	photo, err := g.store.PrimaryPhoto(ctx, puzzleID)
	if err != nil {
		zap.L().Warn("primary photo lookup failed",
			zap.String("puzzle_id", puzzleID),
			zap.Error(err),
		)
		return ""
	}
	if photo == nil {
		return ""
	}
	return photo.StoragePath
}
