package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piececount/puzzledex/internal/estimator"
	"github.com/piececount/puzzledex/internal/model"
	"github.com/piececount/puzzledex/internal/store"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testPuzzle() *model.Puzzle {
	return &model.Puzzle{
		ID:          "puzzle-1",
		UserID:      "user-1",
		Title:       "Neuschwanstein Castle",
		Author:      "Ravensburger",
		PiecesCount: 1000,
		Complete:    true,
		HasBox:      true,
		Condition:   model.ConditionGood,
	}
}

// searchAt builds a history record made by the same puzzle state at the
// given lookup time.
func searchAt(p *model.Puzzle, date time.Time) model.PriceSearch {
	return model.PriceSearch{
		ID:         "search-" + date.Format("0102"),
		PuzzleID:   p.ID,
		UserID:     p.UserID,
		SearchDate: date,
		Prices: []model.PriceEstimate{
			{Country: "Italy", CountryCode: "IT", Currency: "EUR", AvgPrice: 20, MinPrice: 15, MaxPrice: 30},
		},
		Snapshot: p.PriceSnapshot(),
	}
}

func newTestGate(st *mockStore, est *mockEstimator) *Gate {
	return New(st, est, WithClock(func() time.Time { return testNow }))
}

func TestRequestPriceUnauthenticated(t *testing.T) {
	g := newTestGate(&mockStore{}, &mockEstimator{})

	_, err := g.RequestPrice(context.Background(), "", "puzzle-1", false)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRequestPricePuzzleNotFound(t *testing.T) {
	est := &mockEstimator{}
	g := newTestGate(&mockStore{}, est)

	_, err := g.RequestPrice(context.Background(), "user-1", "missing", false)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, est.calls, "missing puzzle must not reach the estimator")
}

func TestRequestPriceOtherUsersPuzzle(t *testing.T) {
	st := &mockStore{puzzle: testPuzzle()}
	g := newTestGate(st, &mockEstimator{})

	_, err := g.RequestPrice(context.Background(), "user-2", "puzzle-1", false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRequestPriceCacheHit(t *testing.T) {
	p := testPuzzle()
	cached := searchAt(p, testNow.Add(-3*24*time.Hour))
	st := &mockStore{puzzle: p, history: []model.PriceSearch{cached}}
	est := &mockEstimator{}
	g := newTestGate(st, est)

	result, err := g.RequestPrice(context.Background(), "user-1", "puzzle-1", false)
	require.NoError(t, err)

	assert.True(t, result.Cached)
	assert.True(t, result.Saved)
	assert.Equal(t, cached.ID, result.SearchID)
	assert.Equal(t, cached.Prices, result.Prices)
	assert.Equal(t, cached.SearchDate.Add(Window), result.CacheValidUntil)
	assert.Equal(t, 1, result.WeekCount)
	assert.Equal(t, 1, result.Remaining)

	assert.Zero(t, est.calls, "cache hit must not call the estimator")
	assert.Empty(t, st.inserted, "cache hit must not write")
}

func TestRequestPriceCacheHitAtFullLimit(t *testing.T) {
	// Cache check runs before the rate limit: a full window with a valid
	// cached result still serves the cache, it does not 429.
	p := testPuzzle()
	newer := searchAt(p, testNow.Add(-1*24*time.Hour))
	older := searchAt(p, testNow.Add(-5*24*time.Hour))
	st := &mockStore{puzzle: p, history: []model.PriceSearch{newer, older}}
	g := newTestGate(st, &mockEstimator{})

	result, err := g.RequestPrice(context.Background(), "user-1", "puzzle-1", false)
	require.NoError(t, err)
	assert.True(t, result.Cached)
	assert.Equal(t, newer.ID, result.SearchID)
	assert.Equal(t, 2, result.WeekCount)
	assert.Equal(t, 0, result.Remaining)
}

func TestRequestPriceCacheIgnoresExpiredSearch(t *testing.T) {
	// A search older than the window neither serves the cache nor counts
	// against the limit.
	p := testPuzzle()
	expired := searchAt(p, testNow.Add(-8*24*time.Hour))
	st := &mockStore{puzzle: p, history: []model.PriceSearch{expired}}
	est := &mockEstimator{}
	g := newTestGate(st, est)

	result, err := g.RequestPrice(context.Background(), "user-1", "puzzle-1", false)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, 1, est.calls)
	assert.Equal(t, 1, result.WeekCount)
}

func TestRequestPriceSnapshotChangeInvalidatesCache(t *testing.T) {
	p := testPuzzle()
	cached := searchAt(p, testNow.Add(-2*24*time.Hour))
	p.Condition = model.ConditionDamaged // edited after the search
	st := &mockStore{puzzle: p, history: []model.PriceSearch{cached}}
	est := &mockEstimator{}
	g := newTestGate(st, est)

	result, err := g.RequestPrice(context.Background(), "user-1", "puzzle-1", false)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, 1, est.calls)
	require.Len(t, st.inserted, 1)
	assert.Equal(t, model.ConditionDamaged, st.inserted[0].Snapshot.Condition)
}

func TestRequestPriceStaleCacheStillCountsTowardLimit(t *testing.T) {
	// An invalidated cache result does not free its rate-limit slot: two
	// in-window searches with a changed snapshot means 429, not a lookup.
	p := testPuzzle()
	s1 := searchAt(p, testNow.Add(-1*24*time.Hour))
	s2 := searchAt(p, testNow.Add(-4*24*time.Hour))
	p.PiecesCount = 1500
	st := &mockStore{puzzle: p, history: []model.PriceSearch{s1, s2}}
	est := &mockEstimator{}
	g := newTestGate(st, est)

	_, err := g.RequestPrice(context.Background(), "user-1", "puzzle-1", false)

	var rateLimited *RateLimitedError
	require.ErrorAs(t, err, &rateLimited)
	assert.Equal(t, 2, rateLimited.WeekCount)
	assert.Equal(t, WeeklySearchLimit, rateLimited.Limit)
	assert.Equal(t, s2.SearchDate.Add(Window), rateLimited.NextAvailable,
		"next slot opens when the oldest in-window search expires")
	assert.Zero(t, est.calls)
}

func TestRequestPriceForceRefreshSkipsCache(t *testing.T) {
	p := testPuzzle()
	cached := searchAt(p, testNow.Add(-1*24*time.Hour))
	st := &mockStore{puzzle: p, history: []model.PriceSearch{cached}}
	est := &mockEstimator{}
	g := newTestGate(st, est)

	result, err := g.RequestPrice(context.Background(), "user-1", "puzzle-1", true)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, 1, est.calls)
	assert.Equal(t, 2, result.WeekCount)
	assert.Equal(t, 0, result.Remaining)
}

func TestRequestPriceForceRefreshStillRateLimited(t *testing.T) {
	p := testPuzzle()
	st := &mockStore{puzzle: p, history: []model.PriceSearch{
		searchAt(p, testNow.Add(-1*24*time.Hour)),
		searchAt(p, testNow.Add(-2*24*time.Hour)),
	}}
	est := &mockEstimator{}
	g := newTestGate(st, est)

	_, err := g.RequestPrice(context.Background(), "user-1", "puzzle-1", true)

	var rateLimited *RateLimitedError
	assert.ErrorAs(t, err, &rateLimited)
	assert.Zero(t, est.calls, "force refresh must not bypass the weekly limit")
}

func TestRequestPriceFreshLookup(t *testing.T) {
	p := testPuzzle()
	photo := &model.Photo{ID: "photo-1", PuzzleID: p.ID, StoragePath: "https://img.example/cover.jpg"}
	st := &mockStore{puzzle: p, photo: photo}
	est := &mockEstimator{}
	g := newTestGate(st, est)

	result, err := g.RequestPrice(context.Background(), "user-1", "puzzle-1", false)
	require.NoError(t, err)

	assert.False(t, result.Cached)
	assert.True(t, result.Saved)
	assert.NotEmpty(t, result.SearchID)
	assert.Equal(t, testNow, result.SearchDate)
	assert.Equal(t, 1, result.WeekCount)
	assert.Equal(t, 1, result.Remaining)
	assert.Len(t, result.Prices, 2)

	// The estimator sees the current snapshot and the primary photo.
	assert.Equal(t, p.Title, est.lastReq.Title)
	assert.Equal(t, p.PiecesCount, est.lastReq.PiecesCount)
	assert.Equal(t, photo.StoragePath, est.lastReq.ImageURL)

	// Exactly one record, frozen from the serving state.
	require.Len(t, st.inserted, 1)
	rec := st.inserted[0]
	assert.Equal(t, result.SearchID, rec.ID)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, testNow, rec.SearchDate)
	assert.Equal(t, p.PriceSnapshot(), rec.Snapshot)
	assert.Equal(t, photo.StoragePath, rec.SourceImageRef)
	assert.Equal(t, "claude-sonnet-4-5-20250929", rec.EstimatorVersion)
}

func TestRequestPriceSameWindowForCheckAndInsert(t *testing.T) {
	st := &mockStore{puzzle: testPuzzle()}
	g := newTestGate(st, &mockEstimator{})

	_, err := g.RequestPrice(context.Background(), "user-1", "puzzle-1", false)
	require.NoError(t, err)

	require.Len(t, st.listedSince, 1)
	require.Len(t, st.insertedAt, 1)
	assert.Equal(t, st.listedSince[0], st.insertedAt[0],
		"read check and conditional insert must share one window boundary")
	assert.Equal(t, testNow.Add(-Window), st.listedSince[0])
	assert.Equal(t, []int{WeeklySearchLimit}, st.insertLimits)
}

func TestRequestPriceEstimatorUnavailable(t *testing.T) {
	st := &mockStore{puzzle: testPuzzle()}
	est := &mockEstimator{estimate: func(estimator.Request) (*estimator.Estimation, error) {
		return nil, errors.New("connection reset by peer")
	}}
	g := newTestGate(st, est)

	_, err := g.RequestPrice(context.Background(), "user-1", "puzzle-1", false)

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Empty(t, st.inserted, "failed lookup must not consume quota")
}

func TestRequestPriceContractViolation(t *testing.T) {
	st := &mockStore{puzzle: testPuzzle()}
	est := &mockEstimator{estimate: func(estimator.Request) (*estimator.Estimation, error) {
		return nil, &estimator.ContractError{Reason: "empty price list"}
	}}
	g := newTestGate(st, est)

	_, err := g.RequestPrice(context.Background(), "user-1", "puzzle-1", false)

	var contract *ContractViolationError
	require.ErrorAs(t, err, &contract)
	assert.Equal(t, "empty price list", contract.Reason)
	assert.Empty(t, st.inserted)
}

func TestRequestPriceWindowFilledDuringLookup(t *testing.T) {
	st := &mockStore{puzzle: testPuzzle(), insertFull: true}
	est := &mockEstimator{}
	g := newTestGate(st, est)

	result, err := g.RequestPrice(context.Background(), "user-1", "puzzle-1", false)

	require.ErrorIs(t, err, ErrSearchNotSaved)
	require.NotNil(t, result, "prices from the paid lookup are still returned")
	assert.False(t, result.Saved)
	assert.Empty(t, result.SearchID)
	assert.Len(t, result.Prices, 2)
	assert.Equal(t, 0, result.WeekCount, "quota not consumed")
}

func TestRequestPriceInsertFailure(t *testing.T) {
	st := &mockStore{puzzle: testPuzzle(), insertErr: errors.New("disk full")}
	g := newTestGate(st, &mockEstimator{})

	result, err := g.RequestPrice(context.Background(), "user-1", "puzzle-1", false)

	require.ErrorIs(t, err, ErrSearchNotSaved)
	require.NotNil(t, result)
	assert.False(t, result.Saved)
	assert.Len(t, result.Prices, 2)
}

func TestRequestPriceSurvivesCallerCancellation(t *testing.T) {
	// A disconnecting client must not abort a paid lookup that already
	// started: the estimator runs on a detached context.
	st := &mockStore{puzzle: testPuzzle()}
	est := &mockEstimator{}
	g := newTestGate(st, est)

	ctx, cancel := context.WithCancel(context.Background())
	var ctxErrDuringCall error
	est.estimate = func(estimator.Request) (*estimator.Estimation, error) {
		cancel() // client goes away mid-call
		ctxErrDuringCall = est.lastCtx.Err()
		return &estimator.Estimation{
			Prices:  []model.PriceEstimate{{Country: "Italy", CountryCode: "IT", Currency: "EUR", AvgPrice: 20}},
			Version: "test",
		}, nil
	}

	result, err := g.RequestPrice(ctx, "user-1", "puzzle-1", false)
	require.NoError(t, err)
	assert.NoError(t, ctxErrDuringCall, "estimator context must not inherit caller cancellation")
	assert.True(t, result.Saved, "completed lookup persisted despite disconnect")
	assert.Len(t, st.inserted, 1)
}

func TestRequestPriceHistoryLoadError(t *testing.T) {
	st := &mockStore{puzzle: testPuzzle(), listErr: errors.New("db gone")}
	est := &mockEstimator{}
	g := newTestGate(st, est)

	_, err := g.RequestPrice(context.Background(), "user-1", "puzzle-1", false)
	require.Error(t, err)
	assert.Zero(t, est.calls)
}
