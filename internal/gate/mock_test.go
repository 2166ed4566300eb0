package gate

import (
	"context"
	"time"

	"github.com/piececount/puzzledex/internal/estimator"
	"github.com/piececount/puzzledex/internal/model"
	"github.com/piececount/puzzledex/internal/store"
)

// mockStore implements Store for gate tests.
type mockStore struct {
	puzzle  *model.Puzzle
	photo   *model.Photo
	history []model.PriceSearch

	getErr    error
	listErr   error
	insertErr error
	// insertFull simulates the window filling between the read check and
	// the conditional insert.
	insertFull bool

	inserted     []*model.PriceSearch
	listedSince  []time.Time
	insertedAt   []time.Time
	insertLimits []int
}

func (m *mockStore) GetPuzzle(_ context.Context, userID, id string) (*model.Puzzle, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.puzzle == nil || m.puzzle.ID != id || m.puzzle.UserID != userID {
		return nil, store.ErrNotFound
	}
	return m.puzzle, nil
}

func (m *mockStore) PrimaryPhoto(_ context.Context, _ string) (*model.Photo, error) {
	return m.photo, nil
}

func (m *mockStore) ListSearchesSince(_ context.Context, _ string, since time.Time) ([]model.PriceSearch, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.listedSince = append(m.listedSince, since)
	return WithinWindow(m.history, since), nil
}

func (m *mockStore) InsertSearchIfUnderLimit(_ context.Context, rec *model.PriceSearch, since time.Time, limit int) (bool, error) {
	m.insertedAt = append(m.insertedAt, since)
	m.insertLimits = append(m.insertLimits, limit)
	if m.insertErr != nil {
		return false, m.insertErr
	}
	if m.insertFull {
		return false, nil
	}
	m.inserted = append(m.inserted, rec)
	return true, nil
}

// mockEstimator implements estimator.Estimator with a func field.
type mockEstimator struct {
	calls    int
	lastReq  estimator.Request
	lastCtx  context.Context
	estimate func(req estimator.Request) (*estimator.Estimation, error)
}

func (m *mockEstimator) Estimate(ctx context.Context, req estimator.Request) (*estimator.Estimation, error) {
	m.calls++
	m.lastReq = req
	m.lastCtx = ctx
	if m.estimate != nil {
		return m.estimate(req)
	}
	return &estimator.Estimation{
		Prices: []model.PriceEstimate{
			{Country: "Italy", CountryCode: "IT", Currency: "EUR", AvgPrice: 25, MinPrice: 18, MaxPrice: 35, AvailabilityNotes: "Common"},
			{Country: "Germany", CountryCode: "DE", Currency: "EUR", AvgPrice: 28, MinPrice: 20, MaxPrice: 40, AvailabilityNotes: "Medium"},
		},
		Version: "claude-sonnet-4-5-20250929",
	}, nil
}
