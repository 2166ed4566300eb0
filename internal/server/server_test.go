package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piececount/puzzledex/internal/estimator"
	"github.com/piececount/puzzledex/internal/gate"
	"github.com/piececount/puzzledex/internal/model"
	"github.com/piececount/puzzledex/internal/monitoring"
	"github.com/piececount/puzzledex/internal/stats"
	"github.com/piececount/puzzledex/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// stubEstimator implements estimator.Estimator with a swappable func.
type stubEstimator struct {
	fn func() (*estimator.Estimation, error)
}

func (s *stubEstimator) Estimate(context.Context, estimator.Request) (*estimator.Estimation, error) {
	if s.fn != nil {
		return s.fn()
	}
	return &estimator.Estimation{
		Prices: []model.PriceEstimate{
			{Country: "Italy", CountryCode: "IT", Currency: "EUR", AvgPrice: 25, MinPrice: 18, MaxPrice: 35, AvailabilityNotes: "Common"},
		},
		Version: "test-model",
	}, nil
}

type testServer struct {
	ts  *httptest.Server
	est *stubEstimator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	est := &stubEstimator{}
	metrics := monitoring.NewMetrics()
	g := gate.New(st, est, gate.WithMetrics(metrics))
	srv := New(st, g, stats.NewCollector(st), metrics, map[string]string{"secret-token": "user-1"}, 0)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testServer{ts: ts, est: est}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.ts.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (s *testServer) createPuzzle(t *testing.T) model.Puzzle {
	t.Helper()
	resp := s.do(t, "POST", "/api/puzzles", map[string]any{
		"title":        "Neuschwanstein Castle",
		"author":       "Ravensburger",
		"pieces_count": 1000,
		"complete":     true,
		"has_box":      true,
		"condition":    "good",
	}, "secret-token")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[model.Puzzle](t, resp)
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, "GET", "/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, "GET", "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, "GET", "/api/puzzles", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, "GET", "/api/puzzles", nil, "wrong-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPuzzleCRUD(t *testing.T) {
	s := newTestServer(t)
	created := s.createPuzzle(t)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "user-1", created.UserID)

	resp := s.do(t, "GET", "/api/puzzles/"+created.ID, nil, "secret-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[model.Puzzle](t, resp)
	assert.Equal(t, "Neuschwanstein Castle", got.Title)

	created.Title = "Renamed"
	resp = s.do(t, "PUT", "/api/puzzles/"+created.ID, created, "secret-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, "GET", "/api/puzzles", nil, "secret-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[struct {
		Count int `json:"count"`
	}](t, resp)
	assert.Equal(t, 1, list.Count)

	resp = s.do(t, "DELETE", "/api/puzzles/"+created.ID, nil, "secret-token")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, "GET", "/api/puzzles/"+created.ID, nil, "secret-token")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreatePuzzleValidation(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, "POST", "/api/puzzles", map[string]any{"pieces_count": 100}, "secret-token")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, "POST", "/api/puzzles", map[string]any{"title": "X", "condition": "mint"}, "secret-token")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetPuzzleMissing(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, "GET", "/api/puzzles/nope", nil, "secret-token")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type priceResponse struct {
	Result  gate.Result `json:"result"`
	Warning string      `json:"warning"`
}

func TestPriceLookupAndCache(t *testing.T) {
	s := newTestServer(t)
	p := s.createPuzzle(t)
	path := fmt.Sprintf("/api/puzzles/%s/price", p.ID)

	resp := s.do(t, "POST", path, nil, "secret-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decode[priceResponse](t, resp)
	assert.False(t, first.Result.Cached)
	assert.True(t, first.Result.Saved)
	assert.Equal(t, 1, first.Result.WeekCount)
	require.Len(t, first.Result.Prices, 1)

	resp = s.do(t, "POST", path, nil, "secret-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[priceResponse](t, resp)
	assert.True(t, second.Result.Cached)
	assert.Equal(t, first.Result.SearchID, second.Result.SearchID)
}

func TestPriceRateLimit(t *testing.T) {
	s := newTestServer(t)
	p := s.createPuzzle(t)
	path := fmt.Sprintf("/api/puzzles/%s/price?force=true", p.ID)

	for i := 0; i < 2; i++ {
		resp := s.do(t, "POST", path, nil, "secret-token")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := s.do(t, "POST", path, nil, "secret-token")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	body := decode[rateLimitedBody](t, resp)
	assert.Equal(t, 2, body.WeekCount)
	assert.Equal(t, 2, body.Limit)
	assert.False(t, body.NextAvailable.IsZero())
}

func TestPriceEstimatorUnavailable(t *testing.T) {
	s := newTestServer(t)
	p := s.createPuzzle(t)
	s.est.fn = func() (*estimator.Estimation, error) {
		return nil, errors.New("upstream down")
	}

	resp := s.do(t, "POST", fmt.Sprintf("/api/puzzles/%s/price", p.ID), nil, "secret-token")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPriceContractViolation(t *testing.T) {
	s := newTestServer(t)
	p := s.createPuzzle(t)
	s.est.fn = func() (*estimator.Estimation, error) {
		return nil, &estimator.ContractError{Reason: "empty price list"}
	}

	resp := s.do(t, "POST", fmt.Sprintf("/api/puzzles/%s/price", p.ID), nil, "secret-token")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestPriceOnMissingPuzzle(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, "POST", "/api/puzzles/nope/price", nil, "secret-token")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSearchHistory(t *testing.T) {
	s := newTestServer(t)
	p := s.createPuzzle(t)

	resp := s.do(t, "POST", fmt.Sprintf("/api/puzzles/%s/price", p.ID), nil, "secret-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, "GET", fmt.Sprintf("/api/puzzles/%s/searches", p.ID), nil, "secret-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Searches []model.PriceSearch `json:"searches"`
	}](t, resp)
	require.Len(t, body.Searches, 1)
	assert.Equal(t, "test-model", body.Searches[0].EstimatorVersion)
}

func TestPhotosEndpoints(t *testing.T) {
	s := newTestServer(t)
	p := s.createPuzzle(t)
	base := fmt.Sprintf("/api/puzzles/%s/photos", p.ID)

	resp := s.do(t, "POST", base, map[string]string{"storage_path": "cover.jpg"}, "secret-token")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decode[model.Photo](t, resp)

	resp = s.do(t, "POST", base, map[string]string{"storage_path": "back.jpg"}, "secret-token")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	second := decode[model.Photo](t, resp)

	resp = s.do(t, "PUT", base+"/order", map[string]any{"photo_ids": []string{second.ID, first.ID}}, "secret-token")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, "GET", base, nil, "secret-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Photos []model.Photo `json:"photos"`
	}](t, resp)
	require.Len(t, body.Photos, 2)
	assert.Equal(t, "back.jpg", body.Photos[0].StoragePath, "reordered cover first")
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.createPuzzle(t)

	resp := s.do(t, "GET", "/api/stats", nil, "secret-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decode[stats.Summary](t, resp)
	assert.Equal(t, 1, summary.TotalPuzzles)
}
