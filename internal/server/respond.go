package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/piececount/puzzledex/internal/gate"
	"github.com/piececount/puzzledex/internal/store"
)

type errorBody struct {
	Error string `json:"error"`
}

type rateLimitedBody struct {
	Error         string    `json:"error"`
	WeekCount     int       `json:"searches_this_week"`
	Limit         int       `json:"limit"`
	NextAvailable time.Time `json:"next_available"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

// writeError maps domain errors onto HTTP statuses. The not-saved case is
// handled by the price handler itself because it still carries a payload.
func writeError(w http.ResponseWriter, err error) {
	var rateLimited *gate.RateLimitedError
	var contract *gate.ContractViolationError
	var unavailable *gate.UnavailableError

	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "puzzle not found"})
	case errors.Is(err, gate.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "not authenticated"})
	case errors.As(err, &rateLimited):
		writeJSON(w, http.StatusTooManyRequests, rateLimitedBody{
			Error:         "weekly search limit reached",
			WeekCount:     rateLimited.WeekCount,
			Limit:         rateLimited.Limit,
			NextAvailable: rateLimited.NextAvailable,
		})
	case errors.As(err, &contract):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: contract.Error()})
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "price estimator unavailable, try again later"})
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
