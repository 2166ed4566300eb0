package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/piececount/puzzledex/internal/gate"
	"github.com/piececount/puzzledex/internal/model"
	"github.com/piececount/puzzledex/internal/store"
)

func (s *Server) handleCreatePuzzle(w http.ResponseWriter, r *http.Request) {
	var p model.Puzzle
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if p.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "title is required"})
		return
	}
	if p.Condition == "" {
		p.Condition = model.ConditionGood
	}
	if !p.Condition.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown condition"})
		return
	}

	p.ID = uuid.New().String()
	p.UserID = userID(r)
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.store.CreatePuzzle(r.Context(), &p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPuzzle(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPuzzle(r.Context(), userID(r), chi.URLParam(r, "puzzleID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdatePuzzle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "puzzleID")
	uid := userID(r)

	existing, err := s.store.GetPuzzle(r.Context(), uid, id)
	if err != nil {
		writeError(w, err)
		return
	}

	var p model.Puzzle
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if p.Condition != "" && !p.Condition.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown condition"})
		return
	}

	p.ID = existing.ID
	p.UserID = uid
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdatePuzzle(r.Context(), &p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePuzzle(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeletePuzzle(r.Context(), userID(r), chi.URLParam(r, "puzzleID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPuzzles(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)
	puzzles, err := s.store.ListPuzzles(r.Context(), userID(r), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"puzzles": puzzles, "count": len(puzzles)})
}

func filterFromQuery(r *http.Request) store.PuzzleFilter {
	q := r.URL.Query()
	filter := store.PuzzleFilter{
		Search:       q.Get("search"),
		Author:       q.Get("author"),
		SalePlatform: q.Get("sale_platform"),
		Condition:    model.Condition(q.Get("condition")),
		SortBy:       model.SortField(q.Get("sort_by")),
		SortDesc:     q.Get("sort_desc") == "true",
	}
	if v := q.Get("listed_for_sale"); v != "" {
		b := v == "true"
		filter.ListedForSale = &b
	}
	if v := q.Get("complete"); v != "" {
		b := v == "true"
		filter.Complete = &b
	}
	if v := q.Get("assembled"); v != "" {
		b := v == "true"
		filter.Assembled = &b
	}
	filter.MinPieces, _ = strconv.Atoi(q.Get("min_pieces"))
	filter.MaxPieces, _ = strconv.Atoi(q.Get("max_pieces"))
	filter.ProductionYear, _ = strconv.Atoi(q.Get("production_year"))
	filter.PurchaseYear, _ = strconv.Atoi(q.Get("purchase_year"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	return filter
}

func (s *Server) handleAddPhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "puzzleID")
	if _, err := s.store.GetPuzzle(r.Context(), userID(r), id); err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		StoragePath string `json:"storage_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StoragePath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "storage_path is required"})
		return
	}

	photo := &model.Photo{
		ID:          uuid.New().String(),
		PuzzleID:    id,
		StoragePath: req.StoragePath,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.AddPhoto(r.Context(), photo); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, photo)
}

func (s *Server) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "puzzleID")
	if _, err := s.store.GetPuzzle(r.Context(), userID(r), id); err != nil {
		writeError(w, err)
		return
	}
	photos, err := s.store.ListPhotos(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"photos": photos})
}

func (s *Server) handleReorderPhotos(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "puzzleID")
	if _, err := s.store.GetPuzzle(r.Context(), userID(r), id); err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		PhotoIDs []string `json:"photo_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.PhotoIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "photo_ids is required"})
		return
	}
	if err := s.store.ReorderPhotos(r.Context(), id, req.PhotoIDs); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRequestPrice runs the price-lookup gate. A completed lookup that
// could not be persisted is still a 200: the payload carries saved=false and
// a warning instead of an error status.
func (s *Server) handleRequestPrice(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	if r.ContentLength > 0 {
		var req struct {
			ForceRefresh bool `json:"force_refresh"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
			return
		}
		force = force || req.ForceRefresh
	}

	result, err := s.gate.RequestPrice(r.Context(), userID(r), chi.URLParam(r, "puzzleID"), force)
	if err != nil {
		if errors.Is(err, gate.ErrSearchNotSaved) && result != nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"result":  result,
				"warning": "lookup succeeded but was not saved; it does not count against the weekly limit",
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (s *Server) handleListSearches(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "puzzleID")
	if _, err := s.store.GetPuzzle(r.Context(), userID(r), id); err != nil {
		writeError(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	searches, err := s.store.ListSearches(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"searches": searches})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	summary, err := s.stats.Collect(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
