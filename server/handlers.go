package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/poiesic/plexrec/core"
	"github.com/poiesic/plexrec/metadata"
)

const (
	defaultK       = 10
	maxK           = 200
	defaultPreview = 20
	defaultHistory = 50
)

var errBadRequest = errors.New("bad request")

type itemResponse struct {
	Position    int               `json:"position"`
	OrigIndex   int               `json:"orig_index"`
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Genres      string            `json:"genres,omitempty"`
	Year        string            `json:"year,omitempty"`
	Rating      *float64          `json:"rating,omitempty"`
	Popularity  *float64          `json:"popularity,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

type recommendationResponse struct {
	itemResponse
	Score float32 `json:"score"`
}

type historyResponse struct {
	ID        int64     `json:"id"`
	Kind      core.Kind `json:"kind"`
	Query     string    `json:"query"`
	ItemID    string    `json:"item_id"`
	ItemTitle string    `json:"item_title"`
	Timestamp time.Time `json:"timestamp"`
}

type historyRequest struct {
	Query   string   `json:"query"`
	ItemIDs []string `json:"item_ids"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toItem(it core.Item) itemResponse {
	return itemResponse{
		Position:    it.Position,
		OrigIndex:   it.OrigIndex,
		ID:          it.ID,
		Title:       it.Title,
		Description: it.Description,
		Genres:      it.Genres,
		Year:        it.Year,
		Rating:      it.Rating,
		Popularity:  it.Popularity,
		Extra:       it.Extra,
	}
}

func toItems(items []core.Item) []itemResponse {
	out := make([]itemResponse, len(items))
	for i := range items {
		out[i] = toItem(items[i])
	}
	return out
}

func toRecommendations(recs []core.Recommendation) []recommendationResponse {
	out := make([]recommendationResponse, len(recs))
	for i, rec := range recs {
		out[i] = recommendationResponse{itemResponse: toItem(rec.Item), Score: rec.Score}
	}
	return out
}

func toHistory(entries []*core.HistoryEntry) []historyResponse {
	out := make([]historyResponse, len(entries))
	for i, e := range entries {
		out[i] = historyResponse{
			ID:        e.ID,
			Kind:      e.Kind,
			Query:     e.Query,
			ItemID:    e.ItemID,
			ItemTitle: e.ItemTitle,
			Timestamp: e.Timestamp,
		}
	}
	return out
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) recommend(w http.ResponseWriter, r *http.Request) {
	kind, k, err := kindAndInt(r, "k", defaultK)
	if err != nil {
		s.writeError(w, err)
		return
	}
	query := r.URL.Query().Get("q")
	recs, err := s.svc.RecommendByTitle(r.Context(), kind, query, k)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"kind":            kind,
		"query":           query,
		"recommendations": toRecommendations(recs),
	})
}

func (s *Server) similar(w http.ResponseWriter, r *http.Request) {
	kind, k, err := kindAndInt(r, "k", defaultK)
	if err != nil {
		s.writeError(w, err)
		return
	}
	position, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: position must be an integer", errBadRequest))
		return
	}
	recs, err := s.svc.RecommendForItem(r.Context(), kind, position, k)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"kind":            kind,
		"position":        position,
		"recommendations": toRecommendations(recs),
	})
}

func (s *Server) popular(w http.ResponseWriter, r *http.Request) {
	kind, k, err := kindAndInt(r, "k", defaultK)
	if err != nil {
		s.writeError(w, err)
		return
	}
	online, _ := strconv.ParseBool(r.URL.Query().Get("online"))
	items, err := s.svc.Popular(r.Context(), kind, k, online)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "items": toItems(items)})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	kind, k, err := kindAndInt(r, "k", defaultK)
	if err != nil {
		s.writeError(w, err)
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.writeError(w, fmt.Errorf("%w: q is required", errBadRequest))
		return
	}
	items, err := s.svc.SearchOnline(r.Context(), kind, query, k)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "query": query, "items": toItems(items)})
}

func (s *Server) allTime(w http.ResponseWriter, r *http.Request) {
	kind, k, err := kindAndInt(r, "k", defaultK)
	if err != nil {
		s.writeError(w, err)
		return
	}
	items, err := s.svc.AllTime(r.Context(), kind, k)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "items": toItems(items)})
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	kind, n, err := kindAndInt(r, "n", defaultPreview)
	if err != nil {
		s.writeError(w, err)
		return
	}
	items, err := s.svc.Preview(r.Context(), kind, n)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "items": toItems(items)})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	kind, limit, err := kindAndInt(r, "limit", defaultHistory)
	if err != nil {
		s.writeError(w, err)
		return
	}
	entries, err := s.svc.History(r.Context(), kind, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "history": toHistory(entries)})
}

func (s *Server) recordHistory(w http.ResponseWriter, r *http.Request) {
	kind, err := core.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req historyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if len(req.ItemIDs) == 0 {
		s.writeError(w, fmt.Errorf("%w: item_ids is required", errBadRequest))
		return
	}
	entries, err := s.svc.RecordItems(r.Context(), kind, req.Query, req.ItemIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"kind": kind, "history": toHistory(entries)})
}

// kindAndInt parses the {kind} path parameter and an optional positive
// integer query parameter, capped at maxK.
func kindAndInt(r *http.Request, name string, def int) (core.Kind, int, error) {
	kind, err := core.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return "", 0, err
	}
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return kind, def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return "", 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
	}
	return kind, min(n, maxK), nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, core.ErrInvalidKind):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, core.ErrCatalogUnavailable), errors.Is(err, metadata.ErrNoAPIKey):
		return http.StatusServiceUnavailable
	case errors.Is(err, metadata.ErrUnauthorized), errors.Is(err, metadata.ErrUnexpectedStatus):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "err", err)
	}
}
