package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/akshaychugh/betterreads/internal/library"
	"github.com/akshaychugh/betterreads/internal/logging"
	mw "github.com/akshaychugh/betterreads/internal/web/middleware"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		logging.FromContext(r.Context()).Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleShelfCounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.UserID(r.Context())
	if !ok {
		respondErrorMessage(w, http.StatusUnauthorized, "no authenticated user")
		return
	}

	counts, err := s.stats.ShelfCounts(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shelf_counts": counts})
}

func (s *Server) handleLibraryStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.UserID(r.Context())
	if !ok {
		respondErrorMessage(w, http.StatusUnauthorized, "no authenticated user")
		return
	}

	stats, err := s.stats.LibraryStats(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleListBooks returns the user's books, filterable by shelf and
// sortable by a whitelisted column.
func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.UserID(r.Context())
	if !ok {
		respondErrorMessage(w, http.StatusUnauthorized, "no authenticated user")
		return
	}

	query, err := bookQueryFromRequest(r)
	if err != nil {
		respondErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	books, err := s.store.ListBooks(r.Context(), userID, query)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"books": books,
		"count": len(books),
	})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.UserID(r.Context())
	if !ok {
		respondErrorMessage(w, http.StatusUnauthorized, "no authenticated user")
		return
	}

	books, err := s.stats.Recommendations(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": books})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.summary == nil {
		respondErrorMessage(w, http.StatusServiceUnavailable, "summary generation is not configured")
		return
	}

	userID, ok := mw.UserID(r.Context())
	if !ok {
		respondErrorMessage(w, http.StatusUnauthorized, "no authenticated user")
		return
	}

	stats, err := s.stats.LibraryStats(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	text, err := s.summary.GenerateSummary(r.Context(), stats)
	if err != nil {
		logging.FromContext(r.Context()).Error("summary generation failed", "error", err)
		respondErrorMessage(w, http.StatusBadGateway, "summary generation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": text})
}

var errInvalidLimit = errors.New("limit must be a non-negative integer")

func bookQueryFromRequest(r *http.Request) (library.BookQuery, error) {
	q := library.BookQuery{
		Shelf:   r.URL.Query().Get("shelf"),
		OrderBy: r.URL.Query().Get("sort"),
		Desc:    r.URL.Query().Get("order") == "desc",
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return q, errInvalidLimit
		}
		q.Limit = limit
	}
	return q, nil
}
