// internal/httpserver/routes_stats.go
//
// Read-only stats routes: leaderboard, the caller's points and ranks, and a
// player's detailed history.

package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/wordler/internal/stats"
)

// handleLeaderboard serves GET /leaderboard?scope=guild|global&scopeId=&limit=
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scopeID := stats.GlobalScope
	switch q.Get("scope") {
	case "", "global":
	case "guild":
		scopeID = q.Get("scopeId")
		if scopeID == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing_scope"})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_scope", Message: "scope must be guild or global"})
		return
	}

	limit := stats.DefaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_limit"})
			return
		}
		limit = n
	}

	entries, err := s.stats.Leaderboard(r.Context(), scopeID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scopeId": scopeID, "entries": entries})
}

// handlePoints serves GET /points?scopeId= for the caller.
func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	totals, err := s.stats.Points(r.Context(), r.URL.Query().Get("scopeId"), currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// handlePlayerStats serves GET /stats/{playerID}.
func (s *Server) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	d, err := s.stats.PlayerStats(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
