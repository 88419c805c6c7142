// internal/httpserver/routes_admin.go
//
// Admin routes (X-Admin-Key):
//   - GET    /admin/sessions                   → live sessions, answers hidden
//   - DELETE /admin/sessions/{id}              → drop a session without scoring it
//   - PUT    /admin/scopes/{scopeID}/channel   → bind or unbind game commands
//   - PUT    /admin/scopes/{scopeID}/language  → language for new sessions

package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
)

type channelReq struct {
	ChannelID string `json:"channelId"` // empty clears the binding
}

type languageReq struct {
	Language string `json:"language"`
}

func (s *Server) handleSetChannel(w http.ResponseWriter, r *http.Request) {
	var req channelReq
	if !decodeJSON(w, r, &req) {
		return
	}
	scopeID := chi.URLParam(r, "scopeID")
	channelID := strings.TrimSpace(req.ChannelID)
	if err := s.settings.SetChannelBinding(r.Context(), scopeID, channelID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"scopeId": scopeID, "channelId": channelID})
}

func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageReq
	if !decodeJSON(w, r, &req) {
		return
	}
	tag, err := language.Parse(strings.TrimSpace(req.Language))
	if err != nil || !s.words.Supports(tag) {
		supported := make([]string, 0)
		for _, t := range s.words.Languages() {
			supported = append(supported, t.String())
		}
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "unsupported_language",
			Message: "supported: " + strings.Join(supported, ", "),
		})
		return
	}
	scopeID := chi.URLParam(r, "scopeID")
	if err := s.settings.SetLanguage(r.Context(), scopeID, tag); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"scopeId": scopeID, "language": tag.String()})
}

// handleListSessions lists live sessions without their answers.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	entries := s.registry.Snapshot()
	out := make([]sessionView, 0, len(entries))
	for _, e := range entries {
		out = append(out, viewOf(e.Session))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleRemoveSession drops a live session without scoring it.
func (s *Server) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.registry.Remove(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.hub.Finish(r.Context(), id, "This game was closed by an administrator.")
	log.Info().Str("session", id).Str("scope", sess.ScopeID).Msg("session removed by admin")
	writeJSON(w, http.StatusOK, viewOf(sess))
}
