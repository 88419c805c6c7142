package httpserver

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordler/internal/game"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error    string   `json:"error"`
	Message  string   `json:"message,omitempty"`
	Players  []string `json:"players,omitempty"`
	Expected string   `json:"expected,omitempty"`
}

// writeError maps engine errors to status codes and stable error codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *game.ValidationError
		terr *game.TurnError
		berr *game.BusyError
		cerr *game.CapacityError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Reason.Code(), Message: verr.Error()})
	case errors.As(err, &terr):
		writeJSON(w, http.StatusConflict, errorBody{Error: "not_your_turn", Message: terr.Error(), Expected: terr.Expected})
	case errors.As(err, &berr):
		writeJSON(w, http.StatusConflict, errorBody{Error: "busy", Message: berr.Error(), Players: berr.Players})
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "capacity", Message: cerr.Error()})
	case errors.Is(err, game.ErrWordSourceUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "word_source_unavailable"})
	case errors.Is(err, game.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no_active_game"})
	case errors.Is(err, game.ErrNotParticipant):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "not_participant"})
	case errors.Is(err, game.ErrSessionClosed):
		writeJSON(w, http.StatusConflict, errorBody{Error: "session_closed"})
	case errors.Is(err, errWrongChannel):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "wrong_channel"})
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal"})
	}
}
