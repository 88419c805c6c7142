// internal/httpserver/routes_games.go
//
// Game command routes. Every route acts as the authenticated player.
//   - POST /games/solo         → start a solo game in a channel
//   - POST /games/multiplayer  → start a turn-based game; the caller plays first
//   - POST /games/guess        → guess in the caller's game in that scope and channel
//   - POST /games/giveup       → forfeit the caller's game in that scope and channel
//   - GET  /games/{id}         → public view of a live game (never the answer)

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordler/internal/game"
	"github.com/robalobadob/wordler/internal/session"
)

var errWrongChannel = errors.New("game commands are bound to another channel")

type startReq struct {
	ScopeID   string   `json:"scopeId"`
	ChannelID string   `json:"channelId"`
	Players   []string `json:"players"` // multiplayer only; the caller is added first
}

type startRes struct {
	SessionID string   `json:"sessionId"`
	Mode      string   `json:"mode"`
	Players   []string `json:"players"`
	Language  string   `json:"language"`
	Board     string   `json:"board,omitempty"`
}

type guessReq struct {
	ScopeID   string `json:"scopeId"`
	ChannelID string `json:"channelId"`
	Word      string `json:"word"`
}

type guessRes struct {
	SessionID  string        `json:"sessionId"`
	Guess      string        `json:"guess"`
	Feedback   game.Feedback `json:"feedback"`
	State      string        `json:"state"`
	Won        bool          `json:"won"`
	Winner     string        `json:"winner,omitempty"`
	Points     int           `json:"points"`
	Guesses    int           `json:"guesses"`
	NextPlayer string        `json:"nextPlayer,omitempty"`
	Answer     string        `json:"answer,omitempty"`
	Board      string        `json:"board,omitempty"`
}

type giveUpRes struct {
	SessionID string `json:"sessionId"`
	Mode      string `json:"mode"`
	Answer    string `json:"answer"`
}

// sessionView is the public shape of a session.
type sessionView struct {
	ID            string          `json:"id"`
	Mode          string          `json:"mode"`
	ScopeID       string          `json:"scopeId"`
	ChannelID     string          `json:"channelId"`
	Players       []string        `json:"players"`
	CurrentPlayer string          `json:"currentPlayer,omitempty"`
	Guesses       []string        `json:"guesses"`
	Feedback      []game.Feedback `json:"feedback"`
	State         string          `json:"state"`
	Language      string          `json:"language"`
	CreatedAt     time.Time       `json:"createdAt"`
	LastActivity  time.Time       `json:"lastActivity"`
}

func viewOf(s *game.Session) sessionView {
	v := sessionView{
		ID:           s.ID,
		Mode:         s.Mode.String(),
		ScopeID:      s.ScopeID,
		ChannelID:    s.ChannelID,
		Players:      s.Participants,
		Guesses:      s.Guesses,
		Feedback:     s.Feedback,
		State:        s.State().String(),
		Language:     s.Language.String(),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
	}
	if s.Mode == game.Multiplayer {
		v.CurrentPlayer = s.CurrentPlayer()
	}
	if v.Guesses == nil {
		v.Guesses = []string{}
		v.Feedback = []game.Feedback{}
	}
	return v
}

// checkChannel refuses commands outside the scope's bound channel.
func (s *Server) checkChannel(ctx context.Context, scopeID, channelID string) error {
	ok, err := s.settings.ChannelAllowed(ctx, scopeID, channelID)
	if err != nil {
		return err
	}
	if !ok {
		return errWrongChannel
	}
	return nil
}

func (s *Server) handleSolo(w http.ResponseWriter, r *http.Request) {
	var req startReq
	if !decodeJSON(w, r, &req) {
		return
	}
	s.start(w, r, game.Solo, req, []string{currentUser(r).ID})
}

func (s *Server) handleMultiplayer(w http.ResponseWriter, r *http.Request) {
	var req startReq
	if !decodeJSON(w, r, &req) {
		return
	}
	players := append([]string{currentUser(r).ID}, req.Players...)
	s.start(w, r, game.Multiplayer, req, players)
}

func (s *Server) start(w http.ResponseWriter, r *http.Request, mode game.Mode, req startReq, players []string) {
	if req.ScopeID == "" || req.ChannelID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing_scope_or_channel"})
		return
	}
	ctx := r.Context()
	if err := s.checkChannel(ctx, req.ScopeID, req.ChannelID); err != nil {
		writeError(w, r, err)
		return
	}
	lang, err := s.settings.Language(ctx, req.ScopeID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, sess, err := s.registry.Create(ctx, session.CreateRequest{
		ScopeID:      req.ScopeID,
		ChannelID:    req.ChannelID,
		Mode:         mode,
		Participants: players,
		Language:     lang,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	board := s.registry.Board(sess)
	s.hub.PublishBoard(ctx, id, req.ChannelID, board)
	if mode == game.Multiplayer {
		for _, p := range sess.Participants[1:] {
			s.tell(ctx, p, fmt.Sprintf("%s started a multiplayer game. %s goes first.", currentUser(r).name(), sess.CurrentPlayer()))
		}
	}

	writeJSON(w, http.StatusOK, startRes{
		SessionID: id,
		Mode:      mode.String(),
		Players:   sess.Participants,
		Language:  sess.Language.String(),
		Board:     string(board),
	})
}

func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req guessReq
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	me := currentUser(r)
	if err := s.checkChannel(ctx, req.ScopeID, req.ChannelID); err != nil {
		writeError(w, r, err)
		return
	}
	id, _, err := s.registry.FindInScope(req.ScopeID, req.ChannelID, me.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out, err := s.registry.ApplyGuess(ctx, id, me.ID, req.Word)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res := guessRes{
		SessionID:  id,
		Guess:      out.Guess,
		Feedback:   out.Feedback,
		State:      out.Session.State().String(),
		Won:        out.Won,
		Winner:     out.Winner,
		Points:     out.Points,
		Guesses:    len(out.Session.Guesses),
		NextPlayer: out.NextPlayer,
		Board:      string(out.Board),
	}
	if ans, ok := out.Session.Answer(); ok {
		res.Answer = ans
	}

	s.hub.PublishBoard(ctx, id, req.ChannelID, out.Board)
	switch {
	case out.Won:
		s.hub.Finish(ctx, id, fmt.Sprintf("%s solved it in %d guesses: %s", out.Winner, res.Guesses, strings.ToUpper(res.Answer)))
	case out.NextPlayer != "":
		s.tell(ctx, out.NextPlayer, "It's your turn.")
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGiveUp(w http.ResponseWriter, r *http.Request) {
	var req startReq
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	me := currentUser(r)
	if err := s.checkChannel(ctx, req.ScopeID, req.ChannelID); err != nil {
		writeError(w, r, err)
		return
	}
	id, _, err := s.registry.FindInScope(req.ScopeID, req.ChannelID, me.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.registry.Forfeit(ctx, id, me.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ans, _ := sess.Answer()
	s.hub.Finish(ctx, id, fmt.Sprintf("%s gave up. The word was %s.", me.name(), strings.ToUpper(ans)))

	writeJSON(w, http.StatusOK, giveUpRes{SessionID: id, Mode: sess.Mode.String(), Answer: ans})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Find(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

// tell sends a best-effort direct message.
func (s *Server) tell(ctx context.Context, playerID, text string) {
	if err := s.hub.SendDirectMessage(ctx, playerID, text); err != nil {
		log.Debug().Err(err).Str("player", playerID).Msg("direct message not delivered")
	}
}
