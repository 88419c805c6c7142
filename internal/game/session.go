// internal/game/session.go
//
// Session is the state of a single game instance, solo or multiplayer.
// The registry owns every live Session; callers outside it only ever see
// copies produced by Clone.
//
// State transitions:
//   - Apply with the target word → Won.
//   - End(Forfeited) / End(Expired) → terminal, driven by the registry.
//   - Terminal sessions accept nothing.

package game

import (
	"time"

	"golang.org/x/text/language"
)

// Session holds the state of one game.
type Session struct {
	ID           string       // Internal identifier assigned by the registry.
	Mode         Mode         // Solo or Multiplayer.
	ScopeID      string       // Enclosing community; busy-player checks are per scope.
	ChannelID    string       // Channel the game is played in.
	Participants []string     // Turn order for multiplayer; exactly one player for solo.
	TurnIndex    int          // Index into Participants of the player to act (multiplayer).
	Guesses      []string     // Accepted guesses in order, lowercase, no duplicates.
	Feedback     []Feedback   // Parallel to Guesses.
	Letters      LetterStates // Best state seen per letter.
	Language     language.Tag // Dictionary used for this game.
	CreatedAt    time.Time
	LastActivity time.Time

	target string
	state  State
	winner string
}

// NewSession builds an Open session. The caller validates participants and target.
func NewSession(id string, mode Mode, scopeID, channelID string, participants []string, target string, lang language.Tag, now time.Time) *Session {
	return &Session{
		ID:           id,
		Mode:         mode,
		ScopeID:      scopeID,
		ChannelID:    channelID,
		Participants: append([]string(nil), participants...),
		Language:     lang,
		CreatedAt:    now,
		LastActivity: now,
		target:       target,
	}
}

// State reports the lifecycle state.
func (s *Session) State() State { return s.state }

// Answer reveals the target word once the session has ended.
func (s *Session) Answer() (string, bool) {
	if !s.state.Terminal() {
		return "", false
	}
	return s.target, true
}

// Winner is the player whose guess matched the target, if any.
func (s *Session) Winner() string { return s.winner }

// CurrentPlayer is the player expected to act next.
func (s *Session) CurrentPlayer() string {
	if len(s.Participants) == 0 {
		return ""
	}
	if s.Mode == Solo {
		return s.Participants[0]
	}
	return s.Participants[s.TurnIndex]
}

// IsParticipant reports whether player takes part in the session.
func (s *Session) IsParticipant(player string) bool {
	for _, p := range s.Participants {
		if p == player {
			return true
		}
	}
	return false
}

// HasGuessed reports whether word was already accepted.
func (s *Session) HasGuessed(word string) bool {
	for _, g := range s.Guesses {
		if g == word {
			return true
		}
	}
	return false
}

// StartingWord is the first accepted guess, or "" if none was made.
func (s *Session) StartingWord() string {
	if len(s.Guesses) == 0 {
		return ""
	}
	return s.Guesses[0]
}

// Apply admits a normalized, dictionary-checked guess by player.
//
// Checks, in order: session open, not already guessed, participant, turn.
// On success the guess and its feedback are appended, letter states are folded,
// LastActivity is set, and either the session is Won or (multiplayer) the turn
// advances by one.
func (s *Session) Apply(player, guess string, now time.Time) (Feedback, error) {
	if s.state.Terminal() {
		return Feedback{}, ErrSessionClosed
	}
	if s.HasGuessed(guess) {
		return Feedback{}, &ValidationError{Reason: AlreadyGuessed, Word: guess}
	}
	if !s.IsParticipant(player) {
		return Feedback{}, ErrNotParticipant
	}
	if s.Mode == Multiplayer && player != s.CurrentPlayer() {
		return Feedback{}, &TurnError{Player: player, Expected: s.CurrentPlayer()}
	}

	fb, err := ComputeFeedback(guess, s.target)
	if err != nil {
		return Feedback{}, err
	}

	s.Guesses = append(s.Guesses, guess)
	s.Feedback = append(s.Feedback, fb)
	s.Letters.Fold(guess, fb)
	s.LastActivity = now

	if guess == s.target {
		s.state = Won
		s.winner = player
		return fb, nil
	}
	if s.Mode == Multiplayer {
		s.TurnIndex = (s.TurnIndex + 1) % len(s.Participants)
	}
	return fb, nil
}

// End moves an open session into Forfeited or Expired.
func (s *Session) End(state State) error {
	if s.state.Terminal() {
		return ErrSessionClosed
	}
	if state != Forfeited && state != Expired {
		return ErrSessionClosed
	}
	s.state = state
	return nil
}

// Clone returns a deep copy that shares no mutable memory with s.
func (s *Session) Clone() *Session {
	c := *s
	c.Participants = append([]string(nil), s.Participants...)
	c.Guesses = append([]string(nil), s.Guesses...)
	c.Feedback = append([]Feedback(nil), s.Feedback...)
	return &c
}
