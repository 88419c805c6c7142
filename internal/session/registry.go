// internal/session/registry.go
//
// Registry is the single source of truth for which games exist right now.
//
// Characteristics:
//   - Sessions keyed by an internally generated uuid, plus a scope → player
//     index that answers busy checks without scanning.
//   - Concurrency-safe via RWMutex: lookups share the lock, every
//     read-then-write sequence (busy check + insert, guess + removal) runs in
//     one exclusive section.
//   - The lock is never held across the word source, stats, or renderer.
//   - Callers only receive copies; live sessions never leave the registry
//     until they are detached.

package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"

	"github.com/robalobadob/wordler/internal/game"
)

// Config wires the registry's collaborators. Words is required.
type Config struct {
	Words     WordSource
	Stats     StatsRecorder   // optional
	Renderer  Renderer        // optional
	Keyboards KeyboardLayouts // optional
	Now       func() time.Time
	NewID     func() string
}

// Registry holds every live session.
type Registry struct {
	words     WordSource
	stats     StatsRecorder
	renderer  Renderer
	keyboards KeyboardLayouts
	now       func() time.Time
	newID     func() string

	mu       sync.RWMutex
	sessions map[string]*game.Session     // sessionID -> Session
	busy     map[string]map[string]string // scopeID -> playerID -> sessionID
}

// CreateRequest describes a game to start.
type CreateRequest struct {
	ScopeID      string
	ChannelID    string
	Mode         game.Mode
	Participants []string
	Language     language.Tag
}

// Entry pairs a session id with a copy of the session.
type Entry struct {
	ID      string
	Session *game.Session
}

// GuessOutcome is the result of an admitted guess.
type GuessOutcome struct {
	SessionID  string
	Player     string
	Guess      string
	Feedback   game.Feedback
	Session    *game.Session // copy taken right after the guess
	Won        bool
	Winner     string
	Points     int    // solo wins only
	NextPlayer string // multiplayer, when the game continues
	Board      []byte // nil when rendering failed or no renderer is set
}

// NewRegistry constructs an empty Registry.
func NewRegistry(c Config) *Registry {
	r := &Registry{
		words:     c.Words,
		stats:     c.Stats,
		renderer:  c.Renderer,
		keyboards: c.Keyboards,
		now:       c.Now,
		newID:     c.NewID,
		sessions:  make(map[string]*game.Session),
		busy:      make(map[string]map[string]string),
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r
}

// Create starts a session if every participant is free in the scope.
// Duplicate participants are dropped silently, keeping first-seen order.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (string, *game.Session, error) {
	players := removeDuplicates(req.Participants)
	if err := checkCapacity(req.Mode, len(players)); err != nil {
		return "", nil, err
	}

	target, ok := r.words.RandomWord(req.Language)
	if !ok || game.CheckShape(target) != nil {
		log.Warn().Str("lang", req.Language.String()).Str("scope", req.ScopeID).Msg("word source could not supply a target word")
		return "", nil, game.ErrWordSourceUnavailable
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var busy []string
	for _, p := range players {
		if _, taken := r.busy[req.ScopeID][p]; taken {
			busy = append(busy, p)
		}
	}
	if len(busy) > 0 {
		return "", nil, &game.BusyError{Players: busy}
	}

	id := r.newID()
	for {
		if _, exists := r.sessions[id]; !exists {
			break
		}
		id = r.newID()
	}

	s := game.NewSession(id, req.Mode, req.ScopeID, req.ChannelID, players, target, req.Language, r.now())
	r.sessions[id] = s
	idx := r.busy[req.ScopeID]
	if idx == nil {
		idx = make(map[string]string)
		r.busy[req.ScopeID] = idx
	}
	for _, p := range players {
		idx[p] = id
	}

	log.Info().Str("session", id).Str("mode", req.Mode.String()).Str("scope", req.ScopeID).
		Str("channel", req.ChannelID).Strs("players", players).Msg("session created")
	return id, s.Clone(), nil
}

// Find returns a copy of the session.
func (r *Registry) Find(id string) (*game.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, game.ErrNotFound
	}
	return s.Clone(), nil
}

// FindByParticipantInChannel locates the session a player is in within a channel.
// A channel id shared by several scopes can match more than one session; the
// oldest wins. Command handlers that know the scope use FindInScope.
func (r *Registry) FindByParticipantInChannel(channelID, playerID string) (string, *game.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		foundID string
		found   *game.Session
	)
	for id, s := range r.sessions {
		if s.ChannelID != channelID || !s.IsParticipant(playerID) {
			continue
		}
		if found == nil || s.CreatedAt.Before(found.CreatedAt) ||
			(s.CreatedAt.Equal(found.CreatedAt) && id < foundID) {
			foundID, found = id, s
		}
	}
	if found == nil {
		return "", nil, game.ErrNotFound
	}
	return foundID, found.Clone(), nil
}

// FindInScope returns the player's session in scopeID if it runs in channelID.
// A player has at most one live session per scope, so the answer is unique.
func (r *Registry) FindInScope(scopeID, channelID, playerID string) (string, *game.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.busy[scopeID][playerID]
	if !ok {
		return "", nil, game.ErrNotFound
	}
	s := r.sessions[id]
	if s == nil || s.ChannelID != channelID {
		return "", nil, game.ErrNotFound
	}
	return id, s.Clone(), nil
}

// IsBusy reports whether the player is in any live session of the scope.
func (r *Registry) IsBusy(scopeID, playerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.busy[scopeID][playerID]
	return ok
}

// Remove detaches the session and hands it to the caller without ending it
// or recording stats.
func (r *Registry) Remove(id string) (*game.Session, error) {
	return r.removeWhen(id, nil)
}

// removeWhen detaches the session if check, run under the write lock, passes.
func (r *Registry) removeWhen(id string, check func(*game.Session) error) (*game.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, game.ErrNotFound
	}
	if check != nil {
		if err := check(s); err != nil {
			return nil, err
		}
	}
	r.detachLocked(id, s)
	return s, nil
}

// ApplyGuess validates and admits a guess, advancing the session's state machine.
//
// Shape and dictionary checks run without the lock; the repeat, participant
// and turn checks and the mutation run inside one exclusive section, so
// concurrent guesses on one session are admitted strictly one after another.
// A winning guess removes the session before the lock is released.
func (r *Registry) ApplyGuess(ctx context.Context, id, playerID, raw string) (*GuessOutcome, error) {
	guess := game.Normalize(raw)
	if err := game.CheckShape(guess); err != nil {
		return nil, err
	}

	r.mu.RLock()
	s, ok := r.sessions[id]
	var lang language.Tag
	if ok {
		lang = s.Language
	}
	r.mu.RUnlock()
	if !ok {
		return nil, game.ErrNotFound
	}

	if !r.words.IsValidGuess(guess, lang) {
		return nil, &game.ValidationError{Reason: game.NotInDictionary, Word: guess}
	}

	r.mu.Lock()
	s, ok = r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return nil, game.ErrNotFound
	}
	fb, err := s.Apply(playerID, guess, r.now())
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	snap := s.Clone()
	if s.State() == game.Won {
		r.detachLocked(id, s)
	}
	r.mu.Unlock()

	out := &GuessOutcome{
		SessionID: id,
		Player:    playerID,
		Guess:     guess,
		Feedback:  fb,
		Session:   snap,
		Won:       snap.State() == game.Won,
		Winner:    snap.Winner(),
	}
	if out.Won {
		log.Info().Str("session", id).Str("winner", playerID).Int("guesses", len(snap.Guesses)).Msg("session won")
		if snap.Mode == game.Solo {
			out.Points = game.ComputePoints(len(snap.Guesses))
			r.recordSolo(ctx, snap, true, out.Points)
		}
	} else if snap.Mode == game.Multiplayer {
		out.NextPlayer = snap.CurrentPlayer()
	}
	out.Board = r.Board(snap)
	return out, nil
}

// Forfeit ends the session on behalf of one of its participants.
// A solo forfeit is recorded as a loss.
func (r *Registry) Forfeit(ctx context.Context, id, playerID string) (*game.Session, error) {
	s, err := r.removeWhen(id, func(s *game.Session) error {
		if !s.IsParticipant(playerID) {
			return game.ErrNotParticipant
		}
		return s.End(game.Forfeited)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("session", id).Str("player", playerID).Msg("session forfeited")
	if s.Mode == game.Solo {
		r.recordSolo(ctx, s, false, 0)
	}
	return s, nil
}

// Expire removes the session only if its last activity is before idleBefore.
// A solo expiry is recorded as a loss, the same as a forfeit.
func (r *Registry) Expire(ctx context.Context, id string, idleBefore time.Time) (*game.Session, error) {
	s, err := r.removeWhen(id, func(s *game.Session) error {
		if !s.LastActivity.Before(idleBefore) {
			return game.ErrStillActive
		}
		return s.End(game.Expired)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("session", id).Time("lastActivity", s.LastActivity).Msg("session expired")
	if s.Mode == game.Solo {
		r.recordSolo(ctx, s, false, 0)
	}
	return s, nil
}

// Snapshot returns copies of every live session, oldest first.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.sessions))
	for id, s := range r.sessions {
		out = append(out, Entry{ID: id, Session: s.Clone()})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Session, out[j].Session
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Board renders the session's guess history. Failures are logged and yield nil.
func (r *Registry) Board(s *game.Session) []byte {
	if r.renderer == nil || s == nil {
		return nil
	}
	var keyboard []string
	if r.keyboards != nil {
		keyboard = r.keyboards.Keyboard(s.Language)
	}
	img, err := r.renderer.Render(s.Guesses, s.Feedback, s.Letters, keyboard)
	if err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("render board")
		return nil
	}
	return img
}

// detachLocked removes s from both indexes. Caller holds r.mu for writing.
func (r *Registry) detachLocked(id string, s *game.Session) {
	delete(r.sessions, id)
	idx := r.busy[s.ScopeID]
	for _, p := range s.Participants {
		if idx[p] == id {
			delete(idx, p)
		}
	}
	if len(idx) == 0 {
		delete(r.busy, s.ScopeID)
	}
}

// recordSolo reports a finished solo game. Store failures are logged only;
// the game outcome has already been decided. The session is already detached,
// so the writes ignore cancellation of the caller's context.
func (r *Registry) recordSolo(ctx context.Context, s *game.Session, win bool, points int) {
	if r.stats == nil || len(s.Participants) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	player := s.Participants[0]
	if err := r.stats.RecordGameCompletion(ctx, s.ScopeID, player, points); err != nil {
		log.Error().Err(err).Str("session", s.ID).Str("player", player).Msg("record game completion")
	}
	if err := r.stats.RecordDetailedOutcome(ctx, player, win, len(s.Guesses), s.StartingWord()); err != nil {
		log.Error().Err(err).Str("session", s.ID).Str("player", player).Msg("record detailed outcome")
	}
}

func checkCapacity(mode game.Mode, n int) error {
	switch mode {
	case game.Solo:
		if n != 1 {
			return &game.CapacityError{Mode: mode, Count: n}
		}
	case game.Multiplayer:
		if n < game.MinMultiplayer || n > game.MaxMultiplayer {
			return &game.CapacityError{Mode: mode, Count: n}
		}
	default:
		return &game.CapacityError{Mode: mode, Count: n}
	}
	return nil
}

// removeDuplicates drops empty and repeated player IDs, keeping first-seen order.
func removeDuplicates(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return unique
}
