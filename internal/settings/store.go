// Package settings persists per-scope configuration: the channel game
// commands are bound to and the language new sessions are played in.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
)

// DefaultLanguage is used for scopes that never chose one.
var DefaultLanguage = language.English

// Scope is the stored configuration of one scope.
type Scope struct {
	ScopeID   string
	ChannelID string // empty: every channel is allowed
	Language  language.Tag
}

// Store is a read-through cache over the scope_settings table.
type Store struct {
	db *sql.DB

	mu     sync.RWMutex
	scopes map[string]Scope
	gen    map[string]uint64 // bumped by every write; a load only caches if unchanged
}

func New(db *sql.DB) *Store {
	return &Store{db: db, scopes: make(map[string]Scope), gen: make(map[string]uint64)}
}

// Get returns the scope's settings, with defaults for unknown scopes.
func (s *Store) Get(ctx context.Context, scopeID string) (Scope, error) {
	s.mu.RLock()
	sc, ok := s.scopes[scopeID]
	gen := s.gen[scopeID]
	s.mu.RUnlock()
	if ok {
		return sc, nil
	}

	sc, err := s.load(ctx, scopeID)
	if err != nil {
		return sc, err
	}
	s.remember(scopeID, sc, gen)
	return sc, nil
}

func (s *Store) load(ctx context.Context, scopeID string) (Scope, error) {
	sc := Scope{ScopeID: scopeID, Language: DefaultLanguage}
	var channel, lang string
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_id, language FROM scope_settings WHERE scope_id=?`, scopeID,
	).Scan(&channel, &lang)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return sc, fmt.Errorf("load scope %s: %w", scopeID, err)
	default:
		sc.ChannelID = channel
		if lang != "" {
			tag, perr := language.Parse(lang)
			if perr != nil {
				log.Warn().Err(perr).Str("scope", scopeID).Str("language", lang).Msg("stored language unreadable; using default")
			} else {
				sc.Language = tag
			}
		}
	}
	return sc, nil
}

// remember caches sc unless the scope was written since gen was read.
func (s *Store) remember(scopeID string, sc Scope, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen[scopeID] != gen {
		return
	}
	s.scopes[scopeID] = sc
}

// ChannelBinding returns the bound channel, or "" if the scope is unbound.
func (s *Store) ChannelBinding(ctx context.Context, scopeID string) (string, error) {
	sc, err := s.Get(ctx, scopeID)
	return sc.ChannelID, err
}

// ChannelAllowed reports whether game commands may run in channelID.
func (s *Store) ChannelAllowed(ctx context.Context, scopeID, channelID string) (bool, error) {
	bound, err := s.ChannelBinding(ctx, scopeID)
	if err != nil {
		return false, err
	}
	return bound == "" || bound == channelID, nil
}

// SetChannelBinding binds the scope to a channel; "" removes the binding.
func (s *Store) SetChannelBinding(ctx context.Context, scopeID, channelID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scope_settings (scope_id, channel_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(scope_id) DO UPDATE SET channel_id = excluded.channel_id, updated_at = excluded.updated_at`,
		scopeID, channelID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save channel binding: %w", err)
	}
	s.forget(scopeID)
	log.Info().Str("scope", scopeID).Str("channel", channelID).Msg("channel binding updated")
	return nil
}

// Language returns the scope's language, DefaultLanguage when unset.
func (s *Store) Language(ctx context.Context, scopeID string) (language.Tag, error) {
	sc, err := s.Get(ctx, scopeID)
	if err != nil {
		return DefaultLanguage, err
	}
	return sc.Language, nil
}

// SetLanguage stores the scope's language. Callers validate support.
func (s *Store) SetLanguage(ctx context.Context, scopeID string, tag language.Tag) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scope_settings (scope_id, language, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(scope_id) DO UPDATE SET language = excluded.language, updated_at = excluded.updated_at`,
		scopeID, tag.String(), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save language: %w", err)
	}
	s.forget(scopeID)
	log.Info().Str("scope", scopeID).Str("language", tag.String()).Msg("language updated")
	return nil
}

func (s *Store) forget(scopeID string) {
	s.mu.Lock()
	delete(s.scopes, scopeID)
	s.gen[scopeID]++
	s.mu.Unlock()
}
