// internal/session/reaper.go
//
// Idle reaper: a ticker loop that expires sessions nobody has touched for a
// while and tells their participants.
//   - Each sweep works from a registry snapshot.
//   - A session is expired only if it is still idle when the registry is asked.
//   - Failures and panics are isolated per session; the loop outlives them.

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordler/internal/game"
)

const (
	// DefaultReapInterval is how often the reaper sweeps when no interval is set.
	DefaultReapInterval = time.Minute
	// DefaultIdleTimeout is how long a session may go without a guess.
	DefaultIdleTimeout = 30 * time.Minute
)

// ReaperConfig wires a Reaper. Notifier and Channels are optional.
type ReaperConfig struct {
	Registry    *Registry
	Notifier    Notifier
	Channels    ChannelUpdater
	Interval    time.Duration
	IdleTimeout time.Duration
	Now         func() time.Time
}

// Reaper periodically expires sessions nobody has touched for IdleTimeout.
type Reaper struct {
	reg      *Registry
	notifier Notifier
	channels ChannelUpdater
	interval time.Duration
	idle     time.Duration
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReaper returns a stopped Reaper; zero durations take the defaults.
func NewReaper(c ReaperConfig) *Reaper {
	r := &Reaper{
		reg:      c.Registry,
		notifier: c.Notifier,
		channels: c.Channels,
		interval: c.Interval,
		idle:     c.IdleTimeout,
		now:      c.Now,
	}
	if r.interval <= 0 {
		r.interval = DefaultReapInterval
	}
	if r.idle <= 0 {
		r.idle = DefaultIdleTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Start launches the sweep loop. Calling Start on a running Reaper is a no-op.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
	log.Info().Dur("interval", r.interval).Dur("idleTimeout", r.idle).Msg("reaper started")
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Info().Msg("reaper stopped")
}

func (r *Reaper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.safeSweep(ctx)
		}
	}
}

// safeSweep keeps the loop alive if a sweep panics.
func (r *Reaper) safeSweep(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("reaper sweep panicked")
		}
	}()
	if n := r.Sweep(ctx); n > 0 {
		log.Info().Int("expired", n).Int("remaining", r.reg.Len()).Msg("reaper sweep")
	}
}

// Sweep runs one pass and returns how many sessions it expired.
func (r *Reaper) Sweep(ctx context.Context) int {
	cutoff := r.now().Add(-r.idle)
	expired := 0
	for _, e := range r.reg.Snapshot() {
		if !e.Session.LastActivity.Before(cutoff) {
			continue
		}
		if r.expireOne(ctx, e.ID, cutoff) {
			expired++
		}
	}
	return expired
}

func (r *Reaper) expireOne(ctx context.Context, id string, cutoff time.Time) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("session", id).Msg("expire session panicked")
		}
	}()

	s, err := r.reg.Expire(ctx, id, cutoff)
	switch {
	case errors.Is(err, game.ErrNotFound), errors.Is(err, game.ErrStillActive):
		// finished or touched since the snapshot
		return false
	case err != nil:
		log.Warn().Err(err).Str("session", id).Msg("expire session")
		return false
	}

	text := expiryMessage(s)
	if r.notifier != nil {
		for _, p := range s.Participants {
			if err := r.notifier.SendDirectMessage(ctx, p, text); err != nil {
				log.Warn().Err(err).Str("session", id).Str("player", p).Msg("expiry notice not delivered")
			}
		}
	}
	if r.channels != nil && s.ChannelID != "" {
		if err := r.channels.MarkExpired(ctx, id, s.ChannelID); err != nil {
			log.Warn().Err(err).Str("session", id).Str("channel", s.ChannelID).Msg("mark channel artifact expired")
		}
	}
	return true
}

// expiryMessage names the game type, the community and channel, and the answer.
func expiryMessage(s *game.Session) string {
	answer, _ := s.Answer()
	kind := "solo"
	if s.Mode == game.Multiplayer {
		kind = "multiplayer"
	}
	return fmt.Sprintf("Your %s game in community %s, channel %s, expired after inactivity. The word was %s.",
		kind, s.ScopeID, s.ChannelID, strings.ToUpper(answer))
}
