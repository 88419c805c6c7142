// internal/stats/aggregator.go
//
// Durable player statistics.
// Responsibilities:
//   - Points leaderboard per scope plus a global pseudo-scope.
//   - Detailed per-player outcomes: wins, losses, streaks, guess distribution, starting words.
//   - Optional Redis mirror of the leaderboard for fast top-N reads.
//
// Writes are serialized by a mutex and each record call is one SQLite transaction.

package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordler/internal/cache"
)

// GlobalScope is the scope id holding totals across every scope.
const GlobalScope = "*"

// DefaultLimit is the leaderboard size when none is given.
const DefaultLimit = 10

// DefaultResyncInterval spaces out attempts to rebuild a stale cache.
const DefaultResyncInterval = 30 * time.Second

// Entry is one leaderboard row.
type Entry struct {
	Rank        int    `json:"rank"`
	PlayerID    string `json:"playerId"`
	Points      int    `json:"points"`
	GamesPlayed int    `json:"gamesPlayed"`
}

// Totals holds a player's points in one scope and globally.
type Totals struct {
	PlayerID     string `json:"playerId"`
	ScopeID      string `json:"scopeId"`
	ScopePoints  int    `json:"scopePoints"`
	ScopeGames   int    `json:"scopeGames"`
	ScopeRank    int    `json:"scopeRank,omitempty"` // 0 when unranked
	GlobalPoints int    `json:"globalPoints"`
	GlobalGames  int    `json:"globalGames"`
	GlobalRank   int    `json:"globalRank,omitempty"`
}

// Detailed is a player's solo history.
type Detailed struct {
	PlayerID        string      `json:"playerId"`
	Played          int         `json:"played"`
	Wins            int         `json:"wins"`
	Losses          int         `json:"losses"`
	WinPercent      float64     `json:"winPercent"`
	CurrentStreak   int         `json:"currentStreak"`
	MaxStreak       int         `json:"maxStreak"`
	Distribution    map[int]int `json:"distribution"`
	FavoriteStarter string      `json:"favoriteStarter,omitempty"`
	StarterUses     int         `json:"starterUses,omitempty"`
}

// Aggregator reads and writes stats in SQLite.
type Aggregator struct {
	db    *sql.DB
	cache cache.LeaderboardCache
	stale atomic.Bool // cache diverged from SQLite; read from SQLite until SyncCache
	mu    sync.Mutex

	resyncEvery time.Duration
	lastSync    atomic.Int64 // unix nanos of the last SyncCache attempt
}

// New returns an Aggregator over a migrated database. lb may be nil.
func New(db *sql.DB, lb cache.LeaderboardCache) *Aggregator {
	a := &Aggregator{db: db, cache: lb, resyncEvery: DefaultResyncInterval}
	if lb != nil {
		a.stale.Store(true)
	}
	return a
}

var errMissingID = errors.New("stats: scope and player ids are required")

// RecordGameCompletion adds one finished game worth points to the scope
// and to the global totals.
func (a *Aggregator) RecordGameCompletion(ctx context.Context, scopeID, playerID string, points int) error {
	if scopeID == "" || playerID == "" {
		return errMissingID
	}
	if points < 0 {
		return fmt.Errorf("stats: negative points %d", points)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	scopes := []string{GlobalScope}
	if scopeID != GlobalScope {
		scopes = []string{scopeID, GlobalScope}
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range scopes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO leaderboard (scope_id, player_id, total_points, games_played)
			VALUES (?, ?, ?, 1)
			ON CONFLICT(scope_id, player_id) DO UPDATE SET
				total_points = total_points + excluded.total_points,
				games_played = games_played + 1`,
			s, playerID, points,
		); err != nil {
			return fmt.Errorf("update leaderboard %s: %w", s, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if a.cache != nil && !a.stale.Load() {
		for _, s := range scopes {
			if err := a.cache.AddResult(ctx, s, playerID, points); err != nil {
				a.stale.Store(true)
				log.Warn().Err(err).Str("scope", s).Msg("leaderboard cache update failed; serving from sqlite")
				break
			}
		}
	}
	return nil
}

// RecordDetailedOutcome updates win/loss counters, streaks, the guess
// distribution (wins only) and starting word usage.
func (a *Aggregator) RecordDetailedOutcome(ctx context.Context, playerID string, win bool, guesses int, startingWord string) error {
	if playerID == "" {
		return errMissingID
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if win {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO player_stats (player_id, wins, losses, current_streak, max_streak)
			VALUES (?, 1, 0, 1, 1)
			ON CONFLICT(player_id) DO UPDATE SET
				wins = wins + 1,
				current_streak = current_streak + 1,
				max_streak = MAX(max_streak, current_streak + 1)`, playerID)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO player_stats (player_id, wins, losses, current_streak, max_streak)
			VALUES (?, 0, 1, 0, 0)
			ON CONFLICT(player_id) DO UPDATE SET
				losses = losses + 1,
				current_streak = 0`, playerID)
	}
	if err != nil {
		return fmt.Errorf("update player_stats: %w", err)
	}

	if win && guesses > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO guess_distribution (player_id, guesses, wins) VALUES (?, ?, 1)
			ON CONFLICT(player_id, guesses) DO UPDATE SET wins = wins + 1`,
			playerID, guesses,
		); err != nil {
			return fmt.Errorf("update guess_distribution: %w", err)
		}
	}

	if startingWord != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO starting_words (player_id, word, uses) VALUES (?, ?, 1)
			ON CONFLICT(player_id, word) DO UPDATE SET uses = uses + 1`,
			playerID, startingWord,
		); err != nil {
			return fmt.Errorf("update starting_words: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Leaderboard returns the top players of a scope by points desc, then games asc.
func (a *Aggregator) Leaderboard(ctx context.Context, scopeID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if scopeID == "" {
		scopeID = GlobalScope
	}

	a.maybeResync(ctx)
	if a.cache != nil && !a.stale.Load() {
		top, err := a.cache.GetTop(ctx, scopeID, limit)
		if err == nil {
			out := make([]Entry, len(top))
			for i, e := range top {
				out[i] = Entry{Rank: e.Rank, PlayerID: e.PlayerID, Points: e.Points, GamesPlayed: e.GamesPlayed}
			}
			return out, nil
		}
		log.Warn().Err(err).Str("scope", scopeID).Msg("leaderboard cache read failed; falling back to sqlite")
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT player_id, total_points, games_played
		FROM leaderboard
		WHERE scope_id = ?
		ORDER BY total_points DESC, games_played ASC, player_id ASC
		LIMIT ?`, scopeID, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		e := Entry{Rank: len(out) + 1}
		if err := rows.Scan(&e.PlayerID, &e.Points, &e.GamesPlayed); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Points returns a player's totals and leaderboard rank in scopeID and globally.
func (a *Aggregator) Points(ctx context.Context, scopeID, playerID string) (Totals, error) {
	t := Totals{PlayerID: playerID, ScopeID: scopeID}
	if scopeID != "" {
		if err := a.totals(ctx, scopeID, playerID, &t.ScopePoints, &t.ScopeGames); err != nil {
			return t, err
		}
	}
	if err := a.totals(ctx, GlobalScope, playerID, &t.GlobalPoints, &t.GlobalGames); err != nil {
		return t, err
	}

	a.maybeResync(ctx)
	var err error
	if t.ScopeGames > 0 {
		if t.ScopeRank, err = a.rank(ctx, scopeID, playerID, t.ScopePoints, t.ScopeGames); err != nil {
			return t, err
		}
	}
	if t.GlobalGames > 0 {
		if t.GlobalRank, err = a.rank(ctx, GlobalScope, playerID, t.GlobalPoints, t.GlobalGames); err != nil {
			return t, err
		}
	}
	return t, nil
}

// rank is the player's 1-based position under the leaderboard ordering.
func (a *Aggregator) rank(ctx context.Context, scopeID, playerID string, points, games int) (int, error) {
	if a.cache != nil && !a.stale.Load() {
		r, err := a.cache.GetRank(ctx, scopeID, playerID)
		if err == nil && r > 0 {
			return int(r), nil
		}
		if err != nil {
			log.Warn().Err(err).Str("scope", scopeID).Msg("leaderboard cache rank failed; falling back to sqlite")
		}
	}

	var ahead int
	err := a.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM leaderboard
		WHERE scope_id = ? AND (
			total_points > ?
			OR (total_points = ? AND games_played < ?)
			OR (total_points = ? AND games_played = ? AND player_id < ?))`,
		scopeID, points, points, games, points, games, playerID,
	).Scan(&ahead)
	if err != nil {
		return 0, fmt.Errorf("query rank: %w", err)
	}
	return ahead + 1, nil
}

func (a *Aggregator) totals(ctx context.Context, scopeID, playerID string, points, games *int) error {
	err := a.db.QueryRowContext(ctx,
		`SELECT total_points, games_played FROM leaderboard WHERE scope_id=? AND player_id=?`,
		scopeID, playerID,
	).Scan(points, games)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("query totals: %w", err)
	}
	return nil
}

// PlayerStats loads the detailed view for one player. Unknown players get zeros.
func (a *Aggregator) PlayerStats(ctx context.Context, playerID string) (Detailed, error) {
	d := Detailed{PlayerID: playerID, Distribution: map[int]int{}}

	err := a.db.QueryRowContext(ctx,
		`SELECT wins, losses, current_streak, max_streak FROM player_stats WHERE player_id=?`, playerID,
	).Scan(&d.Wins, &d.Losses, &d.CurrentStreak, &d.MaxStreak)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("query player_stats: %w", err)
	}
	d.Played = d.Wins + d.Losses
	if d.Played > 0 {
		d.WinPercent = float64(d.Wins) * 100 / float64(d.Played)
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT guesses, wins FROM guess_distribution WHERE player_id=? ORDER BY guesses`, playerID)
	if err != nil {
		return d, fmt.Errorf("query guess_distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var g, w int
		if err := rows.Scan(&g, &w); err != nil {
			return d, err
		}
		d.Distribution[g] = w
	}
	if err := rows.Err(); err != nil {
		return d, err
	}

	err = a.db.QueryRowContext(ctx, `
		SELECT word, uses FROM starting_words
		WHERE player_id=?
		ORDER BY uses DESC, word ASC
		LIMIT 1`, playerID,
	).Scan(&d.FavoriteStarter, &d.StarterUses)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("query starting_words: %w", err)
	}
	return d, nil
}

// maybeResync retries SyncCache for a stale cache, at most once per resyncEvery.
func (a *Aggregator) maybeResync(ctx context.Context) {
	if a.cache == nil || !a.stale.Load() {
		return
	}
	last := a.lastSync.Load()
	if last != 0 && time.Since(time.Unix(0, last)) < a.resyncEvery {
		return
	}
	if err := a.SyncCache(ctx); err != nil {
		log.Warn().Err(err).Msg("leaderboard cache still unavailable")
	}
}

// SyncCache rebuilds the Redis mirror from SQLite and re-enables cached reads.
func (a *Aggregator) SyncCache(ctx context.Context) error {
	if a.cache == nil {
		return nil
	}
	a.lastSync.Store(time.Now().UnixNano())

	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.QueryContext(ctx,
		`SELECT scope_id, player_id, total_points, games_played FROM leaderboard ORDER BY scope_id`)
	if err != nil {
		return fmt.Errorf("query leaderboard: %w", err)
	}
	byScope := map[string][]cache.LeaderboardEntry{}
	for rows.Next() {
		var scope string
		var e cache.LeaderboardEntry
		if err := rows.Scan(&scope, &e.PlayerID, &e.Points, &e.GamesPlayed); err != nil {
			rows.Close()
			return err
		}
		byScope[scope] = append(byScope[scope], e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for scope, entries := range byScope {
		if err := a.cache.Replace(ctx, scope, entries); err != nil {
			a.stale.Store(true)
			return fmt.Errorf("replace cached scope %s: %w", scope, err)
		}
	}
	a.stale.Store(false)
	log.Info().Int("scopes", len(byScope)).Msg("leaderboard cache synced")
	return nil
}
