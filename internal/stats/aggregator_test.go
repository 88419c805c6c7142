package stats

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/robalobadob/wordler/internal/cache"
	"github.com/robalobadob/wordler/internal/db"
)

func newTestAggregator(t *testing.T, lb cache.LeaderboardCache) *Aggregator {
	t.Helper()
	conn, err := db.OpenAndMigrate(filepath.Join(t.TempDir(), "stats.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return New(conn, lb)
}

// memoryCache is an in-process stand-in for the Redis mirror.
type memoryCache struct {
	mu        sync.Mutex
	scopes    map[string]map[string]cache.LeaderboardEntry
	reads     int
	rankReads int
	readErr   error
	addErr    error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{scopes: map[string]map[string]cache.LeaderboardEntry{}}
}

func (m *memoryCache) AddResult(_ context.Context, scopeID, playerID string, points int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	s := m.scopes[scopeID]
	if s == nil {
		s = map[string]cache.LeaderboardEntry{}
		m.scopes[scopeID] = s
	}
	e := s[playerID]
	e.PlayerID = playerID
	e.Points += points
	e.GamesPlayed++
	s[playerID] = e
	return nil
}

func (m *memoryCache) Replace(_ context.Context, scopeID string, entries []cache.LeaderboardEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := map[string]cache.LeaderboardEntry{}
	for _, e := range entries {
		s[e.PlayerID] = e
	}
	m.scopes[scopeID] = s
	return nil
}

func (m *memoryCache) sorted(scopeID string) []cache.LeaderboardEntry {
	var out []cache.LeaderboardEntry
	for _, e := range m.scopes[scopeID] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := cache.EncodeScore(out[i].Points, out[i].GamesPlayed), cache.EncodeScore(out[j].Points, out[j].GamesPlayed)
		if si != sj {
			return si > sj
		}
		return out[i].PlayerID > out[j].PlayerID
	})
	return out
}

func (m *memoryCache) GetTop(_ context.Context, scopeID string, limit int) ([]cache.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := m.sorted(scopeID)
	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

func (m *memoryCache) GetRank(_ context.Context, scopeID, playerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rankReads++
	if m.readErr != nil {
		return 0, m.readErr
	}
	for i, e := range m.sorted(scopeID) {
		if e.PlayerID == playerID {
			return int64(i + 1), nil
		}
	}
	return -1, nil
}

func TestLeaderboardOrdering(t *testing.T) {
	ctx := context.Background()
	a := newTestAggregator(t, nil)

	record := func(scope, player string, points ...int) {
		t.Helper()
		for _, p := range points {
			if err := a.RecordGameCompletion(ctx, scope, player, p); err != nil {
				t.Fatalf("record %s/%s: %v", scope, player, err)
			}
		}
	}
	record("g1", "alice", 9, 5)
	record("g1", "dave", 9)
	record("g1", "bob", 9)
	record("g1", "erin", 9, 0)
	record("g2", "carol", 10)

	got, err := a.Leaderboard(ctx, "g1", 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	want := []Entry{
		{1, "alice", 14, 2},
		{2, "bob", 9, 1},
		{3, "dave", 9, 1},
		{4, "erin", 9, 2},
	}
	if len(got) != len(want) {
		t.Fatalf("leaderboard = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	global, err := a.Leaderboard(ctx, GlobalScope, 2)
	if err != nil {
		t.Fatalf("global: %v", err)
	}
	if len(global) != 2 || global[0].PlayerID != "alice" || global[1].PlayerID != "carol" {
		t.Fatalf("global = %+v", global)
	}

	tot, err := a.Points(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("points: %v", err)
	}
	if tot.ScopePoints != 14 || tot.ScopeGames != 2 || tot.GlobalPoints != 14 || tot.GlobalGames != 2 {
		t.Fatalf("totals = %+v", tot)
	}
	if tot.ScopeRank != 1 || tot.GlobalRank != 1 {
		t.Fatalf("alice ranks = %d/%d, want 1/1", tot.ScopeRank, tot.GlobalRank)
	}

	// global: alice 14/2, carol 10/1, bob 9/1, dave 9/1, erin 9/2
	ranks := map[string][2]int{"bob": {2, 3}, "dave": {3, 4}, "erin": {4, 5}}
	for player, want := range ranks {
		tot, err := a.Points(ctx, "g1", player)
		if err != nil {
			t.Fatalf("points %s: %v", player, err)
		}
		if tot.ScopeRank != want[0] || tot.GlobalRank != want[1] {
			t.Fatalf("%s ranks = %d/%d, want %d/%d", player, tot.ScopeRank, tot.GlobalRank, want[0], want[1])
		}
	}
	if tot, _ := a.Points(ctx, "g1", "nobody"); tot.ScopeRank != 0 || tot.GlobalRank != 0 {
		t.Fatalf("unranked player = %+v", tot)
	}
	if tot, _ := a.Points(ctx, "g1", "carol"); tot.ScopePoints != 0 || tot.GlobalPoints != 10 {
		t.Fatalf("carol totals = %+v", tot)
	}
}

func TestRecordRejectsBadInput(t *testing.T) {
	a := newTestAggregator(t, nil)
	ctx := context.Background()
	if err := a.RecordGameCompletion(ctx, "", "p", 1); err == nil {
		t.Fatal("empty scope accepted")
	}
	if err := a.RecordGameCompletion(ctx, "g", "p", -1); err == nil {
		t.Fatal("negative points accepted")
	}
	if err := a.RecordDetailedOutcome(ctx, "", true, 1, ""); err == nil {
		t.Fatal("empty player accepted")
	}
}

func TestPlayerStats(t *testing.T) {
	ctx := context.Background()
	a := newTestAggregator(t, nil)

	steps := []struct {
		win     bool
		guesses int
		starter string
	}{
		{true, 3, "crate"},
		{true, 2, "crate"},
		{false, 1, "slate"},
		{true, 4, "adieu"},
		{true, 3, ""},
	}
	for _, s := range steps {
		if err := a.RecordDetailedOutcome(ctx, "alice", s.win, s.guesses, s.starter); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	d, err := a.PlayerStats(ctx, "alice")
	if err != nil {
		t.Fatalf("player stats: %v", err)
	}
	if d.Played != 5 || d.Wins != 4 || d.Losses != 1 {
		t.Fatalf("counts = %+v", d)
	}
	if d.WinPercent != 80 {
		t.Fatalf("win%% = %v", d.WinPercent)
	}
	if d.CurrentStreak != 2 || d.MaxStreak != 2 {
		t.Fatalf("streaks = %d/%d, want 2/2", d.CurrentStreak, d.MaxStreak)
	}
	if d.Distribution[2] != 1 || d.Distribution[3] != 2 || d.Distribution[4] != 1 || len(d.Distribution) != 3 {
		t.Fatalf("distribution = %v", d.Distribution)
	}
	if d.FavoriteStarter != "crate" || d.StarterUses != 2 {
		t.Fatalf("favorite = %q x%d", d.FavoriteStarter, d.StarterUses)
	}

	empty, err := a.PlayerStats(ctx, "nobody")
	if err != nil || empty.Played != 0 || empty.WinPercent != 0 {
		t.Fatalf("unknown player = %+v, %v", empty, err)
	}
}

func TestLeaderboardCacheMirror(t *testing.T) {
	ctx := context.Background()
	lb := newMemoryCache()
	a := newTestAggregator(t, lb)

	// Not synced yet: the write goes to sqlite only.
	if err := a.RecordGameCompletion(ctx, "g1", "alice", 9); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(lb.scopes) != 0 {
		t.Fatal("unsynced cache was written")
	}

	// The first read rebuilds the mirror and is served from it.
	got, err := a.Leaderboard(ctx, "g1", 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if lb.reads != 1 || len(got) != 1 || got[0] != (Entry{1, "alice", 9, 1}) {
		t.Fatalf("reads=%d leaderboard=%+v", lb.reads, got)
	}

	if err := a.RecordGameCompletion(ctx, "g1", "bob", 10); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err = a.Leaderboard(ctx, "g1", 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if lb.reads != 2 {
		t.Fatalf("cache reads = %d, want 2", lb.reads)
	}
	if len(got) != 2 || got[0].PlayerID != "bob" || got[1] != (Entry{2, "alice", 9, 1}) {
		t.Fatalf("cached leaderboard = %+v", got)
	}

	tot, err := a.Points(ctx, "g1", "alice")
	if err != nil {
		t.Fatalf("points: %v", err)
	}
	if lb.rankReads != 2 || tot.ScopeRank != 2 || tot.GlobalRank != 2 {
		t.Fatalf("rank reads=%d totals=%+v", lb.rankReads, tot)
	}

	lb.readErr = errors.New("redis down")
	got, err = a.Leaderboard(ctx, GlobalScope, 10)
	if err != nil || len(got) != 2 {
		t.Fatalf("fallback = %+v, %v", got, err)
	}
	tot, err = a.Points(ctx, "g1", "bob")
	if err != nil || tot.ScopeRank != 1 {
		t.Fatalf("rank fallback = %+v, %v", tot, err)
	}
}

func TestStaleCacheIsRebuiltOnRead(t *testing.T) {
	ctx := context.Background()
	lb := newMemoryCache()
	a := newTestAggregator(t, lb)
	if err := a.SyncCache(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	lb.addErr = errors.New("redis down")
	if err := a.RecordGameCompletion(ctx, "g1", "alice", 9); err != nil {
		t.Fatalf("record should succeed without the cache: %v", err)
	}

	// Inside the retry window reads stay on sqlite.
	a.resyncEvery = time.Hour
	got, err := a.Leaderboard(ctx, "g1", 10)
	if err != nil || len(got) != 1 || got[0].Points != 9 {
		t.Fatalf("sqlite leaderboard = %+v, %v", got, err)
	}
	if lb.reads != 0 {
		t.Fatalf("stale cache read %d times", lb.reads)
	}

	lb.addErr = nil
	a.resyncEvery = 0
	got, err = a.Leaderboard(ctx, "g1", 10)
	if err != nil || len(got) != 1 || got[0] != (Entry{1, "alice", 9, 1}) {
		t.Fatalf("rebuilt leaderboard = %+v, %v", got, err)
	}
	if lb.reads != 1 {
		t.Fatalf("cache reads after rebuild = %d, want 1", lb.reads)
	}

	if err := a.RecordGameCompletion(ctx, "g1", "alice", 5); err != nil {
		t.Fatalf("record: %v", err)
	}
	if e := lb.scopes["g1"]["alice"]; e.Points != 14 || e.GamesPlayed != 2 {
		t.Fatalf("mirrored entry = %+v", e)
	}
}
