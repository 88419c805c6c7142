package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/robalobadob/wordler/internal/game"
)

// ---- fakes ----

type fixedWords struct {
	target  string
	allowed map[string]bool
}

func newFixedWords(target string, extra ...string) *fixedWords {
	w := &fixedWords{target: target, allowed: map[string]bool{target: true}}
	for _, e := range extra {
		w.allowed[e] = true
	}
	return w
}

func (w *fixedWords) RandomWord(language.Tag) (string, bool) { return w.target, w.target != "" }
func (w *fixedWords) IsValidGuess(word string, _ language.Tag) bool {
	return w.allowed[word]
}

type completion struct {
	scope, player string
	points        int
}

type outcome struct {
	player   string
	win      bool
	guesses  int
	starting string
}

type recordingStats struct {
	mu          sync.Mutex
	completions []completion
	outcomes    []outcome
}

func (s *recordingStats) RecordGameCompletion(_ context.Context, scopeID, playerID string, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions = append(s.completions, completion{scopeID, playerID, points})
	return nil
}

func (s *recordingStats) RecordDetailedOutcome(_ context.Context, playerID string, win bool, guesses int, startingWord string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome{playerID, win, guesses, startingWord})
	return nil
}

type failingRenderer struct{}

func (failingRenderer) Render([]string, []game.Feedback, game.LetterStates, []string) ([]byte, error) {
	return nil, errors.New("boom")
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *clock { return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)} }

func newTestRegistry(words WordSource, stats StatsRecorder, clk *clock) *Registry {
	n := 0
	var mu sync.Mutex
	return NewRegistry(Config{
		Words: words,
		Stats: stats,
		Now:   clk.Now,
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("s%d", n)
		},
	})
}

func solo(scope, channel, player string) CreateRequest {
	return CreateRequest{ScopeID: scope, ChannelID: channel, Mode: game.Solo, Participants: []string{player}, Language: language.English}
}

// ---- tests ----

func TestSoloScenarioCrane(t *testing.T) {
	ctx := context.Background()
	stats := &recordingStats{}
	reg := newTestRegistry(newFixedWords("crane", "crate"), stats, newClock())

	id, s, err := reg.Create(ctx, solo("g1", "c1", "alice"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.State() != game.Open || !reg.IsBusy("g1", "alice") {
		t.Fatal("new session should be open and mark its player busy")
	}

	out, err := reg.ApplyGuess(ctx, id, "alice", "CRATE")
	if err != nil {
		t.Fatalf("guess crate: %v", err)
	}
	if want := (game.Feedback{game.Correct, game.Correct, game.Correct, game.Absent, game.Correct}); out.Feedback != want {
		t.Fatalf("feedback = %v, want %v", out.Feedback, want)
	}
	if out.Won {
		t.Fatal("crate should not win")
	}

	out, err = reg.ApplyGuess(ctx, id, "alice", " crane ")
	if err != nil {
		t.Fatalf("guess crane: %v", err)
	}
	if !out.Feedback.Solved() || !out.Won || out.Winner != "alice" {
		t.Fatalf("outcome = %+v, want a win", out)
	}
	if out.Points != 9 {
		t.Fatalf("points = %d, want 9", out.Points)
	}
	if out.Session.State() != game.Won {
		t.Fatalf("state = %v", out.Session.State())
	}

	if _, err := reg.Find(id); !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("won session still registered: %v", err)
	}
	if reg.IsBusy("g1", "alice") {
		t.Fatal("winner still busy")
	}

	if len(stats.completions) != 1 || stats.completions[0] != (completion{"g1", "alice", 9}) {
		t.Fatalf("completions = %+v", stats.completions)
	}
	if len(stats.outcomes) != 1 || stats.outcomes[0] != (outcome{"alice", true, 2, "crate"}) {
		t.Fatalf("outcomes = %+v", stats.outcomes)
	}
}

func TestMultiplayerScenarioMango(t *testing.T) {
	ctx := context.Background()
	stats := &recordingStats{}
	reg := newTestRegistry(newFixedWords("mango", "crane", "slate"), stats, newClock())

	id, _, err := reg.Create(ctx, CreateRequest{
		ScopeID: "g1", ChannelID: "c1", Mode: game.Multiplayer,
		Participants: []string{"p1", "p2", "p3"}, Language: language.English,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := reg.ApplyGuess(ctx, id, "p1", "crane")
	if err != nil {
		t.Fatalf("p1: %v", err)
	}
	if out.Session.TurnIndex != 1 || out.NextPlayer != "p2" {
		t.Fatalf("turn = %d next = %q, want p2", out.Session.TurnIndex, out.NextPlayer)
	}

	before, _ := reg.Find(id)
	_, err = reg.ApplyGuess(ctx, id, "p3", "slate")
	var terr *game.TurnError
	if !errors.As(err, &terr) || terr.Expected != "p2" {
		t.Fatalf("p3 out of turn: %v", err)
	}
	after, _ := reg.Find(id)
	if len(after.Guesses) != len(before.Guesses) || after.TurnIndex != before.TurnIndex {
		t.Fatal("out-of-turn guess changed state")
	}

	out, err = reg.ApplyGuess(ctx, id, "p2", "mango")
	if err != nil {
		t.Fatalf("p2: %v", err)
	}
	if !out.Won || out.Winner != "p2" || out.Points != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	if len(stats.completions) != 0 || len(stats.outcomes) != 0 {
		t.Fatal("multiplayer win must not be recorded in stats")
	}
	if reg.Len() != 0 {
		t.Fatalf("len = %d after win", reg.Len())
	}
}

func TestCreateValidatesParticipants(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(newFixedWords("crane"), nil, newClock())

	var cerr *game.CapacityError
	if _, _, err := reg.Create(ctx, CreateRequest{ScopeID: "g", Mode: game.Multiplayer, Participants: []string{"a", "a"}}); !errors.As(err, &cerr) {
		t.Fatalf("duplicate-only players: %v, want CapacityError", err)
	}
	if _, _, err := reg.Create(ctx, CreateRequest{ScopeID: "g", Mode: game.Multiplayer, Participants: []string{"a", "b", "c", "d", "e", "f"}}); !errors.As(err, &cerr) {
		t.Fatalf("six players: %v, want CapacityError", err)
	}
	if _, _, err := reg.Create(ctx, CreateRequest{ScopeID: "g", Mode: game.Solo}); !errors.As(err, &cerr) {
		t.Fatalf("solo without players: %v, want CapacityError", err)
	}

	_, s, err := reg.Create(ctx, CreateRequest{ScopeID: "g", Mode: game.Multiplayer, Participants: []string{"a", "b", "a", "c"}})
	if err != nil {
		t.Fatalf("create with duplicates: %v", err)
	}
	if got := fmt.Sprint(s.Participants); got != "[a b c]" {
		t.Fatalf("participants = %s", got)
	}

	_, _, err = reg.Create(ctx, CreateRequest{ScopeID: "g", Mode: game.Multiplayer, Participants: []string{"d", "c", "b"}})
	var berr *game.BusyError
	if !errors.As(err, &berr) || fmt.Sprint(berr.Players) != "[c b]" {
		t.Fatalf("busy: %v", err)
	}
	if reg.IsBusy("g", "d") {
		t.Fatal("failed create left d busy")
	}

	// Other scopes are independent.
	if _, _, err := reg.Create(ctx, solo("other", "x", "a")); err != nil {
		t.Fatalf("create in other scope: %v", err)
	}
}

func TestCreateWithoutWords(t *testing.T) {
	reg := newTestRegistry(newFixedWords(""), nil, newClock())
	if _, _, err := reg.Create(context.Background(), solo("g", "c", "a")); !errors.Is(err, game.ErrWordSourceUnavailable) {
		t.Fatalf("err = %v, want ErrWordSourceUnavailable", err)
	}
	if reg.Len() != 0 {
		t.Fatal("session created without a word")
	}
}

func TestConcurrentCreateIsAtomic(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 20; round++ {
		reg := newTestRegistry(newFixedWords("crane"), nil, newClock())
		const attempts = 16
		var wg sync.WaitGroup
		errs := make(chan error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				// Overlapping sets: every attempt includes "shared".
				_, _, err := reg.Create(ctx, CreateRequest{
					ScopeID: "g", Mode: game.Multiplayer,
					Participants: []string{"shared", fmt.Sprintf("p%d", i)},
				})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)

		ok := 0
		for err := range errs {
			var berr *game.BusyError
			switch {
			case err == nil:
				ok++
			case errors.As(err, &berr):
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if ok != 1 || reg.Len() != 1 {
			t.Fatalf("round %d: %d successes, %d sessions", round, ok, reg.Len())
		}
	}
}

func TestConcurrentGuessesAreSerialized(t *testing.T) {
	ctx := context.Background()
	extra := []string{"slate", "cider", "house", "light", "speed", "erase"}
	reg := newTestRegistry(newFixedWords("crane", extra...), nil, newClock())
	id, _, err := reg.Create(ctx, solo("g", "c", "a"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for _, w := range extra {
		wg.Add(1)
		go func(w string) {
			defer wg.Done()
			if _, err := reg.ApplyGuess(ctx, id, "a", w); err != nil {
				t.Errorf("guess %s: %v", w, err)
			}
		}(w)
	}
	wg.Wait()

	s, err := reg.Find(id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(s.Guesses) != len(extra) || len(s.Feedback) != len(extra) {
		t.Fatalf("guesses = %d feedback = %d, want %d", len(s.Guesses), len(s.Feedback), len(extra))
	}

	// Racing winners: exactly one is admitted.
	var wins int
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := reg.ApplyGuess(ctx, id, "a", "crane")
			if err == nil && out.Won {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if err != nil && !errors.Is(err, game.ErrNotFound) {
				var verr *game.ValidationError
				if !errors.As(err, &verr) || verr.Reason != game.AlreadyGuessed {
					t.Errorf("racing winner: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
}

func TestApplyGuessValidation(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(newFixedWords("crane", "slate"), nil, newClock())
	id, _, err := reg.Create(ctx, solo("g", "c", "a"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cases := []struct {
		word   string
		reason game.ValidationReason
	}{
		{"cran", game.WrongLength},
		{"cr4ne", game.NotAlphabetic},
		{"zzzzz", game.NotInDictionary},
	}
	for _, c := range cases {
		_, err := reg.ApplyGuess(ctx, id, "a", c.word)
		var verr *game.ValidationError
		if !errors.As(err, &verr) || verr.Reason != c.reason {
			t.Fatalf("%q: %v, want %v", c.word, err, c.reason)
		}
	}
	if _, err := reg.ApplyGuess(ctx, id, "a", "slate"); err != nil {
		t.Fatalf("slate: %v", err)
	}
	_, err = reg.ApplyGuess(ctx, id, "a", "SLATE")
	var verr *game.ValidationError
	if !errors.As(err, &verr) || verr.Reason != game.AlreadyGuessed {
		t.Fatalf("repeat: %v", err)
	}
	if _, err := reg.ApplyGuess(ctx, id, "b", "crane"); !errors.Is(err, game.ErrNotParticipant) {
		t.Fatalf("outsider: %v", err)
	}
	if _, err := reg.ApplyGuess(ctx, "nope", "a", "crane"); !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("unknown session: %v", err)
	}

	s, _ := reg.Find(id)
	if len(s.Guesses) != 1 {
		t.Fatalf("rejected guesses were recorded: %v", s.Guesses)
	}
}

func TestRendererFailureDoesNotUndoGuess(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(Config{Words: newFixedWords("crane", "slate"), Renderer: failingRenderer{}})
	id, _, err := reg.Create(ctx, solo("g", "c", "a"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	out, err := reg.ApplyGuess(ctx, id, "a", "slate")
	if err != nil {
		t.Fatalf("guess: %v", err)
	}
	if out.Board != nil {
		t.Fatal("board should be omitted when rendering fails")
	}
	if s, _ := reg.Find(id); len(s.Guesses) != 1 {
		t.Fatal("guess was not admitted")
	}
}

func TestForfeit(t *testing.T) {
	ctx := context.Background()
	stats := &recordingStats{}
	reg := newTestRegistry(newFixedWords("crane", "slate"), stats, newClock())
	id, _, err := reg.Create(ctx, solo("g", "c", "a"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := reg.ApplyGuess(ctx, id, "a", "slate"); err != nil {
		t.Fatalf("guess: %v", err)
	}
	if _, err := reg.Forfeit(ctx, id, "b"); !errors.Is(err, game.ErrNotParticipant) {
		t.Fatalf("outsider forfeit: %v", err)
	}

	s, err := reg.Forfeit(ctx, id, "a")
	if err != nil {
		t.Fatalf("forfeit: %v", err)
	}
	if ans, ok := s.Answer(); !ok || ans != "crane" || s.State() != game.Forfeited {
		t.Fatalf("forfeited session: state=%v answer=%q", s.State(), ans)
	}
	if reg.IsBusy("g", "a") {
		t.Fatal("player still busy after forfeit")
	}
	if len(stats.completions) != 1 || stats.completions[0].points != 0 {
		t.Fatalf("completions = %+v", stats.completions)
	}
	if len(stats.outcomes) != 1 || stats.outcomes[0] != (outcome{"a", false, 1, "slate"}) {
		t.Fatalf("outcomes = %+v", stats.outcomes)
	}
	if _, err := reg.Forfeit(ctx, id, "a"); !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("second forfeit: %v", err)
	}
}

func TestExpireOnlyWhenIdle(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	reg := newTestRegistry(newFixedWords("crane"), nil, clk)
	id, _, err := reg.Create(ctx, solo("g", "c", "a"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := reg.Expire(ctx, id, clk.Now()); !errors.Is(err, game.ErrStillActive) {
		t.Fatalf("expire at last activity: %v", err)
	}
	clk.Advance(time.Minute)
	s, err := reg.Expire(ctx, id, clk.Now())
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if s.State() != game.Expired {
		t.Fatalf("state = %v", s.State())
	}
	if _, err := reg.Expire(ctx, id, clk.Now()); !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("second expire: %v", err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	reg := newTestRegistry(newFixedWords("crane", "slate"), nil, clk)
	first, _, _ := reg.Create(ctx, solo("g", "c", "a"))
	clk.Advance(time.Second)
	second, _, _ := reg.Create(ctx, solo("g", "c", "b"))

	snap := reg.Snapshot()
	if len(snap) != 2 || snap[0].ID != first || snap[1].ID != second {
		t.Fatalf("snapshot order = %+v", snap)
	}
	snap[0].Session.Guesses = append(snap[0].Session.Guesses, "zzzzz")
	snap[0].Session.Participants[0] = "mallory"

	s, _ := reg.Find(first)
	if len(s.Guesses) != 0 || s.Participants[0] != "a" {
		t.Fatal("snapshot mutation leaked into registry")
	}

	id, found, err := reg.FindByParticipantInChannel("c", "b")
	if err != nil || id != second || found.Participants[0] != "b" {
		t.Fatalf("find by participant = %q, %v", id, err)
	}
	if _, _, err := reg.FindByParticipantInChannel("elsewhere", "b"); !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("wrong channel: %v", err)
	}
}

func TestRemoveDetachesWithoutEnding(t *testing.T) {
	ctx := context.Background()
	stats := &recordingStats{}
	reg := newTestRegistry(newFixedWords("mango", "crane"), stats, newClock())
	id, _, err := reg.Create(ctx, CreateRequest{
		ScopeID: "g", ChannelID: "c", Mode: game.Multiplayer,
		Participants: []string{"p1", "p2"}, Language: language.English,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	s, err := reg.Remove(id)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s.ID != id || s.State() != game.Open {
		t.Fatalf("removed session: id=%q state=%v", s.ID, s.State())
	}
	if _, err := reg.Find(id); !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("removed session still registered: %v", err)
	}
	for _, p := range []string{"p1", "p2"} {
		if reg.IsBusy("g", p) {
			t.Fatalf("%s still busy after remove", p)
		}
	}
	if reg.Len() != 0 {
		t.Fatalf("len = %d", reg.Len())
	}
	if _, err := reg.Remove(id); !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("second remove: %v", err)
	}
	if len(stats.completions) != 0 || len(stats.outcomes) != 0 {
		t.Fatal("remove recorded stats")
	}

	// The players are free to start again.
	if _, _, err := reg.Create(ctx, solo("g", "c", "p1")); err != nil {
		t.Fatalf("create after remove: %v", err)
	}
}

func TestLookupAcrossScopesSharingAChannel(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	reg := newTestRegistry(newFixedWords("crane"), nil, clk)
	a, _, err := reg.Create(ctx, solo("scopeA", "c", "p"))
	if err != nil {
		t.Fatalf("create in scopeA: %v", err)
	}
	clk.Advance(time.Second)
	b, _, err := reg.Create(ctx, solo("scopeB", "c", "p"))
	if err != nil {
		t.Fatalf("create in scopeB: %v", err)
	}

	for i := 0; i < 50; i++ {
		if id, s, err := reg.FindInScope("scopeA", "c", "p"); err != nil || id != a || s.ScopeID != "scopeA" {
			t.Fatalf("scopeA lookup = %q, %v", id, err)
		}
		if id, s, err := reg.FindInScope("scopeB", "c", "p"); err != nil || id != b || s.ScopeID != "scopeB" {
			t.Fatalf("scopeB lookup = %q, %v", id, err)
		}
		if id, _, err := reg.FindByParticipantInChannel("c", "p"); err != nil || id != a {
			t.Fatalf("channel lookup = %q, %v, want the oldest session %q", id, err, a)
		}
	}

	if _, _, err := reg.FindInScope("scopeA", "other", "p"); !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("other channel: %v", err)
	}
	if _, _, err := reg.FindInScope("scopeC", "c", "p"); !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("other scope: %v", err)
	}
	if _, _, err := reg.FindInScope("scopeA", "c", "q"); !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("other player: %v", err)
	}
}
