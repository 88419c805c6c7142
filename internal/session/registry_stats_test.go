package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/robalobadob/wordler/internal/db"
	"github.com/robalobadob/wordler/internal/stats"
)

func TestFinishedSoloRecordedAfterCallerCancels(t *testing.T) {
	conn, err := db.OpenAndMigrate(filepath.Join(t.TempDir(), "wordler.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	agg := stats.New(conn, nil)
	reg := newTestRegistry(newFixedWords("crane", "slate"), agg, newClock())

	won, _, err := reg.Create(context.Background(), solo("g", "c", "p"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := reg.ApplyGuess(ctx, won, "p", "crane")
	if err != nil {
		t.Fatalf("guess: %v", err)
	}
	if !out.Won || out.Points != 10 {
		t.Fatalf("outcome = won %v points %d", out.Won, out.Points)
	}

	forfeited, _, err := reg.Create(context.Background(), solo("g", "c", "p"))
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if _, err := reg.ApplyGuess(context.Background(), forfeited, "p", "slate"); err != nil {
		t.Fatalf("guess slate: %v", err)
	}
	if _, err := reg.Forfeit(ctx, forfeited, "p"); err != nil {
		t.Fatalf("forfeit: %v", err)
	}

	bg := context.Background()
	totals, err := agg.Points(bg, "g", "p")
	if err != nil {
		t.Fatalf("points: %v", err)
	}
	if totals.ScopePoints != 10 || totals.ScopeGames != 2 || totals.GlobalGames != 2 {
		t.Fatalf("totals = %+v", totals)
	}
	d, err := agg.PlayerStats(bg, "p")
	if err != nil {
		t.Fatalf("player stats: %v", err)
	}
	if d.Wins != 1 || d.Losses != 1 || d.Distribution[1] != 1 {
		t.Fatalf("detailed = %+v", d)
	}
}
