package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordler/internal/cache"
	"github.com/robalobadob/wordler/internal/config"
	"github.com/robalobadob/wordler/internal/db"
	"github.com/robalobadob/wordler/internal/httpserver"
	"github.com/robalobadob/wordler/internal/notify"
	"github.com/robalobadob/wordler/internal/render"
	"github.com/robalobadob/wordler/internal/session"
	"github.com/robalobadob/wordler/internal/settings"
	"github.com/robalobadob/wordler/internal/stats"
	"github.com/robalobadob/wordler/internal/words"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := words.Load(cfg.WordsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load word lists")
	}

	conn, err := db.OpenAndMigrate(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("failed to open database")
	}
	defer conn.Close()

	var lb cache.LeaderboardCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		lb = cache.NewLeaderboardCache(rdb)
	}
	agg := stats.New(conn, lb)
	if lb != nil {
		if err := agg.SyncCache(ctx); err != nil {
			log.Warn().Err(err).Str("redis", cfg.RedisAddr).Msg("leaderboard cache unavailable; serving from sqlite")
		}
	}

	hub := notify.NewHub(cfg.ClientOrigin)
	registry := session.NewRegistry(session.Config{
		Words:     src,
		Stats:     agg,
		Renderer:  render.Text{},
		Keyboards: src,
	})
	reaper := session.NewReaper(session.ReaperConfig{
		Registry:    registry,
		Notifier:    hub,
		Channels:    hub,
		Interval:    cfg.ReapInterval,
		IdleTimeout: cfg.IdleTimeout,
	})
	reaper.Start(ctx)

	srv := httpserver.New(httpserver.Deps{
		Registry: registry,
		Stats:    agg,
		Settings: settings.New(conn),
		Words:    src,
		Hub:      hub,
		Auth: httpserver.AuthConfig{
			Secret:       cfg.JWTSecret,
			TokenTTL:     cfg.TokenTTL(),
			AdminKeyHash: cfg.AdminKeyHash,
		},
		ClientOrigin:   cfg.ClientOrigin,
		RequestTimeout: cfg.RequestTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Strs("languages", languageNames(src)).Msg("starting wordler")
		errCh <- srv.Start(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server exited")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	reaper.Stop()
	hub.Close()
	log.Info().Int("abandonedSessions", registry.Len()).Msg("stopped")
}

func languageNames(src *words.Source) []string {
	tags := src.Languages()
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.String()
	}
	return out
}
