// internal/cache/leaderboard_cache.go
//
// Redis sorted-set mirror of the points leaderboard.
//   - One ZSET per scope; the score packs points and games played.
//   - AddResult increments in place; Replace rebuilds a scope atomically.
//   - GetTop and GetRank serve reads; SQLite stays the source of truth.

package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// scoreShift packs points and games played into one ZSET score:
// points*scoreShift - games. Higher points rank first, fewer games break ties.
const scoreShift = 1 << 20

// LeaderboardCache mirrors the points leaderboard in Redis sorted sets.
type LeaderboardCache interface {
	AddResult(ctx context.Context, scopeID, playerID string, points int) error
	Replace(ctx context.Context, scopeID string, entries []LeaderboardEntry) error
	GetTop(ctx context.Context, scopeID string, limit int) ([]LeaderboardEntry, error)
	GetRank(ctx context.Context, scopeID, playerID string) (int64, error)
}

// LeaderboardEntry represents a single leaderboard entry
type LeaderboardEntry struct {
	PlayerID    string `json:"playerId"`
	Points      int    `json:"points"`
	GamesPlayed int    `json:"gamesPlayed"`
	Rank        int    `json:"rank"`
}

type leaderboardCache struct {
	client *redis.Client
	prefix string
}

// NewLeaderboardCache creates a new leaderboard cache
func NewLeaderboardCache(client *redis.Client) LeaderboardCache {
	return &leaderboardCache{client: client, prefix: "wordler"}
}

func (c *leaderboardCache) key(scopeID string) string {
	return fmt.Sprintf("%s:scope:%s:lb", c.prefix, scopeID)
}

// AddResult counts one finished game worth points.
func (c *leaderboardCache) AddResult(ctx context.Context, scopeID, playerID string, points int) error {
	return c.client.ZIncrBy(ctx, c.key(scopeID), float64(points*scoreShift-1), playerID).Err()
}

// Replace overwrites the scope's set with entries in one transaction.
func (c *leaderboardCache) Replace(ctx context.Context, scopeID string, entries []LeaderboardEntry) error {
	key := c.key(scopeID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(entries) == 0 {
			return nil
		}
		members := make([]redis.Z, len(entries))
		for i, e := range entries {
			members[i] = redis.Z{Score: EncodeScore(e.Points, e.GamesPlayed), Member: e.PlayerID}
		}
		pipe.ZAdd(ctx, key, members...)
		return nil
	})
	return err
}

func (c *leaderboardCache) GetTop(ctx context.Context, scopeID string, limit int) ([]LeaderboardEntry, error) {
	results, err := c.client.ZRevRangeWithScores(ctx, c.key(scopeID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, len(results))
	for i, z := range results {
		points, games := DecodeScore(z.Score)
		member, _ := z.Member.(string)
		entries[i] = LeaderboardEntry{
			PlayerID:    member,
			Points:      points,
			GamesPlayed: games,
			Rank:        i + 1,
		}
	}
	return entries, nil
}

// GetRank returns the 1-based rank, or -1 when the player has no entry.
func (c *leaderboardCache) GetRank(ctx context.Context, scopeID, playerID string) (int64, error) {
	rank, err := c.client.ZRevRank(ctx, c.key(scopeID), playerID).Result()
	if err == redis.Nil {
		return -1, nil
	}
	return rank + 1, err // 1-indexed
}

// EncodeScore packs totals into a sortable ZSET score.
func EncodeScore(points, games int) float64 {
	return float64(points*scoreShift - games)
}

// DecodeScore reverses EncodeScore for games < scoreShift.
func DecodeScore(score float64) (points, games int) {
	s := int(score)
	points = (s + scoreShift - 1) / scoreShift
	games = points*scoreShift - s
	return points, games
}
