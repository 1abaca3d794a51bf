package redisimpl

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const rankSnapshotTTL = 48 * time.Hour

func keyForRanks(day string) string { return "hot:ranks:" + day }

// RankSnapshots keeps each day's post rank table in a Redis hash so that
// replicas can share one ranking per day.
type RankSnapshots struct {
	client *redis.Client
}

func NewRankSnapshots(client *redis.Client) *RankSnapshots {
	return &RankSnapshots{client: client}
}

func (s *RankSnapshots) LoadRanks(ctx context.Context, day string) (map[string]int, bool, error) {
	raw, err := s.client.HGetAll(ctx, keyForRanks(day)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("load ranks for %s: %w", day, err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	ranks := make(map[string]int, len(raw))
	for id, v := range raw {
		rank, err := strconv.Atoi(v)
		if err != nil {
			return nil, false, fmt.Errorf("rank of %s for %s: %w", id, day, err)
		}
		ranks[id] = rank
	}
	return ranks, true, nil
}

// SaveRanks replaces the day's table. An empty table is not written, so a
// day with no posts is recomputed by the next process that asks.
func (s *RankSnapshots) SaveRanks(ctx context.Context, day string, ranks map[string]int) error {
	if len(ranks) == 0 {
		return nil
	}
	fields := make(map[string]any, len(ranks))
	for id, rank := range ranks {
		fields[id] = rank
	}
	key := keyForRanks(day)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, rankSnapshotTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save ranks for %s: %w", day, err)
	}
	return nil
}
