package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultRankPageSize   = 100
	defaultRankLimit      = 100
	defaultRefreshTimeout = time.Minute
	dayKeyLayout          = "2006-01-02"
)

// SnapshotStore shares a day's ranking between processes.
type SnapshotStore interface {
	LoadRanks(ctx context.Context, day string) (map[string]int, bool, error)
	SaveRanks(ctx context.Context, day string, ranks map[string]int) error
}

type RankOption func(*RankCache)

func WithRankLocation(loc *time.Location) RankOption {
	return func(c *RankCache) { c.loc = loc }
}

func WithRankPageSize(n int) RankOption {
	return func(c *RankCache) { c.pageSize = n }
}

func WithRankLimit(n int) RankOption {
	return func(c *RankCache) { c.limit = n }
}

// WithRefreshTimeout bounds a whole rebuild. The rebuild does not inherit the
// cancellation of the caller that started it.
func WithRefreshTimeout(d time.Duration) RankOption {
	return func(c *RankCache) { c.refreshTimeout = d }
}

func WithSnapshots(store SnapshotStore) RankOption {
	return func(c *RankCache) { c.snapshots = store }
}

func WithRankLogger(logger *slog.Logger) RankOption {
	return func(c *RankCache) { c.logger = logger }
}

type rankTable struct {
	day   time.Time
	ranks map[string]int
}

// RankCache maps post IDs to their position in the day's hot feed. The table
// is rebuilt at most once per calendar day and swapped in whole, so readers
// never observe a partially built table.
type RankCache struct {
	hot            HotPager
	loc            *time.Location
	pageSize       int
	limit          int
	refreshTimeout time.Duration
	snapshots      SnapshotStore
	logger         *slog.Logger

	table atomic.Pointer[rankTable]
	group singleflight.Group
	scans atomic.Int64
}

func NewRankCache(hot HotPager, opts ...RankOption) *RankCache {
	c := &RankCache{
		hot:            hot,
		loc:            time.Local,
		pageSize:       defaultRankPageSize,
		limit:          defaultRankLimit,
		refreshTimeout: defaultRefreshTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rank returns the 1-based rank of postID in the current table.
func (c *RankCache) Rank(postID string) (int, bool) {
	t := c.table.Load()
	if t == nil {
		return 0, false
	}
	rank, ok := t.ranks[postID]
	return rank, ok
}

// LastRefresh returns the day the current table was built for.
func (c *RankCache) LastRefresh() (time.Time, bool) {
	t := c.table.Load()
	if t == nil {
		return time.Time{}, false
	}
	return t.day, true
}

func (c *RankCache) Len() int {
	t := c.table.Load()
	if t == nil {
		return 0
	}
	return len(t.ranks)
}

// Scans reports how many hot feed scans the cache has started.
func (c *RankCache) Scans() int64 {
	return c.scans.Load()
}

// RefreshIfNeeded rebuilds the table when it was built for a day before
// asOf's. A table for a later day is never replaced by an earlier one.
// Concurrent callers share one rebuild. On failure the previous table stays
// in place and the error is returned; the next call retries.
func (c *RankCache) RefreshIfNeeded(ctx context.Context, asOf time.Time) error {
	today := StartOfDay(asOf, c.loc)
	if c.fresh(today) {
		return nil
	}

	key := today.Format(dayKeyLayout)
	ch := c.group.DoChan(key, func() (any, error) {
		if c.fresh(today) {
			return nil, nil
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
		defer cancel()
		return nil, c.rebuild(rctx, today, key)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (c *RankCache) fresh(today time.Time) bool {
	t := c.table.Load()
	return t != nil && !t.day.Before(today)
}

// install swaps next in unless a table for a later day got there first.
func (c *RankCache) install(next *rankTable) bool {
	for {
		cur := c.table.Load()
		if cur != nil && cur.day.After(next.day) {
			return false
		}
		if c.table.CompareAndSwap(cur, next) {
			return true
		}
	}
}

func (c *RankCache) rebuild(ctx context.Context, today time.Time, key string) error {
	if c.snapshots != nil {
		ranks, ok, err := c.snapshots.LoadRanks(ctx, key)
		if err != nil {
			c.logger.Warn("load rank snapshot failed", "day", key, "error", err)
		} else if ok {
			if c.install(&rankTable{day: today, ranks: ranks}) {
				c.logger.Info("rank cache loaded from snapshot", "day", key, "ranked", len(ranks))
			}
			return nil
		}
	}

	c.scans.Add(1)
	start := time.Now()
	ranks := make(map[string]int, c.limit)
	var cursor *Cursor
	for len(ranks) < c.limit {
		page, err := c.hot.FetchHotPage(ctx, cursor, c.pageSize, today)
		if err != nil {
			c.logger.Error("rank cache refresh failed", "day", key, "error", err)
			return fmt.Errorf("refresh ranks for %s: %w", key, err)
		}
		for _, post := range page.Posts {
			if len(ranks) == c.limit {
				break
			}
			if _, seen := ranks[post.ID]; seen {
				continue
			}
			ranks[post.ID] = len(ranks) + 1
		}
		if page.Cursor == nil {
			break
		}
		cursor = page.Cursor
	}

	if !c.install(&rankTable{day: today, ranks: ranks}) {
		c.logger.Info("rank cache already holds a later day, dropping rebuild", "day", key)
		return nil
	}
	c.logger.Info("rank cache refreshed", "day", key, "ranked", len(ranks), "duration", time.Since(start))

	if c.snapshots != nil {
		if err := c.snapshots.SaveRanks(ctx, key, ranks); err != nil {
			c.logger.Warn("save rank snapshot failed", "day", key, "error", err)
		}
	}
	return nil
}
