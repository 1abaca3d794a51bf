package feed_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fitspo-feed/feed"
)

var (
	ctx  = context.Background()
	asOf = time.Date(2026, 10, 15, 18, 0, 0, 0, time.UTC)
)

func post(id, author string, createdAt time.Time, likes, comments, shares int) feed.PostRecord {
	return feed.PostRecord{
		ID:           id,
		AuthorID:     author,
		CreatedAt:    createdAt,
		LikeCount:    likes,
		CommentCount: comments,
		ShareCount:   shares,
	}
}

func ids(posts []feed.PostRecord) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

// stubStore wraps another store and counts, blocks or fails calls.
type stubStore struct {
	inner feed.Store

	scoreCalls   atomic.Int64
	recencyCalls atomic.Int64

	mu      sync.Mutex
	failErr error
	gate    chan struct{}
}

func (s *stubStore) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

func (s *stubStore) before(ctx context.Context) error {
	s.mu.Lock()
	err, gate := s.failErr, s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *stubStore) FetchPostsOrderedByScore(ctx context.Context, cursor *feed.Cursor, pageSize int) (feed.StorePage, error) {
	s.scoreCalls.Add(1)
	if err := s.before(ctx); err != nil {
		return feed.StorePage{}, err
	}
	return s.inner.FetchPostsOrderedByScore(ctx, cursor, pageSize)
}

func (s *stubStore) FetchPostsOrderedByRecency(ctx context.Context, cursor *feed.Cursor, pageSize int) (feed.StorePage, error) {
	s.recencyCalls.Add(1)
	if err := s.before(ctx); err != nil {
		return feed.StorePage{}, err
	}
	return s.inner.FetchPostsOrderedByRecency(ctx, cursor, pageSize)
}

func manyPosts(n int, day time.Time) []feed.PostRecord {
	posts := make([]feed.PostRecord, n)
	for i := range posts {
		posts[i] = post(fmt.Sprintf("p%03d", i), fmt.Sprintf("u%03d", i), day.Add(-time.Duration(i)*time.Minute), n-i, 0, 0)
	}
	return posts
}
