package inmemoryimpl

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"fitspo-feed/feed"

	"github.com/google/uuid"
)

type Option func(*InMemoryManager)

// WithoutCompositeResume makes score-ordered cursors look like they cannot
// resume a composite scan, as with a store lacking the composite index.
func WithoutCompositeResume() Option {
	return func(m *InMemoryManager) { m.composite = false }
}

func WithClock(now func() time.Time) Option {
	return func(m *InMemoryManager) { m.now = now }
}

type InMemoryManager struct {
	mu        sync.RWMutex
	userPosts map[string][]string
	allPosts  map[string]feed.PostRecord
	composite bool
	now       func() time.Time
}

func NewInMemoryManager(opts ...Option) *InMemoryManager {
	m := &InMemoryManager{
		userPosts: make(map[string][]string),
		allPosts:  make(map[string]feed.PostRecord),
		composite: true,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (manager *InMemoryManager) AddPost(_ context.Context, post feed.NewPost) (feed.PostRecord, error) {
	if post.AuthorID == "" {
		return feed.PostRecord{}, fmt.Errorf("%w: author id is required", feed.ErrInvalidArgument)
	}
	record := feed.PostRecord{
		ID:        uuid.NewString(),
		AuthorID:  post.AuthorID,
		CreatedAt: manager.now().UTC().Truncate(time.Millisecond),
		Location:  post.Location,
		ImageURL:  post.ImageURL,
		Caption:   post.Caption,
		City:      post.City,
		Hashtags:  post.Hashtags,
	}
	manager.Put(record)
	return record, nil
}

// Put stores record as is, replacing any post with the same ID.
func (manager *InMemoryManager) Put(records ...feed.PostRecord) {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	for _, record := range records {
		record.CreatedAt = record.CreatedAt.UTC().Truncate(time.Millisecond)
		if _, ok := manager.allPosts[record.ID]; !ok {
			manager.userPosts[record.AuthorID] = append(manager.userPosts[record.AuthorID], record.ID)
		}
		manager.allPosts[record.ID] = record
	}
}

// SetCounters overwrites the interaction counters of an existing post.
func (manager *InMemoryManager) SetCounters(_ context.Context, postID string, likes, comments, shares int) error {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	post, ok := manager.allPosts[postID]
	if !ok {
		return feed.ErrNotFound
	}
	post.LikeCount, post.CommentCount, post.ShareCount = likes, comments, shares
	manager.allPosts[postID] = post
	return nil
}

func (manager *InMemoryManager) GetPost(_ context.Context, postId string) (feed.PostRecord, error) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	post, ok := manager.allPosts[postId]
	if !ok {
		return feed.PostRecord{}, feed.ErrNotFound
	}
	return post, nil
}

func (manager *InMemoryManager) FetchPostsOrderedByScore(ctx context.Context, cursor *feed.Cursor, pageSize int) (feed.StorePage, error) {
	if cursor != nil {
		pos, err := feed.DecodePosition(cursor.Token)
		if err != nil {
			return feed.StorePage{}, err
		}
		if pos.Score == nil {
			return feed.StorePage{}, fmt.Errorf("%w: cursor cannot resume score order", feed.ErrInvalidArgument)
		}
	}
	cmp := func(a, b feed.PostRecord) int {
		return feed.CompareHot(
			feed.ScoredPost{Post: a, Score: feed.InteractionScore(a)},
			feed.ScoredPost{Post: b, Score: feed.InteractionScore(b)},
		)
	}
	after := func(post feed.PostRecord, pos feed.Position) bool {
		score := feed.InteractionScore(post)
		if score != *pos.Score {
			return score < *pos.Score
		}
		return afterRecency(post, pos)
	}
	position := func(post feed.PostRecord) feed.Position {
		score := feed.InteractionScore(post)
		return feed.PositionOf(post, &score)
	}
	return manager.page(ctx, cursor, pageSize, cmp, after, position, manager.composite)
}

func (manager *InMemoryManager) FetchPostsOrderedByRecency(ctx context.Context, cursor *feed.Cursor, pageSize int) (feed.StorePage, error) {
	position := func(post feed.PostRecord) feed.Position {
		return feed.PositionOf(post, nil)
	}
	return manager.page(ctx, cursor, pageSize, feed.CompareRecency, afterRecency, position, false)
}

func afterRecency(post feed.PostRecord, pos feed.Position) bool {
	t := post.CreatedAt.UnixMilli()
	if t != pos.CreatedAt {
		return t < pos.CreatedAt
	}
	return post.ID > pos.ID
}

func (manager *InMemoryManager) page(
	ctx context.Context,
	cursor *feed.Cursor,
	size int,
	cmp func(a, b feed.PostRecord) int,
	after func(feed.PostRecord, feed.Position) bool,
	position func(feed.PostRecord) feed.Position,
	composite bool,
) (feed.StorePage, error) {
	if err := ctx.Err(); err != nil {
		return feed.StorePage{}, err
	}
	if size <= 0 {
		return feed.StorePage{}, fmt.Errorf("%w: page size must be positive", feed.ErrInvalidArgument)
	}

	var pos *feed.Position
	if cursor != nil {
		p, err := feed.DecodePosition(cursor.Token)
		if err != nil {
			return feed.StorePage{}, err
		}
		pos = &p
	}

	manager.mu.RLock()
	posts := make([]feed.PostRecord, 0, len(manager.allPosts))
	for _, post := range manager.allPosts {
		if pos == nil || after(post, *pos) {
			posts = append(posts, post)
		}
	}
	manager.mu.RUnlock()

	slices.SortFunc(posts, cmp)
	if len(posts) <= size {
		return feed.StorePage{Posts: posts}, nil
	}
	posts = posts[:size]
	next := &feed.Cursor{
		Token:                        feed.EncodePosition(position(posts[len(posts)-1])),
		SupportsCompositeOrderResume: composite,
	}
	return feed.StorePage{Posts: posts, Next: next}, nil
}

func (manager *InMemoryManager) IsReady(_ context.Context) bool {
	return true
}
