package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

const (
	defaultMaxBatches   = 10
	defaultFetchTimeout = 10 * time.Second

	// pageCapHint bounds preallocation; page sizes are not otherwise capped.
	pageCapHint = 256
)

// HotPager is what the rank cache needs from a hot feed.
type HotPager interface {
	FetchHotPage(ctx context.Context, cursor *Cursor, pageSize int, asOf time.Time) (FeedPage, error)
}

type HotOption func(*HotPaginator)

func WithScorer(scorer Scorer) HotOption {
	return func(p *HotPaginator) { p.scorer = scorer }
}

// WithLocation sets the time zone whose calendar day decides "today".
func WithLocation(loc *time.Location) HotOption {
	return func(p *HotPaginator) { p.loc = loc }
}

// WithMaxBatches bounds the number of store fetches a single call may issue.
func WithMaxBatches(n int) HotOption {
	return func(p *HotPaginator) { p.maxBatches = n }
}

func WithHotFetchTimeout(d time.Duration) HotOption {
	return func(p *HotPaginator) { p.fetchTimeout = d }
}

func WithHotLogger(logger *slog.Logger) HotOption {
	return func(p *HotPaginator) { p.logger = logger }
}

// HotPaginator pages through today's posts by hotness. It holds no mutable
// state and may be shared between goroutines.
type HotPaginator struct {
	store        Store
	scorer       Scorer
	loc          *time.Location
	maxBatches   int
	fetchTimeout time.Duration
	logger       *slog.Logger
}

func NewHotPaginator(store Store, opts ...HotOption) *HotPaginator {
	p := &HotPaginator{
		store:        store,
		scorer:       InteractionScore,
		loc:          time.Local,
		maxBatches:   defaultMaxBatches,
		fetchTimeout: defaultFetchTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxBatches < 1 {
		p.maxBatches = 1
	}
	return p
}

func (p *HotPaginator) Scorer() Scorer {
	return p.scorer
}

// FetchHotPage returns up to pageSize of the hottest posts created on asOf's
// calendar day, at most one per author. The returned cursor points after the
// last document read from the store, so posts dropped by the day filter or by
// author dedup are not revisited.
//
// If cursor cannot resume a composite (score, time) scan, the page is read in
// recency order instead and flagged Approximate. That scan resumes after the
// cursor's (createdAt, id), not its score, so across a fallback posts already
// served may repeat and newer, lower scored posts may never be reached.
func (p *HotPaginator) FetchHotPage(ctx context.Context, cursor *Cursor, pageSize int, asOf time.Time) (FeedPage, error) {
	if err := validatePageArgs(cursor, pageSize); err != nil {
		return FeedPage{}, err
	}

	fetch := p.store.FetchPostsOrderedByScore
	approximate := cursor != nil && !cursor.SupportsCompositeOrderResume
	if approximate {
		fetch = p.store.FetchPostsOrderedByRecency
		p.logger.Debug("hot feed cursor lacks composite order, falling back to recency")
	}

	since := StartOfDay(asOf, p.loc)
	picked := make([]ScoredPost, 0, min(pageSize, pageCapHint))
	byAuthor := make(map[string]int, min(pageSize, pageCapHint))

	next := cursor
	for batch := 0; batch < p.maxBatches && len(picked) < pageSize; batch++ {
		page, err := fetchWithTimeout(ctx, p.fetchTimeout, fetch, next, pageSize-len(picked))
		if err != nil {
			return FeedPage{}, err
		}
		next = page.Next

		for _, post := range page.Posts {
			if post.CreatedAt.Before(since) {
				continue
			}
			scored := ScoredPost{Post: post, Score: p.scorer(post)}
			if i, ok := byAuthor[post.AuthorID]; ok {
				if CompareHot(scored, picked[i]) < 0 {
					picked[i] = scored
				}
				continue
			}
			byAuthor[post.AuthorID] = len(picked)
			picked = append(picked, scored)
		}

		if next == nil || len(page.Posts) == 0 {
			break
		}
	}

	slices.SortFunc(picked, CompareHot)
	out := FeedPage{
		Posts:       make([]PostRecord, len(picked)),
		Cursor:      next,
		Approximate: approximate,
	}
	for i, sp := range picked {
		out.Posts[i] = sp.Post
	}
	return out, nil
}

type fetchFunc func(ctx context.Context, cursor *Cursor, pageSize int) (StorePage, error)

func fetchWithTimeout(ctx context.Context, timeout time.Duration, fetch fetchFunc, cursor *Cursor, pageSize int) (StorePage, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	page, err := fetch(ctx, cursor, pageSize)
	if err != nil {
		if errors.Is(err, ErrInvalidArgument) {
			return StorePage{}, err
		}
		return StorePage{}, fmt.Errorf("%w: %w", ErrStoreFetchFailed, err)
	}
	return page, nil
}

func validatePageArgs(cursor *Cursor, pageSize int) error {
	if pageSize <= 0 {
		return fmt.Errorf("%w: page size must be positive, got %d", ErrInvalidArgument, pageSize)
	}
	if cursor != nil && cursor.Token == "" {
		return fmt.Errorf("%w: cursor without token", ErrInvalidArgument)
	}
	return nil
}
