package feed

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

type OrderKey string

const OrderRecency OrderKey = "recency"

// Filter is a post-fetch predicate. Filters run on each fetched page, so a
// filtered page can come back short while more matches sit further down the
// stream; keep paging until the cursor is nil to see all of them.
type Filter func(post PostRecord) bool

func CityContains(city string) Filter {
	needle := strings.ToLower(strings.TrimSpace(city))
	return func(post PostRecord) bool {
		return strings.Contains(strings.ToLower(post.City), needle)
	}
}

func CreatedSince(t time.Time) Filter {
	return func(post PostRecord) bool {
		return !post.CreatedAt.Before(t)
	}
}

// CreatedBetween keeps posts with from <= CreatedAt < to.
func CreatedBetween(from, to time.Time) Filter {
	return func(post PostRecord) bool {
		return !post.CreatedAt.Before(from) && post.CreatedAt.Before(to)
	}
}

func HasLocation() Filter {
	return func(post PostRecord) bool {
		return post.Location != nil
	}
}

func ByAuthor(authorID string) Filter {
	return func(post PostRecord) bool {
		return post.AuthorID == authorID
	}
}

// Paginator serves chronological feeds: newest first, no scoring, no dedup.
type Paginator struct {
	store        Store
	fetchTimeout time.Duration
}

func NewPaginator(store Store, fetchTimeout time.Duration) *Paginator {
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	return &Paginator{store: store, fetchTimeout: fetchTimeout}
}

func (p *Paginator) FetchPage(ctx context.Context, cursor *Cursor, pageSize int, order OrderKey, filters ...Filter) (FeedPage, error) {
	if order != OrderRecency {
		return FeedPage{}, fmt.Errorf("%w: unsupported order %q", ErrInvalidArgument, order)
	}
	if err := validatePageArgs(cursor, pageSize); err != nil {
		return FeedPage{}, err
	}

	page, err := fetchWithTimeout(ctx, p.fetchTimeout, p.store.FetchPostsOrderedByRecency, cursor, pageSize)
	if err != nil {
		return FeedPage{}, err
	}

	posts := make([]PostRecord, 0, len(page.Posts))
	for _, post := range page.Posts {
		if matchesAll(post, filters) {
			posts = append(posts, post)
		}
	}
	slices.SortFunc(posts, CompareRecency)
	return FeedPage{Posts: posts, Cursor: page.Next}, nil
}

func matchesAll(post PostRecord, filters []Filter) bool {
	for _, f := range filters {
		if !f(post) {
			return false
		}
	}
	return true
}
