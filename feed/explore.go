package feed

import (
	"context"
	"time"
)

const (
	defaultExploreScan  = 80
	defaultExploreLimit = 12
	defaultTopToday     = 10
)

type ExploreQuery struct {
	// City is matched case-insensitively as a substring of the post's city.
	City     string
	Since    time.Time
	ScanSize int
	Limit    int
}

// Explorer builds the explore screen sections: the most liked posts among
// the newest ScanSize posts matching a query.
type Explorer struct {
	paginator *Paginator
}

func NewExplorer(paginator *Paginator) *Explorer {
	return &Explorer{paginator: paginator}
}

func (e *Explorer) Section(ctx context.Context, q ExploreQuery) ([]PostRecord, error) {
	if q.ScanSize <= 0 {
		q.ScanSize = defaultExploreScan
	}
	if q.Limit <= 0 {
		q.Limit = defaultExploreLimit
	}

	var filters []Filter
	if q.City != "" {
		filters = append(filters, CityContains(q.City))
	}
	if !q.Since.IsZero() {
		filters = append(filters, CreatedSince(q.Since))
	}

	page, err := e.paginator.FetchPage(ctx, nil, q.ScanSize, OrderRecency, filters...)
	if err != nil {
		return nil, err
	}

	top := NewTopN[int](q.Limit, func(a, b PostRecord) bool {
		return CompareRecency(a, b) < 0
	})
	for _, post := range page.Posts {
		top.Offer(post.LikeCount, post)
	}
	return top.Sorted(), nil
}

// TopToday returns the most liked posts from the 24 hours before asOf.
func (e *Explorer) TopToday(ctx context.Context, asOf time.Time, limit int) ([]PostRecord, error) {
	if limit <= 0 {
		limit = defaultTopToday
	}
	return e.Section(ctx, ExploreQuery{
		Since: asOf.Add(-24 * time.Hour),
		Limit: limit,
	})
}
