package feed

import (
	"context"
	"time"
)

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PostRecord is one user post as read from the store. Counters may go up or
// down between reads since likes can be toggled off.
type PostRecord struct {
	ID           string    `json:"id"`
	AuthorID     string    `json:"authorId"`
	CreatedAt    time.Time `json:"createdAt"`
	LikeCount    int       `json:"likeCount"`
	CommentCount int       `json:"commentCount"`
	ShareCount   int       `json:"shareCount"`
	Location     *GeoPoint `json:"location,omitempty"`

	ImageURL string   `json:"imageUrl,omitempty"`
	Caption  string   `json:"caption,omitempty"`
	City     string   `json:"city,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
}

// NewPost carries the author-supplied fields of a post about to be stored.
type NewPost struct {
	AuthorID string
	ImageURL string
	Caption  string
	City     string
	Hashtags []string
	Location *GeoPoint
}

type ScoredPost struct {
	Post  PostRecord
	Score int
}

// FeedPage is one page handed back to a caller. A nil Cursor means there is
// nothing left to fetch. Approximate is set when the hot paginator had to fall
// back to recency order for the page.
type FeedPage struct {
	Posts       []PostRecord
	Cursor      *Cursor
	Approximate bool
}

type StorePage struct {
	Posts []PostRecord
	Next  *Cursor
}

// Store is the narrow view of the document store the ranking core depends on.
// Both methods return a nil Next cursor once the stream is exhausted. A store
// may return fewer than pageSize posts together with a Next cursor.
type Store interface {
	FetchPostsOrderedByScore(ctx context.Context, cursor *Cursor, pageSize int) (StorePage, error)
	FetchPostsOrderedByRecency(ctx context.Context, cursor *Cursor, pageSize int) (StorePage, error)
}

// CounterWriter is implemented by stores that accept interaction counter
// updates from the services that own likes, comments and shares.
type CounterWriter interface {
	SetCounters(ctx context.Context, postID string, likes, comments, shares int) error
}

type Manager interface {
	Store
	AddPost(ctx context.Context, post NewPost) (PostRecord, error)
	GetPost(ctx context.Context, postID string) (PostRecord, error)
	IsReady(ctx context.Context) bool
}
