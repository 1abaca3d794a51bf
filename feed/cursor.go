package feed

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	compositePrefix = "s."
	recencyPrefix   = "r."
)

// Cursor resumes a paginated fetch. Token belongs to the store that issued it;
// the ranking core only looks at SupportsCompositeOrderResume.
type Cursor struct {
	Token                        string
	SupportsCompositeOrderResume bool
}

// Encode renders the cursor as a single opaque string for API clients.
func (c *Cursor) Encode() string {
	if c == nil {
		return ""
	}
	if c.SupportsCompositeOrderResume {
		return compositePrefix + c.Token
	}
	return recencyPrefix + c.Token
}

// ParseCursor is the inverse of Encode. An empty string yields a nil cursor.
func ParseCursor(raw string) (*Cursor, error) {
	if raw == "" {
		return nil, nil
	}
	switch {
	case strings.HasPrefix(raw, compositePrefix) && len(raw) > len(compositePrefix):
		return &Cursor{Token: raw[len(compositePrefix):], SupportsCompositeOrderResume: true}, nil
	case strings.HasPrefix(raw, recencyPrefix) && len(raw) > len(recencyPrefix):
		return &Cursor{Token: raw[len(recencyPrefix):]}, nil
	}
	return nil, fmt.Errorf("%w: malformed cursor %q", ErrInvalidArgument, raw)
}

// Position is the resume point store adapters pack into a cursor token.
// Score is nil for positions taken from a recency-ordered scan.
type Position struct {
	Score     *int   `json:"s,omitempty"`
	CreatedAt int64  `json:"t"`
	ID        string `json:"id"`
}

func PositionOf(post PostRecord, score *int) Position {
	return Position{Score: score, CreatedAt: post.CreatedAt.UnixMilli(), ID: post.ID}
}

func (p Position) Time() time.Time {
	return time.UnixMilli(p.CreatedAt).UTC()
}

func EncodePosition(p Position) string {
	raw, _ := json.Marshal(p)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func DecodePosition(token string) (Position, error) {
	var p Position
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return p, fmt.Errorf("%w: cursor token: %w", ErrInvalidArgument, err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: cursor token: %w", ErrInvalidArgument, err)
	}
	if p.ID == "" {
		return p, fmt.Errorf("%w: cursor token without id", ErrInvalidArgument)
	}
	return p, nil
}
