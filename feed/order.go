package feed

import (
	"strings"
	"time"
)

// CompareHot orders by score desc, then CreatedAt desc, then ID asc.
func CompareHot(a, b ScoredPost) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	}
	return CompareRecency(a.Post, b.Post)
}

// CompareRecency orders by CreatedAt desc, then ID asc.
func CompareRecency(a, b PostRecord) int {
	at, bt := a.CreatedAt.UnixMilli(), b.CreatedAt.UnixMilli()
	switch {
	case at > bt:
		return -1
	case at < bt:
		return 1
	}
	return strings.Compare(a.ID, b.ID)
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
