package feed

// Scorer turns a post's interaction counters into a hotness score.
type Scorer func(post PostRecord) int

// InteractionScore is likes + comments + shares, unweighted and without any
// time decay.
func InteractionScore(post PostRecord) int {
	return post.LikeCount + post.CommentCount + post.ShareCount
}
