package redisimpl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fitspo-feed/feed"

	"github.com/redis/go-redis/v9"
)

const postCacheTTL = 10 * time.Minute

func cacheKeyForPost(id string) string { return "post:" + id }

func NewRedisManager(
	client *redis.Client,
	persistentManager feed.Manager,
) *RedisManager {

	return &RedisManager{
		client:            client,
		persistentManager: persistentManager,
	}
}

// RedisManager caches single posts in front of a persistent manager. Feed
// pages are never cached: their counters move too often.
//
// Cached posts do not follow counter changes made behind this manager's back;
// GetPost may serve such counters for up to postCacheTTL. Writers should go
// through SetCounters or call Invalidate.
type RedisManager struct {
	client            *redis.Client
	persistentManager feed.Manager
}

// AddPost writes through to persistent storage and updates the cache.
func (r RedisManager) AddPost(ctx context.Context, post feed.NewPost) (feed.PostRecord, error) {
	created, err := r.persistentManager.AddPost(ctx, post)
	if err != nil {
		return created, err
	}
	r.store(ctx, created)
	return created, nil
}

// GetPost uses read-through cache backed by persistent storage.
func (r RedisManager) GetPost(ctx context.Context, postID string) (feed.PostRecord, error) {
	var cached feed.PostRecord

	if bytes, err := r.client.Get(ctx, cacheKeyForPost(postID)).Bytes(); err == nil {
		if uErr := json.Unmarshal(bytes, &cached); uErr == nil {
			return cached, nil
		}
	}

	post, err := r.persistentManager.GetPost(ctx, postID)
	if err != nil {
		return post, err
	}
	r.store(ctx, post)
	return post, nil
}

// SetCounters updates the persistent post and drops its cached copy.
func (r RedisManager) SetCounters(ctx context.Context, postID string, likes, comments, shares int) error {
	writer, ok := r.persistentManager.(feed.CounterWriter)
	if !ok {
		return fmt.Errorf("%w: store does not accept counter updates", feed.ErrStorage)
	}
	if err := writer.SetCounters(ctx, postID, likes, comments, shares); err != nil {
		return err
	}
	if err := r.Invalidate(ctx, postID); err != nil {
		return fmt.Errorf("%w: invalidate post %s: %w", feed.ErrStorage, postID, err)
	}
	return nil
}

// Invalidate drops a cached post, e.g. after its counters changed.
func (r RedisManager) Invalidate(ctx context.Context, postID string) error {
	return r.client.Del(ctx, cacheKeyForPost(postID)).Err()
}

func (r RedisManager) FetchPostsOrderedByScore(ctx context.Context, cursor *feed.Cursor, pageSize int) (feed.StorePage, error) {
	return r.persistentManager.FetchPostsOrderedByScore(ctx, cursor, pageSize)
}

func (r RedisManager) FetchPostsOrderedByRecency(ctx context.Context, cursor *feed.Cursor, pageSize int) (feed.StorePage, error) {
	return r.persistentManager.FetchPostsOrderedByRecency(ctx, cursor, pageSize)
}

// IsReady checks both Redis and the persistent manager health.
func (r RedisManager) IsReady(ctx context.Context) bool {
	if r.client == nil {
		return false
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return false
	}
	return r.persistentManager.IsReady(ctx)
}

func (r RedisManager) store(ctx context.Context, post feed.PostRecord) {
	if r.client == nil {
		return
	}
	if raw, mErr := json.Marshal(post); mErr == nil {
		_ = r.client.Set(ctx, cacheKeyForPost(post.ID), raw, postCacheTTL).Err()
	}
}
