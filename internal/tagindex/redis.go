package tagindex

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a tag index kept in Redis sets, for deployments where the entry
// store is also remote. Each tag has a bucket set ("<prefix>tag:<tag>") and
// each key has a membership set ("<prefix>key:<key>"); SADD/SREM give the
// per-bucket atomicity concurrent registrations need.
type Redis struct {
	client redis.Cmdable
	prefix string
	ctx    context.Context
}

// RedisConfig holds Redis tag index configuration.
type RedisConfig struct {
	// Client is the Redis client to use. Required.
	Client redis.Cmdable

	// KeyPrefix isolates the index from other data in the same database.
	// Default: "appcache:idx:".
	KeyPrefix string

	// Context for Redis operations.
	Context context.Context
}

// NewRedis creates a Redis-backed tag index.
func NewRedis(config *RedisConfig) (*Redis, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	ctx := config.Context
	if ctx == nil {
		ctx = context.Background()
	}

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "appcache:idx:"
	}

	return &Redis{client: config.Client, prefix: prefix, ctx: ctx}, nil
}

// AddTags registers key under each tag, replacing any previous registration.
func (r *Redis) AddTags(key string, tags []string) error {
	if err := r.RemoveKey(key); err != nil {
		return err
	}
	if len(tags) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, tag := range tags {
		pipe.SAdd(r.ctx, r.tagBucket(tag), key)
	}
	members := make([]any, len(tags))
	for i, tag := range tags {
		members[i] = tag
	}
	pipe.SAdd(r.ctx, r.keyBucket(key), members...)

	_, err := pipe.Exec(r.ctx)
	return err
}

// RemoveKey unregisters key from every tag it appears under.
func (r *Redis) RemoveKey(key string) error {
	tags, err := r.client.SMembers(r.ctx, r.keyBucket(key)).Result()
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, tag := range tags {
		pipe.SRem(r.ctx, r.tagBucket(tag), key)
	}
	pipe.Del(r.ctx, r.keyBucket(key))

	_, err = pipe.Exec(r.ctx)
	return err
}

// KeysForTags returns the union of keys registered under the given tags.
func (r *Redis) KeysForTags(tags []string) ([]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	buckets := make([]string, len(tags))
	for i, tag := range tags {
		buckets[i] = r.tagBucket(tag)
	}

	return r.client.SUnion(r.ctx, buckets...).Result()
}

// Clear drops the bucket for tag and returns the keys it contained.
func (r *Redis) Clear(tag string) ([]string, error) {
	keys, err := r.client.SMembers(r.ctx, r.tagBucket(tag)).Result()
	if err != nil {
		return nil, err
	}

	pipe := r.client.Pipeline()
	for _, key := range keys {
		pipe.SRem(r.ctx, r.keyBucket(key), tag)
	}
	pipe.Del(r.ctx, r.tagBucket(tag))
	if _, err := pipe.Exec(r.ctx); err != nil {
		return keys, err
	}

	return keys, nil
}

// Close is a no-op: the Redis client's lifecycle belongs to the caller.
func (r *Redis) Close() error {
	return nil
}

func (r *Redis) tagBucket(tag string) string {
	return r.prefix + "tag:" + tag
}

func (r *Redis) keyBucket(key string) string {
	return r.prefix + "key:" + key
}

var _ Index = (*Redis)(nil)
