// Copyright 2025 James Ross
package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/jamesross/vaultkeep/internal/vaulterr"
)

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Redis is a storage Backend over Redis, storing each chunk and metadata
// entry as a single key. Suited to small-to-medium repositories or as a
// fast front tier in front of a colder backend; adapted from the teacher's
// RedisChunkStore, trimmed of its compression and access-time bookkeeping
// since those concerns live in the engine and the dedup index respectively.
type Redis struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedis constructs a Redis backend from cfg.
func NewRedis(cfg RedisConfig) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisFromClient(client, cfg.KeyPrefix)
}

// NewRedisFromClient wraps an already-constructed client, used by tests
// against a miniredis instance and by deployments that share a client
// across multiple VaultKeep components.
func NewRedisFromClient(client redis.Cmdable, keyPrefix string) *Redis {
	return &Redis{client: client, keyPrefix: keyPrefix}
}

func (r *Redis) chunkKey(address string) string {
	return r.keyPrefix + "chunk:" + address
}

func (r *Redis) metadataKey(key string) string {
	return r.keyPrefix + "meta:" + key
}

func (r *Redis) PutChunk(ctx context.Context, address string, data []byte) error {
	if err := r.client.Set(ctx, r.chunkKey(address), data, 0).Err(); err != nil {
		return vaulterr.Wrap(vaulterr.KindStorage, "redis chunk put failed", err)
	}
	return nil
}

func (r *Redis) GetChunk(ctx context.Context, address string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.chunkKey(address)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound
		}
		return nil, vaulterr.Wrap(vaulterr.KindStorage, "redis chunk get failed", err)
	}
	return data, nil
}

func (r *Redis) ChunkExists(ctx context.Context, address string) (bool, error) {
	n, err := r.client.Exists(ctx, r.chunkKey(address)).Result()
	if err != nil {
		return false, vaulterr.Wrap(vaulterr.KindStorage, "redis chunk exists failed", err)
	}
	return n > 0, nil
}

func (r *Redis) DeleteChunk(ctx context.Context, address string) error {
	if err := r.client.Del(ctx, r.chunkKey(address)).Err(); err != nil {
		return vaulterr.Wrap(vaulterr.KindStorage, "redis chunk delete failed", err)
	}
	return nil
}

func (r *Redis) ListChunks(ctx context.Context) ([]string, error) {
	pattern := r.chunkKey("*")
	var addresses []string
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	prefixLen := len(r.chunkKey(""))
	for iter.Next(ctx) {
		key := iter.Val()
		addresses = append(addresses, key[prefixLen:])
	}
	if err := iter.Err(); err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindStorage, "redis chunk scan failed", err)
	}
	return addresses, nil
}

func (r *Redis) PutMetadata(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, r.metadataKey(key), data, 0).Err(); err != nil {
		return vaulterr.Wrap(vaulterr.KindStorage, "redis metadata put failed", err)
	}
	return nil
}

func (r *Redis) GetMetadata(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.metadataKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound
		}
		return nil, vaulterr.Wrap(vaulterr.KindStorage, "redis metadata get failed", err)
	}
	return data, nil
}

func (r *Redis) DeleteMetadata(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.metadataKey(key)).Err(); err != nil {
		return vaulterr.Wrap(vaulterr.KindStorage, "redis metadata delete failed", err)
	}
	return nil
}

func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	addresses, err := r.ListChunks(ctx)
	if err != nil {
		return Stats{}, err
	}
	var total uint64
	for _, addr := range addresses {
		if n, err := r.client.StrLen(ctx, r.chunkKey(addr)).Result(); err == nil {
			total += uint64(n)
		}
	}
	return Stats{TotalChunks: uint64(len(addresses)), TotalBytes: total}, nil
}
