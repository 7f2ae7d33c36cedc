// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package speech

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisClipPrefix = "voi:clip:"

// RedisClips stores clips in Redis so any replica can serve /audio/{id}
type RedisClips struct {
	client  redis.UniversalClient
	baseURL string
	ttl     time.Duration
}

var _ ClipStore = (*RedisClips)(nil)

func NewRedisClips(client redis.UniversalClient, baseURL string, ttl time.Duration) *RedisClips {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisClips{client: client, baseURL: baseURL, ttl: ttl}
}

func (r *RedisClips) Put(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("empty clip")
	}
	id := uuid.NewString()
	if err := r.client.Set(ctx, redisClipPrefix+id, audio, r.ttl).Err(); err != nil {
		return "", errors.Wrap(err, "redis set clip")
	}
	return clipURL(r.baseURL, id), nil
}

func (r *RedisClips) Get(ctx context.Context, id string) ([]byte, error) {
	audio, err := r.client.Get(ctx, redisClipPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrClipNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get clip")
	}
	return audio, nil
}
