/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package locking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultKeyPrefix     = "shopfloor:lock:equipment:"
	defaultLeaseDuration = 30 * time.Second
	defaultRetryInterval = 100 * time.Millisecond
)

// Deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Extends the lease only while the key still holds our token.
var renewScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RedisConfig configures a RedisLocker.
type RedisConfig struct {
	KeyPrefix     string
	LeaseDuration time.Duration
	RetryInterval time.Duration
	InstanceID    string
}

// RedisLocker is a Locker shared by every instance connected to the same Redis.
// Held locks are renewed at a third of the lease until released.
type RedisLocker struct {
	client redis.UniversalClient
	config RedisConfig
	logger zerolog.Logger
}

// NewRedisLocker creates a locker on client.
func NewRedisLocker(client redis.UniversalClient, config RedisConfig, logger zerolog.Logger) *RedisLocker {
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaultKeyPrefix
	}
	if config.LeaseDuration <= 0 {
		config.LeaseDuration = defaultLeaseDuration
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaultRetryInterval
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.New().String()
	}
	return &RedisLocker{
		client: client,
		config: config,
		logger: logger.With().Str("component", "equipment_lock").Logger(),
	}
}

// Key returns the Redis key guarding equipmentID.
func (l *RedisLocker) Key(equipmentID string) string {
	return l.config.KeyPrefix + equipmentID
}

// Lock polls SETNX until the key is acquired or ctx is done. The returned context is
// canceled with ErrLeaseLost if a renewal finds the key no longer holds our token.
func (l *RedisLocker) Lock(ctx context.Context, equipmentID string) (context.Context, Unlock, error) {
	key := l.Key(equipmentID)
	token := l.config.InstanceID + ":" + uuid.NewString()

	ticker := time.NewTicker(l.config.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.config.LeaseDuration).Result()
		if err != nil {
			return nil, nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-ticker.C:
		}
	}

	l.logger.Debug().Str("equipment_id", equipmentID).Msg("lock acquired")

	held, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	done := make(chan struct{})
	extend := func(ctx context.Context) (bool, error) {
		n, err := renewScript.Run(ctx, l.client, []string{key}, token, l.config.LeaseDuration.Milliseconds()).Int()
		return n == 1, err
	}
	go l.renew(key, extend, cancel, stop, done)

	var once sync.Once
	return held, func() {
		once.Do(func() {
			close(stop)
			<-done
			cancel(nil)

			releaseCtx, cancelRelease := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelRelease()
			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
				l.logger.Error().Err(err).Str("equipment_id", equipmentID).Msg("failed to release lock")
			}
		})
	}, nil
}

// renew extends the lease every third of its duration until stop is closed. A renewal that
// finds the key taken over, or failures lasting a whole lease, cancel the holder's context.
func (l *RedisLocker) renew(key string, extend func(context.Context) (bool, error), lost context.CancelCauseFunc, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := l.config.LeaseDuration / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	renewed := time.Now()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			ok, err := extend(ctx)
			cancel()
			if err != nil {
				l.logger.Error().Err(err).Str("key", key).Msg("failed to renew lock")
				if time.Since(renewed) >= l.config.LeaseDuration {
					lost(fmt.Errorf("%w: %v", ErrLeaseLost, err))
					return
				}
				continue
			}
			renewed = time.Now()
			if !ok {
				l.logger.Warn().Str("key", key).Msg("lock lease lost")
				lost(ErrLeaseLost)
				return
			}
		}
	}
}
