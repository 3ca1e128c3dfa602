package watermark

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"unitrade/internal/domain/repository"
	apperrors "unitrade/pkg/errors"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// TTL expires watermarks that have not been touched; zero keeps them forever.
	TTL time.Duration
}

// redisStore lets several API instances share the watermarks of a device.
// Entries are still keyed by user and device, so nothing is synchronized
// across devices.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(opts RedisOptions) (repository.WatermarkStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return &redisStore{client: client, ttl: opts.TTL}, nil
}

func (s *redisStore) Get(ctx context.Context, uid, deviceID, listingID string) (int64, bool, error) {
	raw, err := s.client.Get(ctx, key(uid, deviceID, listingID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperrors.StoreUnavailable("Failed to read watermark", err)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, apperrors.StoreUnavailable("Corrupt watermark value", err)
	}
	return value, true, nil
}

func (s *redisStore) Set(ctx context.Context, uid, deviceID, listingID string, seenAtMillis int64) error {
	err := s.client.Set(ctx, key(uid, deviceID, listingID), strconv.FormatInt(seenAtMillis, 10), s.ttl).Err()
	if err != nil {
		return apperrors.StoreUnavailable("Failed to write watermark", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
