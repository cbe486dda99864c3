package challenge

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengePrefix = "challenge:"

// redisStore keeps each challenge in a hash so the attempt counter can be
// bumped atomically next to the code. The key TTL is a safety net; the
// service still checks expires_at against its own clock.
type redisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func key(phoneNumber string) string { return challengePrefix + phoneNumber }

func (s *redisStore) Put(ctx context.Context, ch *Challenge) error {
	k := key(ch.PhoneNumber)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, k)
	pipe.HSet(ctx, k, map[string]any{
		"code":       ch.Code,
		"expires_at": ch.ExpiresAt.UnixMilli(),
		"attempts":   ch.Attempts,
	})
	pipe.PExpireAt(ctx, k, ch.ExpiresAt.Add(time.Minute))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) Get(ctx context.Context, phoneNumber string) (*Challenge, error) {
	vals, err := s.client.HGetAll(ctx, key(phoneNumber)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, ErrChallengeNotFound
	}
	expires, err := strconv.ParseInt(vals["expires_at"], 10, 64)
	if err != nil {
		return nil, ErrChallengeNotFound
	}
	attempts, _ := strconv.Atoi(vals["attempts"])
	return &Challenge{
		PhoneNumber: phoneNumber,
		Code:        vals["code"],
		ExpiresAt:   time.UnixMilli(expires),
		Attempts:    attempts,
	}, nil
}

func (s *redisStore) IncrementAttempts(ctx context.Context, phoneNumber string) (int, error) {
	k := key(phoneNumber)
	exists, err := s.client.Exists(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, ErrChallengeNotFound
	}
	n, err := s.client.HIncrBy(ctx, k, "attempts", 1).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *redisStore) Delete(ctx context.Context, phoneNumber string) error {
	err := s.client.Del(ctx, key(phoneNumber)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
