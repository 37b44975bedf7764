package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"rentaldesk/console/internal/domain"
)

const sessionKeyPrefix = "console:session:"

type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(addr string, password string, db int) *RedisSessionStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSessionStore{client: client}
}

func (c *RedisSessionStore) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSessionStore) Close() error {
	return c.client.Close()
}

func (c *RedisSessionStore) Get(ctx context.Context, id string) (*domain.Session, bool, error) {
	val, err := c.client.Get(ctx, sessionKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, false, err
	}
	return &session, true, nil
}

func (c *RedisSessionStore) Set(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	if session == nil {
		return nil
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionKeyPrefix+session.ID, payload, ttl).Err()
}

func (c *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, sessionKeyPrefix+id).Err()
}
