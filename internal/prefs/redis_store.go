package prefs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyAccessToken = "access_token"
	keyBlogRepo    = "blog_owner_repo"
)

// RedisStore keeps preferences as plain Redis strings under a common prefix.
// The access token is sealed when a secret is configured.
type RedisStore struct {
	client *redis.Client
	prefix string
	sealer *sealer
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL, secret string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	store, err := NewRedisStoreWithClient(client, secret)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, secret string) (*RedisStore, error) {
	s, err := newSealer(secret)
	if err != nil {
		return nil, err
	}
	return &RedisStore{
		client: client,
		prefix: "nbpress:pref:",
		sealer: s,
	}, nil
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

func (s *RedisStore) AccessToken(ctx context.Context) (string, error) {
	stored, err := s.get(ctx, keyAccessToken)
	if err != nil {
		return "", err
	}
	token, err := s.sealer.open(stored, keyAccessToken)
	if err != nil {
		return "", fmt.Errorf("read access token: %w", err)
	}
	return token, nil
}

func (s *RedisStore) SetAccessToken(ctx context.Context, token string) error {
	sealed, err := s.sealer.seal(token, keyAccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	return s.set(ctx, keyAccessToken, sealed)
}

func (s *RedisStore) ClearAccessToken(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key(keyAccessToken)).Err(); err != nil {
		return fmt.Errorf("clear access token: %w", err)
	}
	return nil
}

func (s *RedisStore) BlogRepo(ctx context.Context) (string, error) {
	return s.get(ctx, keyBlogRepo)
}

func (s *RedisStore) SetBlogRepo(ctx context.Context, ownerRepo string) error {
	return s.set(ctx, keyBlogRepo, ownerRepo)
}

func (s *RedisStore) get(ctx context.Context, name string) (string, error) {
	value, err := s.client.Get(ctx, s.key(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", name, err)
	}
	return value, nil
}

func (s *RedisStore) set(ctx context.Context, name, value string) error {
	if err := s.client.Set(ctx, s.key(name), value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
