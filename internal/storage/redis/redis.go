package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/good12834/shoestore/internal/storage"
)

const keyPrefix = "storefront:"

// Storage implements storage.Storage using Redis. Every write is announced
// as "origin|key" on the profile's change channel.
type Storage struct {
	client  *redis.Client
	prefix  string
	channel string
	ttl     time.Duration
	origin  string
	logger  *slog.Logger
}

var (
	_ storage.Storage = (*Storage)(nil)
	_ storage.Watcher = (*Storage)(nil)
	_ storage.Pinger  = (*Storage)(nil)
)

// New creates a Redis-backed storage for profile. A zero ttl keeps
// snapshots forever.
func New(client *redis.Client, profile string, ttl time.Duration, logger *slog.Logger) *Storage {
	prefix := keyPrefix + profile + ":"
	return &Storage{
		client:  client,
		prefix:  prefix,
		channel: prefix + "changes",
		ttl:     ttl,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Origin returns the id stamped on changes made through this handle.
func (s *Storage) Origin() string {
	return s.origin
}

// Get retrieves the value under key.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.NotFound(key)
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Set stores value under key with the configured TTL and announces it.
func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.prefix+key, value, s.ttl)
		pipe.Publish(ctx, s.channel, s.origin+"|"+key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Remove deletes key and announces it.
func (s *Storage) Remove(ctx context.Context, key string) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.prefix+key)
		pipe.Publish(ctx, s.channel, s.origin+"|"+key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Watch subscribes to the change channel and delivers changes to key made
// by other handles until ctx is done. It returns once the subscription is
// confirmed.
func (s *Storage) Watch(ctx context.Context, key string) (<-chan storage.Change, error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	out := make(chan storage.Change, 16)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				change, ok := parseChange(msg.Payload)
				if !ok {
					s.logger.WarnContext(ctx, "ignoring malformed change notification",
						slog.String("payload", msg.Payload),
					)
					continue
				}
				if change.Origin == s.origin || change.Key != key {
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func parseChange(payload string) (storage.Change, bool) {
	origin, key, ok := strings.Cut(payload, "|")
	if !ok || origin == "" || key == "" {
		return storage.Change{}, false
	}
	return storage.Change{Key: key, Origin: origin}, true
}
