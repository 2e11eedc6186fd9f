package scheduler

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCooldownStore persists last_triggered in Redis so a rule's cooldown
// survives process restarts. It is a best-effort cache: a lookup/set
// failure is silently swallowed rather than surfaced, matching the
// reference codebase's own posture toward Redis as a fast, non-authoritative
// layer over in-memory state.
type RedisCooldownStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCooldownStore connects to addr/db and verifies reachability.
func NewRedisCooldownStore(addr, password string, db int) (*RedisCooldownStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCooldownStore{client: client, prefix: "corescheduler:cooldown:", ttl: 24 * time.Hour}, nil
}

func (s *RedisCooldownStore) Get(ruleID string) (time.Time, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	val, err := s.client.Get(ctx, s.prefix+ruleID).Result()
	if err != nil {
		return time.Time{}, false
	}
	unixNano, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, unixNano), true
}

func (s *RedisCooldownStore) Set(ruleID string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.client.Set(ctx, s.prefix+ruleID, at.UnixNano(), s.ttl)
}

// Close releases the underlying client.
func (s *RedisCooldownStore) Close() error {
	return s.client.Close()
}
