package suppression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCooldownStore tracks the outreach cooldown window per (business,
// caller) using keys that expire with the window.
type RedisCooldownStore struct {
	redis  *redis.Client
	window time.Duration
}

// NewRedisCooldownStore creates a cooldown store with the configured window.
func NewRedisCooldownStore(client *redis.Client, window time.Duration) *RedisCooldownStore {
	if client == nil {
		panic("suppression: redis client required")
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &RedisCooldownStore{redis: client, window: window}
}

// InCooldown reports whether an automated outreach was already sent within the
// window.
func (s *RedisCooldownStore) InCooldown(ctx context.Context, businessID, phone string) (bool, error) {
	err := s.redis.Get(ctx, cooldownKey(businessID, phone)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("suppression: cooldown lookup: %w", err)
	}
	return true, nil
}

// MarkOutreach starts the cooldown window for the caller.
func (s *RedisCooldownStore) MarkOutreach(ctx context.Context, businessID, phone string) error {
	if err := s.redis.Set(ctx, cooldownKey(businessID, phone), time.Now().UTC().Format(time.RFC3339), s.window).Err(); err != nil {
		return fmt.Errorf("suppression: mark outreach: %w", err)
	}
	return nil
}

func cooldownKey(businessID, phone string) string {
	return fmt.Sprintf("cooldown:%s:%s", businessID, phone)
}
