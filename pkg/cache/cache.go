package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLs per key family
const (
	TTLDiff      = 1 * time.Hour    // diffs of immutable versions never go stale
	TTLApprovers = 10 * time.Minute // role membership (changes rarely)
	TTLDefault   = 5 * time.Minute
)

// Cache key prefixes
const (
	PrefixDiff      = "wf:diff:"
	PrefixApprovers = "wf:approvers:role:"
)

// Service Redis cache for the workflow engine. Invalidation is targeted:
// each mutation clears exactly the keys it affects, never a global flush.
type Service interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// Diff memoization, keyed by the immutable (from, to) version id pair
	GetDiff(ctx context.Context, fromID, toID uint64, dest interface{}) error
	SetDiff(ctx context.Context, fromID, toID uint64, value interface{}) error

	// Role approver membership
	GetRoleMembers(ctx context.Context, roleID string) ([]string, error)
	SetRoleMembers(ctx context.Context, roleID string, users []string) error
	InvalidateRole(ctx context.Context, roleID string) error
}

type service struct {
	client *redis.Client
}

// NewService creates a cache service backed by the given Redis client
func NewService(client *redis.Client) Service {
	return &service{client: client}
}

func (s *service) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *service) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = TTLDefault
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *service) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func diffKey(fromID, toID uint64) string {
	return fmt.Sprintf("%s%d:%d", PrefixDiff, fromID, toID)
}

func (s *service) GetDiff(ctx context.Context, fromID, toID uint64, dest interface{}) error {
	return s.Get(ctx, diffKey(fromID, toID), dest)
}

func (s *service) SetDiff(ctx context.Context, fromID, toID uint64, value interface{}) error {
	return s.Set(ctx, diffKey(fromID, toID), value, TTLDiff)
}

func (s *service) GetRoleMembers(ctx context.Context, roleID string) ([]string, error) {
	var users []string
	if err := s.Get(ctx, PrefixApprovers+roleID, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *service) SetRoleMembers(ctx context.Context, roleID string, users []string) error {
	return s.Set(ctx, PrefixApprovers+roleID, users, TTLApprovers)
}

func (s *service) InvalidateRole(ctx context.Context, roleID string) error {
	return s.Delete(ctx, PrefixApprovers+roleID)
}
