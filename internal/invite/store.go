// Package invite tracks which roommate groups an owner has already invited.
// Group discovery is recomputed on every request, so invitations are keyed
// by the order-independent group key rather than by a stored group:
//
//	Key:   invite:<owner_id>:<group_key>
//	Value: <invite_id>
//	TTL:   invite lifetime
package invite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Prefix is the Redis key prefix for invite records.
	Prefix = "invite:"

	// DefaultTTL is how long an invitation stays marked.
	DefaultTTL = 7 * 24 * time.Hour
)

var ErrMissingKey = errors.New("invite: owner and group key are required")

// Store manages invite records in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a new invite store. A non-positive ttl uses DefaultTTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

func recordKey(owner, groupKey string) string {
	return Prefix + owner + ":" + groupKey
}

// Mark records that owner invited the group. Re-inviting an already
// invited group keeps the original invite id and refreshes its TTL.
func (s *Store) Mark(ctx context.Context, owner, groupKey string) (string, error) {
	if owner == "" || groupKey == "" {
		return "", ErrMissingKey
	}
	key := recordKey(owner, groupKey)

	id := uuid.New().String()
	set, err := s.client.SetNX(ctx, key, id, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("invite: mark: %w", err)
	}
	if set {
		return id, nil
	}

	existing, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; claim it again.
		if err := s.client.Set(ctx, key, id, s.ttl).Err(); err != nil {
			return "", fmt.Errorf("invite: mark: %w", err)
		}
		return id, nil
	}
	if err != nil {
		return "", fmt.Errorf("invite: mark: %w", err)
	}
	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("invite: refresh: %w", err)
	}
	return existing, nil
}

// Invited checks many groups in one round trip.
func (s *Store) Invited(ctx context.Context, owner string, groupKeys []string) (map[string]bool, error) {
	out := make(map[string]bool, len(groupKeys))
	if len(groupKeys) == 0 {
		return out, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(groupKeys))
	for i, gk := range groupKeys {
		cmds[i] = pipe.Exists(ctx, recordKey(owner, gk))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("invite: batch exists: %w", err)
	}

	for i, gk := range groupKeys {
		out[gk] = cmds[i].Val() > 0
	}
	return out, nil
}

// Clear withdraws an invitation and reports whether one was live.
func (s *Store) Clear(ctx context.Context, owner, groupKey string) (bool, error) {
	if owner == "" || groupKey == "" {
		return false, ErrMissingKey
	}
	n, err := s.client.Del(ctx, recordKey(owner, groupKey)).Result()
	if err != nil {
		return false, fmt.Errorf("invite: clear: %w", err)
	}
	return n > 0, nil
}
