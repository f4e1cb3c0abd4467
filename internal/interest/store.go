// Package interest stores the "show interest" graph in Redis. The graph is
// append-only: an expressed interest is never withdrawn. Each user has
// a set of the users they liked; a registry set tracks every user that has
// liked anyone so a full snapshot can be read without SCAN.
//
//	interest:users         Set of source ids
//	interest:<from>        Set of target ids
package interest

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nestmate/roommates/internal/grouping"
)

const (
	keyUsers  = "interest:users"
	keyPrefix = "interest:"
)

var (
	// ErrSelfInterest is returned when a user tries to like themselves.
	ErrSelfInterest = errors.New("interest: cannot express interest in yourself")

	// ErrMissingID is returned when either side of an edge is empty.
	ErrMissingID = errors.New("interest: missing user id")
)

// Store manages the interest graph in Redis.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a new interest store backed by Redis.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func targetsKey(from string) string {
	return keyPrefix + from
}

func validate(from, to string) error {
	if from == "" || to == "" {
		return ErrMissingID
	}
	if from == to {
		return ErrSelfInterest
	}
	return nil
}

// Add records that from is interested in to. Adding an existing edge is a
// no-op. Returns true when the edge was new.
func (s *Store) Add(ctx context.Context, from, to string) (bool, error) {
	if err := validate(from, to); err != nil {
		return false, err
	}

	pipe := s.rdb.TxPipeline()
	added := pipe.SAdd(ctx, targetsKey(from), to)
	pipe.SAdd(ctx, keyUsers, from)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("interest: add %s->%s: %w", from, to, err)
	}
	return added.Val() == 1, nil
}

// Targets returns the ids from has expressed interest in.
func (s *Store) Targets(ctx context.Context, from string) ([]string, error) {
	targets, err := s.rdb.SMembers(ctx, targetsKey(from)).Result()
	if err != nil {
		return nil, fmt.Errorf("interest: targets of %s: %w", from, err)
	}
	return targets, nil
}

// IsMutual reports whether a and b have each liked the other.
func (s *Store) IsMutual(ctx context.Context, a, b string) (bool, error) {
	if err := validate(a, b); err != nil {
		return false, err
	}

	pipe := s.rdb.Pipeline()
	ab := pipe.SIsMember(ctx, targetsKey(a), b)
	ba := pipe.SIsMember(ctx, targetsKey(b), a)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("interest: mutual %s<->%s: %w", a, b, err)
	}
	return ab.Val() && ba.Val(), nil
}

// Snapshot reads the whole graph into memory for group discovery.
func (s *Store) Snapshot(ctx context.Context) (grouping.Relation, error) {
	users, err := s.rdb.SMembers(ctx, keyUsers).Result()
	if err != nil {
		return nil, fmt.Errorf("interest: list users: %w", err)
	}

	rel := grouping.NewRelation()
	if len(users) == 0 {
		return rel, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(users))
	for i, u := range users {
		cmds[i] = pipe.SMembers(ctx, targetsKey(u))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("interest: snapshot: %w", err)
	}

	for i, u := range users {
		for _, to := range cmds[i].Val() {
			rel.Add(u, to)
		}
	}
	return rel, nil
}

// Size returns how many users have liked at least one other user.
func (s *Store) Size(ctx context.Context) (int64, error) {
	n, err := s.rdb.SCard(ctx, keyUsers).Result()
	if err != nil {
		return 0, fmt.Errorf("interest: size: %w", err)
	}
	return n, nil
}

// Clear deletes the whole graph.
func (s *Store) Clear(ctx context.Context) error {
	users, err := s.rdb.SMembers(ctx, keyUsers).Result()
	if err != nil {
		return fmt.Errorf("interest: list users: %w", err)
	}

	keys := make([]string, 0, len(users)+1)
	for _, u := range users {
		keys = append(keys, targetsKey(u))
	}
	keys = append(keys, keyUsers)
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("interest: clear: %w", err)
	}
	return nil
}
