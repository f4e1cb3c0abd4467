package invite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestStore creates a Store connected to a local Redis instance and
// removes any leftover test_ invite keys. Tests that call this helper
// require a running Redis on localhost:6379.
func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	clean := func() {
		iter := client.Scan(ctx, 0, Prefix+"test_*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		client.Close()
	})
	return NewStore(client, ttl)
}

func TestNewStore_DefaultTTL(t *testing.T) {
	s := NewStore(nil, 0)
	if s.ttl != DefaultTTL {
		t.Errorf("expected default ttl %v, got %v", DefaultTTL, s.ttl)
	}
}

func TestMark_RequiresKeys(t *testing.T) {
	s := NewStore(nil, time.Minute)
	if _, err := s.Mark(context.Background(), "", "a+b"); !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
	if _, err := s.Clear(context.Background(), "owner", ""); !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
}

// invited reports whether owner has a live invitation for one group.
func invited(t *testing.T, s *Store, owner, key string) bool {
	t.Helper()
	got, err := s.Invited(context.Background(), owner, []string{key})
	if err != nil {
		t.Fatalf("Invited() error: %v", err)
	}
	return got[key]
}

func TestMarkAndCheck(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	if invited(t, s, "test_owner", "a+b") {
		t.Fatal("expected not invited before Mark")
	}

	id, err := s.Mark(ctx, "test_owner", "a+b")
	if err != nil {
		t.Fatalf("Mark() error: %v", err)
	}
	if id == "" {
		t.Fatal("expected an invite id")
	}

	again, err := s.Mark(ctx, "test_owner", "a+b")
	if err != nil {
		t.Fatalf("Mark() error: %v", err)
	}
	if again != id {
		t.Errorf("expected re-invite to keep id %s, got %s", id, again)
	}

	if !invited(t, s, "test_owner", "a+b") {
		t.Error("expected invited after Mark")
	}
}

func TestInvited_Batch(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	if _, err := s.Mark(ctx, "test_owner", "a+b+c"); err != nil {
		t.Fatalf("Mark() error: %v", err)
	}

	got, err := s.Invited(ctx, "test_owner", []string{"a+b+c", "d+e"})
	if err != nil {
		t.Fatalf("Invited() error: %v", err)
	}
	if !got["a+b+c"] || got["d+e"] {
		t.Errorf("unexpected invited map: %v", got)
	}

	// Invitations are per owner.
	other, _ := s.Invited(ctx, "test_other", []string{"a+b+c"})
	if other["a+b+c"] {
		t.Error("another owner should not see this invitation")
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	s.Mark(ctx, "test_owner", "a+b")
	cleared, err := s.Clear(ctx, "test_owner", "a+b")
	if err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if !cleared {
		t.Error("expected a live invitation to be cleared")
	}
	if invited(t, s, "test_owner", "a+b") {
		t.Error("expected invitation cleared")
	}

	cleared, err = s.Clear(ctx, "test_owner", "a+b")
	if err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if cleared {
		t.Error("clearing twice should report nothing cleared")
	}
}

func TestMark_Expires(t *testing.T) {
	s := newTestStore(t, time.Second)
	ctx := context.Background()

	s.Mark(ctx, "test_owner", "x+y")
	time.Sleep(1500 * time.Millisecond)

	if invited(t, s, "test_owner", "x+y") {
		t.Error("expected invitation to expire")
	}
}
