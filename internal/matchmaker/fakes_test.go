package matchmaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nestmate/roommates/internal/compat"
	"github.com/nestmate/roommates/internal/grouping"
	"github.com/nestmate/roommates/internal/interest"
	"github.com/nestmate/roommates/internal/messaging"
	"github.com/nestmate/roommates/internal/ratelimit"
	"github.com/nestmate/roommates/internal/roster"
)

type fakeRoster struct {
	profiles []compat.Profile
	err      error
}

func (f *fakeRoster) List(context.Context) ([]compat.Profile, error) {
	return f.profiles, f.err
}

func (f *fakeRoster) Get(_ context.Context, id string) (compat.Profile, error) {
	if f.err != nil {
		return compat.Profile{}, f.err
	}
	for _, p := range f.profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return compat.Profile{}, roster.ErrNotFound
}

func (f *fakeRoster) Count(context.Context) (int, error) {
	return len(f.profiles), f.err
}

type fakeRelation struct {
	mu  sync.Mutex
	rel grouping.Relation
}

func newFakeRelation(edges ...[2]string) *fakeRelation {
	f := &fakeRelation{rel: grouping.NewRelation()}
	for _, e := range edges {
		f.rel.Add(e[0], e[1])
	}
	return f
}

func (f *fakeRelation) Snapshot(context.Context) (grouping.Relation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := grouping.NewRelation()
	for from, targets := range f.rel {
		for to := range targets {
			out.Add(from, to)
		}
	}
	return out, nil
}

func (f *fakeRelation) Add(_ context.Context, from, to string) (bool, error) {
	if from == to {
		return false, interest.ErrSelfInterest
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rel.Likes(from, to) {
		return false, nil
	}
	f.rel.Add(from, to)
	return true, nil
}

func (f *fakeRelation) IsMutual(_ context.Context, a, b string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rel.Mutual(a, b), nil
}

func (f *fakeRelation) Targets(_ context.Context, from string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for to := range f.rel[from] {
		out = append(out, to)
	}
	return out, nil
}

func (f *fakeRelation) Size(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.rel)), nil
}

type fakeInvites struct {
	mu     sync.Mutex
	marked map[string]string
	seq    int
}

func newFakeInvites() *fakeInvites {
	return &fakeInvites{marked: make(map[string]string)}
}

func (f *fakeInvites) Mark(_ context.Context, owner, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := owner + ":" + key
	if id, ok := f.marked[k]; ok {
		return id, nil
	}
	f.seq++
	f.marked[k] = fmt.Sprintf("inv-%d", f.seq)
	return f.marked[k], nil
}

func (f *fakeInvites) Invited(_ context.Context, owner string, keys []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		_, out[k] = f.marked[owner+":"+k]
	}
	return out, nil
}

func (f *fakeInvites) Clear(_ context.Context, owner, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := owner + ":" + key
	_, ok := f.marked[k]
	delete(f.marked, k)
	return ok, nil
}

// fakeLimiter allows the first n actions per identifier and rule.
type fakeLimiter struct {
	mu     sync.Mutex
	n      int
	counts map[string]int
}

func (f *fakeLimiter) Allow(_ context.Context, id string, rule ratelimit.Rule) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[rule.Key+id]++
	return f.counts[rule.Key+id] <= f.n, nil
}

func (f *fakeLimiter) Remaining(_ context.Context, id string, rule ratelimit.Rule) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return max(f.n-f.counts[rule.Key+id], 0), nil
}

// loopbackBus delivers requests and events straight to registered
// handlers, standing in for NATS in both directions.
type loopbackBus struct {
	mu        sync.Mutex
	events    map[string]func([]byte)
	responses map[string]func([]byte) []byte
}

func newLoopbackBus() *loopbackBus {
	return &loopbackBus{
		events:    make(map[string]func([]byte)),
		responses: make(map[string]func([]byte) []byte),
	}
}

func (b *loopbackBus) Subscribe(subject string, h func([]byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[subject] = h
	return nil
}

func (b *loopbackBus) Respond(subject string, h func([]byte) []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses[subject] = h
	return nil
}

func (b *loopbackBus) Unsubscribe(subject string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events[subject] == nil && b.responses[subject] == nil {
		return fmt.Errorf("no subscription for subject %s", subject)
	}
	delete(b.events, subject)
	delete(b.responses, subject)
	return nil
}

func (b *loopbackBus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	h := b.events[subject]
	b.mu.Unlock()
	if h != nil {
		h(data)
	}
	return nil
}

func (b *loopbackBus) Request(subject string, data []byte, _ time.Duration) ([]byte, error) {
	b.mu.Lock()
	h := b.responses[subject]
	b.mu.Unlock()
	if h == nil {
		return nil, messaging.ErrNoResponders
	}
	return h(data), nil
}

func tenant(id string, age int, goal compat.RentalGoal, interests ...string) compat.Profile {
	return compat.Profile{ID: id, Age: age, Interests: interests, Role: compat.RoleTenant, RentalGoal: goal}
}

// fixture roster, in roster order:
//
//	v   25 [a b]  either
//	t1  25 [a b]  either
//	t2  30 [a]    either
//	t3  35 []     room_only
//	t4  30 [b]    either
//	t5  25 []     roommates_and_apartment
//	o1  owner
func fixtureRoster() *fakeRoster {
	return &fakeRoster{profiles: []compat.Profile{
		tenant("v", 25, compat.GoalEither, "a", "b"),
		tenant("t1", 25, compat.GoalEither, "a", "b"),
		tenant("t2", 30, compat.GoalEither, "a"),
		tenant("t3", 35, compat.GoalRoomOnly),
		tenant("t4", 30, compat.GoalEither, "b"),
		tenant("t5", 25, compat.GoalRoommatesAndApartment),
		{ID: "o1", Age: 25, Interests: []string{"a", "b"}, Role: compat.RoleOwner},
	}}
}

func mutual(pairs ...[2]string) [][2]string {
	var out [][2]string
	for _, p := range pairs {
		out = append(out, p, [2]string{p[1], p[0]})
	}
	return out
}

// fixtureRelation: t1,t2,t4 form a triad; v<->t5 and v<->t3 are mutual.
func fixtureRelation() *fakeRelation {
	return newFakeRelation(mutual(
		[2]string{"t1", "t2"},
		[2]string{"t1", "t4"},
		[2]string{"t2", "t4"},
		[2]string{"v", "t5"},
		[2]string{"v", "t3"},
	)...)
}

func newFixtureEngine() (*Engine, *fakeRelation, *fakeInvites) {
	rel := fixtureRelation()
	inv := newFakeInvites()
	return NewEngine(fixtureRoster(), rel, inv), rel, inv
}
