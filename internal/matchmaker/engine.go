// Package matchmaker answers compatibility, group, feed and invite queries
// against the current roster and interest graph. Engine holds the query
// logic; Service exposes it over NATS; Client is what the API calls.
package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/nestmate/roommates/internal/compat"
	"github.com/nestmate/roommates/internal/grouping"
	"github.com/nestmate/roommates/internal/metrics"
	"github.com/nestmate/roommates/internal/protocol"
	"github.com/nestmate/roommates/internal/roster"
)

const (
	DefaultFeedLimit = 20
	MaxFeedLimit     = 100
)

var (
	ErrUnknownProfile = errors.New("matchmaker: unknown profile")
	ErrUnknownGroup   = errors.New("matchmaker: no such group")
	ErrNotOwner       = errors.New("matchmaker: profile is not an owner")
)

// RosterSource supplies profiles in roster order. Get returns
// roster.ErrNotFound for unknown ids.
type RosterSource interface {
	List(ctx context.Context) ([]compat.Profile, error)
	Get(ctx context.Context, id string) (compat.Profile, error)
	Count(ctx context.Context) (int, error)
}

// RelationSource reads and extends the interest graph.
type RelationSource interface {
	Snapshot(ctx context.Context) (grouping.Relation, error)
	Add(ctx context.Context, from, to string) (bool, error)
	IsMutual(ctx context.Context, a, b string) (bool, error)
	Targets(ctx context.Context, from string) ([]string, error)
	Size(ctx context.Context) (int64, error)
}

// InviteTracker records which groups an owner has invited.
type InviteTracker interface {
	Mark(ctx context.Context, owner, groupKey string) (string, error)
	Invited(ctx context.Context, owner string, groupKeys []string) (map[string]bool, error)
	Clear(ctx context.Context, owner, groupKey string) (bool, error)
}

// Engine computes query results from fresh snapshots on every call;
// nothing is cached between calls.
type Engine struct {
	roster   RosterSource
	relation RelationSource
	invites  InviteTracker
}

// NewEngine creates an engine over the given sources.
func NewEngine(profiles RosterSource, relation RelationSource, invites InviteTracker) *Engine {
	return &Engine{roster: profiles, relation: relation, invites: invites}
}

// snapshot is the deduplicated roster plus an id index. The first
// occurrence of a repeated id wins.
type snapshot struct {
	profiles []compat.Profile
	byID     map[string]int
}

func (e *Engine) load(ctx context.Context) (*snapshot, error) {
	list, err := e.roster.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("matchmaker: load roster: %w", err)
	}
	r := &snapshot{
		profiles: make([]compat.Profile, 0, len(list)),
		byID:     make(map[string]int, len(list)),
	}
	for _, p := range list {
		if _, dup := r.byID[p.ID]; dup {
			continue
		}
		r.byID[p.ID] = len(r.profiles)
		r.profiles = append(r.profiles, p)
	}
	return r, nil
}

func (r *snapshot) get(id string) (compat.Profile, error) {
	i, ok := r.byID[id]
	if !ok {
		return compat.Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, id)
	}
	return r.profiles[i], nil
}

// profile looks up a single profile without loading the roster.
func (e *Engine) profile(ctx context.Context, id string) (compat.Profile, error) {
	p, err := e.roster.Get(ctx, id)
	if errors.Is(err, roster.ErrNotFound) {
		return compat.Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, id)
	}
	if err != nil {
		return compat.Profile{}, fmt.Errorf("matchmaker: get profile %s: %w", id, err)
	}
	return p, nil
}

// requireOwner fails with ErrNotOwner unless id is an owner.
func (e *Engine) requireOwner(ctx context.Context, id string) error {
	p, err := e.profile(ctx, id)
	if err != nil {
		return err
	}
	if p.Role != compat.RoleOwner {
		return fmt.Errorf("%w: %q", ErrNotOwner, id)
	}
	return nil
}

// Score returns the compatibility between profiles a and b.
func (e *Engine) Score(ctx context.Context, a, b string) (compat.Result, error) {
	pa, err := e.profile(ctx, a)
	if err != nil {
		return compat.Result{}, err
	}
	pb, err := e.profile(ctx, b)
	if err != nil {
		return compat.Result{}, err
	}
	metrics.ScoresComputed.Inc()
	return compat.Score(pa, pb), nil
}

// Groups discovers the roommate groups currently available and marks the
// ones owner has already invited. Groups keep discovery order.
func (e *Engine) Groups(ctx context.Context, owner string) ([]protocol.GroupView, error) {
	groups, err := e.discover(ctx, owner)
	if err != nil {
		return nil, err
	}

	views := make([]protocol.GroupView, len(groups))
	keys := make([]string, len(groups))
	for i, g := range groups {
		keys[i] = g.Key()
		views[i] = protocol.GroupView{
			Key:           keys[i],
			Members:       g.IDs(),
			Compatibility: groupCompatibility(g),
		}
	}

	invited, err := e.invites.Invited(ctx, owner, keys)
	if err != nil {
		return nil, fmt.Errorf("matchmaker: invited groups: %w", err)
	}
	for i := range views {
		views[i].Invited = invited[views[i].Key]
	}
	return views, nil
}

// Invite marks the group identified by groupKey as invited by owner. The
// group must be one discovery currently produces.
func (e *Engine) Invite(ctx context.Context, owner, groupKey string) (string, []string, error) {
	groups, err := e.discover(ctx, owner)
	if err != nil {
		return "", nil, err
	}

	want := grouping.Key(grouping.ParseKey(groupKey)...)
	for _, g := range groups {
		if g.Key() != want {
			continue
		}
		id, err := e.invites.Mark(ctx, owner, want)
		if err != nil {
			return "", nil, fmt.Errorf("matchmaker: invite: %w", err)
		}
		metrics.InvitesTotal.WithLabelValues("sent").Inc()
		return id, g.IDs(), nil
	}
	return "", nil, fmt.Errorf("%w: %q", ErrUnknownGroup, groupKey)
}

// Uninvite withdraws owner's invitation of the group. The group need not
// still be discovered, so invitations of dissolved groups can be cleaned
// up. Reports whether a live invitation existed.
func (e *Engine) Uninvite(ctx context.Context, owner, groupKey string) (bool, error) {
	if err := e.requireOwner(ctx, owner); err != nil {
		return false, err
	}
	ids := grouping.ParseKey(groupKey)
	if len(ids) == 0 {
		return false, fmt.Errorf("%w: %q", ErrUnknownGroup, groupKey)
	}

	withdrawn, err := e.invites.Clear(ctx, owner, grouping.Key(ids...))
	if err != nil {
		return false, fmt.Errorf("matchmaker: uninvite: %w", err)
	}
	if withdrawn {
		metrics.InvitesTotal.WithLabelValues("withdrawn").Inc()
	}
	return withdrawn, nil
}

func (e *Engine) discover(ctx context.Context, owner string) ([]grouping.Group, error) {
	if err := e.requireOwner(ctx, owner); err != nil {
		return nil, err
	}
	r, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	rel, err := e.relation.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("matchmaker: load interests: %w", err)
	}

	start := time.Now()
	groups := grouping.Discover(r.profiles, rel)
	metrics.DiscoveryDuration.Observe(time.Since(start).Seconds())
	for _, g := range groups {
		metrics.GroupsDiscovered.WithLabelValues(strconv.Itoa(len(g.Members))).Inc()
	}
	return groups, nil
}

// groupCompatibility is the rounded mean of the pairwise percentages
// within the group.
func groupCompatibility(g grouping.Group) int {
	var sum, pairs int
	for i := 0; i < len(g.Members); i++ {
		for j := i + 1; j < len(g.Members); j++ {
			sum += compat.Score(g.Members[i], g.Members[j]).Percentage
			pairs++
		}
	}
	metrics.ScoresComputed.Add(float64(pairs))
	if pairs == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(pairs)))
}

// Feed ranks tenants by compatibility with viewer, best first. Ties keep
// roster order. Owners never appear in a feed, and neither does the viewer.
// Entries the viewer already liked are flagged. A non-positive limit uses
// DefaultFeedLimit.
func (e *Engine) Feed(ctx context.Context, viewer string, limit int) ([]protocol.FeedEntry, error) {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	limit = min(limit, MaxFeedLimit)

	r, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	v, err := r.get(viewer)
	if err != nil {
		return nil, err
	}
	targets, err := e.relation.Targets(ctx, viewer)
	if err != nil {
		return nil, fmt.Errorf("matchmaker: load interests: %w", err)
	}
	liked := make(map[string]bool, len(targets))
	for _, id := range targets {
		liked[id] = true
	}

	entries := make([]protocol.FeedEntry, 0, len(r.profiles))
	for _, p := range r.profiles {
		if p.ID == v.ID || p.Role != compat.RoleTenant {
			continue
		}
		res := compat.Score(v, p)
		entries = append(entries, protocol.FeedEntry{
			ID:         p.ID,
			Role:       p.Role,
			Percentage: res.Percentage,
			Breakdown:  res.Breakdown,
			Liked:      liked[p.ID],
		})
	}
	metrics.ScoresComputed.Add(float64(len(entries)))

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Percentage > entries[j].Percentage
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// ExpressInterest records that from liked to. Both must be on the roster.
// added is false when the interest was already recorded; mutual is true
// when this interest completed a mutual match.
func (e *Engine) ExpressInterest(ctx context.Context, from, to string) (added, mutual bool, err error) {
	if _, err := e.profile(ctx, from); err != nil {
		return false, false, err
	}
	if _, err := e.profile(ctx, to); err != nil {
		return false, false, err
	}

	added, err = e.relation.Add(ctx, from, to)
	if err != nil || !added {
		return added, false, err
	}
	mutual, err = e.relation.IsMutual(ctx, from, to)
	if err != nil {
		return true, false, fmt.Errorf("matchmaker: check mutual: %w", err)
	}
	if mutual {
		metrics.MutualMatches.Inc()
	}
	return true, mutual, nil
}

// Stats reports the roster size and how many users have outgoing interest.
func (e *Engine) Stats(ctx context.Context) (rosterSize, graphSize int, err error) {
	rosterSize, err = e.roster.Count(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("matchmaker: count roster: %w", err)
	}
	n, err := e.relation.Size(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("matchmaker: interest graph size: %w", err)
	}
	return rosterSize, int(n), nil
}
