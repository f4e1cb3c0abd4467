package grouping

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nestmate/roommates/internal/compat"
)

// Group is a set of two or three tenants who all match each other. Members
// are ordered by the role they played during discovery: anchor first.
type Group struct {
	Members []compat.Profile `json:"members"`
}

// IDs returns member ids in discovery order.
func (g Group) IDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID
	}
	return ids
}

// Key identifies the group independently of member order, so callers can
// track per-group state (such as invitations) across recomputations.
func (g Group) Key() string {
	return Key(g.IDs()...)
}

// KeySeparator joins member ids in a group key. Ids containing it cannot
// be grouped; see ValidateID.
const KeySeparator = "+"

// ErrInvalidID is returned for ids that cannot appear in a group key.
var ErrInvalidID = errors.New("grouping: invalid profile id")

// ValidateID reports whether id can be a group member. Empty ids and ids
// containing KeySeparator are rejected, so every key parses back to the
// ids it was built from.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if strings.Contains(id, KeySeparator) {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidID, id, KeySeparator)
	}
	return nil
}

// Key joins the sorted ids with KeySeparator.
func Key(ids ...string) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	return strings.Join(sorted, KeySeparator)
}

// ParseKey splits a group key back into its member ids.
func ParseKey(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, KeySeparator)
}

// Discover partitions eligible users into disjoint groups of mutually
// interested tenants. Triads are claimed first, then pairs from whoever is
// left. Both passes are first-fit in roster order: an earlier user gets
// first claim on their partners, and the result is not guaranteed to be a
// maximum clique cover. Users with no remaining mutual partner are left out.
func Discover(users []compat.Profile, rel Relation) []Group {
	candidates := eligible(users)
	n := len(candidates)
	taken := make([]bool, n)

	mutual := func(i, j int) bool {
		return rel.Mutual(candidates[i].ID, candidates[j].ID)
	}

	triads := make([]Group, 0)
	for i := 0; i < n; i++ {
		if taken[i] {
			continue
		}
	search:
		for j := i + 1; j < n; j++ {
			if taken[j] || !mutual(i, j) {
				continue
			}
			for k := j + 1; k < n; k++ {
				if taken[k] || !mutual(i, k) || !mutual(j, k) {
					continue
				}
				triads = append(triads, Group{Members: []compat.Profile{
					candidates[i], candidates[j], candidates[k],
				}})
				taken[i], taken[j], taken[k] = true, true, true
				break search
			}
		}
	}

	pairs := make([]Group, 0)
	for i := 0; i < n; i++ {
		if taken[i] {
			continue
		}
		for j := i + 1; j < n; j++ {
			if taken[j] || !mutual(i, j) {
				continue
			}
			pairs = append(pairs, Group{Members: []compat.Profile{candidates[i], candidates[j]}})
			taken[i], taken[j] = true, true
			break
		}
	}

	return append(triads, pairs...)
}

// eligible keeps roommate-seeking tenants in roster order. A repeated id
// is resolved to its first occurrence before the role check, so a later
// tenant entry cannot stand in for an earlier owner. Ids that cannot form
// a key are skipped.
func eligible(users []compat.Profile) []compat.Profile {
	seen := make(map[string]struct{}, len(users))
	out := make([]compat.Profile, 0, len(users))
	for _, u := range users {
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		if !u.SeeksRoommates() || ValidateID(u.ID) != nil {
			continue
		}
		out = append(out, u)
	}
	return out
}
