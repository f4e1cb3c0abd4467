package grouping

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/nestmate/roommates/internal/compat"
)

func seeker(id string) compat.Profile {
	return compat.Profile{ID: id, Role: compat.RoleTenant, RentalGoal: compat.GoalRoommatesAndApartment}
}

func mutualPairs(pairs ...[2]string) Relation {
	rel := NewRelation()
	for _, p := range pairs {
		rel.Add(p[0], p[1])
		rel.Add(p[1], p[0])
	}
	return rel
}

func groupIDs(groups []Group) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		out[i] = g.IDs()
	}
	return out
}

func TestDiscover_SingleTriad(t *testing.T) {
	users := []compat.Profile{seeker("u1"), seeker("u2"), seeker("u3"), seeker("u4")}
	rel := mutualPairs([2]string{"u1", "u2"}, [2]string{"u1", "u3"}, [2]string{"u2", "u3"})
	rel.Add("u4", "u1") // one-sided

	got := groupIDs(Discover(users, rel))
	want := [][]string{{"u1", "u2", "u3"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDiscover_TwoPairs(t *testing.T) {
	users := []compat.Profile{seeker("u1"), seeker("u2"), seeker("u3"), seeker("u4")}
	rel := mutualPairs([2]string{"u1", "u2"}, [2]string{"u3", "u4"})

	got := groupIDs(Discover(users, rel))
	want := [][]string{{"u1", "u2"}, {"u3", "u4"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDiscover_FiveClique(t *testing.T) {
	ids := []string{"u1", "u2", "u3", "u4", "u5"}
	users := make([]compat.Profile, len(ids))
	rel := NewRelation()
	for i, a := range ids {
		users[i] = seeker(a)
		for _, b := range ids {
			rel.Add(a, b)
		}
	}

	groups := Discover(users, rel)
	want := [][]string{{"u1", "u2", "u3"}, {"u4", "u5"}}
	if got := groupIDs(groups); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	seen := make(map[string]bool)
	for _, g := range groups {
		for _, id := range g.IDs() {
			if seen[id] {
				t.Errorf("user %s appears in more than one group", id)
			}
			seen[id] = true
		}
	}
	if len(seen) != 5 {
		t.Errorf("expected all 5 users covered, got %d", len(seen))
	}
}

func TestDiscover_TriadsBeforePairs(t *testing.T) {
	// u1-u2 is a lone pair; u3,u4,u5 form a triad discovered later in
	// roster order but emitted first.
	users := []compat.Profile{seeker("u1"), seeker("u2"), seeker("u3"), seeker("u4"), seeker("u5")}
	rel := mutualPairs(
		[2]string{"u1", "u2"},
		[2]string{"u3", "u4"}, [2]string{"u3", "u5"}, [2]string{"u4", "u5"},
	)

	got := groupIDs(Discover(users, rel))
	want := [][]string{{"u3", "u4", "u5"}, {"u1", "u2"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDiscover_TriadClaimsMemberBeforePairPass(t *testing.T) {
	// u1 and u2 are mutual, but u2 also completes a triad with u3 and u4.
	// The triad pass runs over everyone first, so u1 ends up without a group.
	users := []compat.Profile{seeker("u1"), seeker("u2"), seeker("u3"), seeker("u4")}
	rel := mutualPairs(
		[2]string{"u1", "u2"},
		[2]string{"u2", "u3"}, [2]string{"u2", "u4"}, [2]string{"u3", "u4"},
	)

	got := groupIDs(Discover(users, rel))
	want := [][]string{{"u2", "u3", "u4"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDiscover_FirstFitIsNotOptimal(t *testing.T) {
	// u1 pairs with u2 first although {u2,u3} + {u1,u4} would cover everyone.
	users := []compat.Profile{seeker("u1"), seeker("u2"), seeker("u3"), seeker("u4")}
	rel := mutualPairs([2]string{"u1", "u2"}, [2]string{"u2", "u3"}, [2]string{"u1", "u4"})

	got := groupIDs(Discover(users, rel))
	want := [][]string{{"u1", "u2"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDiscover_TriadSearchMovesToNextSecond(t *testing.T) {
	// For anchor u1, second u2 has no valid third; u3 does (with u4).
	users := []compat.Profile{seeker("u1"), seeker("u2"), seeker("u3"), seeker("u4")}
	rel := mutualPairs(
		[2]string{"u1", "u2"},
		[2]string{"u1", "u3"}, [2]string{"u1", "u4"}, [2]string{"u3", "u4"},
	)

	got := groupIDs(Discover(users, rel))
	want := [][]string{{"u1", "u3", "u4"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDiscover_OneSidedInterestIsNotAMatch(t *testing.T) {
	users := []compat.Profile{seeker("u1"), seeker("u2")}
	rel := NewRelation()
	rel.Add("u1", "u2")

	if got := Discover(users, rel); len(got) != 0 {
		t.Errorf("expected no groups, got %v", groupIDs(got))
	}
}

func TestDiscover_Eligibility(t *testing.T) {
	owner := compat.Profile{ID: "owner", Role: compat.RoleOwner, RentalGoal: compat.GoalEither}
	roomOnly := compat.Profile{ID: "solo", Role: compat.RoleTenant, RentalGoal: compat.GoalRoomOnly}
	either := compat.Profile{ID: "either", Role: compat.RoleTenant, RentalGoal: compat.GoalEither}

	users := []compat.Profile{owner, roomOnly, either, seeker("u1")}
	rel := mutualPairs(
		[2]string{"owner", "either"},
		[2]string{"solo", "either"},
		[2]string{"owner", "solo"},
		[2]string{"either", "u1"},
	)

	got := groupIDs(Discover(users, rel))
	want := [][]string{{"either", "u1"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDiscover_EmptyInputs(t *testing.T) {
	if got := Discover(nil, nil); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil result for nil inputs, got %v", got)
	}
	users := []compat.Profile{seeker("u1"), seeker("u2")}
	if got := Discover(users, NewRelation()); len(got) != 0 {
		t.Errorf("expected no groups for empty relation, got %v", groupIDs(got))
	}
	if got := Discover(nil, mutualPairs([2]string{"u1", "u2"})); len(got) != 0 {
		t.Errorf("expected no groups for empty roster, got %v", groupIDs(got))
	}
}

func TestDiscover_UnknownIDsIgnored(t *testing.T) {
	users := []compat.Profile{seeker("u1"), seeker("u2")}
	rel := mutualPairs([2]string{"u1", "ghost"}, [2]string{"u2", "ghost"}, [2]string{"u1", "u2"})

	got := groupIDs(Discover(users, rel))
	want := [][]string{{"u1", "u2"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDiscover_DuplicateRosterEntries(t *testing.T) {
	users := []compat.Profile{seeker("u1"), seeker("u1"), seeker("u2")}
	rel := mutualPairs([2]string{"u1", "u2"})

	got := groupIDs(Discover(users, rel))
	want := [][]string{{"u1", "u2"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDiscover_FirstOccurrenceDecidesEligibility(t *testing.T) {
	owner := compat.Profile{ID: "x", Role: compat.RoleOwner}
	users := []compat.Profile{owner, seeker("x"), seeker("y")}
	rel := mutualPairs([2]string{"x", "y"})

	if got := Discover(users, rel); len(got) != 0 {
		t.Errorf("expected owner x to shadow the later tenant x, got %v", groupIDs(got))
	}
}

func TestDiscover_SkipsIDsContainingSeparator(t *testing.T) {
	users := []compat.Profile{seeker("b+a"), seeker("c"), seeker("d")}
	rel := mutualPairs([2]string{"b+a", "c"}, [2]string{"b+a", "d"}, [2]string{"c", "d"})

	got := Discover(users, rel)
	want := [][]string{{"c", "d"}}
	if !reflect.DeepEqual(groupIDs(got), want) {
		t.Fatalf("expected %v, got %v", want, groupIDs(got))
	}
	for _, g := range got {
		if k := g.Key(); Key(ParseKey(k)...) != k {
			t.Errorf("key %q does not round-trip", k)
		}
	}
}

func TestValidateID(t *testing.T) {
	for _, id := range []string{"", "a+b", "+"} {
		if err := ValidateID(id); !errors.Is(err, ErrInvalidID) {
			t.Errorf("ValidateID(%q) = %v, want ErrInvalidID", id, err)
		}
	}
	for _, id := range []string{"maya", "user-42", "a b", "olga@example"} {
		if err := ValidateID(id); err != nil {
			t.Errorf("ValidateID(%q) unexpected error: %v", id, err)
		}
	}
}

func TestDiscover_Idempotent(t *testing.T) {
	var users []compat.Profile
	rel := NewRelation()
	for i := 0; i < 12; i++ {
		users = append(users, seeker(fmt.Sprintf("u%02d", i)))
	}
	for i := 0; i < 12; i++ {
		for j := 0; j < 12; j++ {
			if (i+j)%3 != 0 || i == j {
				continue
			}
			rel.Add(users[i].ID, users[j].ID)
		}
	}

	first := groupIDs(Discover(users, rel))
	for run := 0; run < 20; run++ {
		if got := groupIDs(Discover(users, rel)); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: expected %v, got %v", run, first, got)
		}
	}
}

func TestRelation_MutualIgnoresSelf(t *testing.T) {
	rel := NewRelation()
	rel.Add("u1", "u1")
	if rel.Likes("u1", "u1") {
		t.Error("self-interest should not be recorded")
	}
	if rel.Mutual("u1", "u1") {
		t.Error("a user cannot be mutual with themselves")
	}
}

func TestGroupKey(t *testing.T) {
	g := Group{Members: []compat.Profile{seeker("c"), seeker("a"), seeker("b")}}
	if got := g.Key(); got != "a+b+c" {
		t.Errorf("expected a+b+c, got %s", got)
	}
	if Key("b", "a") != Key("a", "b") {
		t.Error("key should not depend on argument order")
	}
	if got := ParseKey("a+b+c"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("unexpected parse result %v", got)
	}
	if got := ParseKey(""); got != nil {
		t.Errorf("expected nil for empty key, got %v", got)
	}
}
