// Package grouping discovers ready-made roommate groups: sets of two or
// three tenants who have all expressed interest in each other.
package grouping

// Relation maps a profile id to the ids that profile has shown interest in.
// It is a directed graph; a match is mutual only when both edges exist.
type Relation map[string]map[string]struct{}

// NewRelation returns an empty relation.
func NewRelation() Relation {
	return make(Relation)
}

// Add records that from is interested in to. Self-edges are ignored.
func (r Relation) Add(from, to string) {
	if from == to {
		return
	}
	targets, ok := r[from]
	if !ok {
		targets = make(map[string]struct{})
		r[from] = targets
	}
	targets[to] = struct{}{}
}

// Likes reports whether from has expressed interest in to.
func (r Relation) Likes(from, to string) bool {
	_, ok := r[from][to]
	return ok
}

// Mutual reports whether x and y have each expressed interest in the other.
func (r Relation) Mutual(x, y string) bool {
	if x == y {
		return false
	}
	return r.Likes(x, y) && r.Likes(y, x)
}
