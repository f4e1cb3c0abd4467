package compat

import "math"

// Dimension names and weights.
const (
	DimInterests = "interests"
	DimAge       = "age"
	DimNoise     = "noise"
	DimLifestyle = "lifestyle"

	maxInterests = 40
	maxAge       = 20
	maxNoise     = 20
	maxLifestyle = 20

	// agePenalty is the number of points lost per year of age difference.
	agePenalty = 2

	// NeutralPercentage is reported when no dimension applies.
	NeutralPercentage = 50

	// MaxPercentage caps the aggregate: a perfect match is never promised.
	MaxPercentage = 99
)

// Component is one scored dimension of a compatibility breakdown.
type Component struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score"`
}

// Breakdown lists the applicable dimensions in evaluation order.
type Breakdown []Component

// Result is the outcome of comparing two profiles.
type Result struct {
	Breakdown  Breakdown `json:"breakdown"`
	Percentage int       `json:"percentage"`
}

// Score compares two profiles. Dimensions without data on either side are
// left out of the breakdown so they do not dilute the percentage; age is
// always present.
func Score(a, b Profile) Result {
	breakdown := make(Breakdown, 0, 4)

	if len(a.Interests) > 0 || len(b.Interests) > 0 {
		breakdown = append(breakdown, Component{
			Name:     DimInterests,
			Score:    overlapScore(a.Interests, b.Interests, maxInterests),
			MaxScore: maxInterests,
		})
	}

	breakdown = append(breakdown, Component{
		Name:     DimAge,
		Score:    ageScore(a.Age, b.Age),
		MaxScore: maxAge,
	})

	if a.Noise != NoiseUnset && b.Noise != NoiseUnset {
		breakdown = append(breakdown, Component{
			Name:     DimNoise,
			Score:    noiseScore(a.Noise, b.Noise),
			MaxScore: maxNoise,
		})
	}

	if len(a.Lifestyle) > 0 || len(b.Lifestyle) > 0 {
		breakdown = append(breakdown, Component{
			Name:     DimLifestyle,
			Score:    overlapScore(a.Lifestyle, b.Lifestyle, maxLifestyle),
			MaxScore: maxLifestyle,
		})
	}

	return Result{Breakdown: breakdown, Percentage: Aggregate(breakdown)}
}

// Aggregate folds a breakdown into a percentage in [0, 99]. An empty
// breakdown (or one whose maxima sum to zero) yields NeutralPercentage.
func Aggregate(breakdown Breakdown) int {
	var total, possible float64
	for _, c := range breakdown {
		total += c.Score
		possible += c.MaxScore
	}
	if possible == 0 {
		return NeutralPercentage
	}
	pct := int(math.Round(100 * total / possible))
	if pct > MaxPercentage {
		pct = MaxPercentage
	}
	return pct
}

// overlapScore scales the shared-tag count by the smaller set, so someone
// with few tags can still reach the full weight.
func overlapScore(a, b []string, weight float64) float64 {
	setA := toSet(a)
	setB := toSet(b)

	shared := 0
	for tag := range setA {
		if _, ok := setB[tag]; ok {
			shared++
		}
	}

	denom := len(setA)
	if len(setB) < denom {
		denom = len(setB)
	}
	if denom < 1 {
		denom = 1
	}
	return weight * float64(shared) / float64(denom)
}

func ageScore(a, b int) float64 {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	score := maxAge - agePenalty*diff
	if score < 0 {
		return 0
	}
	return float64(score)
}

func noiseScore(a, b NoiseLevel) float64 {
	diff := int(a) - int(b)
	if diff < 0 {
		diff = -diff
	}
	switch diff {
	case 0:
		return maxNoise
	case 1:
		return maxNoise / 2
	default:
		return 0
	}
}

func toSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}
