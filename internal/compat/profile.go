// Package compat computes pairwise roommate compatibility from profile
// attributes. Scoring is pure: it reads two profiles and returns an itemized
// breakdown plus an aggregate percentage, with no I/O and no shared state.
package compat

import (
	"fmt"
	"strings"
)

// NoiseLevel is the ordered noise tolerance a user declares.
type NoiseLevel int

const (
	NoiseUnset NoiseLevel = iota
	NoiseLow
	NoiseMedium
	NoiseHigh
)

// String returns the wire name of the level ("" for unset).
func (n NoiseLevel) String() string {
	switch n {
	case NoiseLow:
		return "low"
	case NoiseMedium:
		return "medium"
	case NoiseHigh:
		return "high"
	default:
		return ""
	}
}

// ParseNoiseLevel maps a stored or user-supplied value to a NoiseLevel.
// Empty input yields NoiseUnset.
func ParseNoiseLevel(s string) (NoiseLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return NoiseUnset, nil
	case "low":
		return NoiseLow, nil
	case "medium":
		return NoiseMedium, nil
	case "high":
		return NoiseHigh, nil
	default:
		return NoiseUnset, fmt.Errorf("compat: unknown noise level %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (n NoiseLevel) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *NoiseLevel) UnmarshalText(b []byte) error {
	lvl, err := ParseNoiseLevel(string(b))
	if err != nil {
		return err
	}
	*n = lvl
	return nil
}

// Role separates people looking for a place from people listing one.
type Role string

const (
	RoleTenant Role = "tenant"
	RoleOwner  Role = "owner"
)

// RentalGoal is what a tenant is looking for.
type RentalGoal string

const (
	GoalRoommatesAndApartment RentalGoal = "roommates_and_apartment"
	GoalEither                RentalGoal = "either"
	GoalRoomOnly              RentalGoal = "room_only"
)

// Profile is the read-only view of a user that scoring and grouping need.
type Profile struct {
	ID         string     `json:"id"`
	Age        int        `json:"age"`
	Interests  []string   `json:"interests"`
	Lifestyle  []string   `json:"lifestyle"`
	Noise      NoiseLevel `json:"noise_level"`
	Role       Role       `json:"role"`
	RentalGoal RentalGoal `json:"rental_goal"`
}

// SeeksRoommates reports whether the profile belongs in roommate groups:
// a tenant who wants roommates together with an apartment, or is open to
// either option. Owners and room-only tenants are excluded.
func (p Profile) SeeksRoommates() bool {
	if p.Role != RoleTenant {
		return false
	}
	return p.RentalGoal == GoalRoommatesAndApartment || p.RentalGoal == GoalEither
}
