// Package roster provides PostgreSQL-backed storage for user profiles.
// The roster is the ordered list that scoring and group discovery read;
// its order is the insertion sequence, stable across calls and updates so
// discovery results are reproducible.
package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/nestmate/roommates/internal/compat"
	"github.com/nestmate/roommates/internal/grouping"
	"github.com/nestmate/roommates/internal/tags"
)

// ErrNotFound is returned by Get when no profile has the given id.
var ErrNotFound = errors.New("roster: profile not found")

// validRoles matches the CHECK constraint on the profiles table.
var validRoles = map[compat.Role]bool{
	compat.RoleTenant: true,
	compat.RoleOwner:  true,
}

// Store manages profiles in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new roster store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectColumns = `id, age, interests, lifestyle, noise_level, role, rental_goal`

// List returns every profile in roster order.
func (s *Store) List(ctx context.Context) ([]compat.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM profiles ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("roster: list: %w", err)
	}
	defer rows.Close()

	var out []compat.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roster: list: %w", err)
	}
	return out, nil
}

// Get returns one profile by id.
func (s *Store) Get(ctx context.Context, id string) (compat.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return compat.Profile{}, ErrNotFound
	}
	return p, err
}

// Upsert inserts or replaces a profile. Tags are normalized before they
// are stored; an existing profile keeps its place in roster order.
func (s *Store) Upsert(ctx context.Context, p compat.Profile) error {
	if err := grouping.ValidateID(p.ID); err != nil {
		return fmt.Errorf("roster: %w", err)
	}
	if p.Age < 0 {
		return fmt.Errorf("roster: invalid age %d", p.Age)
	}
	if !validRoles[p.Role] {
		return fmt.Errorf("roster: invalid role %q", p.Role)
	}

	const query = `
		INSERT INTO profiles (id, age, interests, lifestyle, noise_level, role, rental_goal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			age         = EXCLUDED.age,
			interests   = EXCLUDED.interests,
			lifestyle   = EXCLUDED.lifestyle,
			noise_level = EXCLUDED.noise_level,
			role        = EXCLUDED.role,
			rental_goal = EXCLUDED.rental_goal,
			updated_at  = NOW()`

	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.Age,
		pq.Array(tags.Normalize(p.Interests)),
		pq.Array(tags.Normalize(p.Lifestyle)),
		p.Noise.String(),
		string(p.Role),
		string(p.RentalGoal),
	)
	if err != nil {
		return fmt.Errorf("roster: upsert %s: %w", p.ID, err)
	}
	return nil
}

// Count returns the number of profiles in the roster.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("roster: count: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (compat.Profile, error) {
	var (
		p                    compat.Profile
		interests, lifestyle pq.StringArray
		noise, role, goal    string
	)
	if err := row.Scan(&p.ID, &p.Age, &interests, &lifestyle, &noise, &role, &goal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("roster: scan: %w", err)
	}

	lvl, err := compat.ParseNoiseLevel(noise)
	if err != nil {
		return p, fmt.Errorf("roster: profile %s: %w", p.ID, err)
	}
	p.Interests = []string(interests)
	p.Lifestyle = []string(lifestyle)
	p.Noise = lvl
	p.Role = compat.Role(role)
	p.RentalGoal = compat.RentalGoal(goal)
	return p, nil
}
