package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nestmate/roommates/internal/compat"
	"github.com/nestmate/roommates/internal/grouping"
)

func TestLoadFixture_Sample(t *testing.T) {
	fx, err := loadFixture("")
	if err != nil {
		t.Fatalf("loadFixture() error: %v", err)
	}
	if len(fx.Profiles) == 0 || len(fx.Likes) == 0 {
		t.Fatalf("expected sample profiles and likes, got %d/%d", len(fx.Profiles), len(fx.Likes))
	}

	// The sample should produce one triad and one pair.
	rel := grouping.NewRelation()
	for _, l := range fx.Likes {
		rel.Add(l.From, l.To)
	}
	groups := grouping.Discover(fx.Profiles, rel)
	if len(groups) != 2 || len(groups[0].Members) != 3 || len(groups[1].Members) != 2 {
		t.Errorf("unexpected sample groups: %+v", groups)
	}
	if got := groups[0].Key(); got != "jonas+maya+priya" {
		t.Errorf("expected triad jonas+maya+priya, got %s", got)
	}
}

func TestLoadFixture_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fx.json")
	data := `{"profiles":[{"id":"a","age":30,"noise_level":"high","role":"tenant","rental_goal":"either"}],"likes":[]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	fx, err := loadFixture(path)
	if err != nil {
		t.Fatalf("loadFixture() error: %v", err)
	}
	if len(fx.Profiles) != 1 || fx.Profiles[0].Noise != compat.NoiseHigh {
		t.Errorf("unexpected profiles %+v", fx.Profiles)
	}
}

func TestLoadFixture_Errors(t *testing.T) {
	if _, err := loadFixture(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte(`{"profiles":[{"id":"a","noise_level":"deafening"}]}`), 0o644)
	if _, err := loadFixture(path); err == nil {
		t.Error("expected error for unknown noise level")
	}
}

func TestLoadFixture_RejectsSeparatorInID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fx.json")
	data := `{"profiles":[{"id":"b+a","age":30,"role":"tenant","rental_goal":"either"}],"likes":[]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := loadFixture(path); !errors.Is(err, grouping.ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
}
