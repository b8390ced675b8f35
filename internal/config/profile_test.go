package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProfile(t *testing.T, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadProfile(t *testing.T) {
	path := writeProfile(t, `
name: left-hand
muscles:
  - name: thumb-flexor
    max_pressure: 0.8
  - name: index-flexor
    max_pressure: 0.9
`)

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.Name != "left-hand" {
		t.Errorf("name = %s", p.Name)
	}
	if len(p.Muscles) != 2 {
		t.Fatalf("muscles = %d, want 2", len(p.Muscles))
	}
	if p.MuscleName(0) != "thumb-flexor" {
		t.Errorf("MuscleName(0) = %s", p.MuscleName(0))
	}
	if p.MaxPressure(1) != 0.9 {
		t.Errorf("MaxPressure(1) = %v", p.MaxPressure(1))
	}
}

func TestProfileFallbacks(t *testing.T) {
	path := writeProfile(t, `
name: stub
muscles:
  - name: only
    max_pressure: 1.0
`)
	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}

	// Indexes past the profile fall back to positional names and unit scale.
	if got := p.MuscleName(5); got != "muscle-5" {
		t.Errorf("MuscleName(5) = %s", got)
	}
	if got := p.MaxPressure(5); got != 1 {
		t.Errorf("MaxPressure(5) = %v", got)
	}
}

func TestProfileValidation(t *testing.T) {
	cases := map[string]string{
		"empty":              `name: x`,
		"unnamed muscle":     "name: x\nmuscles:\n  - max_pressure: 1.0",
		"duplicate names":    "name: x\nmuscles:\n  - name: a\n    max_pressure: 1.0\n  - name: a\n    max_pressure: 1.0",
		"non-positive limit": "name: x\nmuscles:\n  - name: a\n    max_pressure: 0",
	}
	for label, raw := range cases {
		if _, err := LoadProfile(writeProfile(t, raw)); err == nil {
			t.Errorf("%s: validation passed, want error", label)
		}
	}
}
