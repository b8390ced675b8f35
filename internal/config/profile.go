package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is a YAML muscle calibration profile. It names the muscles in
// actuation order and records the pressure each one saturates at, which the
// TUI uses to scale contraction bars. The profile never overrides the
// muscle count the bridge reports; it only annotates it.
type Profile struct {
	Name    string   `yaml:"name"`
	Muscles []Muscle `yaml:"muscles"`
}

type Muscle struct {
	Name string `yaml:"name"`
	// MaxPressure is the contraction reading at full actuation, in the
	// bridge's native unit.
	MaxPressure float64 `yaml:"max_pressure"`
}

// LoadProfile reads and validates a YAML calibration profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the profile is usable for display scaling.
func (p *Profile) Validate() error {
	if len(p.Muscles) == 0 {
		return fmt.Errorf("profile %q: no muscles defined", p.Name)
	}
	seen := make(map[string]bool, len(p.Muscles))
	for i, m := range p.Muscles {
		if m.Name == "" {
			return fmt.Errorf("profile %q: muscle %d has no name", p.Name, i)
		}
		if seen[m.Name] {
			return fmt.Errorf("profile %q: duplicate muscle %q", p.Name, m.Name)
		}
		seen[m.Name] = true
		if m.MaxPressure <= 0 {
			return fmt.Errorf("profile %q: muscle %q max_pressure must be positive", p.Name, m.Name)
		}
	}
	return nil
}

// MuscleName returns the profile name for muscle i, or a positional
// fallback when the profile is shorter than the actual muscle count.
func (p *Profile) MuscleName(i int) string {
	if p != nil && i >= 0 && i < len(p.Muscles) {
		return p.Muscles[i].Name
	}
	return fmt.Sprintf("muscle-%d", i)
}

// MaxPressure returns the display ceiling for muscle i, defaulting to 1.
func (p *Profile) MaxPressure(i int) float64 {
	if p != nil && i >= 0 && i < len(p.Muscles) {
		return p.Muscles[i].MaxPressure
	}
	return 1
}
