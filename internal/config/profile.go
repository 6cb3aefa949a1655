// Package config loads filter profiles: YAML files that name a station
// selection so it can be reused from the command line and the daemon.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/oclfilt/internal/ocl"
)

// ErrInvalidProfile wraps every validation failure.
var ErrInvalidProfile = errors.New("invalid filter profile")

// Profile is a named station selection plus output settings.
type Profile struct {
	Name           string           `yaml:"name" json:"name,omitempty"`
	Variables      []int64          `yaml:"variables" json:"variables,omitempty"`
	MinLevels      int64            `yaml:"minLevels" json:"minLevels,omitempty"`
	Region         *ocl.Region      `yaml:"region" json:"region,omitempty"`
	Years          *ocl.IntRange    `yaml:"years" json:"years,omitempty"`
	Months         *ocl.IntRange    `yaml:"months" json:"months,omitempty"`
	GridSquare     string           `yaml:"gridSquare" json:"gridSquare,omitempty"`
	Bottom         *ocl.DepthWindow `yaml:"bottom" json:"bottom,omitempty"`
	IncludeFlagged bool             `yaml:"includeFlagged" json:"includeFlagged,omitempty"`
	NoTitles       bool             `yaml:"noTitles" json:"noTitles,omitempty"`
	Limit          int64            `yaml:"limit" json:"limit,omitempty"`
	SkipTo         int64            `yaml:"skipTo" json:"skipTo,omitempty"`
	MaxLevels      int              `yaml:"maxLevels" json:"maxLevels,omitempty"`

	// Bathymetry is resolved relative to the profile file.
	Bathymetry      string `yaml:"bathymetry" json:"bathymetry,omitempty"`
	BathymetryCheck string `yaml:"bathymetryCheck" json:"bathymetryCheck,omitempty"`
}

// LoadProfile reads and validates a profile file.
func LoadProfile(path string) (Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return Profile{}, err
	}
	defer f.Close()
	p, err := DecodeProfile(f)
	if err != nil {
		return p, fmt.Errorf("%s: %w", path, err)
	}
	p.Bathymetry = ResolvePath(filepath.Dir(path), p.Bathymetry)
	return p, nil
}

// DecodeProfile parses YAML from r. Unknown keys are rejected.
func DecodeProfile(r io.Reader) (Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return p, err
	}
	return p, p.Validate()
}

// Validate checks ranges and codes.
func (p Profile) Validate() error {
	if r := p.Region; r != nil {
		if r.West > r.East || r.South > r.North {
			return fmt.Errorf("%w: region %+v is empty", ErrInvalidProfile, *r)
		}
	}
	if r := p.Years; r != nil && r.Min > r.Max {
		return fmt.Errorf("%w: years %d-%d", ErrInvalidProfile, r.Min, r.Max)
	}
	if r := p.Months; r != nil && (r.Min < 1 || r.Max > 12 || r.Min > r.Max) {
		return fmt.Errorf("%w: months %d-%d", ErrInvalidProfile, r.Min, r.Max)
	}
	if w := p.Bottom; w != nil && w.Shallow > w.Deep {
		return fmt.Errorf("%w: bottom window %v-%v", ErrInvalidProfile, w.Shallow, w.Deep)
	}
	if p.GridSquare != "" {
		if err := ValidateGridSquare(p.GridSquare); err != nil {
			return err
		}
	}
	for _, v := range p.Variables {
		if v <= 0 {
			return fmt.Errorf("%w: variable code %d", ErrInvalidProfile, v)
		}
	}
	if p.MinLevels < 0 || p.Limit < 0 || p.SkipTo < 0 || p.MaxLevels < 0 {
		return fmt.Errorf("%w: negative count", ErrInvalidProfile)
	}
	if _, err := ocl.ParseBathymetryCheck(p.BathymetryCheck); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	return nil
}

// ValidateGridSquare requires a four-digit WMO square number.
func ValidateGridSquare(s string) error {
	if len(s) != 4 {
		return fmt.Errorf("%w: grid square %q must have 4 digits", ErrInvalidProfile, s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: grid square %q must have 4 digits", ErrInvalidProfile, s)
		}
	}
	return nil
}

// Criteria returns the station predicates of the profile.
func (p Profile) Criteria() ocl.Criteria {
	return ocl.Criteria{
		Variables:  append([]int64(nil), p.Variables...),
		MinLevels:  p.MinLevels,
		Region:     p.Region,
		Years:      p.Years,
		Months:     p.Months,
		GridSquare: p.GridSquare,
	}
}

// ResolvePath makes a relative path relative to baseDir when that file
// exists, and otherwise leaves it as given.
func ResolvePath(baseDir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	candidate := filepath.Clean(filepath.Join(baseDir, p))
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return filepath.Clean(p)
}
