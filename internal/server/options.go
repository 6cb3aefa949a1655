package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"example.com/oclfilt/internal/config"
)

// Options configures server creation.
type Options struct {
	StorageDir string
	// DataDir, when set, lets requests name files below it by relative
	// path in addition to uploaded artifact ids.
	DataDir     string
	Profiles    map[string]config.Profile
	Concurrency int
}

// LoadProfileDir reads every *.yaml and *.yml file in dir as a filter
// profile. A profile without a name takes its file name.
func LoadProfileDir(dir string) (map[string]config.Profile, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("profile dir: %w", err)
	}
	out := make(map[string]config.Profile)
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		p, err := config.LoadProfile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if p.Name == "" {
			p.Name = strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		}
		if _, dup := out[p.Name]; dup {
			return nil, fmt.Errorf("duplicate profile %q in %s", p.Name, dir)
		}
		out[p.Name] = p
	}
	return out, nil
}

func profileNames(profiles map[string]config.Profile) []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
