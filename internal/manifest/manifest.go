// Package manifest records the files a run read and wrote, with their
// digests, under a run identifier.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/oclfilt/internal/common"
)

// ErrDigestMismatch is returned by Verify when a file changed.
var ErrDigestMismatch = errors.New("manifest digest mismatch")

type Item struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

type Manifest struct {
	RunID     string    `json:"runId"`
	CreatedAt time.Time `json:"createdAt"`
	ShaAlgo   string    `json:"shaAlgo"`
	Items     []Item    `json:"items"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Build hashes every path. An empty runID gets a new one.
func Build(runID string, paths []string) (Manifest, error) {
	if runID == "" {
		runID = NewRunID()
	} else if _, err := uuid.Parse(runID); err != nil {
		return Manifest{}, fmt.Errorf("run id %q: %w", runID, err)
	}
	m := Manifest{RunID: runID, CreatedAt: time.Now().UTC(), ShaAlgo: "sha256"}
	for _, p := range paths {
		hex, sz, err := common.Sha256OfFile(p)
		if err != nil {
			return m, err
		}
		m.Items = append(m.Items, Item{Path: p, Size: sz, Sha256: hex, Type: itemType(p)})
	}
	return m, nil
}

func itemType(p string) string {
	switch {
	case hasExt(p, ".ocl", ".dat"):
		return "ocl"
	case hasExt(p, ".bathy", ".xyz"):
		return "bathymetry"
	case hasExt(p, ".ndjson", ".jsonl"):
		return "ndjson"
	case hasExt(p, ".msgpack", ".mp"):
		return "msgpack"
	case hasExt(p, ".json"):
		return "json"
	case hasExt(p, ".pdf"):
		return "pdf"
	case hasExt(p, ".db", ".sqlite"):
		return "sqlite"
	case hasExt(p, ".txt", ".col"):
		return "columns"
	}
	return "other"
}

func hasExt(path string, exts ...string) bool {
	lower := strings.ToLower(path)
	for _, e := range exts {
		if strings.HasSuffix(lower, e) {
			return true
		}
	}
	return false
}

func Save(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

// Verify rehashes every item and reports the first that differs.
func Verify(m Manifest) error {
	for _, it := range m.Items {
		hex, sz, err := common.Sha256OfFile(it.Path)
		if err != nil {
			return err
		}
		if hex != it.Sha256 || sz != it.Size {
			return fmt.Errorf("%w: %s", ErrDigestMismatch, it.Path)
		}
	}
	return nil
}
