package common

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Decision values recorded in the audit log.
const (
	DecisionOutput   = "output"
	DecisionRejected = "rejected"
	DecisionSkipped  = "skipped"
)

// DecisionEntry records what a filter run did with one station.
type DecisionEntry struct {
	Index        int64     `json:"index"`
	StationID    int64     `json:"stationId"`
	Offset       int64     `json:"offset"`
	Bytes        int64     `json:"bytes,omitempty"`
	Decision     string    `json:"decision"`
	Reasons      []string  `json:"reasons,omitempty"`
	BottomDepth  *float64  `json:"bottomDepth,omitempty"`
	BottomSource string    `json:"bottomSource,omitempty"`
	Ts           time.Time `json:"ts"`
}

// AuditLog provides append-only access to a JSONL decision log. The file is
// held open for the lifetime of the log; call Close when the run ends.
type AuditLog struct {
	path string
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
}

// OpenAuditLog creates (or appends to) the log at path.
func OpenAuditLog(path string) (*AuditLog, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &AuditLog{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the backing file path for the log.
func (a *AuditLog) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

// Append writes a new entry, one JSON object per line.
func (a *AuditLog) Append(entry DecisionEntry) error {
	if a == nil {
		return errors.New("nil audit log")
	}
	if entry.Decision == "" {
		return errors.New("decision entry missing decision")
	}
	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.w == nil {
		return errors.New("audit log closed")
	}
	if _, err := a.w.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// Close flushes buffered entries and syncs the file.
func (a *AuditLog) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	err := a.w.Flush()
	if serr := a.f.Sync(); err == nil {
		err = serr
	}
	if cerr := a.f.Close(); err == nil {
		err = cerr
	}
	a.f = nil
	a.w = nil
	return err
}

// ReadAuditLog loads every entry from the supplied JSONL file.
func ReadAuditLog(path string) ([]DecisionEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []DecisionEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry DecisionEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode decision entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
