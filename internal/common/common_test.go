package common

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDigestWriterMatchesFileDigest(t *testing.T) {
	var buf bytes.Buffer
	dw := NewDigestWriter(&buf)
	if _, err := dw.Write([]byte("station output\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	sum, size, err := Sha256OfFile(path)
	if err != nil {
		t.Fatalf("Sha256OfFile: %v", err)
	}
	if sum != dw.Sum() {
		t.Fatalf("digest = %s, want %s", dw.Sum(), sum)
	}
	if size != dw.Written() {
		t.Fatalf("size = %d, want %d", dw.Written(), size)
	}
}

func TestAuditLogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "decisions.jsonl")
	log, err := OpenAuditLog(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	depth := 120.5
	entries := []DecisionEntry{
		{Index: 0, StationID: 10, Decision: DecisionOutput, BottomDepth: &depth, BottomSource: "h"},
		{Index: 1, StationID: 11, Decision: DecisionRejected, Reasons: []string{"region", "years"}},
	}
	for _, e := range entries {
		if err := log.Append(e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := log.Append(DecisionEntry{Index: 2}); err == nil {
		t.Fatalf("expected error for entry without decision")
	}
	if err := log.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, err := ReadAuditLog(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[1].Decision != DecisionRejected || len(got[1].Reasons) != 2 {
		t.Fatalf("unexpected second entry %+v", got[1])
	}
	if got[0].BottomDepth == nil || *got[0].BottomDepth != depth {
		t.Fatalf("bottom depth not preserved: %+v", got[0])
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.Start()
	m.AddStation(100, true)
	m.AddStation(50, false)
	m.IncSkipped()
	m.IncRejected()
	m.AddOutput(100)
	m.Stop()
	s := m.Snapshot()
	if s.Stations != 3 || s.Decoded != 1 || s.Skipped != 1 || s.Rejected != 1 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.Bytes != 150 || s.OutputBytes != 100 {
		t.Fatalf("unexpected bytes %+v", s)
	}
	if !strings.Contains(FormatSummary(s), "stations=3") {
		t.Fatalf("summary missing station count: %s", FormatSummary(s))
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KiB"},
		{5 << 20, "5.00 MiB"},
	}
	for _, tc := range tests {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Fatalf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestConfigureLogFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	if err := ConfigureLogFile(LogConfig{Directory: dir, FileName: "run.log"}, &console); err != nil {
		t.Fatalf("configure: %v", err)
	}
	Logf("station %d truncated", 7)
	if err := CloseLogFile(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "run.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "station 7 truncated") {
		t.Fatalf("log file missing line: %q", data)
	}
	if !strings.Contains(console.String(), "station 7 truncated") {
		t.Fatalf("console missing line: %q", console.String())
	}
}
