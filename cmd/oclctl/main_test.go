package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/oclfilt/internal/catalog"
	"example.com/oclfilt/internal/common"
	"example.com/oclfilt/internal/report"
	"example.com/oclfilt/internal/samples"
)

func writeSamples(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	var out bytes.Buffer
	if err := generateCmd([]string{"--out-dir", dir}, &out); err != nil {
		t.Fatalf("generate: %v", err)
	}
	return dir
}

func TestFilterQueryWritesSummary(t *testing.T) {
	dir := writeSamples(t)
	summaryPath := filepath.Join(dir, "summary.json")
	auditPath := filepath.Join(dir, "audit.jsonl")
	var out bytes.Buffer
	err := filterCmd(context.Background(), []string{
		"--in", filepath.Join(dir, samples.OCLFileName),
		"--bathy", filepath.Join(dir, samples.BathymetryFileName),
		"--grid-square", samples.GridSquare,
		"--query",
		"--summary", summaryPath,
		"--audit", auditPath,
	}, nil, &out)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if !strings.HasPrefix(lines[0], "%  stn year") {
		t.Fatalf("missing query header: %q", lines[0])
	}
	s, err := report.LoadSummaryJSON(summaryPath)
	if err != nil {
		t.Fatalf("LoadSummaryJSON: %v", err)
	}
	if s.TotalStations != samples.DefaultStations {
		t.Fatalf("total = %d, want %d", s.TotalStations, samples.DefaultStations)
	}
	// two heading rows, one per output station, two summary rows
	if got := int64(len(lines)); got != s.OutputStations+4 {
		t.Fatalf("got %d lines for %d stations", got, s.OutputStations)
	}
	if !strings.HasPrefix(lines[len(lines)-1], "% summary:") {
		t.Fatalf("last line = %q", lines[len(lines)-1])
	}
	if s.InputSHA256 == "" || s.OutputSHA256 == "" {
		t.Fatalf("digests missing: %+v", s)
	}
	entries, err := common.ReadAuditLog(auditPath)
	if err != nil {
		t.Fatalf("ReadAuditLog: %v", err)
	}
	if int64(len(entries)) != s.TotalStations {
		t.Fatalf("audit entries = %d, want %d", len(entries), s.TotalStations)
	}
}

func TestFilterNDJSONHonoursVariables(t *testing.T) {
	dir := writeSamples(t)
	var out bytes.Buffer
	err := filterCmd(context.Background(), []string{
		"--in", filepath.Join(dir, samples.OCLFileName),
		"--format", "ndjson",
		"--vars", "2",
	}, nil, &out)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	sc := bufio.NewScanner(&out)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	n := 0
	for sc.Scan() {
		var rec report.StationRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("decode: %v", err)
		}
		found := false
		for _, v := range rec.Variables {
			if v.Code == 2 && v.ErrorFlag == 0 {
				found = true
			}
		}
		if !found {
			t.Fatalf("station %d has no clean salinity column", rec.Index)
		}
		if len(rec.Levels) == 0 {
			t.Fatalf("station %d has no levels", rec.Index)
		}
		n++
	}
	if n == 0 || n >= samples.DefaultStations {
		t.Fatalf("got %d stations", n)
	}
}

func TestFilterRejectsConflictingModes(t *testing.T) {
	err := filterCmd(context.Background(), []string{"--stats", "--dump"}, strings.NewReader(""), &bytes.Buffer{})
	if err == nil {
		t.Fatalf("expected an error")
	}
	err = filterCmd(context.Background(), []string{"--months", "13,14"}, strings.NewReader(""), &bytes.Buffer{})
	if err == nil {
		t.Fatalf("expected a profile error")
	}
}

func TestFilterConfigProfile(t *testing.T) {
	dir := writeSamples(t)
	profile := filepath.Join(dir, "profile.yaml")
	if err := os.WriteFile(profile, []byte("years: {min: 1985, max: 1985}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, samples.OCLFileName))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var out bytes.Buffer
	if err := filterCmd(context.Background(), []string{"--config", profile, "--stats"}, bytes.NewReader(data), &out); err != nil {
		t.Fatalf("filter: %v", err)
	}
	// stations 0 and 15 fall in 1985
	if !strings.Contains(out.String(), "% summary:  2 / 24 ,") {
		t.Fatalf("summary = %q", out.String())
	}
}

func TestLatLonsUsesPlaceholder(t *testing.T) {
	dir := writeSamples(t)
	var out bytes.Buffer
	err := latlonsCmd(context.Background(), []string{
		"--in", filepath.Join(dir, samples.OCLFileName),
		"--grid-square", samples.GridSquare,
	}, nil, &out)
	if err != nil {
		t.Fatalf("latlons: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != samples.DefaultStations {
		t.Fatalf("got %d lines", len(lines))
	}
	if lines[5] != "70.000000  30.000000 5" {
		t.Fatalf("zero latitude line = %q", lines[5])
	}
}

func TestSSPProducesSoundSpeeds(t *testing.T) {
	dir := writeSamples(t)
	var out bytes.Buffer
	err := sspCmd(context.Background(), []string{
		"--in", filepath.Join(dir, samples.OCLFileName),
		"--comp-sal", "35",
		"--bin", "100",
	}, nil, &out)
	if err != nil {
		t.Fatalf("ssp: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "%Station #0") {
		t.Fatalf("station heading missing:\n%s", text)
	}
	data := 0
	for _, line := range strings.Split(text, "\n") {
		if line != "" && !strings.HasPrefix(line, "%") {
			data++
		}
	}
	if data == 0 {
		t.Fatalf("no data rows:\n%s", text)
	}
}

func TestCatalogCmd(t *testing.T) {
	dir := writeSamples(t)
	db := filepath.Join(dir, "catalog.sqlite")
	runID := "4c0c4f0e-8f1d-4b7a-9a51-0f4d2f1f2a10"
	var out bytes.Buffer
	err := catalogCmd(context.Background(), []string{
		"--in", filepath.Join(dir, samples.OCLFileName),
		"--bathy", filepath.Join(dir, samples.BathymetryFileName),
		"--db", db,
		"--run-id", runID,
	}, nil, &out)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if !strings.Contains(out.String(), "SOURCE") {
		t.Fatalf("output = %q", out.String())
	}
	cat, err := catalog.Open(db)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cat.Close()
	rows, err := cat.Stations(context.Background(), runID, 0)
	if err != nil {
		t.Fatalf("Stations: %v", err)
	}
	if len(rows) != samples.DefaultStations {
		t.Fatalf("got %d rows", len(rows))
	}
}

func TestManifestAndReport(t *testing.T) {
	dir := writeSamples(t)
	summaryPath := filepath.Join(dir, "summary.json")
	if err := filterCmd(context.Background(), []string{
		"--in", filepath.Join(dir, samples.OCLFileName),
		"--out", filepath.Join(dir, "out.txt"),
		"--summary", summaryPath,
	}, nil, &bytes.Buffer{}); err != nil {
		t.Fatalf("filter: %v", err)
	}
	pdfPath := filepath.Join(dir, "summary.pdf")
	var out bytes.Buffer
	if err := reportCmd([]string{"--summary", summaryPath, "--pdf", pdfPath}, &out); err != nil {
		t.Fatalf("report: %v", err)
	}
	manifestPath := filepath.Join(dir, "manifest.json")
	inputs := strings.Join([]string{filepath.Join(dir, samples.OCLFileName), summaryPath, pdfPath}, ",")
	if err := manifestCmd([]string{"--inputs", inputs, "--out", manifestPath}, &out); err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if err := verifyManifestCmd([]string{"--manifest", manifestPath}, &out); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := os.WriteFile(pdfPath, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := verifyManifestCmd([]string{"--manifest", manifestPath}, &out); err == nil {
		t.Fatalf("tampered manifest verified")
	}
}
