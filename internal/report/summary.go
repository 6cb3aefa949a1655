package report

import (
	"encoding/json"
	"os"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"example.com/oclfilt/internal/ocl"
)

// Summary describes one filter run.
type Summary struct {
	RunID        string    `json:"runId,omitempty"`
	Input        string    `json:"input,omitempty"`
	InputSHA256  string    `json:"inputSha256,omitempty"`
	Output       string    `json:"output,omitempty"`
	OutputSHA256 string    `json:"outputSha256,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`

	TotalStations    int64 `json:"totalStations"`
	OutputStations   int64 `json:"outputStations"`
	SkippedStations  int64 `json:"skippedStations"`
	RejectedStations int64 `json:"rejectedStations"`
	TruncatedProfile int64 `json:"truncatedProfiles,omitempty"`
	FlaggedLevels    int64 `json:"flaggedLevels,omitempty"`
	OutputBytes      int64 `json:"outputBytes"`
	TotalBytes       int64 `json:"totalBytes"`

	BottomSources map[string]int64 `json:"bottomSources,omitempty"`
	Rejections    map[string]int64 `json:"rejections,omitempty"`
	BottomDepth   *DepthStats      `json:"bottomDepth,omitempty"`

	Error string `json:"error,omitempty"`
}

// DepthStats summarises the resolved bottom depths of output stations.
type DepthStats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

// SummaryBuilder accumulates a Summary station by station.
type SummaryBuilder struct {
	summary Summary
	depths  []float64
}

func NewSummaryBuilder(runID string) *SummaryBuilder {
	return &SummaryBuilder{summary: Summary{
		RunID:         runID,
		StartedAt:     time.Now().UTC(),
		BottomSources: map[string]int64{},
		Rejections:    map[string]int64{},
	}}
}

// Skipped counts a record passed over by the skip-to shortcut.
func (b *SummaryBuilder) Skipped(st *ocl.Station) {
	b.summary.TotalStations++
	b.summary.SkippedStations++
	b.summary.TotalBytes += st.RecordLength
}

// Rejected counts a decoded station that failed the filter or the bottom
// window.
func (b *SummaryBuilder) Rejected(st *ocl.Station, reasons []string) {
	b.summary.TotalStations++
	b.summary.RejectedStations++
	b.summary.TotalBytes += st.RecordLength
	for _, r := range reasons {
		b.summary.Rejections[r]++
	}
}

// Output counts a station written to the output.
func (b *SummaryBuilder) Output(st *ocl.Station) {
	b.summary.TotalStations++
	b.summary.OutputStations++
	b.summary.TotalBytes += st.RecordLength
	b.summary.OutputBytes += st.RecordLength
	b.summary.BottomSources[st.Bottom.Source.String()]++
	if st.Truncated {
		b.summary.TruncatedProfile++
	}
	if st.Bottom.Known() {
		b.depths = append(b.depths, st.Bottom.Value)
	}
}

// SetFlaggedLevels records the number of levels with flagged data.
func (b *SummaryBuilder) SetFlaggedLevels(n int64) {
	b.summary.FlaggedLevels = n
}

// Fail records the error that ended the run.
func (b *SummaryBuilder) Fail(err error) {
	if err != nil {
		b.summary.Error = err.Error()
	}
}

// Summary returns the totals so far with depth statistics computed.
func (b *SummaryBuilder) Summary() Summary {
	s := b.summary
	s.FinishedAt = time.Now().UTC()
	s.BottomDepth = depthStats(b.depths)
	return s
}

func depthStats(depths []float64) *DepthStats {
	if len(depths) == 0 {
		return nil
	}
	mean, std := stat.MeanStdDev(depths, nil)
	if len(depths) == 1 {
		std = 0
	}
	return &DepthStats{
		Count:  len(depths),
		Min:    floats.Min(depths),
		Max:    floats.Max(depths),
		Mean:   mean,
		StdDev: std,
	}
}

func SaveSummaryJSON(s Summary, out string) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadSummaryJSON(path string) (Summary, error) {
	var s Summary
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(b, &s)
	return s, err
}
