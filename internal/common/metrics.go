package common

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"
)

// Metrics counts stations and bytes as a run progresses. It is safe for use
// by a progress printer goroutine while the decoder loop updates it.
type Metrics struct {
	mu         sync.Mutex
	start      time.Time
	end        time.Time
	bytes      int64
	totalBytes int64
	stations   int64
	decoded    int64
	skipped    int64
	rejected   int64
	output     int64
	outBytes   int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Start() {
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
		m.end = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
	m.mu.Unlock()
}

// AddStation records one record of the given self-reported length.
// A profile that was read adds to the decoded count.
func (m *Metrics) AddStation(size int64, profileRead bool) {
	m.mu.Lock()
	m.stations++
	if size > 0 {
		m.bytes += size
	}
	if profileRead {
		m.decoded++
	}
	m.mu.Unlock()
}

func (m *Metrics) IncSkipped() {
	m.mu.Lock()
	m.stations++
	m.skipped++
	m.mu.Unlock()
}

func (m *Metrics) IncRejected() {
	m.mu.Lock()
	m.rejected++
	m.mu.Unlock()
}

func (m *Metrics) AddOutput(size int64) {
	m.mu.Lock()
	m.output++
	if size > 0 {
		m.outBytes += size
	}
	m.mu.Unlock()
}

// AddBytes accounts stream bytes that do not belong to a decoded record,
// such as those consumed by skipped stations.
func (m *Metrics) AddBytes(n int64) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.bytes += n
	m.mu.Unlock()
}

func (m *Metrics) SetTotalBytes(total int64) {
	if total < 0 {
		total = 0
	}
	m.mu.Lock()
	m.totalBytes = total
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Duration:    m.elapsedLocked(),
		Bytes:       m.bytes,
		TotalBytes:  m.totalBytes,
		Stations:    m.stations,
		Decoded:     m.decoded,
		Skipped:     m.skipped,
		Rejected:    m.rejected,
		Output:      m.output,
		OutputBytes: m.outBytes,
	}
}

func (m *Metrics) elapsedLocked() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

type MetricsSnapshot struct {
	Duration    time.Duration `json:"duration"`
	Bytes       int64         `json:"bytes"`
	TotalBytes  int64         `json:"totalBytes"`
	Stations    int64         `json:"stations"`
	Decoded     int64         `json:"decoded"`
	Skipped     int64         `json:"skipped"`
	Rejected    int64         `json:"rejected"`
	Output      int64         `json:"output"`
	OutputBytes int64         `json:"outputBytes"`
}

func (s MetricsSnapshot) StationsPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Stations) / s.Duration.Seconds()
}

func (s MetricsSnapshot) ThroughputBytesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Duration.Seconds()
}

func (s MetricsSnapshot) Completion() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	ratio := float64(s.Bytes) / float64(s.TotalBytes)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div := float64(unit)
	exp := 0
	for n := float64(b) / div; n >= unit && exp < 6; n /= unit {
		div *= unit
		exp++
	}
	prefixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	return fmt.Sprintf("%.2f %s", float64(b)/div, prefixes[exp])
}

// FormatSummary renders a one-line run summary for stderr.
func FormatSummary(s MetricsSnapshot) string {
	return fmt.Sprintf("stations=%d decoded=%d skipped=%d rejected=%d output=%d bytes=%s elapsed=%s (%.0f stations/s)",
		s.Stations, s.Decoded, s.Skipped, s.Rejected, s.Output, FormatBytes(s.Bytes),
		s.Duration.Round(time.Millisecond), s.StationsPerSecond())
}

func formatProgressLine(s MetricsSnapshot) string {
	if s.TotalBytes > 0 {
		pct := s.Completion() * 100
		if math.IsNaN(pct) || math.IsInf(pct, 0) {
			pct = 0
		}
		return fmt.Sprintf("Progress: %6.2f%% (%s / %s) %d stations", pct, FormatBytes(s.Bytes), FormatBytes(s.TotalBytes), s.Stations)
	}
	return fmt.Sprintf("Processed: %s %d stations", FormatBytes(s.Bytes), s.Stations)
}

func StartProgressPrinter(w io.Writer, m *Metrics, interval time.Duration) func() {
	if m == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastLen := 0
		for {
			select {
			case <-ticker.C:
				line := formatProgressLine(m.Snapshot())
				pad := lastLen - len(line)
				if pad > 0 {
					line += strings.Repeat(" ", pad)
				}
				fmt.Fprintf(w, "\r%s", line)
				lastLen = len(line)
			case <-done:
				if lastLen > 0 {
					fmt.Fprintf(w, "\r%s\r\n", strings.Repeat(" ", lastLen))
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
