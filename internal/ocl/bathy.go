package ocl

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// BathymetryCheck selects how strictly side-channel lines are matched to
// the stations they are consumed for.
type BathymetryCheck int

const (
	// BathymetryTrust consumes one line per station without checking it.
	BathymetryTrust BathymetryCheck = iota
	// BathymetryCheckIndex requires the line's station index to match.
	BathymetryCheckIndex
	// BathymetryCheckCoordinates additionally requires the line's position
	// to match the station's when the station position is usable.
	BathymetryCheckCoordinates
)

const coordinateMatchTolerance = 0.01

func (c BathymetryCheck) String() string {
	switch c {
	case BathymetryCheckIndex:
		return "index"
	case BathymetryCheckCoordinates:
		return "coords"
	default:
		return "trust"
	}
}

// ParseBathymetryCheck accepts "trust", "index" or "coords".
func ParseBathymetryCheck(s string) (BathymetryCheck, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trust":
		return BathymetryTrust, nil
	case "index":
		return BathymetryCheckIndex, nil
	case "coords", "coordinates":
		return BathymetryCheckCoordinates, nil
	}
	return BathymetryTrust, fmt.Errorf("unknown bathymetry check %q", s)
}

// BathymetryRecord is one side-channel line. Depth is converted to a
// positive depth below sea level.
type BathymetryRecord struct {
	Longitude float64
	Latitude  float64
	Index     int64
	Depth     float64
}

// BathymetryReader reads "lon lat index depth" lines in lockstep with a
// station stream.
type BathymetryReader struct {
	sc   *bufio.Scanner
	line int64
}

func NewBathymetryReader(r io.Reader) *BathymetryReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	return &BathymetryReader{sc: sc}
}

// Line returns the number of lines consumed.
func (b *BathymetryReader) Line() int64 {
	return b.line
}

// Next returns the next non-blank line.
func (b *BathymetryReader) Next() (BathymetryRecord, error) {
	for b.sc.Scan() {
		b.line++
		text := strings.TrimSpace(b.sc.Text())
		if text == "" {
			continue
		}
		rec, err := parseBathymetryLine(text)
		if err != nil {
			return BathymetryRecord{}, fmt.Errorf("bathymetry line %d: %w", b.line, err)
		}
		return rec, nil
	}
	if err := b.sc.Err(); err != nil {
		return BathymetryRecord{}, err
	}
	return BathymetryRecord{}, fmt.Errorf("%w: exhausted after %d lines", ErrBathymetryDesync, b.line)
}

func parseBathymetryLine(text string) (BathymetryRecord, error) {
	fields := strings.Fields(text)
	if len(fields) < 4 {
		return BathymetryRecord{}, fmt.Errorf("%w: want 4 fields, got %d", ErrBathymetryDesync, len(fields))
	}
	var rec BathymetryRecord
	var err error
	if rec.Longitude, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return rec, fmt.Errorf("longitude: %w", err)
	}
	if rec.Latitude, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return rec, fmt.Errorf("latitude: %w", err)
	}
	if rec.Index, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
		return rec, fmt.Errorf("index: %w", err)
	}
	depth, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return rec, fmt.Errorf("depth: %w", err)
	}
	rec.Depth = -depth
	return rec, nil
}

// verify checks rec against the station it was read for. lat and lon are
// NaN when the station header has not been decoded.
func (c BathymetryCheck) verify(rec BathymetryRecord, index int64, lat, lon float64, gridSquare string) error {
	if c == BathymetryTrust {
		return nil
	}
	if rec.Index != index {
		return fmt.Errorf("%w: line for station %d read at station %d", ErrBathymetryDesync, rec.Index, index)
	}
	if c != BathymetryCheckCoordinates || !UsableCoordinate(lat, lon, gridSquare) {
		return nil
	}
	if math.Abs(rec.Latitude-lat) > coordinateMatchTolerance || math.Abs(rec.Longitude-lon) > coordinateMatchTolerance {
		return fmt.Errorf("%w: station %d at (%.4f, %.4f) but line has (%.4f, %.4f)",
			ErrBathymetryDesync, index, lon, lat, rec.Longitude, rec.Latitude)
	}
	return nil
}
