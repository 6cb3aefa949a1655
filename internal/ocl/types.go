package ocl

import "math"

// StationKind distinguishes profiles that carry their own depths from those
// reported at the fixed standard levels.
type StationKind int

const (
	Observed StationKind = iota
	StandardLevels
)

func (k StationKind) String() string {
	if k == Observed {
		return "observed"
	}
	return "standard"
}

// FieldStatus reports whether a field carried a value or was encoded as
// missing. Fatal conditions travel as errors, not statuses.
type FieldStatus int

const (
	FieldPresent FieldStatus = iota
	FieldMissing
)

// Status is the outcome of decoding one record.
type Status int

const (
	StatusSuccess Status = iota
	StatusSkipped
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkipped:
		return "skipped"
	default:
		return "fatal"
	}
}

// DepthSource identifies which candidate supplied a station's bottom depth.
type DepthSource int

const (
	SourceNone DepthSource = iota
	SourceHeader
	SourceDatabase
	SourceProfile
)

// Code returns the single-character tag used in text output.
func (s DepthSource) Code() byte {
	switch s {
	case SourceHeader:
		return 'h'
	case SourceDatabase:
		return 'd'
	case SourceProfile:
		return 'p'
	default:
		return '-'
	}
}

func (s DepthSource) String() string {
	switch s {
	case SourceHeader:
		return "header"
	case SourceDatabase:
		return "database"
	case SourceProfile:
		return "profile"
	default:
		return "none"
	}
}

// BottomDepth is the resolved sea-floor depth in metres (positive down).
type BottomDepth struct {
	Value  float64
	Source DepthSource
}

// Known reports whether any candidate was chosen.
func (b BottomDepth) Known() bool {
	return b.Source != SourceNone
}

// VariableColumn declares one measured quantity in the profile.
type VariableColumn struct {
	Code      int64
	ErrorFlag int64
}

// SecondaryHeaderEntry is a coded station-level value. Code 10 carries the
// reported bottom depth.
type SecondaryHeaderEntry struct {
	Code  int64
	Value float64
}

// BottomDepthCode is the secondary header code for reported bottom depth.
const BottomDepthCode = 10

// Measurement is one variable's value at one level. Value is NaN when missing.
type Measurement struct {
	Value float64
	Flag  int64
}

// ProfileLevel holds a depth and one Measurement per variable column, in
// column order.
type ProfileLevel struct {
	Depth     float64
	DepthFlag int64
	Values    []Measurement
}

// FilterFlags records the outcome of each filter predicate. The pass flags
// are true when the predicate holds or was not requested.
type FilterFlags struct {
	Variables         bool
	Region            bool
	Years             bool
	Months            bool
	Levels            bool
	BadZeroCoordinate bool
}

// Pass reports whether every requested predicate holds.
func (f FilterFlags) Pass() bool {
	return f.Variables && f.Region && f.Years && f.Months && f.Levels && !f.BadZeroCoordinate
}

// Reasons lists the failing predicates by name.
func (f FilterFlags) Reasons() []string {
	var out []string
	if !f.Variables {
		out = append(out, "variables")
	}
	if f.BadZeroCoordinate {
		out = append(out, "zero-coordinate")
	}
	if !f.Region {
		out = append(out, "region")
	}
	if !f.Years {
		out = append(out, "years")
	}
	if !f.Months {
		out = append(out, "months")
	}
	if !f.Levels {
		out = append(out, "levels")
	}
	return out
}

// Station is one decoded record. Integer fields use -1 when the record
// encoded them as missing; float fields use NaN.
type Station struct {
	Index  int64
	Offset int64

	RecordLength int64
	StationID    int64
	CountryCode  int64
	CruiseNumber int64
	Year         int64
	Month        int64
	Day          int64
	Time         float64
	Latitude     float64
	Longitude    float64
	LevelCount   int64
	Kind         StationKind

	Variables            []VariableColumn
	FreeTextBytes        int64
	SecondaryHeaderBytes int64
	SecondaryHeader      []SecondaryHeaderEntry
	BioHeaderBytes       int64

	Levels      []ProfileLevel
	ProfileRead bool
	Truncated   bool

	// DatabaseDepth is the side-channel depth read for this station, NaN
	// when no side channel is configured.
	DatabaseDepth float64

	Flags  FilterFlags
	Bottom BottomDepth
}

// HeaderDepth returns the reported bottom depth from the secondary header.
// When several code-10 entries exist the last one wins.
func (s *Station) HeaderDepth() (float64, bool) {
	v, ok := math.NaN(), false
	for _, e := range s.SecondaryHeader {
		if e.Code == BottomDepthCode && !math.IsNaN(e.Value) {
			v, ok = e.Value, true
		}
	}
	return v, ok
}

// VariableIndex returns the column position of code, or -1.
func (s *Station) VariableIndex(code int64) int {
	for i, v := range s.Variables {
		if v.Code == code {
			return i
		}
	}
	return -1
}

// DeepestDepth returns the largest non-missing level depth, or NaN.
func (s *Station) DeepestDepth() float64 {
	deepest := math.NaN()
	for _, lvl := range s.Levels {
		if math.IsNaN(lvl.Depth) {
			continue
		}
		if math.IsNaN(deepest) || lvl.Depth > deepest {
			deepest = lvl.Depth
		}
	}
	return deepest
}
