package ocl

import "math"

const zeroCoordinateEpsilon = 1e-7

// Region is an inclusive longitude/latitude box in decimal degrees.
// Longitudes must use the same convention as the data; no wrap-around.
type Region struct {
	West  float64 `yaml:"west" json:"west"`
	East  float64 `yaml:"east" json:"east"`
	South float64 `yaml:"south" json:"south"`
	North float64 `yaml:"north" json:"north"`
}

// Contains reports whether the point lies inside the box.
func (r Region) Contains(lat, lon float64) bool {
	return !(lon < r.West || lon > r.East || lat < r.South || lat > r.North)
}

// IntRange is an inclusive integer interval.
type IntRange struct {
	Min int64 `yaml:"min" json:"min"`
	Max int64 `yaml:"max" json:"max"`
}

func (r IntRange) Contains(v int64) bool {
	return v >= r.Min && v <= r.Max
}

// Criteria selects stations. Zero values disable each predicate: an empty
// variable list, a nil region or range, MinLevels <= 0 and an empty grid
// square all pass every station.
type Criteria struct {
	Variables  []int64
	MinLevels  int64
	Region     *Region
	Years      *IntRange
	Months     *IntRange
	GridSquare string
}

// Active reports whether any predicate is requested.
func (c Criteria) Active() bool {
	return len(c.Variables) > 0 || c.MinLevels > 0 || c.Region != nil ||
		c.Years != nil || c.Months != nil || c.GridSquare != ""
}

// Evaluate computes the filter flags for a station whose header has been
// decoded. It does not look at profile data.
func (c Criteria) Evaluate(s *Station) FilterFlags {
	return FilterFlags{
		Variables:         c.variablesPresent(s.Variables),
		Region:            c.Region == nil || c.Region.Contains(s.Latitude, s.Longitude),
		Years:             c.Years == nil || c.Years.Contains(s.Year),
		Months:            c.Months == nil || c.Months.Contains(s.Month),
		Levels:            c.MinLevels <= 0 || s.LevelCount >= c.MinLevels,
		BadZeroCoordinate: c.GridSquare != "" && BadZeroCoordinate(s.Latitude, s.Longitude, c.GridSquare),
	}
}

// variablesPresent requires every requested code among the columns with no
// column-level error flag on any matching column.
func (c Criteria) variablesPresent(cols []VariableColumn) bool {
	for _, want := range c.Variables {
		found := false
		for _, col := range cols {
			if col.Code != want {
				continue
			}
			found = true
			if col.ErrorFlag > 0 {
				return false
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func isZero(v float64) bool {
	return v < zeroCoordinateEpsilon && v > -zeroCoordinateEpsilon
}

// BadZeroCoordinate reports a latitude or longitude of exactly zero in a
// 10-degree WMO square that does not touch the equator or the prime
// meridian respectively.
func BadZeroCoordinate(lat, lon float64, gridSquare string) bool {
	bad := false
	if isZero(lat) && !zeroLatitudeOK(gridSquare) {
		bad = true
	}
	if isZero(lon) && !zeroLongitudeOK(gridSquare) {
		bad = true
	}
	return bad
}

func zeroLatitudeOK(square string) bool {
	return len(square) > 1 && square[1] == '0'
}

func zeroLongitudeOK(square string) bool {
	return len(square) > 3 && square[2] == '0' && square[3] == '0'
}

// UsableCoordinate reports whether a station position can be matched
// against gridded bathymetry: finite, inside the polar cut-off and not a
// suspicious zero.
func UsableCoordinate(lat, lon float64, gridSquare string) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	if lat > DatabaseLatitudeLimit || lat < -DatabaseLatitudeLimit {
		return false
	}
	return !BadZeroCoordinate(lat, lon, gridSquare)
}

// DepthWindow is an inclusive bottom-depth interval in metres.
type DepthWindow struct {
	Shallow float64 `yaml:"shallow" json:"shallow"`
	Deep    float64 `yaml:"deep" json:"deep"`
}

// Admits reports whether a resolved bottom depth lies inside the window.
// Stations without a bottom depth are admitted.
func (w DepthWindow) Admits(b BottomDepth) bool {
	if !b.Known() {
		return true
	}
	return b.Value >= w.Shallow && b.Value <= w.Deep
}
