package ocl

import "math"

const (
	// DatabaseLatitudeLimit bounds the latitudes covered by the gridded
	// bathymetry used as the side channel.
	DatabaseLatitudeLimit = 72.0
	// DatabaseTolerance is the largest header/database disagreement, in
	// metres, for which the header value is kept.
	DatabaseTolerance = 80.0
)

// Resolver chooses a station's bottom depth from its candidates. A fresh
// Resolver is built for every record.
type Resolver struct {
	Header   float64
	Database float64
	Latitude float64
}

// NewResolver builds a resolver for s using the side-channel value db
// (NaN when no side channel is configured).
func NewResolver(s *Station, db float64) Resolver {
	header, ok := s.HeaderDepth()
	if !ok {
		header = math.NaN()
	}
	return Resolver{Header: header, Database: db, Latitude: s.Latitude}
}

// DatabaseAvailable reports whether the side-channel value may be used for
// this station.
func (r Resolver) DatabaseAvailable() bool {
	if math.IsNaN(r.Database) || math.IsNaN(r.Latitude) {
		return false
	}
	return r.Latitude <= DatabaseLatitudeLimit && r.Latitude >= -DatabaseLatitudeLimit
}

// Initial picks between the header and database candidates before any
// profile data is read.
func (r Resolver) Initial() BottomDepth {
	choice := BottomDepth{Value: math.NaN(), Source: SourceNone}
	if !math.IsNaN(r.Header) {
		choice = BottomDepth{Value: r.Header, Source: SourceHeader}
	}
	if r.DatabaseAvailable() {
		if choice.Source == SourceNone || math.Abs(r.Header-r.Database) > DatabaseTolerance {
			choice = BottomDepth{Value: r.Database, Source: SourceDatabase}
		}
	}
	return choice
}

// Final revisits choice once the deepest profile depth is known. A choice
// shallower than the profile cannot be right.
func (r Resolver) Final(choice BottomDepth, deepest float64) BottomDepth {
	if math.IsNaN(deepest) {
		return choice
	}
	profile := BottomDepth{Value: deepest, Source: SourceProfile}
	switch choice.Source {
	case SourceNone:
		return profile
	case SourceHeader:
		if choice.Value >= deepest {
			return choice
		}
		if r.DatabaseAvailable() && r.Database >= deepest {
			return BottomDepth{Value: r.Database, Source: SourceDatabase}
		}
		return profile
	case SourceDatabase:
		if choice.Value < deepest {
			return profile
		}
	}
	return choice
}
