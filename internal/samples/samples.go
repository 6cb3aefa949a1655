package samples

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"example.com/oclfilt/internal/ocl"
)

const (
	// File names exposed for generator consumers.
	OCLFileName        = "sample.ocl"
	BathymetryFileName = "sample.bathy"

	// GridSquare is the WMO square the sample positions are drawn from.
	GridSquare = "7104"

	DefaultStations       = 24
	DefaultSeed     int64 = 1999
)

// Placeholder position written to the bathymetry file for stations whose
// own position cannot be looked up.
const (
	PlaceholderLongitude = 70.0
	PlaceholderLatitude  = 30.0
)

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Sample pairs a station with the sea-floor depth the bathymetry file
// reports for it.
type Sample struct {
	Station *ocl.Station
	Seabed  float64
}

// BuildStations returns n deterministic stations covering the cases the
// decoder distinguishes: observed and standard levels, header depths that
// are missing or too shallow, flagged columns, missing values and
// suspicious zero latitudes.
func BuildStations(n int, seed int64) []Sample {
	rng := rand.New(rand.NewSource(seed))
	countries := []int64{31, 90, 58, 74, 35}
	out := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		st := &ocl.Station{
			StationID:     int64(50000 + i),
			CountryCode:   countries[i%len(countries)],
			CruiseNumber:  int64(1000 + i/4),
			Year:          int64(1985 + i%15),
			Month:         int64(1 + i%12),
			Day:           int64(1 + i%28),
			Time:          round(rng.Float64()*24, 2),
			Latitude:      round(40+rng.Float64()*10, 4),
			Longitude:     round(-40+rng.Float64()*10, 4),
			Kind:          ocl.Observed,
			FreeTextBytes: int64(rng.Intn(20)),
		}
		if i%11 == 5 {
			st.Latitude = 0
		}
		if i%4 == 1 {
			st.BioHeaderBytes = 10
		}
		if i%7 == 3 {
			st.Kind = ocl.StandardLevels
		}
		codes := []int64{1}
		if i%2 == 0 {
			codes = append(codes, 2)
		}
		if i%5 == 0 {
			codes = append(codes, 25)
		}
		for _, c := range codes {
			col := ocl.VariableColumn{Code: c}
			if c == 2 && i%9 == 4 {
				col.ErrorFlag = 1
			}
			st.Variables = append(st.Variables, col)
		}

		levels := 3 + rng.Intn(20)
		depth := 0.0
		for j := 0; j < levels; j++ {
			if st.Kind == ocl.StandardLevels {
				depth, _ = ocl.StandardLevelDepth(j)
			} else if j > 0 {
				depth = round(depth+5+rng.Float64()*50, 1)
			}
			lvl := ocl.ProfileLevel{Depth: depth}
			for _, c := range codes {
				m := ocl.Measurement{Value: round(measure(c, depth), 3)}
				if i%17 == 8 && j == 1 {
					m.Value = math.NaN()
				}
				if c == 1 && i%6 == 2 && j == levels-1 {
					m.Flag = 2
				}
				lvl.Values = append(lvl.Values, m)
			}
			st.Levels = append(st.Levels, lvl)
		}
		st.LevelCount = int64(levels)

		seabed := round(depth+20+rng.Float64()*500, 1)
		if i%3 != 2 {
			reported := seabed + round(rng.Float64()*40-20, 1)
			if i%13 == 6 {
				reported = round(depth/2, 1)
			}
			st.SecondaryHeader = append(st.SecondaryHeader,
				ocl.SecondaryHeaderEntry{Code: 1, Value: float64(i % 4)},
				ocl.SecondaryHeaderEntry{Code: ocl.BottomDepthCode, Value: reported})
		}
		if i%8 == 7 {
			seabed = round(seabed+300, 1)
		}
		out = append(out, Sample{Station: st, Seabed: seabed})
	}
	return out
}

func measure(code int64, depth float64) float64 {
	switch code {
	case 1:
		return 2 + 18*math.Exp(-depth/800)
	case 2:
		return 34 + depth/5000
	case 25:
		return depth * 1.01
	default:
		return 0
	}
}

// BuildOCL encodes the samples as an OCL stream.
func BuildOCL(samples []Sample) ([]byte, error) {
	var buf bytes.Buffer
	enc := ocl.NewEncoder(&buf)
	for _, s := range samples {
		length, err := enc.Encode(s.Station)
		if err != nil {
			return nil, fmt.Errorf("encode station %d: %w", s.Station.StationID, err)
		}
		s.Station.RecordLength = length
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildBathymetry renders the side-channel file in "lon lat index depth"
// form, depths negative below sea level.
func BuildBathymetry(samples []Sample) []byte {
	var buf bytes.Buffer
	for i, s := range samples {
		lon, lat := s.Station.Longitude, s.Station.Latitude
		if !ocl.UsableCoordinate(lat, lon, GridSquare) {
			lon, lat = PlaceholderLongitude, PlaceholderLatitude
		}
		fmt.Fprintf(&buf, "%f\t%f\t%d\t%.1f\n", lon, lat, i, -s.Seabed)
	}
	return buf.Bytes()
}

// WriteFiles materializes the generated assets under dir.
func WriteFiles(dir string, n int, seed int64) error {
	samples := BuildStations(n, seed)
	data, err := BuildOCL(samples)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeFileIfChanged(filepath.Join(dir, OCLFileName), data); err != nil {
		return err
	}
	return writeFileIfChanged(filepath.Join(dir, BathymetryFileName), BuildBathymetry(samples))
}

func writeFileIfChanged(path string, data []byte) error {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, data) {
		return nil
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
