package report

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"example.com/oclfilt/internal/ocl"
)

// TextWriter renders stations in the column layouts read by the plotting
// scripts. Lines that are not data start with '%'.
type TextWriter struct {
	w io.Writer
	// Titles prints the per-station heading before its levels.
	Titles bool
	// IncludeFlagged prints levels whose requested variables are flagged or
	// missing and appends every error flag in parentheses.
	IncludeFlagged bool
	// Variables restricts the flagged-level check to these codes.
	Variables []int64

	FlaggedLevels int64
}

func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: w, Titles: true}
}

// WriteQueryHeader prints the two heading lines of the query table.
func (t *TextWriter) WriteQueryHeader() error {
	_, err := io.WriteString(t.w,
		"%  stn year mo dy  time       lat       lon   bytes numlvls botdepth  vars\n"+
			"%----- ---- -- -- ----- --------- --------- ------- ------- --------  ----------\n")
	return err
}

// WriteQuery prints one query table row.
func (t *TextWriter) WriteQuery(st *ocl.Station) error {
	depth := "   --  -"
	if st.Bottom.Known() {
		depth = fmt.Sprintf("%6.1f %c", st.Bottom.Value, st.Bottom.Source.Code())
	}
	codes := make([]string, 0, len(st.Variables))
	for _, v := range st.Variables {
		code := strconv.FormatInt(v.Code, 10)
		if v.ErrorFlag > 0 {
			code += "*"
		}
		codes = append(codes, code)
	}
	vars := strings.Join(codes, ",")
	if vars == "" {
		vars = "  --  "
	}
	_, err := fmt.Fprintf(t.w, "%6d %4d %2d %2d %5.2f %9.4f %9.4f %7d %7d %8s  %-9s\n",
		st.Index, st.Year, st.Month, st.Day, st.Time, st.Latitude, st.Longitude,
		st.RecordLength, st.LevelCount, depth, vars)
	return err
}

// WriteStation prints the heading (when Titles is set) and the levels of a
// decoded profile.
func (t *TextWriter) WriteStation(st *ocl.Station) error {
	var b strings.Builder
	if t.Titles {
		depth := "[no data]"
		if st.Bottom.Known() {
			depth = fmt.Sprintf("%.2f m", st.Bottom.Value)
		}
		fmt.Fprintf(&b, "%%\n%%Station #%d, bottom depth %9s (from %c),  %s level data\n",
			st.Index, depth, st.Bottom.Source.Code(), st.Kind)
		b.WriteString("%Columns: Lat, Lon, Year, Month, Day, Time, Depth")
		for _, v := range st.Variables {
			b.WriteString(", " + LookupVariable(v.Code).Label)
		}
		b.WriteString("\n%Units:   deg, deg, yyyy, mm, dd, hrs, m")
		for _, v := range st.Variables {
			b.WriteString(", " + LookupVariable(v.Code).Units)
		}
		b.WriteByte('\n')
	}
	for _, lvl := range st.Levels {
		flagged := t.levelFlagged(st, lvl)
		if flagged {
			t.FlaggedLevels++
		}
		if flagged && !t.IncludeFlagged {
			continue
		}
		fmt.Fprintf(&b, "%.4f  %.4f  %4d %2d %2d %.2f  %.2f",
			st.Latitude, st.Longitude, st.Year, st.Month, st.Day, st.Time, lvl.Depth)
		if t.IncludeFlagged {
			fmt.Fprintf(&b, " (%d)", lvl.DepthFlag)
		}
		for k := range st.Variables {
			m := measurementAt(lvl, k)
			fmt.Fprintf(&b, "  %.3f", m.Value)
			if t.IncludeFlagged {
				fmt.Fprintf(&b, " (%d)", m.Flag)
			}
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(t.w, b.String())
	return err
}

func (t *TextWriter) levelFlagged(st *ocl.Station, lvl ocl.ProfileLevel) bool {
	if len(t.Variables) == 0 {
		return false
	}
	for k, v := range st.Variables {
		if !containsCode(t.Variables, v.Code) {
			continue
		}
		m := measurementAt(lvl, k)
		if m.Flag != 0 || math.IsNaN(m.Value) {
			return true
		}
	}
	return false
}

// WriteDump prints every decoded field of a station, one per line.
func (t *TextWriter) WriteDump(st *ocl.Station) error {
	var b strings.Builder
	i := st.Index
	fmt.Fprintf(&b, "bytesInStation(%d)=%d\n", i, st.RecordLength)
	fmt.Fprintf(&b, "oclStationNumber(%d)=%d\n", i, st.StationID)
	fmt.Fprintf(&b, "countryCode(%d)=%d\n", i, st.CountryCode)
	fmt.Fprintf(&b, "cruiseNumber(%d)=%d\n", i, st.CruiseNumber)
	fmt.Fprintf(&b, "date(%d)=%d-%d-%d\n", i, st.Year, st.Month, st.Day)
	fmt.Fprintf(&b, "time(%d)=%f\n", i, st.Time)
	fmt.Fprintf(&b, "lat(%d)=%f\n", i, st.Latitude)
	fmt.Fprintf(&b, "lon(%d)=%f\n", i, st.Longitude)
	fmt.Fprintf(&b, "numberOfLevels(%d)=%d\n", i, st.LevelCount)
	fmt.Fprintf(&b, "stationType(%d)=%s\n", i, st.Kind)
	fmt.Fprintf(&b, "numberOfVarCodes(%d)=%d\n", i, len(st.Variables))
	for j, v := range st.Variables {
		fmt.Fprintf(&b, "  varCode(%2d)=%3d     errCodeForVarCode(%2d)=%d\n", j, v.Code, j, v.ErrorFlag)
	}
	fmt.Fprintf(&b, "bytesInCharPI(%d)=%d\n", i, st.FreeTextBytes)
	fmt.Fprintf(&b, "bytesInSecHdr(%d)=%d\n", i, st.SecondaryHeaderBytes)
	fmt.Fprintf(&b, "bytesInBioHdr(%d)=%d\n", i, st.BioHeaderBytes)
	fmt.Fprintf(&b, "numberOfSecHdrEntries(%d)=%d\n", i, len(st.SecondaryHeader))
	for j, e := range st.SecondaryHeader {
		fmt.Fprintf(&b, "  secHdrCode(%2d)=%3d     secHdrValue(%2d)=%f\n", j, e.Code, j, e.Value)
	}
	b.WriteString("depth, var1, var2, etc:\n")
	for _, lvl := range st.Levels {
		fmt.Fprintf(&b, "%f (%d)     ", lvl.Depth, lvl.DepthFlag)
		for k := range st.Variables {
			m := measurementAt(lvl, k)
			fmt.Fprintf(&b, "%f (%d)     ", m.Value, m.Flag)
		}
		b.WriteByte('\n')
	}
	if st.Truncated {
		fmt.Fprintf(&b, "truncated(%d)=true\n", i)
	}
	fmt.Fprintf(&b, "bottomDepth(%d)=%f (%s)\n", i, st.Bottom.Value, st.Bottom.Source)
	_, err := io.WriteString(t.w, b.String())
	return err
}

// WriteSummary prints the trailing station and byte totals.
func (t *TextWriter) WriteSummary(s Summary) error {
	_, err := fmt.Fprintf(t.w,
		"%% summary value units: #Stns / total#Stns, Bytes / totalBytes\n"+
			"%% summary:  %d / %d , %d / %d\n",
		s.OutputStations, s.TotalStations, s.OutputBytes, s.TotalBytes)
	return err
}

// WriteLatLon prints one position line: longitude, latitude, station index.
func WriteLatLon(w io.Writer, lon, lat float64, index int64) error {
	_, err := fmt.Fprintf(w, "%f  %f %d\n", lon, lat, index)
	return err
}

func measurementAt(lvl ocl.ProfileLevel, k int) ocl.Measurement {
	if k < len(lvl.Values) {
		return lvl.Values[k]
	}
	return ocl.Measurement{Value: math.NaN()}
}

func containsCode(codes []int64, code int64) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
