package ocl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"testing"
)

// testStation builds an observed station with levels at 0, 50, 100 ... m.
func testStation(id int64, year int64, lat, lon float64, levels int, codes ...int64) *Station {
	st := &Station{
		StationID:     id,
		CountryCode:   31,
		CruiseNumber:  4521,
		Year:          year,
		Month:         6,
		Day:           14,
		Time:          13.25,
		Latitude:      lat,
		Longitude:     lon,
		Kind:          Observed,
		FreeTextBytes: 12,
	}
	for _, code := range codes {
		st.Variables = append(st.Variables, VariableColumn{Code: code})
	}
	for j := 0; j < levels; j++ {
		lvl := ProfileLevel{Depth: float64(j) * 50}
		for k := range codes {
			lvl.Values = append(lvl.Values, Measurement{Value: 10 - float64(j)*0.25 + float64(k)*1.5})
		}
		st.Levels = append(st.Levels, lvl)
	}
	st.LevelCount = int64(levels)
	return st
}

func withHeaderDepth(st *Station, depth float64) *Station {
	st.SecondaryHeader = append(st.SecondaryHeader,
		SecondaryHeaderEntry{Code: 2, Value: 7},
		SecondaryHeaderEntry{Code: BottomDepthCode, Value: depth})
	return st
}

func encodeStations(t *testing.T, lineWidth int, stations ...*Station) ([]byte, []int) {
	t.Helper()
	var out []byte
	var ends []int
	for _, st := range stations {
		var buf bytes.Buffer
		enc := NewEncoder(&buf)
		enc.LineWidth = lineWidth
		if _, err := enc.Encode(st); err != nil {
			t.Fatalf("encode station %d: %v", st.StationID, err)
		}
		if err := enc.Flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}
		out = append(out, buf.Bytes()...)
		ends = append(ends, len(out))
	}
	return out, ends
}

func decodeAll(t *testing.T, data []byte, opts Options) ([]*Station, []Status, error) {
	t.Helper()
	dec := NewDecoder(bytes.NewReader(data), opts)
	var stations []*Station
	var statuses []Status
	for {
		st, status, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return stations, statuses, nil
		}
		if err != nil {
			return stations, statuses, err
		}
		stations = append(stations, st)
		statuses = append(statuses, status)
	}
}

func TestDecodeTwoRecordsSecondTruncated(t *testing.T) {
	first := withHeaderDepth(testStation(101, 1994, 47.5, -130.25, 3, 1, 25), 120.5)
	second := withHeaderDepth(testStation(102, 1995, 48.0, -131.0, 4, 1, 2), 900)
	full, ends := encodeStations(t, DefaultLineWidth, first, second)
	data := full[:ends[0]+20]

	dec := NewDecoder(bytes.NewReader(data), Options{WantProfile: true})
	st, status, err := dec.Next()
	if err != nil || status != StatusSuccess {
		t.Fatalf("first record: status %v err %v", status, err)
	}
	if st.Bottom.Source != SourceHeader || st.Bottom.Value != 120.5 {
		t.Fatalf("bottom = %+v, want 120.5 from header", st.Bottom)
	}
	if len(st.Variables) != 2 || st.Variables[0].Code != 1 || st.Variables[1].Code != 25 {
		t.Fatalf("variables = %+v, want codes 1 and 25", st.Variables)
	}
	if len(st.Levels) != 3 {
		t.Fatalf("levels = %d, want 3", len(st.Levels))
	}
	if st.Latitude != 47.5 || st.Longitude != -130.25 || st.Year != 1994 || st.StationID != 101 {
		t.Fatalf("header mismatch: %+v", st)
	}
	if got := st.Levels[2].Values[1].Value; got != 10-0.5+1.5 {
		t.Fatalf("level 2 value = %v", got)
	}

	_, status, err = dec.Next()
	if status != StatusFatal {
		t.Fatalf("second record status = %v, want fatal", status)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want unexpected EOF", err)
	}
	var rerr *RecordError
	if !errors.As(err, &rerr) || rerr.Index != 1 {
		t.Fatalf("err = %v, want RecordError for record 1", err)
	}
	if _, _, again := dec.Next(); !errors.Is(again, io.ErrUnexpectedEOF) {
		t.Fatalf("decoder did not stay failed: %v", again)
	}
}

func TestByteAccountingMatchesRecordLength(t *testing.T) {
	stations := []*Station{
		withHeaderDepth(testStation(1, 1990, 10, 20, 5, 1, 2, 3), 4000),
		testStation(2, 1991, -33.125, 151.5, 0, 1),
		testStation(3, 1992, 0.5, -0.5, 2),
	}
	stations[1].BioHeaderBytes = 17
	data, _ := encodeStations(t, DefaultLineWidth, stations...)
	for _, want := range []bool{true, false} {
		dec := NewDecoder(bytes.NewReader(data), Options{WantProfile: want})
		for i := range stations {
			st, _, err := dec.Next()
			if err != nil {
				t.Fatalf("wantProfile=%v record %d: %v", want, i, err)
			}
			if dec.acct.Consumed() != st.RecordLength {
				t.Fatalf("wantProfile=%v record %d consumed %d of %d", want, i, dec.acct.Consumed(), st.RecordLength)
			}
		}
		if _, _, err := dec.Next(); !errors.Is(err, io.EOF) {
			t.Fatalf("expected EOF, got %v", err)
		}
	}
}

// rewriteLength changes the declared length of a single-line record.
func rewriteLength(t *testing.T, rec []byte, delta int64) []byte {
	t.Helper()
	width := int(rec[0] - '0')
	var total int64
	fmt.Sscanf(string(rec[1:1+width]), "%d", &total)
	repl := fmt.Sprintf("%0*d", width, total+delta)
	if len(repl) != width {
		t.Fatalf("length %d does not fit width %d", total+delta, width)
	}
	out := append([]byte{}, rec...)
	copy(out[1:], repl)
	return out
}

func TestByteCountMismatchDetected(t *testing.T) {
	a := withHeaderDepth(testStation(1, 1990, 10, 20, 3, 1), 500)
	b := testStation(2, 1990, 11, 21, 2, 1)
	data, ends := encodeStations(t, 0, a, b)
	for _, delta := range []int64{-1, 1} {
		t.Run(fmt.Sprintf("delta%+d", delta), func(t *testing.T) {
			first := rewriteLength(t, data[:ends[0]], delta)
			stream := append(first, data[ends[0]:]...)
			_, _, err := decodeAll(t, stream, Options{WantProfile: true})
			if !errors.Is(err, ErrByteCount) {
				t.Fatalf("err = %v, want ErrByteCount", err)
			}
			var rerr *RecordError
			if !errors.As(err, &rerr) || rerr.Index != 0 {
				t.Fatalf("err = %v, want RecordError for record 0", err)
			}
		})
	}
}

func TestSkipToIndex(t *testing.T) {
	var stations []*Station
	for i := 0; i < 10; i++ {
		stations = append(stations, testStation(int64(1000+i), 1990, 10, 20, 2, 1))
	}
	data, _ := encodeStations(t, DefaultLineWidth, stations...)
	got, statuses, err := decodeAll(t, data, Options{WantProfile: true, SkipTo: 5})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("records = %d, want 10", len(got))
	}
	for i, st := range got {
		if i < 5 {
			if statuses[i] != StatusSkipped {
				t.Fatalf("record %d status = %v, want skipped", i, statuses[i])
			}
			if st.ProfileRead || st.Levels != nil {
				t.Fatalf("skipped record %d was decoded", i)
			}
			continue
		}
		if statuses[i] != StatusSuccess {
			t.Fatalf("record %d status = %v, want success", i, statuses[i])
		}
		if st.StationID != int64(1000+i) || st.Index != int64(i) {
			t.Fatalf("record %d = station %d index %d", i, st.StationID, st.Index)
		}
		if len(st.Levels) != 2 {
			t.Fatalf("record %d levels = %d", i, len(st.Levels))
		}
	}
}

func TestFilteredStationsSkipProfile(t *testing.T) {
	stations := []*Station{
		withHeaderDepth(testStation(1, 1989, 10, 20, 4, 1, 2), 3000),
		withHeaderDepth(testStation(2, 1992, 10, 20, 4, 1, 2), 3000),
		withHeaderDepth(testStation(3, 1993, 60, 20, 4, 1, 2), 3000),
		withHeaderDepth(testStation(4, 1994, 10, 20, 4, 1), 3000),
		withHeaderDepth(testStation(5, 1995, 10, 20, 1, 1, 2), 3000),
		withHeaderDepth(testStation(6, 1995, 12, 22, 3, 2, 1), 3000),
	}
	data, _ := encodeStations(t, DefaultLineWidth, stations...)
	criteria := Criteria{
		Variables: []int64{1, 2},
		MinLevels: 2,
		Region:    &Region{West: 0, East: 40, South: 0, North: 45},
		Years:     &IntRange{Min: 1990, Max: 1999},
	}
	filtered, _, err := decodeAll(t, data, Options{WantProfile: true, Criteria: criteria})
	if err != nil {
		t.Fatalf("filtered decode: %v", err)
	}
	plain, _, err := decodeAll(t, data, Options{WantProfile: true})
	if err != nil {
		t.Fatalf("plain decode: %v", err)
	}
	wantPass := []bool{false, true, false, false, false, true}
	for i, st := range filtered {
		if st.Flags.Pass() != wantPass[i] {
			t.Fatalf("station %d pass = %v, want %v (flags %+v)", i, st.Flags.Pass(), wantPass[i], st.Flags)
		}
		if st.ProfileRead != wantPass[i] {
			t.Fatalf("station %d profile read = %v, want %v", i, st.ProfileRead, wantPass[i])
		}
		if st.StationID != plain[i].StationID || st.Latitude != plain[i].Latitude {
			t.Fatalf("station %d header diverged after filtering", i)
		}
		if wantPass[i] && len(st.Levels) != len(plain[i].Levels) {
			t.Fatalf("station %d levels = %d, want %d", i, len(st.Levels), len(plain[i].Levels))
		}
	}
	if got := filtered[0].Flags.Reasons(); len(got) != 1 || got[0] != "years" {
		t.Fatalf("station 0 reasons = %v", got)
	}
}

func TestHeaderOnlyReadsProfileWhenNoDepth(t *testing.T) {
	withDepth := withHeaderDepth(testStation(1, 1990, 10, 20, 3, 1), 2500)
	without := testStation(2, 1990, 10, 20, 3, 1)
	data, _ := encodeStations(t, DefaultLineWidth, withDepth, without)
	got, _, err := decodeAll(t, data, Options{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got[0].ProfileRead || got[0].Bottom.Source != SourceHeader {
		t.Fatalf("station 0: profile read %v bottom %+v", got[0].ProfileRead, got[0].Bottom)
	}
	if !got[1].ProfileRead || got[1].Bottom.Source != SourceProfile || got[1].Bottom.Value != 100 {
		t.Fatalf("station 1: profile read %v bottom %+v", got[1].ProfileRead, got[1].Bottom)
	}
}

func TestMaxLevelsTruncates(t *testing.T) {
	st := testStation(1, 1990, 10, 20, 6, 1, 2)
	next := testStation(2, 1990, 10, 20, 1, 1)
	data, _ := encodeStations(t, DefaultLineWidth, st, next)
	got, _, err := decodeAll(t, data, Options{WantProfile: true, MaxLevels: 4})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	if !got[0].Truncated || len(got[0].Levels) != 4 {
		t.Fatalf("truncated = %v levels = %d", got[0].Truncated, len(got[0].Levels))
	}
	if got[0].Bottom.Value != 250 || got[0].Bottom.Source != SourceProfile {
		t.Fatalf("bottom = %+v, want deepest decoded level 250", got[0].Bottom)
	}
	if got[1].StationID != 2 {
		t.Fatalf("next station = %d", got[1].StationID)
	}
}

func TestStandardLevelDepths(t *testing.T) {
	st := testStation(1, 1990, 10, 20, 4, 1)
	st.Kind = StandardLevels
	data, _ := encodeStations(t, DefaultLineWidth, st)
	got, _, err := decodeAll(t, data, Options{WantProfile: true})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []float64{0, 10, 20, 30}
	for i, lvl := range got[0].Levels {
		if lvl.Depth != want[i] {
			t.Fatalf("level %d depth = %v, want %v", i, lvl.Depth, want[i])
		}
	}
	if got[0].Kind != StandardLevels {
		t.Fatalf("kind = %v", got[0].Kind)
	}
}

func TestMissingValuesRoundTrip(t *testing.T) {
	st := testStation(1, 1990, 10, 20, 2, 1, 2)
	st.CruiseNumber = -1
	st.Time = math.NaN()
	st.Levels[1].Values[0] = Measurement{Value: math.NaN()}
	st.Levels[0].Values[1].Flag = 3
	st.Variables[1].ErrorFlag = 2
	data, _ := encodeStations(t, DefaultLineWidth, st)
	got, _, err := decodeAll(t, data, Options{WantProfile: true})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	g := got[0]
	if g.CruiseNumber != -1 || !math.IsNaN(g.Time) {
		t.Fatalf("missing header values not preserved: cruise %d time %v", g.CruiseNumber, g.Time)
	}
	if !math.IsNaN(g.Levels[1].Values[0].Value) {
		t.Fatalf("missing measurement decoded as %v", g.Levels[1].Values[0].Value)
	}
	if g.Levels[0].Values[1].Flag != 3 || g.Variables[1].ErrorFlag != 2 {
		t.Fatalf("flags not preserved: %+v %+v", g.Levels[0].Values[1], g.Variables[1])
	}
}

func TestMissingRecordLengthIsFatal(t *testing.T) {
	_, _, err := decodeAll(t, []byte("0\n"), Options{})
	if !errors.Is(err, ErrMalformedField) {
		t.Fatalf("err = %v, want ErrMalformedField", err)
	}
}

func TestNegativeCountsAreFatal(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "level count", input: "229" + "11" + "31" + "11" + "1990" + "06" + "14" + "---" + "2-5" + "0" + "00" + "0" + "0" + "0" + "\n"},
		{name: "record length", input: "2-5" + "11" + "\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := decodeAll(t, []byte(tc.input), Options{WantProfile: true})
			if !errors.Is(err, ErrMalformedField) {
				t.Fatalf("err = %v, want ErrMalformedField", err)
			}
			var rerr *RecordError
			if !errors.As(err, &rerr) || rerr.Index != 0 {
				t.Fatalf("err = %v, want RecordError for record 0", err)
			}
		})
	}
}

func TestBathymetrySideChannel(t *testing.T) {
	stations := []*Station{
		withHeaderDepth(testStation(1, 1990, 10, 20, 2, 1), 1000),
		withHeaderDepth(testStation(2, 1990, 11, 21, 2, 1), 1000),
		testStation(3, 1990, 80, 22, 2, 1),
	}
	data, _ := encodeStations(t, DefaultLineWidth, stations...)
	bathy := "20.000000  10.000000 0 -1050\n21.000000  11.000000 1 -1500\n70 30 2 -3000\n"

	got, _, err := decodeAll(t, data, Options{
		Bathymetry:      NewBathymetryReader(strings.NewReader(bathy)),
		BathymetryCheck: BathymetryCheckCoordinates,
		Criteria:        Criteria{GridSquare: "1101"},
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []BottomDepth{
		{Value: 1000, Source: SourceHeader},
		{Value: 1500, Source: SourceDatabase},
		{Value: 50, Source: SourceProfile},
	}
	for i, st := range got {
		if st.Bottom != want[i] {
			t.Fatalf("station %d bottom = %+v, want %+v", i, st.Bottom, want[i])
		}
	}

	shifted := "20 10 1 -1050\n21 11 2 -1500\n70 30 3 -3000\n"
	_, _, err = decodeAll(t, data, Options{
		Bathymetry:      NewBathymetryReader(strings.NewReader(shifted)),
		BathymetryCheck: BathymetryCheckIndex,
	})
	if !errors.Is(err, ErrBathymetryDesync) {
		t.Fatalf("err = %v, want ErrBathymetryDesync", err)
	}

	short := "20 10 0 -1050\n"
	_, _, err = decodeAll(t, data, Options{Bathymetry: NewBathymetryReader(strings.NewReader(short))})
	if !errors.Is(err, ErrBathymetryDesync) {
		t.Fatalf("err = %v, want ErrBathymetryDesync for exhausted side channel", err)
	}
}

func TestBathymetryConsumedForSkippedRecords(t *testing.T) {
	stations := []*Station{
		testStation(1, 1990, 10, 20, 1, 1),
		testStation(2, 1990, 10, 20, 1, 1),
		withHeaderDepth(testStation(3, 1990, 10, 20, 1, 1), 10),
	}
	data, _ := encodeStations(t, DefaultLineWidth, stations...)
	bathy := "20 10 0 -100\n20 10 1 -200\n20 10 2 -300\n"
	got, _, err := decodeAll(t, data, Options{
		SkipTo:          2,
		Bathymetry:      NewBathymetryReader(strings.NewReader(bathy)),
		BathymetryCheck: BathymetryCheckIndex,
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got[2].DatabaseDepth != 300 || got[2].Bottom.Source != SourceDatabase {
		t.Fatalf("station 2 depth %v bottom %+v", got[2].DatabaseDepth, got[2].Bottom)
	}
}
