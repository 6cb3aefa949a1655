package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/vmihailenco/msgpack/v5"

	"example.com/oclfilt/internal/ocl"
)

// StationRecord is the structured form of a decoded station. Missing values
// are null.
type StationRecord struct {
	Index        int64    `json:"index"`
	Offset       int64    `json:"offset"`
	RecordLength int64    `json:"recordLength"`
	StationID    int64    `json:"stationId"`
	CountryCode  int64    `json:"countryCode"`
	CruiseNumber int64    `json:"cruiseNumber"`
	Year         int64    `json:"year"`
	Month        int64    `json:"month"`
	Day          int64    `json:"day"`
	Time         *float64 `json:"time"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	LevelCount   int64    `json:"levelCount"`
	Kind         string   `json:"kind"`

	Variables       []VariableRecord  `json:"variables"`
	SecondaryHeader []SecondaryRecord `json:"secondaryHeader,omitempty"`

	BottomDepth  *float64 `json:"bottomDepth"`
	BottomSource string   `json:"bottomSource"`
	Truncated    bool     `json:"truncated,omitempty"`

	Levels []LevelRecord `json:"levels,omitempty"`
}

type VariableRecord struct {
	Code      int64  `json:"code"`
	Label     string `json:"label"`
	Units     string `json:"units"`
	ErrorFlag int64  `json:"errorFlag"`
}

type SecondaryRecord struct {
	Code  int64    `json:"code"`
	Value *float64 `json:"value"`
}

type LevelRecord struct {
	Depth     *float64   `json:"depth"`
	DepthFlag int64      `json:"depthFlag"`
	Values    []*float64 `json:"values"`
	Flags     []int64    `json:"flags"`
}

// NewStationRecord converts st. Levels are only included when withLevels is
// set.
func NewStationRecord(st *ocl.Station, withLevels bool) StationRecord {
	rec := StationRecord{
		Index:        st.Index,
		Offset:       st.Offset,
		RecordLength: st.RecordLength,
		StationID:    st.StationID,
		CountryCode:  st.CountryCode,
		CruiseNumber: st.CruiseNumber,
		Year:         st.Year,
		Month:        st.Month,
		Day:          st.Day,
		Time:         optional(st.Time),
		Latitude:     optional(st.Latitude),
		Longitude:    optional(st.Longitude),
		LevelCount:   st.LevelCount,
		Kind:         st.Kind.String(),
		BottomSource: st.Bottom.Source.String(),
		Truncated:    st.Truncated,
	}
	if st.Bottom.Known() {
		rec.BottomDepth = optional(st.Bottom.Value)
	}
	rec.Variables = make([]VariableRecord, 0, len(st.Variables))
	for _, v := range st.Variables {
		info := LookupVariable(v.Code)
		rec.Variables = append(rec.Variables, VariableRecord{
			Code: v.Code, Label: info.Label, Units: info.Units, ErrorFlag: v.ErrorFlag,
		})
	}
	for _, e := range st.SecondaryHeader {
		rec.SecondaryHeader = append(rec.SecondaryHeader, SecondaryRecord{Code: e.Code, Value: optional(e.Value)})
	}
	if withLevels {
		for _, lvl := range st.Levels {
			lr := LevelRecord{
				Depth:     optional(lvl.Depth),
				DepthFlag: lvl.DepthFlag,
				Values:    make([]*float64, len(st.Variables)),
				Flags:     make([]int64, len(st.Variables)),
			}
			for k := range st.Variables {
				m := measurementAt(lvl, k)
				lr.Values[k] = optional(m.Value)
				lr.Flags[k] = m.Flag
			}
			rec.Levels = append(rec.Levels, lr)
		}
	}
	return rec
}

func optional(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Format selects the encoding of a RecordWriter.
type Format string

const (
	FormatNDJSON  Format = "ndjson"
	FormatMsgpack Format = "msgpack"
)

// ParseFormat accepts the structured output formats.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatNDJSON, "json", "":
		return FormatNDJSON, nil
	case FormatMsgpack:
		return FormatMsgpack, nil
	default:
		return "", fmt.Errorf("unsupported record format %q", s)
	}
}

// ContentType returns the HTTP media type of the format.
func (f Format) ContentType() string {
	if f == FormatMsgpack {
		return "application/x-msgpack"
	}
	return "application/x-ndjson"
}

// RecordWriter streams values one after another: JSON objects separated by
// newlines, or concatenated MessagePack maps.
type RecordWriter struct {
	buf  *bufio.Writer
	json *json.Encoder
	mp   *msgpack.Encoder
}

func NewRecordWriter(w io.Writer, format Format) *RecordWriter {
	rw := &RecordWriter{buf: bufio.NewWriter(w)}
	if format == FormatMsgpack {
		rw.mp = msgpack.NewEncoder(rw.buf)
		rw.mp.SetCustomStructTag("json")
	} else {
		rw.json = json.NewEncoder(rw.buf)
	}
	return rw
}

// Write encodes v as the next record.
func (w *RecordWriter) Write(v any) error {
	if w.mp != nil {
		return w.mp.Encode(v)
	}
	return w.json.Encode(v)
}

// WriteStation encodes st as a StationRecord.
func (w *RecordWriter) WriteStation(st *ocl.Station, withLevels bool) error {
	return w.Write(NewStationRecord(st, withLevels))
}

func (w *RecordWriter) Flush() error {
	return w.buf.Flush()
}
