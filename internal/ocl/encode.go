package ocl

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
)

// DefaultLineWidth is the card width OCL files are distributed with.
const DefaultLineWidth = 80

// Encoder writes stations in OCL form. It is the inverse of Decoder for
// everything the decoder keeps; skipped sections are written as filler of
// the recorded size.
type Encoder struct {
	w *bufio.Writer
	// LineWidth wraps records every LineWidth significant bytes and pads
	// the last line with blanks. Zero writes each record on one line.
	LineWidth int
	// Fixed-point precision used for each kind of float field.
	TimePrecision     int
	PositionPrecision int
	DepthPrecision    int
	ValuePrecision    int
	HeaderPrecision   int
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:                 bufio.NewWriter(w),
		LineWidth:         DefaultLineWidth,
		TimePrecision:     2,
		PositionPrecision: 4,
		DepthPrecision:    1,
		ValuePrecision:    3,
		HeaderPrecision:   1,
	}
}

// Flush writes buffered records to the underlying writer.
func (e *Encoder) Flush() error {
	return e.w.Flush()
}

// Encode writes one record and returns its self-reported length.
func (e *Encoder) Encode(s *Station) (int64, error) {
	body, err := e.body(s)
	if err != nil {
		return 0, err
	}
	total, err := recordLength(len(body))
	if err != nil {
		return 0, err
	}
	rec := appendVarInt(make([]byte, 0, len(body)+10), total)
	rec = append(rec, body...)
	if err := e.writeRecord(rec); err != nil {
		return 0, err
	}
	return total, nil
}

// recordLength solves total = 1 + len(digits(total)) + bodyLen.
func recordLength(bodyLen int) (int64, error) {
	for width := 1; width <= maxFieldDigits; width++ {
		total := int64(1 + width + bodyLen)
		if len(strconv.FormatInt(total, 10)) == width {
			return total, nil
		}
	}
	return 0, fmt.Errorf("%w: record body of %d bytes too large", ErrMalformedField, bodyLen)
}

func (e *Encoder) writeRecord(rec []byte) error {
	if e.LineWidth <= 0 {
		if _, err := e.w.Write(rec); err != nil {
			return err
		}
		return e.w.WriteByte('\n')
	}
	for len(rec) > 0 {
		n := e.LineWidth
		if n > len(rec) {
			n = len(rec)
		}
		if _, err := e.w.Write(rec[:n]); err != nil {
			return err
		}
		for pad := n; pad < e.LineWidth; pad++ {
			if err := e.w.WriteByte(' '); err != nil {
				return err
			}
		}
		if err := e.w.WriteByte('\n'); err != nil {
			return err
		}
		rec = rec[n:]
	}
	return nil
}

func (e *Encoder) body(s *Station) ([]byte, error) {
	var err error
	b := make([]byte, 0, 256)
	b = appendVarIntOrMissing(b, s.StationID)
	if b, err = appendDigits(b, s.CountryCode, 2); err != nil {
		return nil, fmt.Errorf("country code: %w", err)
	}
	b = appendVarIntOrMissing(b, s.CruiseNumber)
	for _, f := range []struct {
		name  string
		v     int64
		width int
	}{{"year", s.Year, 4}, {"month", s.Month, 2}, {"day", s.Day, 2}} {
		if b, err = appendDigits(b, f.v, f.width); err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	for _, f := range []struct {
		v         float64
		precision int
	}{{s.Time, e.TimePrecision}, {s.Latitude, e.PositionPrecision}, {s.Longitude, e.PositionPrecision}} {
		if b, err = appendVarFloat(b, f.v, f.precision); err != nil {
			return nil, err
		}
	}
	levels := int64(len(s.Levels))
	b = appendVarInt(b, levels)
	if s.Kind == Observed {
		b = append(b, '0')
	} else {
		b = append(b, '1')
	}
	if b, err = appendDigits(b, int64(len(s.Variables)), 2); err != nil {
		return nil, fmt.Errorf("variable count: %w", err)
	}
	for _, v := range s.Variables {
		b = appendVarInt(b, v.Code)
		b = appendFlag(b, v.ErrorFlag)
	}
	b = appendFiller(b, s.FreeTextBytes)

	if len(s.SecondaryHeader) == 0 {
		b = append(b, '0')
	} else {
		sec := appendVarInt(nil, int64(len(s.SecondaryHeader)))
		for _, h := range s.SecondaryHeader {
			sec = appendVarInt(sec, h.Code)
			if sec, err = appendVarFloat(sec, h.Value, e.HeaderPrecision); err != nil {
				return nil, err
			}
		}
		b = appendVarInt(b, int64(len(sec)))
		b = append(b, sec...)
	}
	b = appendFiller(b, s.BioHeaderBytes)

	for j, lvl := range s.Levels {
		if s.Kind == Observed {
			if b, err = appendVarFloat(b, lvl.Depth, e.DepthPrecision); err != nil {
				return nil, fmt.Errorf("level %d depth: %w", j, err)
			}
			if !math.IsNaN(lvl.Depth) {
				b = appendFlag(b, lvl.DepthFlag)
			}
		}
		for k := range s.Variables {
			m := Measurement{Value: math.NaN()}
			if k < len(lvl.Values) {
				m = lvl.Values[k]
			}
			if b, err = appendVarFloat(b, m.Value, e.ValuePrecision); err != nil {
				return nil, fmt.Errorf("level %d variable %d: %w", j, k, err)
			}
			if !math.IsNaN(m.Value) {
				b = appendFlag(b, m.Flag)
			}
		}
	}
	return b, nil
}

func appendVarInt(b []byte, v int64) []byte {
	digits := strconv.FormatInt(v, 10)
	b = append(b, byte('0'+len(digits)))
	return append(b, digits...)
}

// appendVarIntOrMissing writes a zero-width field for negative values.
func appendVarIntOrMissing(b []byte, v int64) []byte {
	if v < 0 {
		return append(b, '0')
	}
	return appendVarInt(b, v)
}

func appendDigits(b []byte, v int64, width int) ([]byte, error) {
	digits := fmt.Sprintf("%0*d", width, v)
	if len(digits) != width {
		return b, fmt.Errorf("%w: %d does not fit in %d digits", ErrMalformedField, v, width)
	}
	return append(b, digits...), nil
}

func appendFlag(b []byte, flag int64) []byte {
	if flag < 0 || flag > 9 {
		flag = 9
	}
	return append(b, byte('0'+flag))
}

func appendFiller(b []byte, n int64) []byte {
	if n <= 0 {
		return append(b, '0')
	}
	b = appendVarInt(b, n)
	for i := int64(0); i < n; i++ {
		b = append(b, 'x')
	}
	return b
}

func appendVarFloat(b []byte, v float64, precision int) ([]byte, error) {
	if math.IsNaN(v) {
		return append(b, '-'), nil
	}
	if precision < 0 || precision > 9 {
		return b, fmt.Errorf("%w: precision %d", ErrMalformedField, precision)
	}
	mantissa := int64(math.Round(v * pow10[precision]))
	digits := strconv.FormatInt(mantissa, 10)
	if len(digits) > maxFieldDigits {
		return b, fmt.Errorf("%w: %v needs %d digits", ErrMalformedField, v, len(digits))
	}
	sig := len(strconv.FormatInt(abs(mantissa), 10))
	b = append(b, byte('0'+sig), byte('0'+len(digits)), byte('0'+precision))
	return append(b, digits...), nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
