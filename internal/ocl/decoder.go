package ocl

import (
	"errors"
	"fmt"
	"io"
	"math"

	"example.com/oclfilt/internal/common"
)

// DefaultMaxLevels caps how many profile levels are stored per station.
const DefaultMaxLevels = 6000

// Options configures a Decoder.
type Options struct {
	// WantProfile requests the profile section. Without it the profile is
	// read only when no bottom depth could be resolved from the header or
	// the side channel.
	WantProfile bool
	// SkipTo fast-forwards past records with a smaller 0-based index.
	SkipTo   int64
	Criteria Criteria
	// Bathymetry is the optional side channel, consumed one line per
	// record, skipped records included.
	Bathymetry      *BathymetryReader
	BathymetryCheck BathymetryCheck
	// MaxLevels caps stored levels; <= 0 selects DefaultMaxLevels.
	MaxLevels int
}

type decodeState int

const (
	stateHeader decodeState = iota
	stateVarCodes
	stateFreeText
	stateSecondary
	stateDecide
	stateBio
	stateProfile
	stateResync
	stateDone
)

func (s decodeState) String() string {
	switch s {
	case stateHeader:
		return "header"
	case stateVarCodes:
		return "variable codes"
	case stateFreeText:
		return "free text"
	case stateSecondary:
		return "secondary header"
	case stateDecide:
		return "filter"
	case stateBio:
		return "bio header"
	case stateProfile:
		return "profile"
	case stateResync:
		return "resync"
	default:
		return "done"
	}
}

// Decoder reads stations sequentially from an OCL stream. It is not safe
// for concurrent use.
type Decoder struct {
	cur     *Cursor
	acct    Accountant
	opts    Options
	index   int64
	err     error
	metrics *common.Metrics
}

// NewDecoder prepares a decoder over r.
func NewDecoder(r io.Reader, opts Options) *Decoder {
	if opts.MaxLevels <= 0 {
		opts.MaxLevels = DefaultMaxLevels
	}
	d := &Decoder{opts: opts}
	d.acct.Reset()
	d.cur = NewCursor(r, &d.acct)
	return d
}

// SetMetrics attaches a metrics recorder to the decoder.
func (d *Decoder) SetMetrics(m *common.Metrics) {
	d.metrics = m
}

// Index returns the index the next record will be given.
func (d *Decoder) Index() int64 {
	return d.index
}

// Offset returns the stream offset consumed so far.
func (d *Decoder) Offset() int64 {
	return d.cur.Offset()
}

// Next decodes the next record. It returns io.EOF when the stream ends
// cleanly between records. Any other error is a *RecordError, is reported
// with StatusFatal, and is returned again by every later call.
func (d *Decoder) Next() (*Station, Status, error) {
	if d.err != nil {
		return nil, StatusFatal, d.err
	}
	if err := d.cur.SkipSpace(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, StatusSuccess, io.EOF
		}
		d.err = &RecordError{Index: d.index, Offset: d.cur.Offset(), Err: err}
		return nil, StatusFatal, d.err
	}
	st := &Station{
		Index:         d.index,
		Offset:        d.cur.Offset(),
		StationID:     -1,
		CountryCode:   -1,
		CruiseNumber:  -1,
		Time:          math.NaN(),
		Latitude:      math.NaN(),
		Longitude:     math.NaN(),
		DatabaseDepth: math.NaN(),
		Bottom:        BottomDepth{Value: math.NaN()},
	}
	d.index++
	d.acct.Reset()

	status, err := d.decode(st)
	if err != nil {
		d.err = &RecordError{Index: st.Index, Offset: st.Offset, Err: err}
		return st, StatusFatal, d.err
	}
	if d.metrics != nil {
		if status == StatusSkipped {
			d.metrics.IncSkipped()
			d.metrics.AddBytes(st.RecordLength)
		} else {
			d.metrics.AddStation(st.RecordLength, st.ProfileRead)
		}
	}
	return st, status, nil
}

// decode walks the record section by section. Every path ends in
// stateResync so the stream is left at the start of the next record.
func (d *Decoder) decode(st *Station) (Status, error) {
	status := StatusSuccess
	state := stateHeader
	for state != stateDone {
		var next decodeState
		var err error
		switch state {
		case stateHeader:
			next, err = d.readHeader(st)
			if next == stateResync && err == nil {
				status = StatusSkipped
			}
		case stateVarCodes:
			next, err = d.readVarCodes(st)
		case stateFreeText:
			next, err = d.skipFreeText(st)
		case stateSecondary:
			next, err = d.readSecondaryHeader(st)
		case stateDecide:
			next, err = d.decide(st)
		case stateBio:
			next, err = d.skipBioHeader(st)
		case stateProfile:
			next, err = d.readProfile(st)
		case stateResync:
			next, err = stateDone, d.resync()
		}
		if err != nil {
			return StatusFatal, fmt.Errorf("%s: %w", state, err)
		}
		state = next
	}
	return status, nil
}

func (d *Decoder) readHeader(st *Station) (decodeState, error) {
	c := d.cur
	length, fs, err := c.VarInt()
	if err != nil {
		return stateDone, fmt.Errorf("record length: %w", err)
	}
	if fs == FieldMissing {
		return stateDone, fmt.Errorf("%w: record length missing", ErrMalformedField)
	}
	if length < 0 {
		return stateDone, fmt.Errorf("%w: record length %d", ErrMalformedField, length)
	}
	st.RecordLength = length

	if st.StationID, _, err = c.VarInt(); err != nil {
		return stateDone, fmt.Errorf("station id: %w", err)
	}
	if st.Index < d.opts.SkipTo {
		if d.opts.Bathymetry != nil {
			if _, err := d.bathymetry(st); err != nil {
				return stateDone, err
			}
		}
		return stateResync, nil
	}

	if st.CountryCode, _, err = c.Digits(2); err != nil {
		return stateDone, fmt.Errorf("country code: %w", err)
	}
	if st.CruiseNumber, _, err = c.VarInt(); err != nil {
		return stateDone, fmt.Errorf("cruise number: %w", err)
	}
	if st.Year, _, err = c.Digits(4); err != nil {
		return stateDone, fmt.Errorf("year: %w", err)
	}
	if st.Month, _, err = c.Digits(2); err != nil {
		return stateDone, fmt.Errorf("month: %w", err)
	}
	if st.Day, _, err = c.Digits(2); err != nil {
		return stateDone, fmt.Errorf("day: %w", err)
	}
	if st.Time, _, err = c.VarFloat(); err != nil {
		return stateDone, fmt.Errorf("time: %w", err)
	}
	if st.Latitude, _, err = c.VarFloat(); err != nil {
		return stateDone, fmt.Errorf("latitude: %w", err)
	}
	if st.Longitude, _, err = c.VarFloat(); err != nil {
		return stateDone, fmt.Errorf("longitude: %w", err)
	}
	levels, fs, err := c.VarInt()
	if err != nil {
		return stateDone, fmt.Errorf("level count: %w", err)
	}
	if fs == FieldMissing {
		levels = 0
	}
	if levels < 0 {
		return stateDone, fmt.Errorf("%w: level count %d", ErrMalformedField, levels)
	}
	st.LevelCount = levels
	kind, _, err := c.Digits(1)
	if err != nil {
		return stateDone, fmt.Errorf("station type: %w", err)
	}
	if kind == 0 {
		st.Kind = Observed
	} else {
		st.Kind = StandardLevels
	}
	return stateVarCodes, nil
}

func (d *Decoder) readVarCodes(st *Station) (decodeState, error) {
	c := d.cur
	n, fs, err := c.Digits(2)
	if err != nil {
		return stateDone, fmt.Errorf("variable count: %w", err)
	}
	if fs == FieldMissing || n < 0 {
		n = 0
	}
	st.Variables = make([]VariableColumn, 0, n)
	for i := int64(0); i < n; i++ {
		code, _, err := c.VarInt()
		if err != nil {
			return stateDone, fmt.Errorf("variable %d code: %w", i, err)
		}
		flag, fs, err := c.Digits(1)
		if err != nil {
			return stateDone, fmt.Errorf("variable %d flag: %w", i, err)
		}
		if fs == FieldMissing {
			flag = 0
		}
		st.Variables = append(st.Variables, VariableColumn{Code: code, ErrorFlag: flag})
	}
	return stateFreeText, nil
}

func (d *Decoder) skipFreeText(st *Station) (decodeState, error) {
	n, fs, err := d.cur.VarInt()
	if err != nil {
		return stateDone, err
	}
	if fs == FieldMissing {
		n = 0
	}
	st.FreeTextBytes = n
	if err := d.cur.Skip(n); err != nil {
		return stateDone, err
	}
	return stateSecondary, nil
}

func (d *Decoder) readSecondaryHeader(st *Station) (decodeState, error) {
	c := d.cur
	n, fs, err := c.VarInt()
	if err != nil {
		return stateDone, err
	}
	if fs == FieldMissing {
		st.SecondaryHeaderBytes = 0
		return stateDecide, nil
	}
	st.SecondaryHeaderBytes = n
	count, fs, err := c.VarInt()
	if err != nil {
		return stateDone, fmt.Errorf("entry count: %w", err)
	}
	if fs == FieldMissing || count < 0 {
		count = 0
	}
	st.SecondaryHeader = make([]SecondaryHeaderEntry, 0, count)
	for i := int64(0); i < count; i++ {
		code, _, err := c.VarInt()
		if err != nil {
			return stateDone, fmt.Errorf("entry %d code: %w", i, err)
		}
		value, _, err := c.VarFloat()
		if err != nil {
			return stateDone, fmt.Errorf("entry %d value: %w", i, err)
		}
		st.SecondaryHeader = append(st.SecondaryHeader, SecondaryHeaderEntry{Code: code, Value: value})
	}
	return stateDecide, nil
}

// decide resolves the header-stage bottom depth and the filter flags, then
// either continues into the profile or jumps to the next record.
func (d *Decoder) decide(st *Station) (decodeState, error) {
	if d.opts.Bathymetry != nil {
		db, err := d.bathymetry(st)
		if err != nil {
			return stateDone, err
		}
		st.DatabaseDepth = db
	}
	st.Bottom = NewResolver(st, st.DatabaseDepth).Initial()
	st.Flags = d.opts.Criteria.Evaluate(st)

	wantProfile := d.opts.WantProfile || !st.Bottom.Known()
	if wantProfile && st.Flags.Pass() {
		return stateBio, nil
	}
	return stateResync, nil
}

func (d *Decoder) bathymetry(st *Station) (float64, error) {
	rec, err := d.opts.Bathymetry.Next()
	if err != nil {
		return math.NaN(), err
	}
	if err := d.opts.BathymetryCheck.verify(rec, st.Index, st.Latitude, st.Longitude, d.opts.Criteria.GridSquare); err != nil {
		return math.NaN(), err
	}
	return rec.Depth, nil
}

func (d *Decoder) skipBioHeader(st *Station) (decodeState, error) {
	n, fs, err := d.cur.VarInt()
	if err != nil {
		return stateDone, err
	}
	if fs == FieldMissing {
		n = 0
	}
	st.BioHeaderBytes = n
	if err := d.cur.Skip(n); err != nil {
		return stateDone, err
	}
	return stateProfile, nil
}

func (d *Decoder) readProfile(st *Station) (decodeState, error) {
	c := d.cur
	keep := st.LevelCount
	if keep > int64(d.opts.MaxLevels) {
		keep = int64(d.opts.MaxLevels)
		st.Truncated = true
		common.Logf("station %d: %d levels exceeds cap of %d, extra levels not stored", st.Index, st.LevelCount, d.opts.MaxLevels)
	}
	if st.Kind == StandardLevels && st.LevelCount > int64(StandardLevelCount) {
		common.Logf("station %d: %d standard levels but only %d standard depths defined", st.Index, st.LevelCount, StandardLevelCount)
	}
	st.Levels = make([]ProfileLevel, 0, keep)
	deepest := math.NaN()
	nvars := len(st.Variables)
	for j := int64(0); j < st.LevelCount; j++ {
		lvl := ProfileLevel{Depth: math.NaN()}
		if st.Kind == Observed {
			depth, fs, err := c.VarFloat()
			if err != nil {
				return stateDone, fmt.Errorf("level %d depth: %w", j, err)
			}
			lvl.Depth = depth
			if fs == FieldPresent {
				if lvl.DepthFlag, _, err = c.Digits(1); err != nil {
					return stateDone, fmt.Errorf("level %d depth flag: %w", j, err)
				}
			}
		} else {
			lvl.Depth, _ = StandardLevelDepth(int(j))
		}
		if j < keep {
			lvl.Values = make([]Measurement, nvars)
		}
		for k := 0; k < nvars; k++ {
			value, fs, err := c.VarFloat()
			if err != nil {
				return stateDone, fmt.Errorf("level %d variable %d: %w", j, k, err)
			}
			var flag int64
			if fs == FieldPresent {
				if flag, _, err = c.Digits(1); err != nil {
					return stateDone, fmt.Errorf("level %d variable %d flag: %w", j, k, err)
				}
			}
			if j < keep {
				lvl.Values[k] = Measurement{Value: value, Flag: flag}
			}
		}
		if !math.IsNaN(lvl.Depth) && (math.IsNaN(deepest) || lvl.Depth > deepest) {
			deepest = lvl.Depth
		}
		if j < keep {
			st.Levels = append(st.Levels, lvl)
		}
	}
	st.ProfileRead = true
	if st.LevelCount > 0 {
		st.Bottom = NewResolver(st, st.DatabaseDepth).Final(st.Bottom, deepest)
	}
	return stateResync, nil
}

// resync skips whatever the record still owes the accountant, then the
// blank tail of its last line.
func (d *Decoder) resync() error {
	left := d.acct.Left()
	if left < 0 {
		return fmt.Errorf("%w: read %d bytes of a %d-byte record", ErrByteCount, d.acct.Consumed(), d.acct.Total())
	}
	if err := d.cur.Skip(left); err != nil {
		return err
	}
	return d.cur.SkipLineTail()
}
