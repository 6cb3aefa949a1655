package ocl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const maxFieldDigits = 9

var pow10 = [...]float64{1, 1e1, 1e2, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8, 1e9}

// Cursor reads OCL primitive fields from a character stream. Line breaks
// are padding and never count as significant bytes. Every significant byte
// is charged to the attached Accountant.
type Cursor struct {
	r      *bufio.Reader
	offset int64
	acct   *Accountant
	buf    [maxFieldDigits]byte
}

// NewCursor wraps r. A nil accountant disables byte accounting.
func NewCursor(r io.Reader, acct *Accountant) *Cursor {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 64*1024)
	}
	if acct == nil {
		acct = &Accountant{}
		acct.Reset()
	}
	return &Cursor{r: br, acct: acct}
}

// Offset returns the number of stream bytes read so far, line breaks
// included.
func (c *Cursor) Offset() int64 {
	return c.offset
}

func isLineBreak(b byte) bool {
	return b == '\n' || b == '\r'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// significant returns the next byte that is not a line break.
func (c *Cursor) significant() (byte, error) {
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		c.offset++
		if isLineBreak(b) {
			continue
		}
		c.acct.Charge(1)
		return b, nil
	}
}

// Digits reads a fixed-width integer field of n significant characters.
// A zero-width field, or a one-character field holding '-', is missing.
// The rightmost character must be a digit; leading blanks and a sign are
// accepted.
func (c *Cursor) Digits(n int) (int64, FieldStatus, error) {
	if n <= 0 {
		return -1, FieldMissing, nil
	}
	if n > maxFieldDigits {
		return 0, FieldMissing, fmt.Errorf("%w: width %d exceeds %d", ErrMalformedField, n, maxFieldDigits)
	}
	for i := 0; i < n; i++ {
		b, err := c.significant()
		if err != nil {
			return 0, FieldMissing, err
		}
		c.buf[i] = b
	}
	last := c.buf[n-1]
	if n == 1 && last == '-' {
		return -1, FieldMissing, nil
	}
	if !isDigit(last) {
		return 0, FieldMissing, fmt.Errorf("%w: %q", ErrMalformedField, c.buf[:n])
	}
	text := strings.TrimLeft(string(c.buf[:n]), " ")
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, FieldMissing, fmt.Errorf("%w: %q", ErrMalformedField, c.buf[:n])
	}
	return v, FieldPresent, nil
}

// VarInt reads a variable-length integer: a one-digit width followed by
// that many digits. The first length field of a record starts the
// accountant.
func (c *Cursor) VarInt() (int64, FieldStatus, error) {
	width, fs, err := c.Digits(1)
	if err != nil {
		return 0, FieldMissing, err
	}
	if fs == FieldMissing {
		return -1, FieldMissing, nil
	}
	v, fs, err := c.Digits(int(width))
	if err != nil {
		return 0, FieldMissing, err
	}
	if fs == FieldMissing {
		return -1, FieldMissing, nil
	}
	if !c.acct.Started() {
		c.acct.Start(v)
	}
	return v, FieldPresent, nil
}

// VarFloat reads a variable-length fixed-point value: significant-digit,
// total-digit and precision control digits, then the mantissa. A '-' in
// the first control digit marks the value missing. A zero-width mantissa
// decodes as NaN but still counts as present.
func (c *Cursor) VarFloat() (float64, FieldStatus, error) {
	_, fs, err := c.Digits(1)
	if err != nil {
		return 0, FieldMissing, err
	}
	if fs == FieldMissing {
		return math.NaN(), FieldMissing, nil
	}
	total, fs, err := c.Digits(1)
	if err != nil {
		return 0, FieldMissing, err
	}
	if fs == FieldMissing {
		return 0, FieldMissing, fmt.Errorf("%w: missing total-digit count", ErrMalformedField)
	}
	precision, fs, err := c.Digits(1)
	if err != nil {
		return 0, FieldMissing, err
	}
	if fs == FieldMissing {
		return 0, FieldMissing, fmt.Errorf("%w: missing precision", ErrMalformedField)
	}
	mantissa, fs, err := c.Digits(int(total))
	if err != nil {
		return 0, FieldMissing, err
	}
	if fs == FieldMissing {
		return math.NaN(), FieldPresent, nil
	}
	return float64(mantissa) / pow10[precision], FieldPresent, nil
}

// Skip consumes n significant bytes without interpreting them.
func (c *Cursor) Skip(n int64) error {
	for i := int64(0); i < n; i++ {
		if _, err := c.significant(); err != nil {
			return err
		}
	}
	return nil
}

// SkipLineTail consumes blanks through the next line break or end of
// input. Any other byte means the record ended somewhere other than where
// its length said.
func (c *Cursor) SkipLineTail() error {
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		c.offset++
		switch b {
		case '\n':
			return nil
		case ' ', '\t', '\r':
			continue
		default:
			return fmt.Errorf("%w: unexpected %q after record end", ErrByteCount, b)
		}
	}
}

// SkipSpace discards blanks and line breaks ahead of the next record. It
// returns io.EOF when only whitespace remains.
func (c *Cursor) SkipSpace() error {
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return err
		}
		switch b {
		case ' ', '\t', '\n', '\r':
			c.offset++
			continue
		}
		return c.r.UnreadByte()
	}
}
