package common

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
)

// DigestWriter forwards writes to an underlying writer while hashing them,
// so a run can report the SHA-256 of what it emitted.
type DigestWriter struct {
	w io.Writer
	h hash.Hash
	n int64
}

func NewDigestWriter(w io.Writer) *DigestWriter {
	if w == nil {
		w = io.Discard
	}
	return &DigestWriter{w: w, h: sha256.New()}
}

func (d *DigestWriter) Write(p []byte) (int, error) {
	n, err := d.w.Write(p)
	d.h.Write(p[:n])
	d.n += int64(n)
	return n, err
}

// Sum returns the hex digest of everything written so far.
func (d *DigestWriter) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Written returns the number of bytes forwarded.
func (d *DigestWriter) Written() int64 {
	return d.n
}

func Sha256OfFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// FileSize returns the size of path, or -1 when it cannot be determined
// (stdin, pipes).
func FileSize(f *os.File) int64 {
	if f == nil {
		return -1
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return -1
	}
	return info.Size()
}
