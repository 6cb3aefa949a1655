package ocl

// Accountant tracks how many significant bytes of the current record have
// been consumed against the length the record declares for itself. The
// declared total is unknown until the first length field is decoded.
type Accountant struct {
	total    int64
	consumed int64
}

// Reset prepares the accountant for a new record.
func (a *Accountant) Reset() {
	a.total = -1
	a.consumed = 0
}

// Started reports whether the declared total has been set.
func (a *Accountant) Started() bool {
	return a.total >= 0
}

// Start records the declared length. Bytes already charged (the length
// field itself) count against it.
func (a *Accountant) Start(total int64) {
	a.total = total
}

// Charge accounts n consumed bytes.
func (a *Accountant) Charge(n int64) {
	a.consumed += n
}

// Consumed returns the bytes charged since Reset.
func (a *Accountant) Consumed() int64 {
	return a.consumed
}

// Total returns the declared length, or -1 before Start.
func (a *Accountant) Total() int64 {
	return a.total
}

// Left returns the bytes remaining in the record. It goes negative when a
// record has been read past its declared length.
func (a *Accountant) Left() int64 {
	if a.total < 0 {
		return 0
	}
	return a.total - a.consumed
}
