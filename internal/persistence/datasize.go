package persistence

// DataSize accumulates the size of decoded strings and JSON documents so the
// caller can stop reading once a response grows past its limit.
type DataSize struct {
	limit int64
	total int64
}

// NewDataSize creates an accumulator. A limit <= 0 disables the check.
func NewDataSize(limit int64) *DataSize {
	return &DataSize{limit: limit}
}

// Increase adds n bytes.
func (d *DataSize) Increase(n int) {
	if d == nil {
		return
	}
	d.total += int64(n)
}

// Total returns the accumulated size.
func (d *DataSize) Total() int64 {
	if d == nil {
		return 0
	}
	return d.total
}

// HasExceeded reports whether the total passed the limit.
func (d *DataSize) HasExceeded() bool {
	return d != nil && d.limit > 0 && d.total > d.limit
}
