package faketransport

import (
	"errors"
	"io"
	"sync"
)

// ErrFlaky is returned once a FlakyReader has served its configured number
// of bytes, simulating a mid-stream connection drop.
var ErrFlaky = errors.New("faketransport: simulated read failure")

// FlakyReader reads from an underlying ReaderAt and fails with ErrFlaky once
// failAfter bytes have been delivered.
type FlakyReader struct {
	mu        sync.Mutex
	data      io.ReaderAt
	length    int64
	failAfter int64
	pos       int64
	failed    bool
	closed    bool
}

// NewFlakyReader returns a reader over data (length bytes total) that fails
// after delivering failAfter bytes. A non-positive failAfter never fails.
func NewFlakyReader(data io.ReaderAt, length int64, failAfter int) *FlakyReader {
	return &FlakyReader{data: data, length: length, failAfter: int64(failAfter)}
}

// Read implements io.Reader.
func (r *FlakyReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, errors.New("faketransport: read from closed reader")
	}
	if r.failed {
		return 0, ErrFlaky
	}
	if r.pos >= r.length {
		return 0, io.EOF
	}

	remaining := r.length - r.pos
	toRead := int64(len(p))
	if toRead > remaining {
		toRead = remaining
	}
	if r.failAfter > 0 && r.pos+toRead > r.failAfter {
		toRead = r.failAfter - r.pos
		if toRead <= 0 {
			r.failed = true
			return 0, ErrFlaky
		}
	}
	if toRead == 0 {
		return 0, nil
	}

	n, err := r.data.ReadAt(p[:toRead], r.pos)
	r.pos += int64(n)
	if err != nil && err != io.EOF {
		return n, err
	}
	if r.failAfter > 0 && r.pos >= r.failAfter && r.pos < r.length {
		r.failed = true
		if n == 0 {
			return 0, ErrFlaky
		}
	}
	if r.pos >= r.length {
		return n, io.EOF
	}
	return n, nil
}

// Close implements io.Closer.
func (r *FlakyReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
