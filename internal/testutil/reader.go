package testutil

import (
	"sync"
	"sync/atomic"
)

// CountingReader is an instrumented segment reader stand-in that records
// how many times it was closed.
type CountingReader struct {
	ID       uint64
	closes   atomic.Int32
	closeErr error
}

// NewCountingReader creates a reader labelled with id.
func NewCountingReader(id uint64) *CountingReader {
	return &CountingReader{ID: id}
}

// SetCloseError makes every Close call return err.
func (r *CountingReader) SetCloseError(err error) {
	r.closeErr = err
}

// Close records the call and returns the configured error.
func (r *CountingReader) Close() error {
	r.closes.Add(1)
	return r.closeErr
}

// Closes returns the number of Close calls so far.
func (r *CountingReader) Closes() int {
	return int(r.closes.Load())
}

// ReaderSet hands out CountingReaders and checks them in bulk.
type ReaderSet struct {
	mu      sync.Mutex
	readers []*CountingReader
}

// New creates and tracks a reader for id.
func (s *ReaderSet) New(id uint64) *CountingReader {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := NewCountingReader(id)
	s.readers = append(s.readers, r)
	return r
}

// CloseCounts returns the Close count of every reader, in creation order.
func (s *ReaderSet) CloseCounts() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.readers))
	for i, r := range s.readers {
		out[i] = r.Closes()
	}
	return out
}
