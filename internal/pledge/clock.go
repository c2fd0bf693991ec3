package pledge

import (
	"sync/atomic"
	"time"
)

// Clock supplies the current time in seconds for commit deadlines.
type Clock interface {
	Now() uint64
}

// SystemClock reads wall-clock Unix seconds.
type SystemClock struct{}

// Now returns the current Unix time in seconds.
func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

// sequence is the monotonic commit counter. Every committed transaction is
// stamped with the next value; aborted transactions consume nothing.
type sequence struct {
	seq atomic.Int64
}

// next returns the value the next commit will carry.
func (s *sequence) next() int64 {
	return s.seq.Load() + 1
}

// advance records that the value returned by next was committed.
func (s *sequence) advance() {
	s.seq.Add(1)
}

// current returns the last committed sequence number.
func (s *sequence) current() int64 {
	return s.seq.Load()
}

// reset positions the counter, used when restoring from a snapshot.
func (s *sequence) reset(at int64) {
	s.seq.Store(at)
}
