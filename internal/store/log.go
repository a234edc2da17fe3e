// Package store provides the capacity-bounded append-only logs backing the
// tick buffer and the per-timeframe candle histories, plus the resumable
// cursors the resampler stages read them through.
//
// Each log has exactly one writer role; any number of readers may call
// ReadSince and Latest concurrently.
package store

import (
	"errors"
	"sync"
)

// ErrCursorInvalidated reports that a cursor points below the retained
// window of its log: the records it referenced were evicted. It is an
// expected, recoverable condition — callers reset the cursor to Start and
// re-read.
var ErrCursorInvalidated = errors.New("store: cursor position evicted from log")

// Cursor is the sequence number of the last consumed record. The zero value
// (Start) reads from the beginning of the retained window.
type Cursor uint64

// Start is the reset state of a cursor.
const Start Cursor = 0

// Log is a bounded in-memory append log. Appending beyond capacity evicts
// the oldest record. Records carry implicit sequence numbers starting at 1.
type Log[T any] struct {
	mu  sync.RWMutex
	buf []T
	// head is the sequence number of the most recently appended record;
	// the retained window is [head-len(buf)+1, head].
	head     uint64
	capacity int
}

// NewLog creates a log retaining at most capacity records.
func NewLog[T any](capacity int) *Log[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Log[T]{capacity: capacity}
}

// Append adds a record, silently evicting the oldest one when the log is at
// capacity.
func (l *Log[T]) Append(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buf) == l.capacity {
		copy(l.buf, l.buf[1:])
		l.buf[len(l.buf)-1] = v
	} else {
		l.buf = append(l.buf, v)
	}
	l.head++
}

// ReadSince returns up to max records strictly after cur, in append order,
// along with the cursor to resume from. When cur references an evicted
// position it returns ErrCursorInvalidated; the Start cursor is always
// valid and reads from the oldest retained record.
func (l *Log[T]) ReadSince(cur Cursor, max int) ([]T, Cursor, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	first := l.head - uint64(len(l.buf)) + 1
	if len(l.buf) == 0 {
		first = l.head + 1
	}

	if uint64(cur) >= l.head {
		return nil, cur, nil
	}
	if cur != Start && uint64(cur)+1 < first {
		return nil, cur, ErrCursorInvalidated
	}

	from := first
	if uint64(cur)+1 > from {
		from = uint64(cur) + 1
	}

	n := int(l.head - from + 1)
	if max > 0 && n > max {
		n = max
	}

	offset := int(from - first)
	out := make([]T, n)
	copy(out, l.buf[offset:offset+n])
	return out, Cursor(from + uint64(n) - 1), nil
}

// Latest returns up to n of the most recent records, oldest first.
func (l *Log[T]) Latest(n int) []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || len(l.buf) == 0 {
		return nil
	}
	if n > len(l.buf) {
		n = len(l.buf)
	}
	out := make([]T, n)
	copy(out, l.buf[len(l.buf)-n:])
	return out
}

// Len reports the number of retained records.
func (l *Log[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buf)
}
