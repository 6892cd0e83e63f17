// Package queue implements the bounded FIFO byte queue behind the device.
//
// A Queue is a fixed-capacity ring buffer guarded by a sync.RWMutex. Every
// operation that changes the contents (Write, WriteFrom, Read, ReadTo, Clear)
// holds the lock exclusively; Len, Cap and Available take it shared.
//
// Data operations return the number of bytes committed alongside any error,
// so a caller can tell a partial write or a partial read from a rejected one.
package queue

import (
	"fmt"
	"io"
	"sync"

	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device/memory"
)

// chunkSize bounds the scratch buffer used by WriteFrom.
const chunkSize = 256

// Queue is a bounded FIFO of bytes safe for concurrent use.
type Queue struct {
	mu     sync.RWMutex
	buf    []byte
	head   int
	length int
	budget *memory.Budget
}

// New creates an empty queue holding at most capacity bytes. A capacity of
// zero or less selects device.Capacity. Each stored byte is charged against
// budget, which may be nil for no accounting.
func New(capacity int, budget *memory.Budget) *Queue {
	if capacity <= 0 {
		capacity = device.Capacity
	}
	return &Queue{
		buf:    make([]byte, capacity),
		budget: budget,
	}
}

// Write appends p to the tail of the queue.
//
// If p does not fit in the remaining capacity nothing is appended and
// ErrOverflow is returned. If the memory budget runs out partway the bytes
// already appended stay queued and the count is returned with ErrOutOfMemory.
func (q *Queue) Write(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.checkFits(len(p)); err != nil {
		return 0, err
	}
	return q.appendLocked(p)
}

// WriteFrom transfers count bytes from src to the tail of the queue.
//
// The capacity check is made against count before anything is read. If src
// fails or ends before count bytes arrive, the bytes received so far stay
// queued and the count is returned with ErrFault wrapping the cause.
func (q *Queue) WriteFrom(src io.Reader, count int) (int, error) {
	if count < 0 {
		return 0, fmt.Errorf("%w: negative count %d", device.ErrInvalidArgument, count)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.checkFits(count); err != nil {
		return 0, err
	}

	var scratch [chunkSize]byte
	written := 0
	for written < count {
		want := min(count-written, len(scratch))
		got, rerr := io.ReadFull(src, scratch[:want])
		n, aerr := q.appendLocked(scratch[:got])
		written += n
		if aerr != nil {
			return written, aerr
		}
		if rerr != nil {
			if rerr == io.EOF {
				rerr = io.ErrUnexpectedEOF
			}
			return written, fmt.Errorf("%w: reading byte %d of %d: %w", device.ErrFault, written, count, rerr)
		}
	}
	return written, nil
}

// Read removes up to len(p) bytes from the head of the queue into p. An
// empty queue yields zero bytes and no error.
func (q *Queue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := min(len(p), q.length)
	if n == 0 {
		return 0, nil
	}

	first := min(n, len(q.buf)-q.head)
	copy(p, q.buf[q.head:q.head+first])
	copy(p[first:n], q.buf[:n-first])
	q.removeLocked(n)
	return n, nil
}

// ReadTo removes up to limit bytes from the head of the queue and delivers
// them to dst.
//
// Bytes are removed as dst accepts them. If dst fails, the bytes it accepted
// are gone from the queue, the rest stay queued, and the count of delivered
// bytes is returned with ErrFault wrapping the cause.
func (q *Queue) ReadTo(dst io.Writer, limit int) (int, error) {
	if limit < 0 {
		return 0, fmt.Errorf("%w: negative count %d", device.ErrInvalidArgument, limit)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	total := 0
	remaining := min(limit, q.length)
	for remaining > 0 {
		seg := min(remaining, len(q.buf)-q.head)
		n, err := dst.Write(q.buf[q.head : q.head+seg])
		if n > seg {
			n = seg
		}
		q.removeLocked(n)
		total += n
		remaining -= n
		if err == nil && n < seg {
			err = io.ErrShortWrite
		}
		if err != nil {
			return total, fmt.Errorf("%w: delivering byte %d: %w", device.ErrFault, total, err)
		}
	}
	return total, nil
}

// Clear drops every queued byte and returns how many were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.length
	q.head = 0
	q.length = 0
	q.budget.Release(int64(n))
	return n
}

// Len returns the number of queued bytes.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.length
}

// Cap returns the capacity of the queue.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Available returns how many more bytes the queue accepts.
func (q *Queue) Available() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.buf) - q.length
}

func (q *Queue) checkFits(n int) error {
	if q.length+n > len(q.buf) {
		return fmt.Errorf("%w: %d bytes queued, %d requested, capacity %d",
			device.ErrOverflow, q.length, n, len(q.buf))
	}
	return nil
}

// appendLocked stores p at the tail, charging the budget per byte. The caller
// holds q.mu and has checked capacity.
func (q *Queue) appendLocked(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := len(p)
	if !q.budget.Reserve(int64(n)) {
		n = 0
		for n < len(p) && q.budget.Reserve(1) {
			n++
		}
	}

	tail := (q.head + q.length) % len(q.buf)
	first := copy(q.buf[tail:], p[:n])
	copy(q.buf, p[first:n])
	q.length += n

	if n < len(p) {
		return n, fmt.Errorf("%w: stored %d of %d bytes", device.ErrOutOfMemory, n, len(p))
	}
	return n, nil
}

// removeLocked drops n bytes from the head. The caller holds q.mu.
func (q *Queue) removeLocked(n int) {
	q.head = (q.head + n) % len(q.buf)
	q.length -= n
	if q.length == 0 {
		q.head = 0
	}
	q.budget.Release(int64(n))
}
