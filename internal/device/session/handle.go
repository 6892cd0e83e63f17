package session

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device/queue"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/shared/id"
)

// Handle is an open binding between a caller and one queue instance.
//
// A Handle is safe for concurrent use. Close waits for operations already in
// progress on the same handle and then fails later ones with
// device.ErrClosed.
type Handle struct {
	id             id.HandleID
	mode           device.Mode
	holdsExclusive bool
	private        bool
	manager        *Manager

	mu     sync.RWMutex
	queue  *queue.Queue // nil after a private handle closes
	closed bool
}

// ID returns the handle's identifier
func (h *Handle) ID() id.HandleID { return h.id }

// Mode returns the mode the handle was opened under
func (h *Handle) Mode() device.Mode { return h.mode }

// Private reports whether the handle owns its queue
func (h *Handle) Private() bool { return h.private }

// HoldsExclusive reports whether the handle holds the exclusive lock
func (h *Handle) HoldsExclusive() bool { return h.holdsExclusive }

// Write appends p to the bound queue. See queue.Queue.Write.
func (h *Handle) Write(p []byte) (int, error) {
	return h.write(len(p), func(q *queue.Queue) (int, error) { return q.Write(p) })
}

// WriteFrom transfers count bytes from src to the bound queue. See
// queue.Queue.WriteFrom.
func (h *Handle) WriteFrom(src io.Reader, count int) (int, error) {
	return h.write(count, func(q *queue.Queue) (int, error) { return q.WriteFrom(src, count) })
}

// Read removes up to len(p) bytes from the bound queue into p.
func (h *Handle) Read(p []byte) (int, error) {
	return h.read(len(p), func(q *queue.Queue) (int, error) { return q.Read(p) })
}

// ReadTo removes up to limit bytes from the bound queue and delivers them to
// dst. See queue.Queue.ReadTo.
func (h *Handle) ReadTo(dst io.Writer, limit int) (int, error) {
	return h.read(limit, func(q *queue.Queue) (int, error) { return q.ReadTo(dst, limit) })
}

// Len returns the number of bytes queued on the bound queue
func (h *Handle) Len() (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, device.ErrClosed
	}
	return h.queue.Len(), nil
}

// Close releases the handle. It always succeeds; closing twice is a no-op.
//
// Closing clears the bound queue. For a handle on the shared queue this drops
// everything queued, including bytes written through other open handles.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	h.manager.release(h)
	return nil
}

// Closed reports whether Close has been called
func (h *Handle) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *Handle) write(requested int, op func(*queue.Queue) (int, error)) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return 0, fmt.Errorf("write %s: %w", h.id, device.ErrClosed)
	}

	n, err := op(h.queue)
	h.logResult("write", requested, n, err)
	h.manager.recordWrite(h, n, err)
	return n, err
}

func (h *Handle) read(requested int, op func(*queue.Queue) (int, error)) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return 0, fmt.Errorf("read %s: %w", h.id, device.ErrClosed)
	}

	n, err := op(h.queue)
	h.logResult("read", requested, n, err)
	h.manager.recordRead(h, n, err)
	return n, err
}

func (h *Handle) logResult(op string, requested, n int, err error) {
	logger := h.manager.logger
	fields := []zap.Field{
		zap.String("handle", h.id.String()),
		zap.String("op", op),
		zap.Int("requested", requested),
		zap.Int("bytes", n),
	}

	switch {
	case err == nil:
		logger.Debug("Transfer complete", fields...)
	case errors.Is(err, device.ErrOutOfMemory):
		logger.Error("Memory allocation failed", append(fields, zap.Error(err))...)
	case errors.Is(err, device.ErrOverflow):
		logger.Warn("Queue overflow", append(fields, zap.Error(err))...)
	default:
		logger.Warn("Transfer failed", append(fields, zap.Error(err))...)
	}
}
