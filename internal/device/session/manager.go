package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device/memory"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device/queue"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/shared/id"
)

// Config configures a Manager
type Config struct {
	// Capacity of every queue instance; zero selects device.Capacity
	Capacity int
	// Mode in effect before the first control call
	Mode device.Mode
	// MaxPrivateQueues bounds live per-handle queues; zero is unlimited
	MaxPrivateQueues int64
	// MemoryLimit bounds bytes stored across all queues; zero is unlimited
	MemoryLimit int64
}

// DefaultConfig returns the stock device configuration
func DefaultConfig() Config {
	return Config{
		Capacity: device.Capacity,
		Mode:     device.ModeShared,
	}
}

// Manager binds opening callers to queue instances according to the current
// mode and tears the binding down on close.
type Manager struct {
	mode      atomic.Int32
	exclusive exclusiveLock

	capacity int
	shared   *queue.Queue
	memory   *memory.Budget
	slots    *memory.Budget

	mu      sync.RWMutex
	handles map[id.HandleID]*Handle // Protected by mu

	ids     *id.Generator
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// exclusiveLock is a lock that is only ever tried, never waited on.
type exclusiveLock struct {
	held atomic.Bool
}

func (l *exclusiveLock) TryAcquire() bool { return l.held.CompareAndSwap(false, true) }
func (l *exclusiveLock) Release()         { l.held.Store(false) }
func (l *exclusiveLock) Held() bool       { return l.held.Load() }

// NewManager creates a manager with an empty shared queue and the exclusive
// lock unheld.
func NewManager(cfg Config) *Manager {
	if cfg.Capacity <= 0 {
		cfg.Capacity = device.Capacity
	}
	if !cfg.Mode.Valid() {
		cfg.Mode = device.ModeShared
	}

	budget := memory.NewBudget(cfg.MemoryLimit)
	m := &Manager{
		capacity: cfg.Capacity,
		shared:   queue.New(cfg.Capacity, budget),
		memory:   budget,
		slots:    memory.NewBudget(cfg.MaxPrivateQueues),
		handles:  make(map[id.HandleID]*Handle),
		ids:      id.Default(),
		logger:   zap.NewNop(),
	}
	m.mode.Store(int32(cfg.Mode))
	return m
}

// WithLogger sets the logger used for lifecycle events
func (m *Manager) WithLogger(logger *zap.Logger) *Manager {
	if logger != nil {
		m.logger = logger.Named("session")
	}
	return m
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// WithIDGenerator replaces the handle ID generator
func (m *Manager) WithIDGenerator(gen *id.Generator) *Manager {
	if gen != nil {
		m.ids = gen
	}
	return m
}

// Open binds a new handle according to the mode in effect at the call.
//
// In exclusive mode Open fails immediately with device.ErrBusy while another
// handle holds the device. In per-handle mode it fails with
// device.ErrOutOfMemory when no private queue can be created.
func (m *Manager) Open() (*Handle, error) {
	mode := m.Mode()

	h := &Handle{
		id:      m.ids.NewHandleID(),
		mode:    mode,
		manager: m,
	}

	switch mode {
	case device.ModeExclusive:
		if !m.exclusive.TryAcquire() {
			m.logger.Warn("Device busy", zap.String("mode", mode.String()))
			m.recordOpen(mode, device.ErrBusy)
			return nil, fmt.Errorf("open: %w", device.ErrBusy)
		}
		h.queue = m.shared
		h.holdsExclusive = true
	case device.ModePerHandle:
		if !m.slots.Reserve(1) {
			m.logger.Error("Private queue allocation failed",
				zap.Int64("limit", m.slots.Limit()),
			)
			m.recordOpen(mode, device.ErrOutOfMemory)
			return nil, fmt.Errorf("open: private queue: %w", device.ErrOutOfMemory)
		}
		h.queue = queue.New(m.capacity, m.memory)
		h.private = true
	default:
		h.queue = m.shared
	}

	m.mu.Lock()
	m.handles[h.id] = h
	m.mu.Unlock()

	m.logger.Info("Device opened",
		zap.String("handle", h.id.String()),
		zap.String("mode", mode.String()),
	)
	m.recordOpen(mode, nil)
	return h, nil
}

// Lookup returns the open handle with the given ID
func (m *Manager) Lookup(hid id.HandleID) (*Handle, error) {
	m.mu.RLock()
	h, ok := m.handles[hid]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrNotFound, hid)
	}
	return h, nil
}

// Close closes the open handle with the given ID
func (m *Manager) Close(hid id.HandleID) error {
	h, err := m.Lookup(hid)
	if err != nil {
		return err
	}
	return h.Close()
}

// SetMode selects the mode used by subsequent opens. Open handles keep the
// binding they were opened with.
func (m *Manager) SetMode(mode device.Mode) error {
	if !mode.Valid() {
		err := fmt.Errorf("%w: %s", device.ErrInvalidArgument, mode)
		m.recordControl(mode, err)
		return err
	}

	prev := device.Mode(m.mode.Swap(int32(mode)))
	m.logger.Info("Mode set",
		zap.String("mode", mode.String()),
		zap.String("previous", prev.String()),
	)
	m.recordControl(mode, nil)
	return nil
}

// Control applies a control command: 0 shared, 1 exclusive, 2 per-handle.
// Unknown commands fail with device.ErrInvalidArgument and leave the mode
// unchanged.
func (m *Manager) Control(cmd uint32) error {
	mode, err := device.ModeFromCommand(cmd)
	if err != nil {
		m.logger.Warn("Rejected control command", zap.Uint32("command", cmd))
		m.recordControl(m.Mode(), err)
		return err
	}
	return m.SetMode(mode)
}

// Mode returns the mode new opens will use.
//
// The value is read once per Open. A SetMode racing an Open may or may not
// be seen by it; only opens that start after SetMode returns are guaranteed
// to see the new mode.
func (m *Manager) Mode() device.Mode {
	return device.Mode(m.mode.Load())
}

// Metrics returns the collector set by WithMetrics, or nil
func (m *Manager) Metrics() *monitoring.Metrics {
	return m.metrics
}

// Capacity returns the capacity of every queue the manager creates
func (m *Manager) Capacity() int {
	return m.capacity
}

// Stats describes the manager's current state
type Stats struct {
	Mode          string `json:"mode"`
	OpenHandles   int    `json:"open_handles"`
	PrivateQueues int64  `json:"private_queues"`
	SharedLength  int    `json:"shared_length"`
	Capacity      int    `json:"capacity"`
	ExclusiveHeld bool   `json:"exclusive_held"`
	MemoryUsed    int64  `json:"memory_used"`
	MemoryLimit   int64  `json:"memory_limit"`
	PrivateLimit  int64  `json:"private_limit"`
}

// Stats returns a snapshot of the manager's state
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	open := len(m.handles)
	m.mu.RUnlock()

	return Stats{
		Mode:          m.Mode().String(),
		OpenHandles:   open,
		PrivateQueues: m.slots.Used(),
		SharedLength:  m.shared.Len(),
		Capacity:      m.capacity,
		ExclusiveHeld: m.exclusive.Held(),
		MemoryUsed:    m.memory.Used(),
		MemoryLimit:   m.memory.Limit(),
		PrivateLimit:  m.slots.Limit(),
	}
}

// Shutdown closes every open handle
func (m *Manager) Shutdown() {
	m.mu.RLock()
	open := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		open = append(open, h)
	}
	m.mu.RUnlock()

	for _, h := range open {
		_ = h.Close()
	}
	m.logger.Info("Session manager shut down", zap.Int("closed", len(open)))
}

// release undoes the binding of h. Called exactly once per handle.
func (m *Manager) release(h *Handle) int {
	// clearing the shared queue drops data other open handles wrote too
	dropped := h.queue.Clear()

	// released after the clear so the next exclusive opener starts empty
	if h.holdsExclusive {
		m.exclusive.Release()
	}

	if h.private {
		h.queue = nil
		m.slots.Release(1)
	}

	m.mu.Lock()
	delete(m.handles, h.id)
	m.mu.Unlock()

	m.logger.Info("Device closed",
		zap.String("handle", h.id.String()),
		zap.String("mode", h.mode.String()),
		zap.Int("discarded", dropped),
	)
	if m.metrics != nil {
		m.metrics.RecordClose(h.mode, h.private, dropped)
		m.metrics.SetSharedQueueLen(m.shared.Len())
	}
	return dropped
}

func (m *Manager) recordOpen(mode device.Mode, err error) {
	if m.metrics != nil {
		m.metrics.RecordOpen(mode, err)
	}
}

func (m *Manager) recordControl(mode device.Mode, err error) {
	if m.metrics != nil {
		m.metrics.RecordControl(mode, err)
	}
}

func (m *Manager) recordWrite(h *Handle, n int, err error) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordWrite(n, err)
	if !h.private {
		m.metrics.SetSharedQueueLen(m.shared.Len())
	}
}

func (m *Manager) recordRead(h *Handle, n int, err error) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordRead(n, err)
	if !h.private {
		m.metrics.SetSharedQueueLen(m.shared.Len())
	}
}
