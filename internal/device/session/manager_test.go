package session

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"testing/iotest"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/infrastructure/monitoring"
)

func newTestManager(t *testing.T, mode device.Mode) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Mode = mode
	m := NewManager(cfg)
	t.Cleanup(m.Shutdown)
	return m
}

func readAll(t *testing.T, h *Handle) string {
	t.Helper()
	buf := make([]byte, device.Capacity)
	n, err := h.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestSharedRoundTrip(t *testing.T) {
	m := newTestManager(t, device.ModeShared)

	h, err := m.Open()
	require.NoError(t, err)

	n, err := h.Write([]byte("testdata"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	buf := make([]byte, 8)
	n, err = h.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "testdata", string(buf))
}

func TestSharedHandlesInterleave(t *testing.T) {
	m := newTestManager(t, device.ModeShared)

	a, err := m.Open()
	require.NoError(t, err)
	b, err := m.Open()
	require.NoError(t, err)

	_, err = a.Write([]byte("one-"))
	require.NoError(t, err)
	_, err = b.Write([]byte("two-"))
	require.NoError(t, err)
	_, err = a.Write([]byte("three"))
	require.NoError(t, err)

	// b drains everything regardless of who wrote it
	assert.Equal(t, "one-two-three", readAll(t, b))
	assert.Equal(t, "", readAll(t, a))
}

func TestSharedCloseClearsForEveryone(t *testing.T) {
	m := newTestManager(t, device.ModeShared)

	a, err := m.Open()
	require.NoError(t, err)
	bystander, err := m.Open()
	require.NoError(t, err)

	_, err = bystander.Write([]byte("unread-"))
	require.NoError(t, err)
	_, err = a.Write([]byte("temporary"))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	fresh, err := m.Open()
	require.NoError(t, err)
	n, err := fresh.Read(make([]byte, 64))
	require.NoError(t, err)
	assert.Zero(t, n)

	// the still-open handle lost its bytes too
	l, err := bystander.Len()
	require.NoError(t, err)
	assert.Zero(t, l)
}

func TestExclusiveSecondOpenBusy(t *testing.T) {
	m := newTestManager(t, device.ModeExclusive)

	first, err := m.Open()
	require.NoError(t, err)
	assert.True(t, first.HoldsExclusive())

	second, err := m.Open()
	assert.ErrorIs(t, err, device.ErrBusy)
	assert.Nil(t, second)
	assert.True(t, m.Stats().ExclusiveHeld)

	require.NoError(t, first.Close())
	assert.False(t, m.Stats().ExclusiveHeld)

	third, err := m.Open()
	require.NoError(t, err)
	assert.True(t, third.HoldsExclusive())
}

func TestExclusiveUsesSharedQueueAndClearsOnClose(t *testing.T) {
	m := newTestManager(t, device.ModeExclusive)

	h, err := m.Open()
	require.NoError(t, err)
	assert.False(t, h.Private())
	_, err = h.Write([]byte("secret"))
	require.NoError(t, err)
	assert.Equal(t, 6, m.Stats().SharedLength)

	require.NoError(t, h.Close())
	assert.Zero(t, m.Stats().SharedLength)
}

func TestExclusiveOpenNeverBlocks(t *testing.T) {
	m := newTestManager(t, device.ModeExclusive)

	holder, err := m.Open()
	require.NoError(t, err)
	defer holder.Close()

	var busy atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Open(); errors.Is(err, device.ErrBusy) {
				busy.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(32), busy.Load())
}

func TestExclusiveContentionOneWinner(t *testing.T) {
	m := newTestManager(t, device.ModeExclusive)

	var (
		winners atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Open(); err == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestPerHandleIsolation(t *testing.T) {
	m := newTestManager(t, device.ModePerHandle)

	a, err := m.Open()
	require.NoError(t, err)
	b, err := m.Open()
	require.NoError(t, err)
	assert.True(t, a.Private())
	assert.True(t, b.Private())

	_, err = a.Write([]byte("data1"))
	require.NoError(t, err)
	_, err = b.Write([]byte("data2"))
	require.NoError(t, err)

	assert.Equal(t, "data1", readAll(t, a))
	assert.Equal(t, "data2", readAll(t, b))
	assert.Zero(t, m.Stats().SharedLength)
}

func TestPerHandleCloseReleasesInstance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = device.ModePerHandle
	cfg.MemoryLimit = 100
	m := NewManager(cfg)

	h, err := m.Open()
	require.NoError(t, err)
	_, err = h.Write([]byte("abcdef"))
	require.NoError(t, err)

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.PrivateQueues)
	assert.Equal(t, int64(6), stats.MemoryUsed)

	require.NoError(t, h.Close())
	stats = m.Stats()
	assert.Zero(t, stats.PrivateQueues)
	assert.Zero(t, stats.MemoryUsed)
	assert.Zero(t, stats.OpenHandles)
}

func TestPerHandleOpenOutOfMemory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = device.ModePerHandle
	cfg.MaxPrivateQueues = 2
	m := NewManager(cfg)

	a, err := m.Open()
	require.NoError(t, err)
	_, err = m.Open()
	require.NoError(t, err)

	_, err = m.Open()
	assert.ErrorIs(t, err, device.ErrOutOfMemory)

	require.NoError(t, a.Close())
	_, err = m.Open()
	assert.NoError(t, err)
}

func TestWriteOutOfMemoryKeepsPartial(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemoryLimit = 4
	m := NewManager(cfg)

	h, err := m.Open()
	require.NoError(t, err)

	n, err := h.Write([]byte("abcdef"))
	assert.ErrorIs(t, err, device.ErrOutOfMemory)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcd", readAll(t, h))
}

func TestWriteOverflowThroughHandle(t *testing.T) {
	m := newTestManager(t, device.ModeShared)
	h, err := m.Open()
	require.NoError(t, err)

	_, err = h.Write(bytes.Repeat([]byte{'x'}, 995))
	require.NoError(t, err)

	n, err := h.Write([]byte("123456"))
	assert.ErrorIs(t, err, device.ErrOverflow)
	assert.Zero(t, n)

	l, err := h.Len()
	require.NoError(t, err)
	assert.Equal(t, 995, l)
}

func TestWriteFromAndReadToFaults(t *testing.T) {
	m := newTestManager(t, device.ModeShared)
	h, err := m.Open()
	require.NoError(t, err)

	boom := errors.New("copy_from_user")
	n, err := h.WriteFrom(io.MultiReader(bytes.NewReader([]byte("ab")), iotest.ErrReader(boom)), 5)
	assert.ErrorIs(t, err, device.ErrFault)
	assert.Equal(t, 2, n)

	var out bytes.Buffer
	n, err = h.ReadTo(&out, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "ab", out.String())
}

func TestControlInvalidArgumentLeavesModeUnchanged(t *testing.T) {
	m := newTestManager(t, device.ModeShared)

	require.NoError(t, m.Control(device.CmdExclusive))
	err := m.Control(99)
	assert.ErrorIs(t, err, device.ErrInvalidArgument)
	assert.Equal(t, device.ModeExclusive, m.Mode())

	// observable through open behaviour: still exclusive
	h, err := m.Open()
	require.NoError(t, err)
	_, err = m.Open()
	assert.ErrorIs(t, err, device.ErrBusy)
	require.NoError(t, h.Close())

	assert.ErrorIs(t, m.SetMode(device.Mode(5)), device.ErrInvalidArgument)
	assert.Equal(t, device.ModeExclusive, m.Mode())
}

func TestControlCommands(t *testing.T) {
	tests := []struct {
		cmd  uint32
		want device.Mode
	}{
		{cmd: 2, want: device.ModePerHandle},
		{cmd: 1, want: device.ModeExclusive},
		{cmd: 0, want: device.ModeShared},
	}

	m := newTestManager(t, device.ModeShared)
	for _, tt := range tests {
		require.NoError(t, m.Control(tt.cmd))
		assert.Equal(t, tt.want, m.Mode())

		h, err := m.Open()
		require.NoError(t, err)
		assert.Equal(t, tt.want, h.Mode())
		require.NoError(t, h.Close())
	}
}

func TestModeChangeDoesNotAffectOpenHandles(t *testing.T) {
	m := newTestManager(t, device.ModeExclusive)

	excl, err := m.Open()
	require.NoError(t, err)

	require.NoError(t, m.SetMode(device.ModePerHandle))
	priv, err := m.Open()
	require.NoError(t, err)
	assert.True(t, priv.Private())

	// exclusive lock is still held by the first handle
	assert.True(t, m.Stats().ExclusiveHeld)

	require.NoError(t, m.SetMode(device.ModeShared))
	_, err = priv.Write([]byte("mine"))
	require.NoError(t, err)

	// closes follow each handle's own binding, not the current mode
	require.NoError(t, excl.Close())
	assert.False(t, m.Stats().ExclusiveHeld)
	assert.Equal(t, "mine", readAll(t, priv))
	require.NoError(t, priv.Close())
	assert.Zero(t, m.Stats().PrivateQueues)
}

func TestReadEmptyRepeatedly(t *testing.T) {
	m := newTestManager(t, device.ModeShared)
	h, err := m.Open()
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		n, err := h.Read(make([]byte, 32))
		require.NoError(t, err)
		assert.Zero(t, n)
	}
}

func TestClosedHandle(t *testing.T) {
	m := newTestManager(t, device.ModePerHandle)
	h, err := m.Open()
	require.NoError(t, err)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.True(t, h.Closed())

	_, err = h.Write([]byte("x"))
	assert.ErrorIs(t, err, device.ErrClosed)
	_, err = h.Read(make([]byte, 1))
	assert.ErrorIs(t, err, device.ErrClosed)
	_, err = h.Len()
	assert.ErrorIs(t, err, device.ErrClosed)

	_, err = m.Lookup(h.ID())
	assert.ErrorIs(t, err, device.ErrNotFound)
	assert.ErrorIs(t, m.Close(h.ID()), device.ErrNotFound)
}

func TestLookupAndCloseByID(t *testing.T) {
	m := newTestManager(t, device.ModeShared)
	h, err := m.Open()
	require.NoError(t, err)

	got, err := m.Lookup(h.ID())
	require.NoError(t, err)
	assert.Same(t, h, got)

	require.NoError(t, m.Close(h.ID()))
	assert.True(t, h.Closed())
}

func TestShutdownClosesAll(t *testing.T) {
	m := NewManager(DefaultConfig())
	for i := 0; i < 5; i++ {
		_, err := m.Open()
		require.NoError(t, err)
	}
	assert.Equal(t, 5, m.Stats().OpenHandles)

	m.Shutdown()
	assert.Zero(t, m.Stats().OpenHandles)
}

func TestConcurrentReadersOnSharedQueue(t *testing.T) {
	m := newTestManager(t, device.ModeShared)

	writer, err := m.Open()
	require.NoError(t, err)
	payload := make([]byte, device.Capacity)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err = writer.Write(payload)
	require.NoError(t, err)

	var (
		total atomic.Int64
		wg    sync.WaitGroup
	)
	for r := 0; r < 8; r++ {
		h, err := m.Open()
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 7)
			for {
				n, err := h.Read(buf)
				assert.NoError(t, err)
				if n == 0 {
					return
				}
				total.Add(int64(n))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(device.Capacity), total.Load())
}

func TestLifecycleLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := NewManager(Config{Mode: device.ModeExclusive}).WithLogger(zap.New(core))

	h, err := m.Open()
	require.NoError(t, err)
	_, err = m.Open()
	require.Error(t, err)
	_, err = h.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	assert.Equal(t, 1, logs.FilterMessage("Device opened").Len())
	assert.Equal(t, 1, logs.FilterMessage("Device busy").Len())
	assert.Equal(t, 1, logs.FilterMessage("Transfer complete").Len())

	closed := logs.FilterMessage("Device closed").All()
	require.Len(t, closed, 1)
	assert.Equal(t, int64(2), closed[0].ContextMap()["discarded"])
	assert.Equal(t, "session", closed[0].LoggerName)
}

func TestMetricsRecorded(t *testing.T) {
	metrics := monitoring.NewMetrics()
	assert.Nil(t, NewManager(DefaultConfig()).Metrics())
	m := NewManager(DefaultConfig()).WithMetrics(metrics)
	assert.Same(t, metrics, m.Metrics())

	h, err := m.Open()
	require.NoError(t, err)
	_, err = h.Write([]byte("12345"))
	require.NoError(t, err)
	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.SharedQueueLen))

	_, err = h.Read(make([]byte, 2))
	require.NoError(t, err)
	assert.ErrorIs(t, m.Control(7), device.ErrInvalidArgument)
	require.NoError(t, h.Close())

	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.BytesWritten))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BytesRead))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.BytesDiscarded))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.HandlesOpen))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.SharedQueueLen))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationErrors.WithLabelValues("control", "invalid_argument")))
}
