package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	devicehttp "github.com/GriffinCanCode/AgentOS/queuedev/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device/session"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/infrastructure/resilience"
)

func newTestServer(t *testing.T, cfg session.Config) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := session.NewManager(cfg).WithMetrics(monitoring.NewMetrics())
	router := gin.New()
	devicehttp.NewHandlers(manager, nil).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		manager.Shutdown()
	})
	return srv
}

func newTestClient(url string) *Client {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.Timeout = 5 * time.Second
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 5 * time.Millisecond
	return New(cfg)
}

func TestRoundTrip(t *testing.T) {
	srv := newTestServer(t, session.DefaultConfig())
	c := newTestClient(srv.URL)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	h, err := c.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shared", h.Mode)
	assert.NotEmpty(t, h.ID)

	n, err := c.Write(ctx, h.ID, []byte("testdata"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	got, err := c.Read(ctx, h.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, "test", string(got))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Device.SharedLength)
	assert.Equal(t, 1, stats.Device.OpenHandles)
	assert.EqualValues(t, 8, stats.Traffic.BytesWritten)
	assert.EqualValues(t, 4, stats.Traffic.BytesRead)

	require.NoError(t, c.Close(ctx, h.ID))

	stats, err = c.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Device.SharedLength)
	assert.Zero(t, stats.Device.OpenHandles)
}

func TestReadEmpty(t *testing.T) {
	srv := newTestServer(t, session.DefaultConfig())
	c := newTestClient(srv.URL)
	ctx := context.Background()

	h, err := c.Open(ctx)
	require.NoError(t, err)

	got, err := c.Read(ctx, h.ID, 100)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeviceErrorsCrossTheWire(t *testing.T) {
	srv := newTestServer(t, session.DefaultConfig())
	c := newTestClient(srv.URL)
	ctx := context.Background()

	mode, err := c.Control(ctx, device.CmdExclusive)
	require.NoError(t, err)
	assert.Equal(t, "exclusive", mode)

	h, err := c.Open(ctx)
	require.NoError(t, err)

	_, err = c.Open(ctx)
	assert.ErrorIs(t, err, device.ErrBusy)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "busy", apiErr.Code)

	_, err = c.Write(ctx, h.ID, bytes.Repeat([]byte{'x'}, device.Capacity))
	require.NoError(t, err)
	n, err := c.Write(ctx, h.ID, []byte{'y'})
	assert.ErrorIs(t, err, device.ErrOverflow)
	assert.Zero(t, n)

	_, err = c.Control(ctx, 9)
	assert.ErrorIs(t, err, device.ErrInvalidArgument)

	require.NoError(t, c.Close(ctx, h.ID))
	// closing again is a no-op, but the handle is gone
	assert.NoError(t, c.Close(ctx, h.ID))
	_, err = c.Read(ctx, h.ID, 1)
	assert.ErrorIs(t, err, device.ErrNotFound)

	// device errors come from a healthy server
	assert.Equal(t, resilience.StateClosed, c.BreakerState())
}

func TestOutOfMemoryReportsPartialCount(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.MemoryLimit = 5
	srv := newTestServer(t, cfg)
	c := newTestClient(srv.URL)
	ctx := context.Background()

	h, err := c.Open(ctx)
	require.NoError(t, err)

	n, err := c.Write(ctx, h.ID, []byte("abcdefgh"))
	assert.ErrorIs(t, err, device.ErrOutOfMemory)
	assert.Equal(t, 5, n)

	got, err := c.Read(ctx, h.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, "abcde", string(got))
}

func TestBreakerOpensWhenServerIsGone(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.Retries = 0
	cfg.BreakerThreshold = 2
	cfg.BreakerTimeout = time.Minute
	c := New(cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.Open(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, resilience.ErrCircuitOpen)
	}
	assert.Equal(t, resilience.StateOpen, c.BreakerState())

	_, err := c.Open(ctx)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestRetriesRateLimitedRequests(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"success":false,"error":"rate limit exceeded","code":"rate_limited"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"handle":"hdl_x","mode":"shared"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	h, err := c.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hdl_x", h.ID)
	assert.EqualValues(t, 2, hits.Load())
}

func TestRateLimitedAfterRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"success":false,"error":"rate limit exceeded","code":"rate_limited"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Open(context.Background())
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.EqualValues(t, 3, hits.Load())
}

func TestWritesAreNotRetriedOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Write(context.Background(), "hdl_x", []byte("once"))
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.EqualValues(t, 1, hits.Load())
}

func TestContextCanceled(t *testing.T) {
	srv := newTestServer(t, session.DefaultConfig())
	c := newTestClient(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Open(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAPIErrorUnwrap(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"busy", device.ErrBusy},
		{"overflow", device.ErrOverflow},
		{"out_of_memory", device.ErrOutOfMemory},
		{"fault", device.ErrFault},
		{"invalid_argument", device.ErrInvalidArgument},
		{"closed", device.ErrClosed},
		{"not_found", device.ErrNotFound},
		{"rate_limited", ErrRateLimited},
	}
	for _, tt := range tests {
		err := &APIError{Status: 400, Code: tt.code, Message: "x"}
		assert.ErrorIs(t, err, tt.want, tt.code)
	}
	assert.NoError(t, (&APIError{Code: "internal"}).Unwrap())
}
