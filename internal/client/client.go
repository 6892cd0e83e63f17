package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/queuedev/internal/infrastructure/resilience"
)

// headerBytesRead mirrors the server's read count header or trailer
const headerBytesRead = "X-Bytes-Read"

// Config configures a Client
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Retries bounds retries of requests the server never received
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// RateLimit caps outgoing requests per second; zero is unlimited
	RateLimit float64
	// BreakerThreshold is the consecutive transport failures that open the breaker
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
	Logger           *zap.Logger
}

// DefaultConfig returns client defaults for a local server
func DefaultConfig() Config {
	return Config{
		BaseURL:          "http://localhost:8000",
		Timeout:          10 * time.Second,
		Retries:          2,
		RetryWaitMin:     100 * time.Millisecond,
		RetryWaitMax:     2 * time.Second,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// Client talks to a queue device server
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// Handle is an open device handle as seen by the client
type Handle struct {
	ID   string `json:"handle"`
	Mode string `json:"mode"`
}

// New creates a client with retries, rate limiting and a circuit breaker
func New(cfg Config) *Client {
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = defaults.BreakerThreshold
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = defaults.BreakerTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("client")

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = max(cfg.Retries, 0)
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.CheckRetry = retryPolicy
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = nil

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "queuedev-client/0.1")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(int(cfg.RateLimit), 1))
	}

	threshold := cfg.BreakerThreshold
	breaker := resilience.New("queuedev", resilience.Settings{
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// the server answering with an error is still a healthy server
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			return err == nil || errors.As(err, &apiErr)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		resty:   restyClient,
		limiter: limiter,
		breaker: breaker,
		logger:  logger,
	}
}

// BreakerState reports the state of the client's circuit breaker
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// Open opens a handle under the server's current mode
func (c *Client) Open(ctx context.Context) (Handle, error) {
	var out Handle
	_, err := c.do(ctx, "open", func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&out).Post("/device/open")
	})
	if err != nil {
		return Handle{}, err
	}
	return out, nil
}

// Close closes a handle. The server discards whatever its queue held.
func (c *Client) Close(ctx context.Context, handle string) error {
	_, err := c.do(ctx, "close", func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", handle).Delete("/device/handles/{id}")
	})
	return err
}

// Write appends p to the handle's queue and returns how many bytes the
// server committed, which is also reported when err is non-nil.
func (c *Client) Write(ctx context.Context, handle string, p []byte) (int, error) {
	var out struct {
		Written int `json:"written"`
	}
	_, err := c.do(ctx, "write", func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", handle).
			SetHeader("Content-Type", "application/octet-stream").
			SetBody(p).
			SetResult(&out).
			Post("/device/handles/{id}/write")
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr.Count, err
		}
		return 0, err
	}
	return out.Written, nil
}

// Read removes up to limit bytes from the handle's queue
func (c *Client) Read(ctx context.Context, handle string, limit int) ([]byte, error) {
	resp, err := c.do(ctx, "read", func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", handle).
			SetQueryParam("max", strconv.Itoa(limit)).
			Get("/device/handles/{id}/read")
	})
	if err != nil {
		return nil, err
	}

	data := resp.Body()
	if n, ok := bytesRead(resp); ok && n != len(data) {
		return data, fmt.Errorf("read %s: server sent %d of %d bytes", handle, len(data), n)
	}
	return data, nil
}

// bytesRead reports the server's read count, sent as a trailer once the body
// is streamed or as a header when nothing was read.
func bytesRead(resp *resty.Response) (int, bool) {
	raw := resp.Header().Get(headerBytesRead)
	if raw == "" && resp.RawResponse != nil {
		raw = resp.RawResponse.Trailer.Get(headerBytesRead)
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

// Control switches the mode used by subsequent opens and returns the mode
// now in effect
func (c *Client) Control(ctx context.Context, cmd uint32) (string, error) {
	var out struct {
		Mode string `json:"mode"`
	}
	_, err := c.do(ctx, "control", func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]uint32{"command": cmd}).
			SetResult(&out).
			Post("/device/control")
	})
	if err != nil {
		return "", err
	}
	return out.Mode, nil
}

// Stats returns the server's device and traffic statistics as reported
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	_, err := c.do(ctx, "stats", func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&out).Get("/device/stats")
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the server is up
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, "health", func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/health")
	})
	return err
}

func (c *Client) do(ctx context.Context, op string, send func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	start := time.Now()
	resp, err := resilience.Do(c.breaker, func() (*resty.Response, error) {
		resp, err := send(c.resty.R().SetContext(ctx))
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return resp, newAPIError(resp)
		}
		return resp, nil
	})

	c.logger.Debug("Device request",
		zap.String("op", op),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)
	if err != nil {
		return resp, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

func newAPIError(resp *resty.Response) *APIError {
	var body struct {
		Error   string `json:"error"`
		Code    string `json:"code"`
		Written *int   `json:"written"`
		Read    *int   `json:"read"`
	}
	apiErr := &APIError{Status: resp.StatusCode()}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		apiErr.Message = http.StatusText(resp.StatusCode())
		return apiErr
	}

	apiErr.Code = body.Code
	apiErr.Message = body.Error
	switch {
	case body.Written != nil:
		apiErr.Count = *body.Written
	case body.Read != nil:
		apiErr.Count = *body.Read
	}
	return apiErr
}

// retryPolicy retries only requests the server cannot have acted on: failed
// dials and rate-limit rejections. Anything else could duplicate a write.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		var opErr *net.OpError
		return errors.As(err, &opErr) && opErr.Op == "dial", nil
	}
	return resp.StatusCode == http.StatusTooManyRequests, nil
}
