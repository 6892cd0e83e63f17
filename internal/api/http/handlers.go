package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device/session"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/shared/id"
)

// HeaderBytesRead carries the read count on a read response. It is declared
// as a trailer because the count is known only after the body is streamed.
const HeaderBytesRead = "X-Bytes-Read"

// Handlers contains all HTTP handlers
type Handlers struct {
	manager *session.Manager
	logger  *zap.Logger
}

// NewHandlers creates a new handler set. Traffic counters in /device/stats
// come from the collector attached to manager with WithMetrics.
func NewHandlers(manager *session.Manager, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		manager: manager,
		logger:  logger.Named("http"),
	}
}

// RegisterRoutes mounts the device routes on r
func (h *Handlers) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	dev := r.Group("/device")
	dev.POST("/open", h.Open)
	dev.POST("/control", h.Control)
	dev.GET("/stats", h.Stats)
	dev.DELETE("/handles/:id", h.Close)
	dev.POST("/handles/:id/write", h.Write)
	dev.GET("/handles/:id/read", h.Read)
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "queuedev",
		"version": "0.1.0",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"device": h.manager.Stats(),
	})
}

// Open opens a handle under the current mode
func (h *Handlers) Open(c *gin.Context) {
	handle, err := h.manager.Open()
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"handle":  handle.ID().String(),
		"mode":    handle.Mode().String(),
	})
}

// Close closes a handle. Closing a handle that is already gone succeeds and
// reports already_closed.
func (h *Handlers) Close(c *gin.Context) {
	hid, ok := handleParam(c)
	if !ok {
		return
	}

	err := h.manager.Close(hid)
	if err != nil && !errors.Is(err, device.ErrNotFound) {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"handle":         hid.String(),
		"already_closed": err != nil,
	})
}

// Write appends the request body to the handle's queue.
//
// The body is buffered before the queue is touched so a slow client never
// holds the queue lock. A body that fails partway still commits the bytes
// that arrived, and the response reports them as written.
func (h *Handlers) Write(c *gin.Context) {
	hid, ok := handleParam(c)
	if !ok {
		return
	}
	handle, err := h.manager.Lookup(hid)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	declared := c.Request.ContentLength
	capacity := h.manager.Capacity()

	// oversized declared bodies are rejected without reading them
	if declared > int64(capacity) {
		n, err := handle.WriteFrom(bytes.NewReader(nil), int(declared))
		respondError(c, err, gin.H{"written": n})
		return
	}

	data, rerr := io.ReadAll(io.LimitReader(c.Request.Body, int64(capacity)+1))
	count := len(data)
	var src io.Reader = bytes.NewReader(data)
	if rerr != nil {
		// ask for at least one byte past what arrived so the failure surfaces
		count = max(int(declared), len(data)+1)
		src = io.MultiReader(src, failingReader{err: rerr})
	}

	n, err := handle.WriteFrom(src, count)
	if err != nil {
		respondError(c, err, gin.H{"written": n})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"written": n,
	})
}

// Read removes up to max bytes from the handle's queue and streams them as
// the response body. Bytes leave the queue as the client connection accepts
// them; if delivery fails the rest stay queued.
func (h *Handlers) Read(c *gin.Context) {
	hid, ok := handleParam(c)
	if !ok {
		return
	}

	limit := h.manager.Capacity()
	if raw := c.Query("max"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "max must be a non-negative integer",
				"code":    device.Code(device.ErrInvalidArgument),
			})
			return
		}
		limit = min(v, limit)
	}

	handle, err := h.manager.Lookup(hid)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.Header("Trailer", HeaderBytesRead)
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)

	n, err := handle.ReadTo(c.Writer, limit)
	if err != nil && !c.Writer.Written() {
		// closed under us before anything was sent
		c.Writer.Header().Del("Trailer")
		c.Writer.Header().Del("Content-Type")
		respondError(c, err, gin.H{"read": n})
		return
	}
	c.Writer.Header().Set(HeaderBytesRead, strconv.Itoa(n))
	if err != nil {
		// the status line is already out once any byte was delivered
		h.logger.Warn("Read delivery failed",
			zap.String("handle", hid.String()),
			zap.Int("delivered", n),
			zap.Error(err),
		)
	}
}

// ControlRequest selects the device mode
type ControlRequest struct {
	Command *uint32 `json:"command" binding:"required"`
}

// Control changes the mode used by subsequent opens
func (h *Handlers) Control(c *gin.Context) {
	var req ControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    device.Code(device.ErrInvalidArgument),
		})
		return
	}

	if err := h.manager.Control(*req.Command); err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"mode":    h.manager.Mode().String(),
	})
}

// Stats returns device state and traffic counters
func (h *Handlers) Stats(c *gin.Context) {
	resp := gin.H{
		"success": true,
		"device":  h.manager.Stats(),
	}
	if metrics := h.manager.Metrics(); metrics != nil {
		resp["traffic"] = metrics.Snapshot()
		resp["uptime_seconds"] = metrics.Uptime().Seconds()
	}
	c.JSON(http.StatusOK, resp)
}

func handleParam(c *gin.Context) (id.HandleID, bool) {
	hid, err := id.ParseHandleID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    device.Code(device.ErrNotFound),
		})
		return "", false
	}
	return hid, true
}

// StatusFor maps a device error to its HTTP status
func StatusFor(err error) int {
	switch device.Code(err) {
	case "ok":
		return http.StatusOK
	case "busy":
		return http.StatusConflict
	case "overflow":
		return http.StatusInsufficientStorage
	case "out_of_memory":
		return http.StatusServiceUnavailable
	case "fault", "invalid_argument":
		return http.StatusBadRequest
	case "closed":
		return http.StatusGone
	case "not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error, extra gin.H) {
	body := gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    device.Code(err),
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(StatusFor(err), body)
}

// failingReader yields err once the buffered body is exhausted.
type failingReader struct {
	err error
}

func (r failingReader) Read([]byte) (int, error) {
	return 0, r.err
}
