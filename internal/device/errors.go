package device

import "errors"

var (
	// ErrBusy is returned by open in exclusive mode while another handle is open.
	ErrBusy = errors.New("device busy")
	// ErrOverflow is returned by a write that would exceed the queue capacity.
	ErrOverflow = errors.New("queue overflow")
	// ErrOutOfMemory is returned when a queue instance or a queued byte cannot be allocated.
	ErrOutOfMemory = errors.New("out of memory")
	// ErrFault is returned when transferring data to or from the caller fails.
	ErrFault = errors.New("bad address")
	// ErrInvalidArgument is returned for unknown control commands.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrClosed is returned for operations on a closed handle.
	ErrClosed = errors.New("handle closed")
	// ErrNotFound is returned when a handle ID does not name an open handle.
	ErrNotFound = errors.New("handle not found")
)

// Code returns a short stable name for the kind of err, "ok" for nil and
// "internal" for errors outside the taxonomy.
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrOverflow):
		return "overflow"
	case errors.Is(err, ErrOutOfMemory):
		return "out_of_memory"
	case errors.Is(err, ErrFault):
		return "fault"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
