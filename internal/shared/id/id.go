// Package id provides identifier generation for device handles and requests.
//
// Handle IDs are prefixed ULIDs ("hdl_01J...") so that they sort by open time
// and read well in logs. Request IDs are used only for correlation and reuse
// the same format with a different prefix.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Typed IDs
// ============================================================================

// HandleID identifies an open device handle
type HandleID string

// RequestID identifies an adapter request
type RequestID string

const (
	HandlePrefix  = "hdl"
	RequestPrefix = "req"
)

func (id HandleID) String() string  { return string(id) }
func (id RequestID) String() string { return string(id) }

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a "prefix_ULID" string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewHandleID generates a new handle ID
func (g *Generator) NewHandleID() HandleID {
	return HandleID(g.GenerateWithPrefix(HandlePrefix))
}

// NewHandleID generates a handle ID from the default generator
func NewHandleID() HandleID {
	return Default().NewHandleID()
}

// NewRequestID generates a request ID from the default generator
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// ============================================================================
// Parsing
// ============================================================================

// ParseHandleID validates s as a handle ID
func ParseHandleID(s string) (HandleID, error) {
	rest, ok := strings.CutPrefix(s, HandlePrefix+"_")
	if !ok {
		return "", fmt.Errorf("handle id %q: missing %q prefix", s, HandlePrefix)
	}
	if _, err := ulid.ParseStrict(rest); err != nil {
		return "", fmt.Errorf("handle id %q: %w", s, err)
	}
	return HandleID(s), nil
}

// Timestamp extracts the creation time embedded in a prefixed ID
func Timestamp(s string) (time.Time, error) {
	_, rest, ok := strings.Cut(s, "_")
	if !ok {
		rest = s
	}
	parsed, err := ulid.Parse(rest)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
