package device

import (
	"fmt"
	"strings"
)

// Capacity is the number of bytes a single queue instance can hold.
const Capacity = 1000

// Mode selects how opened handles share the queue.
type Mode int32

const (
	ModeShared Mode = iota
	ModeExclusive
	ModePerHandle
)

// Control commands accepted by the mode control call.
const (
	CmdShared    uint32 = 0
	CmdExclusive uint32 = 1
	CmdPerHandle uint32 = 2
)

// String returns the string representation of the mode
func (m Mode) String() string {
	switch m {
	case ModeShared:
		return "shared"
	case ModeExclusive:
		return "exclusive"
	case ModePerHandle:
		return "per_handle"
	default:
		return fmt.Sprintf("mode(%d)", int32(m))
	}
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m >= ModeShared && m <= ModePerHandle
}

// Command returns the control command that selects m.
func (m Mode) Command() uint32 {
	return uint32(m)
}

// ModeFromCommand maps a control command to a Mode.
func ModeFromCommand(cmd uint32) (Mode, error) {
	switch cmd {
	case CmdShared:
		return ModeShared, nil
	case CmdExclusive:
		return ModeExclusive, nil
	case CmdPerHandle:
		return ModePerHandle, nil
	default:
		return ModeShared, fmt.Errorf("%w: unknown control command %d", ErrInvalidArgument, cmd)
	}
}

// ParseMode parses a mode name as used in configuration ("shared",
// "exclusive", "per_handle"). Dashes and case are ignored.
func ParseMode(s string) (Mode, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "", "shared", "default":
		return ModeShared, nil
	case "exclusive", "single":
		return ModeExclusive, nil
	case "per_handle", "perhandle", "multi":
		return ModePerHandle, nil
	default:
		return ModeShared, fmt.Errorf("%w: unknown mode %q", ErrInvalidArgument, s)
	}
}
