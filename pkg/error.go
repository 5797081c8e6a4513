package pkg

import (
	"errors"
	"fmt"
)

// Storage errors.
var (
	// ErrPartitionNotFound indicates no partition matched the data partition
	// type and label.
	ErrPartitionNotFound = errors.New("data partition not found")

	// ErrMountFailed indicates the filesystem could not be mounted, either
	// because it is corrupt or because of an I/O fault.
	ErrMountFailed = errors.New("mount failed")

	// ErrUnmountFailed indicates the filesystem could not be detached.
	ErrUnmountFailed = errors.New("unmount failed")

	// ErrNotMounted indicates the operation needs a mounted filesystem.
	ErrNotMounted = errors.New("storage not mounted")

	// ErrWearLevel indicates wear leveling could not be attached.
	ErrWearLevel = errors.New("wear leveling attach failed")

	// ErrOutOfRange indicates a block address past the end of the volume.
	ErrOutOfRange = errors.New("block address out of range")

	// ErrEraseRequired indicates a flash program over bits that were not erased.
	ErrEraseRequired = errors.New("flash write requires erase")
)

// Audio errors.
var (
	// ErrInvalidConfig indicates an audio configuration outside the fixed
	// contract or inconsistent DMA sizing.
	ErrInvalidConfig = errors.New("invalid audio config")

	// ErrChannelAllocationFailed indicates the hardware channel could not be
	// allocated or enabled.
	ErrChannelAllocationFailed = errors.New("audio channel allocation failed")

	// ErrChannelNotReady indicates a relay before the channel was configured
	// and enabled.
	ErrChannelNotReady = errors.New("audio channel not ready")

	// ErrAlreadyConfigured indicates a second one-time configuration.
	ErrAlreadyConfigured = errors.New("already configured")

	// ErrUnderrun indicates the hardware accepted fewer bytes than offered.
	ErrUnderrun = errors.New("audio underrun")
)

// Console errors.
var (
	// ErrUnknownCommand indicates the console line named no registered command.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrEmptyLine indicates a console line with no command.
	ErrEmptyLine = errors.New("empty command line")
)

// Transport and descriptor errors.
var (
	// ErrTransportInit indicates the USB transport failed to initialize.
	ErrTransportInit = errors.New("transport initialization failed")

	// ErrAlreadyRunning indicates the device or transport is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the device or transport is not running.
	ErrNotRunning = errors.New("not running")

	// ErrHalted indicates the device halted and cannot be booted or started
	// again.
	ErrHalted = errors.New("device halted")

	// ErrInvalidState indicates an operation out of order, e.g. Start
	// before Boot.
	ErrInvalidState = errors.New("invalid device state")

	// ErrNoHandler indicates the transport has no registered class handler.
	ErrNoHandler = errors.New("no class handler registered")

	// ErrInvalidInterface indicates an interface number outside the
	// composite interface map.
	ErrInvalidInterface = errors.New("invalid interface")

	// ErrInvalidRequest indicates an invalid or unsupported control request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrDescriptorTooShort indicates the descriptor data is too short.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates the descriptor type does not match expected.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")

	// ErrDescriptorMismatch indicates the configuration descriptor disagrees
	// with the composite interface map.
	ErrDescriptorMismatch = errors.New("descriptor inconsistent with interface map")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")
)

// Severity classifies how an error affects the composite device.
type Severity int

// Severity values.
const (
	SeverityNone          Severity = iota // No error
	SeverityProtocolEdge                  // Redundant event, ignored
	SeverityRecoverableIO                 // Logged, device keeps running
	SeverityFatalInit                     // Halts startup
)

// String returns a string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityProtocolEdge:
		return "protocol-edge"
	case SeverityRecoverableIO:
		return "recoverable-io"
	case SeverityFatalInit:
		return "fatal-init"
	default:
		return "unknown"
	}
}

// Classify returns the severity of err. Errors wrapped in an [InitError] are
// always fatal; unknown errors are treated as recoverable.
func Classify(err error) Severity {
	if err == nil {
		return SeverityNone
	}
	var ie *InitError
	if errors.As(err, &ie) {
		return SeverityFatalInit
	}
	switch {
	case errors.Is(err, ErrPartitionNotFound),
		errors.Is(err, ErrTransportInit),
		errors.Is(err, ErrChannelAllocationFailed),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrDescriptorMismatch):
		return SeverityFatalInit
	case errors.Is(err, ErrAlreadyConfigured),
		errors.Is(err, ErrAlreadyRunning):
		return SeverityProtocolEdge
	default:
		return SeverityRecoverableIO
	}
}

// InitError records the boot stage at which initialization failed.
type InitError struct {
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *InitError) Error() string {
	return fmt.Sprintf("init %s: %v", e.Stage, e.Err)
}

// Unwrap returns the originating error.
func (e *InitError) Unwrap() error {
	return e.Err
}
