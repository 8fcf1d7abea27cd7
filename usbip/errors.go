package usbip

import (
	"golang.org/x/sys/unix"

	"github.com/efficientgo/core/errors"
)

// Sentinel errors returned by the protocol engine and endpoint handlers.
// Callers compare against these with errors.Is; they are never wrapped
// themselves, only wrapped around.
var (
	ErrStall                = errors.New("endpoint stalled")
	ErrCancelled            = errors.New("transfer cancelled")
	ErrTimeout              = errors.New("transfer timed out")
	ErrNotConfigured        = errors.New("device not configured")
	ErrUnknownBusID         = errors.New("no device with that bus id")
	ErrAlreadyAttached      = errors.New("device already attached to another connection")
	ErrInvalidEndpoint      = errors.New("invalid endpoint address")
	ErrInvalidConfiguration = errors.New("invalid configuration value")
	ErrMalformedFrame       = errors.New("malformed or truncated frame")
	ErrUnknownOpCode        = errors.New("unknown operation code")
)

// statusFor maps a completion error to the errno-style negative status
// carried in RET_SUBMIT, following the conventions Linux's vhci-hcd client
// expects: 0 for success, -EPIPE for a stalled endpoint, -ETIMEDOUT for a
// handler that returns ErrTimeout, -ECONNRESET for the URB this client
// itself cancelled via CMD_UNLINK, and -EIO for any other error.
func statusFor(err error) int32 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrStall):
		return -int32(unix.EPIPE)
	case errors.Is(err, ErrCancelled):
		return -int32(unix.ECONNRESET)
	case errors.Is(err, ErrTimeout):
		return -int32(unix.ETIMEDOUT)
	default:
		return -int32(unix.EIO)
	}
}
