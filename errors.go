package zstream

import (
	"errors"
	"fmt"
)

// ErrContractViolation is wrapped by every error caused by a caller breaking
// the channel, session or pool contract. Such errors are never retried.
var ErrContractViolation = errors.New("contract violation")

var (
	ErrNegativeConsumption = contractError("bytesRead shouldn't be negative")
	ErrOverConsumption     = contractError("bytesRead exceeds the delivered span")
	ErrInvalidAtLeast      = contractError("atLeast is negative or exceeds buffer capacity")
	ErrInvalidArgument     = contractError("invalid argument")
	ErrConcurrentRead      = contractError("channel already has an outstanding reader")
	ErrConcurrentWrite     = contractError("channel already has an active producer")
	ErrSessionEnded        = contractError("read session already ended")
	ErrDoubleRelease       = contractError("buffer released twice")
	ErrViewReleased        = contractError("view used after its buffer was released")
	ErrChannelClosed       = contractError("channel is closed for writing")
)

var (
	// ErrCancelled is returned by reads on a cancelled channel.
	ErrCancelled = errors.New("channel cancelled")
	// ErrReadTimeout is returned when a wait exceeds the channel read timeout.
	// The channel itself stays open.
	ErrReadTimeout = errors.New("read timeout")
)

type contractErr struct {
	msg string
}

func contractError(msg string) error {
	return &contractErr{msg: msg}
}

func (e *contractErr) Error() string {
	return e.msg
}

func (e *contractErr) Unwrap() error {
	return ErrContractViolation
}

// StreamError is the failure latched by a producer through Channel.Fail.
type StreamError struct {
	Cause error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream failed: %v", e.Cause)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

type cancelErr struct {
	cause error
}

func (e *cancelErr) Error() string {
	if e.cause == nil {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%s: %v", ErrCancelled.Error(), e.cause)
}

func (e *cancelErr) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrCancelled}
	}
	return []error{ErrCancelled, e.cause}
}
