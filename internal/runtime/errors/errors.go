package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	// ErrInvalidArgument is wrapped by every argument validation failure.
	ErrInvalidArgument    = sterrors.New("flowbus: invalid argument")
	ErrTopicRequired      = fmt.Errorf("%w: topic is required", ErrInvalidArgument)
	ErrHandlerRequired    = fmt.Errorf("%w: handler function is required", ErrInvalidArgument)
	ErrLimitExceeded      = sterrors.New("flowbus: subscriber limit exceeded")
	ErrNoMessageReceived  = sterrors.New("flowbus: no message received")
	ErrBusClosed          = sterrors.New("flowbus: bus is closed")
	ErrBusRequired        = sterrors.New("flowbus: bus is required")
	ErrStagingQueueFull   = sterrors.New("flowbus: staging queue is full")
	ErrPublisherRequired  = sterrors.New("flowbus: publisher is required")
	ErrSubscriberRequired = sterrors.New("flowbus: subscriber is required")
	ErrConfigRequired     = sterrors.New("flowbus: configuration is required")
	ErrLoggerRequired     = sterrors.New("flowbus: logger is required")
)

// ConfigValidationError wraps the joined validation failures of a Config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "flowbus: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// PanicError carries a value recovered from a subscriber together with the
// goroutine stack at the time of the panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("flowbus: subscriber panicked: %v", e.Value)
}

// Unwrap exposes the recovered value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
