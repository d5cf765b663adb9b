package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout marks an operation whose deadline elapsed before it completed.
	ErrTimeout = errors.New("operation timed out")

	// ErrCancelled marks an operation cancelled by its caller or owner.
	ErrCancelled = errors.New("operation cancelled")

	// ErrTopicRemoved is the cause carried by listeners whose topic was deleted.
	ErrTopicRemoved = errors.New("topic removed")

	// ErrUnknownTopic is returned when the broker does not know the topic.
	ErrUnknownTopic = errors.New("unknown topic")

	// ErrStaleData flags metadata served from cache after a describe timed out.
	ErrStaleData = errors.New("stale data")

	// ErrHandleClosed is returned when the connection handle was torn down.
	ErrHandleClosed = errors.New("connection handle closed")

	// ErrSessionNotRunning is returned by operations on a session that is not running.
	ErrSessionNotRunning = errors.New("session not running")

	// ErrInvalidTransition is returned when a session cannot move to the requested state.
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// ConnectivityError reports a broker that could not be reached.
type ConnectivityError struct {
	Broker  string
	Address string
	Elapsed time.Duration
	Cause   error
}

func (e *ConnectivityError) Error() string {
	if e.Elapsed > 0 {
		return fmt.Sprintf("broker %q (%s) unreachable after %s: %v", e.Broker, e.Address, e.Elapsed.Round(time.Millisecond), e.Cause)
	}
	return fmt.Sprintf("broker %q (%s) unreachable: %v", e.Broker, e.Address, e.Cause)
}

func (e *ConnectivityError) Unwrap() error { return e.Cause }

// ProtocolError is an error answered by the broker itself.
type ProtocolError struct {
	Op    string
	Code  int16
	Cause error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: broker error %d: %v", e.Op, e.Code, e.Cause)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// OperationError describes a timed out or cancelled operation.
type OperationError struct {
	Kind    OperationKind
	Broker  string
	Outcome Outcome
	Cause   error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s on %q: %v", e.Kind, e.Broker, e.Cause)
}

func (e *OperationError) Unwrap() error { return e.Cause }

// IsConnectivity reports whether err carries a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// IsProtocol reports whether err carries a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
