package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// Class is the retry classification of a failure.
type Class int

const (
	// ClassPermanent failures abort the retry loop immediately.
	ClassPermanent Class = iota
	// ClassTimeout failures are retried.
	ClassTimeout
	// ClassIO failures are retried.
	ClassIO
)

// String implements fmt.Stringer.
func (c Class) String() string {
	switch c {
	case ClassTimeout:
		return "timeout"
	case ClassIO:
		return "io"
	default:
		return "permanent"
	}
}

// Retryable reports whether failures of this class are retried.
func (c Class) Retryable() bool {
	return c == ClassTimeout || c == ClassIO
}

var (
	// ErrTimeout marks a failure as a timeout. Backends wrap it when a request
	// exceeded its deadline in a way the standard errors do not express.
	ErrTimeout = errors.New("backend call timed out")

	// ErrTransport marks a failure as a transient transport failure, such as
	// a 503 from the backend.
	ErrTransport = errors.New("transient transport failure")

	// ErrExhausted is returned when every attempt was used up without a
	// failure ever being recorded.
	ErrExhausted = errors.New("retry attempts exhausted")
)

// Classify decides how a failure returned by a backend call is treated.
func Classify(err error) Class {
	if err == nil {
		return ClassPermanent
	}

	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassIO
	}

	if errors.Is(err, ErrTransport) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return ClassIO
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassIO
	}

	return ClassPermanent
}
