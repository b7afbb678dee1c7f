package errors

import (
	"context"
	stderrs "errors"
	"io"
	"net"
	"syscall"
)

// IsTransientNet reports whether err is a network class failure that a bounded retry may cure
// Only connection resets, refusals, EOFs and timeouts qualify, plus errors already tagged Unavailable
// or TooManyRequests by an adapter. Caller cancellation never does.
func IsTransientNet(err error) bool {
	if err == nil {
		return false
	}
	if stderrs.Is(err, context.Canceled) {
		return false
	}
	switch CodeOf(err) {
	case ErrorCodeUnavailable, ErrorCodeTooManyRequests:
		return true
	case ErrorCodeUnknown:
	default:
		return false
	}
	if stderrs.Is(err, context.DeadlineExceeded) ||
		stderrs.Is(err, io.EOF) ||
		stderrs.Is(err, io.ErrUnexpectedEOF) ||
		stderrs.Is(err, syscall.ECONNRESET) ||
		stderrs.Is(err, syscall.ECONNREFUSED) ||
		stderrs.Is(err, syscall.EPIPE) {
		return true
	}
	var ne net.Error
	if stderrs.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	return stderrs.As(err, &oe)
}
