package sense

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrAuth is returned when the credentials are rejected or have expired
	ErrAuth = errors.New("sense: authentication failed")

	// ErrNoMonitor is returned when the account has no monitor attached
	ErrNoMonitor = errors.New("sense: account has no monitor")

	// ErrTimeout is returned when a request does not complete in time
	ErrTimeout = errors.New("sense: request timed out")

	// ErrConnect is returned when the API cannot be reached or answers with a server error
	ErrConnect = errors.New("sense: connection failed")

	// ErrNotFound is returned when the requested resource does not exist
	ErrNotFound = errors.New("sense: not found")

	// ErrInvalidResponse is returned when a response cannot be decoded or is incomplete
	ErrInvalidResponse = errors.New("sense: invalid response")
)

// IsFatal reports whether err cannot be fixed by retrying
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrNoMonitor)
}

// IsRetryable reports whether err is transient
func IsRetryable(err error) bool {
	return err != nil && !IsFatal(err)
}

// Classify maps an error to a fetch status
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case IsFatal(err):
		return StatusFatal
	case errors.Is(err, ErrTimeout):
		return StatusTimeout
	default:
		return StatusConnection
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
