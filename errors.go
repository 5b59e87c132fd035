package fchat

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Read once the connection is closed and every
	// frame received before the close has been consumed. It is permanent.
	ErrClosed = errors.New("fchat: connection closed")

	ErrConnect   = errors.New("fchat: connect failed")
	ErrHandshake = errors.New("fchat: handshake failed")
	ErrTicket    = errors.New("fchat: ticket request failed")
)

// HandshakeReason says why identification did not complete.
type HandshakeReason int

const (
	HandshakeDisconnected HandshakeReason = iota
	HandshakeRejected
)

func (r HandshakeReason) String() string {
	switch r {
	case HandshakeDisconnected:
		return "disconnected"
	case HandshakeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// HandshakeError reports a failed identification. Code and Message carry the
// server's ERR payload when Reason is HandshakeRejected.
type HandshakeError struct {
	Reason  HandshakeReason
	Code    int
	Message string
}

func (e *HandshakeError) Error() string {
	if e.Reason == HandshakeRejected {
		return fmt.Sprintf("fchat: identification rejected with error %d: %s", e.Code, e.Message)
	}
	return "fchat: chat disconnected during identification"
}

// Is makes errors.Is(err, ErrHandshake) match any HandshakeError.
func (e *HandshakeError) Is(target error) bool { return target == ErrHandshake }
