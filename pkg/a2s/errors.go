package a2s

import (
	"errors"
	"fmt"
	"net"
)

var (
	// ErrInvalidResponse reports malformed or unrecognized response framing.
	ErrInvalidResponse = errors.New("invalid server response")

	// ErrInvalidServerType reports an unknown server type byte in an info response.
	ErrInvalidServerType = errors.New("invalid server type received")

	// ErrInvalidServerEnvironment reports an unknown environment byte in an info response.
	ErrInvalidServerEnvironment = errors.New("invalid server environment received")

	// ErrTruncated reports a fixed width read past the end of a payload.
	ErrTruncated = errors.New("unexpected end of payload")

	// ErrDatagramTooLarge reports a datagram exceeding the transport buffer size.
	ErrDatagramTooLarge = errors.New("datagram exceeds buffer size")

	// ErrEmptyAddress is returned by New when no host is given.
	ErrEmptyAddress = errors.New("empty server address")
)

// NotImplementedError reports a protocol feature this client does not handle.
type NotImplementedError struct {
	Feature string
}

func (e *NotImplementedError) Error() string {
	return "not implemented: " + e.Feature
}

// HeaderError reports an unexpected response type byte.
type HeaderError struct {
	Expected byte
	Found    byte
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("invalid header: expected 0x%02X, found 0x%02X", e.Expected, e.Found)
}

// AnswerIDError reports a fragment belonging to another multi-packet answer.
type AnswerIDError struct {
	Expected int32
	Found    int32
}

func (e *AnswerIDError) Error() string {
	return fmt.Sprintf("unexpected answer id: expected %d, found %d", e.Expected, e.Found)
}

// TransportError wraps dial, send and receive failures of the underlying transport.
type TransportError struct {
	Err error
	Op  string
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a receive deadline expiring.
func (e *TransportError) Timeout() bool {
	var netErr net.Error
	if errors.As(e.Err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// IsTimeout reports whether err carries a transport timeout.
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Timeout()
}

func truncated(need, remaining int) error {
	return fmt.Errorf("%w: need %d bytes, %d remaining", ErrTruncated, need, remaining)
}
