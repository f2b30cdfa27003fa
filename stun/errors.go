package stun

import (
	"errors"
	"fmt"
)

// Decode error taxonomy. Any of these means the datagram must be dropped
// without a response; a STUN server that answers garbage becomes a
// reflection vector.
var (
	// ErrTooShort indicates the buffer is shorter than the 20-byte header.
	ErrTooShort = errors.New("message shorter than STUN header")

	// ErrNotSTUN indicates the top two bits of the first byte are set, so
	// the packet cannot be STUN at all.
	ErrNotSTUN = errors.New("not a STUN packet")

	// ErrBadMagicCookie indicates the magic cookie field does not match.
	ErrBadMagicCookie = errors.New("invalid magic cookie")

	// ErrLengthMismatch indicates the declared message length does not
	// match the bytes actually present after the header.
	ErrLengthMismatch = errors.New("declared length does not match buffer")

	// ErrTruncatedAttribute indicates an attribute header or value extends
	// past the end of the buffer.
	ErrTruncatedAttribute = errors.New("truncated attribute")

	// ErrUnsupportedFamily indicates an address attribute carries a family
	// byte other than IPv4 (0x01) or IPv6 (0x02).
	ErrUnsupportedFamily = errors.New("unsupported address family")
)

// Client error values.
var (
	// ErrTransactionMismatch indicates a response carried a transaction ID
	// that does not match the request.
	ErrTransactionMismatch = errors.New("transaction ID mismatch")

	// ErrNoMappedAddress indicates a success response carried neither
	// XOR-MAPPED-ADDRESS nor MAPPED-ADDRESS.
	ErrNoMappedAddress = errors.New("no mapped address in response")
)

// MessageError wraps a codec failure with the operation that caused it.
type MessageError struct {
	Op  string // operation that failed: "decode", "decode attribute"
	Err error  // underlying error
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("stun %s: %v", e.Op, e.Err)
}

func (e *MessageError) Unwrap() error {
	return e.Err
}

// newMessageError creates a MessageError for the given operation.
func newMessageError(op string, err error) *MessageError {
	return &MessageError{Op: op, Err: err}
}
