package stun

import (
	"crypto/rand"
	"fmt"
)

// STUN protocol constants as defined in RFC 5389.
const (
	// MagicCookie is the fixed value distinguishing STUN packets from other
	// UDP traffic. It doubles as key material for XOR-MAPPED-ADDRESS.
	MagicCookie uint32 = 0x2112A442

	// HeaderSize is the fixed STUN header size in bytes.
	HeaderSize = 20

	// TransactionIDSize is the transaction ID size in bytes (96 bits).
	TransactionIDSize = 12
)

// MethodBinding is the only method this implementation acts upon.
const MethodBinding uint16 = 0x001

// MessageClass identifies the class of a STUN message.
type MessageClass uint8

const (
	ClassRequest         MessageClass = 0x00
	ClassIndication      MessageClass = 0x01
	ClassSuccessResponse MessageClass = 0x02
	ClassErrorResponse   MessageClass = 0x03
)

// String returns a human-readable name for the message class.
func (c MessageClass) String() string {
	switch c {
	case ClassRequest:
		return "request"
	case ClassIndication:
		return "indication"
	case ClassSuccessResponse:
		return "success response"
	case ClassErrorResponse:
		return "error response"
	default:
		return fmt.Sprintf("class(0x%02x)", uint8(c))
	}
}

// TransactionID is the 96-bit opaque value used to correlate requests and
// responses. It is echoed verbatim and never interpreted.
type TransactionID [TransactionIDSize]byte

// NewTransactionID generates a cryptographically random transaction ID.
func NewTransactionID() (TransactionID, error) {
	var id TransactionID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("failed to generate transaction ID: %w", err)
	}
	return id, nil
}

// messageType packs a method and class into the 16-bit STUN message type
// field. Per RFC 5389 the two class bits sit at fixed positions interleaved
// with the method bits rather than occupying a contiguous range:
//
//	bits 0-3  : M0-M3
//	bit 4     : C0
//	bits 5-7  : M4-M6
//	bit 8     : C1
//	bits 9-13 : M7-M11
func messageType(method uint16, class MessageClass) uint16 {
	m := method & 0x0FFF
	c := uint16(class) & 0x03

	t := m & 0x000F
	t |= (c & 0x01) << 4
	t |= (m & 0x0070) << 1
	t |= (c & 0x02) << 7
	t |= (m & 0x0F80) << 2
	return t
}

// splitMessageType decodes the 16-bit message type field into method and
// class. Inverse of messageType.
func splitMessageType(t uint16) (method uint16, class MessageClass) {
	m := t & 0x000F
	m |= (t >> 1) & 0x0070
	m |= (t >> 2) & 0x0F80

	c0 := (t >> 4) & 0x01
	c1 := (t >> 8) & 0x01
	return m, MessageClass(c0 | c1<<1)
}
