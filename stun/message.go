package stun

import (
	"encoding/binary"
	"fmt"
)

// Message is one decoded STUN protocol unit. A Message lives for the
// duration of handling a single datagram; nothing in this package persists
// state across messages.
type Message struct {
	Class         MessageClass
	Method        uint16
	TransactionID TransactionID

	// Attributes in construction order. Encode preserves this order.
	Attributes []Attribute
}

// NewBindingRequest creates a Binding Request with the given transaction ID.
func NewBindingRequest(tid TransactionID) *Message {
	return &Message{
		Class:         ClassRequest,
		Method:        MethodBinding,
		TransactionID: tid,
	}
}

// AddAttribute appends an attribute to the message.
func (m *Message) AddAttribute(attr Attribute) {
	m.Attributes = append(m.Attributes, attr)
}

// Decode parses a raw datagram into a Message.
//
// The magic cookie and the two zero type bits are checked before anything
// else; they are what distinguish STUN from other UDP traffic sharing the
// port. Any failure means the datagram is not a (whole, valid) STUN message
// and must be dropped without a response.
func Decode(data []byte) (*Message, error) {
	if len(data) < HeaderSize {
		return nil, newMessageError("decode", ErrTooShort)
	}

	// The top two bits of the first byte are always zero in STUN.
	if data[0]&0xC0 != 0 {
		return nil, newMessageError("decode", ErrNotSTUN)
	}

	if binary.BigEndian.Uint32(data[4:8]) != MagicCookie {
		return nil, newMessageError("decode", ErrBadMagicCookie)
	}

	length := binary.BigEndian.Uint16(data[2:4])
	if len(data) != HeaderSize+int(length) {
		return nil, newMessageError("decode", ErrLengthMismatch)
	}

	method, class := splitMessageType(binary.BigEndian.Uint16(data[0:2]))

	msg := &Message{
		Class:  class,
		Method: method,
	}
	copy(msg.TransactionID[:], data[8:HeaderSize])

	if err := msg.decodeAttributes(data[HeaderSize:]); err != nil {
		return nil, err
	}
	return msg, nil
}

// decodeAttributes walks the padded TLV attribute section. Padding bytes
// are skipped, never interpreted.
func (m *Message) decodeAttributes(section []byte) error {
	offset := 0
	for offset < len(section) {
		if len(section)-offset < 4 {
			return newMessageError("decode", ErrTruncatedAttribute)
		}

		typeCode := binary.BigEndian.Uint16(section[offset : offset+2])
		valueLen := int(binary.BigEndian.Uint16(section[offset+2 : offset+4]))
		offset += 4

		if valueLen > len(section)-offset {
			return newMessageError("decode", ErrTruncatedAttribute)
		}

		attr, err := decodeAttribute(typeCode, section[offset:offset+valueLen], m.TransactionID)
		if err != nil {
			return newMessageError("decode attribute", err)
		}
		m.Attributes = append(m.Attributes, attr)

		// Skip to the next 32-bit boundary.
		offset += (valueLen + 3) &^ 3
	}
	return nil
}

// Encode serializes the message. The header length field is recomputed from
// the attributes actually encoded; attribute values are padded with zeros to
// 4-byte boundaries.
//
// Encoding a structurally valid Message never fails. An attribute value that
// cannot be encoded (for example an address attribute holding a malformed
// IP) is an invariant violation by the caller, not a runtime condition, and
// panics.
func (m *Message) Encode() []byte {
	values := make([][]byte, len(m.Attributes))
	length := 0
	for i, attr := range m.Attributes {
		value, err := attr.marshalValue(m.TransactionID)
		if err != nil {
			panic(fmt.Sprintf("stun: encode of self-constructed attribute 0x%04x: %v", attr.TypeCode(), err))
		}
		values[i] = value
		length += 4 + ((len(value) + 3) &^ 3)
	}

	out := make([]byte, HeaderSize+length)
	binary.BigEndian.PutUint16(out[0:2], messageType(m.Method, m.Class))
	binary.BigEndian.PutUint16(out[2:4], uint16(length))
	binary.BigEndian.PutUint32(out[4:8], MagicCookie)
	copy(out[8:HeaderSize], m.TransactionID[:])

	offset := HeaderSize
	for i, attr := range m.Attributes {
		value := values[i]
		binary.BigEndian.PutUint16(out[offset:offset+2], attr.TypeCode())
		binary.BigEndian.PutUint16(out[offset+2:offset+4], uint16(len(value)))
		copy(out[offset+4:], value)
		// Padding bytes are already zero from allocation.
		offset += 4 + ((len(value) + 3) &^ 3)
	}

	return out
}
