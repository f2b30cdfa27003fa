package stun

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Attribute type codes recognized by this implementation. Everything else
// decodes to UnknownAttribute and is preserved but never acted upon.
const (
	AttrMappedAddress    uint16 = 0x0001
	AttrErrorCode        uint16 = 0x0009
	AttrXORMappedAddress uint16 = 0x0020
)

// Address family bytes used inside address attributes.
const (
	familyIPv4 byte = 0x01
	familyIPv6 byte = 0x02
)

// Attribute is one decoded STUN attribute. The set of implementations is
// closed: MappedAddress, XORMappedAddress, ErrorCode and UnknownAttribute.
// Code handling attributes type-switches over these with UnknownAttribute
// as the default arm.
type Attribute interface {
	// TypeCode returns the 16-bit attribute type code.
	TypeCode() uint16

	// marshalValue produces the attribute's wire value, without the 4-byte
	// attribute header and without padding. Unexported so the attribute set
	// stays closed.
	marshalValue(tid TransactionID) ([]byte, error)
}

// MappedAddress is the legacy MAPPED-ADDRESS attribute (0x0001). Decoded
// for compatibility with old servers; never emitted by this implementation.
type MappedAddress struct {
	IP   net.IP
	Port uint16
}

// TypeCode implements Attribute.
func (a MappedAddress) TypeCode() uint16 { return AttrMappedAddress }

func (a MappedAddress) marshalValue(_ TransactionID) ([]byte, error) {
	return marshalAddress(a.IP, a.Port, false, TransactionID{})
}

// XORMappedAddress is the XOR-MAPPED-ADDRESS attribute (0x0020): a mapped
// transport address obfuscated with the magic cookie so that NATs rewriting
// embedded literal addresses cannot corrupt it. It is the only attribute
// the server side of this package ever emits.
type XORMappedAddress struct {
	IP   net.IP
	Port uint16
}

// TypeCode implements Attribute.
func (a XORMappedAddress) TypeCode() uint16 { return AttrXORMappedAddress }

func (a XORMappedAddress) marshalValue(tid TransactionID) ([]byte, error) {
	return marshalAddress(a.IP, a.Port, true, tid)
}

// ErrorCode is the ERROR-CODE attribute (0x0009). The numeric code is
// Class*100 + Number.
type ErrorCode struct {
	Class  uint8 // hundreds digit, 3-6
	Number uint8 // 0-99
	Reason string
}

// TypeCode implements Attribute.
func (a ErrorCode) TypeCode() uint16 { return AttrErrorCode }

func (a ErrorCode) marshalValue(_ TransactionID) ([]byte, error) {
	// 2 reserved bytes, then 3 significant class bits, then the number.
	value := make([]byte, 4+len(a.Reason))
	value[2] = a.Class & 0x07
	value[3] = a.Number
	copy(value[4:], a.Reason)
	return value, nil
}

// Code returns the combined numeric error code, e.g. 400.
func (a ErrorCode) Code() int {
	return int(a.Class)*100 + int(a.Number)
}

// UnknownAttribute preserves an unrecognized attribute losslessly.
type UnknownAttribute struct {
	Code  uint16
	Value []byte
}

// TypeCode implements Attribute.
func (a UnknownAttribute) TypeCode() uint16 { return a.Code }

func (a UnknownAttribute) marshalValue(_ TransactionID) ([]byte, error) {
	return a.Value, nil
}

// decodeAttribute decodes a single attribute value. The transaction ID is
// required because the IPv6 XOR keystream includes it.
func decodeAttribute(typeCode uint16, value []byte, tid TransactionID) (Attribute, error) {
	switch typeCode {
	case AttrMappedAddress:
		ip, port, err := unmarshalAddress(value, false, tid)
		if err != nil {
			return nil, err
		}
		return MappedAddress{IP: ip, Port: port}, nil

	case AttrXORMappedAddress:
		ip, port, err := unmarshalAddress(value, true, tid)
		if err != nil {
			return nil, err
		}
		return XORMappedAddress{IP: ip, Port: port}, nil

	case AttrErrorCode:
		if len(value) < 4 {
			return nil, ErrTruncatedAttribute
		}
		return ErrorCode{
			Class:  value[2] & 0x07,
			Number: value[3],
			Reason: string(value[4:]),
		}, nil

	default:
		raw := make([]byte, len(value))
		copy(raw, value)
		return UnknownAttribute{Code: typeCode, Value: raw}, nil
	}
}

// marshalAddress encodes a (XOR-)MAPPED-ADDRESS value:
//
//	0:   reserved (zero)
//	1:   family (0x01 IPv4, 0x02 IPv6)
//	2-3: port, big-endian
//	4-:  address, 4 or 16 bytes
//
// When xored is true the port is XORed with the high 16 bits of the magic
// cookie and the address bytes with the cookie (IPv4) or the cookie
// followed by the transaction ID (IPv6). The transform is its own inverse.
func marshalAddress(ip net.IP, port uint16, xored bool, tid TransactionID) ([]byte, error) {
	if ip4 := ip.To4(); ip4 != nil {
		value := make([]byte, 8)
		value[1] = familyIPv4
		binary.BigEndian.PutUint16(value[2:4], port)
		copy(value[4:8], ip4)
		if xored {
			xorAddress(value, tid)
		}
		return value, nil
	}

	if ip16 := ip.To16(); ip16 != nil {
		value := make([]byte, 20)
		value[1] = familyIPv6
		binary.BigEndian.PutUint16(value[2:4], port)
		copy(value[4:20], ip16)
		if xored {
			xorAddress(value, tid)
		}
		return value, nil
	}

	return nil, fmt.Errorf("invalid IP address %v", ip)
}

// unmarshalAddress decodes a (XOR-)MAPPED-ADDRESS value. See marshalAddress
// for the layout.
func unmarshalAddress(value []byte, xored bool, tid TransactionID) (net.IP, uint16, error) {
	if len(value) < 4 {
		return nil, 0, ErrTruncatedAttribute
	}

	var addrLen int
	switch value[1] {
	case familyIPv4:
		addrLen = net.IPv4len
	case familyIPv6:
		addrLen = net.IPv6len
	default:
		return nil, 0, ErrUnsupportedFamily
	}

	if len(value) < 4+addrLen {
		return nil, 0, ErrTruncatedAttribute
	}

	decoded := make([]byte, 4+addrLen)
	copy(decoded, value[:4+addrLen])
	if xored {
		xorAddress(decoded, tid)
	}

	port := binary.BigEndian.Uint16(decoded[2:4])
	ip := make(net.IP, addrLen)
	copy(ip, decoded[4:])
	return ip, port, nil
}

// xorAddress applies the XOR-MAPPED-ADDRESS obfuscation in place to a wire
// value laid out as in marshalAddress. Self-inverse: the same call decodes.
func xorAddress(value []byte, tid TransactionID) {
	var cookie [4]byte
	binary.BigEndian.PutUint32(cookie[:], MagicCookie)

	// Port XORs with the high 16 bits of the cookie.
	value[2] ^= cookie[0]
	value[3] ^= cookie[1]

	// Address bytes XOR with the cookie, extended by the transaction ID
	// for the IPv6 16-byte keystream.
	for i := 4; i < len(value); i++ {
		keyIdx := i - 4
		if keyIdx < 4 {
			value[i] ^= cookie[keyIdx]
		} else {
			value[i] ^= tid[keyIdx-4]
		}
	}
}

// FindMappedAddress extracts the reflexive address from a response,
// preferring XOR-MAPPED-ADDRESS over the legacy MAPPED-ADDRESS.
func FindMappedAddress(msg *Message) (*net.UDPAddr, error) {
	var legacy *net.UDPAddr
	for _, attr := range msg.Attributes {
		switch a := attr.(type) {
		case XORMappedAddress:
			return &net.UDPAddr{IP: a.IP, Port: int(a.Port)}, nil
		case MappedAddress:
			if legacy == nil {
				legacy = &net.UDPAddr{IP: a.IP, Port: int(a.Port)}
			}
		}
	}
	if legacy != nil {
		return legacy, nil
	}
	return nil, ErrNoMappedAddress
}
