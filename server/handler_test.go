package server

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/natbeacon/stun"
)

var testSender = &net.UDPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 54321}

// rawBindingRequest is the wire form of a minimal Binding Request with an
// all-zero transaction ID.
func rawBindingRequest() []byte {
	return []byte{
		0x00, 0x01, 0x00, 0x00, // type: Binding Request, length 0
		0x21, 0x12, 0xA4, 0x42, // magic cookie
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // transaction ID
	}
}

func TestHandleDatagram_BindingRequestKnownBytes(t *testing.T) {
	resp := HandleDatagram(rawBindingRequest(), testSender)
	require.NotNil(t, resp)
	require.Len(t, resp, 32)

	// Header: Binding success response, 12 attribute bytes, same cookie
	// and transaction ID.
	assert.Equal(t, []byte{0x01, 0x01, 0x00, 0x0C}, resp[0:4])
	assert.Equal(t, []byte{0x21, 0x12, 0xA4, 0x42}, resp[4:8])
	assert.Equal(t, make([]byte, 12), resp[8:20])

	// XOR-MAPPED-ADDRESS: port 54321 ^ 0x2112 = 0xF523, address
	// 192.0.2.1 ^ cookie = E1 12 A6 43.
	assert.Equal(t, []byte{0x00, 0x20, 0x00, 0x08}, resp[20:24])
	assert.Equal(t, []byte{0x00, 0x01, 0xF5, 0x23, 0xE1, 0x12, 0xA6, 0x43}, resp[24:32])
}

func TestHandleDatagram_ResponseDecodesToSender(t *testing.T) {
	tid, err := stun.NewTransactionID()
	require.NoError(t, err)

	resp := HandleDatagram(stun.NewBindingRequest(tid).Encode(), testSender)
	require.NotNil(t, resp)

	msg, err := stun.Decode(resp)
	require.NoError(t, err)
	assert.Equal(t, stun.ClassSuccessResponse, msg.Class)
	assert.Equal(t, stun.MethodBinding, msg.Method)
	assert.Equal(t, tid, msg.TransactionID)

	addr, err := stun.FindMappedAddress(msg)
	require.NoError(t, err)
	assert.True(t, addr.IP.Equal(testSender.IP))
	assert.Equal(t, testSender.Port, addr.Port)
}

func TestHandleDatagram_IPv6Sender(t *testing.T) {
	sender := &net.UDPAddr{IP: net.ParseIP("2001:db8::7"), Port: 5555}

	tid, err := stun.NewTransactionID()
	require.NoError(t, err)

	resp := HandleDatagram(stun.NewBindingRequest(tid).Encode(), sender)
	require.NotNil(t, resp)

	msg, err := stun.Decode(resp)
	require.NoError(t, err)

	addr, err := stun.FindMappedAddress(msg)
	require.NoError(t, err)
	assert.True(t, addr.IP.Equal(sender.IP))
	assert.Equal(t, sender.Port, addr.Port)
}

func TestHandleDatagram_UnsupportedMethod(t *testing.T) {
	tid, err := stun.NewTransactionID()
	require.NoError(t, err)

	// A well-formed request of method 0x002 (a TURN Allocate).
	req := &stun.Message{Class: stun.ClassRequest, Method: 0x002, TransactionID: tid}

	resp := HandleDatagram(req.Encode(), testSender)
	require.NotNil(t, resp)

	msg, err := stun.Decode(resp)
	require.NoError(t, err)
	assert.Equal(t, stun.ClassErrorResponse, msg.Class)
	assert.Equal(t, tid, msg.TransactionID)

	require.Len(t, msg.Attributes, 1)
	ec, ok := msg.Attributes[0].(stun.ErrorCode)
	require.True(t, ok)
	assert.Equal(t, uint8(4), ec.Class)
	assert.Equal(t, uint8(0), ec.Number)
	assert.Equal(t, 400, ec.Code())
	assert.Equal(t, "Bad Request", ec.Reason)
}

func TestHandleDatagram_GarbageDropped(t *testing.T) {
	assert.Nil(t, HandleDatagram(nil, testSender))
	assert.Nil(t, HandleDatagram([]byte("definitely not stun"), testSender))

	// Valid length but wrong cookie.
	req := rawBindingRequest()
	req[4] = 0xFF
	assert.Nil(t, HandleDatagram(req, testSender))

	// Shorter than a header.
	assert.Nil(t, HandleDatagram(rawBindingRequest()[:19], testSender))
}

func TestHandleDatagram_NonRequestsIgnored(t *testing.T) {
	tid, err := stun.NewTransactionID()
	require.NoError(t, err)

	for _, class := range []stun.MessageClass{
		stun.ClassIndication,
		stun.ClassSuccessResponse,
		stun.ClassErrorResponse,
	} {
		msg := &stun.Message{Class: class, Method: stun.MethodBinding, TransactionID: tid}
		assert.Nil(t, HandleDatagram(msg.Encode(), testSender), "class %s must be ignored", class)
	}
}

func TestHandleDatagram_ExtraAttributesStillAnswered(t *testing.T) {
	tid, err := stun.NewTransactionID()
	require.NoError(t, err)

	req := stun.NewBindingRequest(tid)
	req.AddAttribute(stun.UnknownAttribute{Code: 0x8022, Value: []byte("client/1.0")})

	resp := HandleDatagram(req.Encode(), testSender)
	require.NotNil(t, resp)

	msg, err := stun.Decode(resp)
	require.NoError(t, err)
	assert.Equal(t, stun.ClassSuccessResponse, msg.Class)
	// Exactly one attribute in the answer regardless of what came in.
	assert.Len(t, msg.Attributes, 1)
}
