// Package server implements a stateless UDP STUN Binding server. Each
// datagram is a pure function of (bytes, sender address) to an optional
// response; no transaction or session state survives a datagram.
package server

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/natbeacon/stun"
)

// HandleDatagram is the per-datagram entry point: decode, validate, build
// the response, encode. It returns nil when nothing should be sent back.
//
// Unparseable input is dropped silently rather than answered; responding to
// garbage would turn the server into a traffic reflector. Responses and
// indications arriving at a server are likewise ignored.
func HandleDatagram(data []byte, sender *net.UDPAddr) []byte {
	msg, err := stun.Decode(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"remote_addr": sender.String(),
			"error":       err.Error(),
			"component":   "server",
		}).Debug("Dropping unparseable datagram")
		return nil
	}

	if msg.Class != stun.ClassRequest {
		logrus.WithFields(logrus.Fields{
			"remote_addr": sender.String(),
			"class":       msg.Class.String(),
			"component":   "server",
		}).Debug("Ignoring non-request message")
		return nil
	}

	if msg.Method != stun.MethodBinding {
		logrus.WithFields(logrus.Fields{
			"remote_addr": sender.String(),
			"method":      msg.Method,
			"component":   "server",
		}).Debug("Answering unsupported method with 400")
		return buildErrorResponse(msg).Encode()
	}

	return buildBindingSuccess(msg, sender).Encode()
}

// buildBindingSuccess constructs the success response: the request's
// transaction ID and exactly one XOR-MAPPED-ADDRESS carrying the sender's
// observed transport address.
func buildBindingSuccess(req *stun.Message, sender *net.UDPAddr) *stun.Message {
	resp := &stun.Message{
		Class:         stun.ClassSuccessResponse,
		Method:        stun.MethodBinding,
		TransactionID: req.TransactionID,
	}
	resp.AddAttribute(stun.XORMappedAddress{
		IP:   sender.IP,
		Port: uint16(sender.Port),
	})
	return resp
}

// buildErrorResponse constructs the 400 "Bad Request" error response for a
// well-formed request whose method the server does not implement.
func buildErrorResponse(req *stun.Message) *stun.Message {
	resp := &stun.Message{
		Class:         stun.ClassErrorResponse,
		Method:        stun.MethodBinding,
		TransactionID: req.TransactionID,
	}
	resp.AddAttribute(stun.ErrorCode{
		Class:  4,
		Number: 0,
		Reason: "Bad Request",
	})
	return resp
}
