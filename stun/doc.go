// Package stun implements the subset of RFC 5389 needed for server-reflexive
// address discovery: the binary message codec, the attribute codec with the
// XOR-MAPPED-ADDRESS obfuscation transform, and a UDP Binding client.
//
// The codec is a pure byte-level layer with no network dependencies. Servers
// build on it through the server package; clients through Client.
//
// Example:
//
//	msg, err := stun.Decode(datagram)
//	if err != nil {
//	    // not a STUN packet, drop it
//	}
//	if msg.Class == stun.ClassRequest && msg.Method == stun.MethodBinding {
//	    // answer with XOR-MAPPED-ADDRESS
//	}
package stun
