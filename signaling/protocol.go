// Package signaling implements a WebSocket rendezvous service for peers
// that have discovered their reflexive addresses and need to exchange them.
// Peers gather in rooms identified by short shareable codes; everyone in a
// room learns every other member's observed public address, which is the
// raw material for UDP hole punching.
package signaling

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Client message types.
const (
	TypeCreateRoom = "create_room"
	TypeJoinRoom   = "join_room"
	TypeLeaveRoom  = "leave_room"
)

// Server message types.
const (
	TypeRoomCreated = "room_created"
	TypeRoomJoined  = "room_joined"
	TypePeerJoined  = "peer_joined"
	TypeError       = "error"
)

// ClientMessage is the envelope for everything a client sends.
type ClientMessage struct {
	Type string `json:"type"`

	// Code identifies the room for join_room.
	Code string `json:"code,omitempty"`
}

// ServerMessage is the envelope for everything the server sends. The fields
// populated depend on Type.
type ServerMessage struct {
	Type string `json:"type"`

	// Code and YourID accompany room_created and room_joined.
	Code   string `json:"code,omitempty"`
	YourID string `json:"your_id,omitempty"`

	// Peers lists the existing room members on room_joined.
	Peers []PeerInfo `json:"peers,omitempty"`

	// Peer describes the newcomer on peer_joined.
	Peer *PeerInfo `json:"peer,omitempty"`

	// Message carries the description on error.
	Message string `json:"message,omitempty"`
}

// PeerInfo describes one room member to the others.
type PeerInfo struct {
	ID string `json:"id"`

	// PublicAddr is the peer's observed remote address ("ip:port"), empty
	// when unknown.
	PublicAddr string `json:"public_addr,omitempty"`
}

// newErrorMessage builds an error envelope.
func newErrorMessage(text string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: text}
}

const (
	roomCodeChars = "abcdefghijklmnopqrstuvwxyz0123456789"
	roomCodeLen   = 8
)

// GenerateRoomCode returns a random 8-character room code over [a-z0-9].
func GenerateRoomCode() (string, error) {
	buf := make([]byte, roomCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate room code: %w", err)
	}
	for i, b := range buf {
		buf[i] = roomCodeChars[int(b)%len(roomCodeChars)]
	}
	return string(buf), nil
}

// GeneratePeerID returns a random peer ID of the form "peer_" followed by
// 8 hex characters.
func GeneratePeerID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate peer ID: %w", err)
	}
	return "peer_" + hex.EncodeToString(buf), nil
}
