package signaling

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrRoomNotFound indicates a join against a room code that does not exist
// (or whose room has already emptied out and been removed).
var ErrRoomNotFound = errors.New("room not found")

// peer is one connected room member. The outbox channel decouples room
// bookkeeping from the WebSocket write path; the connection's writer
// goroutine drains it.
type peer struct {
	info   PeerInfo
	outbox chan<- ServerMessage
}

// room is a set of peers that should learn each other's addresses.
type room struct {
	peers map[string]peer
}

// RoomManager owns all rooms. A single mutex guards the maps; room
// operations are small map manipulations, so contention is not a concern
// at signaling scale.
type RoomManager struct {
	mu        sync.Mutex
	rooms     map[string]*room
	peerRooms map[string]string // peer ID -> room code
}

// NewRoomManager creates an empty room manager.
func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms:     make(map[string]*room),
		peerRooms: make(map[string]string),
	}
}

// Create makes a new room with the caller as its first member, returning
// the room code and the caller's assigned peer ID.
func (m *RoomManager) Create(publicAddr string, outbox chan<- ServerMessage) (code, peerID string, err error) {
	code, err = GenerateRoomCode()
	if err != nil {
		return "", "", err
	}
	peerID, err = GeneratePeerID()
	if err != nil {
		return "", "", err
	}

	member := peer{
		info:   PeerInfo{ID: peerID, PublicAddr: publicAddr},
		outbox: outbox,
	}

	m.mu.Lock()
	m.rooms[code] = &room{peers: map[string]peer{peerID: member}}
	m.peerRooms[peerID] = code
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"room_code": code,
		"peer_id":   peerID,
		"component": "signaling",
	}).Info("Room created")
	return code, peerID, nil
}

// Join adds the caller to an existing room. Existing members are notified
// of the newcomer; the returned list describes the members present before
// the join so the newcomer can reach out to each of them.
func (m *RoomManager) Join(code, publicAddr string, outbox chan<- ServerMessage) (peerID string, existing []PeerInfo, err error) {
	peerID, err = GeneratePeerID()
	if err != nil {
		return "", nil, err
	}

	newcomer := PeerInfo{ID: peerID, PublicAddr: publicAddr}

	m.mu.Lock()
	r, ok := m.rooms[code]
	if !ok {
		m.mu.Unlock()
		return "", nil, ErrRoomNotFound
	}

	existing = make([]PeerInfo, 0, len(r.peers))
	notification := ServerMessage{Type: TypePeerJoined, Peer: &newcomer}
	for _, member := range r.peers {
		existing = append(existing, member.info)
		select {
		case member.outbox <- notification:
		default:
			// Slow consumer; it will learn about the peer when it
			// reconnects. Dropping beats blocking the manager.
		}
	}

	r.peers[peerID] = peer{info: newcomer, outbox: outbox}
	m.peerRooms[peerID] = code
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"room_code": code,
		"peer_id":   peerID,
		"component": "signaling",
	}).Info("Peer joined room")
	return peerID, existing, nil
}

// Leave removes a peer from whatever room it is in. Empty rooms are
// deleted. Unknown peer IDs are ignored; Leave is called on every
// disconnect regardless of whether the peer ever joined.
func (m *RoomManager) Leave(peerID string) {
	m.mu.Lock()
	code, ok := m.peerRooms[peerID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.peerRooms, peerID)

	removed := false
	if r, exists := m.rooms[code]; exists {
		delete(r.peers, peerID)
		if len(r.peers) == 0 {
			delete(m.rooms, code)
			removed = true
		}
	}
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"room_code":    code,
		"peer_id":      peerID,
		"room_removed": removed,
		"component":    "signaling",
	}).Info("Peer left room")
}

// Stats returns the current room and peer counts.
func (m *RoomManager) Stats() (rooms, peers int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms), len(m.peerRooms)
}
