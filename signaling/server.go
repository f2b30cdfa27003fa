package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultAddr is the default signaling listen address, one port above the
// STUN endpoint.
const DefaultAddr = "0.0.0.0:3479"

const (
	// pingInterval is how often the server pings each connection.
	pingInterval = 30 * time.Second

	// pongWait is how long after a ping the peer may take to answer
	// before the connection is considered dead.
	pongWait = pingInterval + 10*time.Second

	// writeWait bounds a single WebSocket write.
	writeWait = 10 * time.Second

	// maxMessageSize bounds inbound messages; the protocol envelope is
	// tiny.
	maxMessageSize = 4096

	// outboxSize buffers per-connection outbound messages so room
	// notifications never block the manager.
	outboxSize = 16
)

// Server accepts WebSocket connections and mediates room membership.
type Server struct {
	rooms    *RoomManager
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a signaling server with an empty room set.
func NewServer() *Server {
	return &Server{
		rooms: NewRoomManager(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Peers connect from arbitrary origins (CLIs, apps); the
			// room code is the admission token.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Rooms exposes the room manager, mainly for stats.
func (s *Server) Rooms() *RoomManager {
	return s.rooms
}

// Handler returns the HTTP handler serving the WebSocket endpoint at /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// ListenAndServe serves the signaling endpoint on addr, blocking until
// Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket writes manage their own deadlines
	}

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"addr":      addr,
		"component": "signaling",
	}).Info("Signaling server listening")

	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server. Open WebSocket connections
// are closed by their read loops failing.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// handleWS upgrades the connection and runs its lifecycle: a writer
// goroutine draining the outbox and pinging, and a read loop processing
// client messages. On any exit the peer leaves its room.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"remote_addr": r.RemoteAddr,
			"error":       err.Error(),
			"component":   "signaling",
		}).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	logrus.WithFields(logrus.Fields{
		"remote_addr": r.RemoteAddr,
		"component":   "signaling",
	}).Info("WebSocket connection established")

	outbox := make(chan ServerMessage, outboxSize)
	done := make(chan struct{})
	go s.writeLoop(conn, outbox, done)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	peerID := s.readLoop(conn, r.RemoteAddr, outbox)

	close(done)
	if peerID != "" {
		s.rooms.Leave(peerID)
	}

	logrus.WithFields(logrus.Fields{
		"remote_addr": r.RemoteAddr,
		"component":   "signaling",
	}).Info("WebSocket disconnected")
}

// writeLoop owns all writes on the connection: outbox drains and keepalive
// pings. gorilla/websocket permits only one concurrent writer, which is why
// everything funnels through here.
func (s *Server) writeLoop(conn *websocket.Conn, outbox <-chan ServerMessage, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-outbox:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

// readLoop processes client messages until the connection drops, returning
// the peer ID the connection ended up with (empty if it never entered a
// room).
func (s *Server) readLoop(conn *websocket.Conn, remoteAddr string, outbox chan<- ServerMessage) string {
	var peerID string

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logrus.WithFields(logrus.Fields{
					"remote_addr": remoteAddr,
					"error":       err.Error(),
					"component":   "signaling",
				}).Debug("WebSocket read error")
			}
			return peerID
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			trySend(outbox, newErrorMessage("invalid message: "+err.Error()))
			continue
		}

		peerID = s.handleClientMessage(msg, peerID, remoteAddr, outbox)
	}
}

// handleClientMessage applies one client message and returns the
// connection's (possibly updated) peer ID.
func (s *Server) handleClientMessage(msg ClientMessage, peerID, remoteAddr string, outbox chan<- ServerMessage) string {
	switch msg.Type {
	case TypeCreateRoom:
		code, newID, err := s.rooms.Create(remoteAddr, outbox)
		if err != nil {
			trySend(outbox, newErrorMessage(err.Error()))
			return peerID
		}
		trySend(outbox, ServerMessage{Type: TypeRoomCreated, Code: code, YourID: newID})
		return newID

	case TypeJoinRoom:
		newID, peers, err := s.rooms.Join(msg.Code, remoteAddr, outbox)
		if err != nil {
			trySend(outbox, newErrorMessage(err.Error()))
			return peerID
		}
		trySend(outbox, ServerMessage{Type: TypeRoomJoined, Code: msg.Code, YourID: newID, Peers: peers})
		return newID

	case TypeLeaveRoom:
		if peerID != "" {
			s.rooms.Leave(peerID)
		}
		return ""

	default:
		trySend(outbox, newErrorMessage("unknown message type: "+msg.Type))
		return peerID
	}
}

// trySend enqueues without blocking. A full outbox means the writer is gone
// or the peer is hopelessly slow; either way the read loop must not stall.
func trySend(outbox chan<- ServerMessage, msg ServerMessage) {
	select {
	case outbox <- msg:
	default:
	}
}
