package server

import (
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultAddr is the default STUN listening endpoint.
const DefaultAddr = "0.0.0.0:3478"

// readTimeout is the read deadline applied on each loop iteration so the
// receive loop can notice Close without an in-flight read blocking forever.
const readTimeout = 100 * time.Millisecond

// maxDatagramSize is the largest datagram the server reads. STUN requests
// relevant here are 20 bytes plus optional attributes; 1500 covers a full
// Ethernet MTU.
const maxDatagramSize = 1500

// datagram is one unit of work handed to the worker pool.
type datagram struct {
	data   []byte
	sender *net.UDPAddr
}

// Config controls a Server. The zero value is usable: defaults are applied
// by Listen.
type Config struct {
	// Addr is the UDP listen address. Defaults to DefaultAddr.
	Addr string

	// Workers is the number of response workers. Defaults to GOMAXPROCS.
	Workers int

	// QueueSize is the work queue capacity. When the queue is full,
	// datagrams are dropped; a lost request is retransmitted by the
	// client, never by the server. Defaults to 1024.
	QueueSize int
}

// Server answers STUN Binding Requests over UDP.
//
// Handling is stateless, so the workers need no coordination among
// themselves. They do share the socket for sends: net.UDPConn documents
// that it is safe for concurrent use by multiple goroutines, and that
// guarantee is the only mutual exclusion the send path relies on.
type Server struct {
	conn    *net.UDPConn
	workers int
	queue   chan datagram

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// Listen binds a STUN server to cfg.Addr. Call Serve to start handling
// requests.
func Listen(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}

	udpAddr, err := net.ResolveUDPAddr("udp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	return &Server{
		conn:    conn,
		workers: cfg.Workers,
		queue:   make(chan datagram, cfg.QueueSize),
		closed:  make(chan struct{}),
	}, nil
}

// LocalAddr returns the bound UDP address.
func (s *Server) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Serve runs the receive loop, blocking until Close is called. It may be
// called at most once.
func (s *Server) Serve() error {
	logrus.WithFields(logrus.Fields{
		"local_addr": s.conn.LocalAddr().String(),
		"workers":    s.workers,
		"component":  "server",
	}).Info("STUN server listening")

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.workerLoop()
	}

	err := s.receiveLoop()
	close(s.queue)
	s.wg.Wait()
	return err
}

// Close stops the server and releases the socket. Safe to call multiple
// times; Serve returns once in-flight work has drained.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}

// receiveLoop reads datagrams and dispatches them to the worker pool.
func (s *Server) receiveLoop() error {
	buf := make([]byte, maxDatagramSize)

	for {
		select {
		case <-s.closed:
			return nil
		default:
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			select {
			case <-s.closed:
				return nil
			default:
			}
			return err
		}

		n, sender, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.closed:
				return nil
			default:
			}
			logrus.WithFields(logrus.Fields{
				"error":     err.Error(),
				"component": "server",
			}).Warn("Read error on STUN socket")
			continue
		}

		s.enqueue(buf[:n], sender)
	}
}

// enqueue copies the datagram (the read buffer is reused) and hands it to
// the workers, dropping it when the queue is full.
func (s *Server) enqueue(data []byte, sender *net.UDPAddr) {
	work := datagram{
		data:   make([]byte, len(data)),
		sender: sender,
	}
	copy(work.data, data)

	select {
	case s.queue <- work:
	default:
		logrus.WithFields(logrus.Fields{
			"remote_addr": sender.String(),
			"component":   "server",
		}).Warn("Worker queue full, dropping datagram")
	}
}

// workerLoop processes queued datagrams until the queue closes.
func (s *Server) workerLoop() {
	defer s.wg.Done()

	for work := range s.queue {
		resp := HandleDatagram(work.data, work.sender)
		if resp == nil {
			continue
		}
		if _, err := s.conn.WriteToUDP(resp, work.sender); err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			logrus.WithFields(logrus.Fields{
				"remote_addr": work.sender.String(),
				"error":       err.Error(),
				"component":   "server",
			}).Warn("Failed to send response")
		}
	}
}
