package stun

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// maxResponseSize bounds the read buffer for a Binding response. Responses
// carry one address attribute plus whatever a server appends; 1024 bytes is
// generous.
const maxResponseSize = 1024

// Client discovers the local host's server-reflexive transport address by
// querying STUN servers over UDP.
//
// The client sends each request exactly once per server and relies on the
// configured timeout; retransmission and backoff are left to callers that
// need them.
type Client struct {
	servers []string
	timeout time.Duration
}

// NewClient creates a STUN client with a default set of public servers.
func NewClient() *Client {
	return &Client{
		servers: []string{
			"stun.l.google.com:19302",
			"stun1.l.google.com:19302",
			"stun.cloudflare.com:3478",
		},
		timeout: 5 * time.Second,
	}
}

// SetServers replaces the server list. Servers are tried in order.
func (c *Client) SetServers(servers []string) {
	c.servers = servers
}

// SetTimeout sets the per-server query timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Discover queries the configured servers in order and returns the first
// reflexive address obtained.
func (c *Client) Discover(ctx context.Context) (*net.UDPAddr, error) {
	var lastErr error
	for _, server := range c.servers {
		addr, err := c.Query(ctx, server)
		if err == nil {
			return addr, nil
		}
		lastErr = err

		logrus.WithFields(logrus.Fields{
			"server":    server,
			"error":     err.Error(),
			"component": "stun.Client",
		}).Debug("STUN query failed, trying next server")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
	return nil, fmt.Errorf("all STUN servers failed, last error: %w", lastErr)
}

// Query performs a single Binding transaction against one server.
func (c *Client) Query(ctx context.Context, server string) (*net.UDPAddr, error) {
	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "udp", server)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to STUN server %s: %w", server, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(c.timeout))
	}

	tid, err := NewTransactionID()
	if err != nil {
		return nil, err
	}

	if _, err := conn.Write(NewBindingRequest(tid).Encode()); err != nil {
		return nil, fmt.Errorf("failed to send binding request: %w", err)
	}

	buf := make([]byte, maxResponseSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to read binding response: %w", err)
	}

	return parseBindingResponse(buf[:n], tid)
}

// parseBindingResponse validates a Binding response and extracts the
// reflexive address from it.
func parseBindingResponse(data []byte, tid TransactionID) (*net.UDPAddr, error) {
	msg, err := Decode(data)
	if err != nil {
		return nil, err
	}

	if msg.TransactionID != tid {
		return nil, ErrTransactionMismatch
	}
	if msg.Method != MethodBinding {
		return nil, fmt.Errorf("unexpected response method 0x%03x", msg.Method)
	}

	switch msg.Class {
	case ClassSuccessResponse:
		return FindMappedAddress(msg)
	case ClassErrorResponse:
		return nil, errors.New(errorResponseText(msg))
	default:
		return nil, fmt.Errorf("unexpected message class: %s", msg.Class)
	}
}

// errorResponseText renders an error response for diagnostics.
func errorResponseText(msg *Message) string {
	for _, attr := range msg.Attributes {
		if ec, ok := attr.(ErrorCode); ok {
			return fmt.Sprintf("server returned error %d: %s", ec.Code(), ec.Reason)
		}
	}
	return "server returned error response without ERROR-CODE"
}
