package stun

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startFakeServer runs a one-shot STUN responder on loopback and returns
// its address. The respond callback maps a decoded request and its sender
// to a reply, or nil to stay silent.
func startFakeServer(t *testing.T, respond func(req *Message, sender *net.UDPAddr) *Message) string {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 1500)
		n, sender, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		req, err := Decode(buf[:n])
		if err != nil {
			return
		}
		if resp := respond(req, sender); resp != nil {
			conn.WriteToUDP(resp.Encode(), sender)
		}
	}()

	return conn.LocalAddr().String()
}

func TestClient_Query_Success(t *testing.T) {
	addr := startFakeServer(t, func(req *Message, sender *net.UDPAddr) *Message {
		resp := &Message{
			Class:         ClassSuccessResponse,
			Method:        MethodBinding,
			TransactionID: req.TransactionID,
		}
		resp.AddAttribute(XORMappedAddress{IP: sender.IP.To4(), Port: uint16(sender.Port)})
		return resp
	})

	client := NewClient()
	client.SetTimeout(2 * time.Second)

	got, err := client.Query(context.Background(), addr)
	require.NoError(t, err)

	assert.Equal(t, net.IP{127, 0, 0, 1}, got.IP)
	assert.NotZero(t, got.Port)
}

func TestClient_Query_LegacyMappedAddressFallback(t *testing.T) {
	addr := startFakeServer(t, func(req *Message, sender *net.UDPAddr) *Message {
		resp := &Message{
			Class:         ClassSuccessResponse,
			Method:        MethodBinding,
			TransactionID: req.TransactionID,
		}
		resp.AddAttribute(MappedAddress{IP: net.IP{192, 0, 2, 99}, Port: 1234})
		return resp
	})

	client := NewClient()
	client.SetTimeout(2 * time.Second)

	got, err := client.Query(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, net.IP{192, 0, 2, 99}, got.IP)
	assert.Equal(t, 1234, got.Port)
}

func TestClient_Query_ErrorResponse(t *testing.T) {
	addr := startFakeServer(t, func(req *Message, _ *net.UDPAddr) *Message {
		resp := &Message{
			Class:         ClassErrorResponse,
			Method:        MethodBinding,
			TransactionID: req.TransactionID,
		}
		resp.AddAttribute(ErrorCode{Class: 4, Number: 0, Reason: "Bad Request"})
		return resp
	})

	client := NewClient()
	client.SetTimeout(2 * time.Second)

	_, err := client.Query(context.Background(), addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestClient_Query_TransactionMismatch(t *testing.T) {
	addr := startFakeServer(t, func(req *Message, sender *net.UDPAddr) *Message {
		var wrong TransactionID
		copy(wrong[:], req.TransactionID[:])
		wrong[0] ^= 0xFF

		resp := &Message{
			Class:         ClassSuccessResponse,
			Method:        MethodBinding,
			TransactionID: wrong,
		}
		resp.AddAttribute(XORMappedAddress{IP: sender.IP.To4(), Port: uint16(sender.Port)})
		return resp
	})

	client := NewClient()
	client.SetTimeout(2 * time.Second)

	_, err := client.Query(context.Background(), addr)
	assert.ErrorIs(t, err, ErrTransactionMismatch)
}

func TestClient_Query_Timeout(t *testing.T) {
	addr := startFakeServer(t, func(*Message, *net.UDPAddr) *Message {
		return nil // never answer
	})

	client := NewClient()
	client.SetTimeout(200 * time.Millisecond)

	_, err := client.Query(context.Background(), addr)
	assert.Error(t, err)
}

func TestClient_Discover_AllServersFail(t *testing.T) {
	client := NewClient()
	client.SetServers([]string{"127.0.0.1:1"}) // nothing listens here
	client.SetTimeout(200 * time.Millisecond)

	_, err := client.Discover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all STUN servers failed")
}

func TestClient_Discover_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient()
	client.SetServers([]string{"127.0.0.1:1"})
	client.SetTimeout(100 * time.Millisecond)

	_, err := client.Discover(ctx)
	assert.Error(t, err)
}
