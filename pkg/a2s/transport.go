package a2s

import (
	"fmt"
	"net"
	"time"
)

// Transport is a datagram channel to one server. A Receive yields at most one
// datagram and fails if none arrives within wait.
type Transport interface {
	Send(data []byte) error
	Receive(wait time.Duration) ([]byte, error)
	Close() error
}

// Dialer opens a fresh Transport to address for a single query operation.
type Dialer func(address string, bufferSize int) (Transport, error)

// udpTransport is a connected UDP socket on an ephemeral local port.
// buf holds one byte more than the accepted datagram size to detect larger ones.
type udpTransport struct {
	conn *net.UDPConn
	buf  []byte
}

// DialUDP is the default Dialer backed by an OS UDP socket.
func DialUDP(address string, bufferSize int) (Transport, error) {
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}

	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &udpTransport{conn: conn, buf: make([]byte, bufferSize+1)}, nil
}

func (t *udpTransport) Send(data []byte) error {
	_, err := t.conn.Write(data)
	return err
}

// Receive copies the datagram out of the socket buffer so callers own it.
func (t *udpTransport) Receive(wait time.Duration) ([]byte, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return nil, err
	}

	n, err := t.conn.Read(t.buf)
	if err != nil {
		return nil, err
	}
	if n == len(t.buf) {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrDatagramTooLarge, len(t.buf)-1)
	}

	out := make([]byte, n)
	copy(out, t.buf[:n])
	return out, nil
}

func (t *udpTransport) Close() error {
	return t.conn.Close()
}
