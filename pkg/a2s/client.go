// Package a2s implements a client for the Source Engine Query (A2S) protocol.
//
// It requests A2S_INFO, A2S_PLAYER and A2S_RULES from a game server, handles the
// challenge handshake and split packet reassembly, and decodes the responses.
// Compressed split responses are rejected with a NotImplementedError.
package a2s

import (
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultPort is the conventional Source query port.
	DefaultPort = 27015

	// DefaultTimeout bounds each wait for a datagram.
	DefaultTimeout = 5 * time.Second

	// DefaultBufferSize is the largest datagram accepted by the UDP transport.
	DefaultBufferSize = 1400
)

// Client queries one server. It keeps no connection between calls: every query
// dials a fresh Transport and closes it before returning, so a Client can be
// shared between goroutines.
type Client struct {
	// Dial opens the transport for a query, DialUDP by default.
	Dial Dialer

	// Logger receives protocol traces, silent by default.
	Logger zerolog.Logger

	address string

	// Timeout bounds each receive.
	Timeout time.Duration

	// BufferSize is passed to Dial as the largest datagram size.
	BufferSize uint16
}

// New creates a client for host:port.
func New(host string, port int) (*Client, error) {
	if host == "" {
		return nil, ErrEmptyAddress
	}

	return NewWithAddress(net.JoinHostPort(host, strconv.Itoa(port)))
}

// NewWithAddress creates a client for an address in host:port form.
func NewWithAddress(address string) (*Client, error) {
	if address == "" {
		return nil, ErrEmptyAddress
	}

	return &Client{
		address:    address,
		Dial:       DialUDP,
		Logger:     zerolog.Nop(),
		Timeout:    DefaultTimeout,
		BufferSize: DefaultBufferSize,
	}, nil
}

// Address returns the target in host:port form.
func (c *Client) Address() string {
	return c.address
}

// GetInfo requests and decodes A2S_INFO.
func (c *Client) GetInfo() (*Info, error) {
	var payload []byte
	err := c.withTransport(func(t Transport) (err error) {
		payload, err = exchangeInfo(t, c.timeout(), infoRequest(), c.logger("info"))
		return err
	})
	if err != nil {
		return nil, err
	}

	return DecodeInfo(payload)
}

// GetPlayers requests and decodes A2S_PLAYER. An info query runs first to find
// out whether player records carry The Ship fields.
func (c *Client) GetPlayers() ([]Player, error) {
	info, err := c.GetInfo()
	if err != nil {
		return nil, err
	}

	var payload []byte
	err = c.withTransport(func(t Transport) (err error) {
		payload, err = exchangeChallenge(t, c.timeout(), challengeRequest(playerRequestHeader), c.logger("players"))
		return err
	})
	if err != nil {
		return nil, err
	}

	return DecodePlayers(payload, info.IsTheShip())
}

// GetRules requests and decodes A2S_RULES.
func (c *Client) GetRules() ([]Rule, error) {
	var payload []byte
	err := c.withTransport(func(t Transport) (err error) {
		payload, err = exchangeChallenge(t, c.timeout(), challengeRequest(rulesRequestHeader), c.logger("rules"))
		return err
	})
	if err != nil {
		return nil, err
	}

	return DecodeRules(payload)
}

// withTransport dials a transport for the duration of fn.
func (c *Client) withTransport(fn func(t Transport) error) error {
	dial := c.Dial
	if dial == nil {
		dial = DialUDP
	}

	t, err := dial(c.address, int(c.BufferSize))
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}
	defer func() { _ = t.Close() }()

	return fn(t)
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}

	return c.Timeout
}

func (c *Client) logger(query string) zerolog.Logger {
	return c.Logger.With().
		Str("address", c.address).
		Str("query", query).
		Logger()
}
