package fake

import (
	"encoding/binary"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

const (
	infoRequest    byte = 0x54
	playersRequest byte = 0x55
	rulesRequest   byte = 0x56

	// header, type byte and "Source Engine Query\0"
	infoRequestSize = 25
)

// Config describes the answers of a fake server. Payloads start at the response
// type byte, a nil payload leaves that query unanswered.
type Config struct {
	Info    []byte
	Players []byte
	Rules   []byte

	// Challenge, when non-zero, is demanded before answering any query.
	Challenge int32

	// FragmentSize, when positive, splits answers longer than it.
	FragmentSize int

	// AnswerID identifies split answers.
	AnswerID int32
}

// Server is a loopback UDP responder speaking the server side of A2S.
type Server struct {
	conn     *net.UDPConn
	wg       sync.WaitGroup
	cfg      Config
	requests atomic.Int64
}

// Start listens on an ephemeral loopback port and serves until Close.
func Start(cfg Config) (*Server, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return nil, err
	}

	s := &Server{conn: conn, cfg: cfg}
	s.wg.Add(1)
	go s.serve()

	return s, nil
}

// Addr returns the listen address in host:port form.
func (s *Server) Addr() string {
	return s.conn.LocalAddr().String()
}

// Host returns the listen IP.
func (s *Server) Host() string {
	return s.conn.LocalAddr().(*net.UDPAddr).IP.String()
}

// Port returns the listen port.
func (s *Server) Port() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

// Requests returns the number of datagrams received so far.
func (s *Server) Requests() int {
	return int(s.requests.Load())
}

// Close stops the responder.
func (s *Server) Close() error {
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

func (s *Server) serve() {
	defer s.wg.Done()

	buf := make([]byte, 1400)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		s.requests.Add(1)

		for _, d := range s.answer(buf[:n]) {
			if _, err := s.conn.WriteToUDP(d, addr); err != nil {
				log.Debug().Err(err).Str("remote", addr.String()).Msg("Fake server write failed")
			}
		}
	}
}

// answer returns the datagrams replying to req.
func (s *Server) answer(req []byte) [][]byte {
	if len(req) < 5 {
		return nil
	}

	var payload []byte
	switch req[4] {
	case infoRequest:
		if s.cfg.Challenge != 0 && !hasToken(req, infoRequestSize, s.cfg.Challenge) {
			return [][]byte{Challenge(s.cfg.Challenge)}
		}
		payload = s.cfg.Info

	case playersRequest, rulesRequest:
		if s.cfg.Challenge != 0 && !hasToken(req, 5, s.cfg.Challenge) {
			return [][]byte{Challenge(s.cfg.Challenge)}
		}
		if req[4] == playersRequest {
			payload = s.cfg.Players
		} else {
			payload = s.cfg.Rules
		}
	}

	if payload == nil {
		return nil
	}

	if s.cfg.FragmentSize > 0 && len(payload)+4 > s.cfg.FragmentSize {
		return Split(s.cfg.AnswerID, payload, s.cfg.FragmentSize)
	}

	return [][]byte{Single(payload)}
}

func hasToken(req []byte, offset int, token int32) bool {
	if len(req) < offset+4 {
		return false
	}

	return int32(binary.LittleEndian.Uint32(req[offset:])) == token
}
