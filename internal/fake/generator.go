// Package fake provides a loopback A2S responder and payload builders for testing
// query code without a real game server.
package fake

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Response type bytes sent by game servers.
const (
	InfoHeader      byte = 0x49
	PlayersHeader   byte = 0x44
	RulesHeader     byte = 0x45
	ChallengeHeader byte = 0x41
)

// Payload builds a little-endian response payload.
type Payload struct {
	buf bytes.Buffer
}

// NewPayload starts a payload with the given response type byte.
func NewPayload(header byte) *Payload {
	p := &Payload{}
	p.buf.WriteByte(header)
	return p
}

// Byte appends raw bytes.
func (p *Payload) Byte(b ...byte) *Payload {
	p.buf.Write(b)
	return p
}

// String appends a null terminated string.
func (p *Payload) String(s string) *Payload {
	p.buf.WriteString(s)
	p.buf.WriteByte(0)
	return p
}

func (p *Payload) Uint16(v uint16) *Payload {
	p.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
	return p
}

func (p *Payload) Int16(v int16) *Payload {
	return p.Uint16(uint16(v))
}

func (p *Payload) Uint32(v uint32) *Payload {
	p.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
	return p
}

func (p *Payload) Int32(v int32) *Payload {
	return p.Uint32(uint32(v))
}

func (p *Payload) Uint64(v uint64) *Payload {
	p.buf.Write(binary.LittleEndian.AppendUint64(nil, v))
	return p
}

func (p *Payload) Float32(v float32) *Payload {
	return p.Uint32(math.Float32bits(v))
}

// Bytes returns a copy of the payload built so far.
func (p *Payload) Bytes() []byte {
	return bytes.Clone(p.buf.Bytes())
}

// Single frames a payload as a single packet datagram.
func Single(payload []byte) []byte {
	out := make([]byte, 0, 4+len(payload))
	out = append(out, 0xFF, 0xFF, 0xFF, 0xFF)
	return append(out, payload...)
}

// Challenge returns the datagram asking the client to repeat with token.
func Challenge(token int32) []byte {
	return Single(NewPayload(ChallengeHeader).Int32(token).Bytes())
}

// Split frames a payload as a multi packet answer with fragments carrying at
// most size bytes each. The joined fragment stream repeats the single packet
// header in front of the payload, the way Source servers send it.
func Split(id int32, payload []byte, size int) [][]byte {
	if size <= 0 {
		size = len(payload) + 4
	}

	stream := Single(payload)
	total := (len(stream) + size - 1) / size

	out := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		end := min((i+1)*size, len(stream))
		chunk := stream[i*size : end]

		d := make([]byte, 0, 12+len(chunk))
		d = append(d, 0xFE, 0xFF, 0xFF, 0xFF)
		d = binary.LittleEndian.AppendUint32(d, uint32(id))
		d = append(d, byte(total), byte(i))
		d = binary.LittleEndian.AppendUint16(d, uint16(len(chunk)))
		d = append(d, chunk...)
		out = append(out, d)
	}

	return out
}
