package a2s

import (
	"encoding/binary"
	"math"
	"strings"
	"unicode/utf8"
)

// packetReader is a little-endian cursor over an owned payload.
type packetReader struct {
	buf []byte
	pos int
}

func newPacketReader(buf []byte) *packetReader {
	return &packetReader{buf: buf}
}

func (r *packetReader) remaining() int {
	if r.pos >= len(r.buf) {
		return 0
	}

	return len(r.buf) - r.pos
}

// next returns the following n bytes and advances the cursor.
func (r *packetReader) next(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, truncated(n, r.remaining())
	}

	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// rest consumes everything up to the end of the buffer.
func (r *packetReader) rest() []byte {
	if r.remaining() == 0 {
		return nil
	}

	b := r.buf[r.pos:]
	r.pos = len(r.buf)
	return b
}

func (r *packetReader) uint8() (uint8, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

func (r *packetReader) int8() (int8, error) {
	v, err := r.uint8()
	return int8(v), err
}

func (r *packetReader) uint16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(b), nil
}

func (r *packetReader) int16() (int16, error) {
	v, err := r.uint16()
	return int16(v), err
}

func (r *packetReader) uint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}

func (r *packetReader) int32() (int32, error) {
	v, err := r.uint32()
	return int32(v), err
}

func (r *packetReader) uint64() (uint64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(b), nil
}

func (r *packetReader) int64() (int64, error) {
	v, err := r.uint64()
	return int64(v), err
}

func (r *packetReader) float32() (float32, error) {
	v, err := r.uint32()
	return math.Float32frombits(v), err
}

// string reads a null terminated string. A missing terminator ends the string at
// the buffer end and reading at the end yields "". Invalid UTF-8 bytes are
// replaced with U+FFFD, so it never fails.
func (r *packetReader) string() string {
	if r.remaining() == 0 {
		return ""
	}

	start := r.pos
	end := start
	for end < len(r.buf) && r.buf[end] != 0 {
		end++
	}

	raw := r.buf[start:end]
	r.pos = end
	if end < len(r.buf) {
		r.pos++
	}

	return lossyString(raw)
}

// lossyString decodes raw as UTF-8, writing one U+FFFD for each maximal
// invalid subpart, the way WHATWG and Unicode 6.3+ decoders do.
func lossyString(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}

	var sb strings.Builder
	sb.Grow(len(raw) + 8)
	for len(raw) > 0 {
		ch, size := utf8.DecodeRune(raw)
		if ch == utf8.RuneError && size == 1 {
			size = invalidPrefixLen(raw)
			sb.WriteRune(utf8.RuneError)
		} else {
			sb.Write(raw[:size])
		}
		raw = raw[size:]
	}

	return sb.String()
}

// invalidPrefixLen returns the length of the maximal invalid subpart at the
// start of b: a lead byte followed by the continuation bytes it allows, cut
// short before a complete sequence. Stray bytes count as one.
func invalidPrefixLen(b []byte) int {
	need := 0
	lo, hi := byte(0x80), byte(0xBF)

	switch c := b[0]; {
	case c >= 0xC2 && c <= 0xDF:
		need = 1
	case c == 0xE0:
		need, lo = 2, 0xA0
	case c >= 0xE1 && c <= 0xEC, c == 0xEE, c == 0xEF:
		need = 2
	case c == 0xED:
		need, hi = 2, 0x9F
	case c == 0xF0:
		need, lo = 3, 0x90
	case c >= 0xF1 && c <= 0xF3:
		need = 3
	case c == 0xF4:
		need, hi = 3, 0x8F
	default:
		return 1
	}

	n := 1
	for n <= need && n < len(b) && b[n] >= lo && b[n] <= hi {
		lo, hi = 0x80, 0xBF
		n++
	}

	return n
}
