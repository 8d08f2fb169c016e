package a2s

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

const (
	headerSinglePacket int32 = -1
	headerMultiPacket  int32 = -2

	// smallest datagram that can carry a header and a response type byte
	minDatagramSize = 5
)

// fragment is one datagram of a multi-packet answer.
type fragment struct {
	payload []byte
	number  uint8
}

// exchange sends request over t and collects one logical response. The returned
// payload starts at the response type byte.
func exchange(t Transport, wait time.Duration, request []byte, logger zerolog.Logger) ([]byte, error) {
	if err := t.Send(request); err != nil {
		return nil, &TransportError{Op: "send", Err: err}
	}

	data, err := receive(t, wait)
	if err != nil {
		return nil, err
	}

	if len(data) < minDatagramSize {
		return nil, fmt.Errorf("%w: datagram of %d bytes", ErrInvalidResponse, len(data))
	}

	r := newPacketReader(data)
	header, err := r.int32()
	if err != nil {
		return nil, err
	}

	switch header {
	case headerSinglePacket:
		logger.Trace().Int("size", len(data)).Msg("Single packet response")
		return r.rest(), nil

	case headerMultiPacket:
		return reassemble(t, wait, r, logger)

	default:
		return nil, fmt.Errorf("%w: unknown packet header 0x%08X", ErrInvalidResponse, uint32(header))
	}
}

// reassemble reads the remaining fragments of a multi-packet answer whose first
// datagram is positioned after the packet header. Fragments are ordered by their
// number, completion is decided by count alone.
func reassemble(t Transport, wait time.Duration, r *packetReader, logger zerolog.Logger) ([]byte, error) {
	answerID, err := r.int32()
	if err != nil {
		return nil, err
	}

	// sign bit marks a bzip2 compressed answer
	if answerID < 0 {
		return nil, &NotImplementedError{Feature: "compressed multi-packet responses"}
	}
	r.pos -= 4

	var (
		fragments []fragment
		total     = -1
	)

	for {
		id, err := r.int32()
		if err != nil {
			return nil, err
		}
		if id != answerID {
			return nil, &AnswerIDError{Expected: answerID, Found: id}
		}

		count, err := r.uint8()
		if err != nil {
			return nil, err
		}

		number, err := r.uint8()
		if err != nil {
			return nil, err
		}

		// size hint, the payload always runs to the end of the datagram
		if _, err := r.int16(); err != nil {
			return nil, err
		}

		fragments = append(fragments, fragment{number: number, payload: r.rest()})
		if total < 0 {
			total = int(count)
		}

		logger.Trace().
			Int32("answer_id", answerID).
			Uint8("number", number).
			Int("total", total).
			Msg("Fragment received")

		if len(fragments) == total {
			break
		}

		data, err := receive(t, wait)
		if err != nil {
			return nil, err
		}

		r = newPacketReader(data)
		if _, err := r.int32(); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(fragments, func(i, j int) bool {
		return fragments[i].number < fragments[j].number
	})

	var buf bytes.Buffer
	for _, f := range fragments {
		buf.Write(f.payload)
	}

	// the joined stream repeats the single packet header
	joined := newPacketReader(buf.Bytes())
	if _, err := joined.int32(); err != nil {
		return nil, err
	}

	return joined.rest(), nil
}

func receive(t Transport, wait time.Duration) ([]byte, error) {
	data, err := t.Receive(wait)
	if err != nil {
		return nil, &TransportError{Op: "receive", Err: err}
	}

	return data, nil
}
