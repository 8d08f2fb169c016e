package a2s

import (
	"encoding/binary"
	"time"

	"github.com/rs/zerolog"
)

const (
	// S2CChallenge marks a response carrying a challenge token.
	S2CChallenge byte = 0x41

	challengeSize = 4

	// offset of the challenge field in player and rules requests
	challengeOffset = 5
)

// challengeRequest builds a player or rules request with a placeholder challenge.
func challengeRequest(header byte) []byte {
	req := make([]byte, 0, challengeOffset+challengeSize)
	req = append(req, 0xFF, 0xFF, 0xFF, 0xFF, header)
	return append(req, 0xFF, 0xFF, 0xFF, 0xFF)
}

// exchangeInfo runs the info flow: the first response is either the final info
// payload or a challenge that is appended to the request before resending.
func exchangeInfo(t Transport, wait time.Duration, request []byte, logger zerolog.Logger) ([]byte, error) {
	payload, err := exchange(t, wait, request, logger)
	if err != nil {
		return nil, err
	}

	r := newPacketReader(payload)
	header, err := r.uint8()
	if err != nil {
		return nil, err
	}

	switch header {
	case infoResponseHeader:
		return payload, nil

	case S2CChallenge:
		token, err := r.next(challengeSize)
		if err != nil {
			return nil, err
		}

		logger.Debug().Hex("challenge", token).Msg("Info challenge received, resending")

		retry := make([]byte, 0, len(request)+challengeSize)
		retry = append(retry, request...)
		retry = append(retry, token...)
		return exchange(t, wait, retry, logger)

	default:
		return nil, &HeaderError{Expected: S2CChallenge, Found: header}
	}
}

// exchangeChallenge runs the player and rules flow. A response without the
// challenge marker is final already, as sent by servers skipping the handshake.
func exchangeChallenge(t Transport, wait time.Duration, request []byte, logger zerolog.Logger) ([]byte, error) {
	payload, err := exchange(t, wait, request, logger)
	if err != nil {
		return nil, err
	}

	r := newPacketReader(payload)
	header, err := r.uint8()
	if err != nil {
		return nil, err
	}
	if header != S2CChallenge {
		return payload, nil
	}

	token, err := r.int32()
	if err != nil {
		return nil, err
	}

	logger.Debug().Int32("challenge", token).Msg("Challenge received, resending")

	binary.LittleEndian.PutUint32(request[challengeOffset:], uint32(token))
	return exchange(t, wait, request, logger)
}
