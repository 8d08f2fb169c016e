package a2s

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/woozymasta/srcquery/internal/fake"
)

func TestInfoRequestBytes(t *testing.T) {
	want := append([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x54}, "Source Engine Query\x00"...)
	if got := infoRequest(); !bytes.Equal(got, want) {
		t.Errorf("infoRequest = % X, want % X", got, want)
	}
}

func TestChallengeRequestBytes(t *testing.T) {
	want := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x55, 0xFF, 0xFF, 0xFF, 0xFF}
	if got := challengeRequest(playerRequestHeader); !bytes.Equal(got, want) {
		t.Errorf("challengeRequest = % X, want % X", got, want)
	}
}

func TestExchangeInfoDirect(t *testing.T) {
	payload := fake.NewPayload(fake.InfoHeader).Byte(0x11).Bytes()
	tr := newMemTransport(fake.Single(payload))

	got, err := exchangeInfo(tr, time.Second, infoRequest(), zerolog.Nop())
	if err != nil {
		t.Fatalf("exchangeInfo: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = % X, want % X", got, payload)
	}
	if len(tr.sent) != 1 {
		t.Errorf("sent %d requests, want 1", len(tr.sent))
	}
}

func TestExchangeInfoChallenge(t *testing.T) {
	payload := fake.NewPayload(fake.InfoHeader).Byte(0x11).Bytes()
	tr := newMemTransport(fake.Challenge(0x0A0B0C0D), fake.Single(payload))

	req := infoRequest()
	got, err := exchangeInfo(tr, time.Second, req, zerolog.Nop())
	if err != nil {
		t.Fatalf("exchangeInfo: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = % X, want % X", got, payload)
	}

	if len(tr.sent) != 2 {
		t.Fatalf("sent %d requests, want 2", len(tr.sent))
	}
	wantRetry := append(bytes.Clone(req), 0x0D, 0x0C, 0x0B, 0x0A)
	if !bytes.Equal(tr.sent[1], wantRetry) {
		t.Errorf("retry = % X, want % X", tr.sent[1], wantRetry)
	}
}

func TestExchangeInfoInvalidHeader(t *testing.T) {
	tr := newMemTransport(fake.Single([]byte{0x44, 0x00}))

	_, err := exchangeInfo(tr, time.Second, infoRequest(), zerolog.Nop())

	var hErr *HeaderError
	if !errors.As(err, &hErr) {
		t.Fatalf("err = %v, want HeaderError", err)
	}
	if hErr.Expected != S2CChallenge || hErr.Found != 0x44 {
		t.Errorf("HeaderError = %+v, want expected 0x41 found 0x44", hErr)
	}
}

func TestExchangeChallenge(t *testing.T) {
	payload := fake.NewPayload(fake.PlayersHeader).Byte(0).Bytes()
	tr := newMemTransport(fake.Challenge(-559038737), fake.Single(payload))

	got, err := exchangeChallenge(tr, time.Second, challengeRequest(playerRequestHeader), zerolog.Nop())
	if err != nil {
		t.Fatalf("exchangeChallenge: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = % X, want % X", got, payload)
	}

	if len(tr.sent) != 2 {
		t.Fatalf("sent %d requests, want 2", len(tr.sent))
	}
	if !bytes.Equal(tr.sent[0][5:], []byte{0xFF, 0xFF, 0xFF, 0xFF}) {
		t.Errorf("first request challenge = % X, want placeholder", tr.sent[0][5:])
	}
	if len(tr.sent[1]) != 9 {
		t.Fatalf("retry length = %d, want 9", len(tr.sent[1]))
	}
	if token := int32(binary.LittleEndian.Uint32(tr.sent[1][5:])); token != -559038737 {
		t.Errorf("retry challenge = %d, want -559038737", token)
	}
}

func TestExchangeChallengeSkipped(t *testing.T) {
	payload := fake.NewPayload(fake.RulesHeader).Uint16(0).Bytes()
	tr := newMemTransport(fake.Single(payload))

	got, err := exchangeChallenge(tr, time.Second, challengeRequest(rulesRequestHeader), zerolog.Nop())
	if err != nil {
		t.Fatalf("exchangeChallenge: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = % X, want % X", got, payload)
	}
	if len(tr.sent) != 1 {
		t.Errorf("sent %d requests, want 1", len(tr.sent))
	}
}
