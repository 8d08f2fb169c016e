package query

import (
	"strings"
	"testing"
	"time"

	"github.com/woozymasta/srcquery/internal/config"
	"github.com/woozymasta/srcquery/internal/fake"
	"github.com/woozymasta/srcquery/pkg/a2s"
)

func infoPayload() []byte {
	return fake.NewPayload(fake.InfoHeader).
		Byte(17).String("Test Server").String("de_dust2").String("cstrike").String("Counter-Strike: Source").
		Int16(240).
		Byte(12, 32, 2, 'd', 'l', 0, 1).
		String("1.0.0.71").
		Byte(a2s.EDFPort | a2s.EDFSteamID | a2s.EDFKeywords).
		Uint16(27016).
		Uint64(85568392920040658).
		String("alltalk,increased_maxplayers").
		Bytes()
}

func rulesPayload(pairs ...string) []byte {
	p := fake.NewPayload(fake.RulesHeader).Uint16(uint16(len(pairs) / 2))
	for _, s := range pairs {
		p.String(s)
	}
	return p.Bytes()
}

func TestSnapshot(t *testing.T) {
	srv, err := fake.Start(fake.Config{
		Info:      infoPayload(),
		Rules:     rulesPayload("mp_timelimit", "30", "sv_tags", "alltalk"),
		Challenge: 555,
	})
	if err != nil {
		t.Fatalf("fake.Start: %v", err)
	}
	defer func() { _ = srv.Close() }()

	got, err := Snapshot(srv.Host(), srv.Port(), config.A2S{Timeout: 2 * time.Second, BufferSize: 1400})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if got.Name != "Test Server" || got.Map != "de_dust2" || got.Folder != "cstrike" {
		t.Errorf("Snapshot identity = %+v", got)
	}
	if got.IP != srv.Host() || got.Port != srv.Port() || got.GamePort != 27016 {
		t.Errorf("Snapshot address = %s:%d game port %d", got.IP, got.Port, got.GamePort)
	}
	if got.ServerType != "Dedicated" || got.Environment != "Linux" || !got.VAC || got.Password {
		t.Errorf("Snapshot flags = %+v", got)
	}
	if got.Players != 12 || got.MaxPlayers != 32 || got.Bots != 2 || got.AppID != 240 {
		t.Errorf("Snapshot counters = %+v", got)
	}
	if !strings.HasPrefix(got.SteamID, "[G:1:1234") {
		t.Errorf("SteamID = %q", got.SteamID)
	}
	if got.Keywords != "alltalk,increased_maxplayers" {
		t.Errorf("Keywords = %q", got.Keywords)
	}
	if got.RulesCount != 2 || got.RulesHash == "" {
		t.Errorf("rules fingerprint = %q / %d", got.RulesHash, got.RulesCount)
	}
	if got.FirstSeen.IsZero() || !got.FirstSeen.Equal(got.LastSeen) {
		t.Errorf("timestamps = %v / %v", got.FirstSeen, got.LastSeen)
	}
}

func TestSnapshotWithoutRules(t *testing.T) {
	srv, err := fake.Start(fake.Config{Info: infoPayload()})
	if err != nil {
		t.Fatalf("fake.Start: %v", err)
	}
	defer func() { _ = srv.Close() }()

	got, err := Snapshot(srv.Host(), srv.Port(), config.A2S{Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if got.Name != "Test Server" || got.RulesHash != "" || got.RulesCount != 0 {
		t.Errorf("Snapshot = %+v", got)
	}
}

func TestSnapshotUnreachable(t *testing.T) {
	srv, err := fake.Start(fake.Config{})
	if err != nil {
		t.Fatalf("fake.Start: %v", err)
	}
	defer func() { _ = srv.Close() }()

	_, err = Snapshot(srv.Host(), srv.Port(), config.A2S{Timeout: 200 * time.Millisecond})
	if !a2s.IsTimeout(err) {
		t.Errorf("err = %v, want timeout", err)
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("10.0.0.1", 2303, config.A2S{Timeout: time.Second, BufferSize: 4096})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.Address() != "10.0.0.1:2303" || c.Timeout != time.Second || c.BufferSize != 4096 {
		t.Errorf("client = %s %v %d", c.Address(), c.Timeout, c.BufferSize)
	}

	c, _ = NewClient("10.0.0.1", 2303, config.A2S{})
	if c.Timeout != a2s.DefaultTimeout || c.BufferSize != a2s.DefaultBufferSize {
		t.Errorf("zero options override defaults: %v %d", c.Timeout, c.BufferSize)
	}

	if _, err := NewClient("", 2303, config.A2S{}); err == nil {
		t.Error("NewClient accepted an empty host")
	}
}

func TestSteamID3(t *testing.T) {
	if got := SteamID3(85568392920040658); !strings.HasPrefix(got, "[G:1:1234") {
		t.Errorf("SteamID3(game server) = %q", got)
	}
	if got := SteamID3(0); got != "0" {
		t.Errorf("SteamID3(0) = %q, want decimal fallback", got)
	}
}

func TestRulesFingerprint(t *testing.T) {
	a := []a2s.Rule{{Name: "mp_timelimit", Value: "30"}, {Name: "sv_tags", Value: ""}}
	b := []a2s.Rule{{Name: "sv_tags", Value: ""}, {Name: "mp_timelimit", Value: "30"}}
	c := []a2s.Rule{{Name: "mp_timelimit", Value: "45"}, {Name: "sv_tags", Value: ""}}

	if RulesFingerprint(a) != RulesFingerprint(b) {
		t.Error("fingerprint depends on rule order")
	}
	if RulesFingerprint(a) == RulesFingerprint(c) {
		t.Error("fingerprint ignores rule values")
	}
}
