package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/woozymasta/srcquery/internal/config"
	"github.com/woozymasta/srcquery/internal/fake"
	"github.com/woozymasta/srcquery/internal/models"
	"github.com/woozymasta/srcquery/internal/storage"
)

const testToken = "secret"

func newTestServer(t *testing.T, mutate func(*config.Serve)) (*Server, *storage.Repository) {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Serve{
		Server: config.Server{AuthToken: testToken, MaxBodySize: 512, QueueSize: 10, Workers: 2},
		RateLimit: config.RateLimit{
			HardLimitCount: 100,
			HardLimitWin:   time.Minute,
			SoftLimitDur:   time.Minute,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	s := New(store, nil, cfg, config.A2S{Timeout: 300 * time.Millisecond, BufferSize: 1400})
	t.Cleanup(s.StopWorkers)

	return s, store
}

func infoPayload(folder string) []byte {
	return fake.NewPayload(fake.InfoHeader).
		Byte(17).String("Proxy Test").String("cp_badlands").String(folder).String("Team Fortress").
		Int16(440).
		Byte(4, 24, 0, 'd', 'l', 0, 1).
		String("8622567").
		Bytes()
}

func do(t *testing.T, h http.Handler, method, target, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "127.0.0.1:40000"
	if auth {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func target(path string, srv *fake.Server) string {
	return path + "?ip=" + srv.Host() + "&port=" + strconv.Itoa(srv.Port())
}

func TestAuthRequired(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Run()

	for _, path := range []string{"/api/info?ip=127.0.0.1&port=1", "/api/servers", "/api/server?ip=127.0.0.1&port=1"} {
		if rec := do(t, h, http.MethodGet, path, "", false); rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", path, rec.Code)
		}
	}

	if rec := do(t, h, http.MethodGet, "/api/version", "", false); rec.Code != http.StatusOK {
		t.Errorf("GET /api/version = %d, want 200", rec.Code)
	}
}

func TestProxyInfo(t *testing.T) {
	srv, err := fake.Start(fake.Config{Info: infoPayload("tf"), Challenge: 7})
	if err != nil {
		t.Fatalf("fake.Start: %v", err)
	}
	defer func() { _ = srv.Close() }()

	s, _ := newTestServer(t, nil)
	rec := do(t, s.Run(), http.MethodGet, target("/api/info", srv), "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["name"] != "Proxy Test" || got["server_type"] != "Dedicated" {
		t.Errorf("info = %v", got)
	}
}

func TestProxyRulesAndPlayers(t *testing.T) {
	srv, err := fake.Start(fake.Config{
		Info:    infoPayload("tf"),
		Players: fake.NewPayload(fake.PlayersHeader).Byte(1).Byte(0).String("Heavy").Int32(3).Float32(10).Bytes(),
		Rules:   fake.NewPayload(fake.RulesHeader).Uint16(1).String("tf_gamemode_cp").String("1").Bytes(),
	})
	if err != nil {
		t.Fatalf("fake.Start: %v", err)
	}
	defer func() { _ = srv.Close() }()

	s, _ := newTestServer(t, nil)
	h := s.Run()

	rec := do(t, h, http.MethodGet, target("/api/rules", srv), "", true)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"tf_gamemode_cp"`) {
		t.Errorf("rules = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, target("/api/players", srv), "", true)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"Heavy"`) {
		t.Errorf("players = %d %s", rec.Code, rec.Body.String())
	}
}

func TestProxyErrors(t *testing.T) {
	silent, err := fake.Start(fake.Config{})
	if err != nil {
		t.Fatalf("fake.Start: %v", err)
	}
	defer func() { _ = silent.Close() }()

	broken, err := fake.Start(fake.Config{Info: []byte{fake.PlayersHeader, 0x00}})
	if err != nil {
		t.Fatalf("fake.Start: %v", err)
	}
	defer func() { _ = broken.Close() }()

	s, _ := newTestServer(t, nil)
	h := s.Run()

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"timeout", target("/api/info", silent), http.StatusGatewayTimeout},
		{"bad answer", target("/api/info", broken), http.StatusBadGateway},
		{"missing port", "/api/info?ip=127.0.0.1", http.StatusBadRequest},
		{"port out of range", "/api/rules?ip=127.0.0.1&port=70000", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, "", true)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), `"error"`) {
				t.Errorf("body lacks error: %s", rec.Body.String())
			}
		})
	}
}

func TestAnnounce(t *testing.T) {
	srv, err := fake.Start(fake.Config{
		Info:  infoPayload("tf"),
		Rules: fake.NewPayload(fake.RulesHeader).Uint16(1).String("sv_tags").String("cp").Bytes(),
	})
	if err != nil {
		t.Fatalf("fake.Start: %v", err)
	}
	defer func() { _ = srv.Close() }()

	s, store := newTestServer(t, func(cfg *config.Serve) {
		cfg.Server.AllowedGames = []string{"TF", "cstrike"}
	})
	s.StartWorkers()
	h := s.Run()

	body := `{"port":` + strconv.Itoa(srv.Port()) + `}`
	if rec := do(t, h, http.MethodPost, "/api/announce", body, false); rec.Code != http.StatusAccepted {
		t.Fatalf("announce = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodPost, "/api/announce", body, false); rec.Code != http.StatusOK {
		t.Errorf("repeated announce = %d, want 200 soft limit", rec.Code)
	}

	s.StopWorkers()

	got, err := store.GetServer("127.0.0.1", srv.Port())
	if err != nil || got == nil {
		t.Fatalf("GetServer = %v, %v", got, err)
	}
	if got.Name != "Proxy Test" || got.Folder != "tf" || got.RulesCount != 1 || got.Count != 1 {
		t.Errorf("stored server = %+v", got)
	}
}

func TestAnnounceInvalid(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Run()

	for _, body := range []string{`not json`, `{"port":-1}`, `{"port":65536}`} {
		if rec := do(t, h, http.MethodPost, "/api/announce", body, false); rec.Code != http.StatusBadRequest {
			t.Errorf("announce %s = %d, want 400", body, rec.Code)
		}
	}
}

func TestAnnounceAfterStop(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.StartWorkers()
	h := s.Run()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			body := `{"port":` + strconv.Itoa(port) + `}`
			rec := do(t, h, http.MethodPost, "/api/announce", body, false)
			if rec.Code != http.StatusAccepted && rec.Code != http.StatusServiceUnavailable {
				t.Errorf("announce %d = %d", port, rec.Code)
			}
		}(30000 + i)
	}
	s.StopWorkers()
	wg.Wait()

	rec := do(t, h, http.MethodPost, "/api/announce", `{"port":31000}`, false)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("announce after stop = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "shutting down") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestProcessJobFilters(t *testing.T) {
	s, store := newTestServer(t, func(cfg *config.Serve) {
		cfg.Server.AllowedGames = []string{"cstrike"}
	})

	s.snapshot = func(ip string, port int, _ config.A2S) (*models.Server, error) {
		return &models.Server{IP: ip, Port: port, Name: "Other", Folder: "tf", ServerType: "Dedicated"}, nil
	}
	s.processJob(announceJob{IP: "192.0.2.10", Port: 27015})

	s.snapshot = func(ip string, port int, _ config.A2S) (*models.Server, error) {
		return &models.Server{IP: ip, Port: port, Name: "Allowed", Folder: "CStrike", ServerType: "Dedicated"}, nil
	}
	s.processJob(announceJob{IP: "192.0.2.11", Port: 27015})

	servers, err := store.GetServers()
	if err != nil {
		t.Fatalf("GetServers: %v", err)
	}
	if len(servers) != 1 || servers[0].Name != "Allowed" {
		t.Errorf("stored = %+v", servers)
	}
}

func TestRegistryEndpoints(t *testing.T) {
	s, store := newTestServer(t, nil)
	h := s.Run()

	now := time.Now().UTC()
	if err := store.UpsertServer(models.Server{IP: "192.0.2.1", Port: 27015, Name: "One", ServerType: "Dedicated", FirstSeen: now, LastSeen: now}); err != nil {
		t.Fatalf("UpsertServer: %v", err)
	}

	rec := do(t, h, http.MethodGet, "/api/servers", "", true)
	var list []models.Server
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Fatalf("servers = %d %s", rec.Code, rec.Body.String())
	}

	if rec := do(t, h, http.MethodGet, "/api/server?ip=192.0.2.1&port=27015", "", true); rec.Code != http.StatusOK {
		t.Errorf("get = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/server?ip=192.0.2.1&port=27015", "", true); rec.Code != http.StatusOK {
		t.Errorf("delete = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/server?ip=192.0.2.1&port=27015", "", true); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/server?ip=192.0.2.1&port=27015", "", true); rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, func(cfg *config.Serve) {
		cfg.RateLimit.HardLimitCount = 1
	})
	h := s.Run()

	do(t, h, http.MethodPost, "/api/announce", `bad`, false)
	if rec := do(t, h, http.MethodPost, "/api/announce", `bad`, false); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request = %d, want 429", rec.Code)
	}
}

func TestGetRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := GetRealIP(req, false); got != "10.0.0.1" {
		t.Errorf("untrusted = %q", got)
	}
	if got := GetRealIP(req, true); got != "203.0.113.9" {
		t.Errorf("trusted = %q", got)
	}
}
