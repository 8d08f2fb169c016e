package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/woozymasta/srcquery/internal/vars"
)

func TestNilProvider(t *testing.T) {
	var p *Provider

	if got := p.CountryCode("8.8.8.8"); got != "" {
		t.Errorf("CountryCode = %q, want empty", got)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestEnsureDBDownloads(t *testing.T) {
	var agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.UserAgent()
		_, _ = w.Write([]byte("mmdb"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "country.mmdb")
	if err := EnsureDB(context.Background(), path, srv.URL, time.Hour); err != nil {
		t.Fatalf("EnsureDB: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "mmdb" {
		t.Fatalf("downloaded file = %q, %v", data, err)
	}
	if agent != vars.UserAgent() {
		t.Errorf("User-Agent = %q, want %q", agent, vars.UserAgent())
	}
}

func TestEnsureDBFresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("fresh database must not be downloaded")
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "country.mmdb")
	if err := os.WriteFile(path, []byte("old"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := EnsureDB(context.Background(), path, srv.URL, time.Hour); err != nil {
		t.Fatalf("EnsureDB: %v", err)
	}
}

func TestEnsureDBBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "country.mmdb")
	if err := EnsureDB(context.Background(), path, srv.URL, time.Hour); err == nil {
		t.Fatal("EnsureDB succeeded on 404")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("database file created on failure: %v", err)
	}
}
