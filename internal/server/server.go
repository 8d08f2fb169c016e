// Package server implements the HTTP query proxy and the server registry API.
package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/woozymasta/srcquery/internal/config"
	"github.com/woozymasta/srcquery/internal/geoip"
	"github.com/woozymasta/srcquery/internal/query"
	"github.com/woozymasta/srcquery/internal/storage"
)

var (
	errQueueFull = errors.New("queue full")
	errStopped   = errors.New("shutting down")
)

// New creates a Server backed by store. geo may be nil to skip country detection.
func New(store *storage.Repository, geo *geoip.Provider, cfg config.Serve, a2sOptions config.A2S) *Server {
	games := make(map[uint64]struct{})
	for _, game := range cfg.Server.AllowedGames {
		game = strings.TrimSpace(game)
		if game == "" {
			continue
		}
		games[xxhash.Sum64String(strings.ToLower(game))] = struct{}{}
	}

	queueSize := cfg.Server.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}

	return &Server{
		storage:        store,
		geoip:          geo,
		snapshot:       query.Snapshot,
		a2sOptions:     a2sOptions,
		authToken:      cfg.Server.AuthToken,
		allowedGames:   games,
		maxBody:        cfg.Server.MaxBodySize,
		workers:        cfg.Server.Workers,
		trustProxy:     cfg.Server.TrustProxy,
		hardLimitCount: cfg.RateLimit.HardLimitCount,
		hardLimitWin:   cfg.RateLimit.HardLimitWin,
		softLimitDur:   cfg.RateLimit.SoftLimitDur,

		queue:    make(chan announceJob, queueSize),
		shutdown: make(chan struct{}),
	}
}

// StartWorkers starts the announce workers and the soft-limit cache cleanup.
func (s *Server) StartWorkers() {
	workers := s.workers
	if workers <= 0 {
		workers = 1
	}

	for range workers {
		s.wg.Add(1)
		go s.worker()
	}

	go s.gcSoftLimitCache()
}

// StopWorkers stops accepting announces and waits for queued ones to be processed.
func (s *Server) StopWorkers() {
	s.stopOnce.Do(func() {
		close(s.shutdown)

		s.queueMu.Lock()
		s.stopped = true
		close(s.queue)
		s.queueMu.Unlock()
	})
	s.wg.Wait()
}

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/announce", s.RateLimitMiddleware(http.HandlerFunc(s.handleAnnounce)))
	mux.HandleFunc("GET /api/version", handleVersion)

	mux.Handle("GET /api/info", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleInfo)))
	mux.Handle("GET /api/players", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handlePlayers)))
	mux.Handle("GET /api/rules", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleRules)))

	mux.Handle("GET /api/servers", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleServers)))
	mux.Handle("GET /api/server", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleGetServer)))
	mux.Handle("DELETE /api/server", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleDeleteServer)))

	return s.LoggingMiddleware(mux)
}

// enqueue hands job to the workers without blocking. It fails once the
// queue is full or StopWorkers has closed it.
func (s *Server) enqueue(job announceJob) error {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()

	if s.stopped {
		return errStopped
	}

	select {
	case s.queue <- job:
		return nil
	default:
		return errQueueFull
	}
}

// gcSoftLimitCache periodically removes expired soft-limit entries.
func (s *Server) gcSoftLimitCache() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.expireSeen(time.Now())
		}
	}
}

func (s *Server) expireSeen(now time.Time) {
	s.seenCache.Range(func(key, value any) bool {
		if t, ok := value.(time.Time); !ok || now.Sub(t) > s.softLimitDur {
			s.seenCache.Delete(key)
		}
		return true
	})
}

// gameAllowed reports whether announces of the game folder are accepted.
func (s *Server) gameAllowed(folder string) bool {
	if len(s.allowedGames) == 0 {
		return true
	}

	_, ok := s.allowedGames[xxhash.Sum64String(strings.ToLower(folder))]
	return ok
}
