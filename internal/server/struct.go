package server

import (
	"sync"
	"time"

	"github.com/woozymasta/srcquery/internal/config"
	"github.com/woozymasta/srcquery/internal/geoip"
	"github.com/woozymasta/srcquery/internal/models"
	"github.com/woozymasta/srcquery/internal/storage"
)

// snapshotFunc takes a registry snapshot of one game server.
type snapshotFunc func(ip string, port int, options config.A2S) (*models.Server, error)

// Server holds the dependencies, configuration, and runtime state required
// to proxy A2S queries and to process server announces.
type Server struct {
	// storage keeps the registry of announced servers.
	storage *storage.Repository

	// geoip resolves server addresses to country codes, nil when disabled.
	geoip *geoip.Provider

	// snapshot queries an announced server, query.Snapshot outside of tests.
	snapshot snapshotFunc

	// allowedGames is the xxhash set of game folders accepted by announce, empty to accept all.
	allowedGames map[uint64]struct{}

	// queue passes announces from the HTTP handler to the workers.
	// Sends hold queueMu for reading, closing holds it for writing.
	queue   chan announceJob
	queueMu sync.RWMutex
	stopped bool

	// shutdown is closed to stop background goroutines.
	shutdown chan struct{}

	// seenCache maps "ip:port" to the time of the last accepted announce.
	seenCache sync.Map

	// authToken guards the query proxy and registry endpoints.
	authToken string

	// a2sOptions applies to proxied queries and announce snapshots.
	a2sOptions config.A2S

	wg       sync.WaitGroup
	stopOnce sync.Once

	// maxBody limits announce request bodies.
	maxBody int64

	workers int

	// hardLimitCount requests per IP are allowed within hardLimitWin.
	hardLimitCount int
	hardLimitWin   time.Duration

	// softLimitDur drops repeated announces of one server within the window.
	softLimitDur time.Duration

	// trustProxy enables CF-Connecting-IP and X-Forwarded-For.
	trustProxy bool
}

// announceJob is a queued announce: the source address of the request and the announced query port.
type announceJob struct {
	IP   string
	Port int
}
