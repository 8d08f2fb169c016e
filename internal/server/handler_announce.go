package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/srcquery/internal/models"
	"github.com/woozymasta/srcquery/pkg/a2s"
)

// handleAnnounce accepts {"port": N} from a game server and queues a snapshot
// of the announcing address. Port 0 stands for the default query port.
func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	ip := GetRealIP(r, s.trustProxy)
	if net.ParseIP(ip) == nil {
		writeError(w, http.StatusBadRequest, "unknown source address")
		return
	}

	if s.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	}

	var req models.AnnounceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Debug().Err(err).Str("ip", ip).Msg("Invalid announce body")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Port < 0 || req.Port > 65535 {
		log.Debug().Str("ip", ip).Int("port", req.Port).Msg("Invalid announce port")
		writeError(w, http.StatusBadRequest, "invalid port")
		return
	}
	if req.Port == 0 {
		req.Port = a2s.DefaultPort
	}

	key := net.JoinHostPort(ip, strconv.Itoa(req.Port))
	if val, ok := s.seenCache.Load(key); ok {
		if lastSeen, ok := val.(time.Time); ok && time.Since(lastSeen) < s.softLimitDur {
			log.Trace().Str("server", key).Msg("Dropped by soft limit hit")
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
	}
	s.seenCache.Store(key, time.Now())

	if err := s.enqueue(announceJob{IP: ip, Port: req.Port}); err != nil {
		s.seenCache.Delete(key)
		log.Warn().Err(err).Str("server", key).Msg("Announce dropped")
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	log.Trace().Str("server", key).Msg("Announce queued")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// worker processes queued announces until the queue is closed.
func (s *Server) worker() {
	defer s.wg.Done()

	for job := range s.queue {
		s.processJob(job)
	}
}

// processJob snapshots the announced server and stores it. Unreachable servers are
// stored without A2S data unless a game filter is set, since their game is unknown.
func (s *Server) processJob(job announceJob) {
	logCtx := log.With().Str("ip", job.IP).Int("port", job.Port).Logger()

	server, err := s.snapshot(job.IP, job.Port, s.a2sOptions)
	if err != nil {
		logCtx.Debug().Err(err).Msg("A2S query failed")
		if len(s.allowedGames) > 0 {
			return
		}

		now := time.Now().UTC()
		server = &models.Server{IP: job.IP, Port: job.Port, FirstSeen: now, LastSeen: now}
	} else if !s.gameAllowed(server.Folder) {
		logCtx.Debug().Str("folder", server.Folder).Msg("Game not allowed, announce dropped")
		return
	}

	server.CountryCode = s.geoip.CountryCode(job.IP)

	if err := s.storage.UpsertServer(*server); err != nil {
		logCtx.Error().Err(err).Msg("Failed to save server to DB")
		return
	}

	logCtx.Debug().Bool("a2s", server.Reachable()).Msg("Announce saved")
}
