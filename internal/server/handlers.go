package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/srcquery/internal/query"
	"github.com/woozymasta/srcquery/internal/vars"
	"github.com/woozymasta/srcquery/pkg/a2s"
)

var (
	errMissingTarget = errors.New("missing ip or port")
	errInvalidPort   = errors.New("invalid port")
)

// handleVersion returns build information.
func handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, vars.Info())
}

// handleInfo proxies A2S_INFO. Query params: ?ip=1.2.3.4&port=27015
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	client, ok := s.targetClient(w, r)
	if !ok {
		return
	}

	info, err := client.GetInfo()
	if err != nil {
		writeQueryError(w, client.Address(), err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// handlePlayers proxies A2S_PLAYER.
func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	client, ok := s.targetClient(w, r)
	if !ok {
		return
	}

	players, err := client.GetPlayers()
	if err != nil {
		writeQueryError(w, client.Address(), err)
		return
	}
	if players == nil {
		players = []a2s.Player{}
	}

	writeJSON(w, http.StatusOK, players)
}

// handleRules proxies A2S_RULES. Rules keep their wire order, duplicates included.
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	client, ok := s.targetClient(w, r)
	if !ok {
		return
	}

	rules, err := client.GetRules()
	if err != nil {
		writeQueryError(w, client.Address(), err)
		return
	}
	if rules == nil {
		rules = []a2s.Rule{}
	}

	writeJSON(w, http.StatusOK, rules)
}

// handleServers lists the registry, most recently seen first.
func (s *Server) handleServers(w http.ResponseWriter, _ *http.Request) {
	servers, err := s.storage.GetServers()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch servers")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, servers)
}

// handleGetServer returns one registry entry. Query params: ?ip=1.2.3.4&port=27015
func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	ip, port, err := parseTarget(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	server, err := s.storage.GetServer(ip, port)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch server")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if server == nil {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}

	writeJSON(w, http.StatusOK, server)
}

// handleDeleteServer removes one registry entry.
func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	ip, port, err := parseTarget(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := s.storage.DeleteServer(ip, port)
	if err != nil {
		log.Error().Err(err).Str("ip", ip).Int("port", port).Msg("Failed to delete server")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}

	log.Info().Str("ip", ip).Int("port", port).Msg("Server deleted manually")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "server deleted"})
}

// targetClient builds a query client from the ip and port params, answering 400 when they are invalid.
func (s *Server) targetClient(w http.ResponseWriter, r *http.Request) (*a2s.Client, bool) {
	ip, port, err := parseTarget(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	client, err := query.NewClient(ip, port, s.a2sOptions)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	return client, true
}

func parseTarget(r *http.Request) (string, int, error) {
	ip := r.URL.Query().Get("ip")
	portStr := r.URL.Query().Get("port")
	if ip == "" || portStr == "" {
		return "", 0, errMissingTarget
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, errInvalidPort
	}

	return ip, port, nil
}

// writeQueryError answers 504 when the game server stayed silent and 502 for any other failure.
func writeQueryError(w http.ResponseWriter, address string, err error) {
	status := http.StatusBadGateway
	if a2s.IsTimeout(err) {
		status = http.StatusGatewayTimeout
	}

	log.Debug().Err(err).Str("address", address).Int("status", status).Msg("A2S query failed")
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
