// Package query connects the A2S client to the application configuration and
// maps query results onto registry records.
package query

import (
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/leighmacdonald/steamid/v4/steamid"
	"github.com/woozymasta/srcquery/internal/config"
	"github.com/woozymasta/srcquery/internal/logger"
	"github.com/woozymasta/srcquery/internal/models"
	"github.com/woozymasta/srcquery/pkg/a2s"
)

// NewClient creates an A2S client for ip:port with the configured timeout and buffer size.
func NewClient(ip string, port int, options config.A2S) (*a2s.Client, error) {
	client, err := a2s.New(ip, port)
	if err != nil {
		return nil, err
	}

	if options.Timeout > 0 {
		client.Timeout = options.Timeout
	}
	if options.BufferSize > 0 {
		client.BufferSize = options.BufferSize
	}
	client.Logger = logger.Component("a2s")

	return client, nil
}

// Snapshot queries the server information and rules of ip:port and returns them as a registry record.
// Only the info query is required: servers that hide their rules are still recorded.
func Snapshot(ip string, port int, options config.A2S) (*models.Server, error) {
	client, err := NewClient(ip, port, options)
	if err != nil {
		return nil, err
	}

	info, err := client.GetInfo()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	server := FromInfo(ip, port, info)
	server.FirstSeen = now
	server.LastSeen = now

	rules, err := client.GetRules()
	if err != nil {
		client.Logger.Debug().Err(err).Str("address", client.Address()).Msg("Rules unavailable, skipping fingerprint")
		return server, nil
	}

	server.RulesHash = RulesFingerprint(rules)
	server.RulesCount = len(rules)

	return server, nil
}

// FromInfo maps an A2S_INFO answer onto a registry record.
func FromInfo(ip string, port int, info *a2s.Info) *models.Server {
	server := &models.Server{
		IP:          ip,
		Port:        port,
		Name:        info.Name,
		Map:         info.Map,
		Folder:      info.Folder,
		Game:        info.Game,
		Version:     info.Version,
		ServerType:  info.ServerType.String(),
		Environment: info.Environment.String(),
		AppID:       int(info.AppID),
		Players:     info.Players,
		MaxPlayers:  info.MaxPlayers,
		Bots:        info.Bots,
		Password:    info.Password,
		VAC:         info.VAC,
	}

	if info.Port != nil {
		server.GamePort = int(*info.Port)
	}
	if info.Keywords != nil {
		server.Keywords = *info.Keywords
	}
	if info.SteamID != nil {
		server.SteamID = SteamID3(*info.SteamID)
	}

	return server
}

// SteamID3 renders a 64-bit server SteamID as [G:1:n]. Invalid IDs are rendered in decimal.
func SteamID3(id uint64) string {
	sid := steamid.New(id)
	if !sid.Valid() {
		return strconv.FormatUint(id, 10)
	}

	return string(sid.Steam3())
}

// RulesFingerprint hashes the rule set independently of rule order,
// so a changed configuration shows up as a changed fingerprint.
func RulesFingerprint(rules []a2s.Rule) string {
	pairs := make([]string, 0, len(rules))
	for _, r := range rules {
		pairs = append(pairs, r.Name+"\x00"+r.Value)
	}
	sort.Strings(pairs)

	h := xxhash.New()
	for _, p := range pairs {
		_, _ = h.WriteString(p)
		_, _ = h.WriteString("\n")
	}

	return strconv.FormatUint(h.Sum64(), 16)
}
