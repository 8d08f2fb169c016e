// Package models defines the data structures used for API requests and database persistence.
package models

import "time"

// AnnounceRequest is the payload a game server posts to register itself.
type AnnounceRequest struct {
	Port int `json:"port"`
}

// Server is a registered game server with the last A2S snapshot taken of it.
type Server struct {
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	IP          string    `json:"ip"`
	CountryCode string    `json:"country_code"`
	Name        string    `json:"name"`
	Map         string    `json:"map"`
	Folder      string    `json:"folder"`
	Game        string    `json:"game"`
	Version     string    `json:"version"`
	ServerType  string    `json:"server_type"`
	Environment string    `json:"environment"`
	Keywords    string    `json:"keywords"`
	SteamID     string    `json:"steam_id"`
	RulesHash   string    `json:"rules_hash"`
	Port        int       `json:"port"`
	GamePort    int       `json:"game_port"`
	AppID       int       `json:"app_id"`
	RulesCount  int       `json:"rules_count"`
	Count       int64     `json:"count"`
	Players     byte      `json:"players"`
	MaxPlayers  byte      `json:"max_players"`
	Bots        byte      `json:"bots"`
	Password    bool      `json:"password"`
	VAC         bool      `json:"vac"`
}

// Reachable reports whether the snapshot holds A2S data.
// A decoded info response always names a server type, while the server name may be empty.
func (s *Server) Reachable() bool {
	return s.ServerType != ""
}
