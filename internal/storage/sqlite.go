// Package storage keeps the registry of announced game servers in SQLite.
package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/woozymasta/srcquery/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

const serverColumns = `
	ip, port, country_code, name, map, folder, game, version,
	server_type, environment, keywords, steam_id, rules_hash, rules_count,
	game_port, app_id, players, max_players, bots, password, vac,
	count, first_seen, last_seen`

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New opens the database at dbPath and applies pending migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// UpsertServer inserts a server or refreshes the stored one keyed by IP and port.
// A snapshot without A2S data only bumps the counters, keeping the last known state.
func (r *Repository) UpsertServer(s models.Server) error {
	query := `
	INSERT INTO servers (` + serverColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	ON CONFLICT(ip, port) DO UPDATE SET
		count = count + 1,
		last_seen = excluded.last_seen,

		country_code = CASE WHEN excluded.country_code != '' THEN excluded.country_code ELSE servers.country_code END,

		-- Server type is always set by a decoded info response, the name may be empty

		name        = CASE WHEN excluded.server_type != '' THEN excluded.name ELSE servers.name END,
		map         = CASE WHEN excluded.server_type != '' THEN excluded.map ELSE servers.map END,
		folder      = CASE WHEN excluded.server_type != '' THEN excluded.folder ELSE servers.folder END,
		game        = CASE WHEN excluded.server_type != '' THEN excluded.game ELSE servers.game END,
		version     = CASE WHEN excluded.server_type != '' THEN excluded.version ELSE servers.version END,
		server_type = CASE WHEN excluded.server_type != '' THEN excluded.server_type ELSE servers.server_type END,
		environment = CASE WHEN excluded.server_type != '' THEN excluded.environment ELSE servers.environment END,
		keywords    = CASE WHEN excluded.server_type != '' THEN excluded.keywords ELSE servers.keywords END,
		steam_id    = CASE WHEN excluded.server_type != '' THEN excluded.steam_id ELSE servers.steam_id END,
		game_port   = CASE WHEN excluded.server_type != '' THEN excluded.game_port ELSE servers.game_port END,
		app_id      = CASE WHEN excluded.server_type != '' THEN excluded.app_id ELSE servers.app_id END,
		players     = CASE WHEN excluded.server_type != '' THEN excluded.players ELSE servers.players END,
		max_players = CASE WHEN excluded.server_type != '' THEN excluded.max_players ELSE servers.max_players END,
		bots        = CASE WHEN excluded.server_type != '' THEN excluded.bots ELSE servers.bots END,
		password    = CASE WHEN excluded.server_type != '' THEN excluded.password ELSE servers.password END,
		vac         = CASE WHEN excluded.server_type != '' THEN excluded.vac ELSE servers.vac END,

		-- Rules may fail while info succeeds
		rules_hash  = CASE WHEN excluded.rules_hash != '' THEN excluded.rules_hash ELSE servers.rules_hash END,
		rules_count = CASE WHEN excluded.rules_hash != '' THEN excluded.rules_count ELSE servers.rules_count END;
	`

	_, err := r.db.Exec(query,
		s.IP, s.Port, s.CountryCode, s.Name, s.Map, s.Folder, s.Game, s.Version,
		s.ServerType, s.Environment, s.Keywords, s.SteamID, s.RulesHash, s.RulesCount,
		s.GamePort, s.AppID, s.Players, s.MaxPlayers, s.Bots, s.Password, s.VAC,
		s.FirstSeen, s.LastSeen,
	)

	return err
}

// GetServers returns every registered server, most recently seen first.
func (r *Repository) GetServers() ([]models.Server, error) {
	return r.queryServers(`SELECT`+serverColumns+` FROM servers ORDER BY last_seen DESC`, nil)
}

// GetServer returns the server registered at ip and port, or nil when absent.
func (r *Repository) GetServer(ip string, port int) (*models.Server, error) {
	row := r.db.QueryRow(`SELECT`+serverColumns+` FROM servers WHERE ip = ? AND port = ?`, ip, port)

	s, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return s, nil
}

// GetServersSubset returns servers for maintenance, optionally restricted to
// one game folder and to servers that never answered A2S.
func (r *Repository) GetServersSubset(folder string, onlyEmpty bool) ([]models.Server, error) {
	query := `SELECT` + serverColumns + ` FROM servers WHERE 1=1`
	var args []any

	if folder != "" {
		query += " AND folder = ?"
		args = append(args, folder)
	}

	if onlyEmpty {
		query += " AND server_type = ''"
	}

	return r.queryServers(query, args)
}

// DeleteServer removes the server registered at ip and port.
// It reports whether a row was deleted.
func (r *Repository) DeleteServer(ip string, port int) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM servers WHERE ip = ? AND port = ?`, ip, port)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteEmptyServers removes servers without A2S data, optionally only for one game folder.
func (r *Repository) DeleteEmptyServers(folder string) (int64, error) {
	query := `DELETE FROM servers WHERE server_type = ''`
	var args []any

	if folder != "" {
		query += ` AND folder = ?`
		args = append(args, folder)
	}

	res, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) queryServers(query string, args []any) ([]models.Server, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	servers := []models.Server{}
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return servers, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanServer(row scanner) (*models.Server, error) {
	var s models.Server
	err := row.Scan(
		&s.IP, &s.Port, &s.CountryCode, &s.Name, &s.Map, &s.Folder, &s.Game, &s.Version,
		&s.ServerType, &s.Environment, &s.Keywords, &s.SteamID, &s.RulesHash, &s.RulesCount,
		&s.GamePort, &s.AppID, &s.Players, &s.MaxPlayers, &s.Bots, &s.Password, &s.VAC,
		&s.Count, &s.FirstSeen, &s.LastSeen,
	)
	if err != nil {
		return nil, err
	}

	return &s, nil
}
