package a2s

import (
	"fmt"
)

const (
	infoRequestHeader  byte = 0x54
	infoResponseHeader byte = 0x49
	infoRequestPayload      = "Source Engine Query\x00"

	// TheShipAppID is the application id of The Ship, whose responses carry extra fields.
	TheShipAppID int16 = 2400
)

// Extra data flags of an info response.
const (
	EDFGameID   byte = 0x01
	EDFSteamID  byte = 0x10
	EDFKeywords byte = 0x20
	EDFSourceTV byte = 0x40
	EDFPort     byte = 0x80
)

// Info is the decoded A2S_INFO response.
type Info struct {
	// Optional trailing fields, present only when flagged in EDF.
	Port     *uint16   `json:"port,omitempty"`
	SteamID  *uint64   `json:"steam_id,omitempty"`
	SourceTV *SourceTV `json:"sourcetv,omitempty"`
	Keywords *string   `json:"keywords,omitempty"`
	GameID   *uint64   `json:"game_id,omitempty"`

	// The Ship extension, present only for application id 2400.
	TheShip *TheShipInfo `json:"the_ship,omitempty"`

	Name    string `json:"name"`
	Map     string `json:"map"`
	Folder  string `json:"folder"`
	Game    string `json:"game"`
	Version string `json:"version"`

	ServerType  ServerType  `json:"server_type"`
	Environment Environment `json:"environment"`

	// Steam application id of the game.
	AppID int16 `json:"app_id"`

	Protocol   uint8 `json:"protocol"`
	Players    uint8 `json:"players"`
	MaxPlayers uint8 `json:"max_players"`
	Bots       uint8 `json:"bots"`
	EDF        uint8 `json:"edf"`

	Password bool `json:"password"`
	VAC      bool `json:"vac"`
}

// IsTheShip reports whether the server runs The Ship.
func (i *Info) IsTheShip() bool {
	return i.AppID == TheShipAppID
}

// SourceTV describes the spectator relay of a server.
type SourceTV struct {
	Name string `json:"name"`
	Port uint16 `json:"port"`
}

// TheShipInfo holds the game settings The Ship adds to an info response.
type TheShipInfo struct {
	Mode TheShipMode `json:"mode"`

	// Number of witnesses needed to have a player arrested.
	Witnesses uint8 `json:"witnesses"`

	// Seconds before a witnessed player is arrested.
	Duration uint8 `json:"duration"`
}

// ServerType is the kind of server reported in an info response.
type ServerType uint8

const (
	ServerTypeDedicated ServerType = iota
	ServerTypeNonDedicated
	ServerTypeSourceTVProxy
)

func parseServerType(b byte) (ServerType, error) {
	switch b {
	case 'd':
		return ServerTypeDedicated, nil
	case 'l':
		return ServerTypeNonDedicated, nil
	case 'p':
		return ServerTypeSourceTVProxy, nil
	default:
		return 0, fmt.Errorf("%w: 0x%02X", ErrInvalidServerType, b)
	}
}

func (s ServerType) String() string {
	switch s {
	case ServerTypeDedicated:
		return "Dedicated"
	case ServerTypeNonDedicated:
		return "NonDedicated"
	case ServerTypeSourceTVProxy:
		return "SourceTVProxy"
	default:
		return fmt.Sprintf("ServerType(%d)", uint8(s))
	}
}

// MarshalText renders the server type by name.
func (s ServerType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Environment is the operating system of the server.
type Environment uint8

const (
	EnvironmentLinux Environment = iota
	EnvironmentWindows
	EnvironmentMac
)

func parseEnvironment(b byte) (Environment, error) {
	switch b {
	case 'l':
		return EnvironmentLinux, nil
	case 'w':
		return EnvironmentWindows, nil
	case 'm', 'o':
		return EnvironmentMac, nil
	default:
		return 0, fmt.Errorf("%w: 0x%02X", ErrInvalidServerEnvironment, b)
	}
}

func (e Environment) String() string {
	switch e {
	case EnvironmentLinux:
		return "Linux"
	case EnvironmentWindows:
		return "Windows"
	case EnvironmentMac:
		return "Mac"
	default:
		return fmt.Sprintf("Environment(%d)", uint8(e))
	}
}

// MarshalText renders the environment by name.
func (e Environment) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// TheShipMode is the game mode of a The Ship server.
type TheShipMode uint8

const (
	TheShipModeHunt TheShipMode = iota
	TheShipModeElimination
	TheShipModeDuel
	TheShipModeDeathmatch
	TheShipModeVIPTeam
	TheShipModeTeamElimination
)

var theShipModeNames = [...]string{
	TheShipModeHunt:            "Hunt",
	TheShipModeElimination:     "Elimination",
	TheShipModeDuel:            "Duel",
	TheShipModeDeathmatch:      "Deathmatch",
	TheShipModeVIPTeam:         "VIPTeam",
	TheShipModeTeamElimination: "TeamElimination",
}

func parseTheShipMode(b byte) (TheShipMode, error) {
	if int(b) >= len(theShipModeNames) {
		return 0, fmt.Errorf("%w: unknown The Ship mode %d", ErrInvalidResponse, b)
	}

	return TheShipMode(b), nil
}

func (m TheShipMode) String() string {
	if int(m) < len(theShipModeNames) {
		return theShipModeNames[m]
	}

	return fmt.Sprintf("TheShipMode(%d)", uint8(m))
}

// MarshalText renders the mode by name.
func (m TheShipMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// infoRequest builds an A2S_INFO request without a challenge.
func infoRequest() []byte {
	req := make([]byte, 0, challengeOffset+len(infoRequestPayload)+challengeSize)
	req = append(req, 0xFF, 0xFF, 0xFF, 0xFF, infoRequestHeader)
	return append(req, infoRequestPayload...)
}

// extraDataFields lists the EDF gated fields in wire order. The decoder walks
// the table front to back, so the order never depends on which flags are set.
var extraDataFields = [...]struct {
	read func(r *packetReader, info *Info) error
	flag byte
}{
	{flag: EDFPort, read: readGamePort},
	{flag: EDFSteamID, read: readSteamID},
	{flag: EDFSourceTV, read: readSourceTV},
	{flag: EDFKeywords, read: readKeywords},
	{flag: EDFGameID, read: readGameID},
}

func readGamePort(r *packetReader, info *Info) error {
	port, err := r.uint16()
	if err != nil {
		return err
	}

	info.Port = &port
	return nil
}

func readSteamID(r *packetReader, info *Info) error {
	id, err := r.uint64()
	if err != nil {
		return err
	}

	info.SteamID = &id
	return nil
}

func readSourceTV(r *packetReader, info *Info) error {
	port, err := r.uint16()
	if err != nil {
		return err
	}

	info.SourceTV = &SourceTV{Port: port, Name: r.string()}
	return nil
}

func readKeywords(r *packetReader, info *Info) error {
	keywords := r.string()
	info.Keywords = &keywords
	return nil
}

func readGameID(r *packetReader, info *Info) error {
	id, err := r.uint64()
	if err != nil {
		return err
	}

	info.GameID = &id
	return nil
}

// DecodeInfo decodes an A2S_INFO payload starting at the response type byte.
func DecodeInfo(payload []byte) (*Info, error) {
	r := newPacketReader(payload)

	header, err := r.uint8()
	if err != nil {
		return nil, err
	}
	if header != infoResponseHeader {
		return nil, &HeaderError{Expected: infoResponseHeader, Found: header}
	}

	info := &Info{}
	if info.Protocol, err = r.uint8(); err != nil {
		return nil, err
	}

	info.Name = r.string()
	info.Map = r.string()
	info.Folder = r.string()
	info.Game = r.string()

	if info.AppID, err = r.int16(); err != nil {
		return nil, err
	}

	counts, err := r.next(3)
	if err != nil {
		return nil, err
	}
	info.Players, info.MaxPlayers, info.Bots = counts[0], counts[1], counts[2]

	b, err := r.uint8()
	if err != nil {
		return nil, err
	}
	if info.ServerType, err = parseServerType(b); err != nil {
		return nil, err
	}

	if b, err = r.uint8(); err != nil {
		return nil, err
	}
	if info.Environment, err = parseEnvironment(b); err != nil {
		return nil, err
	}

	flags, err := r.next(2)
	if err != nil {
		return nil, err
	}
	info.Password = flags[0] != 0
	info.VAC = flags[1] != 0

	if info.IsTheShip() {
		if info.TheShip, err = readTheShip(r); err != nil {
			return nil, err
		}
	}

	info.Version = r.string()

	// older servers end the payload after the version
	if r.remaining() > 0 {
		info.EDF, _ = r.uint8()
	}

	for _, field := range extraDataFields {
		if info.EDF&field.flag == 0 {
			continue
		}
		if err := field.read(r, info); err != nil {
			return nil, err
		}
	}

	return info, nil
}

func readTheShip(r *packetReader) (*TheShipInfo, error) {
	b, err := r.uint8()
	if err != nil {
		return nil, err
	}

	mode, err := parseTheShipMode(b)
	if err != nil {
		return nil, err
	}

	rest, err := r.next(2)
	if err != nil {
		return nil, err
	}

	return &TheShipInfo{Mode: mode, Witnesses: rest[0], Duration: rest[1]}, nil
}
