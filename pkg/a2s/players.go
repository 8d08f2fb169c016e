package a2s

import "time"

const (
	playerRequestHeader  byte = 0x55
	playerResponseHeader byte = 0x44

	// index, empty name terminator, score and duration
	playerMinSize = 1 + 1 + 4 + 4

	// deaths and money
	playerTheShipSize = 4 + 4
)

// Player is one entry of an A2S_PLAYER response.
type Player struct {
	// The Ship extension, present only when the server is The Ship.
	TheShip *PlayerTheShip `json:"the_ship,omitempty"`

	Name string `json:"name"`

	// Score, usually frags or kills.
	Score int32 `json:"score"`

	// Seconds the player has been connected.
	Duration float32 `json:"duration"`

	// Index of the player chunk, starting from 0.
	Index uint8 `json:"index"`
}

// Connected returns the connection time as a time.Duration.
func (p Player) Connected() time.Duration {
	return time.Duration(float64(p.Duration) * float64(time.Second))
}

// PlayerTheShip holds The Ship specific player stats.
type PlayerTheShip struct {
	Deaths uint32 `json:"deaths"`
	Money  uint32 `json:"money"`
}

func playerRecordSize(theShip bool) int {
	if theShip {
		return playerMinSize + playerTheShipSize
	}

	return playerMinSize
}

// DecodePlayers decodes an A2S_PLAYER payload starting at the response type byte.
// theShip must come from a prior info query, the payload does not tell.
//
// Decoding stops early, without error, once the bytes left cannot hold another
// record, even if the declared count promises more players.
func DecodePlayers(payload []byte, theShip bool) ([]Player, error) {
	r := newPacketReader(payload)

	header, err := r.uint8()
	if err != nil {
		return nil, err
	}
	if header != playerResponseHeader {
		return nil, &HeaderError{Expected: playerResponseHeader, Found: header}
	}

	total, err := r.uint8()
	if err != nil {
		return nil, err
	}

	players := make([]Player, 0, total)
	minSize := playerRecordSize(theShip)

	for i := 0; i < int(total); i++ {
		p, err := readPlayer(r, theShip)
		if err != nil {
			return nil, err
		}
		players = append(players, p)

		if r.remaining() < minSize {
			break
		}
	}

	return players, nil
}

func readPlayer(r *packetReader, theShip bool) (Player, error) {
	var (
		p   Player
		err error
	)

	if p.Index, err = r.uint8(); err != nil {
		return p, err
	}

	p.Name = r.string()

	if p.Score, err = r.int32(); err != nil {
		return p, err
	}
	if p.Duration, err = r.float32(); err != nil {
		return p, err
	}

	if !theShip {
		return p, nil
	}

	ship := &PlayerTheShip{}
	if ship.Deaths, err = r.uint32(); err != nil {
		return p, err
	}
	if ship.Money, err = r.uint32(); err != nil {
		return p, err
	}
	p.TheShip = ship

	return p, nil
}
