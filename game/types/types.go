// Package types holds value types shared by every game domain: player
// snapshots, positions, factions, game modes and RPC reply statuses.
package types

import "fmt"

// BaseTimestamp is the synthetic clock origin (Unix ms) used wherever a
// domain stamps a message, ticket or match. TimestampStep spaces entries.
const (
	BaseTimestamp int64 = 1700000000000
	TimestampStep int64 = 1000
)

// Vec3 is a position in world space.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Enum gives a small integer enum a stable lower-camel text form.
type Enum struct {
	Kind  string
	Names []string
}

// Name returns the text form of v, or a placeholder for out-of-range values.
func (e Enum) Name(v uint8) string {
	if int(v) < len(e.Names) {
		return e.Names[v]
	}
	return fmt.Sprintf("unknown(%d)", v)
}

func (e Enum) Text(v uint8) ([]byte, error) {
	if int(v) >= len(e.Names) {
		return nil, fmt.Errorf("invalid %s %d", e.Kind, v)
	}
	return []byte(e.Names[v]), nil
}

func (e Enum) Parse(b []byte) (uint8, error) {
	s := string(b)
	for i, n := range e.Names {
		if n == s {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", e.Kind, s)
}

// Faction identifies the side an entity or player belongs to.
type Faction uint8

const (
	FactionNeutral Faction = iota
	FactionAlliance
	FactionHorde
	FactionPirates
)

var factionEnum = Enum{Kind: "faction", Names: []string{"neutral", "alliance", "horde", "pirates"}}

func (f Faction) String() string                { return factionEnum.Name(uint8(f)) }
func (f Faction) MarshalText() ([]byte, error) { return factionEnum.Text(uint8(f)) }

func (f *Faction) UnmarshalText(b []byte) error {
	v, err := factionEnum.Parse(b)
	if err != nil {
		return err
	}
	*f = Faction(v)
	return nil
}

// GameMode selects the queue and match format.
type GameMode uint8

const (
	ModeDuel GameMode = iota
	ModeArena3v3
	ModeBattleground
)

var modeEnum = Enum{Kind: "game mode", Names: []string{"duel", "arena3v3", "battleground"}}

func (m GameMode) String() string                { return modeEnum.Name(uint8(m)) }
func (m GameMode) MarshalText() ([]byte, error) { return modeEnum.Text(uint8(m)) }

func (m *GameMode) UnmarshalText(b []byte) error {
	v, err := modeEnum.Parse(b)
	if err != nil {
		return err
	}
	*m = GameMode(v)
	return nil
}

// PlayerInfo is the identity snapshot carried by chat messages, queue
// tickets and match rosters.
type PlayerInfo struct {
	ID      uint64  `json:"id"`
	Name    string  `json:"name"`
	Faction Faction `json:"faction"`
	Level   uint16  `json:"level"`
}
