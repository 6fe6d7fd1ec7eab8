package netobject

import (
	"github.com/mirahq/mira/internal/protocol"
)

// SpawnType identifies a spawnable prefab.
type SpawnType uint32

const (
	SpawnShipStatus     SpawnType = 0
	SpawnMeetingHud     SpawnType = 1
	SpawnLobbyBehaviour SpawnType = 2
	SpawnGameData       SpawnType = 3
	SpawnPlayer         SpawnType = 4
)

func (s SpawnType) String() string {
	switch s {
	case SpawnShipStatus:
		return "ShipStatus"
	case SpawnMeetingHud:
		return "MeetingHud"
	case SpawnLobbyBehaviour:
		return "LobbyBehaviour"
	case SpawnGameData:
		return "GameData"
	case SpawnPlayer:
		return "Player"
	}
	return "unknown"
}

// PrefabComponents is how many networked components each prefab spawns
// with. A spawn declaring a different count is malformed.
var PrefabComponents = map[SpawnType]int{
	SpawnShipStatus:     1,
	SpawnMeetingHud:     1,
	SpawnLobbyBehaviour: 1,
	SpawnGameData:       2, // game data + vote ban system
	SpawnPlayer:         3, // control + physics + network transform
}

// Component is one networked component of a spawned object. The relay does
// not simulate the game, so most components keep their state as the opaque
// bytes the host sent and only a few parse what routing decisions need.
type Component interface {
	NetID() uint32
	OwnerID() int32
	SpawnType() SpawnType

	// Deserialize consumes a data payload. onSpawn distinguishes the full
	// spawn snapshot from the incremental Data update.
	Deserialize(r *protocol.Reader, onSpawn bool) error
	// Serialize produces the payload a late joiner needs to reconstruct
	// current state.
	Serialize(w *protocol.Writer, onSpawn bool) error
}

// BaseComponent stores state opaquely. Every concrete component embeds it;
// the ones that understand their payload override Deserialize.
type BaseComponent struct {
	netID     uint32
	ownerID   int32
	spawnType SpawnType
	data      []byte
}

func NewBase(netID uint32, ownerID int32, spawnType SpawnType) BaseComponent {
	return BaseComponent{netID: netID, ownerID: ownerID, spawnType: spawnType}
}

func (b *BaseComponent) NetID() uint32        { return b.netID }
func (b *BaseComponent) OwnerID() int32       { return b.ownerID }
func (b *BaseComponent) SpawnType() SpawnType { return b.spawnType }

func (b *BaseComponent) Deserialize(r *protocol.Reader, onSpawn bool) error {
	b.data = r.ReadRemaining()
	return nil
}

func (b *BaseComponent) Serialize(w *protocol.Writer, onSpawn bool) error {
	w.WriteBytes(b.data)
	return nil
}

// Build constructs the component set for a spawn message, choosing parsed
// implementations where the relay cares and opaque ones everywhere else.
func Build(spawnType SpawnType, ownerID int32, netIDs []uint32) []Component {
	components := make([]Component, 0, len(netIDs))
	for i, netID := range netIDs {
		base := NewBase(netID, ownerID, spawnType)
		switch {
		case spawnType == SpawnPlayer && i == 0:
			components = append(components, &PlayerControl{BaseComponent: base})
		case spawnType == SpawnPlayer && i == 2:
			components = append(components, &NetworkTransform{BaseComponent: base})
		case spawnType == SpawnGameData && i == 0:
			components = append(components, &GameDataComponent{BaseComponent: base})
		case spawnType == SpawnGameData && i == 1:
			components = append(components, &VoteBanSystem{BaseComponent: base})
		default:
			components = append(components, &Opaque{BaseComponent: base})
		}
	}
	return components
}

// Opaque is a component the relay never inspects.
type Opaque struct {
	BaseComponent
}
