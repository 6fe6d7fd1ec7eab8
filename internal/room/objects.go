package room

import (
	"fmt"
	"time"

	"github.com/mirahq/mira/internal/netobject"
	"github.com/mirahq/mira/internal/protocol"
)

// OwnerServer marks objects the game treats as belonging to the lobby
// itself rather than a client.
const OwnerServer int32 = -2

// RegisterSpawn records the components a spawn message introduced. The
// relay does not validate the host's spawn beyond prefab shape; it only
// needs ownership for later Data checks.
func (r *Room) RegisterSpawn(msg *protocol.SpawnMessage) error {
	spawnType := netobject.SpawnType(msg.SpawnType)
	if want, ok := netobject.PrefabComponents[spawnType]; ok && want != len(msg.Components) {
		return fmt.Errorf("spawn %s declared %d components, expected %d",
			spawnType, len(msg.Components), want)
	}

	netIDs := make([]uint32, len(msg.Components))
	for i, c := range msg.Components {
		netIDs[i] = c.NetID
	}
	components := netobject.Build(spawnType, msg.OwnerID, netIDs)

	for i, c := range components {
		if err := c.Deserialize(protocol.NewReader(msg.Components[i].Data), true); err != nil {
			return fmt.Errorf("spawn %s component %d: %w", spawnType, i, err)
		}
	}

	r.mu.Lock()
	for _, c := range components {
		r.objects[c.NetID()] = c
	}
	r.mu.Unlock()

	r.logger.Debug("object spawned",
		"type", spawnType.String(), "owner", msg.OwnerID, "components", len(components))
	return nil
}

// ApplyData feeds an incremental update into a tracked component and queues
// it for the next tick's batched broadcast. Updates for untracked net ids
// pass through untouched; the host may be running a newer game than the
// relay knows.
func (r *Room) ApplyData(netID uint32, payload []byte) {
	r.mu.Lock()
	c, ok := r.objects[netID]
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := c.Deserialize(protocol.NewReader(payload), false); err != nil {
		r.logger.Debug("component update unparsed", "net_id", netID, "error", err)
		return
	}
	r.MarkDirty(c)
}

// HandleDespawn forgets a net id.
func (r *Room) HandleDespawn(netID uint32) {
	r.mu.Lock()
	delete(r.objects, netID)
	r.mu.Unlock()
}

// OwnsObject reports whether a client may send Data updates for a net id.
// Server-owned objects belong to the host; untracked ids are allowed.
func (r *Room) OwnsObject(clientID int32, netID uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.objects[netID]
	if !ok {
		return true
	}
	owner := c.OwnerID()
	if owner == OwnerServer {
		return clientID == r.hostID
	}
	return owner == clientID
}

// ClientByPlayerID resolves an in-room player id to the owning client id.
// Returns 0 when no spawned player matches.
func (r *Room) ClientByPlayerID(playerID uint8) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.objects {
		control, ok := c.(*netobject.PlayerControl)
		if ok && control.PlayerID == playerID {
			return control.OwnerID()
		}
	}
	return 0
}

// Object returns a tracked component by net id.
func (r *Room) Object(netID uint32) netobject.Component {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.objects[netID]
}

func (r *Room) dropOwnedObjectsLocked(clientID int32) {
	for netID, c := range r.objects {
		if c.OwnerID() == clientID {
			delete(r.objects, netID)
		}
	}
}

// MarkDirty queues a component for the next tick's batched state broadcast.
func (r *Room) MarkDirty(c netobject.Component) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.dirty {
		if d.NetID() == c.NetID() {
			return
		}
	}
	r.dirty = append(r.dirty, c)
}

// tickLoop flushes dirty components 50 times a second, all of them inside
// a single game data broadcast so one tick costs one packet per member.
func (r *Room) tickLoop() {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.flushDirty()
		case <-r.stop:
			return
		}
	}
}

func (r *Room) flushDirty() {
	r.mu.Lock()
	if len(r.dirty) == 0 {
		r.mu.Unlock()
		return
	}
	dirty := r.dirty
	r.dirty = nil
	r.mu.Unlock()

	items := make([]protocol.Message, 0, len(dirty))
	for _, c := range dirty {
		w := protocol.NewWriter()
		if err := c.Serialize(w, false); err != nil {
			r.logger.Debug("component serialize failed", "net_id", c.NetID(), "error", err)
			continue
		}
		items = append(items, &protocol.DataMessage{NetID: c.NetID(), Payload: w.Bytes()})
	}
	if len(items) == 0 {
		return
	}
	r.Broadcast(0, &protocol.GameDataMessage{Code: r.code, Items: items})
}
