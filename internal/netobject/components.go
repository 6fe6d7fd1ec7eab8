package netobject

import (
	"github.com/mirahq/mira/internal/protocol"
)

// PlayerControl is the head component of a player object. The spawn
// snapshot carries the in-room player id the rest of the protocol refers to
// players by.
type PlayerControl struct {
	BaseComponent

	IsNew    bool
	PlayerID uint8
}

func (p *PlayerControl) Deserialize(r *protocol.Reader, onSpawn bool) error {
	if onSpawn {
		isNew, err := r.ReadBool()
		if err != nil {
			return err
		}
		p.IsNew = isNew
	}
	id, err := r.ReadUint8()
	if err != nil {
		return err
	}
	p.PlayerID = id
	return nil
}

func (p *PlayerControl) Serialize(w *protocol.Writer, onSpawn bool) error {
	if onSpawn {
		w.WriteBool(p.IsNew)
	}
	w.WriteUint8(p.PlayerID)
	return nil
}

// NetworkTransform carries position. Parsed so movement keeps flowing with
// correct sequence ordering when the server stands in as host.
type NetworkTransform struct {
	BaseComponent

	SeqID      uint16
	X, Y       float32
	VelX, VelY float32
}

func (n *NetworkTransform) Deserialize(r *protocol.Reader, onSpawn bool) error {
	seq, err := r.ReadUint16()
	if err != nil {
		return err
	}
	// Stale movement updates arrive out of order over unreliable packets.
	if !onSpawn && seqGreater(n.SeqID, seq) {
		r.ReadRemaining()
		return nil
	}
	n.SeqID = seq
	if n.X, n.Y, err = r.ReadVector2(); err != nil {
		return err
	}
	n.VelX, n.VelY, err = r.ReadVector2()
	return err
}

func (n *NetworkTransform) Serialize(w *protocol.Writer, onSpawn bool) error {
	w.WriteUint16(n.SeqID)
	w.WriteVector2(n.X, n.Y)
	w.WriteVector2(n.VelX, n.VelY)
	return nil
}

// seqGreater compares wrapping sequence ids the same way the client does.
func seqGreater(current, incoming uint16) bool {
	diff := incoming - current
	return diff == 0 || diff > 0x7FFF
}

// PlayerInfo is one entry of the game data roster.
type PlayerInfo struct {
	PlayerID uint8
	Name     string
	Raw      []byte
}

// GameDataComponent holds the player roster. Only the id to name mapping is
// parsed; everything per-player beyond the name stays raw.
type GameDataComponent struct {
	BaseComponent

	Players map[uint8]*PlayerInfo
}

func (g *GameDataComponent) Deserialize(r *protocol.Reader, onSpawn bool) error {
	if g.Players == nil {
		g.Players = make(map[uint8]*PlayerInfo)
	}
	if onSpawn {
		count, err := r.ReadUPacked()
		if err != nil {
			return err
		}
		if int(count) > r.Remaining() {
			return protocol.ErrTruncated
		}
	}

	// Both the spawn snapshot and incremental updates frame each roster
	// entry as a message whose tag is the player id.
	for r.HasNext() {
		id, body, err := r.ReadMessage()
		if err != nil {
			return err
		}
		if err := g.readPlayer(id, body); err != nil {
			return err
		}
	}
	return nil
}

func (g *GameDataComponent) readPlayer(id uint8, r *protocol.Reader) error {
	name, err := r.ReadString()
	if err != nil {
		return err
	}
	g.Players[id] = &PlayerInfo{PlayerID: id, Name: name, Raw: r.ReadRemaining()}
	return nil
}

func (g *GameDataComponent) Name(id uint8) string {
	if info, ok := g.Players[id]; ok {
		return info.Name
	}
	return ""
}

// VoteBanSystem mirrors the client-side vote-kick tally. Kept opaque; the
// authoritative tally is the room's.
type VoteBanSystem struct {
	BaseComponent
}
