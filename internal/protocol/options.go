package protocol

import "fmt"

// GameOptions is the authoritative option block for a room. On the wire it
// is a length-prefixed blob whose layout depends on Version; fields past the
// declared length simply keep their defaults.
type GameOptions struct {
	Version         uint8
	MaxPlayers      uint8
	Keywords        uint32
	MapID           uint8
	PlayerSpeedMod  float32
	CrewLightMod    float32
	ImpostorLightMod float32
	KillCooldown    float32
	NumCommonTasks  uint8
	NumLongTasks    uint8
	NumShortTasks   uint8
	NumEmergencies  int32
	NumImpostors    uint8
	KillDistance    uint8
	DiscussionTime  int32
	VotingTime      int32
	IsDefaults      bool

	// version >= 2
	EmergencyCooldown uint8

	// version >= 3
	ConfirmEjects bool
	VisualTasks   bool

	// version >= 4
	AnonymousVotes bool
	TaskbarUpdates uint8

	// Extra keeps bytes past the fields this layout knows, so an option
	// block from a newer client re-encodes byte for byte.
	Extra []byte
}

func DefaultGameOptions(maxPlayers int) GameOptions {
	return GameOptions{
		Version:           4,
		MaxPlayers:        uint8(maxPlayers),
		MapID:             0,
		PlayerSpeedMod:    1.0,
		CrewLightMod:      1.0,
		ImpostorLightMod:  1.5,
		KillCooldown:      45.0,
		NumCommonTasks:    1,
		NumLongTasks:      1,
		NumShortTasks:     2,
		NumEmergencies:    1,
		NumImpostors:      1,
		KillDistance:      1,
		DiscussionTime:    15,
		VotingTime:        120,
		IsDefaults:        true,
		EmergencyCooldown: 15,
		ConfirmEjects:     true,
		VisualTasks:       true,
	}
}

func (o *GameOptions) Write(w *Writer) {
	body := NewWriter()
	body.WriteUint8(o.Version)
	body.WriteUint8(o.MaxPlayers)
	body.WriteUint32(o.Keywords)
	body.WriteUint8(o.MapID)
	body.WriteFloat32(o.PlayerSpeedMod)
	body.WriteFloat32(o.CrewLightMod)
	body.WriteFloat32(o.ImpostorLightMod)
	body.WriteFloat32(o.KillCooldown)
	body.WriteUint8(o.NumCommonTasks)
	body.WriteUint8(o.NumLongTasks)
	body.WriteUint8(o.NumShortTasks)
	body.WriteInt32(o.NumEmergencies)
	body.WriteUint8(o.NumImpostors)
	body.WriteUint8(o.KillDistance)
	body.WriteInt32(o.DiscussionTime)
	body.WriteInt32(o.VotingTime)
	body.WriteBool(o.IsDefaults)

	if o.Version >= 2 {
		body.WriteUint8(o.EmergencyCooldown)
	}
	if o.Version >= 3 {
		body.WriteBool(o.ConfirmEjects)
		body.WriteBool(o.VisualTasks)
	}
	if o.Version >= 4 {
		body.WriteBool(o.AnonymousVotes)
		body.WriteUint8(o.TaskbarUpdates)
	}
	body.WriteBytes(o.Extra)

	w.WriteUPacked(uint32(body.Len()))
	w.WriteBytes(body.Bytes())
}

func (o *GameOptions) Read(r *Reader) error {
	length, err := r.ReadUPacked()
	if err != nil {
		return err
	}
	raw, err := r.ReadBytes(int(length))
	if err != nil {
		return err
	}
	body := NewReader(raw)

	if o.Version, err = body.ReadUint8(); err != nil {
		return err
	}
	if o.MaxPlayers, err = body.ReadUint8(); err != nil {
		return err
	}
	if o.Keywords, err = body.ReadUint32(); err != nil {
		return err
	}
	if o.MapID, err = body.ReadUint8(); err != nil {
		return err
	}
	if o.PlayerSpeedMod, err = body.ReadFloat32(); err != nil {
		return err
	}
	if o.CrewLightMod, err = body.ReadFloat32(); err != nil {
		return err
	}
	if o.ImpostorLightMod, err = body.ReadFloat32(); err != nil {
		return err
	}
	if o.KillCooldown, err = body.ReadFloat32(); err != nil {
		return err
	}
	if o.NumCommonTasks, err = body.ReadUint8(); err != nil {
		return err
	}
	if o.NumLongTasks, err = body.ReadUint8(); err != nil {
		return err
	}
	if o.NumShortTasks, err = body.ReadUint8(); err != nil {
		return err
	}
	if o.NumEmergencies, err = body.ReadInt32(); err != nil {
		return err
	}
	if o.NumImpostors, err = body.ReadUint8(); err != nil {
		return err
	}
	if o.KillDistance, err = body.ReadUint8(); err != nil {
		return err
	}
	if o.DiscussionTime, err = body.ReadInt32(); err != nil {
		return err
	}
	if o.VotingTime, err = body.ReadInt32(); err != nil {
		return err
	}
	if o.IsDefaults, err = body.ReadBool(); err != nil {
		return err
	}

	if o.Version >= 2 {
		if o.EmergencyCooldown, err = body.ReadUint8(); err != nil {
			return err
		}
	}
	if o.Version >= 3 {
		if o.ConfirmEjects, err = body.ReadBool(); err != nil {
			return err
		}
		if o.VisualTasks, err = body.ReadBool(); err != nil {
			return err
		}
	}
	if o.Version >= 4 {
		if o.AnonymousVotes, err = body.ReadBool(); err != nil {
			return err
		}
		if o.TaskbarUpdates, err = body.ReadUint8(); err != nil {
			return err
		}
	}
	o.Extra = body.ReadRemaining()

	return nil
}

// Validate rejects option blocks no legitimate client produces. Violations
// feed the invalidGameOptions rule.
func (o *GameOptions) Validate(roomMaxPlayers int) error {
	if o.Version < 1 || o.Version > 4 {
		return fmt.Errorf("unsupported options version %d", o.Version)
	}
	if o.MaxPlayers == 0 || int(o.MaxPlayers) > roomMaxPlayers {
		return fmt.Errorf("max players %d out of range 1..%d", o.MaxPlayers, roomMaxPlayers)
	}
	if o.NumImpostors == 0 || o.NumImpostors > 3 {
		return fmt.Errorf("impostor count %d out of range 1..3", o.NumImpostors)
	}
	if o.MapID > 4 {
		return fmt.Errorf("unknown map id %d", o.MapID)
	}
	if o.KillDistance > 2 {
		return fmt.Errorf("kill distance %d out of range", o.KillDistance)
	}
	return nil
}
