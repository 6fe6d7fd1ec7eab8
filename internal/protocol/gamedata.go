package protocol

// DataMessage carries a serialized state delta for one networked object.
// The payload stays opaque at this layer; the owning component decodes it.
type DataMessage struct {
	NetID   uint32
	Payload []byte
}

func (m *DataMessage) Tag() uint8           { return uint8(GameDataTagData) }
func (m *DataMessage) Container() Container { return ContainerGameData }

func (m *DataMessage) ReadFrom(r *Reader) error {
	var err error
	if m.NetID, err = r.ReadUPacked(); err != nil {
		return err
	}
	m.Payload = r.ReadRemaining()
	return nil
}

func (m *DataMessage) WriteTo(w *Writer) error {
	w.WriteUPacked(m.NetID)
	w.WriteBytes(m.Payload)
	return nil
}

// RPCMessage invokes a remote procedure on a networked object. The call body
// lives in the rpc tag namespace and is resolved through the registry.
type RPCMessage struct {
	NetID  uint32
	CallID uint8
	Call   Message
}

func (m *RPCMessage) Tag() uint8           { return uint8(GameDataTagRPC) }
func (m *RPCMessage) Container() Container { return ContainerGameData }

func (m *RPCMessage) Children() []Message {
	if m.Call == nil {
		return nil
	}
	return []Message{m.Call}
}

func (m *RPCMessage) ReadFrom(r *Reader) error {
	var err error
	if m.NetID, err = r.ReadUPacked(); err != nil {
		return err
	}
	if m.CallID, err = r.ReadUint8(); err != nil {
		return err
	}
	m.Call = &Unknown{RawTag: m.CallID, In: ContainerRPC, Raw: r.ReadRemaining()}
	return nil
}

func (m *RPCMessage) WriteTo(w *Writer) error {
	w.WriteUPacked(m.NetID)
	w.WriteUint8(m.CallID)
	if m.Call != nil {
		return m.Call.WriteTo(w)
	}
	return nil
}

func (m *RPCMessage) ResolveChildren(resolve ChildResolver) error {
	unk, ok := m.Call.(*Unknown)
	if !ok {
		return nil
	}
	call, err := resolve(ContainerRPC, m.CallID, NewReader(unk.Raw))
	if err != nil {
		return err
	}
	m.Call = call
	return nil
}

// ComponentData is one component's slice of a spawn payload.
type ComponentData struct {
	NetID uint32
	Data  []byte
}

// SpawnMessage instantiates a networked object and its components.
type SpawnMessage struct {
	SpawnType  uint32
	OwnerID    int32
	Flags      uint8
	Components []ComponentData
}

func (m *SpawnMessage) Tag() uint8           { return uint8(GameDataTagSpawn) }
func (m *SpawnMessage) Container() Container { return ContainerGameData }

func (m *SpawnMessage) ReadFrom(r *Reader) error {
	var err error
	if m.SpawnType, err = r.ReadUPacked(); err != nil {
		return err
	}
	if m.OwnerID, err = r.ReadPacked(); err != nil {
		return err
	}
	if m.Flags, err = r.ReadUint8(); err != nil {
		return err
	}

	count, err := r.ReadUPacked()
	if err != nil {
		return err
	}
	// Bounded by remaining bytes: every component costs at least its net id.
	if int(count) > r.Remaining()+1 {
		return ErrTruncated
	}

	m.Components = make([]ComponentData, 0, count)
	for i := uint32(0); i < count; i++ {
		netID, err := r.ReadUPacked()
		if err != nil {
			return err
		}
		_, body, err := r.ReadMessage()
		if err != nil {
			return err
		}
		m.Components = append(m.Components, ComponentData{
			NetID: netID,
			Data:  body.ReadRemaining(),
		})
	}
	return nil
}

func (m *SpawnMessage) WriteTo(w *Writer) error {
	w.WriteUPacked(m.SpawnType)
	w.WritePacked(m.OwnerID)
	w.WriteUint8(m.Flags)
	w.WriteUPacked(uint32(len(m.Components)))
	for _, comp := range m.Components {
		w.WriteUPacked(comp.NetID)
		w.BeginMessage(1)
		w.WriteBytes(comp.Data)
		if err := w.EndMessage(); err != nil {
			return err
		}
	}
	return nil
}

type DespawnMessage struct {
	NetID uint32
}

func (m *DespawnMessage) Tag() uint8           { return uint8(GameDataTagDespawn) }
func (m *DespawnMessage) Container() Container { return ContainerGameData }

func (m *DespawnMessage) ReadFrom(r *Reader) error {
	var err error
	m.NetID, err = r.ReadUPacked()
	return err
}

func (m *DespawnMessage) WriteTo(w *Writer) error {
	w.WriteUPacked(m.NetID)
	return nil
}

type SceneChangeMessage struct {
	ClientID int32
	Scene    string
}

func (m *SceneChangeMessage) Tag() uint8           { return uint8(GameDataTagSceneChange) }
func (m *SceneChangeMessage) Container() Container { return ContainerGameData }

func (m *SceneChangeMessage) ReadFrom(r *Reader) error {
	var err error
	if m.ClientID, err = r.ReadPacked(); err != nil {
		return err
	}
	m.Scene, err = r.ReadString()
	return err
}

func (m *SceneChangeMessage) WriteTo(w *Writer) error {
	w.WritePacked(m.ClientID)
	w.WriteString(m.Scene)
	return nil
}

type ReadyMessage struct {
	ClientID int32
}

func (m *ReadyMessage) Tag() uint8           { return uint8(GameDataTagReady) }
func (m *ReadyMessage) Container() Container { return ContainerGameData }

func (m *ReadyMessage) ReadFrom(r *Reader) error {
	var err error
	m.ClientID, err = r.ReadPacked()
	return err
}

func (m *ReadyMessage) WriteTo(w *Writer) error {
	w.WritePacked(m.ClientID)
	return nil
}
