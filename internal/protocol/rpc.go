package protocol

// RPC bodies the relay decodes. Everything else passes through as Unknown.

type SyncSettingsRPC struct {
	Options GameOptions
}

func (m *SyncSettingsRPC) Tag() uint8           { return uint8(RPCTagSyncSettings) }
func (m *SyncSettingsRPC) Container() Container { return ContainerRPC }

func (m *SyncSettingsRPC) ReadFrom(r *Reader) error {
	return m.Options.Read(r)
}

func (m *SyncSettingsRPC) WriteTo(w *Writer) error {
	m.Options.Write(w)
	return nil
}

type CheckNameRPC struct {
	Name string
}

func (m *CheckNameRPC) Tag() uint8           { return uint8(RPCTagCheckName) }
func (m *CheckNameRPC) Container() Container { return ContainerRPC }

func (m *CheckNameRPC) ReadFrom(r *Reader) error {
	var err error
	m.Name, err = r.ReadString()
	return err
}

func (m *CheckNameRPC) WriteTo(w *Writer) error {
	w.WriteString(m.Name)
	return nil
}

type SetNameRPC struct {
	Name string
}

func (m *SetNameRPC) Tag() uint8           { return uint8(RPCTagSetName) }
func (m *SetNameRPC) Container() Container { return ContainerRPC }

func (m *SetNameRPC) ReadFrom(r *Reader) error {
	var err error
	m.Name, err = r.ReadString()
	return err
}

func (m *SetNameRPC) WriteTo(w *Writer) error {
	w.WriteString(m.Name)
	return nil
}

type CheckColorRPC struct {
	Color uint8
}

func (m *CheckColorRPC) Tag() uint8           { return uint8(RPCTagCheckColor) }
func (m *CheckColorRPC) Container() Container { return ContainerRPC }

func (m *CheckColorRPC) ReadFrom(r *Reader) error {
	var err error
	m.Color, err = r.ReadUint8()
	return err
}

func (m *CheckColorRPC) WriteTo(w *Writer) error {
	w.WriteUint8(m.Color)
	return nil
}

type SetColorRPC struct {
	Color uint8
}

func (m *SetColorRPC) Tag() uint8           { return uint8(RPCTagSetColor) }
func (m *SetColorRPC) Container() Container { return ContainerRPC }

func (m *SetColorRPC) ReadFrom(r *Reader) error {
	var err error
	m.Color, err = r.ReadUint8()
	return err
}

func (m *SetColorRPC) WriteTo(w *Writer) error {
	w.WriteUint8(m.Color)
	return nil
}

type SendChatRPC struct {
	Message string
}

func (m *SendChatRPC) Tag() uint8           { return uint8(RPCTagSendChat) }
func (m *SendChatRPC) Container() Container { return ContainerRPC }

func (m *SendChatRPC) ReadFrom(r *Reader) error {
	var err error
	m.Message, err = r.ReadString()
	return err
}

func (m *SendChatRPC) WriteTo(w *Writer) error {
	w.WriteString(m.Message)
	return nil
}

type SetStartCounterRPC struct {
	Sequence int32
	Counter  int8
}

func (m *SetStartCounterRPC) Tag() uint8           { return uint8(RPCTagSetStartCounter) }
func (m *SetStartCounterRPC) Container() Container { return ContainerRPC }

func (m *SetStartCounterRPC) ReadFrom(r *Reader) error {
	var err error
	if m.Sequence, err = r.ReadPacked(); err != nil {
		return err
	}
	m.Counter, err = r.ReadInt8()
	return err
}

func (m *SetStartCounterRPC) WriteTo(w *Writer) error {
	w.WritePacked(m.Sequence)
	w.WriteInt8(m.Counter)
	return nil
}

type CastVoteRPC struct {
	VotingID  uint8
	SuspectID uint8
}

func (m *CastVoteRPC) Tag() uint8           { return uint8(RPCTagCastVote) }
func (m *CastVoteRPC) Container() Container { return ContainerRPC }

func (m *CastVoteRPC) ReadFrom(r *Reader) error {
	var err error
	if m.VotingID, err = r.ReadUint8(); err != nil {
		return err
	}
	m.SuspectID, err = r.ReadUint8()
	return err
}

func (m *CastVoteRPC) WriteTo(w *Writer) error {
	w.WriteUint8(m.VotingID)
	w.WriteUint8(m.SuspectID)
	return nil
}

// AddVoteRPC registers one vote-kick vote against a room member.
type AddVoteRPC struct {
	VoterID  int32
	TargetID int32
}

func (m *AddVoteRPC) Tag() uint8           { return uint8(RPCTagAddVote) }
func (m *AddVoteRPC) Container() Container { return ContainerRPC }

func (m *AddVoteRPC) ReadFrom(r *Reader) error {
	var err error
	if m.VoterID, err = r.ReadInt32(); err != nil {
		return err
	}
	m.TargetID, err = r.ReadInt32()
	return err
}

func (m *AddVoteRPC) WriteTo(w *Writer) error {
	w.WriteInt32(m.VoterID)
	w.WriteInt32(m.TargetID)
	return nil
}
