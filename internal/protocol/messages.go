package protocol

// ChildResolver parses one nested message out of its container's tag
// namespace. Resolvers must return an *Unknown rather than fail when the tag
// has no registered parser.
type ChildResolver func(c Container, tag uint8, r *Reader) (Message, error)

// Resolvable is implemented by container messages whose children can only be
// parsed once a resolver (the packet registry) is available.
type Resolvable interface {
	ResolveChildren(resolve ChildResolver) error
}

// HostGame is the client request to create a room.
type HostGame struct {
	Options GameOptions
}

func (m *HostGame) Tag() uint8           { return uint8(RootTagHostGame) }
func (m *HostGame) Container() Container { return ContainerRoot }

func (m *HostGame) ReadFrom(r *Reader) error {
	return m.Options.Read(r)
}

func (m *HostGame) WriteTo(w *Writer) error {
	m.Options.Write(w)
	return nil
}

// HostGameResponse carries the generated room code back to the requester.
type HostGameResponse struct {
	Code GameCode
}

func (m *HostGameResponse) Tag() uint8           { return uint8(RootTagHostGame) }
func (m *HostGameResponse) Container() Container { return ContainerRoot }

func (m *HostGameResponse) ReadFrom(r *Reader) error {
	code, err := r.ReadInt32()
	m.Code = GameCode(code)
	return err
}

func (m *HostGameResponse) WriteTo(w *Writer) error {
	w.WriteInt32(int32(m.Code))
	return nil
}

// JoinGame is the client request to join a room by code.
type JoinGame struct {
	Code GameCode
}

func (m *JoinGame) Tag() uint8           { return uint8(RootTagJoinGame) }
func (m *JoinGame) Container() Container { return ContainerRoot }

func (m *JoinGame) ReadFrom(r *Reader) error {
	code, err := r.ReadInt32()
	m.Code = GameCode(code)
	return err
}

func (m *JoinGame) WriteTo(w *Writer) error {
	w.WriteInt32(int32(m.Code))
	return nil
}

// JoinGameUpdate tells existing room members about a new joiner.
type JoinGameUpdate struct {
	Code     GameCode
	ClientID int32
	HostID   int32
}

func (m *JoinGameUpdate) Tag() uint8           { return uint8(RootTagJoinGame) }
func (m *JoinGameUpdate) Container() Container { return ContainerRoot }

func (m *JoinGameUpdate) ReadFrom(r *Reader) error {
	code, err := r.ReadInt32()
	if err != nil {
		return err
	}
	m.Code = GameCode(code)
	if m.ClientID, err = r.ReadInt32(); err != nil {
		return err
	}
	m.HostID, err = r.ReadInt32()
	return err
}

func (m *JoinGameUpdate) WriteTo(w *Writer) error {
	w.WriteInt32(int32(m.Code))
	w.WriteInt32(m.ClientID)
	w.WriteInt32(m.HostID)
	return nil
}

// JoinGameError is the typed join failure sent to the requesting client.
// The connection stays open.
type JoinGameError struct {
	Reason  DisconnectReason
	Message string
}

func (m *JoinGameError) Tag() uint8           { return uint8(RootTagJoinGame) }
func (m *JoinGameError) Container() Container { return ContainerRoot }

func (m *JoinGameError) ReadFrom(r *Reader) error {
	reason, err := r.ReadInt32()
	if err != nil {
		return err
	}
	m.Reason = DisconnectReason(reason)
	if m.Reason == DisconnectReasonCustom && r.HasNext() {
		m.Message, err = r.ReadString()
	}
	return err
}

func (m *JoinGameError) WriteTo(w *Writer) error {
	w.WriteInt32(int32(m.Reason))
	if m.Reason == DisconnectReasonCustom {
		w.WriteString(m.Message)
	}
	return nil
}

// JoinedGame is the full roster refresh sent to a client entering a room.
type JoinedGame struct {
	Code     GameCode
	ClientID int32
	HostID   int32
	Others   []int32
}

func (m *JoinedGame) Tag() uint8           { return uint8(RootTagJoinedGame) }
func (m *JoinedGame) Container() Container { return ContainerRoot }

func (m *JoinedGame) ReadFrom(r *Reader) error {
	code, err := r.ReadInt32()
	if err != nil {
		return err
	}
	m.Code = GameCode(code)
	if m.ClientID, err = r.ReadInt32(); err != nil {
		return err
	}
	if m.HostID, err = r.ReadInt32(); err != nil {
		return err
	}
	count, err := r.ReadUPacked()
	if err != nil {
		return err
	}
	m.Others = make([]int32, 0, count)
	for i := uint32(0); i < count; i++ {
		id, err := r.ReadPacked()
		if err != nil {
			return err
		}
		m.Others = append(m.Others, id)
	}
	return nil
}

func (m *JoinedGame) WriteTo(w *Writer) error {
	w.WriteInt32(int32(m.Code))
	w.WriteInt32(m.ClientID)
	w.WriteInt32(m.HostID)
	w.WriteUPacked(uint32(len(m.Others)))
	for _, id := range m.Others {
		w.WritePacked(id)
	}
	return nil
}

type StartGame struct {
	Code GameCode
}

func (m *StartGame) Tag() uint8           { return uint8(RootTagStartGame) }
func (m *StartGame) Container() Container { return ContainerRoot }

func (m *StartGame) ReadFrom(r *Reader) error {
	code, err := r.ReadInt32()
	m.Code = GameCode(code)
	return err
}

func (m *StartGame) WriteTo(w *Writer) error {
	w.WriteInt32(int32(m.Code))
	return nil
}

type EndGame struct {
	Code   GameCode
	Reason GameOverReason
	ShowAd bool
}

func (m *EndGame) Tag() uint8           { return uint8(RootTagEndGame) }
func (m *EndGame) Container() Container { return ContainerRoot }

func (m *EndGame) ReadFrom(r *Reader) error {
	code, err := r.ReadInt32()
	if err != nil {
		return err
	}
	m.Code = GameCode(code)
	reason, err := r.ReadUint8()
	if err != nil {
		return err
	}
	m.Reason = GameOverReason(reason)
	m.ShowAd, err = r.ReadBool()
	return err
}

func (m *EndGame) WriteTo(w *Writer) error {
	w.WriteInt32(int32(m.Code))
	w.WriteUint8(uint8(m.Reason))
	w.WriteBool(m.ShowAd)
	return nil
}

type RemoveGame struct {
	Reason DisconnectReason
}

func (m *RemoveGame) Tag() uint8           { return uint8(RootTagRemoveGame) }
func (m *RemoveGame) Container() Container { return ContainerRoot }

func (m *RemoveGame) ReadFrom(r *Reader) error {
	if !r.HasNext() {
		m.Reason = DisconnectReasonNone
		return nil
	}
	reason, err := r.ReadUint8()
	m.Reason = DisconnectReason(reason)
	return err
}

func (m *RemoveGame) WriteTo(w *Writer) error {
	w.WriteUint8(uint8(m.Reason))
	return nil
}

type RemovePlayer struct {
	Code     GameCode
	ClientID int32
	HostID   int32
	Reason   DisconnectReason
}

func (m *RemovePlayer) Tag() uint8           { return uint8(RootTagRemovePlayer) }
func (m *RemovePlayer) Container() Container { return ContainerRoot }

func (m *RemovePlayer) ReadFrom(r *Reader) error {
	code, err := r.ReadInt32()
	if err != nil {
		return err
	}
	m.Code = GameCode(code)
	if m.ClientID, err = r.ReadInt32(); err != nil {
		return err
	}
	if m.HostID, err = r.ReadInt32(); err != nil {
		return err
	}
	reason, err := r.ReadUint8()
	m.Reason = DisconnectReason(reason)
	return err
}

func (m *RemovePlayer) WriteTo(w *Writer) error {
	w.WriteInt32(int32(m.Code))
	w.WriteInt32(m.ClientID)
	w.WriteInt32(m.HostID)
	w.WriteUint8(uint8(m.Reason))
	return nil
}

// KickPlayer is a host request to kick (optionally ban) a room member.
type KickPlayer struct {
	Code     GameCode
	ClientID int32
	Banned   bool
}

func (m *KickPlayer) Tag() uint8           { return uint8(RootTagKickPlayer) }
func (m *KickPlayer) Container() Container { return ContainerRoot }

func (m *KickPlayer) ReadFrom(r *Reader) error {
	code, err := r.ReadInt32()
	if err != nil {
		return err
	}
	m.Code = GameCode(code)
	if m.ClientID, err = r.ReadPacked(); err != nil {
		return err
	}
	m.Banned, err = r.ReadBool()
	return err
}

func (m *KickPlayer) WriteTo(w *Writer) error {
	w.WriteInt32(int32(m.Code))
	w.WritePacked(m.ClientID)
	w.WriteBool(m.Banned)
	return nil
}

type AlterGame struct {
	Code  GameCode
	Flag  uint8
	Value bool
}

const AlterGameFlagPublic = 1

func (m *AlterGame) Tag() uint8           { return uint8(RootTagAlterGame) }
func (m *AlterGame) Container() Container { return ContainerRoot }

func (m *AlterGame) ReadFrom(r *Reader) error {
	code, err := r.ReadInt32()
	if err != nil {
		return err
	}
	m.Code = GameCode(code)
	if m.Flag, err = r.ReadUint8(); err != nil {
		return err
	}
	m.Value, err = r.ReadBool()
	return err
}

func (m *AlterGame) WriteTo(w *Writer) error {
	w.WriteInt32(int32(m.Code))
	w.WriteUint8(m.Flag)
	w.WriteBool(m.Value)
	return nil
}

// WaitForHost parks a joiner until the room's host finishes its own join
// handshake.
type WaitForHost struct {
	Code     GameCode
	ClientID int32
}

func (m *WaitForHost) Tag() uint8           { return uint8(RootTagWaitForHost) }
func (m *WaitForHost) Container() Container { return ContainerRoot }

func (m *WaitForHost) ReadFrom(r *Reader) error {
	code, err := r.ReadInt32()
	if err != nil {
		return err
	}
	m.Code = GameCode(code)
	m.ClientID, err = r.ReadInt32()
	return err
}

func (m *WaitForHost) WriteTo(w *Writer) error {
	w.WriteInt32(int32(m.Code))
	w.WriteInt32(m.ClientID)
	return nil
}

// Redirect sends a client to another node.
type Redirect struct {
	IP   [4]byte
	Port uint16
}

func (m *Redirect) Tag() uint8           { return uint8(RootTagRedirect) }
func (m *Redirect) Container() Container { return ContainerRoot }

func (m *Redirect) ReadFrom(r *Reader) error {
	ip, err := r.ReadBytes(4)
	if err != nil {
		return err
	}
	copy(m.IP[:], ip)
	m.Port, err = r.ReadUint16()
	return err
}

func (m *Redirect) WriteTo(w *Writer) error {
	w.WriteBytes(m.IP[:])
	w.WriteUint16(m.Port)
	return nil
}

// GameDataMessage fans game state out to every member of a room.
type GameDataMessage struct {
	Code  GameCode
	Items []Message
}

func (m *GameDataMessage) Tag() uint8           { return uint8(RootTagGameData) }
func (m *GameDataMessage) Container() Container { return ContainerRoot }
func (m *GameDataMessage) Children() []Message  { return m.Items }

func (m *GameDataMessage) ReadFrom(r *Reader) error {
	code, err := r.ReadInt32()
	if err != nil {
		return err
	}
	m.Code = GameCode(code)
	m.Items, err = readChildFrames(r, ContainerGameData)
	return err
}

func (m *GameDataMessage) WriteTo(w *Writer) error {
	w.WriteInt32(int32(m.Code))
	return writeChildFrames(w, m.Items)
}

func (m *GameDataMessage) ResolveChildren(resolve ChildResolver) error {
	return resolveChildFrames(m.Items, resolve)
}

// GameDataToMessage is the targeted variant: only the named client receives
// the payload. A send path uses either this or GameDataMessage, never both.
type GameDataToMessage struct {
	Code   GameCode
	Target int32
	Items  []Message
}

func (m *GameDataToMessage) Tag() uint8           { return uint8(RootTagGameDataTo) }
func (m *GameDataToMessage) Container() Container { return ContainerRoot }
func (m *GameDataToMessage) Children() []Message  { return m.Items }

func (m *GameDataToMessage) ReadFrom(r *Reader) error {
	code, err := r.ReadInt32()
	if err != nil {
		return err
	}
	m.Code = GameCode(code)
	if m.Target, err = r.ReadPacked(); err != nil {
		return err
	}
	m.Items, err = readChildFrames(r, ContainerGameData)
	return err
}

func (m *GameDataToMessage) WriteTo(w *Writer) error {
	w.WriteInt32(int32(m.Code))
	w.WritePacked(m.Target)
	return writeChildFrames(w, m.Items)
}

func (m *GameDataToMessage) ResolveChildren(resolve ChildResolver) error {
	return resolveChildFrames(m.Items, resolve)
}

// ReactorMessage wraps one message from the reactor tag namespace.
type ReactorMessage struct {
	Inner Message
}

func (m *ReactorMessage) Tag() uint8           { return uint8(RootTagReactor) }
func (m *ReactorMessage) Container() Container { return ContainerRoot }

func (m *ReactorMessage) Children() []Message {
	if m.Inner == nil {
		return nil
	}
	return []Message{m.Inner}
}

func (m *ReactorMessage) ReadFrom(r *Reader) error {
	tag, err := r.ReadUint8()
	if err != nil {
		return err
	}
	m.Inner = &Unknown{RawTag: tag, In: ContainerReactor, Raw: r.ReadRemaining()}
	return nil
}

func (m *ReactorMessage) WriteTo(w *Writer) error {
	if m.Inner == nil {
		return nil
	}
	w.WriteUint8(m.Inner.Tag())
	return m.Inner.WriteTo(w)
}

func (m *ReactorMessage) ResolveChildren(resolve ChildResolver) error {
	unk, ok := m.Inner.(*Unknown)
	if !ok {
		return nil
	}
	inner, err := resolve(ContainerReactor, unk.RawTag, NewReader(unk.Raw))
	if err != nil {
		return err
	}
	m.Inner = inner
	return nil
}

// ReactorHandshake enumerates what the server expects back from a modded
// client.
type ReactorHandshake struct {
	Brand   string
	Version string
}

func (m *ReactorHandshake) Tag() uint8           { return uint8(ReactorTagHandshake) }
func (m *ReactorHandshake) Container() Container { return ContainerReactor }

func (m *ReactorHandshake) ReadFrom(r *Reader) error {
	var err error
	if m.Brand, err = r.ReadString(); err != nil {
		return err
	}
	m.Version, err = r.ReadString()
	return err
}

func (m *ReactorHandshake) WriteTo(w *Writer) error {
	w.WriteString(m.Brand)
	w.WriteString(m.Version)
	return nil
}

// ModDeclaration names one mod the sender knows about.
type ModDeclaration struct {
	ID      string
	Version string
}

func (m *ModDeclaration) Tag() uint8           { return uint8(ReactorTagModDeclaration) }
func (m *ModDeclaration) Container() Container { return ContainerReactor }

func (m *ModDeclaration) ReadFrom(r *Reader) error {
	var err error
	if m.ID, err = r.ReadString(); err != nil {
		return err
	}
	m.Version, err = r.ReadString()
	return err
}

func (m *ModDeclaration) WriteTo(w *Writer) error {
	w.WriteString(m.ID)
	w.WriteString(m.Version)
	return nil
}

func readChildFrames(r *Reader, c Container) ([]Message, error) {
	var items []Message
	for r.HasNext() {
		tag, child, err := r.ReadMessage()
		if err != nil {
			return nil, err
		}
		items = append(items, &Unknown{RawTag: tag, In: c, Raw: child.ReadRemaining()})
	}
	return items, nil
}

func writeChildFrames(w *Writer, items []Message) error {
	for _, item := range items {
		if err := w.WriteMessage(item); err != nil {
			return err
		}
	}
	return nil
}

func resolveChildFrames(items []Message, resolve ChildResolver) error {
	for i, item := range items {
		unk, ok := item.(*Unknown)
		if !ok {
			continue
		}
		msg, err := resolve(unk.In, unk.RawTag, NewReader(unk.Raw))
		if err != nil {
			return err
		}
		items[i] = msg
	}
	return nil
}
