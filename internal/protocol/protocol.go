package protocol

// MaxPacketSize is the largest datagram the server processes normally.
// Anything bigger trips the massivePackets rule before regular handling.
const MaxPacketSize = 1024

const HazelVersion = 0

// SendOption is the first byte of every datagram.
type SendOption uint8

const (
	SendOptionUnreliable SendOption = 0
	SendOptionReliable   SendOption = 1
	SendOptionHello      SendOption = 8
	SendOptionDisconnect SendOption = 9
	SendOptionAck        SendOption = 10
	SendOptionPing       SendOption = 12
)

// Direction distinguishes the two tag namespaces a message type can occupy.
type Direction int

const (
	DirectionClientToServer Direction = iota
	DirectionServerToClient
)

// Container identifies the tag namespace a message was decoded from. Root,
// game-data, rpc and reactor messages each number their tags independently.
type Container int

const (
	ContainerRoot Container = iota
	ContainerGameData
	ContainerRPC
	ContainerReactor
)

func (c Container) String() string {
	switch c {
	case ContainerRoot:
		return "root"
	case ContainerGameData:
		return "gamedata"
	case ContainerRPC:
		return "rpc"
	case ContainerReactor:
		return "reactor"
	default:
		return "unknown"
	}
}

type RootTag uint8

const (
	RootTagHostGame     RootTag = 0
	RootTagJoinGame     RootTag = 1
	RootTagStartGame    RootTag = 2
	RootTagRemoveGame   RootTag = 3
	RootTagRemovePlayer RootTag = 4
	RootTagGameData     RootTag = 5
	RootTagGameDataTo   RootTag = 6
	RootTagJoinedGame   RootTag = 7
	RootTagEndGame      RootTag = 8
	RootTagAlterGame    RootTag = 10
	RootTagKickPlayer   RootTag = 11
	RootTagWaitForHost  RootTag = 12
	RootTagRedirect     RootTag = 13
	RootTagReactor      RootTag = 255
)

type GameDataTag uint8

const (
	GameDataTagData        GameDataTag = 1
	GameDataTagRPC         GameDataTag = 2
	GameDataTagSpawn       GameDataTag = 4
	GameDataTagDespawn     GameDataTag = 5
	GameDataTagSceneChange GameDataTag = 6
	GameDataTagReady       GameDataTag = 7
)

type RPCTag uint8

const (
	RPCTagSyncSettings    RPCTag = 2
	RPCTagCheckName       RPCTag = 5
	RPCTagSetName         RPCTag = 6
	RPCTagCheckColor      RPCTag = 7
	RPCTagSetColor        RPCTag = 8
	RPCTagSendChat        RPCTag = 13
	RPCTagSetStartCounter RPCTag = 18
	RPCTagClose           RPCTag = 22
	RPCTagCastVote        RPCTag = 24
	RPCTagClearVote       RPCTag = 25
	RPCTagAddVote         RPCTag = 26
)

type ReactorTag uint8

const (
	ReactorTagHandshake      ReactorTag = 0
	ReactorTagModDeclaration ReactorTag = 1
)

type DisconnectReason uint8

const (
	DisconnectReasonNone             DisconnectReason = 0
	DisconnectReasonGameFull         DisconnectReason = 1
	DisconnectReasonGameStarted      DisconnectReason = 2
	DisconnectReasonGameNotFound     DisconnectReason = 3
	DisconnectReasonIncorrectVersion DisconnectReason = 5
	DisconnectReasonBanned           DisconnectReason = 6
	DisconnectReasonKicked           DisconnectReason = 7
	DisconnectReasonCustom           DisconnectReason = 8
	DisconnectReasonInvalidName      DisconnectReason = 9
	DisconnectReasonHacking          DisconnectReason = 10
	DisconnectReasonNotAuthorized    DisconnectReason = 11
	DisconnectReasonServerShutdown   DisconnectReason = 17
	DisconnectReasonError            DisconnectReason = 208
)

func (d DisconnectReason) String() string {
	switch d {
	case DisconnectReasonNone:
		return "none"
	case DisconnectReasonGameFull:
		return "game full"
	case DisconnectReasonGameStarted:
		return "game already started"
	case DisconnectReasonGameNotFound:
		return "game not found"
	case DisconnectReasonIncorrectVersion:
		return "incorrect client version"
	case DisconnectReasonBanned:
		return "banned"
	case DisconnectReasonKicked:
		return "kicked"
	case DisconnectReasonCustom:
		return "custom"
	case DisconnectReasonInvalidName:
		return "invalid name"
	case DisconnectReasonHacking:
		return "suspicious activity"
	case DisconnectReasonNotAuthorized:
		return "not authorized"
	case DisconnectReasonServerShutdown:
		return "server shutting down"
	case DisconnectReasonError:
		return "server error"
	default:
		return "unknown"
	}
}

// GameOverReason is carried by EndGame.
type GameOverReason uint8

const (
	GameOverReasonHumansByVote GameOverReason = iota
	GameOverReasonHumansByTask
	GameOverReasonImpostorByVote
	GameOverReasonImpostorByKill
	GameOverReasonImpostorBySabotage
	GameOverReasonImpostorDisconnect
	GameOverReasonHumansDisconnect
)

// Message is one decoded (or opaque) tagged message.
type Message interface {
	Tag() uint8
	Container() Container
	ReadFrom(r *Reader) error
	WriteTo(w *Writer) error
}

// Parent is implemented by messages that carry nested child messages, so
// dispatch can recurse into them.
type Parent interface {
	Children() []Message
}

// Unknown preserves a message whose tag has no registered parser. The raw
// body is kept byte-exact so the message can be forwarded untouched.
type Unknown struct {
	RawTag uint8
	In     Container
	Raw    []byte
}

func (u *Unknown) Tag() uint8           { return u.RawTag }
func (u *Unknown) Container() Container { return u.In }

func (u *Unknown) ReadFrom(r *Reader) error {
	u.Raw = append(u.Raw[:0], r.ReadRemaining()...)
	return nil
}

func (u *Unknown) WriteTo(w *Writer) error {
	w.WriteBytes(u.Raw)
	return nil
}
