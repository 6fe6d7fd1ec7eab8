package connection

import (
	"log/slog"
	"net"
	"sync"

	"github.com/mirahq/mira/internal/protocol"
	"github.com/mirahq/mira/internal/transport"
)

// State tracks where a client is in its lifecycle. A connection only
// receives game traffic once identified.
type State int

const (
	StateUnidentified State = iota
	StateIdentified
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnidentified:
		return "unidentified"
	case StateIdentified:
		return "identified"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// RoomRef is the slice of a room a connection needs to know about. Declared
// here so this package does not depend on the room engine.
type RoomRef interface {
	Code() protocol.GameCode
	HandleLeave(conn *Connection, reason protocol.DisconnectReason)
}

// Connection is one remote client endpoint: its session, identity from the
// hello handshake and current room membership.
type Connection struct {
	ID      int32
	Addr    *net.UDPAddr
	Session *transport.Session

	mu         sync.Mutex
	state      State
	identified bool
	username   string
	version    protocol.ClientVersion
	mods       []protocol.Mod
	room       RoomRef
	playerID   uint8

	logger *slog.Logger
}

func New(id int32, addr *net.UDPAddr, session *transport.Session, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{
		ID:      id,
		Addr:    addr,
		Session: session,
		logger:  logger.With("client", id, "addr", addr.String()),
	}
}

func (c *Connection) Logger() *slog.Logger {
	return c.logger
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identify records the hello handshake and promotes the connection.
func (c *Connection) Identify(username string, version protocol.ClientVersion, mods []protocol.Mod) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdentified
	c.identified = true
	c.username = username
	c.version = version
	c.mods = mods
}

func (c *Connection) Identified() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateIdentified
}

// EverIdentified reports whether the hello handshake completed at some
// point, whatever the current state. Bookkeeping tied to identification
// needs this after a disconnect.
func (c *Connection) EverIdentified() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identified
}

func (c *Connection) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

func (c *Connection) Version() protocol.ClientVersion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *Connection) Mods() []protocol.Mod {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mods
}

func (c *Connection) Modded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mods) > 0
}

func (c *Connection) Room() RoomRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Connection) SetRoom(r RoomRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = r
}

func (c *Connection) PlayerID() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

func (c *Connection) SetPlayerID(id uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = id
}

// SendReliable serializes messages into one reliable packet.
func (c *Connection) SendReliable(messages ...protocol.Message) error {
	w := protocol.NewWriter()
	for _, m := range messages {
		if err := w.WriteMessage(m); err != nil {
			return err
		}
	}
	_, err := c.Session.SendReliable(w.Bytes())
	return err
}

// SendUnreliable serializes messages into one unreliable packet.
func (c *Connection) SendUnreliable(messages ...protocol.Message) error {
	w := protocol.NewWriter()
	for _, m := range messages {
		if err := w.WriteMessage(m); err != nil {
			return err
		}
	}
	return c.Session.SendUnreliable(w.Bytes())
}

// Disconnect informs the client and tears the session down. Safe to call
// more than once; only the first call sends the packet.
func (c *Connection) Disconnect(reason protocol.DisconnectReason, message string) {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	if err := c.Session.SendRaw(protocol.WriteDisconnect(reason, message)); err != nil {
		c.logger.Debug("disconnect send failed", "error", err)
	}
	c.Session.Close()
	c.logger.Info("client disconnected", "reason", reason.String())
}

// MarkDisconnected flips the state without sending anything, for peers that
// told us they left or timed out.
func (c *Connection) MarkDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateDisconnected
}
