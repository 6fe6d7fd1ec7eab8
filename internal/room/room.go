package room

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mirahq/mira/internal/connection"
	"github.com/mirahq/mira/internal/events"
	"github.com/mirahq/mira/internal/netobject"
	"github.com/mirahq/mira/internal/protocol"
	"github.com/mirahq/mira/pkg/config"
)

// GameState is the room lifecycle. Ended is not terminal: clients stay
// connected and re-join back into NotStarted.
type GameState int

const (
	StateNotStarted GameState = iota
	StateStarted
	StateEnded
)

func (s GameState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarted:
		return "started"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

var (
	ErrGameFull    = errors.New("room: game is full")
	ErrGameStarted = errors.New("room: game already started")
	ErrBanned      = errors.New("room: banned from this game")
	ErrNotHost     = errors.New("room: operation requires host")
	ErrDestroyed   = errors.New("room: game no longer exists")
)

// TickInterval paces the dirty-object flush, 50 times a second.
const TickInterval = 20 * time.Millisecond

// Room is one game lobby: its members, host, spawned objects and settings.
// The relay model means members simulate the game themselves; the room
// routes their traffic and stays authoritative only over membership,
// host assignment and kicks.
type Room struct {
	cfg    *config.Config
	logger *slog.Logger
	events *events.Registry

	mu         sync.Mutex
	code       protocol.GameCode
	state      GameState
	public     bool
	options    protocol.GameOptions
	hostID     int32
	prevHostID int32
	players    map[int32]*connection.Connection
	joinOrder  []int32
	bans       map[string]struct{}
	objects    map[uint32]netobject.Component
	dirty      []netobject.Component
	votes      *voteTally
	destroyed  bool

	stop      chan struct{}
	onDestroy func(*Room)
}

func newRoom(code protocol.GameCode, options protocol.GameOptions, cfg *config.Config, ev *events.Registry, logger *slog.Logger, onDestroy func(*Room)) *Room {
	r := &Room{
		cfg:       cfg,
		logger:    logger.With("room", code.String()),
		events:    ev,
		code:      code,
		options:   options,
		players:   make(map[int32]*connection.Connection),
		bans:      make(map[string]struct{}),
		objects:   make(map[uint32]netobject.Component),
		votes:     newVoteTally(),
		stop:      make(chan struct{}),
		onDestroy: onDestroy,
	}
	go r.tickLoop()
	return r
}

func (r *Room) Code() protocol.GameCode {
	return r.code
}

func (r *Room) State() GameState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) HostID() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostID
}

func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

func (r *Room) Public() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.public
}

func (r *Room) Options() protocol.GameOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.options
}

func (r *Room) SetOptions(opts protocol.GameOptions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.options = opts
}

// HandleJoin admits a connection. The joiner gets the roster, everyone else
// gets the join announcement. Joining an ended game is the rejoin flow: only
// the host of the finished game restarts the lobby, everyone arriving before
// it is parked with a WaitForHost. The host's rejoin drops the room back to
// NotStarted and refreshes every member's roster.
func (r *Room) HandleJoin(conn *connection.Connection) error {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return ErrDestroyed
	}
	if _, banned := r.bans[conn.Addr.IP.String()]; banned {
		r.mu.Unlock()
		return ErrBanned
	}
	if r.state == StateStarted {
		r.mu.Unlock()
		return ErrGameStarted
	}
	if len(r.players) >= r.cfg.Room.MaxPlayers {
		r.mu.Unlock()
		return ErrGameFull
	}

	rejoin := r.state == StateEnded
	if rejoin && conn.ID != r.prevHostID {
		r.players[conn.ID] = conn
		r.joinOrder = append(r.joinOrder, conn.ID)
		r.mu.Unlock()

		conn.SetRoom(r)
		if err := conn.SendReliable(&protocol.WaitForHost{Code: r.code, ClientID: conn.ID}); err != nil {
			conn.Logger().Debug("wait for host send failed", "error", err)
		}
		r.logger.Info("player waiting for host", "client", conn.ID)
		return nil
	}
	if rejoin {
		r.state = StateNotStarted
		r.hostID = conn.ID
		r.prevHostID = 0
	}

	r.players[conn.ID] = conn
	r.joinOrder = append(r.joinOrder, conn.ID)
	if r.hostID == 0 {
		r.hostID = conn.ID
	}
	hostID := r.hostID

	others := make([]int32, 0, len(r.players)-1)
	members := make([]*connection.Connection, 0, len(r.players))
	for id, c := range r.players {
		members = append(members, c)
		if id != conn.ID {
			others = append(others, id)
		}
	}
	r.mu.Unlock()

	conn.SetRoom(r)

	joined := &protocol.JoinedGame{
		Code: r.code, ClientID: conn.ID, HostID: hostID, Others: others,
	}
	if err := conn.SendReliable(joined); err != nil {
		conn.Logger().Debug("joined game send failed", "error", err)
	}

	update := &protocol.JoinGameUpdate{Code: r.code, ClientID: conn.ID, HostID: hostID}
	for _, c := range members {
		if c.ID == conn.ID {
			continue
		}
		if rejoin {
			// Everyone needs the rebuilt roster, not just the delta.
			refreshOthers := make([]int32, 0, len(members)-1)
			for _, o := range members {
				if o.ID != c.ID {
					refreshOthers = append(refreshOthers, o.ID)
				}
			}
			c.SendReliable(&protocol.JoinedGame{
				Code: r.code, ClientID: c.ID, HostID: hostID, Others: refreshOthers,
			})
			continue
		}
		c.SendReliable(update)
	}

	r.logger.Info("player joined",
		"client", conn.ID, "username", conn.Username(), "players", len(members))
	r.events.Dispatch("player.join", map[string]any{
		"room": r.code.String(), "client": conn.ID, "username": conn.Username(),
	})
	return nil
}

// HandleLeave removes a member, migrating the host when the host left. The
// room never has a missing host while members remain.
func (r *Room) HandleLeave(conn *connection.Connection, reason protocol.DisconnectReason) {
	r.mu.Lock()
	if _, ok := r.players[conn.ID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.players, conn.ID)
	for i, id := range r.joinOrder {
		if id == conn.ID {
			r.joinOrder = append(r.joinOrder[:i:i], r.joinOrder[i+1:]...)
			break
		}
	}
	r.votes.removeVoter(conn.ID)
	r.votes.clearTarget(conn.ID)
	r.dropOwnedObjectsLocked(conn.ID)

	empty := len(r.players) == 0
	if r.hostID == conn.ID && !empty {
		// Oldest remaining member inherits the room.
		r.hostID = r.joinOrder[0]
		r.logger.Info("host migrated", "from", conn.ID, "to", r.hostID)
	}
	hostID := r.hostID
	members := r.membersLocked()
	r.mu.Unlock()

	conn.SetRoom(nil)

	remove := &protocol.RemovePlayer{
		Code: r.code, ClientID: conn.ID, HostID: hostID, Reason: reason,
	}
	for _, c := range members {
		c.SendReliable(remove)
	}

	r.logger.Info("player left", "client", conn.ID, "reason", reason.String())
	r.events.Dispatch("player.leave", map[string]any{
		"room": r.code.String(), "client": conn.ID, "username": conn.Username(),
	})

	if empty && r.cfg.Room.ReapEmpty {
		r.Destroy(protocol.DisconnectReasonNone)
	}
}

// HandleStart transitions to Started on the host's word.
func (r *Room) HandleStart(conn *connection.Connection) error {
	r.mu.Lock()
	if conn.ID != r.hostID {
		r.mu.Unlock()
		return ErrNotHost
	}
	r.state = StateStarted
	members := r.membersLocked()
	r.mu.Unlock()

	start := &protocol.StartGame{Code: r.code}
	for _, c := range members {
		c.SendReliable(start)
	}
	r.logger.Info("game started", "players", len(members))
	r.events.Dispatch("game.start", map[string]any{"room": r.code.String()})
	return nil
}

// HandleEnd transitions to Ended. Members stay connected and are expected
// to re-join; spawned objects and votes do not survive the game. The host
// seat is vacated and remembered, so the rejoin flow can tell the returning
// host apart from members who beat it back into the room.
func (r *Room) HandleEnd(conn *connection.Connection, reason protocol.GameOverReason) error {
	r.mu.Lock()
	if conn.ID != r.hostID {
		r.mu.Unlock()
		return ErrNotHost
	}
	r.state = StateEnded
	r.objects = make(map[uint32]netobject.Component)
	r.dirty = nil
	r.votes = newVoteTally()
	members := r.membersLocked()

	// Membership resets too: everyone re-joins through HandleJoin.
	r.players = make(map[int32]*connection.Connection)
	r.joinOrder = nil
	r.prevHostID = r.hostID
	r.hostID = 0
	r.mu.Unlock()

	end := &protocol.EndGame{Code: r.code, Reason: reason}
	for _, c := range members {
		c.SendReliable(end)
		c.SetRoom(r) // still attached for the rejoin
	}
	r.logger.Info("game ended", "reason", uint8(reason))
	r.events.Dispatch("game.end", map[string]any{
		"room": r.code.String(), "reason": uint8(reason),
	})
	return nil
}

// Kick throws a member out, optionally banning their address from the room.
func (r *Room) Kick(target int32, banned bool) {
	r.mu.Lock()
	conn, ok := r.players[target]
	if !ok {
		r.mu.Unlock()
		return
	}
	if banned {
		r.bans[conn.Addr.IP.String()] = struct{}{}
	}
	members := r.membersLocked()
	r.mu.Unlock()

	kick := &protocol.KickPlayer{Code: r.code, ClientID: target, Banned: banned}
	for _, c := range members {
		c.SendReliable(kick)
	}

	reason := protocol.DisconnectReasonKicked
	if banned {
		reason = protocol.DisconnectReasonBanned
	}
	r.HandleLeave(conn, reason)

	// The connection layer listens for this and tears the client down.
	r.events.Dispatch("player.kick", map[string]any{
		"room": r.code.String(), "client": target, "banned": banned,
	})
}

// SetPublic flips lobby visibility and tells every member.
func (r *Room) SetPublic(value bool) {
	r.mu.Lock()
	r.public = value
	members := r.membersLocked()
	r.mu.Unlock()

	alter := &protocol.AlterGame{Code: r.code, Flag: protocol.AlterGameFlagPublic, Value: value}
	for _, c := range members {
		c.SendReliable(alter)
	}
}

// IsBanned reports whether an address is banned from this room.
func (r *Room) IsBanned(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bans[ip]
	return ok
}

// Member returns the connection for a client id, nil when absent.
func (r *Room) Member(id int32) *connection.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.players[id]
}

// Host returns the host connection, nil for an empty room.
func (r *Room) Host() *connection.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.players[r.hostID]
}

// Broadcast sends messages to every member except the excluded client id.
// Pass 0 to reach everyone.
func (r *Room) Broadcast(exclude int32, msgs ...protocol.Message) {
	r.mu.Lock()
	members := r.membersLocked()
	r.mu.Unlock()

	for _, c := range members {
		if c.ID == exclude {
			continue
		}
		if err := c.SendReliable(msgs...); err != nil {
			c.Logger().Debug("broadcast send failed", "error", err)
		}
	}
}

// SendTo delivers messages to one member only.
func (r *Room) SendTo(target int32, msgs ...protocol.Message) {
	if conn := r.Member(target); conn != nil {
		if err := conn.SendReliable(msgs...); err != nil {
			conn.Logger().Debug("targeted send failed", "error", err)
		}
	}
}

// Destroy tears the room down, telling every member the game is gone.
func (r *Room) Destroy(reason protocol.DisconnectReason) {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	members := r.membersLocked()
	r.players = make(map[int32]*connection.Connection)
	r.joinOrder = nil
	r.mu.Unlock()

	close(r.stop)

	remove := &protocol.RemoveGame{Reason: reason}
	for _, c := range members {
		c.SendReliable(remove)
		c.SetRoom(nil)
	}

	r.logger.Info("room destroyed")
	r.events.Dispatch("room.destroy", map[string]any{"room": r.code.String()})
	if r.onDestroy != nil {
		r.onDestroy(r)
	}
}

func (r *Room) membersLocked() []*connection.Connection {
	members := make([]*connection.Connection, 0, len(r.players))
	for _, c := range r.players {
		members = append(members, c)
	}
	return members
}
