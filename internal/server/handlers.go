package server

import (
	"fmt"
	"strings"

	"github.com/mirahq/mira/internal/anticheat"
	"github.com/mirahq/mira/internal/coord"
	"github.com/mirahq/mira/internal/decoder"
	"github.com/mirahq/mira/internal/events"
	"github.com/mirahq/mira/internal/protocol"
	"github.com/mirahq/mira/internal/room"
)

// registerHandlers wires the worker's behavior onto the decoder. Request
// style messages are answered here; relay messages only get policy checks,
// the actual forwarding happens in route once nothing canceled them.
func (w *Worker) registerHandlers() {
	root := protocol.ContainerRoot
	gd := protocol.ContainerGameData
	rpc := protocol.ContainerRPC

	w.dec.On(root, uint8(protocol.RootTagHostGame), w.onHostGame)
	w.dec.On(root, uint8(protocol.RootTagJoinGame), w.onJoinGame)
	w.dec.On(root, uint8(protocol.RootTagStartGame), w.onStartGame)
	w.dec.On(root, uint8(protocol.RootTagEndGame), w.onEndGame)
	w.dec.On(root, uint8(protocol.RootTagKickPlayer), w.onKickPlayer)
	w.dec.On(root, uint8(protocol.RootTagAlterGame), w.onAlterGame)
	w.dec.On(root, uint8(protocol.RootTagGameData), w.onGameDataRoot)
	w.dec.On(root, uint8(protocol.RootTagGameDataTo), w.onGameDataRoot)

	w.dec.On(gd, uint8(protocol.GameDataTagData), w.onData)
	w.dec.On(gd, uint8(protocol.GameDataTagSpawn), w.onSpawn)
	w.dec.On(gd, uint8(protocol.GameDataTagDespawn), w.onDespawn)
	w.dec.On(gd, uint8(protocol.GameDataTagSceneChange), w.onSceneChange)

	w.dec.On(rpc, uint8(protocol.RPCTagCheckName), w.onCheckName)
	w.dec.On(rpc, uint8(protocol.RPCTagSyncSettings), w.onSyncSettings)
	w.dec.On(rpc, uint8(protocol.RPCTagSendChat), w.onSendChat)
	w.dec.On(rpc, uint8(protocol.RPCTagCastVote), w.onCastVote)
	w.dec.On(rpc, uint8(protocol.RPCTagAddVote), w.onAddVote)

	w.events.Subscribe("player.kick", w.onPlayerKick)
}

// onPlayerKick finishes a room kick at the connection layer. Removing the
// member from the roster is not enough; the kicked client's connection is
// torn down with the matching reason.
func (w *Worker) onPlayerKick(e *events.Event) {
	id, _ := e.Fields["client"].(int32)
	conn := w.conns.Get(id)
	if conn == nil {
		return
	}
	reason := protocol.DisconnectReasonKicked
	if banned, _ := e.Fields["banned"].(bool); banned {
		reason = protocol.DisconnectReasonBanned
	}
	w.dropConnection(conn, reason, "", true)
}

func (w *Worker) currentRoom(ctx *decoder.Context) *room.Room {
	rm, _ := ctx.Conn.Room().(*room.Room)
	return rm
}

// requireHost cancels and penalizes when a non-host sends a host-only
// message.
func (w *Worker) requireHost(ctx *decoder.Context, rm *room.Room) bool {
	if rm == nil {
		ctx.Cancel()
		return false
	}
	if ctx.Conn.ID != rm.HostID() {
		ctx.Cancel()
		w.punishConn(ctx.Conn, "hostOnly")
		return false
	}
	return true
}

func (w *Worker) onHostGame(ctx *decoder.Context, msg protocol.Message) {
	m := msg.(*protocol.HostGame)
	ctx.Cancel() // answered here, never forwarded

	if err := m.Options.Validate(w.cfg.Room.MaxPlayers); err != nil {
		ctx.Conn.Logger().Debug("host game with bad options", "error", err)
		w.punishConn(ctx.Conn, "invalidGameOptions")
		return
	}

	rm, err := w.rooms.Create(m.Options)
	if err != nil {
		ctx.Conn.Logger().Error("room create failed", "error", err)
		ctx.Conn.SendReliable(&protocol.JoinGameError{Reason: protocol.DisconnectReasonError})
		return
	}

	placement := fmt.Sprintf("%s:%d", w.cfg.Server.PublicIP, w.cfg.Server.Port)
	if err := w.store.Set(coord.RoomKey(rm.Code().String()), placement, 0); err != nil {
		w.logger.Error("room placement write failed", "room", rm.Code().String(), "error", err)
	}
	w.publishStats(w.writeStats)

	ctx.Conn.SendReliable(&protocol.HostGameResponse{Code: rm.Code()})
}

func (w *Worker) onJoinGame(ctx *decoder.Context, msg protocol.Message) {
	m := msg.(*protocol.JoinGame)
	ctx.Cancel()

	rm := w.rooms.Get(m.Code)
	if rm == nil {
		ctx.Conn.SendReliable(&protocol.JoinGameError{Reason: protocol.DisconnectReasonGameNotFound})
		return
	}

	if w.cfg.Reactor.RequireHostMods {
		if host := rm.Host(); host != nil && host.ID != ctx.Conn.ID {
			if mismatch := modMismatch(host.Mods(), ctx.Conn.Mods()); mismatch != "" {
				ctx.Conn.SendReliable(&protocol.JoinGameError{
					Reason:  protocol.DisconnectReasonCustom,
					Message: mismatch,
				})
				return
			}
		}
	}

	// A member re-sending join (reliable retransmit crossing our ack) is
	// detached first so the join below starts clean.
	if prev := ctx.Conn.Room(); prev != nil {
		prev.HandleLeave(ctx.Conn, protocol.DisconnectReasonNone)
	}

	switch err := rm.HandleJoin(ctx.Conn); err {
	case nil:
	case room.ErrGameFull:
		ctx.Conn.SendReliable(&protocol.JoinGameError{Reason: protocol.DisconnectReasonGameFull})
	case room.ErrGameStarted:
		ctx.Conn.SendReliable(&protocol.JoinGameError{Reason: protocol.DisconnectReasonGameStarted})
	case room.ErrBanned:
		ctx.Conn.SendReliable(&protocol.JoinGameError{Reason: protocol.DisconnectReasonBanned})
	case room.ErrDestroyed:
		ctx.Conn.SendReliable(&protocol.JoinGameError{Reason: protocol.DisconnectReasonGameNotFound})
	default:
		ctx.Conn.Logger().Error("join failed", "error", err)
		ctx.Conn.SendReliable(&protocol.JoinGameError{Reason: protocol.DisconnectReasonError})
	}
}

func (w *Worker) onStartGame(ctx *decoder.Context, msg protocol.Message) {
	ctx.Cancel()
	rm := w.currentRoom(ctx)
	if !w.requireHost(ctx, rm) {
		return
	}
	if err := rm.HandleStart(ctx.Conn); err != nil {
		ctx.Conn.Logger().Debug("start rejected", "error", err)
	}
}

func (w *Worker) onEndGame(ctx *decoder.Context, msg protocol.Message) {
	m := msg.(*protocol.EndGame)
	ctx.Cancel()
	rm := w.currentRoom(ctx)
	if !w.requireHost(ctx, rm) {
		return
	}
	if err := rm.HandleEnd(ctx.Conn, m.Reason); err != nil {
		ctx.Conn.Logger().Debug("end rejected", "error", err)
	}
}

func (w *Worker) onKickPlayer(ctx *decoder.Context, msg protocol.Message) {
	m := msg.(*protocol.KickPlayer)
	ctx.Cancel()
	rm := w.currentRoom(ctx)
	if !w.requireHost(ctx, rm) {
		return
	}
	rm.Kick(m.ClientID, m.Banned)
}

func (w *Worker) onAlterGame(ctx *decoder.Context, msg protocol.Message) {
	m := msg.(*protocol.AlterGame)
	ctx.Cancel()
	rm := w.currentRoom(ctx)
	if !w.requireHost(ctx, rm) {
		return
	}
	if m.Flag == protocol.AlterGameFlagPublic {
		rm.SetPublic(m.Value)
	}
}

// onGameDataRoot only verifies the sender names their own room; the policy
// on the children runs in their own listeners.
func (w *Worker) onGameDataRoot(ctx *decoder.Context, msg protocol.Message) {
	rm := w.currentRoom(ctx)
	if rm == nil {
		ctx.Cancel()
		return
	}
	var code protocol.GameCode
	switch m := msg.(type) {
	case *protocol.GameDataMessage:
		code = m.Code
	case *protocol.GameDataToMessage:
		code = m.Code
	}
	if code != rm.Code() {
		ctx.Cancel()
		w.punishConn(ctx.Conn, "malformedPackets")
	}
}

func (w *Worker) onData(ctx *decoder.Context, msg protocol.Message) {
	m := msg.(*protocol.DataMessage)
	rm := w.currentRoom(ctx)
	if rm == nil {
		ctx.Cancel()
		return
	}
	if !rm.OwnsObject(ctx.Conn.ID, m.NetID) {
		ctx.Cancel()
		w.punishConn(ctx.Conn, "objectOwnership")
		return
	}
	rm.ApplyData(m.NetID, m.Payload)
}

func (w *Worker) onSpawn(ctx *decoder.Context, msg protocol.Message) {
	m := msg.(*protocol.SpawnMessage)
	rm := w.currentRoom(ctx)
	if !w.requireHost(ctx, rm) {
		return
	}
	if err := rm.RegisterSpawn(m); err != nil {
		ctx.Cancel()
		ctx.Conn.Logger().Debug("spawn rejected", "error", err)
		w.punishConn(ctx.Conn, "malformedPackets")
	}
}

// onSceneChange gates scene loads behind the host. A non-host announcing a
// scene change is trying to drive the lobby itself.
func (w *Worker) onSceneChange(ctx *decoder.Context, msg protocol.Message) {
	rm := w.currentRoom(ctx)
	w.requireHost(ctx, rm)
}

func (w *Worker) onDespawn(ctx *decoder.Context, msg protocol.Message) {
	m := msg.(*protocol.DespawnMessage)
	rm := w.currentRoom(ctx)
	if rm == nil {
		ctx.Cancel()
		return
	}
	if !rm.OwnsObject(ctx.Conn.ID, m.NetID) {
		ctx.Cancel()
		w.punishConn(ctx.Conn, "objectOwnership")
		return
	}
	rm.HandleDespawn(m.NetID)
}

// onCheckName holds clients to the username they identified with.
func (w *Worker) onCheckName(ctx *decoder.Context, msg protocol.Message) {
	m := msg.(*protocol.CheckNameRPC)
	if !anticheat.NamesEquivalent(ctx.Conn.Username(), m.Name) {
		ctx.Cancel()
		w.punishConn(ctx.Conn, "checkNameMismatch")
	}
}

func (w *Worker) onSyncSettings(ctx *decoder.Context, msg protocol.Message) {
	m := msg.(*protocol.SyncSettingsRPC)
	rm := w.currentRoom(ctx)
	if !w.requireHost(ctx, rm) {
		return
	}
	if err := m.Options.Validate(w.cfg.Room.MaxPlayers); err != nil {
		ctx.Cancel()
		w.punishConn(ctx.Conn, "invalidGameOptions")
		return
	}
	rm.SetOptions(m.Options)
}

func (w *Worker) onSendChat(ctx *decoder.Context, msg protocol.Message) {
	m := msg.(*protocol.SendChatRPC)
	rm := w.currentRoom(ctx)
	if rm == nil {
		ctx.Cancel()
		return
	}

	if w.cfg.Room.ChatCommands && strings.HasPrefix(m.Message, "/") {
		ctx.Cancel() // commands never reach other players
		w.handleChatCommand(ctx, rm, m.Message)
		return
	}

	canceled := w.events.Dispatch("player.chat", map[string]any{
		"room":     rm.Code().String(),
		"client":   ctx.Conn.ID,
		"username": ctx.Conn.Username(),
		"message":  m.Message,
	})
	if canceled {
		ctx.Cancel()
	}
}

func (w *Worker) handleChatCommand(ctx *decoder.Context, rm *room.Room, text string) {
	parts := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(parts) == 0 {
		return
	}
	command, args := parts[0], parts[1:]

	ctx.Conn.Logger().Info("chat command", "command", command, "room", rm.Code().String())
	w.events.Dispatch("player.command", map[string]any{
		"room":    rm.Code().String(),
		"client":  ctx.Conn.ID,
		"command": command,
		"args":    strings.Join(args, " "),
	})
}

// onCastVote tracks the meeting vote UI's kick votes. The voter is always
// the sending connection, whatever the packet claims.
func (w *Worker) onCastVote(ctx *decoder.Context, msg protocol.Message) {
	m := msg.(*protocol.CastVoteRPC)
	rm := w.currentRoom(ctx)
	if rm == nil {
		ctx.Cancel()
		return
	}
	target := rm.ClientByPlayerID(m.SuspectID)
	if target == 0 {
		return
	}
	rm.CastVote(ctx.Conn.ID, target)
}

func (w *Worker) onAddVote(ctx *decoder.Context, msg protocol.Message) {
	m := msg.(*protocol.AddVoteRPC)
	rm := w.currentRoom(ctx)
	if rm == nil {
		ctx.Cancel()
		return
	}
	if m.VoterID != ctx.Conn.ID {
		ctx.Cancel()
		w.punishConn(ctx.Conn, "objectOwnership")
		return
	}
	rm.CastVote(ctx.Conn.ID, m.TargetID)
}

// modMismatch compares two declared mod sets for the require-host-mods
// policy. Order does not matter; the first difference found is named.
func modMismatch(host, joiner []protocol.Mod) string {
	hostMods := make(map[string]string, len(host))
	for _, mod := range host {
		hostMods[mod.ID] = mod.Version
	}
	joinerMods := make(map[string]string, len(joiner))
	for _, mod := range joiner {
		joinerMods[mod.ID] = mod.Version
	}

	for id, version := range hostMods {
		have, ok := joinerMods[id]
		if !ok {
			return fmt.Sprintf("Missing mod the host uses: %s", id)
		}
		if have != version {
			return fmt.Sprintf("Mod version mismatch for %s: host has %s", id, version)
		}
	}
	for id := range joinerMods {
		if _, ok := hostMods[id]; !ok {
			return fmt.Sprintf("Extra mod the host lacks: %s", id)
		}
	}
	return ""
}
