package server

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/bep/debounce"
	"github.com/google/uuid"

	"github.com/mirahq/mira/internal/anticheat"
	"github.com/mirahq/mira/internal/connection"
	"github.com/mirahq/mira/internal/coord"
	"github.com/mirahq/mira/internal/decoder"
	"github.com/mirahq/mira/internal/events"
	"github.com/mirahq/mira/internal/protocol"
	"github.com/mirahq/mira/internal/room"
	"github.com/mirahq/mira/internal/transport"
	"github.com/mirahq/mira/pkg/config"
	"github.com/mirahq/mira/pkg/plugin"
)

// gameSocket is what the worker needs from its UDP socket. Tests substitute
// a capturing implementation.
type gameSocket interface {
	transport.PacketWriter
	ReadLoop(handle func(addr *net.UDPAddr, data []byte))
	Close()
}

// Worker is a game node: it terminates client sessions, owns rooms and
// relays game traffic between their members. A cluster runs many workers
// behind one balancer; a standalone deployment runs a single worker with
// AllowDirect and the in-memory store.
type Worker struct {
	cfg    *config.Config
	logger *slog.Logger

	nodeID  uuid.UUID
	socket  gameSocket
	conns   *connection.Manager
	rooms   *room.Registry
	dec     *decoder.Decoder
	cheat   *anticheat.Engine
	store   coord.Store
	events  *events.Registry
	plugins *plugin.Manager

	publishStats func(f func())
	startTime    time.Time
}

func NewWorker(cfg *config.Config, store coord.Store, logger *slog.Logger) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	socket, err := transport.Listen(cfg.Server.Port, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open game socket: %w", err)
	}

	ev := events.NewRegistry(logger)
	w := &Worker{
		cfg:          cfg,
		logger:       logger,
		nodeID:       uuid.New(),
		socket:       socket,
		conns:        connection.NewManager(logger),
		rooms:        room.NewRegistry(cfg, ev, logger),
		dec:          decoder.New(logger),
		cheat:        anticheat.New(cfg, store, logger),
		store:        store,
		events:       ev,
		plugins:      plugin.NewManager(ev, logger),
		publishStats: debounce.New(time.Second),
		startTime:    time.Now(),
	}

	w.rooms.OnDestroy = func(code protocol.GameCode) {
		if err := store.Del(coord.RoomKey(code.String())); err != nil {
			logger.Debug("room placement cleanup failed", "room", code.String(), "error", err)
		}
		w.publishStats(w.writeStats)
	}

	decoder.RegisterProtocol(w.dec)
	w.registerHandlers()

	if cfg.Plugins.Enabled {
		if err := w.plugins.LoadDir(cfg.Plugins.Dir); err != nil {
			return nil, err
		}
		w.plugins.Start()
	}

	logger.Info("worker ready",
		"node", w.nodeID.String(), "port", cfg.Server.Port, "name", cfg.Server.Name)
	return w, nil
}

// Run serves until the socket closes.
func (w *Worker) Run() {
	w.socket.ReadLoop(w.handleDatagram)
}

// Shutdown drains every room and connection, then releases the socket.
func (w *Worker) Shutdown() {
	w.logger.Info("worker shutting down")

	w.rooms.DestroyAll(protocol.DisconnectReasonServerShutdown)
	w.conns.ForEach(func(conn *connection.Connection) {
		w.dropConnection(conn, protocol.DisconnectReasonServerShutdown, "", true)
	})

	w.plugins.Stop()
	w.socket.Close()
	w.writeStats()
}

// NodeStats is what the status endpoint and the balancer read.
func (w *Worker) Connections() int { return w.conns.Count() }
func (w *Worker) Rooms() []string  { return w.rooms.Codes() }
func (w *Worker) Uptime() time.Duration {
	return time.Since(w.startTime)
}
func (w *Worker) LoadedPlugins() []string { return w.plugins.Plugins() }

func (w *Worker) handleDatagram(addr *net.UDPAddr, data []byte) {
	if len(data) == 0 {
		return
	}

	// First datagram from an endpoint registers it, whatever the packet
	// turns out to be; the connection stays unidentified until its hello
	// passes. Stray disconnects and acks have nothing to register for.
	conn := w.conns.GetByAddr(addr)
	if conn == nil {
		switch protocol.SendOption(data[0]) {
		case protocol.SendOptionDisconnect, protocol.SendOptionAck:
			return
		}
		if w.conns.Count() >= w.cfg.Server.MaxConnections {
			if protocol.SendOption(data[0]) == protocol.SendOptionHello {
				w.refuse(addr, protocol.DisconnectReasonCustom, "Server is at capacity, try again soon")
			}
			return
		}
		conn = w.createConnection(addr)
	}

	// Size is checked before anything touches the payload.
	if len(data) > protocol.MaxPacketSize {
		w.punishConn(conn, "massivePackets")
		return
	}

	switch protocol.SendOption(data[0]) {
	case protocol.SendOptionHello:
		w.handleHello(conn, data[1:])

	case protocol.SendOptionDisconnect:
		conn.MarkDisconnected()
		w.dropConnection(conn, protocol.DisconnectReasonNone, "", false)

	case protocol.SendOptionAck:
		if len(data) >= 3 {
			conn.Session.HandleAck(uint16(data[1])<<8 | uint16(data[2]))
		}

	case protocol.SendOptionPing:
		if len(data) >= 3 {
			conn.Session.AcceptNonce(uint16(data[1])<<8 | uint16(data[2]))
		}

	case protocol.SendOptionReliable:
		if len(data) < 3 {
			return
		}
		nonce := uint16(data[1])<<8 | uint16(data[2])
		if !conn.Session.AcceptNonce(nonce) {
			return // duplicate or stale, re-acked by the session
		}
		w.handlePayload(conn, data[3:])

	case protocol.SendOptionUnreliable:
		w.handlePayload(conn, data[1:])

	default:
		w.punishConn(conn, "malformedPackets")
	}
}

// createConnection registers a session for a fresh endpoint.
func (w *Worker) createConnection(addr *net.UDPAddr) *connection.Connection {
	var conn *connection.Connection
	session := transport.NewSession(w.socket, addr, w.logger, func() {
		w.dropConnection(conn, protocol.DisconnectReasonError, "", false)
	})
	conn = w.conns.Create(addr, session)
	session.Start()
	return conn
}

// handlePayload decodes the root messages of a packet and runs each through
// the listener chain, then routes whatever survives.
func (w *Worker) handlePayload(conn *connection.Connection, payload []byte) {
	if !conn.Identified() {
		return
	}

	msgs, err := w.dec.ParsePayload(protocol.NewReader(payload), protocol.DirectionClientToServer)
	if err != nil {
		conn.Logger().Debug("payload parse failed", "error", err)
		w.punishConn(conn, "malformedPackets")
		return
	}

	for _, msg := range msgs {
		ctx := &decoder.Context{Conn: conn, Direction: protocol.DirectionClientToServer}
		w.dec.EmitDecoded(ctx, msg)
		if ctx.Canceled() {
			continue
		}
		w.route(conn, msg)
	}
}

// route forwards relay-through messages to their room audience. Request
// style messages are answered by their listeners and never forwarded.
func (w *Worker) route(conn *connection.Connection, msg protocol.Message) {
	rm, _ := conn.Room().(*room.Room)
	if rm == nil {
		return
	}
	switch m := msg.(type) {
	case *protocol.GameDataMessage:
		rm.Broadcast(conn.ID, m)
	case *protocol.GameDataToMessage:
		rm.SendTo(m.Target, m)
	}
}

func (w *Worker) handleHello(conn *connection.Connection, body []byte) {
	hello, err := protocol.ParseHello(protocol.NewReader(body))
	if err != nil {
		w.punishConn(conn, "malformedPackets")
		return
	}

	// A retransmitted hello for an identified connection only needs the ack.
	if conn.Identified() {
		conn.Session.AcceptNonce(hello.Nonce)
		return
	}

	ip := conn.Addr.IP.String()
	if banned, reason := w.cheat.CheckBanned(ip); banned {
		w.dropConnection(conn, protocol.DisconnectReasonBanned, reason, true)
		return
	}
	if !w.versionAllowed(hello.ClientVersion) {
		w.dropConnection(conn, protocol.DisconnectReasonIncorrectVersion, "", true)
		return
	}

	if !w.cfg.Server.AllowDirect {
		ok, err := coord.ConsumeRedirect(w.store, ip, hello.Username)
		if err != nil {
			w.logger.Error("redirect marker lookup failed", "ip", ip, "error", err)
			w.dropConnection(conn, protocol.DisconnectReasonError, "", true)
			return
		}
		if !ok {
			w.dropConnection(conn, protocol.DisconnectReasonCustom,
				"Please connect through the matchmaker", true)
			return
		}
	}

	if msg, ok := w.checkMods(hello); !ok {
		w.dropConnection(conn, protocol.DisconnectReasonCustom, msg, true)
		return
	}

	conn.Session.AcceptNonce(hello.Nonce)
	conn.Identify(hello.Username, hello.ClientVersion, hello.Mods)
	if hello.Modded {
		w.sendModList(conn)
	}

	if _, err := w.store.Incr(coord.ConnectionsKey(ip), 1); err != nil {
		w.logger.Debug("connection counter failed", "ip", ip, "error", err)
	}
	w.publishStats(w.writeStats)

	conn.Logger().Info("client identified",
		"username", hello.Username, "version", hello.ClientVersion.String(),
		"modded", hello.Modded)
}

// sendModList answers a modded hello with the handshake plus one
// declaration per mod this server knows about, so the client can verify the
// set before joining anything.
func (w *Worker) sendModList(conn *connection.Connection) {
	msgs := []protocol.Message{&protocol.ReactorMessage{
		Inner: &protocol.ReactorHandshake{Brand: w.cfg.Server.Name, Version: "1"},
	}}
	for _, mod := range w.cfg.Reactor.Mods {
		msgs = append(msgs, &protocol.ReactorMessage{
			Inner: &protocol.ModDeclaration{ID: mod.ID, Version: mod.Version},
		})
	}
	if err := conn.SendReliable(msgs...); err != nil {
		conn.Logger().Debug("mod list send failed", "error", err)
	}
}

func (w *Worker) versionAllowed(v protocol.ClientVersion) bool {
	for _, allowed := range w.cfg.Server.Versions {
		if allowed == v.String() {
			return true
		}
	}
	return false
}

// checkMods applies the reactor policy to a hello.
func (w *Worker) checkMods(hello *protocol.Hello) (string, bool) {
	if !w.cfg.Reactor.Enabled {
		if hello.Modded {
			return "This server does not accept modded clients", false
		}
		return "", true
	}
	if !hello.Modded {
		if w.cfg.Reactor.Optional {
			return "", true
		}
		return "This server requires a modded client", false
	}

	declared := make(map[string]string, len(hello.Mods))
	for _, mod := range hello.Mods {
		declared[mod.ID] = mod.Version
	}
	for _, required := range w.cfg.Reactor.Mods {
		if required.Optional {
			continue
		}
		version, ok := declared[required.ID]
		if !ok {
			return fmt.Sprintf("Missing required mod: %s", required.ID), false
		}
		if required.Version != "" && required.Version != version {
			return fmt.Sprintf("Wrong version of %s: need %s, have %s",
				required.ID, required.Version, version), false
		}
	}
	return "", true
}

// refuse answers an endpoint the worker will not register, at-capacity
// hellos for example. No session exists, so the datagram goes out raw.
func (w *Worker) refuse(addr *net.UDPAddr, reason protocol.DisconnectReason, message string) {
	if err := w.socket.WriteTo(addr, protocol.WriteDisconnect(reason, message)); err != nil {
		w.logger.Debug("refusal send failed", "addr", addr.String(), "error", err)
	}
}

func (w *Worker) punishConn(conn *connection.Connection, rule string) {
	w.enforce(conn, w.cheat.Penalize(conn.Addr.IP.String(), conn.ID, rule))
}

func (w *Worker) enforce(conn *connection.Connection, verdict anticheat.Verdict) {
	switch verdict {
	case anticheat.VerdictDisconnect:
		w.dropConnection(conn, protocol.DisconnectReasonHacking, "", true)
	case anticheat.VerdictBan:
		w.dropConnection(conn, protocol.DisconnectReasonBanned, "", true)
	}
}

// dropConnection is the single exit path for a connection: room leave,
// table removal, counter decrement and (optionally) the goodbye packet.
func (w *Worker) dropConnection(conn *connection.Connection, reason protocol.DisconnectReason, message string, notify bool) {
	if conn == nil {
		return
	}
	if rm := conn.Room(); rm != nil {
		rm.HandleLeave(conn, reason)
	}
	w.conns.Remove(conn)

	if notify {
		conn.Disconnect(reason, message)
	} else {
		conn.Session.Close()
	}

	// Only identified connections were counted, so only they decrement.
	if conn.EverIdentified() {
		ip := conn.Addr.IP.String()
		if _, err := w.store.Decr(coord.ConnectionsKey(ip), 1); err != nil {
			w.logger.Debug("connection counter failed", "ip", ip, "error", err)
		}
	}
	w.publishStats(w.writeStats)
}

// writeStats publishes this node's load. Debounced, because join storms
// would otherwise hammer the store with redundant writes.
func (w *Worker) writeStats() {
	key := coord.NodeStatsKey(w.cfg.Server.Name)
	fields := map[string]string{
		"connections": fmt.Sprintf("%d", w.conns.Count()),
		"rooms":       fmt.Sprintf("%d", w.rooms.Count()),
		"updated":     fmt.Sprintf("%d", time.Now().Unix()),
	}
	for field, value := range fields {
		if err := w.store.HSet(key, field, value); err != nil {
			w.logger.Debug("stats publish failed", "error", err)
			return
		}
	}
}
