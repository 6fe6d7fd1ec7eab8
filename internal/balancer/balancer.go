package balancer

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mirahq/mira/internal/connection"
	"github.com/mirahq/mira/internal/coord"
	"github.com/mirahq/mira/internal/decoder"
	"github.com/mirahq/mira/internal/protocol"
	"github.com/mirahq/mira/internal/transport"
	"github.com/mirahq/mira/pkg/config"
)

// Balancer is the cluster front door. Clients say hello, ask to host or
// join, and get redirected to a worker; the balancer never relays game
// traffic. Placement for joins comes from the coordination store, placement
// for hosts is a uniform pick over the configured cluster ports.
type Balancer struct {
	cfg    *config.Config
	logger *slog.Logger

	socket *transport.Socket
	conns  *connection.Manager
	dec    *decoder.Decoder
	store  coord.Store

	mu  sync.Mutex
	rng *rand.Rand
}

func New(cfg *config.Config, store coord.Store, logger *slog.Logger) (*Balancer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Balancer.Clusters) == 0 {
		return nil, fmt.Errorf("balancer needs at least one cluster")
	}

	socket, err := transport.Listen(cfg.Balancer.Port, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open balancer socket: %w", err)
	}

	b := &Balancer{
		cfg:    cfg,
		logger: logger,
		socket: socket,
		conns:  connection.NewManager(logger),
		dec:    decoder.New(logger),
		store:  store,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	decoder.RegisterProtocol(b.dec)
	b.dec.On(protocol.ContainerRoot, uint8(protocol.RootTagHostGame), b.onHostGame)
	b.dec.On(protocol.ContainerRoot, uint8(protocol.RootTagJoinGame), b.onJoinGame)

	logger.Info("balancer ready",
		"port", cfg.Balancer.Port, "clusters", len(cfg.Balancer.Clusters))
	return b, nil
}

func (b *Balancer) Run() {
	b.socket.ReadLoop(b.handleDatagram)
}

func (b *Balancer) Shutdown() {
	b.logger.Info("balancer shutting down")
	b.conns.ForEach(func(conn *connection.Connection) {
		conn.Disconnect(protocol.DisconnectReasonServerShutdown, "")
		b.conns.Remove(conn)
	})
	b.socket.Close()
}

func (b *Balancer) Connections() int { return b.conns.Count() }

func (b *Balancer) handleDatagram(addr *net.UDPAddr, data []byte) {
	if len(data) == 0 || len(data) > protocol.MaxPacketSize {
		return
	}

	conn := b.conns.GetByAddr(addr)

	switch protocol.SendOption(data[0]) {
	case protocol.SendOptionHello:
		b.handleHello(conn, addr, data[1:])

	case protocol.SendOptionDisconnect:
		if conn != nil {
			conn.MarkDisconnected()
			conn.Session.Close()
			b.conns.Remove(conn)
		}

	case protocol.SendOptionAck:
		if conn != nil && len(data) >= 3 {
			conn.Session.HandleAck(uint16(data[1])<<8 | uint16(data[2]))
		}

	case protocol.SendOptionPing:
		if conn != nil && len(data) >= 3 {
			conn.Session.AcceptNonce(uint16(data[1])<<8 | uint16(data[2]))
		}

	case protocol.SendOptionReliable:
		if conn == nil || len(data) < 3 {
			return
		}
		nonce := uint16(data[1])<<8 | uint16(data[2])
		if !conn.Session.AcceptNonce(nonce) {
			return
		}
		b.handlePayload(conn, data[3:])
	}
}

func (b *Balancer) handleHello(conn *connection.Connection, addr *net.UDPAddr, body []byte) {
	hello, err := protocol.ParseHello(protocol.NewReader(body))
	if err != nil {
		return
	}
	if conn != nil {
		conn.Session.AcceptNonce(hello.Nonce)
		return
	}

	if !b.versionAllowed(hello.ClientVersion) {
		b.socket.WriteTo(addr, protocol.WriteDisconnect(protocol.DisconnectReasonIncorrectVersion, ""))
		return
	}

	var newConn *connection.Connection
	session := transport.NewSession(b.socket, addr, b.logger, func() {
		if newConn != nil {
			b.conns.Remove(newConn)
			newConn.Session.Close()
		}
	})
	newConn = b.conns.Create(addr, session)
	session.Start()
	session.AcceptNonce(hello.Nonce)
	newConn.Identify(hello.Username, hello.ClientVersion, hello.Mods)
}

func (b *Balancer) handlePayload(conn *connection.Connection, payload []byte) {
	msgs, err := b.dec.ParsePayload(protocol.NewReader(payload), protocol.DirectionClientToServer)
	if err != nil {
		conn.Logger().Debug("payload parse failed", "error", err)
		return
	}
	for _, msg := range msgs {
		ctx := &decoder.Context{Conn: conn, Direction: protocol.DirectionClientToServer}
		b.dec.EmitDecoded(ctx, msg)
	}
}

// onHostGame sends the client to a uniformly random worker port.
func (b *Balancer) onHostGame(ctx *decoder.Context, msg protocol.Message) {
	cluster, port := b.pick()
	b.redirect(ctx.Conn, cluster.IP, port)
}

// onJoinGame looks the room's placement up and sends the client there.
func (b *Balancer) onJoinGame(ctx *decoder.Context, msg protocol.Message) {
	m := msg.(*protocol.JoinGame)

	placement, err := b.store.Get(coord.RoomKey(m.Code.String()))
	if err == coord.ErrNotFound {
		ctx.Conn.SendReliable(&protocol.JoinGameError{Reason: protocol.DisconnectReasonGameNotFound})
		return
	}
	if err != nil {
		b.logger.Error("placement lookup failed", "room", m.Code.String(), "error", err)
		ctx.Conn.SendReliable(&protocol.JoinGameError{Reason: protocol.DisconnectReasonError})
		return
	}

	ip, port, err := splitPlacement(placement)
	if err != nil {
		b.logger.Error("bad placement record", "room", m.Code.String(), "value", placement)
		ctx.Conn.SendReliable(&protocol.JoinGameError{Reason: protocol.DisconnectReasonError})
		return
	}
	b.redirect(ctx.Conn, ip, port)
}

// redirect marks the client in the store, then points it at the worker. A
// worker that cannot see the marker will turn the client away, so the mark
// goes first.
func (b *Balancer) redirect(conn *connection.Connection, ip string, port uint16) {
	clientIP := conn.Addr.IP.String()
	if err := coord.MarkRedirected(b.store, clientIP, conn.Username()); err != nil {
		b.logger.Error("redirect marker write failed", "ip", clientIP, "error", err)
		conn.SendReliable(&protocol.JoinGameError{Reason: protocol.DisconnectReasonError})
		return
	}

	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		b.logger.Error("cluster ip is not IPv4", "ip", ip)
		return
	}
	redirect := &protocol.Redirect{Port: port}
	copy(redirect.IP[:], parsed)
	conn.SendReliable(redirect)

	conn.Logger().Info("client redirected", "to", fmt.Sprintf("%s:%d", ip, port))
}

func (b *Balancer) pick() (config.ClusterConfig, uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, cluster := range b.cfg.Balancer.Clusters {
		total += len(cluster.Ports)
	}
	n := b.rng.Intn(total)
	for _, cluster := range b.cfg.Balancer.Clusters {
		if n < len(cluster.Ports) {
			return cluster, uint16(cluster.Ports[n])
		}
		n -= len(cluster.Ports)
	}
	// Unreachable, the total covers every port.
	cluster := b.cfg.Balancer.Clusters[0]
	return cluster, uint16(cluster.Ports[0])
}

func (b *Balancer) versionAllowed(v protocol.ClientVersion) bool {
	for _, allowed := range b.cfg.Server.Versions {
		if allowed == v.String() {
			return true
		}
	}
	return false
}

func splitPlacement(placement string) (string, uint16, error) {
	host, portStr, ok := strings.Cut(placement, ":")
	if !ok {
		return "", 0, fmt.Errorf("placement %q has no port", placement)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("placement %q has a bad port", placement)
	}
	return host, uint16(port), nil
}
