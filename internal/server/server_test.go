package server

import (
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/mirahq/mira/internal/anticheat"
	"github.com/mirahq/mira/internal/connection"
	"github.com/mirahq/mira/internal/coord"
	"github.com/mirahq/mira/internal/decoder"
	"github.com/mirahq/mira/internal/events"
	"github.com/mirahq/mira/internal/protocol"
	"github.com/mirahq/mira/internal/room"
	"github.com/mirahq/mira/internal/transport"
	"github.com/mirahq/mira/pkg/config"
)

type fakeSocket struct {
	mu      sync.Mutex
	packets [][]byte
}

func (f *fakeSocket) WriteTo(addr *net.UDPAddr, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	f.packets = append(f.packets, buf)
	return nil
}

func (f *fakeSocket) ReadLoop(handle func(addr *net.UDPAddr, data []byte)) {}
func (f *fakeSocket) Close()                                              {}

func (f *fakeSocket) snapshot() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.packets))
	copy(out, f.packets)
	return out
}

// testWorker builds a worker on a captured socket and an in-memory store,
// with handlers registered the way NewWorker does it.
func testWorker(t *testing.T, mutate func(*config.Config)) (*Worker, *fakeSocket) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.AllowDirect = true
	cfg.AntiCheat.Enabled = true
	if mutate != nil {
		mutate(cfg)
	}

	sock := &fakeSocket{}
	ev := events.NewRegistry(nil)
	store := coord.NewMemoryStore()
	w := &Worker{
		cfg:          cfg,
		logger:       slog.Default(),
		socket:       sock,
		conns:        connection.NewManager(nil),
		rooms:        room.NewRegistry(cfg, ev, nil),
		dec:          decoder.New(nil),
		cheat:        anticheat.New(cfg, store, nil),
		store:        store,
		events:       ev,
		publishStats: func(f func()) { f() },
		startTime:    time.Now(),
	}
	decoder.RegisterProtocol(w.dec)
	w.registerHandlers()
	return w, sock
}

// join registers an identified member through the worker's connection table
// and puts it in the room.
func join(t *testing.T, w *Worker, rm *room.Room, ip string) *connection.Connection {
	t.Helper()
	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: 40000}
	conn := w.conns.Create(addr, transport.NewSession(w.socket, addr, nil, nil))
	conn.Identify("player", protocol.ClientVersion{Year: 2021, Month: 6, Day: 30}, nil)
	if err := rm.HandleJoin(conn); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	return conn
}

func helloDatagram(nonce uint16, username string, mods []protocol.Mod) []byte {
	h := &protocol.Hello{
		Nonce:           nonce,
		ClientVersion:   protocol.ClientVersion{Year: 2021, Month: 6, Day: 30},
		Username:        username,
		Modded:          len(mods) > 0,
		ProtocolVersion: 1,
		Mods:            mods,
	}
	w := protocol.NewWriter()
	h.Write(w)
	return w.Bytes()
}

func TestOversizedDatagramRegistersEndpoint(t *testing.T) {
	w, _ := testWorker(t, nil)
	addr := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 5000}

	// The default policy tolerates a few strikes: the unseen endpoint is
	// registered and the rule evaluated, but the connection survives.
	w.handleDatagram(addr, make([]byte, 2048))
	if w.conns.GetByAddr(addr) == nil {
		t.Fatal("first datagram should register the endpoint, size notwithstanding")
	}

	// A zero-strike policy drops the fresh connection immediately.
	w2, sock := testWorker(t, func(cfg *config.Config) {
		cfg.AntiCheat.Rules["massivePackets"] = config.RuleConfig{Action: "disconnect", Strikes: 0}
	})
	w2.handleDatagram(addr, make([]byte, 2048))
	if w2.conns.GetByAddr(addr) != nil {
		t.Fatal("zero-strike policy should drop the connection")
	}
	var notified bool
	for _, p := range sock.snapshot() {
		if p[0] == uint8(protocol.SendOptionDisconnect) {
			notified = true
		}
	}
	if !notified {
		t.Fatal("the dropped endpoint should be told why")
	}
}

func TestSceneChangeRequiresHost(t *testing.T) {
	w, _ := testWorker(t, func(cfg *config.Config) { cfg.Room.ReapEmpty = false })
	rm, err := w.rooms.Create(protocol.DefaultGameOptions(10))
	if err != nil {
		t.Fatalf("room create failed: %v", err)
	}
	defer rm.Destroy(protocol.DisconnectReasonNone)

	host := join(t, w, rm, "10.0.0.1")
	other := join(t, w, rm, "10.0.0.2")

	ctx := &decoder.Context{Conn: other, Direction: protocol.DirectionClientToServer}
	w.dec.EmitDecoded(ctx, &protocol.SceneChangeMessage{ClientID: other.ID, Scene: "OnlineGame"})
	if !ctx.Canceled() {
		t.Fatal("scene change from a non-host must be canceled")
	}

	ctx = &decoder.Context{Conn: host, Direction: protocol.DirectionClientToServer}
	w.dec.EmitDecoded(ctx, &protocol.SceneChangeMessage{ClientID: host.ID, Scene: "OnlineGame"})
	if ctx.Canceled() {
		t.Fatal("the host's scene change should pass")
	}
}

func TestKickDisconnectsClient(t *testing.T) {
	w, _ := testWorker(t, func(cfg *config.Config) { cfg.Room.ReapEmpty = false })
	rm, err := w.rooms.Create(protocol.DefaultGameOptions(10))
	if err != nil {
		t.Fatalf("room create failed: %v", err)
	}
	defer rm.Destroy(protocol.DisconnectReasonNone)

	join(t, w, rm, "10.0.0.1")
	target := join(t, w, rm, "10.0.0.2")

	rm.Kick(target.ID, false)

	if rm.Member(target.ID) != nil {
		t.Fatal("kicked client must leave the roster")
	}
	if w.conns.Get(target.ID) != nil {
		t.Fatal("kicked client must leave the connection table")
	}
	if target.State() != connection.StateDisconnected {
		t.Fatalf("kicked client should be disconnected, got %v", target.State())
	}
}

func TestHandshakeListsServerMods(t *testing.T) {
	serverMods := []config.ModRequirement{
		{ID: "gg.reactor.api", Version: "1.0.0"},
		{ID: "com.example.roles", Version: "2.1.0"},
	}
	w, sock := testWorker(t, func(cfg *config.Config) {
		cfg.Reactor.Enabled = true
		cfg.Reactor.Mods = serverMods
	})

	addr := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 40000}
	mods := []protocol.Mod{
		{ID: "gg.reactor.api", Version: "1.0.0"},
		{ID: "com.example.roles", Version: "2.1.0"},
	}
	w.handleDatagram(addr, helloDatagram(1, "modder", mods))

	conn := w.conns.GetByAddr(addr)
	if conn == nil || !conn.Identified() {
		t.Fatal("modded hello should identify the connection")
	}

	var reply []byte
	for _, p := range sock.snapshot() {
		if p[0] == uint8(protocol.SendOptionReliable) {
			reply = p
		}
	}
	if reply == nil {
		t.Fatal("expected a reliable handshake reply")
	}

	msgs, err := w.dec.ParsePayload(protocol.NewReader(reply[3:]), protocol.DirectionServerToClient)
	if err != nil {
		t.Fatalf("reply parse failed: %v", err)
	}
	declared := make(map[string]string)
	for _, m := range msgs {
		wrapper, ok := m.(*protocol.ReactorMessage)
		if !ok {
			continue
		}
		if decl, ok := wrapper.Inner.(*protocol.ModDeclaration); ok {
			declared[decl.ID] = decl.Version
		}
	}
	if len(declared) != len(serverMods) {
		t.Fatalf("expected %d mod declarations, got %v", len(serverMods), declared)
	}
	for _, mod := range serverMods {
		if declared[mod.ID] != mod.Version {
			t.Fatalf("mod %s declared as %q, want %q", mod.ID, declared[mod.ID], mod.Version)
		}
	}
}

func TestVersionAllowed(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Versions = []string{"2021.6.30", "2021.11.9.5"}
	w := &Worker{cfg: cfg}

	ok := protocol.ClientVersion{Year: 2021, Month: 6, Day: 30}
	if !w.versionAllowed(ok) {
		t.Fatal("listed version should pass")
	}
	withRev := protocol.ClientVersion{Year: 2021, Month: 11, Day: 9, Revision: 5}
	if !w.versionAllowed(withRev) {
		t.Fatal("listed version with revision should pass")
	}
	bad := protocol.ClientVersion{Year: 2020, Month: 1, Day: 1}
	if w.versionAllowed(bad) {
		t.Fatal("unlisted version must fail")
	}
	// Revision changes the string, so it must be listed explicitly.
	nearMiss := protocol.ClientVersion{Year: 2021, Month: 6, Day: 30, Revision: 1}
	if w.versionAllowed(nearMiss) {
		t.Fatal("unlisted revision must fail")
	}
}

func TestModMismatchSetEquality(t *testing.T) {
	host := []protocol.Mod{
		{ID: "gg.reactor.api", Version: "1.0.0"},
		{ID: "com.example.roles", Version: "2.1.0"},
	}

	// Same set, different order.
	joiner := []protocol.Mod{
		{ID: "com.example.roles", Version: "2.1.0"},
		{ID: "gg.reactor.api", Version: "1.0.0"},
	}
	if msg := modMismatch(host, joiner); msg != "" {
		t.Fatalf("identical sets should match, got %q", msg)
	}

	missing := []protocol.Mod{{ID: "gg.reactor.api", Version: "1.0.0"}}
	if msg := modMismatch(host, missing); msg == "" {
		t.Fatal("missing mod must be named")
	}

	wrongVersion := []protocol.Mod{
		{ID: "gg.reactor.api", Version: "1.0.0"},
		{ID: "com.example.roles", Version: "9.9.9"},
	}
	if msg := modMismatch(host, wrongVersion); msg == "" {
		t.Fatal("version mismatch must be named")
	}

	extra := append([]protocol.Mod{{ID: "com.example.cheats", Version: "0.1"}}, host...)
	if msg := modMismatch(host, extra); msg == "" {
		t.Fatal("extra mod must be named")
	}

	if msg := modMismatch(nil, nil); msg != "" {
		t.Fatalf("two vanilla clients match, got %q", msg)
	}
}

func TestCheckModsPolicy(t *testing.T) {
	newWorker := func(mutate func(*config.Config)) *Worker {
		cfg := config.Default()
		mutate(cfg)
		return &Worker{cfg: cfg}
	}

	vanilla := &protocol.Hello{}
	modded := &protocol.Hello{
		Modded: true,
		Mods:   []protocol.Mod{{ID: "gg.reactor.api", Version: "1.0.0"}},
	}

	w := newWorker(func(cfg *config.Config) { cfg.Reactor.Enabled = false })
	if _, ok := w.checkMods(vanilla); !ok {
		t.Fatal("vanilla client on vanilla server should pass")
	}
	if _, ok := w.checkMods(modded); ok {
		t.Fatal("modded client on vanilla server must be refused")
	}

	w = newWorker(func(cfg *config.Config) { cfg.Reactor.Enabled = true })
	if _, ok := w.checkMods(vanilla); ok {
		t.Fatal("vanilla client must be refused when reactor is mandatory")
	}

	w = newWorker(func(cfg *config.Config) {
		cfg.Reactor.Enabled = true
		cfg.Reactor.Optional = true
	})
	if _, ok := w.checkMods(vanilla); !ok {
		t.Fatal("vanilla client should pass when reactor is optional")
	}

	w = newWorker(func(cfg *config.Config) {
		cfg.Reactor.Enabled = true
		cfg.Reactor.Mods = []config.ModRequirement{
			{ID: "gg.reactor.api", Version: "1.0.0"},
			{ID: "com.example.optional", Optional: true},
		}
	})
	if msg, ok := w.checkMods(modded); !ok {
		t.Fatalf("client with required mod should pass, got %q", msg)
	}

	w = newWorker(func(cfg *config.Config) {
		cfg.Reactor.Enabled = true
		cfg.Reactor.Mods = []config.ModRequirement{{ID: "com.example.roles", Version: "2.0"}}
	})
	if msg, ok := w.checkMods(modded); ok {
		t.Fatal("client without a required mod must be refused")
	} else if msg == "" {
		t.Fatal("refusal should name the missing mod")
	}
}
