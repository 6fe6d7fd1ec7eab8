package room

import (
	"net"
	"testing"

	"github.com/mirahq/mira/internal/connection"
	"github.com/mirahq/mira/internal/events"
	"github.com/mirahq/mira/internal/protocol"
	"github.com/mirahq/mira/internal/transport"
	"github.com/mirahq/mira/pkg/config"
)

type sinkWriter struct{}

func (sinkWriter) WriteTo(addr *net.UDPAddr, data []byte) error { return nil }

type captureWriter struct {
	packets [][]byte
}

func (c *captureWriter) WriteTo(addr *net.UDPAddr, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	c.packets = append(c.packets, buf)
	return nil
}

func testConn(id int32, ip string) *connection.Connection {
	conn, _ := testConnCapture(id, ip)
	return conn
}

func testConnCapture(id int32, ip string) (*connection.Connection, *captureWriter) {
	out := &captureWriter{}
	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: 50000}
	sess := transport.NewSession(out, addr, nil, nil)
	conn := connection.New(id, addr, sess, nil)
	conn.Identify("player", protocol.ClientVersion{Year: 2021, Month: 6, Day: 30}, nil)
	return conn, out
}

// playerSpawn builds a well formed player prefab spawn: control snapshot,
// opaque physics, transform snapshot.
func playerSpawn(owner int32, firstNetID uint32) *protocol.SpawnMessage {
	transform := protocol.NewWriter()
	transform.WriteUint16(1)
	transform.WriteVector2(0, 0)
	transform.WriteVector2(0, 0)

	return &protocol.SpawnMessage{
		SpawnType: uint32(4),
		OwnerID:   owner,
		Components: []protocol.ComponentData{
			{NetID: firstNetID, Data: []byte{1, 5}}, // isNew + player id
			{NetID: firstNetID + 1, Data: nil},
			{NetID: firstNetID + 2, Data: transform.Bytes()},
		},
	}
}

// rootTags parses a reliable packet and lists the root message tags inside.
func rootTags(t *testing.T, packet []byte) []uint8 {
	t.Helper()
	if len(packet) < 3 || packet[0] != uint8(protocol.SendOptionReliable) {
		t.Fatalf("expected a reliable packet, got % x", packet)
	}
	r := protocol.NewReader(packet[3:])
	var tags []uint8
	for r.HasNext() {
		tag, _, err := r.ReadMessage()
		if err != nil {
			t.Fatalf("bad message frame: %v", err)
		}
		tags = append(tags, tag)
	}
	return tags
}

func testRegistry(t *testing.T, mutate func(*config.Config)) *Registry {
	t.Helper()
	cfg := config.Default()
	cfg.Room.ReapEmpty = true
	if mutate != nil {
		mutate(cfg)
	}
	return NewRegistry(cfg, events.NewRegistry(nil), nil)
}

func createRoom(t *testing.T, g *Registry) *Room {
	t.Helper()
	r, err := g.Create(protocol.DefaultGameOptions(10))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return r
}

func TestFirstJoinerBecomesHost(t *testing.T) {
	g := testRegistry(t, nil)
	r := createRoom(t, g)
	defer r.Destroy(protocol.DisconnectReasonNone)

	a := testConn(1, "10.0.0.1")
	b := testConn(2, "10.0.0.2")

	if err := r.HandleJoin(a); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if err := r.HandleJoin(b); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	if r.HostID() != 1 {
		t.Fatalf("expected host 1, got %d", r.HostID())
	}
	if r.PlayerCount() != 2 {
		t.Fatalf("expected 2 players, got %d", r.PlayerCount())
	}
	if a.Room() != r {
		t.Fatal("connection should reference its room")
	}
}

func TestHostMigration(t *testing.T) {
	g := testRegistry(t, nil)
	r := createRoom(t, g)
	defer r.Destroy(protocol.DisconnectReasonNone)

	a, b, c := testConn(1, "10.0.0.1"), testConn(2, "10.0.0.2"), testConn(3, "10.0.0.3")
	r.HandleJoin(a)
	r.HandleJoin(b)
	r.HandleJoin(c)

	r.HandleLeave(a, protocol.DisconnectReasonNone)
	if r.HostID() != 2 {
		t.Fatalf("oldest remaining member should inherit, got host %d", r.HostID())
	}
	r.HandleLeave(b, protocol.DisconnectReasonNone)
	if r.HostID() != 3 {
		t.Fatalf("expected host 3, got %d", r.HostID())
	}
}

func TestJoinFull(t *testing.T) {
	g := testRegistry(t, func(cfg *config.Config) { cfg.Room.MaxPlayers = 2 })
	r := createRoom(t, g)
	defer r.Destroy(protocol.DisconnectReasonNone)

	r.HandleJoin(testConn(1, "10.0.0.1"))
	r.HandleJoin(testConn(2, "10.0.0.2"))

	if err := r.HandleJoin(testConn(3, "10.0.0.3")); err != ErrGameFull {
		t.Fatalf("expected ErrGameFull, got %v", err)
	}
}

func TestJoinStarted(t *testing.T) {
	g := testRegistry(t, nil)
	r := createRoom(t, g)
	defer r.Destroy(protocol.DisconnectReasonNone)

	host := testConn(1, "10.0.0.1")
	r.HandleJoin(host)
	if err := r.HandleStart(host); err != nil {
		t.Fatalf("host start failed: %v", err)
	}

	if err := r.HandleJoin(testConn(2, "10.0.0.2")); err != ErrGameStarted {
		t.Fatalf("expected ErrGameStarted, got %v", err)
	}
}

func TestStartRequiresHost(t *testing.T) {
	g := testRegistry(t, nil)
	r := createRoom(t, g)
	defer r.Destroy(protocol.DisconnectReasonNone)

	host, other := testConn(1, "10.0.0.1"), testConn(2, "10.0.0.2")
	r.HandleJoin(host)
	r.HandleJoin(other)

	if err := r.HandleStart(other); err != ErrNotHost {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	if r.State() != StateNotStarted {
		t.Fatal("state must not change on rejected start")
	}
}

func TestEndAndRejoin(t *testing.T) {
	g := testRegistry(t, func(cfg *config.Config) { cfg.Room.ReapEmpty = false })
	r := createRoom(t, g)
	defer r.Destroy(protocol.DisconnectReasonNone)

	host, other := testConn(1, "10.0.0.1"), testConn(2, "10.0.0.2")
	r.HandleJoin(host)
	r.HandleJoin(other)
	r.HandleStart(host)
	if err := r.HandleEnd(host, 0); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	if r.State() != StateEnded {
		t.Fatalf("expected ended, got %v", r.State())
	}
	if r.PlayerCount() != 0 {
		t.Fatal("members must re-join after the game ends")
	}
	if r.HostID() != 0 {
		t.Fatalf("host seat should be vacant after the game ends, got %d", r.HostID())
	}

	// A non-host rejoining first is parked, not promoted; the room stays
	// Ended until the previous host returns.
	if err := r.HandleJoin(other); err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	if r.State() != StateEnded {
		t.Fatalf("waiting member must not restart the lobby, got %v", r.State())
	}
	if r.HostID() != 0 {
		t.Fatalf("waiting member must not become host, got %d", r.HostID())
	}
	if r.PlayerCount() != 1 {
		t.Fatalf("waiting member still counts, got %d", r.PlayerCount())
	}

	if err := r.HandleJoin(host); err != nil {
		t.Fatalf("host rejoin failed: %v", err)
	}
	if r.State() != StateNotStarted {
		t.Fatalf("host rejoin should reset state, got %v", r.State())
	}
	if r.HostID() != 1 {
		t.Fatalf("returning host keeps the seat, got %d", r.HostID())
	}
	if r.PlayerCount() != 2 {
		t.Fatalf("expected both members back, got %d", r.PlayerCount())
	}
}

func TestWaitForHostNotice(t *testing.T) {
	g := testRegistry(t, func(cfg *config.Config) { cfg.Room.ReapEmpty = false })
	r := createRoom(t, g)
	defer r.Destroy(protocol.DisconnectReasonNone)

	host := testConn(1, "10.0.0.1")
	other, out := testConnCapture(2, "10.0.0.2")
	r.HandleJoin(host)
	r.HandleJoin(other)
	r.HandleStart(host)
	r.HandleEnd(host, 0)

	before := len(out.packets)
	if err := r.HandleJoin(other); err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	if len(out.packets) != before+1 {
		t.Fatalf("expected one packet for the parked member, got %d", len(out.packets)-before)
	}
	tags := rootTags(t, out.packets[before])
	if len(tags) != 1 || tags[0] != uint8(protocol.RootTagWaitForHost) {
		t.Fatalf("expected a wait-for-host notice, got tags %v", tags)
	}
}

func TestDataUpdateFlushedOnTick(t *testing.T) {
	g := testRegistry(t, nil)
	r := createRoom(t, g)
	defer r.Destroy(protocol.DisconnectReasonNone)

	host := testConn(1, "10.0.0.1")
	member, out := testConnCapture(2, "10.0.0.2")
	r.HandleJoin(host)
	r.HandleJoin(member)

	if err := r.RegisterSpawn(playerSpawn(2, 20)); err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	update := protocol.NewWriter()
	update.WriteUint16(2)
	update.WriteVector2(1, 1)
	update.WriteVector2(0, 0)
	before := len(out.packets)
	r.ApplyData(22, update.Bytes())
	r.flushDirty()

	if len(out.packets) != before+1 {
		t.Fatalf("expected the tick to broadcast the update, got %d new packets", len(out.packets)-before)
	}
	tags := rootTags(t, out.packets[before])
	if len(tags) != 1 || tags[0] != uint8(protocol.RootTagGameData) {
		t.Fatalf("expected a game data broadcast, got tags %v", tags)
	}

	r.flushDirty()
	if len(out.packets) != before+1 {
		t.Fatal("flushed components must not be rebroadcast")
	}
}

func TestKickWithBan(t *testing.T) {
	g := testRegistry(t, func(cfg *config.Config) { cfg.Room.ReapEmpty = false })
	r := createRoom(t, g)
	defer r.Destroy(protocol.DisconnectReasonNone)

	host, target := testConn(1, "10.0.0.1"), testConn(2, "10.0.0.2")
	r.HandleJoin(host)
	r.HandleJoin(target)

	r.Kick(2, true)
	if r.PlayerCount() != 1 {
		t.Fatalf("target should be gone, got %d players", r.PlayerCount())
	}
	if !r.IsBanned("10.0.0.2") {
		t.Fatal("banned kick should record the address")
	}
	if err := r.HandleJoin(testConn(3, "10.0.0.2")); err != ErrBanned {
		t.Fatalf("banned address must not rejoin, got %v", err)
	}
}

func TestReapEmptyDestroysRoom(t *testing.T) {
	g := testRegistry(t, nil)
	r := createRoom(t, g)

	only := testConn(1, "10.0.0.1")
	r.HandleJoin(only)
	r.HandleLeave(only, protocol.DisconnectReasonNone)

	if g.Get(r.Code()) != nil {
		t.Fatal("empty room should be reaped from the registry")
	}
}

func TestVotekickThreshold(t *testing.T) {
	g := testRegistry(t, func(cfg *config.Config) {
		cfg.Room.VotekickThreshold = 2
		cfg.Room.ReapEmpty = false
	})
	r := createRoom(t, g)
	defer r.Destroy(protocol.DisconnectReasonNone)

	for i := int32(1); i <= 4; i++ {
		r.HandleJoin(testConn(i, "10.0.0.1"))
	}

	if r.CastVote(2, 4) {
		t.Fatal("one vote must not reach a threshold of two")
	}
	// Duplicate votes do not stack.
	if r.CastVote(2, 4) {
		t.Fatal("repeat vote from the same voter must not count twice")
	}
	if !r.CastVote(3, 4) {
		t.Fatal("second distinct voter should trigger the kick")
	}
	if r.Member(4) != nil {
		t.Fatal("kicked target should be out of the room")
	}
}

func TestVotekickVoterLeaveWithdraws(t *testing.T) {
	g := testRegistry(t, func(cfg *config.Config) {
		cfg.Room.VotekickThreshold = 2
		cfg.Room.ReapEmpty = false
	})
	r := createRoom(t, g)
	defer r.Destroy(protocol.DisconnectReasonNone)

	conns := make(map[int32]*connection.Connection)
	for i := int32(1); i <= 4; i++ {
		conns[i] = testConn(i, "10.0.0.1")
		r.HandleJoin(conns[i])
	}

	r.CastVote(2, 4)
	r.HandleLeave(conns[2], protocol.DisconnectReasonNone)

	// Voter 2's vote is gone, so voter 3 is the first again.
	if r.CastVote(3, 4) {
		t.Fatal("withdrawn vote must not count toward the threshold")
	}
}

func TestVoteForSelfOrAbsentIgnored(t *testing.T) {
	g := testRegistry(t, func(cfg *config.Config) { cfg.Room.VotekickThreshold = 1 })
	r := createRoom(t, g)
	defer r.Destroy(protocol.DisconnectReasonNone)

	r.HandleJoin(testConn(1, "10.0.0.1"))
	r.HandleJoin(testConn(2, "10.0.0.2"))

	if r.CastVote(1, 1) {
		t.Fatal("self vote must be ignored")
	}
	if r.CastVote(1, 99) {
		t.Fatal("vote against a non-member must be ignored")
	}
}

func TestSpawnOwnership(t *testing.T) {
	g := testRegistry(t, nil)
	r := createRoom(t, g)
	defer r.Destroy(protocol.DisconnectReasonNone)

	r.HandleJoin(testConn(1, "10.0.0.1"))
	r.HandleJoin(testConn(2, "10.0.0.2"))

	if err := r.RegisterSpawn(playerSpawn(2, 10)); err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	if !r.OwnsObject(2, 10) {
		t.Fatal("owner must pass the ownership check")
	}
	if r.OwnsObject(1, 10) {
		t.Fatal("non-owner must fail the ownership check")
	}
	if !r.OwnsObject(1, 999) {
		t.Fatal("untracked net ids pass through")
	}

	r.HandleDespawn(10)
	if r.Object(10) != nil {
		t.Fatal("despawned object should be forgotten")
	}
}

func TestSpawnComponentCountValidated(t *testing.T) {
	g := testRegistry(t, nil)
	r := createRoom(t, g)
	defer r.Destroy(protocol.DisconnectReasonNone)

	spawn := &protocol.SpawnMessage{
		SpawnType:  uint32(4),
		OwnerID:    1,
		Components: []protocol.ComponentData{{NetID: 10}},
	}
	if err := r.RegisterSpawn(spawn); err == nil {
		t.Fatal("player prefab with one component must be rejected")
	}
}

func TestUniqueCodes(t *testing.T) {
	g := testRegistry(t, nil)
	seen := make(map[protocol.GameCode]bool)
	for i := 0; i < 50; i++ {
		r := createRoom(t, g)
		if seen[r.Code()] {
			t.Fatalf("duplicate code %s", r.Code())
		}
		seen[r.Code()] = true
	}
	g.DestroyAll(protocol.DisconnectReasonServerShutdown)
	if g.Count() != 0 {
		t.Fatalf("expected empty registry after shutdown, got %d", g.Count())
	}
}
