package protocol

import (
	"bytes"
	"testing"
)

func TestParseHelloVanilla(t *testing.T) {
	w := NewWriter()
	w.WriteUint16BE(1)
	w.WriteUint8(0) // hazel version
	w.WriteInt32(ClientVersion{Year: 2021, Month: 6, Day: 30}.Encode())
	w.WriteString("weyoun")

	h, err := ParseHello(NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if h.Nonce != 1 || h.Username != "weyoun" || h.Modded {
		t.Fatalf("unexpected hello: %+v", h)
	}
	if h.ClientVersion.String() != "2021.6.30" {
		t.Fatalf("version %s", h.ClientVersion.String())
	}
}

func TestParseHelloModded(t *testing.T) {
	h := &Hello{
		Nonce:           7,
		ClientVersion:   ClientVersion{Year: 2021, Month: 6, Day: 30},
		Username:        "modder",
		Modded:          true,
		ProtocolVersion: 1,
		Mods: []Mod{
			{ID: "gg.reactor.api", Version: "1.0.0"},
			{ID: "com.example.roles", Version: "2.1"},
		},
	}
	w := NewWriter()
	h.Write(w)

	// Skip the send option byte the writer prepends.
	parsed, err := ParseHello(NewReader(w.Bytes()[1:]))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !parsed.Modded || len(parsed.Mods) != 2 {
		t.Fatalf("mod manifest lost: %+v", parsed)
	}
	if parsed.Mods[0].ID != "gg.reactor.api" || parsed.Mods[1].Version != "2.1" {
		t.Fatalf("mods mangled: %+v", parsed.Mods)
	}
}

func TestDisconnectForms(t *testing.T) {
	bare := WriteDisconnect(DisconnectReasonNone, "")
	if !bytes.Equal(bare, []byte{9}) {
		t.Fatalf("bare disconnect encoded as % x", bare)
	}
	reason, msg := ParseDisconnect(NewReader(bare[1:]))
	if reason != DisconnectReasonNone || msg != "" {
		t.Fatalf("bare parse: %v %q", reason, msg)
	}

	data := WriteDisconnect(DisconnectReasonBanned, "")
	reason, _ = ParseDisconnect(NewReader(data[1:]))
	if reason != DisconnectReasonBanned {
		t.Fatalf("expected banned, got %v", reason)
	}

	data = WriteDisconnect(DisconnectReasonCustom, "go away")
	reason, msg = ParseDisconnect(NewReader(data[1:]))
	if reason != DisconnectReasonCustom || msg != "go away" {
		t.Fatalf("custom parse: %v %q", reason, msg)
	}
}

func TestJoinedGameRoundTrip(t *testing.T) {
	code, _ := CodeFromString("ABCDEF")
	in := &JoinedGame{Code: code, ClientID: 42, HostID: 7, Others: []int32{7, 9, 300}}

	w := NewWriter()
	if err := w.WriteMessage(in); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	tag, body, err := NewReader(w.Bytes()).ReadMessage()
	if err != nil || tag != in.Tag() {
		t.Fatalf("frame: tag=%d err=%v", tag, err)
	}
	out := &JoinedGame{}
	if err := out.ReadFrom(body); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if out.Code != code || out.ClientID != 42 || out.HostID != 7 || len(out.Others) != 3 {
		t.Fatalf("round trip mangled: %+v", out)
	}
	if out.Others[2] != 300 {
		t.Fatalf("packed id lost: %v", out.Others)
	}
}

func TestGameDataPreservesUnknownChildren(t *testing.T) {
	code, _ := CodeFromString("ABCDEF")

	// A child with a tag nothing registers, carrying arbitrary bytes.
	w := NewWriter()
	w.WriteInt32(int32(code))
	w.BeginMessage(200)
	w.WriteBytes([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	w.EndMessage()

	in := &GameDataMessage{}
	if err := in.ReadFrom(NewReader(w.Bytes())); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(in.Items) != 1 {
		t.Fatalf("expected one child, got %d", len(in.Items))
	}
	unk, ok := in.Items[0].(*Unknown)
	if !ok || unk.RawTag != 200 {
		t.Fatalf("unexpected child: %#v", in.Items[0])
	}

	// Re-encoding reproduces the original bytes exactly.
	out := NewWriter()
	if err := in.WriteTo(out); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if !bytes.Equal(out.Bytes(), w.Bytes()) {
		t.Fatalf("relay altered opaque payload:\n in % x\nout % x", w.Bytes(), out.Bytes())
	}
}

func TestSpawnMessageRoundTrip(t *testing.T) {
	in := &SpawnMessage{
		SpawnType: 4,
		OwnerID:   12,
		Flags:     1,
		Components: []ComponentData{
			{NetID: 20, Data: []byte{1, 3}},
			{NetID: 21, Data: nil},
			{NetID: 22, Data: []byte{0, 0, 0, 0}},
		},
	}
	w := NewWriter()
	if err := in.WriteTo(w); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	out := &SpawnMessage{}
	if err := out.ReadFrom(NewReader(w.Bytes())); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if out.SpawnType != 4 || out.OwnerID != 12 || len(out.Components) != 3 {
		t.Fatalf("mangled: %+v", out)
	}
	if out.Components[0].NetID != 20 || !bytes.Equal(out.Components[2].Data, in.Components[2].Data) {
		t.Fatalf("component data lost: %+v", out.Components)
	}
}

func TestGameOptionsValidate(t *testing.T) {
	opts := DefaultGameOptions(10)
	if err := opts.Validate(15); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	bad := DefaultGameOptions(10)
	bad.MaxPlayers = 120
	if err := bad.Validate(15); err == nil {
		t.Fatal("player count beyond the room limit must fail")
	}
}

func TestGameOptionsPreserveTrailingBytes(t *testing.T) {
	opts := DefaultGameOptions(10)
	w := NewWriter()
	opts.Write(w)

	// A newer client appends fields this layout does not know about.
	blob := append(w.Bytes(), 0xAB, 0xCD, 0xEF)
	blob[0] += 3 // the upacked length prefix covers the extra bytes

	in := GameOptions{}
	if err := in.Read(NewReader(blob)); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(in.Extra, []byte{0xAB, 0xCD, 0xEF}) {
		t.Fatalf("trailing bytes lost: % x", in.Extra)
	}

	out := NewWriter()
	in.Write(out)
	if !bytes.Equal(out.Bytes(), blob) {
		t.Fatalf("re-encode altered the block:\n in % x\nout % x", blob, out.Bytes())
	}
}

func TestRedirectRoundTrip(t *testing.T) {
	in := &Redirect{IP: [4]byte{10, 0, 0, 7}, Port: 22023}
	w := NewWriter()
	in.WriteTo(w)

	out := &Redirect{}
	if err := out.ReadFrom(NewReader(w.Bytes())); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if out.IP != in.IP || out.Port != 22023 {
		t.Fatalf("mangled: %+v", out)
	}
}
