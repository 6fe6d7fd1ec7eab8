package protocol

// Mod is one entry of a modded client's declared manifest.
type Mod struct {
	ID      string
	Version string
}

// Hello is the identification handshake. The modded variant appends a
// protocol version and mod manifest after the standard body; a vanilla
// client stops after the username.
type Hello struct {
	Nonce         uint16
	HazelVer      uint8
	ClientVersion ClientVersion
	Username      string

	Modded          bool
	ProtocolVersion uint8
	Mods            []Mod
}

// ParseHello decodes a hello body, nonce included.
func ParseHello(r *Reader) (*Hello, error) {
	h := &Hello{}

	var err error
	if h.Nonce, err = r.ReadUint16BE(); err != nil {
		return nil, err
	}
	if h.HazelVer, err = r.ReadUint8(); err != nil {
		return nil, err
	}
	raw, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	h.ClientVersion = DecodeVersion(raw)
	if h.Username, err = r.ReadString(); err != nil {
		return nil, err
	}

	if !r.HasNext() {
		return h, nil
	}

	h.Modded = true
	if h.ProtocolVersion, err = r.ReadUint8(); err != nil {
		return nil, err
	}
	count, err := r.ReadUPacked()
	if err != nil {
		return nil, err
	}
	if int(count) > r.Remaining() {
		return nil, ErrTruncated
	}
	h.Mods = make([]Mod, 0, count)
	for i := uint32(0); i < count; i++ {
		var mod Mod
		if mod.ID, err = r.ReadString(); err != nil {
			return nil, err
		}
		if mod.Version, err = r.ReadString(); err != nil {
			return nil, err
		}
		h.Mods = append(h.Mods, mod)
	}
	return h, nil
}

func (h *Hello) Write(w *Writer) {
	w.WriteUint8(uint8(SendOptionHello))
	w.WriteUint16BE(h.Nonce)
	w.WriteUint8(h.HazelVer)
	w.WriteInt32(h.ClientVersion.Encode())
	w.WriteString(h.Username)
	if h.Modded {
		w.WriteUint8(h.ProtocolVersion)
		w.WriteUPacked(uint32(len(h.Mods)))
		for _, mod := range h.Mods {
			w.WriteString(mod.ID)
			w.WriteString(mod.Version)
		}
	}
}

// WriteDisconnect builds a complete disconnect datagram. A zero reason with
// no message produces the bare one byte form.
func WriteDisconnect(reason DisconnectReason, message string) []byte {
	w := NewWriter()
	w.WriteUint8(uint8(SendOptionDisconnect))
	if reason == DisconnectReasonNone && message == "" {
		return w.Bytes()
	}

	w.WriteUint8(1) // forced flag
	w.BeginMessage(0)
	w.WriteUint8(uint8(reason))
	if reason == DisconnectReasonCustom {
		w.WriteString(message)
	}
	w.EndMessage()
	return w.Bytes()
}

// ParseDisconnect decodes a disconnect body. Every field is optional; the
// bare packet means "no reason given".
func ParseDisconnect(r *Reader) (DisconnectReason, string) {
	if !r.HasNext() {
		return DisconnectReasonNone, ""
	}
	if _, err := r.ReadUint8(); err != nil {
		return DisconnectReasonNone, ""
	}
	_, body, err := r.ReadMessage()
	if err != nil {
		return DisconnectReasonNone, ""
	}
	reasonByte, err := body.ReadUint8()
	if err != nil {
		return DisconnectReasonNone, ""
	}
	reason := DisconnectReason(reasonByte)
	message := ""
	if reason == DisconnectReasonCustom {
		message, _ = body.ReadString()
	}
	return reason, message
}
