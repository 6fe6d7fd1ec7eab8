package transport

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mirahq/mira/internal/protocol"
)

const (
	// SentWindow is how many in-flight reliable packets a session tracks.
	SentWindow = 8
	// ReceiveWindow is how many recently accepted nonces a session remembers
	// for the ack bitfield.
	ReceiveWindow = 8
	// MaxSendAttempts counts the initial send plus retransmits. A packet
	// still unacked after this many sends times the session out.
	MaxSendAttempts = 8

	DefaultResendInterval = 1500 * time.Millisecond
)

type sentPacket struct {
	nonce    uint16
	data     []byte
	acked    bool
	attempts int
}

// Session is the reliable-delivery layer over one remote endpoint. It
// assigns nonces to outgoing reliable packets, retransmits until acked,
// acknowledges and deduplicates incoming nonces, and reports a timeout when
// the peer stops acking.
type Session struct {
	addr   *net.UDPAddr
	out    PacketWriter
	logger *slog.Logger

	mu           sync.Mutex
	nonce        uint16
	sent         []*sentPacket
	received     []uint16
	lastAccepted uint16
	seenAny      bool
	closed       bool
	timedOut     bool

	resendEvery time.Duration
	onTimeout   func()
	stop        chan struct{}
}

func NewSession(out PacketWriter, addr *net.UDPAddr, logger *slog.Logger, onTimeout func()) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		addr:        addr,
		out:         out,
		logger:      logger,
		resendEvery: DefaultResendInterval,
		onTimeout:   onTimeout,
		stop:        make(chan struct{}),
	}
}

func (s *Session) Addr() *net.UDPAddr {
	return s.addr
}

// Start launches the retransmit loop. Callers that never send reliable
// traffic (the balancer redirecting a client once) can skip it.
func (s *Session) Start() {
	go func() {
		ticker := time.NewTicker(s.resendEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.resendTick()
			case <-s.stop:
				return
			}
		}
	}()
}

// SendReliable wraps a payload in a reliable packet, records it for
// retransmission and sends it. The payload is the message stream only;
// nonces are the session's business.
func (s *Session) SendReliable(payload []byte) (uint16, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, net.ErrClosed
	}
	s.nonce++
	nonce := s.nonce

	data := make([]byte, 0, len(payload)+3)
	data = append(data, uint8(protocol.SendOptionReliable), byte(nonce>>8), byte(nonce))
	data = append(data, payload...)

	s.sent = append(s.sent, &sentPacket{nonce: nonce, data: data, attempts: 1})
	if len(s.sent) > SentWindow {
		s.sent = s.sent[len(s.sent)-SentWindow:]
	}
	s.mu.Unlock()

	return nonce, s.out.WriteTo(s.addr, data)
}

func (s *Session) SendUnreliable(payload []byte) error {
	data := make([]byte, 0, len(payload)+1)
	data = append(data, uint8(protocol.SendOptionUnreliable))
	data = append(data, payload...)
	return s.out.WriteTo(s.addr, data)
}

// SendRaw transmits an already framed datagram, disconnects for example.
func (s *Session) SendRaw(data []byte) error {
	return s.out.WriteTo(s.addr, data)
}

// HandleAck marks the acked nonce delivered. Acks for nonces already dropped
// from the window are ignored.
func (s *Session) HandleAck(nonce uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.sent {
		if p.nonce == nonce {
			p.acked = true
			return
		}
	}
}

// AcceptNonce processes an incoming reliable nonce. A new nonce is
// acknowledged and accepted; a duplicate or stale one is acknowledged but
// the caller must not process the payload. Our ack for the first delivery
// may have been lost, so staying silent would leave the peer retransmitting
// until it times the session out.
func (s *Session) AcceptNonce(nonce uint16) bool {
	s.mu.Lock()
	if s.seenAny && nonce <= s.lastAccepted {
		ack := s.buildAckLocked(nonce)
		s.mu.Unlock()
		if err := s.out.WriteTo(s.addr, ack); err != nil {
			s.logger.Debug("ack send failed", "nonce", nonce, "error", err)
		}
		return false
	}
	s.lastAccepted = nonce
	s.seenAny = true
	s.received = append(s.received, nonce)
	if len(s.received) > ReceiveWindow {
		s.received = s.received[len(s.received)-ReceiveWindow:]
	}
	ack := s.buildAckLocked(nonce)
	s.mu.Unlock()

	if err := s.out.WriteTo(s.addr, ack); err != nil {
		s.logger.Debug("ack send failed", "nonce", nonce, "error", err)
	}
	return true
}

// buildAckLocked assembles [opcode][nonce BE][missing bitfield]. Bit i of
// the bitfield is set when nonce-1-i was received, so the peer can
// retransmit holes without waiting for a timeout.
func (s *Session) buildAckLocked(nonce uint16) []byte {
	var missing uint8
	for i := 0; i < ReceiveWindow; i++ {
		prev := nonce - uint16(i) - 1
		for _, seen := range s.received {
			if seen == prev {
				missing |= 1 << i
				break
			}
		}
	}
	return []byte{uint8(protocol.SendOptionAck), byte(nonce >> 8), byte(nonce), missing}
}

// resendTick retransmits every unacked packet and fires the timeout callback
// once when any packet exhausts its attempts.
func (s *Session) resendTick() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var resend [][]byte
	expired := false
	for _, p := range s.sent {
		if p.acked {
			continue
		}
		if p.attempts >= MaxSendAttempts {
			expired = true
			continue
		}
		p.attempts++
		resend = append(resend, p.data)
	}
	fireTimeout := expired && !s.timedOut
	if fireTimeout {
		s.timedOut = true
	}
	s.mu.Unlock()

	for _, data := range resend {
		if err := s.out.WriteTo(s.addr, data); err != nil {
			s.logger.Debug("retransmit failed", "error", err)
		}
	}
	if fireTimeout && s.onTimeout != nil {
		s.logger.Info("session timed out", "addr", s.addr.String())
		s.onTimeout()
	}
}

func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.stop)
}
