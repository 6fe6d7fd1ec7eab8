package transport

import (
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
)

// PacketWriter is the outbound half of a UDP socket. Sessions write through
// this so tests can capture datagrams without a real socket.
type PacketWriter interface {
	WriteTo(addr *net.UDPAddr, data []byte) error
}

// Socket wraps the single UDP socket a node serves from. All clients share
// it; per-endpoint demux happens in the read loop's handler.
type Socket struct {
	conn   *net.UDPConn
	logger *slog.Logger
	closed atomic.Bool
}

func Listen(port int, logger *slog.Logger) (*Socket, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to listen on udp port %d: %w", port, err)
	}

	logger.Info("socket listening", "port", port)
	return &Socket{conn: conn, logger: logger}, nil
}

func (s *Socket) LocalPort() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

// ReadLoop blocks reading datagrams until the socket closes. Each datagram
// gets its own buffer; handlers may retain the slice.
func (s *Socket) ReadLoop(handle func(addr *net.UDPAddr, data []byte)) {
	for {
		buf := make([]byte, 2048)
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Error("socket read failed", "error", err)
			continue
		}
		if n > 0 {
			handle(addr, buf[:n])
		}
	}
}

func (s *Socket) WriteTo(addr *net.UDPAddr, data []byte) error {
	_, err := s.conn.WriteToUDP(data, addr)
	return err
}

func (s *Socket) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.conn.Close()
		s.logger.Info("socket closed")
	}
}
