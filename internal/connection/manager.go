package connection

import (
	"log/slog"
	"net"
	"sync"

	"github.com/mirahq/mira/internal/transport"
)

// Manager owns the connection table. Datagrams carry no client id, so the
// table is keyed by remote address as well as by id.
type Manager struct {
	mu     sync.RWMutex
	nextID int32
	byID   map[int32]*Connection
	byAddr map[string]*Connection
	logger *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		byID:   make(map[int32]*Connection),
		byAddr: make(map[string]*Connection),
		logger: logger,
	}
}

// Create allocates the next client id and registers a connection for the
// address. Ids are never reused within a process.
func (m *Manager) Create(addr *net.UDPAddr, session *transport.Session) *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	conn := New(m.nextID, addr, session, m.logger)
	m.byID[conn.ID] = conn
	m.byAddr[addr.String()] = conn
	return conn
}

func (m *Manager) Get(id int32) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[id]
}

func (m *Manager) GetByAddr(addr *net.UDPAddr) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byAddr[addr.String()]
}

func (m *Manager) Remove(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, conn.ID)
	delete(m.byAddr, conn.Addr.String())
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// ForEach snapshots the table and visits every connection outside the lock.
func (m *Manager) ForEach(fn func(conn *Connection)) {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.byID))
	for _, c := range m.byID {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		fn(c)
	}
}
