package room

import (
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/mirahq/mira/internal/events"
	"github.com/mirahq/mira/internal/protocol"
	"github.com/mirahq/mira/pkg/config"
)

var ErrNoFreeCode = errors.New("room: could not allocate a unique game code")

// Registry owns the live rooms on one node.
type Registry struct {
	cfg    *config.Config
	events *events.Registry
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[protocol.GameCode]*Room
	rng   *rand.Rand

	// OnDestroy runs after a room is gone, for the server to clean up the
	// cluster-wide placement record.
	OnDestroy func(code protocol.GameCode)
}

func NewRegistry(cfg *config.Config, ev *events.Registry, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:    cfg,
		events: ev,
		logger: logger,
		rooms:  make(map[protocol.GameCode]*Room),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Create allocates a room under a code no live room on this node uses.
func (g *Registry) Create(options protocol.GameOptions) (*Room, error) {
	g.mu.Lock()
	var code protocol.GameCode
	found := false
	for i := 0; i < 64; i++ {
		code = protocol.GenerateCode(g.rng)
		if _, taken := g.rooms[code]; !taken {
			found = true
			break
		}
	}
	if !found {
		g.mu.Unlock()
		return nil, ErrNoFreeCode
	}

	r := newRoom(code, options, g.cfg, g.events, g.logger, g.removeDestroyed)
	g.rooms[code] = r
	g.mu.Unlock()

	g.logger.Info("room created", "room", code.String())
	g.events.Dispatch("room.create", map[string]any{"room": code.String()})
	return r, nil
}

func (g *Registry) Get(code protocol.GameCode) *Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rooms[code]
}

func (g *Registry) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Codes snapshots the live room codes.
func (g *Registry) Codes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	codes := make([]string, 0, len(g.rooms))
	for code := range g.rooms {
		codes = append(codes, code.String())
	}
	return codes
}

// ForEach visits a snapshot of the live rooms.
func (g *Registry) ForEach(fn func(r *Room)) {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.RUnlock()
	for _, r := range rooms {
		fn(r)
	}
}

// DestroyAll tears every room down, for shutdown.
func (g *Registry) DestroyAll(reason protocol.DisconnectReason) {
	g.ForEach(func(r *Room) {
		r.Destroy(reason)
	})
}

func (g *Registry) removeDestroyed(r *Room) {
	g.mu.Lock()
	delete(g.rooms, r.code)
	g.mu.Unlock()
	if g.OnDestroy != nil {
		g.OnDestroy(r.code)
	}
}
