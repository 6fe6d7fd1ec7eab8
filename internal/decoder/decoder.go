package decoder

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/mirahq/mira/internal/connection"
	"github.com/mirahq/mira/internal/protocol"
)

// Factory builds an empty message for the decoder to fill.
type Factory func() protocol.Message

// Handler observes a decoded message. Handlers run in registration order; a
// handler may cancel the message, which is a signal to whatever processes
// the message afterwards, not an early exit for sibling handlers.
type Handler func(ctx *Context, msg protocol.Message)

// Context travels with a message through its handler chain.
type Context struct {
	Conn      *connection.Connection
	Direction protocol.Direction

	canceled bool
}

func (c *Context) Cancel() {
	c.canceled = true
}

func (c *Context) Canceled() bool {
	return c.canceled
}

type parseKey struct {
	container protocol.Container
	tag       uint8
	direction protocol.Direction
}

type listenKey struct {
	container protocol.Container
	tag       uint8
}

// Decoder maps (container, tag, direction) to message types and dispatches
// decoded messages to listeners. Each container kind numbers its tags
// independently.
type Decoder struct {
	mu        sync.RWMutex
	factories map[parseKey]Factory
	listeners map[listenKey][]Handler
	logger    *slog.Logger
}

func New(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		factories: make(map[parseKey]Factory),
		listeners: make(map[listenKey][]Handler),
		logger:    logger,
	}
}

func (d *Decoder) Register(c protocol.Container, tag uint8, dir protocol.Direction, f Factory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.factories[parseKey{c, tag, dir}] = f
}

// RegisterBoth registers the same type for both directions.
func (d *Decoder) RegisterBoth(c protocol.Container, tag uint8, f Factory) {
	d.Register(c, tag, protocol.DirectionClientToServer, f)
	d.Register(c, tag, protocol.DirectionServerToClient, f)
}

func (d *Decoder) On(c protocol.Container, tag uint8, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := listenKey{c, tag}
	d.listeners[key] = append(d.listeners[key], h)
}

// Parse decodes one message body. A tag with no registered factory is not
// an error: it comes back as *protocol.Unknown, raw bytes preserved.
func (d *Decoder) Parse(c protocol.Container, tag uint8, dir protocol.Direction, r *protocol.Reader) (protocol.Message, error) {
	d.mu.RLock()
	factory, ok := d.factories[parseKey{c, tag, dir}]
	d.mu.RUnlock()

	if !ok {
		unk := &protocol.Unknown{RawTag: tag, In: c}
		if err := unk.ReadFrom(r); err != nil {
			return nil, err
		}
		return unk, nil
	}

	msg := factory()
	if err := msg.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("decode %s tag %d: %w", c, tag, err)
	}

	if res, ok := msg.(protocol.Resolvable); ok {
		resolve := func(cc protocol.Container, tt uint8, rr *protocol.Reader) (protocol.Message, error) {
			return d.Parse(cc, tt, dir, rr)
		}
		if err := res.ResolveChildren(resolve); err != nil {
			return nil, fmt.Errorf("decode %s tag %d children: %w", c, tag, err)
		}
	}

	return msg, nil
}

// ParsePayload decodes the consecutive root messages of a reliable or
// unreliable packet payload.
func (d *Decoder) ParsePayload(r *protocol.Reader, dir protocol.Direction) ([]protocol.Message, error) {
	var messages []protocol.Message
	for r.HasNext() {
		tag, body, err := r.ReadMessage()
		if err != nil {
			return nil, err
		}
		msg, err := d.Parse(protocol.ContainerRoot, tag, dir, body)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// EmitDecoded runs the listeners for a message, then recurses into its
// children so listeners on nested message types fire too. Cancellation set
// by any handler sticks on the context; recursion continues regardless,
// callers decide what a canceled message means.
func (d *Decoder) EmitDecoded(ctx *Context, msg protocol.Message) {
	d.mu.RLock()
	handlers := d.listeners[listenKey{msg.Container(), msg.Tag()}]
	d.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, msg)
	}

	if parent, ok := msg.(protocol.Parent); ok {
		for _, child := range parent.Children() {
			d.EmitDecoded(ctx, child)
		}
	}
}
