package events

import (
	"log/slog"
	"sync"
)

// Event is a named occurrence with loosely typed fields, the shape plugins
// consume. Handlers may cancel it; whether cancellation means anything is
// up to the dispatching code.
type Event struct {
	Name   string
	Fields map[string]any

	canceled bool
}

func (e *Event) Cancel() {
	e.canceled = true
}

func (e *Event) Canceled() bool {
	return e.canceled
}

// Handler observes one event. Handlers run in subscription order.
type Handler func(e *Event)

type subscription struct {
	id      int
	handler Handler
}

// Registry fans events out to subscribers. Room lifecycle, player joins,
// chat and the like all pass through here so plugins can observe or veto
// them.
type Registry struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string][]subscription
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		subs:   make(map[string][]subscription),
		logger: logger,
	}
}

// Subscribe registers a handler for an event name and returns an id for
// Unsubscribe.
func (r *Registry) Subscribe(name string, h Handler) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.subs[name] = append(r.subs[name], subscription{id: r.nextID, handler: h})
	return r.nextID
}

func (r *Registry) Unsubscribe(name string, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.subs[name]
	for i, s := range subs {
		if s.id == id {
			r.subs[name] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Dispatch runs every handler for the event and reports whether any of
// them canceled it. A handler panic is contained so a broken plugin cannot
// take the node down.
func (r *Registry) Dispatch(name string, fields map[string]any) bool {
	r.mu.RLock()
	subs := make([]subscription, len(r.subs[name]))
	copy(subs, r.subs[name])
	r.mu.RUnlock()

	if len(subs) == 0 {
		return false
	}

	event := &Event{Name: name, Fields: fields}
	for _, s := range subs {
		r.run(s, event)
	}
	return event.canceled
}

func (r *Registry) run(s subscription, e *Event) {
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("event handler panicked", "event", e.Name, "error", err)
		}
	}()
	s.handler(e)
}
