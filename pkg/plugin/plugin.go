package plugin

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	glua "github.com/Shopify/go-lua"

	"github.com/mirahq/mira/internal/events"
	"github.com/mirahq/mira/pkg/lua"
)

// timerResolution is how often plugin timers are polled.
const timerResolution = 100 * time.Millisecond

type subRef struct {
	event string
	id    int
}

// Plugin is one loaded script with its own sandboxed VM.
type Plugin struct {
	Name    string
	Version string
	Path    string

	mu   sync.Mutex
	vm   *lua.VM
	subs []subRef
}

// Manager loads lua plugins and bridges them onto the event registry. A
// script calls mira_on("player.chat", "onChat") to subscribe; the named
// global runs on every dispatch and may return true to cancel the event.
type Manager struct {
	events *events.Registry
	logger *slog.Logger

	mu      sync.Mutex
	plugins []*Plugin
	stop    chan struct{}
}

func NewManager(ev *events.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		events: ev,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// LoadDir loads every .lua file in a directory. A missing directory just
// means no plugins.
func (m *Manager) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Info("no plugin directory", "dir", dir)
			return nil
		}
		return fmt.Errorf("failed to read plugin directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := m.Load(path)
		if err != nil {
			m.logger.Error("plugin failed to load", "path", path, "error", err)
			continue
		}
		m.logger.Info("plugin loaded", "name", p.Name, "version", p.Version)
	}
	return nil
}

// Load runs one script and wires its subscriptions.
func (m *Manager) Load(path string) (*Plugin, error) {
	vm := lua.NewVM()
	p := &Plugin{
		Name: strings.TrimSuffix(filepath.Base(path), ".lua"),
		Path: path,
		vm:   vm,
	}
	m.install(p)

	if err := vm.LoadFile(path); err != nil {
		vm.Close()
		return nil, err
	}

	if name, err := vm.GetGlobalString("PLUGIN_NAME"); err == nil && name != "" {
		p.Name = name
	}
	if version, err := vm.GetGlobalString("PLUGIN_VERSION"); err == nil {
		p.Version = version
	}

	m.mu.Lock()
	m.plugins = append(m.plugins, p)
	m.mu.Unlock()
	return p, nil
}

// install registers the host functions a script sees.
func (m *Manager) install(p *Plugin) {
	p.vm.RegisterFunction("mira_log", func(l *glua.State) int {
		msg := glua.CheckString(l, 1)
		m.logger.Info("plugin log", "plugin", p.Name, "message", msg)
		return 0
	})

	p.vm.RegisterFunction("mira_on", func(l *glua.State) int {
		event := glua.CheckString(l, 1)
		callback := glua.CheckString(l, 2)
		id := m.events.Subscribe(event, func(e *events.Event) {
			if m.callPlugin(p, callback, e.Name) {
				e.Cancel()
			}
		})
		p.subs = append(p.subs, subRef{event: event, id: id})
		return 0
	})

	p.vm.RegisterFunction("mira_timer", func(l *glua.State) int {
		callback := glua.CheckString(l, 1)
		seconds := glua.CheckNumber(l, 2)
		repeat := l.ToBoolean(3)
		id := p.vm.RegisterTimer(callback, time.Duration(seconds*float64(time.Second)), repeat)
		l.PushInteger(id)
		return 1
	})
}

// callPlugin invokes a script callback, reporting whether it asked to
// cancel the event. Script errors are logged, never fatal.
func (m *Manager) callPlugin(p *Plugin, callback, eventName string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.vm.HasFunction(callback) {
		return false
	}
	results, err := p.vm.CallFunctionWithReturn(callback, 1, eventName)
	if err != nil {
		m.logger.Error("plugin callback failed",
			"plugin", p.Name, "callback", callback, "error", err)
		return false
	}
	cancel, _ := results[0].(bool)
	return cancel
}

// Start launches the timer pump.
func (m *Manager) Start() {
	go func() {
		ticker := time.NewTicker(timerResolution)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.pumpTimers()
			case <-m.stop:
				return
			}
		}
	}()
}

func (m *Manager) pumpTimers() {
	m.mu.Lock()
	plugins := make([]*Plugin, len(m.plugins))
	copy(plugins, m.plugins)
	m.mu.Unlock()

	for _, p := range plugins {
		p.mu.Lock()
		err := p.vm.UpdateTimers()
		p.mu.Unlock()
		if err != nil {
			m.logger.Error("plugin timer failed", "plugin", p.Name, "error", err)
		}
	}
}

// Stop unloads every plugin and halts the timer pump.
func (m *Manager) Stop() {
	close(m.stop)

	m.mu.Lock()
	plugins := m.plugins
	m.plugins = nil
	m.mu.Unlock()

	for _, p := range plugins {
		for _, sub := range p.subs {
			m.events.Unsubscribe(sub.event, sub.id)
		}
		p.vm.Close()
	}
}

// Plugins lists what is loaded, for the status endpoint.
func (m *Manager) Plugins() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.plugins))
	for _, p := range m.plugins {
		names = append(names, fmt.Sprintf("%s %s", p.Name, p.Version))
	}
	return names
}
