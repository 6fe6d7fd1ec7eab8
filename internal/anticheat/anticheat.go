package anticheat

import (
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/mirahq/mira/internal/coord"
	"github.com/mirahq/mira/pkg/config"
)

// Verdict is what a rule violation earned the client.
type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictDisconnect
	VerdictBan
)

func (v Verdict) String() string {
	switch v {
	case VerdictDisconnect:
		return "disconnect"
	case VerdictBan:
		return "ban"
	}
	return "none"
}

// Engine applies the configured rule table to protocol violations. Counters
// live locally and are mirrored to the coordination store best-effort, so a
// cheater hopping between cluster nodes carries their record along.
type Engine struct {
	cfg    *config.Config
	store  coord.Store
	logger *slog.Logger

	mu          sync.Mutex
	infractions map[string]map[string]int
	disconnects map[string]map[string]int
}

func New(cfg *config.Config, store coord.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:         cfg,
		store:       store,
		logger:      logger,
		infractions: make(map[string]map[string]int),
		disconnects: make(map[string]map[string]int),
	}
}

// Penalize records one violation of a rule by the given client and returns
// what should happen to the connection. Strikes are forgiven violations:
// with strikes=2 the first two are logged and the third acts. Enforcement
// counters are per IP; a cheater reconnecting under a fresh client id keeps
// their record.
func (e *Engine) Penalize(ip string, clientID int32, rule string) Verdict {
	if !e.cfg.AntiCheat.Enabled {
		return VerdictNone
	}

	policy := e.cfg.Rule(rule)

	e.mu.Lock()
	count := e.bump(e.infractions, ip, rule)
	e.mu.Unlock()

	// Mirror so other nodes see repeat offenders. Losing this write only
	// costs cross-node memory, never local enforcement.
	if _, err := e.store.HIncr(coord.InfractionsKey(ip, clientID), rule, 1); err != nil {
		e.logger.Debug("infraction mirror failed", "ip", ip, "error", err)
	}

	e.logger.Warn("anticheat violation",
		"ip", ip, "client", clientID, "rule", rule, "count", count, "action", policy.Action)

	if policy.Action == "ignore" || count <= policy.Strikes {
		return VerdictNone
	}

	switch policy.Action {
	case "ban":
		e.ban(ip, rule, policy)
		return VerdictBan
	case "disconnect":
		if policy.BanAfterDisconnects > 0 {
			e.mu.Lock()
			kicks := e.bump(e.disconnects, ip, rule)
			e.mu.Unlock()
			if kicks >= policy.BanAfterDisconnects {
				e.ban(ip, rule, policy)
				return VerdictBan
			}
		}
		return VerdictDisconnect
	}
	return VerdictNone
}

func (e *Engine) bump(table map[string]map[string]int, ip, rule string) int {
	rules := table[ip]
	if rules == nil {
		rules = make(map[string]int)
		table[ip] = rules
	}
	rules[rule]++
	return rules[rule]
}

func (e *Engine) ban(ip, rule string, policy config.RuleConfig) {
	dur := policy.BanDuration()
	if err := e.store.Set(coord.BanKey(ip), rule, dur); err != nil {
		e.logger.Error("ban write failed", "ip", ip, "rule", rule, "error", err)
	}
	e.logger.Warn("client banned", "ip", ip, "rule", rule, "duration", dur)
}

// CheckBanned reports whether an IP is currently banned. Store failures
// count as banned: when the ban list is unreadable nobody gets in.
func (e *Engine) CheckBanned(ip string) (bool, string) {
	reason, err := e.store.Get(coord.BanKey(ip))
	if err == coord.ErrNotFound {
		return false, ""
	}
	if err != nil {
		e.logger.Error("ban lookup failed", "ip", ip, "error", err)
		return true, "ban list unavailable"
	}
	return true, reason
}

// Forget drops the local counters for an IP, called when its last
// connection goes away so the maps do not grow without bound.
func (e *Engine) Forget(ip string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.infractions, ip)
}

// NamesEquivalent compares usernames the way the name-mismatch rule needs
// to: unicode compatibility forms folded together, case ignored, so a
// spoofed lookalike name does not slip past as "different".
func NamesEquivalent(a, b string) bool {
	na := norm.NFKC.String(strings.TrimSpace(a))
	nb := norm.NFKC.String(strings.TrimSpace(b))
	return strings.EqualFold(na, nb)
}
