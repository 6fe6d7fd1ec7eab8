package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Room      RoomConfig      `toml:"room"`
	Reactor   ReactorConfig   `toml:"reactor"`
	AntiCheat AntiCheatConfig `toml:"anticheat"`
	Redis     RedisConfig     `toml:"redis"`
	Balancer  BalancerConfig  `toml:"balancer"`
	Status    StatusConfig    `toml:"status"`
	Plugins   PluginsConfig   `toml:"plugins"`
}

type ServerConfig struct {
	Name     string `toml:"name"`
	PublicIP string `toml:"public_ip"`
	Port     int    `toml:"port"`

	// Versions a client may declare in its hello. Exact string match.
	Versions []string `toml:"versions"`

	// AllowDirect lets clients connect to a worker without having been
	// redirected by the balancer first.
	AllowDirect bool `toml:"allow_direct"`

	MaxConnections int  `toml:"max_connections"`
	LogToFile      bool `toml:"log_to_file"`
}

type RoomConfig struct {
	MaxPlayers   int  `toml:"max_players"`
	ChatCommands bool `toml:"chat_commands"`
	ServerAsHost bool `toml:"server_as_host"`
	ReapEmpty    bool `toml:"reap_empty"`

	// VotekickThreshold is the number of distinct voters required before a
	// vote-kick target is actually kicked.
	VotekickThreshold int  `toml:"votekick_threshold"`
	VotekickBan       bool `toml:"votekick_ban"`
}

type ReactorConfig struct {
	Enabled  bool             `toml:"enabled"`
	Optional bool             `toml:"optional"`
	Mods     []ModRequirement `toml:"mods"`

	// RequireHostMods makes JoinGame reject clients whose declared mod set
	// does not exactly match the room host's.
	RequireHostMods bool `toml:"require_host_mods"`
}

type ModRequirement struct {
	ID       string `toml:"id"`
	Version  string `toml:"version"`
	Optional bool   `toml:"optional"`
}

type AntiCheatConfig struct {
	Enabled bool                  `toml:"enabled"`
	Rules   map[string]RuleConfig `toml:"rules"`
}

type RuleConfig struct {
	Action  string `toml:"action"` // ignore | disconnect | ban
	Strikes int    `toml:"strikes"`

	BanMinutes          int `toml:"ban_minutes"`
	BanAfterDisconnects int `toml:"ban_after_disconnects"`
}

func (r RuleConfig) BanDuration() time.Duration {
	return time.Duration(r.BanMinutes) * time.Minute
}

type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Address  string `toml:"address"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type BalancerConfig struct {
	Port     int             `toml:"port"`
	Clusters []ClusterConfig `toml:"clusters"`
}

type ClusterConfig struct {
	Name  string `toml:"name"`
	IP    string `toml:"ip"`
	Ports []int  `toml:"ports"`
}

type StatusConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

type PluginsConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// Default returns the configuration a node runs with when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func LoadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&config)

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Name == "" {
		config.Server.Name = "mira"
	}

	if config.Server.Port == 0 {
		config.Server.Port = 22023
	}

	if config.Server.PublicIP == "" {
		config.Server.PublicIP = "127.0.0.1"
	}

	if config.Server.MaxConnections == 0 {
		config.Server.MaxConnections = 512
	}

	if len(config.Server.Versions) == 0 {
		config.Server.Versions = []string{"2021.6.30"}
	}

	if config.Room.MaxPlayers == 0 {
		config.Room.MaxPlayers = 15
	}

	if config.Room.VotekickThreshold == 0 {
		config.Room.VotekickThreshold = 3
	}

	if config.Balancer.Port == 0 {
		config.Balancer.Port = 22023
	}

	if config.Redis.Address == "" {
		config.Redis.Address = "127.0.0.1:6379"
	}

	if config.Status.Port == 0 {
		config.Status.Port = 8080
	}

	if config.Plugins.Dir == "" {
		config.Plugins.Dir = "plugins"
	}

	if config.AntiCheat.Rules == nil {
		config.AntiCheat.Rules = make(map[string]RuleConfig)
	}

	defaultRules := map[string]RuleConfig{
		"checkNameMismatch":  {Action: "disconnect", Strikes: 3},
		"objectOwnership":    {Action: "disconnect", Strikes: 3},
		"hostOnly":           {Action: "disconnect", Strikes: 3},
		"malformedPackets":   {Action: "disconnect", Strikes: 5},
		"massivePackets":     {Action: "ban", Strikes: 3, BanMinutes: 60},
		"invalidGameOptions": {Action: "disconnect", Strikes: 1},
	}
	for name, rule := range defaultRules {
		if _, ok := config.AntiCheat.Rules[name]; !ok {
			config.AntiCheat.Rules[name] = rule
		}
	}

	for name, rule := range config.AntiCheat.Rules {
		if rule.Action == "" {
			rule.Action = "ignore"
		}
		if rule.Action == "ban" && rule.BanMinutes == 0 {
			rule.BanMinutes = 60
		}
		config.AntiCheat.Rules[name] = rule
	}
}

// Rule returns the configured policy for a rule name, falling back to a
// log-only policy for rules no table entry covers.
func (c *Config) Rule(name string) RuleConfig {
	if rule, ok := c.AntiCheat.Rules[name]; ok {
		return rule
	}
	return RuleConfig{Action: "ignore"}
}

func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return fmt.Errorf("server name cannot be empty")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if len(c.Server.Versions) == 0 {
		return fmt.Errorf("at least one accepted client version must be specified")
	}

	if c.Room.MaxPlayers <= 0 || c.Room.MaxPlayers > 127 {
		return fmt.Errorf("max_players must be between 1 and 127")
	}

	if c.Room.VotekickThreshold <= 0 {
		return fmt.Errorf("votekick_threshold must be at least 1")
	}

	for name, rule := range c.AntiCheat.Rules {
		switch rule.Action {
		case "ignore", "disconnect", "ban":
		default:
			return fmt.Errorf("rule %s: invalid action %q", name, rule.Action)
		}
		if rule.Strikes < 0 {
			return fmt.Errorf("rule %s: strikes cannot be negative", name)
		}
	}

	for _, cluster := range c.Balancer.Clusters {
		if cluster.Name == "" {
			return fmt.Errorf("cluster name cannot be empty")
		}
		if cluster.IP == "" {
			return fmt.Errorf("cluster %s: ip cannot be empty", cluster.Name)
		}
		if len(cluster.Ports) == 0 {
			return fmt.Errorf("cluster %s: at least one port must be specified", cluster.Name)
		}
	}

	if c.Reactor.RequireHostMods && !c.Reactor.Enabled {
		return fmt.Errorf("require_host_mods needs reactor support enabled")
	}

	return nil
}
