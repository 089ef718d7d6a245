package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default configuration values
const (
	DefaultServerURL   = "ws://localhost:3000/ws"
	DefaultListen      = ":3000"
	DefaultRelayListen = "0.0.0.0:3478"
	DefaultRelayRealm  = "warpchat"
	DefaultTURNPort    = "3478"
)

// DefaultSTUN lists the public STUN servers used when none are configured.
var DefaultSTUN = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:global.stun.twilio.com:3478",
}

var ErrRelayWithoutTURN = errors.New("cannot force relay mode without TURN server configured")

// Config holds application configuration
type Config struct {
	// ServerURL is the coordinator websocket endpoint.
	ServerURL string `yaml:"server"`

	// Name is the display name announced on join.
	Name string `yaml:"name"`

	// ICE servers for WebRTC
	STUNServers []string `yaml:"stun"`
	TURNServer  string   `yaml:"turn"`
	TURNUser    string   `yaml:"turn_user"`
	TURNPass    string   `yaml:"turn_pass"`
	ForceRelay  bool     `yaml:"force_relay"`

	// Listen is the coordinator listen address for `serve`.
	Listen string `yaml:"listen"`

	Relay RelayConfig `yaml:"relay"`
}

// RelayConfig configures the TURN relay node.
type RelayConfig struct {
	Listen   string `yaml:"listen"`
	PublicIP string `yaml:"public_ip"`
	Realm    string `yaml:"realm"`

	// Users maps TURN usernames to passwords.
	Users map[string]string `yaml:"users"`
}

// Options for loading config with CLI flag overrides
type Options struct {
	ConfigPath string
	ServerURL  string
	Name       string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	Listen     string

	RelayListen   string
	RelayPublicIP string
	RelayRealm    string
	RelayUsers    []string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. YAML config file
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	path, explicit := opts.ConfigPath, opts.ConfigPath != ""
	if path == "" {
		path, explicit = os.Getenv("WARPCHAT_CONFIG"), os.Getenv("WARPCHAT_CONFIG") != ""
	}
	if path == "" {
		path = DefaultPath()
	}

	file, err := readFile(path, explicit)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerURL:  pick(opts.ServerURL, "WARPCHAT_SERVER", file.ServerURL, DefaultServerURL),
		Name:       pick(opts.Name, "WARPCHAT_NAME", file.Name, ""),
		TURNServer: pick(opts.TURNServer, "TURN_SERVER", file.TURNServer, ""),
		TURNUser:   pick(opts.TURNUser, "TURN_USERNAME", file.TURNUser, ""),
		TURNPass:   pick(opts.TURNPass, "TURN_PASSWORD", file.TURNPass, ""),
		Listen:     pick(opts.Listen, "", file.Listen, listenFromPort()),
		Relay: RelayConfig{
			Listen:   pick(opts.RelayListen, "RELAY_LISTEN", file.Relay.Listen, DefaultRelayListen),
			PublicIP: pick(opts.RelayPublicIP, "RELAY_PUBLIC_IP", file.Relay.PublicIP, ""),
			Realm:    pick(opts.RelayRealm, "RELAY_REALM", file.Relay.Realm, DefaultRelayRealm),
			Users:    file.Relay.Users,
		},
	}

	// STUN server list: CLI flag > env > file > default
	switch stun := pick(opts.STUNServer, "STUN_SERVER", "", ""); {
	case stun != "":
		cfg.STUNServers = splitList(stun)
	case len(file.STUNServers) > 0:
		cfg.STUNServers = file.STUNServers
	default:
		cfg.STUNServers = DefaultSTUN
	}

	// Force relay: set by any layer
	cfg.ForceRelay = opts.ForceRelay || file.ForceRelay
	if v, ok := os.LookupEnv("FORCE_RELAY"); ok && !opts.ForceRelay {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid FORCE_RELAY %q: %w", v, err)
		}
		cfg.ForceRelay = cfg.ForceRelay || b
	}

	users := opts.RelayUsers
	if len(users) == 0 {
		users = splitList(os.Getenv("RELAY_USERS"))
	}
	if len(users) > 0 {
		cfg.Relay.Users = make(map[string]string, len(users))
		for _, pair := range users {
			user, pass, ok := strings.Cut(pair, "=")
			if !ok || user == "" {
				return nil, fmt.Errorf("invalid relay user %q, want user=password", pair)
			}
			cfg.Relay.Users[user] = pass
		}
	}

	return cfg, nil
}

// DefaultPath is the config file consulted when none is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "warpchat", "config.yaml")
}

func readFile(path string, explicit bool) (*Config, error) {
	file := &Config{}
	if path == "" {
		return file, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return file, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return file, nil
}

func pick(flag, envKey, file, def string) string {
	if flag != "" {
		return flag
	}
	if envKey != "" {
		if v := os.Getenv(envKey); v != "" {
			return v
		}
	}
	if file != "" {
		return file
	}
	return def
}

func listenFromPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return DefaultListen
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks settings needed by the chat client.
func (c *Config) Validate() error {
	if c.ForceRelay && c.GetTURNServers() == nil {
		return ErrRelayWithoutTURN
	}
	return nil
}

// ValidateRelay checks settings needed by the relay node.
func (c *Config) ValidateRelay() error {
	if len(c.Relay.Users) == 0 {
		return errors.New("relay needs at least one user (--user name=password)")
	}
	if c.Relay.PublicIP == "" {
		return errors.New("relay needs a public IP (--public-ip)")
	}
	if net.ParseIP(c.Relay.PublicIP) == nil {
		return fmt.Errorf("invalid public IP %q", c.Relay.PublicIP)
	}
	return nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return c.STUNServers
}

// GetTURNServers returns TURN server URLs if configured. A bare host gets
// the default TURN port; udp and tcp transports are both offered.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, DefaultTURNPort)
	}
	return []string{
		fmt.Sprintf("turn:%s?transport=udp", host),
		fmt.Sprintf("turn:%s?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// UseRelayOnly reports whether ICE should be restricted to relay candidates.
func (c *Config) UseRelayOnly() bool {
	return c.GetTURNServers() != nil && (c.ForceRelay || ShouldForceRelay())
}
