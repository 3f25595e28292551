// Package config loads the agorat TOML configuration and resolves the
// data directory. Callers hold the loaded Config; there is no package
// level current-config state.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/agora-at/agorat/pkg/identity"
)

type Config struct {
	Gateway GatewayConfig          `toml:"gateway"`
	Agora   AgoraConfig            `toml:"agora"`
	ATProto ATProtoConfig          `toml:"atproto"`
	Agents  map[string]AgentConfig `toml:"agents"`
	Keys    KeysConfig             `toml:"keys"`
	Store   StoreConfig            `toml:"store"`
	Bot     BotConfig              `toml:"bot"`
	Log     LogConfig              `toml:"log"`
	Tracing TracingConfig          `toml:"tracing"`
}

type GatewayConfig struct {
	Bind      string `toml:"bind"`
	Port      int    `toml:"port"`
	AuthToken string `toml:"auth_token"`
}

// AgoraConfig points at the remote Agora agent endpoint.
type AgoraConfig struct {
	Endpoint string `toml:"endpoint"`
}

type ATProtoConfig struct {
	Service     string `toml:"service"`
	Identifier  string `toml:"identifier"`
	PasswordEnv string `toml:"password_env"`
}

// AgentConfig describes one bridged agent identity. The map key in
// [agents.<role>] names the role ("agora", "atproto", "bot").
type AgentConfig struct {
	DID          string   `toml:"did"`
	Handle       string   `toml:"handle"`
	Capabilities []string `toml:"capabilities"`
	Endpoint     string   `toml:"endpoint"`
	Description  string   `toml:"description"`
	Creator      string   `toml:"creator"`
}

type KeysConfig struct {
	Dir    string `toml:"dir"`
	Domain string `toml:"domain"`
}

type StoreConfig struct {
	DSN          string `toml:"dsn"`
	MasterKeyEnv string `toml:"master_key_env"`
}

type BotConfig struct {
	Enabled     bool   `toml:"enabled"`
	Handle      string `toml:"handle"`
	Interval    string `toml:"interval"`
	MaxMentions int    `toml:"max_mentions"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type TracingConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
}

func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Bind: "loopback",
			Port: 18790,
		},
		Agora: AgoraConfig{
			Endpoint: "http://localhost:5000",
		},
		ATProto: ATProtoConfig{
			Service:     "https://bsky.social",
			PasswordEnv: "AGORAT_ATPROTO_PASSWORD",
		},
		Keys: KeysConfig{
			Dir: filepath.Join(DataDir(), "keys"),
		},
		Store: StoreConfig{
			DSN:          filepath.Join(DataDir(), "agorat.db"),
			MasterKeyEnv: "AGORAT_MASTER_KEY",
		},
		Bot: BotConfig{
			Interval:    "60s",
			MaxMentions: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the TOML file at path over the defaults. A missing file is
// not an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Store.DSN == "" {
		cfg.Store.DSN = filepath.Join(DataDir(), "agorat.db")
	}
	if cfg.Keys.Dir == "" {
		cfg.Keys.Dir = filepath.Join(DataDir(), "keys")
	}

	return cfg, nil
}

// Agent builds the identity for the named role from [agents.<role>].
func (c *Config) Agent(role string) (*identity.Agent, error) {
	ac, ok := c.Agents[role]
	if !ok {
		return nil, fmt.Errorf("config: no [agents.%s] section", role)
	}

	caps := make([]identity.Capability, 0, len(ac.Capabilities))
	for _, raw := range ac.Capabilities {
		cap, err := identity.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("config: [agents.%s]: %w", role, err)
		}
		caps = append(caps, cap)
	}

	agent, err := identity.NewAgent(identity.Spec{
		DID:          ac.DID,
		Handle:       ac.Handle,
		Capabilities: caps,
		Endpoint:     ac.Endpoint,
		Description:  ac.Description,
		Creator:      ac.Creator,
	})
	if err != nil {
		return nil, fmt.Errorf("config: [agents.%s]: %w", role, err)
	}
	return agent, nil
}

func DataDir() string {
	if dir := os.Getenv("AGORAT_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agorat"
	}
	return filepath.Join(home, ".agorat")
}

func DefaultConfigPath() string {
	return filepath.Join(DataDir(), "agorat.toml")
}

func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0700)
}
