package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/services"
)

// Config is the file-based server configuration. Every field has a working
// default so the server also boots with no config file at all; environment
// variables referenced as ${VAR} inside the file are expanded before parsing.
type Config struct {
	ListenAddr string           `yaml:"listen_addr"`
	Store      StoreConfig      `yaml:"store"`
	Autosave   AutosaveConfig   `yaml:"autosave"`
	Authz      AuthzConfig      `yaml:"authz"`
	Escalation EscalationConfig `yaml:"escalation"`
}

type StoreConfig struct {
	// Backend selects the persistence implementation: memory, sqlite or
	// postgres.
	Backend string `yaml:"backend"`
	// DSN is the postgres connection string; ignored for other backends.
	DSN string `yaml:"dsn"`
	// Path is the sqlite database file; ignored for other backends.
	Path string `yaml:"path"`
}

type AutosaveConfig struct {
	QuietPeriod  Duration `yaml:"quiet_period"`
	RetryBackoff Duration `yaml:"retry_backoff"`
}

// Duration parses yaml scalars like "500ms" or "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type AuthzConfig struct {
	Mode       string `yaml:"mode"`
	ModelPath  string `yaml:"model_path"`
	PolicyPath string `yaml:"policy_path"`
}

type EscalationConfig struct {
	Rules []services.EscalationRule `yaml:"rules"`
}

func Default() Config {
	return Config{
		ListenAddr: ":8080",
		Store:      StoreConfig{Backend: "memory"},
		Autosave: AutosaveConfig{
			QuietPeriod:  Duration(services.DefaultQuietPeriod),
			RetryBackoff: Duration(services.DefaultRetryBackoff),
		},
		Authz: AuthzConfig{Mode: "enforce"},
	}
}

func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// LoadFromEnv reads CONFIG_PATH when set and falls back to defaults
// otherwise, so the binary runs without any file in local setups.
// SCOPING_STORE_BACKEND and SCOPING_STORE_PATH override the file either way.
func LoadFromEnv() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	if backend := os.Getenv("SCOPING_STORE_BACKEND"); backend != "" {
		cfg.Store.Backend = backend
	}
	if path := os.Getenv("SCOPING_STORE_PATH"); path != "" {
		cfg.Store.Path = path
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required when store.backend=sqlite")
		}
	case "postgres":
	default:
		return fmt.Errorf("store.backend must be memory, sqlite or postgres, got %q", c.Store.Backend)
	}
	if c.Autosave.QuietPeriod < 0 || c.Autosave.RetryBackoff < 0 {
		return fmt.Errorf("autosave durations must not be negative")
	}
	switch c.Authz.Mode {
	case "", "enforce", "shadow", "disabled":
	default:
		return fmt.Errorf("authz.mode must be enforce, shadow or disabled, got %q", c.Authz.Mode)
	}
	if (c.Authz.ModelPath == "") != (c.Authz.PolicyPath == "") {
		return fmt.Errorf("authz.model_path and authz.policy_path must be set together")
	}
	return nil
}
