package fleet

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the operator-side configuration for the fleet engine.
type Config struct {
	Fleet struct {
		Name   string   `yaml:"name"`
		Dir    string   `yaml:"dir"`
		Size   int      `yaml:"size"`
		Labels []string `yaml:"labels"`
	} `yaml:"fleet"`
	Repo      string `yaml:"repo"`
	ServerURL string `yaml:"server_url"`
	Principal string `yaml:"principal"`
	StateDir  string `yaml:"state_dir"`
	Release   struct {
		URL     string `yaml:"url"`
		Version string `yaml:"version"`
	} `yaml:"release"`
	Mirror struct {
		Addr       string `yaml:"addr"`
		User       string `yaml:"user"`
		KeyPath    string `yaml:"key_path"`
		KnownHosts string `yaml:"known_hosts"`
		Dir        string `yaml:"dir"`
	} `yaml:"mirror"`
	Defaults struct {
		Retries      int `yaml:"retries"`
		TimeoutSecs  int `yaml:"timeout_seconds"`
		GraceSeconds int `yaml:"grace_seconds"`
	} `yaml:"defaults"`

	// Tokens are merged from secrets.env and the environment, never from YAML.
	Tokens struct {
		Register string `yaml:"-"`
		Remove   string `yaml:"-"`
	} `yaml:"-"`
}

// LoadConfig reads YAML configuration from a path. If path is empty, it resolves
// $XDG_CONFIG_HOME/runnerfleet/config.yaml or ~/.config/runnerfleet/config.yaml.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		path = DefaultConfigPath()
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)

	// Merge secrets from secrets.env if present to avoid storing tokens in YAML
	secrets, _ := LoadSecretsEnv("")
	if v := os.Getenv("RUNNER_TOKEN"); v != "" {
		secrets["RUNNER_TOKEN"] = v
	}
	if v := os.Getenv("RUNNER_REMOVE_TOKEN"); v != "" {
		secrets["RUNNER_REMOVE_TOKEN"] = v
	}
	if t, ok := secrets["RUNNER_TOKEN"]; ok && t != "" {
		cfg.Tokens.Register = t
	}
	if t, ok := secrets["RUNNER_REMOVE_TOKEN"]; ok && t != "" {
		cfg.Tokens.Remove = t
	}
	return cfg, nil
}

// DefaultConfigPath resolves the XDG config file location.
func DefaultConfigPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "runnerfleet", "config.yaml")
}

// DefaultStateDir resolves where the fleet manifest lives.
func DefaultStateDir() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "runnerfleet")
}

func applyDefaults(cfg *Config) {
	if cfg.Fleet.Size == 0 {
		cfg.Fleet.Size = 1
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = "https://github.com"
	}
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir()
	}
	if cfg.Defaults.Retries == 0 {
		cfg.Defaults.Retries = 3
	}
	if cfg.Defaults.TimeoutSecs == 0 {
		cfg.Defaults.TimeoutSecs = 30
	}
	if cfg.Defaults.GraceSeconds == 0 {
		cfg.Defaults.GraceSeconds = 5
	}
}

// LoadSecretsEnv reads $XDG_CONFIG_HOME/runnerfleet/secrets.env (or
// ~/.config/runnerfleet/secrets.env) and returns key/value pairs. Lines
// starting with # are ignored. Format: KEY=VALUE
func LoadSecretsEnv(path string) (map[string]string, error) {
	if path == "" {
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, _ := os.UserHomeDir()
			base = filepath.Join(home, ".config")
		}
		path = filepath.Join(base, "runnerfleet", "secrets.env")
	}
	f, err := os.Open(path)
	if err != nil {
		return map[string]string{}, nil // not fatal if missing
	}
	defer f.Close()
	out := map[string]string{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			out[k] = v
		}
	}
	return out, nil
}
