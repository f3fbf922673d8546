package fleet

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSecretsEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.env")
	content := "# comment\nRUNNER_TOKEN=abc123\n\nRUNNER_REMOVE_TOKEN = xyz \n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write secrets: %v", err)
	}

	secrets, err := LoadSecretsEnv(path)
	if err != nil {
		t.Fatalf("load secrets: %v", err)
	}
	if secrets["RUNNER_TOKEN"] != "abc123" {
		t.Errorf("expected abc123, got %q", secrets["RUNNER_TOKEN"])
	}
	if secrets["RUNNER_REMOVE_TOKEN"] != "xyz" {
		t.Errorf("expected trimmed xyz, got %q", secrets["RUNNER_REMOVE_TOKEN"])
	}
}

func TestLoadSecretsEnvMissingFileNotFatal(t *testing.T) {
	secrets, err := LoadSecretsEnv(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("missing secrets file must not be fatal: %v", err)
	}
	if len(secrets) != 0 {
		t.Errorf("expected empty map, got %v", secrets)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `fleet:
  name: nuc
  dir: /opt/runner
repo: acme/widgets
principal: runner
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Fleet.Size != 1 {
		t.Errorf("expected default size 1, got %d", cfg.Fleet.Size)
	}
	if cfg.ServerURL != "https://github.com" {
		t.Errorf("expected default server url, got %s", cfg.ServerURL)
	}
	if cfg.Defaults.GraceSeconds != 5 {
		t.Errorf("expected default grace 5s, got %d", cfg.Defaults.GraceSeconds)
	}
	if cfg.StateDir == "" {
		t.Errorf("expected resolved state dir")
	}
}

func TestLoadConfigTokenFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("repo: acme/widgets\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RUNNER_TOKEN", "envtok")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Tokens.Register != "envtok" {
		t.Errorf("expected token from environment, got %q", cfg.Tokens.Register)
	}
}
