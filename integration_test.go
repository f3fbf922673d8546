package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TestCLIWorkflow tests the operator-facing CLI end to end
func TestCLIWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tmpDir := t.TempDir()

	// Build the binary first
	if err := buildBinary(); err != nil {
		t.Fatalf("Failed to build binary: %v", err)
	}

	// Keep all state inside the test dir
	t.Setenv("XDG_STATE_HOME", filepath.Join(tmpDir, "state"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "config"))

	t.Run("Init", func(t *testing.T) {
		testInit(t, tmpDir)
	})

	t.Run("CLI_Commands", func(t *testing.T) {
		testCLICommands(t, tmpDir)
	})

	t.Run("Status_Empty", func(t *testing.T) {
		testStatusEmpty(t, tmpDir)
	})

	t.Run("Down_Requires_Token", func(t *testing.T) {
		testDownRequiresToken(t, tmpDir)
	})
}

func buildBinary() error {
	cmd := exec.Command("go", "build", "-o", "bin/runnerfleet", "./cmd/runnerfleet")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("build failed: %v\nOutput: %s", err, output)
	}
	return nil
}

func testInit(t *testing.T, tmpDir string) {
	configPath := filepath.Join(tmpDir, "config.yaml")

	cmd := exec.Command("./bin/runnerfleet", "--config", configPath, "init")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("init failed: %v\nOutput: %s", err, output)
	}
	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	// Second init must leave the existing file alone
	cmd = exec.Command("./bin/runnerfleet", "--config", configPath, "init")
	output, err = cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("re-init failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(string(output), "already exists") {
		t.Errorf("expected re-init to report existing config, got: %s", output)
	}
}

func testCLICommands(t *testing.T, tmpDir string) {
	configPath := filepath.Join(tmpDir, "config.yaml")

	tests := []struct {
		name string
		args []string
	}{
		{"version", []string{"version"}},
		{"help", []string{"--help"}},
		{"completion_bash", []string{"completion", "bash"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			args := append([]string{"--config", configPath}, test.args...)
			cmd := exec.Command("./bin/runnerfleet", args...)
			output, err := cmd.CombinedOutput()
			if err != nil {
				t.Fatalf("Command %v failed: %v\nOutput: %s", test.args, err, output)
			}
			t.Logf("Command %v output: %s", test.args, output)
		})
	}
}

func testStatusEmpty(t *testing.T, tmpDir string) {
	configPath := filepath.Join(tmpDir, "config.yaml")

	cmd := exec.Command("./bin/runnerfleet", "--config", configPath, "status")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("status failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(string(output), "no instances recorded") {
		t.Errorf("expected empty-manifest message, got: %s", output)
	}
}

func testDownRequiresToken(t *testing.T, tmpDir string) {
	configPath := filepath.Join(tmpDir, "config.yaml")

	cmd := exec.Command("./bin/runnerfleet", "--config", configPath, "down")
	cmd.Env = append(os.Environ(), "RUNNER_REMOVE_TOKEN=")
	output, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("down without a removal token must fail\nOutput: %s", output)
	}
	if !strings.Contains(string(output), "removal token") {
		t.Errorf("expected removal token error, got: %s", output)
	}
}
