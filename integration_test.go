package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TestFullWorkflow tests the complete end-to-end workflow
func TestFullWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tmpDir := t.TempDir()
	bin := filepath.Join(tmpDir, "rollout")
	if err := buildBinary(bin); err != nil {
		t.Fatalf("Failed to build binary: %v", err)
	}

	t.Run("CLI_Commands", func(t *testing.T) {
		testCLICommands(t, bin)
	})
	t.Run("Dry_Run", func(t *testing.T) {
		testDryRun(t, bin, tmpDir)
	})
	t.Run("Config_Errors", func(t *testing.T) {
		testConfigErrors(t, bin, tmpDir)
	})
}

func buildBinary(out string) error {
	cmd := exec.Command("go", "build", "-o", out, "./cmd/rollout")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("build failed: %v\nOutput: %s", err, output)
	}
	return nil
}

func testCLICommands(t *testing.T, bin string) {
	tests := []struct {
		name string
		args []string
	}{
		{"version", []string{"version"}},
		{"help", []string{"--help"}},
		{"deploy_help", []string{"deploy", "--help"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cmd := exec.Command(bin, test.args...)
			output, err := cmd.CombinedOutput()
			if err != nil {
				t.Fatalf("Command %v failed: %v\nOutput: %s", test.args, err, output)
			}
			t.Logf("Command %v output: %s", test.args, output)
		})
	}
}

func writeTestInventory(t *testing.T, dir string) string {
	t.Helper()
	csvPath := filepath.Join(dir, "fleet.csv")
	content := "device_name,platform,tailscale_ip,location,ssh_user,ssh_password\n" +
		"rpi-1,raspberrypi,100.64.0.1,Store 12,pi,secret\n" +
		"mac-1,macos,100.64.0.2,HQ,admin,secret\n"
	if err := os.WriteFile(csvPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write inventory: %v", err)
	}
	return csvPath
}

func testDryRun(t *testing.T, bin, tmpDir string) {
	csvPath := writeTestInventory(t, tmpDir)

	cmd := exec.Command(bin, "deploy",
		"--inventory", csvPath,
		"--state-file", filepath.Join(tmpDir, "state.json"),
		"--dry-run", "--fetch", "--yes")
	cmd.Env = append(os.Environ(), "ZABBIX_API_TOKEN=integration-test-token")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("Dry run failed: %v\nOutput: %s", err, output)
	}

	out := string(output)
	for _, want := range []string{"DEPLOYMENT PLAN", "DRY RUN", "rpi-1", "mac-1", "2 hosts would be deployed"} {
		if !strings.Contains(out, want) {
			t.Errorf("dry-run output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "integration-test-token") {
		t.Errorf("token leaked into dry-run output:\n%s", out)
	}
}

func testConfigErrors(t *testing.T, bin, tmpDir string) {
	// A missing inventory file must be a configuration error, distinct
	// from host deployment failures.
	cmd := exec.Command(bin, "deploy",
		"--inventory", filepath.Join(tmpDir, "absent.csv"),
		"--state-file", filepath.Join(tmpDir, "state.json"),
		"--dry-run", "--yes")
	output, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("expected failure for missing inventory, got:\n%s", output)
	}
	if exit, ok := err.(*exec.ExitError); !ok || exit.ExitCode() != 2 {
		t.Errorf("expected exit code 2, got %v\nOutput: %s", err, output)
	}

	// An unmatched host filter is also a configuration error.
	csvPath := writeTestInventory(t, tmpDir)
	cmd = exec.Command(bin, "deploy",
		"--inventory", csvPath,
		"--state-file", filepath.Join(tmpDir, "state.json"),
		"--host", "no-such-device", "--dry-run", "--yes")
	output, err = cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("expected failure for unmatched host filter, got:\n%s", output)
	}
	if exit, ok := err.(*exec.ExitError); !ok || exit.ExitCode() != 2 {
		t.Errorf("expected exit code 2, got %v\nOutput: %s", err, output)
	}
}
