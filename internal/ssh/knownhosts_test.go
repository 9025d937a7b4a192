package ssh

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestKnownHostsAppend(t *testing.T) {
	dir := t.TempDir()
	kh := filepath.Join(dir, "known_hosts")
	_, pub := writeTestKey(t)

	if err := AppendKnownHost(kh, "example.com", pub); err != nil {
		t.Fatalf("append known host: %v", err)
	}
	b, err := os.ReadFile(kh)
	if err != nil {
		t.Fatalf("read known_hosts: %v", err)
	}
	if !strings.Contains(string(b), "example.com") {
		t.Fatalf("expected example.com entry, got %q", b)
	}

	if _, err := LoadKnownHostsCallback(kh); err != nil {
		t.Fatalf("load callback: %v", err)
	}
}

func TestLoadKnownHostsCallbackCreatesFile(t *testing.T) {
	kh := filepath.Join(t.TempDir(), "sub", "known_hosts")
	if _, err := LoadKnownHostsCallback(kh); err != nil {
		t.Fatalf("load callback: %v", err)
	}
	if _, err := os.Stat(kh); err != nil {
		t.Fatalf("file not created: %v", err)
	}
}
