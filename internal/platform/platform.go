package platform

import (
	"fmt"
	"sort"
	"strings"
)

// Spec describes how one platform is provisioned: which install
// script applies and how the remote command is elevated.
type Spec struct {
	Script string `yaml:"script"`
	// PreserveEnv elevates with `sudo -E` instead of plain `sudo`.
	// macOS needs this because Homebrew reads SUDO_USER from the
	// preserved environment; it is a per-platform quirk, not a rule.
	PreserveEnv bool `yaml:"preserve_env"`
}

// Sudo returns the elevation prefix for remote commands.
func (s Spec) Sudo() string {
	if s.PreserveEnv {
		return "sudo -E"
	}
	return "sudo"
}

// Table maps a platform tag to its Spec. The tag set is closed:
// inventory rows with tags outside the table never reach the
// orchestrator.
type Table map[string]Spec

// Default returns the built-in platform table.
func Default() Table {
	return Table{
		"raspberrypi": {Script: "install-zabbix-agent-raspberrypi.sh"},
		"radxa":       {Script: "install-zabbix-agent-radxa.sh"},
		"macos":       {Script: "install-zabbix-agent-macos.sh", PreserveEnv: true},
	}
}

// Lookup returns the Spec for tag.
func (t Table) Lookup(tag string) (Spec, bool) {
	s, ok := t[strings.ToLower(tag)]
	return s, ok
}

// Valid reports whether tag is in the closed set.
func (t Table) Valid(tag string) bool {
	_, ok := t.Lookup(tag)
	return ok
}

// Tags returns the sorted platform tags, for error messages and flag
// help.
func (t Table) Tags() []string {
	tags := make([]string, 0, len(t))
	for tag := range t {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// TagList renders the closed set as "a, b, c".
func (t Table) TagList() string { return strings.Join(t.Tags(), ", ") }

// Validate checks a table loaded from config overrides.
func (t Table) Validate() error {
	for tag, spec := range t {
		if spec.Script == "" {
			return fmt.Errorf("platform %s: script is empty", tag)
		}
	}
	return nil
}
