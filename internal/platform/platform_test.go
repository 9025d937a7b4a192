package platform

import "testing"

func TestDefaultTable(t *testing.T) {
	tab := Default()

	for _, tag := range []string{"raspberrypi", "radxa", "macos"} {
		spec, ok := tab.Lookup(tag)
		if !ok {
			t.Fatalf("missing platform %s", tag)
		}
		if spec.Script == "" {
			t.Errorf("platform %s has no install script", tag)
		}
	}

	if tab.Valid("windows") {
		t.Error("windows should not be in the closed set")
	}
}

func TestSudoPrefix(t *testing.T) {
	tab := Default()

	mac, _ := tab.Lookup("macos")
	if got := mac.Sudo(); got != "sudo -E" {
		t.Errorf("macos elevation = %q, want sudo -E", got)
	}

	rpi, _ := tab.Lookup("raspberrypi")
	if got := rpi.Sudo(); got != "sudo" {
		t.Errorf("raspberrypi elevation = %q, want sudo", got)
	}
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	tab := Default()
	if !tab.Valid("MacOS") {
		t.Error("tag lookup should normalize case")
	}
}

func TestTagList(t *testing.T) {
	tab := Default()
	if got := tab.TagList(); got != "macos, radxa, raspberrypi" {
		t.Errorf("TagList() = %q", got)
	}
}

func TestValidate(t *testing.T) {
	bad := Table{"raspberrypi": {}}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for empty script")
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("default table should validate: %v", err)
	}
}
