package inventory

import (
	"context"
	"strings"
	"testing"

	"github.com/emilejacobs/rollout/internal/platform"
)

const sampleCSV = `device_name,platform,tailscale_ip,location,client,chain,asset_tag,latitude,longitude,ssh_user,ssh_password
rpi-london-001,raspberrypi,100.64.0.1,London,Acme,West,A-100,51.5,-0.12,pi,secret
mac-paris-001,macos,100.64.0.2,Paris,Acme,East,A-101,48.8,2.35,admin,secret
`

func TestParseCSV(t *testing.T) {
	hosts, err := parseCSV(strings.NewReader(sampleCSV), platform.Default())
	if err != nil {
		t.Fatalf("parseCSV: %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(hosts))
	}
	h := hosts[0]
	if h.Name != "rpi-london-001" || h.Platform != "raspberrypi" || h.Addr != "100.64.0.1" {
		t.Errorf("unexpected first host: %+v", h)
	}
	if h.User != "pi" || h.Password != "secret" {
		t.Errorf("credentials not parsed: %+v", h)
	}
	if h.Client != "Acme" || h.Lat != "51.5" {
		t.Errorf("metadata not parsed: %+v", h)
	}
}

func TestParseCSVStripsBOM(t *testing.T) {
	hosts, err := parseCSV(strings.NewReader("\ufeff"+sampleCSV), platform.Default())
	if err != nil {
		t.Fatalf("parseCSV with BOM: %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(hosts))
	}
}

func TestParseCSVHeaderCaseInsensitive(t *testing.T) {
	csv := "Device_Name,PLATFORM,Tailscale_IP,Location,SSH_User,SSH_Password\n" +
		"rpi-1,raspberrypi,100.64.0.9,Berlin,pi,pw\n"
	hosts, err := parseCSV(strings.NewReader(csv), platform.Default())
	if err != nil {
		t.Fatalf("parseCSV: %v", err)
	}
	if len(hosts) != 1 || hosts[0].Name != "rpi-1" {
		t.Fatalf("unexpected hosts: %+v", hosts)
	}
}

func TestParseCSVMissingColumns(t *testing.T) {
	_, err := parseCSV(strings.NewReader("device_name,platform\nx,raspberrypi\n"), platform.Default())
	if err == nil {
		t.Fatal("expected error for missing columns")
	}
	if !strings.Contains(err.Error(), "ssh_user") {
		t.Errorf("error should name missing columns: %v", err)
	}
}

func TestParseCSVEmpty(t *testing.T) {
	if _, err := parseCSV(strings.NewReader(""), platform.Default()); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestParseCSVSkipsInvalidRows(t *testing.T) {
	csv := sampleCSV +
		"bad-host,windows,100.64.0.3,Rome,,,,,,root,pw\n" + // platform outside closed set
		",raspberrypi,100.64.0.4,Oslo,,,,,,pi,pw\n" + // blank name, skipped silently
		"no-addr,radxa,,Oslo,,,,,,pi,pw\n"
	hosts, err := parseCSV(strings.NewReader(csv), platform.Default())
	if err != nil {
		t.Fatalf("parseCSV: %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("invalid rows must be excluded, got %d hosts", len(hosts))
	}
}

func TestHostValidate(t *testing.T) {
	tests := []struct {
		name string
		host Host
		want int
	}{
		{"valid", Host{Name: "a", Platform: "radxa", Addr: "1.2.3.4", Location: "x", User: "u", Password: "p"}, 0},
		{"empty", Host{}, 6},
		{"bad platform", Host{Name: "a", Platform: "beos", Addr: "1.2.3.4", Location: "x", User: "u", Password: "p"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.host.Validate(platform.Default())); got != tt.want {
				t.Errorf("Validate() returned %d problems, want %d", got, tt.want)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&StaticSource{
		Entries: []Host{
			{Name: "a", Platform: "radxa", Addr: "1.2.3.4", Location: "x", User: "u", Password: "p"},
			{Name: "b", Platform: "amiga", Addr: "1.2.3.5", Location: "x", User: "u", Password: "p"},
		},
		Platforms: platform.Default(),
	})

	src, err := reg.Get("static")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	hosts, err := src.Hosts(context.Background())
	if err != nil {
		t.Fatalf("Hosts: %v", err)
	}
	if len(hosts) != 1 || hosts[0].Name != "a" {
		t.Fatalf("static source must drop invalid entries, got %+v", hosts)
	}

	if _, err := reg.Get("csv"); err == nil {
		t.Error("expected error for unregistered source")
	}
}
