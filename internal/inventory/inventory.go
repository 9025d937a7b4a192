package inventory

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/emilejacobs/rollout/internal/platform"
)

// Host is one validated target machine from the inventory. Metadata
// fields (Location through Longitude) are opaque to the orchestrator:
// they are passed through to the install script environment and must
// be treated as untrusted when commands are built from them.
type Host struct {
	Name     string `yaml:"name"`
	Platform string `yaml:"platform"`
	Addr     string `yaml:"addr"`
	Location string `yaml:"location"`
	Client   string `yaml:"client"`
	Chain    string `yaml:"chain"`
	AssetTag string `yaml:"asset_tag"`
	Lat      string `yaml:"latitude"`
	Lon      string `yaml:"longitude"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Validate returns the structural problems with h, one message each.
// A host with a non-empty return never reaches the orchestrator.
func (h Host) Validate(platforms platform.Table) []string {
	var errs []string
	if h.Name == "" {
		errs = append(errs, "device_name is empty")
	}
	if !platforms.Valid(h.Platform) {
		errs = append(errs, fmt.Sprintf("platform %q is invalid (must be one of: %s)", h.Platform, platforms.TagList()))
	}
	if h.Addr == "" {
		errs = append(errs, "tailscale_ip is empty")
	}
	if h.Location == "" {
		errs = append(errs, "location is empty")
	}
	if h.User == "" {
		errs = append(errs, "ssh_user is empty")
	}
	if h.Password == "" {
		errs = append(errs, "ssh_password is empty")
	}
	return errs
}

var requiredColumns = []string{
	"device_name", "platform", "tailscale_ip", "location", "ssh_user", "ssh_password",
}

// ParseCSV reads an inventory CSV (as exported from a spreadsheet)
// and returns the structurally valid hosts. Invalid rows are logged
// and skipped, never returned. A malformed header is an error.
func ParseCSV(path string, platforms platform.Table) ([]Host, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open inventory: %w", err)
	}
	defer f.Close()
	return parseCSV(f, platforms)
}

func parseCSV(r io.Reader, platforms platform.Table) ([]Host, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("inventory is empty or has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	// Excel exports prepend a UTF-8 BOM to the first cell.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("inventory is missing required columns: %s", strings.Join(missing, ", "))
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var hosts []Host
	for rowNum := 2; ; rowNum++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}

		// Blank padding rows are common in spreadsheet exports.
		if field(row, "device_name") == "" {
			continue
		}

		h := Host{
			Name:     field(row, "device_name"),
			Platform: strings.ToLower(field(row, "platform")),
			Addr:     field(row, "tailscale_ip"),
			Location: field(row, "location"),
			Client:   field(row, "client"),
			Chain:    field(row, "chain"),
			AssetTag: field(row, "asset_tag"),
			Lat:      field(row, "latitude"),
			Lon:      field(row, "longitude"),
			User:     field(row, "ssh_user"),
			Password: field(row, "ssh_password"),
		}

		if errs := h.Validate(platforms); len(errs) > 0 {
			log.Warn().
				Int("row", rowNum).
				Str("device", h.Name).
				Msgf("skipping invalid inventory row: %s", strings.Join(errs, "; "))
			continue
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}
