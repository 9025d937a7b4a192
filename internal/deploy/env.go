package deploy

import (
	"strings"

	"github.com/emilejacobs/rollout/internal/inventory"
)

// BuildEnv renders the KEY=value assignments prefixed to the install
// command. Metadata originates from untrusted inventory input, so
// every value is shell-quoted before it can reach a remote shell.
func BuildEnv(h inventory.Host, token string) string {
	parts := []string{"DEVICE_NAME=" + shellQuote(h.Name)}

	add := func(key, val string) {
		if val != "" {
			parts = append(parts, key+"="+shellQuote(val))
		}
	}
	add("LOCATION", h.Location)
	add("CLIENT", h.Client)
	add("CHAIN", h.Chain)
	add("ASSET_TAG", h.AssetTag)
	add("LATITUDE", h.Lat)
	add("LONGITUDE", h.Lon)
	add("ZABBIX_API_TOKEN", token)

	return strings.Join(parts, " ")
}

// shellQuote makes s safe for inclusion in a POSIX shell command.
// Safe strings pass through unchanged; anything else is wrapped in
// single quotes with embedded quotes escaped.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if isShellSafe(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func isShellSafe(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case strings.ContainsRune("_@%+=:,./-", r):
		default:
			return false
		}
	}
	return true
}
