package creds

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

// EnvVar is the environment variable carrying the shared API token.
const EnvVar = "ZABBIX_API_TOKEN"

const (
	keyringService = "rollout"
	keyringUser    = "zabbix-api-token"
)

// Resolve returns the API token, trying in order: the explicit value
// (flag), the environment, secrets.env, the OS keyring, and finally,
// when allowPrompt is set and stdin is a terminal, an interactive
// prompt. An empty token is not an error: agents install without it,
// they just skip tag/inventory population. Resolution happens once,
// before orchestration; the core never blocks on input.
func Resolve(explicit string, allowPrompt bool) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if v := os.Getenv(EnvVar); v != "" {
		return v, nil
	}
	secrets, _ := LoadSecretsEnv("")
	if v := secrets[EnvVar]; v != "" {
		return v, nil
	}
	if v, err := keyring.Get(keyringService, keyringUser); err == nil && v != "" {
		return v, nil
	}
	if allowPrompt && term.IsTerminal(int(os.Stdin.Fd())) {
		return promptToken()
	}
	return "", nil
}

// Store saves the token in the OS keyring.
func Store(token string) error {
	if token == "" {
		return fmt.Errorf("refusing to store an empty token")
	}
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

// Clear removes the token from the OS keyring.
func Clear() error {
	err := keyring.Delete(keyringService, keyringUser)
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}

func promptToken() (string, error) {
	fmt.Fprintf(os.Stderr, "No %s provided; the agent will install but tags/inventory will not be populated.\n", EnvVar)
	fmt.Fprint(os.Stderr, "Enter "+EnvVar+" (empty to continue without): ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// LoadSecretsEnv reads $XDG_CONFIG_HOME/rollout/secrets.env (or
// ~/.config/rollout/secrets.env) and returns key/value pairs. Lines
// starting with # are ignored. Format: KEY=VALUE. A missing file is
// not an error.
func LoadSecretsEnv(path string) (map[string]string, error) {
	if path == "" {
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, _ := os.UserHomeDir()
			base = filepath.Join(home, ".config")
		}
		path = filepath.Join(base, "rollout", "secrets.env")
	}
	f, err := os.Open(path)
	if err != nil {
		return map[string]string{}, nil
	}
	defer f.Close()
	out := map[string]string{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			out[k] = v
		}
	}
	if err := s.Err(); err != nil {
		log.Warn().Str("path", path).Err(err).Msg("secrets.env read error")
	}
	return out, nil
}
