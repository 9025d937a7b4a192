package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/emilejacobs/rollout/internal/inventory"
	"github.com/emilejacobs/rollout/internal/platform"
	"github.com/emilejacobs/rollout/pkg/api"
)

// ArtifactMode selects how the install script reaches the host. It is
// fixed once per run, never per host.
type ArtifactMode int

const (
	// ModePush transfers the script from the orchestrator host via SFTP.
	ModePush ArtifactMode = iota
	// ModeFetch has the host download the script itself.
	ModeFetch
)

func (m ArtifactMode) String() string {
	if m == ModeFetch {
		return "fetch"
	}
	return "push"
}

// RemoteScriptPath is the fixed temporary location for pushed scripts.
const RemoteScriptPath = "/tmp/install-zabbix-agent.sh"

// errTailLimit bounds the stderr tail kept in an outcome's error
// message. The full stream is always in the host log.
const errTailLimit = 200

// Procedure runs the per-host deployment state machine: probe,
// prepare environment, acquire artifact, execute elevated, clean up,
// record a log. It terminates on the first failed step; retries are
// an orchestration-level concern.
type Procedure struct {
	Exec        Executor
	Platforms   platform.Table
	Token       string
	Mode        ArtifactMode
	ScriptsDir  string
	FetchBase   string
	LogDir      string
	ExecTimeout time.Duration
}

// Deploy attempts a full deployment against one host and returns its
// outcome. It never returns an error: every failure mode is captured
// in the outcome.
func (p *Procedure) Deploy(ctx context.Context, h inventory.Host) api.Outcome {
	start := time.Now()
	logFile := filepath.Join(p.LogDir, h.Name+".log")

	fail := func(exitCode int, stdout, errMsg string) api.Outcome {
		p.writeLog(logFile, h, exitCode, stdout, errMsg)
		return api.Outcome{
			Host:     h.Name,
			Platform: h.Platform,
			Duration: time.Since(start),
			Error:    errMsg,
			LogFile:  logFile,
		}
	}

	spec, ok := p.Platforms.Lookup(h.Platform)
	if !ok {
		// Validation upstream makes this unreachable; recorded
		// rather than panicking so a bug cannot abort a run.
		return fail(1, "", fmt.Sprintf("platform %q not in table", h.Platform))
	}

	probe := p.Exec.Probe(ctx, h)
	if !probe.Reachable {
		return fail(1, "", "unreachable: "+probe.Diag)
	}

	envVars := BuildEnv(h, p.Token)

	var command string
	switch p.Mode {
	case ModeFetch:
		url := p.FetchBase + "/" + spec.Script
		command = fmt.Sprintf("curl -fsSL %s | %s %s bash", shellQuote(url), spec.Sudo(), envVars)
	default:
		localScript := filepath.Join(p.ScriptsDir, spec.Script)
		if _, err := os.Stat(localScript); err != nil {
			return fail(1, "", "local script not found: "+localScript)
		}
		push := p.Exec.Push(ctx, h, localScript, RemoteScriptPath)
		if !push.OK {
			return fail(1, "", "transfer failed: "+push.Diag)
		}
		command = fmt.Sprintf("%s %s bash %s", spec.Sudo(), envVars, RemoteScriptPath)
	}

	res := p.Exec.Execute(ctx, h, command, p.ExecTimeout)

	if p.Mode == ModePush {
		// Best-effort: cleanup failure never affects the outcome.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		p.Exec.Execute(cleanupCtx, h, "rm -f "+RemoteScriptPath, 10*time.Second)
		cancel()
	}

	p.writeLog(logFile, h, res.ExitCode, res.Stdout, res.Stderr)

	if res.Fault != "" {
		return api.Outcome{
			Host:     h.Name,
			Platform: h.Platform,
			Duration: time.Since(start),
			Error:    res.Fault,
			LogFile:  logFile,
		}
	}
	if res.ExitCode != 0 {
		return api.Outcome{
			Host:     h.Name,
			Platform: h.Platform,
			Duration: time.Since(start),
			Error:    failureMessage(res.Stderr),
			LogFile:  logFile,
		}
	}
	return api.Outcome{
		Host:     h.Name,
		Platform: h.Platform,
		Success:  true,
		Duration: time.Since(start),
		LogFile:  logFile,
	}
}

// failureMessage derives an outcome error from a captured stderr
// stream: the tail of the stream bounded by errTailLimit, or a
// generic message when the stream is empty.
func failureMessage(stderr string) string {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		return "script exited with non-zero status"
	}
	return truncateTail(msg, errTailLimit)
}

// truncateTail keeps the last limit bytes of s, prepending an
// ellipsis marker when anything was dropped.
func truncateTail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-limit:]
}

// writeLog records a durable human-readable log for one attempt.
// Failure to write is logged and otherwise ignored: the outcome, not
// the log, is authoritative.
func (p *Procedure) writeLog(logFile string, h inventory.Host, exitCode int, stdout, stderr string) {
	divider := strings.Repeat("=", 60)
	if stdout == "" {
		stdout = "(empty)"
	}
	if stderr == "" {
		stderr = "(empty)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nDeployment Log: %s\n%s\n", divider, h.Name, divider)
	fmt.Fprintf(&b, "Platform:    %s\n", h.Platform)
	fmt.Fprintf(&b, "IP:          %s\n", h.Addr)
	fmt.Fprintf(&b, "Location:    %s\n", h.Location)
	fmt.Fprintf(&b, "Timestamp:   %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "Exit code:   %d\n", exitCode)
	fmt.Fprintf(&b, "\n%s\nSTDOUT\n%s\n%s\n", divider, divider, stdout)
	fmt.Fprintf(&b, "\n%s\nSTDERR\n%s\n%s\n", divider, divider, stderr)

	if err := os.WriteFile(logFile, []byte(b.String()), 0644); err != nil {
		log.Warn().Err(err).Str("device", h.Name).Msg("could not write deployment log")
	}
}

// Preview describes what Deploy would do for one host, with the token
// redacted. Used by dry-run reporting; performs no remote calls.
func (p *Procedure) Preview(h inventory.Host) (string, bool) {
	spec, _ := p.Platforms.Lookup(h.Platform)
	envVars := BuildEnv(h, p.Token)
	if p.Token != "" {
		envVars = strings.ReplaceAll(envVars, shellQuote(p.Token), "***REDACTED***")
	}
	if p.Mode == ModeFetch {
		url := p.FetchBase + "/" + spec.Script
		return fmt.Sprintf("curl -fsSL %s | %s %s bash", shellQuote(url), spec.Sudo(), envVars), true
	}
	localScript := filepath.Join(p.ScriptsDir, spec.Script)
	_, err := os.Stat(localScript)
	cmd := fmt.Sprintf("scp %s -> %s; %s %s bash %s", localScript, RemoteScriptPath, spec.Sudo(), envVars, RemoteScriptPath)
	return cmd, err == nil
}
