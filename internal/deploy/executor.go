package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	xssh "golang.org/x/crypto/ssh"

	"github.com/emilejacobs/rollout/internal/inventory"
	"github.com/emilejacobs/rollout/internal/ssh"
)

// ProbeResult reports whether a host answered a cheap liveness check.
type ProbeResult struct {
	Reachable bool
	Diag      string
}

// PushResult reports the outcome of one artifact transfer.
type PushResult struct {
	OK   bool
	Diag string
}

// ExecResult reports one remote command execution. Fault is non-empty
// only when the command never ran (dial, session or timeout failure);
// a command that ran and exited non-zero has an empty Fault and a
// non-zero ExitCode.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Fault    string
}

// Executor is the remote-shell capability the deployment procedure
// consumes. Implementations never return errors: every failure is a
// tagged result so host-level failures are handled uniformly.
type Executor interface {
	Probe(ctx context.Context, host inventory.Host) ProbeResult
	Push(ctx context.Context, host inventory.Host, localPath, remotePath string) PushResult
	Execute(ctx context.Context, host inventory.Host, command string, timeout time.Duration) ExecResult
}

// SSHExecutor implements Executor over the ssh package, one
// connection per operation.
type SSHExecutor struct {
	Port         int
	ProbeTimeout time.Duration
	PushTimeout  time.Duration
	Signer       xssh.Signer          // optional key auth alongside the inventory password
	KnownHosts   xssh.HostKeyCallback // nil accepts any host key
}

func (e *SSHExecutor) client(h inventory.Host, timeout time.Duration) *ssh.Client {
	port := e.Port
	if port == 0 {
		port = 22
	}
	return &ssh.Client{
		Addr:       fmt.Sprintf("%s:%d", h.Addr, port),
		User:       h.User,
		Password:   h.Password,
		Signer:     e.Signer,
		KnownHosts: e.KnownHosts,
		Timeout:    timeout,
	}
}

func (e *SSHExecutor) probeTimeout() time.Duration {
	if e.ProbeTimeout > 0 {
		return e.ProbeTimeout
	}
	return 15 * time.Second
}

func (e *SSHExecutor) pushTimeout() time.Duration {
	if e.PushTimeout > 0 {
		return e.PushTimeout
	}
	return 60 * time.Second
}

// Probe runs a trivial echo over SSH to verify connectivity and
// authentication.
func (e *SSHExecutor) Probe(ctx context.Context, host inventory.Host) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, e.probeTimeout())
	defer cancel()

	exit, stdout, stderr, err := e.client(host, e.probeTimeout()).Run(ctx, "echo ok")
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ProbeResult{Diag: "ssh connection timed out"}
		}
		return ProbeResult{Diag: fmt.Sprintf("ssh failed: %v", err)}
	}
	if exit != 0 || !strings.Contains(stdout, "ok") {
		diag := strings.TrimSpace(stderr)
		if diag == "" {
			diag = "unknown error"
		}
		return ProbeResult{Diag: "ssh failed: " + diag}
	}
	return ProbeResult{Reachable: true, Diag: "OK"}
}

// Push transfers one local file to the host via SFTP.
func (e *SSHExecutor) Push(ctx context.Context, host inventory.Host, localPath, remotePath string) PushResult {
	ctx, cancel := context.WithTimeout(ctx, e.pushTimeout())
	defer cancel()

	cli, err := e.client(host, e.pushTimeout()).Dial(ctx)
	if err != nil {
		return PushResult{Diag: fmt.Sprintf("dial: %v", err)}
	}
	defer cli.Close()
	if err := ssh.PushFile(cli, localPath, remotePath); err != nil {
		return PushResult{Diag: err.Error()}
	}
	return PushResult{OK: true}
}

// Execute runs one command on the host under the given timeout.
func (e *SSHExecutor) Execute(ctx context.Context, host inventory.Host, command string, timeout time.Duration) ExecResult {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exit, stdout, stderr, err := e.client(host, timeout).Run(ctx, command)
	if err != nil {
		fault := err.Error()
		if ctx.Err() == context.DeadlineExceeded {
			fault = fmt.Sprintf("command timed out after %s", timeout)
		}
		return ExecResult{ExitCode: exit, Stdout: stdout, Stderr: stderr, Fault: fault}
	}
	return ExecResult{ExitCode: exit, Stdout: stdout, Stderr: stderr}
}
