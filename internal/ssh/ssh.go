package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	xssh "golang.org/x/crypto/ssh"
)

// Client describes one remote host connection. The inventory carries
// password credentials; a key signer can be layered in for hosts that
// have one provisioned.
type Client struct {
	Addr       string // host:port
	User       string
	Password   string
	Signer     xssh.Signer          // optional
	KnownHosts xssh.HostKeyCallback // nil accepts any host key
	Timeout    time.Duration
}

func (c *Client) makeConfig() (*xssh.ClientConfig, error) {
	var auth []xssh.AuthMethod
	if c.Signer != nil {
		auth = append(auth, xssh.PublicKeys(c.Signer))
	}
	if c.Password != "" {
		auth = append(auth, xssh.Password(c.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("ssh: no credentials provided")
	}
	hostKeys := c.KnownHosts
	if hostKeys == nil {
		// Fleet hosts sit on a private tailnet and are re-imaged
		// often; operators opt into strict checking via config.
		hostKeys = xssh.InsecureIgnoreHostKey()
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &xssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}, nil
}

// Dial establishes an SSH connection, honoring ctx cancellation.
// The caller is responsible for closing the returned client.
func (c *Client) Dial(ctx context.Context) (*xssh.Client, error) {
	cfg, err := c.makeConfig()
	if err != nil {
		return nil, err
	}
	type res struct {
		cli *xssh.Client
		err error
	}
	ch := make(chan res, 1)
	go func() {
		cli, err := xssh.Dial("tcp", c.Addr, cfg)
		ch <- res{cli: cli, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.cli, r.err
	}
}

// Run executes one remote command and captures its streams. A
// non-zero remote exit is not an error: it is reported through the
// exit code so callers can treat all host-level failures uniformly.
// The returned error covers transport problems only (dial, session,
// timeout), in which case the exit code is -1.
func (c *Client) Run(ctx context.Context, command string) (exit int, stdout, stderr string, err error) {
	cli, err := c.Dial(ctx)
	if err != nil {
		return -1, "", "", fmt.Errorf("dial %s: %w", c.Addr, err)
	}
	defer cli.Close()

	session, err := cli.NewSession()
	if err != nil {
		return -1, "", "", fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	var outBuf, errBuf bytes.Buffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(xssh.SIGKILL)
		return -1, outBuf.String(), errBuf.String(), ctx.Err()
	case runErr := <-done:
		if runErr == nil {
			return 0, outBuf.String(), errBuf.String(), nil
		}
		var exitErr *xssh.ExitError
		if errors.As(runErr, &exitErr) {
			return exitErr.ExitStatus(), outBuf.String(), errBuf.String(), nil
		}
		return -1, outBuf.String(), errBuf.String(), fmt.Errorf("run command: %w", runErr)
	}
}
