package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"github.com/newtron-network/provtest/pkg/util"
)

// DefaultSSHTimeout bounds the TCP connect and SSH handshake.
const DefaultSSHTimeout = 30 * time.Second

// SSHConfig describes one SSH endpoint.
type SSHConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

func (c SSHConfig) addr() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// SSH runs each command in its own session on a shared client connection.
type SSH struct {
	host   string
	client *ssh.Client
}

// DialSSH connects and authenticates with password auth.
func DialSSH(ctx context.Context, cfg SSHConfig) (*SSH, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultSSHTimeout
	}
	config := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(cfg.Password),
		},
		// Test beds use throwaway devices; host keys are not pinned.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := cfg.addr()
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &util.TransportError{Op: "dial", Host: cfg.Host, Err: err}
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, &util.TransportError{Op: "dial", Host: cfg.Host, Err: err}
	}
	util.WithTarget(cfg.Host).Debugf("SSH connected as %s", cfg.User)
	return &SSH{host: cfg.Host, client: ssh.NewClient(c, chans, reqs)}, nil
}

// Run executes cmd and returns its combined output and exit status.
// Cancelling ctx closes the session.
func (s *SSH) Run(ctx context.Context, cmd string, stdin io.Reader) (*Result, error) {
	if s.client == nil {
		return nil, util.ErrNotConnected
	}
	session, err := s.client.NewSession()
	if err != nil {
		return nil, &util.TransportError{Op: "exec", Host: s.host, Err: fmt.Errorf("SSH session: %w", err)}
	}
	defer session.Close()
	if stdin != nil {
		session.Stdin = stdin
	}

	type done struct {
		out []byte
		err error
	}
	ch := make(chan done, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		ch <- done{out, err}
	}()

	var d done
	select {
	case <-ctx.Done():
		session.Close()
		return nil, &util.TransportError{Op: "exec", Host: s.host, Err: ctx.Err()}
	case d = <-ch:
	}

	res := &Result{Output: string(d.out)}
	var exitErr *ssh.ExitError
	switch {
	case d.err == nil:
	case errors.As(d.err, &exitErr):
		res.ExitCode = exitErr.ExitStatus()
	default:
		return res, &util.TransportError{Op: "exec", Host: s.host, Err: fmt.Errorf("SSH exec '%s': %w", cmd, d.err)}
	}
	util.WithTarget(s.host).Debugf("exec %q exit %d", cmd, res.ExitCode)
	return res, nil
}

// Close closes the client connection.
func (s *SSH) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// PromptPassword reads a password from the controlling terminal without
// echo. It fails when stdin is not a terminal.
func PromptPassword(user, host string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no password for %s@%s and stdin is not a terminal", user, host)
	}
	fmt.Fprintf(os.Stderr, "Password for %s@%s: ", user, host)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
