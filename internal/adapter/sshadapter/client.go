// SPDX-License-Identifier: MPL-2.0

package sshadapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	dockerterm "github.com/moby/term"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"xec/internal/eventbus"
	"xec/pkg/command"
	"xec/pkg/result"
)

// Adapter drives commands over Pool's connections, one ssh.Session per
// Command (the pooled resource is the *ssh.Client, not the session).
type Adapter struct {
	pool *Pool
	bus  *eventbus.Bus
}

// Option configures an Adapter at construction.
type Option func(*Adapter)

// WithEventBus attaches the bus the adapter emits ssh:connect and
// ssh:close events to.
func WithEventBus(bus *eventbus.Bus) Option {
	return func(a *Adapter) { a.bus = bus }
}

// New returns an Adapter backed by a fresh connection pool.
func New(opts ...Option) *Adapter {
	a := &Adapter{pool: NewPool()}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string { return "ssh" }

func (a *Adapter) Available(ctx context.Context) bool { return true }

// Dispose closes every pooled connection, idempotently.
func (a *Adapter) Dispose(ctx context.Context) error {
	errs := a.pool.CloseAll()
	for range errs {
		a.emit(eventbus.KindSSHClose, nil)
	}
	return nil
}

func (a *Adapter) emit(kind eventbus.Kind, payload any) {
	if a.bus == nil {
		return
	}
	a.bus.Emit(eventbus.Event{Kind: kind, Adapter: a.Name(), Payload: payload})
}

func (a *Adapter) Execute(ctx context.Context, cmd command.Command) (result.Result, error) {
	opts, ok := cmd.AdapterOptions.(command.SSHOptions)
	if !ok {
		return result.Result{}, &result.Error{Kind: result.ErrorKindInvalidArgument, Message: "command is not scoped to the ssh adapter"}
	}

	started := time.Now()

	client, connID, release, err := a.pool.Acquire(ctx, opts)
	if err != nil {
		return result.Result{}, &result.Error{Kind: result.ErrorKindConnectionError, Message: fmt.Sprintf("connect to %s", opts.Host), Cause: err}
	}
	a.emit(eventbus.KindSSHConnect, map[string]any{"host": opts.Host, "connection": connID})
	defer release()

	session, err := client.NewSession()
	if err != nil {
		return result.Result{}, &result.Error{Kind: result.ErrorKindConnectionError, Message: "open ssh session", Cause: err}
	}
	defer session.Close()

	line := remoteCommandLine(cmd, opts)

	if ttyRequested(cmd) {
		return a.executeTTY(ctx, session, cmd, line, started, opts)
	}

	maxBuf := cmd.MaxBuffer
	if maxBuf <= 0 {
		maxBuf = command.DefaultMaxBuffer
	}
	var stdout, stderr limitedBuffer
	stdout.limit = maxBuf
	stderr.limit = maxBuf
	session.Stdout = &stdout
	session.Stderr = &stderr

	if stdin, ok := sessionStdin(cmd, opts); ok {
		session.Stdin = stdin
	}

	for k, v := range cmd.Env {
		_ = session.Setenv(k, v) // most sshd configs reject Setenv; env is also inlined into line
	}

	runDone := make(chan error, 1)
	go func() { runDone <- session.Run(line) }()

	var runErr error
	select {
	case runErr = <-runDone:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		select {
		case runErr = <-runDone:
		case <-time.After(5 * time.Second):
			_ = session.Close()
			runErr = <-runDone
		}
		ended := time.Now()
		res := result.Result{
			Stdout: stdout.buf.Bytes(), Stderr: stderr.buf.Bytes(),
			Command: cmd.Program, StartedAt: started, EndedAt: ended, Duration: ended.Sub(started),
			Adapter: a.Name(), Host: opts.Host, ExitCode: result.ExitCodeTimeout, Signal: "SIGTERM",
		}
		return res, &result.Error{Kind: result.ErrorKindTimeout, Result: &res, Cause: ctx.Err()}
	}

	ended := time.Now()
	res := result.Result{
		Stdout:    stdout.buf.Bytes(),
		Stderr:    stderr.buf.Bytes(),
		Command:   cmd.Program,
		StartedAt: started,
		EndedAt:   ended,
		Duration:  ended.Sub(started),
		Adapter:   a.Name(),
		Host:      opts.Host,
		Truncated: stdout.truncated || stderr.truncated,
	}

	return classifyRunErr(res, runErr)
}

// ttyRequested reports whether cmd asks to inherit a real terminal on
// both output streams, matching the local adapter's rule for when a
// PTY-backed channel is used instead of a plain exec request.
func ttyRequested(cmd command.Command) bool {
	return cmd.Stdout.Mode == command.StreamInherit && cmd.Stderr.Mode == command.StreamInherit
}

// executeTTY requests a PTY on session and runs line as an interactive
// shell channel: stdout/stderr are merged onto the caller's terminal
// the way a real ssh(1) session would, so full-screen and line-editing
// remote programs behave correctly. Result.Stdout/Stderr stay empty
// since the output never passes through a buffer.
func (a *Adapter) executeTTY(ctx context.Context, session *ssh.Session, cmd command.Command, line string, started time.Time, opts command.SSHOptions) (result.Result, error) {
	cols, rows := 80, 24
	if w, h, err := term.GetSize(int(os.Stdin.Fd())); err == nil && w > 0 && h > 0 {
		cols, rows = w, h
	}
	if err := session.RequestPty("xterm", rows, cols, ssh.TerminalModes{}); err != nil {
		return result.Result{}, &result.Error{Kind: result.ErrorKindConnectionError, Message: "request pty", Cause: err}
	}

	_, stdout, _ := dockerterm.StdStreams()
	session.Stdout = stdout
	session.Stderr = stdout
	if stdin, ok := sessionStdin(cmd, opts); ok {
		session.Stdin = stdin
	}

	if err := session.Start(line); err != nil {
		return result.Result{}, &result.Error{Kind: result.ErrorKindConnectionError, Message: "start interactive shell", Cause: err}
	}

	runDone := make(chan error, 1)
	go func() { runDone <- session.Wait() }()

	var runErr error
	select {
	case runErr = <-runDone:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		select {
		case runErr = <-runDone:
		case <-time.After(5 * time.Second):
			_ = session.Close()
			runErr = <-runDone
		}
		ended := time.Now()
		res := result.Result{
			Command: cmd.Program, StartedAt: started, EndedAt: ended, Duration: ended.Sub(started),
			Adapter: a.Name(), Host: opts.Host, ExitCode: result.ExitCodeTimeout, Signal: "SIGTERM",
		}
		return res, &result.Error{Kind: result.ErrorKindTimeout, Result: &res, Cause: ctx.Err()}
	}

	ended := time.Now()
	res := result.Result{
		Command:   cmd.Program,
		StartedAt: started,
		EndedAt:   ended,
		Duration:  ended.Sub(started),
		Adapter:   a.Name(),
		Host:      opts.Host,
	}
	return classifyRunErr(res, runErr)
}

func classifyRunErr(res result.Result, runErr error) (result.Result, error) {
	if runErr == nil {
		res.ExitCode = 0
		return res, nil
	}
	var exitErr *ssh.ExitError
	if eerr, ok := runErr.(*ssh.ExitError); ok {
		exitErr = eerr
		res.ExitCode = exitErr.ExitStatus()
		if exitErr.Signal() != "" {
			res.Signal = exitErr.Signal()
		}
		return res, nil
	}
	res.ExitCode = result.ExitCodeKilledBeforeExit
	return res, &result.Error{Kind: result.ErrorKindConnectionError, Message: "ssh session failed", Result: &res, Cause: runErr}
}

// remoteCommandLine assembles the shell line sent to the remote host:
// an optional cd into the working directory, then an optional sudo
// wrapper, inline env assignments, and the quoted program and
// arguments, so the env and sudo apply to the program itself.
func remoteCommandLine(cmd command.Command, opts command.SSHOptions) string {
	line := cmd.Program
	for _, arg := range cmd.Args {
		line += " " + command.QuotePOSIX(arg)
	}
	for k, v := range cmd.Env {
		line = fmt.Sprintf("%s=%s %s", k, command.QuotePOSIX(v), line)
	}
	if opts.Sudo != nil {
		switch opts.Sudo.Method {
		case command.SSHSudoStdin:
			line = "sudo -S -p '' -- " + line
		case command.SSHSudoAskpass:
			line = "sudo -A -- " + line
		default:
			line = "sudo -- " + line
		}
	}
	if cmd.Cwd != "" {
		line = fmt.Sprintf("cd %s && %s", command.QuotePOSIX(cmd.Cwd), line)
	}
	return line
}

// sessionStdin builds the session's stdin, prefixing the sudo password
// (plus newline) when stdin-based escalation is configured.
func sessionStdin(cmd command.Command, opts command.SSHOptions) (io.Reader, bool) {
	var body io.Reader
	switch {
	case cmd.Stdin != nil:
		body = cmd.Stdin
	case cmd.StdinBytes != nil:
		body = bytes.NewReader(cmd.StdinBytes)
	}

	if opts.Sudo != nil && opts.Sudo.Method == command.SSHSudoStdin {
		pw := bytes.NewReader([]byte(opts.Sudo.Password + "\n"))
		if body == nil {
			return pw, true
		}
		return io.MultiReader(pw, body), true
	}
	if body == nil {
		return nil, false
	}
	return body, true
}

// limitedBuffer caps how many bytes are retained per stream, matching
// the local adapter's truncation behaviour.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.truncated {
		return len(p), nil
	}
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}
