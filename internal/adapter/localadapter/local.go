// SPDX-License-Identifier: MPL-2.0

// Package localadapter wraps an OS process spawn, honouring shell,
// cwd, and env the way the engine's other adapters do, so a Command
// behaves identically whether it targets the local host or a remote
// one.
package localadapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	dockerterm "github.com/moby/term"

	"xec/pkg/command"
	"xec/pkg/result"
)

// Adapter executes commands as direct child processes of the current
// one.
type Adapter struct {
	killGrace time.Duration

	mu      sync.Mutex
	running map[any]*exec.Cmd
	nextTok int
}

// Option configures an Adapter at construction.
type Option func(*Adapter)

// WithKillGrace overrides the delay between SIGTERM and SIGKILL during
// signal escalation. The default is 5 seconds, matching the engine's
// documented killGraceMs default.
func WithKillGrace(d time.Duration) Option {
	return func(a *Adapter) { a.killGrace = d }
}

// New returns a ready-to-use local Adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		killGrace: 5 * time.Second,
		running:   make(map[any]*exec.Cmd),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string { return "local" }

// Available always reports true: the local adapter has no external
// dependency to probe.
func (a *Adapter) Available(ctx context.Context) bool { return true }

// Dispose kills any processes still tracked as running. It is
// idempotent: a second call finds nothing left to kill.
func (a *Adapter) Dispose(ctx context.Context) error {
	a.mu.Lock()
	procs := make([]*exec.Cmd, 0, len(a.running))
	for _, c := range a.running {
		procs = append(procs, c)
	}
	a.running = make(map[any]*exec.Cmd)
	a.mu.Unlock()

	for _, c := range procs {
		if c.Process != nil {
			_ = c.Process.Kill()
		}
	}
	return nil
}

func (a *Adapter) ExecuteSync(cmd command.Command) (result.Result, error) {
	return a.Execute(context.Background(), cmd)
}

func (a *Adapter) shellInvocation(cmd command.Command) (string, []string) {
	if !cmd.Shell.Enabled {
		return cmd.Program, cmd.Args
	}
	shellPath := cmd.Shell.Path
	if shellPath == "" {
		shellPath = defaultShell()
	}
	line := cmd.Program
	for _, arg := range cmd.Args {
		line += " " + arg
	}
	if runtime.GOOS == "windows" {
		return shellPath, []string{"/C", line}
	}
	return shellPath, []string{"-c", line}
}

func defaultShell() string {
	if runtime.GOOS == "windows" {
		if p, err := exec.LookPath("pwsh"); err == nil {
			return p
		}
		return "cmd"
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	if p, err := exec.LookPath("bash"); err == nil {
		return p
	}
	return "/bin/sh"
}

// Execute spawns cmd as a child process, captures stdout/stderr up to
// MaxBuffer, and honours cmd.Signal / ctx for cooperative cancellation
// with SIGTERM-then-SIGKILL escalation.
func (a *Adapter) Execute(ctx context.Context, cmd command.Command) (result.Result, error) {
	if ttyRequested(cmd) {
		return a.executeTTY(ctx, cmd)
	}

	started := time.Now()

	program, args := a.shellInvocation(cmd)
	c := exec.Command(program, args...)
	if cmd.Cwd != "" {
		c.Dir = cmd.Cwd
	}
	c.Env = mergeEnv(os.Environ(), cmd.Env)

	maxBuf := cmd.MaxBuffer
	if maxBuf <= 0 {
		maxBuf = command.DefaultMaxBuffer
	}
	_, termStdout, termStderr := dockerterm.StdStreams()
	stdout := resolveStream(cmd.Stdout, maxBuf, termStdout)
	stderr := resolveStream(cmd.Stderr, maxBuf, termStderr)
	c.Stdout = stdout
	c.Stderr = stderr

	switch {
	case cmd.Stdin != nil:
		c.Stdin = cmd.Stdin
	case cmd.StdinBytes != nil:
		c.Stdin = bytes.NewReader(cmd.StdinBytes)
	}

	if err := c.Start(); err != nil {
		return result.Result{}, &result.Error{
			Kind:    result.ErrorKindAdapterUnavailable,
			Message: "failed to start local process",
			Cause:   err,
		}
	}

	tok := a.track(c)
	defer a.untrack(tok)

	waitErr := a.waitWithCancellation(ctx, cmd, c)

	ended := time.Now()
	res := result.Result{
		Stdout:    stdout.bytes(),
		Stderr:    stderr.bytes(),
		Command:   cmd.Program,
		Duration:  ended.Sub(started),
		StartedAt: started,
		EndedAt:   ended,
		Adapter:   a.Name(),
		Truncated: stdout.wasTruncated() || stderr.wasTruncated(),
	}

	if stdout.wasTruncated() || stderr.wasTruncated() {
		return res, &result.Error{Kind: result.ErrorKindBufferExceeded, Message: "output exceeded MaxBuffer", Result: &res}
	}

	return a.classifyExit(res, waitErr)
}

// ttyRequested reports whether cmd asks to inherit a real terminal on
// both output streams, the signal the local adapter uses to decide
// whether to allocate a PTY instead of piping through buffers.
func ttyRequested(cmd command.Command) bool {
	return cmd.Stdout.Mode == command.StreamInherit && cmd.Stderr.Mode == command.StreamInherit
}

// executeTTY runs cmd attached to a pseudo-terminal so full-screen and
// line-editing programs behave the way they would run directly in the
// caller's shell. stdout and stderr are merged onto the PTY, matching
// how an interactive terminal session works; Result.Stdout/Stderr stay
// empty since the output went straight to the inherited terminal.
func (a *Adapter) executeTTY(ctx context.Context, cmd command.Command) (result.Result, error) {
	started := time.Now()

	program, args := a.shellInvocation(cmd)
	c := exec.Command(program, args...)
	if cmd.Cwd != "" {
		c.Dir = cmd.Cwd
	}
	c.Env = mergeEnv(os.Environ(), cmd.Env)

	_, stdout, _ := dockerterm.StdStreams()

	ptmx, err := startPty(c)
	if err != nil {
		return result.Result{}, &result.Error{Kind: result.ErrorKindAdapterUnavailable, Message: "failed to allocate pty", Cause: err}
	}
	defer ptmx.Close()
	inheritWinsize(ptmx)

	tok := a.track(c)
	defer a.untrack(tok)

	copyDone := make(chan struct{})
	go func() {
		_, _ = io.Copy(stdout, ptmx)
		close(copyDone)
	}()
	if cmd.Stdin != nil {
		go func() { _, _ = io.Copy(ptmx, cmd.Stdin) }()
	}

	waitErr := a.waitWithCancellation(ctx, cmd, c)
	<-copyDone

	ended := time.Now()
	res := result.Result{
		Command:   cmd.Program,
		Duration:  ended.Sub(started),
		StartedAt: started,
		EndedAt:   ended,
		Adapter:   a.Name(),
	}
	return a.classifyExit(res, waitErr)
}

func (a *Adapter) classifyExit(res result.Result, waitErr error) (result.Result, error) {
	if waitErr == nil {
		res.ExitCode = 0
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			res.Signal = status.Signal().String()
			res.ExitCode = result.ExitCodeKilledBeforeExit
		}
		return res, nil
	}

	if errors.Is(waitErr, context.DeadlineExceeded) || errors.Is(waitErr, errKilledByTimeout) {
		res.ExitCode = result.ExitCodeTimeout
		res.Signal = "SIGTERM"
		return res, &result.Error{Kind: result.ErrorKindTimeout, Result: &res, Cause: waitErr}
	}
	if errors.Is(waitErr, context.Canceled) || errors.Is(waitErr, errKilledByCancel) {
		res.ExitCode = result.ExitCodeKilledBeforeExit
		res.Signal = "SIGTERM"
		return res, &result.Error{Kind: result.ErrorKindCancelled, Result: &res, Cause: waitErr}
	}

	res.ExitCode = result.ExitCodeKilledBeforeExit
	return res, &result.Error{Kind: result.ErrorKindInternal, Result: &res, Cause: waitErr}
}

var (
	errKilledByTimeout = errors.New("local: killed after timeout")
	errKilledByCancel  = errors.New("local: killed by cancellation signal")
)

// waitWithCancellation waits for c to exit, escalating SIGTERM then
// SIGKILL if ctx is done or cmd.Signal fires first.
func (a *Adapter) waitWithCancellation(ctx context.Context, cmd command.Command, c *exec.Cmd) error {
	done := make(chan error, 1)
	go func() { done <- c.Wait() }()

	var sig <-chan struct{} = cmd.Signal
	if sig == nil {
		sig = make(chan struct{}) // never fires
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		a.escalate(c)
		<-done
		if errors.Is(ctx.Err(), context.Canceled) {
			return errKilledByCancel
		}
		return errKilledByTimeout
	case <-sig:
		a.escalate(c)
		<-done
		return errKilledByCancel
	}
}

func (a *Adapter) escalate(c *exec.Cmd) {
	if c.Process == nil {
		return
	}
	_ = c.Process.Signal(syscall.SIGTERM)
	timer := time.NewTimer(a.killGrace)
	defer timer.Stop()
	<-timer.C
	_ = c.Process.Kill()
}

func (a *Adapter) track(c *exec.Cmd) any {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextTok++
	tok := a.nextTok
	a.running[tok] = c
	return tok
}

func (a *Adapter) untrack(tok any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.running, tok)
}

// Kill implements adapter.Killer by signalling the process associated
// with token (the value Execute's tracking returned internally is not
// exposed; callers normally rely on ctx/cmd.Signal instead).
func (a *Adapter) Kill(ctx context.Context, token any, graceful bool) error {
	a.mu.Lock()
	c, ok := a.running[token]
	a.mu.Unlock()
	if !ok || c.Process == nil {
		return nil
	}
	if graceful {
		a.escalate(c)
		return nil
	}
	return c.Process.Kill()
}

func mergeEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}
	out := append([]string(nil), base...)
	for k, v := range overlay {
		out = append(out, k+"="+v)
	}
	return out
}

// limitedBuffer caps how many bytes are retained, setting truncated
// once the limit is exceeded rather than growing without bound.
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

func (b *limitedBuffer) bytes() []byte    { return b.buf.Bytes() }
func (b *limitedBuffer) wasTruncated() bool { return b.truncated }

var _ io.Writer = (*limitedBuffer)(nil)

// streamWriter is what Execute needs from whatever cmd.Stdout/Stderr
// resolves to: something to write into, plus whether the Result should
// report captured bytes and truncation.
type streamWriter interface {
	io.Writer
	bytes() []byte
	wasTruncated() bool
}

// passthroughWriter wraps a stream the Result never captures (Inherit,
// Ignore, Sink): output goes straight to the target, nothing is kept
// for Result.Stdout/Stderr.
type passthroughWriter struct{ w io.Writer }

func (p passthroughWriter) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p passthroughWriter) bytes() []byte               { return nil }
func (p passthroughWriter) wasTruncated() bool          { return false }

// resolveStream builds the writer Execute attaches to one of the
// process's output streams, honouring target.Mode. inherited is the
// platform-appropriate stream (from dockerterm.StdStreams()) used when
// target.Mode is StreamInherit.
func resolveStream(target command.StreamTarget, maxBuf int, inherited io.Writer) streamWriter {
	switch target.Mode {
	case command.StreamInherit:
		return passthroughWriter{w: inherited}
	case command.StreamIgnore:
		return passthroughWriter{w: io.Discard}
	case command.StreamSink:
		if target.Sink != nil {
			return passthroughWriter{w: target.Sink}
		}
		return passthroughWriter{w: io.Discard}
	default: // command.StreamPipe
		return &limitedBuffer{limit: maxBuf}
	}
}
