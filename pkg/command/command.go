// SPDX-License-Identifier: MPL-2.0

// Package command builds immutable, already-quoted command descriptions
// for the engine to execute. A Command is a value type: every chained
// configuration method returns a modified copy, never mutating the
// receiver, so two chains built from the same base never observe each
// other's changes.
package command

import (
	"errors"
	"io"
	"time"
)

// StreamMode selects how an adapter handles one of a command's output
// streams.
type StreamMode int

const (
	// StreamPipe captures the stream into the Result.
	StreamPipe StreamMode = iota
	// StreamInherit passes the stream through to the calling process.
	StreamInherit
	// StreamIgnore discards the stream entirely.
	StreamIgnore
	// StreamSink writes the stream to a caller-supplied io.Writer.
	StreamSink
)

// StreamTarget configures one of stdout/stderr.
type StreamTarget struct {
	Mode StreamMode
	Sink io.Writer // only consulted when Mode == StreamSink
}

// ShellMode selects whether and how a command is run through a shell.
type ShellMode struct {
	// Enabled is true when the adapter's default shell should be used.
	Enabled bool
	// Path overrides the adapter's default shell binary; empty means
	// "use the adapter default" when Enabled is true.
	Path string
}

// Default execution policy constants, merged in by the engine when a
// Command leaves them at their zero value.
const (
	DefaultTimeout   = 120 * time.Second
	DefaultMaxBuffer = 10 << 20 // 10 MiB
)

// ErrInvalidArgument is returned by interpolation helpers and adapter
// construction when a Command cannot be built safely.
var ErrInvalidArgument = errors.New("invalid argument")

// RetryPolicy configures per-command retry behaviour at the engine
// boundary. RetryOn defaults (when nil) to connection-class errors;
// CommandFailed is only retried if explicitly listed.
type RetryPolicy struct {
	Attempts   int
	BackoffMs  int
	Jitter     bool
	RetryOn    []string // ErrorKind values, as strings to avoid an import cycle
}

// ProgressBlock configures a callback invoked as output arrives.
type ProgressBlock struct {
	Enabled     bool
	UpdateEvery time.Duration
	Handler     func(stream string, chunk []byte)
}

// Command is the fully-prepared, immutable description of one
// execution. Construct one with New and shape it with the chained
// With* methods; each call returns a new value.
type Command struct {
	Program        string
	Args           []string
	Cwd            string
	Env            map[string]string
	Shell          ShellMode
	Stdin          io.Reader
	StdinBytes     []byte
	Stdout         StreamTarget
	Stderr         StreamTarget
	Timeout        time.Duration
	MaxBuffer      int
	Nothrow        bool
	Quiet          bool
	Retry          *RetryPolicy
	Nice           int
	Signal         <-chan struct{}
	AdapterOptions AdapterOptions
	Progress       *ProgressBlock

	pipeline []Command // set by Pipe; this Command is the first stage
}

// New creates a Command for program with already-quoted args. Use
// Interpolate to build args from typed values with safe quoting instead
// of constructing the slice by hand.
func New(program string, args ...string) Command {
	return Command{
		Program: program,
		Args:    append([]string(nil), args...),
		Shell:   ShellMode{Enabled: true},
		AdapterOptions: LocalOptions{},
	}
}

// clone returns a deep-enough copy so that With* methods never mutate
// the receiver's backing arrays or maps.
func (c Command) clone() Command {
	nc := c
	if c.Args != nil {
		nc.Args = append([]string(nil), c.Args...)
	}
	if c.Env != nil {
		nc.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			nc.Env[k] = v
		}
	}
	if c.pipeline != nil {
		nc.pipeline = append([]Command(nil), c.pipeline...)
	}
	return nc
}

// WithCwd returns a copy with the working directory set.
func (c Command) WithCwd(dir string) Command {
	nc := c.clone()
	nc.Cwd = dir
	return nc
}

// WithEnv returns a copy with key=value merged into the command's
// environment; command-supplied values win over whatever the engine
// later merges in from the process environment.
func (c Command) WithEnv(key, value string) Command {
	nc := c.clone()
	if nc.Env == nil {
		nc.Env = make(map[string]string, 1)
	}
	nc.Env[key] = value
	return nc
}

// WithEnvMap merges every entry of env into the command's environment.
func (c Command) WithEnvMap(env map[string]string) Command {
	nc := c.clone()
	if nc.Env == nil {
		nc.Env = make(map[string]string, len(env))
	}
	for k, v := range env {
		nc.Env[k] = v
	}
	return nc
}

// WithTimeout returns a copy with a bounded execution time; zero means
// no timeout.
func (c Command) WithTimeout(d time.Duration) Command {
	nc := c.clone()
	nc.Timeout = d
	return nc
}

// WithShell returns a copy that runs through the adapter's default
// shell (enabled=true) or direct exec (enabled=false). Adapters that
// cannot honour false must document the effective behaviour.
func (c Command) WithShell(enabled bool) Command {
	nc := c.clone()
	nc.Shell = ShellMode{Enabled: enabled}
	return nc
}

// WithShellPath returns a copy that runs through the named shell binary.
func (c Command) WithShellPath(path string) Command {
	nc := c.clone()
	nc.Shell = ShellMode{Enabled: true, Path: path}
	return nc
}

// WithStdin returns a copy that feeds r to the process's standard
// input.
func (c Command) WithStdin(r io.Reader) Command {
	nc := c.clone()
	nc.Stdin = r
	nc.StdinBytes = nil
	return nc
}

// WithStdinString returns a copy that feeds s to the process's standard
// input.
func (c Command) WithStdinString(s string) Command {
	nc := c.clone()
	nc.Stdin = nil
	nc.StdinBytes = []byte(s)
	return nc
}

// WithStdout returns a copy with the stdout target replaced.
func (c Command) WithStdout(t StreamTarget) Command {
	nc := c.clone()
	nc.Stdout = t
	return nc
}

// WithStderr returns a copy with the stderr target replaced.
func (c Command) WithStderr(t StreamTarget) Command {
	nc := c.clone()
	nc.Stderr = t
	return nc
}

// WithNothrow returns a copy where a non-zero exit is reported via
// Result rather than as a thrown error.
func (c Command) WithNothrow(v bool) Command {
	nc := c.clone()
	nc.Nothrow = v
	return nc
}

// WithQuiet returns a copy that suppresses command:output events
// without affecting capture.
func (c Command) WithQuiet(v bool) Command {
	nc := c.clone()
	nc.Quiet = v
	return nc
}

// WithRetry returns a copy with the given retry policy attached.
func (c Command) WithRetry(p RetryPolicy) Command {
	nc := c.clone()
	nc.Retry = &p
	return nc
}

// WithNice returns a copy annotated with a scheduling priority hint;
// adapters that cannot honour it ignore it.
func (c Command) WithNice(n int) Command {
	nc := c.clone()
	nc.Nice = n
	return nc
}

// WithSignal returns a copy that observes ch for external cancellation;
// a closed channel triggers the adapter's kill path.
func (c Command) WithSignal(ch <-chan struct{}) Command {
	nc := c.clone()
	nc.Signal = ch
	return nc
}

// WithMaxBuffer returns a copy with the captured-bytes ceiling per
// stream set; zero means "use the engine default".
func (c Command) WithMaxBuffer(n int) Command {
	nc := c.clone()
	nc.MaxBuffer = n
	return nc
}

// Local returns a copy targeting the local adapter.
func (c Command) Local() Command {
	nc := c.clone()
	nc.AdapterOptions = LocalOptions{}
	return nc
}

// SSH returns a copy targeting the SSH adapter with the given options.
func (c Command) SSH(opts SSHOptions) Command {
	nc := c.clone()
	nc.AdapterOptions = opts
	return nc
}

// Docker returns a copy targeting the Docker adapter with the given
// options.
func (c Command) Docker(opts DockerOptions) Command {
	nc := c.clone()
	nc.AdapterOptions = opts
	return nc
}

// RemoteDocker returns a copy targeting the remote-docker adapter.
func (c Command) RemoteDocker(opts RemoteDockerOptions) Command {
	nc := c.clone()
	nc.AdapterOptions = opts
	return nc
}

// K8s returns a copy targeting the Kubernetes adapter with the given
// options.
func (c Command) K8s(opts K8sOptions) Command {
	nc := c.clone()
	nc.AdapterOptions = opts
	return nc
}

// Mock returns a copy targeting the mock adapter, for tests.
func (c Command) Mock(opts MockOptions) Command {
	nc := c.clone()
	nc.AdapterOptions = opts
	return nc
}

// Pipeline returns the stages of a command built with Pipe, including
// the receiver itself as the first element. A Command that was never
// piped reports itself as a single-element pipeline.
func (c Command) Pipeline() []Command {
	if len(c.pipeline) == 0 {
		return []Command{c}
	}
	return append([]Command(nil), c.pipeline...)
}
