// SPDX-License-Identifier: MPL-2.0

package k8sadapter

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"syscall"
	"time"

	"xec/internal/engineconfig"
	"xec/internal/eventbus"
	"xec/pkg/result"
)

// CopyTo copies localPath into pod:remotePath via kubectl cp.
func (a *Adapter) CopyTo(ctx context.Context, opts copyOptions, localPath, remotePath string) error {
	return a.cp(ctx, opts, localPath, opts.pod+":"+remotePath)
}

// CopyFrom copies pod:remotePath to localPath via kubectl cp.
func (a *Adapter) CopyFrom(ctx context.Context, opts copyOptions, remotePath, localPath string) error {
	return a.cp(ctx, opts, opts.pod+":"+remotePath, localPath)
}

// copyOptions names the pod/namespace/container kubectl cp targets;
// kept distinct from command.K8sOptions since a copy has no program to
// run.
type copyOptions struct {
	pod       string
	namespace string
	container string
}

func (a *Adapter) cp(ctx context.Context, opts copyOptions, src, dst string) error {
	args := []string{"cp", src, dst}
	if opts.namespace != "" {
		args = append(args, "-n", opts.namespace)
	}
	if opts.container != "" {
		args = append(args, "-c", opts.container)
	}
	out, err := exec.CommandContext(ctx, a.binary, args...).CombinedOutput()
	if err != nil {
		return &result.Error{Kind: result.ErrorKindInternal, Message: fmt.Sprintf("kubectl cp failed: %s", out), Cause: err}
	}
	return nil
}

// LogOptions configures StreamLogs beyond the bare pod/namespace/
// container target.
type LogOptions struct {
	copyOptions
	Follow     bool
	Tail       int    // 0 means unset: kubectl's default of all buffered logs
	Since      string // passed through to --since, e.g. "5m"
	Timestamps bool
}

// NewLogOptions builds a LogOptions targeting pod, optionally scoped to
// namespace/container.
func NewLogOptions(pod, namespace, container string) LogOptions {
	return LogOptions{copyOptions: copyOptions{pod: pod, namespace: namespace, container: container}}
}

// StreamLogs follows pod's logs, invoking sink once per line, until ctx
// is done or the stream ends without reconnecting. A connection that
// drops mid-stream is retried with the exponential backoff configured
// via WithLogReconnect (base delay, cap, max attempts); once attempts
// are exhausted the last stream error is returned. An Adapter built
// without WithLogReconnect has a zero-value policy (MaxAttempts 0), so
// StreamLogs returns on the first drop, matching the non-reconnecting
// behaviour callers get by default.
func (a *Adapter) StreamLogs(ctx context.Context, opts LogOptions, sink func(line string)) error {
	for attempt := 0; ; attempt++ {
		err := a.streamLogsOnce(ctx, opts, sink)
		if err == nil || ctx.Err() != nil {
			return err
		}
		if attempt >= a.logReconnect.MaxAttempts {
			return err
		}

		delay := logReconnectDelay(a.logReconnect, attempt)
		a.emit(eventbus.KindK8sLogReconnect, map[string]any{
			"pod": opts.pod, "attempt": attempt + 1, "delay_ms": delay.Milliseconds(), "cause": err.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
	}
}

// logReconnectDelay computes attempt's backoff delay: base * 2^attempt,
// capped at MaxDelayMs.
func logReconnectDelay(cfg engineconfig.K8sLogReconnectConfig, attempt int) time.Duration {
	base := time.Duration(cfg.BaseDelayMs) * time.Millisecond
	maxDelay := time.Duration(cfg.MaxDelayMs) * time.Millisecond
	if attempt > 30 { // guard against shift overflow; maxDelay dominates long before this
		return maxDelay
	}
	d := base << uint(attempt)
	if d <= 0 || d > maxDelay {
		return maxDelay
	}
	return d
}

func (a *Adapter) streamLogsOnce(ctx context.Context, opts LogOptions, sink func(line string)) error {
	args := []string{"logs", opts.pod}
	if opts.Follow {
		args = append(args, "-f")
	}
	if opts.namespace != "" {
		args = append(args, "-n", opts.namespace)
	}
	if opts.container != "" {
		args = append(args, "-c", opts.container)
	}
	if opts.Tail > 0 {
		args = append(args, "--tail", strconv.Itoa(opts.Tail))
	}
	if opts.Since != "" {
		args = append(args, "--since", opts.Since)
	}
	if opts.Timestamps {
		args = append(args, "--timestamps")
	}

	cmd := exec.CommandContext(ctx, a.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &result.Error{Kind: result.ErrorKindInternal, Message: "open log stream", Cause: err}
	}
	if err := cmd.Start(); err != nil {
		return &result.Error{Kind: result.ErrorKindAdapterUnavailable, Message: "start kubectl logs", Cause: err}
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		sink(scanner.Text())
	}
	waitErr := cmd.Wait()
	if waitErr != nil && ctx.Err() == nil {
		return &result.Error{Kind: result.ErrorKindConnectionError, Message: "log stream ended unexpectedly", Cause: waitErr}
	}
	return nil
}

// portForwardLineRe matches kubectl's "Forwarding from 127.0.0.1:N ->
// M" readiness line, capturing the bound local port.
var portForwardLineRe = regexp.MustCompile(`Forwarding from [^:]+:(\d+) ->`)

// PortForwardHandle is a live `kubectl port-forward` child process.
// LocalPort is the bound local port: the caller's requested port, or
// (when the caller passed 0 for an ephemeral port) the port kubectl
// chose, discovered by scanning its readiness output.
type PortForwardHandle struct {
	LocalPort int

	cmd    *exec.Cmd
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// IsOpen reports whether the forward's subprocess is still running.
func (h *PortForwardHandle) IsOpen() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Close terminates the port-forward subprocess and waits for it to
// exit. Safe to call more than once.
func (h *PortForwardHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	if h.cmd.Process != nil {
		_ = h.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			_ = h.cmd.Process.Kill()
			<-h.done
		}
	}
	return nil
}

// PortForward spawns `kubectl port-forward` against opts.pod, forwarding
// localPort (or an ephemeral port kubectl picks, when localPort is 0)
// to remotePort inside the pod. It blocks only until the forward is
// ready or fails to start; the returned handle owns the subprocess for
// the rest of its life and must be closed by the caller. The
// k8s:port-forward event goes to bus, or to the adapter's own bus
// when bus is nil.
func (a *Adapter) PortForward(ctx context.Context, opts copyOptions, localPort, remotePort int, bus *eventbus.Bus) (*PortForwardHandle, error) {
	if bus == nil {
		bus = a.bus
	}
	spec := strconv.Itoa(remotePort)
	if localPort > 0 {
		spec = strconv.Itoa(localPort) + ":" + spec
	} else {
		spec = ":" + spec
	}

	args := []string{"port-forward", opts.pod, spec}
	if opts.namespace != "" {
		args = append(args, "-n", opts.namespace)
	}

	cmd := exec.CommandContext(ctx, a.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &result.Error{Kind: result.ErrorKindInternal, Message: "open port-forward stream", Cause: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &result.Error{Kind: result.ErrorKindAdapterUnavailable, Message: "start kubectl port-forward", Cause: err}
	}

	h := &PortForwardHandle{cmd: cmd, done: make(chan struct{})}

	ready := make(chan int, 1)
	go func() {
		defer close(h.done)
		defer func() { _ = cmd.Wait() }()

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if m := portForwardLineRe.FindStringSubmatch(scanner.Text()); m != nil {
				if port, perr := strconv.Atoi(m[1]); perr == nil {
					select {
					case ready <- port:
					default:
					}
				}
			}
		}
	}()

	select {
	case port := <-ready:
		h.LocalPort = port
		if bus != nil {
			bus.Emit(eventbus.Event{Kind: eventbus.KindK8sPortForward, Adapter: a.Name(), Payload: map[string]any{
				"pod": opts.pod, "local_port": port, "remote_port": remotePort,
			}})
		}
		return h, nil
	case <-h.done:
		return nil, &result.Error{Kind: result.ErrorKindConnectionError, Message: "kubectl port-forward exited before becoming ready"}
	case <-ctx.Done():
		_ = h.Close()
		return nil, &result.Error{Kind: result.ErrorKindTimeout, Message: "port-forward setup cancelled", Cause: ctx.Err()}
	}
}
