// SPDX-License-Identifier: MPL-2.0

// Package k8sadapter drives commands against a Kubernetes pod through
// the kubectl CLI, the way the Docker adapter drives the docker CLI:
// no client-go dependency, argv built and shelled out to a local
// kubectl binary. Pod selection resolves a label selector or regex to
// a concrete pod name before exec runs.
package k8sadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"xec/internal/engineconfig"
	"xec/internal/eventbus"
	"xec/pkg/command"
	"xec/pkg/result"
)

// Adapter drives kubectl for exec, log streaming, port-forwarding, and
// file copy.
type Adapter struct {
	binary       string
	bus          *eventbus.Bus
	logReconnect engineconfig.K8sLogReconnectConfig
}

// Option configures an Adapter at construction.
type Option func(*Adapter)

// WithBinary overrides the kubectl binary name or path; default is
// "kubectl" resolved from PATH.
func WithBinary(path string) Option {
	return func(a *Adapter) { a.binary = path }
}

// WithEventBus attaches the bus the adapter emits k8s:port-forward and
// k8s:log-reconnect events to.
func WithEventBus(bus *eventbus.Bus) Option {
	return func(a *Adapter) { a.bus = bus }
}

// WithLogReconnect configures StreamLogs' exponential-backoff retry
// policy for a dropped `kubectl logs -f` connection. The zero value
// disables reconnect: StreamLogs returns on the first drop.
func WithLogReconnect(cfg engineconfig.K8sLogReconnectConfig) Option {
	return func(a *Adapter) { a.logReconnect = cfg }
}

// New returns an Adapter driving kubectl.
func New(opts ...Option) *Adapter {
	a := &Adapter{binary: "kubectl"}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) emit(kind eventbus.Kind, payload any) {
	if a.bus == nil {
		return
	}
	a.bus.Emit(eventbus.Event{Kind: kind, Adapter: a.Name(), Payload: payload})
}

func (a *Adapter) Name() string { return "kubernetes" }

func (a *Adapter) Available(ctx context.Context) bool {
	_, err := exec.LookPath(a.binary)
	return err == nil
}

// Dispose is a no-op: the adapter owns no long-lived resources.
func (a *Adapter) Dispose(ctx context.Context) error { return nil }

func (a *Adapter) Execute(ctx context.Context, cmd command.Command) (result.Result, error) {
	opts, ok := cmd.AdapterOptions.(command.K8sOptions)
	if !ok {
		return result.Result{}, &result.Error{Kind: result.ErrorKindInvalidArgument, Message: "command is not scoped to the kubernetes adapter"}
	}

	started := time.Now()

	pod, err := a.resolvePod(ctx, opts)
	if err != nil {
		res := result.Result{
			ExitCode: result.ExitCodeTargetNotFound, Adapter: a.Name(), StartedAt: started, EndedAt: time.Now(),
			Stderr: []byte(err.Error()),
		}
		return res, &result.Error{Kind: result.ErrorKindTargetNotFound, Message: "no pod matched selector", Result: &res, Cause: err}
	}

	args := a.execArgs(pod, opts, cmd)
	execCmd := exec.CommandContext(ctx, a.binary, args...)

	maxBuf := cmd.MaxBuffer
	if maxBuf <= 0 {
		maxBuf = command.DefaultMaxBuffer
	}
	var stdout, stderr bytes.Buffer
	execCmd.Stdout = limit(&stdout, maxBuf)
	execCmd.Stderr = limit(&stderr, maxBuf)

	switch {
	case cmd.Stdin != nil:
		execCmd.Stdin = cmd.Stdin
	case cmd.StdinBytes != nil:
		execCmd.Stdin = bytes.NewReader(cmd.StdinBytes)
	}

	runErr := execCmd.Run()
	ended := time.Now()

	res := result.Result{
		Stdout: stdout.Bytes(), Stderr: stderr.Bytes(),
		Command: cmd.Program, StartedAt: started, EndedAt: ended, Duration: ended.Sub(started),
		Adapter: a.Name(), Container: pod,
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		res.ExitCode = 0
		return res, nil
	case isExitError(runErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		res.ExitCode = result.ExitCodeKilledBeforeExit
		return res, &result.Error{Kind: result.ErrorKindInternal, Message: "kubectl exec failed", Result: &res, Cause: runErr}
	}
}

func isExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

func (a *Adapter) execArgs(pod string, opts command.K8sOptions, cmd command.Command) []string {
	args := []string{"exec", pod}
	if opts.Namespace != "" {
		args = append(args, "-n", opts.Namespace)
	}
	if opts.Context != "" {
		args = append(args, "--context", opts.Context)
	}
	if opts.Kubeconfig != "" {
		args = append(args, "--kubeconfig", opts.Kubeconfig)
	}
	if opts.Container != "" {
		args = append(args, "-c", opts.Container)
	}
	if opts.TTY {
		args = append(args, "-t")
	}
	if opts.Stdin || cmd.Stdin != nil || cmd.StdinBytes != nil {
		args = append(args, "-i")
	}
	args = append(args, opts.ExecFlags...)
	args = append(args, "--", cmd.Program)
	args = append(args, cmd.Args...)
	return args
}

// podNameRe matches a literal pod name (no selector/regex syntax).
var podNameRe = regexp.MustCompile(`^[a-z0-9]([-a-z0-9.]*[a-z0-9])?$`)

// resolvePod resolves opts.Pod to a concrete pod name: a literal name
// passes through; a "-l key=value" selector (or any value containing
// "=") is passed to kubectl as a label selector; anything else is
// compiled as a regex and matched against every pod name. The first
// Running match is used, else the first match, in kubectl's list order.
func (a *Adapter) resolvePod(ctx context.Context, opts command.K8sOptions) (string, error) {
	if opts.Pod == "" {
		return "", fmt.Errorf("no pod or selector specified")
	}
	if podNameRe.MatchString(opts.Pod) {
		return opts.Pod, nil
	}

	args := []string{"get", "pods", "-o", "json"}
	if opts.Namespace != "" {
		args = append(args, "-n", opts.Namespace)
	}
	if opts.Context != "" {
		args = append(args, "--context", opts.Context)
	}
	var nameRe *regexp.Regexp
	if sel, ok := strings.CutPrefix(opts.Pod, "-l "); ok || strings.Contains(opts.Pod, "=") {
		args = append(args, "-l", sel)
	} else if re, err := regexp.Compile(opts.Pod); err == nil {
		nameRe = re
	} else {
		return "", fmt.Errorf("invalid pod pattern %q: %w", opts.Pod, err)
	}

	out, err := exec.CommandContext(ctx, a.binary, args...).Output()
	if err != nil {
		return "", fmt.Errorf("list pods: %w", err)
	}

	var list struct {
		Items []struct {
			Metadata struct {
				Name              string `json:"name"`
				CreationTimestamp string `json:"creationTimestamp"`
			} `json:"metadata"`
			Status struct {
				Phase string `json:"phase"`
			} `json:"status"`
		} `json:"items"`
	}
	if err := json.Unmarshal(skipLeadingNoise(out), &list); err != nil {
		return "", fmt.Errorf("parse pod list: %w", err)
	}
	for _, item := range list.Items {
		if item.Status.Phase == "Running" && (nameRe == nil || nameRe.MatchString(item.Metadata.Name)) {
			return item.Metadata.Name, nil
		}
	}
	for _, item := range list.Items {
		if nameRe == nil || nameRe.MatchString(item.Metadata.Name) {
			return item.Metadata.Name, nil
		}
	}
	return "", fmt.Errorf("no pods matched selector %q", opts.Pod)
}

// skipLeadingNoise returns b starting at its first '{' or '[' byte,
// tolerating warning/banner lines kubectl sometimes prints ahead of
// -o json output (matching the same rule Result.JSON applies).
func skipLeadingNoise(b []byte) []byte {
	if i := bytes.IndexAny(b, "{["); i > 0 {
		return b[i:]
	}
	return b
}

func limit(buf *bytes.Buffer, max int) *limitedWriter {
	return &limitedWriter{buf: buf, limit: max}
}

type limitedWriter struct {
	buf       *bytes.Buffer
	limit     int
	truncated bool
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.truncated {
		return len(p), nil
	}
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		w.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		w.truncated = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}
