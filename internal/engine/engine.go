// SPDX-License-Identifier: MPL-2.0

// Package engine is the front-facing coordinator: it selects an
// adapter from a Command's AdapterOptions, merges execution defaults,
// applies retry and timeout policy, masks the returned Result, emits
// lifecycle events, and owns every adapter's disposal.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"

	"xec/internal/adapter"
	"xec/internal/eventbus"
	"xec/internal/mask"
	"xec/pkg/command"
	"xec/pkg/result"
)

// Defaults holds the engine-wide fallback policy merged into a Command
// that left the corresponding field at its zero value.
type Defaults struct {
	Timeout        time.Duration
	MaxBuffer      int
	ThrowOnNonZero bool
	KillGraceMs    int
}

// DefaultDefaults mirrors the engine/router defaults: a 120s timeout, a
// 10MiB capture ceiling, and throw-on-non-zero-exit enabled.
func DefaultDefaults() Defaults {
	return Defaults{
		Timeout:        command.DefaultTimeout,
		MaxBuffer:      command.DefaultMaxBuffer,
		ThrowOnNonZero: true,
		KillGraceMs:    5000,
	}
}

// Engine is the package's front door. Construct one with New, register
// adapters with RegisterAdapter, then call Run.
type Engine struct {
	registry *adapter.Registry
	bus      *eventbus.Bus
	masker   *mask.Masker
	defaults Defaults
	logger   *log.Logger

	disposeOnce  bool
	disposeOrder []command.AdapterKind
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithDefaults overrides the merged-in execution defaults.
func WithDefaults(d Defaults) Option {
	return func(e *Engine) { e.defaults = d }
}

// WithMasker overrides the default sensitive-data masker.
func WithMasker(m *mask.Masker) Option {
	return func(e *Engine) { e.masker = m }
}

// WithLogger overrides the engine's logger, e.g. to change level or
// output destination. The default writes to stderr at info level.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithLogLevel sets the default logger's level, parsing the same
// strings engineconfig.Config.LogLevel accepts ("debug", "info",
// "warn", "error"). An unrecognised level is ignored.
func WithLogLevel(level string) Option {
	return func(e *Engine) {
		if lvl, err := log.ParseLevel(level); err == nil {
			e.logger.SetLevel(lvl)
		}
	}
}

// New returns a ready-to-use Engine with no adapters registered.
func New(opts ...Option) *Engine {
	e := &Engine{
		registry: adapter.NewRegistry(),
		bus:      eventbus.New(),
		masker:   mask.Default(),
		defaults: DefaultDefaults(),
		logger:   log.NewWithOptions(os.Stderr, log.Options{Prefix: "engine"}),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RegisterAdapter registers a under kind, recording kind in reverse
// disposal order (last registered closes first, matching "reverse
// registration order" in the disposal contract).
func (e *Engine) RegisterAdapter(kind command.AdapterKind, a adapter.Adapter) {
	e.registry.Register(kind, a)
	e.disposeOrder = append(e.disposeOrder, kind)
}

// On subscribes handler to kind and returns an unsubscribe function.
func (e *Engine) On(kind eventbus.Kind, handler eventbus.Handler) func() {
	return e.bus.On(kind, eventbus.Selector{}, handler)
}

// SSH returns a Command scoped to the SSH adapter with opts, for the
// caller to extend with Program/Args (directly or via command.Build)
// before calling Run.
func (e *Engine) SSH(opts command.SSHOptions) command.Command {
	return command.New("").SSH(opts)
}

// Docker returns a Command scoped to the Docker adapter with opts.
func (e *Engine) Docker(opts command.DockerOptions) command.Command {
	return command.New("").Docker(opts)
}

// K8s returns a Command scoped to the Kubernetes adapter with opts.
func (e *Engine) K8s(opts command.K8sOptions) command.Command {
	return command.New("").K8s(opts)
}

// mergeDefaults fills in zero-valued fields of cmd from e.defaults.
func (e *Engine) mergeDefaults(cmd command.Command) command.Command {
	if cmd.Timeout == 0 {
		cmd = cmd.WithTimeout(e.defaults.Timeout)
	}
	if cmd.MaxBuffer == 0 {
		cmd = cmd.WithMaxBuffer(e.defaults.MaxBuffer)
	}
	return cmd
}

// Run dispatches cmd to its adapter, applying defaults, retry,
// masking, and the throwing policy. It is the asynchronous entry point
// named engine.run in the external contract; Go has no separate
// promise type so Run always blocks until ctx or the command ends.
func (e *Engine) Run(ctx context.Context, cmd command.Command) (result.Result, error) {
	if len(cmd.Pipeline()) > 1 {
		return e.runPipeline(ctx, cmd)
	}
	return e.runOne(ctx, cmd)
}

// RunSync runs cmd without going through the general dispatch path,
// only for adapters that implement SyncAdapter (Local, Mock), per the
// external-interface contract that runSync targets sync-capable
// adapters only.
func (e *Engine) RunSync(cmd command.Command) (result.Result, error) {
	cmd = e.mergeDefaults(cmd)
	a, err := e.registry.GetForCommand(cmd)
	if err != nil {
		return result.Result{}, err
	}
	sa, ok := a.(adapter.SyncAdapter)
	if !ok {
		return result.Result{}, &result.Error{
			Kind:    result.ErrorKindInvalidArgument,
			Message: fmt.Sprintf("adapter %q does not support runSync", a.Name()),
		}
	}
	res, err := sa.ExecuteSync(cmd)
	res = e.maskResult(res)
	return e.applyThrowingPolicy(cmd, res, err)
}

func (e *Engine) runOne(ctx context.Context, cmd command.Command) (result.Result, error) {
	cmd = e.mergeDefaults(cmd)
	a, err := e.registry.GetForCommand(cmd)
	if err != nil {
		return result.Result{}, err
	}

	e.logger.Debug("command starting", "adapter", a.Name(), "program", e.masker.Mask(cmd.Program))
	e.bus.Emit(eventbus.Event{Kind: eventbus.KindCommandStart, Adapter: a.Name(), Command: cmd.Program})

	res, runErr := e.runWithRetry(ctx, a, cmd)
	res = e.maskResult(res)

	if runErr != nil {
		e.logger.Error("command failed", "adapter", a.Name(), "program", res.Command, "error", runErr)
		e.bus.Emit(eventbus.Event{Kind: eventbus.KindCommandError, Adapter: a.Name(), Command: res.Command, Payload: runErr})
	} else {
		e.logger.Debug("command completed", "adapter", a.Name(), "program", res.Command, "exitCode", res.ExitCode)
		e.bus.Emit(eventbus.Event{Kind: eventbus.KindCommandComplete, Adapter: a.Name(), Command: res.Command})
	}

	return e.applyThrowingPolicy(cmd, res, runErr)
}

// runWithRetry enforces cmd.Timeout and, if cmd.Retry is set, retries
// the execution for error kinds it is configured to cover.
func (e *Engine) runWithRetry(ctx context.Context, a adapter.Adapter, cmd command.Command) (result.Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	if cmd.Retry == nil || cmd.Retry.Attempts <= 1 {
		return a.Execute(runCtx, cmd)
	}

	var lastRes result.Result
	var lastErr error
	policy := newBackoff(*cmd.Retry)

	attempt := 0
	op := func() error {
		attempt++
		lastRes, lastErr = a.Execute(runCtx, cmd)
		if lastErr == nil {
			return nil
		}
		if attempt >= cmd.Retry.Attempts || !retryable(lastErr, cmd.Retry.RetryOn) {
			return backoff.Permanent(lastErr)
		}
		e.logger.Warn("retrying command", "attempt", attempt, "maxAttempts", cmd.Retry.Attempts, "error", lastErr)
		return lastErr
	}

	_ = backoff.Retry(op, backoff.WithContext(policy, runCtx))
	return lastRes, lastErr
}

func newBackoff(p command.RetryPolicy) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.BackoffMs > 0 {
		b.InitialInterval = time.Duration(p.BackoffMs) * time.Millisecond
	}
	if !p.Jitter {
		b.RandomizationFactor = 0
	}
	return backoff.WithMaxRetries(b, uint64(max(0, p.Attempts-1)))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// retryable reports whether err's ErrorKind is covered by retryOn.
// An empty retryOn defaults to connection-class errors, per the
// retry-policy contract (CommandFailed is never retried implicitly).
func retryable(err error, retryOn []string) bool {
	var rerr *result.Error
	if !errors.As(err, &rerr) {
		return false
	}
	if len(retryOn) == 0 {
		return rerr.Kind == result.ErrorKindConnectionError
	}
	for _, k := range retryOn {
		if string(rerr.Kind) == k {
			return true
		}
	}
	return false
}

func (e *Engine) maskResult(res result.Result) result.Result {
	res.Stdout = e.masker.MaskBytes(res.Stdout)
	res.Stderr = e.masker.MaskBytes(res.Stderr)
	res.Command = e.masker.Mask(res.Command)
	return res
}

// applyThrowingPolicy implements §4.8/§4.2: nonzero exit raises
// CommandFailed unless Nothrow; timeouts and cancellations always
// surface as errors (Nothrow only controls whether a non-zero-exit
// Result is also returned alongside that already-structured error).
func (e *Engine) applyThrowingPolicy(cmd command.Command, res result.Result, runErr error) (result.Result, error) {
	if runErr != nil {
		var rerr *result.Error
		if errors.As(runErr, &rerr) {
			rerr.Command = res.Command
			if rerr.Result == nil {
				r := res
				rerr.Result = &r
			}
		}
		return res, runErr
	}

	if !res.Ok() && !cmd.Nothrow {
		return res, &result.Error{
			Kind:    result.ErrorKindCommandFailed,
			Message: fmt.Sprintf("exit code %d", res.ExitCode),
			Command: res.Command,
			Result:  &res,
		}
	}
	return res, nil
}

// Dispose closes every registered adapter in reverse registration
// order. It is idempotent: a second call has nothing left to close and
// returns nil.
func (e *Engine) Dispose(ctx context.Context) error {
	if e.disposeOnce {
		return nil
	}
	e.disposeOnce = true

	var errs []error
	for i := len(e.disposeOrder) - 1; i >= 0; i-- {
		a := e.registry.Get(e.disposeOrder[i])
		if a == nil {
			continue
		}
		if err := a.Dispose(ctx); err != nil {
			e.logger.Error("adapter disposal failed", "adapter", a.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &result.Error{Kind: result.ErrorKindInternal, Message: "adapter disposal failed", Cause: errors.Join(errs...)}
}
