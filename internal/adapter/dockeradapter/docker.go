// SPDX-License-Identifier: MPL-2.0

// Package dockeradapter drives the docker (or podman) CLI per command,
// choosing between exec mode (attach to an existing container) and run
// mode (create and dispose an ephemeral one), and owns the temp
// container registry for containers it auto-creates.
package dockeradapter

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"xec/internal/adapter/lifecycle"
	"xec/internal/container"
	"xec/internal/eventbus"
	"xec/pkg/command"
	"xec/pkg/result"
)

var containerNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Adapter drives container.Engine (Docker or Podman) for the Docker
// adapter options.
type Adapter struct {
	engine container.Engine
	bus    *eventbus.Bus

	autoCreateEnabled bool
	autoCreateImage   string
	temp              *lifecycle.Registry[string]
}

// Option configures an Adapter at construction.
type Option func(*Adapter)

// WithAutoCreate enables spawning a detached helper container from
// image when a command targets a non-existent container.
func WithAutoCreate(image string) Option {
	return func(a *Adapter) {
		a.autoCreateEnabled = true
		a.autoCreateImage = image
	}
}

// WithEventBus attaches the bus the adapter emits docker:exec,
// docker:run, and temp:cleanup events to.
func WithEventBus(bus *eventbus.Bus) Option {
	return func(a *Adapter) { a.bus = bus }
}

// New returns an Adapter driving eng (typically container.AutoDetectEngine()'s result).
func New(eng container.Engine, opts ...Option) *Adapter {
	a := &Adapter{engine: eng}
	for _, o := range opts {
		o(a)
	}
	if a.temp == nil {
		a.temp = lifecycle.New(func(name string) error {
			return a.engine.Remove(context.Background(), name, true)
		})
	}
	return a
}

func (a *Adapter) Name() string { return "docker" }

func (a *Adapter) Available(ctx context.Context) bool { return a.engine.Available() }

// Dispose removes every owned temp container, newest first, swallowing
// individual removal errors but emitting temp:cleanup for each with
// that container's own removal error (nil on success).
func (a *Adapter) Dispose(ctx context.Context) error {
	entries := a.temp.Snapshot()
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	for _, e := range entries {
		err := a.temp.Evict(e.Key)
		a.emit(eventbus.KindTempCleanup, map[string]any{"container": e.Value, "error": err})
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
	opts, ok := cmd.AdapterOptions.(command.DockerOptions)
	if !ok {
		return result.Result{}, &result.Error{Kind: result.ErrorKindInvalidArgument, Message: "command is not scoped to the docker adapter"}
	}

	if opts.Container != "" && !containerNameRe.MatchString(opts.Container) {
		return result.Result{}, &result.Error{Kind: result.ErrorKindInvalidArgument, Message: fmt.Sprintf("invalid container name %q", opts.Container)}
	}

	mode := opts.RunMode
	if mode == "" || mode == command.DockerRunModeAuto {
		mode = a.detectMode(ctx, opts)
	}

	switch mode {
	case command.DockerRunModeExec:
		return a.execMode(ctx, cmd, opts)
	default:
		return a.runMode(ctx, cmd, opts)
	}
}

func (a *Adapter) detectMode(ctx context.Context, opts command.DockerOptions) command.DockerRunMode {
	if opts.Container != "" {
		if exists, _ := a.containerExists(ctx, opts.Container); exists {
			return command.DockerRunModeExec
		}
		if a.autoCreateEnabled {
			return command.DockerRunModeExec // auto-create path also lands in exec, after spawning
		}
	}
	return command.DockerRunModeRun
}

func (a *Adapter) containerExists(ctx context.Context, name string) (bool, error) {
	return a.engine.ContainerExists(ctx, name)
}

func (a *Adapter) execMode(ctx context.Context, cmd command.Command, opts command.DockerOptions) (result.Result, error) {
	started := time.Now()

	name := opts.Container
	exists, _ := a.containerExists(ctx, name)
	if !exists {
		if !a.autoCreateEnabled {
			return a.targetNotFound(name, started)
		}
		created, err := a.autoCreate(ctx, opts)
		if err != nil {
			return result.Result{}, &result.Error{Kind: result.ErrorKindAdapterUnavailable, Message: "failed to auto-create container", Cause: err}
		}
		name = created
	}

	runOpts := toRunOptions(cmd, opts)
	a.emit(eventbus.KindDockerExec, map[string]any{"container": name})

	rr, err := a.engine.Exec(ctx, name, append([]string{cmd.Program}, cmd.Args...), runOpts)
	return a.toResult(cmd, rr, err, started, name)
}

func (a *Adapter) runMode(ctx context.Context, cmd command.Command, opts command.DockerOptions) (result.Result, error) {
	started := time.Now()

	runOpts := toRunOptions(cmd, opts)
	runOpts.Image = opts.Image
	runOpts.Remove = true
	runOpts.Command = append([]string{cmd.Program}, cmd.Args...)
	if cmd.Shell.Enabled {
		line := cmd.Program
		for _, arg := range cmd.Args {
			line += " " + arg
		}
		runOpts.Command = []string{"sh", "-c", line}
	}

	a.emit(eventbus.KindDockerRun, map[string]any{"image": opts.Image})

	rr, err := a.engine.Run(ctx, runOpts)
	return a.toResult(cmd, rr, err, started, "")
}

func (a *Adapter) autoCreate(ctx context.Context, opts command.DockerOptions) (string, error) {
	image := a.autoCreateImage
	if image == "" {
		image = "alpine:latest"
	}
	name := fmt.Sprintf("xec-temp-%d", time.Now().UnixNano())
	_, err := a.temp.Acquire(name, func() (string, error) {
		_, runErr := a.engine.Run(ctx, container.RunOptions{
			Image:   image,
			Name:    name,
			Command: []string{"sleep", "infinity"},
		})
		return name, runErr
	})
	return name, err
}

func (a *Adapter) targetNotFound(name string, started time.Time) (result.Result, error) {
	res := result.Result{
		ExitCode:  result.ExitCodeTargetNotFound,
		Stderr:    []byte(fmt.Sprintf("container %q not found", name)),
		Adapter:   a.Name(),
		Container: name,
		StartedAt: started,
		EndedAt:   time.Now(),
	}
	return res, &result.Error{Kind: result.ErrorKindTargetNotFound, Message: res.Text(), Result: &res}
}

func toRunOptions(cmd command.Command, opts command.DockerOptions) container.RunOptions {
	return container.RunOptions{
		WorkDir:    opts.Workdir,
		Env:        mergeEnv(cmd.Env, opts.Env),
		Volumes:    opts.Volumes,
		Ports:      opts.Ports,
		TTY:        opts.TTY,
		Interactive: cmd.Stdin != nil || cmd.StdinBytes != nil,
	}
}

func mergeEnv(a, b map[string]string) map[string]string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func (a *Adapter) toResult(cmd command.Command, rr *container.RunResult, err error, started time.Time, containerName string) (result.Result, error) {
	res := result.Result{
		Command:   cmd.Program,
		StartedAt: started,
		EndedAt:   time.Now(),
		Adapter:   a.Name(),
		Container: containerName,
	}
	res.Duration = res.EndedAt.Sub(res.StartedAt)

	if rr != nil {
		res.ExitCode = rr.ExitCode
		if rr.ContainerID != "" {
			res.Container = rr.ContainerID
		}
	}
	if err != nil {
		return res, &result.Error{Kind: result.ErrorKindInternal, Message: "docker command failed", Result: &res, Cause: err}
	}
	return res, nil
}
