// SPDX-License-Identifier: MPL-2.0

// Package remotedocker composes the SSH adapter with the Docker
// argument builders from internal/container: it opens (or reuses) a
// pooled SSH connection and ships a docker/podman argv built the same
// way the local Docker adapter builds one, so remote and local Docker
// commands share one argument-shaping implementation.
package remotedocker

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"xec/internal/adapter/sshadapter"
	"xec/internal/container"
	"xec/pkg/command"
	"xec/pkg/result"
)

var containerNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Adapter drives docker/podman over a pooled SSH connection, using
// binaryName ("docker" or "podman") to build argv through a
// locally-constructed container.Engine (never executed locally — only
// its argument builders run on this host).
type Adapter struct {
	ssh        *sshadapter.Adapter
	argBuilder container.Engine
}

// New returns an Adapter that builds docker argv (via argBuilder,
// typically container.NewDockerEngine() or NewPodmanEngine()) and ships
// it over sshAdapter's pooled connections.
func New(sshAdapter *sshadapter.Adapter, argBuilder container.Engine) *Adapter {
	return &Adapter{ssh: sshAdapter, argBuilder: argBuilder}
}

func (a *Adapter) Name() string { return "remote-docker" }

func (a *Adapter) Available(ctx context.Context) bool { return a.ssh.Available(ctx) }

func (a *Adapter) Dispose(ctx context.Context) error { return a.ssh.Dispose(ctx) }

func (a *Adapter) Execute(ctx context.Context, cmd command.Command) (result.Result, error) {
	opts, ok := cmd.AdapterOptions.(command.RemoteDockerOptions)
	if !ok {
		return result.Result{}, &result.Error{Kind: result.ErrorKindInvalidArgument, Message: "command is not scoped to the remote-docker adapter"}
	}

	if opts.Docker.Container != "" && !containerNameRe.MatchString(opts.Docker.Container) {
		return result.Result{}, &result.Error{Kind: result.ErrorKindInvalidArgument, Message: fmt.Sprintf("invalid container name %q", opts.Docker.Container)}
	}

	mode := opts.Docker.RunMode
	if mode == "" || mode == command.DockerRunModeAuto {
		mode = command.DockerRunModeRun
		if opts.Docker.Container != "" {
			mode = command.DockerRunModeExec
		}
	}

	var argv []string
	switch mode {
	case command.DockerRunModeExec:
		argv = execArgs(a.argBuilder, opts, cmd)
	default:
		argv = runArgs(a.argBuilder, opts, cmd)
	}

	binary := "docker"
	if a.argBuilder.Name() != "" {
		binary = a.argBuilder.Name()
	}

	remote := command.New(binary, argv...).SSH(opts.SSH)
	if cmd.Cwd != "" {
		remote = remote.WithCwd(cmd.Cwd)
	}
	remote = remote.WithTimeout(cmd.Timeout).WithNothrow(cmd.Nothrow)
	if cmd.Stdin != nil {
		remote = remote.WithStdin(cmd.Stdin)
	} else if cmd.StdinBytes != nil {
		remote = remote.WithStdinString(string(cmd.StdinBytes))
	}

	started := time.Now()
	res, err := a.ssh.Execute(ctx, remote)
	res.Adapter = a.Name()
	res.Container = opts.Docker.Container
	res.StartedAt = started
	return res, err
}

// execArgsBuilder is satisfied by *container.DockerEngine and
// *container.PodmanEngine through their embedded *BaseCLIEngine, but
// is not part of the container.Engine interface itself, so it's probed
// for with an optional-interface check.
type execArgsBuilder interface {
	ExecArgs(containerID string, command []string, opts container.RunOptions) []string
}

func execArgs(eng container.Engine, opts command.RemoteDockerOptions, cmd command.Command) []string {
	runOpts := toRunOptions(cmd, opts.Docker)
	full := append([]string{cmd.Program}, cmd.Args...)
	if b, ok := eng.(execArgsBuilder); ok {
		return b.ExecArgs(opts.Docker.Container, full, runOpts)
	}
	args := []string{"exec"}
	if opts.Docker.Workdir != "" {
		args = append(args, "-w", opts.Docker.Workdir)
	}
	args = append(args, opts.Docker.Container)
	return append(args, full...)
}

func runArgs(eng container.Engine, opts command.RemoteDockerOptions, cmd command.Command) []string {
	runOpts := toRunOptions(cmd, opts.Docker)
	runOpts.Image = opts.Docker.Image
	runOpts.Remove = true
	runOpts.Command = append([]string{cmd.Program}, cmd.Args...)
	return eng.BuildRunArgs(runOpts)
}

func toRunOptions(cmd command.Command, opts command.DockerOptions) container.RunOptions {
	return container.RunOptions{
		WorkDir: opts.Workdir,
		Env:     mergeEnv(cmd.Env, opts.Env),
		Volumes: opts.Volumes,
		Ports:   opts.Ports,
		TTY:     opts.TTY,
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
