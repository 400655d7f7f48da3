// SPDX-License-Identifier: MPL-2.0

package dockeradapter

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"xec/internal/container"
	"xec/internal/eventbus"
	"xec/pkg/result"
)

// cliRunner is satisfied by *container.DockerEngine and
// *container.PodmanEngine through their embedded *BaseCLIEngine, but
// isn't part of the container.Engine interface, so it's probed for
// with an optional-interface check (the same idiom remotedocker uses
// for ExecArgs).
type cliRunner interface {
	RunCommandCombined(ctx context.Context, args ...string) ([]byte, error)
}

func (a *Adapter) cliRunner() (cliRunner, error) {
	cr, ok := a.engine.(cliRunner)
	if !ok {
		return nil, &result.Error{Kind: result.ErrorKindAdapterUnavailable, Message: "engine does not support direct CLI passthrough"}
	}
	return cr, nil
}

// runCLI shells out args through the engine's CLI binary, capturing
// combined stdout/stderr. A CLI run that exits non-zero is reported
// through Result.ExitCode with a nil error; a failure to run the CLI
// at all is returned as an Internal error. Behaviour is pass-through: these
// higher-order operations only add argument validation, output
// capture, and error mapping on top of the underlying docker/podman
// subcommand.
func (a *Adapter) runCLI(ctx context.Context, args ...string) (result.Result, error) {
	started := time.Now()
	cr, err := a.cliRunner()
	if err != nil {
		return result.Result{}, err
	}

	a.emit(eventbus.KindDockerOp, map[string]any{"args": args})
	out, runErr := cr.RunCommandCombined(ctx, args...)
	res := result.Result{
		Stdout:    out,
		Command:   strings.Join(args, " "),
		Adapter:   a.Name(),
		StartedAt: started,
		EndedAt:   time.Now(),
	}
	res.Duration = res.EndedAt.Sub(res.StartedAt)

	if runErr == nil {
		res.ExitCode = 0
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	res.ExitCode = result.ExitCodeKilledBeforeExit
	return res, &result.Error{Kind: result.ErrorKindInternal, Message: "docker command failed", Result: &res, Cause: runErr}
}

// Build builds an image from a Dockerfile. Unlike the rest of this
// file it delegates to the engine's own Build (already part of
// container.Engine) instead of the CLI passthrough, since build
// streams its output live rather than returning it after the fact.
func (a *Adapter) Build(ctx context.Context, opts container.BuildOptions) (result.Result, error) {
	started := time.Now()
	err := a.engine.Build(ctx, opts)

	res := result.Result{Command: "build " + opts.Tag, Adapter: a.Name(), StartedAt: started, EndedAt: time.Now()}
	res.Duration = res.EndedAt.Sub(res.StartedAt)
	if err != nil {
		res.ExitCode = result.ExitCodeKilledBeforeExit
		return res, &result.Error{Kind: result.ErrorKindInternal, Message: "docker build failed", Result: &res, Cause: err}
	}
	res.ExitCode = 0
	return res, nil
}

// Push pushes image to its configured registry.
func (a *Adapter) Push(ctx context.Context, image string) (result.Result, error) {
	if image == "" {
		return result.Result{}, &result.Error{Kind: result.ErrorKindInvalidArgument, Message: "image is required"}
	}
	return a.runCLI(ctx, "push", image)
}

// Pull pulls image from its configured registry.
func (a *Adapter) Pull(ctx context.Context, image string) (result.Result, error) {
	if image == "" {
		return result.Result{}, &result.Error{Kind: result.ErrorKindInvalidArgument, Message: "image is required"}
	}
	return a.runCLI(ctx, "pull", image)
}

// Tag tags source as target.
func (a *Adapter) Tag(ctx context.Context, source, target string) (result.Result, error) {
	if source == "" || target == "" {
		return result.Result{}, &result.Error{Kind: result.ErrorKindInvalidArgument, Message: "source and target are required"}
	}
	return a.runCLI(ctx, "tag", source, target)
}

// Cp copies files between a container and the local filesystem,
// mirroring docker cp's <src> <dst> order (prefix either side with
// "container:" to select the container end).
func (a *Adapter) Cp(ctx context.Context, src, dst string) (result.Result, error) {
	if src == "" || dst == "" {
		return result.Result{}, &result.Error{Kind: result.ErrorKindInvalidArgument, Message: "src and dst are required"}
	}
	return a.runCLI(ctx, "cp", src, dst)
}

// Logs returns containerID's logs without following. Pass tail<=0 for
// the full buffer.
func (a *Adapter) Logs(ctx context.Context, containerID string, tail int, timestamps bool) (result.Result, error) {
	if containerID == "" {
		return result.Result{}, &result.Error{Kind: result.ErrorKindInvalidArgument, Message: "containerID is required"}
	}
	args := []string{"logs"}
	if tail > 0 {
		args = append(args, "--tail", strconv.Itoa(tail))
	}
	if timestamps {
		args = append(args, "-t")
	}
	args = append(args, containerID)
	return a.runCLI(ctx, args...)
}

// Stats takes one non-streaming resource-usage sample of containerID
// and unmarshals it into v.
func (a *Adapter) Stats(ctx context.Context, containerID string, v any) error {
	if containerID == "" {
		return &result.Error{Kind: result.ErrorKindInvalidArgument, Message: "containerID is required"}
	}
	res, err := a.runCLI(ctx, "stats", "--no-stream", "--format", "{{json .}}", containerID)
	if err != nil {
		return err
	}
	return res.JSON(v)
}

// Network runs `docker network <subcommand> <args...>` (create, rm,
// connect, disconnect, inspect, ls, prune), a thin passthrough.
func (a *Adapter) Network(ctx context.Context, subcommand string, args ...string) (result.Result, error) {
	if subcommand == "" {
		return result.Result{}, &result.Error{Kind: result.ErrorKindInvalidArgument, Message: "subcommand is required"}
	}
	full := append([]string{"network", subcommand}, args...)
	return a.runCLI(ctx, full...)
}

// Volume runs `docker volume <subcommand> <args...>` (create, rm,
// inspect, ls, prune), a thin passthrough.
func (a *Adapter) Volume(ctx context.Context, subcommand string, args ...string) (result.Result, error) {
	if subcommand == "" {
		return result.Result{}, &result.Error{Kind: result.ErrorKindInvalidArgument, Message: "subcommand is required"}
	}
	full := append([]string{"volume", subcommand}, args...)
	return a.runCLI(ctx, full...)
}

// Compose runs `docker compose <args...>` (up, down, ps, ...), a thin
// passthrough over the compose plugin.
func (a *Adapter) Compose(ctx context.Context, args ...string) (result.Result, error) {
	if len(args) == 0 {
		return result.Result{}, &result.Error{Kind: result.ErrorKindInvalidArgument, Message: "compose subcommand is required"}
	}
	full := append([]string{"compose"}, args...)
	return a.runCLI(ctx, full...)
}
