// SPDX-License-Identifier: MPL-2.0

package remotedocker

import (
	"context"
	"strings"
	"testing"

	"xec/internal/container"
	"xec/pkg/command"
)

func TestExecArgsUsesExecSubcommand(t *testing.T) {
	t.Parallel()

	eng := container.NewDockerEngine()
	opts := command.RemoteDockerOptions{Docker: command.DockerOptions{Container: "web", Workdir: "/app"}}
	cmd := command.New("echo", "hi")

	args := execArgs(eng, opts, cmd)

	if args[0] != "exec" {
		t.Fatalf("args[0] = %q, want \"exec\"", args[0])
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "web") || !strings.Contains(joined, "/app") {
		t.Errorf("args = %v, want container name and workdir present", args)
	}
}

func TestRunArgsUsesRunSubcommandAndRemove(t *testing.T) {
	t.Parallel()

	eng := container.NewDockerEngine()
	opts := command.RemoteDockerOptions{Docker: command.DockerOptions{Image: "alpine:latest"}}
	cmd := command.New("echo", "hi")

	args := runArgs(eng, opts, cmd)

	if args[0] != "run" {
		t.Fatalf("args[0] = %q, want \"run\"", args[0])
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--rm") || !strings.Contains(joined, "alpine:latest") {
		t.Errorf("args = %v, want --rm and the image present", args)
	}
}

func TestInvalidContainerNameIsRejected(t *testing.T) {
	t.Parallel()

	a := New(nil, container.NewDockerEngine())
	cmd := command.New("echo").RemoteDocker(command.RemoteDockerOptions{
		Docker: command.DockerOptions{Container: "../etc/passwd"},
	})
	_, err := a.Execute(context.Background(), cmd)
	if err == nil {
		t.Fatal("Execute() expected InvalidArgument for a malformed container name")
	}
}
