// SPDX-License-Identifier: MPL-2.0

package dockeradapter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"xec/internal/container"
	"xec/pkg/command"
	"xec/pkg/result"
)

type fakeEngine struct {
	containers map[string]bool
	execResult *container.RunResult
	execErr    error
	runResult  *container.RunResult
	runErr     error
}

func (f *fakeEngine) Name() string         { return "fake" }
func (f *fakeEngine) Available() bool      { return true }
func (f *fakeEngine) Version(ctx context.Context) (string, error) { return "1.0", nil }
func (f *fakeEngine) Build(ctx context.Context, opts container.BuildOptions) error { return nil }
func (f *fakeEngine) Remove(ctx context.Context, containerID string, force bool) error { return nil }
func (f *fakeEngine) RemoveImage(ctx context.Context, image string, force bool) error  { return nil }
func (f *fakeEngine) BinaryPath() string                                              { return "/usr/bin/fake" }
func (f *fakeEngine) BuildRunArgs(opts container.RunOptions) []string                 { return nil }
func (f *fakeEngine) InspectImage(ctx context.Context, image string) (string, error)   { return "{}", nil }

func (f *fakeEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	return true, nil
}

func (f *fakeEngine) ContainerExists(ctx context.Context, containerID string) (bool, error) {
	return f.containers[containerID], nil
}

func (f *fakeEngine) Run(ctx context.Context, opts container.RunOptions) (*container.RunResult, error) {
	return f.runResult, f.runErr
}

func (f *fakeEngine) Exec(ctx context.Context, containerID string, cmd []string, opts container.RunOptions) (*container.RunResult, error) {
	return f.execResult, f.execErr
}

func TestExecuteAgainstMissingContainerIsTargetNotFound(t *testing.T) {
	t.Parallel()

	fe := &fakeEngine{containers: map[string]bool{}}
	a := New(fe)

	cmd := command.New("echo", "hi").Docker(command.DockerOptions{Container: "does-not-exist"}).WithNothrow(true)
	res, err := a.Execute(context.Background(), cmd)

	if res.ExitCode != result.ExitCodeTargetNotFound {
		t.Errorf("ExitCode = %d, want %d", res.ExitCode, result.ExitCodeTargetNotFound)
	}
	if err == nil {
		t.Fatal("Execute() expected a TargetNotFound error")
	}
	var rerr *result.Error
	if !errors.As(err, &rerr) || rerr.Kind != result.ErrorKindTargetNotFound {
		t.Errorf("error = %v, want a TargetNotFound *result.Error", err)
	}
	if !strings.Contains(string(res.Stderr), "does-not-exist") {
		t.Errorf("result stderr does not mention the missing container: %s", res.Stderr)
	}
}

func TestExecuteAgainstExistingContainerUsesExecMode(t *testing.T) {
	t.Parallel()

	fe := &fakeEngine{
		containers: map[string]bool{"web": true},
		execResult: &container.RunResult{ContainerID: "web", ExitCode: 0},
	}
	a := New(fe)

	cmd := command.New("echo", "hi").Docker(command.DockerOptions{Container: "web"})
	res, err := a.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Execute() unexpected error: %v", err)
	}
	if res.ExitCode != 0 || res.Container != "web" {
		t.Errorf("res = %+v", res)
	}
}

func TestInvalidContainerNameIsRejected(t *testing.T) {
	t.Parallel()

	fe := &fakeEngine{containers: map[string]bool{}}
	a := New(fe)

	cmd := command.New("echo").Docker(command.DockerOptions{Container: "../etc/passwd"})
	_, err := a.Execute(context.Background(), cmd)
	if err == nil {
		t.Fatal("Execute() expected InvalidArgument for a malformed container name")
	}
}
