// SPDX-License-Identifier: MPL-2.0

package localadapter

import (
	"context"
	"testing"
	"time"

	"xec/pkg/command"
)

func TestExecuteEchoInterpolation(t *testing.T) {
	t.Parallel()

	a := New()
	cmd, err := command.Build("echo", command.Val("hello world"))
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	res, err := a.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if res.Text() != "hello world" {
		t.Errorf("Text() = %q, want %q", res.Text(), "hello world")
	}
	if res.Adapter != "local" {
		t.Errorf("Adapter = %q, want local", res.Adapter)
	}
}

func TestExecuteShellInjectionNeutralised(t *testing.T) {
	t.Parallel()

	a := New()
	x := "'; rm -rf /"
	cmd, err := command.Build("echo", command.Val(x))
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	res, err := a.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if res.Text() != x {
		t.Errorf("Text() = %q, want literal %q", res.Text(), x)
	}
}

func TestExecuteTimeout(t *testing.T) {
	t.Parallel()

	a := New(WithKillGrace(50 * time.Millisecond))
	cmd := command.New("sleep", "5")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := a.Execute(ctx, cmd)
	elapsed := time.Since(start)

	if elapsed > 400*time.Millisecond {
		t.Errorf("Execute() took %v, want well under 400ms", elapsed)
	}
	if err == nil {
		t.Fatal("Execute() expected a Timeout error")
	}
	if res.ExitCode != 124 {
		t.Errorf("ExitCode = %d, want 124", res.ExitCode)
	}
	if res.Signal != "SIGTERM" {
		t.Errorf("Signal = %q, want SIGTERM", res.Signal)
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	t.Parallel()

	a := New()
	cmd := command.New("false")

	res, err := a.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Execute() unexpected error: %v", err)
	}
	if res.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", res.ExitCode)
	}
	if res.Ok() {
		t.Error("Ok() = true for a failing command")
	}
}
