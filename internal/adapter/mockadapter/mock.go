// SPDX-License-Identifier: MPL-2.0

// Package mockadapter provides an in-memory Adapter for tests that
// exercise the engine (retry, timeout, masking, events) without
// spawning real processes, connections, or containers.
package mockadapter

import (
	"context"
	"sync"

	"xec/pkg/command"
	"xec/pkg/result"
)

// Script is one scripted response, matched by MockOptions.Name (empty
// name matches any command that doesn't have a more specific script).
type Script struct {
	Result result.Result
	Err    error
}

// Adapter serves scripted Results keyed by MockOptions.Name, and
// records every Command it was asked to execute for assertions.
type Adapter struct {
	mu       sync.Mutex
	scripts  map[string]Script
	calls    []command.Command
	disposed bool
}

// New returns an empty mock Adapter; call On to script responses
// before use.
func New() *Adapter {
	return &Adapter{scripts: make(map[string]Script)}
}

// On registers the Result (and optional error) returned for commands
// whose MockOptions.Name equals name.
func (a *Adapter) On(name string, res result.Result, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scripts[name] = Script{Result: res, Err: err}
}

func (a *Adapter) Name() string { return "mock" }

func (a *Adapter) Available(ctx context.Context) bool { return true }

func (a *Adapter) Dispose(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disposed = true
	return nil
}

// Disposed reports whether Dispose has been called, for assertions.
func (a *Adapter) Disposed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disposed
}

// Calls returns every Command passed to Execute, in order.
func (a *Adapter) Calls() []command.Command {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]command.Command(nil), a.calls...)
}

func (a *Adapter) Execute(ctx context.Context, cmd command.Command) (result.Result, error) {
	a.mu.Lock()
	a.calls = append(a.calls, cmd)
	var name string
	if opts, ok := cmd.AdapterOptions.(command.MockOptions); ok {
		name = opts.Name
	}
	script, ok := a.scripts[name]
	if !ok {
		script, ok = a.scripts[""]
	}
	a.mu.Unlock()

	if !ok {
		return result.Result{Adapter: a.Name(), Command: cmd.Program}, nil
	}
	res := script.Result
	res.Adapter = a.Name()
	if res.Command == "" {
		res.Command = cmd.Program
	}
	return res, script.Err
}

func (a *Adapter) ExecuteSync(cmd command.Command) (result.Result, error) {
	return a.Execute(context.Background(), cmd)
}
