// SPDX-License-Identifier: MPL-2.0

// Package adapter defines the capability every execution back-end
// implements and the registry the engine uses to dispatch a Command to
// the adapter named by its AdapterOptions. There is no inheritance
// here: each concrete adapter is a distinct type satisfying Adapter,
// selected by a tagged union rather than a type hierarchy.
package adapter

import (
	"context"

	"xec/pkg/command"
	"xec/pkg/result"
)

// Adapter executes Commands against one kind of target environment.
type Adapter interface {
	// Name identifies the adapter for events and Result.Adapter (e.g.
	// "local", "ssh", "docker", "remote-docker", "kubernetes", "mock").
	Name() string

	// Execute runs cmd to completion (or until ctx is done) and
	// returns a populated Result. Execute itself never applies the
	// throwing policy or masking — that is the engine's job.
	Execute(ctx context.Context, cmd command.Command) (result.Result, error)

	// Available reports whether this adapter can currently serve
	// commands (binary discovered, connection reachable, etc.).
	Available(ctx context.Context) bool

	// Dispose releases everything the adapter owns (pooled
	// connections, temp containers). Dispose is idempotent.
	Dispose(ctx context.Context) error
}

// SyncAdapter is implemented by adapters that can run a command without
// an event loop suspension point, per engine.runSync in the external
// interface contract (Local and Mock).
type SyncAdapter interface {
	Adapter
	ExecuteSync(cmd command.Command) (result.Result, error)
}

// Killer is implemented by adapters whose in-flight executions can be
// killed out of band, used by the engine's timeout and cancellation
// paths.
type Killer interface {
	// Kill escalates from SIGTERM to SIGKILL (or the adapter's nearest
	// equivalent) for the execution identified by token, which is
	// whatever opaque value Execute chose to associate with it.
	Kill(ctx context.Context, token any, graceful bool) error
}

// Registry maps an AdapterKind to the concrete Adapter instance that
// serves it. The engine owns exactly one Registry for its lifetime.
type Registry struct {
	adapters map[command.AdapterKind]Adapter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[command.AdapterKind]Adapter)}
}

// Register associates kind with a, replacing any previous registration.
func (r *Registry) Register(kind command.AdapterKind, a Adapter) {
	r.adapters[kind] = a
}

// Get returns the adapter registered for kind, or nil if none is.
func (r *Registry) Get(kind command.AdapterKind) Adapter {
	return r.adapters[kind]
}

// GetForCommand resolves the adapter that cmd.AdapterOptions selects.
func (r *Registry) GetForCommand(cmd command.Command) (Adapter, error) {
	opts := cmd.AdapterOptions
	if opts == nil {
		return nil, &result.Error{Kind: result.ErrorKindInvalidArgument, Message: "command has no adapter options"}
	}
	a := r.Get(opts.Kind())
	if a == nil {
		return nil, &result.Error{
			Kind:    result.ErrorKindAdapterUnavailable,
			Message: "no adapter registered for kind " + string(opts.Kind()),
		}
	}
	return a, nil
}

// All returns every registered adapter, in no particular order. Used
// by Dispose to close every adapter regardless of dispatch kind.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	seen := make(map[Adapter]bool, len(r.adapters))
	for _, a := range r.adapters {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
