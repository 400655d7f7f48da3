// SPDX-License-Identifier: MPL-2.0

// Package eventbus implements the engine's process-wide lifecycle
// emitter. Subscribers register against an event Kind and an optional
// selector; delivery is synchronous from the publisher's perspective,
// and a handler that panics or is otherwise misbehaved cannot take
// down command execution — its failure is caught and re-emitted as an
// internal:error event instead.
package eventbus

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Kind names one of the fixed event kinds emitted by the engine, plus
// an open door for user-defined kinds.
type Kind string

const (
	KindCommandStart    Kind = "command:start"
	KindCommandOutput   Kind = "command:output"
	KindCommandComplete Kind = "command:complete"
	KindCommandError    Kind = "command:error"
	KindSSHConnect      Kind = "ssh:connect"
	KindSSHClose        Kind = "ssh:close"
	KindDockerExec      Kind = "docker:exec"
	KindDockerRun       Kind = "docker:run"
	KindDockerOp        Kind = "docker:op"
	KindK8sExec         Kind = "k8s:exec"
	KindK8sPortForward  Kind = "k8s:port-forward"
	KindK8sLogReconnect Kind = "k8s:log-reconnect"
	KindTempCleanup     Kind = "temp:cleanup"
	KindInternalError   Kind = "internal:error"
)

// Event is one emission on the bus.
type Event struct {
	Kind    Kind
	Adapter string // selector: which adapter emitted this
	Command string // selector: masked command line, for command-prefix matching
	Payload any
}

// Handler receives an Event. It must not block for long; a slow
// handler back-pressures the publisher only for the duration of its
// own call.
type Handler func(Event)

// Selector filters which events reach a Handler. A nil Selector
// matches everything.
type Selector struct {
	Adapter       string // exact match if non-empty
	CommandPrefix string // prefix match if non-empty
}

func (s Selector) matches(e Event) bool {
	if s.Adapter != "" && s.Adapter != e.Adapter {
		return false
	}
	if s.CommandPrefix != "" && (len(e.Command) < len(s.CommandPrefix) || e.Command[:len(s.CommandPrefix)] != s.CommandPrefix) {
		return false
	}
	return true
}

type subscription struct {
	id       uint64
	kind     Kind
	selector Selector
	handler  Handler
}

// Bus is a hierarchical, copy-on-write event emitter. The zero value is
// not usable; construct one with New.
type Bus struct {
	subs  atomic.Pointer[[]subscription]
	mu    sync.Mutex // serialises subscribe/unsubscribe only
	nextID uint64
}

// New returns a ready-to-use Bus with no subscribers.
func New() *Bus {
	b := &Bus{}
	empty := make([]subscription, 0)
	b.subs.Store(&empty)
	return b
}

// On subscribes handler to kind, optionally narrowed by selector, and
// returns an unsubscribe function. Unsubscribe is idempotent.
func (b *Bus) On(kind Kind, selector Selector, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	sub := subscription{id: id, kind: kind, selector: selector, handler: handler}

	old := *b.subs.Load()
	next := make([]subscription, len(old), len(old)+1)
	copy(next, old)
	next = append(next, sub)
	b.subs.Store(&next)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	old := *b.subs.Load()
	next := make([]subscription, 0, len(old))
	for _, s := range old {
		if s.id != id {
			next = append(next, s)
		}
	}
	b.subs.Store(&next)
}

// Emit delivers e synchronously to every matching subscriber, in
// subscription order. A handler panic is recovered and re-published as
// KindInternalError rather than propagating to the caller.
func (b *Bus) Emit(e Event) {
	subs := *b.subs.Load()
	for _, s := range subs {
		if s.kind != e.Kind || !s.selector.matches(e) {
			continue
		}
		b.dispatch(s, e)
	}
}

func (b *Bus) dispatch(s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			// Avoid recursing forever if an internal:error handler
			// itself panics.
			if e.Kind == KindInternalError {
				return
			}
			b.Emit(Event{
				Kind:    KindInternalError,
				Adapter: e.Adapter,
				Payload: fmt.Errorf("event handler for %s panicked: %v", s.kind, r),
			})
		}
	}()
	s.handler(e)
}
