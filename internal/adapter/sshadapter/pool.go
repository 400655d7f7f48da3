// SPDX-License-Identifier: MPL-2.0

// Package sshadapter drives commands over a pooled SSH connection per
// {host,user,port,auth-fingerprint}, opening a fresh channel per
// command and reusing the underlying client the way the pool contract
// requires.
package sshadapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"xec/internal/adapter/lifecycle"
	"xec/pkg/command"
)

// pooledClient is one entry in the connection pool: a live SSH client
// plus the keep-alive state the reaper loop needs.
type pooledClient struct {
	id            string
	client        *ssh.Client
	failures      int
	sem           chan struct{} // multiplex cap; nil means unlimited concurrent channels
	stopKeepAlive chan struct{}
}

// keepAliveLoop sends periodic keepalive@xec global requests over the
// client connection, evicting it (by closing the underlying client)
// after opts.KeepAliveMaxFail consecutive failures. A KeepAliveMs of
// zero disables the loop entirely.
func (pc *pooledClient) keepAliveLoop(opts command.SSHOptions) {
	interval := time.Duration(opts.KeepAliveMs) * time.Millisecond
	if interval <= 0 {
		return
	}
	maxFail := opts.KeepAliveMaxFail
	if maxFail <= 0 {
		maxFail = 3
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-pc.stopKeepAlive:
			return
		case <-ticker.C:
			ok, _, err := pc.client.SendRequest("keepalive@xec", true, nil)
			if err != nil || !ok {
				pc.failures++
				if pc.failures >= maxFail {
					_ = pc.client.Close()
					return
				}
				continue
			}
			pc.failures = 0
		}
	}
}

// Pool is the SSH connection pool described in the component design:
// at most one client per fingerprint, reference counted, with periodic
// keep-alive probes and idle eviction.
type Pool struct {
	registry *lifecycle.Registry[*pooledClient]
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	p := &Pool{}
	p.registry = lifecycle.New(func(c *pooledClient) error {
		close(c.stopKeepAlive)
		return c.client.Close()
	})
	return p
}

// maxMultiplexedChannels caps concurrent channels on one connection
// when Multiplex is enabled; spec.md leaves the cap unspecified beyond
// "configurable", so a fixed conservative cap stands in for a
// per-command override.
const maxMultiplexedChannels = 8

func newPooledClient(opts command.SSHOptions, c *ssh.Client) *pooledClient {
	pc := &pooledClient{id: uuid.NewString(), client: c, stopKeepAlive: make(chan struct{})}
	if opts.Multiplex {
		pc.sem = make(chan struct{}, maxMultiplexedChannels)
	} else {
		pc.sem = make(chan struct{}, 1)
	}
	go pc.keepAliveLoop(opts)
	return pc
}

// Fingerprint computes the pool key for opts: a hash of host, port,
// user, and auth material, never logged in full.
func Fingerprint(opts command.SSHOptions) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s|%s|%s", opts.Host, opts.Port, opts.User, opts.Auth, opts.KeyPath)
	return hex.EncodeToString(h.Sum(nil))
}

// Acquire returns a live client for opts, its pool connection id (for
// event correlation), and a release func the caller must call exactly
// once (typically deferred) when done with it. Acquire establishes a
// connection if the pool holds none yet, or probes and reconnects if
// the cached one is dead. When opts.Multiplex is set, Acquire blocks
// until a channel slot is free, capping concurrent channels on one
// underlying connection.
func (p *Pool) Acquire(ctx context.Context, opts command.SSHOptions) (*ssh.Client, string, func(), error) {
	key := Fingerprint(opts)
	create := func() (*pooledClient, error) {
		c, err := dial(ctx, opts)
		if err != nil {
			return nil, err
		}
		return newPooledClient(opts, c), nil
	}

	pc, err := p.registry.Acquire(key, create)
	if err != nil {
		return nil, "", nil, err
	}

	if !probe(pc.client) {
		_ = p.registry.Evict(key)
		pc, err = p.registry.Acquire(key, create)
		if err != nil {
			return nil, "", nil, err
		}
	}

	if pc.sem != nil {
		select {
		case pc.sem <- struct{}{}:
		case <-ctx.Done():
			p.registry.Release(key)
			return nil, "", nil, ctx.Err()
		}
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if pc.sem != nil {
			<-pc.sem
		}
		p.registry.Release(key)
	}
	return pc.client, pc.id, release, nil
}

// Evict forces the client for opts to close regardless of reference
// count.
func (p *Pool) Evict(opts command.SSHOptions) error {
	return p.registry.Evict(Fingerprint(opts))
}

// CloseAll tears down every pooled client, for engine disposal.
func (p *Pool) CloseAll() []error {
	return p.registry.RemoveAll()
}

// ReapIdle evicts every client with no active references idle longer
// than idleFor.
func (p *Pool) ReapIdle(idleFor time.Duration) {
	for _, key := range p.registry.IdleSince(idleFor) {
		_ = p.registry.Evict(key)
	}
}

func dial(ctx context.Context, opts command.SSHOptions) (*ssh.Client, error) {
	auth, err := authMethod(opts)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(opts.ReadyTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cfg := &ssh.ClientConfig{
		User:            opts.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // host key policy is out of this adapter's scope
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(opts.Host, portOrDefault(opts.Port))
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ssh connect to %s: %w", addr, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func portOrDefault(port int) string {
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%d", port)
}

func authMethod(opts command.SSHOptions) (ssh.AuthMethod, error) {
	switch opts.Auth {
	case command.SSHAuthPassword:
		return ssh.Password(opts.Password), nil
	case command.SSHAuthKey:
		key, err := os.ReadFile(opts.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key %s: %w", opts.KeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key %s: %w", opts.KeyPath, err)
		}
		return ssh.PublicKeys(signer), nil
	case command.SSHAuthAgent:
		sock := os.Getenv("SSH_AUTH_SOCK")
		if sock == "" {
			return nil, fmt.Errorf("ssh agent auth requested but SSH_AUTH_SOCK is not set")
		}
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return nil, fmt.Errorf("dial ssh agent: %w", err)
		}
		return ssh.PublicKeysCallback(agentSigners(conn)), nil
	default:
		return nil, fmt.Errorf("unsupported ssh auth method %q", opts.Auth)
	}
}

// probe issues a one-shot liveness check (running `true` on a new
// session) that must succeed within one second.
func probe(c *ssh.Client) bool {
	done := make(chan bool, 1)
	go func() {
		sess, err := c.NewSession()
		if err != nil {
			done <- false
			return
		}
		defer sess.Close()
		done <- sess.Run("true") == nil
	}()

	select {
	case ok := <-done:
		return ok
	case <-time.After(1 * time.Second):
		return false
	}
}
