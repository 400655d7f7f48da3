// SPDX-License-Identifier: MPL-2.0

// Package xec exposes a process-wide default execution engine with
// every adapter wired in, for callers that don't need to manage their
// own Engine lifecycle. Build returns the underlying *engine.Engine
// when a caller does want explicit control (its own retry policy,
// event subscriptions, or disposal timing).
package xec

import (
	"context"
	"sync"
	"time"

	"xec/internal/adapter/dockeradapter"
	"xec/internal/adapter/k8sadapter"
	"xec/internal/adapter/localadapter"
	"xec/internal/adapter/mockadapter"
	"xec/internal/adapter/remotedocker"
	"xec/internal/adapter/sshadapter"
	"xec/internal/container"
	"xec/internal/engine"
	"xec/internal/engineconfig"
	"xec/pkg/command"
	"xec/pkg/result"
)

var (
	defaultOnce   sync.Once
	defaultEngine *engine.Engine
)

// Default returns the process-wide Engine, constructing it on first
// use from engineconfig.Load's resolved configuration.
func Default() *engine.Engine {
	defaultOnce.Do(func() {
		cfg, _ := engineconfig.Load()
		defaultEngine = Build(cfg)
	})
	return defaultEngine
}

// Build constructs a fresh Engine with every adapter wired in: local,
// mock, Docker (auto-detecting Docker/Podman), SSH, remote-docker
// (SSH + Docker composed), and Kubernetes (kubectl).
func Build(cfg engineconfig.Config) *engine.Engine {
	eng := engine.New(
		engine.WithDefaults(engine.Defaults{
			Timeout:        time.Duration(cfg.DefaultTimeoutMs) * time.Millisecond,
			MaxBuffer:      cfg.MaxBufferBytes,
			ThrowOnNonZero: true,
			KillGraceMs:    5000,
		}),
		engine.WithLogLevel(cfg.LogLevel),
	)

	eng.RegisterAdapter(command.AdapterLocal, localadapter.New())
	eng.RegisterAdapter(command.AdapterMock, mockadapter.New())

	sshAdapter := sshadapter.New()
	eng.RegisterAdapter(command.AdapterSSH, sshAdapter)

	var dockerEngine container.Engine = container.NewDockerEngine()
	if !dockerEngine.Available() {
		if podman := container.Engine(container.NewPodmanEngine()); podman.Available() {
			dockerEngine = podman
		}
	}
	var dockerOpts []dockeradapter.Option
	if cfg.Docker.AutoCreateEnable {
		dockerOpts = append(dockerOpts, dockeradapter.WithAutoCreate(cfg.Docker.AutoCreateImage))
	}
	eng.RegisterAdapter(command.AdapterDocker, dockeradapter.New(dockerEngine, dockerOpts...))
	eng.RegisterAdapter(command.AdapterRemoteDocker, remotedocker.New(sshAdapter, dockerEngine))
	eng.RegisterAdapter(command.AdapterKubernetes, k8sadapter.New(
		k8sadapter.WithLogReconnect(cfg.K8sLogReconnect),
	))

	return eng
}

// Run executes cmd against the process-wide default Engine.
func Run(ctx context.Context, cmd command.Command) (result.Result, error) {
	return Default().Run(ctx, cmd)
}

// Local builds a Command targeting the local host.
func Local(program string, args ...string) command.Command {
	return command.New(program, args...).Local()
}

// Dispose releases the default Engine's adapters, if one was ever
// constructed. Safe to call even when Default was never invoked.
func Dispose(ctx context.Context) error {
	if defaultEngine == nil {
		return nil
	}
	return defaultEngine.Dispose(ctx)
}
