// SPDX-License-Identifier: MPL-2.0

package sshadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"xec/pkg/command"
)

func TestNewPooledClientCapsChannelsWhenMultiplexDisabled(t *testing.T) {
	t.Parallel()

	pc := newPooledClient(command.SSHOptions{}, nil)
	defer close(pc.stopKeepAlive)

	assert.Equal(t, 1, cap(pc.sem), "sem capacity when Multiplex is disabled")
}

func TestNewPooledClientAllowsMultipleChannelsWhenMultiplexEnabled(t *testing.T) {
	t.Parallel()

	pc := newPooledClient(command.SSHOptions{Multiplex: true}, nil)
	defer close(pc.stopKeepAlive)

	assert.Equal(t, maxMultiplexedChannels, cap(pc.sem), "sem capacity when Multiplex is enabled")
}

func TestKeepAliveLoopReturnsImmediatelyWhenDisabled(t *testing.T) {
	t.Parallel()

	pc := &pooledClient{stopKeepAlive: make(chan struct{})}
	done := make(chan struct{})
	go func() {
		pc.keepAliveLoop(command.SSHOptions{KeepAliveMs: 0})
		close(done)
	}()
	<-done
}
