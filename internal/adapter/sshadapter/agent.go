// SPDX-License-Identifier: MPL-2.0

package sshadapter

import (
	"net"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// agentSigners adapts a connection to ssh-agent into the callback
// ssh.PublicKeysCallback expects.
func agentSigners(conn net.Conn) func() ([]ssh.Signer, error) {
	ag := agent.NewClient(conn)
	return ag.Signers
}
