// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package localadapter

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// startPty starts c attached to a new pseudo-terminal, returning the
// PTY's controlling end.
func startPty(c *exec.Cmd) (*os.File, error) {
	return pty.Start(c)
}

// inheritWinsize copies the calling terminal's current dimensions onto
// ptmx so full-screen programs (less, vim, htop) render correctly.
func inheritWinsize(ptmx *os.File) {
	_ = pty.InheritSize(os.Stdin, ptmx)
}
