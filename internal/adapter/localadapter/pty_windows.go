// SPDX-License-Identifier: MPL-2.0

//go:build windows

package localadapter

import (
	"os"
	"os/exec"
)

// startPty is a no-op on Windows: there is no PTY, so the command
// inherits the console's stdio streams directly instead.
func startPty(c *exec.Cmd) (*os.File, error) {
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.Stdin = os.Stdin
	return nil, c.Start()
}

// inheritWinsize is a no-op on Windows: there is no PTY to resize.
func inheritWinsize(ptmx *os.File) {}
