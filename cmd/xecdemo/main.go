// SPDX-License-Identifier: MPL-2.0

// Command xecdemo is not a CLI front end: it takes no flags and no
// subcommands. It exists purely to exercise pkg/xec's public API end
// to end (run one local command, run one scripted mock command,
// dispose cleanly) the way a caller embedding the engine would.
package main

import (
	"context"
	"fmt"
	"os"

	"xec/pkg/command"
	"xec/pkg/xec"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "xecdemo:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	defer xec.Dispose(ctx)

	res, err := xec.Run(ctx, xec.Local("echo", "hello from xec"))
	if err != nil {
		return fmt.Errorf("local echo: %w", err)
	}
	fmt.Printf("local: exit=%d stdout=%q\n", res.ExitCode, res.Stdout)

	mockCmd := command.New("status-check").Mock(command.MockOptions{Name: "status-check"})
	res, err = xec.Run(ctx, mockCmd)
	if err != nil {
		return fmt.Errorf("mock status-check: %w", err)
	}
	fmt.Printf("mock: exit=%d adapter=%s\n", res.ExitCode, res.Adapter)

	return nil
}
