// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"bytes"
	"context"

	"xec/pkg/command"
	"xec/pkg/result"
)

// runPipeline executes every stage of a Command built with Pipe,
// feeding each stage's captured stdout into the next stage's stdin.
// When two adjacent stages target different adapters there is no
// shared filesystem to stage a temp file through, so the boundary is
// always an in-memory buffer regardless of adapter kind.
func (e *Engine) runPipeline(ctx context.Context, cmd command.Command) (result.Result, error) {
	stages := cmd.Pipeline()

	var (
		last     result.Result
		lastErr  error
		exitCodes []int
		stdin    []byte
	)

	for i, stage := range stages {
		if stdin != nil {
			stage = stage.WithStdinString(string(stdin))
		}
		res, err := e.runOne(ctx, stage)
		exitCodes = append(exitCodes, res.ExitCode)
		last, lastErr = res, err
		if err != nil && i < len(stages)-1 {
			// A non-terminal stage failing aborts the pipeline; the
			// caller still sees that stage's Result and error.
			break
		}
		stdin = bytes.Clone(res.Stdout)
	}

	last.ExitCode = command.ExitCode(exitCodes)
	return last, lastErr
}
