// SPDX-License-Identifier: MPL-2.0

package command

// Pipe composes the receiver's stdout into next's stdin, left-
// associative: A.Pipe(B).Pipe(C) runs A | B | C. The engine is
// responsible for materialising the intermediate streams — when two
// stages target different adapters there is no shared filesystem to
// stage a temp file through, so each boundary becomes an in-memory
// pipe regardless of how many adapters are involved.
//
// The returned Command represents the whole pipeline: AdapterOptions
// and most scalar fields are inherited from the last stage, since that
// is the stage whose exit code and streams become the pipeline's own
// (see Pipeline for per-stage access).
func (c Command) Pipe(next Command) Command {
	stages := c.Pipeline()
	stages = append(stages, next.Pipeline()...)

	head := next.clone()
	head.pipeline = stages
	return head
}

// ExitCode computes the exit code a finished pipeline reports: the
// rightmost non-zero code among the per-stage codes, or zero if every
// stage succeeded. Callers pass the exit codes in stage order.
func ExitCode(stageExitCodes []int) int {
	for i := len(stageExitCodes) - 1; i >= 0; i-- {
		if stageExitCodes[i] != 0 {
			return stageExitCodes[i]
		}
	}
	return 0
}
