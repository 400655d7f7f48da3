// SPDX-License-Identifier: MPL-2.0

package result

// ErrorKind is the closed enumeration of ways a command can fail to
// produce a clean Result. It is attached to Error so callers can branch
// on failure class without parsing messages.
type ErrorKind string

const (
	// ErrorKindCommandFailed means the command exited non-zero and the
	// caller did not opt out via Nothrow.
	ErrorKindCommandFailed ErrorKind = "CommandFailed"
	// ErrorKindTimeout means the engine killed the command after its
	// configured timeout elapsed.
	ErrorKindTimeout ErrorKind = "Timeout"
	// ErrorKindCancelled means the caller's cancellation handle fired.
	ErrorKindCancelled ErrorKind = "Cancelled"
	// ErrorKindAdapterUnavailable means the target adapter (or the
	// binary it drives) could not be used at all.
	ErrorKindAdapterUnavailable ErrorKind = "AdapterUnavailable"
	// ErrorKindConnectionError means a transport-level failure occurred
	// before a command channel was established (SSH/TCP).
	ErrorKindConnectionError ErrorKind = "ConnectionError"
	// ErrorKindAuthError means SSH or Docker/Kubernetes credential
	// material was rejected.
	ErrorKindAuthError ErrorKind = "AuthError"
	// ErrorKindTargetNotFound means the container or pod addressed by
	// the command does not exist.
	ErrorKindTargetNotFound ErrorKind = "TargetNotFound"
	// ErrorKindBufferExceeded means a stream exceeded MaxBuffer and the
	// adapter killed the command.
	ErrorKindBufferExceeded ErrorKind = "BufferExceeded"
	// ErrorKindInvalidArgument means pre-execution validation rejected
	// the command (bad quoting, nil interpolation, invalid names).
	ErrorKindInvalidArgument ErrorKind = "InvalidArgument"
	// ErrorKindInternal is the catch-all for anything else, carrying a
	// cause chain.
	ErrorKindInternal ErrorKind = "Internal"
)

// Reserved process exit codes used by the engine itself, not forwarded
// from the executed command.
const (
	ExitCodeKilledBeforeExit = -1
	ExitCodeTimeout          = 124
	ExitCodeTargetNotFound   = 125
)
