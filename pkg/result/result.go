// SPDX-License-Identifier: MPL-2.0

// Package result defines the uniform outcome and error taxonomy shared by
// every adapter: whatever environment a command ran in, callers see the
// same Result shape and the same closed set of ErrorKind values.
package result

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Result is the uniform outcome of a finished command. Every adapter
// populates the same fields regardless of where the command ran.
type Result struct {
	Stdout      []byte
	Stderr      []byte
	ExitCode    int
	Signal      string
	Command     string // the executed command line, after masking
	Duration    time.Duration
	StartedAt   time.Time
	EndedAt     time.Time
	Adapter     string
	Host        string
	Container   string
	Truncated   bool
}

// Ok reports whether the command completed with exit code zero and no
// terminating signal.
func (r Result) Ok() bool {
	return r.ExitCode == 0 && r.Signal == ""
}

// Succeeds is an alias for Ok that never panics or returns an error,
// suitable for use in boolean contexts right next to Fails.
func (r Result) Succeeds() bool { return r.Ok() }

// Fails reports the logical negation of Ok.
func (r Result) Fails() bool { return !r.Ok() }

// Text returns stdout trimmed of surrounding whitespace, decoded as UTF-8.
func (r Result) Text() string {
	return strings.TrimSpace(string(r.Stdout))
}

// Lines splits stdout on newlines, dropping a single trailing empty
// element produced by a final newline.
func (r Result) Lines() []string {
	s := string(r.Stdout)
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// JSON unmarshals stdout into v. Leading lines before the first `{` or
// `[` byte are skipped, tolerating banner/warning noise some CLIs (e.g.
// `docker inspect`, `kubectl get -o json`) print ahead of their JSON
// output. A parse failure is reported as an InvalidArgument Error
// rather than the raw json error, matching the engine's error taxonomy.
func (r Result) JSON(v any) error {
	dec := json.NewDecoder(bytes.NewReader(skipLeadingNoise(r.Stdout)))
	if err := dec.Decode(v); err != nil {
		return &Error{
			Kind:    ErrorKindInvalidArgument,
			Message: "stdout is not valid JSON",
			Result:  &r,
			Cause:   err,
		}
	}
	return nil
}

// skipLeadingNoise returns b starting at its first '{' or '[' byte, or
// b unchanged if neither appears.
func skipLeadingNoise(b []byte) []byte {
	if i := bytes.IndexAny(b, "{["); i > 0 {
		return b[i:]
	}
	return b
}

// Error is the error type raised by the engine's throwing policy. It
// always carries the ErrorKind taxonomy value, the masked command
// string, and the partial Result if one was constructed before failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Command string
	Result  *Result
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %s", e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, result.ErrTimeout) style sentinels by
// comparing ErrorKind rather than identity, since each Error is
// constructed fresh per command.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Sentinel Errors for use with errors.Is, one per ErrorKind. Adapters
// and the engine wrap these with command-specific context rather than
// returning them bare.
var (
	ErrCommandFailed       = &Error{Kind: ErrorKindCommandFailed}
	ErrTimeout             = &Error{Kind: ErrorKindTimeout}
	ErrCancelled           = &Error{Kind: ErrorKindCancelled}
	ErrAdapterUnavailable  = &Error{Kind: ErrorKindAdapterUnavailable}
	ErrConnectionError     = &Error{Kind: ErrorKindConnectionError}
	ErrAuthError           = &Error{Kind: ErrorKindAuthError}
	ErrTargetNotFound      = &Error{Kind: ErrorKindTargetNotFound}
	ErrBufferExceeded      = &Error{Kind: ErrorKindBufferExceeded}
	ErrInvalidArgument     = &Error{Kind: ErrorKindInvalidArgument}
	ErrInternal            = &Error{Kind: ErrorKindInternal}
)
