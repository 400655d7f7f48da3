// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"sort"
)

// Frag is one piece of a template built by Build: either a literal
// fragment of the command line or a typed value to interpolate. Build
// walks literals and values in the order given, emitting quoted tokens
// for the values and splitting the result on whitespace in literals.
//
// Supported value kinds, mirroring the interpolation rules: string,
// []string (expanded to N tokens), map[string]any (expanded to --key
// value pairs; true ⇒ bare flag, false/nil ⇒ omitted), Raw (caller-
// trusted, unquoted), and nil (always rejected).
type Frag struct {
	Literal string
	Value   any
	isValue bool
}

// Lit wraps a literal fragment of the command template.
func Lit(s string) Frag { return Frag{Literal: s} }

// Val wraps an interpolated value.
func Val(v any) Frag { return Frag{Value: v, isValue: true} }

// Raw marks a string as caller-trusted: it is emitted unquoted into the
// token stream, bypassing POSIX quoting. Use only for fragments that
// are themselves already safe shell syntax (e.g. a pipe operator).
type Raw string

// Build assembles program and a token list from a sequence of Frags,
// quoting every interpolated value per the interpolation rules. It
// returns ErrInvalidArgument if any value is nil, an unsupported type,
// or a byte slice used outside of stdin position.
func Build(program string, frags ...Frag) (Command, error) {
	var args []string
	for _, f := range frags {
		if !f.isValue {
			for _, tok := range splitWhitespace(f.Literal) {
				args = append(args, tok)
			}
			continue
		}
		toks, err := tokenize(f.Value)
		if err != nil {
			return Command{}, err
		}
		args = append(args, toks...)
	}
	return New(program, args...), nil
}

// Template mirrors the template-literal call style ($`cmd ${x}`): the
// first token produced by walking frags becomes Program, the rest
// become Args. It is a thin convenience over Build for callers who
// don't already know the program name separately.
func Template(frags ...Frag) (Command, error) {
	cmd, err := Build("", frags...)
	if err != nil {
		return Command{}, err
	}
	if len(cmd.Args) == 0 {
		return Command{}, fmt.Errorf("%w: empty command template", ErrInvalidArgument)
	}
	cmd.Program = cmd.Args[0]
	cmd.Args = cmd.Args[1:]
	return cmd, nil
}

func tokenize(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: interpolated nil value", ErrInvalidArgument)
	case Raw:
		return []string{string(val)}, nil
	case string:
		return []string{QuotePOSIX(val)}, nil
	case []string:
		out := make([]string, 0, len(val))
		for _, s := range val {
			out = append(out, QuotePOSIX(s))
		}
		return out, nil
	case []byte:
		return nil, fmt.Errorf("%w: byte buffer may only be used as stdin, not in command position", ErrInvalidArgument)
	case map[string]any:
		return flagsToTokens(val)
	case Command:
		// A nested Command in value position is captured as a pipe
		// source elsewhere (Pipe); interpolating it directly as an
		// argument is not meaningful.
		return nil, fmt.Errorf("%w: nested Command must be composed with Pipe, not interpolated", ErrInvalidArgument)
	default:
		return nil, fmt.Errorf("%w: unsupported interpolation type %T", ErrInvalidArgument, v)
	}
}

// flagsToTokens expands a mapping of flag name to value into
// "--key value" pairs, in sorted key order for determinism. true
// emits a bare flag; false or nil omits the flag entirely.
func flagsToTokens(m map[string]any) ([]string, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		flag := "--" + k
		switch v := m[k].(type) {
		case nil:
			continue
		case bool:
			if v {
				out = append(out, flag)
			}
		case string:
			out = append(out, flag, QuotePOSIX(v))
		case fmt.Stringer:
			out = append(out, flag, QuotePOSIX(v.String()))
		default:
			out = append(out, flag, QuotePOSIX(fmt.Sprint(v)))
		}
	}
	return out, nil
}

// splitWhitespace splits on ASCII spaces, collapsing runs and dropping
// empty tokens, matching how a literal template fragment like
// "echo " is expected to contribute exactly one token.
func splitWhitespace(s string) []string {
	var toks []string
	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\t' || s[i] == '\n' {
			if start >= 0 {
				toks = append(toks, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		toks = append(toks, s[start:])
	}
	return toks
}
