// SPDX-License-Identifier: MPL-2.0

// Package mask redacts sensitive values from captured output and
// echoed command strings before they reach an event subscriber or a
// Result. Masking preserves surrounding structure — a matched key and
// its separator survive; only the secret value is replaced.
package mask

import "regexp"

// Redacted is the literal substituted for every matched secret value.
const Redacted = "[REDACTED]"

// Pattern is one entry in the masking catalogue: a compiled regexp and
// the replacement template applied to every match, using Go regexp
// replacement syntax ($1, $2, ...) to keep whatever surrounding
// structure (keys, quotes, closing delimiters) the pattern captured.
type Pattern struct {
	Name  string
	re    *regexp.Regexp
	repl  string
}

// Masker applies an ordered catalogue of Patterns to text. The zero
// value is not usable; construct one with New or Default.
type Masker struct {
	patterns []Pattern
}

// New builds a Masker from an explicit pattern list, replacing the
// defaults entirely. Use Default().With(extra...) to extend instead of
// replace.
func New(patterns ...Pattern) *Masker {
	return &Masker{patterns: append([]Pattern(nil), patterns...)}
}

// Default returns a Masker preloaded with the standard catalogue:
// JSON secret-ish keys, Authorization headers, AWS credentials, GitHub
// tokens, --password/--secret flags, *_SECRET/_TOKEN/_KEY/_PASSWORD/
// _APIKEY env assignments, and PEM private-key blocks.
func Default() *Masker {
	return New(defaultCatalogue()...)
}

// With returns a new Masker with extra patterns appended after the
// receiver's own, without mutating the receiver.
func (m *Masker) With(extra ...Pattern) *Masker {
	return New(append(append([]Pattern(nil), m.patterns...), extra...)...)
}

// Mask applies every pattern in order and returns the redacted text.
// Masking is idempotent: Mask(Mask(s)) == Mask(s), since a Redacted
// literal never itself matches a secret pattern.
func (m *Masker) Mask(s string) string {
	out := s
	for _, p := range m.patterns {
		out = p.re.ReplaceAllString(out, p.repl)
	}
	return out
}

// MaskBytes applies Mask to already-decoded text carried as bytes,
// passing binary (non-UTF8-meaningful) data through unchanged is the
// caller's responsibility — Mask only ever sees text the caller chose
// to decode.
func (m *Masker) MaskBytes(b []byte) []byte {
	return []byte(m.Mask(string(b)))
}

func pat(name, expr, repl string) Pattern {
	return Pattern{Name: name, re: regexp.MustCompile(expr), repl: repl}
}

func defaultCatalogue() []Pattern {
	redacted := Redacted
	return []Pattern{
		pat("json-secret-value",
			`(?i)("(?:password|token|secret|api[_-]?key|client[_-]?secret)"\s*:\s*")[^"]*(")`,
			"${1}"+redacted+"${2}"),
		pat("authorization-header",
			`(?i)(Authorization:\s*(?:Bearer|Basic)\s+)\S+`,
			"${1}"+redacted),
		pat("aws-access-key",
			`AKIA[0-9A-Z]{16}`,
			redacted),
		pat("aws-secret-assignment",
			`(?i)(aws_secret_access_key\s*=\s*)\S+`,
			"${1}"+redacted),
		pat("github-token",
			`gh[ps]o?_[A-Za-z0-9]{20,}`,
			redacted),
		pat("cli-password-flag",
			`(--(?:password|secret)[= ])\S+`,
			"${1}"+redacted),
		pat("env-secret-assignment",
			`(?m)^(\w*(?:_SECRET|_TOKEN|_KEY|_PASSWORD|_APIKEY)=)\S+`,
			"${1}"+redacted),
		pat("pem-private-key",
			`(?s)(-----BEGIN [A-Z ]*PRIVATE KEY-----).*?(-----END [A-Z ]*PRIVATE KEY-----)`,
			"${1} "+redacted+" ${2}"),
	}
}
