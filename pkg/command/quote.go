// SPDX-License-Identifier: MPL-2.0

package command

import "strings"

// QuotePOSIX shell-quotes s using POSIX single-quote escaping: the value
// is wrapped in single quotes and any embedded single quote is replaced
// with '\'' (close quote, escaped quote, reopen quote). The result is
// safe to place as one token in a sh/bash/dash command line.
func QuotePOSIX(s string) string {
	if s == "" {
		return "''"
	}
	if !needsQuoting(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			b.WriteString(`'\''`)
			continue
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('\'')
	return b.String()
}

// needsQuoting reports whether s contains any byte that is not safe to
// place unquoted in a POSIX shell word.
func needsQuoting(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.' || c == '/' || c == ':' || c == '=' || c == ',' || c == '@':
		default:
			return true
		}
	}
	return false
}
