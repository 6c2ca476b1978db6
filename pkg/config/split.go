package config

import (
	"bytes"
	"strings"
	"unicode"
)

// Split2PartsBySpace splits a string into command name and arguments,
// at the first run of whitespace.
func Split2PartsBySpace(s string) []string {
	v := strings.SplitN(strings.TrimSpace(s), " ", 2)
	for i := range v {
		v[i] = strings.TrimSpace(v[i])
	}
	return v
}

// SplitQuotedFields is like strings.Fields but ignores spaces inside areas
// surrounded by the specified quote character. An empty quoted area yields
// an empty field.
// To specify a single quote use backslash to escape it: '\''
func SplitQuotedFields(in string, quote rune) []string {
	type stateEnum int
	const (
		inSpace stateEnum = iota
		inField
		inQuote
		inQuoteEscaped
	)
	state := inSpace
	r := []string{}
	var buf bytes.Buffer
	quoted := false

	flush := func() {
		if buf.Len() != 0 || quoted {
			r = append(r, buf.String())
		}
		buf.Reset()
		quoted = false
	}

	for _, ch := range in {
		switch state {
		case inSpace:
			if ch == quote {
				state = inQuote
				quoted = true
			} else if !unicode.IsSpace(ch) {
				buf.WriteRune(ch)
				state = inField
			}

		case inField:
			if ch == quote {
				state = inQuote
				quoted = true
			} else if unicode.IsSpace(ch) {
				flush()
				state = inSpace
			} else {
				buf.WriteRune(ch)
			}

		case inQuote:
			if ch == quote {
				state = inField
			} else if ch == '\\' {
				state = inQuoteEscaped
			} else {
				buf.WriteRune(ch)
			}

		case inQuoteEscaped:
			buf.WriteRune(ch)
			state = inQuote
		}
	}

	flush()
	return r
}
