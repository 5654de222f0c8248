// Package flow turns a script into its ordered list of statement texts.
package flow

import "strings"

// Terminator separates statements within a script.
const Terminator = ';'

// Flow is an ordered sequence of raw statement strings. Order is
// significant: statements are compiled strictly in this order.
type Flow []string

// Split breaks a script on statement terminators. Terminators inside
// quoted literals ('…', "…", `…`) and comments (-- … and /* … */) are not
// treated as separators. Statements that are empty once trimmed are dropped.
// Comments are kept in the statement text; the parser skips them.
func Split(script string) Flow {
	var (
		out   Flow
		start int
		quote byte
	)

	flush := func(end int) {
		if s := strings.TrimSpace(script[start:end]); s != "" && !onlyComments(s) {
			out = append(out, s)
		}
	}

	for i := 0; i < len(script); i++ {
		ch := script[i]
		if quote != 0 {
			if ch == quote {
				// Doubled quote is an escaped quote in SQL.
				if i+1 < len(script) && script[i+1] == quote {
					i++
					continue
				}
				quote = 0
			}
			continue
		}

		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == '-' && i+1 < len(script) && script[i+1] == '-':
			if nl := strings.IndexByte(script[i:], '\n'); nl >= 0 {
				i += nl
			} else {
				i = len(script)
			}
		case ch == '/' && i+1 < len(script) && script[i+1] == '*':
			if end := strings.Index(script[i+2:], "*/"); end >= 0 {
				i += end + 3
			} else {
				i = len(script)
			}
		case ch == Terminator:
			flush(i)
			start = i + 1
		}
	}
	if start < len(script) {
		flush(len(script))
	}
	return out
}

// onlyComments reports whether s consists solely of comments and whitespace.
func onlyComments(s string) bool {
	for len(s) > 0 {
		s = strings.TrimSpace(s)
		switch {
		case s == "":
			return true
		case strings.HasPrefix(s, "--"):
			nl := strings.IndexByte(s, '\n')
			if nl < 0 {
				return true
			}
			s = s[nl+1:]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s, "*/")
			if end < 0 {
				return true
			}
			s = s[end+2:]
		default:
			return false
		}
	}
	return true
}

// Len returns the number of statements in the flow.
func (f Flow) Len() int { return len(f) }
