// Package cmdline splits backlog task lines into an executable and its arguments.
package cmdline

import "strings"

// Split breaks a task line on spaces and tabs. A span opened by ' or " and
// closed by the same character is kept in one token; the quote characters stay
// in the token as written and nothing is unescaped.
func Split(line string) []string {
	var (
		tokens  []string
		current strings.Builder
		quote   rune
	)

	for _, r := range line {
		switch {
		case r == '\'' || r == '"':
			if quote == 0 {
				quote = r
			} else if quote == r {
				quote = 0
			}
			current.WriteRune(r)
		case (r == ' ' || r == '\t') && quote == 0:
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}
