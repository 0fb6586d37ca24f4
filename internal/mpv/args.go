package mpv

import "strings"

// ParseArgs splits a string of command-line arguments, respecting quotes
func ParseArgs(argsString string) []string {
	var (
		args     []string
		current  strings.Builder
		quote    rune
		hasToken bool
	)

	flush := func() {
		if hasToken {
			args = append(args, current.String())
			current.Reset()
			hasToken = false
		}
	}

	for _, r := range argsString {
		switch {
		case quote != 0 && r == quote:
			quote = 0
		case quote == 0 && (r == '"' || r == '\''):
			quote = r
			hasToken = true
		case quote == 0 && (r == ' ' || r == '\t'):
			flush()
		default:
			current.WriteRune(r)
			hasToken = true
		}
	}
	flush()

	return args
}
