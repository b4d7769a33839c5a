package collaborator

import (
	"strings"
)

// Command is one external invocation.
type Command struct {
	// Name is the executable, resolved through PATH unless it contains a
	// path separator.
	Name string
	Args []string
	// Dir is the working directory; empty inherits the caller's.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
}

// Describe renders the command as a shell line, used by dry runs and logs.
func (c Command) Describe() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Name))
	for _, arg := range c.Args {
		parts = append(parts, quote(arg))
	}
	line := strings.Join(parts, " ")
	if c.Dir != "" {
		line = "(cd " + quote(c.Dir) + " && " + line + ")"
	}
	return line
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !isShellSafe(r) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isShellSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("-_./:=,+@%", r)
}
