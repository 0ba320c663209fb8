// Package shell builds and runs external commands. Commands are argv lists,
// never shell strings, so configuration values and credentials cannot change
// the shape of a command line.
package shell

import (
	"regexp"
	"strings"
)

// Command is a single program invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory, relative to the host root when one is set.
	Dir string
	// Stream copies output to the runner's terminal writer while it is captured.
	Stream bool
	// Redact lists substrings (tokens, passwords) masked in String().
	Redact []string
}

// New returns a command for name with args.
func New(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

// Script returns a command running a user supplied script through bash. This is
// the only place a shell parses text, and the text comes from the operator's
// own configuration.
func Script(script string) Command {
	return New("/bin/bash", "-c", script)
}

// In returns a copy of c that runs in dir.
func (c Command) In(dir string) Command {
	c.Dir = dir
	return c
}

// Streamed returns a copy of c whose output is shown live.
func (c Command) Streamed() Command {
	c.Stream = true
	return c
}

// Redacting returns a copy of c that masks secrets when displayed.
func (c Command) Redacting(secrets ...string) Command {
	for _, s := range secrets {
		if s != "" {
			c.Redact = append(c.Redact, s)
		}
	}
	return c
}

// InContainer wraps c into `docker exec <container> ...`. An empty container
// returns c unchanged.
func (c Command) InContainer(container string) Command {
	if container == "" {
		return c
	}
	w := c
	w.Name = "docker"
	w.Args = append([]string{"exec", container, c.Name}, c.Args...)
	return w
}

// Argv returns the full argument vector.
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// String renders c as a copy-pasteable shell line with secrets masked.
func (c Command) String() string {
	argv := c.Argv()
	quoted := make([]string, len(argv))
	for i, a := range argv {
		for _, s := range c.Redact {
			a = strings.ReplaceAll(a, s, "REDACTED")
		}
		quoted[i] = Quote(a)
	}
	line := strings.Join(quoted, " ")
	if c.Dir != "" {
		line = "(cd " + Quote(c.Dir) + " && " + line + ")"
	}
	return line
}

var safeWord = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// Quote quotes s for display in a POSIX shell.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if safeWord.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
