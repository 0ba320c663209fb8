package shell

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner abstracts command execution for testability.
type Runner interface {
	Run(ctx context.Context, c Command) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements Runner with os/exec. err is only set when the process
// could not be started; a non-zero exit is reported through exitCode.
type ExecRunner struct {
	// Root, when set, runs every command inside `chroot Root`.
	Root string
	// Terminal receives the output of streamed commands.
	Terminal io.Writer
}

// cdExec changes into $0 and executes the remaining arguments. The directory
// and argv travel as positional parameters, never as script text.
const cdExec = `cd -- "$0" && exec "$@"`

// Argv returns the argument vector ExecRunner would execute for c, and the
// directory to start the process in.
func (r *ExecRunner) Argv(c Command) ([]string, string) {
	argv := c.Argv()
	if r.Root == "" {
		return argv, c.Dir
	}
	if c.Dir != "" {
		argv = append([]string{"/bin/sh", "-c", cdExec, c.Dir}, argv...)
	}
	return append([]string{"chroot", r.Root}, argv...), ""
}

func (r *ExecRunner) Run(ctx context.Context, c Command) (string, string, int, error) {
	argv, dir := r.Argv(c)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	if c.Stream && r.Terminal != nil {
		cmd.Stdout = io.MultiWriter(&stdoutBuf, r.Terminal)
		cmd.Stderr = io.MultiWriter(&stderrBuf, r.Terminal)
	}

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec %s: %w", c.Name, err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// ExitError reports a command that exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("exit code %d from %s", e.Code, e.Command)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Exec runs c and turns a non-zero exit into an *ExitError.
func Exec(ctx context.Context, r Runner, c Command) (string, error) {
	stdout, stderr, code, err := r.Run(ctx, c)
	if err != nil {
		return stdout, err
	}
	if code != 0 {
		if c.Stream {
			// already shown on the terminal
			stderr = ""
		}
		return stdout, &ExitError{Command: c.String(), Code: code, Stderr: stderr}
	}
	return stdout, nil
}
