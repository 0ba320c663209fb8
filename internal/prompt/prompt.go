// Package prompt reads operator answers from a line-oriented terminal. It
// works over plain pipes so it can be scripted and tested.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lucasnoah/shipit/internal/console"
)

// ErrCanceled is returned when the operator cancels a confirmation.
var ErrCanceled = errors.New("operation canceled")

// ErrNoInput is returned when input ends before an answer was given.
var ErrNoInput = errors.New("no input: stdin closed")

// Answer is the reply to a yes/no/cancel question.
type Answer int

const (
	No Answer = iota
	Yes
	Cancel
)

func (a Answer) String() string {
	switch a {
	case Yes:
		return "yes"
	case Cancel:
		return "cancel"
	default:
		return "no"
	}
}

// Prompter asks questions on out and reads answers from in.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// New returns a Prompter reading lines from in and writing to out.
func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// readLine returns the next line without its trailing newline. A final line
// without a newline is still returned; io.EOF with no data is ErrNoInput.
func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrNoInput
		}
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Ask prints question and returns the trimmed answer, which may be empty.
func (p *Prompter) Ask(question string) (string, error) {
	fmt.Fprintf(p.out, "%s ", question)
	return p.readLine()
}

// Choose offers a closed set of options and keeps asking until the operator
// picks one, either by its number or by its exact text.
func (p *Prompter) Choose(question string, options []string) (string, error) {
	if len(options) == 0 {
		return "", errors.New("choose: no options")
	}
	for {
		fmt.Fprintln(p.out, question)
		for i, o := range options {
			fmt.Fprintf(p.out, "  [%d] %s\n", i+1, o)
		}
		fmt.Fprint(p.out, "> ")

		line, err := p.readLine()
		if err != nil {
			return "", err
		}
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(options) {
			return options[n-1], nil
		}
		for _, o := range options {
			if strings.EqualFold(line, o) {
				return o, nil
			}
		}
		fmt.Fprintln(p.out, console.Warn(fmt.Sprintf("invalid choice %q", line)))
	}
}

// Confirm asks a yes/no/cancel question until it gets one of y, n or c.
func (p *Prompter) Confirm(question string) (Answer, error) {
	for {
		fmt.Fprintf(p.out, "%s [y/n/c]: ", question)
		line, err := p.readLine()
		if err != nil {
			return No, err
		}
		switch strings.ToLower(line) {
		case "y", "yes":
			return Yes, nil
		case "n", "no":
			return No, nil
		case "c", "cancel":
			return Cancel, nil
		}
		fmt.Fprintln(p.out, console.Warn("answer y, n or c"))
	}
}
