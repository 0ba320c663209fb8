package prompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func newTestPrompter(input string) (*Prompter, *bytes.Buffer) {
	var out bytes.Buffer
	return New(strings.NewReader(input), &out), &out
}

func TestAsk(t *testing.T) {
	p, out := newTestPrompter("  1.2.0.3  \n")
	got, err := p.Ask("Next version?")
	if err != nil {
		t.Fatalf("Ask() error: %v", err)
	}
	if got != "1.2.0.3" {
		t.Errorf("Ask() = %q, want %q", got, "1.2.0.3")
	}
	if !strings.Contains(out.String(), "Next version?") {
		t.Errorf("output = %q, want question", out.String())
	}
}

func TestAskEmptyLine(t *testing.T) {
	p, _ := newTestPrompter("\n")
	got, err := p.Ask("?")
	if err != nil || got != "" {
		t.Errorf("Ask() = %q, %v; want empty, nil", got, err)
	}
}

func TestAskLastLineWithoutNewline(t *testing.T) {
	p, _ := newTestPrompter("yes")
	got, err := p.Ask("?")
	if err != nil || got != "yes" {
		t.Errorf("Ask() = %q, %v; want yes, nil", got, err)
	}
}

func TestAskEOF(t *testing.T) {
	p, _ := newTestPrompter("")
	if _, err := p.Ask("?"); !errors.Is(err, ErrNoInput) {
		t.Errorf("Ask() error = %v, want ErrNoInput", err)
	}
}

func TestChooseByNumberAndName(t *testing.T) {
	opts := []string{"stg", "rc", "prod"}

	p, _ := newTestPrompter("2\n")
	got, err := p.Choose("Environment?", opts)
	if err != nil || got != "rc" {
		t.Errorf("Choose(2) = %q, %v; want rc", got, err)
	}

	p, _ = newTestPrompter("PROD\n")
	got, err = p.Choose("Environment?", opts)
	if err != nil || got != "prod" {
		t.Errorf("Choose(PROD) = %q, %v; want prod", got, err)
	}
}

func TestChooseRepromptsOnInvalid(t *testing.T) {
	p, out := newTestPrompter("7\nqa\nstg\n")
	got, err := p.Choose("Environment?", []string{"stg", "prod"})
	if err != nil {
		t.Fatalf("Choose() error: %v", err)
	}
	if got != "stg" {
		t.Errorf("Choose() = %q, want stg", got)
	}
	if n := strings.Count(out.String(), "Environment?"); n != 3 {
		t.Errorf("question printed %d times, want 3", n)
	}
	if !strings.Contains(out.String(), `invalid choice "qa"`) {
		t.Errorf("output = %q, want invalid choice notice", out.String())
	}
}

func TestChooseEOFWhileReprompting(t *testing.T) {
	p, _ := newTestPrompter("nope\n")
	if _, err := p.Choose("?", []string{"a"}); !errors.Is(err, ErrNoInput) {
		t.Errorf("Choose() error = %v, want ErrNoInput", err)
	}
}

func TestChooseNoOptions(t *testing.T) {
	p, _ := newTestPrompter("1\n")
	if _, err := p.Choose("?", nil); err == nil {
		t.Error("expected error for empty option list")
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  Answer
	}{
		{"y\n", Yes},
		{"YES\n", Yes},
		{"n\n", No},
		{"c\n", Cancel},
		{"maybe\ncancel\n", Cancel},
	}
	for _, tt := range tests {
		p, _ := newTestPrompter(tt.input)
		got, err := p.Confirm("Use it?")
		if err != nil {
			t.Errorf("Confirm(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAnswerString(t *testing.T) {
	if Yes.String() != "yes" || No.String() != "no" || Cancel.String() != "cancel" {
		t.Errorf("unexpected Answer strings: %s %s %s", Yes, No, Cancel)
	}
}
