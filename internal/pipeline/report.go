package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lucasnoah/shipit/internal/version"
)

// Report is the machine-readable summary of a run.
type Report struct {
	Outcome    string `json:"outcome"` // "released", "halted", "checkpoint"
	Stage      string `json:"stage,omitempty"`
	Reason     string `json:"reason,omitempty"`
	URL        string `json:"url,omitempty"`
	Workflow   string `json:"workflow,omitempty"`
	Tier       string `json:"tier,omitempty"`
	Current    string `json:"current,omitempty"`
	Below      string `json:"below,omitempty"`
	Above      string `json:"above,omitempty"`
	Preferred  string `json:"preferred,omitempty"`
	Version    string `json:"version,omitempty"`
	Checkpoint string `json:"checkpoint,omitempty"`
}

func optional(v *version.Version) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// NewReport summarizes r.
func NewReport(r *Result) Report {
	rep := Report{
		Stage:      r.Stage,
		Workflow:   string(r.State.Workflow),
		Tier:       string(r.State.Tier),
		Current:    optional(r.State.Current),
		Below:      optional(r.State.Below),
		Above:      optional(r.State.Above),
		Preferred:  optional(r.State.Preferred),
		Version:    optional(r.State.Next),
		Checkpoint: r.Checkpoint,
	}
	switch {
	case r.Halt != nil:
		rep.Outcome = "halted"
		rep.Reason = r.Halt.Reason
		rep.URL = r.Halt.URL
	case r.Checkpoint != "":
		rep.Outcome = "checkpoint"
	default:
		rep.Outcome = "released"
	}
	return rep
}

// WriteReport writes the run summary as JSON to path atomically.
func WriteReport(path string, r *Result) error {
	data, err := json.MarshalIndent(NewReport(r), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

// writeAtomic writes data to a temp file in the same directory, then renames
// it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpName, path, err)
	}
	tmpName = ""
	return nil
}
