package resolver

import (
	"errors"
	"fmt"
	"io"

	"github.com/lucasnoah/shipit/internal/console"
	"github.com/lucasnoah/shipit/internal/prompt"
	"github.com/lucasnoah/shipit/internal/version"
	"github.com/lucasnoah/shipit/internal/workflow"
)

// Asker is the part of the operator prompt Negotiate needs.
type Asker interface {
	Ask(question string) (string, error)
	Confirm(question string) (prompt.Answer, error)
}

// Negotiate shows the preferred version and lets the operator accept it or
// enter another. Invalid input is reported on out and asked again; a cancel
// returns prompt.ErrCanceled.
func Negotiate(a Asker, out io.Writer, tier workflow.Tier, preferred version.Version) (version.Version, error) {
	fmt.Fprintf(out, "Preferred %s version: %s\n", tier, console.Highlight(preferred.String()))
	for {
		line, err := a.Ask("Version to release (enter to accept):")
		if err != nil {
			return version.Version{}, fmt.Errorf("reading version: %w", err)
		}
		if line == "" {
			return preferred, nil
		}

		candidate, err := version.Parse(line)
		if err != nil {
			fmt.Fprintln(out, console.Warn(err.Error()))
			continue
		}
		needsConfirm, err := ValidateUserVersion(tier, candidate, preferred)
		if err != nil {
			var shapeErr *ShapeError
			var floorErr *FloorError
			if errors.As(err, &shapeErr) || errors.As(err, &floorErr) {
				fmt.Fprintln(out, console.Warn(err.Error()))
				continue
			}
			return version.Version{}, err
		}
		if !needsConfirm {
			return candidate, nil
		}

		answer, err := a.Confirm(fmt.Sprintf("Release %s instead of %s?", candidate, preferred))
		if err != nil {
			return version.Version{}, fmt.Errorf("reading confirmation: %w", err)
		}
		switch answer {
		case prompt.Yes:
			return candidate, nil
		case prompt.Cancel:
			return version.Version{}, prompt.ErrCanceled
		}
	}
}
