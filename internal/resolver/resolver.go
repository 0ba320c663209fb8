// Package resolver decides the next release version for a tier and
// negotiates it with the operator.
package resolver

import (
	"errors"
	"fmt"

	"github.com/lucasnoah/shipit/internal/version"
	"github.com/lucasnoah/shipit/internal/workflow"
)

// First is the version of the first staging release.
var First = version.MustParse("1.0.0.0")

// ErrNoBaseline is returned when rc or production has nothing below it yet.
var ErrNoBaseline = errors.New("no version released on the tier below")

// BehindError reports a staging lineage that has fallen behind an upper tier.
type BehindError struct {
	Current version.Version
	Above   version.Version
}

func (e *BehindError) Error() string {
	return fmt.Sprintf("staging version %s is behind %s on an upper tier; tag staging manually past it", e.Current, e.Above)
}

// PreferredNext computes the version the tier should be released as. below
// is the latest version of the feeding tier; above is the highest version
// among the tiers after it.
func PreferredNext(code workflow.Code, tier workflow.Tier, current, below, above *version.Version) (version.Version, error) {
	if !code.Has(tier) {
		return version.Version{}, fmt.Errorf("tier %s is not part of workflow %s", tier, code)
	}

	switch tier {
	case workflow.Staging:
		if current == nil {
			return First, nil
		}
		if above == nil {
			return current.Increment(), nil
		}
		if current.CompareCore(*above) >= 0 {
			return current.Increment(), nil
		}
		// Upper tier moved past the lineage: open the next micro lineage.
		next, err := version.New(current.Major(), current.Minor(), current.Micro()+1, 1)
		if err != nil {
			return version.Version{}, err
		}
		if next.CompareCore(*above) < 0 {
			return version.Version{}, &BehindError{Current: *current, Above: *above}
		}
		return next, nil

	case workflow.RC:
		if below == nil {
			return version.Version{}, fmt.Errorf("rc: %w", ErrNoBaseline)
		}
		if current == nil || below.CompareCore(*current) > 0 {
			return below.Core().WithPrerelease(1), nil
		}
		return current.Increment(), nil

	case workflow.Production:
		if below == nil {
			return version.Version{}, fmt.Errorf("prod: %w", ErrNoBaseline)
		}
		if current == nil || below.CompareCore(*current) > 0 {
			return below.Core(), nil
		}
		return current.Increment(), nil
	}
	return version.Version{}, fmt.Errorf("unknown tier %q", tier)
}

// ShapeError reports a version with the wrong form for its tier.
type ShapeError struct {
	Tier      workflow.Tier
	Candidate version.Version
	Want      string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s is not a valid %s version: want %s", e.Candidate, e.Tier, e.Want)
}

// FloorError reports a version below the preferred one.
type FloorError struct {
	Candidate version.Version
	Floor     version.Version
}

func (e *FloorError) Error() string {
	return fmt.Sprintf("%s is below %s", e.Candidate, e.Floor)
}

// shapes describes the accepted form per tier.
var shapes = map[workflow.Tier]struct {
	parts int
	pre   bool
	want  string
}{
	workflow.Staging:    {4, false, "major.minor.micro.nano"},
	workflow.RC:         {3, true, "major.minor.micro.rcN"},
	workflow.Production: {3, false, "major.minor.micro"},
}

// ValidateUserVersion checks an operator supplied candidate against the tier's
// shape and the preferred version's floor. needsConfirm is true for a valid
// candidate that differs from preferred.
func ValidateUserVersion(tier workflow.Tier, candidate, preferred version.Version) (needsConfirm bool, err error) {
	shape, ok := shapes[tier]
	if !ok {
		return false, fmt.Errorf("unknown tier %q", tier)
	}
	if candidate.Len() != shape.parts || candidate.IsPrerelease() != shape.pre {
		return false, &ShapeError{Tier: tier, Candidate: candidate, Want: shape.want}
	}

	c := candidate.CompareCore(preferred)
	if c == 0 {
		switch tier {
		case workflow.Staging:
			c = cmp(candidate.Nano(), preferred.Nano())
		case workflow.RC:
			cn, _ := candidate.Prerelease()
			pn, _ := preferred.Prerelease()
			c = cmp(cn, pn)
		}
	}
	if c < 0 {
		return false, &FloorError{Candidate: candidate, Floor: preferred}
	}
	return !candidate.Equal(preferred), nil
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
