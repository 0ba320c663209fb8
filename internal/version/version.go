// Package version implements the release version scheme used for image tags
// and git tags: three or four numeric parts with an optional rcN prerelease.
//
//	1.4.0       production release
//	1.4.0.7     staging build
//	1.4.0.rc2   release candidate
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PrereleaseLabel is the only prerelease label the scheme knows about.
const PrereleaseLabel = "rc"

// Version is an immutable release version. The zero value is not a valid
// version; use Parse or New.
type Version struct {
	parts  [4]int
	n      int // number of numeric parts, 3 or 4
	hasPre bool
	pre    int
}

// versionRe accepts an optional v prefix, 3-4 dotted numbers and an optional
// rc suffix written as ".rc1", "-rc1" or "rc1".
var versionRe = regexp.MustCompile(`^[vV]?(\d+(?:\.\d+){2,3})(?:[.-]?(rc)(\d+))?$`)

// Parse parses the text form of a version.
func Parse(s string) (Version, error) {
	m := versionRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}

	fields := strings.Split(m[1], ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		parts[i] = n
	}

	if m[2] == "" {
		return New(parts...)
	}
	pre, err := strconv.Atoi(m[3])
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	v, err := New(parts...)
	if err != nil {
		return Version{}, err
	}
	return v.WithPrerelease(pre), nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// New builds a version from 3 or 4 non-negative numeric parts.
func New(parts ...int) (Version, error) {
	if len(parts) < 3 || len(parts) > 4 {
		return Version{}, fmt.Errorf("version needs 3 or 4 parts, got %d", len(parts))
	}
	var v Version
	for i, p := range parts {
		if p < 0 {
			return Version{}, fmt.Errorf("version part %d is negative", i)
		}
		v.parts[i] = p
	}
	v.n = len(parts)
	return v, nil
}

// WithPrerelease returns a copy of v carrying the rcN prerelease.
func (v Version) WithPrerelease(n int) Version {
	v.hasPre = true
	v.pre = n
	return v
}

// Major returns the first numeric part.
func (v Version) Major() int { return v.parts[0] }

// Minor returns the second numeric part.
func (v Version) Minor() int { return v.parts[1] }

// Micro returns the third numeric part.
func (v Version) Micro() int { return v.parts[2] }

// Nano returns the fourth numeric part, or 0 for a three part version.
func (v Version) Nano() int { return v.parts[3] }

// Len returns the number of numeric parts.
func (v Version) Len() int { return v.n }

// IsPrerelease reports whether v carries an rc prerelease.
func (v Version) IsPrerelease() bool { return v.hasPre }

// Prerelease returns the rc number; ok is false for final versions.
func (v Version) Prerelease() (n int, ok bool) { return v.pre, v.hasPre }

// Core returns the bare major.minor.micro version without nano or prerelease.
func (v Version) Core() Version {
	return Version{parts: [4]int{v.parts[0], v.parts[1], v.parts[2]}, n: 3}
}

// Increment returns the next version: the rc number is bumped when present,
// otherwise the last numeric part.
func (v Version) Increment() Version {
	if v.hasPre {
		v.pre++
		return v
	}
	v.parts[v.n-1]++
	return v
}

// Compare returns -1, 0 or 1. Numeric parts are compared left to right with a
// missing nano counting as 0; a prerelease sorts before the final version with
// the same numbers.
func (v Version) Compare(o Version) int {
	for i := 0; i < 4; i++ {
		if c := cmpInt(v.parts[i], o.parts[i]); c != 0 {
			return c
		}
	}
	switch {
	case v.hasPre && !o.hasPre:
		return -1
	case !v.hasPre && o.hasPre:
		return 1
	case v.hasPre && o.hasPre:
		return cmpInt(v.pre, o.pre)
	}
	return 0
}

// CompareCore compares only major, minor and micro.
func (v Version) CompareCore(o Version) int {
	return v.Core().Compare(o.Core())
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// Equal reports whether v and o have the same text form.
func (v Version) Equal(o Version) bool { return v == o }

// String returns the text form, e.g. "1.2.0.4" or "1.2.0.rc1".
func (v Version) String() string {
	var b strings.Builder
	for i := 0; i < v.n; i++ {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(v.parts[i]))
	}
	if v.hasPre {
		b.WriteString("." + PrereleaseLabel + strconv.Itoa(v.pre))
	}
	return b.String()
}

// Tag returns the git tag name for v.
func (v Version) Tag() string {
	return "v" + v.String()
}

// Max returns the greatest of the non-nil versions, or nil if there are none.
func Max(vs ...*Version) *Version {
	var best *Version
	for _, v := range vs {
		if v == nil {
			continue
		}
		if best == nil || best.Less(*v) {
			best = v
		}
	}
	return best
}

// Format renders an optional version for display.
func Format(v *Version) string {
	if v == nil {
		return "-"
	}
	return v.String()
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
