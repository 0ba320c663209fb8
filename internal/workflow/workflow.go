// Package workflow derives the promotion chain from the configured tiers and
// picks the tier a run releases to.
package workflow

import (
	"errors"
	"fmt"

	"github.com/lucasnoah/shipit/internal/config"
)

// Tier is one deployment environment in the promotion chain.
type Tier string

const (
	Staging    Tier = "stg"
	RC         Tier = "rc"
	Production Tier = "prod"
)

// Name returns the configuration key of the tier.
func (t Tier) Name() string {
	switch t {
	case Staging:
		return "staging"
	case RC:
		return "rc"
	case Production:
		return "production"
	}
	return string(t)
}

// ParseTier accepts a tier code or its configuration key.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "stg", "staging":
		return Staging, nil
	case "rc":
		return RC, nil
	case "prod", "production":
		return Production, nil
	}
	return "", fmt.Errorf("unknown environment %q (want stg, rc or prod)", s)
}

// Code names the set of configured tiers.
type Code string

const (
	S   Code = "S"
	SP  Code = "SP"
	SR  Code = "SR"
	SRP Code = "SRP"
)

var (
	ErrNoEnvironment  = errors.New("no environment configured")
	ErrMissingStaging = errors.New("staging environment is required when rc or production is configured")
)

// Derive returns the workflow code for the configured tiers.
func Derive(stg, rc, prod bool) (Code, error) {
	switch {
	case !stg && !rc && !prod:
		return "", ErrNoEnvironment
	case !stg:
		return "", ErrMissingStaging
	case rc && prod:
		return SRP, nil
	case rc:
		return SR, nil
	case prod:
		return SP, nil
	default:
		return S, nil
	}
}

// FromEnvironments derives the workflow code from which blocks are present.
func FromEnvironments(envs config.Environments) (Code, error) {
	return Derive(envs.Staging != nil, envs.RC != nil, envs.Production != nil)
}

// Tiers returns the tiers of c in promotion order.
func (c Code) Tiers() []Tier {
	switch c {
	case S:
		return []Tier{Staging}
	case SP:
		return []Tier{Staging, Production}
	case SR:
		return []Tier{Staging, RC}
	case SRP:
		return []Tier{Staging, RC, Production}
	}
	return nil
}

// Has reports whether t is part of c.
func (c Code) Has(t Tier) bool {
	for _, x := range c.Tiers() {
		if x == t {
			return true
		}
	}
	return false
}

// Below returns the tier that feeds t, if any.
func (c Code) Below(t Tier) (Tier, bool) {
	tiers := c.Tiers()
	for i, x := range tiers {
		if x == t && i > 0 {
			return tiers[i-1], true
		}
	}
	return "", false
}

// Above returns every tier after t in promotion order.
func (c Code) Above(t Tier) []Tier {
	tiers := c.Tiers()
	for i, x := range tiers {
		if x == t {
			return append([]Tier(nil), tiers[i+1:]...)
		}
	}
	return nil
}

// EnvironmentFor returns the configuration block of t, or nil.
func EnvironmentFor(envs config.Environments, t Tier) *config.Environment {
	switch t {
	case Staging:
		return envs.Staging
	case RC:
		return envs.RC
	case Production:
		return envs.Production
	}
	return nil
}

// Chooser offers a closed set of options.
type Chooser interface {
	Choose(question string, options []string) (string, error)
}

// SelectTier picks the tier to release. A preset must belong to the workflow;
// a single-tier workflow needs no prompt.
func SelectTier(ch Chooser, c Code, preset string) (Tier, error) {
	tiers := c.Tiers()
	if len(tiers) == 0 {
		return "", fmt.Errorf("unknown workflow %q", c)
	}
	if preset != "" {
		t, err := ParseTier(preset)
		if err != nil {
			return "", err
		}
		if !c.Has(t) {
			return "", fmt.Errorf("environment %q is not configured (workflow %s)", t, c)
		}
		return t, nil
	}
	if len(tiers) == 1 {
		return tiers[0], nil
	}

	options := make([]string, len(tiers))
	for i, t := range tiers {
		options[i] = string(t)
	}
	answer, err := ch.Choose("Select the environment to release:", options)
	if err != nil {
		return "", fmt.Errorf("selecting environment: %w", err)
	}
	return Tier(answer), nil
}
