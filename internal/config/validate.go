package config

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Errors joins validation errors into one error, or returns nil when empty.
func Errors(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = "  - " + e.Error()
	}
	return fmt.Errorf("invalid configuration:\n%s", strings.Join(lines, "\n"))
}

// supportedHosts maps git providers to the repository hosts they can drive.
var supportedHosts = map[string]map[string]bool{
	ProviderGitLab: {"gitlab.com": true},
}

// Validate checks the whole Config: run-level fields and every configured
// environment. It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	errs := ValidateRun(cfg)

	names := make([]string, 0, 3)
	envs := cfg.Environments.byName()
	for name, env := range envs {
		if env != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		errs = append(errs, ValidateEnvironment(envs[name])...)
	}
	return errs
}

// ValidateRun checks the run-level fields that every invocation needs,
// independent of the tier being released.
func ValidateRun(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if cfg.Project == "" {
		add("project", "is required")
	}

	// Git
	hosts, ok := supportedHosts[cfg.Git.Provider]
	if !ok {
		add("git.provider", fmt.Sprintf("unsupported provider %q", cfg.Git.Provider))
	}
	if cfg.Git.Repo == "" {
		add("git.repo", "is required")
	} else {
		host := RepoHost(cfg.Git.Repo)
		switch {
		case strings.Contains(cfg.Git.Repo, "://"):
			add("git.repo", "must be host/group/project without a scheme")
		case strings.Count(strings.Trim(cfg.Git.Repo, "/"), "/") < 2:
			add("git.repo", "must be host/group/project")
		case ok && !hosts[host] && cfg.Git.APIURL == "":
			add("git.repo", fmt.Sprintf("unsupported repository host %q (set git.api_url for self-hosted instances)", host))
		}
	}
	if cfg.Git.ProjectID == "" {
		add("git.project_id", "is required")
	}
	if cfg.Git.User == "" {
		add("git.user", "is required")
	}
	if cfg.Git.Token == "" {
		add("git.token", "is required")
	}

	// Build
	if cfg.Build.Path == "" {
		add("build.path", "is required")
	} else if !path.IsAbs(cfg.Build.Path) || path.Clean(cfg.Build.Path) == "/" {
		add("build.path", "must be an absolute directory other than /")
	}
	if cfg.Build.HostRoot != "" && !filepath.IsAbs(cfg.Build.HostRoot) {
		add("build.host_root", "must be absolute")
	}
	if s := cfg.Build.SourceSubdir; s != "" && (path.IsAbs(s) || strings.HasPrefix(path.Clean(s), "..")) {
		add("build.source_subdir", "must be a relative path inside the repository")
	}

	if cfg.Rollout.PollInterval != "" {
		if d, err := time.ParseDuration(cfg.Rollout.PollInterval); err != nil || d <= 0 {
			add("rollout.poll_interval", fmt.Sprintf("invalid duration %q", cfg.Rollout.PollInterval))
		}
	}

	if cfg.Environments.Staging == nil && cfg.Environments.RC == nil && cfg.Environments.Production == nil {
		add("environments", "at least one environment is required")
	}
	return errs
}

// ValidateEnvironment checks the fields a single tier needs to be released.
func ValidateEnvironment(env *Environment) []ValidationError {
	var errs []ValidationError
	prefix := "environments." + env.Name
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: prefix + "." + field, Message: msg})
	}

	if env.Hosting != HostingGCP {
		add("hosting", fmt.Sprintf("unsupported hosting %q", env.Hosting))
	}
	if env.Deployment != DeploymentK8s {
		add("deployment", fmt.Sprintf("unsupported deployment %q", env.Deployment))
	}
	if env.Registry != RegistryGCPArtifact {
		add("registry", fmt.Sprintf("unsupported registry %q", env.Registry))
	} else {
		ar := env.ArtifactRegistry
		if ar.Location == "" {
			add("artifact_registry.location", "is required")
		}
		if ar.Repository == "" {
			add("artifact_registry.repository", "is required")
		}
		if ar.Package == "" {
			add("artifact_registry.package", "is required")
		}
	}

	if env.Image == "" {
		add("image", "is required")
	} else if strings.ContainsAny(env.Image, " \t@") || strings.HasSuffix(env.Image, ":") {
		add("image", fmt.Sprintf("invalid image name %q (no tag or digest)", env.Image))
	}
	if env.Namespace == "" {
		add("namespace", "is required")
	}
	if env.DeploymentName == "" {
		add("deployment_name", "is required")
	}
	if env.Branch == "" {
		add("branch", "is required")
	}
	if env.PrevBranch != "" && env.PrevBranch == env.Branch {
		add("prev_branch", "must differ from branch")
	}

	for i, step := range env.AfterClone {
		field := fmt.Sprintf("after_clone[%d]", i)
		switch {
		case step.Run != "" && step.WriteFile != nil:
			add(field, "set only one of run or write_file")
		case step.Run == "" && step.WriteFile == nil:
			add(field, "one of run or write_file is required")
		case step.WriteFile != nil && step.WriteFile.Path == "":
			add(field+".write_file.path", "is required")
		}
	}
	return errs
}

// RepoHost returns the host part of a host/group/project repository.
func RepoHost(repo string) string {
	host, _, _ := strings.Cut(strings.Trim(repo, "/"), "/")
	return host
}
