package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validConfig = `
project: shop
timezone: Europe/Berlin
git:
  repo: gitlab.com/acme/shop
  project_id: "4242"
  user: release-bot
  token: glpat-abc
build:
  host_root: /hostfs
  path: /opt/build/shop
  dockerfile: docker/Dockerfile
  pre_build:
    - "echo $HOME"
  prune: true
rollout:
  poll_interval: 5s
environments:
  staging:
    artifact_registry:
      location: europe-west3
      repository: shop
      package: api
    cloud_sdk_container: gcloud
    image: europe-west3-docker.pkg.dev/acme/shop/api
    namespace: shop-stg
    deployment_name: api
    branch: staging
  production:
    artifact_registry:
      location: europe-west3
      repository: shop
      package: api
    image: europe-west3-docker.pkg.dev/acme/shop/api
    namespace: shop
    deployment_name: api
    container: api-server
    pod_selector: tier=api
    prev_branch: staging
    branch: main
    timezone: UTC
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "shipit.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadValid(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(writeTestConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return cfg
}

func TestLoadValidConfig(t *testing.T) {
	cfg := loadValid(t)

	if cfg.Project != "shop" {
		t.Errorf("Project = %q, want %q", cfg.Project, "shop")
	}
	if cfg.Git.ProjectID != "4242" {
		t.Errorf("ProjectID = %q, want %q", cfg.Git.ProjectID, "4242")
	}
	if cfg.Build.Dockerfile != "docker/Dockerfile" {
		t.Errorf("Dockerfile = %q, want %q", cfg.Build.Dockerfile, "docker/Dockerfile")
	}
	if cfg.Environments.RC != nil {
		t.Error("RC should be nil when not configured")
	}
	if cfg.Environments.Staging == nil || cfg.Environments.Production == nil {
		t.Fatal("expected staging and production blocks")
	}
	if cfg.Rollout.Interval() != 5*time.Second {
		t.Errorf("Interval() = %v, want 5s", cfg.Rollout.Interval())
	}
}

func TestDefaultsApplied(t *testing.T) {
	cfg := loadValid(t)

	if cfg.Git.Provider != ProviderGitLab {
		t.Errorf("Provider = %q, want %q", cfg.Git.Provider, ProviderGitLab)
	}
	if cfg.Build.Nameserver != DefaultNameserver {
		t.Errorf("Nameserver = %q, want %q", cfg.Build.Nameserver, DefaultNameserver)
	}

	stg := cfg.Environments.Staging
	if stg.Name != "staging" {
		t.Errorf("Name = %q, want staging", stg.Name)
	}
	if stg.Container != "api" {
		t.Errorf("Container = %q, want %q (from deployment_name)", stg.Container, "api")
	}
	if stg.PodSelector != "app=api" {
		t.Errorf("PodSelector = %q, want %q", stg.PodSelector, "app=api")
	}
	if stg.Timezone != "Europe/Berlin" {
		t.Errorf("Timezone = %q, want %q (inherited)", stg.Timezone, "Europe/Berlin")
	}
	if stg.Registry != RegistryGCPArtifact || stg.Hosting != HostingGCP || stg.Deployment != DeploymentK8s {
		t.Errorf("kinds = %s/%s/%s, want defaults", stg.Hosting, stg.Deployment, stg.Registry)
	}

	// explicit values are not overridden
	prod := cfg.Environments.Production
	if prod.Container != "api-server" {
		t.Errorf("Container = %q, want %q (explicit)", prod.Container, "api-server")
	}
	if prod.PodSelector != "tier=api" {
		t.Errorf("PodSelector = %q, want %q (explicit)", prod.PodSelector, "tier=api")
	}
	if prod.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC (explicit)", prod.Timezone)
	}
}

func TestRolloutIntervalFallback(t *testing.T) {
	if got := (Rollout{PollInterval: "nope"}).Interval(); got != DefaultPollInterval {
		t.Errorf("Interval() = %v, want %v", got, DefaultPollInterval)
	}
}

func TestLoadExpandsEnvFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "base.env"), []byte("GL_TOKEN=from-base\nGL_USER=base-user\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "local.env"), []byte("GL_TOKEN=from-local\n"), 0644); err != nil {
		t.Fatal(err)
	}
	content := `
project: shop
env_files: [base.env, local.env]
git:
  repo: gitlab.com/acme/shop
  project_id: "1"
  user: ${GL_USER}
  token: ${GL_TOKEN}
build:
  path: /opt/build
  pre_build:
    - "echo ${UNDEFINED_FOR_SHIPIT_TEST}"
`
	path := filepath.Join(dir, "shipit.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Git.Token != "from-local" {
		t.Errorf("Token = %q, want %q (later file wins)", cfg.Git.Token, "from-local")
	}
	if cfg.Git.User != "base-user" {
		t.Errorf("User = %q, want %q", cfg.Git.User, "base-user")
	}
	if cfg.Build.PreBuild[0] != "echo ${UNDEFINED_FOR_SHIPIT_TEST}" {
		t.Errorf("PreBuild[0] = %q, unknown references should be kept", cfg.Build.PreBuild[0])
	}
}

func TestLoadProcessEnvWins(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SHIPIT_TEST_TOKEN=file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SHIPIT_TEST_TOKEN", "process")

	path := filepath.Join(dir, "shipit.yaml")
	content := "project: x\nenv_files: [.env]\ngit:\n  token: ${SHIPIT_TEST_TOKEN}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Git.Token != "process" {
		t.Errorf("Token = %q, want %q", cfg.Git.Token, "process")
	}
}

func TestLoadExpandsValuesVerbatim(t *testing.T) {
	dir := t.TempDir()
	env := "GL_TOKEN='abc #def'\nGL_USER='bot: x'\nGL_PRUNE=true\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0644); err != nil {
		t.Fatal(err)
	}
	content := `
project: shop
env_files: [.env]
git:
  user: ${GL_USER}
  token: ${GL_TOKEN}
build:
  path: /opt/build
  prune: ${GL_PRUNE}
  pre_build:
    - "login ${GL_USER}"
`
	path := filepath.Join(dir, "shipit.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Git.Token != "abc #def" {
		t.Errorf("Token = %q, want %q", cfg.Git.Token, "abc #def")
	}
	if cfg.Git.User != "bot: x" {
		t.Errorf("User = %q, want %q", cfg.Git.User, "bot: x")
	}
	if !cfg.Build.Prune {
		t.Error("Prune = false, want true from ${GL_PRUNE}")
	}
	if len(cfg.Build.PreBuild) != 1 || cfg.Build.PreBuild[0] != "login bot: x" {
		t.Errorf("PreBuild = %q, want [%q]", cfg.Build.PreBuild, "login bot: x")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeTestConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Git.Provider != ProviderGitLab {
		t.Errorf("Provider = %q, want defaults applied", cfg.Git.Provider)
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	path := writeTestConfig(t, "project: x\nenv_files: [missing.env]\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing env file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTestConfig(t, "project: [unterminated\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestValidateValidConfig(t *testing.T) {
	cfg := loadValid(t)

	errs := Validate(cfg)
	if len(errs) != 0 {
		t.Errorf("Validate() returned %d errors for valid config:", len(errs))
		for _, e := range errs {
			t.Errorf("  - %s", e)
		}
	}
	if err := Errors(errs); err != nil {
		t.Errorf("Errors() = %v, want nil", err)
	}
}

func hasField(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidateRunFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing project", func(c *Config) { c.Project = "" }, "project"},
		{"unsupported provider", func(c *Config) { c.Git.Provider = "bitbucket" }, "git.provider"},
		{"repo with scheme", func(c *Config) { c.Git.Repo = "https://gitlab.com/acme/shop" }, "git.repo"},
		{"repo without project", func(c *Config) { c.Git.Repo = "gitlab.com/acme" }, "git.repo"},
		{"unsupported host", func(c *Config) { c.Git.Repo = "git.example.com/acme/shop" }, "git.repo"},
		{"missing token", func(c *Config) { c.Git.Token = "" }, "git.token"},
		{"relative build path", func(c *Config) { c.Build.Path = "build" }, "build.path"},
		{"root build path", func(c *Config) { c.Build.Path = "/" }, "build.path"},
		{"escaping source subdir", func(c *Config) { c.Build.SourceSubdir = "../etc" }, "build.source_subdir"},
		{"bad poll interval", func(c *Config) { c.Rollout.PollInterval = "soon" }, "rollout.poll_interval"},
		{"no environments", func(c *Config) { c.Environments = Environments{} }, "environments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadValid(t)
			tt.mutate(cfg)
			errs := ValidateRun(cfg)
			if !hasField(errs, tt.field) {
				t.Errorf("expected validation error for %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestValidateSelfHostedWithAPIURL(t *testing.T) {
	cfg := loadValid(t)
	cfg.Git.Repo = "git.example.com/acme/shop"
	cfg.Git.APIURL = "https://git.example.com/api/v4"
	if errs := ValidateRun(cfg); hasField(errs, "git.repo") {
		t.Errorf("self-hosted repo with api_url should validate, got %v", errs)
	}
}

func TestValidateEnvironmentFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Environment)
		field  string
	}{
		{"missing image", func(e *Environment) { e.Image = "" }, "environments.staging.image"},
		{"image with tag", func(e *Environment) { e.Image = "registry/app:" }, "environments.staging.image"},
		{"missing namespace", func(e *Environment) { e.Namespace = "" }, "environments.staging.namespace"},
		{"missing branch", func(e *Environment) { e.Branch = "" }, "environments.staging.branch"},
		{"prev equals branch", func(e *Environment) { e.PrevBranch = "staging" }, "environments.staging.prev_branch"},
		{"missing package", func(e *Environment) { e.ArtifactRegistry.Package = "" }, "environments.staging.artifact_registry.package"},
		{"unsupported hosting", func(e *Environment) { e.Hosting = "aws" }, "environments.staging.hosting"},
		{"unsupported registry", func(e *Environment) { e.Registry = "ecr" }, "environments.staging.registry"},
		{"empty hook", func(e *Environment) { e.AfterClone = []HookStep{{}} }, "environments.staging.after_clone[0]"},
		{"ambiguous hook", func(e *Environment) {
			e.AfterClone = []HookStep{{Run: "make", WriteFile: &WriteFile{Path: "a"}}}
		}, "environments.staging.after_clone[0]"},
		{"write_file without path", func(e *Environment) {
			e.AfterClone = []HookStep{{WriteFile: &WriteFile{Content: "x"}}}
		}, "environments.staging.after_clone[0].write_file.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadValid(t)
			tt.mutate(cfg.Environments.Staging)
			errs := ValidateEnvironment(cfg.Environments.Staging)
			if !hasField(errs, tt.field) {
				t.Errorf("expected validation error for %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestErrorsJoinsAllIssues(t *testing.T) {
	err := Errors([]ValidationError{
		{Field: "project", Message: "is required"},
		{Field: "git.token", Message: "is required"},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"project: is required", "git.token: is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Errors() = %q, missing %q", err.Error(), want)
		}
	}
}

func TestRepoHost(t *testing.T) {
	if got := RepoHost("gitlab.com/acme/shop"); got != "gitlab.com" {
		t.Errorf("RepoHost() = %q, want gitlab.com", got)
	}
}
