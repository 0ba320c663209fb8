package config

import "time"

// Config is the run configuration parsed from shipit YAML.
type Config struct {
	Project      string       `yaml:"project"`
	Timezone     string       `yaml:"timezone"`
	EnvFiles     []string     `yaml:"env_files,omitempty"`
	Git          Git          `yaml:"git"`
	Build        Build        `yaml:"build"`
	StopBefore   string       `yaml:"stop_before,omitempty"`
	Rollout      Rollout      `yaml:"rollout"`
	History      History      `yaml:"history"`
	Environments Environments `yaml:"environments"`
}

// Git holds repository coordinates and credentials for the hosted git provider.
type Git struct {
	Provider  string `yaml:"provider"`
	Repo      string `yaml:"repo"` // host/group/project, no scheme
	ProjectID string `yaml:"project_id"`
	User      string `yaml:"user"`
	Token     string `yaml:"token"`
	APIURL    string `yaml:"api_url,omitempty"` // defaults to https://<host>/api/v4
}

// Build holds the host-side build settings shared by every tier.
type Build struct {
	HostRoot      string   `yaml:"host_root,omitempty"` // chroot target, e.g. /hostfs
	Path          string   `yaml:"path"`
	SourceSubdir  string   `yaml:"source_subdir,omitempty"`
	Dockerfile    string   `yaml:"dockerfile"`
	PreBuild      []string `yaml:"pre_build,omitempty"`
	Prune         bool     `yaml:"prune"`
	FixNameserver bool     `yaml:"fix_nameserver"`
	Nameserver    string   `yaml:"nameserver,omitempty"`
}

// Rollout configures the rollout watcher.
type Rollout struct {
	PollInterval string `yaml:"poll_interval"`
}

// Interval returns the parsed poll interval, falling back to the default.
func (r Rollout) Interval() time.Duration {
	if d, err := time.ParseDuration(r.PollInterval); err == nil && d > 0 {
		return d
	}
	return DefaultPollInterval
}

// History configures the postgres release ledger. An empty DSN disables it.
type History struct {
	DSN string `yaml:"dsn,omitempty"`
}

// Environments holds one optional block per tier. A nil block means the tier
// is not part of the workflow.
type Environments struct {
	Staging    *Environment `yaml:"staging,omitempty"`
	RC         *Environment `yaml:"rc,omitempty"`
	Production *Environment `yaml:"production,omitempty"`
}

// Environment is the per-tier deployment target.
type Environment struct {
	// Name is the YAML key the block was loaded from.
	Name string `yaml:"-"`

	Hosting           string           `yaml:"hosting"`
	Deployment        string           `yaml:"deployment"`
	Registry          string           `yaml:"registry"`
	ArtifactRegistry  ArtifactRegistry `yaml:"artifact_registry"`
	CloudSDKContainer string           `yaml:"cloud_sdk_container,omitempty"`

	Image          string `yaml:"image"`
	Namespace      string `yaml:"namespace"`
	DeploymentName string `yaml:"deployment_name"`
	Container      string `yaml:"container,omitempty"`
	PodSelector    string `yaml:"pod_selector,omitempty"`

	PrevBranch string `yaml:"prev_branch,omitempty"`
	Branch     string `yaml:"branch"`

	Timezone   string            `yaml:"timezone,omitempty"`
	PreBuild   []string          `yaml:"pre_build,omitempty"`
	BuildArgs  map[string]string `yaml:"build_args,omitempty"`
	AfterClone []HookStep        `yaml:"after_clone,omitempty"`
}

// ArtifactRegistry locates the image package in Google Artifact Registry.
type ArtifactRegistry struct {
	Location   string `yaml:"location"`
	Repository string `yaml:"repository"`
	Package    string `yaml:"package"`
}

// HookStep is one after-clone action. Exactly one field is set.
type HookStep struct {
	Run       string     `yaml:"run,omitempty"`
	WriteFile *WriteFile `yaml:"write_file,omitempty"`
}

// WriteFile writes Content to Path, relative to the build directory.
type WriteFile struct {
	Path    string `yaml:"path"`
	Content string `yaml:"content"`
}

// Supported kinds.
const (
	ProviderGitLab      = "gitlab"
	HostingGCP          = "gcp"
	DeploymentK8s       = "k8s"
	RegistryGCPArtifact = "gcp-artifact-registry"
)

// Defaults.
const (
	DefaultDockerfile   = "Dockerfile"
	DefaultNameserver   = "1.1.1.1"
	DefaultPollInterval = 3 * time.Second
)
