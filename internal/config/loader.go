package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads and parses a shipit configuration from the given YAML file path.
// Variables written as ${NAME} in scalar values are expanded from the process
// environment and from the env_files listed in the config (resolved relative
// to the config file). After parsing, it applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	var cfg Config
	if doc.Kind != 0 {
		var head struct {
			EnvFiles []string `yaml:"env_files"`
		}
		if err := doc.Decode(&head); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}

		vars, err := readEnvFiles(filepath.Dir(path), head.EnvFiles)
		if err != nil {
			return nil, err
		}

		expandNode(&doc, vars)
		if err := doc.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./shipit.yaml, ~/.shipit/config.yaml
func LoadDefault() (*Config, error) {
	candidates := []string{"shipit.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".shipit", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return nil, fmt.Errorf("no shipit config found (searched: %v)", candidates)
}

// readEnvFiles merges dotenv files; later files override earlier ones.
func readEnvFiles(dir string, files []string) (map[string]string, error) {
	if len(files) == 0 {
		return map[string]string{}, nil
	}
	paths := make([]string, len(files))
	for i, f := range files {
		if !filepath.IsAbs(f) {
			f = filepath.Join(dir, f)
		}
		paths[i] = f
	}
	vars := make(map[string]string)
	for _, p := range paths {
		m, err := godotenv.Read(p)
		if err != nil {
			return nil, fmt.Errorf("reading env file %s: %w", p, err)
		}
		for k, v := range m {
			vars[k] = v
		}
	}
	return vars, nil
}

var varRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandNode expands ${NAME} references in every scalar value below n.
// Mapping keys are left alone. Values are substituted after parsing, so
// whatever they contain stays inside their scalar.
func expandNode(n *yaml.Node, fileVars map[string]string) {
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			expandNode(c, fileVars)
		}
	case yaml.MappingNode:
		for i := 1; i < len(n.Content); i += 2 {
			expandNode(n.Content[i], fileVars)
		}
	case yaml.ScalarNode:
		v := expandVars(n.Value, fileVars)
		if v == n.Value {
			return
		}
		n.Value = v
		if n.Style == 0 {
			// Re-resolve plain scalars so ${PRUNE}=true still decodes as a bool.
			n.Tag = ""
		}
	}
}

// expandVars replaces ${NAME} references. The process environment wins over
// env files; unknown names are left as written so shell snippets in
// pre_build keep their own variables.
func expandVars(s string, fileVars map[string]string) string {
	return varRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := varRef.FindStringSubmatch(ref)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if v, ok := fileVars[name]; ok {
			return v
		}
		return ref
	})
}

// applyDefaults fills optional fields and propagates run-level settings into
// each configured environment.
func applyDefaults(cfg *Config) {
	if cfg.Git.Provider == "" {
		cfg.Git.Provider = ProviderGitLab
	}
	if cfg.Build.Dockerfile == "" {
		cfg.Build.Dockerfile = DefaultDockerfile
	}
	if cfg.Build.Nameserver == "" {
		cfg.Build.Nameserver = DefaultNameserver
	}
	if cfg.Rollout.PollInterval == "" {
		cfg.Rollout.PollInterval = DefaultPollInterval.String()
	}

	for name, env := range cfg.Environments.byName() {
		if env == nil {
			continue
		}
		env.Name = name
		if env.Hosting == "" {
			env.Hosting = HostingGCP
		}
		if env.Deployment == "" {
			env.Deployment = DeploymentK8s
		}
		if env.Registry == "" {
			env.Registry = RegistryGCPArtifact
		}
		if env.Container == "" {
			env.Container = env.DeploymentName
		}
		if env.PodSelector == "" && env.DeploymentName != "" {
			env.PodSelector = "app=" + env.DeploymentName
		}
		if env.Timezone == "" {
			env.Timezone = cfg.Timezone
		}
	}
}

// byName returns the environment blocks keyed by their YAML names.
func (e Environments) byName() map[string]*Environment {
	return map[string]*Environment{
		"staging":    e.Staging,
		"rc":         e.RC,
		"production": e.Production,
	}
}
