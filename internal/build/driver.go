// Package build clones a release tag onto the build host, builds and pushes
// its image, and points the Kubernetes deployment at it.
package build

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/lucasnoah/shipit/internal/config"
	"github.com/lucasnoah/shipit/internal/shell"
	"github.com/lucasnoah/shipit/internal/version"
)

// ExitError is a command that exited non-zero.
type ExitError = shell.ExitError

// Driver runs the build and deploy commands for one run configuration.
type Driver struct {
	runner   shell.Runner
	cfg      *config.Config
	progress io.Writer // live progress output; nil = silent
}

// NewDriver creates a driver that runs commands through runner.
func NewDriver(runner shell.Runner, cfg *config.Config) *Driver {
	return &Driver{runner: runner, cfg: cfg}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (d *Driver) SetProgress(w io.Writer) {
	d.progress = w
}

// logf prints a progress line if a progress writer is configured.
func (d *Driver) logf(format string, args ...interface{}) {
	if d.progress != nil {
		fmt.Fprintf(d.progress, "  → "+format+"\n", args...)
	}
}

func (d *Driver) exec(ctx context.Context, c shell.Command) (string, error) {
	d.logf("%s", c)
	return shell.Exec(ctx, d.runner, c)
}

// Path returns the build directory.
func (d *Driver) Path() string {
	return d.cfg.Build.Path
}

// ImageRef returns image:version for env.
func ImageRef(env *config.Environment, v version.Version) string {
	return env.Image + ":" + v.String()
}

// CloneURL returns the https clone URL with the bot credentials as userinfo.
func (d *Driver) CloneURL() string {
	g := d.cfg.Git
	host, repoPath, _ := strings.Cut(strings.Trim(g.Repo, "/"), "/")
	u := url.URL{
		Scheme: "https",
		User:   url.UserPassword(g.User, g.Token),
		Host:   host,
		Path:   "/" + strings.TrimSuffix(repoPath, ".git") + ".git",
	}
	return u.String()
}

// secrets returns the token in every form it can appear in a command line.
func (d *Driver) secrets() []string {
	t := d.cfg.Git.Token
	return []string{t, url.UserPassword("", t).String()[1:]}
}

// Clone wipes the build directory and shallow-clones exactly tag into it.
// When a source sub-directory is configured, it becomes the build root.
func (d *Driver) Clone(ctx context.Context, tag string) error {
	dir := d.Path()
	if _, err := d.exec(ctx, shell.New("rm", "-rf", dir)); err != nil {
		return fmt.Errorf("clean build dir: %w", err)
	}
	if _, err := d.exec(ctx, shell.New("mkdir", "-p", dir)); err != nil {
		return fmt.Errorf("create build dir: %w", err)
	}

	clone := shell.New("git", "clone", "--quiet",
		"-c", "advice.detachedHead=false",
		"--depth", "1",
		"--branch", tag,
		d.CloneURL(), ".",
	).In(dir).Redacting(d.secrets()...)
	if _, err := d.exec(ctx, clone); err != nil {
		return fmt.Errorf("clone %s: %w", tag, err)
	}

	sub := d.cfg.Build.SourceSubdir
	if sub == "" {
		return nil
	}
	tmp := dir + ".clone"
	steps := []shell.Command{
		shell.New("rm", "-rf", tmp),
		shell.New("mv", dir, tmp),
		shell.New("mv", path.Join(tmp, sub), dir),
		shell.New("rm", "-rf", tmp),
	}
	for _, c := range steps {
		if _, err := d.exec(ctx, c); err != nil {
			return fmt.Errorf("relocate %s: %w", sub, err)
		}
	}
	return nil
}

// RunPreBuild runs the global then the per-tier pre-build commands in the
// build directory. The first failure aborts.
func (d *Driver) RunPreBuild(ctx context.Context, env *config.Environment) error {
	cmds := append(append([]string(nil), d.cfg.Build.PreBuild...), env.PreBuild...)
	if len(cmds) == 0 {
		d.logf("no pre-build commands")
		return nil
	}
	for i, script := range cmds {
		d.logf("pre-build %d/%d", i+1, len(cmds))
		c := shell.Script(script).In(d.Path()).Streamed()
		if _, err := d.exec(ctx, c); err != nil {
			return fmt.Errorf("pre-build command %d: %w", i+1, err)
		}
	}
	return nil
}

// BuildImage builds image:version from the build directory, removing any
// local image with the same tag first so the push ships fresh layers.
func (d *Driver) BuildImage(ctx context.Context, env *config.Environment, v version.Version) error {
	ref := ImageRef(env, v)

	existing, err := d.exec(ctx, shell.New("docker", "images", "-q", ref))
	if err != nil {
		return fmt.Errorf("look up local image: %w", err)
	}
	if strings.TrimSpace(existing) != "" {
		d.logf("removing stale local image %s", ref)
		if _, err := d.exec(ctx, shell.New("docker", "rmi", "-f", ref)); err != nil {
			return fmt.Errorf("remove stale image: %w", err)
		}
	}

	if _, err := d.exec(ctx, BuildCommand(d.cfg, env, v).In(d.Path()).Streamed()); err != nil {
		return fmt.Errorf("build %s: %w", ref, err)
	}
	return nil
}

// BuildCommand returns the docker build invocation for env at v.
func BuildCommand(cfg *config.Config, env *config.Environment, v version.Version) shell.Command {
	args := []string{"build", "--no-cache",
		"-f", cfg.Build.Dockerfile,
		"--build-arg", "APP_VERSION=" + v.String(),
	}
	if env.Timezone != "" {
		args = append(args, "--build-arg", "TZ="+env.Timezone)
	}

	keys := make([]string, 0, len(env.BuildArgs))
	for k := range env.BuildArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--build-arg", k+"="+env.BuildArgs[k])
	}

	args = append(args, "-t", ImageRef(env, v), ".")
	return shell.New("docker", args...)
}

// PushImage pushes image:version, through the cloud SDK container when set.
func (d *Driver) PushImage(ctx context.Context, env *config.Environment, v version.Version) error {
	ref := ImageRef(env, v)
	c := shell.New("docker", "push", ref).InContainer(env.CloudSDKContainer).Streamed()
	if _, err := d.exec(ctx, c); err != nil {
		return fmt.Errorf("push %s: %w", ref, err)
	}
	return nil
}

// DeleteLocalImage removes the pushed image from the build host.
func (d *Driver) DeleteLocalImage(ctx context.Context, env *config.Environment, v version.Version) error {
	ref := ImageRef(env, v)
	if _, err := d.exec(ctx, shell.New("docker", "rmi", ref)); err != nil {
		return fmt.Errorf("delete local image %s: %w", ref, err)
	}
	return nil
}

// DeleteBuildDir removes the build directory.
func (d *Driver) DeleteBuildDir(ctx context.Context) error {
	if _, err := d.exec(ctx, shell.New("rm", "-rf", d.Path())); err != nil {
		return fmt.Errorf("delete build dir: %w", err)
	}
	return nil
}

// Prune removes stopped containers, dangling images and build cache when
// pruning is enabled.
func (d *Driver) Prune(ctx context.Context) error {
	if !d.cfg.Build.Prune {
		d.logf("docker prune disabled")
		return nil
	}
	for _, what := range []string{"container", "image", "builder"} {
		if _, err := d.exec(ctx, shell.New("docker", what, "prune", "-f")); err != nil {
			return fmt.Errorf("prune %ss: %w", what, err)
		}
	}
	return nil
}

// DeployCommand returns the kubectl call pointing the deployment at v.
func DeployCommand(env *config.Environment, v version.Version) shell.Command {
	return shell.New("kubectl", "set", "image",
		"-n", env.Namespace,
		"deployment/"+env.DeploymentName,
		env.Container+"="+ImageRef(env, v),
	).InContainer(env.CloudSDKContainer)
}

// Deploy updates the deployment's container image.
func (d *Driver) Deploy(ctx context.Context, env *config.Environment, v version.Version) error {
	if _, err := d.exec(ctx, DeployCommand(env, v)); err != nil {
		return fmt.Errorf("deploy %s: %w", ImageRef(env, v), err)
	}
	return nil
}
