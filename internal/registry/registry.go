// Package registry reads released image versions from Google Artifact
// Registry through the gcloud CLI.
package registry

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/lucasnoah/shipit/internal/config"
	"github.com/lucasnoah/shipit/internal/shell"
	"github.com/lucasnoah/shipit/internal/version"
)

// header is the column title gcloud prints above the tag rows.
const header = "TAG"

// Client lists image tags.
type Client struct {
	runner shell.Runner
}

// NewClient creates a registry client that runs gcloud through runner.
func NewClient(runner shell.Runner) *Client {
	return &Client{runner: runner}
}

// ListCommand returns the gcloud invocation listing the package's tags.
func ListCommand(env *config.Environment) shell.Command {
	ar := env.ArtifactRegistry
	return shell.New("gcloud", "artifacts", "tags", "list",
		"--location="+ar.Location,
		"--repository="+ar.Repository,
		"--package="+ar.Package,
		"--format=table(TAG)",
	).InContainer(env.CloudSDKContainer)
}

// Latest returns the highest released version of the environment's image, or
// nil when nothing has been released yet.
func (c *Client) Latest(ctx context.Context, env *config.Environment) (*version.Version, error) {
	out, err := shell.Exec(ctx, c.runner, ListCommand(env))
	if err != nil {
		return nil, fmt.Errorf("list tags for %s: %w", env.ArtifactRegistry.Package, err)
	}
	return ParseTags(out), nil
}

// ParseTags picks the highest version from gcloud table output. Rows that are
// not versions (latest, digests, the header) are skipped.
func ParseTags(out string) *version.Version {
	if !strings.Contains(out, header) {
		return nil
	}
	var best *version.Version
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line == header {
			continue
		}
		v, err := version.Parse(line)
		if err != nil {
			continue
		}
		best = version.Max(best, &v)
	}
	return best
}
