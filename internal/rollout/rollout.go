// Package rollout watches a Kubernetes deployment until every pod runs the
// released image.
package rollout

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/lucasnoah/shipit/internal/config"
	"github.com/lucasnoah/shipit/internal/console"
	"github.com/lucasnoah/shipit/internal/shell"
	"github.com/lucasnoah/shipit/internal/version"
)

// podsJSONPath prints "name image phase|" per pod on a single line.
const podsJSONPath = `{range .items[*]}{.metadata.name} {.spec.containers[0].image} {.status.phase}|{end}`

// Pod is one row of the rollout table.
type Pod struct {
	Name    string
	Image   string
	Version string
	Phase   string
}

// PodsCommand returns the kubectl query for the deployment's pods.
func PodsCommand(env *config.Environment) shell.Command {
	return shell.New("kubectl", "get", "pods",
		"-n", env.Namespace,
		"-l", env.PodSelector,
		"-o", "jsonpath="+podsJSONPath,
	).InContainer(env.CloudSDKContainer)
}

// ParsePods parses the single line produced by PodsCommand.
func ParsePods(out string) ([]Pod, error) {
	var pods []Pod
	for _, entry := range strings.Split(strings.TrimSpace(out), "|") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Fields(entry)
		if len(fields) != 3 {
			return nil, fmt.Errorf("unexpected pod entry %q", entry)
		}
		image := fields[1]
		i := strings.LastIndex(image, ":")
		if i < 0 || i < strings.LastIndex(image, "/") || i == len(image)-1 {
			return nil, fmt.Errorf("pod %s: image %q has no tag", fields[0], image)
		}
		pods = append(pods, Pod{
			Name:    fields[0],
			Image:   image[:i],
			Version: image[i+1:],
			Phase:   fields[2],
		})
	}
	return pods, nil
}

// Converged reports whether at least one pod exists and all of them run target.
func Converged(pods []Pod, target version.Version) bool {
	if len(pods) == 0 {
		return false
	}
	for _, p := range pods {
		if p.Version != target.String() {
			return false
		}
	}
	return true
}

// Watcher polls pods and redraws their state in place.
type Watcher struct {
	runner       shell.Runner
	out          io.Writer
	logger       log.Logger
	pollInterval time.Duration
	sleep        func(ctx context.Context, d time.Duration) error

	table      string
	tableLines int
	errShown   bool
}

// NewWatcher creates a watcher that draws to out.
func NewWatcher(runner shell.Runner, out io.Writer) *Watcher {
	return &Watcher{
		runner:       runner,
		out:          out,
		logger:       log.NewNopLogger(),
		pollInterval: config.DefaultPollInterval,
		sleep:        sleepCtx,
	}
}

// SetPollInterval overrides the delay between queries.
func (w *Watcher) SetPollInterval(d time.Duration) {
	w.pollInterval = d
}

// SetLogger sets the structured logger.
func (w *Watcher) SetLogger(l log.Logger) {
	w.logger = log.With(l, "component", "rollout")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait blocks until every pod of env runs target. Query and parse errors are
// shown and retried; only ctx ends the wait early.
func (w *Watcher) Wait(ctx context.Context, env *config.Environment, target version.Version) error {
	w.table, w.tableLines, w.errShown = "", 0, false
	cmd := PodsCommand(env)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		out, err := shell.Exec(ctx, w.runner, cmd)
		var pods []Pod
		if err == nil {
			pods, err = ParsePods(out)
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Log("msg", "pod query failed", "err", err)
			w.drawError(err)
		} else {
			w.drawTable(pods)
			done := Converged(pods, target)
			w.logger.Log("pods", len(pods), "target", target.String(), "converged", done)
			if done {
				return nil
			}
		}

		if err := w.sleep(ctx, w.pollInterval); err != nil {
			return err
		}
	}
}

// drawError overwrites the current line with err.
func (w *Watcher) drawError(err error) {
	fmt.Fprintf(w.out, "\r\033[K%s", console.Fail(err.Error()))
	w.errShown = true
}

// drawTable redraws the pod table when it changed since the last draw.
func (w *Watcher) drawTable(pods []Pod) {
	table := renderTable(pods)
	if w.errShown {
		fmt.Fprint(w.out, "\r\033[K")
		w.errShown = false
	}
	if table == w.table {
		return
	}
	if w.tableLines > 0 {
		fmt.Fprintf(w.out, "\033[%dA\033[J", w.tableLines)
	}
	fmt.Fprint(w.out, table)
	w.table = table
	w.tableLines = strings.Count(table, "\n")
}

func renderTable(pods []Pod) string {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POD\tVERSION\tPHASE")
	for _, p := range pods {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.Version, console.Phase(p.Phase))
	}
	tw.Flush()
	return buf.String()
}
