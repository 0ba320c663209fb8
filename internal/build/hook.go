package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lucasnoah/shipit/internal/config"
	"github.com/lucasnoah/shipit/internal/shell"
	"github.com/lucasnoah/shipit/internal/version"
)

var varRe = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// Vars is a map of placeholder names to values for hook expansion.
type Vars map[string]string

// HookVars returns the placeholders available to after-clone hooks.
func HookVars(tier string, v version.Version) Vars {
	return Vars{
		"version": v.String(),
		"tag":     v.Tag(),
		"tier":    tier,
	}
}

// Render replaces {{name}} placeholders. Unknown names are an error.
func Render(tmpl string, vars Vars) (string, error) {
	var missing []string
	out := varRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := varRe.FindStringSubmatch(match)[1]
		if val, ok := vars[name]; ok {
			return val
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unknown placeholders: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// hostPath maps a path on the build host to the local filesystem.
func (d *Driver) hostPath(p string) string {
	if d.cfg.Build.HostRoot == "" {
		return p
	}
	return filepath.Join(d.cfg.Build.HostRoot, p)
}

// confine resolves rel inside the build directory and rejects anything that
// would land outside it.
func (d *Driver) confine(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty path")
	}
	joined := path.Join(d.Path(), rel)
	if joined != d.Path() && !strings.HasPrefix(joined, strings.TrimSuffix(d.Path(), "/")+"/") {
		return "", fmt.Errorf("path %q escapes the build directory", rel)
	}
	return joined, nil
}

// RunAfterClone runs the tier's after-clone hook steps in order.
func (d *Driver) RunAfterClone(ctx context.Context, env *config.Environment, vars Vars) error {
	if len(env.AfterClone) == 0 {
		d.logf("no after-clone hook")
		return nil
	}
	for i, step := range env.AfterClone {
		n := i + 1
		switch {
		case step.WriteFile != nil:
			if err := d.writeFile(*step.WriteFile, vars); err != nil {
				return fmt.Errorf("after-clone step %d: %w", n, err)
			}
		case step.Run != "":
			script, err := Render(step.Run, vars)
			if err != nil {
				return fmt.Errorf("after-clone step %d: %w", n, err)
			}
			d.logf("after-clone %d/%d: run", n, len(env.AfterClone))
			if _, err := d.exec(ctx, shell.Script(script).In(d.Path()).Streamed()); err != nil {
				return fmt.Errorf("after-clone step %d: %w", n, err)
			}
		default:
			return fmt.Errorf("after-clone step %d: nothing to do", n)
		}
	}
	return nil
}

func (d *Driver) writeFile(w config.WriteFile, vars Vars) error {
	rel, err := Render(w.Path, vars)
	if err != nil {
		return err
	}
	content, err := Render(w.Content, vars)
	if err != nil {
		return err
	}
	target, err := d.confine(rel)
	if err != nil {
		return err
	}

	local := d.hostPath(target)
	d.logf("writing %s", target)
	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return fmt.Errorf("create parent of %s: %w", target, err)
	}
	if err := os.WriteFile(local, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

// FixNameserver appends the configured nameserver to the build host's
// resolv.conf unless it is already listed. It is a no-op when disabled.
func (d *Driver) FixNameserver() error {
	if !d.cfg.Build.FixNameserver {
		return nil
	}
	file := d.hostPath("/etc/resolv.conf")
	want := "nameserver " + d.cfg.Build.Nameserver

	data, err := os.ReadFile(file)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read resolv.conf: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.Join(strings.Fields(line), " ") == want {
			d.logf("%s already present", want)
			return nil
		}
	}

	var buf bytes.Buffer
	buf.Write(data)
	if len(data) > 0 && !bytes.HasSuffix(data, []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString(want + "\n")

	d.logf("adding %q to %s", want, file)
	if err := os.WriteFile(file, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write resolv.conf: %w", err)
	}
	return nil
}
