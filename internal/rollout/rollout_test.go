package rollout

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/shipit/internal/config"
	"github.com/lucasnoah/shipit/internal/shell"
	"github.com/lucasnoah/shipit/internal/version"
)

type step struct {
	stdout string
	code   int
}

type sequenceRunner struct {
	steps []step
	calls int
}

func (s *sequenceRunner) Run(ctx context.Context, c shell.Command) (string, string, int, error) {
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	return s.steps[i].stdout, "", s.steps[i].code, nil
}

func testEnv() *config.Environment {
	return &config.Environment{
		Namespace:         "shop-stg",
		PodSelector:       "app=api",
		CloudSDKContainer: "gcloud",
	}
}

const image = "europe-west3-docker.pkg.dev/acme/shop/api"

func pods(entries ...string) string {
	return strings.Join(entries, "|") + "|"
}

func TestParsePods(t *testing.T) {
	got, err := ParsePods(pods(
		"api-7d9-abc "+image+":1.2.0.3 Running",
		"api-7d9-def localhost:5000/api:1.2.0.2 Pending",
	))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Pod{Name: "api-7d9-abc", Image: image, Version: "1.2.0.3", Phase: "Running"}, got[0])
	assert.Equal(t, "localhost:5000/api", got[1].Image)
	assert.Equal(t, "1.2.0.2", got[1].Version)
}

func TestParsePods_Empty(t *testing.T) {
	got, err := ParsePods("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParsePods_Malformed(t *testing.T) {
	for _, out := range []string{
		"api-1 Running|",
		"api-1 " + image + " Running|",
		"api-1 localhost:5000/api Running|",
		"api-1 " + image + ": Running|",
	} {
		_, err := ParsePods(out)
		assert.Error(t, err, "ParsePods(%q)", out)
	}
}

func TestPodsCommand(t *testing.T) {
	c := PodsCommand(testEnv())
	assert.Equal(t, []string{
		"docker", "exec", "gcloud",
		"kubectl", "get", "pods", "-n", "shop-stg", "-l", "app=api",
		"-o", "jsonpath=" + podsJSONPath,
	}, c.Argv())
}

func TestConverged(t *testing.T) {
	target := version.MustParse("1.2.0.3")
	assert.False(t, Converged(nil, target), "no pods is not converged")
	assert.True(t, Converged([]Pod{{Version: "1.2.0.3"}, {Version: "1.2.0.3"}}, target))
	assert.False(t, Converged([]Pod{{Version: "1.2.0.3"}, {Version: "1.2.0.2"}}, target))
}

func newTestWatcher(r shell.Runner) (*Watcher, *bytes.Buffer, *int) {
	var out bytes.Buffer
	sleeps := 0
	w := NewWatcher(r, &out)
	w.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return ctx.Err()
	}
	return w, &out, &sleeps
}

func TestWait_LaggingPodKeepsPolling(t *testing.T) {
	old := "api-b " + image + ":1.2.0.2 Running"
	r := &sequenceRunner{steps: []step{
		{stdout: pods("api-a "+image+":1.2.0.3 Running", old)},
		{stdout: pods("api-a "+image+":1.2.0.3 Running", old)},
		{stdout: pods("api-a "+image+":1.2.0.3 Running", "api-c "+image+":1.2.0.3 Pending")},
		{stdout: pods("api-a "+image+":1.2.0.3 Running", "api-c "+image+":1.2.0.3 Running")},
	}}
	w, out, sleeps := newTestWatcher(r)

	err := w.Wait(context.Background(), testEnv(), version.MustParse("1.2.0.3"))
	require.NoError(t, err)
	assert.Equal(t, 3, r.calls, "converges on the third query")
	assert.Equal(t, 2, *sleeps)

	// the unchanged second table is not redrawn
	assert.Equal(t, 2, strings.Count(out.String(), "POD"))
	assert.Contains(t, out.String(), "\033[3A\033[J", "redraw moves up over the previous table")
}

func TestWait_RetriesQueryErrors(t *testing.T) {
	r := &sequenceRunner{steps: []step{
		{code: 1},
		{stdout: "garbage|"},
		{stdout: pods("api-a " + image + ":2.0.0 Running")},
	}}
	w, out, _ := newTestWatcher(r)

	err := w.Wait(context.Background(), testEnv(), version.MustParse("2.0.0"))
	require.NoError(t, err)
	assert.Equal(t, 3, r.calls)
	assert.Equal(t, 3, strings.Count(out.String(), "\r\033[K"), "two error lines plus one clear")
}

func TestWait_NoPodsKeepsPolling(t *testing.T) {
	r := &sequenceRunner{steps: []step{
		{stdout: ""},
		{stdout: pods("api-a " + image + ":2.0.0 Running")},
	}}
	w, _, _ := newTestWatcher(r)

	require.NoError(t, w.Wait(context.Background(), testEnv(), version.MustParse("2.0.0")))
	assert.Equal(t, 2, r.calls)
}

func TestWait_ContextCanceled(t *testing.T) {
	r := &sequenceRunner{steps: []step{{stdout: pods("api-a " + image + ":1.0.0 Running")}}}
	ctx, cancel := context.WithCancel(context.Background())
	w, _, _ := newTestWatcher(r)
	w.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	err := w.Wait(ctx, testEnv(), version.MustParse("2.0.0"))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, r.calls)
}
