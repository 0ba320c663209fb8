package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/lucasnoah/shipit/internal/build"
	"github.com/lucasnoah/shipit/internal/config"
	"github.com/lucasnoah/shipit/internal/console"
	"github.com/lucasnoah/shipit/internal/db"
	"github.com/lucasnoah/shipit/internal/prompt"
	"github.com/lucasnoah/shipit/internal/resolver"
	"github.com/lucasnoah/shipit/internal/version"
	"github.com/lucasnoah/shipit/internal/workflow"
)

// GitOps is the hosted git API the pipeline needs.
type GitOps interface {
	DiffCount(ctx context.Context, from, to string) (int, error)
	MergeRequestURL(source, target string) string
	RecreateTag(ctx context.Context, name, ref string) error
}

// Registry reports the latest released version of an environment.
type Registry interface {
	Latest(ctx context.Context, env *config.Environment) (*version.Version, error)
}

// Driver builds, ships and deploys the image.
type Driver interface {
	Clone(ctx context.Context, tag string) error
	RunPreBuild(ctx context.Context, env *config.Environment) error
	RunAfterClone(ctx context.Context, env *config.Environment, vars build.Vars) error
	FixNameserver() error
	BuildImage(ctx context.Context, env *config.Environment, v version.Version) error
	PushImage(ctx context.Context, env *config.Environment, v version.Version) error
	DeleteLocalImage(ctx context.Context, env *config.Environment, v version.Version) error
	DeleteBuildDir(ctx context.Context) error
	Prune(ctx context.Context) error
	Deploy(ctx context.Context, env *config.Environment, v version.Version) error
}

// Rollout waits for a deployment to converge.
type Rollout interface {
	Wait(ctx context.Context, env *config.Environment, target version.Version) error
}

// Recorder stores completed releases.
type Recorder interface {
	RecordRelease(ctx context.Context, r db.Release) (int64, error)
}

// Operator answers the run's questions.
type Operator interface {
	workflow.Chooser
	resolver.Asker
}

// Deps are the collaborators of an Orchestrator. Recorder may be nil.
type Deps struct {
	Git      GitOps
	Registry Registry
	Driver   Driver
	Rollout  Rollout
	Operator Operator
	Recorder Recorder
}

// Options tune a single run.
type Options struct {
	// Env preselects the tier (stg, rc, prod) instead of prompting.
	Env string
	// StopBefore overrides the configured checkpoint.
	StopBefore string
}

type stage struct {
	name string
	run  func(ctx context.Context, s State) (State, error)
}

// Orchestrator runs the release stages in order.
type Orchestrator struct {
	cfg      *config.Config
	deps     Deps
	opts     Options
	out      io.Writer // operator-facing messages
	progress io.Writer // live progress output; nil = silent
	logger   log.Logger
	now      func() time.Time
}

// New creates an Orchestrator.
func New(cfg *config.Config, deps Deps, opts Options) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		opts:   opts,
		out:    io.Discard,
		logger: log.NewNopLogger(),
		now:    time.Now,
	}
}

// SetOutput sets the writer for messages addressed to the operator.
func (o *Orchestrator) SetOutput(w io.Writer) {
	o.out = w
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (o *Orchestrator) SetProgress(w io.Writer) {
	o.progress = w
}

// SetLogger sets the structured logger.
func (o *Orchestrator) SetLogger(l log.Logger) {
	o.logger = log.With(l, "component", "pipeline")
}

// logf prints a progress line if a progress writer is configured.
func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o.progress != nil {
		fmt.Fprintf(o.progress, "  → "+format+"\n", args...)
	}
}

// Run executes the stages until the checkpoint, a halt or an error.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	checkpoint := o.opts.StopBefore
	if checkpoint == "" {
		checkpoint = o.cfg.StopBefore
	}
	stop, err := StopIndex(checkpoint)
	if err != nil {
		return nil, err
	}

	stages := o.stages()
	var state State
	result := &Result{}
	for i, st := range stages {
		if i == stop {
			o.logf("checkpoint reached, stopping before %s", st.name)
			result.State = state
			result.Checkpoint = st.name
			return result, nil
		}

		o.logf("[%d/%d] %s", i+1, len(stages), st.name)
		start := o.now()
		next, err := st.run(ctx, state)
		o.logger.Log("stage", st.name, "took", o.now().Sub(start), "err", err)
		result.Stage = st.name

		if err != nil {
			var halt *Halt
			if errors.As(err, &halt) {
				result.State = next
				result.Halt = halt
				return result, nil
			}
			return nil, fmt.Errorf("%s: %w", st.name, err)
		}
		state = next
	}

	result.State = state
	result.Completed = true
	return result, nil
}

func (o *Orchestrator) stages() []stage {
	return []stage{
		{StageValidateConfig, o.validateConfig},
		{StageSelectEnv, o.selectEnv},
		{StageValidateSelectedEnv, o.validateSelectedEnv},
		{StagePreDiffBranches, o.preDiffBranches},
		{StageFetchCurrent, o.fetchCurrent},
		{StageDiffBranchWithTag, o.diffBranchWithTag},
		{StageFetchBelowAbove, o.fetchBelowAbove},
		{StageComputePreferred, o.computePreferred},
		{StageConfirmVersion, o.confirmVersion},
		{StageCreateTag, o.createTag},
		{StageClone, o.clone},
		{StagePreBuild, o.preBuild},
		{StageAfterClone, o.afterClone},
		{StageBuildImage, o.buildImage},
		{StagePushImage, o.pushImage},
		{StageDeleteLocalImage, o.deleteLocalImage},
		{StageDeleteBuildDir, o.deleteBuildDir},
		{StagePruneDocker, o.prune},
		{StageDeploy, o.deploy},
		{StageWaitRollout, o.waitRollout},
		{StageSuccess, o.success},
	}
}

func (o *Orchestrator) validateConfig(ctx context.Context, s State) (State, error) {
	if err := config.Errors(config.ValidateRun(o.cfg)); err != nil {
		return s, err
	}
	code, err := workflow.FromEnvironments(o.cfg.Environments)
	if err != nil {
		return s, err
	}
	s.Workflow = code
	o.logf("workflow %s (%v)", code, code.Tiers())
	return s, nil
}

func (o *Orchestrator) selectEnv(ctx context.Context, s State) (State, error) {
	tier, err := workflow.SelectTier(o.deps.Operator, s.Workflow, o.opts.Env)
	if err != nil {
		return s, err
	}
	s.Tier = tier
	s.Env = workflow.EnvironmentFor(o.cfg.Environments, tier)
	o.logf("releasing to %s", tier.Name())
	return s, nil
}

func (o *Orchestrator) validateSelectedEnv(ctx context.Context, s State) (State, error) {
	return s, config.Errors(config.ValidateEnvironment(s.Env))
}

// preDiffBranches stops the run when the promotion source has changes that
// are not merged into the release branch yet.
func (o *Orchestrator) preDiffBranches(ctx context.Context, s State) (State, error) {
	if s.Env.PrevBranch == "" {
		o.logf("no promotion branch configured")
		return s, nil
	}
	n, err := o.deps.Git.DiffCount(ctx, s.Env.Branch, s.Env.PrevBranch)
	if err != nil {
		return s, err
	}
	if n == 0 {
		o.logf("%s is merged into %s", s.Env.PrevBranch, s.Env.Branch)
		return s, nil
	}

	url := o.deps.Git.MergeRequestURL(s.Env.PrevBranch, s.Env.Branch)
	fmt.Fprintln(o.out, console.Warn(fmt.Sprintf("%s has %d changed file(s) not merged into %s", s.Env.PrevBranch, n, s.Env.Branch)))
	fmt.Fprintf(o.out, "Open a merge request, merge it and run again:\n  %s\n", url)
	return s, &Halt{Reason: fmt.Sprintf("%s is not merged into %s", s.Env.PrevBranch, s.Env.Branch), URL: url}
}

func (o *Orchestrator) fetchCurrent(ctx context.Context, s State) (State, error) {
	cur, err := o.deps.Registry.Latest(ctx, s.Env)
	if err != nil {
		return s, err
	}
	s.Current = cur
	o.logf("current %s version: %s", s.Tier, version.Format(cur))
	return s, nil
}

// diffBranchWithTag stops the run when the release branch has nothing new
// since the current release.
func (o *Orchestrator) diffBranchWithTag(ctx context.Context, s State) (State, error) {
	if s.Current == nil {
		o.logf("first release, nothing to compare")
		return s, nil
	}
	n, err := o.deps.Git.DiffCount(ctx, s.Current.Tag(), s.Env.Branch)
	if err != nil {
		return s, err
	}
	if n == 0 {
		fmt.Fprintln(o.out, console.OK(fmt.Sprintf("%s is already released as %s, nothing to do", s.Env.Branch, s.Current.Tag())))
		return s, &Halt{Reason: fmt.Sprintf("no changes on %s since %s", s.Env.Branch, s.Current.Tag())}
	}
	o.logf("%d changed file(s) since %s", n, s.Current.Tag())
	return s, nil
}

func (o *Orchestrator) fetchBelowAbove(ctx context.Context, s State) (State, error) {
	if below, ok := s.Workflow.Below(s.Tier); ok {
		v, err := o.deps.Registry.Latest(ctx, workflow.EnvironmentFor(o.cfg.Environments, below))
		if err != nil {
			return s, fmt.Errorf("%s: %w", below, err)
		}
		s.Below = v
		o.logf("below (%s): %s", below, version.Format(v))
	}

	var above []*version.Version
	for _, t := range s.Workflow.Above(s.Tier) {
		v, err := o.deps.Registry.Latest(ctx, workflow.EnvironmentFor(o.cfg.Environments, t))
		if err != nil {
			return s, fmt.Errorf("%s: %w", t, err)
		}
		o.logf("above (%s): %s", t, version.Format(v))
		above = append(above, v)
	}
	s.Above = version.Max(above...)
	return s, nil
}

func (o *Orchestrator) computePreferred(ctx context.Context, s State) (State, error) {
	v, err := resolver.PreferredNext(s.Workflow, s.Tier, s.Current, s.Below, s.Above)
	if err != nil {
		return s, err
	}
	s.Preferred = &v
	return s, nil
}

func (o *Orchestrator) confirmVersion(ctx context.Context, s State) (State, error) {
	v, err := resolver.Negotiate(o.deps.Operator, o.out, s.Tier, *s.Preferred)
	if errors.Is(err, prompt.ErrCanceled) {
		fmt.Fprintln(o.out, console.Warn("release canceled"))
		return s, &Halt{Reason: "canceled by operator"}
	}
	if err != nil {
		return s, err
	}
	s.Next = &v
	return s, nil
}

func (o *Orchestrator) createTag(ctx context.Context, s State) (State, error) {
	tag := s.Next.Tag()
	if err := o.deps.Git.RecreateTag(ctx, tag, s.Env.Branch); err != nil {
		return s, err
	}
	fmt.Fprintln(o.out, console.OK(fmt.Sprintf("tagged %s at %s", tag, s.Env.Branch)))
	return s, nil
}

func (o *Orchestrator) clone(ctx context.Context, s State) (State, error) {
	return s, o.deps.Driver.Clone(ctx, s.Next.Tag())
}

func (o *Orchestrator) preBuild(ctx context.Context, s State) (State, error) {
	return s, o.deps.Driver.RunPreBuild(ctx, s.Env)
}

func (o *Orchestrator) afterClone(ctx context.Context, s State) (State, error) {
	return s, o.deps.Driver.RunAfterClone(ctx, s.Env, build.HookVars(string(s.Tier), *s.Next))
}

func (o *Orchestrator) buildImage(ctx context.Context, s State) (State, error) {
	if err := o.deps.Driver.FixNameserver(); err != nil {
		return s, err
	}
	return s, o.deps.Driver.BuildImage(ctx, s.Env, *s.Next)
}

func (o *Orchestrator) pushImage(ctx context.Context, s State) (State, error) {
	return s, o.deps.Driver.PushImage(ctx, s.Env, *s.Next)
}

func (o *Orchestrator) deleteLocalImage(ctx context.Context, s State) (State, error) {
	return s, o.deps.Driver.DeleteLocalImage(ctx, s.Env, *s.Next)
}

func (o *Orchestrator) deleteBuildDir(ctx context.Context, s State) (State, error) {
	return s, o.deps.Driver.DeleteBuildDir(ctx)
}

func (o *Orchestrator) prune(ctx context.Context, s State) (State, error) {
	return s, o.deps.Driver.Prune(ctx)
}

func (o *Orchestrator) deploy(ctx context.Context, s State) (State, error) {
	return s, o.deps.Driver.Deploy(ctx, s.Env, *s.Next)
}

func (o *Orchestrator) waitRollout(ctx context.Context, s State) (State, error) {
	return s, o.deps.Rollout.Wait(ctx, s.Env, *s.Next)
}

// success prints the summary and records the release. A failed record is
// reported but does not fail a release that is already live.
func (o *Orchestrator) success(ctx context.Context, s State) (State, error) {
	fmt.Fprintln(o.out, console.OK(fmt.Sprintf("%s %s released to %s", o.cfg.Project, s.Next, s.Tier.Name())))
	fmt.Fprintf(o.out, "  image: %s\n", build.ImageRef(s.Env, *s.Next))

	if o.deps.Recorder == nil {
		return s, nil
	}
	_, err := o.deps.Recorder.RecordRelease(ctx, db.Release{
		Project:    o.cfg.Project,
		Tier:       string(s.Tier),
		Version:    s.Next.String(),
		Tag:        s.Next.Tag(),
		Image:      build.ImageRef(s.Env, *s.Next),
		Workflow:   string(s.Workflow),
		ReleasedBy: o.cfg.Git.User,
	})
	if err != nil {
		o.logger.Log("msg", "release not recorded", "err", err)
		fmt.Fprintln(o.out, console.Warn("release history not updated: "+err.Error()))
	}
	return s, nil
}
