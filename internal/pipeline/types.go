package pipeline

import (
	"fmt"

	"github.com/lucasnoah/shipit/internal/config"
	"github.com/lucasnoah/shipit/internal/version"
	"github.com/lucasnoah/shipit/internal/workflow"
)

// Stage names in execution order.
const (
	StageValidateConfig      = "validate-config"
	StageSelectEnv           = "select-env"
	StageValidateSelectedEnv = "validate-selected-env"
	StagePreDiffBranches     = "pre-diff-branches"
	StageFetchCurrent        = "fetch-current-version"
	StageDiffBranchWithTag   = "diff-branch-with-tag"
	StageFetchBelowAbove     = "fetch-below-above-versions"
	StageComputePreferred    = "compute-preferred-version"
	StageConfirmVersion      = "confirm-user-version"
	StageCreateTag           = "create-git-tag"
	StageClone               = "clone-source"
	StagePreBuild            = "run-pre-build-commands"
	StageAfterClone          = "run-after-clone-hook"
	StageBuildImage          = "build-image"
	StagePushImage           = "push-image"
	StageDeleteLocalImage    = "delete-local-image"
	StageDeleteBuildDir      = "delete-build-dir"
	StagePruneDocker         = "prune-docker"
	StageDeploy              = "deploy"
	StageWaitRollout         = "wait-for-rollout"
	StageSuccess             = "success"
)

// Stages lists every stage name in execution order.
var Stages = []string{
	StageValidateConfig,
	StageSelectEnv,
	StageValidateSelectedEnv,
	StagePreDiffBranches,
	StageFetchCurrent,
	StageDiffBranchWithTag,
	StageFetchBelowAbove,
	StageComputePreferred,
	StageConfirmVersion,
	StageCreateTag,
	StageClone,
	StagePreBuild,
	StageAfterClone,
	StageBuildImage,
	StagePushImage,
	StageDeleteLocalImage,
	StageDeleteBuildDir,
	StagePruneDocker,
	StageDeploy,
	StageWaitRollout,
	StageSuccess,
}

// StopIndex returns the index of the checkpoint stage, or len(Stages) when
// name is empty.
func StopIndex(name string) (int, error) {
	if name == "" {
		return len(Stages), nil
	}
	for i, s := range Stages {
		if s == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown checkpoint stage %q (see `shipit stages`)", name)
}

// State is what the stages of one run have learned so far.
type State struct {
	Workflow workflow.Code
	Tier     workflow.Tier
	Env      *config.Environment

	Current *version.Version
	Below   *version.Version
	Above   *version.Version

	Preferred *version.Version
	Next      *version.Version
}

// Halt ends a run early without failing it.
type Halt struct {
	Reason string
	// URL is set when the operator has to act on a web page.
	URL string
}

func (h *Halt) Error() string {
	return h.Reason
}

// Result describes how a run ended.
type Result struct {
	State State
	// Completed is true when every stage ran.
	Completed bool
	// Checkpoint is the stage the run stopped before, if any.
	Checkpoint string
	// Halt is set when a stage ended the run early.
	Halt *Halt
	// Stage is the last stage that ran.
	Stage string
}
