// Package pipeline drives the review stages over an explicit per-session
// workflow state. Every stage computes a Transition that the Session commits
// atomically; no stage mutates shared state directly.
package pipeline

import (
	"errors"

	"github.com/Lllllllleong/documentreviewflow/internal/models"
	"github.com/Lllllllleong/documentreviewflow/internal/notify"
)

// Stage identifies one user-triggered unit of work.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageSummarize Stage = "summarize"
	StagePopulate  Stage = "populate"
	StageGenerate  Stage = "generate"
	StageCritique  Stage = "critique"
	StageSave      Stage = "save"
	StageSpeak     Stage = "speak"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{
	StageExtract,
	StageSummarize,
	StagePopulate,
	StageGenerate,
	StageCritique,
	StageSave,
	StageSpeak,
}

// ParseStage returns the stage named s.
func ParseStage(s string) (Stage, bool) {
	for _, st := range Stages {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// StageStatus is the lifecycle of one stage. Failed is never terminal.
type StageStatus string

const (
	StatusIdle      StageStatus = "Idle"
	StatusRunning   StageStatus = "Running"
	StatusSucceeded StageStatus = "Succeeded"
	StatusFailed    StageStatus = "Failed"
)

var (
	// ErrPrecondition means a stage was invoked before its inputs existed.
	// No call was made and no status changed.
	ErrPrecondition = errors.New("stage precondition not met")
	// ErrStageBusy means the stage is already running in this session.
	ErrStageBusy = errors.New("stage already running")
	// ErrStale means the inputs a result was derived from were replaced while
	// the call was in flight, so the result was discarded.
	ErrStale = errors.New("result is stale")
	// ErrReferenceNotFound is returned for unknown reference IDs.
	ErrReferenceNotFound = errors.New("reference document not found")
)

// WorkflowState is the shared data the stages read and write. OutputKind is
// set whenever GeneratedOutput is; it may also be set alone after a failed
// generate.
type WorkflowState struct {
	Extracted       *models.ExtractedDocument `json:"extracted"`
	Summary         string                    `json:"summary"`
	Reference       *models.ReferenceDocument `json:"reference"`
	GeneratedOutput string                    `json:"generatedOutput"`
	OutputKind      models.OutputKind         `json:"outputKind"`
	Critique        string                    `json:"critique"`
	Draft           models.ReferenceDraft     `json:"draft"`
}

// Transition describes the outcome of a stage. Apply runs under the session
// lock and may be nil.
type Transition struct {
	Stage   Stage
	Status  StageStatus
	Apply   func(*WorkflowState)
	Intent  notify.Intent
	Message string
}

// Snapshot is a consistent copy of a session.
type Snapshot struct {
	ID       string                `json:"id"`
	State    WorkflowState         `json:"state"`
	Statuses map[Stage]StageStatus `json:"statuses"`
	Playing  bool                  `json:"playing"`
}

// clearOutput invalidates the generated report and everything derived from it.
func (st *WorkflowState) clearOutput() {
	st.GeneratedOutput = ""
	st.OutputKind = models.OutputNone
	st.Critique = ""
}
