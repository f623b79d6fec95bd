package orchestrator

import (
	"github.com/google/uuid"

	"github.com/adloophq/adloop-backend/internal/domain"
)

// JobType names the unit of work the discovery scan can emit for a flow.
type JobType string

const (
	JobCreateFirstStep     JobType = "create_first_step"
	JobRunGenerating       JobType = "run_generating"
	JobRunCollectingData   JobType = "run_collecting_data"
	JobRunAnalyzing        JobType = "run_analyzing"
	JobCreateNextIteration JobType = "create_next_iteration"
)

// Job priorities. Lower runs first: step creation beats phase work so new
// flows and fresh iterations start promptly.
const (
	PriorityCreateStep = 0
	PriorityGenerating = 1
	PriorityCollecting = 2
	PriorityAnalyzing  = 3
)

// Job is a unit of due work derived from persisted flow state. Jobs are
// never stored; the scan recomputes them from scratch every poll.
type Job struct {
	Type     JobType    `json:"type"`
	FlowID   uuid.UUID  `json:"flow_id"`
	StepID   *uuid.UUID `json:"step_id,omitempty"`
	Priority int        `json:"priority"`
}

// JobResult reports one job execution.
type JobResult struct {
	Job     Job            `json:"job"`
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Config tunes one orchestrator instance.
type Config struct {
	NumImagesPerStep int
	TopNWinners      int
	ImageWidth       int
	ImageHeight      int
	BaseCategory     domain.AssetCategory
	EmbeddingDim     int
}

func DefaultConfig() Config {
	return Config{
		NumImagesPerStep: 5,
		TopNWinners:      2,
		ImageWidth:       1024,
		ImageHeight:      1024,
		BaseCategory:     domain.CategoryModel,
		EmbeddingDim:     1536,
	}
}

// FlowSnapshot is the minimal view of a flow the discovery rule needs.
type FlowSnapshot struct {
	FlowID        uuid.UUID
	Latest        *StepSnapshot
	MaxIterations int
}

type StepSnapshot struct {
	ID        uuid.UUID
	Iteration int
	State     domain.StepState
}

// JobForFlow derives the single due job for a flow from its latest step, or
// nil when the flow is finished. This is the whole scheduling rule: state
// and iteration count determine the job, nothing else.
func JobForFlow(snap FlowSnapshot) *Job {
	if snap.Latest == nil {
		return &Job{Type: JobCreateFirstStep, FlowID: snap.FlowID, Priority: PriorityCreateStep}
	}

	stepID := snap.Latest.ID
	switch snap.Latest.State {
	case domain.StepGenerating:
		return &Job{Type: JobRunGenerating, FlowID: snap.FlowID, StepID: &stepID, Priority: PriorityGenerating}
	case domain.StepCollecting:
		return &Job{Type: JobRunCollectingData, FlowID: snap.FlowID, StepID: &stepID, Priority: PriorityCollecting}
	case domain.StepAnalyzing:
		return &Job{Type: JobRunAnalyzing, FlowID: snap.FlowID, StepID: &stepID, Priority: PriorityAnalyzing}
	case domain.StepCompleted:
		if snap.Latest.Iteration < snap.MaxIterations-1 {
			return &Job{Type: JobCreateNextIteration, FlowID: snap.FlowID, StepID: &stepID, Priority: PriorityCreateStep}
		}
		return nil
	}
	return nil
}
