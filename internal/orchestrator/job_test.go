package orchestrator

import (
	"testing"

	"github.com/google/uuid"

	"github.com/adloophq/adloop-backend/internal/domain"
)

func TestJobForFlow(t *testing.T) {
	flowID := uuid.New()
	stepID := uuid.New()

	step := func(state domain.StepState, iteration int) *StepSnapshot {
		return &StepSnapshot{ID: stepID, Iteration: iteration, State: state}
	}

	cases := []struct {
		name         string
		snap         FlowSnapshot
		wantType     JobType
		wantPriority int
		wantStepID   bool
		wantNil      bool
	}{
		{
			name:         "no steps yet",
			snap:         FlowSnapshot{FlowID: flowID, MaxIterations: 2},
			wantType:     JobCreateFirstStep,
			wantPriority: PriorityCreateStep,
		},
		{
			name:         "generating",
			snap:         FlowSnapshot{FlowID: flowID, Latest: step(domain.StepGenerating, 0), MaxIterations: 2},
			wantType:     JobRunGenerating,
			wantPriority: PriorityGenerating,
			wantStepID:   true,
		},
		{
			name:         "collecting",
			snap:         FlowSnapshot{FlowID: flowID, Latest: step(domain.StepCollecting, 0), MaxIterations: 2},
			wantType:     JobRunCollectingData,
			wantPriority: PriorityCollecting,
			wantStepID:   true,
		},
		{
			name:         "analyzing",
			snap:         FlowSnapshot{FlowID: flowID, Latest: step(domain.StepAnalyzing, 0), MaxIterations: 2},
			wantType:     JobRunAnalyzing,
			wantPriority: PriorityAnalyzing,
			wantStepID:   true,
		},
		{
			name:         "completed below max iterations",
			snap:         FlowSnapshot{FlowID: flowID, Latest: step(domain.StepCompleted, 0), MaxIterations: 2},
			wantType:     JobCreateNextIteration,
			wantPriority: PriorityCreateStep,
			wantStepID:   true,
		},
		{
			name:    "completed at max iterations",
			snap:    FlowSnapshot{FlowID: flowID, Latest: step(domain.StepCompleted, 1), MaxIterations: 2},
			wantNil: true,
		},
		{
			name:    "single iteration flow done",
			snap:    FlowSnapshot{FlowID: flowID, Latest: step(domain.StepCompleted, 0), MaxIterations: 1},
			wantNil: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := JobForFlow(tc.snap)
			if tc.wantNil {
				if got != nil {
					t.Fatalf("JobForFlow(%s)=%+v, want nil", tc.name, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("JobForFlow(%s)=nil, want %s", tc.name, tc.wantType)
			}
			if got.Type != tc.wantType {
				t.Fatalf("type: want=%s got=%s", tc.wantType, got.Type)
			}
			if got.Priority != tc.wantPriority {
				t.Fatalf("priority: want=%d got=%d", tc.wantPriority, got.Priority)
			}
			if got.FlowID != flowID {
				t.Fatalf("flow id: want=%s got=%s", flowID, got.FlowID)
			}
			if tc.wantStepID && (got.StepID == nil || *got.StepID != stepID) {
				t.Fatalf("step id: want=%s got=%v", stepID, got.StepID)
			}
			if !tc.wantStepID && got.StepID != nil {
				t.Fatalf("step id should be nil, got=%v", got.StepID)
			}
		})
	}
}
