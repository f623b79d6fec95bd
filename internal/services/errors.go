package services

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/adloophq/adloop-backend/internal/domain"
)

type CampaignNotFoundError struct{ ID uuid.UUID }

func (e *CampaignNotFoundError) Error() string {
	return fmt.Sprintf("campaign not found: %s", e.ID)
}

type CampaignSpecNotFoundError struct{ ID uuid.UUID }

func (e *CampaignSpecNotFoundError) Error() string {
	return fmt.Sprintf("campaign spec not found: %s", e.ID)
}

type FlowNotFoundError struct{ ID uuid.UUID }

func (e *FlowNotFoundError) Error() string {
	return fmt.Sprintf("campaign flow not found: %s", e.ID)
}

type StepNotFoundError struct{ ID uuid.UUID }

func (e *StepNotFoundError) Error() string {
	return fmt.Sprintf("flow step not found: %s", e.ID)
}

// CampaignAlreadyExistsError guards the 1:1 spec-to-campaign binding.
type CampaignAlreadyExistsError struct {
	SpecID     uuid.UUID
	CampaignID uuid.UUID
}

func (e *CampaignAlreadyExistsError) Error() string {
	return fmt.Sprintf("campaign %s already exists for spec %s", e.CampaignID, e.SpecID)
}

// InvalidStateTransitionError is returned for any step transition other than
// the single forward edge out of the current state.
type InvalidStateTransitionError struct {
	StepID uuid.UUID
	From   domain.StepState
	To     domain.StepState
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition for step %s: %s -> %s", e.StepID, e.From, e.To)
}

// MissingPhaseOutputError is returned when a transition is requested before
// the current phase has persisted its output record.
type MissingPhaseOutputError struct {
	StepID uuid.UUID
	State  domain.StepState
}

func (e *MissingPhaseOutputError) Error() string {
	return fmt.Sprintf("step %s cannot leave %s: phase output record missing", e.StepID, e.State)
}

// GenerationExhaustedError is returned when every image request of a
// generating pass failed.
type GenerationExhaustedError struct {
	StepID    uuid.UUID
	Requested int
}

func (e *GenerationExhaustedError) Error() string {
	return fmt.Sprintf("generation produced no images for step %s (requested %d)", e.StepID, e.Requested)
}
