package common

import "errors"

// Business logic errors
var (
	// General errors
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("invalid input")

	// Workflow errors
	ErrNotApprover      = errors.New("user is not an approver for this step")
	ErrStaleDecision    = errors.New("decision does not target the current step")
	ErrAlreadyInReview  = errors.New("version already has a live review entry")
	ErrInactiveWorkflow = errors.New("workflow is inactive or has no steps")

	// Schedule errors
	ErrScheduleConflict = errors.New("schedule overlaps an existing schedule")
	ErrVersionScheduled = errors.New("version already referenced by an active schedule")
)
