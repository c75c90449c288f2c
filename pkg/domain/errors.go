package domain

import "fmt"

// ErrNotFound is returned when reference validation fails within
// transactional helpers.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NoCapableLaboratoryError reports that no candidate laboratory offers the
// requested procedure. It is surfaced to case intake and never retried.
type NoCapableLaboratoryError struct {
	CompanyID string
	Procedure string
}

func (e NoCapableLaboratoryError) Error() string {
	return fmt.Sprintf("no laboratory offers procedure %q for company %s", e.Procedure, e.CompanyID)
}

// LabNotAssignedError reports an attempt to enter production before a
// laboratory was resolved for the case.
type LabNotAssignedError struct {
	CaseID string
}

func (e LabNotAssignedError) Error() string {
	return fmt.Sprintf("case %s has no assigned laboratory", e.CaseID)
}

// InvalidTransitionError reports an illegal production stage change. The
// attempted operation is never coerced into a legal one.
type InvalidTransitionError struct {
	CaseID string
	Status CaseStatus
	Stage  *ProductionStage
	Reason string
}

func (e InvalidTransitionError) Error() string {
	stage := "<none>"
	if e.Stage != nil {
		stage = string(*e.Stage)
	}
	return fmt.Sprintf("invalid production transition for case %s (status %s, stage %s): %s", e.CaseID, e.Status, stage, e.Reason)
}

// InvalidTransitTransitionError reports an illegal transit status change,
// carrying the attempted and current statuses for diagnostics.
type InvalidTransitTransitionError struct {
	CaseID string
	From   TransitStatus
	To     TransitStatus
}

func (e InvalidTransitTransitionError) Error() string {
	return fmt.Sprintf("invalid transit transition for case %s: %s -> %s", e.CaseID, e.From, e.To)
}

// ConflictError reports that a transition lost a race against a concurrent
// writer on the same case. Callers should re-read state and decide on a
// fresh transition rather than blindly retrying.
type ConflictError struct {
	Entity          EntityType
	ID              string
	ExpectedVersion int64
	ActualVersion   int64
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s %s modified concurrently (expected version %d, found %d)", e.Entity, e.ID, e.ExpectedVersion, e.ActualVersion)
}
