package core

import (
	"dentalcore/pkg/domain"
	"fmt"
	"time"
)

// productionOrder fixes the fabrication pipeline. No skipping, no backward
// movement except through ReopenProduction.
var productionOrder = []domain.ProductionStage{
	domain.StageDesign,
	domain.StagePrinting,
	domain.StageMilling,
	domain.StageFinishing,
	domain.StageQC,
	domain.StagePackaging,
}

func stageIndex(stage domain.ProductionStage) int {
	for i, s := range productionOrder {
		if s == stage {
			return i
		}
	}
	return -1
}

// ProductionStages returns the ordered fabrication stages.
func ProductionStages() []domain.ProductionStage {
	out := make([]domain.ProductionStage, len(productionOrder))
	copy(out, productionOrder)
	return out
}

const productionCompleteNote = "production complete"

// StartProduction moves an in-planning case with a resolved laboratory into
// the production pipeline at the first stage.
func StartProduction(c *domain.Case) error {
	if c.Status != domain.StatusInPlanning {
		return domain.InvalidTransitionError{CaseID: c.CaseID, Status: c.Status, Stage: c.ProductionStage, Reason: "only in-planning cases can enter production"}
	}
	if c.LabID == "" {
		return domain.LabNotAssignedError{CaseID: c.CaseID}
	}
	stage := domain.StageDesign
	c.Status = domain.StatusInProduction
	c.ProductionStage = &stage
	return nil
}

// AdvanceProduction moves the case to the next stage in order. Advancing from
// packaging is rejected; CompleteProduction owns that hand-off.
func AdvanceProduction(c *domain.Case) error {
	if c.Status != domain.StatusInProduction || c.ProductionStage == nil {
		return domain.InvalidTransitionError{CaseID: c.CaseID, Status: c.Status, Stage: c.ProductionStage, Reason: "case is not in production"}
	}
	idx := stageIndex(*c.ProductionStage)
	if idx < 0 {
		return domain.InvalidTransitionError{CaseID: c.CaseID, Status: c.Status, Stage: c.ProductionStage, Reason: fmt.Sprintf("unknown production stage %q", *c.ProductionStage)}
	}
	if idx == len(productionOrder)-1 {
		return domain.InvalidTransitionError{CaseID: c.CaseID, Status: c.Status, Stage: c.ProductionStage, Reason: "packaging is the final stage; use CompleteProduction"}
	}
	next := productionOrder[idx+1]
	c.ProductionStage = &next
	return nil
}

// ReopenProduction moves the case backward to target for rework. The target
// must be strictly earlier than the current stage.
func ReopenProduction(c *domain.Case, target domain.ProductionStage) error {
	if c.Status != domain.StatusInProduction || c.ProductionStage == nil {
		return domain.InvalidTransitionError{CaseID: c.CaseID, Status: c.Status, Stage: c.ProductionStage, Reason: "case is not in production"}
	}
	cur := stageIndex(*c.ProductionStage)
	tgt := stageIndex(target)
	if tgt < 0 {
		return domain.InvalidTransitionError{CaseID: c.CaseID, Status: c.Status, Stage: c.ProductionStage, Reason: fmt.Sprintf("unknown production stage %q", target)}
	}
	if tgt >= cur {
		return domain.InvalidTransitionError{CaseID: c.CaseID, Status: c.Status, Stage: c.ProductionStage, Reason: fmt.Sprintf("reopen target %s is not earlier than current stage", target)}
	}
	stage := target
	c.ProductionStage = &stage
	return nil
}

// AssignTechnician sets or clears the technician carrying the case. Legal at
// any production stage.
func AssignTechnician(c *domain.Case, technicianID *string) error {
	if c.Status != domain.StatusInProduction {
		return domain.InvalidTransitionError{CaseID: c.CaseID, Status: c.Status, Stage: c.ProductionStage, Reason: "technician assignment requires an in-production case"}
	}
	c.TechnicianID = technicianID
	return nil
}

// CompleteProduction hands a fully packaged case to the transit pipeline:
// status in-transit, transit status pending-pickup, stage cleared, and the
// first transit history entry appended at the clinic location.
func CompleteProduction(c *domain.Case, now time.Time) error {
	if c.Status != domain.StatusInProduction || c.ProductionStage == nil || *c.ProductionStage != domain.StagePackaging {
		return domain.InvalidTransitionError{CaseID: c.CaseID, Status: c.Status, Stage: c.ProductionStage, Reason: "production completes only from packaging"}
	}
	status := domain.TransitPendingPickup
	notes := productionCompleteNote
	c.Status = domain.StatusInTransit
	c.ProductionStage = nil
	c.TransitStatus = &status
	c.CurrentLocation = c.ClinicName
	c.TransitHistory = append(c.TransitHistory, domain.TransitEvent{
		Timestamp: now,
		Location:  c.ClinicName,
		Status:    status,
		Notes:     &notes,
	})
	return nil
}
