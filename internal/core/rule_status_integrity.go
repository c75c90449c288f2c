package core

import (
	"context"
	"fmt"

	"dentalcore/pkg/domain"
)

// StatusIntegrityRule blocks commits that leave a case with an inconsistent
// status/sub-stage combination or a value outside the closed enums.
func StatusIntegrityRule() domain.Rule {
	return statusIntegrityRule{}
}

type statusIntegrityRule struct{}

var validCaseStatuses = toSet(
	string(domain.StatusInPlanning),
	string(domain.StatusInProduction),
	string(domain.StatusInTransit),
	string(domain.StatusCompleted),
)

var validProductionStages = toSet(
	string(domain.StageDesign),
	string(domain.StagePrinting),
	string(domain.StageMilling),
	string(domain.StageFinishing),
	string(domain.StageQC),
	string(domain.StagePackaging),
)

var validTransitStatuses = toSet(
	string(domain.TransitPendingPickup),
	string(domain.TransitPickedUp),
	string(domain.TransitInTransit),
	string(domain.TransitOutForDelivery),
	string(domain.TransitDelivered),
	string(domain.TransitFailedDelivery),
)

func (statusIntegrityRule) Name() string { return "status_integrity" }

func (statusIntegrityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "status_integrity",
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityCase,
			EntityID: id,
		})
	}
	for _, change := range changes {
		if change.Action == domain.ActionDelete {
			continue
		}
		c, ok := caseAfter(change)
		if !ok {
			continue
		}
		if _, valid := validCaseStatuses[string(c.Status)]; !valid {
			block(c.ID, fmt.Sprintf("case %s has invalid status %q", c.CaseID, c.Status))
			continue
		}
		if c.ProductionStage != nil {
			if _, valid := validProductionStages[string(*c.ProductionStage)]; !valid {
				block(c.ID, fmt.Sprintf("case %s has invalid production stage %q", c.CaseID, *c.ProductionStage))
			}
		}
		if c.TransitStatus != nil {
			if _, valid := validTransitStatuses[string(*c.TransitStatus)]; !valid {
				block(c.ID, fmt.Sprintf("case %s has invalid transit status %q", c.CaseID, *c.TransitStatus))
			}
		}
		if (c.Status == domain.StatusInProduction) != (c.ProductionStage != nil) {
			block(c.ID, fmt.Sprintf("case %s production stage must be set exactly while in production", c.CaseID))
		}
		if (c.Status == domain.StatusInTransit) != (c.TransitStatus != nil) {
			block(c.ID, fmt.Sprintf("case %s transit status must be set exactly while in transit", c.CaseID))
		}
		if c.Status == domain.StatusInProduction && c.LabID == "" {
			block(c.ID, fmt.Sprintf("case %s entered production without an assigned laboratory", c.CaseID))
		}
	}
	return res, nil
}
