package core

import (
	"context"
	"fmt"

	"dentalcore/pkg/domain"
)

// PriceMissingRule flags completed cases without a resolvable price. The
// billing aggregator still counts such cases with an amount of zero, so this
// is a warn-severity reconciliation signal, never a commit blocker.
func PriceMissingRule() domain.Rule {
	return priceMissingRule{}
}

type priceMissingRule struct{}

func (priceMissingRule) Name() string { return "price_missing" }

func (priceMissingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Action == domain.ActionDelete {
			continue
		}
		c, ok := caseAfter(change)
		if !ok {
			continue
		}
		if c.Status == domain.StatusCompleted && c.Price == nil {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "price_missing",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("case %s completed without a price; billing will treat it as zero", c.CaseID),
				Entity:   domain.EntityCase,
				EntityID: c.ID,
			})
		}
	}
	return res, nil
}
