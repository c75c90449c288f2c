package core

import (
	"context"
	"fmt"

	"dentalcore/pkg/domain"
)

// HistoryAppendOnlyRule blocks commits that shrink or rewrite a case's
// transit history, and commits that leave an in-transit case whose status
// disagrees with the last logged entry.
func HistoryAppendOnlyRule() domain.Rule {
	return historyAppendOnlyRule{}
}

type historyAppendOnlyRule struct{}

func (historyAppendOnlyRule) Name() string { return "history_append_only" }

func (historyAppendOnlyRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "history_append_only",
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityCase,
			EntityID: id,
		})
	}
	for _, change := range changes {
		if change.Action != domain.ActionUpdate {
			continue
		}
		after, ok := caseAfter(change)
		if !ok {
			continue
		}
		before, ok := caseBefore(change)
		if !ok {
			continue
		}
		if len(after.TransitHistory) < len(before.TransitHistory) {
			block(after.ID, fmt.Sprintf("case %s transit history shrank from %d to %d entries", after.CaseID, len(before.TransitHistory), len(after.TransitHistory)))
			continue
		}
		rewritten := false
		for i, entry := range before.TransitHistory {
			got := after.TransitHistory[i]
			if !got.Timestamp.Equal(entry.Timestamp) || got.Status != entry.Status || got.Location != entry.Location {
				block(after.ID, fmt.Sprintf("case %s transit history entry %d was rewritten", after.CaseID, i))
				rewritten = true
				break
			}
		}
		if rewritten {
			continue
		}
		if after.Status == domain.StatusInTransit && after.TransitStatus != nil && len(after.TransitHistory) > 0 {
			last := after.TransitHistory[len(after.TransitHistory)-1]
			if last.Status != *after.TransitStatus {
				block(after.ID, fmt.Sprintf("case %s transit status %s disagrees with last history entry %s", after.CaseID, *after.TransitStatus, last.Status))
			}
		}
	}
	return res, nil
}
