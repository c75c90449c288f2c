package core

import "dentalcore/pkg/domain"

// DefaultRulesEngine wires the standard invariant rules evaluated at every
// transaction commit.
func DefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(StatusIntegrityRule())
	engine.Register(HistoryAppendOnlyRule())
	engine.Register(PriceMissingRule())
	return engine
}

func caseAfter(change domain.Change) (domain.Case, bool) {
	if change.Entity != domain.EntityCase || change.After == nil {
		return domain.Case{}, false
	}
	c, ok := change.After.(domain.Case)
	return c, ok
}

func caseBefore(change domain.Change) (domain.Case, bool) {
	if change.Entity != domain.EntityCase || change.Before == nil {
		return domain.Case{}, false
	}
	c, ok := change.Before.(domain.Case)
	return c, ok
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
