package core

import (
	"context"
	"fmt"
	"sort"

	"dentalcore/pkg/domain"
)

// ResolveLab selects a laboratory for the requested procedure. A stored
// preference wins while its laboratory still qualifies; otherwise candidates
// are ranked by daily capacity descending with lab name as the ordinal
// tie-break, and the winner is written back as the new sticky preference.
func ResolveLab(ctx context.Context, prefs domain.PreferenceStore, companyID, procedure string, candidates []domain.Laboratory) (domain.Laboratory, error) {
	capable := make([]domain.Laboratory, 0, len(candidates))
	for _, lab := range candidates {
		if _, ok := lab.Offers(procedure); ok {
			capable = append(capable, lab)
		}
	}
	if len(capable) == 0 {
		return domain.Laboratory{}, domain.NoCapableLaboratoryError{CompanyID: companyID, Procedure: procedure}
	}

	if preferred, ok, err := prefs.GetPreferredLab(ctx, companyID, procedure); err != nil {
		return domain.Laboratory{}, fmt.Errorf("read lab preference: %w", err)
	} else if ok {
		for _, lab := range capable {
			if lab.ID == preferred {
				return lab, nil
			}
		}
	}

	sort.SliceStable(capable, func(i, j int) bool {
		ci, _ := capable[i].Offers(procedure)
		cj, _ := capable[j].Offers(procedure)
		if ci != cj {
			return ci > cj
		}
		return capable[i].Name < capable[j].Name
	})

	winner := capable[0]
	if err := prefs.SetPreferredLab(ctx, companyID, procedure, winner.ID); err != nil {
		return domain.Laboratory{}, fmt.Errorf("store lab preference: %w", err)
	}
	return winner, nil
}
