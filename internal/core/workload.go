package core

import (
	"sort"

	"dentalcore/pkg/domain"
)

// BandForUtilization maps a utilization ratio to its presentation band.
func BandForUtilization(utilization float64) domain.UtilizationBand {
	switch {
	case utilization >= 0.90:
		return domain.BandSaturated
	case utilization >= 0.70:
		return domain.BandElevated
	default:
		return domain.BandNominal
	}
}

// SummarizeWorkload computes per-technician production load from the live
// case set. Pure and recomputed on demand; an empty case set yields all-zero
// workloads for every technician. Results are ordered by active case count
// descending, ties by technician name ascending.
func SummarizeWorkload(technicians []domain.Technician, cases []domain.Case) []domain.TechnicianWorkload {
	out := make([]domain.TechnicianWorkload, 0, len(technicians))
	for _, tech := range technicians {
		w := domain.TechnicianWorkload{
			TechnicianID:   tech.ID,
			Name:           tech.Name,
			Capacity:       tech.EffectiveCapacity(),
			StageBreakdown: make(map[domain.ProductionStage]int),
		}
		for _, c := range cases {
			if c.Status != domain.StatusInProduction || c.TechnicianID == nil || *c.TechnicianID != tech.ID {
				continue
			}
			w.ActiveCases++
			if c.ProductionStage != nil {
				w.StageBreakdown[*c.ProductionStage]++
			}
		}
		w.Utilization = float64(w.ActiveCases) / float64(w.Capacity)
		w.Band = BandForUtilization(w.Utilization)
		out = append(out, w)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ActiveCases != out[j].ActiveCases {
			return out[i].ActiveCases > out[j].ActiveCases
		}
		return out[i].Name < out[j].Name
	})
	return out
}
