package core

import (
	"testing"

	"dentalcore/pkg/domain"
)

func TestBandForUtilizationBoundaries(t *testing.T) {
	cases := []struct {
		utilization float64
		want        domain.UtilizationBand
	}{
		{0, domain.BandNominal},
		{0.69, domain.BandNominal},
		{0.70, domain.BandElevated},
		{0.89, domain.BandElevated},
		{0.90, domain.BandSaturated},
		{1.5, domain.BandSaturated},
	}
	for _, tc := range cases {
		if got := BandForUtilization(tc.utilization); got != tc.want {
			t.Fatalf("utilization %.2f: got %s, want %s", tc.utilization, got, tc.want)
		}
	}
}

func inProductionCase(id, techID string, stage domain.ProductionStage) domain.Case {
	c := productionCase(stage)
	c.ID = id
	c.CaseID = "CASE-" + id
	c.TechnicianID = &techID
	return c
}

func TestSummarizeWorkloadCountsOnlyInProductionCases(t *testing.T) {
	techs := []domain.Technician{
		{Base: domain.Base{ID: "t1"}, Name: "Avery", Capacity: 4},
	}
	delivered := planningCase()
	delivered.ID = "c3"
	delivered.Status = domain.StatusCompleted
	delivered.TechnicianID = ptr("t1")

	cases := []domain.Case{
		inProductionCase("c1", "t1", domain.StageDesign),
		inProductionCase("c2", "t1", domain.StageMilling),
		delivered,
	}
	out := SummarizeWorkload(techs, cases)
	if len(out) != 1 {
		t.Fatalf("expected one workload, got %d", len(out))
	}
	w := out[0]
	if w.ActiveCases != 2 {
		t.Fatalf("expected 2 active cases, got %d", w.ActiveCases)
	}
	if w.StageBreakdown[domain.StageDesign] != 1 || w.StageBreakdown[domain.StageMilling] != 1 {
		t.Fatalf("unexpected stage breakdown %v", w.StageBreakdown)
	}
	if w.Utilization != 0.5 || w.Band != domain.BandNominal {
		t.Fatalf("unexpected utilization %.2f band %s", w.Utilization, w.Band)
	}
}

func TestSummarizeWorkloadDefaultCapacity(t *testing.T) {
	techs := []domain.Technician{{Base: domain.Base{ID: "t1"}, Name: "Avery"}}
	out := SummarizeWorkload(techs, nil)
	if out[0].Capacity != domain.DefaultTechnicianCapacity {
		t.Fatalf("expected default capacity %d, got %d", domain.DefaultTechnicianCapacity, out[0].Capacity)
	}
	if out[0].ActiveCases != 0 || out[0].Utilization != 0 {
		t.Fatalf("empty case set must yield zero load, got %+v", out[0])
	}
}

func TestSummarizeWorkloadOrdering(t *testing.T) {
	techs := []domain.Technician{
		{Base: domain.Base{ID: "t1"}, Name: "Zoe", Capacity: 4},
		{Base: domain.Base{ID: "t2"}, Name: "Avery", Capacity: 4},
		{Base: domain.Base{ID: "t3"}, Name: "Kim", Capacity: 4},
	}
	cases := []domain.Case{
		inProductionCase("c1", "t3", domain.StageDesign),
		inProductionCase("c2", "t3", domain.StageDesign),
		inProductionCase("c3", "t1", domain.StageQC),
		inProductionCase("c4", "t2", domain.StageQC),
	}
	out := SummarizeWorkload(techs, cases)
	got := []string{out[0].Name, out[1].Name, out[2].Name}
	want := []string{"Kim", "Avery", "Zoe"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %s, want %s (full order %v)", i, got[i], want[i], got)
		}
	}
}

func TestSummarizeWorkloadSaturation(t *testing.T) {
	techs := []domain.Technician{{Base: domain.Base{ID: "t1"}, Name: "Avery", Capacity: 2}}
	cases := []domain.Case{
		inProductionCase("c1", "t1", domain.StageDesign),
		inProductionCase("c2", "t1", domain.StageDesign),
		inProductionCase("c3", "t1", domain.StageDesign),
	}
	out := SummarizeWorkload(techs, cases)
	if out[0].Band != domain.BandSaturated {
		t.Fatalf("expected saturated band, got %s (utilization %.2f)", out[0].Band, out[0].Utilization)
	}
}
