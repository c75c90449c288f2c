package core

import (
	"context"
	"errors"
	"testing"

	"dentalcore/pkg/domain"
)

// mapPreferences is an in-memory PreferenceStore for exercising the resolver
// in isolation.
type mapPreferences struct {
	entries map[string]string
}

func newMapPreferences() *mapPreferences {
	return &mapPreferences{entries: make(map[string]string)}
}

func (p *mapPreferences) GetPreferredLab(_ context.Context, companyID, procedure string) (string, bool, error) {
	labID, ok := p.entries[companyID+"|"+procedure]
	return labID, ok, nil
}

func (p *mapPreferences) SetPreferredLab(_ context.Context, companyID, procedure, labID string) error {
	p.entries[companyID+"|"+procedure] = labID
	return nil
}

func lab(id, name string, procedures ...domain.LabProcedure) domain.Laboratory {
	return domain.Laboratory{Base: domain.Base{ID: id}, Name: name, Procedures: procedures}
}

func TestResolveLabNoCapableLaboratory(t *testing.T) {
	prefs := newMapPreferences()
	candidates := []domain.Laboratory{
		lab("lab-1", "Alpha", domain.LabProcedure{Name: "bridge", DailyCapacity: 5}),
		lab("lab-2", "Beta", domain.LabProcedure{Name: "crown", DailyCapacity: 0}),
	}
	_, err := ResolveLab(context.Background(), prefs, "co-1", "crown", candidates)
	var noLab domain.NoCapableLaboratoryError
	if !errors.As(err, &noLab) {
		t.Fatalf("expected NoCapableLaboratoryError, got %v", err)
	}
	if noLab.CompanyID != "co-1" || noLab.Procedure != "crown" {
		t.Fatalf("unexpected error detail %+v", noLab)
	}
	if len(prefs.entries) != 0 {
		t.Fatalf("failed resolution must not write a preference")
	}
}

func TestResolveLabRanksByCapacityThenName(t *testing.T) {
	prefs := newMapPreferences()
	candidates := []domain.Laboratory{
		lab("lab-1", "Zeta", domain.LabProcedure{Name: "crown", DailyCapacity: 8}),
		lab("lab-2", "Alpha", domain.LabProcedure{Name: "crown", DailyCapacity: 8}),
		lab("lab-3", "Beta", domain.LabProcedure{Name: "crown", DailyCapacity: 12}),
	}
	winner, err := ResolveLab(context.Background(), prefs, "co-1", "crown", candidates)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if winner.ID != "lab-3" {
		t.Fatalf("expected highest capacity lab-3, got %s", winner.ID)
	}

	// Capacity tie falls back to the lexicographic name.
	candidates = candidates[:2]
	winner, err = ResolveLab(context.Background(), newMapPreferences(), "co-1", "crown", candidates)
	if err != nil {
		t.Fatalf("resolve tie: %v", err)
	}
	if winner.ID != "lab-2" {
		t.Fatalf("expected name tie-break to pick Alpha, got %s", winner.Name)
	}
}

func TestResolveLabPersistsWinnerAsPreference(t *testing.T) {
	prefs := newMapPreferences()
	candidates := []domain.Laboratory{
		lab("lab-1", "Alpha", domain.LabProcedure{Name: "crown", DailyCapacity: 4}),
	}
	if _, err := ResolveLab(context.Background(), prefs, "co-1", "crown", candidates); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	stored, ok, _ := prefs.GetPreferredLab(context.Background(), "co-1", "crown")
	if !ok || stored != "lab-1" {
		t.Fatalf("preference not stored, got %q ok=%v", stored, ok)
	}
}

func TestResolveLabStickyPreferenceWins(t *testing.T) {
	prefs := newMapPreferences()
	if err := prefs.SetPreferredLab(context.Background(), "co-1", "crown", "lab-small"); err != nil {
		t.Fatalf("seed preference: %v", err)
	}
	candidates := []domain.Laboratory{
		lab("lab-big", "Big", domain.LabProcedure{Name: "crown", DailyCapacity: 100}),
		lab("lab-small", "Small", domain.LabProcedure{Name: "crown", DailyCapacity: 1}),
	}
	winner, err := ResolveLab(context.Background(), prefs, "co-1", "crown", candidates)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if winner.ID != "lab-small" {
		t.Fatalf("sticky preference must win over capacity, got %s", winner.ID)
	}
}

func TestResolveLabStalePreferenceFallsBack(t *testing.T) {
	prefs := newMapPreferences()
	if err := prefs.SetPreferredLab(context.Background(), "co-1", "crown", "lab-gone"); err != nil {
		t.Fatalf("seed preference: %v", err)
	}
	candidates := []domain.Laboratory{
		lab("lab-1", "Alpha", domain.LabProcedure{Name: "crown", DailyCapacity: 6}),
	}
	winner, err := ResolveLab(context.Background(), prefs, "co-1", "crown", candidates)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if winner.ID != "lab-1" {
		t.Fatalf("expected fallback winner lab-1, got %s", winner.ID)
	}
	stored, _, _ := prefs.GetPreferredLab(context.Background(), "co-1", "crown")
	if stored != "lab-1" {
		t.Fatalf("stale preference must be replaced, got %q", stored)
	}
}

func TestResolveLabPreferenceIsPerCompanyAndProcedure(t *testing.T) {
	prefs := newMapPreferences()
	candidates := []domain.Laboratory{
		lab("lab-1", "Alpha",
			domain.LabProcedure{Name: "crown", DailyCapacity: 6},
			domain.LabProcedure{Name: "bridge", DailyCapacity: 2}),
		lab("lab-2", "Beta", domain.LabProcedure{Name: "bridge", DailyCapacity: 9}),
	}
	if _, err := ResolveLab(context.Background(), prefs, "co-1", "crown", candidates); err != nil {
		t.Fatalf("resolve crown: %v", err)
	}
	winner, err := ResolveLab(context.Background(), prefs, "co-1", "bridge", candidates)
	if err != nil {
		t.Fatalf("resolve bridge: %v", err)
	}
	if winner.ID != "lab-2" {
		t.Fatalf("crown preference must not leak into bridge, got %s", winner.ID)
	}
}
