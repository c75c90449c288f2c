package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"dentalcore/pkg/domain"
)

type serviceFixture struct {
	svc    *Service
	lab    domain.Laboratory
	tech   domain.Technician
	clinic domain.Clinic
}

func newServiceFixture(t *testing.T, opts ...ServiceOption) *serviceFixture {
	t.Helper()
	ctx := context.Background()
	svc := NewInMemoryService(nil, opts...)
	lab, _, err := svc.CreateLaboratory(ctx, domain.Laboratory{
		Name: "Crown Works",
		Procedures: []domain.LabProcedure{
			{Name: "crown", DailyCapacity: 10},
			{Name: "bridge", DailyCapacity: 3},
		},
	})
	if err != nil {
		t.Fatalf("create laboratory: %v", err)
	}
	tech, _, err := svc.CreateTechnician(ctx, domain.Technician{Name: "Avery", Capacity: 5})
	if err != nil {
		t.Fatalf("create technician: %v", err)
	}
	clinic, _, err := svc.CreateClinic(ctx, domain.Clinic{Name: "Riverside Dental", CompanyID: "co-1"})
	if err != nil {
		t.Fatalf("create clinic: %v", err)
	}
	return &serviceFixture{svc: svc, lab: lab, tech: tech, clinic: clinic}
}

func (f *serviceFixture) newCase(t *testing.T, caseID string, price *float64) domain.Case {
	t.Helper()
	c, _, err := f.svc.CreateCase(context.Background(), domain.Case{
		CaseID:          caseID,
		CompanyID:       "co-1",
		ClinicID:        f.clinic.ID,
		ClinicName:      f.clinic.Name,
		Procedure:       "crown",
		Price:           price,
		ReservationDate: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	return c
}

// driveToTransit pushes a freshly created case through assignment and the full
// production pipeline, leaving it at pending-pickup.
func (f *serviceFixture) driveToTransit(t *testing.T, caseID string) domain.Case {
	t.Helper()
	ctx := context.Background()
	c, _, err := f.svc.AssignLaboratory(ctx, caseID)
	if err != nil {
		t.Fatalf("assign laboratory: %v", err)
	}
	if c, _, err = f.svc.StartProduction(ctx, caseID); err != nil {
		t.Fatalf("start production: %v", err)
	}
	for range len(ProductionStages()) - 1 {
		if c, _, err = f.svc.AdvanceProduction(ctx, caseID); err != nil {
			t.Fatalf("advance production: %v", err)
		}
	}
	if c, _, err = f.svc.CompleteProduction(ctx, caseID); err != nil {
		t.Fatalf("complete production: %v", err)
	}
	return c
}

func TestServiceCaseLifecycle(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	created := f.newCase(t, "CASE-100", ptr(350.0))
	if created.Status != domain.StatusInPlanning || created.Priority != domain.PriorityNormal {
		t.Fatalf("unexpected intake defaults %+v", created)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1 on create, got %d", created.Version)
	}

	c := f.driveToTransit(t, created.ID)
	if c.LabID != f.lab.ID {
		t.Fatalf("laboratory not stamped, got %q", c.LabID)
	}
	if c.Status != domain.StatusInTransit || c.TransitStatus == nil || *c.TransitStatus != domain.TransitPendingPickup {
		t.Fatalf("expected pending-pickup hand-off, got %+v", c)
	}

	if _, _, err := f.svc.AssignCaseTechnician(ctx, created.ID, &f.tech.ID); err == nil {
		t.Fatalf("technician assignment must fail once production is over")
	}

	hops := []domain.TransitStatus{
		domain.TransitPickedUp,
		domain.TransitInTransit,
		domain.TransitOutForDelivery,
		domain.TransitDelivered,
	}
	var err error
	for _, to := range hops {
		if c, _, err = f.svc.Transition(ctx, created.ID, to, TransitionRequest{Location: ptr("hop for " + string(to))}); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	if c.Status != domain.StatusCompleted || c.TransitStatus != nil {
		t.Fatalf("delivery must close the case, got %+v", c)
	}
	if c.ActualCompletion == nil {
		t.Fatalf("actual completion not stamped")
	}
	if len(c.TransitHistory) != 5 {
		t.Fatalf("expected 5 transit history entries, got %d", len(c.TransitHistory))
	}

	stored, err := f.svc.GetCase(ctx, created.ID)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if stored.Version <= created.Version {
		t.Fatalf("version must grow with each committed update, got %d", stored.Version)
	}
}

func TestServiceGetCaseNotFound(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.GetCase(context.Background(), "missing")
	var notFound domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceStartProductionWithoutLaboratory(t *testing.T) {
	f := newServiceFixture(t)
	created := f.newCase(t, "CASE-101", ptr(100.0))
	_, _, err := f.svc.StartProduction(context.Background(), created.ID)
	var labErr domain.LabNotAssignedError
	if !errors.As(err, &labErr) {
		t.Fatalf("expected LabNotAssignedError, got %v", err)
	}
}

func TestServiceAssignLaboratoryNoCapableLab(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	c, _, err := f.svc.CreateCase(ctx, domain.Case{
		CaseID:          "CASE-102",
		CompanyID:       "co-1",
		ClinicID:        f.clinic.ID,
		ClinicName:      f.clinic.Name,
		Procedure:       "implant",
		ReservationDate: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	_, _, err = f.svc.AssignLaboratory(ctx, c.ID)
	var noLab domain.NoCapableLaboratoryError
	if !errors.As(err, &noLab) {
		t.Fatalf("expected NoCapableLaboratoryError, got %v", err)
	}
	stored, err := f.svc.GetCase(ctx, c.ID)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if stored.LabID != "" {
		t.Fatalf("failed assignment must not stamp a laboratory, got %q", stored.LabID)
	}
}

func TestServiceAssignLaboratoryStickyAcrossCases(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	// A bigger laboratory appears after the first assignment; the stored
	// preference must keep routing crowns to the original winner.
	first := f.newCase(t, "CASE-103", ptr(100.0))
	if _, _, err := f.svc.AssignLaboratory(ctx, first.ID); err != nil {
		t.Fatalf("first assignment: %v", err)
	}
	if _, _, err := f.svc.CreateLaboratory(ctx, domain.Laboratory{
		Name:       "Mega Lab",
		Procedures: []domain.LabProcedure{{Name: "crown", DailyCapacity: 100}},
	}); err != nil {
		t.Fatalf("create second laboratory: %v", err)
	}
	second := f.newCase(t, "CASE-104", ptr(100.0))
	assigned, _, err := f.svc.AssignLaboratory(ctx, second.ID)
	if err != nil {
		t.Fatalf("second assignment: %v", err)
	}
	if assigned.LabID != f.lab.ID {
		t.Fatalf("sticky preference lost: got %q, want %q", assigned.LabID, f.lab.ID)
	}
}

func TestServiceAssignTechnicianValidatesDirectory(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	created := f.newCase(t, "CASE-105", ptr(100.0))
	if _, _, err := f.svc.AssignLaboratory(ctx, created.ID); err != nil {
		t.Fatalf("assign laboratory: %v", err)
	}
	if _, _, err := f.svc.StartProduction(ctx, created.ID); err != nil {
		t.Fatalf("start production: %v", err)
	}
	unknown := "ghost"
	_, _, err := f.svc.AssignCaseTechnician(ctx, created.ID, &unknown)
	var notFound domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound for unknown technician, got %v", err)
	}
	updated, _, err := f.svc.AssignCaseTechnician(ctx, created.ID, &f.tech.ID)
	if err != nil {
		t.Fatalf("assign technician: %v", err)
	}
	if updated.TechnicianID == nil || *updated.TechnicianID != f.tech.ID {
		t.Fatalf("technician not stamped: %v", updated.TechnicianID)
	}
}

func TestServiceTransitionVersionConflict(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	created := f.newCase(t, "CASE-106", ptr(100.0))
	c := f.driveToTransit(t, created.ID)

	// Two couriers read the same snapshot. The first transition commits and
	// bumps the version; the second still cites the stale one.
	staleVersion := c.Version
	if _, _, err := f.svc.Transition(ctx, created.ID, domain.TransitPickedUp, TransitionRequest{ExpectedVersion: staleVersion}); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	_, _, err := f.svc.Transition(ctx, created.ID, domain.TransitPickedUp, TransitionRequest{ExpectedVersion: staleVersion})
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.ExpectedVersion != staleVersion || conflict.ActualVersion != staleVersion+1 {
		t.Fatalf("unexpected conflict detail %+v", conflict)
	}

	// Without an expected version the loser fails on transition legality
	// instead: picked-up cannot repeat.
	_, _, err = f.svc.Transition(ctx, created.ID, domain.TransitPickedUp, TransitionRequest{})
	var invalid domain.InvalidTransitTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitTransitionError, got %v", err)
	}
}

func TestServiceDeliveryWithoutPriceWarns(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	created := f.newCase(t, "CASE-107", nil)
	f.driveToTransit(t, created.ID)
	for _, to := range []domain.TransitStatus{domain.TransitPickedUp, domain.TransitInTransit, domain.TransitOutForDelivery} {
		if _, _, err := f.svc.Transition(ctx, created.ID, to, TransitionRequest{}); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	c, res, err := f.svc.Transition(ctx, created.ID, domain.TransitDelivered, TransitionRequest{})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if c.Status != domain.StatusCompleted {
		t.Fatalf("warning must not block delivery, got status %s", c.Status)
	}
	warnings := res.Warnings()
	if len(warnings) != 1 || warnings[0].Rule != "price_missing" {
		t.Fatalf("expected price_missing warning, got %+v", warnings)
	}
}

func TestServiceWorkloadAndBillingAggregators(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	created := f.newCase(t, "CASE-108", ptr(275.0))
	if _, _, err := f.svc.AssignLaboratory(ctx, created.ID); err != nil {
		t.Fatalf("assign laboratory: %v", err)
	}
	if _, _, err := f.svc.StartProduction(ctx, created.ID); err != nil {
		t.Fatalf("start production: %v", err)
	}
	if _, _, err := f.svc.AssignCaseTechnician(ctx, created.ID, &f.tech.ID); err != nil {
		t.Fatalf("assign technician: %v", err)
	}

	workload, err := f.svc.Workload(ctx)
	if err != nil {
		t.Fatalf("workload: %v", err)
	}
	if len(workload) != 1 || workload[0].ActiveCases != 1 {
		t.Fatalf("unexpected workload %+v", workload)
	}
	if workload[0].StageBreakdown[domain.StageDesign] != 1 {
		t.Fatalf("unexpected stage breakdown %v", workload[0].StageBreakdown)
	}

	now := time.Now().UTC()
	rollup, err := f.svc.BillingRollup(ctx, "co-1", now.AddDate(0, 0, -1), now.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("billing rollup: %v", err)
	}
	if rollup.TotalQuantity != 1 || rollup.TotalAmount != 275 {
		t.Fatalf("unexpected rollup totals %+v", rollup)
	}
}

func TestServiceBillingRollupRepeatable(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.newCase(t, "CASE-310", ptr(320.0))
	f.newCase(t, "CASE-311", nil)

	now := time.Now().UTC()
	from, to := now.AddDate(0, 0, -1), now.AddDate(0, 0, 1)
	first, err := f.svc.BillingRollup(ctx, "co-1", from, to)
	if err != nil {
		t.Fatalf("first rollup: %v", err)
	}
	second, err := f.svc.BillingRollup(ctx, "co-1", from, to)
	if err != nil {
		t.Fatalf("second rollup: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("rollup differs across identical calls:\n%+v\n%+v", first, second)
	}
}

func TestServiceUpdateDirectoryRecords(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	lab, _, err := f.svc.UpdateLaboratory(ctx, f.lab.ID, func(l *domain.Laboratory) error {
		l.Procedures = append(l.Procedures, domain.LabProcedure{Name: "veneer", DailyCapacity: 2})
		return nil
	})
	if err != nil {
		t.Fatalf("update laboratory: %v", err)
	}
	if _, ok := lab.Offers("veneer"); !ok {
		t.Fatalf("veneer not offered after update: %+v", lab.Procedures)
	}
	tech, _, err := f.svc.UpdateTechnician(ctx, f.tech.ID, func(tc *domain.Technician) error {
		tc.Capacity = 9
		return nil
	})
	if err != nil {
		t.Fatalf("update technician: %v", err)
	}
	if tech.Capacity != 9 {
		t.Fatalf("capacity not updated, got %d", tech.Capacity)
	}
}
