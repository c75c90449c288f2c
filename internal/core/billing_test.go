package core

import (
	"reflect"
	"testing"
	"time"

	"dentalcore/pkg/domain"
)

func billableCase(id, companyID, clinicID, clinicName, procedure string, price *float64, reserved time.Time) domain.Case {
	return domain.Case{
		Base:            domain.Base{ID: id},
		CaseID:          "CASE-" + id,
		CompanyID:       companyID,
		ClinicID:        clinicID,
		ClinicName:      clinicName,
		Procedure:       procedure,
		Status:          domain.StatusCompleted,
		Price:           price,
		ReservationDate: reserved,
	}
}

func TestBuildBillingRollupInclusiveRangeAndCompanyFilter(t *testing.T) {
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	cases := []domain.Case{
		billableCase("c1", "co-1", "cl-1", "Riverside", "crown", ptr(300.0), from),
		billableCase("c2", "co-1", "cl-1", "Riverside", "crown", ptr(300.0), to),
		billableCase("c3", "co-1", "cl-1", "Riverside", "crown", ptr(300.0), from.Add(-time.Second)),
		billableCase("c4", "co-1", "cl-1", "Riverside", "crown", ptr(300.0), to.Add(time.Second)),
		billableCase("c5", "co-2", "cl-9", "Other", "crown", ptr(999.0), from),
	}
	rollup := BuildBillingRollup(cases, "co-1", from, to)
	if rollup.TotalQuantity != 2 {
		t.Fatalf("expected 2 cases inside the inclusive range, got %d", rollup.TotalQuantity)
	}
	if rollup.TotalAmount != 600 {
		t.Fatalf("expected total 600, got %.2f", rollup.TotalAmount)
	}
	if len(rollup.Clinics) != 1 || rollup.Clinics[0].ClinicKey != "cl-1" {
		t.Fatalf("unexpected clinic grouping %+v", rollup.Clinics)
	}
}

func TestBuildBillingRollupNilPriceCountsAsZero(t *testing.T) {
	day := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	cases := []domain.Case{
		billableCase("c1", "co-1", "cl-1", "Riverside", "crown", ptr(250.0), day),
		billableCase("c2", "co-1", "cl-1", "Riverside", "crown", nil, day),
	}
	rollup := BuildBillingRollup(cases, "co-1", day, day)
	if rollup.TotalQuantity != 2 {
		t.Fatalf("unpriced case must still be counted, got quantity %d", rollup.TotalQuantity)
	}
	if rollup.TotalAmount != 250 {
		t.Fatalf("unpriced case must contribute zero amount, got %.2f", rollup.TotalAmount)
	}
	cell := rollup.Clinics[0].Procedures[0]
	if cell.Quantity != 2 || cell.Amount != 250 {
		t.Fatalf("unexpected procedure cell %+v", cell)
	}
}

func TestBuildBillingRollupClinicNameFallback(t *testing.T) {
	day := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	cases := []domain.Case{
		billableCase("c1", "co-1", "", "Walk-In Clinic", "crown", ptr(100.0), day),
		billableCase("c2", "co-1", "", "Walk-In Clinic", "bridge", ptr(200.0), day),
	}
	rollup := BuildBillingRollup(cases, "co-1", day, day)
	if len(rollup.Clinics) != 1 {
		t.Fatalf("unlinked cases for one clinic name must share a bucket, got %d", len(rollup.Clinics))
	}
	clinic := rollup.Clinics[0]
	if clinic.ClinicKey != "Walk-In Clinic" || clinic.Quantity != 2 || clinic.Amount != 300 {
		t.Fatalf("unexpected clinic rollup %+v", clinic)
	}
}

func TestBuildBillingRollupFirstSeenOrdering(t *testing.T) {
	day := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	cases := []domain.Case{
		billableCase("c1", "co-1", "cl-b", "Bravo", "crown", ptr(100.0), day),
		billableCase("c2", "co-1", "cl-a", "Alpha", "bridge", ptr(100.0), day),
		billableCase("c3", "co-1", "cl-b", "Bravo", "veneer", ptr(100.0), day),
	}
	rollup := BuildBillingRollup(cases, "co-1", day, day)
	if rollup.Clinics[0].ClinicKey != "cl-b" || rollup.Clinics[1].ClinicKey != "cl-a" {
		t.Fatalf("clinics must keep first-seen order, got %+v", rollup.Clinics)
	}
	procs := rollup.Clinics[0].Procedures
	if procs[0].Procedure != "crown" || procs[1].Procedure != "veneer" {
		t.Fatalf("procedures must keep first-seen order, got %+v", procs)
	}
}

func TestBuildBillingRollupEmptyResult(t *testing.T) {
	day := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	rollup := BuildBillingRollup(nil, "co-1", day, day)
	if rollup.TotalQuantity != 0 || rollup.TotalAmount != 0 || len(rollup.Clinics) != 0 {
		t.Fatalf("empty input must yield empty rollup, got %+v", rollup)
	}
	if rollup.CompanyID != "co-1" || !rollup.From.Equal(day) {
		t.Fatalf("rollup header not stamped: %+v", rollup)
	}
}

func TestBuildBillingRollupRepeatable(t *testing.T) {
	day := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	cases := []domain.Case{
		billableCase("c1", "co-1", "cl-1", "Riverside", "crown", ptr(300.0), day),
		billableCase("c2", "co-1", "cl-2", "Harbor", "bridge", nil, day),
	}
	first := BuildBillingRollup(cases, "co-1", day, day)
	second := BuildBillingRollup(cases, "co-1", day, day)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical inputs must yield identical rollups:\n%+v\n%+v", first, second)
	}
}
