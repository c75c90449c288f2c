package core

import (
	"time"

	"dentalcore/pkg/domain"
)

// BuildBillingRollup aggregates a case set into the clinic -> procedure ->
// totals hierarchy for one company over an inclusive date range. Cases
// without a price are counted with an amount of zero rather than dropped.
// Clinics and procedures keep first-seen input order so repeated runs over
// the same input produce byte-identical reports.
func BuildBillingRollup(cases []domain.Case, companyID string, from, to time.Time) domain.BillingRollup {
	rollup := domain.BillingRollup{
		CompanyID: companyID,
		From:      from,
		To:        to,
	}
	clinicIdx := make(map[string]int)

	for _, c := range cases {
		if c.CompanyID != companyID {
			continue
		}
		if c.ReservationDate.Before(from) || c.ReservationDate.After(to) {
			continue
		}
		price := 0.0
		if c.Price != nil {
			price = *c.Price
		}

		// Clinic id keys the group when present; the name string is the
		// deliberate fallback so unlinked cases for the same clinic still
		// land in one bucket.
		key := c.ClinicID
		if key == "" {
			key = c.ClinicName
		}
		ci, ok := clinicIdx[key]
		if !ok {
			ci = len(rollup.Clinics)
			clinicIdx[key] = ci
			rollup.Clinics = append(rollup.Clinics, domain.ClinicRollup{
				ClinicKey:  key,
				ClinicName: c.ClinicName,
			})
		}
		clinic := &rollup.Clinics[ci]

		pi := -1
		for i := range clinic.Procedures {
			if clinic.Procedures[i].Procedure == c.Procedure {
				pi = i
				break
			}
		}
		if pi < 0 {
			pi = len(clinic.Procedures)
			clinic.Procedures = append(clinic.Procedures, domain.ProcedureRollup{Procedure: c.Procedure})
		}
		cell := &clinic.Procedures[pi]
		cell.Quantity++
		cell.Amount += price
		clinic.Quantity++
		clinic.Amount += price
		rollup.TotalQuantity++
		rollup.TotalAmount += price
	}
	return rollup
}
