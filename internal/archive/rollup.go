package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dentalcore/pkg/domain"
)

// RollupKey derives the archive object key for a billing rollup snapshot
// generated at the given instant. The rollup value itself carries no
// timestamp, so the caller supplies one at archive time. Keys are grouped by
// company and ordered by period start so that a prefix list over
// "rollups/<company>/" returns snapshots chronologically.
func RollupKey(r domain.BillingRollup, generatedAt time.Time) string {
	return fmt.Sprintf("rollups/%s/%s_%s_%s.json",
		r.CompanyID,
		r.From.UTC().Format("2006-01-02"),
		r.To.UTC().Format("2006-01-02"),
		generatedAt.UTC().Format("20060102T150405Z"))
}

// WriteRollup serializes a billing rollup as indented JSON and stores it
// under a key stamped with generatedAt. The write is create-only;
// regenerating the same rollup at a later instant produces a new object.
func WriteRollup(ctx context.Context, store Store, rollup domain.BillingRollup, generatedAt time.Time) (Info, error) {
	if rollup.CompanyID == "" {
		return Info{}, fmt.Errorf("rollup company id required")
	}
	payload, err := json.MarshalIndent(rollup, "", "  ")
	if err != nil {
		return Info{}, fmt.Errorf("encode rollup: %w", err)
	}
	opts := PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"company_id":   rollup.CompanyID,
			"from":         rollup.From.UTC().Format("2006-01-02"),
			"to":           rollup.To.UTC().Format("2006-01-02"),
			"generated_at": generatedAt.UTC().Format(time.RFC3339),
		},
	}
	return store.Put(ctx, RollupKey(rollup, generatedAt), bytes.NewReader(payload), opts)
}
