// Command workflow-check exercises the case workflow engine end to end
// against the configured persistence backend: it seeds a demo directory,
// walks one case from planning through delivery, and prints the resulting
// workload and billing summaries as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dentalcore/internal/archive"
	"dentalcore/internal/core"
	"dentalcore/internal/infra/persistence"
	"dentalcore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("workflow-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		seed        bool
		archiveOut  bool
		metricsAddr string
	)
	fs.BoolVar(&seed, "seed", true, "seed a demo laboratory, technician, clinic and case")
	fs.BoolVar(&archiveOut, "archive", false, "write the billing rollup to the configured archive store")
	fs.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := run(stdout, seed, archiveOut, metricsAddr); err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "workflow check failed: %v\n", err); writeErr != nil {
			return 1
		}
		return 1
	}
	return 0
}

func run(stdout io.Writer, seed, archiveOut bool, metricsAddr string) error {
	ctx := context.Background()
	store, err := persistence.Open(core.DefaultRulesEngine())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	opts := []core.ServiceOption{core.WithLogger(log.New(os.Stderr, "workflow-check ", log.LstdFlags))}
	if metricsAddr != "" {
		registry := prometheus.NewRegistry()
		recorder, err := core.NewPrometheusMetricsRecorder(registry)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		opts = append(opts, core.WithMetricsRecorder(recorder))
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
	}
	svc := core.NewService(store, opts...)

	if !seed {
		return report(ctx, stdout, svc, archiveOut, "")
	}

	lab := domain.Laboratory{Name: "Demo Dental Lab", Procedures: []domain.LabProcedure{
		{Name: "crown", DailyCapacity: 12},
		{Name: "bridge", DailyCapacity: 4},
	}}
	lab, _, err = svc.CreateLaboratory(ctx, lab)
	if err != nil {
		return fmt.Errorf("create laboratory: %w", err)
	}
	tech, _, err := svc.CreateTechnician(ctx, domain.Technician{Name: "Demo Technician", Role: domain.RoleTechnician, Capacity: 8})
	if err != nil {
		return fmt.Errorf("create technician: %w", err)
	}
	clinic, _, err := svc.CreateClinic(ctx, domain.Clinic{Name: "Demo Clinic", CompanyID: "demo-co", Address: "1 Demo St"})
	if err != nil {
		return fmt.Errorf("create clinic: %w", err)
	}

	price := 420.0
	c, _, err := svc.CreateCase(ctx, domain.Case{
		CaseID:          fmt.Sprintf("DEMO-%d", time.Now().Unix()),
		CompanyID:       "demo-co",
		ClinicID:        clinic.ID,
		ClinicName:      clinic.Name,
		Procedure:       "crown",
		Priority:        domain.PriorityNormal,
		Price:           &price,
		ReservationDate: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("create case: %w", err)
	}

	if c, _, err = svc.AssignLaboratory(ctx, c.ID); err != nil {
		return fmt.Errorf("assign laboratory: %w", err)
	}
	if c, _, err = svc.StartProduction(ctx, c.ID); err != nil {
		return fmt.Errorf("start production: %w", err)
	}
	if c, _, err = svc.AssignCaseTechnician(ctx, c.ID, &tech.ID); err != nil {
		return fmt.Errorf("assign technician: %w", err)
	}
	for i := 1; i < len(core.ProductionStages()); i++ {
		if c, _, err = svc.AdvanceProduction(ctx, c.ID); err != nil {
			return fmt.Errorf("advance production: %w", err)
		}
	}
	if c, _, err = svc.CompleteProduction(ctx, c.ID); err != nil {
		return fmt.Errorf("complete production: %w", err)
	}

	courier := "demo-courier"
	tracking := "TRK-0001"
	hops := []struct {
		to       domain.TransitStatus
		location string
	}{
		{domain.TransitPickedUp, lab.Name},
		{domain.TransitInTransit, "sorting hub"},
		{domain.TransitOutForDelivery, "local depot"},
		{domain.TransitDelivered, clinic.Name},
	}
	for _, hop := range hops {
		loc := hop.location
		req := core.TransitionRequest{Location: &loc, CourierService: &courier, TrackingNumber: &tracking}
		if c, _, err = svc.Transition(ctx, c.ID, hop.to, req); err != nil {
			return fmt.Errorf("transition to %s: %w", hop.to, err)
		}
	}
	if c.Status != domain.StatusCompleted {
		return fmt.Errorf("expected completed case, got %s", c.Status)
	}

	return report(ctx, stdout, svc, archiveOut, "demo-co")
}

func report(ctx context.Context, stdout io.Writer, svc *core.Service, archiveOut bool, companyID string) error {
	workload, err := svc.Workload(ctx)
	if err != nil {
		return fmt.Errorf("workload: %w", err)
	}
	summary := map[string]any{
		"cases":    svc.ListCases(ctx),
		"workload": workload,
	}
	if companyID != "" {
		now := time.Now().UTC()
		rollup, err := svc.BillingRollup(ctx, companyID, now.AddDate(0, -1, 0), now)
		if err != nil {
			return fmt.Errorf("billing rollup: %w", err)
		}
		summary["billing_rollup"] = rollup
		if archiveOut {
			archStore, err := archive.Open(ctx)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			info, err := archive.WriteRollup(ctx, archStore, rollup, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("archive rollup: %w", err)
			}
			summary["archived_rollup"] = info
		}
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
