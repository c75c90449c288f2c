package core

import (
	"context"
	"time"

	"dentalcore/internal/infra/persistence/memory"
	"dentalcore/pkg/domain"
)

// Service is the workflow engine facade: the only surface external callers
// invoke. It orchestrates assignment, the production and transit machines,
// and the read-only aggregators over a transactional case store.
type Service struct {
	store    domain.PersistentStore
	prefs    domain.PreferenceStore
	logger   Logger
	audit    AuditRecorder
	metrics  MetricsRecorder
	tracer   Tracer
	notifier Notifier
	nowFn    func() time.Time
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		logger: noopLogger{},
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine. A nil engine falls back to the default rule set.
func NewInMemoryService(engine *domain.RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = DefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// txPreferences adapts a transaction's preference bucket to the
// PreferenceStore contract so assignment and the case write commit together.
type txPreferences struct {
	tx domain.Transaction
}

func (p txPreferences) GetPreferredLab(_ context.Context, companyID, procedure string) (string, bool, error) {
	labID, ok := p.tx.PreferredLab(companyID, procedure)
	return labID, ok, nil
}

func (p txPreferences) SetPreferredLab(_ context.Context, companyID, procedure, labID string) error {
	p.tx.SetPreferredLab(companyID, procedure, labID)
	return nil
}

// TransitionRequest carries the optional fields of a transit transition
// request. ExpectedVersion, when positive, demands the stored case still has
// that version; a mismatch fails with ConflictError before validation.
type TransitionRequest struct {
	Location        *string
	Notes           *string
	CourierService  *string
	TrackingNumber  *string
	ExpectedVersion int64
}

// CreateCase persists a new intake record. Status defaults to in-planning
// and priority to normal.
func (s *Service) CreateCase(ctx context.Context, c domain.Case) (domain.Case, domain.Result, error) {
	var created domain.Case
	res, err := s.instrument(ctx, "create_case", domain.EntityCase, c.CaseID, func(ctx context.Context) (domain.Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if c.Status == "" {
				c.Status = domain.StatusInPlanning
			}
			if c.Priority == "" {
				c.Priority = domain.PriorityNormal
			}
			var err error
			created, err = tx.CreateCase(c)
			return err
		})
	})
	return created, res, err
}

// GetCase retrieves a case by record id.
func (s *Service) GetCase(_ context.Context, id string) (domain.Case, error) {
	c, ok := s.store.GetCase(id)
	if !ok {
		return domain.Case{}, domain.ErrNotFound{Entity: domain.EntityCase, ID: id}
	}
	return c, nil
}

// ListCases returns all cases from committed state.
func (s *Service) ListCases(context.Context) []domain.Case {
	return s.store.ListCases()
}

// AssignLaboratory resolves a laboratory for the case's procedure from the
// directory and stamps it on the record. The sticky preference read/write
// commits atomically with the case update.
func (s *Service) AssignLaboratory(ctx context.Context, caseID string) (domain.Case, domain.Result, error) {
	var updated domain.Case
	res, err := s.instrument(ctx, "assign_laboratory", domain.EntityCase, caseID, func(ctx context.Context) (domain.Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			current, ok := tx.FindCase(caseID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityCase, ID: caseID}
			}
			prefs := s.prefs
			if prefs == nil {
				prefs = txPreferences{tx: tx}
			}
			lab, err := ResolveLab(ctx, prefs, current.CompanyID, current.Procedure, tx.Snapshot().ListLaboratories())
			if err != nil {
				return err
			}
			updated, err = tx.UpdateCase(caseID, func(c *domain.Case) error {
				c.LabID = lab.ID
				return nil
			})
			return err
		})
	})
	return updated, res, err
}

// StartProduction moves an in-planning case with an assigned laboratory into
// the production pipeline.
func (s *Service) StartProduction(ctx context.Context, caseID string) (domain.Case, domain.Result, error) {
	return s.mutateCase(ctx, "start_production", caseID, StartProduction)
}

// AdvanceProduction moves the case's production stage forward by one step.
func (s *Service) AdvanceProduction(ctx context.Context, caseID string) (domain.Case, domain.Result, error) {
	return s.mutateCase(ctx, "advance_production", caseID, AdvanceProduction)
}

// ReopenProduction sends the case back to an earlier stage for rework.
func (s *Service) ReopenProduction(ctx context.Context, caseID string, target domain.ProductionStage) (domain.Case, domain.Result, error) {
	return s.mutateCase(ctx, "reopen_production", caseID, func(c *domain.Case) error {
		return ReopenProduction(c, target)
	})
}

// AssignCaseTechnician sets or clears the technician on an in-production
// case. A non-nil technician must exist in the directory.
func (s *Service) AssignCaseTechnician(ctx context.Context, caseID string, technicianID *string) (domain.Case, domain.Result, error) {
	var updated domain.Case
	res, err := s.instrument(ctx, "assign_technician", domain.EntityCase, caseID, func(ctx context.Context) (domain.Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if technicianID != nil {
				if _, ok := tx.Snapshot().FindTechnician(*technicianID); !ok {
					return domain.ErrNotFound{Entity: domain.EntityTechnician, ID: *technicianID}
				}
			}
			var err error
			updated, err = tx.UpdateCase(caseID, func(c *domain.Case) error {
				return AssignTechnician(c, technicianID)
			})
			return err
		})
	})
	return updated, res, err
}

// CompleteProduction hands a packaged case to the transit pipeline.
func (s *Service) CompleteProduction(ctx context.Context, caseID string) (domain.Case, domain.Result, error) {
	now := s.nowFn()
	return s.mutateCase(ctx, "complete_production", caseID, func(c *domain.Case) error {
		return CompleteProduction(c, now)
	})
}

// Transition applies one transit status change to an in-transit case.
func (s *Service) Transition(ctx context.Context, caseID string, to domain.TransitStatus, req TransitionRequest) (domain.Case, domain.Result, error) {
	now := s.nowFn()
	var before, updated domain.Case
	res, err := s.instrument(ctx, "transit_transition", domain.EntityCase, caseID, func(ctx context.Context) (domain.Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			current, ok := tx.FindCase(caseID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityCase, ID: caseID}
			}
			if req.ExpectedVersion > 0 && current.Version != req.ExpectedVersion {
				return domain.ConflictError{
					Entity:          domain.EntityCase,
					ID:              caseID,
					ExpectedVersion: req.ExpectedVersion,
					ActualVersion:   current.Version,
				}
			}
			before = current
			var err error
			updated, err = tx.UpdateCase(caseID, func(c *domain.Case) error {
				return ApplyTransit(c, to, TransitOptions{
					Location:       req.Location,
					Notes:          req.Notes,
					CourierService: req.CourierService,
					TrackingNumber: req.TrackingNumber,
				}, now)
			})
			return err
		})
	})
	if err == nil {
		s.notifyStatusChange(ctx, before, updated)
	}
	return updated, res, err
}

// mutateCase wraps a single-case mutator in a transaction with observability
// and change notification.
func (s *Service) mutateCase(ctx context.Context, op, caseID string, mutate func(*domain.Case) error) (domain.Case, domain.Result, error) {
	var before, updated domain.Case
	res, err := s.instrument(ctx, op, domain.EntityCase, caseID, func(ctx context.Context) (domain.Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			current, ok := tx.FindCase(caseID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityCase, ID: caseID}
			}
			before = current
			var err error
			updated, err = tx.UpdateCase(caseID, mutate)
			return err
		})
	})
	if err == nil {
		s.notifyStatusChange(ctx, before, updated)
	}
	return updated, res, err
}

func (s *Service) notifyStatusChange(ctx context.Context, before, after domain.Case) {
	if s.notifier == nil {
		return
	}
	if before.Status == after.Status && equalStagePtr(before.ProductionStage, after.ProductionStage) && equalTransitPtr(before.TransitStatus, after.TransitStatus) {
		return
	}
	s.notifier.CaseStatusChanged(ctx, before, after)
}

func equalStagePtr(a, b *domain.ProductionStage) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTransitPtr(a, b *domain.TransitStatus) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Workload summarizes live technician load from committed state.
func (s *Service) Workload(ctx context.Context) ([]domain.TechnicianWorkload, error) {
	var out []domain.TechnicianWorkload
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		out = SummarizeWorkload(view.ListTechnicians(), view.ListCases())
		return nil
	})
	return out, err
}

// BillingRollup computes the clinic/procedure totals hierarchy for one
// company over an inclusive date range. Derived fresh on every call; two
// calls over unchanged state return equal rollups.
func (s *Service) BillingRollup(ctx context.Context, companyID string, from, to time.Time) (domain.BillingRollup, error) {
	var rollup domain.BillingRollup
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		rollup = BuildBillingRollup(view.ListCases(), companyID, from, to)
		return nil
	})
	return rollup, err
}

// CreateLaboratory persists a laboratory directory record.
func (s *Service) CreateLaboratory(ctx context.Context, lab domain.Laboratory) (domain.Laboratory, domain.Result, error) {
	var created domain.Laboratory
	res, err := s.instrument(ctx, "create_laboratory", domain.EntityLaboratory, lab.ID, func(ctx context.Context) (domain.Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateLaboratory(lab)
			return err
		})
	})
	return created, res, err
}

// UpdateLaboratory mutates a laboratory record.
func (s *Service) UpdateLaboratory(ctx context.Context, id string, mutator func(*domain.Laboratory) error) (domain.Laboratory, domain.Result, error) {
	var updated domain.Laboratory
	res, err := s.instrument(ctx, "update_laboratory", domain.EntityLaboratory, id, func(ctx context.Context) (domain.Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateLaboratory(id, mutator)
			return err
		})
	})
	return updated, res, err
}

// CreateTechnician persists a technician directory record.
func (s *Service) CreateTechnician(ctx context.Context, tech domain.Technician) (domain.Technician, domain.Result, error) {
	var created domain.Technician
	res, err := s.instrument(ctx, "create_technician", domain.EntityTechnician, tech.ID, func(ctx context.Context) (domain.Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateTechnician(tech)
			return err
		})
	})
	return created, res, err
}

// UpdateTechnician mutates a technician record.
func (s *Service) UpdateTechnician(ctx context.Context, id string, mutator func(*domain.Technician) error) (domain.Technician, domain.Result, error) {
	var updated domain.Technician
	res, err := s.instrument(ctx, "update_technician", domain.EntityTechnician, id, func(ctx context.Context) (domain.Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateTechnician(id, mutator)
			return err
		})
	})
	return updated, res, err
}

// CreateClinic persists a clinic directory record.
func (s *Service) CreateClinic(ctx context.Context, clinic domain.Clinic) (domain.Clinic, domain.Result, error) {
	var created domain.Clinic
	res, err := s.instrument(ctx, "create_clinic", domain.EntityClinic, clinic.ID, func(ctx context.Context) (domain.Result, error) {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateClinic(clinic)
			return err
		})
	})
	return created, res, err
}
