// Package memory provides an in-memory implementation of the workflow
// persistence store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"dentalcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain
// persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type memoryState struct {
	cases        map[string]domain.Case
	laboratories map[string]domain.Laboratory
	technicians  map[string]domain.Technician
	clinics      map[string]domain.Clinic
	preferences  map[string]string
}

// Snapshot captures a point-in-time clone of the store state. Preferences
// map "companyID|procedure" keys to laboratory ids.
type Snapshot struct {
	Cases        map[string]domain.Case       `json:"cases"`
	Laboratories map[string]domain.Laboratory `json:"laboratories"`
	Technicians  map[string]domain.Technician `json:"technicians"`
	Clinics      map[string]domain.Clinic     `json:"clinics"`
	Preferences  map[string]string            `json:"preferences"`
}

func newMemoryState() memoryState {
	return memoryState{
		cases:        make(map[string]domain.Case),
		laboratories: make(map[string]domain.Laboratory),
		technicians:  make(map[string]domain.Technician),
		clinics:      make(map[string]domain.Clinic),
		preferences:  make(map[string]string),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.cases {
		cloned.cases[k] = cloneCase(v)
	}
	for k, v := range s.laboratories {
		cloned.laboratories[k] = cloneLaboratory(v)
	}
	for k, v := range s.technicians {
		cloned.technicians[k] = v
	}
	for k, v := range s.clinics {
		cloned.clinics[k] = v
	}
	for k, v := range s.preferences {
		cloned.preferences[k] = v
	}
	return cloned
}

func cloneCase(c domain.Case) domain.Case {
	cp := c
	cp.TransitHistory = append([]domain.TransitEvent(nil), c.TransitHistory...)
	if c.ProductionStage != nil {
		stage := *c.ProductionStage
		cp.ProductionStage = &stage
	}
	if c.TransitStatus != nil {
		status := *c.TransitStatus
		cp.TransitStatus = &status
	}
	cp.TechnicianID = clonePtr(c.TechnicianID)
	cp.CourierService = clonePtr(c.CourierService)
	cp.TrackingNumber = clonePtr(c.TrackingNumber)
	cp.Price = clonePtr(c.Price)
	cp.ActualCompletion = clonePtr(c.ActualCompletion)
	return cp
}

func cloneLaboratory(l domain.Laboratory) domain.Laboratory {
	cp := l
	cp.Procedures = append([]domain.LabProcedure(nil), l.Procedures...)
	return cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func preferenceKey(companyID, procedure string) string {
	return companyID + "|" + procedure
}

// Store provides an in-memory transactional store for the workflow domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState returns a deep copy of committed state for snapshotting.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := s.state.clone()
	return Snapshot{
		Cases:        state.cases,
		Laboratories: state.laboratories,
		Technicians:  state.technicians,
		Clinics:      state.clinics,
		Preferences:  state.preferences,
	}
}

// ImportState replaces committed state with the supplied snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	state := newMemoryState()
	for k, v := range snapshot.Cases {
		state.cases[k] = cloneCase(v)
	}
	for k, v := range snapshot.Laboratories {
		state.laboratories[k] = cloneLaboratory(v)
	}
	for k, v := range snapshot.Technicians {
		state.technicians[k] = v
	}
	for k, v := range snapshot.Clinics {
		state.clinics[k] = v
	}
	for k, v := range snapshot.Preferences {
		state.preferences[k] = v
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Transaction represents a mutation set applied to the store state.
type Transaction struct {
	store   *Store
	state   memoryState
	changes []domain.Change
	now     time.Time
}

var _ domain.Transaction = (*Transaction)(nil)

// transactionView exposes a read-only snapshot of transactional state.
type transactionView struct {
	state *memoryState
}

var _ domain.TransactionView = transactionView{}

// Snapshot returns a read-only view of the transactional state.
func (tx *Transaction) Snapshot() domain.TransactionView {
	return transactionView{state: &tx.state}
}

func (v transactionView) ListCases() []domain.Case {
	out := make([]domain.Case, 0, len(v.state.cases))
	for _, c := range v.state.cases {
		out = append(out, cloneCase(c))
	}
	return out
}

func (v transactionView) ListLaboratories() []domain.Laboratory {
	out := make([]domain.Laboratory, 0, len(v.state.laboratories))
	for _, l := range v.state.laboratories {
		out = append(out, cloneLaboratory(l))
	}
	return out
}

func (v transactionView) ListTechnicians() []domain.Technician {
	out := make([]domain.Technician, 0, len(v.state.technicians))
	for _, t := range v.state.technicians {
		out = append(out, t)
	}
	return out
}

func (v transactionView) ListClinics() []domain.Clinic {
	out := make([]domain.Clinic, 0, len(v.state.clinics))
	for _, c := range v.state.clinics {
		out = append(out, c)
	}
	return out
}

func (v transactionView) FindCase(id string) (domain.Case, bool) {
	c, ok := v.state.cases[id]
	if !ok {
		return domain.Case{}, false
	}
	return cloneCase(c), true
}

func (v transactionView) FindLaboratory(id string) (domain.Laboratory, bool) {
	l, ok := v.state.laboratories[id]
	if !ok {
		return domain.Laboratory{}, false
	}
	return cloneLaboratory(l), true
}

func (v transactionView) FindTechnician(id string) (domain.Technician, bool) {
	t, ok := v.state.technicians[id]
	return t, ok
}

func (v transactionView) FindClinic(id string) (domain.Clinic, bool) {
	c, ok := v.state.clinics[id]
	return c, ok
}

func (v transactionView) PreferredLab(companyID, procedure string) (string, bool) {
	labID, ok := v.state.preferences[preferenceKey(companyID, procedure)]
	return labID, ok
}

// RunInTransaction executes fn within a transactional copy of the store
// state. Transactions serialize on a single writer lock, so at most one
// in-flight transition per case can commit at a time.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		view := transactionView{state: &tx.state}
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(transactionView{state: &snapshot})
}

func (tx *Transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// CreateCase stores a new case within the transaction. CaseID must be unique
// across live cases.
func (tx *Transaction) CreateCase(c domain.Case) (domain.Case, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.cases[c.ID]; exists {
		return domain.Case{}, fmt.Errorf("case %q already exists", c.ID)
	}
	if strings.TrimSpace(c.CaseID) == "" {
		return domain.Case{}, fmt.Errorf("case id is required")
	}
	for _, existing := range tx.state.cases {
		if existing.CaseID == c.CaseID {
			return domain.Case{}, fmt.Errorf("case id %q already in use", c.CaseID)
		}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	c.Version = 1
	tx.state.cases[c.ID] = cloneCase(c)
	tx.recordChange(domain.Change{Entity: domain.EntityCase, Action: domain.ActionCreate, After: cloneCase(c)})
	return cloneCase(c), nil
}

// UpdateCase mutates a case using the provided mutator and bumps its
// optimistic-concurrency version.
func (tx *Transaction) UpdateCase(id string, mutator func(*domain.Case) error) (domain.Case, error) {
	current, ok := tx.state.cases[id]
	if !ok {
		return domain.Case{}, domain.ErrNotFound{Entity: domain.EntityCase, ID: id}
	}
	before := cloneCase(current)
	working := cloneCase(current)
	if err := mutator(&working); err != nil {
		return domain.Case{}, err
	}
	working.ID = id
	working.UpdatedAt = tx.now
	working.Version = before.Version + 1
	tx.state.cases[id] = cloneCase(working)
	tx.recordChange(domain.Change{Entity: domain.EntityCase, Action: domain.ActionUpdate, Before: before, After: cloneCase(working)})
	return cloneCase(working), nil
}

// DeleteCase removes a case from the transaction state.
func (tx *Transaction) DeleteCase(id string) error {
	current, ok := tx.state.cases[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityCase, ID: id}
	}
	delete(tx.state.cases, id)
	tx.recordChange(domain.Change{Entity: domain.EntityCase, Action: domain.ActionDelete, Before: cloneCase(current)})
	return nil
}

// CreateLaboratory stores a laboratory directory record.
func (tx *Transaction) CreateLaboratory(l domain.Laboratory) (domain.Laboratory, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.laboratories[l.ID]; exists {
		return domain.Laboratory{}, fmt.Errorf("laboratory %q already exists", l.ID)
	}
	for _, p := range l.Procedures {
		if p.DailyCapacity < 0 {
			return domain.Laboratory{}, fmt.Errorf("laboratory procedure %q capacity cannot be negative", p.Name)
		}
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.laboratories[l.ID] = cloneLaboratory(l)
	tx.recordChange(domain.Change{Entity: domain.EntityLaboratory, Action: domain.ActionCreate, After: cloneLaboratory(l)})
	return cloneLaboratory(l), nil
}

// UpdateLaboratory mutates a laboratory record.
func (tx *Transaction) UpdateLaboratory(id string, mutator func(*domain.Laboratory) error) (domain.Laboratory, error) {
	current, ok := tx.state.laboratories[id]
	if !ok {
		return domain.Laboratory{}, domain.ErrNotFound{Entity: domain.EntityLaboratory, ID: id}
	}
	before := cloneLaboratory(current)
	working := cloneLaboratory(current)
	if err := mutator(&working); err != nil {
		return domain.Laboratory{}, err
	}
	working.ID = id
	working.UpdatedAt = tx.now
	tx.state.laboratories[id] = cloneLaboratory(working)
	tx.recordChange(domain.Change{Entity: domain.EntityLaboratory, Action: domain.ActionUpdate, Before: before, After: cloneLaboratory(working)})
	return cloneLaboratory(working), nil
}

// DeleteLaboratory removes a laboratory record.
func (tx *Transaction) DeleteLaboratory(id string) error {
	current, ok := tx.state.laboratories[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityLaboratory, ID: id}
	}
	delete(tx.state.laboratories, id)
	tx.recordChange(domain.Change{Entity: domain.EntityLaboratory, Action: domain.ActionDelete, Before: cloneLaboratory(current)})
	return nil
}

// CreateTechnician stores a technician directory record.
func (tx *Transaction) CreateTechnician(t domain.Technician) (domain.Technician, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.technicians[t.ID]; exists {
		return domain.Technician{}, fmt.Errorf("technician %q already exists", t.ID)
	}
	if t.Capacity < 0 {
		return domain.Technician{}, fmt.Errorf("technician capacity cannot be negative")
	}
	if t.Role == "" {
		t.Role = domain.RoleTechnician
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.technicians[t.ID] = t
	tx.recordChange(domain.Change{Entity: domain.EntityTechnician, Action: domain.ActionCreate, After: t})
	return t, nil
}

// UpdateTechnician mutates a technician record.
func (tx *Transaction) UpdateTechnician(id string, mutator func(*domain.Technician) error) (domain.Technician, error) {
	current, ok := tx.state.technicians[id]
	if !ok {
		return domain.Technician{}, domain.ErrNotFound{Entity: domain.EntityTechnician, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Technician{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.technicians[id] = current
	tx.recordChange(domain.Change{Entity: domain.EntityTechnician, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteTechnician removes a technician record.
func (tx *Transaction) DeleteTechnician(id string) error {
	current, ok := tx.state.technicians[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityTechnician, ID: id}
	}
	delete(tx.state.technicians, id)
	tx.recordChange(domain.Change{Entity: domain.EntityTechnician, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateClinic stores a clinic directory record.
func (tx *Transaction) CreateClinic(c domain.Clinic) (domain.Clinic, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.clinics[c.ID]; exists {
		return domain.Clinic{}, fmt.Errorf("clinic %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.clinics[c.ID] = c
	tx.recordChange(domain.Change{Entity: domain.EntityClinic, Action: domain.ActionCreate, After: c})
	return c, nil
}

// UpdateClinic mutates a clinic record.
func (tx *Transaction) UpdateClinic(id string, mutator func(*domain.Clinic) error) (domain.Clinic, error) {
	current, ok := tx.state.clinics[id]
	if !ok {
		return domain.Clinic{}, domain.ErrNotFound{Entity: domain.EntityClinic, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Clinic{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.clinics[id] = current
	tx.recordChange(domain.Change{Entity: domain.EntityClinic, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteClinic removes a clinic record.
func (tx *Transaction) DeleteClinic(id string) error {
	current, ok := tx.state.clinics[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityClinic, ID: id}
	}
	delete(tx.state.clinics, id)
	tx.recordChange(domain.Change{Entity: domain.EntityClinic, Action: domain.ActionDelete, Before: current})
	return nil
}

// FindCase retrieves a case from the transaction state.
func (tx *Transaction) FindCase(id string) (domain.Case, bool) {
	c, ok := tx.state.cases[id]
	if !ok {
		return domain.Case{}, false
	}
	return cloneCase(c), true
}

// FindLaboratory retrieves a laboratory from the transaction state.
func (tx *Transaction) FindLaboratory(id string) (domain.Laboratory, bool) {
	l, ok := tx.state.laboratories[id]
	if !ok {
		return domain.Laboratory{}, false
	}
	return cloneLaboratory(l), true
}

// SetPreferredLab upserts the sticky laboratory choice for a company and
// procedure. Last writer wins.
func (tx *Transaction) SetPreferredLab(companyID, procedure, labID string) {
	tx.state.preferences[preferenceKey(companyID, procedure)] = labID
}

// PreferredLab reads the sticky laboratory choice for a company and procedure.
func (tx *Transaction) PreferredLab(companyID, procedure string) (string, bool) {
	labID, ok := tx.state.preferences[preferenceKey(companyID, procedure)]
	return labID, ok
}

// Read helpers ---------------------------------------------------------------

// GetCase retrieves a case by record id from committed state.
func (s *Store) GetCase(id string) (domain.Case, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.cases[id]
	if !ok {
		return domain.Case{}, false
	}
	return cloneCase(c), true
}

// ListCases returns all cases from committed state.
func (s *Store) ListCases() []domain.Case {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Case, 0, len(s.state.cases))
	for _, c := range s.state.cases {
		out = append(out, cloneCase(c))
	}
	return out
}

// GetLaboratory retrieves a laboratory by id.
func (s *Store) GetLaboratory(id string) (domain.Laboratory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.laboratories[id]
	if !ok {
		return domain.Laboratory{}, false
	}
	return cloneLaboratory(l), true
}

// ListLaboratories returns all laboratory records.
func (s *Store) ListLaboratories() []domain.Laboratory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Laboratory, 0, len(s.state.laboratories))
	for _, l := range s.state.laboratories {
		out = append(out, cloneLaboratory(l))
	}
	return out
}

// ListTechnicians returns all technician records.
func (s *Store) ListTechnicians() []domain.Technician {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Technician, 0, len(s.state.technicians))
	for _, t := range s.state.technicians {
		out = append(out, t)
	}
	return out
}

// ListClinics returns all clinic records.
func (s *Store) ListClinics() []domain.Clinic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Clinic, 0, len(s.state.clinics))
	for _, c := range s.state.clinics {
		out = append(out, c)
	}
	return out
}
