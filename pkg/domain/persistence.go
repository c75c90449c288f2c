package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateCase(Case) (Case, error)
	UpdateCase(id string, mutator func(*Case) error) (Case, error)
	DeleteCase(id string) error
	CreateLaboratory(Laboratory) (Laboratory, error)
	UpdateLaboratory(id string, mutator func(*Laboratory) error) (Laboratory, error)
	DeleteLaboratory(id string) error
	CreateTechnician(Technician) (Technician, error)
	UpdateTechnician(id string, mutator func(*Technician) error) (Technician, error)
	DeleteTechnician(id string) error
	CreateClinic(Clinic) (Clinic, error)
	UpdateClinic(id string, mutator func(*Clinic) error) (Clinic, error)
	DeleteClinic(id string) error
	FindCase(id string) (Case, bool)
	FindLaboratory(id string) (Laboratory, bool)
	SetPreferredLab(companyID, procedure, labID string)
	PreferredLab(companyID, procedure string) (string, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// aggregators.
type TransactionView interface {
	ListCases() []Case
	ListLaboratories() []Laboratory
	ListTechnicians() []Technician
	ListClinics() []Clinic
	FindCase(id string) (Case, bool)
	FindLaboratory(id string) (Laboratory, bool)
	FindTechnician(id string) (Technician, bool)
	FindClinic(id string) (Clinic, bool)
	PreferredLab(companyID, procedure string) (string, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetCase(id string) (Case, bool)
	ListCases() []Case
	GetLaboratory(id string) (Laboratory, bool)
	ListLaboratories() []Laboratory
	ListTechnicians() []Technician
	ListClinics() []Clinic
}

// PreferenceStore holds the sticky per-(company, procedure) laboratory
// choice. Writes are last-writer-wins upserts on a single key; the engine
// reads and writes values but never owns the store's lifecycle.
type PreferenceStore interface {
	GetPreferredLab(ctx context.Context, companyID, procedure string) (string, bool, error)
	SetPreferredLab(ctx context.Context, companyID, procedure, labID string) error
}
