// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by the dentalcore workflow engine.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityCase identifies a laboratory case record.
	EntityCase EntityType = "case"
	// EntityLaboratory identifies a laboratory directory record.
	EntityLaboratory EntityType = "laboratory"
	// EntityTechnician identifies a technician directory record.
	EntityTechnician EntityType = "technician"
	// EntityClinic identifies a clinic directory record.
	EntityClinic EntityType = "clinic"
)

// CaseStatus represents the coarse lifecycle state of a laboratory case.
type CaseStatus string

// Canonical case statuses from intake to completion.
const (
	// StatusInPlanning indicates an intake record without a production slot.
	StatusInPlanning CaseStatus = "in-planning"
	// StatusInProduction indicates the case is owned by the production pipeline.
	StatusInProduction CaseStatus = "in-production"
	// StatusInTransit indicates fabrication is done and delivery is underway.
	StatusInTransit CaseStatus = "in-transit"
	// StatusCompleted indicates the case was delivered and is billable.
	StatusCompleted CaseStatus = "completed"
)

// ProductionStage enumerates the ordered fabrication steps of a case.
type ProductionStage string

// Canonical production stages, strictly ordered.
const (
	StageDesign    ProductionStage = "design"
	StagePrinting  ProductionStage = "printing"
	StageMilling   ProductionStage = "milling"
	StageFinishing ProductionStage = "finishing"
	StageQC        ProductionStage = "qc"
	StagePackaging ProductionStage = "packaging"
)

// TransitStatus enumerates the delivery lifecycle states of a case.
type TransitStatus string

// Canonical transit statuses. DeliveryFailed is re-enterable into
// OutForDelivery via an explicit retry; Delivered is terminal.
const (
	TransitPendingPickup  TransitStatus = "pending-pickup"
	TransitPickedUp       TransitStatus = "picked-up"
	TransitInTransit      TransitStatus = "in-transit"
	TransitOutForDelivery TransitStatus = "out-for-delivery"
	TransitDelivered      TransitStatus = "delivered"
	TransitFailedDelivery TransitStatus = "failed-delivery"
)

// CasePriority ranks intake urgency. It does not alter transition legality.
type CasePriority string

// Recognised case priorities.
const (
	PriorityNormal CasePriority = "normal"
	PriorityRush   CasePriority = "rush"
	PriorityUrgent CasePriority = "urgent"
)

// TechnicianRole distinguishes bench technicians from lab managers.
type TechnicianRole string

// Recognised technician roles.
const (
	RoleTechnician TechnicianRole = "technician"
	RoleLabManager TechnicianRole = "lab-manager"
)

// DefaultTechnicianCapacity applies when a technician record omits capacity.
const DefaultTechnicianCapacity = 10

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TransitEvent is one immutable entry in a case's transit history.
type TransitEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Location  string        `json:"location"`
	Status    TransitStatus `json:"status"`
	Notes     *string       `json:"notes,omitempty"`
}

// Case is the unit of work tracked end-to-end from planning to delivery.
// ProductionStage is set iff Status is in-production; TransitStatus is set
// iff Status is in-transit. TransitHistory is append-only.
type Case struct {
	Base
	CaseID           string           `json:"case_id"`
	CompanyID        string           `json:"company_id"`
	ClinicID         string           `json:"clinic_id"`
	ClinicName       string           `json:"clinic_name"`
	PatientRef       string           `json:"patient_ref,omitempty"`
	DoctorRef        string           `json:"doctor_ref,omitempty"`
	LabID            string           `json:"lab_id,omitempty"`
	Procedure        string           `json:"procedure"`
	Priority         CasePriority     `json:"priority"`
	Status           CaseStatus       `json:"status"`
	ProductionStage  *ProductionStage `json:"production_stage,omitempty"`
	TransitStatus    *TransitStatus   `json:"transit_status,omitempty"`
	TechnicianID     *string          `json:"technician_id,omitempty"`
	CourierService   *string          `json:"courier_service,omitempty"`
	TrackingNumber   *string          `json:"tracking_number,omitempty"`
	CurrentLocation  string           `json:"current_location,omitempty"`
	Price            *float64         `json:"price"`
	ReservationDate  time.Time        `json:"reservation_date"`
	ActualCompletion *time.Time       `json:"actual_completion"`
	TransitHistory   []TransitEvent   `json:"transit_history"`
	Version          int64            `json:"version"`
}

// LabProcedure describes one procedure a laboratory offers and its daily
// throughput. Zero capacity means the procedure is not offered.
type LabProcedure struct {
	Name          string `json:"name"`
	DailyCapacity int    `json:"daily_capacity"`
}

// Laboratory is a production facility. Read-only to the workflow engine.
type Laboratory struct {
	Base
	Name       string         `json:"name"`
	Procedures []LabProcedure `json:"procedures"`
}

// Offers reports whether the laboratory offers the procedure with capacity,
// returning the configured daily capacity on a hit.
func (l Laboratory) Offers(procedure string) (int, bool) {
	for _, p := range l.Procedures {
		if p.Name == procedure && p.DailyCapacity > 0 {
			return p.DailyCapacity, true
		}
	}
	return 0, false
}

// Technician is a worker eligible to carry cases through production stages.
type Technician struct {
	Base
	Name     string         `json:"name"`
	Role     TechnicianRole `json:"role"`
	Capacity int            `json:"capacity"`
}

// EffectiveCapacity resolves the concurrent-case capacity, substituting the
// default when the record omits it.
func (t Technician) EffectiveCapacity() int {
	if t.Capacity > 0 {
		return t.Capacity
	}
	return DefaultTechnicianCapacity
}

// Clinic is a customer location cases are delivered to.
type Clinic struct {
	Base
	Name      string `json:"name"`
	CompanyID string `json:"company_id"`
	Address   string `json:"address,omitempty"`
}

// UtilizationBand describes a technician's load for presentation. Bands are
// descriptive only; the engine never rejects work based on them.
type UtilizationBand string

// Utilization bands: nominal < 70%, elevated 70-89%, saturated >= 90%.
const (
	BandNominal   UtilizationBand = "nominal"
	BandElevated  UtilizationBand = "elevated"
	BandSaturated UtilizationBand = "saturated"
)

// TechnicianWorkload summarizes one technician's live production load.
type TechnicianWorkload struct {
	TechnicianID   string                  `json:"technician_id"`
	Name           string                  `json:"name"`
	Capacity       int                     `json:"capacity"`
	ActiveCases    int                     `json:"active_cases"`
	StageBreakdown map[ProductionStage]int `json:"stage_breakdown"`
	Utilization    float64                 `json:"utilization"`
	Band           UtilizationBand         `json:"band"`
}

// ProcedureRollup is one (clinic, procedure) cell of a billing rollup.
type ProcedureRollup struct {
	Procedure string  `json:"procedure"`
	Quantity  int     `json:"quantity"`
	Amount    float64 `json:"amount"`
}

// ClinicRollup groups procedure cells for one clinic. ClinicKey is the
// clinic id when present, otherwise the clinic name.
type ClinicRollup struct {
	ClinicKey  string            `json:"clinic_key"`
	ClinicName string            `json:"clinic_name"`
	Procedures []ProcedureRollup `json:"procedures"`
	Quantity   int               `json:"quantity"`
	Amount     float64           `json:"amount"`
}

// BillingRollup is a derived, never-persisted clinic/procedure/totals report
// for one company over an inclusive date range. It carries no generation
// timestamp: the same inputs always produce the same value, so repeated runs
// compare equal. Archival stamps its own timestamp on the stored object.
type BillingRollup struct {
	CompanyID     string         `json:"company_id"`
	From          time.Time      `json:"from"`
	To            time.Time      `json:"to"`
	Clinics       []ClinicRollup `json:"clinics"`
	TotalQuantity int            `json:"total_quantity"`
	TotalAmount   float64        `json:"total_amount"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported operations captured for rule evaluation.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the subset of violations with warn severity.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityWarn {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
