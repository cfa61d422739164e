// Package clinic defines the synchronizable domain entities shared by the
// local cache, the entity services, and the sync engine.
//
// Every entity carries SyncMeta alongside its domain fields. Records written
// while the canonical store is unreachable get a client-minted provisional id
// and StatusPending; the sync engine later replays them and rewrites the
// provisional id (and every foreign key pointing at it) to the server-assigned
// one.
package clinic

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SyncStatus describes a record's agreement with the canonical store.
type SyncStatus string

const (
	// StatusSynced means the record is identical to the canonical store
	// as of LastSynced.
	StatusSynced SyncStatus = "synced"

	// StatusPending means the record was created or updated locally and
	// has not been replayed to the canonical store yet.
	StatusPending SyncStatus = "pending"

	// StatusDeleted means the record was removed locally and the deletion
	// has not been propagated yet.
	StatusDeleted SyncStatus = "deleted"
)

// String returns the wire representation of the status.
func (s SyncStatus) String() string {
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusSynced, StatusPending, StatusDeleted:
		return true
	}
	return false
}

// provisionalPrefix marks client-minted ids. Ids with this prefix are only
// meaningful on the device that created them and must never reach the
// canonical store.
const provisionalPrefix = "local-"

// NewProvisionalID mints a client-side id for a record created offline.
func NewProvisionalID() string {
	return provisionalPrefix + uuid.New().String()
}

// IsProvisionalID reports whether id was minted locally and still needs to be
// remapped to a server-assigned id.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}

// SyncMeta is embedded in every synchronizable entity.
type SyncMeta struct {
	ID         string     `json:"id"`
	ClinicID   string     `json:"clinicId"`
	SyncStatus SyncStatus `json:"syncStatus"`
	LastSynced *time.Time `json:"lastSynced,omitempty"`
}

// Meta returns a pointer to the embedded metadata so callers can stamp
// records generically.
func (m *SyncMeta) Meta() *SyncMeta { return m }

// MarkSynced stamps the record as agreeing with the canonical store.
func (m *SyncMeta) MarkSynced(at time.Time) {
	m.SyncStatus = StatusSynced
	m.LastSynced = &at
}

// MarkPending stamps the record as awaiting reconciliation.
func (m *SyncMeta) MarkPending() {
	m.SyncStatus = StatusPending
}

// MarkDeleted stamps the record for deletion propagation.
func (m *SyncMeta) MarkDeleted() {
	m.SyncStatus = StatusDeleted
}

// Consultation is a patient visit. It is the root of the dependency graph:
// treatments, payments, and appointments may all reference one.
type Consultation struct {
	SyncMeta

	PatientName  string    `json:"patientName"`
	PatientPhone string    `json:"patientPhone,omitempty"`
	DentistID    string    `json:"dentistId"`
	Date         time.Time `json:"date"`
	Diagnosis    string    `json:"diagnosis,omitempty"`
	Notes        string    `json:"notes,omitempty"`
}

// Validate checks required consultation fields.
func (c *Consultation) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.ClinicID == "" {
		return fmt.Errorf("clinicId is required")
	}
	if c.PatientName == "" {
		return fmt.Errorf("patientName is required")
	}
	if c.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if !c.SyncStatus.Valid() {
		return fmt.Errorf("invalid syncStatus %q", c.SyncStatus)
	}
	return nil
}

// TreatmentStatus is derived from the payments applied to a treatment.
type TreatmentStatus string

const (
	TreatmentUnpaid  TreatmentStatus = "UNPAID"
	TreatmentPartial TreatmentStatus = "PARTIAL"
	TreatmentPaid    TreatmentStatus = "PAID"
)

// Treatment is a billable procedure attached to a consultation.
//
// PaidAmount, RemainingAmount, and Status are derived state: they are never
// authored directly and are always recomputed from the associated payments
// (see ComputeTreatmentState).
type Treatment struct {
	SyncMeta

	ConsultationID string    `json:"consultationId"`
	Name           string    `json:"name"`
	Date           time.Time `json:"date"`

	// NominalAmount is the agreed price in CFA francs.
	NominalAmount   int64           `json:"nominalAmount"`
	PaidAmount      int64           `json:"paidAmount"`
	RemainingAmount int64           `json:"remainingAmount"`
	Status          TreatmentStatus `json:"status"`
}

// Validate checks required treatment fields.
func (t *Treatment) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.ClinicID == "" {
		return fmt.Errorf("clinicId is required")
	}
	if t.ConsultationID == "" {
		return fmt.Errorf("consultationId is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if t.NominalAmount < 0 {
		return fmt.Errorf("nominalAmount must not be negative (got %d)", t.NominalAmount)
	}
	if !t.SyncStatus.Valid() {
		return fmt.Errorf("invalid syncStatus %q", t.SyncStatus)
	}
	return nil
}

// Payment records money received against a treatment.
type Payment struct {
	SyncMeta

	TreatmentID    string    `json:"treatmentId"`
	ConsultationID string    `json:"consultationId,omitempty"`
	Amount         int64     `json:"amount"`
	Method         string    `json:"method,omitempty"` // cash, mobile money, ...
	ReceivedAt     time.Time `json:"receivedAt"`
	OperatorID     string    `json:"operatorId,omitempty"`
}

// Validate checks required payment fields.
func (p *Payment) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.ClinicID == "" {
		return fmt.Errorf("clinicId is required")
	}
	if p.TreatmentID == "" {
		return fmt.Errorf("treatmentId is required")
	}
	if p.Amount <= 0 {
		return fmt.Errorf("amount must be positive (got %d)", p.Amount)
	}
	if !p.SyncStatus.Valid() {
		return fmt.Errorf("invalid syncStatus %q", p.SyncStatus)
	}
	return nil
}

// AppointmentStatus is the scheduling state of an appointment.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Appointment is a booked slot for a dentist. Two scheduled appointments for
// the same dentist at the same instant are a double-booking conflict.
type Appointment struct {
	SyncMeta

	ConsultationID string            `json:"consultationId,omitempty"`
	PatientName    string            `json:"patientName"`
	DentistID      string            `json:"dentistId"`
	StartTime      time.Time         `json:"startTime"`
	Reason         string            `json:"reason,omitempty"`
	Status         AppointmentStatus `json:"status"`
}

// Validate checks required appointment fields.
func (a *Appointment) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.ClinicID == "" {
		return fmt.Errorf("clinicId is required")
	}
	if a.DentistID == "" {
		return fmt.Errorf("dentistId is required")
	}
	if a.StartTime.IsZero() {
		return fmt.Errorf("startTime is required")
	}
	if !a.SyncStatus.Valid() {
		return fmt.Errorf("invalid syncStatus %q", a.SyncStatus)
	}
	return nil
}

// Operator is a clinic staff member. Cached locally so the device can resolve
// "who is logged in" while the identity provider is unreachable.
type Operator struct {
	SyncMeta

	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"` // dentist, assistant, admin
}

// Validate checks required operator fields.
func (o *Operator) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("id is required")
	}
	if o.Email == "" {
		return fmt.Errorf("email is required")
	}
	if !o.SyncStatus.Valid() {
		return fmt.Errorf("invalid syncStatus %q", o.SyncStatus)
	}
	return nil
}
