// Package remote defines the boundary contract with the canonical clinic
// store and the identity provider.
//
// The canonical store is the networked, authoritative database. Entity
// services try it first and fall back to the local cache when a call fails;
// the sync engine replays cached work against it once connectivity returns.
//
// Implementations must distinguish "the record does not exist" (ErrNotFound)
// from "the store could not be reached" (ErrUnavailable, possibly wrapped):
// the former is an answer, the latter triggers the offline fallback.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/dentops/chairside/internal/clinic"
)

// ErrNotFound means the canonical store answered and the record is absent.
var ErrNotFound = errors.New("remote: record not found")

// ErrUnavailable means the canonical store could not be reached.
var ErrUnavailable = errors.New("remote: canonical store unavailable")

// ErrInvalidCredentials means a login attempt was rejected.
var ErrInvalidCredentials = errors.New("remote: invalid credentials")

// ConsultationFilter narrows consultation listings. Zero values match all.
type ConsultationFilter struct {
	// PatientName and PatientPhone are case-insensitive substring matches.
	PatientName  string
	PatientPhone string
	// From/To bound the consultation date (inclusive). Zero means unbounded.
	From time.Time
	To   time.Time
}

// AppointmentFilter narrows appointment listings. Zero values match all.
type AppointmentFilter struct {
	DentistID string
	Status    clinic.AppointmentStatus
	From      time.Time
	To        time.Time
}

// Store is the canonical store's CRUD surface, scoped by clinic.
//
// Create methods ignore any client-supplied id and return the entity with its
// server-assigned id and full field set. All calls are expected to fail fast
// rather than hang; callers treat any error that is not ErrNotFound as a
// connectivity-class failure.
type Store interface {
	CreateConsultation(ctx context.Context, c *clinic.Consultation) (*clinic.Consultation, error)
	UpdateConsultation(ctx context.Context, c *clinic.Consultation) (*clinic.Consultation, error)
	DeleteConsultation(ctx context.Context, clinicID, id string) error
	GetConsultation(ctx context.Context, clinicID, id string) (*clinic.Consultation, error)
	ListConsultations(ctx context.Context, clinicID string, f ConsultationFilter) ([]*clinic.Consultation, error)

	CreateTreatment(ctx context.Context, t *clinic.Treatment) (*clinic.Treatment, error)
	UpdateTreatment(ctx context.Context, t *clinic.Treatment) (*clinic.Treatment, error)
	DeleteTreatment(ctx context.Context, clinicID, id string) error
	GetTreatment(ctx context.Context, clinicID, id string) (*clinic.Treatment, error)
	ListTreatments(ctx context.Context, clinicID, consultationID string) ([]*clinic.Treatment, error)

	CreatePayment(ctx context.Context, p *clinic.Payment) (*clinic.Payment, error)
	DeletePayment(ctx context.Context, clinicID, id string) error
	ListPayments(ctx context.Context, clinicID, treatmentID string) ([]*clinic.Payment, error)

	CreateAppointment(ctx context.Context, a *clinic.Appointment) (*clinic.Appointment, error)
	UpdateAppointment(ctx context.Context, a *clinic.Appointment) (*clinic.Appointment, error)
	DeleteAppointment(ctx context.Context, clinicID, id string) error
	GetAppointment(ctx context.Context, clinicID, id string) (*clinic.Appointment, error)
	ListAppointments(ctx context.Context, clinicID string, f AppointmentFilter) ([]*clinic.Appointment, error)

	// FindScheduledAppointment returns a scheduled appointment for the
	// dentist at exactly the given instant, excluding excludeID, or
	// ErrNotFound. The sync engine uses it for double-booking detection
	// before admitting a pending appointment.
	FindScheduledAppointment(ctx context.Context, clinicID, dentistID string, at time.Time, excludeID string) (*clinic.Appointment, error)
}

// IdentityProvider resolves operator identity. Only the authentication
// fallback depends on it; when it is unreachable the fallback serves the
// most recently cached operator instead.
type IdentityProvider interface {
	// Login verifies credentials and returns a signed session token plus
	// the operator it belongs to.
	Login(ctx context.Context, email, password string) (token string, op *clinic.Operator, err error)

	// OperatorForSession resolves a session token to its operator.
	OperatorForSession(ctx context.Context, token string) (*clinic.Operator, error)
}
