package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dentops/chairside/internal/clinic"
	"github.com/dentops/chairside/internal/remote"
)

// Appointments is the entity service for the booking calendar.
type Appointments struct {
	deps Deps
}

// NewAppointments creates the appointment service.
func NewAppointments(deps Deps) *Appointments {
	return &Appointments{deps: deps.fill("[appointments] ")}
}

// Create books an appointment. New bookings default to scheduled.
//
// No double-booking check happens here: an offline device cannot see the
// canonical calendar, so conflicts are detected at reconciliation time by
// the sync engine instead.
func (s *Appointments) Create(ctx context.Context, a *clinic.Appointment) (*clinic.Appointment, error) {
	if a.ClinicID == "" {
		return nil, fmt.Errorf("clinicId is required")
	}
	if a.Status == "" {
		a.Status = clinic.AppointmentScheduled
	}

	if !clinic.IsProvisionalID(a.ConsultationID) && s.deps.Online() {
		out, err := s.deps.Remote.CreateAppointment(ctx, a)
		if err == nil {
			if perr := s.deps.Local.PutAppointment(ctx, out); perr != nil {
				s.deps.Logger.Printf("WARNING: failed to cache appointment %s: %v", out.ID, perr)
			}
			return out, nil
		}
		s.deps.Logger.Printf("WARNING: remote create failed, queueing locally: %v", err)
	}

	cp := *a
	cp.ID = clinic.NewProvisionalID()
	cp.MarkPending()
	if err := s.deps.Local.PutAppointment(ctx, &cp); err != nil {
		return nil, fmt.Errorf("failed to queue appointment: %w", err)
	}
	return &cp, nil
}

// Update modifies an appointment (reschedule, cancel, complete).
func (s *Appointments) Update(ctx context.Context, a *clinic.Appointment) (*clinic.Appointment, error) {
	if !clinic.IsProvisionalID(a.ID) && s.deps.Online() {
		out, err := s.deps.Remote.UpdateAppointment(ctx, a)
		if err == nil {
			if perr := s.deps.Local.PutAppointment(ctx, out); perr != nil {
				s.deps.Logger.Printf("WARNING: failed to cache appointment %s: %v", out.ID, perr)
			}
			return out, nil
		}
		s.deps.Logger.Printf("WARNING: remote update failed, queueing locally: %v", err)
	}

	cp := *a
	cp.MarkPending()
	if err := s.deps.Local.PutAppointment(ctx, &cp); err != nil {
		return nil, fmt.Errorf("failed to queue appointment update: %w", err)
	}
	return &cp, nil
}

// Delete removes an appointment.
func (s *Appointments) Delete(ctx context.Context, clinicID, id string) error {
	if clinic.IsProvisionalID(id) {
		return s.deps.Local.DeleteAppointment(ctx, id)
	}

	if s.deps.Online() {
		if err := s.deps.Remote.DeleteAppointment(ctx, clinicID, id); err == nil {
			return s.deps.Local.DeleteAppointment(ctx, id)
		} else {
			s.deps.Logger.Printf("WARNING: remote delete failed, queueing locally: %v", err)
		}
	}

	a, err := s.deps.Local.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	a.MarkDeleted()
	return s.deps.Local.PutAppointment(ctx, a)
}

// Get reads an appointment, hydrating the cache when possible.
func (s *Appointments) Get(ctx context.Context, clinicID, id string) (*clinic.Appointment, error) {
	if !clinic.IsProvisionalID(id) && s.deps.Online() {
		out, err := s.deps.Remote.GetAppointment(ctx, clinicID, id)
		if err == nil {
			if perr := s.deps.Local.PutAppointment(ctx, out); perr != nil {
				s.deps.Logger.Printf("WARNING: failed to cache appointment %s: %v", out.ID, perr)
			}
			return out, nil
		}
		if errors.Is(err, remote.ErrNotFound) {
			return nil, err
		}
		s.deps.Logger.Printf("WARNING: remote read failed, serving cache: %v", err)
	}
	return s.deps.Local.GetAppointment(ctx, id)
}

// List queries the calendar, falling back to the cache when offline.
func (s *Appointments) List(ctx context.Context, clinicID string, f remote.AppointmentFilter) ([]*clinic.Appointment, error) {
	if s.deps.Online() {
		out, err := s.deps.Remote.ListAppointments(ctx, clinicID, f)
		if err == nil {
			if perr := s.deps.Local.BulkPutAppointments(ctx, out); perr != nil {
				s.deps.Logger.Printf("WARNING: failed to hydrate appointment cache: %v", perr)
			}
			return out, nil
		}
		s.deps.Logger.Printf("WARNING: remote list failed, serving cache: %v", err)
	}

	cached, err := s.deps.Local.AppointmentsByClinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	var out []*clinic.Appointment
	for _, a := range cached {
		if a.SyncStatus == clinic.StatusDeleted || !f.Matches(a) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
