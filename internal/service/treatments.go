package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dentops/chairside/internal/clinic"
	"github.com/dentops/chairside/internal/remote"
)

// Treatments is the entity service for billable treatments.
type Treatments struct {
	deps Deps
}

// NewTreatments creates the treatment service.
func NewTreatments(deps Deps) *Treatments {
	return &Treatments{deps: deps.fill("[treatments] ")}
}

// Create records a new treatment under a consultation. The derived payment
// fields start from zero regardless of what the caller supplied.
//
// A treatment whose consultation is itself still provisional can only be
// queued locally: its foreign key must be remapped before it may ever reach
// the canonical store.
func (s *Treatments) Create(ctx context.Context, t *clinic.Treatment) (*clinic.Treatment, error) {
	if t.ClinicID == "" {
		return nil, fmt.Errorf("clinicId is required")
	}
	t.ApplyDerivedState(nil)

	if !clinic.IsProvisionalID(t.ConsultationID) && s.deps.Online() {
		out, err := s.deps.Remote.CreateTreatment(ctx, t)
		if err == nil {
			if perr := s.deps.Local.PutTreatment(ctx, out); perr != nil {
				s.deps.Logger.Printf("WARNING: failed to cache treatment %s: %v", out.ID, perr)
			}
			return out, nil
		}
		s.deps.Logger.Printf("WARNING: remote create failed, queueing locally: %v", err)
	}

	cp := *t
	cp.ID = clinic.NewProvisionalID()
	cp.MarkPending()
	if err := s.deps.Local.PutTreatment(ctx, &cp); err != nil {
		return nil, fmt.Errorf("failed to queue treatment: %w", err)
	}
	return &cp, nil
}

// Update modifies a treatment's authored fields. Derived fields are
// recomputed from cached payments rather than trusted from the caller.
func (s *Treatments) Update(ctx context.Context, t *clinic.Treatment) (*clinic.Treatment, error) {
	payments, err := s.paymentsFor(ctx, t.ClinicID, t.ID)
	if err == nil {
		t.ApplyDerivedState(payments)
	}

	if !clinic.IsProvisionalID(t.ID) && s.deps.Online() {
		out, err := s.deps.Remote.UpdateTreatment(ctx, t)
		if err == nil {
			if perr := s.deps.Local.PutTreatment(ctx, out); perr != nil {
				s.deps.Logger.Printf("WARNING: failed to cache treatment %s: %v", out.ID, perr)
			}
			return out, nil
		}
		s.deps.Logger.Printf("WARNING: remote update failed, queueing locally: %v", err)
	}

	cp := *t
	cp.MarkPending()
	if err := s.deps.Local.PutTreatment(ctx, &cp); err != nil {
		return nil, fmt.Errorf("failed to queue treatment update: %w", err)
	}
	return &cp, nil
}

// Delete removes a treatment.
func (s *Treatments) Delete(ctx context.Context, clinicID, id string) error {
	if clinic.IsProvisionalID(id) {
		return s.deps.Local.DeleteTreatment(ctx, id)
	}

	if s.deps.Online() {
		if err := s.deps.Remote.DeleteTreatment(ctx, clinicID, id); err == nil {
			return s.deps.Local.DeleteTreatment(ctx, id)
		} else {
			s.deps.Logger.Printf("WARNING: remote delete failed, queueing locally: %v", err)
		}
	}

	t, err := s.deps.Local.GetTreatment(ctx, id)
	if err != nil {
		return err
	}
	t.MarkDeleted()
	return s.deps.Local.PutTreatment(ctx, t)
}

// Get reads a treatment, hydrating the cache when the canonical store
// answers.
func (s *Treatments) Get(ctx context.Context, clinicID, id string) (*clinic.Treatment, error) {
	if !clinic.IsProvisionalID(id) && s.deps.Online() {
		out, err := s.deps.Remote.GetTreatment(ctx, clinicID, id)
		if err == nil {
			if perr := s.deps.Local.PutTreatment(ctx, out); perr != nil {
				s.deps.Logger.Printf("WARNING: failed to cache treatment %s: %v", out.ID, perr)
			}
			return out, nil
		}
		if errors.Is(err, remote.ErrNotFound) {
			return nil, err
		}
		s.deps.Logger.Printf("WARNING: remote read failed, serving cache: %v", err)
	}
	return s.deps.Local.GetTreatment(ctx, id)
}

// List queries treatments, optionally narrowed to one consultation.
func (s *Treatments) List(ctx context.Context, clinicID, consultationID string) ([]*clinic.Treatment, error) {
	if s.deps.Online() {
		out, err := s.deps.Remote.ListTreatments(ctx, clinicID, consultationID)
		if err == nil {
			if perr := s.deps.Local.BulkPutTreatments(ctx, out); perr != nil {
				s.deps.Logger.Printf("WARNING: failed to hydrate treatment cache: %v", perr)
			}
			return out, nil
		}
		s.deps.Logger.Printf("WARNING: remote list failed, serving cache: %v", err)
	}

	cached, err := s.deps.Local.TreatmentsByClinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	var out []*clinic.Treatment
	for _, t := range cached {
		if t.SyncStatus == clinic.StatusDeleted {
			continue
		}
		if consultationID != "" && t.ConsultationID != consultationID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// paymentsFor loads the payments applied to a treatment from whichever side
// is reachable.
func (s *Treatments) paymentsFor(ctx context.Context, clinicID, treatmentID string) ([]*clinic.Payment, error) {
	if !clinic.IsProvisionalID(treatmentID) && s.deps.Online() {
		if out, err := s.deps.Remote.ListPayments(ctx, clinicID, treatmentID); err == nil {
			return out, nil
		}
	}
	return s.deps.Local.PaymentsByTreatment(ctx, clinicID, treatmentID)
}
