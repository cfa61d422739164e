package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dentops/chairside/internal/clinic"
	"github.com/dentops/chairside/internal/remote"
)

// Consultations is the entity service for patient consultations.
type Consultations struct {
	deps Deps
}

// NewConsultations creates the consultation service.
func NewConsultations(deps Deps) *Consultations {
	return &Consultations{deps: deps.fill("[consultations] ")}
}

// Create records a new consultation, remote first.
func (s *Consultations) Create(ctx context.Context, c *clinic.Consultation) (*clinic.Consultation, error) {
	if c.ClinicID == "" {
		return nil, fmt.Errorf("clinicId is required")
	}

	if s.deps.Online() {
		out, err := s.deps.Remote.CreateConsultation(ctx, c)
		if err == nil {
			if perr := s.deps.Local.PutConsultation(ctx, out); perr != nil {
				s.deps.Logger.Printf("WARNING: failed to cache consultation %s: %v", out.ID, perr)
			}
			return out, nil
		}
		s.deps.Logger.Printf("WARNING: remote create failed, queueing locally: %v", err)
	}

	cp := *c
	cp.ID = clinic.NewProvisionalID()
	cp.MarkPending()
	if err := s.deps.Local.PutConsultation(ctx, &cp); err != nil {
		return nil, fmt.Errorf("failed to queue consultation: %w", err)
	}
	return &cp, nil
}

// Update modifies an existing consultation. Updates to records that still
// carry a provisional id stay local: the pending create already in the queue
// will carry the new field values when it is replayed.
func (s *Consultations) Update(ctx context.Context, c *clinic.Consultation) (*clinic.Consultation, error) {
	if !clinic.IsProvisionalID(c.ID) && s.deps.Online() {
		out, err := s.deps.Remote.UpdateConsultation(ctx, c)
		if err == nil {
			if perr := s.deps.Local.PutConsultation(ctx, out); perr != nil {
				s.deps.Logger.Printf("WARNING: failed to cache consultation %s: %v", out.ID, perr)
			}
			return out, nil
		}
		s.deps.Logger.Printf("WARNING: remote update failed, queueing locally: %v", err)
	}

	cp := *c
	cp.MarkPending()
	if err := s.deps.Local.PutConsultation(ctx, &cp); err != nil {
		return nil, fmt.Errorf("failed to queue consultation update: %w", err)
	}
	return &cp, nil
}

// Delete removes a consultation. A provisional record is simply dropped from
// the cache (the canonical store never saw it); otherwise the deletion is
// propagated now or queued.
func (s *Consultations) Delete(ctx context.Context, clinicID, id string) error {
	if clinic.IsProvisionalID(id) {
		return s.deps.Local.DeleteConsultation(ctx, id)
	}

	if s.deps.Online() {
		if err := s.deps.Remote.DeleteConsultation(ctx, clinicID, id); err == nil {
			return s.deps.Local.DeleteConsultation(ctx, id)
		} else {
			s.deps.Logger.Printf("WARNING: remote delete failed, queueing locally: %v", err)
		}
	}

	c, err := s.deps.Local.GetConsultation(ctx, id)
	if err != nil {
		return err
	}
	c.MarkDeleted()
	return s.deps.Local.PutConsultation(ctx, c)
}

// Get reads a consultation, preferring the canonical store and hydrating the
// cache on the way through.
func (s *Consultations) Get(ctx context.Context, clinicID, id string) (*clinic.Consultation, error) {
	if !clinic.IsProvisionalID(id) && s.deps.Online() {
		out, err := s.deps.Remote.GetConsultation(ctx, clinicID, id)
		if err == nil {
			if perr := s.deps.Local.PutConsultation(ctx, out); perr != nil {
				s.deps.Logger.Printf("WARNING: failed to cache consultation %s: %v", out.ID, perr)
			}
			return out, nil
		}
		if errors.Is(err, remote.ErrNotFound) {
			return nil, err
		}
		s.deps.Logger.Printf("WARNING: remote read failed, serving cache: %v", err)
	}
	return s.deps.Local.GetConsultation(ctx, id)
}

// List queries consultations, falling back to an in-memory scan of the cache
// when the canonical store is unreachable.
func (s *Consultations) List(ctx context.Context, clinicID string, f remote.ConsultationFilter) ([]*clinic.Consultation, error) {
	if s.deps.Online() {
		out, err := s.deps.Remote.ListConsultations(ctx, clinicID, f)
		if err == nil {
			if perr := s.deps.Local.BulkPutConsultations(ctx, out); perr != nil {
				s.deps.Logger.Printf("WARNING: failed to hydrate consultation cache: %v", perr)
			}
			return out, nil
		}
		s.deps.Logger.Printf("WARNING: remote list failed, serving cache: %v", err)
	}

	cached, err := s.deps.Local.ConsultationsByClinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	var out []*clinic.Consultation
	for _, c := range cached {
		if c.SyncStatus == clinic.StatusDeleted || !f.Matches(c) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
