package service

import (
	"context"
	"fmt"

	"github.com/dentops/chairside/internal/clinic"
)

// Payments is the entity service for payments. Every payment write triggers
// an immediate recomputation of the owning treatment's derived state against
// whichever store took the write.
type Payments struct {
	deps Deps
}

// NewPayments creates the payment service.
func NewPayments(deps Deps) *Payments {
	return &Payments{deps: deps.fill("[payments] ")}
}

// Create records a payment against a treatment.
func (s *Payments) Create(ctx context.Context, p *clinic.Payment) (*clinic.Payment, error) {
	if p.ClinicID == "" {
		return nil, fmt.Errorf("clinicId is required")
	}
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = s.deps.Now()
	}

	if !clinic.IsProvisionalID(p.TreatmentID) && s.deps.Online() {
		out, err := s.deps.Remote.CreatePayment(ctx, p)
		if err == nil {
			if perr := s.deps.Local.PutPayment(ctx, out); perr != nil {
				s.deps.Logger.Printf("WARNING: failed to cache payment %s: %v", out.ID, perr)
			}
			if rerr := s.recomputeRemote(ctx, out.ClinicID, out.TreatmentID); rerr != nil {
				s.deps.Logger.Printf("WARNING: failed to recompute treatment %s: %v", out.TreatmentID, rerr)
			}
			return out, nil
		}
		s.deps.Logger.Printf("WARNING: remote create failed, queueing locally: %v", err)
	}

	cp := *p
	cp.ID = clinic.NewProvisionalID()
	cp.MarkPending()
	if err := s.deps.Local.PutPayment(ctx, &cp); err != nil {
		return nil, fmt.Errorf("failed to queue payment: %w", err)
	}
	if rerr := s.recomputeLocal(ctx, cp.ClinicID, cp.TreatmentID); rerr != nil {
		s.deps.Logger.Printf("WARNING: failed to recompute cached treatment %s: %v", cp.TreatmentID, rerr)
	}
	return &cp, nil
}

// Delete removes a payment and recomputes the owning treatment.
func (s *Payments) Delete(ctx context.Context, clinicID, id string) error {
	if clinic.IsProvisionalID(id) {
		p, err := s.deps.Local.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if err := s.deps.Local.DeletePayment(ctx, id); err != nil {
			return err
		}
		return s.recomputeLocal(ctx, clinicID, p.TreatmentID)
	}

	p, err := s.deps.Local.GetPayment(ctx, id)
	if err != nil {
		p = nil // not cached; treatment recompute happens remotely only
	}

	if s.deps.Online() {
		if err := s.deps.Remote.DeletePayment(ctx, clinicID, id); err == nil {
			if derr := s.deps.Local.DeletePayment(ctx, id); derr != nil {
				return derr
			}
			if p != nil {
				if rerr := s.recomputeRemote(ctx, clinicID, p.TreatmentID); rerr != nil {
					s.deps.Logger.Printf("WARNING: failed to recompute treatment %s: %v", p.TreatmentID, rerr)
				}
			}
			return nil
		} else {
			s.deps.Logger.Printf("WARNING: remote delete failed, queueing locally: %v", err)
		}
	}

	if p == nil {
		return fmt.Errorf("payment %s is not cached and the canonical store is unreachable", id)
	}
	p.MarkDeleted()
	if err := s.deps.Local.PutPayment(ctx, p); err != nil {
		return err
	}
	return s.recomputeLocal(ctx, clinicID, p.TreatmentID)
}

// List returns the payments applied to a treatment.
func (s *Payments) List(ctx context.Context, clinicID, treatmentID string) ([]*clinic.Payment, error) {
	if !clinic.IsProvisionalID(treatmentID) && s.deps.Online() {
		out, err := s.deps.Remote.ListPayments(ctx, clinicID, treatmentID)
		if err == nil {
			if perr := s.deps.Local.BulkPutPayments(ctx, out); perr != nil {
				s.deps.Logger.Printf("WARNING: failed to hydrate payment cache: %v", perr)
			}
			return out, nil
		}
		s.deps.Logger.Printf("WARNING: remote list failed, serving cache: %v", err)
	}

	cached, err := s.deps.Local.PaymentsByTreatment(ctx, clinicID, treatmentID)
	if err != nil {
		return nil, err
	}
	var out []*clinic.Payment
	for _, p := range cached {
		if p.SyncStatus == clinic.StatusDeleted {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// recomputeRemote rebuilds the treatment's derived state from the canonical
// payment list and mirrors the result into the cache as synced.
func (s *Payments) recomputeRemote(ctx context.Context, clinicID, treatmentID string) error {
	t, err := s.deps.Remote.GetTreatment(ctx, clinicID, treatmentID)
	if err != nil {
		return err
	}
	payments, err := s.deps.Remote.ListPayments(ctx, clinicID, treatmentID)
	if err != nil {
		return err
	}
	t.ApplyDerivedState(payments)
	updated, err := s.deps.Remote.UpdateTreatment(ctx, t)
	if err != nil {
		return err
	}
	return s.deps.Local.PutTreatment(ctx, updated)
}

// recomputeLocal rebuilds the treatment's derived state from cached payments
// only. The treatment keeps its current sync status: the derived fields will
// be recomputed against the canonical store once the payments reconcile.
func (s *Payments) recomputeLocal(ctx context.Context, clinicID, treatmentID string) error {
	t, err := s.deps.Local.GetTreatment(ctx, treatmentID)
	if err != nil {
		return err
	}
	payments, err := s.deps.Local.PaymentsByTreatment(ctx, clinicID, treatmentID)
	if err != nil {
		return err
	}
	t.ApplyDerivedState(payments)
	return s.deps.Local.PutTreatment(ctx, t)
}
