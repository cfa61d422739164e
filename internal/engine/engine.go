// Package engine implements the reconciliation pass that drains the local
// cache's pending queue back into the canonical store.
//
// A pass processes entity families in dependency order: consultations first,
// then appointments and treatments (which may reference a consultation), then
// payments (which may reference a treatment and/or consultation). Replaying a
// parent yields its server-assigned id; the engine records the mapping in a
// remap table and rewrites every dependent foreign key in the cache before
// any child is replayed, so a child never reaches the canonical store still
// pointing at a provisional id.
//
// The engine is resilient: one record failing to replay is logged and
// skipped, and the rest of the batch is still attempted. Failed records stay
// pending and are retried on the next pass, indefinitely.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/dentops/chairside/internal/clinic"
	"github.com/dentops/chairside/internal/remote"
	"github.com/dentops/chairside/internal/store"
)

// EventType labels engine notifications.
type EventType string

const (
	// EventPassStarted fires when a pass begins draining a clinic's queue.
	EventPassStarted EventType = "pass_started"

	// EventRecordSynced fires for every record admitted into the
	// canonical store.
	EventRecordSynced EventType = "record_synced"

	// EventConflict fires when a pending appointment collides with the
	// canonical calendar and is left pending.
	EventConflict EventType = "conflict"

	// EventPassCompleted fires when the pass finishes, with stats.
	EventPassCompleted EventType = "pass_completed"
)

// Event is an engine notification, consumed by the status dashboard.
type Event struct {
	Type        EventType `json:"type"`
	ClinicID    string    `json:"clinic_id"`
	Family      string    `json:"family,omitempty"`
	LocalID     string    `json:"local_id,omitempty"`
	CanonicalID string    `json:"canonical_id,omitempty"`
	Stats       *Stats    `json:"stats,omitempty"`
}

// Notifier receives engine events. Implementations must not block.
type Notifier interface {
	Notify(Event)
}

// Stats summarizes one reconciliation pass.
type Stats struct {
	Replayed  int `json:"replayed"`
	Deleted   int `json:"deleted"`
	Failed    int `json:"failed"`
	Conflicts int `json:"conflicts"`
	Skipped   int `json:"skipped"` // children whose parent has not reconciled yet
}

// Engine reconciles pending cache records with the canonical store.
type Engine struct {
	local    *store.Store
	remote   remote.Store
	logger   *log.Logger
	notifier Notifier

	// syncing is the per-clinic idle/syncing state machine. A trigger
	// arriving while a clinic is already syncing is dropped, not queued.
	mu      sync.Mutex
	syncing map[string]bool
}

// New creates an engine. If logger is nil a default stderr logger is used.
func New(local *store.Store, canonical remote.Store, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	return &Engine{
		local:   local,
		remote:  canonical,
		logger:  logger,
		syncing: make(map[string]bool),
	}
}

// SetNotifier attaches an event sink. Pass nil to detach.
func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

func (e *Engine) notify(ev Event) {
	e.mu.Lock()
	n := e.notifier
	e.mu.Unlock()
	if n != nil {
		n.Notify(ev)
	}
}

// Syncing reports whether a pass is currently running for the clinic.
func (e *Engine) Syncing(clinicID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncing[clinicID]
}

// begin transitions the clinic to syncing; false means a pass is in flight
// and the caller should drop this trigger.
func (e *Engine) begin(clinicID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.syncing[clinicID] {
		return false
	}
	e.syncing[clinicID] = true
	return true
}

func (e *Engine) end(clinicID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.syncing, clinicID)
}

// Sync runs one reconciliation pass for the clinic. Callers must only invoke
// it while the canonical store is believed reachable.
//
// Individual record failures are logged and swallowed; the returned error is
// non-nil only when the pass itself could not run (cache query failure, or a
// pass already in flight is not an error — it returns nil immediately).
func (e *Engine) Sync(ctx context.Context, clinicID string) error {
	if !e.begin(clinicID) {
		e.logger.Printf("Sync already running for clinic %s, dropping trigger", clinicID)
		return nil
	}
	defer e.end(clinicID)

	e.logger.Printf("Starting sync pass for clinic %s", clinicID)
	e.notify(Event{Type: EventPassStarted, ClinicID: clinicID})

	var stats Stats
	remap := make(map[string]string)
	touched := make(map[string]bool)

	steps := []func(context.Context, string, map[string]string, map[string]bool, *Stats) error{
		e.syncConsultations,
		e.syncAppointments,
		e.syncTreatments,
		e.syncPayments,
	}
	for _, step := range steps {
		if err := step(ctx, clinicID, remap, touched, &stats); err != nil {
			return fmt.Errorf("sync pass failed for clinic %s: %w", clinicID, err)
		}
	}

	e.recomputeTreatments(ctx, clinicID, touched, &stats)

	e.logger.Printf("Sync pass complete for clinic %s: replayed=%d deleted=%d failed=%d conflicts=%d skipped=%d",
		clinicID, stats.Replayed, stats.Deleted, stats.Failed, stats.Conflicts, stats.Skipped)
	e.notify(Event{Type: EventPassCompleted, ClinicID: clinicID, Stats: &stats})
	return nil
}

// resolveRef substitutes a provisional foreign key with its canonical id.
// ok is false when the reference is provisional and its parent has not been
// remapped in this pass, meaning the child must not be replayed yet.
func resolveRef(remap map[string]string, id string) (string, bool) {
	if id == "" || !clinic.IsProvisionalID(id) {
		return id, true
	}
	if canonical, ok := remap[id]; ok {
		return canonical, true
	}
	return id, false
}

// reconciled finalizes a replayed create: records the remap, rewrites every
// dependent foreign key in the cache, and drops the local copy (the next
// canonical read re-hydrates it as synced).
func (e *Engine) reconciled(ctx context.Context, clinicID, family, localID, canonicalID string, del func(context.Context, string) error, stats *Stats) {
	if err := e.local.RewriteRefs(ctx, clinicID, localID, canonicalID); err != nil {
		e.logger.Printf("WARNING: failed to rewrite references %s -> %s: %v", localID, canonicalID, err)
		return
	}
	if err := del(ctx, localID); err != nil {
		e.logger.Printf("WARNING: failed to drop reconciled %s %s: %v", family, localID, err)
	}
	stats.Replayed++
	e.notify(Event{Type: EventRecordSynced, ClinicID: clinicID, Family: family, LocalID: localID, CanonicalID: canonicalID})
}

func (e *Engine) syncConsultations(ctx context.Context, clinicID string, remap map[string]string, _ map[string]bool, stats *Stats) error {
	deleted, err := e.local.ConsultationsByStatus(ctx, clinicID, clinic.StatusDeleted)
	if err != nil {
		return err
	}
	for _, c := range deleted {
		e.propagateDelete(ctx, "consultation", c.ClinicID, c.ID, e.remote.DeleteConsultation, e.local.DeleteConsultation, stats)
	}

	pending, err := e.local.ConsultationsByStatus(ctx, clinicID, clinic.StatusPending)
	if err != nil {
		return err
	}
	for _, c := range pending {
		if !clinic.IsProvisionalID(c.ID) {
			updated, err := e.remote.UpdateConsultation(ctx, c)
			if err != nil {
				e.logger.Printf("WARNING: failed to replay consultation update %s: %v", c.ID, err)
				stats.Failed++
				continue
			}
			if perr := e.local.PutConsultation(ctx, updated); perr != nil {
				e.logger.Printf("WARNING: failed to cache consultation %s: %v", updated.ID, perr)
			}
			stats.Replayed++
			e.notify(Event{Type: EventRecordSynced, ClinicID: clinicID, Family: "consultation", LocalID: c.ID, CanonicalID: updated.ID})
			continue
		}

		created, err := e.remote.CreateConsultation(ctx, c)
		if err != nil {
			e.logger.Printf("WARNING: failed to replay consultation %s: %v", c.ID, err)
			stats.Failed++
			continue
		}
		remap[c.ID] = created.ID
		e.reconciled(ctx, clinicID, "consultation", c.ID, created.ID, e.local.DeleteConsultation, stats)
	}
	return nil
}

func (e *Engine) syncAppointments(ctx context.Context, clinicID string, remap map[string]string, _ map[string]bool, stats *Stats) error {
	deleted, err := e.local.AppointmentsByStatus(ctx, clinicID, clinic.StatusDeleted)
	if err != nil {
		return err
	}
	for _, a := range deleted {
		e.propagateDelete(ctx, "appointment", a.ClinicID, a.ID, e.remote.DeleteAppointment, e.local.DeleteAppointment, stats)
	}

	pending, err := e.local.AppointmentsByStatus(ctx, clinicID, clinic.StatusPending)
	if err != nil {
		return err
	}
	for _, a := range pending {
		consultationID, ok := resolveRef(remap, a.ConsultationID)
		if !ok {
			e.logger.Printf("Appointment %s still references unreconciled consultation %s, deferring", a.ID, a.ConsultationID)
			stats.Skipped++
			continue
		}
		a.ConsultationID = consultationID

		// Double-booking check: an identical scheduled slot already on
		// the canonical calendar means this record stays pending until
		// the conflict clears or an operator intervenes.
		if a.Status == clinic.AppointmentScheduled {
			existing, err := e.remote.FindScheduledAppointment(ctx, clinicID, a.DentistID, a.StartTime, a.ID)
			if err != nil && !errors.Is(err, remote.ErrNotFound) {
				e.logger.Printf("WARNING: conflict check failed for appointment %s: %v", a.ID, err)
				stats.Failed++
				continue
			}
			if err == nil {
				e.logger.Printf("Appointment %s conflicts with canonical appointment %s (dentist %s at %s), leaving pending",
					a.ID, existing.ID, a.DentistID, a.StartTime.Format("2006-01-02 15:04"))
				stats.Conflicts++
				e.notify(Event{Type: EventConflict, ClinicID: clinicID, Family: "appointment", LocalID: a.ID, CanonicalID: existing.ID})
				continue
			}
		}

		if !clinic.IsProvisionalID(a.ID) {
			updated, err := e.remote.UpdateAppointment(ctx, a)
			if err != nil {
				e.logger.Printf("WARNING: failed to replay appointment update %s: %v", a.ID, err)
				stats.Failed++
				continue
			}
			if perr := e.local.PutAppointment(ctx, updated); perr != nil {
				e.logger.Printf("WARNING: failed to cache appointment %s: %v", updated.ID, perr)
			}
			stats.Replayed++
			e.notify(Event{Type: EventRecordSynced, ClinicID: clinicID, Family: "appointment", LocalID: a.ID, CanonicalID: updated.ID})
			continue
		}

		created, err := e.remote.CreateAppointment(ctx, a)
		if err != nil {
			e.logger.Printf("WARNING: failed to replay appointment %s: %v", a.ID, err)
			stats.Failed++
			continue
		}
		remap[a.ID] = created.ID
		e.reconciled(ctx, clinicID, "appointment", a.ID, created.ID, e.local.DeleteAppointment, stats)
	}
	return nil
}

func (e *Engine) syncTreatments(ctx context.Context, clinicID string, remap map[string]string, _ map[string]bool, stats *Stats) error {
	deleted, err := e.local.TreatmentsByStatus(ctx, clinicID, clinic.StatusDeleted)
	if err != nil {
		return err
	}
	for _, t := range deleted {
		e.propagateDelete(ctx, "treatment", t.ClinicID, t.ID, e.remote.DeleteTreatment, e.local.DeleteTreatment, stats)
	}

	pending, err := e.local.TreatmentsByStatus(ctx, clinicID, clinic.StatusPending)
	if err != nil {
		return err
	}
	for _, t := range pending {
		consultationID, ok := resolveRef(remap, t.ConsultationID)
		if !ok {
			e.logger.Printf("Treatment %s still references unreconciled consultation %s, deferring", t.ID, t.ConsultationID)
			stats.Skipped++
			continue
		}
		t.ConsultationID = consultationID

		if !clinic.IsProvisionalID(t.ID) {
			updated, err := e.remote.UpdateTreatment(ctx, t)
			if err != nil {
				e.logger.Printf("WARNING: failed to replay treatment update %s: %v", t.ID, err)
				stats.Failed++
				continue
			}
			if perr := e.local.PutTreatment(ctx, updated); perr != nil {
				e.logger.Printf("WARNING: failed to cache treatment %s: %v", updated.ID, perr)
			}
			stats.Replayed++
			e.notify(Event{Type: EventRecordSynced, ClinicID: clinicID, Family: "treatment", LocalID: t.ID, CanonicalID: updated.ID})
			continue
		}

		created, err := e.remote.CreateTreatment(ctx, t)
		if err != nil {
			e.logger.Printf("WARNING: failed to replay treatment %s: %v", t.ID, err)
			stats.Failed++
			continue
		}
		remap[t.ID] = created.ID
		e.reconciled(ctx, clinicID, "treatment", t.ID, created.ID, e.local.DeleteTreatment, stats)
	}
	return nil
}

func (e *Engine) syncPayments(ctx context.Context, clinicID string, remap map[string]string, touched map[string]bool, stats *Stats) error {
	deleted, err := e.local.PaymentsByStatus(ctx, clinicID, clinic.StatusDeleted)
	if err != nil {
		return err
	}
	for _, p := range deleted {
		before := stats.Deleted
		e.propagateDelete(ctx, "payment", p.ClinicID, p.ID, e.remote.DeletePayment, e.local.DeletePayment, stats)
		if stats.Deleted > before && !clinic.IsProvisionalID(p.TreatmentID) {
			touched[p.TreatmentID] = true
		}
	}

	pending, err := e.local.PaymentsByStatus(ctx, clinicID, clinic.StatusPending)
	if err != nil {
		return err
	}
	for _, p := range pending {
		treatmentID, ok := resolveRef(remap, p.TreatmentID)
		if !ok {
			e.logger.Printf("Payment %s still references unreconciled treatment %s, deferring", p.ID, p.TreatmentID)
			stats.Skipped++
			continue
		}
		consultationID, ok := resolveRef(remap, p.ConsultationID)
		if !ok {
			e.logger.Printf("Payment %s still references unreconciled consultation %s, deferring", p.ID, p.ConsultationID)
			stats.Skipped++
			continue
		}
		p.TreatmentID = treatmentID
		p.ConsultationID = consultationID

		created, err := e.remote.CreatePayment(ctx, p)
		if err != nil {
			e.logger.Printf("WARNING: failed to replay payment %s: %v", p.ID, err)
			stats.Failed++
			continue
		}
		remap[p.ID] = created.ID
		touched[created.TreatmentID] = true
		e.reconciled(ctx, clinicID, "payment", p.ID, created.ID, e.local.DeletePayment, stats)
	}
	return nil
}

// propagateDelete replays a queued deletion. Provisional records were never
// admitted into the canonical store, so they are simply dropped.
func (e *Engine) propagateDelete(ctx context.Context, family, clinicID, id string,
	remoteDel func(context.Context, string, string) error,
	localDel func(context.Context, string) error, stats *Stats) {

	if !clinic.IsProvisionalID(id) {
		if err := remoteDel(ctx, clinicID, id); err != nil && !errors.Is(err, remote.ErrNotFound) {
			e.logger.Printf("WARNING: failed to propagate %s deletion %s: %v", family, id, err)
			stats.Failed++
			return
		}
	}
	if err := localDel(ctx, id); err != nil {
		e.logger.Printf("WARNING: failed to drop deleted %s %s: %v", family, id, err)
		stats.Failed++
		return
	}
	stats.Deleted++
}

// recomputeTreatments rebuilds derived financial state against the canonical
// store for every treatment touched by a reconciled payment, and mirrors the
// result into the cache as synced.
func (e *Engine) recomputeTreatments(ctx context.Context, clinicID string, touched map[string]bool, stats *Stats) {
	for treatmentID := range touched {
		t, err := e.remote.GetTreatment(ctx, clinicID, treatmentID)
		if err != nil {
			e.logger.Printf("WARNING: failed to load treatment %s for recompute: %v", treatmentID, err)
			stats.Failed++
			continue
		}
		payments, err := e.remote.ListPayments(ctx, clinicID, treatmentID)
		if err != nil {
			e.logger.Printf("WARNING: failed to list payments for treatment %s: %v", treatmentID, err)
			stats.Failed++
			continue
		}
		t.ApplyDerivedState(payments)
		updated, err := e.remote.UpdateTreatment(ctx, t)
		if err != nil {
			e.logger.Printf("WARNING: failed to store recomputed treatment %s: %v", treatmentID, err)
			stats.Failed++
			continue
		}
		if perr := e.local.PutTreatment(ctx, updated); perr != nil {
			e.logger.Printf("WARNING: failed to cache recomputed treatment %s: %v", updated.ID, perr)
		}
	}
}
