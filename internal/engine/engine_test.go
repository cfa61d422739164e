package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dentops/chairside/internal/clinic"
	"github.com/dentops/chairside/internal/remote"
	"github.com/dentops/chairside/internal/store"
)

const testClinic = "clinic-1"

func newTestEngine(t *testing.T) (*Engine, *store.Store, *remote.Memory) {
	t.Helper()
	local, err := store.Open(filepath.Join(t.TempDir(), "cache.db"), nil)
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = local.Close() })

	mem := remote.NewMemory()
	return New(local, mem, nil), local, mem
}

// seedOfflineChain writes a pending consultation, treatment, payment, and
// appointment into the cache, linked by provisional ids, the way the entity
// services queue them during an outage.
func seedOfflineChain(t *testing.T, local *store.Store) (consultID, treatID, payID, apptID string) {
	t.Helper()
	ctx := context.Background()

	consultID = clinic.NewProvisionalID()
	treatID = clinic.NewProvisionalID()
	payID = clinic.NewProvisionalID()
	apptID = clinic.NewProvisionalID()

	c := &clinic.Consultation{
		SyncMeta:    clinic.SyncMeta{ID: consultID, ClinicID: testClinic, SyncStatus: clinic.StatusPending},
		PatientName: "Moussa Traore",
		DentistID:   "dent-1",
		Date:        time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	tr := &clinic.Treatment{
		SyncMeta:       clinic.SyncMeta{ID: treatID, ClinicID: testClinic, SyncStatus: clinic.StatusPending},
		ConsultationID: consultID,
		Name:            "extraction",
		NominalAmount:   40000,
		RemainingAmount: 40000,
		Status:          clinic.TreatmentUnpaid,
	}
	p := &clinic.Payment{
		SyncMeta:       clinic.SyncMeta{ID: payID, ClinicID: testClinic, SyncStatus: clinic.StatusPending},
		TreatmentID:    treatID,
		ConsultationID: consultID,
		Amount:         15000,
		ReceivedAt:     time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC),
	}
	a := &clinic.Appointment{
		SyncMeta:       clinic.SyncMeta{ID: apptID, ClinicID: testClinic, SyncStatus: clinic.StatusPending},
		ConsultationID: consultID,
		PatientName:    "Moussa Traore",
		DentistID:      "dent-1",
		StartTime:      time.Date(2026, 4, 8, 10, 0, 0, 0, time.UTC),
		Status:         clinic.AppointmentScheduled,
	}

	if err := local.PutConsultation(ctx, c); err != nil {
		t.Fatalf("seed consultation: %v", err)
	}
	if err := local.PutTreatment(ctx, tr); err != nil {
		t.Fatalf("seed treatment: %v", err)
	}
	if err := local.PutPayment(ctx, p); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	if err := local.PutAppointment(ctx, a); err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	return consultID, treatID, payID, apptID
}

func TestSyncReplaysOfflineChainInDependencyOrder(t *testing.T) {
	eng, local, mem := newTestEngine(t)
	ctx := context.Background()
	consultID, treatID, payID, apptID := seedOfflineChain(t, local)

	if err := eng.Sync(ctx, testClinic); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	consults, err := mem.ListConsultations(ctx, testClinic, remote.ConsultationFilter{})
	if err != nil {
		t.Fatalf("ListConsultations() failed: %v", err)
	}
	if len(consults) != 1 {
		t.Fatalf("expected 1 canonical consultation, got %d", len(consults))
	}
	canonicalConsult := consults[0].ID
	if clinic.IsProvisionalID(canonicalConsult) {
		t.Fatalf("provisional id leaked into canonical store: %s", canonicalConsult)
	}

	treats, err := mem.ListTreatments(ctx, testClinic, canonicalConsult)
	if err != nil {
		t.Fatalf("ListTreatments() failed: %v", err)
	}
	if len(treats) != 1 {
		t.Fatalf("expected 1 canonical treatment under %s, got %d", canonicalConsult, len(treats))
	}
	canonicalTreat := treats[0].ID

	pays, err := mem.ListPayments(ctx, testClinic, canonicalTreat)
	if err != nil {
		t.Fatalf("ListPayments() failed: %v", err)
	}
	if len(pays) != 1 || pays[0].Amount != 15000 {
		t.Fatalf("expected the 15000 payment under %s, got %+v", canonicalTreat, pays)
	}
	if pays[0].ConsultationID != canonicalConsult {
		t.Errorf("payment consultation ref = %s, want %s", pays[0].ConsultationID, canonicalConsult)
	}

	appts, err := mem.ListAppointments(ctx, testClinic, remote.AppointmentFilter{})
	if err != nil {
		t.Fatalf("ListAppointments() failed: %v", err)
	}
	if len(appts) != 1 || appts[0].ConsultationID != canonicalConsult {
		t.Fatalf("appointment not reconciled against canonical consultation: %+v", appts)
	}

	// Derived state recomputed against the canonical payment set.
	recomputed, err := mem.GetTreatment(ctx, testClinic, canonicalTreat)
	if err != nil {
		t.Fatalf("GetTreatment() failed: %v", err)
	}
	if recomputed.PaidAmount != 15000 || recomputed.RemainingAmount != 25000 || recomputed.Status != clinic.TreatmentPartial {
		t.Errorf("derived state not recomputed: %+v", recomputed)
	}

	// Reconciled provisional rows are gone from the cache.
	for _, id := range []string{consultID, treatID, payID, apptID} {
		switch {
		case id == consultID:
			_, err = local.GetConsultation(ctx, id)
		case id == treatID:
			_, err = local.GetTreatment(ctx, id)
		case id == payID:
			_, err = local.GetPayment(ctx, id)
		default:
			_, err = local.GetAppointment(ctx, id)
		}
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("provisional record %s survived reconciliation (err=%v)", id, err)
		}
	}

	// Recomputed treatment is mirrored into the cache as synced.
	mirrored, err := local.GetTreatment(ctx, canonicalTreat)
	if err != nil {
		t.Fatalf("recomputed treatment not mirrored locally: %v", err)
	}
	if mirrored.SyncStatus != clinic.StatusSynced || mirrored.PaidAmount != 15000 {
		t.Errorf("mirrored treatment wrong: %+v", mirrored)
	}
}

// flakyRemote fails consultation creates for one patient, to prove one bad
// record does not poison the batch.
type flakyRemote struct {
	*remote.Memory
	failPatient string
}

func (f *flakyRemote) CreateConsultation(ctx context.Context, c *clinic.Consultation) (*clinic.Consultation, error) {
	if c.PatientName == f.failPatient {
		return nil, errors.New("canonical store rejected record")
	}
	return f.Memory.CreateConsultation(ctx, c)
}

func TestSyncIsolatesPerRecordFailures(t *testing.T) {
	local, err := store.Open(filepath.Join(t.TempDir(), "cache.db"), nil)
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	defer local.Close()

	flaky := &flakyRemote{Memory: remote.NewMemory(), failPatient: "Bad Record"}
	eng := New(local, flaky, nil)
	ctx := context.Background()

	bad := &clinic.Consultation{
		SyncMeta:    clinic.SyncMeta{ID: clinic.NewProvisionalID(), ClinicID: testClinic, SyncStatus: clinic.StatusPending},
		PatientName: "Bad Record",
		DentistID:   "dent-1",
		Date:        time.Now(),
	}
	good := &clinic.Consultation{
		SyncMeta:    clinic.SyncMeta{ID: clinic.NewProvisionalID(), ClinicID: testClinic, SyncStatus: clinic.StatusPending},
		PatientName: "Good Record",
		DentistID:   "dent-1",
		Date:        time.Now(),
	}
	if err := local.PutConsultation(ctx, bad); err != nil {
		t.Fatalf("seed bad: %v", err)
	}
	if err := local.PutConsultation(ctx, good); err != nil {
		t.Fatalf("seed good: %v", err)
	}

	if err := eng.Sync(ctx, testClinic); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	consults, _ := flaky.ListConsultations(ctx, testClinic, remote.ConsultationFilter{})
	if len(consults) != 1 || consults[0].PatientName != "Good Record" {
		t.Fatalf("expected only the good record to reconcile, got %+v", consults)
	}

	// The failed record stays pending for the next pass.
	still, err := local.GetConsultation(ctx, bad.ID)
	if err != nil {
		t.Fatalf("failed record dropped from cache: %v", err)
	}
	if still.SyncStatus != clinic.StatusPending {
		t.Errorf("failed record status = %s, want pending", still.SyncStatus)
	}
}

func TestSyncDefersChildrenOfUnreconciledParents(t *testing.T) {
	eng, local, mem := newTestEngine(t)
	ctx := context.Background()

	// A treatment whose consultation is provisional but absent from the
	// queue (e.g. its create failed on an earlier pass and was purged).
	orphan := &clinic.Treatment{
		SyncMeta:       clinic.SyncMeta{ID: clinic.NewProvisionalID(), ClinicID: testClinic, SyncStatus: clinic.StatusPending},
		ConsultationID: clinic.NewProvisionalID(),
		Name:           "cleaning",
		NominalAmount:  10000,
		Status:         clinic.TreatmentUnpaid,
	}
	if err := local.PutTreatment(ctx, orphan); err != nil {
		t.Fatalf("seed orphan: %v", err)
	}

	if err := eng.Sync(ctx, testClinic); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	if treats, _ := mem.ListTreatments(ctx, testClinic, ""); len(treats) != 0 {
		t.Errorf("orphan treatment reached canonical store: %+v", treats)
	}
	still, err := local.GetTreatment(ctx, orphan.ID)
	if err != nil || still.SyncStatus != clinic.StatusPending {
		t.Errorf("orphan should stay pending, got err=%v record=%+v", err, still)
	}
}

func TestSyncLeavesConflictingAppointmentPending(t *testing.T) {
	eng, local, mem := newTestEngine(t)
	ctx := context.Background()
	slot := time.Date(2026, 4, 8, 10, 0, 0, 0, time.UTC)

	// The canonical calendar already has this dentist booked at the slot.
	_, err := mem.CreateAppointment(ctx, &clinic.Appointment{
		SyncMeta:    clinic.SyncMeta{ClinicID: testClinic, SyncStatus: clinic.StatusSynced},
		PatientName: "First Come",
		DentistID:   "dent-1",
		StartTime:   slot,
		Status:      clinic.AppointmentScheduled,
	})
	if err != nil {
		t.Fatalf("seed canonical appointment: %v", err)
	}

	conflicting := &clinic.Appointment{
		SyncMeta:    clinic.SyncMeta{ID: clinic.NewProvisionalID(), ClinicID: testClinic, SyncStatus: clinic.StatusPending},
		PatientName: "Double Booked",
		DentistID:   "dent-1",
		StartTime:   slot,
		Status:      clinic.AppointmentScheduled,
	}
	if err := local.PutAppointment(ctx, conflicting); err != nil {
		t.Fatalf("seed conflicting appointment: %v", err)
	}

	var events []Event
	eng.SetNotifier(notifierFunc(func(ev Event) { events = append(events, ev) }))

	if err := eng.Sync(ctx, testClinic); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	appts, _ := mem.ListAppointments(ctx, testClinic, remote.AppointmentFilter{})
	if len(appts) != 1 {
		t.Fatalf("conflicting appointment was admitted, canonical count = %d", len(appts))
	}
	still, err := local.GetAppointment(ctx, conflicting.ID)
	if err != nil || still.SyncStatus != clinic.StatusPending {
		t.Errorf("conflicting appointment should stay pending, got err=%v record=%+v", err, still)
	}

	sawConflict := false
	for _, ev := range events {
		if ev.Type == EventConflict && ev.LocalID == conflicting.ID {
			sawConflict = true
		}
	}
	if !sawConflict {
		t.Error("expected a conflict event for the double-booked appointment")
	}
}

func TestSyncReplaysCancelledAppointmentDespiteBusySlot(t *testing.T) {
	eng, local, mem := newTestEngine(t)
	ctx := context.Background()
	slot := time.Date(2026, 4, 8, 10, 0, 0, 0, time.UTC)

	if _, err := mem.CreateAppointment(ctx, &clinic.Appointment{
		SyncMeta:    clinic.SyncMeta{ClinicID: testClinic, SyncStatus: clinic.StatusSynced},
		PatientName: "First Come",
		DentistID:   "dent-1",
		StartTime:   slot,
		Status:      clinic.AppointmentScheduled,
	}); err != nil {
		t.Fatalf("seed canonical appointment: %v", err)
	}

	cancelled := &clinic.Appointment{
		SyncMeta:    clinic.SyncMeta{ID: clinic.NewProvisionalID(), ClinicID: testClinic, SyncStatus: clinic.StatusPending},
		PatientName: "Changed Mind",
		DentistID:   "dent-1",
		StartTime:   slot,
		Status:      clinic.AppointmentCancelled,
	}
	if err := local.PutAppointment(ctx, cancelled); err != nil {
		t.Fatalf("seed cancelled appointment: %v", err)
	}

	if err := eng.Sync(ctx, testClinic); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	appts, _ := mem.ListAppointments(ctx, testClinic, remote.AppointmentFilter{})
	if len(appts) != 2 {
		t.Errorf("cancelled appointment should not conflict, canonical count = %d", len(appts))
	}
}

func TestSyncPropagatesDeletions(t *testing.T) {
	eng, local, mem := newTestEngine(t)
	ctx := context.Background()

	created, err := mem.CreateConsultation(ctx, &clinic.Consultation{
		SyncMeta:    clinic.SyncMeta{ClinicID: testClinic, SyncStatus: clinic.StatusSynced},
		PatientName: "To Delete",
		DentistID:   "dent-1",
		Date:        time.Now(),
	})
	if err != nil {
		t.Fatalf("seed canonical consultation: %v", err)
	}

	tombstone := *created
	tombstone.MarkDeleted()
	if err := local.PutConsultation(ctx, &tombstone); err != nil {
		t.Fatalf("seed deleted copy: %v", err)
	}

	if err := eng.Sync(ctx, testClinic); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	if _, err := mem.GetConsultation(ctx, testClinic, created.ID); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("deletion not propagated to canonical store (err=%v)", err)
	}
	if _, err := local.GetConsultation(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("deleted record survived in cache (err=%v)", err)
	}
}

func TestSyncReplaysPendingUpdates(t *testing.T) {
	eng, local, mem := newTestEngine(t)
	ctx := context.Background()

	created, err := mem.CreateConsultation(ctx, &clinic.Consultation{
		SyncMeta:    clinic.SyncMeta{ClinicID: testClinic, SyncStatus: clinic.StatusSynced},
		PatientName: "Old Name",
		DentistID:   "dent-1",
		Date:        time.Now(),
	})
	if err != nil {
		t.Fatalf("seed canonical consultation: %v", err)
	}

	edited := *created
	edited.Diagnosis = "gingivitis"
	edited.MarkPending()
	if err := local.PutConsultation(ctx, &edited); err != nil {
		t.Fatalf("seed pending update: %v", err)
	}

	if err := eng.Sync(ctx, testClinic); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	canonical, err := mem.GetConsultation(ctx, testClinic, created.ID)
	if err != nil {
		t.Fatalf("GetConsultation() failed: %v", err)
	}
	if canonical.Diagnosis != "gingivitis" {
		t.Errorf("update not replayed, diagnosis = %q", canonical.Diagnosis)
	}

	cached, err := local.GetConsultation(ctx, created.ID)
	if err != nil {
		t.Fatalf("cached copy missing: %v", err)
	}
	if cached.SyncStatus != clinic.StatusSynced {
		t.Errorf("cached copy status = %s, want synced", cached.SyncStatus)
	}
}

func TestSyncDropsTriggerWhilePassInFlight(t *testing.T) {
	eng, local, mem := newTestEngine(t)
	ctx := context.Background()
	seedOfflineChain(t, local)

	if !eng.begin(testClinic) {
		t.Fatal("begin() refused an idle clinic")
	}
	if err := eng.Sync(ctx, testClinic); err != nil {
		t.Fatalf("Sync() during in-flight pass should no-op, got %v", err)
	}
	if consults, _ := mem.ListConsultations(ctx, testClinic, remote.ConsultationFilter{}); len(consults) != 0 {
		t.Error("dropped trigger still replayed records")
	}
	eng.end(testClinic)

	if eng.Syncing(testClinic) {
		t.Error("Syncing() true after end()")
	}
}

type notifierFunc func(Event)

func (f notifierFunc) Notify(ev Event) { f(ev) }
