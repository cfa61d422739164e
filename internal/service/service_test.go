package service

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

func newTestDeps(t *testing.T) (Deps, *store.Store, *remote.Memory) {
	t.Helper()
	local, err := store.Open(filepath.Join(t.TempDir(), "cache.db"), nil)
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = local.Close() })

	mem := remote.NewMemory()
	deps := Deps{
		Local:  local,
		Remote: mem,
		Online: mem.Online,
	}
	return deps, local, mem
}

func newConsultation() *clinic.Consultation {
	return &clinic.Consultation{
		SyncMeta:    clinic.SyncMeta{ClinicID: testClinic},
		PatientName: "Fatou Ndiaye",
		DentistID:   "dent-1",
		Date:        time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
	}
}

func TestCreateOnlineWritesThroughAndCaches(t *testing.T) {
	deps, local, _ := newTestDeps(t)
	svc := NewConsultations(deps)
	ctx := context.Background()

	out, err := svc.Create(ctx, newConsultation())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if clinic.IsProvisionalID(out.ID) {
		t.Errorf("online create returned provisional id %s", out.ID)
	}
	if out.SyncStatus != clinic.StatusSynced {
		t.Errorf("status = %s, want synced", out.SyncStatus)
	}

	cached, err := local.GetConsultation(ctx, out.ID)
	if err != nil {
		t.Fatalf("created record not cached: %v", err)
	}
	if cached.SyncStatus != clinic.StatusSynced {
		t.Errorf("cached status = %s, want synced", cached.SyncStatus)
	}
}

func TestCreateOfflineQueuesProvisionalRecord(t *testing.T) {
	deps, local, mem := newTestDeps(t)
	mem.SetOnline(false)
	svc := NewConsultations(deps)
	ctx := context.Background()

	out, err := svc.Create(ctx, newConsultation())
	if err != nil {
		t.Fatalf("Create() offline failed: %v", err)
	}
	if !clinic.IsProvisionalID(out.ID) {
		t.Errorf("offline create id = %s, want provisional", out.ID)
	}
	if out.SyncStatus != clinic.StatusPending {
		t.Errorf("status = %s, want pending", out.SyncStatus)
	}

	pending, err := local.ConsultationsByStatus(ctx, testClinic, clinic.StatusPending)
	if err != nil {
		t.Fatalf("ConsultationsByStatus() failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("queue length = %d, want 1", len(pending))
	}
}

func TestGetFallsBackToCacheWhenOffline(t *testing.T) {
	deps, _, mem := newTestDeps(t)
	svc := NewConsultations(deps)
	ctx := context.Background()

	out, err := svc.Create(ctx, newConsultation())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	mem.SetOnline(false)
	got, err := svc.Get(ctx, testClinic, out.ID)
	if err != nil {
		t.Fatalf("Get() offline failed: %v", err)
	}
	if got.PatientName != out.PatientName {
		t.Errorf("cached read mismatch: %+v", got)
	}
}

func TestGetPrefersRemoteAndRefreshesCache(t *testing.T) {
	deps, local, mem := newTestDeps(t)
	svc := NewConsultations(deps)
	ctx := context.Background()

	out, err := svc.Create(ctx, newConsultation())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	// Another device edits the canonical record.
	edited := *out
	edited.Diagnosis = "abscess"
	if _, err := mem.UpdateConsultation(ctx, &edited); err != nil {
		t.Fatalf("canonical edit failed: %v", err)
	}

	got, err := svc.Get(ctx, testClinic, out.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Diagnosis != "abscess" {
		t.Errorf("remote-first read served stale data: %q", got.Diagnosis)
	}

	cached, err := local.GetConsultation(ctx, out.ID)
	if err != nil || cached.Diagnosis != "abscess" {
		t.Errorf("cache not refreshed on read-through: %+v (err=%v)", cached, err)
	}
}

func TestGetNotFoundIsNotMaskedByCache(t *testing.T) {
	deps, local, _ := newTestDeps(t)
	svc := NewConsultations(deps)
	ctx := context.Background()

	// Cache holds a record the canonical store no longer has.
	stale := newConsultation()
	stale.ID = "srv-9999"
	stale.SyncStatus = clinic.StatusSynced
	if err := local.PutConsultation(ctx, stale); err != nil {
		t.Fatalf("seed stale record: %v", err)
	}

	if _, err := svc.Get(ctx, testClinic, "srv-9999"); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("Get() = %v, want ErrNotFound while online", err)
	}
}

func TestListOfflineFiltersAndHidesDeleted(t *testing.T) {
	deps, local, mem := newTestDeps(t)
	svc := NewConsultations(deps)
	ctx := context.Background()

	keep := newConsultation()
	keep.ID = clinic.NewProvisionalID()
	keep.SyncStatus = clinic.StatusPending

	gone := newConsultation()
	gone.ID = clinic.NewProvisionalID()
	gone.PatientName = "Removed Patient"
	gone.SyncStatus = clinic.StatusDeleted

	for _, c := range []*clinic.Consultation{keep, gone} {
		if err := local.PutConsultation(ctx, c); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	mem.SetOnline(false)
	list, err := svc.List(ctx, testClinic, remote.ConsultationFilter{})
	if err != nil {
		t.Fatalf("List() offline failed: %v", err)
	}
	if len(list) != 1 || list[0].PatientName != keep.PatientName {
		t.Errorf("offline list = %+v, want only the live record", list)
	}

	byName, err := svc.List(ctx, testClinic, remote.ConsultationFilter{PatientName: "nobody"})
	if err != nil {
		t.Fatalf("List() with filter failed: %v", err)
	}
	if len(byName) != 0 {
		t.Errorf("filter ignored offline: %+v", byName)
	}
}

func TestDeleteOfflineMarksTombstone(t *testing.T) {
	deps, local, mem := newTestDeps(t)
	svc := NewConsultations(deps)
	ctx := context.Background()

	out, err := svc.Create(ctx, newConsultation())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	mem.SetOnline(false)
	if err := svc.Delete(ctx, testClinic, out.ID); err != nil {
		t.Fatalf("Delete() offline failed: %v", err)
	}

	cached, err := local.GetConsultation(ctx, out.ID)
	if err != nil {
		t.Fatalf("tombstone missing: %v", err)
	}
	if cached.SyncStatus != clinic.StatusDeleted {
		t.Errorf("status = %s, want deleted", cached.SyncStatus)
	}
}

func TestDeleteProvisionalDropsWithoutTombstone(t *testing.T) {
	deps, local, mem := newTestDeps(t)
	mem.SetOnline(false)
	svc := NewConsultations(deps)
	ctx := context.Background()

	out, err := svc.Create(ctx, newConsultation())
	if err != nil {
		t.Fatalf("Create() offline failed: %v", err)
	}
	if err := svc.Delete(ctx, testClinic, out.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := local.GetConsultation(ctx, out.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("provisional record should vanish, err = %v", err)
	}
}

func seedSyncedTreatment(t *testing.T, deps Deps) *clinic.Treatment {
	t.Helper()
	ctx := context.Background()

	consult, err := NewConsultations(deps).Create(ctx, newConsultation())
	if err != nil {
		t.Fatalf("seed consultation: %v", err)
	}
	tr, err := NewTreatments(deps).Create(ctx, &clinic.Treatment{
		SyncMeta:       clinic.SyncMeta{ClinicID: testClinic},
		ConsultationID: consult.ID,
		Name:           "root canal",
		Date:           time.Now(),
		NominalAmount:  50000,
	})
	if err != nil {
		t.Fatalf("seed treatment: %v", err)
	}
	if tr.Status != clinic.TreatmentUnpaid || tr.RemainingAmount != 50000 {
		t.Fatalf("fresh treatment derived state wrong: %+v", tr)
	}
	return tr
}

func TestPaymentOnlineRecomputesCanonicalTreatment(t *testing.T) {
	deps, _, mem := newTestDeps(t)
	tr := seedSyncedTreatment(t, deps)
	ctx := context.Background()

	if _, err := NewPayments(deps).Create(ctx, &clinic.Payment{
		SyncMeta:    clinic.SyncMeta{ClinicID: testClinic},
		TreatmentID: tr.ID,
		Amount:      50000,
		ReceivedAt:  time.Now(),
	}); err != nil {
		t.Fatalf("payment Create() failed: %v", err)
	}

	canonical, err := mem.GetTreatment(ctx, testClinic, tr.ID)
	if err != nil {
		t.Fatalf("GetTreatment() failed: %v", err)
	}
	if canonical.Status != clinic.TreatmentPaid || canonical.RemainingAmount != 0 {
		t.Errorf("canonical treatment not recomputed: %+v", canonical)
	}
}

func TestPaymentOfflineRecomputesCachedTreatment(t *testing.T) {
	deps, local, mem := newTestDeps(t)
	tr := seedSyncedTreatment(t, deps)
	ctx := context.Background()

	mem.SetOnline(false)
	pay, err := NewPayments(deps).Create(ctx, &clinic.Payment{
		SyncMeta:    clinic.SyncMeta{ClinicID: testClinic},
		TreatmentID: tr.ID,
		Amount:      20000,
		ReceivedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("payment Create() offline failed: %v", err)
	}
	if !clinic.IsProvisionalID(pay.ID) || pay.SyncStatus != clinic.StatusPending {
		t.Errorf("offline payment not queued: %+v", pay.SyncMeta)
	}

	cached, err := local.GetTreatment(ctx, tr.ID)
	if err != nil {
		t.Fatalf("cached treatment missing: %v", err)
	}
	if cached.PaidAmount != 20000 || cached.RemainingAmount != 30000 || cached.Status != clinic.TreatmentPartial {
		t.Errorf("cached derived state not recomputed: %+v", cached)
	}

	// The canonical copy is untouched until the payment reconciles.
	mem.SetOnline(true)
	canonical, err := mem.GetTreatment(ctx, testClinic, tr.ID)
	if err != nil {
		t.Fatalf("GetTreatment() failed: %v", err)
	}
	if canonical.PaidAmount != 0 {
		t.Errorf("offline payment leaked into canonical store: %+v", canonical)
	}
}

func TestTreatmentCreateStaysLocalWhenConsultationIsProvisional(t *testing.T) {
	deps, _, mem := newTestDeps(t)
	svc := NewTreatments(deps)
	ctx := context.Background()

	// Online, but the parent consultation was created offline and has not
	// reconciled yet. The treatment must not reach the canonical store
	// carrying a provisional reference.
	tr, err := svc.Create(ctx, &clinic.Treatment{
		SyncMeta:       clinic.SyncMeta{ClinicID: testClinic},
		ConsultationID: clinic.NewProvisionalID(),
		Name:           "filling",
		Date:           time.Now(),
		NominalAmount:  10000,
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if !clinic.IsProvisionalID(tr.ID) || tr.SyncStatus != clinic.StatusPending {
		t.Errorf("treatment should queue locally: %+v", tr.SyncMeta)
	}

	if treats, _ := mem.ListTreatments(ctx, testClinic, ""); len(treats) != 0 {
		t.Errorf("provisional reference leaked into canonical store: %+v", treats)
	}
}
