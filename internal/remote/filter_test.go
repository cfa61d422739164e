package remote

import (
	"context"
	"testing"
	"time"

	"github.com/dentops/chairside/internal/clinic"
)

func TestConsultationFilterMatches(t *testing.T) {
	c := &clinic.Consultation{
		SyncMeta:     clinic.SyncMeta{ID: "srv-1", ClinicID: "clinic-1", SyncStatus: clinic.StatusSynced},
		PatientName:  "Awa Cisse",
		PatientPhone: "+221771234567",
		DentistID:    "dent-1",
		Date:         time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name   string
		filter ConsultationFilter
		want   bool
	}{
		{"empty filter matches", ConsultationFilter{}, true},
		{"name is case-insensitive substring", ConsultationFilter{PatientName: "awa"}, true},
		{"name mismatch", ConsultationFilter{PatientName: "moussa"}, false},
		{"phone substring", ConsultationFilter{PatientPhone: "771234"}, true},
		{"date window includes", ConsultationFilter{
			From: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC),
		}, true},
		{"date before window", ConsultationFilter{
			From: time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC),
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(c); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppointmentFilterMatches(t *testing.T) {
	a := &clinic.Appointment{
		SyncMeta:    clinic.SyncMeta{ID: "srv-2", ClinicID: "clinic-1", SyncStatus: clinic.StatusSynced},
		PatientName: "Awa Cisse",
		DentistID:   "dent-1",
		StartTime:   time.Date(2026, 6, 3, 14, 0, 0, 0, time.UTC),
		Status:      clinic.AppointmentScheduled,
	}

	if !(AppointmentFilter{DentistID: "dent-1"}).Matches(a) {
		t.Error("dentist filter should match")
	}
	if (AppointmentFilter{DentistID: "dent-2"}).Matches(a) {
		t.Error("dentist filter should reject other dentists")
	}
	if (AppointmentFilter{Status: clinic.AppointmentCancelled}).Matches(a) {
		t.Error("status filter should reject scheduled appointment")
	}
}

func TestFindScheduledAppointmentConflictSemantics(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	slot := time.Date(2026, 6, 3, 14, 0, 0, 0, time.UTC)

	booked, err := mem.CreateAppointment(ctx, &clinic.Appointment{
		SyncMeta:  clinic.SyncMeta{ClinicID: "clinic-1", SyncStatus: clinic.StatusSynced},
		DentistID: "dent-1",
		StartTime: slot,
		Status:    clinic.AppointmentScheduled,
	})
	if err != nil {
		t.Fatalf("CreateAppointment() failed: %v", err)
	}

	if _, err := mem.FindScheduledAppointment(ctx, "clinic-1", "dent-1", slot, ""); err != nil {
		t.Errorf("expected conflict for same dentist and slot, got %v", err)
	}
	if _, err := mem.FindScheduledAppointment(ctx, "clinic-1", "dent-2", slot, ""); err == nil {
		t.Error("different dentist should not conflict")
	}
	if _, err := mem.FindScheduledAppointment(ctx, "clinic-1", "dent-1", slot.Add(time.Hour), ""); err == nil {
		t.Error("different slot should not conflict")
	}
	// A record never conflicts with itself.
	if _, err := mem.FindScheduledAppointment(ctx, "clinic-1", "dent-1", slot, booked.ID); err == nil {
		t.Error("excluded id should not conflict")
	}
}
