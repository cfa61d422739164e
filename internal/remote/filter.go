package remote

import (
	"strings"

	"github.com/dentops/chairside/internal/clinic"
)

// Matches reports whether the consultation satisfies the filter. The same
// predicate is evaluated server-side when the canonical store is reachable
// and in memory over the local cache when it is not.
func (f ConsultationFilter) Matches(c *clinic.Consultation) bool {
	if f.PatientName != "" && !containsFold(c.PatientName, f.PatientName) {
		return false
	}
	if f.PatientPhone != "" && !containsFold(c.PatientPhone, f.PatientPhone) {
		return false
	}
	if !f.From.IsZero() && c.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && c.Date.After(f.To) {
		return false
	}
	return true
}

// Matches reports whether the appointment satisfies the filter.
func (f AppointmentFilter) Matches(a *clinic.Appointment) bool {
	if f.DentistID != "" && a.DentistID != f.DentistID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && a.StartTime.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && a.StartTime.After(f.To) {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
