package clinic

// ComputeTreatmentState derives the paid amount, remaining amount, and status
// of a treatment from its nominal amount and the payments applied to it.
//
// The computation is a pure function of its inputs and is idempotent: entity
// services run it after every payment write and the sync engine runs it again
// after reconciliation, on both sides of the cache, and the result is the
// same every time.
func ComputeTreatmentState(nominal int64, payments []*Payment) (paid, remaining int64, status TreatmentStatus) {
	for _, p := range payments {
		// Records flagged for deletion no longer count toward the total.
		if p.SyncStatus == StatusDeleted {
			continue
		}
		paid += p.Amount
	}

	remaining = nominal - paid
	if remaining < 0 {
		remaining = 0
	}

	switch {
	case paid <= 0:
		status = TreatmentUnpaid
	case paid < nominal:
		status = TreatmentPartial
	default:
		status = TreatmentPaid
	}
	return paid, remaining, status
}

// ApplyDerivedState recomputes and stores the treatment's derived fields.
func (t *Treatment) ApplyDerivedState(payments []*Payment) {
	t.PaidAmount, t.RemainingAmount, t.Status = ComputeTreatmentState(t.NominalAmount, payments)
}
