package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dentops/chairside/internal/clinic"
)

// Memory is an in-memory canonical store. It backs tests and demo mode, and
// doubles as an identity provider. SetOnline(false) makes every call fail
// with ErrUnavailable, which is how tests simulate losing the network.
type Memory struct {
	mu     sync.Mutex
	online bool
	nextID int

	consultations map[string]*clinic.Consultation
	treatments    map[string]*clinic.Treatment
	payments      map[string]*clinic.Payment
	appointments  map[string]*clinic.Appointment
	operators     map[string]*clinic.Operator

	// sessions maps issued tokens to operator ids.
	sessions  map[string]string
	passwords map[string]string // email -> password, plain text (test fixture only)
}

// NewMemory returns an empty, online in-memory store.
func NewMemory() *Memory {
	return &Memory{
		online:        true,
		consultations: make(map[string]*clinic.Consultation),
		treatments:    make(map[string]*clinic.Treatment),
		payments:      make(map[string]*clinic.Payment),
		appointments:  make(map[string]*clinic.Appointment),
		operators:     make(map[string]*clinic.Operator),
		sessions:      make(map[string]string),
		passwords:     make(map[string]string),
	}
}

// SetOnline toggles reachability. While false, every method returns
// ErrUnavailable.
func (m *Memory) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = online
}

// Online reports current reachability.
func (m *Memory) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// mintID issues a deterministic server-assigned id.
func (m *Memory) mintID() string {
	m.nextID++
	return fmt.Sprintf("srv-%04d", m.nextID)
}

func (m *Memory) check() error {
	if !m.online {
		return ErrUnavailable
	}
	return nil
}

func stamp(meta *clinic.SyncMeta) {
	meta.MarkSynced(time.Now())
}

// ---- Consultations ----

func (m *Memory) CreateConsultation(_ context.Context, c *clinic.Consultation) (*clinic.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	out := *c
	out.ID = m.mintID()
	stamp(&out.SyncMeta)
	m.consultations[out.ID] = &out
	cp := out
	return &cp, nil
}

func (m *Memory) UpdateConsultation(_ context.Context, c *clinic.Consultation) (*clinic.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	if _, ok := m.consultations[c.ID]; !ok {
		return nil, ErrNotFound
	}
	out := *c
	stamp(&out.SyncMeta)
	m.consultations[out.ID] = &out
	cp := out
	return &cp, nil
}

func (m *Memory) DeleteConsultation(_ context.Context, clinicID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	delete(m.consultations, id)
	return nil
}

func (m *Memory) GetConsultation(_ context.Context, clinicID, id string) (*clinic.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	c, ok := m.consultations[id]
	if !ok || c.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) ListConsultations(_ context.Context, clinicID string, f ConsultationFilter) ([]*clinic.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	var out []*clinic.Consultation
	for _, c := range m.consultations {
		if c.ClinicID != clinicID || !f.Matches(c) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// ---- Treatments ----

func (m *Memory) CreateTreatment(_ context.Context, t *clinic.Treatment) (*clinic.Treatment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	if clinic.IsProvisionalID(t.ConsultationID) {
		return nil, fmt.Errorf("treatment references unknown consultation %s: %w", t.ConsultationID, ErrNotFound)
	}
	out := *t
	out.ID = m.mintID()
	stamp(&out.SyncMeta)
	m.treatments[out.ID] = &out
	cp := out
	return &cp, nil
}

func (m *Memory) UpdateTreatment(_ context.Context, t *clinic.Treatment) (*clinic.Treatment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	if _, ok := m.treatments[t.ID]; !ok {
		return nil, ErrNotFound
	}
	out := *t
	stamp(&out.SyncMeta)
	m.treatments[out.ID] = &out
	cp := out
	return &cp, nil
}

func (m *Memory) DeleteTreatment(_ context.Context, clinicID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	delete(m.treatments, id)
	return nil
}

func (m *Memory) GetTreatment(_ context.Context, clinicID, id string) (*clinic.Treatment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	t, ok := m.treatments[id]
	if !ok || t.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) ListTreatments(_ context.Context, clinicID, consultationID string) ([]*clinic.Treatment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	var out []*clinic.Treatment
	for _, t := range m.treatments {
		if t.ClinicID != clinicID {
			continue
		}
		if consultationID != "" && t.ConsultationID != consultationID {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

// ---- Payments ----

func (m *Memory) CreatePayment(_ context.Context, p *clinic.Payment) (*clinic.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	if clinic.IsProvisionalID(p.TreatmentID) {
		return nil, fmt.Errorf("payment references unknown treatment %s: %w", p.TreatmentID, ErrNotFound)
	}
	out := *p
	out.ID = m.mintID()
	stamp(&out.SyncMeta)
	m.payments[out.ID] = &out
	cp := out
	return &cp, nil
}

func (m *Memory) DeletePayment(_ context.Context, clinicID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	delete(m.payments, id)
	return nil
}

func (m *Memory) ListPayments(_ context.Context, clinicID, treatmentID string) ([]*clinic.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	var out []*clinic.Payment
	for _, p := range m.payments {
		if p.ClinicID != clinicID {
			continue
		}
		if treatmentID != "" && p.TreatmentID != treatmentID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// ---- Appointments ----

func (m *Memory) CreateAppointment(_ context.Context, a *clinic.Appointment) (*clinic.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	out := *a
	out.ID = m.mintID()
	stamp(&out.SyncMeta)
	m.appointments[out.ID] = &out
	cp := out
	return &cp, nil
}

func (m *Memory) UpdateAppointment(_ context.Context, a *clinic.Appointment) (*clinic.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	if _, ok := m.appointments[a.ID]; !ok {
		return nil, ErrNotFound
	}
	out := *a
	stamp(&out.SyncMeta)
	m.appointments[out.ID] = &out
	cp := out
	return &cp, nil
}

func (m *Memory) DeleteAppointment(_ context.Context, clinicID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	delete(m.appointments, id)
	return nil
}

func (m *Memory) GetAppointment(_ context.Context, clinicID, id string) (*clinic.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	a, ok := m.appointments[id]
	if !ok || a.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) ListAppointments(_ context.Context, clinicID string, f AppointmentFilter) ([]*clinic.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	var out []*clinic.Appointment
	for _, a := range m.appointments {
		if a.ClinicID != clinicID || !f.Matches(a) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) FindScheduledAppointment(_ context.Context, clinicID, dentistID string, at time.Time, excludeID string) (*clinic.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	for _, a := range m.appointments {
		if a.ClinicID != clinicID || a.DentistID != dentistID {
			continue
		}
		if a.ID == excludeID || a.Status != clinic.AppointmentScheduled {
			continue
		}
		if a.StartTime.Equal(at) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ---- Identity provider ----

// AddOperator registers an operator with credentials for Login.
func (m *Memory) AddOperator(op *clinic.Operator, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *op
	m.operators[op.ID] = &cp
	m.passwords[op.Email] = password
}

func (m *Memory) Login(_ context.Context, email, password string) (string, *clinic.Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return "", nil, err
	}
	if pw, ok := m.passwords[email]; !ok || pw != password {
		return "", nil, ErrInvalidCredentials
	}
	for _, op := range m.operators {
		if op.Email == email {
			token := "session-" + op.ID
			m.sessions[token] = op.ID
			cp := *op
			stamp(&cp.SyncMeta)
			return token, &cp, nil
		}
	}
	return "", nil, ErrInvalidCredentials
}

func (m *Memory) OperatorForSession(_ context.Context, token string) (*clinic.Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	id, ok := m.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	op, ok := m.operators[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *op
	stamp(&cp.SyncMeta)
	return &cp, nil
}
