// Package gormstore implements the canonical store contract over the
// clinic's MySQL database using GORM.
//
// Rows are keyed by server-assigned UUIDs minted in BeforeCreate hooks, so a
// replayed offline record always comes back with a fresh canonical id
// regardless of the provisional id the client minted.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/dentops/chairside/internal/auth"
	"github.com/dentops/chairside/internal/clinic"
	"github.com/dentops/chairside/internal/remote"
)

// sessionTTL is how long issued session tokens stay valid. Long on purpose:
// a clinic device may stay offline for days and must still be able to
// identify its operator from the cached token.
const sessionTTL = 30 * 24 * time.Hour

// Store talks to the canonical MySQL database.
type Store struct {
	db        *gorm.DB
	jwtSecret string
}

// Open connects to the canonical database and ensures the schema exists.
func Open(dsn, jwtSecret string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to canonical store: %w", err)
	}
	if err := db.AutoMigrate(
		&consultationRow{}, &treatmentRow{}, &paymentRow{}, &appointmentRow{}, &operatorRow{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate canonical schema: %w", err)
	}
	return &Store{db: db, jwtSecret: jwtSecret}, nil
}

// Ping reports whether the canonical database is reachable. The connectivity
// monitor uses it as its probe.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// baseRow holds the columns shared by every canonical table.
type baseRow struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	ClinicID  string    `gorm:"index;type:varchar(36)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate assigns the server-side UUID.
func (b *baseRow) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" || clinic.IsProvisionalID(b.ID) {
		b.ID = uuid.New().String()
	}
	return nil
}

type consultationRow struct {
	baseRow
	PatientName  string `gorm:"index"`
	PatientPhone string
	DentistID    string `gorm:"type:varchar(36)"`
	Date         time.Time
	Diagnosis    string
	Notes        string
}

func (consultationRow) TableName() string { return "consultations" }

type treatmentRow struct {
	baseRow
	ConsultationID  string `gorm:"index;type:varchar(36)"`
	Name            string
	Date            time.Time
	NominalAmount   int64
	PaidAmount      int64
	RemainingAmount int64
	Status          string `gorm:"type:varchar(16)"`
}

func (treatmentRow) TableName() string { return "treatments" }

type paymentRow struct {
	baseRow
	TreatmentID    string `gorm:"index;type:varchar(36)"`
	ConsultationID string `gorm:"type:varchar(36)"`
	Amount         int64
	Method         string
	ReceivedAt     time.Time
	OperatorID     string `gorm:"type:varchar(36)"`
}

func (paymentRow) TableName() string { return "payments" }

type appointmentRow struct {
	baseRow
	ConsultationID string `gorm:"type:varchar(36)"`
	PatientName    string
	DentistID      string `gorm:"index:idx_appointments_slot;type:varchar(36)"`
	StartTime      time.Time `gorm:"index:idx_appointments_slot"`
	Reason         string
	Status         string `gorm:"type:varchar(16)"`
}

func (appointmentRow) TableName() string { return "appointments" }

type operatorRow struct {
	baseRow
	Name         string
	Email        string `gorm:"uniqueIndex"`
	Role         string `gorm:"type:varchar(16)"`
	PasswordHash string
}

func (operatorRow) TableName() string { return "operators" }

// wrap translates GORM errors into the boundary's error taxonomy.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return remote.ErrNotFound
	}
	return fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
}

func syncedMeta(id, clinicID string, at time.Time) clinic.SyncMeta {
	return clinic.SyncMeta{
		ID:         id,
		ClinicID:   clinicID,
		SyncStatus: clinic.StatusSynced,
		LastSynced: &at,
	}
}

// ---- Consultations ----

func consultationFromRow(r *consultationRow) *clinic.Consultation {
	return &clinic.Consultation{
		SyncMeta:     syncedMeta(r.ID, r.ClinicID, r.UpdatedAt),
		PatientName:  r.PatientName,
		PatientPhone: r.PatientPhone,
		DentistID:    r.DentistID,
		Date:         r.Date,
		Diagnosis:    r.Diagnosis,
		Notes:        r.Notes,
	}
}

func rowFromConsultation(c *clinic.Consultation) *consultationRow {
	return &consultationRow{
		baseRow:      baseRow{ID: c.ID, ClinicID: c.ClinicID},
		PatientName:  c.PatientName,
		PatientPhone: c.PatientPhone,
		DentistID:    c.DentistID,
		Date:         c.Date,
		Diagnosis:    c.Diagnosis,
		Notes:        c.Notes,
	}
}

func (s *Store) CreateConsultation(ctx context.Context, c *clinic.Consultation) (*clinic.Consultation, error) {
	row := rowFromConsultation(c)
	row.ID = "" // server assigns
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, wrap(err)
	}
	return consultationFromRow(row), nil
}

func (s *Store) UpdateConsultation(ctx context.Context, c *clinic.Consultation) (*clinic.Consultation, error) {
	row := rowFromConsultation(c)
	res := s.db.WithContext(ctx).
		Where("id = ? AND clinic_id = ?", c.ID, c.ClinicID).
		Select("PatientName", "PatientPhone", "DentistID", "Date", "Diagnosis", "Notes").
		Updates(row)
	if res.Error != nil {
		return nil, wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, remote.ErrNotFound
	}
	return s.GetConsultation(ctx, c.ClinicID, c.ID)
}

func (s *Store) DeleteConsultation(ctx context.Context, clinicID, id string) error {
	return wrap(s.db.WithContext(ctx).
		Where("id = ? AND clinic_id = ?", id, clinicID).
		Delete(&consultationRow{}).Error)
}

func (s *Store) GetConsultation(ctx context.Context, clinicID, id string) (*clinic.Consultation, error) {
	var row consultationRow
	err := s.db.WithContext(ctx).
		Where("id = ? AND clinic_id = ?", id, clinicID).
		First(&row).Error
	if err != nil {
		return nil, wrap(err)
	}
	return consultationFromRow(&row), nil
}

func (s *Store) ListConsultations(ctx context.Context, clinicID string, f remote.ConsultationFilter) ([]*clinic.Consultation, error) {
	q := s.db.WithContext(ctx).Where("clinic_id = ?", clinicID)
	if f.PatientName != "" {
		q = q.Where("patient_name LIKE ?", "%"+f.PatientName+"%")
	}
	if f.PatientPhone != "" {
		q = q.Where("patient_phone LIKE ?", "%"+f.PatientPhone+"%")
	}
	if !f.From.IsZero() {
		q = q.Where("date >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("date <= ?", f.To)
	}
	var rows []consultationRow
	if err := q.Order("date DESC").Find(&rows).Error; err != nil {
		return nil, wrap(err)
	}
	out := make([]*clinic.Consultation, 0, len(rows))
	for i := range rows {
		out = append(out, consultationFromRow(&rows[i]))
	}
	return out, nil
}

// ---- Treatments ----

func treatmentFromRow(r *treatmentRow) *clinic.Treatment {
	return &clinic.Treatment{
		SyncMeta:        syncedMeta(r.ID, r.ClinicID, r.UpdatedAt),
		ConsultationID:  r.ConsultationID,
		Name:            r.Name,
		Date:            r.Date,
		NominalAmount:   r.NominalAmount,
		PaidAmount:      r.PaidAmount,
		RemainingAmount: r.RemainingAmount,
		Status:          clinic.TreatmentStatus(r.Status),
	}
}

func rowFromTreatment(t *clinic.Treatment) *treatmentRow {
	return &treatmentRow{
		baseRow:         baseRow{ID: t.ID, ClinicID: t.ClinicID},
		ConsultationID:  t.ConsultationID,
		Name:            t.Name,
		Date:            t.Date,
		NominalAmount:   t.NominalAmount,
		PaidAmount:      t.PaidAmount,
		RemainingAmount: t.RemainingAmount,
		Status:          string(t.Status),
	}
}

func (s *Store) CreateTreatment(ctx context.Context, t *clinic.Treatment) (*clinic.Treatment, error) {
	row := rowFromTreatment(t)
	row.ID = ""
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, wrap(err)
	}
	return treatmentFromRow(row), nil
}

func (s *Store) UpdateTreatment(ctx context.Context, t *clinic.Treatment) (*clinic.Treatment, error) {
	row := rowFromTreatment(t)
	res := s.db.WithContext(ctx).
		Where("id = ? AND clinic_id = ?", t.ID, t.ClinicID).
		Select("ConsultationID", "Name", "Date", "NominalAmount", "PaidAmount", "RemainingAmount", "Status").
		Updates(row)
	if res.Error != nil {
		return nil, wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, remote.ErrNotFound
	}
	return s.GetTreatment(ctx, t.ClinicID, t.ID)
}

func (s *Store) DeleteTreatment(ctx context.Context, clinicID, id string) error {
	return wrap(s.db.WithContext(ctx).
		Where("id = ? AND clinic_id = ?", id, clinicID).
		Delete(&treatmentRow{}).Error)
}

func (s *Store) GetTreatment(ctx context.Context, clinicID, id string) (*clinic.Treatment, error) {
	var row treatmentRow
	err := s.db.WithContext(ctx).
		Where("id = ? AND clinic_id = ?", id, clinicID).
		First(&row).Error
	if err != nil {
		return nil, wrap(err)
	}
	return treatmentFromRow(&row), nil
}

func (s *Store) ListTreatments(ctx context.Context, clinicID, consultationID string) ([]*clinic.Treatment, error) {
	q := s.db.WithContext(ctx).Where("clinic_id = ?", clinicID)
	if consultationID != "" {
		q = q.Where("consultation_id = ?", consultationID)
	}
	var rows []treatmentRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrap(err)
	}
	out := make([]*clinic.Treatment, 0, len(rows))
	for i := range rows {
		out = append(out, treatmentFromRow(&rows[i]))
	}
	return out, nil
}

// ---- Payments ----

func paymentFromRow(r *paymentRow) *clinic.Payment {
	return &clinic.Payment{
		SyncMeta:       syncedMeta(r.ID, r.ClinicID, r.UpdatedAt),
		TreatmentID:    r.TreatmentID,
		ConsultationID: r.ConsultationID,
		Amount:         r.Amount,
		Method:         r.Method,
		ReceivedAt:     r.ReceivedAt,
		OperatorID:     r.OperatorID,
	}
}

func (s *Store) CreatePayment(ctx context.Context, p *clinic.Payment) (*clinic.Payment, error) {
	row := &paymentRow{
		baseRow:        baseRow{ClinicID: p.ClinicID},
		TreatmentID:    p.TreatmentID,
		ConsultationID: p.ConsultationID,
		Amount:         p.Amount,
		Method:         p.Method,
		ReceivedAt:     p.ReceivedAt,
		OperatorID:     p.OperatorID,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, wrap(err)
	}
	return paymentFromRow(row), nil
}

func (s *Store) DeletePayment(ctx context.Context, clinicID, id string) error {
	return wrap(s.db.WithContext(ctx).
		Where("id = ? AND clinic_id = ?", id, clinicID).
		Delete(&paymentRow{}).Error)
}

func (s *Store) ListPayments(ctx context.Context, clinicID, treatmentID string) ([]*clinic.Payment, error) {
	q := s.db.WithContext(ctx).Where("clinic_id = ?", clinicID)
	if treatmentID != "" {
		q = q.Where("treatment_id = ?", treatmentID)
	}
	var rows []paymentRow
	if err := q.Order("received_at ASC").Find(&rows).Error; err != nil {
		return nil, wrap(err)
	}
	out := make([]*clinic.Payment, 0, len(rows))
	for i := range rows {
		out = append(out, paymentFromRow(&rows[i]))
	}
	return out, nil
}

// ---- Appointments ----

func appointmentFromRow(r *appointmentRow) *clinic.Appointment {
	return &clinic.Appointment{
		SyncMeta:       syncedMeta(r.ID, r.ClinicID, r.UpdatedAt),
		ConsultationID: r.ConsultationID,
		PatientName:    r.PatientName,
		DentistID:      r.DentistID,
		StartTime:      r.StartTime,
		Reason:         r.Reason,
		Status:         clinic.AppointmentStatus(r.Status),
	}
}

func rowFromAppointment(a *clinic.Appointment) *appointmentRow {
	return &appointmentRow{
		baseRow:        baseRow{ID: a.ID, ClinicID: a.ClinicID},
		ConsultationID: a.ConsultationID,
		PatientName:    a.PatientName,
		DentistID:      a.DentistID,
		StartTime:      a.StartTime,
		Reason:         a.Reason,
		Status:         string(a.Status),
	}
}

func (s *Store) CreateAppointment(ctx context.Context, a *clinic.Appointment) (*clinic.Appointment, error) {
	row := rowFromAppointment(a)
	row.ID = ""
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, wrap(err)
	}
	return appointmentFromRow(row), nil
}

func (s *Store) UpdateAppointment(ctx context.Context, a *clinic.Appointment) (*clinic.Appointment, error) {
	row := rowFromAppointment(a)
	res := s.db.WithContext(ctx).
		Where("id = ? AND clinic_id = ?", a.ID, a.ClinicID).
		Select("ConsultationID", "PatientName", "DentistID", "StartTime", "Reason", "Status").
		Updates(row)
	if res.Error != nil {
		return nil, wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, remote.ErrNotFound
	}
	var got appointmentRow
	if err := s.db.WithContext(ctx).Where("id = ?", a.ID).First(&got).Error; err != nil {
		return nil, wrap(err)
	}
	return appointmentFromRow(&got), nil
}

func (s *Store) DeleteAppointment(ctx context.Context, clinicID, id string) error {
	return wrap(s.db.WithContext(ctx).
		Where("id = ? AND clinic_id = ?", id, clinicID).
		Delete(&appointmentRow{}).Error)
}

func (s *Store) GetAppointment(ctx context.Context, clinicID, id string) (*clinic.Appointment, error) {
	var row appointmentRow
	err := s.db.WithContext(ctx).
		Where("id = ? AND clinic_id = ?", id, clinicID).
		First(&row).Error
	if err != nil {
		return nil, wrap(err)
	}
	return appointmentFromRow(&row), nil
}

func (s *Store) ListAppointments(ctx context.Context, clinicID string, f remote.AppointmentFilter) ([]*clinic.Appointment, error) {
	q := s.db.WithContext(ctx).Where("clinic_id = ?", clinicID)
	if f.DentistID != "" {
		q = q.Where("dentist_id = ?", f.DentistID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if !f.From.IsZero() {
		q = q.Where("start_time >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("start_time <= ?", f.To)
	}
	var rows []appointmentRow
	if err := q.Order("start_time ASC").Find(&rows).Error; err != nil {
		return nil, wrap(err)
	}
	out := make([]*clinic.Appointment, 0, len(rows))
	for i := range rows {
		out = append(out, appointmentFromRow(&rows[i]))
	}
	return out, nil
}

func (s *Store) FindScheduledAppointment(ctx context.Context, clinicID, dentistID string, at time.Time, excludeID string) (*clinic.Appointment, error) {
	var row appointmentRow
	q := s.db.WithContext(ctx).
		Where("clinic_id = ? AND dentist_id = ? AND start_time = ? AND status = ?",
			clinicID, dentistID, at, string(clinic.AppointmentScheduled))
	if excludeID != "" {
		q = q.Where("id != ?", excludeID)
	}
	if err := q.First(&row).Error; err != nil {
		return nil, wrap(err)
	}
	return appointmentFromRow(&row), nil
}

// ---- Identity provider ----

func operatorFromRow(r *operatorRow) *clinic.Operator {
	return &clinic.Operator{
		SyncMeta: syncedMeta(r.ID, r.ClinicID, r.UpdatedAt),
		Name:     r.Name,
		Email:    r.Email,
		Role:     r.Role,
	}
}

// Login verifies the operator's credentials and issues a session token.
func (s *Store) Login(ctx context.Context, email, password string) (string, *clinic.Operator, error) {
	var row operatorRow
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, remote.ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, wrap(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)); err != nil {
		return "", nil, remote.ErrInvalidCredentials
	}
	token, err := auth.NewSessionToken(s.jwtSecret, row.ID, row.ClinicID, sessionTTL)
	if err != nil {
		return "", nil, err
	}
	return token, operatorFromRow(&row), nil
}

// OperatorForSession resolves a session token against the users table.
func (s *Store) OperatorForSession(ctx context.Context, token string) (*clinic.Operator, error) {
	claims, err := auth.ParseSessionToken(s.jwtSecret, token)
	if err != nil {
		return nil, err
	}
	var row operatorRow
	if err := s.db.WithContext(ctx).Where("id = ?", claims.OperatorID).First(&row).Error; err != nil {
		return nil, wrap(err)
	}
	return operatorFromRow(&row), nil
}

// CreateOperator registers a clinic staff member, hashing the password.
// Used by deployment tooling, not by the device client.
func (s *Store) CreateOperator(ctx context.Context, op *clinic.Operator, password string) (*clinic.Operator, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	row := &operatorRow{
		baseRow:      baseRow{ClinicID: op.ClinicID},
		Name:         op.Name,
		Email:        op.Email,
		Role:         op.Role,
		PasswordHash: string(hash),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, wrap(err)
	}
	return operatorFromRow(row), nil
}
