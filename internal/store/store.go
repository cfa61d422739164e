// Package store provides the embedded local cache backing offline operation.
//
// The cache is a SQLite database (ncruces/go-sqlite3, embedded build) holding
// one table per entity family. Every row carries the sync columns
// (clinic_id, sync_status, last_synced) plus the full entity as a JSON
// payload, with a composite index on (clinic_id, sync_status) so the sync
// engine's pending scans stay sublinear in cache size.
//
// The cache is never the source of truth for reconciled data: if the on-disk
// schema version does not match SchemaVersion the whole cache is wiped and
// recreated rather than migrated.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/dentops/chairside/internal/clinic"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SchemaVersion is bumped whenever the table layout changes. A mismatch on
// open discards the cache (it only ever holds reconciled copies and pending
// work that has not been confirmed; losing the former is harmless, losing the
// latter is the documented recovery trade-off).
const SchemaVersion = 2

// ErrNotFound is returned when a record does not exist in the cache.
var ErrNotFound = errors.New("store: record not found")

// Table names, one logical table per entity family.
const (
	tableConsultations = "consultations"
	tableTreatments    = "treatments"
	tablePayments      = "payments"
	tableAppointments  = "appointments"
	tableOperators     = "operators"
)

var allTables = []string{
	tableConsultations,
	tableTreatments,
	tablePayments,
	tableAppointments,
	tableOperators,
}

// Store wraps the SQLite connection with cache-specific operations.
type Store struct {
	conn   *sql.DB
	path   string
	logger *log.Logger
}

// Open creates or opens the cache database at path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If the stored schema version is incompatible the cache is reset.
//
// The caller MUST call Close() when done.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	s := &Store{conn: conn, path: path, logger: logger}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the cache database, checkpointing the WAL first.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache database: %w", err)
	}
	s.conn = nil
	return nil
}

// initSchema creates the tables, wiping the cache first when the on-disk
// version does not match SchemaVersion.
func (s *Store) initSchema() error {
	var version int
	if err := s.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version != 0 && version != SchemaVersion {
		s.logger.Printf("Cache schema version %d is incompatible (want %d); resetting cache", version, SchemaVersion)
		if err := s.wipe(); err != nil {
			return err
		}
	}

	for _, table := range allTables {
		ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			clinic_id TEXT NOT NULL,
			sync_status TEXT NOT NULL DEFAULT 'synced',
			last_synced TEXT,
			payload TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_clinic_status
		    ON %[1]s(clinic_id, sync_status);
		`, table)
		if _, err := s.conn.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}

	if _, err := s.conn.Exec(fmt.Sprintf("PRAGMA user_version=%d", SchemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// wipe drops every cache table. Used for schema recovery only.
func (s *Store) wipe() error {
	for _, table := range allTables {
		if _, err := s.conn.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}

// put upserts a single record. The sync columns are duplicated out of the
// payload so they can be indexed.
func (s *Store) put(ctx context.Context, table string, meta *clinic.SyncMeta, rec any) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", meta.ID, err)
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (id, clinic_id, sync_status, last_synced, payload)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		clinic_id = excluded.clinic_id,
		sync_status = excluded.sync_status,
		last_synced = excluded.last_synced,
		payload = excluded.payload
	`, table)

	_, err = s.conn.ExecContext(ctx, query,
		meta.ID,
		meta.ClinicID,
		meta.SyncStatus.String(),
		timeToNullString(meta.LastSynced),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", table, err)
	}
	return nil
}

// get loads a single record by id into out.
func (s *Store) get(ctx context.Context, table, id string, out any) error {
	var payload string
	query := fmt.Sprintf("SELECT payload FROM %s WHERE id = ?", table)
	err := s.conn.QueryRowContext(ctx, query, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read from %s: %w", table, err)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("failed to unmarshal record %s: %w", id, err)
	}
	return nil
}

// del removes a record by id. Idempotent.
func (s *Store) del(ctx context.Context, table, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", table)
	if _, err := s.conn.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete %s from %s: %w", id, table, err)
	}
	return nil
}

// queryPayloads runs query and decodes the single payload column of each row
// into a fresh T.
func queryPayloads[T any](ctx context.Context, s *Store, query string, args ...any) ([]*T, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cache query failed: %w", err)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan payload: %w", err)
		}
		rec := new(T)
		if err := json.Unmarshal([]byte(payload), rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cache rows: %w", err)
	}
	return out, nil
}

func listByClinic[T any](ctx context.Context, s *Store, table, clinicID string) ([]*T, error) {
	query := fmt.Sprintf("SELECT payload FROM %s WHERE clinic_id = ?", table)
	return queryPayloads[T](ctx, s, query, clinicID)
}

func listByStatus[T any](ctx context.Context, s *Store, table, clinicID string, status clinic.SyncStatus) ([]*T, error) {
	query := fmt.Sprintf("SELECT payload FROM %s WHERE clinic_id = ? AND sync_status = ?", table)
	return queryPayloads[T](ctx, s, query, clinicID, status.String())
}

// ---- Consultations ----

func (s *Store) PutConsultation(ctx context.Context, c *clinic.Consultation) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid consultation: %w", err)
	}
	return s.put(ctx, tableConsultations, &c.SyncMeta, c)
}

func (s *Store) BulkPutConsultations(ctx context.Context, cs []*clinic.Consultation) error {
	for _, c := range cs {
		if err := s.PutConsultation(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetConsultation(ctx context.Context, id string) (*clinic.Consultation, error) {
	var c clinic.Consultation
	if err := s.get(ctx, tableConsultations, id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) DeleteConsultation(ctx context.Context, id string) error {
	return s.del(ctx, tableConsultations, id)
}

func (s *Store) ConsultationsByClinic(ctx context.Context, clinicID string) ([]*clinic.Consultation, error) {
	return listByClinic[clinic.Consultation](ctx, s, tableConsultations, clinicID)
}

func (s *Store) ConsultationsByStatus(ctx context.Context, clinicID string, status clinic.SyncStatus) ([]*clinic.Consultation, error) {
	return listByStatus[clinic.Consultation](ctx, s, tableConsultations, clinicID, status)
}

// ---- Treatments ----

func (s *Store) PutTreatment(ctx context.Context, t *clinic.Treatment) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid treatment: %w", err)
	}
	return s.put(ctx, tableTreatments, &t.SyncMeta, t)
}

func (s *Store) BulkPutTreatments(ctx context.Context, ts []*clinic.Treatment) error {
	for _, t := range ts {
		if err := s.PutTreatment(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetTreatment(ctx context.Context, id string) (*clinic.Treatment, error) {
	var t clinic.Treatment
	if err := s.get(ctx, tableTreatments, id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) DeleteTreatment(ctx context.Context, id string) error {
	return s.del(ctx, tableTreatments, id)
}

func (s *Store) TreatmentsByClinic(ctx context.Context, clinicID string) ([]*clinic.Treatment, error) {
	return listByClinic[clinic.Treatment](ctx, s, tableTreatments, clinicID)
}

func (s *Store) TreatmentsByStatus(ctx context.Context, clinicID string, status clinic.SyncStatus) ([]*clinic.Treatment, error) {
	return listByStatus[clinic.Treatment](ctx, s, tableTreatments, clinicID, status)
}

// ---- Payments ----

func (s *Store) PutPayment(ctx context.Context, p *clinic.Payment) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid payment: %w", err)
	}
	return s.put(ctx, tablePayments, &p.SyncMeta, p)
}

func (s *Store) BulkPutPayments(ctx context.Context, ps []*clinic.Payment) error {
	for _, p := range ps {
		if err := s.PutPayment(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (*clinic.Payment, error) {
	var p clinic.Payment
	if err := s.get(ctx, tablePayments, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) DeletePayment(ctx context.Context, id string) error {
	return s.del(ctx, tablePayments, id)
}

func (s *Store) PaymentsByClinic(ctx context.Context, clinicID string) ([]*clinic.Payment, error) {
	return listByClinic[clinic.Payment](ctx, s, tablePayments, clinicID)
}

func (s *Store) PaymentsByStatus(ctx context.Context, clinicID string, status clinic.SyncStatus) ([]*clinic.Payment, error) {
	return listByStatus[clinic.Payment](ctx, s, tablePayments, clinicID, status)
}

// PaymentsByTreatment returns every cached payment applied to a treatment,
// used when recomputing derived treatment state locally.
func (s *Store) PaymentsByTreatment(ctx context.Context, clinicID, treatmentID string) ([]*clinic.Payment, error) {
	query := fmt.Sprintf(`
	SELECT payload FROM %s
	WHERE clinic_id = ? AND json_extract(payload, '$.treatmentId') = ?
	`, tablePayments)
	return queryPayloads[clinic.Payment](ctx, s, query, clinicID, treatmentID)
}

// ---- Appointments ----

func (s *Store) PutAppointment(ctx context.Context, a *clinic.Appointment) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid appointment: %w", err)
	}
	return s.put(ctx, tableAppointments, &a.SyncMeta, a)
}

func (s *Store) BulkPutAppointments(ctx context.Context, as []*clinic.Appointment) error {
	for _, a := range as {
		if err := s.PutAppointment(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*clinic.Appointment, error) {
	var a clinic.Appointment
	if err := s.get(ctx, tableAppointments, id, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) DeleteAppointment(ctx context.Context, id string) error {
	return s.del(ctx, tableAppointments, id)
}

func (s *Store) AppointmentsByClinic(ctx context.Context, clinicID string) ([]*clinic.Appointment, error) {
	return listByClinic[clinic.Appointment](ctx, s, tableAppointments, clinicID)
}

func (s *Store) AppointmentsByStatus(ctx context.Context, clinicID string, status clinic.SyncStatus) ([]*clinic.Appointment, error) {
	return listByStatus[clinic.Appointment](ctx, s, tableAppointments, clinicID, status)
}

// ---- Operators ----

func (s *Store) PutOperator(ctx context.Context, o *clinic.Operator) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid operator: %w", err)
	}
	return s.put(ctx, tableOperators, &o.SyncMeta, o)
}

func (s *Store) GetOperator(ctx context.Context, id string) (*clinic.Operator, error) {
	var o clinic.Operator
	if err := s.get(ctx, tableOperators, id, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// RewriteRefs rewrites every foreign key in the clinic's cache that still
// points at oldID so it points at newID instead. It runs in one transaction:
// either every dependent record sees the remap or none does.
//
// Consulted relations: Treatment.consultationId, Appointment.consultationId,
// Payment.treatmentId, Payment.consultationId.
func (s *Store) RewriteRefs(ctx context.Context, clinicID, oldID, newID string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin remap transaction: %w", err)
	}
	defer tx.Rollback()

	rewrites := []struct {
		table string
		field string
	}{
		{tableTreatments, "consultationId"},
		{tableAppointments, "consultationId"},
		{tablePayments, "treatmentId"},
		{tablePayments, "consultationId"},
	}

	for _, r := range rewrites {
		query := fmt.Sprintf(`
		UPDATE %[1]s
		SET payload = json_set(payload, '$.%[2]s', ?)
		WHERE clinic_id = ? AND json_extract(payload, '$.%[2]s') = ?
		`, r.table, r.field)
		if _, err := tx.ExecContext(ctx, query, newID, clinicID, oldID); err != nil {
			return fmt.Errorf("failed to rewrite %s.%s: %w", r.table, r.field, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit remap transaction: %w", err)
	}
	return nil
}

// PendingCounts returns, per entity family, the number of records still
// awaiting reconciliation (pending or deleted) for the clinic.
func (s *Store) PendingCounts(ctx context.Context, clinicID string) (map[string]int, error) {
	counts := make(map[string]int, len(allTables))
	for _, table := range allTables {
		query := fmt.Sprintf(
			"SELECT COUNT(*) FROM %s WHERE clinic_id = ? AND sync_status != ?", table)
		var n int
		if err := s.conn.QueryRowContext(ctx, query, clinicID, clinic.StatusSynced.String()).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count pending rows in %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}
