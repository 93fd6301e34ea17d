package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt" // For error wrapping

	"patient_recommender/internal/domain/patient"

	"github.com/lib/pq" // For pq.Array
)

type PostgresPatientRepository struct {
	db *sql.DB
}

func NewPostgresPatientRepository(db *sql.DB) *PostgresPatientRepository {
	return &PostgresPatientRepository{db: db}
}

const patientColumns = `reference, organization_code, par_day, status, created_at, updated_at`

func scanPatient(row interface{ Scan(...any) error }) (*patient.Patient, error) {
	p := &patient.Patient{}
	err := row.Scan(&p.Reference, &p.OrganizationCode, &p.ParDay, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *PostgresPatientRepository) Upsert(ctx context.Context, reference, organizationCode string) (*patient.Patient, bool, error) {
	// xmax is zero only for a freshly inserted row.
	query := `INSERT INTO patients (reference, organization_code, par_day, status)
               VALUES ($1, $2, 0, TRUE)
               ON CONFLICT (reference) DO UPDATE
               SET organization_code = EXCLUDED.organization_code, status = TRUE, updated_at = NOW()
               RETURNING ` + patientColumns + `, (xmax = 0) AS inserted`

	p := &patient.Patient{}
	var inserted bool
	err := r.db.QueryRowContext(ctx, query, reference, organizationCode).Scan(
		&p.Reference, &p.OrganizationCode, &p.ParDay, &p.Active, &p.CreatedAt, &p.UpdatedAt, &inserted,
	)
	if err != nil {
		return nil, false, fmt.Errorf("error upserting patient %s: %w", reference, err)
	}
	return p, inserted, nil
}

func (r *PostgresPatientRepository) GetByReference(ctx context.Context, reference string) (*patient.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE reference = $1`
	p, err := scanPatient(r.db.QueryRowContext(ctx, query, reference))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, patient.ErrNotFound
		}
		return nil, fmt.Errorf("error getting patient by reference: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+notificationColumns+`
               FROM notifications WHERE patient_reference = $1 ORDER BY date_sent, id`, reference)
	if err != nil {
		return nil, fmt.Errorf("error loading notification history for %s: %w", reference, err)
	}
	defer rows.Close()
	if p.History, err = scanNotifications(rows); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresPatientRepository) ListActive(ctx context.Context) ([]*patient.Patient, error) {
	return r.list(ctx, `SELECT `+patientColumns+` FROM patients WHERE status = TRUE ORDER BY reference`, "active")
}

func (r *PostgresPatientRepository) ListAll(ctx context.Context) ([]*patient.Patient, error) {
	return r.list(ctx, `SELECT `+patientColumns+` FROM patients ORDER BY reference`, "all")
}

func (r *PostgresPatientRepository) list(ctx context.Context, query, label string) ([]*patient.Patient, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing %s patients: %w", label, err)
	}
	defer rows.Close()

	patients := make([]*patient.Patient, 0)
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning %s patient: %w", label, err)
		}
		patients = append(patients, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s patients: %w", label, err)
	}
	return patients, nil
}

// Save writes the cycle position, the status and every pending
// notification in one transaction.
func (r *PostgresPatientRepository) Save(ctx context.Context, p *patient.Patient) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for patient %s: %w", p.Reference, err)
	}
	defer txn.Rollback() // Rollback if not committed

	err = txn.QueryRowContext(ctx, `UPDATE patients
               SET par_day = $1, status = $2, updated_at = NOW()
               WHERE reference = $3
               RETURNING updated_at`, p.ParDay, p.Active, p.Reference).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return patient.ErrNotFound
		}
		return fmt.Errorf("error updating patient %s: %w", p.Reference, err)
	}

	if err := insertPending(ctx, txn, p); err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit patient %s: %w", p.Reference, err)
	}
	p.MarkSaved()
	return nil
}

// AppendNotifications writes only the pending notifications; par_day and
// status keep whatever a concurrent cycle step or roster sync stored.
func (r *PostgresPatientRepository) AppendNotifications(ctx context.Context, p *patient.Patient) error {
	if len(p.Pending()) == 0 {
		return nil
	}
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for patient %s: %w", p.Reference, err)
	}
	defer txn.Rollback() // Rollback if not committed

	var exists bool
	err = txn.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE reference = $1)`, p.Reference).Scan(&exists)
	if err != nil {
		return fmt.Errorf("error checking patient %s: %w", p.Reference, err)
	}
	if !exists {
		return patient.ErrNotFound
	}
	if err := insertPending(ctx, txn, p); err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit notifications of patient %s: %w", p.Reference, err)
	}
	p.MarkSaved()
	return nil
}

func insertPending(ctx context.Context, txn *sql.Tx, p *patient.Patient) error {
	pending := p.Pending()
	if len(pending) == 0 {
		return nil
	}
	stmt, err := txn.PrepareContext(ctx, `INSERT INTO notifications
               (id, patient_reference, message, receiver_device_type, kind, read, date_sent, date_read)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return fmt.Errorf("failed to prepare notification insert: %w", err)
	}
	defer stmt.Close()

	for _, n := range pending {
		_, err := stmt.ExecContext(ctx, n.ID, p.Reference, n.Message, n.Channel, n.Kind, n.Read, n.SentAt, n.ReadAt)
		if err != nil {
			return fmt.Errorf("error inserting notification %s for patient %s: %w", n.ID, p.Reference, err)
		}
	}
	return nil
}

func (r *PostgresPatientRepository) DeactivateMissing(ctx context.Context, present []string) (int, error) {
	query := `UPDATE patients SET status = FALSE, updated_at = NOW()
               WHERE status = TRUE AND NOT (reference = ANY($1::varchar[]))`
	res, err := r.db.ExecContext(ctx, query, pq.Array(present))
	if err != nil {
		return 0, fmt.Errorf("error deactivating missing patients: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error counting deactivated patients: %w", err)
	}
	return int(n), nil
}
