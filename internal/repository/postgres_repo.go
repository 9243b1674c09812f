package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"emailtracker/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS email_records (
    domain        TEXT PRIMARY KEY,
    email         TEXT NOT NULL,
    provider      TEXT NOT NULL,
    date_added    TIMESTAMPTZ NOT NULL,
    last_verified TIMESTAMPTZ,
    last_used     TIMESTAMPTZ,
    notes         TEXT,
    tags          TEXT[]
);
CREATE INDEX IF NOT EXISTS idx_email_records_email ON email_records (email);
CREATE INDEX IF NOT EXISTS idx_email_records_provider ON email_records (provider);
CREATE INDEX IF NOT EXISTS idx_email_records_date_added ON email_records (date_added);
CREATE INDEX IF NOT EXISTS idx_email_records_last_used ON email_records (last_used);
`

const upsertRecordSQL = `
    INSERT INTO email_records (domain, email, provider, date_added, last_verified, last_used, notes, tags)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    ON CONFLICT (domain) DO UPDATE SET
        email = EXCLUDED.email,
        provider = EXCLUDED.provider,
        date_added = EXCLUDED.date_added,
        last_verified = EXCLUDED.last_verified,
        last_used = EXCLUDED.last_used,
        notes = EXCLUDED.notes,
        tags = EXCLUDED.tags
`

const selectRecordColumns = `
    SELECT domain, email, provider, date_added, last_verified, last_used, notes, tags
    FROM email_records
`

type PostgresRecordRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRecordRepository(db *pgxpool.Pool) *PostgresRecordRepository {
	return &PostgresRecordRepository{db: db}
}

// EnsureSchema creates the table and its lookup indexes.
func (r *PostgresRecordRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Put upserts the record keyed by domain.
func (r *PostgresRecordRepository) Put(ctx context.Context, record model.EmailRecord) error {
	_, err := r.db.Exec(ctx, upsertRecordSQL, upsertArgs(record)...)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", record.Domain, err)
	}
	return nil
}

// PutMany upserts all records inside one transaction.
func (r *PostgresRecordRepository) PutMany(ctx context.Context, records []model.EmailRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, record := range records {
		batch.Queue(upsertRecordSQL, upsertArgs(record)...)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("bulk upsert: %w", err)
	}
	return tx.Commit(ctx)
}

// Get returns the record for domain.
func (r *PostgresRecordRepository) Get(ctx context.Context, domain string) (*model.EmailRecord, error) {
	row := r.db.QueryRow(ctx, selectRecordColumns+` WHERE domain = $1`, domain)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("domain %s: %w", domain, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// All returns every record ordered by domain.
func (r *PostgresRecordRepository) All(ctx context.Context) ([]model.EmailRecord, error) {
	return r.query(ctx, selectRecordColumns+` ORDER BY domain`)
}

// FindByEmail uses the email index.
func (r *PostgresRecordRepository) FindByEmail(ctx context.Context, email string) ([]model.EmailRecord, error) {
	return r.query(ctx, selectRecordColumns+` WHERE email = $1 ORDER BY domain`, email)
}

func (r *PostgresRecordRepository) Delete(ctx context.Context, domain string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM email_records WHERE domain = $1`, domain)
	return err
}

func (r *PostgresRecordRepository) Clear(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `DELETE FROM email_records`)
	return err
}

func (r *PostgresRecordRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *PostgresRecordRepository) query(ctx context.Context, sql string, args ...any) ([]model.EmailRecord, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []model.EmailRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func upsertArgs(record model.EmailRecord) []any {
	var notes *string
	if record.Notes != "" {
		notes = &record.Notes
	}
	var tags []string
	if len(record.Tags) > 0 {
		tags = record.Tags
	}
	return []any{
		record.Domain,
		record.Email,
		string(record.Provider),
		record.DateAdded,
		record.LastVerified,
		record.LastUsed,
		notes,
		tags,
	}
}

func scanRecord(row pgx.Row) (*model.EmailRecord, error) {
	var (
		rec      model.EmailRecord
		provider string
		notes    *string
		verified *time.Time
		used     *time.Time
	)
	err := row.Scan(
		&rec.Domain,
		&rec.Email,
		&provider,
		&rec.DateAdded,
		&verified,
		&used,
		&notes,
		&rec.Tags,
	)
	if err != nil {
		return nil, err
	}

	rec.Provider = model.Provider(provider)
	rec.DateAdded = rec.DateAdded.UTC()
	if verified != nil {
		t := verified.UTC()
		rec.LastVerified = &t
	}
	if used != nil {
		t := used.UTC()
		rec.LastUsed = &t
	}
	if notes != nil {
		rec.Notes = *notes
	}
	if len(rec.Tags) == 0 {
		rec.Tags = nil
	}
	return &rec, nil
}
