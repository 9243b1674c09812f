package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"emailtracker/internal/model"
)

//go:embed schema.sql
var sqliteSchema string

const sqliteTimeLayout = "2006-01-02T15:04:05.000Z07:00"

const sqliteUpsertSQL = `
    INSERT INTO email_records (domain, email, provider, date_added, last_verified, last_used, notes, tags)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT (domain) DO UPDATE SET
        email = excluded.email,
        provider = excluded.provider,
        date_added = excluded.date_added,
        last_verified = excluded.last_verified,
        last_used = excluded.last_used,
        notes = excluded.notes,
        tags = excluded.tags
`

// SQLiteRecordRepository is the single-file local store.
type SQLiteRecordRepository struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteRecordRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer; avoids SQLITE_BUSY under concurrent handlers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteRecordRepository{db: db}, nil
}

func (r *SQLiteRecordRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRecordRepository) Put(ctx context.Context, record model.EmailRecord) error {
	args, err := sqliteArgs(record)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, sqliteUpsertSQL, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", record.Domain, err)
	}
	return nil
}

func (r *SQLiteRecordRepository) PutMany(ctx context.Context, records []model.EmailRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, record := range records {
		args, err := sqliteArgs(record)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("upsert %s: %w", record.Domain, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecordRepository) Get(ctx context.Context, domain string) (*model.EmailRecord, error) {
	row := r.db.QueryRowContext(ctx, selectRecordColumns+` WHERE domain = ?`, domain)
	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("domain %s: %w", domain, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *SQLiteRecordRepository) All(ctx context.Context) ([]model.EmailRecord, error) {
	return r.query(ctx, selectRecordColumns+` ORDER BY domain`)
}

func (r *SQLiteRecordRepository) FindByEmail(ctx context.Context, email string) ([]model.EmailRecord, error) {
	return r.query(ctx, selectRecordColumns+` WHERE email = ? ORDER BY domain`, email)
}

func (r *SQLiteRecordRepository) Delete(ctx context.Context, domain string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM email_records WHERE domain = ?`, domain)
	return err
}

func (r *SQLiteRecordRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM email_records`)
	return err
}

func (r *SQLiteRecordRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRecordRepository) query(ctx context.Context, query string, args ...any) ([]model.EmailRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []model.EmailRecord{}
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func sqliteArgs(record model.EmailRecord) ([]any, error) {
	var tags sql.NullString
	if len(record.Tags) > 0 {
		raw, err := json.Marshal(record.Tags)
		if err != nil {
			return nil, fmt.Errorf("encode tags: %w", err)
		}
		tags = sql.NullString{String: string(raw), Valid: true}
	}
	return []any{
		record.Domain,
		record.Email,
		string(record.Provider),
		formatTime(record.DateAdded),
		formatTimePtr(record.LastVerified),
		formatTimePtr(record.LastUsed),
		sql.NullString{String: record.Notes, Valid: record.Notes != ""},
		tags,
	}, nil
}

func scanSQLiteRecord(row rowScanner) (*model.EmailRecord, error) {
	var (
		rec                 model.EmailRecord
		provider, dateAdded string
		verified, used      sql.NullString
		notes, tags         sql.NullString
	)
	if err := row.Scan(&rec.Domain, &rec.Email, &provider, &dateAdded, &verified, &used, &notes, &tags); err != nil {
		return nil, err
	}

	var err error
	rec.Provider = model.Provider(provider)
	if rec.DateAdded, err = time.Parse(sqliteTimeLayout, dateAdded); err != nil {
		return nil, fmt.Errorf("parse date_added for %s: %w", rec.Domain, err)
	}
	if rec.LastVerified, err = parseTimePtr(verified); err != nil {
		return nil, err
	}
	if rec.LastUsed, err = parseTimePtr(used); err != nil {
		return nil, err
	}
	rec.Notes = notes.String
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &rec.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for %s: %w", rec.Domain, err)
		}
		if len(rec.Tags) == 0 {
			rec.Tags = nil
		}
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(sqliteTimeLayout, s.String)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
