package repository

import (
	"context"

	"emailtracker/internal/model"
)

// RecordRepository is the primary, authoritative record store keyed by domain.
type RecordRepository interface {
	// Put upserts a record; the last write for a domain wins.
	Put(ctx context.Context, record model.EmailRecord) error
	// PutMany upserts all records in a single transaction.
	PutMany(ctx context.Context, records []model.EmailRecord) error
	// Get returns model.ErrNotFound when no record exists for domain.
	Get(ctx context.Context, domain string) (*model.EmailRecord, error)
	// All returns every record ordered by domain.
	All(ctx context.Context) ([]model.EmailRecord, error)
	FindByEmail(ctx context.Context, email string) ([]model.EmailRecord, error)
	Delete(ctx context.Context, domain string) error
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
}

// BackupStore is a flat key/value mirror of the primary store.
type BackupStore interface {
	Set(ctx context.Context, key string, record model.EmailRecord) error
	Get(ctx context.Context, key string) (*model.EmailRecord, error)
	Remove(ctx context.Context, key string) error
}
