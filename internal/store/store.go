package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"emailtracker/internal/model"
	"emailtracker/internal/repository"
	"emailtracker/pkg/metrics"
)

const DefaultKeyPrefix = "email_"

// RepairRequester is notified when a backup mirror write fails so the worker
// can re-sync the key later.
type RepairRequester interface {
	RequestBackupRepair(ctx context.Context, domain, operation string) error
}

// RecordStore writes the primary repository and mirrors every change into the backup.
type RecordStore struct {
	primary   repository.RecordRepository
	backup    repository.BackupStore
	keyPrefix string
	repair    RepairRequester
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*RecordStore)

// WithKeyPrefix overrides the backup key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *RecordStore) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// WithRepairRequester queues failed mirror writes for asynchronous repair.
func WithRepairRequester(r RepairRequester) Option {
	return func(s *RecordStore) { s.repair = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *RecordStore) { s.now = now }
}

func NewRecordStore(primary repository.RecordRepository, backup repository.BackupStore, logger *zap.Logger, opts ...Option) *RecordStore {
	if backup == nil {
		backup = repository.NopBackupStore{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RecordStore{
		primary:   primary,
		backup:    backup,
		keyPrefix: DefaultKeyPrefix,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BackupKey is the mirror key for domain.
func (s *RecordStore) BackupKey(domain string) string {
	return s.keyPrefix + domain
}

// Save upserts record with its timestamps at millisecond precision. Only a
// primary failure is returned.
func (s *RecordStore) Save(ctx context.Context, record model.EmailRecord) error {
	record = record.Normalized()
	if err := s.primary.Put(ctx, record); err != nil {
		metrics.RecordWrite("save", "error")
		return fmt.Errorf("failed to save record for %s: %w", record.Domain, err)
	}
	metrics.RecordWrite("save", "ok")
	s.mirror(ctx, "save", record.Domain, func() error {
		return s.backup.Set(ctx, s.BackupKey(record.Domain), record)
	})
	return nil
}

func (s *RecordStore) GetByDomain(ctx context.Context, domain string) (*model.EmailRecord, error) {
	return s.primary.Get(ctx, domain)
}

// GetAll returns every record ordered by domain.
func (s *RecordStore) GetAll(ctx context.Context) ([]model.EmailRecord, error) {
	return s.primary.All(ctx)
}

func (s *RecordStore) FindByEmail(ctx context.Context, email string) ([]model.EmailRecord, error) {
	return s.primary.FindByEmail(ctx, email)
}

func (s *RecordStore) Delete(ctx context.Context, domain string) error {
	if err := s.primary.Delete(ctx, domain); err != nil {
		metrics.RecordWrite("delete", "error")
		return fmt.Errorf("failed to delete record for %s: %w", domain, err)
	}
	metrics.RecordWrite("delete", "ok")
	s.mirror(ctx, "delete", domain, func() error {
		return s.backup.Remove(ctx, s.BackupKey(domain))
	})
	return nil
}

// Clear removes every record from the primary and, best-effort, from the backup.
func (s *RecordStore) Clear(ctx context.Context) error {
	records, err := s.primary.All(ctx)
	if err != nil {
		return err
	}
	if err := s.primary.Clear(ctx); err != nil {
		metrics.RecordWrite("clear", "error")
		return fmt.Errorf("failed to clear records: %w", err)
	}
	metrics.RecordWrite("clear", "ok")
	for _, rec := range records {
		domain := rec.Domain
		s.mirror(ctx, "delete", domain, func() error {
			return s.backup.Remove(ctx, s.BackupKey(domain))
		})
	}
	return nil
}

// RepairBackup copies the primary state of domain into the backup, removing
// the mirror key when the primary no longer has the record.
func (s *RecordStore) RepairBackup(ctx context.Context, domain string) error {
	rec, err := s.primary.Get(ctx, domain)
	if errors.Is(err, model.ErrNotFound) {
		return s.backup.Remove(ctx, s.BackupKey(domain))
	}
	if err != nil {
		return err
	}
	return s.backup.Set(ctx, s.BackupKey(domain), *rec)
}

func (s *RecordStore) Ping(ctx context.Context) error {
	return s.primary.Ping(ctx)
}

func (s *RecordStore) mirror(ctx context.Context, operation, domain string, write func() error) {
	err := write()
	if err == nil {
		return
	}

	metrics.IncrementBackupFailure(operation)
	s.logger.Warn("Backup mirror failed",
		zap.String("operation", operation),
		zap.String("domain", domain),
		zap.Error(err),
	)

	if s.repair == nil {
		return
	}
	if err := s.repair.RequestBackupRepair(ctx, domain, operation); err != nil {
		s.logger.Error("Failed to queue backup repair",
			zap.String("domain", domain),
			zap.Error(err),
		)
	}
}
