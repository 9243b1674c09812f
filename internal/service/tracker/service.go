package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"emailtracker/internal/model"
	"emailtracker/internal/rules"
	"emailtracker/internal/store"
	"emailtracker/pkg/otel"
)

// EventPublisher publishes domain events; a nil publisher disables events.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type Service struct {
	store     *store.RecordStore
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(recordStore *store.RecordStore, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:  recordStore,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveEmail normalizes, validates and upserts a record. An empty provider is
// inferred from the email suffix.
func (s *Service) SaveEmail(ctx context.Context, domain, email string, provider model.Provider, notes string) (_ *model.EmailRecord, err error) {
	ctx, span := otel.StartSpan(ctx, "tracker.SaveEmail", attribute.String("tracker.domain", rules.NormalizeDomain(domain)))
	defer func() { otel.EndSpan(span, err) }()

	if provider == "" {
		provider = rules.SuggestProvider(email)
	}
	record := model.EmailRecord{
		Domain:    rules.NormalizeDomain(domain),
		Email:     rules.NormalizeEmail(email),
		Provider:  provider,
		DateAdded: model.Timestamp(s.now()),
		Notes:     strings.TrimSpace(notes),
	}

	if err := rules.ValidateRecord(record).Err(); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("Email saved",
		zap.String("domain", record.Domain),
		zap.String("provider", string(record.Provider)),
	)
	s.publish(ctx, model.RoutingKeyRecordSaved, model.RecordEvent{
		Domain:     record.Domain,
		Email:      record.Email,
		Provider:   record.Provider,
		OccurredAt: record.DateAdded,
	})
	return &record, nil
}

// UpdateEmail merges updates into an existing record and stamps lastVerified.
func (s *Service) UpdateEmail(ctx context.Context, domain string, updates model.RecordUpdate) (_ *model.EmailRecord, err error) {
	domain = rules.NormalizeDomain(domain)
	ctx, span := otel.StartSpan(ctx, "tracker.UpdateEmail", attribute.String("tracker.domain", domain))
	defer func() { otel.EndSpan(span, err) }()

	existing, err := s.store.GetByDomain(ctx, domain)
	if err != nil {
		return nil, err
	}

	record := existing.Clone()
	if updates.Email != nil {
		record.Email = rules.NormalizeEmail(*updates.Email)
	}
	if updates.Provider != nil {
		record.Provider = *updates.Provider
	}
	if updates.Notes != nil {
		record.Notes = strings.TrimSpace(*updates.Notes)
	}
	if updates.Tags != nil {
		record.Tags = append([]string(nil), (*updates.Tags)...)
	}
	if updates.LastUsed != nil {
		used := model.Timestamp(*updates.LastUsed)
		record.LastUsed = &used
	}
	verified := model.Timestamp(s.now())
	record.LastVerified = &verified

	if err := rules.ValidateRecord(record).Err(); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, record); err != nil {
		return nil, err
	}
	s.publish(ctx, model.RoutingKeyRecordSaved, model.RecordEvent{
		Domain:     record.Domain,
		Email:      record.Email,
		Provider:   record.Provider,
		OccurredAt: verified,
	})
	return &record, nil
}

func (s *Service) DeleteEmail(ctx context.Context, domain string) error {
	domain = rules.NormalizeDomain(domain)
	if err := s.store.Delete(ctx, domain); err != nil {
		return err
	}
	s.publish(ctx, model.RoutingKeyRecordDeleted, model.RecordEvent{
		Domain:     domain,
		OccurredAt: model.Timestamp(s.now()),
	})
	return nil
}

// GetEmail returns the record for domain, or model.ErrNotFound.
func (s *Service) GetEmail(ctx context.Context, domain string) (*model.EmailRecord, error) {
	return s.store.GetByDomain(ctx, rules.NormalizeDomain(domain))
}

func (s *Service) HasEmail(ctx context.Context, domain string) (bool, error) {
	_, err := s.GetEmail(ctx, domain)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) GetAll(ctx context.Context) ([]model.EmailRecord, error) {
	return s.store.GetAll(ctx)
}

// SearchRecords matches query case-insensitively against domain, email, notes
// and provider. An empty query returns every record.
func (s *Service) SearchRecords(ctx context.Context, query string) ([]model.EmailRecord, error) {
	records, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	// Caser is stateful; one per call
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(query))
	if needle == "" {
		return records, nil
	}

	matched := []model.EmailRecord{}
	for _, rec := range records {
		for _, field := range []string{rec.Domain, rec.Email, rec.Notes, string(rec.Provider)} {
			if strings.Contains(fold.String(field), needle) {
				matched = append(matched, rec)
				break
			}
		}
	}
	return matched, nil
}

// FindDomainsByEmail lists every domain the address was used on.
func (s *Service) FindDomainsByEmail(ctx context.Context, email string) ([]string, error) {
	records, err := s.store.FindByEmail(ctx, rules.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	domains := make([]string, 0, len(records))
	for _, rec := range records {
		domains = append(domains, rec.Domain)
	}
	return domains, nil
}

// MarkAsUsed stamps lastUsed on an existing record; missing domains are a no-op.
func (s *Service) MarkAsUsed(ctx context.Context, domain string) error {
	record, err := s.GetEmail(ctx, domain)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	used := model.Timestamp(s.now())
	record.LastUsed = &used
	return s.store.Save(ctx, *record)
}

func (s *Service) Stats(ctx context.Context) (model.DomainStats, error) {
	return s.store.Stats(ctx)
}

func (s *Service) ExportData(ctx context.Context) (string, error) {
	return s.store.ExportToJSON(ctx)
}

// ImportData loads an export envelope or bare array and returns the number imported.
func (s *Service) ImportData(ctx context.Context, text string) (_ int, err error) {
	ctx, span := otel.StartSpan(ctx, "tracker.ImportData", attribute.Int("tracker.payload_bytes", len(text)))
	defer func() { otel.EndSpan(span, err) }()

	n, err := s.store.ImportFromJSON(ctx, text)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("tracker.imported", n))
	s.logger.Info("Records imported", zap.Int("count", n))
	s.publish(ctx, model.RoutingKeyRecordsImported, model.ImportEvent{
		Count:      n,
		OccurredAt: model.Timestamp(s.now()),
	})
	return n, nil
}

func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear all: %w", err)
	}
	s.logger.Info("All records cleared")
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// publish is best-effort; a broker outage never fails a write that already succeeded.
func (s *Service) publish(ctx context.Context, routingKey string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, routingKey, payload); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}
