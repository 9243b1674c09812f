package mqhandler

import (
	"context"
	"time"

	"emailtracker/internal/model"
)

// EventPublisher is satisfied by *mq.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// RepairRequester turns a failed backup mirror into an email.backup.repair event.
type RepairRequester struct {
	publisher EventPublisher
	now       func() time.Time
}

func NewRepairRequester(publisher EventPublisher) *RepairRequester {
	return &RepairRequester{publisher: publisher, now: time.Now}
}

func (r *RepairRequester) RequestBackupRepair(ctx context.Context, domain, operation string) error {
	return r.publisher.Publish(ctx, model.RoutingKeyBackupRepair, model.BackupRepairEvent{
		Domain:      domain,
		Operation:   operation,
		RequestedAt: r.now().UTC(),
	})
}
