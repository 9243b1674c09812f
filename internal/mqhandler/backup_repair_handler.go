package mqhandler

import (
	"context"
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"emailtracker/internal/model"
	"emailtracker/pkg/logger"
	"emailtracker/pkg/metrics"
	"emailtracker/pkg/util"
)

const repairHandlerName = "backup_repair"

type BackupRepairer interface {
	RepairBackup(ctx context.Context, domain string) error
}

type Deduper interface {
	AcquireOnce(ctx context.Context, handler, id string) bool
	Release(ctx context.Context, handler, id string)
}

type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, reason string) error
}

// BackupRepairHandler re-mirrors one domain from the primary store into the
// backup store for each email.backup.repair event.
type BackupRepairHandler struct {
	repairer    BackupRepairer
	deduper     Deduper
	retries     RetryCounter
	dlq         DeadLetterPublisher
	maxAttempts int64
	logger      *zap.Logger
}

func NewBackupRepairHandler(
	repairer BackupRepairer,
	deduper Deduper,
	retries RetryCounter,
	dlq DeadLetterPublisher,
	maxAttempts int64,
	logger *zap.Logger,
) *BackupRepairHandler {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &BackupRepairHandler{
		repairer:    repairer,
		deduper:     deduper,
		retries:     retries,
		dlq:         dlq,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// HandleBackupRepair returns an error only when the delivery should be requeued.
func (h *BackupRepairHandler) HandleBackupRepair(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var evt model.BackupRepairEvent
	if err := json.Unmarshal(raw, &evt); err != nil || evt.Domain == "" {
		// 格式错误不可重试，直接 ack
		log.Error("Invalid backup repair payload (non-retryable)", zap.Error(err))
		metrics.RecordBackupRepair("skipped")
		return nil
	}
	log = log.With(zap.String("domain", evt.Domain), zap.String("operation", evt.Operation))

	id := evt.Domain + ":" + strconv.FormatInt(evt.RequestedAt.UnixMilli(), 10)
	if !h.deduper.AcquireOnce(ctx, repairHandlerName, id) {
		metrics.RecordBackupRepair("skipped")
		return nil
	}

	retryKey := util.FormatRetryKey(repairHandlerName, evt.Domain)
	err := h.repairer.RepairBackup(ctx, evt.Domain)
	if err == nil {
		if err := h.retries.Reset(ctx, retryKey); err != nil {
			log.Warn("Failed to reset retry counter", zap.Error(err))
		}
		metrics.RecordBackupRepair("repaired")
		log.Info("Backup repaired")
		return nil
	}

	retryable, errType := util.IsRetryableError(err)
	attempt, countErr := h.retries.IncrementAndGet(ctx, retryKey)
	if countErr != nil {
		// 计数不可用时无法限制重试次数，直接进入 DLQ
		log.Warn("Failed to count repair attempt, giving up", zap.Error(countErr))
		attempt = h.maxAttempts
	}
	log = log.With(
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Int64("attempt", attempt),
		zap.Error(err),
	)

	if util.ShouldRetry(attempt, h.maxAttempts, retryable) {
		// 释放去重键，重新入队的消息才会被再次处理
		h.deduper.Release(ctx, repairHandlerName, id)
		metrics.RecordBackupRepair("failed")
		log.Warn("Backup repair failed, requeueing")
		return err
	}

	if dlqErr := h.dlq.PublishToDLQ(ctx, model.RoutingKeyBackupRepair, raw, err.Error()); dlqErr != nil {
		log.Error("Failed to park repair event in DLQ", zap.NamedError("dlq_error", dlqErr))
	}
	metrics.RecordBackupRepair("gave_up")
	log.Error("Backup repair gave up")
	return nil
}
