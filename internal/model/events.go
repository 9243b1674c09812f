package model

import "time"

// Routing keys published on the events exchange.
const (
	RoutingKeyRecordSaved     = "email.record.saved"
	RoutingKeyRecordDeleted   = "email.record.deleted"
	RoutingKeyRecordsImported = "email.records.imported"
	RoutingKeyBackupRepair    = "email.backup.repair"
)

type RecordEvent struct {
	Domain     string    `json:"domain"`
	Email      string    `json:"email,omitempty"`
	Provider   Provider  `json:"provider,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type ImportEvent struct {
	Count      int       `json:"count"`
	OccurredAt time.Time `json:"occurredAt"`
}

// BackupRepairEvent asks the worker to re-mirror one domain.
type BackupRepairEvent struct {
	Domain      string    `json:"domain"`
	Operation   string    `json:"operation"`
	RequestedAt time.Time `json:"requestedAt"`
}
