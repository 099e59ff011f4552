package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeIntegrityScan verifies quantity invariants across documents.
	TaskTypeIntegrityScan = "reconcile:integrity"
	// TaskTypeSnapshotWarmup pre-populates remaining-quantity snapshots.
	TaskTypeSnapshotWarmup = "reconcile:warmup"
)

// IntegrityScanPayload bounds the scan to recently touched orders.
type IntegrityScanPayload struct {
	LookbackDays int `json:"lookbackDays"`
	OrderLimit   int `json:"orderLimit"`
}

// NewIntegrityScanTask constructs an Asynq task for the integrity scan.
func NewIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeIntegrityScan, data), nil
}

// SnapshotWarmupPayload bounds the warmup to the most recent open orders.
type SnapshotWarmupPayload struct {
	OrderLimit int `json:"orderLimit"`
}

// NewSnapshotWarmupTask constructs an Asynq task for snapshot warmup.
func NewSnapshotWarmupTask(payload SnapshotWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSnapshotWarmup, data), nil
}
