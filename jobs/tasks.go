package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBOMIntegrityScan validates every root assembly and stores the report.
	TaskBOMIntegrityScan = "bom:integrity_scan"
)

// Scan triggers recorded in task payloads.
const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

const bomScanTimeout = 10 * time.Minute

// BOMIntegrityScanPayload describes who requested the scan.
type BOMIntegrityScanPayload struct {
	Trigger string `json:"trigger"`
}

// NewBOMIntegrityScanTask constructs an Asynq task.
func NewBOMIntegrityScanTask(payload BOMIntegrityScanPayload) (*asynq.Task, error) {
	if payload.Trigger == "" {
		payload.Trigger = TriggerManual
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBOMIntegrityScan, data, asynq.Timeout(bomScanTimeout), asynq.MaxRetry(3)), nil
}
