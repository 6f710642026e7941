package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPartnerStats recomputes customer and supplier rollups.
	TaskPartnerStats = "reconcile:partner-stats"
	// TaskDriftScan compares expected against posted payable balances.
	TaskDriftScan = "reconcile:drift-scan"
)

// ReconcilePayload scopes a reconciliation run. TenantID 0 means every
// tenant with data. RunID correlates the log lines of one run.
type ReconcilePayload struct {
	TenantID int64  `json:"tenant_id"`
	RunID    string `json:"run_id"`
}

// NewPartnerStatsTask constructs a partner-stats recomputation task.
func NewPartnerStatsTask(payload ReconcilePayload) (*asynq.Task, error) {
	if payload.RunID == "" {
		payload.RunID = uuid.NewString()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPartnerStats, body, asynq.Queue(QueueDefault)), nil
}

// NewDriftScanTask constructs a payable drift scan task.
func NewDriftScanTask(payload ReconcilePayload) (*asynq.Task, error) {
	if payload.RunID == "" {
		payload.RunID = uuid.NewString()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDriftScan, body, asynq.Queue(QueueDefault)), nil
}
