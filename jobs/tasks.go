package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReferenceRefresh reloads the emission factor cache.
	TaskReferenceRefresh = "reference:refresh"
	// TaskQualityScan inspects ingested emissions records for anomalies.
	TaskQualityScan = "emissions:quality_scan"
)

// ReferenceRefreshPayload parameterises a factor cache refresh.
type ReferenceRefreshPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewReferenceRefreshTask constructs an Asynq task.
func NewReferenceRefreshTask(payload ReferenceRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReferenceRefresh, data), nil
}

// QualityScanPayload parameterises the emissions quality scan.
type QualityScanPayload struct {
	// WindowYears bounds how far back the scan reaches. Defaults to 5.
	WindowYears int `json:"window_years"`
	// Z is the deviation threshold in standard deviations. Defaults to 2.5.
	Z float64 `json:"z"`
}

// NewQualityScanTask constructs an Asynq task.
func NewQualityScanTask(payload QualityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQualityScan, data), nil
}
