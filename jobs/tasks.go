package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/carelink-hms/carelink/internal/audit"
	"github.com/carelink-hms/carelink/internal/auth"
	jobmetrics "github.com/carelink-hms/carelink/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeAuditRecord is the task type for persisting audit events.
	TaskTypeAuditRecord = "audit:record"
	// TaskTypeSessionSweep is the task type for purging expired sessions.
	TaskTypeSessionSweep = "session:sweep"
)

// AuditRecordPayload carries one audit event through the queue.
type AuditRecordPayload struct {
	At       time.Time `json:"at"`
	Actor    string    `json:"actor"`
	Action   string    `json:"action"`
	Entity   string    `json:"entity"`
	EntityID int64     `json:"entity_id"`
	Detail   string    `json:"detail,omitempty"`
}

// NewAuditRecordTask constructs an Asynq task.
func NewAuditRecordTask(payload AuditRecordPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditRecord, data), nil
}

// NewAuditRecordHandler processes TaskTypeAuditRecord tasks.
func NewAuditRecordHandler(svc *audit.Service, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("audit_record")
		var payload AuditRecordPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		err := svc.Record(ctx, audit.Event{
			At:       payload.At,
			Actor:    payload.Actor,
			Action:   payload.Action,
			Entity:   payload.Entity,
			EntityID: payload.EntityID,
			Detail:   payload.Detail,
		})
		if err != nil {
			logger.Error("audit record job", slog.Any("error", err))
		}
		return tracker.End(err)
	}
}

// NewSessionSweepTask constructs an Asynq task with an empty payload.
func NewSessionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSessionSweep, nil)
}

// NewSessionSweepHandler processes TaskTypeSessionSweep tasks.
func NewSessionSweepHandler(svc *auth.Service, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("session_sweep")
		removed, err := svc.SweepExpiredSessions(ctx)
		if err != nil {
			logger.Error("session sweep job", slog.Any("error", err))
			return tracker.End(err)
		}
		if removed > 0 {
			logger.Info("session sweep", slog.Int64("removed", removed))
		}
		return tracker.End(nil)
	}
}
