package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/carelink-hms/carelink/internal/authz"
)

// Recorder ships assignment mutations to the audit queue. Enqueue failures
// are logged and swallowed so that the mutation itself never fails.
type Recorder struct {
	client *Client
	logger *slog.Logger
}

// NewRecorder constructs a Recorder instance.
func NewRecorder(client *Client, logger *slog.Logger) *Recorder {
	return &Recorder{client: client, logger: logger}
}

var _ authz.AuditRecorder = (*Recorder)(nil)

// Record enqueues one audit event.
func (r *Recorder) Record(ctx context.Context, entry authz.AuditEntry) {
	if r == nil || r.client == nil {
		return
	}
	_, err := r.client.EnqueueAuditRecord(ctx, AuditRecordPayload{
		At:       time.Now().UTC(),
		Actor:    entry.Actor,
		Action:   entry.Action,
		Entity:   entry.Entity,
		EntityID: entry.EntityID,
		Detail:   entry.Detail,
	})
	if err != nil {
		r.logger.Warn("audit enqueue", slog.String("action", entry.Action), slog.Any("error", err))
	}
}
