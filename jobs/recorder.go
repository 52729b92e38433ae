package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/beaconhq/beacon/internal/audit"
)

// AuditRecorder enqueues audit events for the background worker.
// Enqueue failures are logged, never surfaced: the audit trail must not
// fail the mutation that produced it.
type AuditRecorder struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewAuditRecorder constructs an AuditRecorder.
func NewAuditRecorder(client *asynq.Client, logger *slog.Logger) *AuditRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRecorder{client: client, logger: logger}
}

// Record enqueues the event.
func (r *AuditRecorder) Record(ctx context.Context, event audit.Event) {
	if r == nil || r.client == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	task, err := NewAuditRecordTask(event)
	if err != nil {
		r.logger.Error("marshal audit event", slog.Any("error", err))
		return
	}
	if _, err := r.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		r.logger.Error("enqueue audit event", slog.Any("error", err))
	}
}
