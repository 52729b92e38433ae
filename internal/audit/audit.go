// Package audit persists a trail of access-control mutations.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is a single audit trail entry.
type Event struct {
	ID       string         `json:"id"`
	ActorID  int64          `json:"actorId"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entityId"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// Recorder accepts audit events. Implementations must not fail the
// surrounding mutation: recording is best effort at the call site.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// Writer persists events into audit_logs.
type Writer struct {
	pool *pgxpool.Pool
}

// NewWriter returns a new Writer.
func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// Write stores the event.
func (w *Writer) Write(ctx context.Context, event Event) error {
	if w == nil {
		return errors.New("audit writer not initialised")
	}
	if event.Action == "" || event.Entity == "" {
		return errors.New("audit event requires action and entity")
	}
	metaJSON, err := json.Marshal(event.Meta)
	if err != nil {
		return err
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	_, err = w.pool.Exec(ctx, `
		INSERT INTO audit_logs (event_id, actor_id, action, entity, entity_id, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING`,
		event.ID, event.ActorID, event.Action, event.Entity, event.EntityID, metaJSON, event.At)
	return err
}
