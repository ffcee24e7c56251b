package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NotifySink publishes change events through Postgres NOTIFY. Routing events
// through the database means every replica's listener sees them, not just
// the one that handled the mutation.
type NotifySink struct {
	pool *pgxpool.Pool
}

// NewNotifySink creates a sink over the platform pool.
func NewNotifySink(pool *pgxpool.Pool) *NotifySink {
	return &NotifySink{pool: pool}
}

// EmitChange implements rows.EventSink.
func (s *NotifySink) EmitChange(ctx context.Context, projectID int64, table, op string, data map[string]any) error {
	payload, err := json.Marshal(notifyPayload{
		Table:     table,
		Op:        op,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}

	_, err = s.pool.Exec(ctx, "SELECT pg_notify($1, $2)",
		ChannelForProject(projectID), string(payload))
	if err != nil {
		return fmt.Errorf("failed to notify change event: %w", err)
	}
	return nil
}
