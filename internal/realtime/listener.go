package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexiath/sovera/pkg/logger"
)

// ChannelForProject is the NOTIFY channel carrying a project's change events.
func ChannelForProject(projectID int64) string {
	return fmt.Sprintf("table_changes_%d", projectID)
}

// notifyPayload is the wire form of a change event on the NOTIFY channel.
type notifyPayload struct {
	Table     string         `json:"table"`
	Op        string         `json:"op"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Listener bridges Postgres NOTIFY channels to the hub. One LISTEN session
// runs per project while the project has subscribers; sessions stop when the
// audience drains. It implements the hub's Lifecycle.
type Listener struct {
	pool   *pgxpool.Pool
	hub    *Hub
	logger *logger.Logger

	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
}

// NewListener creates a listener over the platform pool and installs it as
// the hub's lifecycle.
func NewListener(pool *pgxpool.Pool, hub *Hub, log *logger.Logger) *Listener {
	l := &Listener{
		pool:    pool,
		hub:     hub,
		logger:  log,
		cancels: make(map[int64]context.CancelFunc),
	}
	hub.SetLifecycle(l)
	return l
}

// ProjectActive starts the LISTEN session for a project.
func (l *Listener) ProjectActive(projectID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, running := l.cancels[projectID]; running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancels[projectID] = cancel
	go l.listen(ctx, projectID)
}

// ProjectIdle stops the LISTEN session for a project.
func (l *Listener) ProjectIdle(projectID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cancel, running := l.cancels[projectID]; running {
		cancel()
		delete(l.cancels, projectID)
	}
}

// Stop terminates every LISTEN session.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for projectID, cancel := range l.cancels {
		cancel()
		delete(l.cancels, projectID)
	}
}

// listen holds a dedicated connection and forwards notifications to the
// hub until the context is cancelled. Connection failures retry with a
// short backoff so a database restart does not strand subscribers.
func (l *Listener) listen(ctx context.Context, projectID int64) {
	channel := ChannelForProject(projectID)

	for {
		if err := l.listenOnce(ctx, projectID, channel); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warnf("LISTEN session for %s failed, retrying: %v", channel, err)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		return
	}
}

func (l *Listener) listenOnce(ctx context.Context, projectID int64, channel string) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	defer conn.Release()

	// Channel names are derived from numeric ids, quoting keeps them safe.
	if _, err := conn.Exec(ctx, fmt.Sprintf(`LISTEN %q`, channel)); err != nil {
		return fmt.Errorf("failed to LISTEN on %s: %w", channel, err)
	}
	l.logger.Infof("Listening on channel %s", channel)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("notification wait failed: %w", err)
		}

		var payload notifyPayload
		if err := json.Unmarshal([]byte(notification.Payload), &payload); err != nil {
			l.logger.Warnf("Discarding malformed notification on %s: %v", channel, err)
			continue
		}

		l.hub.Publish(projectID, Event{
			Type:      "table_" + payload.Op,
			TableName: payload.Table,
			Data:      payload.Data,
			Timestamp: payload.Timestamp,
		})
	}
}
