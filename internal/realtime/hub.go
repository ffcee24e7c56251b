package realtime

import (
	"sync"
	"time"

	"github.com/nexiath/sovera/pkg/logger"
)

// TableWildcard subscribes a client to every table of a project.
const TableWildcard = "*"

// Event is one change notification delivered to subscribers.
type Event struct {
	Type      string         `json:"type"`
	TableName string         `json:"table_name"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Subscriber receives events for one (project, table) subscription. Send
// must be safe for concurrent use.
type Subscriber interface {
	Send(event Event) error
	Close()
}

// Lifecycle is notified when a project gains its first subscriber and when
// it loses its last one. The listener uses this to scope LISTEN sessions to
// projects that actually have an audience.
type Lifecycle interface {
	ProjectActive(projectID int64)
	ProjectIdle(projectID int64)
}

type subscription struct {
	projectID int64
	table     string
}

// Hub routes change events to websocket subscribers, keyed by project and
// table.
type Hub struct {
	mu        sync.RWMutex
	subs      map[int64]map[string]map[Subscriber]struct{}
	index     map[Subscriber]subscription
	lifecycle Lifecycle
	logger    *logger.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		subs:   make(map[int64]map[string]map[Subscriber]struct{}),
		index:  make(map[Subscriber]subscription),
		logger: log,
	}
}

// SetLifecycle installs the lifecycle callbacks. Must be called before the
// first Register.
func (h *Hub) SetLifecycle(lc Lifecycle) {
	h.lifecycle = lc
}

// Register adds a subscriber for a table of a project. Use TableWildcard to
// receive events for every table.
func (h *Hub) Register(projectID int64, table string, sub Subscriber) {
	h.mu.Lock()
	tables, ok := h.subs[projectID]
	if !ok {
		tables = make(map[string]map[Subscriber]struct{})
		h.subs[projectID] = tables
	}
	set, ok := tables[table]
	if !ok {
		set = make(map[Subscriber]struct{})
		tables[table] = set
	}
	set[sub] = struct{}{}
	h.index[sub] = subscription{projectID: projectID, table: table}
	first := !ok && len(tables) == 1 && len(set) == 1
	h.mu.Unlock()

	if first && h.lifecycle != nil {
		h.lifecycle.ProjectActive(projectID)
	}
	h.logger.Debugf("Subscriber joined project %d table %s", projectID, table)
}

// Unregister removes a subscriber and closes it. Removing the last
// subscriber of a project signals the lifecycle.
func (h *Hub) Unregister(sub Subscriber) {
	h.mu.Lock()
	entry, ok := h.index[sub]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.index, sub)

	last := false
	if tables, ok := h.subs[entry.projectID]; ok {
		if set, ok := tables[entry.table]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(tables, entry.table)
			}
		}
		if len(tables) == 0 {
			delete(h.subs, entry.projectID)
			last = true
		}
	}
	h.mu.Unlock()

	sub.Close()
	if last && h.lifecycle != nil {
		h.lifecycle.ProjectIdle(entry.projectID)
	}
	h.logger.Debugf("Subscriber left project %d table %s", entry.projectID, entry.table)
}

// Publish delivers an event to the table's subscribers and to the project's
// wildcard subscribers. A subscriber whose send fails is dropped; one slow
// or dead connection never blocks the rest.
func (h *Hub) Publish(projectID int64, event Event) {
	h.mu.RLock()
	var targets []Subscriber
	if tables, ok := h.subs[projectID]; ok {
		for sub := range tables[event.TableName] {
			targets = append(targets, sub)
		}
		for sub := range tables[TableWildcard] {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	var failed []Subscriber
	for _, sub := range targets {
		if err := sub.Send(event); err != nil {
			h.logger.Warnf("Dropping subscriber of project %d: %v", projectID, err)
			failed = append(failed, sub)
		}
	}
	for _, sub := range failed {
		h.Unregister(sub)
	}
}

// Stats reports the subscriber count per table for a project.
func (h *Hub) Stats(projectID int64) map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := make(map[string]int)
	for table, set := range h.subs[projectID] {
		stats[table] = len(set)
	}
	return stats
}

// CloseAll unregisters and closes every subscriber.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	subs := make([]Subscriber, 0, len(h.index))
	for sub := range h.index {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		h.Unregister(sub)
	}
}
