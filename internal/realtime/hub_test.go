package realtime

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexiath/sovera/pkg/logger"
)

type fakeSubscriber struct {
	mu     sync.Mutex
	events []Event
	fail   bool
	closed bool
}

func (f *fakeSubscriber) Send(event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("send failed")
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSubscriber) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSubscriber) received() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

type fakeLifecycle struct {
	mu     sync.Mutex
	active []int64
	idle   []int64
}

func (f *fakeLifecycle) ProjectActive(projectID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = append(f.active, projectID)
}

func (f *fakeLifecycle) ProjectIdle(projectID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idle = append(f.idle, projectID)
}

func testHub() *Hub {
	return NewHub(logger.New("realtime-test", "dev"))
}

func TestHubPublishRouting(t *testing.T) {
	hub := testHub()

	tasks := &fakeSubscriber{}
	other := &fakeSubscriber{}
	wildcard := &fakeSubscriber{}
	elsewhere := &fakeSubscriber{}

	hub.Register(1, "tasks", tasks)
	hub.Register(1, "notes", other)
	hub.Register(1, TableWildcard, wildcard)
	hub.Register(2, "tasks", elsewhere)

	hub.Publish(1, Event{Type: "table_insert", TableName: "tasks"})

	assert.Len(t, tasks.received(), 1)
	assert.Empty(t, other.received(), "different table must not receive the event")
	assert.Len(t, wildcard.received(), 1, "wildcard subscription receives every table")
	assert.Empty(t, elsewhere.received(), "different project must not receive the event")
}

func TestHubFailedSubscriberIsDropped(t *testing.T) {
	hub := testHub()

	healthy := &fakeSubscriber{}
	broken := &fakeSubscriber{fail: true}

	hub.Register(1, "tasks", healthy)
	hub.Register(1, "tasks", broken)

	hub.Publish(1, Event{Type: "table_insert", TableName: "tasks"})

	assert.Len(t, healthy.received(), 1, "one bad connection must not block the rest")
	assert.True(t, broken.closed)
	assert.Equal(t, map[string]int{"tasks": 1}, hub.Stats(1))

	// The dropped subscriber stays gone on the next publish.
	hub.Publish(1, Event{Type: "table_update", TableName: "tasks"})
	assert.Len(t, healthy.received(), 2)
}

func TestHubLifecycleTransitions(t *testing.T) {
	hub := testHub()
	lc := &fakeLifecycle{}
	hub.SetLifecycle(lc)

	a := &fakeSubscriber{}
	b := &fakeSubscriber{}

	hub.Register(7, "tasks", a)
	require.Equal(t, []int64{7}, lc.active, "first subscriber activates the project")

	hub.Register(7, "notes", b)
	assert.Equal(t, []int64{7}, lc.active, "second subscriber does not reactivate")

	hub.Unregister(a)
	assert.Empty(t, lc.idle, "project stays active while subscribers remain")

	hub.Unregister(b)
	assert.Equal(t, []int64{7}, lc.idle, "last subscriber idles the project")
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestHubUnregisterUnknownSubscriber(t *testing.T) {
	hub := testHub()
	// Unregistering a subscriber that was never registered is a no-op.
	hub.Unregister(&fakeSubscriber{})
	assert.Empty(t, hub.Stats(1))
}

func TestHubCloseAll(t *testing.T) {
	hub := testHub()
	a := &fakeSubscriber{}
	b := &fakeSubscriber{}
	hub.Register(1, "tasks", a)
	hub.Register(2, "tasks", b)

	hub.CloseAll()

	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.Empty(t, hub.Stats(1))
	assert.Empty(t, hub.Stats(2))
}
