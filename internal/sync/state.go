package sync

import (
	gosync "sync"
	"time"
)

// Stats counts record-level sync outcomes across the engine's lifetime.
type Stats struct {
	Uploaded          int `json:"uploaded"`
	Downloaded        int `json:"downloaded"`
	ConflictsResolved int `json:"conflicts_resolved"`
	Errors            int `json:"errors"`
}

// State is the observable sync state consumed by the UI layer. Observers
// receive value copies; the engine is the only writer.
type State struct {
	IsSyncing               bool      `json:"is_syncing"`
	HasCompletedInitialSync bool      `json:"has_completed_initial_sync"`
	LastError               string    `json:"last_error,omitempty"`
	ProgressMessage         string    `json:"progress_message"`
	LastSyncDate            time.Time `json:"last_sync_date,omitzero"`
	PendingChanges          int       `json:"pending_changes"`
	Stats                   Stats     `json:"statistics"`
}

// stateTracker guards the observable state and fans out snapshots to
// subscribers. Notification sends are non-blocking: a slow subscriber misses
// intermediate snapshots but always receives a later, newer one.
type stateTracker struct {
	mu     gosync.Mutex
	state  State
	subs   map[int]chan State
	nextID int
}

func newStateTracker() *stateTracker {
	return &stateTracker{subs: make(map[int]chan State)}
}

// Snapshot returns a copy of the current state.
func (t *stateTracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// update applies fn to the state under the lock and notifies subscribers.
func (t *stateTracker) update(fn func(*State)) {
	t.mu.Lock()

	fn(&t.state)
	snapshot := t.state

	channels := make([]chan State, 0, len(t.subs))
	for _, ch := range t.subs {
		channels = append(channels, ch)
	}

	t.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- snapshot:
		default:
			// Drop the stale snapshot and replace it with the current one so
			// the subscriber's next receive is never outdated.
			select {
			case <-ch:
			default:
			}

			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

// Subscribe registers a state observer. The returned cancel function must be
// called to release the channel.
func (t *stateTracker) Subscribe() (<-chan State, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++

	ch := make(chan State, 1)
	t.subs[id] = ch

	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		delete(t.subs, id)
	}
}
