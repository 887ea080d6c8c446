package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTrackerSnapshotIsCopy(t *testing.T) {
	tracker := newStateTracker()

	tracker.update(func(s *State) {
		s.ProgressMessage = "Syncing…"
		s.Stats.Downloaded = 3
	})

	snap := tracker.Snapshot()
	snap.Stats.Downloaded = 99

	assert.Equal(t, 3, tracker.Snapshot().Stats.Downloaded, "observers get value copies, never shared state")
}

func TestStateTrackerNotifiesSubscribers(t *testing.T) {
	tracker := newStateTracker()

	ch, cancel := tracker.Subscribe()
	defer cancel()

	tracker.update(func(s *State) { s.IsSyncing = true })

	got := <-ch
	assert.True(t, got.IsSyncing)
}

func TestStateTrackerDropsStaleSnapshots(t *testing.T) {
	// A slow subscriber misses intermediate snapshots but the buffered value
	// is always the newest.
	tracker := newStateTracker()

	ch, cancel := tracker.Subscribe()
	defer cancel()

	tracker.update(func(s *State) { s.Stats.Downloaded = 1 })
	tracker.update(func(s *State) { s.Stats.Downloaded = 2 })
	tracker.update(func(s *State) { s.Stats.Downloaded = 3 })

	got := <-ch
	assert.Equal(t, 3, got.Stats.Downloaded)
}

func TestStateTrackerCancelStopsDelivery(t *testing.T) {
	tracker := newStateTracker()

	ch, cancel := tracker.Subscribe()
	cancel()

	tracker.update(func(s *State) { s.IsSyncing = true })

	select {
	case _, open := <-ch:
		require.False(t, open, "nothing should arrive after cancel")
	default:
	}
}
