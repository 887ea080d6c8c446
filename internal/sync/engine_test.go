package sync

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centsync/centsync/internal/model"
	"github.com/centsync/centsync/internal/remote"
	"github.com/centsync/centsync/internal/store"
	"github.com/centsync/centsync/testutil"
)

const testUser = "user-1"

func newTestEngine(t *testing.T) (*Engine, *mockStore, *testutil.FakeRemote) {
	t.Helper()

	ms := newMockStore()
	fr := testutil.NewFakeRemote()
	engine := NewEngine(ms, fr, testutil.FakeIdentity{UserID: testUser}, testLogger(t))

	return engine, ms, fr
}

func seedRemoteSnapshot(fr *testutil.FakeRemote) {
	fr.Seed(remote.CollectionPath(testUser, colCategories), "c1", map[string]any{
		"name":              "Groceries",
		"isExpenseCategory": true,
		"lastModified":      timeAt(9, 0),
	})
	fr.Seed(remote.CollectionPath(testUser, colAccounts), "a1", map[string]any{
		"name":           "Checking",
		"initialBalance": "1200.00",
		"accountType":    "checking",
		"currency":       "EUR",
		"lastModified":   timeAt(9, 0),
	})
	fr.Seed(remote.CollectionPath(testUser, colBudgets), "b1", map[string]any{
		"amount":       "400",
		"period":       "monthly",
		"startDate":    timeAt(0, 0),
		"isActive":     true,
		"categoryId":   "c1",
		"lastModified": timeAt(9, 0),
	})
	fr.Seed(remote.CollectionPath(testUser, colTransactions), "t1", map[string]any{
		"amount":       "19.90",
		"type":         "expense",
		"date":         timeAt(8, 30),
		"categoryId":   "c1",
		"accountId":    "a1",
		"lastModified": timeAt(9, 0),
	})
	fr.Seed(remote.CollectionPath(testUser, colProfile), testUser, map[string]any{
		"displayName":  "Maija",
		"lastModified": timeAt(9, 0),
	})
}

func TestRunFullSyncNotAuthenticated(t *testing.T) {
	ms := newMockStore()
	fr := testutil.NewFakeRemote()
	engine := NewEngine(ms, fr, testutil.FakeIdentity{}, testLogger(t))

	err := engine.RunFullSync(context.Background())
	require.ErrorIs(t, err, ErrNotAuthenticated)

	state := engine.State()
	assert.False(t, state.IsSyncing)
	assert.Contains(t, state.LastError, "not authenticated")
	assert.Empty(t, fr.ListCalls, "no remote traffic without a signed-in user")
}

func TestRunFullSyncPullsWholeSnapshot(t *testing.T) {
	engine, ms, fr := newTestEngine(t)
	seedRemoteSnapshot(fr)

	require.NoError(t, engine.RunFullSync(context.Background()))

	assert.Len(t, ms.categories, 1)
	assert.Len(t, ms.accounts, 1)
	assert.Len(t, ms.budgets, 1)
	assert.Len(t, ms.transactions, 1)
	assert.Len(t, ms.profiles, 1)

	// Budget and transaction arrived in the same snapshot as their category
	// and account, and still linked.
	assert.Equal(t, "c1", ms.budgets["b1"].CategoryID)
	assert.Equal(t, "c1", ms.transactions["t1"].CategoryID)
	assert.Equal(t, "a1", ms.transactions["t1"].AccountID)

	state := engine.State()
	assert.False(t, state.IsSyncing)
	assert.True(t, state.HasCompletedInitialSync)
	assert.Empty(t, state.LastError)
	assert.Equal(t, 5, state.Stats.Downloaded)
	assert.False(t, state.LastSyncDate.IsZero())
	assert.Equal(t, "Up to date", state.ProgressMessage)
}

func TestRunFullSyncIsIdempotent(t *testing.T) {
	engine, ms, fr := newTestEngine(t)
	seedRemoteSnapshot(fr)

	require.NoError(t, engine.RunFullSync(context.Background()))

	first := engine.State().Stats
	categoriesBefore := ms.categories["c1"]

	require.NoError(t, engine.RunFullSync(context.Background()))

	second := engine.State().Stats
	assert.Equal(t, first.Downloaded, second.Downloaded,
		"a second pass with no intervening mutation downloads nothing new")
	assert.Equal(t, first.ConflictsResolved, second.ConflictsResolved)
	assert.Equal(t, categoriesBefore, ms.categories["c1"])
}

func TestRunFullSyncLastWriterWinsScenario(t *testing.T) {
	// Local T1 lastModified=10:00 amount=100; remote T1 lastModified=10:05
	// amount=150. After sync local T1 is 150 and synced.
	engine, ms, fr := newTestEngine(t)

	ms.transactions["t1"] = model.Transaction{
		ID:           "t1",
		Amount:       decimal.NewFromInt(100),
		Type:         model.TypeExpense,
		LastModified: timeAt(10, 0),
		IsSynced:     true,
	}

	fr.Seed(remote.CollectionPath(testUser, colTransactions), "t1", map[string]any{
		"amount":       "150",
		"type":         "expense",
		"date":         timeAt(8, 0),
		"lastModified": timeAt(10, 5),
	})

	require.NoError(t, engine.RunFullSync(context.Background()))

	got := ms.transactions["t1"]
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(150)))
	assert.True(t, got.IsSynced)
	assert.Equal(t, 1, engine.State().Stats.ConflictsResolved)
}

func TestRunFullSyncAbortsBeforeCommitOnFetchFailure(t *testing.T) {
	engine, ms, fr := newTestEngine(t)
	seedRemoteSnapshot(fr)

	// Categories and accounts fetch fine; transactions fail. Nothing from
	// the earlier merges may persist.
	fr.ListErr = remote.Classify("list", context.DeadlineExceeded)
	fr.FailPath = remote.CollectionPath(testUser, colTransactions)

	err := engine.RunFullSync(context.Background())
	require.Error(t, err)

	assert.Empty(t, ms.categories, "staged merges must be discarded, not committed")
	assert.Empty(t, ms.accounts)
	assert.Equal(t, 1, ms.discards)
	assert.Equal(t, 0, ms.saves, "the atomic save is the last step and must not run")

	state := engine.State()
	assert.False(t, state.IsSyncing)
	assert.NotEmpty(t, state.LastError)
	assert.False(t, state.HasCompletedInitialSync)
	assert.Contains(t, state.ProgressMessage, "retry when back online",
		"transient failures advertise automatic recovery")
}

func TestRunFullSyncPushesUnsynced(t *testing.T) {
	engine, ms, fr := newTestEngine(t)

	ms.categories["c9"] = model.Category{
		ID:           "c9",
		Name:         "Hobbies",
		LastModified: timeAt(10, 0),
		IsSynced:     false,
	}

	require.NoError(t, engine.RunFullSync(context.Background()))

	assert.True(t, ms.categories["c9"].IsSynced, "confirmed upload flips the local flag")

	doc, ok := fr.Doc(remote.CollectionPath(testUser, colCategories), "c9")
	require.True(t, ok)
	assert.Equal(t, "Hobbies", doc.Fields["name"])
	assert.Equal(t, fr.ServerTime, doc.Fields["lastModified"],
		"the remote modification stamp is server-assigned")

	state := engine.State()
	assert.Equal(t, 1, state.Stats.Uploaded)
	assert.Equal(t, 0, state.PendingChanges)
}

func TestUploadFailureLeavesFlagsUntouched(t *testing.T) {
	// Scenario: unsynced C1, no network. Push fails; C1.IsSynced stays false
	// and a retry re-selects exactly the same record.
	engine, ms, fr := newTestEngine(t)

	ms.categories["c1"] = model.Category{
		ID:           "c1",
		Name:         "Food",
		LastModified: timeAt(10, 0),
		IsSynced:     false,
	}

	fr.CommitErr = remote.Classify("commit", context.DeadlineExceeded)

	err := engine.RunFullSync(context.Background())
	require.Error(t, err)

	assert.False(t, ms.categories["c1"].IsSynced)
	assert.Empty(t, fr.Commits)
	assert.NotEmpty(t, engine.State().LastError)

	// Network back: the retry uploads the identical set.
	fr.CommitErr = nil
	require.NoError(t, engine.RunFullSync(context.Background()))

	require.Len(t, fr.Commits, 1)
	require.Len(t, fr.Commits[0], 1)
	assert.Equal(t, "c1", fr.Commits[0][0].ID)
	assert.True(t, ms.categories["c1"].IsSynced)
}

func TestForceFullResyncClearsInitialSyncFlag(t *testing.T) {
	engine, _, fr := newTestEngine(t)
	seedRemoteSnapshot(fr)

	require.NoError(t, engine.RunFullSync(context.Background()))
	require.True(t, engine.State().HasCompletedInitialSync)

	require.NoError(t, engine.ForceFullResync(context.Background()))
	assert.True(t, engine.State().HasCompletedInitialSync,
		"flag is cleared for the duration of the forced pass and set again on success")
}

func TestDeletePropagatesDirectly(t *testing.T) {
	engine, ms, fr := newTestEngine(t)

	ms.transactions["t1"] = model.Transaction{ID: "t1", LastModified: timeAt(9, 0), IsSynced: true}
	fr.Seed(remote.CollectionPath(testUser, colTransactions), "t1", map[string]any{"amount": "5"})

	require.NoError(t, engine.Delete(context.Background(), store.KindTransaction, "t1"))

	assert.NotContains(t, ms.transactions, "t1")

	_, ok := fr.Doc(remote.CollectionPath(testUser, colTransactions), "t1")
	assert.False(t, ok, "deletions propagate via a direct remote delete, not the upload queue")
}

func TestDeleteRequiresIdentity(t *testing.T) {
	ms := newMockStore()
	engine := NewEngine(ms, testutil.NewFakeRemote(), testutil.FakeIdentity{}, testLogger(t))

	err := engine.Delete(context.Background(), store.KindTransaction, "t1")
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

// blockingRemote delegates to a FakeRemote but parks the first List call
// until released, letting the test observe the single-flight guard.
type blockingRemote struct {
	*testutil.FakeRemote

	entered chan struct{}
	release chan struct{}
	blocked bool
}

func (b *blockingRemote) List(ctx context.Context, path string) ([]remote.Document, error) {
	if !b.blocked {
		b.blocked = true
		close(b.entered)
		<-b.release
	}

	return b.FakeRemote.List(ctx, path)
}

func TestConcurrentTriggersCoalesce(t *testing.T) {
	ms := newMockStore()
	br := &blockingRemote{
		FakeRemote: testutil.NewFakeRemote(),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	engine := NewEngine(ms, br, testutil.FakeIdentity{UserID: testUser}, testLogger(t))

	firstDone := make(chan error, 1)

	go func() {
		firstDone <- engine.RunFullSync(context.Background())
	}()

	select {
	case <-br.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first pass never reached the remote store")
	}

	err := engine.RunFullSync(context.Background())
	require.ErrorIs(t, err, ErrSyncInProgress, "a trigger during a running pass is a coalesced no-op")

	close(br.release)
	require.NoError(t, <-firstDone)

	// The guard is released: a later pass runs normally.
	require.NoError(t, engine.RunFullSync(context.Background()))
}

func TestWatchSyncsOnConnectivityRestored(t *testing.T) {
	engine, ms, fr := newTestEngine(t)
	seedRemoteSnapshot(fr)

	conn := testutil.NewFakeConnectivity(false)
	localEvents := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchDone := make(chan error, 1)

	go func() {
		watchDone <- engine.Watch(ctx, conn, localEvents)
	}()

	// Offline at startup: no pass runs.
	conn.SetReachable(true)

	require.Eventually(t, func() bool {
		ms.mu.Lock()
		defer ms.mu.Unlock()

		return len(ms.categories) == 1
	}, 5*time.Second, 10*time.Millisecond, "reachable transition must trigger a pass")

	cancel()
	require.NoError(t, <-watchDone)
}
