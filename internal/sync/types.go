// Package sync implements the bidirectional synchronization engine: pulling
// remote records and merging them into the local store with last-writer-wins
// conflict resolution, pushing locally modified records in atomic batches,
// and tracking observable sync state for the UI layer.
package sync

import (
	"context"
	"errors"

	"github.com/centsync/centsync/internal/model"
	"github.com/centsync/centsync/internal/remote"
	"github.com/centsync/centsync/internal/store"
)

// Remote collection names under users/{userID}/.
const (
	colCategories   = "categories"
	colAccounts     = "accounts"
	colBudgets      = "budgets"
	colTransactions = "transactions"
	colProfile      = "profile"
)

// Sentinel errors surfaced by the engine.
var (
	// ErrNotAuthenticated is returned when no user is signed in. Not retried
	// automatically — the next trigger after sign-in starts fresh.
	ErrNotAuthenticated = errors.New("sync: not authenticated")

	// ErrSyncInProgress is returned when a trigger arrives while a pass is
	// already running. The caller treats it as a no-op, not a failure.
	ErrSyncInProgress = errors.New("sync: already in progress")
)

// LocalStore is the slice of the local durable store the engine needs.
// Implemented by *store.Store; tests use fakes.
type LocalStore interface {
	Categories(ctx context.Context) ([]model.Category, error)
	Accounts(ctx context.Context) ([]model.Account, error)
	Budgets(ctx context.Context) ([]model.Budget, error)
	Transactions(ctx context.Context) ([]model.Transaction, error)
	Profile(ctx context.Context, userID string) (*model.UserProfile, error)

	UnsyncedCategories(ctx context.Context) ([]model.Category, error)
	UnsyncedAccounts(ctx context.Context) ([]model.Account, error)
	UnsyncedBudgets(ctx context.Context) ([]model.Budget, error)
	UnsyncedTransactions(ctx context.Context) ([]model.Transaction, error)
	CountUnsynced(ctx context.Context) (int, error)

	StageUpsertCategory(model.Category)
	StageUpsertAccount(model.Account)
	StageUpsertBudget(model.Budget)
	StageUpsertTransaction(model.Transaction)
	StageUpsertProfile(model.UserProfile)
	StageMarkSynced(kind store.Kind, id string)

	Save(ctx context.Context) error
	Discard()
	Delete(ctx context.Context, kind store.Kind, id string) error
}

// RemoteStore is the slice of the cloud document store the engine needs.
// Implemented by *remote.FirestoreStore; tests use fakes.
type RemoteStore interface {
	List(ctx context.Context, path string) ([]remote.Document, error)
	ListOrdered(ctx context.Context, path, orderBy string, desc bool) ([]remote.Document, error)
	Set(ctx context.Context, path, id string, fields map[string]any) error
	Delete(ctx context.Context, path, id string) error
	Commit(ctx context.Context, writes []remote.Write) error
}

// Identity supplies the signed-in user id. Sync is a no-op without one.
type Identity interface {
	CurrentUserID() (string, bool)
}

// Connectivity reports network reachability. The engine subscribes to
// transition events rather than polling.
type Connectivity interface {
	Reachable() bool
	Changes() <-chan bool
}

// MergeCounts aggregates the outcome of one entity-type merge.
type MergeCounts struct {
	Inserted  int
	Updated   int
	Unchanged int
	Skipped   int // undecodable remote records, logged and passed over
}

func (c MergeCounts) add(o MergeCounts) MergeCounts {
	return MergeCounts{
		Inserted:  c.Inserted + o.Inserted,
		Updated:   c.Updated + o.Updated,
		Unchanged: c.Unchanged + o.Unchanged,
		Skipped:   c.Skipped + o.Skipped,
	}
}
