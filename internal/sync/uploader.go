package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/centsync/centsync/internal/remote"
	"github.com/centsync/centsync/internal/store"
)

// uploader pushes locally-modified-but-unsynced records to the remote store
// in a single atomic batch. Either every staged document is durably written
// and the corresponding local rows marked synced, or none are — a retry
// re-selects exactly the same still-unsynced set.
type uploader struct {
	local  LocalStore
	remote RemoteStore
	logger *slog.Logger
}

// pendingWrite pairs a remote write with the local row to flip on success.
type pendingWrite struct {
	write remote.Write
	kind  store.Kind
	id    string
}

// push uploads all unsynced records for userID. Returns the number of
// records uploaded.
func (u *uploader) push(ctx context.Context, userID string) (int, error) {
	pending, err := u.collect(ctx, userID)
	if err != nil {
		return 0, err
	}

	if len(pending) == 0 {
		u.logger.Debug("nothing to upload")
		return 0, nil
	}

	writes := make([]remote.Write, len(pending))
	for i, p := range pending {
		writes[i] = p.write
	}

	// Atomic batch: the server stamps every document's lastModified with its
	// own write time (never the client clock).
	if err := u.remote.Commit(ctx, writes); err != nil {
		return 0, fmt.Errorf("sync: uploading %d records: %w", len(writes), err)
	}

	// Only after confirmed remote success do the local flags flip, in one
	// local save of their own.
	for _, p := range pending {
		u.local.StageMarkSynced(p.kind, p.id)
	}

	if err := u.local.Save(ctx); err != nil {
		// The remote write is durable; the flags stay false and the next
		// pass re-uploads the same records, which is safe (idempotent set).
		return 0, fmt.Errorf("sync: marking %d records synced: %w", len(pending), err)
	}

	u.logger.Info("uploaded local changes", slog.Int("records", len(pending)))

	return len(pending), nil
}

// collect gathers every unsynced record, encoded and paired with its local
// flag flip. Order mirrors the pull order so referenced entities land first.
func (u *uploader) collect(ctx context.Context, userID string) ([]pendingWrite, error) {
	var pending []pendingWrite

	categories, err := u.local.UnsyncedCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: selecting unsynced categories: %w", err)
	}

	for _, c := range categories {
		pending = append(pending, pendingWrite{
			write: remote.Write{Path: remote.CollectionPath(userID, colCategories), ID: c.ID, Fields: encodeCategory(c)},
			kind:  store.KindCategory,
			id:    c.ID,
		})
	}

	accounts, err := u.local.UnsyncedAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: selecting unsynced accounts: %w", err)
	}

	for _, a := range accounts {
		pending = append(pending, pendingWrite{
			write: remote.Write{Path: remote.CollectionPath(userID, colAccounts), ID: a.ID, Fields: encodeAccount(a)},
			kind:  store.KindAccount,
			id:    a.ID,
		})
	}

	budgets, err := u.local.UnsyncedBudgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: selecting unsynced budgets: %w", err)
	}

	for _, b := range budgets {
		pending = append(pending, pendingWrite{
			write: remote.Write{Path: remote.CollectionPath(userID, colBudgets), ID: b.ID, Fields: encodeBudget(b)},
			kind:  store.KindBudget,
			id:    b.ID,
		})
	}

	transactions, err := u.local.UnsyncedTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: selecting unsynced transactions: %w", err)
	}

	for _, t := range transactions {
		pending = append(pending, pendingWrite{
			write: remote.Write{Path: remote.CollectionPath(userID, colTransactions), ID: t.ID, Fields: encodeTransaction(t)},
			kind:  store.KindTransaction,
			id:    t.ID,
		})
	}

	return pending, nil
}
