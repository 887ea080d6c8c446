package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/centsync/centsync/internal/model"
	"github.com/centsync/centsync/internal/remote"
	"github.com/centsync/centsync/internal/store"
)

// minTriggerInterval rate-limits sync passes in watch mode so a burst of
// triggers (connectivity restored + local edit + manual) coalesces into one.
const minTriggerInterval = 5 * time.Second

// Engine sequences the full sync: pull-and-merge per entity type in
// dependency order, one atomic local commit, then the upload of local dirty
// records. At most one pass runs at a time; concurrent triggers coalesce
// into ErrSyncInProgress. All failures are converted into observable state
// at this boundary — observers never see a raw error.
type Engine struct {
	local    LocalStore
	remote   RemoteStore
	identity Identity
	tracker  *stateTracker
	merger   *merger
	uploader *uploader
	logger   *slog.Logger

	inFlight atomic.Bool
}

// NewEngine wires an Engine from its collaborators. Each collaborator is
// injected explicitly; tests construct fresh engines per case.
func NewEngine(local LocalStore, rs RemoteStore, identity Identity, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		local:    local,
		remote:   rs,
		identity: identity,
		tracker:  newStateTracker(),
		merger:   &merger{local: local, logger: logger},
		uploader: &uploader{local: local, remote: rs, logger: logger},
		logger:   logger,
	}
}

// State returns a snapshot of the observable sync state.
func (e *Engine) State() State {
	return e.tracker.Snapshot()
}

// Subscribe registers an observer of sync state changes.
func (e *Engine) Subscribe() (<-chan State, func()) {
	return e.tracker.Subscribe()
}

// RunFullSync executes one full pass: Categories → Accounts → Budgets →
// Transactions → profile, one atomic local commit, then the upload queue.
// Returns ErrNotAuthenticated without a signed-in user and ErrSyncInProgress
// when a pass is already running.
func (e *Engine) RunFullSync(ctx context.Context) error {
	userID, ok := e.identity.CurrentUserID()
	if !ok {
		e.tracker.update(func(s *State) {
			s.LastError = ErrNotAuthenticated.Error()
			s.ProgressMessage = "Sign in to sync"
		})

		return ErrNotAuthenticated
	}

	if !e.inFlight.CompareAndSwap(false, true) {
		e.logger.Debug("sync already in progress, trigger coalesced")
		return ErrSyncInProgress
	}
	defer e.inFlight.Store(false)

	e.logger.Info("sync pass started", slog.String("user", userID))
	e.tracker.update(func(s *State) {
		s.IsSyncing = true
		s.LastError = ""
		s.ProgressMessage = "Syncing…"
	})

	downloaded, conflicts, skipped, pullErr := e.pull(ctx, userID)
	if pullErr != nil {
		return e.fail("pull", pullErr)
	}

	uploaded, pushErr := e.uploader.push(ctx, userID)
	if pushErr != nil {
		return e.fail("push", pushErr)
	}

	pending, err := e.local.CountUnsynced(ctx)
	if err != nil {
		return e.fail("pending count", err)
	}

	now := model.Now()
	e.tracker.update(func(s *State) {
		s.IsSyncing = false
		s.HasCompletedInitialSync = true
		s.LastError = ""
		s.ProgressMessage = "Up to date"
		s.LastSyncDate = now
		s.PendingChanges = pending
		s.Stats.Downloaded += downloaded
		s.Stats.ConflictsResolved += conflicts
		s.Stats.Errors += skipped
		s.Stats.Uploaded += uploaded
	})

	e.logger.Info("sync pass complete",
		slog.Int("downloaded", downloaded),
		slog.Int("uploaded", uploaded),
		slog.Int("conflicts_resolved", conflicts),
		slog.Int("skipped", skipped),
		slog.Int("pending", pending),
	)

	return nil
}

// ForceFullResync clears the initial-sync flag and reruns the full pass.
// The pull is a full idempotent re-pull, not a delta, so forcing it is
// always safe.
func (e *Engine) ForceFullResync(ctx context.Context) error {
	e.tracker.update(func(s *State) {
		s.HasCompletedInitialSync = false
	})

	return e.RunFullSync(ctx)
}

// pull fetches and merges all entity types in strict dependency order:
// Categories and Accounts feed the reference maps that Budgets and
// Transactions need. All staged mutations commit in one atomic Save at the
// end; any failure discards the staged work, so a partial merge never
// persists.
func (e *Engine) pull(ctx context.Context, userID string) (downloaded, conflicts, skipped int, err error) {
	defer func() {
		if err != nil {
			e.local.Discard()
		}
	}()

	var total MergeCounts

	// Categories.
	catDocs, err := e.remote.List(ctx, remote.CollectionPath(userID, colCategories))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("fetching categories: %w", err)
	}

	localCats, err := e.local.Categories(ctx)
	if err != nil {
		return 0, 0, 0, err
	}

	mergedCats, counts := e.merger.mergeCategories(catDocs, localCats)
	total = total.add(counts)

	// Accounts.
	acctDocs, err := e.remote.List(ctx, remote.CollectionPath(userID, colAccounts))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("fetching accounts: %w", err)
	}

	localAccts, err := e.local.Accounts(ctx)
	if err != nil {
		return 0, 0, 0, err
	}

	mergedAccts, counts := e.merger.mergeAccounts(acctDocs, localAccts)
	total = total.add(counts)

	// Reference maps are built once per pass, from the post-merge sets, so
	// a Budget or Transaction arriving in the same snapshot as its Category
	// links correctly.
	refs := newRefMaps(mergedCats, mergedAccts)

	// Budgets.
	budgetDocs, err := e.remote.List(ctx, remote.CollectionPath(userID, colBudgets))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("fetching budgets: %w", err)
	}

	localBudgets, err := e.local.Budgets(ctx)
	if err != nil {
		return 0, 0, 0, err
	}

	total = total.add(e.merger.mergeBudgets(budgetDocs, localBudgets, refs))

	// Transactions, newest first to bound worst-case merge cost on large
	// histories.
	txnDocs, err := e.remote.ListOrdered(ctx, remote.CollectionPath(userID, colTransactions), "date", true)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("fetching transactions: %w", err)
	}

	localTxns, err := e.local.Transactions(ctx)
	if err != nil {
		return 0, 0, 0, err
	}

	total = total.add(e.merger.mergeTransactions(txnDocs, localTxns, refs))

	// Profile.
	profileDocs, err := e.remote.List(ctx, remote.CollectionPath(userID, colProfile))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("fetching profile: %w", err)
	}

	localProfile, err := e.local.Profile(ctx, userID)
	if err != nil {
		return 0, 0, 0, err
	}

	total = total.add(e.merger.mergeProfile(profileDocs, localProfile))

	// The single atomic local commit for the whole pass.
	if err := e.local.Save(ctx); err != nil {
		return 0, 0, 0, fmt.Errorf("committing merged records: %w", err)
	}

	return total.Inserted + total.Updated, total.Updated, total.Skipped, nil
}

// Delete removes a record locally and propagates the deletion to the remote
// store directly — deletions are not queued through the upload path.
func (e *Engine) Delete(ctx context.Context, kind store.Kind, id string) error {
	userID, ok := e.identity.CurrentUserID()
	if !ok {
		return ErrNotAuthenticated
	}

	if err := e.local.Delete(ctx, kind, id); err != nil {
		return err
	}

	if err := e.remote.Delete(ctx, remote.CollectionPath(userID, string(kind)), id); err != nil {
		return fmt.Errorf("sync: propagating delete of %s %s: %w", kind, id, err)
	}

	return nil
}

// fail converts a pass failure into observable state and returns the
// wrapped error for the caller.
func (e *Engine) fail(step string, err error) error {
	transient := remote.IsTransient(err)

	e.logger.Error("sync pass failed",
		slog.String("step", step),
		slog.Bool("transient", transient),
		slog.String("error", err.Error()),
	)

	message := "Sync failed"
	if transient {
		message = "Sync failed — will retry when back online"
	}

	e.tracker.update(func(s *State) {
		s.IsSyncing = false
		s.LastError = err.Error()
		s.ProgressMessage = message
		s.Stats.Errors++
	})

	return fmt.Errorf("sync: %s: %w", step, err)
}

// Watch runs the engine until ctx is canceled, syncing on connectivity
// restoration, local change events, and the initial start. Triggers are
// rate-limited so bursts coalesce; individual pass failures are recorded in
// state and do not stop the loop.
func (e *Engine) Watch(ctx context.Context, conn Connectivity, localEvents <-chan struct{}) error {
	triggers := make(chan string, 8)
	limiter := rate.NewLimiter(rate.Every(minTriggerInterval), 1)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case reachable, open := <-conn.Changes():
				if !open {
					return nil
				}

				if reachable {
					select {
					case triggers <- "connectivity restored":
					default:
					}
				}
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case _, open := <-localEvents:
				if !open {
					return nil
				}

				select {
				case triggers <- "local change":
				default:
				}
			}
		}
	})

	g.Go(func() error {
		if conn.Reachable() {
			e.runTrigger(ctx, "startup")
		}

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case reason := <-triggers:
				if !limiter.Allow() {
					e.logger.Debug("trigger rate-limited", slog.String("reason", reason))
					continue
				}

				e.runTrigger(ctx, reason)
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// runTrigger runs one pass for a watch-mode trigger. Coalesced and failed
// passes are logged; failures already live in observable state.
func (e *Engine) runTrigger(ctx context.Context, reason string) {
	e.logger.Info("sync triggered", slog.String("reason", reason))

	err := e.RunFullSync(ctx)
	if err == nil || errors.Is(err, ErrSyncInProgress) {
		return
	}

	e.logger.Warn("triggered sync failed",
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
}
