package sync

import (
	"log/slog"

	"github.com/centsync/centsync/internal/model"
	"github.com/centsync/centsync/internal/remote"
)

// merger applies one entity type's remote snapshot onto the local set.
// Decisions are last-writer-wins on lastModified: a remote record is applied
// iff it is strictly newer than the local copy; ties preserve local (a scalar
// clock cannot break a tie, and local-wins keeps the pass idempotent).
// Remote records absent from the snapshot are never invented and local
// records absent remotely are never deleted — delete propagation is a
// separate, direct operation.
//
// Mutations are staged on the local store; nothing is durable until the
// engine's single atomic Save at the end of the pass.
type merger struct {
	local  LocalStore
	logger *slog.Logger
}

// mergeCategories applies remote category documents and returns the
// post-merge category set (used to build the reference maps) plus counts.
func (m *merger) mergeCategories(docs []remote.Document, local []model.Category) ([]model.Category, MergeCounts) {
	var counts MergeCounts

	known := make(map[string]int, len(local))
	for i, c := range local {
		known[c.ID] = i
	}

	merged := append([]model.Category(nil), local...)

	for _, doc := range docs {
		c, err := decodeCategory(doc)
		if err != nil {
			m.skip(doc.ID, err)
			counts.Skipped++

			continue
		}

		c.IsSynced = true

		idx, exists := known[c.ID]
		if !exists {
			m.local.StageUpsertCategory(c)
			merged = append(merged, c)
			known[c.ID] = len(merged) - 1
			counts.Inserted++

			continue
		}

		if !c.LastModified.After(merged[idx].LastModified) {
			counts.Unchanged++
			continue
		}

		m.local.StageUpsertCategory(c)
		merged[idx] = c
		counts.Updated++
	}

	return merged, counts
}

// mergeAccounts is mergeCategories for accounts.
func (m *merger) mergeAccounts(docs []remote.Document, local []model.Account) ([]model.Account, MergeCounts) {
	var counts MergeCounts

	known := make(map[string]int, len(local))
	for i, a := range local {
		known[a.ID] = i
	}

	merged := append([]model.Account(nil), local...)

	for _, doc := range docs {
		a, err := decodeAccount(doc)
		if err != nil {
			m.skip(doc.ID, err)
			counts.Skipped++

			continue
		}

		a.IsSynced = true

		idx, exists := known[a.ID]
		if !exists {
			m.local.StageUpsertAccount(a)
			merged = append(merged, a)
			known[a.ID] = len(merged) - 1
			counts.Inserted++

			continue
		}

		if !a.LastModified.After(merged[idx].LastModified) {
			counts.Unchanged++
			continue
		}

		m.local.StageUpsertAccount(a)
		merged[idx] = a
		counts.Updated++
	}

	return merged, counts
}

// mergeBudgets applies remote budgets, resolving category references through
// the maps built earlier in the same pass. Dangling references drop to null.
func (m *merger) mergeBudgets(docs []remote.Document, local []model.Budget, refs *refMaps) MergeCounts {
	var counts MergeCounts

	known := make(map[string]model.Budget, len(local))
	for _, b := range local {
		known[b.ID] = b
	}

	for _, doc := range docs {
		b, err := decodeBudget(doc)
		if err != nil {
			m.skip(doc.ID, err)
			counts.Skipped++

			continue
		}

		b.IsSynced = true
		b.CategoryID = refs.ResolveCategory(b.CategoryID)

		existing, exists := known[b.ID]
		if !exists {
			m.local.StageUpsertBudget(b)
			counts.Inserted++

			continue
		}

		if !b.LastModified.After(existing.LastModified) {
			counts.Unchanged++
			continue
		}

		m.local.StageUpsertBudget(b)
		counts.Updated++
	}

	return counts
}

// mergeTransactions applies remote transactions, resolving category and
// account references through the pass's maps.
func (m *merger) mergeTransactions(docs []remote.Document, local []model.Transaction, refs *refMaps) MergeCounts {
	var counts MergeCounts

	known := make(map[string]model.Transaction, len(local))
	for _, t := range local {
		known[t.ID] = t
	}

	for _, doc := range docs {
		t, err := decodeTransaction(doc)
		if err != nil {
			m.skip(doc.ID, err)
			counts.Skipped++

			continue
		}

		t.IsSynced = true
		t.CategoryID = refs.ResolveCategory(t.CategoryID)
		t.AccountID = refs.ResolveAccount(t.AccountID)

		existing, exists := known[t.ID]
		if !exists {
			m.local.StageUpsertTransaction(t)
			counts.Inserted++

			continue
		}

		if !t.LastModified.After(existing.LastModified) {
			counts.Unchanged++
			continue
		}

		m.local.StageUpsertTransaction(t)
		counts.Updated++
	}

	return counts
}

// mergeProfile applies the remote profile document if it is strictly newer
// than the local copy (or if no local copy exists).
func (m *merger) mergeProfile(docs []remote.Document, local *model.UserProfile) MergeCounts {
	var counts MergeCounts

	for _, doc := range docs {
		p, err := decodeProfile(doc)
		if err != nil {
			m.skip(doc.ID, err)
			counts.Skipped++

			continue
		}

		if local == nil {
			m.local.StageUpsertProfile(p)
			counts.Inserted++

			continue
		}

		if !p.LastModified.After(local.LastModified) {
			counts.Unchanged++
			continue
		}

		m.local.StageUpsertProfile(p)
		counts.Updated++
	}

	return counts
}

func (m *merger) skip(id string, err error) {
	m.logger.Warn("skipping undecodable remote record",
		slog.String("id", id),
		slog.String("error", err.Error()),
	)
}
