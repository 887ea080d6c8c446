package sync

import "github.com/centsync/centsync/internal/model"

// refMaps holds id → entity lookup maps for the foreign keys that
// Transactions and Budgets carry. Built once per sync pass, after the
// Category and Account merges, so records arriving in the same remote
// snapshot resolve correctly.
type refMaps struct {
	categories map[string]model.Category
	accounts   map[string]model.Account
}

// newRefMaps indexes the post-merge category and account sets.
func newRefMaps(categories []model.Category, accounts []model.Account) *refMaps {
	r := &refMaps{
		categories: make(map[string]model.Category, len(categories)),
		accounts:   make(map[string]model.Account, len(accounts)),
	}

	for _, c := range categories {
		r.categories[c.ID] = c
	}

	for _, a := range accounts {
		r.accounts[a.ID] = a
	}

	return r
}

// ResolveCategory returns id unchanged when it names a known category, and
// "" (no reference) otherwise. A stale or missing reference is dropped to
// null rather than left dangling.
func (r *refMaps) ResolveCategory(id string) string {
	if id == "" {
		return ""
	}

	if _, ok := r.categories[id]; !ok {
		return ""
	}

	return id
}

// ResolveAccount is ResolveCategory for account references.
func (r *refMaps) ResolveAccount(id string) string {
	if id == "" {
		return ""
	}

	if _, ok := r.accounts[id]; !ok {
		return ""
	}

	return id
}
