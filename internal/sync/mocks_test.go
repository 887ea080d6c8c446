package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"testing"

	"github.com/centsync/centsync/internal/model"
	"github.com/centsync/centsync/internal/store"
)

// mockStore implements LocalStore in memory. Staged mutations are closures
// applied by Save, so the atomic-commit semantics match the real store:
// nothing is visible until Save, and a failed or discarded Save applies
// nothing.
type mockStore struct {
	mu gosync.Mutex

	categories   map[string]model.Category
	accounts     map[string]model.Account
	budgets      map[string]model.Budget
	transactions map[string]model.Transaction
	profiles     map[string]model.UserProfile

	staged []func()

	saveErr   error
	saves     int
	discards  int
	deletions []string
}

func newMockStore() *mockStore {
	return &mockStore{
		categories:   make(map[string]model.Category),
		accounts:     make(map[string]model.Account),
		budgets:      make(map[string]model.Budget),
		transactions: make(map[string]model.Transaction),
		profiles:     make(map[string]model.UserProfile),
	}
}

func (m *mockStore) Categories(_ context.Context) ([]model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}

	return out, nil
}

func (m *mockStore) Accounts(_ context.Context) ([]model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}

	return out, nil
}

func (m *mockStore) Budgets(_ context.Context) ([]model.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Budget, 0, len(m.budgets))
	for _, b := range m.budgets {
		out = append(out, b)
	}

	return out, nil
}

func (m *mockStore) Transactions(_ context.Context) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Transaction, 0, len(m.transactions))
	for _, t := range m.transactions {
		out = append(out, t)
	}

	return out, nil
}

func (m *mockStore) Profile(_ context.Context, userID string) (*model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.profiles[userID]; ok {
		return &p, nil
	}

	return nil, nil
}

func (m *mockStore) UnsyncedCategories(_ context.Context) ([]model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Category
	for _, c := range m.categories {
		if !c.IsSynced {
			out = append(out, c)
		}
	}

	return out, nil
}

func (m *mockStore) UnsyncedAccounts(_ context.Context) ([]model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Account
	for _, a := range m.accounts {
		if !a.IsSynced {
			out = append(out, a)
		}
	}

	return out, nil
}

func (m *mockStore) UnsyncedBudgets(_ context.Context) ([]model.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Budget
	for _, b := range m.budgets {
		if !b.IsSynced {
			out = append(out, b)
		}
	}

	return out, nil
}

func (m *mockStore) UnsyncedTransactions(_ context.Context) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Transaction
	for _, t := range m.transactions {
		if !t.IsSynced {
			out = append(out, t)
		}
	}

	return out, nil
}

func (m *mockStore) CountUnsynced(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0

	for _, c := range m.categories {
		if !c.IsSynced {
			n++
		}
	}

	for _, a := range m.accounts {
		if !a.IsSynced {
			n++
		}
	}

	for _, b := range m.budgets {
		if !b.IsSynced {
			n++
		}
	}

	for _, t := range m.transactions {
		if !t.IsSynced {
			n++
		}
	}

	return n, nil
}

func (m *mockStore) StageUpsertCategory(c model.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.staged = append(m.staged, func() { m.categories[c.ID] = c })
}

func (m *mockStore) StageUpsertAccount(a model.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.staged = append(m.staged, func() { m.accounts[a.ID] = a })
}

func (m *mockStore) StageUpsertBudget(b model.Budget) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.staged = append(m.staged, func() { m.budgets[b.ID] = b })
}

func (m *mockStore) StageUpsertTransaction(t model.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.staged = append(m.staged, func() { m.transactions[t.ID] = t })
}

func (m *mockStore) StageUpsertProfile(p model.UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.staged = append(m.staged, func() { m.profiles[p.ID] = p })
}

func (m *mockStore) StageMarkSynced(kind store.Kind, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.staged = append(m.staged, func() {
		switch kind {
		case store.KindCategory:
			if c, ok := m.categories[id]; ok {
				c.IsSynced = true
				m.categories[id] = c
			}
		case store.KindAccount:
			if a, ok := m.accounts[id]; ok {
				a.IsSynced = true
				m.accounts[id] = a
			}
		case store.KindBudget:
			if b, ok := m.budgets[id]; ok {
				b.IsSynced = true
				m.budgets[id] = b
			}
		case store.KindTransaction:
			if t, ok := m.transactions[id]; ok {
				t.IsSynced = true
				m.transactions[id] = t
			}
		}
	})
}

func (m *mockStore) Save(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := m.staged
	m.staged = nil
	m.saves++

	if m.saveErr != nil {
		return m.saveErr
	}

	for _, apply := range staged {
		apply()
	}

	return nil
}

func (m *mockStore) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.staged = nil
	m.discards++
}

func (m *mockStore) Delete(_ context.Context, kind store.Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch kind {
	case store.KindCategory:
		delete(m.categories, id)
	case store.KindAccount:
		delete(m.accounts, id)
	case store.KindBudget:
		delete(m.budgets, id)
	case store.KindTransaction:
		delete(m.transactions, id)
	}

	m.deletions = append(m.deletions, string(kind)+"/"+id)

	return nil
}

func (m *mockStore) stagedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.staged)
}

// testWriter adapts t.Log for slog output.
type testWriter struct {
	t *testing.T
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// testLogger creates a debug-level logger that writes to t.Log.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(&testWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
