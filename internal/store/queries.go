package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/centsync/centsync/internal/model"
)

// Base select statements, shared between the full and unsynced variants.
const (
	selectCategories   = "SELECT id, name, icon, color, is_expense, sort_order, is_default, last_modified, is_synced FROM categories"
	selectAccounts     = "SELECT id, name, initial_balance, account_type, icon, color, currency, last_modified, is_synced FROM accounts"
	selectBudgets      = "SELECT id, amount, period, start_date, alert_threshold, is_active, category_id, last_modified, is_synced FROM budgets"
	selectTransactions = "SELECT id, amount, note, tx_date, tx_type, merchant, category_id, account_id, last_modified, is_synced FROM transactions"
	selectProfile      = "SELECT id, display_name, photo_url, last_modified FROM user_profile WHERE id = ?"
)

// nanos converts a time to its persisted form. The zero time persists as 0.
func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

// fromNanos converts a persisted timestamp back to time.Time.
func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}

	return time.Unix(0, n).UTC()
}

// nullable maps an empty foreign-key reference to SQL NULL.
func nullable(id string) any {
	if id == "" {
		return nil
	}

	return id
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("store: bad decimal %q: %w", s, err)
	}

	return d, nil
}

// --- Categories ---

// Categories returns all local categories.
func (s *Store) Categories(ctx context.Context) ([]model.Category, error) {
	return s.scanCategories(s.catStmts.list.QueryContext(ctx))
}

// UnsyncedCategories returns categories with local modifications awaiting upload.
func (s *Store) UnsyncedCategories(ctx context.Context) ([]model.Category, error) {
	return s.scanCategories(s.catStmts.listUnsynced.QueryContext(ctx))
}

func (s *Store) scanCategories(rows *sql.Rows, err error) ([]model.Category, error) {
	if err != nil {
		return nil, fmt.Errorf("store: query categories: %w", err)
	}
	defer rows.Close()

	var out []model.Category

	for rows.Next() {
		var (
			c        model.Category
			modified int64
		)

		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.Color, &c.IsExpense,
			&c.SortOrder, &c.IsDefault, &modified, &c.IsSynced); err != nil {
			return nil, fmt.Errorf("store: scan category: %w", err)
		}

		c.LastModified = fromNanos(modified)
		out = append(out, c)
	}

	return out, rows.Err()
}

// StageUpsertCategory stages an insert-or-replace of c for the next Save.
func (s *Store) StageUpsertCategory(c model.Category) {
	s.stage(`INSERT INTO categories (id, name, icon, color, is_expense, sort_order, is_default, last_modified, is_synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, icon=excluded.icon, color=excluded.color,
			is_expense=excluded.is_expense, sort_order=excluded.sort_order, is_default=excluded.is_default,
			last_modified=excluded.last_modified, is_synced=excluded.is_synced`,
		c.ID, c.Name, c.Icon, c.Color, c.IsExpense, c.SortOrder, c.IsDefault, nanos(c.LastModified), c.IsSynced)
}

// --- Accounts ---

// Accounts returns all local accounts.
func (s *Store) Accounts(ctx context.Context) ([]model.Account, error) {
	return s.scanAccounts(s.acctStmts.list.QueryContext(ctx))
}

// UnsyncedAccounts returns accounts with local modifications awaiting upload.
func (s *Store) UnsyncedAccounts(ctx context.Context) ([]model.Account, error) {
	return s.scanAccounts(s.acctStmts.listUnsynced.QueryContext(ctx))
}

func (s *Store) scanAccounts(rows *sql.Rows, err error) ([]model.Account, error) {
	if err != nil {
		return nil, fmt.Errorf("store: query accounts: %w", err)
	}
	defer rows.Close()

	var out []model.Account

	for rows.Next() {
		var (
			a        model.Account
			balance  string
			acctType string
			modified int64
		)

		if err := rows.Scan(&a.ID, &a.Name, &balance, &acctType, &a.Icon,
			&a.Color, &a.Currency, &modified, &a.IsSynced); err != nil {
			return nil, fmt.Errorf("store: scan account: %w", err)
		}

		bal, err := parseAmount(balance)
		if err != nil {
			return nil, err
		}

		a.InitialBalance = bal
		a.Type = model.AccountType(acctType)
		a.LastModified = fromNanos(modified)
		out = append(out, a)
	}

	return out, rows.Err()
}

// StageUpsertAccount stages an insert-or-replace of a for the next Save.
func (s *Store) StageUpsertAccount(a model.Account) {
	s.stage(`INSERT INTO accounts (id, name, initial_balance, account_type, icon, color, currency, last_modified, is_synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, initial_balance=excluded.initial_balance,
			account_type=excluded.account_type, icon=excluded.icon, color=excluded.color,
			currency=excluded.currency, last_modified=excluded.last_modified, is_synced=excluded.is_synced`,
		a.ID, a.Name, a.InitialBalance.String(), string(a.Type), a.Icon, a.Color, a.Currency, nanos(a.LastModified), a.IsSynced)
}

// --- Budgets ---

// Budgets returns all local budgets.
func (s *Store) Budgets(ctx context.Context) ([]model.Budget, error) {
	return s.scanBudgets(s.budgetStmts.list.QueryContext(ctx))
}

// UnsyncedBudgets returns budgets with local modifications awaiting upload.
func (s *Store) UnsyncedBudgets(ctx context.Context) ([]model.Budget, error) {
	return s.scanBudgets(s.budgetStmts.listUnsynced.QueryContext(ctx))
}

func (s *Store) scanBudgets(rows *sql.Rows, err error) ([]model.Budget, error) {
	if err != nil {
		return nil, fmt.Errorf("store: query budgets: %w", err)
	}
	defer rows.Close()

	var out []model.Budget

	for rows.Next() {
		var (
			b        model.Budget
			amount   string
			period   string
			start    int64
			category sql.NullString
			modified int64
		)

		if err := rows.Scan(&b.ID, &amount, &period, &start, &b.AlertThreshold,
			&b.IsActive, &category, &modified, &b.IsSynced); err != nil {
			return nil, fmt.Errorf("store: scan budget: %w", err)
		}

		amt, err := parseAmount(amount)
		if err != nil {
			return nil, err
		}

		b.Amount = amt
		b.Period = model.BudgetPeriod(period)
		b.StartDate = fromNanos(start)
		b.CategoryID = category.String
		b.LastModified = fromNanos(modified)
		out = append(out, b)
	}

	return out, rows.Err()
}

// StageUpsertBudget stages an insert-or-replace of b for the next Save.
func (s *Store) StageUpsertBudget(b model.Budget) {
	s.stage(`INSERT INTO budgets (id, amount, period, start_date, alert_threshold, is_active, category_id, last_modified, is_synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET amount=excluded.amount, period=excluded.period, start_date=excluded.start_date,
			alert_threshold=excluded.alert_threshold, is_active=excluded.is_active, category_id=excluded.category_id,
			last_modified=excluded.last_modified, is_synced=excluded.is_synced`,
		b.ID, b.Amount.String(), string(b.Period), nanos(b.StartDate), b.AlertThreshold, b.IsActive,
		nullable(b.CategoryID), nanos(b.LastModified), b.IsSynced)
}

// --- Transactions ---

// Transactions returns all local transactions, newest first.
func (s *Store) Transactions(ctx context.Context) ([]model.Transaction, error) {
	return s.scanTransactions(s.txnStmts.list.QueryContext(ctx))
}

// UnsyncedTransactions returns transactions with local modifications awaiting upload.
func (s *Store) UnsyncedTransactions(ctx context.Context) ([]model.Transaction, error) {
	return s.scanTransactions(s.txnStmts.listUnsynced.QueryContext(ctx))
}

func (s *Store) scanTransactions(rows *sql.Rows, err error) ([]model.Transaction, error) {
	if err != nil {
		return nil, fmt.Errorf("store: query transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction

	for rows.Next() {
		var (
			t        model.Transaction
			amount   string
			date     int64
			txType   string
			category sql.NullString
			account  sql.NullString
			modified int64
		)

		if err := rows.Scan(&t.ID, &amount, &t.Note, &date, &txType, &t.Merchant,
			&category, &account, &modified, &t.IsSynced); err != nil {
			return nil, fmt.Errorf("store: scan transaction: %w", err)
		}

		amt, err := parseAmount(amount)
		if err != nil {
			return nil, err
		}

		t.Amount = amt
		t.Date = fromNanos(date)
		t.Type = model.TransactionType(txType)
		t.CategoryID = category.String
		t.AccountID = account.String
		t.LastModified = fromNanos(modified)
		out = append(out, t)
	}

	return out, rows.Err()
}

// StageUpsertTransaction stages an insert-or-replace of t for the next Save.
func (s *Store) StageUpsertTransaction(t model.Transaction) {
	s.stage(`INSERT INTO transactions (id, amount, note, tx_date, tx_type, merchant, category_id, account_id, last_modified, is_synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET amount=excluded.amount, note=excluded.note, tx_date=excluded.tx_date,
			tx_type=excluded.tx_type, merchant=excluded.merchant, category_id=excluded.category_id,
			account_id=excluded.account_id, last_modified=excluded.last_modified, is_synced=excluded.is_synced`,
		t.ID, t.Amount.String(), t.Note, nanos(t.Date), string(t.Type), t.Merchant,
		nullable(t.CategoryID), nullable(t.AccountID), nanos(t.LastModified), t.IsSynced)
}

// --- User profile ---

// Profile returns the stored profile for userID, or nil if none exists.
func (s *Store) Profile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var (
		p        model.UserProfile
		modified int64
	)

	err := s.profileStmts.get.QueryRowContext(ctx, userID).Scan(&p.ID, &p.DisplayName, &p.PhotoURL, &modified)
	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: query profile: %w", err)
	}

	p.LastModified = fromNanos(modified)

	return &p, nil
}

// StageUpsertProfile stages an insert-or-replace of p for the next Save.
func (s *Store) StageUpsertProfile(p model.UserProfile) {
	s.stage(`INSERT INTO user_profile (id, display_name, photo_url, last_modified)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET display_name=excluded.display_name,
			photo_url=excluded.photo_url, last_modified=excluded.last_modified`,
		p.ID, p.DisplayName, p.PhotoURL, nanos(p.LastModified))
}
