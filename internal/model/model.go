// Package model defines the typed finance entities shared by the local store,
// the remote codec, and the sync engine. All monetary amounts are exact
// decimals (shopspring/decimal) — never floats. Entity ids are UUID strings
// and serve as the merge key across local and remote copies.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// TransactionType distinguishes money leaving from money arriving.
type TransactionType string

// Transaction types as stored in the type column and remote documents.
const (
	TypeExpense TransactionType = "expense"
	TypeIncome  TransactionType = "income"
)

// AccountType classifies an account for display and reporting.
type AccountType string

// Account types as stored locally and remotely.
const (
	AccountCash       AccountType = "cash"
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
	AccountInvestment AccountType = "investment"
)

// BudgetPeriod is the recurrence window a budget amount covers.
type BudgetPeriod string

// Budget periods as stored locally and remotely.
const (
	PeriodWeekly  BudgetPeriod = "weekly"
	PeriodMonthly BudgetPeriod = "monthly"
	PeriodYearly  BudgetPeriod = "yearly"
)

// Transaction is a single expense or income entry. CategoryID and AccountID
// are nullable foreign references; empty string means "no reference". The
// merge pass guarantees a non-empty reference resolves to a locally known id.
type Transaction struct {
	ID           string
	Amount       decimal.Decimal
	Note         string
	Date         time.Time
	Type         TransactionType
	Merchant     string
	CategoryID   string
	AccountID    string
	LastModified time.Time
	IsSynced     bool
}

// Category groups transactions. Default categories are seeded once and
// flagged so the UI layer can prevent their deletion.
type Category struct {
	ID           string
	Name         string
	Icon         string
	Color        string
	IsExpense    bool
	SortOrder    int
	IsDefault    bool
	LastModified time.Time
	IsSynced     bool
}

// Account is a source or destination of funds.
type Account struct {
	ID             string
	Name           string
	InitialBalance decimal.Decimal
	Type           AccountType
	Icon           string
	Color          string
	Currency       string // ISO 4217 code
	LastModified   time.Time
	IsSynced       bool
}

// Budget caps spending for a period, optionally scoped to one category.
// AlertThreshold is a fraction in [0, 1] of the amount at which the UI warns.
type Budget struct {
	ID             string
	Amount         decimal.Decimal
	Period         BudgetPeriod
	StartDate      time.Time
	AlertThreshold float64
	IsActive       bool
	CategoryID     string
	LastModified   time.Time
	IsSynced       bool
}

// UserProfile holds display attributes for the signed-in user. Its id is the
// user id, so there is exactly one remote document per user.
type UserProfile struct {
	ID           string
	DisplayName  string
	PhotoURL     string
	LastModified time.Time
}

// NewID returns a fresh globally unique entity id.
func NewID() string {
	return uuid.NewString()
}

// Now returns the wall clock in UTC truncated to millisecond precision.
// Remote write timestamps round-trip through the document store at
// millisecond granularity, so local stamps use the same precision to keep
// last-writer-wins comparisons exact.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Touch stamps t as modified now and clears its synced flag. Every local
// mutation must go through Touch (or equivalent) before staging.
func (t *Transaction) Touch() {
	t.LastModified = Now()
	t.IsSynced = false
}

// Touch marks the category locally modified.
func (c *Category) Touch() {
	c.LastModified = Now()
	c.IsSynced = false
}

// Touch marks the account locally modified.
func (a *Account) Touch() {
	a.LastModified = Now()
	a.IsSynced = false
}

// Touch marks the budget locally modified.
func (b *Budget) Touch() {
	b.LastModified = Now()
	b.IsSynced = false
}

// ValidCurrency reports whether code is a well-formed ISO 4217 currency code.
func ValidCurrency(code string) bool {
	_, err := currency.ParseISO(code)
	return err == nil
}

// Validate checks account fields that the store refuses to persist broken.
func (a *Account) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("account: missing id")
	}

	if a.Name == "" {
		return fmt.Errorf("account %s: missing name", a.ID)
	}

	if a.Currency != "" && !ValidCurrency(a.Currency) {
		return fmt.Errorf("account %s: invalid currency code %q", a.ID, a.Currency)
	}

	return nil
}

// Validate checks budget fields for internal consistency.
func (b *Budget) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("budget: missing id")
	}

	if b.AlertThreshold < 0 || b.AlertThreshold > 1 {
		return fmt.Errorf("budget %s: alert threshold %v outside [0,1]", b.ID, b.AlertThreshold)
	}

	switch b.Period {
	case PeriodWeekly, PeriodMonthly, PeriodYearly:
	default:
		return fmt.Errorf("budget %s: unknown period %q", b.ID, b.Period)
	}

	return nil
}
