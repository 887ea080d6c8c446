package sync

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/centsync/centsync/internal/model"
	"github.com/centsync/centsync/internal/remote"
)

// The codec is the only boundary between the loosely typed remote document
// format and the typed entities. Missing fields decode to typed defaults;
// a field that is present but unparseable (a non-numeric amount, say) is a
// data error and the record is skipped by the merger.

// decodeTime normalizes every timestamp representation the remote store may
// hand back into time.Time. The backend SDK yields time.Time for native
// timestamps, but documents written by older clients carry RFC3339 strings
// or integer Unix milliseconds. Comparing disparate representations without
// this normalization is exactly the conflict-resolution bug this guards.
func decodeTime(v any) (time.Time, bool) {
	switch tv := v.(type) {
	case time.Time:
		return tv.UTC(), true
	case string:
		t, err := time.Parse(time.RFC3339Nano, tv)
		if err != nil {
			return time.Time{}, false
		}

		return t.UTC(), true
	case int64:
		return time.UnixMilli(tv).UTC(), true
	case float64:
		return time.UnixMilli(int64(tv)).UTC(), true
	default:
		return time.Time{}, false
	}
}

// fieldTime reads a timestamp field, defaulting to the zero time when the
// field is missing or unreadable. A zero lastModified always loses the
// strictly-newer comparison, so malformed remote stamps never clobber local.
func fieldTime(fields map[string]any, key string) time.Time {
	v, ok := fields[key]
	if !ok {
		return time.Time{}
	}

	t, _ := decodeTime(v)

	return t
}

func fieldString(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}

	return ""
}

func fieldBool(fields map[string]any, key string) bool {
	if v, ok := fields[key].(bool); ok {
		return v
	}

	return false
}

func fieldInt(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func fieldFloat(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// fieldDecimal reads an exact decimal amount. Amounts are written as strings
// to avoid float contamination, but numeric values from other clients decode
// too. Missing defaults to zero; present-but-unparseable is a data error.
func fieldDecimal(fields map[string]any, key string) (decimal.Decimal, error) {
	v, ok := fields[key]
	if !ok {
		return decimal.Zero, nil
	}

	switch av := v.(type) {
	case string:
		d, err := decimal.NewFromString(av)
		if err != nil {
			return decimal.Zero, fmt.Errorf("sync: field %s: bad decimal %q", key, av)
		}

		return d, nil
	case int64:
		return decimal.NewFromInt(av), nil
	case float64:
		return decimal.NewFromFloat(av), nil
	default:
		return decimal.Zero, fmt.Errorf("sync: field %s: unsupported amount type %T", key, v)
	}
}

// --- Category ---

func decodeCategory(doc remote.Document) (model.Category, error) {
	if doc.ID == "" {
		return model.Category{}, fmt.Errorf("sync: category document without id")
	}

	return model.Category{
		ID:           doc.ID,
		Name:         fieldString(doc.Fields, "name"),
		Icon:         fieldString(doc.Fields, "icon"),
		Color:        fieldString(doc.Fields, "color"),
		IsExpense:    fieldBool(doc.Fields, "isExpenseCategory"),
		SortOrder:    fieldInt(doc.Fields, "sortOrder"),
		IsDefault:    fieldBool(doc.Fields, "isDefault"),
		LastModified: fieldTime(doc.Fields, "lastModified"),
	}, nil
}

func encodeCategory(c model.Category) map[string]any {
	return map[string]any{
		"name":              c.Name,
		"icon":              c.Icon,
		"color":             c.Color,
		"isExpenseCategory": c.IsExpense,
		"sortOrder":         c.SortOrder,
		"isDefault":         c.IsDefault,
		"lastModified":      remote.ServerTimestamp,
	}
}

// --- Account ---

func decodeAccount(doc remote.Document) (model.Account, error) {
	if doc.ID == "" {
		return model.Account{}, fmt.Errorf("sync: account document without id")
	}

	balance, err := fieldDecimal(doc.Fields, "initialBalance")
	if err != nil {
		return model.Account{}, err
	}

	return model.Account{
		ID:             doc.ID,
		Name:           fieldString(doc.Fields, "name"),
		InitialBalance: balance,
		Type:           model.AccountType(fieldString(doc.Fields, "accountType")),
		Icon:           fieldString(doc.Fields, "icon"),
		Color:          fieldString(doc.Fields, "color"),
		Currency:       fieldString(doc.Fields, "currency"),
		LastModified:   fieldTime(doc.Fields, "lastModified"),
	}, nil
}

func encodeAccount(a model.Account) map[string]any {
	return map[string]any{
		"name":           a.Name,
		"initialBalance": a.InitialBalance.String(),
		"accountType":    string(a.Type),
		"icon":           a.Icon,
		"color":          a.Color,
		"currency":       a.Currency,
		"lastModified":   remote.ServerTimestamp,
	}
}

// --- Budget ---

func decodeBudget(doc remote.Document) (model.Budget, error) {
	if doc.ID == "" {
		return model.Budget{}, fmt.Errorf("sync: budget document without id")
	}

	amount, err := fieldDecimal(doc.Fields, "amount")
	if err != nil {
		return model.Budget{}, err
	}

	period := model.BudgetPeriod(fieldString(doc.Fields, "period"))
	if period == "" {
		period = model.PeriodMonthly
	}

	return model.Budget{
		ID:             doc.ID,
		Amount:         amount,
		Period:         period,
		StartDate:      fieldTime(doc.Fields, "startDate"),
		AlertThreshold: fieldFloat(doc.Fields, "alertThreshold"),
		IsActive:       fieldBool(doc.Fields, "isActive"),
		CategoryID:     fieldString(doc.Fields, "categoryId"),
		LastModified:   fieldTime(doc.Fields, "lastModified"),
	}, nil
}

func encodeBudget(b model.Budget) map[string]any {
	fields := map[string]any{
		"amount":         b.Amount.String(),
		"period":         string(b.Period),
		"startDate":      b.StartDate,
		"alertThreshold": b.AlertThreshold,
		"isActive":       b.IsActive,
		"lastModified":   remote.ServerTimestamp,
	}

	if b.CategoryID != "" {
		fields["categoryId"] = b.CategoryID
	}

	return fields
}

// --- Transaction ---

func decodeTransaction(doc remote.Document) (model.Transaction, error) {
	if doc.ID == "" {
		return model.Transaction{}, fmt.Errorf("sync: transaction document without id")
	}

	amount, err := fieldDecimal(doc.Fields, "amount")
	if err != nil {
		return model.Transaction{}, err
	}

	txType := model.TransactionType(fieldString(doc.Fields, "type"))
	if txType == "" {
		txType = model.TypeExpense
	}

	return model.Transaction{
		ID:           doc.ID,
		Amount:       amount,
		Note:         fieldString(doc.Fields, "note"),
		Date:         fieldTime(doc.Fields, "date"),
		Type:         txType,
		Merchant:     fieldString(doc.Fields, "merchant"),
		CategoryID:   fieldString(doc.Fields, "categoryId"),
		AccountID:    fieldString(doc.Fields, "accountId"),
		LastModified: fieldTime(doc.Fields, "lastModified"),
	}, nil
}

func encodeTransaction(t model.Transaction) map[string]any {
	fields := map[string]any{
		"amount":       t.Amount.String(),
		"note":         t.Note,
		"date":         t.Date,
		"type":         string(t.Type),
		"merchant":     t.Merchant,
		"lastModified": remote.ServerTimestamp,
	}

	if t.CategoryID != "" {
		fields["categoryId"] = t.CategoryID
	}

	if t.AccountID != "" {
		fields["accountId"] = t.AccountID
	}

	return fields
}

// --- User profile ---

func decodeProfile(doc remote.Document) (model.UserProfile, error) {
	if doc.ID == "" {
		return model.UserProfile{}, fmt.Errorf("sync: profile document without id")
	}

	return model.UserProfile{
		ID:           doc.ID,
		DisplayName:  fieldString(doc.Fields, "displayName"),
		PhotoURL:     fieldString(doc.Fields, "photoUrl"),
		LastModified: fieldTime(doc.Fields, "lastModified"),
	}, nil
}

func encodeProfile(p model.UserProfile) map[string]any {
	return map[string]any{
		"displayName":  p.DisplayName,
		"photoUrl":     p.PhotoURL,
		"lastModified": remote.ServerTimestamp,
	}
}
