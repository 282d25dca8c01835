package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciler/pkg/errors"
)

// TransactionType is derived from the debit amount, never read from input
type TransactionType string

const (
	TransactionTypeDebit  TransactionType = "debit"
	TransactionTypeCredit TransactionType = "credit"
)

func (t TransactionType) String() string {
	return string(t)
}

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeDebit || t == TransactionTypeCredit
}

// DeriveTransactionType returns debit when the debit amount is positive, credit otherwise
func DeriveTransactionType(debit decimal.Decimal) TransactionType {
	if debit.IsPositive() {
		return TransactionTypeDebit
	}
	return TransactionTypeCredit
}

// Transaction is one normalized statement line. Values are treated as
// immutable once built; matchers read them and produce new result records.
type Transaction struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	SourceFile    string          `json:"source_file,omitempty"`
	DateTime      time.Time       `json:"datetime"`
	Narration     string          `json:"narration"`
	Beneficiary   string          `json:"beneficiary"`
	DebitAmount   decimal.Decimal `json:"debit_amount"`
	CreditAmount  decimal.Decimal `json:"credit_amount"`
	Balance       decimal.Decimal `json:"balance"`
	Type          TransactionType `json:"transaction_type"`
	Reference     string          `json:"reference,omitempty"`

	// Position is the 1-based row position the id was built from
	Position int `json:"-"`
}

// NewTransaction builds a transaction, deriving its id, beneficiary and type.
// position is the 1-based row position within the source.
func NewTransaction(accountID string, position int, at time.Time, narration string, debit, credit, balance decimal.Decimal) *Transaction {
	return &Transaction{
		TransactionID: BuildTransactionID(accountID, at, position),
		Position:      position,
		AccountID:     accountID,
		DateTime:      at,
		Narration:     narration,
		Beneficiary:   ExtractBeneficiary(narration),
		DebitAmount:   debit,
		CreditAmount:  credit,
		Balance:       balance,
		Type:          DeriveTransactionType(debit),
	}
}

// Offset moves the transaction's position by n rows and rebuilds its id.
// Ingestion uses it to number rows across several sources; it must not be
// called once matching has started.
func (t *Transaction) Offset(n int) {
	t.Position += n
	t.TransactionID = BuildTransactionID(t.AccountID, t.DateTime, t.Position)
}

// Validate enforces the record invariants checked at ingestion time.
// The matchers assume every transaction they receive has passed it.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.AccountID) == "" {
		return errors.ValidationError(errors.CodeMissingField, "account_id", t.AccountID, nil)
	}

	if strings.TrimSpace(t.TransactionID) == "" {
		return errors.ValidationError(errors.CodeMissingField, "transaction_id", t.TransactionID, nil)
	}

	if t.DebitAmount.IsNegative() {
		return errors.ValidationError(errors.CodeInvalidAmount, "debit_amount", t.DebitAmount.String(), nil)
	}

	if t.CreditAmount.IsNegative() {
		return errors.ValidationError(errors.CodeInvalidAmount, "credit_amount", t.CreditAmount.String(), nil)
	}

	if t.DebitAmount.IsPositive() && t.CreditAmount.IsPositive() {
		return errors.ValidationError(errors.CodeInvalidAmount, "credit_amount", t.CreditAmount.String(), nil).
			WithSuggestion("a row carries either a debit or a credit, not both")
	}

	if t.DateTime.IsZero() {
		return errors.ValidationError(errors.CodeInvalidDate, "datetime", "", nil)
	}

	if t.Type != DeriveTransactionType(t.DebitAmount) {
		return errors.ValidationError(errors.CodeTypeInconsistent, "transaction_type", string(t.Type), nil)
	}

	return nil
}

// IsDebit returns true if the transaction is a debit
func (t *Transaction) IsDebit() bool {
	return t.Type == TransactionTypeDebit
}

// IsCredit returns true if the transaction is a credit
func (t *Transaction) IsCredit() bool {
	return t.Type == TransactionTypeCredit
}

// Amount returns the nonzero leg
func (t *Transaction) Amount() decimal.Decimal {
	if t.IsDebit() {
		return t.DebitAmount
	}
	return t.CreditAmount
}

func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Account: %s, %s: %s, Time: %s}",
		t.TransactionID, t.AccountID, t.Type, t.Amount().String(), t.DateTime.Format(time.RFC3339))
}

// MarshalJSON writes amounts as decimal strings and the time as RFC 3339
func (t *Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		DateTime     string `json:"datetime"`
		DebitAmount  string `json:"debit_amount"`
		CreditAmount string `json:"credit_amount"`
		Balance      string `json:"balance"`
		*Alias
	}{
		DateTime:     t.DateTime.Format(time.RFC3339),
		DebitAmount:  t.DebitAmount.String(),
		CreditAmount: t.CreditAmount.String(),
		Balance:      t.Balance.String(),
		Alias:        (*Alias)(t),
	})
}

// UnmarshalJSON reverses MarshalJSON. The transaction type is re-derived.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type Alias Transaction
	aux := &struct {
		DateTime     string `json:"datetime"`
		DebitAmount  string `json:"debit_amount"`
		CreditAmount string `json:"credit_amount"`
		Balance      string `json:"balance"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if t.DateTime, err = time.Parse(time.RFC3339, aux.DateTime); err != nil {
		return fmt.Errorf("invalid datetime format: %w", err)
	}
	if t.DebitAmount, err = ParseAmount(aux.DebitAmount); err != nil {
		return fmt.Errorf("invalid debit_amount: %w", err)
	}
	if t.CreditAmount, err = ParseAmount(aux.CreditAmount); err != nil {
		return fmt.Errorf("invalid credit_amount: %w", err)
	}
	if t.Balance, err = ParseAmount(aux.Balance); err != nil {
		return fmt.Errorf("invalid balance: %w", err)
	}
	t.Type = DeriveTransactionType(t.DebitAmount)

	return nil
}

// ParseAmount parses a plain decimal string. Empty input is zero.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	return d, nil
}

// TimeFormats lists the timestamp layouts accepted for normalized input,
// tried in order. Day-first layouts follow statement conventions.
var TimeFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006 15:04:05",
	"02/01/2006, 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// ParseTimeWithFormats parses s using the first matching layout in TimeFormats
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	var lastErr error
	for _, layout := range TimeFormats {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// WithinTolerance reports whether |a - b| <= tolerance
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
