package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefundMatch pairs a debit with the credit that reversed it
type RefundMatch struct {
	AccountID           string          `json:"account_id"`
	DebitTransactionID  string          `json:"debit_transaction_id"`
	CreditTransactionID string          `json:"credit_transaction_id"`
	DebitDate           time.Time       `json:"debit_date"`
	CreditDate          time.Time       `json:"credit_date"`
	Beneficiary         string          `json:"beneficiary"`
	Amount              decimal.Decimal `json:"amount"`
	DaysToRefund        int             `json:"days_to_refund"`
	HoursToRefund       float64         `json:"hours_to_refund"`
	DebitNarration      string          `json:"debit_narration"`
	CreditNarration     string          `json:"credit_narration"`
	DebitBalance        decimal.Decimal `json:"debit_balance"`
	CreditBalance       decimal.Decimal `json:"credit_balance"`
	SourceFile          string          `json:"source_file,omitempty"`
}

// DuplicateMember is one leg of a duplicate group
type DuplicateMember struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	SourceFile    string          `json:"source_file,omitempty"`
	DateTime      time.Time       `json:"datetime"`
	Narration     string          `json:"narration"`
	Beneficiary   string          `json:"beneficiary"`
	DebitAmount   decimal.Decimal `json:"debit_amount"`
	Balance       decimal.Decimal `json:"balance"`
	IsOriginal    bool            `json:"is_original"`
}

// NewDuplicateMember copies the fields of t that a report needs
func NewDuplicateMember(t *Transaction, original bool) DuplicateMember {
	return DuplicateMember{
		TransactionID: t.TransactionID,
		AccountID:     t.AccountID,
		SourceFile:    t.SourceFile,
		DateTime:      t.DateTime,
		Narration:     t.Narration,
		Beneficiary:   t.Beneficiary,
		DebitAmount:   t.DebitAmount,
		Balance:       t.Balance,
		IsOriginal:    original,
	}
}

// DuplicateGroup is a pair of debits judged to be one payment made twice.
// Transactions[0] is the earlier (original) leg.
type DuplicateGroup struct {
	GroupID             string             `json:"group_id"`
	Fingerprint         string             `json:"fingerprint"`
	Transactions        [2]DuplicateMember `json:"transactions"`
	SimilarityScore     float64            `json:"similarity_score"`
	AmountDifference    decimal.Decimal    `json:"amount_difference"`
	TimeDifferenceDays  int                `json:"time_difference_days"`
	TimeDifferenceHours float64            `json:"time_difference_hours"`
	CrossAccount        bool               `json:"cross_account"`
	DuplicateAmount     decimal.Decimal    `json:"duplicate_amount"`
}

func (g *DuplicateGroup) Original() DuplicateMember {
	return g.Transactions[0]
}

func (g *DuplicateGroup) Duplicate() DuplicateMember {
	return g.Transactions[1]
}

// Involves reports whether either leg belongs to accountID
func (g *DuplicateGroup) Involves(accountID string) bool {
	return g.Transactions[0].AccountID == accountID || g.Transactions[1].AccountID == accountID
}

// Summary is the run-wide financial picture
type Summary struct {
	TotalTransactions      int             `json:"total_transactions"`
	TotalDebits            decimal.Decimal `json:"total_debits"`
	TotalCredits           decimal.Decimal `json:"total_credits"`
	TotalRefunded          decimal.Decimal `json:"total_refunded"`
	TotalDuplicateAmount   decimal.Decimal `json:"total_duplicate_amount"`
	UnmatchedDebitAmount   decimal.Decimal `json:"unmatched_debit_amount"`
	EstimatedNetLoss       decimal.Decimal `json:"estimated_net_loss"`
	RefundCount            int             `json:"refund_count"`
	DuplicateGroups        int             `json:"duplicate_groups"`
	UnmatchedDebitsCount   int             `json:"unmatched_debits_count"`
	SameAccountDuplicates  int             `json:"same_account_duplicates"`
	CrossAccountDuplicates int             `json:"cross_account_duplicates"`
	TotalAccounts          int             `json:"total_accounts"`
	TotalSourceFiles       int             `json:"total_source_files"`
}

// AccountSummary is the Summary scoped to one account
type AccountSummary struct {
	AccountID            string          `json:"account_id"`
	TransactionCount     int             `json:"transaction_count"`
	TotalDebits          decimal.Decimal `json:"total_debits"`
	TotalCredits         decimal.Decimal `json:"total_credits"`
	TotalRefunded        decimal.Decimal `json:"total_refunded"`
	RefundCount          int             `json:"refund_count"`
	DuplicateGroups      int             `json:"duplicate_groups"`
	DuplicateAmount      decimal.Decimal `json:"duplicate_amount"`
	UnmatchedDebitAmount decimal.Decimal `json:"unmatched_debit_amount"`
	UnmatchedDebitsCount int             `json:"unmatched_debits_count"`
	EstimatedNetLoss     decimal.Decimal `json:"estimated_net_loss"`
	SourceFiles          []string        `json:"source_files"`
}

// NetLoss computes max(0, duplicates + (debits - credits - refunded))
func NetLoss(duplicates, debits, credits, refunded decimal.Decimal) decimal.Decimal {
	loss := duplicates.Add(debits.Sub(credits).Sub(refunded))
	if loss.IsNegative() {
		return decimal.Zero
	}
	return loss
}
