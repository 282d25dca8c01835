package testutil

import (
	"fmt"

	"github.com/shopspring/decimal"

	"statement-reconciler/internal/models"
)

// Rules are the duplicate thresholds an outcome is checked against
type Rules struct {
	DuplicateDays       int
	AmountThreshold     decimal.Decimal
	SimilarityThreshold float64
}

// Outcome is the part of a reconciliation result the checker inspects
type Outcome struct {
	Refunds         []models.RefundMatch
	Duplicates      []models.DuplicateGroup
	UnmatchedDebits []*models.Transaction
}

// CheckOutcome verifies that outcome is consistent with transactions and
// rules, returning one message per violation
func CheckOutcome(transactions []*models.Transaction, outcome Outcome, rules Rules) []string {
	byID := make(map[string]*models.Transaction, len(transactions))
	for _, tx := range transactions {
		byID[tx.TransactionID] = tx
	}

	var violations []string
	fail := func(format string, args ...interface{}) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	refunded := make(map[string]bool)
	claimed := make(map[string]bool)
	for _, refund := range outcome.Refunds {
		debit, credit := byID[refund.DebitTransactionID], byID[refund.CreditTransactionID]
		if debit == nil || credit == nil {
			fail("refund %s -> %s names an unknown transaction", refund.DebitTransactionID, refund.CreditTransactionID)
			continue
		}
		if !debit.IsDebit() || !credit.IsCredit() {
			fail("refund %s -> %s does not pair a debit with a credit", debit.TransactionID, credit.TransactionID)
		}
		if debit.AccountID != credit.AccountID || refund.AccountID != debit.AccountID {
			fail("refund %s -> %s crosses accounts", debit.TransactionID, credit.TransactionID)
		}
		if !debit.DebitAmount.Equal(credit.CreditAmount) || !refund.Amount.Equal(debit.DebitAmount) {
			fail("refund %s -> %s amounts differ: %s vs %s", debit.TransactionID, credit.TransactionID,
				debit.DebitAmount, credit.CreditAmount)
		}
		if !credit.DateTime.After(debit.DateTime) {
			fail("refund %s -> %s credit is not after the debit", debit.TransactionID, credit.TransactionID)
		}
		if want := wholeDays(debit, credit); refund.DaysToRefund != want {
			fail("refund %s days: got %d, want %d", debit.TransactionID, refund.DaysToRefund, want)
		}
		if refunded[debit.TransactionID] {
			fail("debit %s refunded twice", debit.TransactionID)
		}
		if claimed[credit.TransactionID] {
			fail("credit %s claimed twice", credit.TransactionID)
		}
		refunded[debit.TransactionID] = true
		claimed[credit.TransactionID] = true
	}

	pairs := make(map[string]bool)
	for i, group := range outcome.Duplicates {
		if want := fmt.Sprintf("DUP_%d", i+1); group.GroupID != want {
			fail("group %d id: got %s, want %s", i, group.GroupID, want)
		}
		first, second := byID[group.Transactions[0].TransactionID], byID[group.Transactions[1].TransactionID]
		if first == nil || second == nil {
			fail("group %s names an unknown transaction", group.GroupID)
			continue
		}
		if !first.IsDebit() || !second.IsDebit() {
			fail("group %s contains a credit", group.GroupID)
		}
		if first.TransactionID == second.TransactionID {
			fail("group %s pairs %s with itself", group.GroupID, first.TransactionID)
		}
		if second.DateTime.Before(first.DateTime) {
			fail("group %s original leg is the later one", group.GroupID)
		}
		if wholeDays(first, second) > rules.DuplicateDays || group.TimeDifferenceDays > rules.DuplicateDays {
			fail("group %s legs are %d days apart", group.GroupID, wholeDays(first, second))
		}
		if !models.WithinTolerance(first.DebitAmount, second.DebitAmount, rules.AmountThreshold) {
			fail("group %s amounts %s and %s are outside the threshold", group.GroupID, first.DebitAmount, second.DebitAmount)
		}
		if group.SimilarityScore < rules.SimilarityThreshold {
			fail("group %s similarity %.1f is below the threshold", group.GroupID, group.SimilarityScore)
		}
		if group.CrossAccount != (first.AccountID != second.AccountID) {
			fail("group %s cross account flag is wrong", group.GroupID)
		}
		if !group.DuplicateAmount.Equal(second.DebitAmount) {
			fail("group %s duplicate amount %s, want %s", group.GroupID, group.DuplicateAmount, second.DebitAmount)
		}

		key := pairKey(first.TransactionID, second.TransactionID)
		if pairs[key] {
			fail("pair %s reported twice", key)
		}
		pairs[key] = true
	}

	unmatched := make(map[string]bool, len(outcome.UnmatchedDebits))
	for i, tx := range outcome.UnmatchedDebits {
		if !tx.IsDebit() {
			fail("unmatched %s is not a debit", tx.TransactionID)
		}
		if refunded[tx.TransactionID] {
			fail("unmatched %s was refunded", tx.TransactionID)
		}
		if i > 0 && tx.DateTime.Before(outcome.UnmatchedDebits[i-1].DateTime) {
			fail("unmatched %s is out of chronological order", tx.TransactionID)
		}
		unmatched[tx.TransactionID] = true
	}
	for _, tx := range transactions {
		if tx.IsDebit() && !refunded[tx.TransactionID] && !unmatched[tx.TransactionID] {
			fail("debit %s is neither refunded nor unmatched", tx.TransactionID)
		}
	}

	return violations
}

// MissingPlanted lists the planted refunds and duplicates that outcome did
// not report
func MissingPlanted(dataset *Dataset, outcome Outcome) []string {
	refunds := make(map[string]string, len(outcome.Refunds))
	for _, refund := range outcome.Refunds {
		refunds[refund.DebitTransactionID] = refund.CreditTransactionID
	}
	groups := make(map[string]models.DuplicateGroup, len(outcome.Duplicates))
	for _, group := range outcome.Duplicates {
		groups[pairKey(group.Transactions[0].TransactionID, group.Transactions[1].TransactionID)] = group
	}

	var missing []string
	for _, planted := range dataset.Refunds {
		if refunds[planted.DebitID] != planted.CreditID {
			missing = append(missing, fmt.Sprintf("refund %s -> %s", planted.DebitID, planted.CreditID))
		}
	}
	for _, planted := range dataset.Duplicates {
		group, ok := groups[pairKey(planted.OriginalID, planted.DuplicateID)]
		if !ok || group.CrossAccount != planted.CrossAccount {
			missing = append(missing, fmt.Sprintf("duplicate %s / %s", planted.OriginalID, planted.DuplicateID))
		}
	}
	return missing
}

func wholeDays(a, b *models.Transaction) int {
	diff := b.DateTime.Sub(a.DateTime)
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours()) / 24
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
