package reconciler

import (
	"sort"

	"github.com/shopspring/decimal"

	"statement-reconciler/internal/models"
)

// Aggregation is the financial picture derived from one run's matches
type Aggregation struct {
	Summary         models.Summary
	Accounts        map[string]*models.AccountSummary
	UnmatchedDebits []*models.Transaction
}

// Aggregate joins the refund and duplicate results with the transactions they
// were computed from. transactions should be in chronological order; the
// unmatched debit list keeps that order. Aggregate does not modify its inputs.
func Aggregate(transactions []*models.Transaction, refunds []models.RefundMatch, duplicates []models.DuplicateGroup) *Aggregation {
	agg := &Aggregation{
		Summary:         newSummary(),
		Accounts:        make(map[string]*models.AccountSummary),
		UnmatchedDebits: make([]*models.Transaction, 0),
	}

	refunded := make(map[string]struct{}, len(refunds))
	for _, r := range refunds {
		refunded[r.DebitTransactionID] = struct{}{}
	}

	sourceFiles := make(map[string]struct{})
	accountFiles := make(map[string]map[string]struct{})

	for _, tx := range transactions {
		account := agg.account(tx.AccountID)
		account.TransactionCount++
		agg.Summary.TotalTransactions++

		if tx.SourceFile != "" {
			sourceFiles[tx.SourceFile] = struct{}{}
			if accountFiles[tx.AccountID] == nil {
				accountFiles[tx.AccountID] = make(map[string]struct{})
			}
			accountFiles[tx.AccountID][tx.SourceFile] = struct{}{}
		}

		if !tx.IsDebit() {
			agg.Summary.TotalCredits = agg.Summary.TotalCredits.Add(tx.CreditAmount)
			account.TotalCredits = account.TotalCredits.Add(tx.CreditAmount)
			continue
		}

		agg.Summary.TotalDebits = agg.Summary.TotalDebits.Add(tx.DebitAmount)
		account.TotalDebits = account.TotalDebits.Add(tx.DebitAmount)

		if _, ok := refunded[tx.TransactionID]; ok {
			continue
		}
		agg.UnmatchedDebits = append(agg.UnmatchedDebits, tx)
		agg.Summary.UnmatchedDebitAmount = agg.Summary.UnmatchedDebitAmount.Add(tx.DebitAmount)
		agg.Summary.UnmatchedDebitsCount++
		account.UnmatchedDebitAmount = account.UnmatchedDebitAmount.Add(tx.DebitAmount)
		account.UnmatchedDebitsCount++
	}

	for _, r := range refunds {
		agg.Summary.TotalRefunded = agg.Summary.TotalRefunded.Add(r.Amount)
		agg.Summary.RefundCount++

		account := agg.account(r.AccountID)
		account.TotalRefunded = account.TotalRefunded.Add(r.Amount)
		account.RefundCount++
	}

	for i := range duplicates {
		g := &duplicates[i]
		agg.Summary.TotalDuplicateAmount = agg.Summary.TotalDuplicateAmount.Add(g.DuplicateAmount)
		agg.Summary.DuplicateGroups++
		if g.CrossAccount {
			agg.Summary.CrossAccountDuplicates++
		} else {
			agg.Summary.SameAccountDuplicates++
		}

		second := agg.account(g.Duplicate().AccountID)
		second.DuplicateAmount = second.DuplicateAmount.Add(g.DuplicateAmount)
	}

	agg.Summary.EstimatedNetLoss = models.NetLoss(
		agg.Summary.TotalDuplicateAmount,
		agg.Summary.TotalDebits,
		agg.Summary.TotalCredits,
		agg.Summary.TotalRefunded,
	)

	for id, account := range agg.Accounts {
		// A group counts once per account it touches
		for i := range duplicates {
			if duplicates[i].Involves(id) {
				account.DuplicateGroups++
			}
		}
		account.EstimatedNetLoss = models.NetLoss(account.DuplicateAmount, account.TotalDebits, account.TotalCredits, account.TotalRefunded)
		account.SourceFiles = sortedKeys(accountFiles[id])
	}

	agg.Summary.TotalAccounts = len(agg.Accounts)
	agg.Summary.TotalSourceFiles = len(sourceFiles)

	return agg
}

// AccountIDs returns the account ids of the aggregation in sorted order
func (a *Aggregation) AccountIDs() []string {
	ids := make([]string, 0, len(a.Accounts))
	for id := range a.Accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (a *Aggregation) account(id string) *models.AccountSummary {
	account, ok := a.Accounts[id]
	if !ok {
		account = newAccountSummary(id)
		a.Accounts[id] = account
	}
	return account
}

func newSummary() models.Summary {
	return models.Summary{
		TotalDebits:          decimal.Zero,
		TotalCredits:         decimal.Zero,
		TotalRefunded:        decimal.Zero,
		TotalDuplicateAmount: decimal.Zero,
		UnmatchedDebitAmount: decimal.Zero,
		EstimatedNetLoss:     decimal.Zero,
	}
}

func newAccountSummary(id string) *models.AccountSummary {
	return &models.AccountSummary{
		AccountID:            id,
		TotalDebits:          decimal.Zero,
		TotalCredits:         decimal.Zero,
		TotalRefunded:        decimal.Zero,
		DuplicateAmount:      decimal.Zero,
		UnmatchedDebitAmount: decimal.Zero,
		EstimatedNetLoss:     decimal.Zero,
		SourceFiles:          []string{},
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
