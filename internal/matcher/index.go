package matcher

import (
	"sort"

	"statement-reconciler/internal/models"
)

// SortChronologically returns a copy of transactions ordered by DateTime.
// Equal timestamps keep their input order, so the result is deterministic.
func SortChronologically(transactions []*models.Transaction) []*models.Transaction {
	sorted := make([]*models.Transaction, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DateTime.Before(sorted[j].DateTime)
	})
	return sorted
}

// creditKey buckets credits that could refund the same debit. Decimal
// String() is canonical, so equal amounts share a key.
type creditKey struct {
	accountID string
	amount    string
}

type creditEntry struct {
	tx       *models.Transaction
	consumed bool
}

// CreditIndex holds the credits of a run bucketed by account and amount,
// each bucket in chronological order. A credit handed out by Claim is
// consumed and never offered again.
type CreditIndex struct {
	buckets map[creditKey][]*creditEntry
	size    int
}

// NewCreditIndex indexes the positive credits of sorted. sorted must be in
// chronological order; ties keep their relative order.
func NewCreditIndex(sorted []*models.Transaction) *CreditIndex {
	index := &CreditIndex{
		buckets: make(map[creditKey][]*creditEntry),
	}

	for _, tx := range sorted {
		if !tx.IsCredit() || !tx.CreditAmount.IsPositive() {
			continue
		}
		key := creditKey{accountID: tx.AccountID, amount: tx.CreditAmount.String()}
		index.buckets[key] = append(index.buckets[key], &creditEntry{tx: tx})
		index.size++
	}

	return index
}

// Claim returns the earliest unconsumed credit in the debit's account whose
// amount equals the debit amount and whose time is strictly after the
// debit, marking it consumed. It returns nil when no credit qualifies.
func (ci *CreditIndex) Claim(debit *models.Transaction) *models.Transaction {
	bucket := ci.buckets[creditKey{accountID: debit.AccountID, amount: debit.DebitAmount.String()}]
	if len(bucket) == 0 {
		return nil
	}

	start := sort.Search(len(bucket), func(i int) bool {
		return bucket[i].tx.DateTime.After(debit.DateTime)
	})

	for i := start; i < len(bucket); i++ {
		if bucket[i].consumed {
			continue
		}
		bucket[i].consumed = true
		return bucket[i].tx
	}

	return nil
}

// Len returns the number of indexed credits
func (ci *CreditIndex) Len() int {
	return ci.size
}
