package matcher

import (
	"context"
	"math"

	"statement-reconciler/internal/models"
)

// cancelCheckInterval is how many loop iterations pass between context checks
const cancelCheckInterval = 256

// RefundMatcher pairs debits with the credits that reversed them. Debits
// are visited in chronological order and each takes the earliest later
// credit of the same amount in its account. A credit refunds at most one
// debit; the first debit to reach it wins.
type RefundMatcher struct {
	opts options
}

// NewRefundMatcher creates a refund matcher
func NewRefundMatcher(opts ...Option) *RefundMatcher {
	return &RefundMatcher{opts: applyOptions(opts)}
}

// Match returns the refund pairs found in transactions. Ties in DateTime
// are broken by input position. It returns ctx.Err() if the context is
// cancelled during the scan.
func (m *RefundMatcher) Match(ctx context.Context, transactions []*models.Transaction) ([]models.RefundMatch, error) {
	sorted := SortChronologically(transactions)
	credits := NewCreditIndex(sorted)

	debits := 0
	for _, tx := range sorted {
		if tx.IsDebit() {
			debits++
		}
	}

	progress := newProgressReporter(m.opts.observer, StageRefundDetection, debits)
	matches := make([]models.RefundMatch, 0)
	if debits == 0 || credits.Len() == 0 {
		if debits > 0 {
			progress.step(debits)
		}
		return matches, nil
	}

	processed := 0
	for _, debit := range sorted {
		if !debit.IsDebit() {
			continue
		}

		if processed%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		if credit := credits.Claim(debit); credit != nil {
			matches = append(matches, newRefundMatch(debit, credit))
		}

		processed++
		progress.step(processed)
	}

	return matches, nil
}

func newRefundMatch(debit, credit *models.Transaction) models.RefundMatch {
	elapsed := credit.DateTime.Sub(debit.DateTime)

	return models.RefundMatch{
		AccountID:           debit.AccountID,
		DebitTransactionID:  debit.TransactionID,
		CreditTransactionID: credit.TransactionID,
		DebitDate:           debit.DateTime,
		CreditDate:          credit.DateTime,
		Beneficiary:         debit.Beneficiary,
		Amount:              debit.DebitAmount,
		DaysToRefund:        WholeDays(debit.DateTime, credit.DateTime),
		HoursToRefund:       roundHours(elapsed.Hours()),
		DebitNarration:      debit.Narration,
		CreditNarration:     credit.Narration,
		DebitBalance:        debit.Balance,
		CreditBalance:       credit.Balance,
		SourceFile:          debit.SourceFile,
	}
}

// roundHours rounds to two decimal places
func roundHours(h float64) float64 {
	return math.Round(h*100) / 100
}
