package matcher

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"statement-reconciler/internal/models"
)

// fingerprintNamespace scopes the name-based UUIDs given to duplicate groups
var fingerprintNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("statement-reconciler/duplicate-group"))

// DuplicateMatcher finds pairs of debits that look like one payment made
// twice: at most DuplicateDays whole days apart, amounts within
// AmountThreshold, and beneficiary similarity at or above
// SimilarityThreshold. A debit may appear in several groups.
type DuplicateMatcher struct {
	config *MatchingConfig
	opts   options
}

// NewDuplicateMatcher creates a duplicate matcher. A nil config uses
// DefaultMatchingConfig; the config is expected to be valid.
func NewDuplicateMatcher(config *MatchingConfig, opts ...Option) *DuplicateMatcher {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	m := &DuplicateMatcher{
		config: config.Clone(),
		opts:   applyOptions(opts),
	}
	if m.opts.scorer == nil {
		m.opts.scorer = m.config.Scorer()
	}
	return m
}

// Match returns the duplicate groups among the debits of transactions in
// emission order. Groups are numbered DUP_1, DUP_2 and so on.
func (m *DuplicateMatcher) Match(ctx context.Context, transactions []*models.Transaction) ([]models.DuplicateGroup, error) {
	debits := make([]*models.Transaction, 0, len(transactions))
	for _, tx := range SortChronologically(transactions) {
		if tx.IsDebit() {
			debits = append(debits, tx)
		}
	}

	progress := newProgressReporter(m.opts.observer, StageDuplicateDetection, len(debits))
	groups := make([]models.DuplicateGroup, 0)
	seen := make(map[string]struct{})
	compared := 0

	for i, first := range debits {
		for j := i + 1; j < len(debits); j++ {
			second := debits[j]

			if compared%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			compared++

			// Later debits are only further away
			if !m.config.WithinDuplicateWindow(first.DateTime, second.DateTime) {
				break
			}

			if !models.WithinTolerance(first.DebitAmount, second.DebitAmount, m.config.AmountThreshold) {
				continue
			}

			score := m.opts.scorer.Score(first.Beneficiary, second.Beneficiary)
			if score < m.config.SimilarityThreshold {
				continue
			}

			key := PairKey(first.TransactionID, second.TransactionID)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			groups = append(groups, newDuplicateGroup(len(groups)+1, key, first, second, score))
		}

		progress.step(i + 1)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

// PairKey returns the order-independent key of two transaction ids
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Fingerprint returns the stable name-based UUID of a pair key
func Fingerprint(pairKey string) string {
	return uuid.NewSHA1(fingerprintNamespace, []byte(pairKey)).String()
}

func newDuplicateGroup(n int, key string, first, second *models.Transaction, score float64) models.DuplicateGroup {
	elapsed := second.DateTime.Sub(first.DateTime)

	return models.DuplicateGroup{
		GroupID:     fmt.Sprintf("DUP_%d", n),
		Fingerprint: Fingerprint(key),
		Transactions: [2]models.DuplicateMember{
			models.NewDuplicateMember(first, true),
			models.NewDuplicateMember(second, false),
		},
		SimilarityScore:     score,
		AmountDifference:    first.DebitAmount.Sub(second.DebitAmount).Abs(),
		TimeDifferenceDays:  WholeDays(first.DateTime, second.DateTime),
		TimeDifferenceHours: roundHours(elapsed.Hours()),
		CrossAccount:        first.AccountID != second.AccountID,
		DuplicateAmount:     second.DebitAmount,
	}
}
