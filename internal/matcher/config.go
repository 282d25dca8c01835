// Package matcher implements the two matching passes of a statement
// reconciliation run:
//   - refund detection, pairing each debit with the earliest later credit of
//     the same amount in the same account
//   - duplicate detection, pairing debits that are close in time and amount
//     and whose beneficiaries look alike
//
// Both passes read a chronologically sorted, already validated transaction
// slice and never modify it. Neither pass depends on the other, so callers
// may run them concurrently.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.DuplicateDays = 2
//
//	refunds, err := matcher.NewRefundMatcher().Match(ctx, sorted)
//	groups, err := matcher.NewDuplicateMatcher(config).Match(ctx, sorted)
package matcher

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciler/pkg/errors"
)

// SimilarityAlgorithm names a beneficiary similarity implementation
type SimilarityAlgorithm string

const (
	// SimilarityTokenSet compares the sets of words in both names and is
	// insensitive to word order. This is the default.
	SimilarityTokenSet SimilarityAlgorithm = "token_set"

	// SimilarityJaccard is the plain word-set overlap ratio
	SimilarityJaccard SimilarityAlgorithm = "jaccard"
)

func (a SimilarityAlgorithm) String() string {
	return string(a)
}

// IsValid reports whether the algorithm is known
func (a SimilarityAlgorithm) IsValid() bool {
	return a == SimilarityTokenSet || a == SimilarityJaccard
}

// MatchingConfig holds the thresholds applied by the duplicate matcher.
// Refund matching has no tunables: amounts must be equal and the credit
// must come strictly later.
type MatchingConfig struct {
	// DuplicateDays is the largest whole-day gap between two duplicate debits
	DuplicateDays int `json:"duplicate_days"`

	// AmountThreshold is the largest absolute amount difference between two duplicate debits
	AmountThreshold decimal.Decimal `json:"amount_threshold"`

	// SimilarityThreshold is the minimum beneficiary similarity, 0 to 100
	SimilarityThreshold float64 `json:"similarity_threshold"`

	SimilarityAlgorithm SimilarityAlgorithm `json:"similarity_algorithm"`
}

// DefaultMatchingConfig returns 3 days, 1000 units and 80% token-set similarity
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DuplicateDays:       3,
		AmountThreshold:     decimal.NewFromInt(1000),
		SimilarityThreshold: 80,
		SimilarityAlgorithm: SimilarityTokenSet,
	}
}

// StrictMatchingConfig only flags near-identical debits on the same day window
func StrictMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DuplicateDays:       1,
		AmountThreshold:     decimal.Zero,
		SimilarityThreshold: 95,
		SimilarityAlgorithm: SimilarityTokenSet,
	}
}

// RelaxedMatchingConfig casts a wider net for exploratory review
func RelaxedMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DuplicateDays:       7,
		AmountThreshold:     decimal.NewFromInt(5000),
		SimilarityThreshold: 70,
		SimilarityAlgorithm: SimilarityTokenSet,
	}
}

// Names of the bundled threshold presets
const (
	PresetDefault = "default"
	PresetStrict  = "strict"
	PresetRelaxed = "relaxed"
)

// PresetNames lists the names PresetMatchingConfig accepts
func PresetNames() []string {
	return []string{PresetDefault, PresetStrict, PresetRelaxed}
}

// PresetMatchingConfig returns the preset called name. An empty name is the
// default preset.
func PresetMatchingConfig(name string) (*MatchingConfig, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PresetDefault:
		return DefaultMatchingConfig(), nil
	case PresetStrict:
		return StrictMatchingConfig(), nil
	case PresetRelaxed:
		return RelaxedMatchingConfig(), nil
	}
	return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching_preset", name, nil).
		WithSuggestion("use one of: " + strings.Join(PresetNames(), ", "))
}

// Validate rejects settings that would produce meaningless matches
func (mc *MatchingConfig) Validate() error {
	if mc == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "matching", nil, nil)
	}

	if mc.DuplicateDays < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "duplicate_days", mc.DuplicateDays, nil).
			WithSuggestion("duplicate_days must be zero or greater")
	}

	if mc.AmountThreshold.IsNegative() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "amount_threshold", mc.AmountThreshold.String(), nil).
			WithSuggestion("amount_threshold must be zero or greater")
	}

	if math.IsNaN(mc.SimilarityThreshold) || mc.SimilarityThreshold < 0 || mc.SimilarityThreshold > 100 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "similarity_threshold", mc.SimilarityThreshold, nil).
			WithSuggestion("similarity_threshold must be between 0 and 100")
	}

	if !mc.SimilarityAlgorithm.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "similarity_algorithm", string(mc.SimilarityAlgorithm), nil).
			WithSuggestion(fmt.Sprintf("use %q or %q", SimilarityTokenSet, SimilarityJaccard))
	}

	return nil
}

// Clone creates a deep copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	clone := *mc
	return &clone
}

// Scorer returns the similarity implementation the config selects
func (mc *MatchingConfig) Scorer() SimilarityScorer {
	if mc.SimilarityAlgorithm == SimilarityJaccard {
		return JaccardScorer{}
	}
	return TokenSetScorer{}
}

// WholeDays returns the number of complete 24 hour periods between a and b,
// ignoring direction
func WholeDays(a, b time.Time) int {
	diff := b.Sub(a)
	if diff < 0 {
		diff = -diff
	}
	return int(diff / (24 * time.Hour))
}

// WithinDuplicateWindow reports whether a and b are at most DuplicateDays whole days apart
func (mc *MatchingConfig) WithinDuplicateWindow(a, b time.Time) bool {
	return WholeDays(a, b) <= mc.DuplicateDays
}

func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{DuplicateDays: %d, AmountThreshold: %s, SimilarityThreshold: %.1f, Algorithm: %s}",
		mc.DuplicateDays, mc.AmountThreshold.String(), mc.SimilarityThreshold, mc.SimilarityAlgorithm)
}
