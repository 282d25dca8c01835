package parsers

import (
	"strings"

	"statement-reconciler/pkg/errors"
)

// Standard column names of a normalized statement CSV
const (
	ColumnAccountID   = "account_id"
	ColumnDateTime    = "datetime"
	ColumnNarration   = "narration"
	ColumnDebit       = "debit"
	ColumnCredit      = "credit"
	ColumnBalance     = "balance"
	ColumnBeneficiary = "beneficiary"
	ColumnReference   = "reference"
	ColumnSourceFile  = "source_file"
)

// defaultAliases lists the header spellings accepted for each standard column.
// Matching is case-insensitive and ignores surrounding whitespace.
var defaultAliases = map[string][]string{
	ColumnAccountID:   {"account", "account_number", "acct", "account id"},
	ColumnDateTime:    {"date", "date_time", "transaction_date", "trans_date", "timestamp", "time"},
	ColumnNarration:   {"description", "details", "narrative", "remarks"},
	ColumnDebit:       {"debit_amount", "withdrawal", "withdrawals", "dr", "money_out"},
	ColumnCredit:      {"credit_amount", "deposit", "deposits", "cr", "money_in"},
	ColumnBalance:     {"running_balance", "closing_balance"},
	ColumnBeneficiary: {"payee"},
	ColumnReference:   {"ref", "reference_number"},
	ColumnSourceFile:  {"source", "file"},
}

// TransactionParserConfig holds configuration for reading normalized transaction CSV files
type TransactionParserConfig struct {
	Delimiter rune `json:"delimiter"`

	// ColumnAliases adds header spellings on top of the built-in ones,
	// keyed by standard column name
	ColumnAliases map[string][]string `json:"column_aliases,omitempty"`

	// InferAccount derives a missing account id from the file name
	InferAccount bool `json:"infer_account"`

	// DefaultAccountID is used for rows without an account id when
	// InferAccount is off
	DefaultAccountID string `json:"default_account_id,omitempty"`

	// MaxErrors stops recording row errors once reached; rows are still
	// rejected. Zero records every error.
	MaxErrors int `json:"max_errors"`

	// MaxConcurrentFiles bounds how many files are read at once
	MaxConcurrentFiles int `json:"max_concurrent_files"`
}

// DefaultTransactionParserConfig returns a configuration with standard defaults
func DefaultTransactionParserConfig() *TransactionParserConfig {
	return &TransactionParserConfig{
		Delimiter:          ',',
		ColumnAliases:      make(map[string][]string),
		MaxErrors:          1000,
		MaxConcurrentFiles: 4,
	}
}

// Validate checks if the transaction parser configuration is valid
func (c *TransactionParserConfig) Validate() error {
	if c.Delimiter == 0 || c.Delimiter == '"' || c.Delimiter == '\r' || c.Delimiter == '\n' {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "delimiter", string(c.Delimiter), nil).
			WithSuggestion("use a single separator character such as ',' or ';'")
	}

	if c.MaxErrors < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_errors", c.MaxErrors, nil)
	}

	if c.MaxConcurrentFiles <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_concurrent_files", c.MaxConcurrentFiles, nil).
			WithSuggestion("max_concurrent_files must be at least 1")
	}

	for column := range c.ColumnAliases {
		if _, ok := defaultAliases[column]; !ok {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "column_aliases", column, nil).
				WithSuggestion("aliases can only be given for the standard columns")
		}
	}

	if c.InferAccount && strings.TrimSpace(c.DefaultAccountID) != "" {
		return errors.ConfigurationError(errors.CodeConfigConflict, "infer_account", c.DefaultAccountID, nil).
			WithSuggestion("set either infer_account or default_account_id, not both")
	}

	return nil
}

// RequiredColumns returns the standard columns a file must have
func (c *TransactionParserConfig) RequiredColumns() []string {
	required := []string{ColumnDateTime, ColumnNarration, ColumnDebit, ColumnCredit}
	if !c.InferAccount && c.DefaultAccountID == "" {
		required = append([]string{ColumnAccountID}, required...)
	}
	return required
}

// Aliases returns every accepted header spelling for a standard column,
// the standard name first
func (c *TransactionParserConfig) Aliases(column string) []string {
	names := []string{column}
	names = append(names, defaultAliases[column]...)
	names = append(names, c.ColumnAliases[column]...)
	return names
}
