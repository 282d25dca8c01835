package parsers

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"statement-reconciler/internal/models"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// knownColumns are resolved from the header in this order
var knownColumns = []string{
	ColumnAccountID, ColumnDateTime, ColumnNarration, ColumnDebit, ColumnCredit,
	ColumnBalance, ColumnBeneficiary, ColumnReference, ColumnSourceFile,
}

// TransactionParser reads normalized statement CSV files
type TransactionParser struct {
	*BaseParser
	config *TransactionParserConfig
	logger logger.Logger
}

// NewTransactionParser creates a new TransactionParser with the given configuration
func NewTransactionParser(config *TransactionParserConfig) (*TransactionParser, error) {
	if config == nil {
		config = DefaultTransactionParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	parseConfig := DefaultParseConfig()
	parseConfig.Delimiter = config.Delimiter

	log := logger.GetGlobalLogger().WithComponent("transaction_parser")
	log.WithFields(logger.Fields{
		"delimiter":     string(config.Delimiter),
		"infer_account": config.InferAccount,
	}).Debug("Created transaction parser")

	return &TransactionParser{
		BaseParser: NewBaseParser(parseConfig),
		config:     config,
		logger:     log,
	}, nil
}

// ParseFile reads every valid transaction from a CSV file. Rejected rows are
// reported in the returned stats; the error is reserved for failures that
// stop the whole file.
func (tp *TransactionParser) ParseFile(ctx context.Context, filePath string) ([]*models.Transaction, *ParseStats, error) {
	file, reader, err := tp.OpenFile(filePath)
	if err != nil {
		tp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open transaction file")
		return nil, nil, err
	}
	defer file.Close()

	transactions, stats, err := tp.parse(ctx, reader, filePath)
	if err != nil {
		return nil, stats, err
	}
	return transactions, stats, nil
}

// ParseReader reads transactions from r. source names the input in errors
// and is used for source_file and account inference.
func (tp *TransactionParser) ParseReader(ctx context.Context, r io.Reader, source string) ([]*models.Transaction, *ParseStats, error) {
	return tp.parse(ctx, tp.NewReader(r), source)
}

func (tp *TransactionParser) parse(ctx context.Context, reader *csv.Reader, source string) ([]*models.Transaction, *ParseStats, error) {
	op := logger.NewOperationLogger("parse_transactions", tp.logger).WithField("source", source)
	pc := NewParseContext(ctx, source)
	stats := NewParseStats(source, tp.config.MaxErrors)

	if err := tp.ReadHeaders(reader, pc, tp.config.Aliases, knownColumns, tp.config.RequiredColumns()); err != nil {
		op.Error(err, "Failed to read header")
		return nil, stats, err
	}

	transactions := make([]*models.Transaction, 0)
	for {
		record, err := tp.ReadRecord(reader, pc)
		if err == io.EOF {
			break
		}
		if err != nil {
			var rowErr *errors.RowError
			if stderrors.As(err, &rowErr) {
				stats.RecordsParsed++
				stats.AddError(rowErr)
				continue
			}
			if ctx.Err() != nil {
				return nil, stats, errors.ReconciliationError(errors.CodeCancelled, "csv_parsing", err)
			}
			return nil, stats, errors.WrapIfNeeded(err, errors.CategoryFile, errors.CodeFileUnreadable, "failed to read "+source)
		}

		stats.RecordsParsed++

		tx, err := tp.rowToTransaction(record, pc)
		if err == nil {
			err = tx.Validate()
		}
		if err != nil {
			stats.AddError(errors.NewRowError(source, pc.LineNumber, err).WithRaw(record))
			continue
		}

		transactions = append(transactions, tx)
		stats.RecordsValid++
	}

	stats.TotalLines = pc.LineNumber

	if stats.HasErrors() {
		tp.logger.WithFields(logger.Fields{
			"source":        source,
			"rejected":      stats.ErrorCount,
			"sample_errors": stats.SampleErrors(3),
		}).Warn("Rejected rows while reading transactions")
	}
	op.Success("Transaction parsing completed", logger.Fields{
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
	})

	return transactions, stats, nil
}

// rowToTransaction converts one CSV record. The position used in the
// transaction id is the record's ordinal among the data rows of its source.
func (tp *TransactionParser) rowToTransaction(record []string, pc *ParseContext) (*models.Transaction, error) {
	field := func(column string) string {
		return tp.FieldValue(record, pc, column)
	}

	rawTime := field(ColumnDateTime)
	at, err := models.ParseTimeWithFormats(rawTime)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidDate, pc.Source, pc.LineNumber, ColumnDateTime, rawTime, err)
	}

	amounts := make(map[string]decimal.Decimal, 3)
	for _, column := range []string{ColumnDebit, ColumnCredit, ColumnBalance} {
		raw := field(column)
		value, err := models.ParseAmount(raw)
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidAmount, pc.Source, pc.LineNumber, column, raw, err)
		}
		amounts[column] = value
	}

	tx := models.NewTransaction(
		tp.accountID(field(ColumnAccountID), pc.Source),
		pc.RecordCount,
		at,
		field(ColumnNarration),
		amounts[ColumnDebit],
		amounts[ColumnCredit],
		amounts[ColumnBalance],
	)

	if beneficiary := field(ColumnBeneficiary); beneficiary != "" {
		tx.Beneficiary = strings.ToUpper(beneficiary)
	}
	tx.Reference = field(ColumnReference)
	tx.SourceFile = field(ColumnSourceFile)
	if tx.SourceFile == "" {
		tx.SourceFile = filepath.Base(pc.Source)
	}

	return tx, nil
}

func (tp *TransactionParser) accountID(value, source string) string {
	switch {
	case value != "":
		return value
	case tp.config.InferAccount:
		return models.AccountIDFromFilename(source)
	default:
		return tp.config.DefaultAccountID
	}
}
