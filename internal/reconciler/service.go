package reconciler

import (
	"context"
	"fmt"
	"time"

	"statement-reconciler/internal/models"
	"statement-reconciler/internal/parsers"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// Request names the statement files of one run and an optional date window
type Request struct {
	Files     []string
	StartDate *time.Time
	EndDate   *time.Time
}

// Validate validates the reconciliation request
func (r *Request) Validate() error {
	if r == nil || len(r.Files) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "files", nil, nil).
			WithSuggestion("pass at least one statement file with --files")
	}

	seen := make(map[string]bool, len(r.Files))
	for _, file := range r.Files {
		if file == "" {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "files", file, nil)
		}
		if seen[file] {
			return errors.ConfigurationError(errors.CodeConfigConflict, "files", file, nil).
				WithSuggestion("each statement file may only be given once")
		}
		seen[file] = true
	}

	if r.StartDate != nil && r.EndDate != nil && r.StartDate.After(*r.EndDate) {
		return errors.ConfigurationError(errors.CodeConfigConflict, "start_date", r.StartDate.Format(time.RFC3339), nil).
			WithSuggestion("start date must not be after end date")
	}

	return nil
}

// DateRange represents a date range filter
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Contains reports whether t falls inside the range, both ends inclusive
func (d *DateRange) Contains(t time.Time) bool {
	if d == nil {
		return true
	}
	if d.Start != nil && t.Before(*d.Start) {
		return false
	}
	if d.End != nil && t.After(*d.End) {
		return false
	}
	return true
}

// IngestionStats describes how the input files were read
type IngestionStats struct {
	FilesProcessed int                   `json:"files_processed"`
	RecordsParsed  int                   `json:"records_parsed"`
	RecordsValid   int                   `json:"records_valid"`
	RejectedRows   int                   `json:"rejected_rows"`
	OutsideRange   int                   `json:"outside_date_range"`
	ParsingTime    time.Duration         `json:"parsing_time"`
	Files          []*parsers.ParseStats `json:"files"`
	RowErrors      []*errors.RowError    `json:"-"`
}

// ReconciliationResult is the outcome of a full run from files to result
type ReconciliationResult struct {
	*Result
	Ingestion *IngestionStats `json:"ingestion"`
	DateRange *DateRange      `json:"date_range,omitempty"`
}

// Service reads statement files and reconciles their transactions
type Service struct {
	parser *parsers.ConcurrentParser
	engine *Engine
	logger logger.Logger
}

// NewService creates a service from a parser configuration and an engine
// configuration. Engine options are passed through to NewEngine.
func NewService(parserConfig *parsers.TransactionParserConfig, config *Config, opts ...EngineOption) (*Service, error) {
	transactionParser, err := parsers.NewTransactionParser(parserConfig)
	if err != nil {
		return nil, err
	}

	engine, err := NewEngine(config, opts...)
	if err != nil {
		return nil, err
	}

	return &Service{
		parser: parsers.NewConcurrentParser(transactionParser),
		engine: engine,
		logger: logger.GetGlobalLogger().WithComponent("reconciliation_service"),
	}, nil
}

// Process reads every file in the request, drops transactions outside the
// requested date range and reconciles the rest
func (s *Service) Process(ctx context.Context, request *Request) (*ReconciliationResult, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	op := logger.NewOperationLogger("process_reconciliation", s.logger).WithField("files", len(request.Files))

	parseStart := time.Now()
	parsed, err := s.parser.ParseFiles(ctx, request.Files)
	if err != nil {
		op.Error(err, "Failed to read statement files")
		return nil, err
	}

	ingestion := newIngestionStats(parsed)
	ingestion.ParsingTime = time.Since(parseStart)
	if ingestion.RejectedRows > 0 {
		op.Warning(fmt.Sprintf("%d rows were rejected and left out of the run", ingestion.RejectedRows))
	}

	var dateRange *DateRange
	transactions := parsed.Transactions
	if request.StartDate != nil || request.EndDate != nil {
		dateRange = &DateRange{Start: request.StartDate, End: request.EndDate}
		transactions = filterByDate(transactions, dateRange)
		ingestion.OutsideRange = len(parsed.Transactions) - len(transactions)
	}

	op.Step("reconcile", logger.Fields{
		"transactions":  len(transactions),
		"rejected_rows": ingestion.RejectedRows,
		"outside_range": ingestion.OutsideRange,
	})

	result, err := s.engine.Reconcile(ctx, transactions)
	if err != nil {
		op.Error(err, "Reconciliation failed")
		return nil, err
	}

	op.Success("Reconciliation run completed", logger.Fields{
		"refunds":    len(result.Refunds),
		"duplicates": len(result.Duplicates),
		"unmatched":  len(result.UnmatchedDebits),
	})

	return &ReconciliationResult{
		Result:    result,
		Ingestion: ingestion,
		DateRange: dateRange,
	}, nil
}

func newIngestionStats(parsed *parsers.MultiFileResult) *IngestionStats {
	stats := &IngestionStats{
		FilesProcessed: len(parsed.Files),
		Files:          make([]*parsers.ParseStats, 0, len(parsed.Files)),
		RowErrors:      make([]*errors.RowError, 0),
	}

	for _, file := range parsed.Files {
		stats.Files = append(stats.Files, file.Stats)
		stats.RecordsParsed += file.Stats.RecordsParsed
		stats.RecordsValid += file.Stats.RecordsValid
		stats.RejectedRows += file.Stats.ErrorCount
		stats.RowErrors = append(stats.RowErrors, file.Stats.Errors...)
	}
	return stats
}

func filterByDate(transactions []*models.Transaction, dateRange *DateRange) []*models.Transaction {
	filtered := make([]*models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if dateRange.Contains(tx.DateTime) {
			filtered = append(filtered, tx)
		}
	}
	return filtered
}
