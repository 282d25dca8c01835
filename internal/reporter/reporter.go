// Package reporter renders reconciliation results for people and programs.
//
// Supported output formats:
//   - Console: sectioned, human-readable text for a terminal
//   - JSON: the complete result for programmatic consumption
//   - CSV: one row per flagged item for spreadsheet review
//
// Console and CSV output honor the Include* switches of ReportConfig. JSON
// output always carries the full result; run statistics and ingestion
// details are only added when IncludeRunStats is set, so two runs over the
// same input produce identical JSON.
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(reporter.DefaultReportConfig())
//	if err != nil {
//		return err
//	}
//	err = generator.GenerateReport(run, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciler/internal/models"
	"statement-reconciler/internal/reconciler"
	"statement-reconciler/pkg/errors"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// CSV row kinds
const (
	KindRefund    = "refund"
	KindDuplicate = "duplicate"
	KindUnmatched = "unmatched"
)

const timeLayout = "2006-01-02 15:04:05"

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeRefunds          bool `json:"include_refunds"`
	IncludeDuplicates       bool `json:"include_duplicates"`
	IncludeUnmatchedDebits  bool `json:"include_unmatched_debits"`
	IncludeAccountBreakdown bool `json:"include_account_breakdown"`
	IncludeRejectedRows     bool `json:"include_rejected_rows"`
	IncludeRunStats         bool `json:"include_run_stats"`

	// Console formatting options. MaxListItems of zero lists everything.
	MaxListItems  int `json:"max_list_items"`
	TableMaxWidth int `json:"table_max_width"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`

	// SortByAmount lists unmatched debits largest first instead of chronologically
	SortByAmount bool `json:"sort_by_amount"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                  FormatConsole,
		IncludeRefunds:          true,
		IncludeDuplicates:       true,
		IncludeUnmatchedDebits:  true,
		IncludeAccountBreakdown: true,
		IncludeRejectedRows:     true,
		IncludeRunStats:         false,
		MaxListItems:            20,
		TableMaxWidth:           120,
		CSVDelimiter:            ',',
		CSVHeaders:              true,
		SortByAmount:            false,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output_format", c.Format, nil).
			WithSuggestion("use one of: console, json, csv")
	}

	if c.TableMaxWidth < 50 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "table_max_width", c.TableMaxWidth, nil).
			WithSuggestion("table max width must be at least 50 characters")
	}

	if c.MaxListItems < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_list_items", c.MaxListItems, nil)
	}

	if c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n' || c.CSVDelimiter == '\r' {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "csv_delimiter", string(c.CSVDelimiter), nil)
	}

	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport writes a report for a full run to writer
func (rg *ReportGenerator) GenerateReport(run *reconciler.ReconciliationResult, writer io.Writer) error {
	if run == nil || run.Result == nil {
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil).
			WithSuggestion("provide a reconciliation result")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(run, writer)
	case FormatJSON:
		return rg.generateJSONReport(run, writer)
	case FormatCSV:
		return rg.generateCSVReport(run.Result, writer)
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output_format", rg.config.Format, nil)
	}
}

// GenerateResultReport writes a report for an engine result that was not
// produced from files
func (rg *ReportGenerator) GenerateResultReport(result *reconciler.Result, writer io.Writer) error {
	return rg.GenerateReport(&reconciler.ReconciliationResult{Result: result}, writer)
}

// jsonReport is the document written by the JSON format
type jsonReport struct {
	*reconciler.Result
	Ingestion *reconciler.IngestionStats `json:"ingestion,omitempty"`
	DateRange *reconciler.DateRange      `json:"date_range,omitempty"`
	RowErrors []*errors.RowError         `json:"row_errors,omitempty"`
}

func (rg *ReportGenerator) generateJSONReport(run *reconciler.ReconciliationResult, writer io.Writer) error {
	report := jsonReport{
		Result:    run.Result,
		DateRange: run.DateRange,
	}

	if !rg.config.IncludeRunStats {
		report.Result = run.Result.WithoutStats()
	} else {
		report.Ingestion = run.Ingestion
	}

	if rg.config.IncludeRejectedRows && run.Ingestion != nil && len(run.Ingestion.RowErrors) > 0 {
		report.RowErrors = run.Ingestion.RowErrors
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(report); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "json_encoding", err)
	}
	return nil
}

var csvHeaders = []string{
	"kind",
	"group_id",
	"account_id",
	"transaction_id",
	"related_transaction_id",
	"datetime",
	"related_datetime",
	"beneficiary",
	"amount",
	"similarity_score",
	"days_apart",
	"hours_apart",
	"cross_account",
	"narration",
	"source_file",
}

func (rg *ReportGenerator) generateCSVReport(result *reconciler.Result, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "csv_headers", err)
		}
	}

	var rows [][]string

	if rg.config.IncludeRefunds {
		for _, refund := range result.Refunds {
			rows = append(rows, []string{
				KindRefund,
				"",
				refund.AccountID,
				refund.DebitTransactionID,
				refund.CreditTransactionID,
				refund.DebitDate.Format(timeLayout),
				refund.CreditDate.Format(timeLayout),
				refund.Beneficiary,
				refund.Amount.StringFixed(2),
				"",
				strconv.Itoa(refund.DaysToRefund),
				formatHours(refund.HoursToRefund),
				"false",
				refund.DebitNarration,
				refund.SourceFile,
			})
		}
	}

	if rg.config.IncludeDuplicates {
		for _, group := range result.Duplicates {
			original, duplicate := group.Transactions[0], group.Transactions[1]
			rows = append(rows, []string{
				KindDuplicate,
				group.GroupID,
				original.AccountID,
				original.TransactionID,
				duplicate.TransactionID,
				original.DateTime.Format(timeLayout),
				duplicate.DateTime.Format(timeLayout),
				original.Beneficiary,
				group.DuplicateAmount.StringFixed(2),
				strconv.FormatFloat(group.SimilarityScore, 'f', 2, 64),
				strconv.Itoa(group.TimeDifferenceDays),
				formatHours(group.TimeDifferenceHours),
				strconv.FormatBool(group.CrossAccount),
				duplicate.Narration,
				duplicate.SourceFile,
			})
		}
	}

	if rg.config.IncludeUnmatchedDebits {
		for _, tx := range rg.unmatchedDebits(result) {
			rows = append(rows, []string{
				KindUnmatched,
				"",
				tx.AccountID,
				tx.TransactionID,
				"",
				tx.DateTime.Format(timeLayout),
				"",
				tx.Beneficiary,
				tx.DebitAmount.StringFixed(2),
				"",
				"",
				"",
				"false",
				tx.Narration,
				tx.SourceFile,
			})
		}
	}

	if err := csvWriter.WriteAll(rows); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "csv_rows", err)
	}
	return nil
}

func (rg *ReportGenerator) generateConsoleReport(run *reconciler.ReconciliationResult, writer io.Writer) error {
	result := run.Result
	w := &errWriter{w: writer}

	w.printf("STATEMENT RECONCILIATION REPORT\n")
	if run.DateRange != nil {
		w.printf("Date Range: %s to %s\n", formatBound(run.DateRange.Start), formatBound(run.DateRange.End))
	}
	if result.Config != nil && result.Config.Matching != nil {
		w.printf("Matching:   %s\n", result.Config.Matching)
	}
	w.printf("\n")

	w.printf("=== SUMMARY ===\n")
	rg.printSummary(w, result.Summary)
	w.printf("\n")

	if rg.config.IncludeAccountBreakdown && len(result.Accounts) > 0 {
		w.printf("=== ACCOUNTS ===\n")
		rg.printAccounts(w, result)
		w.printf("\n")
	}

	if rg.config.IncludeRefunds && len(result.Refunds) > 0 {
		w.printf("=== REFUNDS ===\n")
		rg.printRefunds(w, result.Refunds)
		w.printf("\n")
	}

	if rg.config.IncludeDuplicates && len(result.Duplicates) > 0 {
		w.printf("=== DUPLICATE GROUPS ===\n")
		rg.printDuplicates(w, result.Duplicates)
		w.printf("\n")
	}

	if rg.config.IncludeUnmatchedDebits && len(result.UnmatchedDebits) > 0 {
		w.printf("=== UNMATCHED DEBITS ===\n")
		rg.printUnmatched(w, rg.unmatchedDebits(result))
		w.printf("\n")
	}

	if rg.config.IncludeRejectedRows && run.Ingestion != nil && run.Ingestion.RejectedRows > 0 {
		w.printf("=== REJECTED ROWS ===\n")
		w.printf("%s\n", errors.FormatRowErrors(run.Ingestion.RowErrors, rg.perFileErrors()))
		if kept := len(run.Ingestion.RowErrors); kept < run.Ingestion.RejectedRows {
			w.printf("(%d further rejections not recorded)\n", run.Ingestion.RejectedRows-kept)
		}
		w.printf("\n")
	}

	if rg.config.IncludeRunStats && (result.Stats != nil || run.Ingestion != nil) {
		w.printf("=== RUN STATISTICS ===\n")
		rg.printRunStats(w, result.Stats, run.Ingestion)
	}

	if w.err != nil {
		return errors.FileError(errors.CodeFileWrite, "report output", w.err)
	}
	return nil
}

func (rg *ReportGenerator) printSummary(w *errWriter, s models.Summary) {
	w.printf("Transactions:        %d\n", s.TotalTransactions)
	w.printf("Accounts:            %d\n", s.TotalAccounts)
	w.printf("Source Files:        %d\n", s.TotalSourceFiles)
	w.printf("Total Debits:        %s\n", s.TotalDebits.StringFixed(2))
	w.printf("Total Credits:       %s\n", s.TotalCredits.StringFixed(2))
	w.printf("Refunds:             %d (%s)\n", s.RefundCount, s.TotalRefunded.StringFixed(2))
	w.printf("Duplicate Groups:    %d (%d same-account, %d cross-account)\n",
		s.DuplicateGroups, s.SameAccountDuplicates, s.CrossAccountDuplicates)
	w.printf("Duplicate Amount:    %s\n", s.TotalDuplicateAmount.StringFixed(2))
	w.printf("Unmatched Debits:    %d (%s, %.1f%% of debits)\n",
		s.UnmatchedDebitsCount, s.UnmatchedDebitAmount.StringFixed(2), percentOf(s.UnmatchedDebitAmount, s.TotalDebits))
	w.printf("Estimated Net Loss:  %s\n", s.EstimatedNetLoss.StringFixed(2))
}

func (rg *ReportGenerator) printAccounts(w *errWriter, result *reconciler.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ACCOUNT\tTXNS\tDEBITS\tCREDITS\tREFUNDED\tDUPLICATES\tUNMATCHED\tNET LOSS\t")
	for _, id := range result.AccountIDs() {
		a := result.Accounts[id]
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\t%s\t%s\t\n",
			a.AccountID,
			a.TransactionCount,
			a.TotalDebits.StringFixed(2),
			a.TotalCredits.StringFixed(2),
			a.TotalRefunded.StringFixed(2),
			a.DuplicateGroups,
			a.UnmatchedDebitAmount.StringFixed(2),
			a.EstimatedNetLoss.StringFixed(2))
	}
	tw.Flush()

	for _, id := range result.AccountIDs() {
		a := result.Accounts[id]
		if len(a.SourceFiles) > 0 {
			w.printf("  %s files: %s\n", a.AccountID, strings.Join(a.SourceFiles, ", "))
		}
	}
}

func (rg *ReportGenerator) printRefunds(w *errWriter, refunds []models.RefundMatch) {
	w.printf("Total Refunds: %d\n\n", len(refunds))
	for i, refund := range refunds {
		if rg.truncated(w, i, len(refunds)) {
			break
		}
		w.printf("  %d. %s %s %s refunded after %d day(s) (%s h)\n",
			i+1,
			refund.AccountID,
			rg.clip(refund.Beneficiary),
			refund.Amount.StringFixed(2),
			refund.DaysToRefund,
			formatHours(refund.HoursToRefund))
		w.printf("     debit %s -> credit %s\n", refund.DebitTransactionID, refund.CreditTransactionID)
	}
}

func (rg *ReportGenerator) printDuplicates(w *errWriter, groups []models.DuplicateGroup) {
	w.printf("Total Duplicate Groups: %d\n\n", len(groups))
	for i, group := range groups {
		if rg.truncated(w, i, len(groups)) {
			break
		}
		scope := "same-account"
		if group.CrossAccount {
			scope = "cross-account"
		}
		original, duplicate := group.Transactions[0], group.Transactions[1]
		w.printf("  %s [%s] similarity %.1f%%, %d day(s) apart, amount difference %s\n",
			group.GroupID, scope, group.SimilarityScore, group.TimeDifferenceDays, group.AmountDifference.StringFixed(2))
		w.printf("     original:  %s %s %s %s\n",
			original.TransactionID, original.DateTime.Format(timeLayout), original.DebitAmount.StringFixed(2), rg.clip(original.Beneficiary))
		w.printf("     duplicate: %s %s %s %s\n",
			duplicate.TransactionID, duplicate.DateTime.Format(timeLayout), duplicate.DebitAmount.StringFixed(2), rg.clip(duplicate.Beneficiary))
	}
}

func (rg *ReportGenerator) printUnmatched(w *errWriter, debits []*models.Transaction) {
	w.printf("Total Unmatched Debits: %d\n\n", len(debits))
	for i, tx := range debits {
		if rg.truncated(w, i, len(debits)) {
			break
		}
		w.printf("  %d. %s %s %s %s\n",
			i+1,
			tx.TransactionID,
			tx.DateTime.Format(timeLayout),
			tx.DebitAmount.StringFixed(2),
			rg.clip(tx.Narration))
	}
}

func (rg *ReportGenerator) printRunStats(w *errWriter, stats *reconciler.RunStats, ingestion *reconciler.IngestionStats) {
	if ingestion != nil {
		w.printf("Files Processed:     %d\n", ingestion.FilesProcessed)
		w.printf("Records Parsed:      %d (%d valid, %d rejected)\n",
			ingestion.RecordsParsed, ingestion.RecordsValid, ingestion.RejectedRows)
		if ingestion.OutsideRange > 0 {
			w.printf("Outside Date Range:  %d\n", ingestion.OutsideRange)
		}
		w.printf("Parsing Time:        %v\n", ingestion.ParsingTime)
	}

	if stats != nil {
		mode := "sequential"
		if stats.Parallel {
			mode = "parallel"
		}
		w.printf("Started At:          %s\n", stats.StartedAt.Format(time.RFC3339))
		w.printf("Detection Mode:      %s\n", mode)
		w.printf("Processing Time:     %v\n", stats.ProcessingDuration)
		for _, stage := range []reconciler.Stage{
			reconciler.StageSort,
			reconciler.StageRefundDetection,
			reconciler.StageDuplicateDetection,
			reconciler.StageAggregation,
		} {
			if d, ok := stats.StageDurations[stage.String()]; ok {
				w.printf("  %-20s %v\n", stage.String()+":", d)
			}
		}
	}
}

// unmatchedDebits returns the unmatched debits in the configured order
// without reordering the result itself
func (rg *ReportGenerator) unmatchedDebits(result *reconciler.Result) []*models.Transaction {
	if !rg.config.SortByAmount {
		return result.UnmatchedDebits
	}

	sorted := make([]*models.Transaction, len(result.UnmatchedDebits))
	copy(sorted, result.UnmatchedDebits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DebitAmount.GreaterThan(sorted[j].DebitAmount)
	})
	return sorted
}

// truncated prints the overflow line and reports true once the list limit is reached
func (rg *ReportGenerator) truncated(w *errWriter, index, total int) bool {
	limit := rg.config.MaxListItems
	if limit <= 0 || index < limit {
		return false
	}
	w.printf("  ... and %d more\n", total-limit)
	return true
}

// clip shortens free text so a listing line stays within TableMaxWidth
func (rg *ReportGenerator) clip(s string) string {
	limit := rg.config.TableMaxWidth / 2
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

func (rg *ReportGenerator) perFileErrors() int {
	if rg.config.MaxListItems <= 0 {
		return 0
	}
	return rg.config.MaxListItems
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

func formatHours(hours float64) string {
	return strconv.FormatFloat(hours, 'f', 2, 64)
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "open"
	}
	return t.Format(timeLayout)
}

func percentOf(part, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	pct, _ := part.Div(total).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// errWriter keeps the first write error so a report can be printed without
// checking every line
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, ew.err
	}
	n, err := ew.w.Write(p)
	if err != nil {
		ew.err = err
	}
	return n, err
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	fmt.Fprintf(ew, format, args...)
}
