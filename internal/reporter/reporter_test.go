package reporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciler/internal/models"
	"statement-reconciler/internal/reconciler"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

var baseTime = time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)

func debit(account string, pos int, at time.Time, narration, amount string) *models.Transaction {
	tx := models.NewTransaction(account, pos, at, narration, decimal.RequireFromString(amount), decimal.Zero, decimal.Zero)
	tx.SourceFile = strings.ToLower(account[:3]) + ".csv"
	return tx
}

func credit(account string, pos int, at time.Time, narration, amount string) *models.Transaction {
	tx := models.NewTransaction(account, pos, at, narration, decimal.Zero, decimal.RequireFromString(amount), decimal.Zero)
	tx.SourceFile = strings.ToLower(account[:3]) + ".csv"
	return tx
}

// createTestRun reconciles a ledger with one refund, one cross-account
// duplicate and three unmatched debits
func createTestRun(t *testing.T) *reconciler.ReconciliationResult {
	t.Helper()

	txs := []*models.Transaction{
		debit("GTB_Main", 1, baseTime, "TRANSFER TO: JOHN DOE", "5000"),
		credit("GTB_Main", 2, baseTime.Add(26*time.Hour), "REVERSAL", "5000"),
		debit("GTB_Main", 3, baseTime.Add(2*time.Hour), "TRANSFER TO: JANE SMITH", "2500"),
		debit("UBA_Main", 1, baseTime.Add(3*time.Hour), "TRANSFER TO: JANE SMITH", "2500"),
		debit("ZEN_Main", 1, baseTime.Add(5*time.Hour), "POS PURCHASE: SHOPRITE", "9000"),
	}

	engine, err := reconciler.NewEngine(reconciler.DefaultConfig(), reconciler.WithLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	result, err := engine.Reconcile(context.Background(), txs)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	rowErr := errors.NewRowError("gtb.csv", 7,
		errors.ParseError(errors.CodeInvalidDate, "gtb.csv", 7, "datetime", "yesterday", nil))

	return &reconciler.ReconciliationResult{
		Result: result,
		Ingestion: &reconciler.IngestionStats{
			FilesProcessed: 3,
			RecordsParsed:  6,
			RecordsValid:   5,
			RejectedRows:   1,
			RowErrors:      []*errors.RowError{rowErr},
		},
	}
}

func newGenerator(t *testing.T, modify func(*ReportConfig)) *ReportGenerator {
	t.Helper()

	config := DefaultReportConfig()
	if modify != nil {
		modify(config)
	}
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("NewReportGenerator failed: %v", err)
	}
	return generator
}

func render(t *testing.T, generator *ReportGenerator, run *reconciler.ReconciliationResult) string {
	t.Helper()

	var buf bytes.Buffer
	if err := generator.GenerateReport(run, &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	return buf.String()
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{
			name:   "default config",
			config: nil,
		},
		{
			name:   "valid config",
			config: DefaultReportConfig(),
		},
		{
			name: "invalid format",
			config: &ReportConfig{
				Format:        "xml",
				TableMaxWidth: 120,
				CSVDelimiter:  ',',
			},
			expectError: true,
		},
		{
			name: "table width too small",
			config: &ReportConfig{
				Format:        FormatConsole,
				TableMaxWidth: 30,
				CSVDelimiter:  ',',
			},
			expectError: true,
		},
		{
			name: "negative list limit",
			config: &ReportConfig{
				Format:        FormatConsole,
				TableMaxWidth: 120,
				MaxListItems:  -1,
				CSVDelimiter:  ',',
			},
			expectError: true,
		},
		{
			name: "quote as csv delimiter",
			config: &ReportConfig{
				Format:        FormatCSV,
				TableMaxWidth: 120,
				CSVDelimiter:  '"',
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if generator.GetConfiguration() == nil {
				t.Error("expected a configuration")
			}
		})
	}
}

func TestGenerateReport_NilResult(t *testing.T) {
	generator := newGenerator(t, nil)

	if err := generator.GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil run")
	}
	if err := generator.GenerateResultReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil result")
	}
}

func TestConsoleReport(t *testing.T) {
	out := render(t, newGenerator(t, nil), createTestRun(t))

	expected := []string{
		"STATEMENT RECONCILIATION REPORT",
		"=== SUMMARY ===",
		"Transactions:        5",
		"Refunds:             1 (5000.00)",
		"Duplicate Groups:    1 (0 same-account, 1 cross-account)",
		"Unmatched Debits:    3 (14000.00",
		"Estimated Net Loss:  11500.00",
		"=== ACCOUNTS ===",
		"GTB_Main",
		"GTB_Main files: gtb.csv",
		"=== REFUNDS ===",
		"refunded after 1 day(s) (26.00 h)",
		"debit GTB_Main_20240301_083000_1 -> credit GTB_Main_20240302_103000_2",
		"=== DUPLICATE GROUPS ===",
		"DUP_1 [cross-account] similarity 100.0%",
		"original:  GTB_Main_20240301_103000_3",
		"duplicate: UBA_Main_20240301_113000_1",
		"=== UNMATCHED DEBITS ===",
		"ZEN_Main_20240301_133000_1",
		"=== REJECTED ROWS ===",
		"gtb.csv",
	}
	for _, want := range expected {
		if !strings.Contains(out, want) {
			t.Errorf("expected console report to contain %q\n%s", want, out)
		}
	}

	if strings.Contains(out, "=== RUN STATISTICS ===") {
		t.Error("expected run statistics to be omitted by default")
	}
}

func TestConsoleReport_Sections(t *testing.T) {
	run := createTestRun(t)

	tests := []struct {
		name    string
		modify  func(*ReportConfig)
		absent  []string
		present []string
	}{
		{
			name: "detail sections off",
			modify: func(c *ReportConfig) {
				c.IncludeRefunds = false
				c.IncludeDuplicates = false
				c.IncludeUnmatchedDebits = false
				c.IncludeAccountBreakdown = false
				c.IncludeRejectedRows = false
			},
			absent:  []string{"=== REFUNDS ===", "=== DUPLICATE GROUPS ===", "=== UNMATCHED DEBITS ===", "=== ACCOUNTS ===", "=== REJECTED ROWS ==="},
			present: []string{"=== SUMMARY ==="},
		},
		{
			name:    "run statistics on",
			modify:  func(c *ReportConfig) { c.IncludeRunStats = true },
			present: []string{"=== RUN STATISTICS ===", "Files Processed:     3", "Detection Mode:      parallel", "refund_detection:"},
		},
		{
			name:    "list limit",
			modify:  func(c *ReportConfig) { c.MaxListItems = 1 },
			present: []string{"  ... and 2 more"},
			absent:  []string{"ZEN_Main_20240301_133000_1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := render(t, newGenerator(t, tt.modify), run)
			for _, s := range tt.present {
				if !strings.Contains(out, s) {
					t.Errorf("expected %q in report\n%s", s, out)
				}
			}
			for _, s := range tt.absent {
				if strings.Contains(out, s) {
					t.Errorf("expected %q to be absent\n%s", s, out)
				}
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, stderrors.New("disk full")
}

func TestConsoleReport_WriteError(t *testing.T) {
	err := newGenerator(t, nil).GenerateReport(createTestRun(t), failingWriter{})
	reconcilerErr, ok := errors.AsReconcilerError(err)
	if !ok || reconcilerErr.Code != errors.CodeFileWrite {
		t.Fatalf("expected a file write error, got %v", err)
	}
}

func TestJSONReport(t *testing.T) {
	run := createTestRun(t)
	generator := newGenerator(t, func(c *ReportConfig) { c.Format = FormatJSON })

	out := render(t, generator, run)

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	for _, key := range []string{"refunds", "duplicates", "unmatched_debits", "summary", "accounts", "config", "row_errors"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("expected key %q", key)
		}
	}
	for _, key := range []string{"stats", "ingestion"} {
		if _, ok := doc[key]; ok {
			t.Errorf("expected key %q to be omitted without run stats", key)
		}
	}

	var refunds []models.RefundMatch
	if err := json.Unmarshal(doc["refunds"], &refunds); err != nil {
		t.Fatalf("failed to decode refunds: %v", err)
	}
	if len(refunds) != 1 || !refunds[0].Amount.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("unexpected refunds %+v", refunds)
	}

	if again := render(t, generator, run); again != out {
		t.Error("expected identical JSON for the same run")
	}
	if run.Result.Stats == nil {
		t.Error("expected the run's stats to be left in place")
	}
}

func TestJSONReport_RunStats(t *testing.T) {
	out := render(t, newGenerator(t, func(c *ReportConfig) {
		c.Format = FormatJSON
		c.IncludeRunStats = true
	}), createTestRun(t))

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"stats", "ingestion"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("expected key %q with run stats", key)
		}
	}
}

func TestJSONReport_EmptyResult(t *testing.T) {
	engine, err := reconciler.NewEngine(reconciler.DefaultConfig(), reconciler.WithLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	result, err := engine.Reconcile(context.Background(), nil)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	var buf bytes.Buffer
	generator := newGenerator(t, func(c *ReportConfig) { c.Format = FormatJSON })
	if err := generator.GenerateResultReport(result, &buf); err != nil {
		t.Fatalf("GenerateResultReport failed: %v", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"refunds", "duplicates", "unmatched_debits"} {
		list, ok := doc[key].([]interface{})
		if !ok || len(list) != 0 {
			t.Errorf("expected %q to be an empty list, got %v", key, doc[key])
		}
	}
	if _, ok := doc["row_errors"]; ok {
		t.Error("expected no row errors without ingestion")
	}
}

func readCSV(t *testing.T, out string, delimiter rune) [][]string {
	t.Helper()

	reader := csv.NewReader(strings.NewReader(out))
	reader.Comma = delimiter
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV output: %v", err)
	}
	return records
}

func TestCSVReport(t *testing.T) {
	out := render(t, newGenerator(t, func(c *ReportConfig) { c.Format = FormatCSV }), createTestRun(t))
	records := readCSV(t, out, ',')

	if !reflect.DeepEqual(records[0], csvHeaders) {
		t.Fatalf("unexpected header %v", records[0])
	}

	rows := records[1:]
	kinds := make(map[string]int)
	for _, row := range rows {
		if len(row) != len(csvHeaders) {
			t.Fatalf("row has %d fields, header has %d", len(row), len(csvHeaders))
		}
		kinds[row[0]]++
	}
	if kinds[KindRefund] != 1 || kinds[KindDuplicate] != 1 || kinds[KindUnmatched] != 3 {
		t.Errorf("unexpected row kinds %v", kinds)
	}

	refund := rows[0]
	wantRefund := map[int]string{
		0:  KindRefund,
		2:  "GTB_Main",
		3:  "GTB_Main_20240301_083000_1",
		4:  "GTB_Main_20240302_103000_2",
		5:  "2024-03-01 08:30:00",
		8:  "5000.00",
		10: "1",
		11: "26.00",
		14: "gtb.csv",
	}
	for i, want := range wantRefund {
		if refund[i] != want {
			t.Errorf("refund column %s: expected %q, got %q", csvHeaders[i], want, refund[i])
		}
	}

	duplicate := rows[1]
	wantDuplicate := map[int]string{
		0:  KindDuplicate,
		1:  "DUP_1",
		3:  "GTB_Main_20240301_103000_3",
		4:  "UBA_Main_20240301_113000_1",
		8:  "2500.00",
		9:  "100.00",
		10: "0",
		11: "1.00",
		12: "true",
		14: "uba.csv",
	}
	for i, want := range wantDuplicate {
		if duplicate[i] != want {
			t.Errorf("duplicate column %s: expected %q, got %q", csvHeaders[i], want, duplicate[i])
		}
	}
}

func TestCSVReport_SortAndDelimiter(t *testing.T) {
	run := createTestRun(t)
	before := append([]*models.Transaction(nil), run.UnmatchedDebits...)

	out := render(t, newGenerator(t, func(c *ReportConfig) {
		c.Format = FormatCSV
		c.CSVHeaders = false
		c.CSVDelimiter = ';'
		c.SortByAmount = true
		c.IncludeRefunds = false
		c.IncludeDuplicates = false
	}), run)

	records := readCSV(t, out, ';')
	if len(records) != 3 {
		t.Fatalf("expected 3 unmatched rows without header, got %d", len(records))
	}

	var order []string
	for _, row := range records {
		order = append(order, row[3])
	}
	want := []string{"ZEN_Main_20240301_133000_1", "GTB_Main_20240301_103000_3", "UBA_Main_20240301_113000_1"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected largest first %v, got %v", want, order)
	}

	if !reflect.DeepEqual(before, run.UnmatchedDebits) {
		t.Error("expected the result's unmatched debits to keep their order")
	}
}

func TestSafeReportGenerator_WriteReportFile(t *testing.T) {
	run := createTestRun(t)
	config := DefaultReportConfig()
	config.Format = FormatJSON

	generator, err := NewSafeReportGenerator(config, logger.Discard())
	if err != nil {
		t.Fatalf("NewSafeReportGenerator failed: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("failed to seed report file: %v", err)
	}

	if err := generator.WriteReportFile(run, path, nil); err != nil {
		t.Fatalf("WriteReportFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	if !json.Valid(data) {
		t.Errorf("expected the stale file to be replaced by valid JSON, got %q", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to list dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected no temporary files to remain, found %d entries", len(entries))
	}
}

func TestSafeReportGenerator_Stdout(t *testing.T) {
	generator, err := NewSafeReportGenerator(nil, logger.Discard())
	if err != nil {
		t.Fatalf("NewSafeReportGenerator failed: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.WriteReportFile(createTestRun(t), "-", &buf); err != nil {
		t.Fatalf("WriteReportFile failed: %v", err)
	}
	if !strings.Contains(buf.String(), "=== SUMMARY ===") {
		t.Error("expected the console report on stdout")
	}
}

func TestSafeReportGenerator_Errors(t *testing.T) {
	generator, err := NewSafeReportGenerator(nil, logger.Discard())
	if err != nil {
		t.Fatalf("NewSafeReportGenerator failed: %v", err)
	}

	missingDir := filepath.Join(t.TempDir(), "missing", "report.txt")
	err = generator.WriteReportFile(createTestRun(t), missingDir, nil)
	reconcilerErr, ok := errors.AsReconcilerError(err)
	if !ok || reconcilerErr.Code != errors.CodeFileWrite {
		t.Fatalf("expected a file write error, got %v", err)
	}
	if reconcilerErr.GetExitCode() != 2 {
		t.Errorf("expected file exit code 2, got %d", reconcilerErr.GetExitCode())
	}

	if err := generator.GenerateReportSafely(createTestRun(t), nil); err == nil {
		t.Error("expected error for nil writer")
	}

	if _, err := NewSafeReportGenerator(&ReportConfig{Format: "xml", TableMaxWidth: 120, CSVDelimiter: ','}, nil); err == nil {
		t.Error("expected error for invalid config")
	}
}
