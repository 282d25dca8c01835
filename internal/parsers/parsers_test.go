package parsers

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"statement-reconciler/internal/models"
	"statement-reconciler/pkg/errors"
)

const standardHeader = "account_id,datetime,narration,debit,credit,balance\n"

// writeCSV creates name inside a per-test directory and returns its path
func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func newTestParser(t *testing.T, config *TransactionParserConfig) *TransactionParser {
	t.Helper()

	parser, err := NewTransactionParser(config)
	if err != nil {
		t.Fatalf("NewTransactionParser failed: %v", err)
	}
	return parser
}

func codeOf(t *testing.T, err error) errors.ErrorCode {
	t.Helper()

	reconcilerErr, ok := errors.AsReconcilerError(err)
	if !ok {
		t.Fatalf("expected a ReconcilerError, got %T: %v", err, err)
	}
	return reconcilerErr.Code
}

func TestDefaultParseConfig(t *testing.T) {
	config := DefaultParseConfig()

	if config.Delimiter != ',' {
		t.Errorf("Expected delimiter to be ',', got %q", config.Delimiter)
	}
	if !config.TrimLeadingSpace {
		t.Error("Expected TrimLeadingSpace to be true")
	}
	if !config.SkipEmptyRows {
		t.Error("Expected SkipEmptyRows to be true")
	}
	if !config.ValidateEncoding {
		t.Error("Expected ValidateEncoding to be true")
	}
}

func TestTransactionParserConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*TransactionParserConfig)
		wantCode errors.ErrorCode
	}{
		{
			name:   "default config",
			modify: func(c *TransactionParserConfig) {},
		},
		{
			name:     "zero delimiter",
			modify:   func(c *TransactionParserConfig) { c.Delimiter = 0 },
			wantCode: errors.CodeInvalidConfig,
		},
		{
			name:     "quote as delimiter",
			modify:   func(c *TransactionParserConfig) { c.Delimiter = '"' },
			wantCode: errors.CodeInvalidConfig,
		},
		{
			name:     "negative max errors",
			modify:   func(c *TransactionParserConfig) { c.MaxErrors = -1 },
			wantCode: errors.CodeInvalidConfig,
		},
		{
			name:     "no concurrent files",
			modify:   func(c *TransactionParserConfig) { c.MaxConcurrentFiles = 0 },
			wantCode: errors.CodeInvalidConfig,
		},
		{
			name:     "alias for unknown column",
			modify:   func(c *TransactionParserConfig) { c.ColumnAliases["amount"] = []string{"amt"} },
			wantCode: errors.CodeInvalidConfig,
		},
		{
			name: "infer and default account together",
			modify: func(c *TransactionParserConfig) {
				c.InferAccount = true
				c.DefaultAccountID = "GTB_Main"
			},
			wantCode: errors.CodeConfigConflict,
		},
		{
			name:   "semicolon delimiter",
			modify: func(c *TransactionParserConfig) { c.Delimiter = ';' },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultTransactionParserConfig()
			tt.modify(config)

			err := config.Validate()
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if code := codeOf(t, err); code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, code)
			}
		})
	}
}

func TestTransactionParserConfig_RequiredColumns(t *testing.T) {
	config := DefaultTransactionParserConfig()
	if got := config.RequiredColumns(); got[0] != ColumnAccountID {
		t.Errorf("Expected account_id to be required by default, got %v", got)
	}

	config.InferAccount = true
	for _, column := range config.RequiredColumns() {
		if column == ColumnAccountID {
			t.Error("Expected account_id to be optional when inferring accounts")
		}
	}
}

func TestNewTransactionParser_InvalidConfig(t *testing.T) {
	config := DefaultTransactionParserConfig()
	config.MaxErrors = -5

	if _, err := NewTransactionParser(config); err == nil {
		t.Error("Expected error for invalid config")
	}
}

func TestTransactionParser_ParseFile(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "statement.csv", standardHeader+
		"GTB_Main,2024-03-01 08:30:00,TRANSFER TO: JOHN DOE/REF:1234,5000,,45000\n"+
		"GTB_Main,2024-03-02T10:15:00Z,REVERSAL,,5000.00,50000\n")

	parser := newTestParser(t, nil)
	transactions, stats, err := parser.ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}

	if len(transactions) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(transactions))
	}
	if stats.RecordsParsed != 2 || stats.RecordsValid != 2 || stats.HasErrors() {
		t.Errorf("Unexpected stats: %s", stats)
	}
	if stats.TotalLines != 3 {
		t.Errorf("Expected 3 lines, got %d", stats.TotalLines)
	}

	first := transactions[0]
	if first.TransactionID != "GTB_Main_20240301_083000_1" {
		t.Errorf("Unexpected transaction id %s", first.TransactionID)
	}
	if first.Beneficiary != "JOHN DOE" {
		t.Errorf("Expected beneficiary JOHN DOE, got %q", first.Beneficiary)
	}
	if !first.IsDebit() || first.DebitAmount.String() != "5000" || !first.CreditAmount.IsZero() {
		t.Errorf("Expected a 5000 debit, got %s", first)
	}
	if first.SourceFile != "statement.csv" {
		t.Errorf("Expected source file statement.csv, got %q", first.SourceFile)
	}

	second := transactions[1]
	if !second.IsCredit() || second.CreditAmount.String() != "5000" {
		t.Errorf("Expected a 5000 credit, got %s", second)
	}
	if want := time.Date(2024, 3, 2, 10, 15, 0, 0, time.UTC); !second.DateTime.Equal(want) {
		t.Errorf("Expected %s, got %s", want, second.DateTime)
	}
	if second.TransactionID != "GTB_Main_20240302_101500_2" {
		t.Errorf("Unexpected transaction id %s", second.TransactionID)
	}
}

func TestTransactionParser_HeaderAliases(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "aliases.csv",
		"\ufeff Account ,Date,Description,Withdrawal,Deposit,Running_Balance,Payee,Ref\n"+
			"UBA_Main,01/03/2024 09:00:00,POS PURCHASE: SHOPRITE,1200.50,,8800,Shoprite Lekki,R-77\n")

	parser := newTestParser(t, nil)
	transactions, _, err := parser.ParseFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(transactions) != 1 {
		t.Fatalf("Expected 1 transaction, got %d", len(transactions))
	}

	tx := transactions[0]
	if tx.AccountID != "UBA_Main" {
		t.Errorf("Expected account UBA_Main, got %q", tx.AccountID)
	}
	if tx.DebitAmount.String() != "1200.5" {
		t.Errorf("Expected debit 1200.5, got %s", tx.DebitAmount)
	}
	if tx.Beneficiary != "SHOPRITE LEKKI" {
		t.Errorf("Expected the beneficiary column to win, got %q", tx.Beneficiary)
	}
	if tx.Reference != "R-77" {
		t.Errorf("Expected reference R-77, got %q", tx.Reference)
	}
	if want := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC); !tx.DateTime.Equal(want) {
		t.Errorf("Expected day-first date %s, got %s", want, tx.DateTime)
	}
}

func TestTransactionParser_CustomAliases(t *testing.T) {
	config := DefaultTransactionParserConfig()
	config.ColumnAliases[ColumnDebit] = []string{"Amount Out"}
	config.ColumnAliases[ColumnCredit] = []string{"Amount In"}

	parser := newTestParser(t, config)
	input := "account_id,datetime,narration,amount out,amount in,balance\n" +
		"ZEN_Main,2024-03-01,AIRTIME,200,,100\n"

	transactions, _, err := parser.ParseReader(context.Background(), strings.NewReader(input), "zenith.csv")
	if err != nil {
		t.Fatalf("ParseReader failed: %v", err)
	}
	if len(transactions) != 1 || transactions[0].DebitAmount.String() != "200" {
		t.Fatalf("Expected one 200 debit, got %v", transactions)
	}
}

func TestTransactionParser_RowRejection(t *testing.T) {
	input := standardHeader +
		"GTB_Main,2024-03-01 08:30:00,POS PURCHASE: SHOPRITE,2500,,47500\n" +
		"GTB_Main,not-a-date,POS,100,,0\n" +
		"GTB_Main,2024-03-01 09:00:00,POS,abc,,0\n" +
		"GTB_Main,2024-03-01 09:30:00,POS,-5,,0\n" +
		"GTB_Main,2024-03-01 10:00:00,POS,5,5,0\n" +
		"GTB_Main,2024-03-01 10:30:00,BAD \"QUOTE,5,,0\n" +
		"\n" +
		",2024-03-01 10:45:00,NO ACCOUNT,5,,0\n" +
		"GTB_Main,2024-03-01 11:00:00,REVERSAL,,2500,50000\n"

	parser := newTestParser(t, nil)
	transactions, stats, err := parser.ParseReader(context.Background(), strings.NewReader(input), "gtb.csv")
	if err != nil {
		t.Fatalf("Rejected rows must not fail the file: %v", err)
	}

	if len(transactions) != 2 {
		t.Fatalf("Expected 2 valid transactions, got %d", len(transactions))
	}
	if stats.RecordsParsed != 8 || stats.RecordsValid != 2 || stats.ErrorCount != 6 {
		t.Errorf("Unexpected stats: %s", stats)
	}
	if transactions[1].TransactionID != "GTB_Main_20240301_110000_7" {
		t.Errorf("Unexpected id for the row after the rejected ones: %s", transactions[1].TransactionID)
	}

	expected := []struct {
		line int
		code errors.ErrorCode
	}{
		{3, errors.CodeInvalidDate},
		{4, errors.CodeInvalidAmount},
		{5, errors.CodeInvalidAmount},
		{6, errors.CodeInvalidAmount},
		{7, errors.CodeInvalidFormat},
		{9, errors.CodeMissingField},
	}
	if len(stats.Errors) != len(expected) {
		t.Fatalf("Expected %d row errors, got %d", len(expected), len(stats.Errors))
	}
	for i, want := range expected {
		got := stats.Errors[i]
		if got.Line != want.line || got.Code != want.code {
			t.Errorf("error %d: expected line %d code %s, got line %d code %s", i, want.line, want.code, got.Line, got.Code)
		}
		if got.File != "gtb.csv" {
			t.Errorf("error %d: expected file gtb.csv, got %q", i, got.File)
		}
	}

	summary := stats.Summary()
	if summary.ByCode[errors.CodeInvalidAmount] != 3 {
		t.Errorf("Expected 3 invalid amount errors, got %d", summary.ByCode[errors.CodeInvalidAmount])
	}
	if samples := stats.SampleErrors(2); len(samples) != 2 {
		t.Errorf("Expected 2 sample errors, got %d", len(samples))
	}
}

func TestTransactionParser_MaxErrors(t *testing.T) {
	config := DefaultTransactionParserConfig()
	config.MaxErrors = 2

	var b strings.Builder
	b.WriteString(standardHeader)
	for i := 0; i < 5; i++ {
		b.WriteString("GTB_Main,bad-date,POS,10,,0\n")
	}
	b.WriteString("GTB_Main,2024-03-01 11:00:00,POS,10,,0\n")

	parser := newTestParser(t, config)
	transactions, stats, err := parser.ParseReader(context.Background(), strings.NewReader(b.String()), "gtb.csv")
	if err != nil {
		t.Fatalf("ParseReader failed: %v", err)
	}

	if len(transactions) != 1 {
		t.Errorf("Expected reading to continue past the limit, got %d transactions", len(transactions))
	}
	if stats.ErrorCount != 5 {
		t.Errorf("Expected every rejection counted, got %d", stats.ErrorCount)
	}
	if len(stats.Errors) != 2 {
		t.Errorf("Expected 2 kept errors, got %d", len(stats.Errors))
	}
}

func TestTransactionParser_AccountResolution(t *testing.T) {
	headerless := "datetime,narration,debit,credit,balance\n2024-03-01 08:00:00,POS,10,,0\n"

	tests := []struct {
		name        string
		configure   func(*TransactionParserConfig)
		file        string
		content     string
		wantAccount string
		wantCode    errors.ErrorCode
	}{
		{
			name:        "infer from file name",
			configure:   func(c *TransactionParserConfig) { c.InferAccount = true },
			file:        "GTBank_March.csv",
			content:     headerless,
			wantAccount: "GTB_Main",
		},
		{
			name:        "default account id",
			configure:   func(c *TransactionParserConfig) { c.DefaultAccountID = "ACC_Savings" },
			file:        "export.csv",
			content:     headerless,
			wantAccount: "ACC_Savings",
		},
		{
			name:        "column value wins over inference",
			configure:   func(c *TransactionParserConfig) { c.InferAccount = true },
			file:        "GTBank_March.csv",
			content:     standardHeader + "ZEN_Main,2024-03-01 08:00:00,POS,10,,0\n",
			wantAccount: "ZEN_Main",
		},
		{
			name:      "account column required otherwise",
			configure: func(c *TransactionParserConfig) {},
			file:      "export.csv",
			content:   headerless,
			wantCode:  errors.CodeMissingColumn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultTransactionParserConfig()
			tt.configure(config)
			path := writeCSV(t, t.TempDir(), tt.file, tt.content)

			transactions, _, err := newTestParser(t, config).ParseFile(context.Background(), path)
			if tt.wantCode != "" {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if code := codeOf(t, err); code != tt.wantCode {
					t.Errorf("Expected code %s, got %s", tt.wantCode, code)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFile failed: %v", err)
			}
			if len(transactions) != 1 || transactions[0].AccountID != tt.wantAccount {
				t.Fatalf("Expected account %s, got %v", tt.wantAccount, transactions)
			}
			if !strings.HasPrefix(transactions[0].TransactionID, tt.wantAccount+"_") {
				t.Errorf("Expected id to start with the account, got %s", transactions[0].TransactionID)
			}
		})
	}
}

func TestTransactionParser_FileErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		path     string
		wantCode errors.ErrorCode
	}{
		{
			name:     "missing file",
			path:     filepath.Join(dir, "missing.csv"),
			wantCode: errors.CodeFileNotFound,
		},
		{
			name:     "empty file",
			path:     writeCSV(t, dir, "empty.csv", ""),
			wantCode: errors.CodeInvalidFormat,
		},
		{
			name:     "missing required column",
			path:     writeCSV(t, dir, "nodebit.csv", "account_id,datetime,narration,credit\nGTB_Main,2024-03-01,REV,10\n"),
			wantCode: errors.CodeMissingColumn,
		},
		{
			name:     "invalid encoding",
			path:     writeCSV(t, dir, "latin1.csv", standardHeader+"GTB_Main,2024-03-01,CAF\xe9,10,,0\n"),
			wantCode: errors.CodeInvalidFormat,
		},
	}

	parser := newTestParser(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parser.ParseFile(context.Background(), tt.path)
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if code := codeOf(t, err); code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, code)
			}
		})
	}
}

func TestTransactionParser_MissingColumnsReported(t *testing.T) {
	parser := newTestParser(t, nil)
	_, _, err := parser.ParseReader(context.Background(), strings.NewReader("account_id,narration\n"), "bad.csv")
	if err == nil {
		t.Fatal("Expected error but got none")
	}

	reconcilerErr, _ := errors.AsReconcilerError(err)
	if reconcilerErr.Category != errors.CategoryParse {
		t.Errorf("Expected parse category, got %s", reconcilerErr.Category)
	}
	if !strings.Contains(reconcilerErr.Message, "datetime") {
		t.Errorf("Expected the missing columns in the message, got %q", reconcilerErr.Message)
	}
}

func TestTransactionParser_Delimiter(t *testing.T) {
	config := DefaultTransactionParserConfig()
	config.Delimiter = ';'

	input := "account_id;datetime;narration;debit;credit;balance\n" +
		"FBN_Main;2024-03-01 08:00:00;TRANSFER TO: ADA, OBI;750;;0\n"

	transactions, _, err := newTestParser(t, config).ParseReader(context.Background(), strings.NewReader(input), "first.csv")
	if err != nil {
		t.Fatalf("ParseReader failed: %v", err)
	}
	if len(transactions) != 1 || transactions[0].Beneficiary != "ADA, OBI" {
		t.Fatalf("Expected one transaction to ADA, OBI, got %v", transactions)
	}
}

func TestTransactionParser_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := standardHeader + "GTB_Main,2024-03-01 08:00:00,POS,10,,0\n"
	_, _, err := newTestParser(t, nil).ParseReader(ctx, strings.NewReader(input), "gtb.csv")
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if code := codeOf(t, err); code != errors.CodeCancelled {
		t.Errorf("Expected code %s, got %s", errors.CodeCancelled, code)
	}
}

func TestParseContext_ColumnIndex(t *testing.T) {
	pc := NewParseContext(context.Background(), "x.csv")
	reader := NewBaseParser(nil).NewReader(strings.NewReader("Narration,DATE,Debit\n"))

	config := DefaultTransactionParserConfig()
	err := NewBaseParser(nil).ReadHeaders(reader, pc, config.Aliases, knownColumns, nil)
	if err != nil {
		t.Fatalf("ReadHeaders failed: %v", err)
	}

	tests := []struct {
		column string
		want   int
	}{
		{ColumnNarration, 0},
		{ColumnDateTime, 1},
		{ColumnDebit, 2},
		{ColumnCredit, -1},
	}
	for _, tt := range tests {
		if got := pc.ColumnIndex(tt.column); got != tt.want {
			t.Errorf("ColumnIndex(%s) = %d, want %d", tt.column, got, tt.want)
		}
	}
	if !reflect.DeepEqual(pc.Headers, []string{"narration", "date", "debit"}) {
		t.Errorf("Unexpected normalized headers %v", pc.Headers)
	}
}

func TestConcurrentParser_ParseFiles(t *testing.T) {
	dir := t.TempDir()

	var paths []string
	for _, name := range []string{"gtb.csv", "uba.csv", "zenith.csv", "access.csv", "first.csv"} {
		account := models.AccountIDFromFilename(name)
		content := standardHeader +
			account + ",2024-03-01 08:00:00,POS,10,,0\n" +
			account + ",2024-03-01 09:00:00,POS,20,,0\n" +
			account + ",bad,POS,20,,0\n"
		paths = append(paths, writeCSV(t, dir, name, content))
	}

	config := DefaultTransactionParserConfig()
	config.MaxConcurrentFiles = 2
	result, err := NewConcurrentParser(newTestParser(t, config)).ParseFiles(context.Background(), paths)
	if err != nil {
		t.Fatalf("ParseFiles failed: %v", err)
	}

	if len(result.Transactions) != 10 {
		t.Fatalf("Expected 10 transactions, got %d", len(result.Transactions))
	}
	if result.RejectedRows() != 5 {
		t.Errorf("Expected 5 rejected rows, got %d", result.RejectedRows())
	}

	wantAccounts := []string{"GTB_Main", "UBA_Main", "ZEN_Main", "ACC_Main", "FBN_Main"}
	for i, tx := range result.Transactions {
		if want := wantAccounts[i/2]; tx.AccountID != want {
			t.Errorf("transaction %d: expected account %s in file order, got %s", i, want, tx.AccountID)
		}
	}
	for i, file := range result.Files {
		if file.FilePath != paths[i] {
			t.Errorf("file %d: expected %s, got %s", i, paths[i], file.FilePath)
		}
	}
}

func TestConcurrentParser_IDsUniqueAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeCSV(t, dir, "export_march.csv", standardHeader+
			"GTB_Main,2024-03-01 08:30:00,TRANSFER TO: JOHN DOE,5000,,0\n"+
			"GTB_Main,2024-03-01 09:00:00,POS,10,,0\n"),
		writeCSV(t, dir, "export_march_again.csv", standardHeader+
			"GTB_Main,bad,POS,1,,0\n"+
			"GTB_Main,2024-03-01 09:00:00,POS,10,,0\n"),
		writeCSV(t, dir, "export_late.csv", standardHeader+
			"GTB_Main,2024-03-01 08:30:00,POS PURCHASE: SHOPRITE,5000,,0\n"),
	}

	result, err := NewConcurrentParser(newTestParser(t, nil)).ParseFiles(context.Background(), paths)
	if err != nil {
		t.Fatalf("ParseFiles failed: %v", err)
	}

	want := []string{
		"GTB_Main_20240301_083000_1",
		"GTB_Main_20240301_090000_2",
		"GTB_Main_20240301_090000_4",
		"GTB_Main_20240301_083000_5",
	}
	if len(result.Transactions) != len(want) {
		t.Fatalf("Expected %d transactions, got %d", len(want), len(result.Transactions))
	}

	seen := make(map[string]bool)
	for i, tx := range result.Transactions {
		if tx.TransactionID != want[i] {
			t.Errorf("transaction %d: expected id %s, got %s", i, want[i], tx.TransactionID)
		}
		if seen[tx.TransactionID] {
			t.Errorf("id %s appears more than once", tx.TransactionID)
		}
		seen[tx.TransactionID] = true
	}
	if last := result.Transactions[3]; last.Position != 5 || last.SourceFile != "export_late.csv" {
		t.Errorf("Expected position 5 from export_late.csv, got %d from %s", last.Position, last.SourceFile)
	}
}

func TestConcurrentParser_FailingFile(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeCSV(t, dir, "gtb.csv", standardHeader+"GTB_Main,2024-03-01 08:00:00,POS,10,,0\n"),
		filepath.Join(dir, "missing.csv"),
	}

	_, err := NewConcurrentParser(newTestParser(t, nil)).ParseFiles(context.Background(), paths)
	if err == nil {
		t.Fatal("Expected error but got none")
	}
	if code := codeOf(t, err); code != errors.CodeFileNotFound {
		t.Errorf("Expected code %s, got %s", errors.CodeFileNotFound, code)
	}
}

func TestConcurrentParser_NoFiles(t *testing.T) {
	result, err := NewConcurrentParser(newTestParser(t, nil)).ParseFiles(context.Background(), nil)
	if err != nil {
		t.Fatalf("ParseFiles failed: %v", err)
	}
	if result.Transactions == nil || len(result.Transactions) != 0 {
		t.Error("Expected an empty, non-nil transaction list")
	}
}
