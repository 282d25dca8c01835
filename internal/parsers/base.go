// Package parsers reads normalized statement CSV files into transactions.
//
// The input is expected to be tabular already: one row per statement line,
// numeric amounts and ISO-like timestamps. Rows that cannot be converted or
// that fail record validation are rejected individually and reported in
// ParseStats; a file only fails as a whole when it cannot be opened or its
// header lacks a required column.
//
// Example usage:
//
//	parser, err := parsers.NewTransactionParser(parsers.DefaultTransactionParserConfig())
//	transactions, stats, err := parser.ParseFile(ctx, "gtbank_jan.csv")
//	fmt.Println(stats)
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// ParseConfig holds configuration for CSV reading
type ParseConfig struct {
	Delimiter        rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	ValidateEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     64 * 1024,
		ValidateEncoding: true,
	}
}

// BaseParser provides common CSV reading functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	return &BaseParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("csv_reader"),
	}
}

// ParseContext holds state while one source is read
type ParseContext struct {
	Source      string
	LineNumber  int
	RecordCount int
	Headers     []string
	columns     map[string]int
	ctx         context.Context
}

// NewParseContext creates a new parsing context for source
func NewParseContext(ctx context.Context, source string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		Source:  source,
		columns: make(map[string]int),
		ctx:     ctx,
	}
}

// Err returns the context error, if any
func (pc *ParseContext) Err() error {
	return pc.ctx.Err()
}

// ColumnIndex returns the index of a standard column, or -1 if the header lacks it
func (pc *ParseContext) ColumnIndex(column string) int {
	if index, ok := pc.columns[column]; ok {
		return index
	}
	return -1
}

// HasColumn reports whether the header provides a standard column
func (pc *ParseContext) HasColumn(column string) bool {
	return pc.ColumnIndex(column) >= 0
}

// OpenFile opens a CSV file, validates its encoding and returns a configured csv.Reader
func (bp *BaseParser) OpenFile(filePath string) (*os.File, *csv.Reader, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	file, err := os.Open(filePath)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		case os.IsPermission(err):
			return nil, nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		default:
			return nil, nil, errors.FileError(errors.CodeFileUnreadable, filePath, err)
		}
	}

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, filePath); err != nil {
			file.Close()
			return nil, nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, nil, errors.FileError(errors.CodeFileUnreadable, filePath, err)
		}
	}

	return file, bp.NewReader(file), nil
}

// NewReader wraps r in a csv.Reader configured for this parser
func (bp *BaseParser) NewReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = bp.config.Delimiter
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	return reader
}

// validateEncoding checks that the first lines of the file are valid UTF-8
func (bp *BaseParser) validateEncoding(file *os.File, filePath string) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for line := 1; scanner.Scan() && line <= 100; line++ {
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(errors.CodeInvalidFormat, filePath, line, "", "", fmt.Errorf("invalid UTF-8 encoding")).
				WithSuggestion("save the file as UTF-8 and try again")
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileUnreadable, filePath, err)
	}
	return nil
}

// ReadHeaders reads the header row and resolves each standard column through
// aliases. It fails when a required column is missing.
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, pc *ParseContext, aliases func(string) []string, columns, required []string) error {
	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ParseError(errors.CodeInvalidFormat, pc.Source, 1, "", "", fmt.Errorf("file is empty")).
				WithSuggestion("the file must start with a header row")
		}
		return errors.ParseError(errors.CodeInvalidFormat, pc.Source, 1, "", "", err)
	}
	pc.LineNumber++

	pc.Headers = make([]string, len(headers))
	position := make(map[string]int, len(headers))
	for i, header := range headers {
		cleaned := normalizeHeader(header)
		pc.Headers[i] = cleaned
		if _, dup := position[cleaned]; !dup {
			position[cleaned] = i
		}
	}

	for _, column := range columns {
		for _, name := range aliases(column) {
			if index, ok := position[normalizeHeader(name)]; ok {
				pc.columns[column] = index
				break
			}
		}
	}

	var missing []string
	for _, column := range required {
		if !pc.HasColumn(column) {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"source":            pc.Source,
			"missing_columns":   missing,
			"available_headers": pc.Headers,
		}).Error("Required columns are missing")

		return errors.ParseError(errors.CodeMissingColumn, pc.Source, 1, "", strings.Join(missing, ", "), nil).
			WithSuggestion(fmt.Sprintf("add the columns %s to the header", strings.Join(missing, ", ")))
	}

	bp.logger.WithFields(logger.Fields{
		"source":  pc.Source,
		"headers": pc.Headers,
	}).Debug("Resolved CSV header")
	return nil
}

// normalizeHeader lower-cases a header, strips a UTF-8 BOM and surrounding space
func normalizeHeader(header string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header, "\ufeff")))
}

// ReadRecord returns the next non-empty record. A malformed CSV line is
// returned as a *errors.RowError so the caller can skip it and continue.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, pc *ParseContext) ([]string, error) {
	for {
		if err := pc.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Read()
		if err == io.EOF {
			return nil, io.EOF
		}

		if err != nil {
			if parseErr, ok := err.(*csv.ParseError); ok {
				pc.LineNumber = parseErr.StartLine
			} else {
				pc.LineNumber++
			}
			return nil, errors.NewRowError(pc.Source, pc.LineNumber,
				errors.ParseError(errors.CodeInvalidFormat, pc.Source, pc.LineNumber, "", "", err))
		}

		// FieldPos accounts for quoted fields spanning several lines
		pc.LineNumber, _ = reader.FieldPos(0)

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, field := range record {
				if len(field) > bp.config.MaxFieldSize {
					column := ""
					if i < len(pc.Headers) {
						column = pc.Headers[i]
					}
					return nil, errors.NewRowError(pc.Source, pc.LineNumber,
						errors.ParseError(errors.CodeInvalidData, pc.Source, pc.LineNumber, column, "",
							fmt.Errorf("field exceeds %d bytes", bp.config.MaxFieldSize))).WithRaw(record)
				}
			}
		}

		pc.RecordCount++
		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// FieldValue returns the trimmed value of a standard column, or "" when the
// header lacks the column or the record is short
func (bp *BaseParser) FieldValue(record []string, pc *ParseContext, column string) string {
	index := pc.ColumnIndex(column)
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// ParseStats holds statistics about reading one source
type ParseStats struct {
	Source        string             `json:"source"`
	TotalLines    int                `json:"total_lines"`
	RecordsParsed int                `json:"records_parsed"`
	RecordsValid  int                `json:"records_valid"`
	ErrorCount    int                `json:"error_count"`
	Errors        []*errors.RowError `json:"-"`

	collector *errors.RowErrorCollector
	full      bool
}

// NewParseStats creates a new ParseStats that keeps at most maxErrors row errors
func NewParseStats(source string, maxErrors int) *ParseStats {
	return &ParseStats{
		Source:    source,
		Errors:    make([]*errors.RowError, 0),
		collector: errors.NewRowErrorCollector(maxErrors),
	}
}

// AddError records a rejected row. Rejections past the limit are counted but not kept.
func (ps *ParseStats) AddError(err *errors.RowError) {
	ps.ErrorCount++
	if ps.full {
		return
	}
	if !ps.collector.Add(err) {
		ps.full = true
	}
	ps.Errors = ps.collector.Errors()
}

// HasErrors returns true if any row was rejected
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// Summary groups the kept row errors by category and code
func (ps *ParseStats) Summary() *errors.ErrorSummary {
	return ps.collector.Summary()
}

func (ps *ParseStats) String() string {
	return fmt.Sprintf("%s: parsed %d lines, %d records (%d valid), %d rejected",
		ps.Source, ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// SampleErrors returns up to max row error messages
func (ps *ParseStats) SampleErrors(max int) []string {
	limit := len(ps.Errors)
	if max > 0 && max < limit {
		limit = max
	}

	samples := make([]string, 0, limit)
	for _, err := range ps.Errors[:limit] {
		samples = append(samples, err.Error())
	}
	return samples
}
