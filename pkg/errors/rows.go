package errors

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// RowError describes one rejected input row. Rows are rejected individually;
// the rest of the file is still read.
type RowError struct {
	*ReconcilerError
	File string   `json:"file"`
	Line int      `json:"line"`
	Raw  []string `json:"raw,omitempty"`
}

// NewRowError attaches file and line information to a parse or validation error
func NewRowError(file string, line int, err error) *RowError {
	base := WrapIfNeeded(err, CategoryParse, CodeInvalidData, "row rejected")
	return &RowError{
		ReconcilerError: base,
		File:            file,
		Line:            line,
	}
}

// WithRaw records the raw CSV fields of the rejected row
func (e *RowError) WithRaw(fields []string) *RowError {
	e.Raw = append([]string(nil), fields...)
	return e
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s:%d: %s", filepath.Base(e.File), e.Line, e.ReconcilerError.Message)
}

// Detailed renders the error over several lines for terminal output
func (e *RowError) Detailed() string {
	lines := []string{
		fmt.Sprintf("ERROR: %s", e.Message),
		fmt.Sprintf("  → File: %s", e.File),
		fmt.Sprintf("  → Line: %d", e.Line),
	}
	if len(e.Raw) > 0 {
		lines = append(lines, fmt.Sprintf("  → Content: %s", strings.Join(e.Raw, ",")))
	}
	if e.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("  → Suggestion: %s", e.Suggestion))
	}
	return strings.Join(lines, "\n")
}

// RowErrorCollector accumulates rejected rows up to a limit
type RowErrorCollector struct {
	errors    []*RowError
	maxErrors int
}

// NewRowErrorCollector creates a collector. maxErrors <= 0 means unlimited.
func NewRowErrorCollector(maxErrors int) *RowErrorCollector {
	return &RowErrorCollector{maxErrors: maxErrors}
}

// Add records err and reports whether reading may continue
func (c *RowErrorCollector) Add(err *RowError) bool {
	if err == nil {
		return true
	}
	c.errors = append(c.errors, err)
	return c.maxErrors <= 0 || len(c.errors) < c.maxErrors
}

func (c *RowErrorCollector) Len() int {
	return len(c.errors)
}

func (c *RowErrorCollector) Errors() []*RowError {
	return c.errors
}

// Summary converts the collected rows into an ErrorSummary
func (c *RowErrorCollector) Summary() *ErrorSummary {
	base := make([]*ReconcilerError, len(c.errors))
	for i, err := range c.errors {
		base[i] = err.ReconcilerError
	}
	return NewErrorSummary(base)
}

// FormatRowErrors groups rejected rows by file, showing at most perFile in detail
func FormatRowErrors(errs []*RowError, perFile int) string {
	if len(errs) == 0 {
		return "No rejected rows"
	}

	byFile := make(map[string][]*RowError)
	var files []string
	for _, err := range errs {
		name := filepath.Base(err.File)
		if _, seen := byFile[name]; !seen {
			files = append(files, name)
		}
		byFile[name] = append(byFile[name], err)
	}
	sort.Strings(files)

	lines := []string{fmt.Sprintf("Rejected %d rows:", len(errs))}
	for _, name := range files {
		fileErrors := byFile[name]
		lines = append(lines, "", fmt.Sprintf("File: %s (%d rows)", name, len(fileErrors)))
		for i, err := range fileErrors {
			if perFile > 0 && i == perFile {
				lines = append(lines, fmt.Sprintf("... and %d more in this file", len(fileErrors)-perFile))
				break
			}
			lines = append(lines, err.Detailed())
		}
	}
	return strings.Join(lines, "\n")
}
