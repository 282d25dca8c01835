package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory groups errors by the layer that raised them
type ErrorCategory string

const (
	CategoryFile           ErrorCategory = "file"
	CategoryParse          ErrorCategory = "parse"
	CategoryValidation     ErrorCategory = "validation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode identifies a specific failure within a category
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileUnreadable ErrorCode = "file_unreadable"
	CodeFileWrite      ErrorCode = "file_write"

	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeInvalidData   ErrorCode = "invalid_data"

	// Validation errors
	CodeInvalidAmount    ErrorCode = "invalid_amount"
	CodeInvalidDate      ErrorCode = "invalid_date"
	CodeMissingField     ErrorCode = "missing_field"
	CodeTypeInconsistent ErrorCode = "type_inconsistent"

	// Configuration errors
	CodeInvalidConfig  ErrorCode = "invalid_config"
	CodeMissingConfig  ErrorCode = "missing_config"
	CodeConfigConflict ErrorCode = "config_conflict"

	// Reconciliation errors
	CodeStageFailed     ErrorCode = "stage_failed"
	CodeCancelled       ErrorCode = "cancelled"
	CodeProcessingError ErrorCode = "processing_error"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconcilerError is the error type returned across package boundaries
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context carries key/value details about where the error happened
type Context map[string]interface{}

func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// GetExitCode maps the error category to a process exit code
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryReconciliation, CategoryInternal:
		return 5
	default:
		return 1
	}
}

// WithContext records a detail on the error and returns it for chaining
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion replaces the suggestion shown to the user
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// New creates a ReconcilerError without an underlying cause
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap attaches category, code and message to err. A nil err yields nil.
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// template holds the message format and suggestion for one error code.
// The format receives the constructor's subject (path, field, setting or operation).
type template struct {
	format     string
	suggestion string
}

var templates = map[ErrorCode]template{
	CodeFileNotFound:   {"file not found: %s", "check that the path is correct and the file exists"},
	CodeFilePermission: {"permission denied reading file: %s", "check file permissions and ensure you have read access"},
	CodeFileUnreadable: {"file could not be read: %s", "verify the file is a readable CSV export"},
	CodeFileWrite:      {"file could not be written: %s", "check that the output directory exists and is writable"},

	CodeInvalidFormat: {"invalid format in %s", "check the row matches the expected column layout"},
	CodeMissingColumn: {"missing required column in %s", "add the missing column to the CSV header"},
	CodeInvalidData:   {"invalid data in %s", "correct the value or remove the row"},

	CodeInvalidAmount:    {"invalid amount in field '%s'", "amounts must be non-negative decimal numbers such as '1250.50'"},
	CodeInvalidDate:      {"invalid date in field '%s'", "use YYYY-MM-DD HH:MM:SS or RFC 3339 timestamps"},
	CodeMissingField:     {"required field '%s' is missing or empty", "provide a value for this required field"},
	CodeTypeInconsistent: {"transaction type does not match amounts in field '%s'", "a row is a debit exactly when its debit amount is positive"},

	CodeInvalidConfig:  {"invalid configuration for '%s'", "check the configuration documentation for valid values"},
	CodeMissingConfig:  {"missing required configuration: %s", "provide this setting with a flag, environment variable or config file"},
	CodeConfigConflict: {"conflicting configuration for '%s'", "remove one of the conflicting settings"},

	CodeStageFailed:     {"reconciliation stage failed: %s", "inspect the cause and the input data"},
	CodeCancelled:       {"reconciliation cancelled during %s", "rerun without the deadline or with a larger timeout"},
	CodeProcessingError: {"processing error during %s", "check system resources and try again"},

	CodeUnexpectedError: {"unexpected error during %s", "this is likely a bug, please report it with the error details"},
}

func build(category ErrorCategory, code ErrorCode, subject string, err error) *ReconcilerError {
	tpl, ok := templates[code]
	if !ok {
		tpl = template{format: string(category) + " error: %s", suggestion: "check the input and try again"}
	}

	message := fmt.Sprintf(tpl.format, subject)

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, category, code, message)
	} else {
		result = New(category, code, message)
	}
	return result.WithSuggestion(tpl.suggestion)
}

// FileError creates an error about an input or output file
func FileError(code ErrorCode, path string, err error) *ReconcilerError {
	return build(CategoryFile, code, path, err).
		WithContext("file_path", path)
}

// ParseError creates an error for a CSV row that could not be converted
func ParseError(code ErrorCode, file string, line int, column string, value string, err error) *ReconcilerError {
	location := fmt.Sprintf("%s at line %d", file, line)
	if column != "" {
		location = fmt.Sprintf("%s, column '%s'", location, column)
	}

	result := build(CategoryParse, code, location, err).
		WithContext("file", file).
		WithContext("line", line)
	if column != "" {
		result.WithContext("column", column)
	}
	if value != "" {
		result.Message = fmt.Sprintf("%s: '%s'", result.Message, value)
		result.WithContext("value", value)
	}
	return result
}

// ValidationError creates an error for a field that violates a record invariant
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ReconcilerError {
	result := build(CategoryValidation, code, field, err).
		WithContext("field", field).
		WithContext("value", value)
	if value != nil && code != CodeMissingField {
		result.Message = fmt.Sprintf("%s: %v", result.Message, value)
	}
	return result
}

// ConfigurationError creates an error for an out-of-range or missing setting
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconcilerError {
	result := build(CategoryConfiguration, code, setting, err).
		WithContext("setting", setting).
		WithContext("value", value)
	if code != CodeMissingConfig {
		result.Message = fmt.Sprintf("%s: %v", result.Message, value)
	}
	return result
}

// ReconciliationError creates an error for a failed or abandoned run
func ReconciliationError(code ErrorCode, operation string, err error) *ReconcilerError {
	return build(CategoryReconciliation, code, operation, err).
		WithContext("operation", operation)
}

// InternalError creates an error for conditions that indicate a bug
func InternalError(code ErrorCode, operation string, err error) *ReconcilerError {
	return build(CategoryInternal, code, operation, err).
		WithContext("operation", operation)
}

// ErrorSummary aggregates the errors collected during a batch operation
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*ReconcilerError    `json:"errors"`
	SampleErrors []*ReconcilerError    `json:"sample_errors,omitempty"`
}

const maxSampleErrors = 5

// NewErrorSummary counts errs by category and code
func NewErrorSummary(errs []*ReconcilerError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if summary.Errors == nil {
		summary.Errors = []*ReconcilerError{}
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	if len(errs) > maxSampleErrors {
		summary.SampleErrors = errs[:maxSampleErrors]
	} else if len(errs) > 0 {
		summary.SampleErrors = errs
	}

	return summary
}

func (es *ErrorSummary) Error() string {
	switch es.Total {
	case 0:
		return "no errors"
	case 1:
		return es.Errors[0].Error()
	}

	categories := make([]string, 0, len(es.ByCategory))
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	sort.Strings(categories)

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory reports whether any collected error has the category
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	return es.ByCategory[category] > 0
}

// HasCode reports whether any collected error has the code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	return es.ByCode[code] > 0
}

// GetExitCode returns the highest exit code among the collected errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}

	maxCode := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > maxCode {
			maxCode = code
		}
	}
	return maxCode
}

// IsReconcilerError reports whether err is a *ReconcilerError (without unwrapping)
func IsReconcilerError(err error) bool {
	_, ok := err.(*ReconcilerError)
	return ok
}

// AsReconcilerError finds the first *ReconcilerError in err's chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// WrapIfNeeded returns err's ReconcilerError if it has one, otherwise wraps it
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return Wrap(err, category, code, message)
}
