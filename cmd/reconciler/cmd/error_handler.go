package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// Exit codes for failures that are not ReconcilerErrors
const (
	exitOK      = 0
	exitGeneric = 1
	exitFile    = 2
)

// CLIErrorHandler turns command errors into stderr messages and exit codes
type CLIErrorHandler struct {
	out     io.Writer
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler writing to out
func NewCLIErrorHandler(out io.Writer, verbose bool) *CLIErrorHandler {
	if out == nil {
		out = os.Stderr
	}
	return &CLIErrorHandler{
		out:     out,
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: verbose,
	}
}

// HandleError prints err and returns the process exit code for it
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return exitOK
	}

	h.logger.WithError(err).Debug("Command failed")

	var summary *errors.ErrorSummary
	if stderrors.As(err, &summary) {
		fmt.Fprintf(h.out, "Error: %s\n", summary.Error())
		return summary.GetExitCode()
	}

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return h.handleReconcilerError(reconcilerErr)
	}

	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			if value := err.Context[key]; value != nil {
				fmt.Fprintf(h.out, "  %s: %v\n", key, value)
			}
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", categoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	switch {
	case isFileNotFoundError(err):
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return exitFile
	case isPermissionError(err):
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return exitFile
	case isDiskFullError(err):
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return exitFile
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	fmt.Fprintf(h.out, "Run 'reconciler reconcile --help' for usage.\n")
	return exitGeneric
}

func categoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that every --files path exists and is readable
• Check that the output directory exists when using --output-file
• Use absolute paths if the command runs from another directory`

	case errors.CategoryParse:
		return `Parse error help:
• Statement files need a header with account_id, datetime, narration, debit, credit and balance
• Files must be UTF-8 encoded CSV
• Use --delimiter when the file is not comma separated`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required fields have values
• Debit and credit amounts must be non-negative, and only one may be set
• Dates use YYYY-MM-DD HH:MM:SS, RFC 3339 or DD/MM/YYYY`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and RECONCILER_* environment variables
• Verify configuration file syntax if using --config
• Use 'reconciler reconcile --help' to see all available options`

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• A cancelled run produces no report; rerun it to completion
• Try --sequential to rule out a problem in parallel detection`

	default:
		return `For more help:
• Use 'reconciler --help' for general help
• Use 'reconciler reconcile --help' for command-specific help
• Run with --verbose for the underlying error`
	}
}

func isFileNotFoundError(err error) bool {
	return stderrors.Is(err, os.ErrNotExist) || strings.Contains(err.Error(), "no such file or directory")
}

func isPermissionError(err error) bool {
	return stderrors.Is(err, os.ErrPermission) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func isDiskFullError(err error) bool {
	if stderrors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full")
}
