package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"statement-reconciler/internal/reconciler"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with logging, error wrapping
// and file output
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, err
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely writes the report to writer, logging the outcome and
// returning every failure as a ReconcilerError
func (srg *SafeReportGenerator) GenerateReportSafely(run *reconciler.ReconciliationResult, writer io.Writer) error {
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("provide a valid output writer")
	}

	log := srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	})
	log.Debug("Starting report generation")

	if err := srg.GenerateReport(run, writer); err != nil {
		wrapped := srg.wrapGenerationError(err)
		log.WithError(wrapped).Error("Report generation failed")
		return wrapped
	}

	log.Debug("Report generation completed")
	return nil
}

// WriteReportFile writes the report to path. The report is written to a
// temporary file in the same directory and renamed into place, so an
// existing report is never left half-written. An empty path or "-" writes
// to stdout instead.
func (srg *SafeReportGenerator) WriteReportFile(run *reconciler.ReconciliationResult, path string, stdout io.Writer) error {
	if path == "" || path == "-" {
		return srg.GenerateReportSafely(run, stdout)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return srg.outputError(path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := srg.GenerateReportSafely(run, tmp); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return srg.outputError(path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return srg.outputError(path, err)
	}

	srg.logger.WithFields(logger.Fields{
		"format":      srg.config.Format,
		"output_file": path,
	}).Info("Report written")
	return nil
}

func (srg *SafeReportGenerator) outputError(path string, err error) error {
	wrapped := errors.FileError(errors.CodeFileWrite, path, err)
	srg.logger.WithError(wrapped).WithField("output_file", path).Error("Failed to write report")
	return wrapped
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return errors.InternalError(errors.CodeProcessingError, "report_generation", err).
		WithSuggestion("check the output destination and report format settings")
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}
