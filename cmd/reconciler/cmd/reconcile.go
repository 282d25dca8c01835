package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"statement-reconciler/cmd/reconciler/config"
	"statement-reconciler/internal/reconciler"
	"statement-reconciler/internal/reporter"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// progressInterval is how often --progress logs a stage update
const progressInterval = 2 * time.Second

func newReconcileCommand(v *viper.Viper) *cobra.Command {
	var (
		sequential bool
		bindErr    error
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Flag refunds, duplicate payments and unmatched debits",
		Long: `Reconcile reads one or more statement CSV files, merges them into a single
ledger and reports:
- debits refunded by a later credit of the same amount in the same account
- pairs of debits that look like the same payment made twice, within or
  across accounts
- debits that were never refunded, and the estimated net loss

Each file needs a header with account_id, datetime, narration, debit, credit
and balance columns. Rows that cannot be read are skipped and listed in the
report.

Examples:
  # Basic reconciliation of two accounts
  reconciler reconcile --files gtb.csv,uba.csv

  # Tighter duplicate detection
  reconciler reconcile --files gtb.csv --duplicate-days 1 \
    --amount-threshold 0 --similarity-threshold 95

  # The strict preset, with a two day window
  reconciler reconcile --files gtb.csv --matching-preset strict --duplicate-days 2

  # JSON report for March only
  reconciler reconcile --files gtb.csv --start-date 2024-03-01 \
    --end-date 2024-03-31 --output-format json --output-file march.json

  # With progress logging and sequential detection
  reconciler reconcile --files gtb.csv --progress --sequential`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if bindErr != nil {
				return bindErr
			}
			if sequential {
				v.Set(config.KeyParallel, false)
			}
			return runReconcile(cmd, v)
		},
	}

	flags := cmd.Flags()
	defaults := config.DefaultSettings()

	// Input flags
	flags.StringSliceP(config.KeyFiles, "i", nil, "comma-separated paths to statement CSV files (required)")
	flags.String(config.KeyDelimiter, defaults.Delimiter, "CSV field delimiter")
	flags.Bool(config.KeyInferAccount, false, "derive a missing account_id from the file name")
	flags.String(config.KeyDefaultAccount, "", "account id for rows without one")
	flags.Int(config.KeyMaxErrors, defaults.MaxErrors, "maximum rejected rows recorded per file (0 records all)")
	flags.String(config.KeyStartDate, "", "ignore transactions before this date (YYYY-MM-DD)")
	flags.String(config.KeyEndDate, "", "ignore transactions after this date (YYYY-MM-DD, inclusive)")

	// Matching flags
	flags.String(config.KeyMatchingPreset, defaults.MatchingPreset, "duplicate thresholds preset: default, strict, relaxed (threshold flags override it)")
	flags.Int(config.KeyDuplicateDays, defaults.DuplicateDays, "largest whole-day gap between duplicate debits")
	flags.String(config.KeyAmountThreshold, defaults.AmountThreshold, "largest amount difference between duplicate debits")
	flags.Float64(config.KeySimilarityThreshold, defaults.SimilarityThreshold, "minimum beneficiary similarity (0-100)")
	flags.String(config.KeySimilarityAlgorithm, defaults.SimilarityAlgorithm, "beneficiary similarity: token_set or jaccard")
	flags.Bool(config.KeyParallel, defaults.Parallel, "run refund and duplicate detection concurrently")
	flags.BoolVar(&sequential, "sequential", false, "run refund and duplicate detection one after the other")

	// Output flags
	flags.StringP(config.KeyOutputFormat, "f", defaults.OutputFormat, "output format: console, json, csv")
	flags.StringP(config.KeyOutputFile, "o", "", "output file path (default: stdout)")
	flags.Bool(config.KeyIncludeStats, false, "include run statistics and timings in the report")
	flags.Bool(config.KeySortByAmount, false, "list unmatched debits largest first")
	flags.Int(config.KeyMaxListItems, defaults.MaxListItems, "maximum items per console section (0 lists all)")

	// Logging flags
	flags.Bool(config.KeyProgress, false, "log progress of each reconciliation stage")
	flags.String(config.KeyLogLevel, defaults.LogLevel, "log level: debug, info, warn, error")
	flags.String(config.KeyLogFormat, defaults.LogFormat, "log format: text or json")

	var names []string
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name != "sequential" {
			names = append(names, f.Name)
		}
	})
	bindErr = bindFlags(v, flags, names)

	return cmd
}

// bindFlags binds each named flag to the setting of the same name
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, names []string) error {
	for _, name := range names {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, name, nil, err).
				WithSuggestion("the flag could not be bound to its setting")
		}
	}
	return nil
}

func runReconcile(cmd *cobra.Command, v *viper.Viper) error {
	settings := config.Load(v)
	if err := settings.Validate(); err != nil {
		return err
	}

	for _, file := range settings.Files {
		if err := validateFileExists(file); err != nil {
			return err
		}
	}
	if err := validateOutputDir(settings.OutputFile); err != nil {
		return err
	}

	log, err := newLogger(settings, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	parserConfig, err := config.CreateTransactionParserConfig(settings)
	if err != nil {
		return err
	}
	reconcilerConfig, err := config.CreateReconcilerConfig(settings)
	if err != nil {
		return err
	}
	reportConfig, err := config.CreateReportConfig(settings)
	if err != nil {
		return err
	}
	startDate, endDate, err := config.ParseDateRange(settings)
	if err != nil {
		return err
	}

	opts := []reconciler.EngineOption{reconciler.WithLogger(log)}
	if settings.Progress {
		opts = append(opts, reconciler.WithProgress(logger.NewStageProgressLogger(log.WithComponent("progress"), progressInterval)))
	}

	service, err := reconciler.NewService(parserConfig, reconcilerConfig, opts...)
	if err != nil {
		return err
	}

	generator, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return err
	}

	log.WithFields(logger.Fields{
		"files":         settings.Files,
		"output_format": reportConfig.Format,
		"parallel":      reconcilerConfig.Parallel,
		"matching":      reconcilerConfig.Matching.String(),
	}).Debug("Starting reconciliation")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := service.Process(ctx, &reconciler.Request{
		Files:     settings.Files,
		StartDate: startDate,
		EndDate:   endDate,
	})
	if err != nil {
		return err
	}

	if err := generator.WriteReportFile(run, settings.OutputFile, cmd.OutOrStdout()); err != nil {
		return err
	}

	if settings.Verbose {
		printCompletion(cmd.ErrOrStderr(), run)
	}
	return nil
}

func newLogger(settings *config.Settings, stderr io.Writer) (logger.Logger, error) {
	logConfig, err := config.CreateLoggerConfig(settings)
	if err != nil {
		return nil, err
	}
	logConfig.Writer = stderr

	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, config.KeyLogLevel, settings.LogLevel, err)
	}
	logger.SetGlobalLogger(log)
	return log, nil
}

func validateFileExists(filePath string) error {
	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err)
	}
	if os.IsPermission(err) {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	if err != nil {
		return errors.FileError(errors.CodeFileUnreadable, filePath, err)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeFileUnreadable, filePath, nil).
			WithSuggestion("expected a CSV file, got a directory")
	}
	return nil
}

func validateOutputDir(outputFile string) error {
	if outputFile == "" || outputFile == "-" {
		return nil
	}

	dir := filepath.Dir(outputFile)
	info, err := os.Stat(dir)
	if err != nil {
		return errors.FileError(errors.CodeFileWrite, outputFile, err).
			WithSuggestion(fmt.Sprintf("create the output directory %s first", dir))
	}
	if !info.IsDir() {
		return errors.FileError(errors.CodeFileWrite, outputFile, nil).
			WithSuggestion(fmt.Sprintf("%s is not a directory", dir))
	}
	return nil
}

func printCompletion(w io.Writer, run *reconciler.ReconciliationResult) {
	s := run.Summary
	fmt.Fprintf(w, "\nReconciliation completed successfully.\n")
	fmt.Fprintf(w, "Read %d files: %d rows, %d rejected.\n",
		run.Ingestion.FilesProcessed, run.Ingestion.RecordsParsed, run.Ingestion.RejectedRows)
	fmt.Fprintf(w, "Found %d refunds, %d duplicate groups and %d unmatched debits across %d accounts.\n",
		s.RefundCount, s.DuplicateGroups, s.UnmatchedDebitsCount, s.TotalAccounts)
	fmt.Fprintf(w, "Estimated net loss: %s\n", s.EstimatedNetLoss.StringFixed(2))
	if run.Stats != nil {
		fmt.Fprintf(w, "Processing time: %v\n", run.Stats.ProcessingDuration)
	}
}
