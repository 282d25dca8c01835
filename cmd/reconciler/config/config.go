// Package config turns viper settings into the configuration structs of the
// parsers, reconciler and reporter packages.
package config

import (
	"os"
	"strings"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"statement-reconciler/internal/matcher"
	"statement-reconciler/internal/models"
	"statement-reconciler/internal/parsers"
	"statement-reconciler/internal/reconciler"
	"statement-reconciler/internal/reporter"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// Setting keys shared by flags, the config file and RECONCILER_* variables
const (
	KeyFiles               = "files"
	KeyMatchingPreset      = "matching-preset"
	KeyDuplicateDays       = "duplicate-days"
	KeyAmountThreshold     = "amount-threshold"
	KeySimilarityThreshold = "similarity-threshold"
	KeySimilarityAlgorithm = "similarity-algorithm"
	KeyParallel            = "parallel"
	KeyOutputFormat        = "output-format"
	KeyOutputFile          = "output-file"
	KeyProgress            = "progress"
	KeyVerbose             = "verbose"
	KeyLogLevel            = "log-level"
	KeyLogFormat           = "log-format"
	KeyInferAccount        = "infer-account"
	KeyDefaultAccount      = "default-account"
	KeyDelimiter           = "delimiter"
	KeyMaxErrors           = "max-errors"
	KeyStartDate           = "start-date"
	KeyEndDate             = "end-date"
	KeyIncludeStats        = "include-stats"
	KeySortByAmount        = "sort-by-amount"
	KeyMaxListItems        = "max-list-items"
)

const dateLayout = "2006-01-02"

// Settings is the flat view of every option the reconcile command accepts
type Settings struct {
	Files               []string
	MatchingPreset      string
	DuplicateDays       int
	AmountThreshold     string
	SimilarityThreshold float64
	SimilarityAlgorithm string
	Parallel            bool
	OutputFormat        string
	OutputFile          string
	Progress            bool
	Verbose             bool
	LogLevel            string
	LogFormat           string
	InferAccount        bool
	DefaultAccount      string
	Delimiter           string
	MaxErrors           int
	StartDate           string
	EndDate             string
	IncludeStats        bool
	SortByAmount        bool
	MaxListItems        int
}

// DefaultSettings mirrors the package defaults of the matcher, parser and reporter
func DefaultSettings() *Settings {
	matching := matcher.DefaultMatchingConfig()
	parser := parsers.DefaultTransactionParserConfig()
	report := reporter.DefaultReportConfig()

	return &Settings{
		MatchingPreset:      matcher.PresetDefault,
		DuplicateDays:       matching.DuplicateDays,
		AmountThreshold:     matching.AmountThreshold.String(),
		SimilarityThreshold: matching.SimilarityThreshold,
		SimilarityAlgorithm: matching.SimilarityAlgorithm.String(),
		Parallel:            true,
		OutputFormat:        string(report.Format),
		LogLevel:            string(logger.InfoLevel),
		LogFormat:           string(logger.TextFormat),
		Delimiter:           string(parser.Delimiter),
		MaxErrors:           parser.MaxErrors,
		MaxListItems:        report.MaxListItems,
	}
}

// SetDefaults registers the defaults on v so a config file or environment
// only has to name what it changes. The duplicate thresholds get no default
// here; Load takes them from the matching preset unless they are set.
func SetDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault(KeyMatchingPreset, d.MatchingPreset)
	v.SetDefault(KeyParallel, d.Parallel)
	v.SetDefault(KeyOutputFormat, d.OutputFormat)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)
	v.SetDefault(KeyDelimiter, d.Delimiter)
	v.SetDefault(KeyMaxErrors, d.MaxErrors)
	v.SetDefault(KeyMaxListItems, d.MaxListItems)
}

// envPrefix is the prefix of every environment variable the CLI reads
const envPrefix = "RECONCILER"

// BindEnv makes every key readable from a RECONCILER_ variable, with dashes
// replaced by underscores (duplicate-days → RECONCILER_DUPLICATE_DAYS)
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// ReadConfigFile merges the config file at path into v. The format follows
// the file extension (yaml, json, toml).
func ReadConfigFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "config", path, err).
			WithSuggestion("check that the config file exists and is valid yaml, json or toml")
	}
	return nil
}

// LoadEnvFile reads RECONCILER_* assignments from a dotenv file at path.
// They act as defaults: the process environment, a config file and flags
// all take precedence. Other variables in the file are ignored.
func LoadEnvFile(v *viper.Viper, path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "env-file", path, err).
			WithSuggestion("check that the env file exists and holds KEY=value lines")
	}

	for name, value := range values {
		key, ok := strings.CutPrefix(name, envPrefix+"_")
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(name); set {
			continue
		}
		v.SetDefault(strings.ReplaceAll(strings.ToLower(key), "_", "-"), value)
	}
	return nil
}

// Load reads the settings from v. A duplicate threshold set by a flag, a
// RECONCILER_ variable, the env file or the config file overrides the value
// of the matching preset; an unknown preset is left for Validate to report.
func Load(v *viper.Viper) *Settings {
	preset, err := matcher.PresetMatchingConfig(v.GetString(KeyMatchingPreset))
	if err != nil {
		preset = matcher.DefaultMatchingConfig()
	}

	return &Settings{
		Files:               splitFiles(v.GetStringSlice(KeyFiles)),
		MatchingPreset:      v.GetString(KeyMatchingPreset),
		DuplicateDays:       setOr(v, KeyDuplicateDays, v.GetInt, preset.DuplicateDays),
		AmountThreshold:     setOr(v, KeyAmountThreshold, v.GetString, preset.AmountThreshold.String()),
		SimilarityThreshold: setOr(v, KeySimilarityThreshold, v.GetFloat64, preset.SimilarityThreshold),
		SimilarityAlgorithm: setOr(v, KeySimilarityAlgorithm, v.GetString, preset.SimilarityAlgorithm.String()),
		Parallel:            v.GetBool(KeyParallel),
		OutputFormat:        v.GetString(KeyOutputFormat),
		OutputFile:          v.GetString(KeyOutputFile),
		Progress:            v.GetBool(KeyProgress),
		Verbose:             v.GetBool(KeyVerbose),
		LogLevel:            v.GetString(KeyLogLevel),
		LogFormat:           v.GetString(KeyLogFormat),
		InferAccount:        v.GetBool(KeyInferAccount),
		DefaultAccount:      v.GetString(KeyDefaultAccount),
		Delimiter:           v.GetString(KeyDelimiter),
		MaxErrors:           v.GetInt(KeyMaxErrors),
		StartDate:           v.GetString(KeyStartDate),
		EndDate:             v.GetString(KeyEndDate),
		IncludeStats:        v.GetBool(KeyIncludeStats),
		SortByAmount:        v.GetBool(KeySortByAmount),
		MaxListItems:        v.GetInt(KeyMaxListItems),
	}
}

// setOr returns get(key) when key is set anywhere but in a flag default,
// and fallback otherwise
func setOr[T any](v *viper.Viper, key string, get func(string) T, fallback T) T {
	if v.IsSet(key) {
		return get(key)
	}
	return fallback
}

// splitFiles accepts both repeated values and a single comma separated
// value, which is how RECONCILER_FILES arrives
func splitFiles(values []string) []string {
	var files []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				files = append(files, part)
			}
		}
	}
	return files
}

// CreateMatchingConfig builds the duplicate matching thresholds
func CreateMatchingConfig(s *Settings) (*matcher.MatchingConfig, error) {
	threshold, err := decimal.NewFromString(strings.TrimSpace(s.AmountThreshold))
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyAmountThreshold, s.AmountThreshold, err).
			WithSuggestion("amount threshold must be a decimal number such as 1000 or 250.50")
	}

	config := &matcher.MatchingConfig{
		DuplicateDays:       s.DuplicateDays,
		AmountThreshold:     threshold,
		SimilarityThreshold: s.SimilarityThreshold,
		SimilarityAlgorithm: matcher.SimilarityAlgorithm(s.SimilarityAlgorithm),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateReconcilerConfig builds the engine configuration
func CreateReconcilerConfig(s *Settings) (*reconciler.Config, error) {
	matching, err := CreateMatchingConfig(s)
	if err != nil {
		return nil, err
	}
	return &reconciler.Config{
		Matching: matching,
		Parallel: s.Parallel,
	}, nil
}

// CreateTransactionParserConfig builds the CSV reader configuration
func CreateTransactionParserConfig(s *Settings) (*parsers.TransactionParserConfig, error) {
	config := parsers.DefaultTransactionParserConfig()

	if s.Delimiter != "" {
		if utf8.RuneCountInString(s.Delimiter) != 1 {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyDelimiter, s.Delimiter, nil).
				WithSuggestion("the delimiter must be a single character")
		}
		config.Delimiter, _ = utf8.DecodeRuneInString(s.Delimiter)
	}

	config.InferAccount = s.InferAccount
	config.DefaultAccountID = strings.TrimSpace(s.DefaultAccount)
	config.MaxErrors = s.MaxErrors

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateReportConfig builds the report configuration for the chosen format
func CreateReportConfig(s *Settings) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(strings.ToLower(s.OutputFormat))
	config.IncludeRunStats = s.IncludeStats
	config.SortByAmount = s.SortByAmount
	config.MaxListItems = s.MaxListItems

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateLoggerConfig builds the logger configuration. Logs always go to
// stderr; stdout is reserved for the report.
func CreateLoggerConfig(s *Settings) (*logger.Config, error) {
	config := logger.DefaultConfig()
	if s.LogLevel != "" {
		config.Level = logger.Level(strings.ToLower(s.LogLevel))
	}
	if s.Verbose {
		config.Level = logger.DebugLevel
	}
	if s.LogFormat != "" {
		config.Format = logger.Format(strings.ToLower(s.LogFormat))
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyLogLevel, s.LogLevel, err).
			WithSuggestion("log level is one of debug, info, warn, error; log format is text or json")
	}
	return config, nil
}

// ParseDateRange parses the optional date window. A bare date as the end
// bound covers that whole day.
func ParseDateRange(s *Settings) (start, end *time.Time, err error) {
	if s.StartDate != "" {
		t, err := parseBound(KeyStartDate, s.StartDate)
		if err != nil {
			return nil, nil, err
		}
		start = &t
	}

	if s.EndDate != "" {
		t, err := parseBound(KeyEndDate, s.EndDate)
		if err != nil {
			return nil, nil, err
		}
		if _, bare := time.Parse(dateLayout, s.EndDate); bare == nil {
			t = t.Add(24*time.Hour - time.Second)
		}
		end = &t
	}

	if start != nil && end != nil && start.After(*end) {
		return nil, nil, errors.ConfigurationError(errors.CodeConfigConflict, KeyStartDate, s.StartDate, nil).
			WithSuggestion("start date cannot be after end date")
	}
	return start, end, nil
}

func parseBound(key, value string) (time.Time, error) {
	t, err := models.ParseTimeWithFormats(value)
	if err != nil {
		return time.Time{}, errors.ConfigurationError(errors.CodeInvalidConfig, key, value, err).
			WithSuggestion("use YYYY-MM-DD or YYYY-MM-DD HH:MM:SS")
	}
	return t, nil
}

// settingCheck is one field rule applied by Settings.Validate
type settingCheck struct {
	key        string
	value      interface{}
	rules      []validation.Rule
	suggestion string
}

func presetNames() []interface{} {
	names := make([]interface{}, 0, len(matcher.PresetNames()))
	for _, name := range matcher.PresetNames() {
		names = append(names, name)
	}
	return names
}

// Validate checks the settings that no downstream config validates
func (s *Settings) Validate() error {
	if len(s.Files) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, KeyFiles, nil, nil).
			WithSuggestion("pass at least one statement file with --files")
	}

	checks := []settingCheck{
		{
			key:        KeyMatchingPreset,
			value:      strings.ToLower(strings.TrimSpace(s.MatchingPreset)),
			rules:      []validation.Rule{validation.In(presetNames()...)},
			suggestion: "use one of: " + strings.Join(matcher.PresetNames(), ", "),
		},
		{
			key:   KeyOutputFormat,
			value: strings.ToLower(s.OutputFormat),
			rules: []validation.Rule{
				validation.Required,
				validation.In(string(reporter.FormatConsole), string(reporter.FormatJSON), string(reporter.FormatCSV)),
			},
			suggestion: "use one of: console, json, csv",
		},
		{
			key:        KeyMaxListItems,
			value:      s.MaxListItems,
			rules:      []validation.Rule{validation.Min(0)},
			suggestion: "use 0 to list every item",
		},
		{
			key:        KeyDelimiter,
			value:      s.Delimiter,
			rules:      []validation.Rule{validation.RuneLength(1, 1)},
			suggestion: "the delimiter must be a single character",
		},
	}

	for _, check := range checks {
		if err := validation.Validate(check.value, check.rules...); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, check.key, check.value, err).
				WithSuggestion(check.suggestion)
		}
	}

	if _, _, err := ParseDateRange(s); err != nil {
		return err
	}
	return nil
}
