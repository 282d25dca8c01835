package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"statement-reconciler/cmd/reconciler/config"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// NewRootCommand builds the reconciler command tree around v. Flags, the
// optional config file, an optional env file and RECONCILER_* variables all
// resolve through v.
func NewRootCommand(v *viper.Viper) *cobra.Command {
	var cfgFile, envFile string

	rootCmd := &cobra.Command{
		Use:   "reconciler",
		Short: "Bank statement reconciliation tool",
		Long: `Reconciler reads bank statement exports for one or more accounts and flags
debits that were later refunded, debits that look like the same payment made
twice, and debits that were never refunded.

Examples:
  reconciler reconcile --files gtb.csv,uba.csv
  reconciler reconcile --files gtb.csv --output-format json --output-file report.json
  reconciler version`,
		Version:       getVersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.BindEnv(v)
			if envFile != "" {
				if err := config.LoadEnvFile(v, envFile); err != nil {
					return err
				}
			}
			if cfgFile == "" {
				return nil
			}
			if err := config.ReadConfigFile(v, cfgFile); err != nil {
				return err
			}
			if v.GetBool(config.KeyVerbose) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", v.ConfigFileUsed())
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional, yaml/json/toml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file with RECONCILER_* settings (optional)")
	rootCmd.PersistentFlags().BoolP(config.KeyVerbose, "v", false, "verbose output")
	v.BindPFlag(config.KeyVerbose, rootCmd.PersistentFlags().Lookup(config.KeyVerbose))

	rootCmd.AddCommand(newReconcileCommand(v))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "reconciler %s\n", getVersionString())
		},
	}
}

// Execute runs the CLI with args and returns the process exit code
func Execute(args []string, stdout, stderr io.Writer) int {
	v := viper.New()
	config.SetDefaults(v)

	rootCmd := NewRootCommand(v)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()
	return NewCLIErrorHandler(stderr, v.GetBool(config.KeyVerbose)).HandleError(err)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
