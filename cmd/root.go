// Package cmd implements the CLI commands for fishook.
package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/modularizer/fishook/internal/constants"
	"github.com/modularizer/fishook/internal/errs"
	"github.com/modularizer/fishook/internal/hookkey"
	"github.com/modularizer/fishook/internal/logger"
)

var (
	// Global flags
	verbose    bool
	noAuditLog bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fishook",
	Short: "Declarative git hook runner",
	Long: `fishook runs the commands declared in fishook.json (or .toml/.yaml) files
when git fires a hook.

Install the hook stubs once per repository:
  fishook install

Then describe what should happen per hook and per changed file:
  {
    "pre-commit": {
      "applyTo": "*.go",
      "onChange": "gofmt -l \"$FISHOOK_ABS_PATH\""
    }
  }

Git calls "fishook <hook> [args...]"; you can too, with --dry-run to see what
would run.`,
	Args:          cobra.ArbitraryArgs,
	RunE:          runRoot,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initApp()
	},
}

// Execute runs the command line. Errors are returned unprinted; callers
// render them with errs.Report and exit with errs.ExitCode.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output (debug logging)")
	rootCmd.PersistentFlags().BoolVar(&noAuditLog, "no-audit-log", false, "Disable audit logging")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errs.Wrap(err, errs.Usage, "%s", cmd.CommandPath())
	})
}

// initApp initializes the logger from flags and environment
func initApp() {
	logger.Init(logger.Options{
		Verbose: verbose,
		JSON:    os.Getenv(constants.EnvLogFormat) == "json",
	})
}

// runRoot shows help, or reports an unknown hook when the first argument
// matched no subcommand.
func runRoot(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	if _, err := hookkey.Lookup(args[0]); err != nil {
		return err
	}
	return errs.New(errs.Usage, "unexpected argument %q", args[0])
}

// IsVerbose returns whether verbose mode is enabled
func IsVerbose() bool {
	return verbose
}
