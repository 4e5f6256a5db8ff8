package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modularizer/fishook/internal/config"
	"github.com/modularizer/fishook/internal/errs"
	"github.com/modularizer/fishook/internal/git"
	"github.com/modularizer/fishook/internal/hook"
	"github.com/modularizer/fishook/internal/logger"
)

var validateConfig string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and show what each hook will run",
	Long: `Validate loads every config fishook would use, checks each hook's value
against the accepted shapes, and parses every command without running it.

This is useful for:
- Catching a malformed config before git runs a hook
- Seeing which configs were discovered and what scope each one covers
- Spotting file builtins (old, new, changes, modify) used where no file event exists`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateConfig, "config", "", "Validate this file instead of discovered configs")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	root, err := workRoot(cmd)
	if err != nil {
		return err
	}
	locs, err := config.Resolve(root, configOverride(validateConfig), config.PruneFromEnv())
	if err != nil {
		return err
	}
	sources, err := config.LoadAll(locs)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Fprintf(out, "No config found under %s\n", root)
		return nil
	}

	fatal := 0
	for _, src := range sources {
		if err := src.Validate(); err != nil {
			return err
		}
		scope := src.ScopeRoot
		if scope == "" {
			scope = "(unscoped)"
		}
		fmt.Fprintf(out, "%s\n  scope: %s\n", src.Path, scope)
		for _, name := range src.HookNames() {
			blocks, err := src.Blocks(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  %s: %d block(s), %d command(s)\n", name, len(blocks), countCommands(blocks))
		}

		findings, err := hook.Lint(src)
		if err != nil {
			return err
		}
		for _, f := range findings {
			level := "warning"
			if f.Fatal {
				level = "error"
				fatal++
			}
			fmt.Fprintf(out, "  %s: %s[%d].%s: %s\n    %s\n", level, f.Hook, f.Block, f.Handler, f.Message, f.Command)
		}
		fmt.Fprintln(out)
	}

	if fatal > 0 {
		return errs.New(errs.ConfigParseError, "%d command(s) failed to parse", fatal)
	}
	fmt.Fprintln(out, "Configuration valid!")
	return nil
}

// workRoot is the repository root, or the working directory outside a
// repository so a config can be checked before it is committed anywhere.
func workRoot(cmd *cobra.Command) (string, error) {
	repo, err := git.Open(cmd.Context(), "")
	if err == nil {
		return repo.Root, nil
	}
	logger.Debug("not in a repository, validating from working directory", "error", err)
	return os.Getwd()
}

func countCommands(blocks []config.Block) int {
	n := 0
	for _, b := range blocks {
		n += len(b.Run)
		for _, cmds := range b.Handlers {
			n += len(cmds)
		}
	}
	return n
}
