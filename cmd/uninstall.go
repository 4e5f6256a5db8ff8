package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modularizer/fishook/internal/git"
	"github.com/modularizer/fishook/internal/install"
)

var uninstallHooks []string

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove fishook hook stubs and restore backed-up hooks",
	Args:  cobra.NoArgs,
	RunE:  runUninstall,
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
	uninstallCmd.Flags().StringSliceVar(&uninstallHooks, "hooks", nil, "Only remove these hooks (default: all)")
}

func runUninstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	repo, err := git.Open(ctx, "")
	if err != nil {
		return err
	}
	hooksDir, err := repo.HooksDir(ctx)
	if err != nil {
		return err
	}

	changes, err := install.Uninstall(hooksDir, uninstallHooks)
	printChanges(cmd.OutOrStdout(), changes)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No fishook hooks installed.")
	}
	return nil
}
