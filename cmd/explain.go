package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modularizer/fishook/internal/explain"
	"github.com/modularizer/fishook/internal/hookkey"
)

var explainCmd = &cobra.Command{
	Use:   "explain [topic|hook]",
	Short: "Explain hooks, config shapes, events, variables and builtins",
	Args:  cobra.MaximumNArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return append(explain.Topics(), hookkey.Names()...), cobra.ShellCompDirectiveNoFileComp
	},
	RunE: runExplain,
}

func init() {
	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		fmt.Fprintln(out, "Topics:")
		explain.Index(out)
		fmt.Fprintln(out, "\nAny hook name is a topic too, e.g. \"fishook explain pre-push\".")
		return nil
	}
	return explain.Write(out, args[0])
}
