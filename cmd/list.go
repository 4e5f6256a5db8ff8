package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/modularizer/fishook/internal/config"
	"github.com/modularizer/fishook/internal/git"
	"github.com/modularizer/fishook/internal/hookkey"
	"github.com/modularizer/fishook/internal/install"
	"github.com/modularizer/fishook/internal/logger"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List hooks with their install and config status",
	Long: `List prints every hook fishook knows. Inside a repository it also shows
whether the hook stub is installed and which configs define the hook.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	repo, err := git.Open(ctx, "")
	if err != nil {
		logger.Debug("not in a repository, listing hooks only", "error", err)
		for _, name := range hookkey.Names() {
			fmt.Fprintln(out, name)
		}
		return nil
	}

	hooksDir, err := repo.HooksDir(ctx)
	if err != nil {
		return err
	}
	locs, err := config.Resolve(repo.Root, configOverride(""), config.PruneFromEnv())
	if err != nil {
		return err
	}
	sources, err := config.LoadAll(locs)
	if err != nil {
		return err
	}

	configured := make(map[string][]string)
	for _, src := range sources {
		rel, err := filepath.Rel(repo.Root, src.Path)
		if err != nil {
			rel = src.Path
		}
		for _, name := range src.HookNames() {
			configured[name] = append(configured[name], filepath.ToSlash(rel))
		}
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HOOK\tINSTALLED\tCONFIGS")
	for _, name := range hookkey.Names() {
		installed := "-"
		if install.IsManaged(filepath.Join(hooksDir, name)) {
			installed = "yes"
		}
		configs := "-"
		if c := configured[name]; len(c) > 0 {
			configs = strings.Join(c, ", ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, installed, configs)
	}
	return tw.Flush()
}
