package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/modularizer/fishook/internal/constants"
	"github.com/modularizer/fishook/internal/git"
	"github.com/modularizer/fishook/internal/install"
)

var (
	installForce bool
	installHooks []string
	installBin   string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install fishook hook stubs into the current repository",
	Long: `Install writes a small script for each hook into the repository's hooks
directory (honouring core.hooksPath). Each script runs "fishook <hook>".

A hook that fishook did not write is renamed to <hook>` + constants.BackupSuffix + ` first;
when stdin is a terminal you are asked before that happens. "fishook uninstall"
puts it back.

Use --force to skip the question and replace an earlier backup.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
	installCmd.Flags().BoolVarP(&installForce, "force", "f", false, "Replace existing backups without asking")
	installCmd.Flags().StringSliceVar(&installHooks, "hooks", nil, "Only install these hooks (default: every client hook, or every server hook in a bare repository)")
	installCmd.Flags().StringVar(&installBin, "bin", constants.AppName, "Command the stubs run")
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	repo, err := git.Open(ctx, "")
	if err != nil {
		return err
	}
	hooksDir, err := repo.HooksDir(ctx)
	if err != nil {
		return err
	}

	opts := install.Options{
		Hooks: installHooks,
		Bin:   installBin,
		Bare:  repo.Bare,
		Force: installForce,
	}
	if in, ok := cmd.InOrStdin().(*os.File); ok && isatty.IsTerminal(in.Fd()) {
		opts.Confirm = confirmer(in, cmd.ErrOrStderr())
	}

	changes, err := install.Install(hooksDir, opts)
	printChanges(cmd.OutOrStdout(), changes)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Hooks installed in %s\n", hooksDir)
	return nil
}

// confirmer asks on out and reads a y/N answer from in.
func confirmer(in io.Reader, out io.Writer) func(hook, path string) bool {
	reader := bufio.NewReader(in)
	return func(hook, path string) bool {
		fmt.Fprintf(out, "%s already exists and was not written by fishook.\nMove it to %s and install? [y/N] ",
			path, path+constants.BackupSuffix)
		answer, _ := reader.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		}
		return false
	}
}

func printChanges(w io.Writer, changes []install.Change) {
	for _, c := range changes {
		fmt.Fprintf(w, "  %s\n", c)
	}
}
