package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/modularizer/fishook/internal/constants"
	"github.com/modularizer/fishook/internal/hook"
	"github.com/modularizer/fishook/internal/hookkey"
)

const hooksGroup = "hooks"

var (
	hookDryRun bool
	hookConfig string
)

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: hooksGroup, Title: "Hooks (called by git):"})
	for _, info := range hookkey.All() {
		rootCmd.AddCommand(newHookCmd(info))
	}
}

func newHookCmd(info hookkey.Info) *cobra.Command {
	use := string(info.Key)
	if info.Args != "" {
		use += " " + info.Args
	}
	c := &cobra.Command{
		Use:     use,
		Short:   fmt.Sprintf("Run the %s hook", info.Key),
		GroupID: hooksGroup,
		Args:    cobra.ArbitraryArgs,
		RunE:    runHook,
	}
	c.Flags().BoolVar(&hookDryRun, "dry-run", false, "Print commands instead of running them (or set "+constants.EnvDryRun+"=1)")
	c.Flags().StringVar(&hookConfig, "config", "", "Use this config file instead of discovery (or set "+constants.EnvConfig+")")
	return c
}

// runHook runs the hook named by the invoked subcommand.
func runHook(cmd *cobra.Command, args []string) error {
	name := cmd.Name()

	var stdin []byte
	if name != "proc-receive" {
		var err error
		stdin, err = readStdin(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
	}

	_, err := hook.Run(cmd.Context(), hook.Options{
		Hook:           name,
		Args:           args,
		Stdin:          stdin,
		ConfigOverride: configOverride(hookConfig),
		DryRun:         hookDryRun || envBool(constants.EnvDryRun),
		NoAudit:        noAuditLog,
		Stdout:         cmd.OutOrStdout(),
		Stderr:         cmd.ErrOrStderr(),
	})
	return err
}

// readStdin reads r in full unless it is an interactive terminal.
func readStdin(r io.Reader) ([]byte, error) {
	if f, ok := r.(*os.File); ok {
		if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
			return nil, nil
		}
	}
	return io.ReadAll(r)
}

// configOverride returns flag, falling back to the environment.
func configOverride(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(constants.EnvConfig)
}

func envBool(name string) bool {
	v, err := strconv.ParseBool(os.Getenv(name))
	return err == nil && v
}
