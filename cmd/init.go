package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/modularizer/fishook/internal/config"
	"github.com/modularizer/fishook/internal/constants"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter fishook.json",
	Long: `Initialize writes a commented starter fishook.json at the repository root
(or the working directory outside a repository).

Use --force to overwrite an existing file.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := workRoot(cmd)
	if err != nil {
		return fmt.Errorf("failed to determine target directory: %w", err)
	}
	configPath := filepath.Join(root, constants.DefaultConfigFile)

	if _, err := os.Stat(configPath); err == nil && !initForce {
		fmt.Fprintf(cmd.OutOrStdout(), "Config file already exists at %s (use --force to overwrite)\n", configPath)
		return nil
	}

	if err := os.WriteFile(configPath, config.Starter(), constants.FileMode); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to: %s\n", configPath)
	fmt.Fprintln(cmd.OutOrStdout(), "Run 'fishook validate' to check it and 'fishook install' to enable the hooks.")
	return nil
}
