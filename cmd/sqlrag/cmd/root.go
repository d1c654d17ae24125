// Package cmd provides the CLI commands for sqlrag.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sqlrag/engine/pkg/version"
)

// NewRootCmd creates the root command for the sqlrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sqlrag",
		Short: "Operator CLI for the SQL-RAG engine",
		Long: `sqlrag is a thin client over the same engine packages cmd/sqlragd
serves over HTTP: ask a question, search the exemplar corpus, validate or
execute SQL directly, and build the offline index.`,
		Version: version.Version,
	}
	cmd.SetVersionTemplate("sqlrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "Directory to load sqlrag.yaml from")

	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newExecCmd())
	cmd.AddCommand(newBuildIndexCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// configDir is the directory config.Load reads sqlrag.yaml from, shared by
// every subcommand that constructs an engine.
var configDir string

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
