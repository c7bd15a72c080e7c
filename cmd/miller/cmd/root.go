// Package cmd provides the miller CLI commands.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kodewright/miller/internal/logging"
	"github.com/kodewright/miller/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd builds the miller command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "miller",
		Short: "Local-first code intelligence server for AI coding assistants",
		Long: `miller indexes a codebase into a relational and vector store, then
exposes hybrid search, symbol lookup, reference finding and cross-language
call tracing over the Model Context Protocol.

Run 'miller serve' in a project directory to start the MCP server, or use
'miller search'/'miller index' directly from the shell.`,
		Version:      version.Version,
		SilenceUsage: true,
	}

	cmd.SetVersionTemplate("miller version {{.Version}}\n")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to the state directory's log file")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func startLogging(cmd *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("command", cmd.Name()))
	return nil
}

func stopLogging(*cobra.Command, []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}
