package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

// globalOptions are shared by every command. Flags override the matching
// environment variables.
type globalOptions struct {
	agentsFile string
	logLevel   string
}

// NewRootCommand builds the dagent command tree
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "dagent",
		Short: "Dependency-aware multi-agent task executor",
		Long: `dagent executes plans of tasks, each assigned to a named agent, in
dependency order. Independent tasks run concurrently; a failed task blocks
only the tasks that depend on it.

Agents are declared in a YAML file (DAGENT_AGENTS_FILE or --agents) and
service settings come from the environment.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.agentsFile, "agents", "", "agent declarations file (overrides DAGENT_AGENTS_FILE)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides LOG_LEVEL)")

	root.AddCommand(
		newRunCommand(opts),
		newServeCommand(opts),
		newAgentsCommand(opts),
	)

	return root
}

// ExecuteContext runs the root command with ctx
func ExecuteContext(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
