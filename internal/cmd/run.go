package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aescanero/dagent/pkg/adapters/metrics/noop"
	"github.com/aescanero/dagent/pkg/adapters/planner"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type runOptions struct {
	contextFile string
	set         map[string]string
	output      string
}

func newRunCommand(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run PLAN_FILE",
		Short: "Execute one plan and print its report",
		Long: `Execute the plan in PLAN_FILE (YAML, or JSON with a .json extension) and
print the execution report as JSON.

The command exits non-zero when the plan is rejected or when any task does
not complete. The report is printed in every case.

Examples:
  # Run a plan with agents declared in agents.yaml
  dagent run plan.yaml --agents agents.yaml

  # Pass shared context to every agent
  dagent run plan.yaml --context-file context.json --set user=alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, global, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.contextFile, "context-file", "", "YAML or JSON file with the shared context")
	cmd.Flags().StringToStringVar(&opts.set, "set", nil, "shared context entries as key=value (repeatable)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the report to this file instead of stdout")

	return cmd
}

func runPlan(cmd *cobra.Command, global *globalOptions, opts *runOptions, planFile string) error {
	ctx := cmd.Context()

	cfg, logger, err := loadConfig(global)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	plan, err := planner.NewFileProducer(planFile).Plan(ctx)
	if err != nil {
		return err
	}

	shared, err := loadSharedContext(opts)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, noop.Collector{}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Timeouts.ShutdownTimeout)
		defer cancel()
		if err := a.close(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	report, runErr := a.manager.Execute(ctx, plan, shared)
	if report != nil {
		if err := writeReport(cmd.OutOrStdout(), opts.output, report); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}

	if report.Status != domain.PlanStatusAllCompleted {
		return fmt.Errorf("run %s finished %s: %d completed, %d failed, %d blocked",
			report.RunID, report.Status,
			report.Counts[domain.TaskStateCompleted],
			report.Counts[domain.TaskStateFailed],
			report.Counts[domain.TaskStateBlocked])
	}
	return nil
}

// loadSharedContext merges the context file with --set entries
func loadSharedContext(opts *runOptions) (domain.SharedContext, error) {
	shared := domain.SharedContext{}

	if opts.contextFile != "" {
		data, err := os.ReadFile(opts.contextFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read context file: %w", err)
		}
		if err := yaml.Unmarshal(data, &shared); err != nil {
			return nil, fmt.Errorf("failed to parse context file: %w", err)
		}
	}

	for k, v := range opts.set {
		shared[k] = v
	}
	return shared, nil
}

func writeReport(stdout io.Writer, path string, report *domain.ExecutionReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
