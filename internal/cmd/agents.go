package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/aescanero/dagent/pkg/adapters/metrics/noop"
	"github.com/spf13/cobra"
)

func newAgentsCommand(global *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Initialize the declared agents and list them",
		Long: `Load the agent declarations, initialize every agent and list the ones
that are ready together with any that failed, followed by the agent kinds
this binary can construct. The command exits non-zero when an agent fails
to initialize.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, logger, err := loadConfig(global)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			catalog, err := newCatalog(cfg, logger)
			if err != nil {
				return err
			}
			reg, err := initRegistry(ctx, cfg, catalog, noop.Collector{}, logger)
			if err != nil {
				return err
			}
			defer func() { _ = reg.Shutdown(context.WithoutCancel(ctx)) }()

			failures := make(map[string]string)
			for name, err := range reg.Failures() {
				failures[name] = err.Error()
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(map[string]interface{}{
					"agents":   reg.Descriptors(),
					"failures": failures,
					"kinds":    catalog.Kinds(),
				}); err != nil {
					return err
				}
			} else {
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tKIND\tOUTPUT\tDESCRIPTION")
				for _, d := range reg.Descriptors() {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, d.Kind, d.OutputShape, d.Description)
				}
				if err := w.Flush(); err != nil {
					return err
				}

				names := make([]string, 0, len(failures))
				for name := range failures {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(out, "\nfailed: %s\n", failures[name])
				}
				fmt.Fprintf(out, "\nkinds: %s\n", strings.Join(catalog.Kinds(), ", "))
			}

			if len(failures) > 0 {
				return fmt.Errorf("%d agent(s) failed to initialize", len(failures))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	return cmd
}
