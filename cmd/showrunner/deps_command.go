package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"showrunner/internal/daemonctl"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external tool availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			statuses := daemonctl.ResolveDependencies(cmd.Context(), cfg)

			rows := make([][]string, 0, len(statuses))
			for _, dep := range statuses {
				state := "missing"
				if dep.Available {
					state = "ok"
				}
				detail := dep.Detail
				if detail == "" {
					detail = dep.Description
				}
				rows = append(rows, []string{dep.Name, dep.Command, state, detail})
			}

			table := renderTable(
				[]string{"Dependency", "Command", "State", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)

			summary := daemonctl.BuildDependencySummary(statuses)
			fmt.Fprintln(cmd.OutOrStdout(), summary.Detail)
			return nil
		},
	}
}
