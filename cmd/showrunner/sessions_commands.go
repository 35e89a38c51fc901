package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"showrunner/internal/api"
	"showrunner/internal/ipc"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect pipeline sessions",
	}

	var statusFilter []string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, active first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ListSessions(statusFilter)
				if err != nil {
					return err
				}
				if len(resp.Sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sessions found")
					return nil
				}

				rows := make([][]string, 0, len(resp.Sessions))
				for _, sess := range resp.Sessions {
					rows = append(rows, []string{
						sess.SessionID,
						sess.Status,
						fmt.Sprintf("%.0f%%", sess.ProgressPercent),
						truncate(sess.SourceInput, 40),
						sess.UpdatedAt,
					})
				}
				table := renderTable(
					[]string{"Session", "Status", "Progress", "Input", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
	listCmd.Flags().StringSliceVar(&statusFilter, "status", nil, "Filter by status (repeatable)")

	showCmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session with per-stage detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.GetSession(args[0])
				if err != nil {
					return err
				}
				printSessionDetail(cmd, resp.Session)
				return nil
			})
		},
	}

	sessionsCmd.AddCommand(listCmd)
	sessionsCmd.AddCommand(showCmd)
	return sessionsCmd
}

func printSessionDetail(cmd *cobra.Command, sess api.SessionSnapshot) {
	stdout := cmd.OutOrStdout()
	fmt.Fprintf(stdout, "Session:   %s\n", sess.SessionID)
	fmt.Fprintf(stdout, "Status:    %s (%.0f%%)\n", sess.Status, sess.ProgressPercent)
	fmt.Fprintf(stdout, "Input:     %s\n", sess.SourceInput)
	fmt.Fprintf(stdout, "Workspace: %s\n", sess.WorkspaceRoot)
	fmt.Fprintf(stdout, "Created:   %s\n", sess.CreatedAt)
	fmt.Fprintf(stdout, "Updated:   %s\n", sess.UpdatedAt)
	fmt.Fprintln(stdout)

	if len(sess.Stages) == 0 {
		fmt.Fprintln(stdout, "No stages recorded")
		return
	}

	rows := make([][]string, 0, len(sess.Stages))
	for _, st := range sess.Stages {
		detail := st.OutputRef
		if st.Error != "" {
			detail = st.Error
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", st.Index),
			st.Name,
			st.Status,
			truncate(detail, 60),
		})
	}
	table := renderTable(
		[]string{"#", "Stage", "Status", "Detail"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
	)
	fmt.Fprintln(stdout, table)
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if max <= 3 || len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}
