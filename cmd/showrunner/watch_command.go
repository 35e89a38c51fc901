package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"showrunner/internal/api"
	"showrunner/internal/ipc"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Poll a session until it reaches a terminal status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			stdout := cmd.OutOrStdout()

			return ctx.withClient(func(client *ipc.Client) error {
				lastLine := ""
				for {
					resp, err := client.GetSession(sessionID)
					if err != nil {
						return err
					}
					sess := resp.Session

					stageLabel := currentStageLabel(sess.Stages)
					line := fmt.Sprintf("%s  %.0f%%  %s", sess.Status, sess.ProgressPercent, stageLabel)
					if line != lastLine {
						fmt.Fprintln(stdout, line)
						lastLine = line
					}

					switch sess.Status {
					case "completed":
						fmt.Fprintf(stdout, "Session %s completed\n", sessionID)
						return nil
					case "failed":
						return fmt.Errorf("session %s failed: %s", sessionID, failureDetail(sess.Stages))
					case "interrupted":
						fmt.Fprintf(stdout, "Session %s interrupted\n", sessionID)
						return nil
					}

					select {
					case <-cmd.Context().Done():
						return nil
					case <-time.After(interval):
					}
				}
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Poll interval")
	return cmd
}

// currentStageLabel names the running stage, or the next pending one when
// nothing is running yet.
func currentStageLabel(stages []api.StageSnapshot) string {
	for _, st := range stages {
		if st.Status == "running" {
			return st.Name
		}
	}
	for _, st := range stages {
		if st.Status == "pending" {
			return "next: " + st.Name
		}
	}
	return ""
}

func failureDetail(stages []api.StageSnapshot) string {
	for _, st := range stages {
		if st.Status == "failed" && st.Error != "" {
			return fmt.Sprintf("%s: %s", st.Name, st.Error)
		}
	}
	return "see daemon logs"
}
