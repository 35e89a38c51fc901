package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"showrunner/internal/ipc"
)

func newStopSessionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop-session <session-id>",
		Short: "Stop a running session at the next stage boundary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StopSession(args[0])
				if err != nil {
					return err
				}
				if resp.Stopped {
					fmt.Fprintf(cmd.OutOrStdout(), "Stop requested for session %s\n", args[0])
				}
				return nil
			})
		},
	}
}
