package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"showrunner/internal/ipc"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var workspace string
	var stagesFlag string

	cmd := &cobra.Command{
		Use:   "run [input]",
		Short: "Submit a new pipeline session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := ""
			if len(args) > 0 {
				input = strings.TrimSpace(args[0])
			}
			if input == "" && strings.TrimSpace(workspace) == "" {
				return fmt.Errorf("provide a source input or --workspace")
			}

			selected, err := parseStageSelection(stagesFlag)
			if err != nil {
				return err
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RunSession(ipc.RunSessionRequest{
					Input:          input,
					Workspace:      strings.TrimSpace(workspace),
					SelectedStages: selected,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s accepted\n", resp.SessionID)
				fmt.Fprintf(cmd.OutOrStdout(), "Watch progress with `showrunner watch %s`\n", resp.SessionID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Resume from an existing workspace directory")
	cmd.Flags().StringVarP(&stagesFlag, "stages", "s", "", "Stage selection, e.g. 1-3 or 1,2,5 (default: all)")
	return cmd
}

// parseStageSelection accepts comma-separated indices and ranges ("1,3-5").
// An empty value selects every stage.
func parseStageSelection(value string) ([]int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	selected := make([]int, 0, 8)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, found := strings.Cut(part, "-"); found {
			start, err := strconv.Atoi(strings.TrimSpace(lo))
			if err != nil {
				return nil, fmt.Errorf("invalid stage range %q", part)
			}
			end, err := strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("invalid stage range %q", part)
			}
			if end < start {
				return nil, fmt.Errorf("invalid stage range %q", part)
			}
			for i := start; i <= end; i++ {
				selected = append(selected, i)
			}
			continue
		}
		index, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid stage index %q", part)
		}
		selected = append(selected, index)
	}
	return selected, nil
}
