package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"showrunner/internal/api"
	"showrunner/internal/config"
	"showrunner/internal/ipc"
	"showrunner/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var component string
	var sessionID string
	var level string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			query := logs.StreamQuery{
				Component: strings.TrimSpace(component),
				SessionID: strings.TrimSpace(sessionID),
				Level:     strings.TrimSpace(level),
			}
			if err := streamLogsFromAPI(cmd, cfg, query, lines, follow); err == nil {
				return nil
			} else if !logs.IsAPIUnavailable(err) {
				return err
			}

			// Structured stream unreachable: fall back to the raw log file
			// over IPC.
			initialLimit := lines
			if initialLimit < 0 {
				initialLimit = 0
			}
			initialOffset := int64(-1)
			if initialLimit == 0 {
				initialOffset = 0
			}

			return ctx.withClient(func(client *ipc.Client) error {
				cmdCtx := cmd.Context()
				offset := initialOffset
				limit := initialLimit
				printed := false

				for {
					resp, err := client.LogTail(ipc.LogTailRequest{
						Offset:     offset,
						Limit:      limit,
						Follow:     follow,
						WaitMillis: 1000,
					})
					if err != nil {
						return fmt.Errorf("tail logs: %w", err)
					}
					if resp == nil {
						return errors.New("log tail response missing")
					}
					for _, line := range resp.Lines {
						fmt.Fprintln(cmd.OutOrStdout(), line)
						printed = true
					}
					offset = resp.Offset
					limit = 0
					if !follow {
						if !printed {
							fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
						}
						return nil
					}
					select {
					case <-cmdCtx.Done():
						return nil
					default:
					}
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	cmd.Flags().StringVar(&component, "component", "", "Filter by component")
	cmd.Flags().StringVar(&sessionID, "session", "", "Filter by session ID")
	cmd.Flags().StringVar(&level, "level", "", "Filter by level")
	return cmd
}

func streamLogsFromAPI(cmd *cobra.Command, cfg *config.Config, query logs.StreamQuery, lines int, follow bool) error {
	client, err := logs.NewStreamClient(cfg.Paths.APIBind)
	if err != nil {
		return err
	}
	if client == nil {
		return logs.ErrAPIUnavailable
	}

	ctx := cmd.Context()
	query.Tail = true
	query.Limit = lines
	if query.Limit <= 0 {
		query.Limit = 200
	}

	printed := false
	for {
		resp, err := client.Fetch(ctx, query)
		if err != nil {
			return err
		}
		for _, evt := range resp.Events {
			fmt.Fprintln(cmd.OutOrStdout(), formatAPILogEvent(evt))
			printed = true
		}
		if !follow {
			if !printed {
				fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
			}
			return nil
		}
		query.Since = resp.Next
		query.Limit = 200
		query.Tail = false
		query.Follow = true
	}
}

func formatAPILogEvent(evt api.LogEvent) string {
	ts := evt.Timestamp.Format("2006-01-02 15:04:05")
	level := strings.ToUpper(strings.TrimSpace(evt.Level))
	if level == "" {
		level = "INFO"
	}
	parts := []string{ts, level}
	if component := strings.TrimSpace(evt.Component); component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", component))
	}
	subject := composeSubject(evt.SessionID, evt.Stage)
	line := strings.Join(parts, " ")
	if subject != "" {
		line += " " + subject
	}
	if message := strings.TrimSpace(evt.Message); message != "" {
		line += " - " + message
	}
	if len(evt.Fields) == 0 {
		return line
	}
	builder := strings.Builder{}
	builder.WriteString(line)
	for key, value := range evt.Fields {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(value) == "" {
			continue
		}
		builder.WriteString("\n    - ")
		builder.WriteString(key)
		builder.WriteString(": ")
		builder.WriteString(value)
	}
	return builder.String()
}

func composeSubject(sessionID, stage string) string {
	sessionID = strings.TrimSpace(sessionID)
	stage = strings.TrimSpace(stage)
	switch {
	case sessionID != "" && stage != "":
		return fmt.Sprintf("%s (%s)", shortSessionID(sessionID), stage)
	case sessionID != "":
		return shortSessionID(sessionID)
	default:
		return stage
	}
}

func shortSessionID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
