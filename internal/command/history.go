package command

import (
	"fmt"
	"time"

	"github.com/adamavenir/parley/internal/core"
	"github.com/adamavenir/parley/internal/engine"
	"github.com/adamavenir/parley/internal/types"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <conversation>",
		Short: "Show the message log of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			last, _ := cmd.Flags().GetInt("last")
			markRead, _ := cmd.Flags().GetBool("read")
			sinceExpr, _ := cmd.Flags().GetString("since")
			var since time.Time
			if sinceExpr != "" {
				parsed, err := core.ParseSince(sinceExpr, time.Now())
				if err != nil {
					return writeCommandError(cmd, err)
				}
				since = parsed
			}
			return withSession(cmd, func(ctx *CommandContext, ctrl *engine.Controller) error {
				id := args[0]
				if _, ok := ctrl.Store().Conversation(id); !ok {
					return fmt.Errorf("conversation %s not found", id)
				}
				messages := ctrl.Messages(id)
				if !since.IsZero() {
					messages = messagesSince(messages, since)
				}
				if last > 0 && len(messages) > last {
					messages = messages[len(messages)-last:]
				}
				if markRead {
					if err := ctrl.Store().MarkRead(id); err != nil {
						return err
					}
				}

				if ctx.JSONMode {
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"conversation_id": id,
						"messages":        messages,
					})
				}
				out := cmd.OutOrStdout()
				if len(messages) == 0 {
					fmt.Fprintf(out, "No messages in %s\n", id)
					return nil
				}
				for _, msg := range messages {
					fmt.Fprintln(out, formatMessage(msg, ""))
				}
				return nil
			})
		},
	}

	cmd.Flags().Int("last", 50, "show only the last N messages (0 for all)")
	cmd.Flags().Bool("read", false, "mark the conversation as read")
	cmd.Flags().String("since", "", "only messages after a time (1h, 2d, today, 2006-01-02)")
	return cmd
}

func messagesSince(messages []types.Message, since time.Time) []types.Message {
	cutoff := since.UnixMilli()
	filtered := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.TS >= cutoff {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}
