package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adamavenir/parley/internal/engine"
	"github.com/adamavenir/parley/internal/types"
	"github.com/spf13/cobra"
)

// NewSendCmd creates the send command.
func NewSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <conversation> <text...>",
		Short: "Send a message and wait for the service to confirm it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			replyTo, _ := cmd.Flags().GetString("reply-to")

			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			tr := ctx.NewTransport()
			if tr == nil {
				return writeCommandError(cmd, errNoSocket)
			}
			ctrl := ctx.NewController(tr, nil)
			defer ctrl.Close(context.Background())

			if _, err := ctrl.Start(cmd.Context()); err != nil {
				return writeCommandError(cmd, err)
			}

			draft := types.Draft{Content: strings.Join(args[1:], " ")}
			if replyTo != "" {
				draft.ReplyTo = &replyTo
			}
			conversationID := args[0]
			msg, err := ctrl.Send(conversationID, draft)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			status := waitForStatus(ctrl, conversationID, msg.ID, ctx.Config.AckTimeout+time.Second)
			if ctx.JSONMode {
				if err := writeJSON(cmd.OutOrStdout(), map[string]any{
					"id":              msg.ID,
					"conversation_id": conversationID,
					"status":          status,
				}); err != nil {
					return err
				}
			} else if status == types.MessageStatusSent {
				fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", msg.ID, conversationID)
			}
			if status != types.MessageStatusSent {
				return writeCommandError(cmd, fmt.Errorf("message %s was not confirmed (%s)", msg.ID, status))
			}
			return nil
		},
	}

	cmd.Flags().String("reply-to", "", "reply to a message id")
	return cmd
}

// waitForStatus polls until the message leaves pending or timeout passes.
func waitForStatus(ctrl *engine.Controller, conversationID, messageID string, timeout time.Duration) types.MessageStatus {
	deadline := time.Now().Add(timeout)
	for {
		msg, ok := ctrl.Store().Message(conversationID, messageID)
		if !ok {
			return types.MessageStatusFailed
		}
		if msg.Status != types.MessageStatusPending || time.Now().After(deadline) {
			return msg.Status
		}
		time.Sleep(20 * time.Millisecond)
	}
}
