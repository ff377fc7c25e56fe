package command

import (
	"fmt"

	"github.com/adamavenir/parley/internal/engine"
	"github.com/adamavenir/parley/internal/sidebar"
	"github.com/adamavenir/parley/internal/store"
	"github.com/adamavenir/parley/internal/types"
	"github.com/spf13/cobra"
)

const previewWidth = 60

// NewConversationsCmd creates the conversations command.
func NewConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations [filter]",
		Aliases: []string{"ls"},
		Short:   "List conversations, pinned first then most recent",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			showHidden, _ := cmd.Flags().GetBool("hidden")
			filter := ""
			if len(args) == 1 {
				filter = args[0]
			}
			return withSession(cmd, func(ctx *CommandContext, ctrl *engine.Controller) error {
				view := ctrl.ConversationList(filter)
				if ctx.JSONMode {
					if !showHidden {
						view.Hidden = nil
					}
					return writeJSON(cmd.OutOrStdout(), view)
				}

				out := cmd.OutOrStdout()
				if len(view.Visible) == 0 {
					fmt.Fprintln(out, "No conversations")
				}
				for _, conv := range view.Visible {
					fmt.Fprintln(out, formatConversation(conv))
				}
				if showHidden && len(view.Hidden) > 0 {
					fmt.Fprintln(out, dimStyle.Render("hidden:"))
					for _, conv := range view.Hidden {
						fmt.Fprintln(out, formatConversation(conv))
					}
				}
				fmt.Fprintf(out, "%d unread\n", view.TotalUnread)
				return nil
			})
		},
	}

	cmd.Flags().Bool("hidden", false, "include hidden conversations")
	return cmd
}

func formatConversation(conv types.Conversation) string {
	marker := " "
	if conv.Pinned {
		marker = "*"
	}
	name := conv.Name
	if name == "" {
		name = conv.ID
	}
	line := fmt.Sprintf("%s %s", marker, senderStyle(conv.ID).Render(name))
	if conv.ID != name {
		line += " " + dimStyle.Render("("+conv.ID+")")
	}
	if conv.Unread > 0 {
		line += fmt.Sprintf(" [%d]", conv.Unread)
	}
	if conv.Muted {
		line += " " + dimStyle.Render("muted")
	}
	if conv.Presence != "" && conv.Kind == types.ConversationDirect {
		line += " " + dimStyle.Render(string(conv.Presence))
	}
	if preview := sidebar.Preview(conv, previewWidth); preview != "" {
		line += "\n    " + preview + " " + dimStyle.Render(formatRelative(conv.LastActivity()))
	}
	return line
}

// NewPinCmd creates the pin command.
func NewPinCmd() *cobra.Command {
	return newToggleCmd("pin", "Pin a conversation to the top of the list", (*store.Store).Pin)
}

// NewMuteCmd creates the mute command.
func NewMuteCmd() *cobra.Command {
	return newToggleCmd("mute", "Mute a conversation's unread count and notifications", (*store.Store).Mute)
}

// NewHideCmd creates the hide command.
func NewHideCmd() *cobra.Command {
	return newToggleCmd("hide", "Hide a conversation from the list", (*store.Store).Hide)
}

var pastTense = map[string]string{"pin": "pinned", "mute": "muted", "hide": "hidden"}

func newToggleCmd(name, short string, apply func(*store.Store, string, bool) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " <conversation>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			off, _ := cmd.Flags().GetBool("off")
			return withSession(cmd, func(ctx *CommandContext, ctrl *engine.Controller) error {
				id := args[0]
				if err := apply(ctrl.Store(), id, !off); err != nil {
					return fmt.Errorf("%s %s: %w", name, id, err)
				}
				if ctx.JSONMode {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"conversation_id": id, name: !off})
				}
				state := pastTense[name]
				if off {
					state = "un" + state
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state, id)
				return nil
			})
		},
	}
	cmd.Flags().Bool("off", false, "undo (unpin, unmute, unhide)")
	return cmd
}
