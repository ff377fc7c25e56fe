package command

import (
	"fmt"

	"github.com/adamavenir/parley/internal/core"
	"github.com/adamavenir/parley/internal/engine"
	"github.com/spf13/cobra"
)

// NewMentionsCmd creates the mentions command.
func NewMentionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mentions <conversation> [query]",
		Short: "Rank @mention candidates for a conversation",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 2 {
				query = args[1]
			}
			return withSession(cmd, func(ctx *CommandContext, ctrl *engine.Controller) error {
				id := args[0]
				if _, ok := ctrl.Store().Conversation(id); !ok {
					return fmt.Errorf("conversation %s not found", id)
				}
				text := "@" + query
				candidates, _, _ := ctrl.Mentions(id, text, len([]rune(text)))

				if ctx.JSONMode {
					return writeJSON(cmd.OutOrStdout(), candidates)
				}
				out := cmd.OutOrStdout()
				if len(candidates) == 0 {
					fmt.Fprintln(out, "No matches")
					return nil
				}
				for _, candidate := range candidates {
					line := fmt.Sprintf("%-8s %s", candidate.Kind, core.MentionText(candidate))
					if candidate.ID != candidate.Label {
						line += " " + dimStyle.Render("("+candidate.ID+")")
					}
					if candidate.Presence != "" {
						line += " " + dimStyle.Render(string(candidate.Presence))
					}
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
	return cmd
}
