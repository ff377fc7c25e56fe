package command

import (
	"fmt"
	"strings"

	"github.com/adamavenir/parley/internal/engine"
	"github.com/spf13/cobra"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search messages on the service, or locally when offline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, _ := cmd.Flags().GetString("in")
			limit, _ := cmd.Flags().GetInt("limit")
			skip, _ := cmd.Flags().GetInt("skip")
			query := strings.Join(args, " ")

			return withSession(cmd, func(ctx *CommandContext, ctrl *engine.Controller) error {
				result, err := ctrl.Search(cmd.Context(), query, in, limit, skip)
				if err != nil {
					return err
				}
				if ctx.JSONMode {
					return writeJSON(cmd.OutOrStdout(), result)
				}
				out := cmd.OutOrStdout()
				if len(result.Messages) == 0 {
					fmt.Fprintf(out, "No messages match %q\n", query)
					return nil
				}
				for _, msg := range result.Messages {
					fmt.Fprintln(out, formatMessage(msg, msg.ConversationID))
				}
				if shown := skip + len(result.Messages); shown < result.Total {
					fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("%d of %d, use --skip %d for more", shown, result.Total, shown)))
				}
				return nil
			})
		},
	}

	cmd.Flags().String("in", "", "limit to one conversation")
	cmd.Flags().Int("limit", 20, "maximum results")
	cmd.Flags().Int("skip", 0, "skip the first N results")
	return cmd
}
