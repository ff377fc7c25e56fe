package command

import (
	"fmt"
	"io"
	"strings"

	"github.com/adamavenir/parley/internal/format"
	"github.com/spf13/cobra"
)

// NewFormatCmd creates the format command.
func NewFormatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "format [text|-]",
		Short: "Render message markup for the terminal or as HTML",
		Long:  "Render message markup. With no argument or \"-\" the text is read from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			asHTML, _ := cmd.Flags().GetBool("html")
			jsonMode, _ := cmd.Flags().GetBool("json")
			highlight, _ := cmd.Flags().GetBool("highlight")

			text := strings.Join(args, " ")
			if len(args) == 0 || text == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return writeCommandError(cmd, err)
				}
				text = strings.TrimRight(string(data), "\n")
			}

			doc := format.Parse(text)
			rendered := format.RenderHTML(doc, format.HTMLOptions{Highlight: highlight})
			out := cmd.OutOrStdout()
			if jsonMode {
				return writeJSON(out, map[string]any{
					"blocks": doc.Blocks,
					"html":   rendered,
				})
			}
			if asHTML {
				fmt.Fprintln(out, rendered)
				return nil
			}
			fmt.Fprintln(out, format.Terminal(text))
			return nil
		},
	}

	cmd.Flags().Bool("html", false, "render HTML instead of terminal output")
	cmd.Flags().Bool("highlight", false, "syntax highlight fenced code in HTML output")
	return cmd
}
