package command

import (
	"fmt"

	"github.com/adamavenir/parley/internal/remote"
	"github.com/spf13/cobra"
)

// withRemote runs fn against the service client. Admin commands have no
// offline fallback.
func withRemote(cmd *cobra.Command, fn func(ctx *CommandContext, client *remote.Client) error) error {
	ctx, err := GetContext(cmd)
	if err != nil {
		return writeCommandError(cmd, err)
	}
	defer ctx.Close()
	if ctx.Remote == nil {
		return writeCommandError(cmd, errNoAPI)
	}
	if err := fn(ctx, ctx.Remote); err != nil {
		return writeCommandError(cmd, err)
	}
	return nil
}

// NewChannelsCmd creates the channels command group.
func NewChannelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List and manage server channels",
	}

	list := &cobra.Command{
		Use:   "list <server>",
		Short: "List channels of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRemote(cmd, func(ctx *CommandContext, client *remote.Client) error {
				channels, err := client.Channels(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode {
					return writeJSON(cmd.OutOrStdout(), channels)
				}
				out := cmd.OutOrStdout()
				if len(channels) == 0 {
					fmt.Fprintln(out, "No channels")
					return nil
				}
				for _, ch := range channels {
					line := fmt.Sprintf("#%s %s", ch.Name, dimStyle.Render("("+ch.ID+")"))
					if ch.Topic != "" {
						line += " " + ch.Topic
					}
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}

	create := &cobra.Command{
		Use:   "create <server> <name>",
		Short: "Create a channel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, _ := cmd.Flags().GetString("topic")
			return withRemote(cmd, func(ctx *CommandContext, client *remote.Client) error {
				ch, err := client.CreateChannel(cmd.Context(), args[0], args[1], topic)
				if err != nil {
					return err
				}
				if ctx.JSONMode {
					return writeJSON(cmd.OutOrStdout(), ch)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created #%s (%s)\n", ch.Name, ch.ID)
				return nil
			})
		},
	}
	create.Flags().String("topic", "", "channel topic")

	remove := &cobra.Command{
		Use:   "delete <server> <channel-id>",
		Short: "Delete a channel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRemote(cmd, func(ctx *CommandContext, client *remote.Client) error {
				if err := client.DeleteChannel(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				if ctx.JSONMode {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"deleted": args[1]})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted channel %s\n", args[1])
				return nil
			})
		},
	}

	cmd.AddCommand(list, create, remove)
	return cmd
}

// NewRolesCmd creates the roles command group.
func NewRolesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "List and manage server roles",
	}

	list := &cobra.Command{
		Use:   "list <server>",
		Short: "List roles of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRemote(cmd, func(ctx *CommandContext, client *remote.Client) error {
				roles, err := client.Roles(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode {
					return writeJSON(cmd.OutOrStdout(), roles)
				}
				out := cmd.OutOrStdout()
				if len(roles) == 0 {
					fmt.Fprintln(out, "No roles")
					return nil
				}
				for _, role := range roles {
					fmt.Fprintf(out, "@%s %s\n", role.Name, dimStyle.Render("("+role.ID+")"))
				}
				return nil
			})
		},
	}

	create := &cobra.Command{
		Use:   "create <server> <name>",
		Short: "Create a role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			color, _ := cmd.Flags().GetString("color")
			return withRemote(cmd, func(ctx *CommandContext, client *remote.Client) error {
				role, err := client.CreateRole(cmd.Context(), args[0], args[1], color)
				if err != nil {
					return err
				}
				if ctx.JSONMode {
					return writeJSON(cmd.OutOrStdout(), role)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created @%s (%s)\n", role.Name, role.ID)
				return nil
			})
		},
	}
	create.Flags().String("color", "", "role color, e.g. #5865f2")

	remove := &cobra.Command{
		Use:   "delete <server> <role-id>",
		Short: "Delete a role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRemote(cmd, func(ctx *CommandContext, client *remote.Client) error {
				if err := client.DeleteRole(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				if ctx.JSONMode {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"deleted": args[1]})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted role %s\n", args[1])
				return nil
			})
		},
	}

	cmd.AddCommand(list, create, remove)
	return cmd
}
