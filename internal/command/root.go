package command

import (
	"os"

	"github.com/spf13/cobra"
)

const AppName = "parley"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "Parley - real-time messaging client",
		Long:          "Parley syncs conversations with a chat service and keeps a local mirror for offline use.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("config", "", "path to parley.yaml (default $PARLEY_CONFIG or ~/.config/parley/parley.yaml)")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")
	cmd.PersistentFlags().String("user", "", "act as this user id")

	cmd.AddCommand(
		NewInitCmd(),
		NewConfigCmd(),
		NewWatchCmd(),
		NewSendCmd(),
		NewConversationsCmd(),
		NewPinCmd(),
		NewMuteCmd(),
		NewHideCmd(),
		NewHistoryCmd(),
		NewSearchCmd(),
		NewFormatCmd(),
		NewMentionsCmd(),
		NewChannelsCmd(),
		NewRolesCmd(),
	)

	return cmd
}

func Execute() error {
	return NewRootCmd(Version).Execute()
}
