package command

import (
	"errors"
	"fmt"
	"os"

	"github.com/adamavenir/parley/internal/config"
	"github.com/spf13/cobra"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a parley.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			flagPath, _ := cmd.Flags().GetString("config")
			user, _ := cmd.Flags().GetString("user")
			name, _ := cmd.Flags().GetString("name")
			apiURL, _ := cmd.Flags().GetString("api-url")
			socketURL, _ := cmd.Flags().GetString("socket-url")
			force, _ := cmd.Flags().GetBool("force")

			path, err := config.ResolvePath(flagPath)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if _, err := os.Stat(path); err == nil && !force {
				return writeCommandError(cmd, fmt.Errorf("%s already exists (use --force to overwrite)", path))
			}
			if user == "" {
				return writeCommandError(cmd, errors.New("--user is required"))
			}

			cfg, err := config.Load("")
			if err != nil {
				return writeCommandError(cmd, err)
			}
			cfg.UserID = user
			cfg.UserName = name
			if cfg.UserName == "" {
				cfg.UserName = user
			}
			cfg.APIURL = apiURL
			cfg.SocketURL = socketURL
			cfg.DataDir = ""
			if err := config.Write(path, cfg); err != nil {
				return writeCommandError(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("api-url", "", "chat service base URL")
	cmd.Flags().String("socket-url", "", "chat service websocket URL")
	cmd.Flags().Bool("force", false, "overwrite an existing file")
	return cmd
}

// NewConfigCmd creates the config command.
func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if cfg.Token != "" {
				cfg.Token = "********"
			}
			jsonMode, _ := cmd.Flags().GetBool("json")
			if jsonMode {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"path": path, "online": cfg.Online(), "config": cfg})
			}
			out := cmd.OutOrStdout()
			mode := "offline (local mirror only)"
			if cfg.Online() {
				mode = "online"
			}
			fmt.Fprintf(out, "config:      %s\n", path)
			fmt.Fprintf(out, "mode:        %s\n", mode)
			fmt.Fprintf(out, "user:        %s (%s)\n", cfg.UserID, cfg.UserName)
			fmt.Fprintf(out, "api_url:     %s\n", cfg.APIURL)
			fmt.Fprintf(out, "socket_url:  %s\n", cfg.SocketURL)
			fmt.Fprintf(out, "data_dir:    %s\n", cfg.DataDir)
			fmt.Fprintf(out, "ack_timeout: %s\n", cfg.AckTimeout)
			fmt.Fprintf(out, "log:         %s/%s\n", cfg.Log.Level, cfg.Log.Format)
			return nil
		},
	}
}
