package command

import (
	"context"
	"path/filepath"

	"github.com/adamavenir/parley/internal/config"
	"github.com/adamavenir/parley/internal/db"
	"github.com/adamavenir/parley/internal/engine"
	"github.com/adamavenir/parley/internal/logging"
	"github.com/adamavenir/parley/internal/metrics"
	"github.com/adamavenir/parley/internal/notify"
	"github.com/adamavenir/parley/internal/remote"
	"github.com/adamavenir/parley/internal/transport"
	"github.com/adamavenir/parley/internal/types"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// CommandContext carries resolved configuration and shared handles.
type CommandContext struct {
	Config     config.Config
	ConfigPath string
	JSONMode   bool
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
	Mirror     *db.Mirror
	Remote     *remote.Client
}

// GetContext loads configuration and opens the local mirror.
func GetContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	jsonMode, _ := cmd.Flags().GetBool("json")

	mirror, err := db.OpenMirror(filepath.Join(cfg.DataDir, db.MirrorFileName))
	if err != nil {
		return nil, err
	}

	token := cfg.Token
	if token == "" {
		token, _ = mirror.LoadToken()
	} else if err := mirror.SaveToken(token); err != nil {
		_ = mirror.Close()
		return nil, err
	}

	ctx := &CommandContext{
		Config:     cfg,
		ConfigPath: path,
		JSONMode:   jsonMode,
		Logger:     logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr()),
		Metrics:    metrics.New(),
		Mirror:     mirror,
	}
	if cfg.APIURL != "" {
		client, err := remote.NewClient(cfg.APIURL, token)
		if err != nil {
			_ = mirror.Close()
			return nil, err
		}
		ctx.Remote = client
	}
	ctx.Config.Token = token
	return ctx, nil
}

func loadConfig(cmd *cobra.Command) (config.Config, string, error) {
	flagPath, _ := cmd.Flags().GetString("config")
	user, _ := cmd.Flags().GetString("user")

	path, err := config.ResolvePath(flagPath)
	if err != nil {
		return config.Config{}, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, "", err
	}
	if user != "" {
		cfg.UserID = user
		cfg.UserName = user
	}
	return cfg, path, nil
}

// Close releases the mirror.
func (c *CommandContext) Close() error {
	return c.Mirror.Close()
}

// NewTransport returns the socket client, or nil when no socket is
// configured.
func (c *CommandContext) NewTransport() *transport.Client {
	if c.Config.SocketURL == "" {
		return nil
	}
	return transport.New(transport.Options{
		URL:       c.Config.SocketURL,
		Token:     c.Config.Token,
		Attempts:  c.Config.Reconnect.Attempts,
		BaseDelay: c.Config.Reconnect.BaseDelay,
		MaxDelay:  c.Config.Reconnect.MaxDelay,
		Logger:    c.Logger,
		Metrics:   c.Metrics,
	})
}

// NewController builds a session. tr and notifier may be nil.
func (c *CommandContext) NewController(tr *transport.Client, notifier notify.Notifier) *engine.Controller {
	opts := engine.Options{
		Self:        types.Member{ID: c.Config.UserID, Name: c.Config.UserName},
		Mirror:      c.Mirror,
		AckTimeout:  c.Config.AckTimeout,
		Debounce:    c.Config.Persist.Debounce,
		Concurrency: c.Config.Persist.Concurrency,
		Notifier:    notifier,
		Logger:      c.Logger,
		Metrics:     c.Metrics,
	}
	if tr != nil {
		opts.Transport = tr
	}
	if c.Remote != nil {
		opts.Remote = c.Remote
	}
	return engine.New(opts)
}

// withSession hydrates a session without a live connection, runs fn, and
// writes the final state back.
func withSession(cmd *cobra.Command, fn func(ctx *CommandContext, ctrl *engine.Controller) error) error {
	ctx, err := GetContext(cmd)
	if err != nil {
		return writeCommandError(cmd, err)
	}
	defer ctx.Close()

	ctrl := ctx.NewController(nil, nil)
	if _, err := ctrl.Start(cmd.Context()); err != nil {
		return writeCommandError(cmd, err)
	}
	runErr := fn(ctx, ctrl)
	closeErr := ctrl.Close(context.Background())
	if runErr != nil {
		return writeCommandError(cmd, runErr)
	}
	if closeErr != nil {
		return writeCommandError(cmd, closeErr)
	}
	return nil
}
