package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/adamavenir/parley/internal/config"
	"github.com/adamavenir/parley/internal/notify"
	"github.com/adamavenir/parley/internal/store"
	"github.com/adamavenir/parley/internal/transport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var errConnectionLost = errors.New("connection lost and reconnecting gave up")

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [conversation]",
		Short: "Stream messages in real-time",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			noNotify, _ := cmd.Flags().GetBool("no-notify")
			only := ""
			if len(args) == 1 {
				only = args[0]
			}

			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			tr := ctx.NewTransport()
			if tr == nil {
				return writeCommandError(cmd, errNoSocket)
			}
			notifier := notify.NewDesktop(!ctx.Config.Notify.Quiet && !noNotify)
			ctrl := ctx.NewController(tr, notifier)

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(sigCtx)

			out := cmd.OutOrStdout()
			var printMu sync.Mutex
			unsubscribe := ctrl.Store().Subscribe(func(change store.Change) {
				if change.Kind != store.ChangeMessages || change.MessageID == "" {
					return
				}
				if only != "" && change.ConversationID != only {
					return
				}
				msg, ok := ctrl.Store().Message(change.ConversationID, change.MessageID)
				if !ok {
					return
				}
				printMu.Lock()
				defer printMu.Unlock()
				if ctx.JSONMode {
					_ = json.NewEncoder(out).Encode(msg)
					return
				}
				fmt.Fprintln(out, formatMessage(msg, change.ConversationID))
			})
			defer unsubscribe()

			lost := make(chan struct{}, 1)
			defer tr.On(transport.EventReconnectFailed, func(json.RawMessage) {
				select {
				case lost <- struct{}{}:
				default:
				}
			})()

			source, err := ctrl.Start(gctx)
			if err != nil {
				_ = ctrl.Close(context.Background())
				return writeCommandError(cmd, err)
			}
			ctx.Logger.Info().Str("source", string(source)).Msg("watching")
			if only != "" {
				if err := ctrl.Open(only); err != nil {
					ctx.Logger.Warn().Err(err).Str("conversation", only).Msg("cannot open conversation")
				}
			}

			if addr := ctx.Config.Metrics.Addr; addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", ctx.Metrics.Handler())
				srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				g.Go(func() error {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("metrics listener: %w", err)
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}

			if _, err := os.Stat(ctx.ConfigPath); err == nil {
				g.Go(func() error {
					return config.Watch(gctx, ctx.ConfigPath, 0, ctx.Logger, func(cfg config.Config) {
						notifier.SetEnabled(!cfg.Notify.Quiet && !noNotify)
						ctx.Logger.Info().Bool("notify", !cfg.Notify.Quiet).Msg("config reloaded")
					})
				})
			}

			g.Go(func() error {
				select {
				case <-gctx.Done():
					return nil
				case <-lost:
					return errConnectionLost
				}
			})

			waitErr := g.Wait()
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := ctrl.Close(closeCtx); err != nil {
				ctx.Logger.Error().Err(err).Msg("final write failed")
			}
			if waitErr != nil {
				return writeCommandError(cmd, waitErr)
			}
			return nil
		},
	}

	cmd.Flags().Bool("no-notify", false, "disable desktop notifications")
	return cmd
}
