package servecmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/quailyquaily/taskrelay/internal/clickup"
	"github.com/quailyquaily/taskrelay/internal/configutil"
	"github.com/quailyquaily/taskrelay/internal/directory"
	"github.com/quailyquaily/taskrelay/internal/loopback"
	"github.com/quailyquaily/taskrelay/internal/relay"
	"github.com/quailyquaily/taskrelay/internal/relayserver"
	"github.com/quailyquaily/taskrelay/internal/slackclient"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ClickUp and Slack webhooks and relay comments between them",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, closeStore, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeStore(); err != nil {
					logger.Warn("store_close_error", "error", err.Error())
				}
			}()

			tracker, err := clickUpClient(cmd)
			if err != nil {
				return err
			}
			chat, err := slackClient(cmd)
			if err != nil {
				return err
			}
			self, err := chat.AuthTest(ctx)
			if err != nil {
				return fmt.Errorf("slack auth.test: %w", err)
			}
			logger.Info("slack_identity", "team_id", self.TeamID, "user_id", self.UserID, "bot_id", self.BotID)

			rel, err := relay.New(relay.Options{
				Lists:       store,
				Channels:    store,
				Threads:     store,
				Tracker:     tracker,
				Chat:        chat,
				Guard:       loopback.New(viper.GetString("relay.loopback_marker")),
				HeaderColor: viper.GetString("relay.header_color"),
				Logger:      logger.With("component", "relay"),
			})
			if err != nil {
				return err
			}

			syncer, err := newSyncer(cmd, store, tracker, chat, logger)
			if err != nil {
				return err
			}

			dispatcher := &relayserver.Dispatcher{
				Relay:    rel,
				Users:    chat,
				Self:     self,
				Activity: relayserver.NewActivityLog(configutil.FlagOrViperInt(cmd, "max-deliveries", "relay.max_deliveries")),
				Logger:   logger,
			}

			if _, err := relayserver.StartServer(ctx, logger, relayserver.ServerOptions{
				Listen: configutil.FlagOrViperString(cmd, "listen", "server.listen"),
				Routes: relayserver.RoutesOptions{
					AuthToken:            configutil.FlagOrViperString(cmd, "auth-token", "server.auth_token"),
					ClickUpWebhookSecret: viper.GetString("clickup.webhook_secret"),
					SlackSigningSecret:   viper.GetString("slack.signing_secret"),
					Dispatcher:           dispatcher,
					Syncer:               syncer,
				},
			}); err != nil {
				return err
			}

			if interval := configutil.FlagOrViperDuration(cmd, "sync-interval", "directory.sync_interval"); interval > 0 {
				go syncer.RunSyncLoop(ctx, interval)
			}

			if configutil.FlagOrViperBool(cmd, "socket-mode", "slack.socket_mode") {
				go func() {
					err := chat.RunSocketMode(ctx, logger, func(env slackclient.SocketEnvelope) {
						dispatcher.SlackSocketEnvelope(ctx, env)
					})
					if err != nil && ctx.Err() == nil {
						logger.Error("slack_socket_mode_stopped", "error", err.Error())
					}
				}()
			}

			<-ctx.Done()
			logger.Info("relay_server_stop")
			return nil
		},
	}

	cmd.Flags().String("listen", "", "HTTP listen address (defaults to server.listen).")
	cmd.Flags().String("auth-token", "", "Bearer token for the sync and delivery endpoints.")
	cmd.Flags().String("clickup-api-token", "", "ClickUp API token.")
	cmd.Flags().String("clickup-space-id", "", "ClickUp space whose lists are synced.")
	cmd.Flags().String("slack-bot-token", "", "Slack bot token (xoxb-...).")
	cmd.Flags().String("slack-app-token", "", "Slack app-level token (xapp-...) for Socket Mode.")
	cmd.Flags().Bool("socket-mode", false, "Receive Slack events over Socket Mode instead of the Events API.")
	cmd.Flags().Duration("sync-interval", 0, "Refresh lists and channels on this interval (0 disables).")
	cmd.Flags().Int("max-deliveries", 0, "Deliveries kept in the in-memory log (defaults to relay.max_deliveries).")

	return cmd
}

func newSyncer(cmd *cobra.Command, store directory.Store, tracker *clickup.Client, chat *slackclient.Client, logger *slog.Logger) (*directory.Syncer, error) {
	opts := directory.SyncerOptions{
		Lists:         store,
		Channels:      store,
		ChannelSource: chat,
		Logger:        logger.With("component", "directory"),
	}
	spaceID := strings.TrimSpace(configutil.FlagOrViperString(cmd, "clickup-space-id", "clickup.space_id"))
	if spaceID != "" {
		source, err := clickup.NewSpaceSource(tracker, spaceID)
		if err != nil {
			return nil, err
		}
		opts.ListSource = source
	} else {
		logger.Warn("clickup_space_missing", "hint", "set clickup.space_id to enable list sync")
	}
	return directory.NewSyncer(opts)
}

