package synccmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/quailyquaily/taskrelay/internal/clickup"
	"github.com/quailyquaily/taskrelay/internal/clifmt"
	"github.com/quailyquaily/taskrelay/internal/configutil"
	"github.com/quailyquaily/taskrelay/internal/directory"
	"github.com/quailyquaily/taskrelay/internal/slackclient"
	"github.com/spf13/cobra"
)

type Dependencies struct {
	LoggerFromViper func() (*slog.Logger, error)
	OpenStore       func(cmd *cobra.Command) (directory.Store, func() error, error)
	ClickUpClient   func(cmd *cobra.Command) (*clickup.Client, error)
	SlackClient     func(cmd *cobra.Command) (*slackclient.Client, error)
}

const (
	targetLists    = "lists"
	targetChannels = "channels"
	targetAll      = "all"
)

func New(d Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "sync [lists|channels|all]",
		Short:     "Refresh tracked lists and chat channels once",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{targetLists, targetChannels, targetAll},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := targetAll
			if len(args) == 1 {
				target = strings.ToLower(strings.TrimSpace(args[0]))
			}
			switch target {
			case targetLists, targetChannels, targetAll:
			default:
				return fmt.Errorf("unknown sync target %q (want lists, channels or all)", target)
			}
			if d.LoggerFromViper == nil || d.OpenStore == nil {
				return fmt.Errorf("sync dependencies missing")
			}
			logger, err := d.LoggerFromViper()
			if err != nil {
				return err
			}

			store, closeStore, err := d.OpenStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			opts := directory.SyncerOptions{Lists: store, Channels: store, Logger: logger}
			if target != targetChannels {
				if d.ClickUpClient == nil {
					return fmt.Errorf("ClickUpClient dependency missing")
				}
				tracker, err := d.ClickUpClient(cmd)
				if err != nil {
					return err
				}
				spaceID := strings.TrimSpace(configutil.FlagOrViperString(cmd, "clickup-space-id", "clickup.space_id"))
				source, err := clickup.NewSpaceSource(tracker, spaceID)
				if err != nil {
					return err
				}
				opts.ListSource = source
			}
			if target != targetLists {
				if d.SlackClient == nil {
					return fmt.Errorf("SlackClient dependency missing")
				}
				chat, err := d.SlackClient(cmd)
				if err != nil {
					return err
				}
				opts.ChannelSource = chat
			}
			syncer, err := directory.NewSyncer(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if syncer.CanSyncLists() {
				report, err := syncer.SyncLists(cmd.Context())
				if err != nil {
					return fmt.Errorf("sync lists: %w", err)
				}
				printReport(out, "Lists", report)
			}
			if syncer.CanSyncChannels() {
				report, err := syncer.SyncChannels(cmd.Context())
				if err != nil {
					return fmt.Errorf("sync channels: %w", err)
				}
				printReport(out, "Channels", report)
			}
			return nil
		},
	}
	cmd.Flags().String("clickup-api-token", "", "ClickUp API token.")
	cmd.Flags().String("clickup-space-id", "", "ClickUp space whose lists are synced.")
	cmd.Flags().String("slack-bot-token", "", "Slack bot token (xoxb-...).")
	return cmd
}

func printReport(out io.Writer, title string, r directory.SyncReport) {
	_, _ = fmt.Fprintln(out, clifmt.Headerf("%s", title))
	_, _ = fmt.Fprintf(out, "  %s %d\n", clifmt.Key("seen:     "), r.Seen)
	_, _ = fmt.Fprintf(out, "  %s %s\n", clifmt.Key("inserted: "), clifmt.Success(fmt.Sprint(r.Inserted)))
	_, _ = fmt.Fprintf(out, "  %s %s\n", clifmt.Key("updated:  "), clifmt.Warn(fmt.Sprint(r.Updated)))
	_, _ = fmt.Fprintf(out, "  %s %d\n", clifmt.Key("unchanged:"), r.Unchanged)
	_, _ = fmt.Fprintf(out, "  %s %s\n", clifmt.Key("skipped:  "), clifmt.Dim(fmt.Sprint(r.Skipped)))
}
