package directorycmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/quailyquaily/taskrelay/internal/clifmt"
	"github.com/quailyquaily/taskrelay/internal/directory"
	"github.com/quailyquaily/taskrelay/internal/namecode"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type Dependencies struct {
	OpenStore func(cmd *cobra.Command) (directory.Store, func() error, error)
}

func New(d Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory",
		Short: "Inspect the stored lists, channels and thread correlations",
	}
	cmd.AddCommand(newListCmd(d))
	return cmd
}

type channelView struct {
	directory.ChatChannel `yaml:",inline"`
	Code                  string `json:"code" yaml:"code"`
}

type snapshot struct {
	Lists    []directory.TrackedList       `json:"lists" yaml:"lists"`
	Channels []channelView                 `json:"channels" yaml:"channels"`
	Threads  []directory.ThreadCorrelation `json:"threads" yaml:"threads"`
}

func newListCmd(d Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the directory tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			format = strings.ToLower(strings.TrimSpace(format))
			switch format {
			case "", "text", "json", "yaml":
			default:
				return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
			}
			if d.OpenStore == nil {
				return fmt.Errorf("OpenStore dependency missing")
			}
			store, closeStore, err := d.OpenStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			snap, err := loadSnapshot(cmd.Context(), store)
			if err != nil {
				return err
			}
			return writeSnapshot(cmd.OutOrStdout(), format, snap)
		},
	}
	cmd.Flags().String("format", "text", "Output format: text|json|yaml.")
	return cmd
}

func loadSnapshot(ctx context.Context, store directory.Store) (snapshot, error) {
	lists, err := store.Lists(ctx)
	if err != nil {
		return snapshot{}, fmt.Errorf("load lists: %w", err)
	}
	channels, err := store.Channels(ctx)
	if err != nil {
		return snapshot{}, fmt.Errorf("load channels: %w", err)
	}
	threads, err := store.Threads(ctx)
	if err != nil {
		return snapshot{}, fmt.Errorf("load threads: %w", err)
	}
	snap := snapshot{
		Lists:    lists,
		Channels: make([]channelView, 0, len(channels)),
		Threads:  threads,
	}
	for _, ch := range channels {
		code, _ := namecode.ChannelCode(ch.ChannelName)
		snap.Channels = append(snap.Channels, channelView{ChatChannel: ch, Code: code})
	}
	return snap, nil
}

func writeSnapshot(out io.Writer, format string, snap snapshot) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return err
		}
		return enc.Close()
	}

	listRows := make([][]string, 0, len(snap.Lists))
	for _, l := range snap.Lists {
		code, _ := namecode.ExtractCode(l.ListName)
		listRows = append(listRows, []string{l.ListID, code, l.ListName})
	}
	clifmt.PrintTable(out, clifmt.TableOptions{
		Title:     "Lists",
		Headers:   []string{"LIST ID", "CODE", "NAME"},
		Rows:      listRows,
		EmptyText: "No tracked lists. Run `taskrelay sync lists`.",
	})
	_, _ = fmt.Fprintln(out)

	channelRows := make([][]string, 0, len(snap.Channels))
	for _, ch := range snap.Channels {
		channelRows = append(channelRows, []string{ch.ChannelID, ch.Code, ch.ChannelName})
	}
	clifmt.PrintTable(out, clifmt.TableOptions{
		Title:     "Channels",
		Headers:   []string{"CHANNEL ID", "CODE", "NAME"},
		Rows:      channelRows,
		EmptyText: "No chat channels. Run `taskrelay sync channels`.",
	})
	_, _ = fmt.Fprintln(out)

	threadRows := make([][]string, 0, len(snap.Threads))
	for _, th := range snap.Threads {
		threadRows = append(threadRows, []string{th.TaskID, th.ChannelID, th.ParentThreadToken})
	}
	clifmt.PrintTable(out, clifmt.TableOptions{
		Title:     "Threads",
		Headers:   []string{"TASK ID", "CHANNEL ID", "THREAD"},
		Rows:      threadRows,
		EmptyText: "No threads opened yet.",
	})
	return nil
}
