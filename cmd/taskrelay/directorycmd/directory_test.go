package directorycmd

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/quailyquaily/taskrelay/internal/directory"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func seededStore(t *testing.T) directory.Store {
	t.Helper()
	ctx := context.Background()
	store := directory.NewMemoryStore()
	if _, err := store.UpsertList(ctx, directory.TrackedList{ListID: "L1", ListName: "Website Redesign (ABC-1234)"}); err != nil {
		t.Fatalf("UpsertList() error = %v", err)
	}
	if _, err := store.UpsertChannel(ctx, directory.ChatChannel{ChannelID: "C1", ChannelName: "-abc-1234-website"}); err != nil {
		t.Fatalf("UpsertChannel() error = %v", err)
	}
	if _, _, err := store.CreateThreadIfAbsent(ctx, directory.ThreadCorrelation{TaskID: "t1", ChannelID: "C1", ParentThreadToken: "1.0"}); err != nil {
		t.Fatalf("CreateThreadIfAbsent() error = %v", err)
	}
	return store
}

func runList(t *testing.T, store directory.Store, format string) string {
	t.Helper()
	cmd := New(Dependencies{OpenStore: func(*cobra.Command) (directory.Store, func() error, error) {
		return store, func() error { return nil }, nil
	}})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"list", "--format", format})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("directory list --format %s error = %v", format, err)
	}
	return out.String()
}

func TestDirectoryListJSON(t *testing.T) {
	t.Parallel()

	var snap struct {
		Lists    []directory.TrackedList `json:"lists"`
		Channels []struct {
			ChannelID string `json:"channel_id"`
			Code      string `json:"code"`
		} `json:"channels"`
		Threads []directory.ThreadCorrelation `json:"threads"`
	}
	raw := runList(t, seededStore(t), "json")
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("decode json: %v\n%s", err, raw)
	}
	if len(snap.Lists) != 1 || snap.Lists[0].ListID != "L1" {
		t.Fatalf("lists mismatch: %+v", snap.Lists)
	}
	if len(snap.Channels) != 1 || snap.Channels[0].Code != "abc" {
		t.Fatalf("channels mismatch: %+v", snap.Channels)
	}
	if len(snap.Threads) != 1 || snap.Threads[0].ParentThreadToken != "1.0" {
		t.Fatalf("threads mismatch: %+v", snap.Threads)
	}
}

func TestDirectoryListYAML(t *testing.T) {
	t.Parallel()

	raw := runList(t, seededStore(t), "yaml")
	var snap map[string][]map[string]string
	if err := yaml.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("decode yaml: %v\n%s", err, raw)
	}
	if got := snap["channels"][0]["channel_name"]; got != "-abc-1234-website" {
		t.Fatalf("channel name mismatch: got %q want %q", got, "-abc-1234-website")
	}
	if got := snap["channels"][0]["code"]; got != "abc" {
		t.Fatalf("code mismatch: got %q want %q", got, "abc")
	}
}

func TestDirectoryListText(t *testing.T) {
	color.NoColor = true

	raw := runList(t, seededStore(t), "text")
	for _, want := range []string{"Lists (1)", "Website Redesign (ABC-1234)", "Channels (1)", "-abc-1234-website", "Threads (1)", "t1"} {
		if !strings.Contains(raw, want) {
			t.Fatalf("text output missing %q:\n%s", want, raw)
		}
	}
}

func TestDirectoryListRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	cmd := New(Dependencies{OpenStore: func(*cobra.Command) (directory.Store, func() error, error) {
		return directory.NewMemoryStore(), func() error { return nil }, nil
	}})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"list", "--format", "xml"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
