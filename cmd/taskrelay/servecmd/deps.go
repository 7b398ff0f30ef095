package servecmd

import (
	"fmt"
	"log/slog"

	"github.com/quailyquaily/taskrelay/internal/clickup"
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

var deps Dependencies

func New(d Dependencies) *cobra.Command {
	deps = d
	return newServeCmd()
}

func loggerFromViper() (*slog.Logger, error) {
	if deps.LoggerFromViper == nil {
		return nil, fmt.Errorf("LoggerFromViper dependency missing")
	}
	return deps.LoggerFromViper()
}

func openStore(cmd *cobra.Command) (directory.Store, func() error, error) {
	if deps.OpenStore == nil {
		return nil, nil, fmt.Errorf("OpenStore dependency missing")
	}
	return deps.OpenStore(cmd)
}

func clickUpClient(cmd *cobra.Command) (*clickup.Client, error) {
	if deps.ClickUpClient == nil {
		return nil, fmt.Errorf("ClickUpClient dependency missing")
	}
	return deps.ClickUpClient(cmd)
}

func slackClient(cmd *cobra.Command) (*slackclient.Client, error) {
	if deps.SlackClient == nil {
		return nil, fmt.Errorf("SlackClient dependency missing")
	}
	return deps.SlackClient(cmd)
}
