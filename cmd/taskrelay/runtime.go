package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/quailyquaily/taskrelay/db"
	"github.com/quailyquaily/taskrelay/internal/clickup"
	"github.com/quailyquaily/taskrelay/internal/configutil"
	"github.com/quailyquaily/taskrelay/internal/directory"
	"github.com/quailyquaily/taskrelay/internal/slackclient"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const driverMemory = "memory"

// runtimeDeps builds the shared collaborators the subcommands receive.
type runtimeDeps struct{}

func (runtimeDeps) openStore(cmd *cobra.Command) (directory.Store, func() error, error) {
	driver := strings.ToLower(strings.TrimSpace(configutil.FlagOrViperString(cmd, "db-driver", "db.driver")))
	if driver == driverMemory {
		return directory.NewMemoryStore(), func() error { return nil }, nil
	}

	cfg := db.DefaultConfig()
	if driver != "" {
		cfg.Driver = driver
	}
	cfg.DSN = strings.TrimSpace(configutil.FlagOrViperString(cmd, "db-dsn", "db.dsn"))
	cfg.AutoMigrate = viper.GetBool("db.auto_migrate")
	cfg.LogQueries = viper.GetBool("db.log_queries")
	if cfg.Driver == db.DriverPostgres {
		cfg.Pool.MaxOpenConns = 10
		cfg.Pool.MaxIdleConns = 5
	}

	gdb, err := db.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := directory.NewGormStore(gdb)
	if err != nil {
		_ = db.Close(gdb)
		return nil, nil, err
	}
	return store, func() error { return db.Close(gdb) }, nil
}

func (runtimeDeps) clickUpClient(cmd *cobra.Command) (*clickup.Client, error) {
	token := strings.TrimSpace(configutil.FlagOrViperString(cmd, "clickup-api-token", "clickup.api_token"))
	if token == "" {
		return nil, fmt.Errorf("missing clickup.api_token (set via --clickup-api-token or TASKRELAY_CLICKUP_API_TOKEN)")
	}
	return clickup.New(clickup.Options{
		HTTPClient:        &http.Client{Timeout: viper.GetDuration("clickup.request_timeout")},
		BaseURL:           viper.GetString("clickup.base_url"),
		APIToken:          token,
		RequestsPerMinute: viper.GetInt("clickup.requests_per_minute"),
	})
}

func (runtimeDeps) slackClient(cmd *cobra.Command) (*slackclient.Client, error) {
	botToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-bot-token", "slack.bot_token"))
	if botToken == "" {
		return nil, fmt.Errorf("missing slack.bot_token (set via --slack-bot-token or TASKRELAY_SLACK_BOT_TOKEN)")
	}
	return slackclient.New(slackclient.Options{
		HTTPClient: &http.Client{Timeout: viper.GetDuration("slack.request_timeout")},
		BaseURL:    viper.GetString("slack.base_url"),
		BotToken:   botToken,
		AppToken:   strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-app-token", "slack.app_token")),
	})
}
