package main

import (
	"time"

	"github.com/quailyquaily/taskrelay/internal/clickup"
	"github.com/quailyquaily/taskrelay/internal/loopback"
	"github.com/quailyquaily/taskrelay/internal/relay"
	"github.com/quailyquaily/taskrelay/internal/slackclient"
	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Logging
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
	viper.SetDefault("trace", false)

	// HTTP server
	viper.SetDefault("server.listen", ":8080")
	viper.SetDefault("server.auth_token", "")

	// ClickUp
	viper.SetDefault("clickup.api_token", "")
	viper.SetDefault("clickup.space_id", "")
	viper.SetDefault("clickup.webhook_secret", "")
	viper.SetDefault("clickup.base_url", clickup.DefaultBaseURL)
	viper.SetDefault("clickup.requests_per_minute", clickup.DefaultRequestsPerMinute)
	viper.SetDefault("clickup.request_timeout", 30*time.Second)

	// Slack
	viper.SetDefault("slack.bot_token", "")
	viper.SetDefault("slack.app_token", "")
	viper.SetDefault("slack.signing_secret", "")
	viper.SetDefault("slack.base_url", slackclient.DefaultBaseURL)
	viper.SetDefault("slack.socket_mode", false)
	viper.SetDefault("slack.request_timeout", 30*time.Second)

	// Database
	viper.SetDefault("db.driver", "sqlite")
	viper.SetDefault("db.dsn", "")
	viper.SetDefault("db.auto_migrate", true)
	viper.SetDefault("db.log_queries", false)

	// Directory + relay
	viper.SetDefault("directory.sync_interval", time.Duration(0))
	viper.SetDefault("relay.loopback_marker", loopback.DefaultMarker)
	viper.SetDefault("relay.header_color", relay.DefaultHeaderColor)
	viper.SetDefault("relay.max_deliveries", 1000)
}
