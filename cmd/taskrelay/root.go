package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/quailyquaily/taskrelay/cmd/taskrelay/directorycmd"
	"github.com/quailyquaily/taskrelay/cmd/taskrelay/servecmd"
	"github.com/quailyquaily/taskrelay/cmd/taskrelay/synccmd"
	"github.com/quailyquaily/taskrelay/internal/logutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix = "TASKRELAY"
)

func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "taskrelay",
		Short:         "Relay ClickUp task comments and Slack threads",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cobra.OnInitialize(initConfig)

	cmd.PersistentFlags().String("config", "", "Config file path (optional).")
	cmd.PersistentFlags().String("env-file", ".env", "Dotenv file loaded before reading the environment. Missing files are ignored.")
	_ = viper.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("env_file", cmd.PersistentFlags().Lookup("env-file"))

	cmd.PersistentFlags().String("log-level", "", "Logging level: debug|info|warn|error (defaults to info; debug if --trace).")
	cmd.PersistentFlags().String("log-format", "text", "Logging format: text|json|auto.")
	cmd.PersistentFlags().Bool("log-add-source", false, "Include source file:line in logs.")
	cmd.PersistentFlags().Bool("trace", false, "Print extra debug info to stderr.")
	_ = viper.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", cmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.add_source", cmd.PersistentFlags().Lookup("log-add-source"))
	_ = viper.BindPFlag("trace", cmd.PersistentFlags().Lookup("trace"))

	cmd.PersistentFlags().String("db-driver", "", "Directory store: sqlite|postgres|memory.")
	cmd.PersistentFlags().String("db-dsn", "", "Database DSN (sqlite path or postgres URL).")
	_ = viper.BindPFlag("db.driver", cmd.PersistentFlags().Lookup("db-driver"))
	_ = viper.BindPFlag("db.dsn", cmd.PersistentFlags().Lookup("db-dsn"))

	rt := runtimeDeps{}
	cmd.AddCommand(servecmd.New(servecmd.Dependencies{
		LoggerFromViper: logutil.LoggerFromViper,
		OpenStore:       rt.openStore,
		ClickUpClient:   rt.clickUpClient,
		SlackClient:     rt.slackClient,
	}))
	cmd.AddCommand(synccmd.New(synccmd.Dependencies{
		LoggerFromViper: logutil.LoggerFromViper,
		OpenStore:       rt.openStore,
		ClickUpClient:   rt.clickUpClient,
		SlackClient:     rt.slackClient,
	}))
	cmd.AddCommand(directorycmd.New(directorycmd.Dependencies{
		OpenStore: rt.openStore,
	}))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func initConfig() {
	initViperDefaults()

	// Secrets usually live in .env next to the binary. Real environment
	// variables win over the file.
	if envFile := strings.TrimSpace(viper.GetString("env_file")); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to read env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	cfgFile := strings.TrimSpace(viper.GetString("config"))
	if cfgFile == "" {
		return
	}

	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
	}
}
