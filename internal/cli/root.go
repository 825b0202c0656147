// Package cli implements the pulsechat command line interface.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulsechat/pulsechat/internal/config"
	"github.com/pulsechat/pulsechat/internal/logging"
	"github.com/pulsechat/pulsechat/internal/store"
	"github.com/pulsechat/pulsechat/internal/transport"
)

// Execute runs the root command.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pulsechat",
		Short:         "One-to-one chat client sync core",
		Long:          "pulsechat keeps a local mirror of your conversations in sync with the chat server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	cmd.PersistentFlags().String("config", "", "Config file path")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newRunCmd(),
		newSendCmd(),
		newQueueCmd(),
		newContactsCmd(),
		newHistoryCmd(),
		newContextCmd(),
		newVersionCmd(version),
	)

	return cmd
}

// loadConfig loads configuration honoring the persistent flags and
// initializes logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	loader := config.NewLoader()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loader.SetConfigFile(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	logCfg := logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logCfg.Output = f
	}
	logging.Init(logCfg)

	return cfg, nil
}

// openStore opens the local state database.
func openStore(cfg *config.Config) (store.KV, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return store.OpenSQLite(cfg.StoragePath())
}

// newClient builds the HTTP API client from config.
func newClient(cfg *config.Config) *transport.Client {
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return transport.NewClient(cfg.Server.BaseURL, cfg.Server.AuthToken, cfg.Server.UserID, timeout)
}
