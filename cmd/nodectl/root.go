package main

import (
	"github.com/danmuck/nodectl/internal/config"
	"github.com/danmuck/nodectl/internal/core"
	"github.com/danmuck/nodectl/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "nodectl",
	Short:         "Serve a remotely controllable component tree",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := loadConfig(path)
		if err != nil {
			return err
		}
		logging.ConfigureRuntime()
		if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
			zerolog.SetGlobalLevel(lvl)
		}
		svc, err := core.NewService(cfg)
		if err != nil {
			return err
		}
		return svc.Run()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to a nodectl TOML config (defaults when empty)")
}

func loadConfig(path string) (config.ServerConfig, error) {
	if path == "" {
		return config.DefaultServerConfig(), nil
	}
	return config.Load(path)
}
