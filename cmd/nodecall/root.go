package main

import (
	"context"
	"time"

	"github.com/danmuck/nodectl/internal/client"
	"github.com/danmuck/nodectl/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "nodecall",
	Short:         "Invoke signals on a running nodectl server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.ConfigureRuntime()
	},
}

func init() {
	rootCmd.PersistentFlags().String("addr", "127.0.0.1:9400", "nodectl server address")
	rootCmd.PersistentFlags().Duration("timeout", 5*time.Second, "per-call timeout")
	rootCmd.PersistentFlags().Int("attempts", 3, "connect attempts before giving up")
}

// connect dials the server named by the persistent flags.
func connect(cmd *cobra.Command) (*client.Client, context.Context, context.CancelFunc, error) {
	addr, _ := cmd.Flags().GetString("addr")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	attempts, _ := cmd.Flags().GetInt("attempts")

	cfg := client.DefaultConfig()
	cfg.Address = addr
	cfg.MaxConnectAttempts = attempts
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	c, err := client.DialRetry(ctx, cfg)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return c, ctx, cancel, nil
}
