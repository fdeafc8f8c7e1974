package main

import (
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/danmuck/nodectl/internal/client"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print server events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		attempts, _ := cmd.Flags().GetInt("attempts")
		cfg := client.DefaultConfig()
		cfg.Address = addr
		cfg.MaxConnectAttempts = attempts

		ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		c, err := client.DialRetry(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		out := cmd.OutOrStdout()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-c.Events():
				if !ok {
					return fmt.Errorf("connection closed")
				}
				render(out, ev)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
