package main

import (
	"fmt"

	"github.com/danmuck/nodectl/internal/config"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "cmd/nodectl/config.toml"

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter config",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := defaultConfigPath
		if len(args) > 0 {
			target = args[0]
		}
		kind, _ := cmd.Flags().GetString("kind")
		force, _ := cmd.Flags().GetBool("force")
		if err := config.WriteTemplate(target, kind, force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s config template to %s\n", kind, target)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check a config file without serving",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := defaultConfigPath
		if len(args) > 0 {
			path = args[0]
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(
			cmd.OutOrStdout(),
			"Validated config at %s (%d components, %d links)\n",
			path,
			len(cfg.Components),
			len(cfg.Links),
		)
		return nil
	},
}

func init() {
	initCmd.Flags().String("kind", "server", "template kind: server|minimal")
	initCmd.Flags().Bool("force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd, validateCmd)
}
