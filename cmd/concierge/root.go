package main

import (
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-concierge/internal/config"
	"github.com/teslashibe/go-concierge/internal/log"
)

func newRootCmd() *cobra.Command {
	cfg := config.Default()
	var logLevel, logFormat string

	root := &cobra.Command{
		Use:           "concierge",
		Short:         "Realtime voice concierge for property enquiries",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				loaded.LogLevel = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				loaded.LogFormat = logFormat
			}
			log.Init(loaded.LogLevel, loaded.LogFormat)
			*cfg = *loaded
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")

	root.AddCommand(newServeCmd(cfg))
	root.AddCommand(newCallCmd(cfg))
	return root
}
