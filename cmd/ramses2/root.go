package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/risa-org/ramses2/config"
	"github.com/risa-org/ramses2/observability"
)

var (
	// global flags
	cfgFile   string
	logLevel  string
	packetLog string

	// shared state set during PersistentPreRun
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd is the base command for ramses2.
var rootCmd = &cobra.Command{
	Use:   "ramses2",
	Short: "RAMSES-II radio gateway — monitor and command heating devices",
	Long: `ramses2 talks to a RAMSES-II serial radio gateway (an HGI80 or
compatible dongle) and exposes the traffic as decodable messages.
It can watch a live system, send commands and wait for their replies,
or replay a captured packet log offline.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// flags win over file and environment
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if packetLog != "" {
			cfg.PacketLog.File = packetLog
		}

		logger, err = observability.NewLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ramses2.{yaml,json,toml} in ., ~/.ramses2, /etc/ramses2)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&packetLog, "packet-log", "",
		"append every received packet to this file")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
