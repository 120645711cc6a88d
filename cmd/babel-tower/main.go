package main

import (
	"github.com/spf13/cobra"

	"github.com/w2kr1stn/babel-tower/internal/logging"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "babel-tower",
	Short:         "Voice input with local speech detection and remote transcription",
	Version:       Version + " (" + Commit + ")",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	rootCmd.AddCommand(listenCmd, processCmd, daemonCmd, mcpCmd, trayCmd, modesCmd, devicesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log := logging.New()
		log.Fatal().Err(err).Msg("babel-tower failed")
	}
}
