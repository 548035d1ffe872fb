package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"meetcap/internal/config"
	"meetcap/internal/logging"
)

var version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:           "meetcap",
		Short:         "Record meetings and upload them in chunks for transcription",
		Long:          "meetcap captures microphone and/or shared application audio, seals it into fixed-length segments and uploads each segment to the transcription backend while recording.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}
			opts.cfg = cfg
			opts.logger = logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
			log.Logger = opts.logger
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newRecordCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newQuotaCmd(opts))

	return rootCmd
}
