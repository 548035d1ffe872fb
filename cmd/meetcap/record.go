package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"meetcap/internal/config"
	"meetcap/internal/domain"
	"meetcap/internal/metrics"
	"meetcap/internal/output"
	"meetcap/internal/quota"
)

func newRecordCmd(opts *rootOptions) *cobra.Command {
	var title string
	var mode string
	var tier string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a meeting until interrupted or the plan limit is reached",
		Long:  "Record audio from the microphone (mic), shared application audio (tab) or both mixed (tabAndMic).\nSegments are uploaded while recording. Press Ctrl+C to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if metricsAddr == "" {
				metricsAddr = cfg.Metrics.Addr
			}

			req, err := startRequest(cfg, title, mode, tier)
			if err != nil {
				return err
			}

			formatter := output.NewFormatter(os.Stdout)
			app := NewApp(formatter, opts.logger)
			app.startup(cmd.Context(), cfg)
			if err := app.requireReady(); err != nil {
				return err
			}

			if metricsAddr != "" {
				server := metrics.NewServer(metricsAddr, opts.logger)
				if err := server.Start(); err != nil {
					return err
				}
				defer func() { _ = server.Stop() }()
			}

			return runRecording(cmd.Context(), app, formatter, req)
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Session title (defaults to the start time)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Source mode: mic, tab or tabAndMic")
	cmd.Flags().StringVar(&tier, "tier", "", "Plan tier: free or premium")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while recording")

	return cmd
}

// startRequest applies flag overrides on top of the configured session defaults.
func startRequest(cfg *config.Config, title, mode, tier string) (domain.StartRequest, error) {
	req := domain.StartRequest{Title: title, Mode: cfg.Mode(), Tier: cfg.Tier()}
	if mode != "" {
		req.Mode = domain.SourceMode(mode)
	}
	if tier != "" {
		parsed, err := quota.ParseTier(tier)
		if err != nil {
			return domain.StartRequest{}, err
		}
		req.Tier = parsed
	}
	return req, nil
}

func runRecording(ctx context.Context, app *App, formatter *output.Formatter, req domain.StartRequest) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := app.StartRecording(req); err != nil {
		return fmt.Errorf("recording not started: %w", err)
	}

	select {
	case <-sigCtx.Done():
	case <-app.Finished():
	}
	stop()

	result, err := app.StopRecording(context.Background())
	if err != nil {
		return err
	}
	formatter.RecordingFinished(result)

	app.WaitUploads()
	return nil
}
