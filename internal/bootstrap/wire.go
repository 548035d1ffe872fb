package bootstrap

import (
	"errors"

	"github.com/rs/zerolog"

	"meetcap/internal/audio"
	"meetcap/internal/backend"
	"meetcap/internal/capture"
	"meetcap/internal/clock"
	"meetcap/internal/config"
	"meetcap/internal/ports"
	"meetcap/internal/upload"
	"meetcap/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Uploader   *upload.Uploader
	Backend    *backend.Client
	Config     *config.Config
}

// Build wires all runtime dependencies from cfg.
func Build(cfg *config.Config, eventSink ports.EventSink, logger zerolog.Logger) (Services, error) {
	if cfg == nil {
		return Services{}, errors.New("configuration is required")
	}
	if eventSink == nil {
		return Services{}, errors.New("event sink is required")
	}

	client := BuildBackend(cfg, logger)
	uploader := upload.NewUploader(client, upload.Config{
		MaxChunkBytes: cfg.Upload.MaxChunkBytes,
		Timeout:       cfg.Upload.Timeout,
	}, logger)

	devices := audio.NewFFMPEGDevices(audio.DeviceConfig{
		Command:          cfg.Audio.FFMPEGCommand,
		InputFormat:      cfg.Audio.InputFormat,
		MicDevice:        cfg.Audio.MicDevice,
		EchoCancelDevice: cfg.Audio.EchoCancelDevice,
		TabDevice:        cfg.Audio.TabDevice,
		SampleRate:       cfg.Audio.SampleRate,
		Channels:         cfg.Audio.Channels,
	}, logger)
	encoders := audio.NewFFMPEGEncoderFactory(audio.EncoderConfig{
		Command:    cfg.Audio.FFMPEGCommand,
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		Timeout:    cfg.Audio.EncodeTimeout,
	}, logger)

	controller := usecase.NewSessionController(
		capture.NewAcquirer(devices, audio.NewPCMMixer(logger), logger),
		encoders,
		client,
		uploader,
		eventSink,
		clock.Real{},
		logger,
		usecase.Config{
			TickInterval: cfg.Session.TickInterval,
			EndTimeout:   cfg.Session.EndTimeout,
		},
	)

	return Services{
		Controller: controller,
		Uploader:   uploader,
		Backend:    client,
		Config:     cfg,
	}, nil
}

// BuildBackend creates the backend client alone, for commands that do not record.
func BuildBackend(cfg *config.Config, logger zerolog.Logger) *backend.Client {
	return backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.Timeout,
	}, logger)
}
