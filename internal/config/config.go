package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"meetcap/internal/domain"
	"meetcap/internal/quota"
)

const envPrefix = "MEETCAP"

// Config stores runtime configuration for the recorder.
type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Session SessionConfig `mapstructure:"session"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AudioConfig struct {
	FFMPEGCommand    string        `mapstructure:"ffmpeg_command"`
	InputFormat      string        `mapstructure:"input_format"`
	MicDevice        string        `mapstructure:"mic_device"`
	EchoCancelDevice string        `mapstructure:"echo_cancel_device"`
	TabDevice        string        `mapstructure:"tab_device"` // monitor source for shared audio
	SampleRate       int           `mapstructure:"sample_rate"`
	Channels         int           `mapstructure:"channels"`
	EncodeTimeout    time.Duration `mapstructure:"encode_timeout"`
}

type UploadConfig struct {
	MaxChunkBytes int           `mapstructure:"max_chunk_bytes"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	Tier         string        `mapstructure:"tier"`
	Mode         string        `mapstructure:"mode"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
	EndTimeout   time.Duration `mapstructure:"end_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load resolves configuration from an optional YAML file, MEETCAP_* environment
// variables and defaults. An empty path looks for meetcap.yaml in the user
// config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("meetcap")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "meetcap"))
		}
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:8000/api")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.timeout", "30s")

	v.SetDefault("audio.ffmpeg_command", "ffmpeg")
	v.SetDefault("audio.input_format", "pulse")
	v.SetDefault("audio.mic_device", "default")
	v.SetDefault("audio.echo_cancel_device", "")
	v.SetDefault("audio.tab_device", "")
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.encode_timeout", "2m")

	v.SetDefault("upload.max_chunk_bytes", 25*1024*1024)
	v.SetDefault("upload.timeout", "2m")

	v.SetDefault("session.tier", string(domain.TierFree))
	v.SetDefault("session.mode", string(domain.SourceModeMic))
	v.SetDefault("session.tick_interval", "1s")
	v.SetDefault("session.end_timeout", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("metrics.addr", "")
}

// validate rejects values that cannot work and falls back for the rest.
func validate(cfg *Config) error {
	cfg.Backend.BaseURL = strings.TrimSpace(cfg.Backend.BaseURL)
	if cfg.Backend.BaseURL == "" {
		return errors.New("backend base URL is required")
	}
	cfg.Backend.Token = strings.TrimSpace(cfg.Backend.Token)

	tier, err := quota.ParseTier(cfg.Session.Tier)
	if err != nil {
		return err
	}
	cfg.Session.Tier = string(tier)

	mode := domain.SourceMode(strings.TrimSpace(cfg.Session.Mode))
	if !mode.Valid() {
		return fmt.Errorf("unknown source mode %q", cfg.Session.Mode)
	}
	cfg.Session.Mode = string(mode)

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 48000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.EncodeTimeout <= 0 {
		cfg.Audio.EncodeTimeout = 2 * time.Minute
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if cfg.Upload.MaxChunkBytes <= 0 {
		cfg.Upload.MaxChunkBytes = 25 * 1024 * 1024
	}
	if cfg.Upload.Timeout <= 0 {
		cfg.Upload.Timeout = 2 * time.Minute
	}
	if cfg.Session.TickInterval <= 0 {
		cfg.Session.TickInterval = time.Second
	}
	if cfg.Session.EndTimeout <= 0 {
		cfg.Session.EndTimeout = 30 * time.Second
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "console":
		cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	default:
		cfg.Logging.Format = "console"
	}

	return nil
}

// Tier returns the configured plan tier.
func (c *Config) Tier() domain.Tier {
	return domain.Tier(c.Session.Tier)
}

// Mode returns the configured source mode.
func (c *Config) Mode() domain.SourceMode {
	return domain.SourceMode(c.Session.Mode)
}
