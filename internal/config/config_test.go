package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"meetcap/internal/domain"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Backend.BaseURL != "http://localhost:8000/api" || cfg.Backend.Timeout != 30*time.Second {
		t.Fatalf("unexpected backend config: %+v", cfg.Backend)
	}
	if cfg.Audio.FFMPEGCommand != "ffmpeg" || cfg.Audio.InputFormat != "pulse" || cfg.Audio.MicDevice != "default" {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Audio.TabDevice != "" || cfg.Audio.SampleRate != 48000 || cfg.Audio.Channels != 1 {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.Upload.MaxChunkBytes != 25*1024*1024 {
		t.Fatalf("unexpected upload ceiling: %d", cfg.Upload.MaxChunkBytes)
	}
	if cfg.Tier() != domain.TierFree || cfg.Mode() != domain.SourceModeMic {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.Session.TickInterval != time.Second || cfg.Logging.Format != "console" {
		t.Fatalf("unexpected session/logging defaults: %+v %+v", cfg.Session, cfg.Logging)
	}
}

func TestLoadRespectsEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("MEETCAP_BACKEND_BASE_URL", "https://api.example.com/api")
	t.Setenv("MEETCAP_BACKEND_TOKEN", " secret ")
	t.Setenv("MEETCAP_AUDIO_FFMPEG_COMMAND", "my-ffmpeg")
	t.Setenv("MEETCAP_AUDIO_INPUT_FORMAT", "alsa")
	t.Setenv("MEETCAP_AUDIO_MIC_DEVICE", "hw:1")
	t.Setenv("MEETCAP_AUDIO_TAB_DEVICE", "alsa_output.monitor")
	t.Setenv("MEETCAP_AUDIO_ECHO_CANCEL_DEVICE", "echo-cancel-source")
	t.Setenv("MEETCAP_AUDIO_SAMPLE_RATE", "16000")
	t.Setenv("MEETCAP_AUDIO_CHANNELS", "2")
	t.Setenv("MEETCAP_UPLOAD_MAX_CHUNK_BYTES", "1024")
	t.Setenv("MEETCAP_SESSION_TIER", "true")
	t.Setenv("MEETCAP_SESSION_MODE", "tabAndMic")
	t.Setenv("MEETCAP_SESSION_TICK_INTERVAL", "250ms")
	t.Setenv("MEETCAP_LOGGING_FORMAT", "JSON")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Backend.BaseURL != "https://api.example.com/api" || cfg.Backend.Token != "secret" {
		t.Fatalf("unexpected backend config: %+v", cfg.Backend)
	}
	if cfg.Audio.FFMPEGCommand != "my-ffmpeg" || cfg.Audio.InputFormat != "alsa" || cfg.Audio.MicDevice != "hw:1" {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Audio.TabDevice != "alsa_output.monitor" || cfg.Audio.EchoCancelDevice != "echo-cancel-source" || cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 2 {
		t.Fatalf("unexpected audio overrides: %+v", cfg.Audio)
	}
	if cfg.Upload.MaxChunkBytes != 1024 {
		t.Fatalf("unexpected upload ceiling: %d", cfg.Upload.MaxChunkBytes)
	}
	if cfg.Tier() != domain.TierPremium || cfg.Mode() != domain.SourceModeTabAndMic {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Session.TickInterval != 250*time.Millisecond || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected tick/format: %+v %+v", cfg.Session, cfg.Logging)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "meetcap.yaml")
	contents := "backend:\n  base_url: https://file.example.com\n  token: abc\nsession:\n  tier: premium\n  mode: tab\naudio:\n  tab_device: monitor0\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("MEETCAP_BACKEND_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Backend.BaseURL != "https://file.example.com" {
		t.Fatalf("expected file base URL, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Token != "from-env" {
		t.Fatalf("expected env to override file, got %q", cfg.Backend.Token)
	}
	if cfg.Tier() != domain.TierPremium || cfg.Mode() != domain.SourceModeTab || cfg.Audio.TabDevice != "monitor0" {
		t.Fatalf("unexpected file values: %+v %+v", cfg.Session, cfg.Audio)
	}
}

func TestLoadInvalidValuesFallback(t *testing.T) {
	isolate(t)
	t.Setenv("MEETCAP_AUDIO_CHANNELS", "-1")
	t.Setenv("MEETCAP_AUDIO_SAMPLE_RATE", "0")
	t.Setenv("MEETCAP_UPLOAD_MAX_CHUNK_BYTES", "0")
	t.Setenv("MEETCAP_SESSION_TICK_INTERVAL", "0s")
	t.Setenv("MEETCAP_LOGGING_FORMAT", "xml")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Audio.Channels != 1 || cfg.Audio.SampleRate != 48000 {
		t.Fatalf("expected audio fallbacks, got %+v", cfg.Audio)
	}
	if cfg.Upload.MaxChunkBytes != 25*1024*1024 {
		t.Fatalf("expected upload ceiling fallback, got %d", cfg.Upload.MaxChunkBytes)
	}
	if cfg.Session.TickInterval != time.Second {
		t.Fatalf("expected tick fallback, got %s", cfg.Session.TickInterval)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("expected console fallback, got %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsUnknownTierAndMode(t *testing.T) {
	isolate(t)
	t.Setenv("MEETCAP_SESSION_TIER", "enterprise")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected unknown tier to be rejected")
	}

	t.Setenv("MEETCAP_SESSION_TIER", "free")
	t.Setenv("MEETCAP_SESSION_MODE", "screen")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected unknown mode to be rejected")
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	dir := isolate(t)
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected missing explicit config file to fail")
	}
}
