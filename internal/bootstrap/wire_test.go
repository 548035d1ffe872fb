package bootstrap

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"meetcap/internal/config"
	"meetcap/internal/domain"
)

func TestBuildSuccess(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("MEETCAP_BACKEND_TOKEN", "test-token")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	services, err := Build(cfg, noopEventSink{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Controller == nil || services.Uploader == nil || services.Backend == nil {
		t.Fatalf("expected controller, uploader and backend")
	}
	if status := services.Controller.Status(); status.Status != domain.SessionStatusIdle {
		t.Fatalf("expected idle controller, got %s", status.Status)
	}
}

func TestBuildRequiresConfigAndSink(t *testing.T) {
	if _, err := Build(nil, noopEventSink{}, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for missing config")
	}
	if _, err := Build(&config.Config{}, nil, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for missing event sink")
	}
}

type noopEventSink struct{}

func (noopEventSink) SessionStateChanged(_ domain.SessionStatus, _ domain.SessionStateReason) {}
func (noopEventSink) ElapsedChanged(_ int, _ int)                                             {}
func (noopEventSink) SessionError(_ domain.ErrorCode, _ string)                               {}
