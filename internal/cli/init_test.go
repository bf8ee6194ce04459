package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"receipts/internal/config"
	applog "receipts/internal/log"
)

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		level string
		debug bool
	}{
		{"debug", true},
		{"info", false},
		{"bogus", false},
	}
	for _, tt := range tests {
		logger := SetupLogger(tt.level, applog.ComponentWorker)
		if logger.Component() != applog.ComponentWorker {
			t.Errorf("%s: component = %q", tt.level, logger.Component())
		}
		if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.debug {
			t.Errorf("%s: debug enabled = %v, want %v", tt.level, got, tt.debug)
		}
		if slog.Default() != logger.Logger {
			t.Errorf("%s: logger not installed as default", tt.level)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("AMQP_URL", "")

	cfg, err := LoadConfig((*config.Config).Validate)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}

	if _, err := LoadConfig((*config.Config).ValidateWorker); err == nil {
		t.Errorf("worker validation accepted a memory backend without AMQP")
	}

	boom := errors.New("boom")
	if _, err := LoadConfig(func(*config.Config) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestGracefulShutdown(t *testing.T) {
	logger := applog.New(applog.Config{Output: io.Discard})
	cleaned := make(chan struct{})
	ctx, done := GracefulShutdown(logger, time.Second, func(ctx context.Context) {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("cleanup context has no deadline")
		}
		close(cleaned)
	})

	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("signal self: %v", err)
	}

	finished := make(chan struct{})
	go func() {
		WaitForShutdown(ctx, done)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	select {
	case <-cleaned:
	default:
		t.Errorf("cleanup did not run")
	}
}
