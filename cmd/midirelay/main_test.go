package main

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/yourusername/sightread-relay/internal/config"
	"github.com/yourusername/sightread-relay/internal/device"
)

func TestNoteName(t *testing.T) {
	tests := []struct {
		note uint8
		want string
	}{
		{60, "C4"},
		{61, "C#4"},
		{69, "A4"},
		{0, "C-1"},
		{127, "G9"},
	}

	for _, tt := range tests {
		if got := noteName(tt.note); got != tt.want {
			t.Errorf("noteName(%d): expected %s, got %s", tt.note, tt.want, got)
		}
	}
}

func TestOpenDriver_None(t *testing.T) {
	cfg := config.Default()
	cfg.Driver = config.DriverNone
	drv, closeDriver, err := openDriver(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("openDriver error: %v", err)
	}
	if _, ok := drv.(device.NoneDriver); !ok {
		t.Errorf("Expected NoneDriver, got %T", drv)
	}
	if err := closeDriver(); err != nil {
		t.Errorf("Expected no close error, got %v", err)
	}
}

func TestOpenDriver_Unknown(t *testing.T) {
	cfg := config.Default()
	cfg.Driver = "alsa"
	if _, _, err := openDriver(cfg, zap.NewNop()); !errors.Is(err, config.ErrInvalidDriver) {
		t.Errorf("Expected ErrInvalidDriver, got %v", err)
	}
}

func TestOpenDriver_TCP(t *testing.T) {
	cfg := config.Default()
	cfg.Driver = config.DriverTCP
	cfg.TCPAddr = "127.0.0.1:0"

	drv, _, err := openDriver(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("openDriver error: %v", err)
	}
	ports, _ := drv.Ports()
	if len(ports) != 1 {
		t.Errorf("Expected one network port, got %v", ports)
	}
}

func TestLogFlags(t *testing.T) {
	f := logFlags{level: "debug", format: "console"}
	if _, err := f.build(); err != nil {
		t.Errorf("Expected console logger, got %v", err)
	}

	f.format = "xml"
	if _, err := f.build(); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestDevicesCmd_DriverFlagCase(t *testing.T) {
	cmd := devicesCmd()
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetArgs([]string{"--driver", "None"})

	if err := cmd.Execute(); err != nil {
		t.Errorf("Expected mixed-case driver to be accepted, got %v", err)
	}
}

func TestServeCmd_DriverFlagCase(t *testing.T) {
	cmd := serveCmd()
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	// The bad log format stops the command right after validation passes.
	cmd.SetArgs([]string{"--driver", "NoNe", "--log-format", "xml"})

	err := cmd.Execute()
	if errors.Is(err, config.ErrInvalidDriver) {
		t.Fatalf("Expected mixed-case driver to be accepted, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "log format") {
		t.Errorf("Expected log format error, got %v", err)
	}
}
