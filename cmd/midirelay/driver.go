package main

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/zap"

	"github.com/yourusername/sightread-relay/internal/config"
	"github.com/yourusername/sightread-relay/internal/device"
	"github.com/yourusername/sightread-relay/internal/tcp"
)

const coreMIDIClientName = "midirelay"

// openDriver returns the configured MIDI backend and a function releasing
// the backend itself. Ports opened on the driver are closed separately.
func openDriver(cfg *config.Config, logger *zap.Logger) (device.Driver, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case config.DriverRtMidi:
		drv, err := rtmididrv.New()
		if err != nil {
			return nil, nil, fmt.Errorf("open rtmidi: %w", err)
		}
		return device.NewGomidiDriver(drv, logger), drv.Close, nil

	case config.DriverCoreMIDI:
		drv, err := device.NewCoreMIDIDriver(coreMIDIClientName, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open coremidi: %w", err)
		}
		return drv, noop, nil

	case config.DriverTCP:
		return tcp.NewServer(cfg.TCPAddr, logger.Named("tcp")), noop, nil

	case config.DriverNone:
		return device.NoneDriver{}, noop, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidDriver, cfg.Driver)
	}
}
