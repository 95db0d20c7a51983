package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/sightread-relay/internal/config"
	"github.com/yourusername/sightread-relay/internal/device"
	"github.com/yourusername/sightread-relay/pkg/logger"
)

func devicesCmd() *cobra.Command {
	cfg, err := config.FromEnv()
	if err != nil {
		cfg = config.Default()
	}

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List MIDI inputs and the one serve would open",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Normalize()

			// Only warnings and errors reach stderr; the listing goes to stdout.
			log := logger.Default().WithOptions(zap.IncreaseLevel(zap.WarnLevel))
			defer log.Sync()

			drv, closeDriver, err := openDriver(cfg, log.Named("device"))
			if err != nil {
				return err
			}
			defer closeDriver()

			inv := device.Enumerate(drv, log.Named("device"))
			if len(inv.Devices) == 0 {
				fmt.Println("No MIDI input devices found.")
				return nil
			}
			for i, name := range inv.Devices {
				marker := " "
				if i == inv.SelectedPort {
					marker = "*"
				}
				fmt.Printf("%s %d: %s\n", marker, i, name)
			}
			if inv.SelectedPort < 0 {
				fmt.Println("\nOnly pass-through ports found; serve would not open any.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.Driver, "driver", cfg.Driver, "MIDI driver: rtmidi, coremidi, tcp or none (env MIDI_DRIVER)")
	cmd.Flags().StringVar(&cfg.TCPAddr, "tcp-addr", cfg.TCPAddr, "Listen address of the tcp driver (env MIDI_TCP_ADDR)")
	return cmd
}
