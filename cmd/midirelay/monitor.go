package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/sightread-relay/internal/client"
	"github.com/yourusername/sightread-relay/internal/model"
)

const defaultRelayURL = "ws://localhost:3000/midi"

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// noteName renders a MIDI note number in scientific pitch notation, 60 = C4.
func noteName(n uint8) string {
	return fmt.Sprintf("%s%d", noteNames[n%12], int(n)/12-1)
}

func monitorCmd() *cobra.Command {
	var logs logFlags

	cmd := &cobra.Command{
		Use:   "monitor [url]",
		Short: "Connect to a relay and log the notes it sends",
		Long: `Connect to a relay as a display client would, reconnecting with backoff
whenever the connection drops, and log every press and release.

Examples:
  midirelay monitor
  midirelay monitor ws://192.168.1.20:3000/midi`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := defaultRelayURL
			if len(args) == 1 {
				url = args[0]
			}

			log, err := logs.build()
			if err != nil {
				return err
			}
			defer log.Sync()

			state := client.NewNoteState(func(note, velocity uint8, down bool) {
				if down {
					log.Info("Press", zap.String("note", noteName(note)), zap.Uint8("velocity", velocity))
				} else {
					log.Info("Release", zap.String("note", noteName(note)))
				}
			})

			c := client.New(url, state,
				client.WithLogger(log.Named("client")),
				client.WithHelloHandler(func(h model.Hello) {
					if h.SelectedPort < 0 {
						log.Warn("Relay has no MIDI input open", zap.Strings("devices", h.Devices))
					}
				}),
				client.WithReconnectOptions(client.OnPhase(func(p client.Phase) {
					// Nothing will release notes held when the link dropped.
					if p == client.Disconnected {
						state.Reset()
					}
				})))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.Run(ctx)
		},
	}

	logs.register(cmd, "info")
	return cmd
}
