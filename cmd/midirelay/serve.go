package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/yourusername/sightread-relay/internal/capture"
	"github.com/yourusername/sightread-relay/internal/config"
	"github.com/yourusername/sightread-relay/internal/device"
	"github.com/yourusername/sightread-relay/internal/hub"
	"github.com/yourusername/sightread-relay/internal/metrics"
	"github.com/yourusername/sightread-relay/internal/model"
	"github.com/yourusername/sightread-relay/internal/server"
	"github.com/yourusername/sightread-relay/internal/songs"
	"github.com/yourusername/sightread-relay/internal/static"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	cfg, envErr := config.FromEnv()
	if envErr != nil {
		cfg = config.Default()
	}
	var logs logFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MIDI relay server",
		Long: `Run the relay: capture notes from the first MIDI input whose name does
not contain "through" and stream them to clients on /midi.

Every flag falls back to its environment variable, then to the built-in
default.

Examples:
  midirelay serve
  midirelay serve --port=8080 --driver=none
  PORT=4000 midirelay serve --log-format=console`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return envErr
			}
			cfg.LogLevel = logs.level
			cfg.Normalize()
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := logs.build()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, log)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Listen port (env PORT)")
	f.StringVar(&cfg.Driver, "driver", cfg.Driver, "MIDI driver: rtmidi, coremidi, tcp or none (env MIDI_DRIVER)")
	f.StringVar(&cfg.TCPAddr, "tcp-addr", cfg.TCPAddr, "Listen address of the tcp driver (env MIDI_TCP_ADDR)")
	f.StringVar(&cfg.StaticDir, "static-dir", cfg.StaticDir, "Client bundle directory (env STATIC_DIR)")
	f.StringVar(&cfg.SongsDir, "songs-dir", cfg.SongsDir, "Upload destination (env SONGS_DIR)")
	f.StringVar(&cfg.BuildSongsDir, "build-songs-dir", cfg.BuildSongsDir, "Second upload destination inside the bundle (env BUILD_SONGS_DIR)")
	f.StringVar(&cfg.ManifestPath, "manifest", cfg.ManifestPath, "Song catalog JSON (env MANIFEST_PATH)")
	logs.register(cmd, cfg.LogLevel)

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(metrics.WithRegistry(reg))

	drv, closeDriver, err := openDriver(cfg, log.Named("device"))
	if err != nil {
		return err
	}

	h := hub.NewHub(hub.WithLogger(log.Named("hub")), hub.WithMetrics(m))
	go h.Run()

	adapter := capture.New(drv, h,
		capture.WithLogger(log.Named("capture")),
		capture.WithMetrics(m))
	inv, err := adapter.Start()
	if err != nil {
		h.Stop()
		return multierr.Append(err, closeDriver())
	}
	h.SetHello(model.NewHello(inv.Devices, inv.SelectedPort))

	upload := songs.NewHandler(songStore(cfg, log), songs.NewCatalog(cfg.ManifestPath),
		songs.WithLogger(log.Named("songs")),
		songs.WithMetrics(m))

	router := server.NewRouter(server.Routes{
		Hub:      h,
		Static:   static.NewHandler(cfg.StaticDir, log.Named("static")),
		Upload:   upload,
		Gatherer: reg,
		Logger:   log,
	})
	srv := server.New(cfg.Addr(), router, log.Named("server"))
	if err := srv.Start(); err != nil {
		h.Stop()
		return multierr.Combine(err, adapter.Close(), closeDriver())
	}

	printBanner(cfg.Port, inv)

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	stopErr := srv.Stop(shutdownCtx)
	h.Stop()
	if err := multierr.Combine(stopErr, adapter.Close(), closeDriver()); err != nil {
		log.Error("Shutdown finished with errors", zap.Error(err))
		return err
	}
	log.Info("Stopped")
	return nil
}

// songStore writes uploads to the song directories and, when a bucket is
// configured, mirrors them to S3.
func songStore(cfg *config.Config, log *zap.Logger) songs.Store {
	disk := songs.NewDiskStore(cfg.SongDirs()...)
	if cfg.S3Bucket == "" {
		return disk
	}
	log.Info("Mirroring songs to S3",
		zap.String("bucket", cfg.S3Bucket),
		zap.String("region", cfg.S3Region),
		zap.String("prefix", cfg.S3Prefix))
	client := songs.NewS3Client(cfg.S3Region)
	return songs.MultiStore{disk, songs.NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix)}
}

func printBanner(port int, inv device.Inventory) {
	fmt.Println()
	fmt.Println("MIDI relay running:")
	fmt.Printf("  Local:   http://localhost:%d\n", port)
	if ip := localIPv4(); ip != "" {
		fmt.Printf("  Network: http://%s:%d  <-- open this on the display device\n", ip, port)
	}
	if len(inv.Devices) > 0 {
		fmt.Printf("  MIDI:    %s\n", strings.Join(inv.Devices, ", "))
	} else {
		fmt.Println("  MIDI:    no devices found")
	}
	fmt.Println()
}

// localIPv4 returns the first non-loopback IPv4 address, or "".
func localIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
