// Package config resolves the relay's settings from defaults and the
// environment. Command-line flags are layered on top by cmd/midirelay.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// DefaultPort is the HTTP and WebSocket listen port.
	DefaultPort = 3000

	// DefaultDriver is the MIDI backend used when none is configured.
	DefaultDriver = "rtmidi"

	DefaultStaticDir     = "build/client"
	DefaultSongsDir      = "public/music/songs"
	DefaultBuildSongsDir = "build/client/music/songs"
	DefaultManifestPath  = "src/manifest.json"
	DefaultLogLevel      = "info"

	// DefaultTCPAddr is where the tcp driver accepts networked instruments.
	DefaultTCPAddr = ":5008"
)

// Supported MIDI drivers.
const (
	DriverRtMidi   = "rtmidi"
	DriverCoreMIDI = "coremidi"
	DriverTCP      = "tcp"
	DriverNone     = "none"
)

var (
	ErrInvalidPort   = errors.New("config: invalid port")
	ErrInvalidDriver = errors.New("config: unknown midi driver")
)

// Config holds every setting of the relay process.
type Config struct {
	// Port is the TCP port the HTTP server listens on.
	Port int

	// Driver selects the MIDI backend: rtmidi, coremidi, tcp or none.
	Driver string

	// TCPAddr is the listen address of the tcp driver.
	TCPAddr string

	// StaticDir is the client bundle served for non-API paths.
	StaticDir string

	// SongsDir and BuildSongsDir both receive uploaded songs.
	SongsDir      string
	BuildSongsDir string

	// ManifestPath is the JSON song catalog updated on upload.
	ManifestPath string

	LogLevel string

	// S3 mirroring of uploaded songs; disabled while S3Bucket is empty.
	S3Bucket string
	S3Region string
	S3Prefix string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:          DefaultPort,
		Driver:        DefaultDriver,
		TCPAddr:       DefaultTCPAddr,
		StaticDir:     DefaultStaticDir,
		SongsDir:      DefaultSongsDir,
		BuildSongsDir: DefaultBuildSongsDir,
		ManifestPath:  DefaultManifestPath,
		LogLevel:      DefaultLogLevel,
	}
}

// FromEnv returns the defaults overlaid with the process environment.
func FromEnv() (*Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup is FromEnv with an explicit variable source.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := ParsePort(v)
		if err != nil {
			return nil, err
		}
		cfg.Port = port
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"MIDI_DRIVER", &cfg.Driver},
		{"MIDI_TCP_ADDR", &cfg.TCPAddr},
		{"STATIC_DIR", &cfg.StaticDir},
		{"SONGS_DIR", &cfg.SongsDir},
		{"BUILD_SONGS_DIR", &cfg.BuildSongsDir},
		{"MANIFEST_PATH", &cfg.ManifestPath},
		{"LOG_LEVEL", &cfg.LogLevel},
		{"SONGS_S3_BUCKET", &cfg.S3Bucket},
		{"SONGS_S3_REGION", &cfg.S3Region},
		{"SONGS_S3_PREFIX", &cfg.S3Prefix},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.dst = v
		}
	}
	cfg.Normalize()

	return cfg, nil
}

// Normalize canonicalizes values that may come from env or flags in any
// case. Call it after flags are parsed and before Validate.
func (c *Config) Normalize() {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
}

// ParsePort parses a decimal TCP port in 1..65535.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: %d out of range", ErrInvalidPort, port)
	}
	return port, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d out of range", ErrInvalidPort, c.Port)
	}
	switch c.Driver {
	case DriverRtMidi, DriverCoreMIDI, DriverNone:
	case DriverTCP:
		if c.TCPAddr == "" {
			return errors.New("config: tcp driver needs a listen address")
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDriver, c.Driver)
	}
	if c.StaticDir == "" {
		return errors.New("config: static dir must not be empty")
	}
	if c.ManifestPath == "" {
		return errors.New("config: manifest path must not be empty")
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return errors.New("config: SONGS_S3_REGION is required when SONGS_S3_BUCKET is set")
	}
	return nil
}

// Addr returns the listen address for Port on all interfaces.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// SongDirs returns the non-empty upload destinations in write order.
func (c *Config) SongDirs() []string {
	var dirs []string
	for _, d := range []string{c.SongsDir, c.BuildSongsDir} {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}
