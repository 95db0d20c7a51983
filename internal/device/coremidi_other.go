//go:build !darwin

package device

import "go.uber.org/zap"

// CoreMIDIDriver is unavailable outside macOS.
type CoreMIDIDriver struct {
	NoneDriver
}

// NewCoreMIDIDriver always fails on this platform.
func NewCoreMIDIDriver(clientName string, logger *zap.Logger) (*CoreMIDIDriver, error) {
	logger.Warn("CoreMIDI requested on a non-macOS system", zap.String("client", clientName))
	return nil, ErrUnsupportedPlatform
}
