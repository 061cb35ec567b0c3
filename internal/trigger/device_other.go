//go:build !linux

package trigger

import (
	"context"
	"log/slog"
	"time"

	"pixelpath/internal/logging"
)

// DeviceMonitor is inert on platforms without udev.
type DeviceMonitor struct {
	logger *slog.Logger
}

// NewDeviceMonitor returns an inert monitor.
func NewDeviceMonitor(target Target, _ time.Duration, logger *slog.Logger) *DeviceMonitor {
	if target == nil {
		return nil
	}
	return &DeviceMonitor{logger: logging.NewComponentLogger(logger, "device-monitor")}
}

// Start logs that device triggers are unavailable.
func (m *DeviceMonitor) Start(context.Context) error {
	if m == nil {
		return nil
	}
	m.logger.Info("device trigger unsupported on this platform",
		logging.Event("device_monitor_unsupported"),
	)
	return nil
}

// Stop does nothing.
func (m *DeviceMonitor) Stop() {}

// Running always reports false.
func (m *DeviceMonitor) Running() bool { return false }
