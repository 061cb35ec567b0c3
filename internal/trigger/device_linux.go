//go:build linux

package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"pixelpath/internal/logging"
)

// DeviceMonitor listens for udev block-device events and requests a scan when
// storage appears, such as a camera card being inserted. A second request
// follows after the settle delay so files on a freshly mounted volume are
// picked up once the mount completes.
type DeviceMonitor struct {
	target Target
	logger *slog.Logger
	settle time.Duration

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	timer   *time.Timer
	running bool
}

// NewDeviceMonitor returns a monitor that nudges target. A nil target yields
// a nil monitor, which is safe to Start and Stop.
func NewDeviceMonitor(target Target, settle time.Duration, logger *slog.Logger) *DeviceMonitor {
	if target == nil {
		return nil
	}
	return &DeviceMonitor{
		target: target,
		settle: settle,
		logger: logging.NewComponentLogger(logger, "device-monitor"),
	}
}

// Start connects to the kernel uevent socket. Connection failures are logged
// and leave the monitor stopped.
func (m *DeviceMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "netlink connect failed; device trigger disabled", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open netlink sockets"),
			logging.String(logging.FieldImpact, "inserted cards are picked up by polling"),
		)
		return nil
	}
	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("device monitor started",
		logging.Event("device_monitor_started"),
	)
	return nil
}

// Stop closes the netlink connection.
func (m *DeviceMonitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false
	m.logger.Info("device monitor stopped",
		logging.Event("device_monitor_stopped"),
	)
}

// Running reports whether the monitor is connected.
func (m *DeviceMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *DeviceMonitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "device events may be missed"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=block with ACTION=add.
func buildMatcher() netlink.Matcher {
	action := "add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
		},
	})
	return rules
}

func (m *DeviceMonitor) handleEvent(uevent netlink.UEvent) {
	m.logger.Info("block device added; scan requested",
		logging.String("device", uevent.Env["DEVNAME"]),
		logging.String("devtype", uevent.Env["DEVTYPE"]),
		logging.Event("device_added"),
	)
	m.target.Trigger()
	if m.settle <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.settle, m.target.Trigger)
}
