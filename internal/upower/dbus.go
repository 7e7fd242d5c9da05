package upower

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/power-notify/internal/power"
)

const (
	upowerDest       = "org.freedesktop.UPower"
	upowerPath       = dbus.ObjectPath("/org/freedesktop/UPower")
	upowerInterface  = "org.freedesktop.UPower"
	deviceInterface  = "org.freedesktop.UPower.Device"
	propertiesIface  = "org.freedesktop.DBus.Properties"
	devicePathPrefix = "/org/freedesktop/UPower"
)

// DBusBackend implements power.Backend over the system bus.
type DBusBackend struct {
	conn    *dbus.Conn
	timeout time.Duration
}

// NewDBusBackend connects to the system bus. Method calls are bounded by
// timeout.
func NewDBusBackend(timeout time.Duration) (*DBusBackend, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}
	return &DBusBackend{conn: conn, timeout: timeout}, nil
}

// Close closes the bus connection.
func (b *DBusBackend) Close() error {
	return b.conn.Close()
}

// Devices implements power.Lister via EnumerateDevices plus the display device.
func (b *DBusBackend) Devices(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	obj := b.conn.Object(upowerDest, upowerPath)

	var paths []dbus.ObjectPath
	if err := obj.CallWithContext(ctx, upowerInterface+".EnumerateDevices", 0).Store(&paths); err != nil {
		return nil, fmt.Errorf("EnumerateDevices: %w", err)
	}

	var display dbus.ObjectPath
	if err := obj.CallWithContext(ctx, upowerInterface+".GetDisplayDevice", 0).Store(&display); err == nil && display != "" {
		paths = append(paths, display)
	}

	ids := make([]string, len(paths))
	for i, p := range paths {
		ids[i] = string(p)
	}
	return ids, nil
}

// Percentage implements power.Reader by reading the device's Percentage property.
func (b *DBusBackend) Percentage(ctx context.Context, device string) (int, error) {
	path := dbus.ObjectPath(device)
	if !path.IsValid() {
		path = dbus.ObjectPath(devicePathPrefix + "/devices/" + device)
	}
	obj := b.conn.Object(upowerDest, path)

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var v dbus.Variant
	if err := obj.CallWithContext(ctx, propertiesIface+".Get", 0, deviceInterface, power.PropPercentage).Store(&v); err != nil {
		return 0, fmt.Errorf("reading Percentage of %s: %w", path, err)
	}
	f, ok := v.Value().(float64)
	if !ok {
		return 0, fmt.Errorf("unexpected Percentage type %s", v.Signature())
	}
	return power.TruncatePercent(f)
}

// Run implements power.Source by subscribing to PropertiesChanged signals.
func (b *DBusBackend) Run(ctx context.Context, out chan<- power.Event) error {
	opts := []dbus.MatchOption{
		dbus.WithMatchSender(upowerDest),
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	if err := b.conn.AddMatchSignalContext(ctx, opts...); err != nil {
		return fmt.Errorf("subscribing to UPower signals: %w", err)
	}
	defer b.conn.RemoveMatchSignal(opts...) //nolint:errcheck

	signals := make(chan *dbus.Signal, 16)
	b.conn.Signal(signals)
	defer b.conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("system bus connection closed")
			}
			ev, ok := signalToEvent(sig)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// signalToEvent converts a PropertiesChanged signal into an event.
func signalToEvent(sig *dbus.Signal) (power.Event, bool) {
	if sig == nil || sig.Name != propertiesIface+".PropertiesChanged" {
		return power.Event{}, false
	}
	if !strings.HasPrefix(string(sig.Path), devicePathPrefix) || len(sig.Body) < 2 {
		return power.Event{}, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		logrus.WithField("path", sig.Path).Debug("unexpected PropertiesChanged body")
		return power.Event{}, false
	}

	props := make(map[string]string, len(changed))
	for k, v := range changed {
		props[k] = formatVariant(v)
	}
	return power.Event{Device: string(sig.Path), Props: props}, true
}

func formatVariant(v dbus.Variant) string {
	switch val := v.Value().(type) {
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return val
	case dbus.ObjectPath:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
