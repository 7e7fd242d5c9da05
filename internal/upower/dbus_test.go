package upower

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestSignalToEvent(t *testing.T) {
	sig := &dbus.Signal{
		Path: "/org/freedesktop/UPower/devices/line_power_AC",
		Name: "org.freedesktop.DBus.Properties.PropertiesChanged",
		Body: []interface{}{
			"org.freedesktop.UPower.Device",
			map[string]dbus.Variant{
				"Online":     dbus.MakeVariant(true),
				"UpdateTime": dbus.MakeVariant(uint64(1708703590)),
			},
			[]string{},
		},
	}

	ev, ok := signalToEvent(sig)
	if !ok {
		t.Fatal("expected signal to convert")
	}
	if ev.Device != "/org/freedesktop/UPower/devices/line_power_AC" {
		t.Errorf("Device = %q", ev.Device)
	}
	if ev.Props["Online"] != "true" {
		t.Errorf("Online = %q", ev.Props["Online"])
	}
	if ev.Props["UpdateTime"] != "1708703590" {
		t.Errorf("UpdateTime = %q", ev.Props["UpdateTime"])
	}
}

func TestSignalToEvent_Percentage(t *testing.T) {
	sig := &dbus.Signal{
		Path: "/org/freedesktop/UPower/devices/battery_BAT0",
		Name: "org.freedesktop.DBus.Properties.PropertiesChanged",
		Body: []interface{}{
			"org.freedesktop.UPower.Device",
			map[string]dbus.Variant{"Percentage": dbus.MakeVariant(84.0)},
			[]string{},
		},
	}
	ev, ok := signalToEvent(sig)
	if !ok {
		t.Fatal("expected signal to convert")
	}
	if ev.Props["Percentage"] != "84" {
		t.Errorf("Percentage = %q, want 84", ev.Props["Percentage"])
	}
}

func TestSignalToEvent_Rejects(t *testing.T) {
	for name, sig := range map[string]*dbus.Signal{
		"nil":         nil,
		"other name":  {Path: "/org/freedesktop/UPower/devices/x", Name: "org.freedesktop.UPower.DeviceAdded"},
		"other path":  {Path: "/org/freedesktop/NetworkManager", Name: "org.freedesktop.DBus.Properties.PropertiesChanged", Body: []interface{}{"x", map[string]dbus.Variant{}}},
		"short body":  {Path: "/org/freedesktop/UPower/devices/x", Name: "org.freedesktop.DBus.Properties.PropertiesChanged", Body: []interface{}{"x"}},
		"wrong types": {Path: "/org/freedesktop/UPower/devices/x", Name: "org.freedesktop.DBus.Properties.PropertiesChanged", Body: []interface{}{"x", "y"}},
	} {
		if _, ok := signalToEvent(sig); ok {
			t.Errorf("%s: expected rejection", name)
		}
	}
}
