package power

import (
	"context"
	"errors"
	"testing"
)

var upowerDefaults = Devices{
	AC:      "/org/freedesktop/UPower/devices/line_power_AC",
	Battery: "/org/freedesktop/UPower/devices/battery_BAT0",
}

func TestResolve_BothConfigured_NoEnumeration(t *testing.T) {
	fl := &FakeLister{IDs: []string{"/org/freedesktop/UPower/devices/line_power_ADP1"}}
	configured := Devices{AC: "my-ac", Battery: "my-bat"}

	got := Resolve(context.Background(), configured, fl, upowerDefaults)
	if got != configured {
		t.Errorf("Resolve = %+v, want %+v", got, configured)
	}
	if fl.CallCount != 0 {
		t.Errorf("lister called %d times, want 0", fl.CallCount)
	}
}

func TestResolve_ClassifiesEnumeration(t *testing.T) {
	fl := &FakeLister{IDs: []string{
		"/org/freedesktop/UPower/devices/line_power_ADP1",
		"/org/freedesktop/UPower/devices/battery_BAT1",
		"/org/freedesktop/UPower/devices/DisplayDevice",
	}}

	got := Resolve(context.Background(), Devices{}, fl, upowerDefaults)
	if got.AC != "/org/freedesktop/UPower/devices/line_power_ADP1" {
		t.Errorf("AC = %q", got.AC)
	}
	if got.Battery != "/org/freedesktop/UPower/devices/battery_BAT1" {
		t.Errorf("Battery = %q", got.Battery)
	}
}

func TestResolve_DisplayDeviceCountsAsBattery(t *testing.T) {
	fl := &FakeLister{IDs: []string{"/org/freedesktop/UPower/devices/DisplayDevice"}}

	got := Resolve(context.Background(), Devices{}, fl, upowerDefaults)
	if got.Battery != "/org/freedesktop/UPower/devices/DisplayDevice" {
		t.Errorf("Battery = %q, want DisplayDevice", got.Battery)
	}
	if got.AC != upowerDefaults.AC {
		t.Errorf("AC = %q, want default %q", got.AC, upowerDefaults.AC)
	}
}

func TestResolve_PartialConfigKeepsConfiguredValue(t *testing.T) {
	fl := &FakeLister{IDs: []string{
		"/org/freedesktop/UPower/devices/line_power_ADP1",
		"/org/freedesktop/UPower/devices/battery_BAT1",
	}}

	got := Resolve(context.Background(), Devices{Battery: "battery_BAT9"}, fl, upowerDefaults)
	if got.Battery != "battery_BAT9" {
		t.Errorf("Battery = %q, want configured battery_BAT9", got.Battery)
	}
	if got.AC != "/org/freedesktop/UPower/devices/line_power_ADP1" {
		t.Errorf("AC = %q", got.AC)
	}
	if fl.CallCount != 1 {
		t.Errorf("lister called %d times, want 1", fl.CallCount)
	}
}

func TestResolve_EnumerationFailureUsesDefaults(t *testing.T) {
	fl := &FakeLister{Err: errors.New("upower not responding")}

	got := Resolve(context.Background(), Devices{}, fl, upowerDefaults)
	if got != upowerDefaults {
		t.Errorf("Resolve = %+v, want defaults %+v", got, upowerDefaults)
	}
}

func TestResolve_NilLister(t *testing.T) {
	got := Resolve(context.Background(), Devices{}, nil, upowerDefaults)
	if got != upowerDefaults {
		t.Errorf("Resolve = %+v, want defaults", got)
	}
}

func TestDevices_Matching(t *testing.T) {
	d := Devices{AC: "line_power_AC", Battery: "/org/freedesktop/UPower/devices/battery_BAT0"}

	tests := []struct {
		device    string
		isAC      bool
		isBattery bool
	}{
		{"/org/freedesktop/UPower/devices/line_power_AC", true, false},
		{"line_power_AC", true, false},
		{"/org/freedesktop/UPower/devices/battery_BAT0", false, true},
		{"/org/freedesktop/UPower/devices/battery_BAT1", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		if got := d.IsAC(tt.device); got != tt.isAC {
			t.Errorf("IsAC(%q) = %v, want %v", tt.device, got, tt.isAC)
		}
		if got := d.IsBattery(tt.device); got != tt.isBattery {
			t.Errorf("IsBattery(%q) = %v, want %v", tt.device, got, tt.isBattery)
		}
	}
}
