package sysfs

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/distatus/battery"

	"github.com/sweeney/power-notify/internal/power"
)

// fakeBatteries returns each step in turn, repeating the last.
type fakeBatteries struct {
	steps [][]*battery.Battery
	err   error
	calls int
}

func (f *fakeBatteries) getAll() ([]*battery.Battery, error) {
	f.calls++
	if len(f.steps) == 0 {
		return nil, f.err
	}
	i := f.calls - 1
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	return f.steps[i], f.err
}

func bat(state battery.State, current, full float64) *battery.Battery {
	return &battery.Battery{State: state, Current: current, Full: full}
}

func newTestBackend(f *fakeBatteries, interval time.Duration) *Backend {
	b := NewBackend(interval)
	b.getAll = f.getAll
	return b
}

func TestBatteryDevice(t *testing.T) {
	if got := BatteryDevice(1); got != "sysfs:battery_BAT1" {
		t.Errorf("BatteryDevice(1) = %q", got)
	}
}

func TestDevices_ResolveClassifies(t *testing.T) {
	f := &fakeBatteries{steps: [][]*battery.Battery{{bat(battery.Discharging, 10, 20), bat(battery.Full, 20, 20)}}}
	b := newTestBackend(f, time.Second)

	ids, err := b.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	want := []string{"sysfs:line_power", "sysfs:battery_BAT0", "sysfs:battery_BAT1"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("Devices = %v, want %v", ids, want)
	}

	got := power.Resolve(context.Background(), power.Devices{}, b, power.Devices{})
	if got != Defaults {
		t.Errorf("Resolve = %+v, want %+v", got, Defaults)
	}
}

func TestDevices_NoBatteries(t *testing.T) {
	b := newTestBackend(&fakeBatteries{}, time.Second)
	if _, err := b.Devices(context.Background()); err == nil {
		t.Fatal("expected error with no batteries")
	}
}

func TestPercentage_Truncates(t *testing.T) {
	f := &fakeBatteries{steps: [][]*battery.Battery{{bat(battery.Discharging, 41580, 49500)}}}
	b := newTestBackend(f, time.Second)

	got, err := b.Percentage(context.Background(), Defaults.Battery)
	if err != nil {
		t.Fatalf("Percentage: %v", err)
	}
	if got != 84 {
		t.Errorf("Percentage = %d, want 84", got)
	}
}

func TestPercentage_ZeroFull(t *testing.T) {
	f := &fakeBatteries{steps: [][]*battery.Battery{{bat(battery.Unknown, 10, 0)}}}
	b := newTestBackend(f, time.Second)
	if _, err := b.Percentage(context.Background(), Defaults.Battery); err == nil {
		t.Fatal("expected error when full capacity is zero")
	}
}

func TestPartialErrorStillUsesBatteries(t *testing.T) {
	f := &fakeBatteries{
		steps: [][]*battery.Battery{{nil, bat(battery.Charging, 50, 100)}},
		err:   errors.New("partial read"),
	}
	b := newTestBackend(f, time.Second)
	got, err := b.Percentage(context.Background(), Defaults.Battery)
	if err != nil {
		t.Fatalf("Percentage: %v", err)
	}
	if got != 50 {
		t.Errorf("Percentage = %d, want 50", got)
	}
}

func TestReadingFrom(t *testing.T) {
	tests := []struct {
		name string
		bat  *battery.Battery
		want power.Reading
	}{
		{"charging", bat(battery.Charging, 30, 100), power.Reading{Online: true, HasOnline: true, Percent: 30, HasPercent: true}},
		{"full", bat(battery.Full, 100, 100), power.Reading{Online: true, HasOnline: true, Percent: 100, HasPercent: true}},
		{"discharging", bat(battery.Discharging, 199, 1000), power.Reading{Online: false, HasOnline: true, Percent: 19, HasPercent: true}},
		{"unknown", bat(battery.Unknown, 50, 100), power.Reading{Percent: 50, HasPercent: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := readingFrom(tt.bat); got != tt.want {
				t.Errorf("readingFrom = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRun_EmitsTransitions(t *testing.T) {
	f := &fakeBatteries{steps: [][]*battery.Battery{
		{bat(battery.Charging, 79, 100)},
		{bat(battery.Charging, 81, 100)},
		{bat(battery.Discharging, 81, 100)},
	}}
	b := newTestBackend(f, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan power.Event, 8)
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, out) }()

	want := []power.Event{
		{Device: Defaults.Battery, Props: map[string]string{power.PropPercentage: "79"}},
		{Device: Defaults.Battery, Props: map[string]string{power.PropPercentage: "81"}},
		{Device: Defaults.AC, Props: map[string]string{power.PropOnline: "false"}},
	}
	var got []power.Event
	for len(got) < len(want) {
		select {
		case ev := <-out:
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out; got %v", got)
		}
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v\nwant     %v", got, want)
	}
}

func TestTrack_SecondBattery(t *testing.T) {
	f := &fakeBatteries{steps: [][]*battery.Battery{
		{bat(battery.Discharging, 50, 100), bat(battery.Discharging, 15, 100)},
	}}
	b := newTestBackend(f, time.Hour)

	configured := power.Devices{AC: ACDevice, Battery: BatteryDevice(1)}
	if err := b.Track(configured); err != nil {
		t.Fatalf("Track: %v", err)
	}

	got, err := b.Percentage(context.Background(), configured.Battery)
	if err != nil {
		t.Fatalf("Percentage: %v", err)
	}
	if got != 15 {
		t.Errorf("Percentage(BAT1) = %d, want 15", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan power.Event, 4)
	go b.Run(ctx, out) //nolint:errcheck

	select {
	case ev := <-out:
		if !configured.IsBattery(ev.Device) {
			t.Errorf("event device = %q, want %q", ev.Device, configured.Battery)
		}
		if p := ev.Props[power.PropPercentage]; p != "15" {
			t.Errorf("event percentage = %q, want 15", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no battery event")
	}
}

func TestTrack_ShortNames(t *testing.T) {
	f := &fakeBatteries{steps: [][]*battery.Battery{
		{bat(battery.Charging, 50, 100), bat(battery.Charging, 90, 100)},
	}}
	b := newTestBackend(f, time.Hour)
	if err := b.Track(power.Devices{AC: "line_power", Battery: "battery_BAT1"}); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if got, _ := b.Percentage(context.Background(), "battery_BAT1"); got != 90 {
		t.Errorf("Percentage = %d, want 90", got)
	}
}

func TestTrack_RejectsUnknownDevices(t *testing.T) {
	tests := []struct {
		name    string
		devices power.Devices
	}{
		{"missing battery", power.Devices{AC: ACDevice, Battery: BatteryDevice(3)}},
		{"foreign battery", power.Devices{AC: ACDevice, Battery: "/org/freedesktop/UPower/devices/battery_BAT0"}},
		{"foreign ac", power.Devices{AC: "line_power_AC", Battery: BatteryDevice(0)}},
		{"garbage index", power.Devices{AC: ACDevice, Battery: "sysfs:battery_BATx"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeBatteries{steps: [][]*battery.Battery{{bat(battery.Charging, 50, 100)}}}
			b := newTestBackend(f, time.Hour)
			if err := b.Track(tt.devices); err == nil {
				t.Errorf("Track(%+v) succeeded, want error", tt.devices)
			}
		})
	}
}

func TestPercentage_UnknownDevice(t *testing.T) {
	f := &fakeBatteries{steps: [][]*battery.Battery{{bat(battery.Charging, 50, 100)}}}
	b := newTestBackend(f, time.Hour)
	for _, dev := range []string{"sysfs:battery_BAT1", "mouse_0"} {
		if _, err := b.Percentage(context.Background(), dev); err == nil {
			t.Errorf("Percentage(%q) succeeded, want error", dev)
		}
	}
}

var (
	_ power.Backend = (*Backend)(nil)
	_ power.Tracker = (*Backend)(nil)
)
