// Package sysfs is a polling power backend built on the kernel battery
// interface, for systems that run no UPower daemon.
package sysfs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/distatus/battery"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/power-notify/internal/power"
)

// ACDevice is the synthetic identifier of the AC source.
const ACDevice = "sysfs:" + power.MarkerLinePower

// BatteryDevice returns the identifier of the i-th battery.
func BatteryDevice(i int) string {
	return fmt.Sprintf("sysfs:%s_BAT%d", power.MarkerBattery, i)
}

// Defaults are the identifiers of the AC source and the first battery.
var Defaults = power.Devices{AC: ACDevice, Battery: BatteryDevice(0)}

// Backend implements power.Backend by polling battery state. AC state is
// inferred from the tracked battery: charging or full means online.
type Backend struct {
	getAll   func() ([]*battery.Battery, error)
	interval time.Duration

	mu      sync.Mutex
	devices power.Devices
	index   int
	last    []*battery.Battery
}

// NewBackend returns a backend polling every interval. It tracks the first
// battery until Track says otherwise.
func NewBackend(interval time.Duration) *Backend {
	return &Backend{
		getAll:   battery.GetAll,
		devices:  Defaults,
		interval: interval,
	}
}

// Devices implements power.Lister.
func (b *Backend) Devices(context.Context) ([]string, error) {
	bats, err := b.batteries()
	if err != nil {
		return nil, err
	}
	ids := []string{ACDevice}
	for i := range bats {
		ids = append(ids, BatteryDevice(i))
	}
	return ids, nil
}

// Track implements power.Tracker. Events are emitted under the identifiers
// in devices; the battery must name one this backend can see.
func (b *Backend) Track(devices power.Devices) error {
	if !isACDevice(devices.AC) {
		return fmt.Errorf("sysfs backend cannot track AC device %q, use %q", devices.AC, ACDevice)
	}
	idx, ok := batteryIndex(devices.Battery)
	if !ok {
		return fmt.Errorf("sysfs backend cannot track battery device %q", devices.Battery)
	}
	bats, err := b.batteries()
	if err != nil {
		return err
	}
	if idx >= len(bats) {
		return fmt.Errorf("battery device %q not present, %d batteries found", devices.Battery, len(bats))
	}

	b.mu.Lock()
	b.devices = devices
	b.index = idx
	b.mu.Unlock()
	return nil
}

// Percentage implements power.Reader from the most recent poll, or a fresh
// read when nothing has been polled yet.
func (b *Backend) Percentage(_ context.Context, device string) (int, error) {
	idx, ok := batteryIndex(device)
	if !ok {
		return 0, fmt.Errorf("unknown battery device %q", device)
	}

	b.mu.Lock()
	bats := b.last
	b.mu.Unlock()

	if bats == nil {
		var err error
		if bats, err = b.batteries(); err != nil {
			return 0, err
		}
	}
	if idx >= len(bats) {
		return 0, fmt.Errorf("battery device %q not present", device)
	}
	return percentOf(bats[idx])
}

// Run implements power.Source, polling immediately and then every interval.
func (b *Backend) Run(ctx context.Context, out chan<- power.Event) error {
	b.mu.Lock()
	watch := power.NewWatch(b.devices)
	b.mu.Unlock()
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		if err := b.poll(ctx, watch, out); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *Backend) poll(ctx context.Context, watch *power.Watch, out chan<- power.Event) error {
	bats, err := b.batteries()
	if err != nil {
		logrus.WithError(err).Warn("battery poll failed")
		return nil
	}

	b.mu.Lock()
	b.last = bats
	idx := b.index
	b.mu.Unlock()

	if idx >= len(bats) {
		logrus.WithField("battery", BatteryDevice(idx)).Warn("tracked battery disappeared")
		return nil
	}
	for _, ev := range watch.Update(readingFrom(bats[idx])) {
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *Backend) batteries() ([]*battery.Battery, error) {
	bats, err := b.getAll()
	var found []*battery.Battery
	for _, bat := range bats {
		if bat != nil {
			found = append(found, bat)
		}
	}
	if len(found) == 0 {
		if err != nil {
			return nil, fmt.Errorf("reading batteries: %w", err)
		}
		return nil, fmt.Errorf("no batteries found")
	}
	if err != nil {
		logrus.WithError(err).Debug("partial battery read")
	}
	return found, nil
}

func isACDevice(id string) bool {
	return strings.TrimPrefix(id, "sysfs:") == power.MarkerLinePower
}

// batteryIndex parses "sysfs:battery_BAT<i>" or its short form
// "battery_BAT<i>".
func batteryIndex(id string) (int, bool) {
	name, ok := strings.CutPrefix(strings.TrimPrefix(id, "sysfs:"), power.MarkerBattery+"_BAT")
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(name)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

func percentOf(bat *battery.Battery) (int, error) {
	if bat.Full <= 0 {
		return 0, fmt.Errorf("battery reports no full capacity")
	}
	return power.TruncatePercent(bat.Current / bat.Full * 100)
}

func readingFrom(bat *battery.Battery) power.Reading {
	var r power.Reading
	switch bat.State {
	case battery.Charging, battery.Full:
		r.Online, r.HasOnline = true, true
	case battery.Discharging:
		r.Online, r.HasOnline = false, true
	}
	if p, err := percentOf(bat); err == nil {
		r.Percent, r.HasPercent = p, true
	}
	return r
}
