package nut

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/power-notify/internal/power"
)

// DeviceIDs returns the synthetic identifiers a UPS is presented under.
func DeviceIDs(upsName string) power.Devices {
	return power.Devices{
		AC:      "nut:" + upsName + "/" + power.MarkerLinePower,
		Battery: "nut:" + upsName + "/" + power.MarkerBattery,
	}
}

// Backend implements power.Backend by polling upsd.
type Backend struct {
	poller   Poller
	upsName  string
	interval time.Duration

	mu      sync.Mutex
	devices power.Devices
	vars    map[string]string
}

// NewBackend returns a backend polling poller every interval.
func NewBackend(poller Poller, upsName string, interval time.Duration) *Backend {
	return &Backend{
		poller:   poller,
		upsName:  upsName,
		devices:  DeviceIDs(upsName),
		interval: interval,
	}
}

// Devices implements power.Lister.
func (b *Backend) Devices(context.Context) ([]string, error) {
	ids := b.ids()
	return []string{ids.AC, ids.Battery}, nil
}

// Track implements power.Tracker. A UPS exposes one AC source and one
// battery, so devices must name them.
func (b *Backend) Track(devices power.Devices) error {
	ids := b.ids()
	if !devices.IsAC(ids.AC) {
		return fmt.Errorf("NUT backend cannot track AC device %q, use %q", devices.AC, ids.AC)
	}
	if !devices.IsBattery(ids.Battery) {
		return fmt.Errorf("NUT backend cannot track battery device %q, use %q", devices.Battery, ids.Battery)
	}
	b.mu.Lock()
	b.devices = devices
	b.mu.Unlock()
	return nil
}

func (b *Backend) ids() power.Devices {
	return DeviceIDs(b.upsName)
}

// Percentage implements power.Reader from the most recent poll.
func (b *Backend) Percentage(_ context.Context, device string) (int, error) {
	if accepts := (power.Devices{Battery: device}); !accepts.IsBattery(b.ids().Battery) {
		return 0, fmt.Errorf("unknown battery device %q", device)
	}
	b.mu.Lock()
	charge, ok := b.vars[VarCharge]
	b.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("no %s reported for %s", VarCharge, device)
	}
	return power.ParsePercent(charge)
}

// Run implements power.Source. It polls immediately and then every
// interval; poll failures are logged and retried on the next tick.
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
	vars, err := b.poller.Poll()
	if err != nil {
		logrus.WithError(err).Warn("NUT poll failed")
		return nil
	}
	m := VarsToMap(vars)

	b.mu.Lock()
	b.vars = m
	b.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"status": DescribeStatus(m[VarStatus]),
		"charge": m[VarCharge],
	}).Trace("NUT poll")

	for _, ev := range watch.Update(readingFrom(m)) {
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// readingFrom maps NUT variables onto a power reading. The UPS counts as
// online unless its status carries OB.
func readingFrom(vars map[string]string) power.Reading {
	var r power.Reading
	if status := vars[VarStatus]; status != "" {
		r.Online = !hasStatusToken(status, "OB")
		r.HasOnline = true
	}
	if charge, ok := vars[VarCharge]; ok {
		if p, err := power.ParsePercent(charge); err == nil {
			r.Percent = p
			r.HasPercent = true
		}
	}
	return r
}
