// Package detector turns the raw power event stream into user-relevant
// transitions. It owns the remembered AC and battery state and is driven by
// exactly one goroutine, so the state needs no locking.
package detector

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/power-notify/internal/notify"
	"github.com/sweeney/power-notify/internal/power"
)

// UnknownPercent is the remembered battery percentage before the first sample.
const UnknownPercent = -1

// Notifier receives notify-worthy transitions. Implementations must not fail.
type Notifier interface {
	Notify(n notify.Notification)
}

// ACState is the remembered AC adapter state.
type ACState int

const (
	ACUnknown ACState = iota
	ACOnline
	ACOffline
)

func (s ACState) String() string {
	switch s {
	case ACOnline:
		return "online"
	case ACOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// State is the remembered power state.
type State struct {
	AC             ACState
	BatteryPercent int
}

// Sounds maps notification kinds to audio files.
type Sounds map[notify.Kind]string

// Detector is the transition state machine.
type Detector struct {
	thresholds Thresholds
	devices    power.Devices
	reader     power.Reader
	notifier   Notifier
	sounds     Sounds
	state      State
	onChange   func(State)
}

// New returns a Detector in the unknown state.
func New(th Thresholds, devices power.Devices, reader power.Reader, notifier Notifier, sounds Sounds) *Detector {
	return &Detector{
		thresholds: th,
		devices:    devices,
		reader:     reader,
		notifier:   notifier,
		sounds:     sounds,
		state:      State{AC: ACUnknown, BatteryPercent: UnknownPercent},
	}
}

// State returns a copy of the remembered state.
func (d *Detector) State() State {
	return d.state
}

// OnStateChange registers fn to be called with the remembered state after
// each handled event that changed it. fn runs on the detector goroutine.
func (d *Detector) OnStateChange(fn func(State)) {
	d.onChange = fn
}

func (d *Detector) reportState(before State) {
	if d.onChange != nil && d.state != before {
		d.onChange(d.state)
	}
}

// Run consumes events in delivery order until ctx is done or events closes.
func (d *Detector) Run(ctx context.Context, events <-chan power.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.Handle(ctx, ev)
		}
	}
}

// Handle routes one event. Events for untracked devices, and AC events that
// carry no parseable online flag, are ignored.
func (d *Detector) Handle(ctx context.Context, ev power.Event) {
	defer d.reportState(d.state)

	switch {
	case d.devices.IsAC(ev.Device):
		raw, ok := ev.Lookup(power.PropOnline)
		if !ok {
			return
		}
		online, err := strconv.ParseBool(raw)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"device": ev.Device,
				"value":  raw,
			}).Debug("ignoring unparseable online value")
			return
		}
		if n, fire := d.ObserveAC(online); fire {
			d.notifier.Notify(n)
		}

	case d.devices.IsBattery(ev.Device):
		percent, err := d.reader.Percentage(ctx, d.devices.Battery)
		if err != nil {
			logrus.WithField("device", d.devices.Battery).WithError(err).Warn("percentage unavailable, skipping event")
			return
		}
		if n, fire := d.ObservePercent(percent); fire {
			d.notifier.Notify(n)
		}
	}
}

// ObserveAC records an AC reading and returns the notification to emit, if
// the reading differs from the remembered state.
func (d *Detector) ObserveAC(online bool) (notify.Notification, bool) {
	next := ACOffline
	if online {
		next = ACOnline
	}
	prev := d.state.AC
	if prev == next {
		logrus.WithField("ac", next).Trace("ac state unchanged")
		return notify.Notification{}, false
	}
	d.state.AC = next

	logrus.WithFields(logrus.Fields{
		"from": prev,
		"to":   next,
	}).Info("ac state changed")

	if online {
		return d.build(notify.KindACConnected, "Charger connected", "AC power connected", notify.UrgencyNormal, UnknownPercent), true
	}
	return d.build(notify.KindACDisconnected, "Charger disconnected", "Running on battery power", notify.UrgencyNormal, UnknownPercent), true
}

// ObservePercent records a battery sample and returns the notification to
// emit, if the sample enters the critical, low or high zone.
func (d *Detector) ObservePercent(percent int) (notify.Notification, bool) {
	prev := d.state.BatteryPercent
	known := prev != UnknownPercent
	d.state.BatteryPercent = percent

	fields := logrus.Fields{
		"previous": prev,
		"percent":  percent,
	}

	if known && abs(prev-percent) < d.thresholds.MinDelta {
		logrus.WithFields(fields).Trace("battery change below min delta")
		return notify.Notification{}, false
	}

	zone, entered := d.thresholds.enteredZone(prev, known, percent)
	fields["zone"] = d.thresholds.Classify(percent)
	if !entered {
		logrus.WithFields(fields).Debug("battery sample")
		return notify.Notification{}, false
	}
	logrus.WithFields(fields).Info("battery zone entered")

	body := fmt.Sprintf("Battery at %d%%", percent)
	switch zone {
	case ZoneCritical:
		return d.build(notify.KindBatteryCritical, "Battery critical", body+", plug in now", notify.UrgencyCritical, percent), true
	case ZoneLow:
		return d.build(notify.KindBatteryLow, "Battery low", body, notify.UrgencyNormal, percent), true
	default:
		return d.build(notify.KindBatteryHigh, "Battery charged", body+", consider unplugging", notify.UrgencyNormal, percent), true
	}
}

func (d *Detector) build(kind notify.Kind, title, body string, urgency notify.Urgency, percent int) notify.Notification {
	return notify.Notification{
		Kind:    kind,
		Title:   title,
		Body:    body,
		Sound:   d.sounds[kind],
		Urgency: urgency,
		Percent: percent,
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
