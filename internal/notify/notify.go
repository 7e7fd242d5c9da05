// Package notify delivers user-facing notifications for power transitions.
// Every delivery path is best-effort: failures are logged, never returned to
// the transition detector.
package notify

import (
	"github.com/sirupsen/logrus"
)

// Kind identifies which transition a notification reports.
type Kind string

const (
	KindACConnected     Kind = "ac-connected"
	KindACDisconnected  Kind = "ac-disconnected"
	KindBatteryLow      Kind = "battery-low"
	KindBatteryCritical Kind = "battery-critical"
	KindBatteryHigh     Kind = "battery-high"
)

// Urgency levels as understood by the freedesktop notification spec.
type Urgency byte

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

// String returns the notify-send spelling of u.
func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyCritical:
		return "critical"
	default:
		return "normal"
	}
}

// Notification is produced once by the detector and consumed once by the
// dispatcher. Percent is -1 for AC transitions.
type Notification struct {
	Kind    Kind
	Title   string
	Body    string
	Sound   string
	Urgency Urgency
	Percent int
}

// Sink delivers a notification somewhere: the desktop, a broker, a test.
type Sink interface {
	Send(n Notification) error
}

// Dispatcher fans a notification out to every sink and then plays its sound.
type Dispatcher struct {
	sinks  []Sink
	player *SoundPlayer
}

// NewDispatcher returns a Dispatcher. player may be nil to disable sound.
func NewDispatcher(player *SoundPlayer, sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, player: player}
}

// AddSink registers an additional sink.
func (d *Dispatcher) AddSink(s Sink) {
	d.sinks = append(d.sinks, s)
}

// Notify delivers n. It never fails and never blocks on sound playback.
func (d *Dispatcher) Notify(n Notification) {
	for _, s := range d.sinks {
		if err := s.Send(n); err != nil {
			logrus.WithFields(logrus.Fields{
				"kind":  n.Kind,
				"title": n.Title,
			}).WithError(err).Warn("notification dispatch failed")
		}
	}
	if d.player != nil {
		d.player.Play(n.Sound)
	}
}
