package power

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// Markers used to classify enumerated device identifiers.
const (
	MarkerLinePower = "line_power"
	MarkerBattery   = "battery"
	MarkerDisplay   = "DisplayDevice"
)

// Devices identifies the AC source and the battery device. It is resolved
// once at startup and never changes afterwards.
type Devices struct {
	AC      string
	Battery string
}

// IsAC reports whether device refers to the AC source.
func (d Devices) IsAC(device string) bool {
	return matches(d.AC, device)
}

// IsBattery reports whether device refers to the battery.
func (d Devices) IsBattery(device string) bool {
	return matches(d.Battery, device)
}

// matches accepts an exact identifier or a configured short name equal to the
// last path element, so "battery_BAT0" matches
// "/org/freedesktop/UPower/devices/battery_BAT0".
func matches(id, device string) bool {
	if id == "" || device == "" {
		return false
	}
	return id == device || baseName(device) == id
}

// Resolve returns the device identities to track. Configured identifiers are
// returned unchanged when both are set, without consulting lister. Otherwise
// the lister output is classified by marker, first match wins, and anything
// still missing falls back to defaults. Enumeration failure is never fatal.
func Resolve(ctx context.Context, configured Devices, lister Lister, defaults Devices) Devices {
	if configured.AC != "" && configured.Battery != "" {
		return configured
	}

	found := Devices{}
	if lister != nil {
		ids, err := lister.Devices(ctx)
		if err != nil {
			logrus.WithError(err).Warn("device enumeration failed, using defaults")
		}
		found = classify(ids)
	}

	out := configured
	if out.AC == "" {
		out.AC = firstNonEmpty(found.AC, defaults.AC)
	}
	if out.Battery == "" {
		out.Battery = firstNonEmpty(found.Battery, defaults.Battery)
	}

	logrus.WithFields(logrus.Fields{
		"ac":      out.AC,
		"battery": out.Battery,
	}).Info("power devices resolved")
	return out
}

func classify(ids []string) Devices {
	var d Devices
	for _, id := range ids {
		id = strings.TrimSpace(id)
		switch {
		case id == "":
		case strings.Contains(id, MarkerLinePower):
			if d.AC == "" {
				d.AC = id
			}
		case strings.Contains(id, MarkerBattery), strings.Contains(id, MarkerDisplay):
			if d.Battery == "" {
				d.Battery = id
			}
		}
	}
	return d
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
