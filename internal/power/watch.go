package power

import "strconv"

// Reading is one polled observation of an AC source and a battery.
type Reading struct {
	Online     bool
	HasOnline  bool
	Percent    int
	HasPercent bool
}

// Watch turns successive polled readings into change events, so polling
// backends feed the detector the same way signal-driven ones do.
//
// The first AC reading only establishes a baseline: a daemon starting on
// mains power should not announce "charger connected". The first battery
// reading is always reported so an already-low battery is noticed.
type Watch struct {
	devices    Devices
	online     bool
	hasOnline  bool
	percent    int
	hasPercent bool
}

// NewWatch returns a Watch that emits events for devices.
func NewWatch(devices Devices) *Watch {
	return &Watch{devices: devices}
}

// Update records r and returns the events describing what changed, AC first.
func (w *Watch) Update(r Reading) []Event {
	var events []Event
	if r.HasOnline {
		if w.hasOnline && r.Online != w.online {
			events = append(events, Event{
				Device: w.devices.AC,
				Props:  map[string]string{PropOnline: strconv.FormatBool(r.Online)},
			})
		}
		w.online, w.hasOnline = r.Online, true
	}
	if r.HasPercent {
		if !w.hasPercent || r.Percent != w.percent {
			events = append(events, Event{
				Device: w.devices.Battery,
				Props:  map[string]string{PropPercentage: strconv.Itoa(r.Percent)},
			})
		}
		w.percent, w.hasPercent = r.Percent, true
	}
	return events
}
