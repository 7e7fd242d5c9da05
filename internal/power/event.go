// Package power holds the domain types shared by every power backend and the
// transition detector: parsed change events, device identities, and the
// source/reader/lister contracts a backend must satisfy.
package power

import (
	"context"
	"strings"
)

// Property names carried by events.
const (
	PropOnline     = "Online"
	PropPercentage = "Percentage"
)

// Event is a single parsed property-change record for one device.
// Values are normalised to plain strings ("true", "45.0", "Charging").
type Event struct {
	Device string
	Props  map[string]string
}

// Lookup returns the value of the named property, if present.
func (e Event) Lookup(name string) (string, bool) {
	v, ok := e.Props[name]
	return v, ok
}

// Source is a continuous feed of power events. Run blocks, sending parsed
// events to out in delivery order, until ctx is cancelled or the underlying
// feed ends.
type Source interface {
	Run(ctx context.Context, out chan<- Event) error
}

// Reader queries the current integer charge percentage of a battery device.
// Any error means the sample is unavailable.
type Reader interface {
	Percentage(ctx context.Context, device string) (int, error)
}

// Lister enumerates the power device identifiers a backend knows about.
type Lister interface {
	Devices(ctx context.Context) ([]string, error)
}

// Backend bundles the three capabilities a power backend provides.
type Backend interface {
	Source
	Reader
	Lister
}

// Tracker is implemented by backends that synthesise their own events.
// Track is called once with the resolved devices, before Run, so emitted
// events carry identifiers the detector listens for. An error means the
// backend cannot observe one of the devices.
type Tracker interface {
	Track(devices Devices) error
}

// baseName returns the last '/'-separated element of id.
func baseName(id string) string {
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		return id[i+1:]
	}
	return id
}
