package detector

// Zone is the band a battery percentage falls into.
type Zone int

const (
	ZoneNormal Zone = iota
	ZoneLow
	ZoneCritical
	ZoneHigh
)

func (z Zone) String() string {
	switch z {
	case ZoneLow:
		return "low"
	case ZoneCritical:
		return "critical"
	case ZoneHigh:
		return "high"
	default:
		return "normal"
	}
}

// Thresholds bound the zones. Callers guarantee Critical < Low < High.
type Thresholds struct {
	Critical int
	Low      int
	High     int
	MinDelta int
}

// DefaultThresholds are used when nothing is configured.
var DefaultThresholds = Thresholds{Critical: 10, Low: 20, High: 80, MinDelta: 1}

// Classify returns the zone of percent; first match wins.
func (t Thresholds) Classify(percent int) Zone {
	switch {
	case percent < t.Critical:
		return ZoneCritical
	case percent < t.Low:
		return ZoneLow
	case percent > t.High:
		return ZoneHigh
	default:
		return ZoneNormal
	}
}

// enteredZone reports which zone, if any, percent has just entered given the
// previous raw reading. Each edge compares prev against that zone's own
// threshold, so moving within a zone never re-fires while crossing back over
// a boundary always does. known=false means there is no previous reading.
func (t Thresholds) enteredZone(prev int, known bool, percent int) (Zone, bool) {
	switch {
	case percent < t.Critical && (!known || prev >= t.Critical):
		return ZoneCritical, true
	case percent < t.Low && (!known || prev >= t.Low):
		return ZoneLow, true
	case percent > t.High && (!known || prev <= t.High):
		return ZoneHigh, true
	}
	return ZoneNormal, false
}
