package power

import "testing"

var watchDevices = Devices{AC: "test:ac", Battery: "test:bat"}

func TestWatch_FirstACReadingIsBaseline(t *testing.T) {
	w := NewWatch(watchDevices)
	if evs := w.Update(Reading{Online: true, HasOnline: true}); len(evs) != 0 {
		t.Fatalf("first AC reading emitted %v, want nothing", evs)
	}
	evs := w.Update(Reading{Online: false, HasOnline: true})
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	if evs[0].Device != "test:ac" || evs[0].Props[PropOnline] != "false" {
		t.Errorf("event = %+v", evs[0])
	}
	if evs := w.Update(Reading{Online: false, HasOnline: true}); len(evs) != 0 {
		t.Errorf("unchanged AC emitted %v", evs)
	}
}

func TestWatch_FirstBatteryReadingIsReported(t *testing.T) {
	w := NewWatch(watchDevices)
	evs := w.Update(Reading{Percent: 42, HasPercent: true})
	if len(evs) != 1 || evs[0].Device != "test:bat" || evs[0].Props[PropPercentage] != "42" {
		t.Fatalf("events = %+v", evs)
	}
	if evs := w.Update(Reading{Percent: 42, HasPercent: true}); len(evs) != 0 {
		t.Errorf("unchanged percent emitted %v", evs)
	}
	if evs := w.Update(Reading{Percent: 41, HasPercent: true}); len(evs) != 1 {
		t.Errorf("changed percent emitted %d events, want 1", len(evs))
	}
}

func TestWatch_MissingFieldsKeepPreviousState(t *testing.T) {
	w := NewWatch(watchDevices)
	w.Update(Reading{Online: true, HasOnline: true, Percent: 80, HasPercent: true})

	if evs := w.Update(Reading{}); len(evs) != 0 {
		t.Errorf("empty reading emitted %v", evs)
	}
	evs := w.Update(Reading{Online: false, HasOnline: true, Percent: 79, HasPercent: true})
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if evs[0].Device != "test:ac" || evs[1].Device != "test:bat" {
		t.Errorf("order = [%s %s], want AC then battery", evs[0].Device, evs[1].Device)
	}
}
