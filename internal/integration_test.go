// Package integration_test exercises the full pipeline:
//
//	FakePoller → nut.Backend → detector.Detector → notify.Dispatcher → Recorder + MQTTSink
//
// No real NUT server, desktop bus or MQTT broker is needed.
package integration_test

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/sweeney/power-notify/internal/detector"
	"github.com/sweeney/power-notify/internal/notify"
	"github.com/sweeney/power-notify/internal/nut"
	"github.com/sweeney/power-notify/internal/power"
	"github.com/sweeney/power-notify/internal/publisher"
)

// snapshot trims a CyberPower CP1500EPFCLCD poll to the variables the
// backend reads plus some it must ignore.
func snapshot(status, charge string) []nut.Variable {
	return []nut.Variable{
		{Name: "ups.model", Value: "CP1500EPFCLCD"},
		{Name: "ups.status", Value: status},
		{Name: "battery.charge", Value: charge},
		{Name: "battery.runtime", Value: "4920"},
		{Name: "ups.load", Value: "8"},
	}
}

// gatedPoller releases one poll per gate receive so each step can be
// observed end to end before the next one starts.
type gatedPoller struct {
	inner *nut.FakePoller
	gate  chan struct{}
	done  chan struct{}
}

func (g *gatedPoller) Poll() ([]nut.Variable, error) {
	select {
	case <-g.gate:
		return g.inner.Poll()
	case <-g.done:
		return nil, context.Canceled
	}
}

func (g *gatedPoller) Close() error { return nil }

// chanNotifier forwards to the dispatcher and then reports each kind.
type chanNotifier struct {
	next  detector.Notifier
	kinds chan notify.Kind
}

func (c *chanNotifier) Notify(n notify.Notification) {
	c.next.Notify(n)
	c.kinds <- n.Kind
}

func TestPowerCutSequence(t *testing.T) {
	poller := &gatedPoller{
		inner: &nut.FakePoller{Sequence: [][]nut.Variable{
			snapshot("OL", "100"),
			snapshot("OB DISCHRG", "100"),
			snapshot("OB DISCHRG", "19"),
			snapshot("OB DISCHRG LB", "9"),
			snapshot("OL CHRG LB", "9"),
			snapshot("OL CHRG", "81"),
		}},
		gate: make(chan struct{}),
		done: make(chan struct{}),
	}
	backend := nut.NewBackend(poller, "cyberpower", time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer close(poller.done)

	devices := power.Resolve(ctx, power.Devices{}, backend, nut.DeviceIDs("cyberpower"))
	if err := backend.Track(devices); err != nil {
		t.Fatalf("Track: %v", err)
	}

	rec := &notify.Recorder{}
	fpub := &publisher.FakePublisher{}
	mirror := publisher.NewMQTTSink(fpub, publisher.TopicsFor("power-notify", "nas"), "nas")
	dispatcher := notify.NewDispatcher(nil, rec, mirror)
	notifier := &chanNotifier{next: dispatcher, kinds: make(chan notify.Kind, 1)}

	det := detector.New(detector.DefaultThresholds, devices, backend, notifier, nil)
	det.OnStateChange(mirror.ObserveState)

	events := make(chan power.Event)
	detDone := make(chan struct{})
	go backend.Run(ctx, events) //nolint:errcheck
	go func() {
		det.Run(ctx, events)
		close(detDone)
	}()

	want := []notify.Kind{
		notify.KindBatteryHigh, // first sample is already above the high threshold
		notify.KindACDisconnected,
		notify.KindBatteryLow,
		notify.KindBatteryCritical,
		notify.KindACConnected,
		notify.KindBatteryHigh,
	}
	var got []notify.Kind
	for i := range want {
		poller.gate <- struct{}{}
		select {
		case k := <-notifier.kinds:
			got = append(got, k)
		case <-time.After(2 * time.Second):
			t.Fatalf("step %d: no notification; got %v", i+1, got)
		}
	}

	// State hooks run after the last notification; stop the detector so
	// everything it published is visible.
	cancel()
	<-detDone

	if !reflect.DeepEqual(got, want) {
		t.Errorf("kinds = %v\nwant    %v", got, want)
	}
	if !reflect.DeepEqual(rec.Kinds(), want) {
		t.Errorf("desktop sink kinds = %v, want %v", rec.Kinds(), want)
	}

	if n := len(fpub.OnTopic("power-notify/nas/event")); n != len(want) {
		t.Errorf("mirrored %d events, want %d", n, len(want))
	}
	msg, ok := fpub.Last("power-notify/nas/state")
	if !ok {
		t.Fatal("no retained state published")
	}
	var state publisher.StateMessage
	if err := json.Unmarshal([]byte(msg.Payload), &state); err != nil {
		t.Fatalf("state payload: %v", err)
	}
	if state.AC != publisher.Online || state.BatteryPercent == nil || *state.BatteryPercent != 81 {
		t.Errorf("final state = %+v", state)
	}

	final := det.State()
	if final.AC != detector.ACOnline || final.BatteryPercent != 81 {
		t.Errorf("detector state = %+v", final)
	}
}

// A steady UPS produces one startup battery sample and then silence.
func TestSteadyUPSIsQuiet(t *testing.T) {
	fp := &nut.FakePoller{Variables: snapshot("OL", "55")}
	backend := nut.NewBackend(fp, "ups", time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	events := make(chan power.Event, 64)
	if err := backend.Run(ctx, events); err == nil {
		t.Fatal("Run should stop with the context error")
	}
	close(events)

	var got []power.Event
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != 1 || got[0].Device != "nut:ups/battery" {
		t.Errorf("events = %+v, want a single battery sample", got)
	}
}
