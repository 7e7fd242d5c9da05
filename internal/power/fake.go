package power

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by FakeReader when a step has no value.
var ErrUnavailable = errors.New("percentage unavailable")

// FakeSource replays Events then returns Err (nil by default).
type FakeSource struct {
	Events []Event
	Err    error
}

// Run sends every pre-seeded event, honouring ctx cancellation.
func (f *FakeSource) Run(ctx context.Context, out chan<- Event) error {
	for _, ev := range f.Events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.Err
}

// FakeReader is a test double for Reader.
//
// Sequence mode: each call returns the next element; a negative element
// simulates a failed query. When the sequence is exhausted the last element is
// repeated. Set Err to fail every call.
type FakeReader struct {
	Sequence  []int
	Err       error
	CallCount int
	Devices   []string
}

// Percentage returns the value for the current call index.
func (f *FakeReader) Percentage(_ context.Context, device string) (int, error) {
	f.CallCount++
	f.Devices = append(f.Devices, device)
	if f.Err != nil {
		return 0, f.Err
	}
	if len(f.Sequence) == 0 {
		return 0, ErrUnavailable
	}
	idx := f.CallCount - 1
	if idx >= len(f.Sequence) {
		idx = len(f.Sequence) - 1
	}
	if f.Sequence[idx] < 0 {
		return 0, ErrUnavailable
	}
	return f.Sequence[idx], nil
}

// FakeLister returns IDs or Err and counts calls.
type FakeLister struct {
	IDs       []string
	Err       error
	CallCount int
}

// Devices implements Lister.
func (f *FakeLister) Devices(context.Context) ([]string, error) {
	f.CallCount++
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]string, len(f.IDs))
	copy(out, f.IDs)
	return out, nil
}
