package notify

// Recorder records every notification it is given so tests can inspect them.
// It satisfies both Sink and the detector's notifier contract.
type Recorder struct {
	Sent      []Notification
	SendError error
}

// Send appends n, then returns SendError (nil by default).
func (r *Recorder) Send(n Notification) error {
	r.Sent = append(r.Sent, n)
	return r.SendError
}

// Notify appends n.
func (r *Recorder) Notify(n Notification) {
	r.Sent = append(r.Sent, n)
}

// Kinds returns the kinds of all recorded notifications in order.
func (r *Recorder) Kinds() []Kind {
	out := make([]Kind, len(r.Sent))
	for i, n := range r.Sent {
		out[i] = n.Kind
	}
	return out
}

// Reset clears all recorded state so the fake can be reused between sub-tests.
func (r *Recorder) Reset() {
	r.Sent = nil
	r.SendError = nil
}
