package publisher

// FakePublisher records every published Message so tests can inspect them.
type FakePublisher struct {
	Messages     []Message
	PublishError error
	Closed       bool
}

// Publish appends the message to the recorded list, or returns PublishError
// if set.
func (f *FakePublisher) Publish(msg Message) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Messages = append(f.Messages, msg)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// OnTopic returns every recorded message published to topic, in order.
func (f *FakePublisher) OnTopic(topic string) []Message {
	var out []Message
	for _, m := range f.Messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the most recent Message published to topic.
func (f *FakePublisher) Last(topic string) (Message, bool) {
	msgs := f.OnTopic(topic)
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}
