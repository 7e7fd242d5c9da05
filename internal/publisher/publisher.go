// Package publisher mirrors power transitions to an MQTT broker.
package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/power-notify/internal/detector"
	"github.com/sweeney/power-notify/internal/notify"
)

// Message is a single MQTT publish request.
type Message struct {
	Topic    string
	Payload  string
	Retained bool
}

// Publisher is the minimal interface the rest of the codebase uses to send
// MQTT messages. The real MQTT client and FakePublisher both implement it.
type Publisher interface {
	Publish(msg Message) error
	Close() error
}

// Availability payloads.
const (
	Online  = "online"
	Offline = "offline"
)

// Topics are the MQTT topics one daemon instance publishes to.
type Topics struct {
	Event        string
	State        string
	Availability string
}

// TopicsFor returns the topics under <prefix>/<host>/.
func TopicsFor(prefix, host string) Topics {
	base := fmt.Sprintf("%s/%s", prefix, host)
	return Topics{
		Event:        base + "/event",
		State:        base + "/state",
		Availability: base + "/availability",
	}
}

// EventMessage is the JSON payload for one transition.
type EventMessage struct {
	Timestamp string `json:"timestamp"`
	Host      string `json:"host"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Urgency   string `json:"urgency"`
	Percent   *int   `json:"percent,omitempty"`
}

// StateMessage is the retained JSON payload describing the remembered power
// state. BatteryPercent is null until the first battery sample.
type StateMessage struct {
	Timestamp      string `json:"timestamp"`
	Host           string `json:"host"`
	AC             string `json:"ac"`
	BatteryPercent *int   `json:"battery_percent"`
}

// MQTTSink implements notify.Sink by publishing every transition, and keeps
// the retained state topic in step with the detector.
type MQTTSink struct {
	pub    Publisher
	topics Topics
	host   string
	now    func() time.Time
}

// NewMQTTSink returns a sink publishing through pub.
func NewMQTTSink(pub Publisher, topics Topics, host string) *MQTTSink {
	return &MQTTSink{
		pub:    pub,
		topics: topics,
		host:   host,
		now:    time.Now,
	}
}

func (s *MQTTSink) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// Announce publishes the retained "online" availability message.
func (s *MQTTSink) Announce() error {
	return s.pub.Publish(Message{Topic: s.topics.Availability, Payload: Online, Retained: true})
}

// Send implements notify.Sink.
func (s *MQTTSink) Send(n notify.Notification) error {
	ev := EventMessage{
		Timestamp: s.timestamp(),
		Host:      s.host,
		Kind:      string(n.Kind),
		Title:     n.Title,
		Body:      n.Body,
		Urgency:   n.Urgency.String(),
	}
	if n.Percent >= 0 {
		p := n.Percent
		ev.Percent = &p
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	if err := s.pub.Publish(Message{Topic: s.topics.Event, Payload: string(payload)}); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

// PublishState publishes st to the retained state topic.
func (s *MQTTSink) PublishState(st detector.State) error {
	msg := StateMessage{
		Timestamp: s.timestamp(),
		Host:      s.host,
		AC:        st.AC.String(),
	}
	if st.BatteryPercent != detector.UnknownPercent {
		p := st.BatteryPercent
		msg.BatteryPercent = &p
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}
	if err := s.pub.Publish(Message{Topic: s.topics.State, Payload: string(payload), Retained: true}); err != nil {
		return fmt.Errorf("publishing state: %w", err)
	}
	return nil
}

// ObserveState is a detector state hook. Failures are logged and dropped.
func (s *MQTTSink) ObserveState(st detector.State) {
	if err := s.PublishState(st); err != nil {
		logrus.WithError(err).Warn("mqtt state update failed")
	}
}

// Close publishes the retained "offline" availability message and closes
// the publisher.
func (s *MQTTSink) Close() error {
	pubErr := s.pub.Publish(Message{Topic: s.topics.Availability, Payload: Offline, Retained: true})
	closeErr := s.pub.Close()
	if pubErr != nil {
		return fmt.Errorf("publishing offline announcement: %w", pubErr)
	}
	return closeErr
}
