package publisher

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/power-notify/internal/config"
)

// ErrTimeout is returned when the broker does not complete an operation
// within the publisher's timeout.
var ErrTimeout = errors.New("mqtt operation timed out")

const (
	keepAlive      = 60 * time.Second
	connectTimeout = 10 * time.Second
	disconnectMS   = 250
)

// MQTTPublisher implements Publisher on a paho client. Every blocking call
// is bounded by timeout, so a broker that vanishes mid-publish costs the
// caller at most that long.
type MQTTPublisher struct {
	client  mqtt.Client
	broker  string
	qos     byte
	timeout time.Duration
}

// NewMQTTPublisher connects to cfg.Broker. The broker publishes a retained
// Offline to willTopic if the connection drops without a goodbye.
func NewMQTTPublisher(cfg config.MQTTConfig, willTopic string, timeout time.Duration) (*MQTTPublisher, error) {
	opts, err := clientOptions(cfg, willTopic, timeout)
	if err != nil {
		return nil, err
	}
	p := &MQTTPublisher{
		client:  mqtt.NewClient(opts),
		broker:  cfg.Broker,
		qos:     cfg.QOS,
		timeout: timeout,
	}
	if err := p.await(p.client.Connect(), connectTimeout); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %q: %w", cfg.Broker, err)
	}
	return p, nil
}

// clientOptions builds the paho options. timeout also caps how long a
// publish may wait to be handed to the network goroutine.
func clientOptions(cfg config.MQTTConfig, willTopic string, timeout time.Duration) (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout).
		SetWriteTimeout(timeout).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetWill(willTopic, Offline, cfg.QOS, true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	if cfg.TLSCACert != "" {
		tlsCfg, err := newTLSConfig(cfg.TLSCACert)
		if err != nil {
			return nil, fmt.Errorf("mqtt tls: %w", err)
		}
		opts.SetTLSConfig(tlsCfg)
	}

	log := logrus.WithField("broker", cfg.Broker)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost")
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Debug("MQTT reconnecting")
	})
	return opts, nil
}

// await waits up to d for token. A token still pending at the deadline is
// abandoned; paho completes or discards it in the background.
func (p *MQTTPublisher) await(token mqtt.Token, d time.Duration) error {
	if !token.WaitTimeout(d) {
		return fmt.Errorf("%w after %s", ErrTimeout, d)
	}
	return token.Error()
}

// Publish sends msg and waits for the broker to acknowledge it.
func (p *MQTTPublisher) Publish(msg Message) error {
	err := p.await(p.client.Publish(msg.Topic, p.qos, msg.Retained, msg.Payload), p.timeout)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"broker": p.broker,
			"topic":  msg.Topic,
		}).WithError(err).Debug("MQTT publish failed")
	}
	return err
}

// Close disconnects, giving in-flight work a short grace period.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(disconnectMS)
	return nil
}

// newTLSConfig trusts the PEM certificates in caFile on top of the
// system roots.
func newTLSConfig(caFile string) (*tls.Config, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("reading CA file: %w", err)
	}
	roots, err := x509.SystemCertPool()
	if err != nil || roots == nil {
		roots = x509.NewCertPool()
	}
	if ok := roots.AppendCertsFromPEM(pem); !ok {
		return nil, fmt.Errorf("no PEM certificates in %q", caFile)
	}
	return &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12}, nil
}
