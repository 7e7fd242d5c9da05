package nut

import (
	"context"
	"fmt"
	"time"

	gonut "github.com/robbiet480/go.nut"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/power-notify/internal/config"
)

// Client connects to a NUT upsd daemon and implements Poller.
// On Poll error the connection is marked stale; the next Poll reconnects
// before fetching variables.
type Client struct {
	cfg   config.NUTConfig
	conn  *gonut.Client
	stale bool
}

// NewClient dials upsd and returns a ready Client, or an error if the
// initial connection fails.
func NewClient(cfg config.NUTConfig) (*Client, error) {
	c := &Client{cfg: cfg}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := gonut.Connect(c.cfg.Host, c.cfg.Port)
	if err != nil {
		return fmt.Errorf("connecting to NUT at %s:%d: %w", c.cfg.Host, c.cfg.Port, err)
	}
	if c.cfg.Username != "" {
		if _, err := conn.Authenticate(c.cfg.Username, c.cfg.Password); err != nil {
			_, _ = conn.Disconnect()
			return fmt.Errorf("authenticating with NUT: %w", err)
		}
	}
	c.conn = &conn
	c.stale = false
	return nil
}

// Poll fetches the current variable set of the configured UPS.
func (c *Client) Poll() ([]Variable, error) {
	if c.stale || c.conn == nil {
		if err := c.connect(); err != nil {
			return nil, err
		}
	}

	upsList, err := c.conn.GetUPSList()
	if err != nil {
		c.stale = true
		return nil, fmt.Errorf("listing UPS: %w", err)
	}

	var target *gonut.UPS
	for i := range upsList {
		if upsList[i].Name == c.cfg.UPSName {
			target = &upsList[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("UPS %q not found in upsd", c.cfg.UPSName)
	}

	nutVars, err := target.GetVariables()
	if err != nil {
		c.stale = true
		return nil, fmt.Errorf("getting variables for %q: %w", c.cfg.UPSName, err)
	}

	vars := make([]Variable, len(nutVars))
	for i, v := range nutVars {
		vars[i] = Variable{Name: v.Name, Value: fmt.Sprintf("%v", v.Value)}
	}
	return vars, nil
}

// Close disconnects from upsd.
func (c *Client) Close() error {
	if c.conn != nil {
		_, err := c.conn.Disconnect()
		c.conn = nil
		return err
	}
	return nil
}

// Backoff bounds for Connect.
var (
	initialBackoff = time.Second
	maxBackoff     = 60 * time.Second
)

// DialFunc opens a Poller for cfg.
type DialFunc func(cfg config.NUTConfig) (Poller, error)

// Dial is the DialFunc used outside tests.
func Dial(cfg config.NUTConfig) (Poller, error) {
	return NewClient(cfg)
}

// Connect dials upsd with exponential backoff (1 s, doubling, 60 s cap).
// Each sleep is interruptible via ctx cancellation.
func Connect(ctx context.Context, cfg config.NUTConfig, dial DialFunc) (Poller, error) {
	backoff := initialBackoff
	for {
		p, err := dial(cfg)
		if err == nil {
			logrus.WithFields(logrus.Fields{
				"host": cfg.Host,
				"port": cfg.Port,
				"ups":  cfg.UPSName,
			}).Info("connected to NUT")
			return p, nil
		}
		logrus.WithError(err).WithField("retry_in", backoff).Warn("NUT connection failed")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
