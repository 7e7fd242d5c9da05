package upower

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/power-notify/internal/power"
)

// External commands this backend depends on.
const (
	GdbusCommand  = "gdbus"
	UPowerCommand = "upower"
)

// Defaults are the identifiers used when enumeration finds nothing.
var Defaults = power.Devices{
	AC:      "/org/freedesktop/UPower/devices/line_power_AC",
	Battery: "/org/freedesktop/UPower/devices/battery_BAT0",
}

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w (%s)", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// CommandClient enumerates devices and reads percentages via the upower CLI.
type CommandClient struct {
	timeout time.Duration
	run     Runner
}

// NewCommandClient returns a client whose queries are bounded by timeout.
func NewCommandClient(timeout time.Duration) *CommandClient {
	return &CommandClient{timeout: timeout, run: runOutput}
}

// Devices implements power.Lister using `upower -e`.
func (c *CommandClient) Devices(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.run(ctx, UPowerCommand, "-e")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			ids = append(ids, line)
		}
	}
	return ids, nil
}

// Percentage implements power.Reader using `upower -i <device>`.
func (c *CommandClient) Percentage(ctx context.Context, device string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.run(ctx, UPowerCommand, "-i", device)
	if err != nil {
		return 0, err
	}
	return ParseInfoPercentage(string(out))
}

// ParseInfoPercentage extracts the "percentage:" field from `upower -i` output.
func ParseInfoPercentage(info string) (int, error) {
	for _, line := range strings.Split(info, "\n") {
		key, val, found := strings.Cut(strings.TrimSpace(line), ":")
		if !found || strings.TrimSpace(key) != "percentage" {
			continue
		}
		return power.ParsePercent(val)
	}
	return 0, fmt.Errorf("no percentage field in upower output")
}

// CommandBackend implements power.Backend with the gdbus and upower tools.
type CommandBackend struct {
	*CommandMonitor
	*CommandClient
}

// NewCommandBackend returns a backend whose queries are bounded by timeout.
func NewCommandBackend(timeout time.Duration) *CommandBackend {
	return &CommandBackend{
		CommandMonitor: NewCommandMonitor(),
		CommandClient:  NewCommandClient(timeout),
	}
}

// CommandMonitor streams UPower property changes from `gdbus monitor`.
type CommandMonitor struct {
	start func(ctx context.Context) (io.ReadCloser, func() error, error)
}

// NewCommandMonitor returns a monitor for the system-bus UPower service.
func NewCommandMonitor() *CommandMonitor {
	return &CommandMonitor{start: startGdbus}
}

func startGdbus(ctx context.Context) (io.ReadCloser, func() error, error) {
	cmd := exec.CommandContext(ctx, GdbusCommand, "monitor", "--system", "--dest", "org.freedesktop.UPower")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("gdbus stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting gdbus monitor: %w", err)
	}
	return stdout, cmd.Wait, nil
}

// Run implements power.Source. It returns when ctx is cancelled or the
// monitor process exits.
func (m *CommandMonitor) Run(ctx context.Context, out chan<- power.Event) error {
	stdout, wait, err := m.start(ctx)
	if err != nil {
		return err
	}

	scanErr := scanEvents(ctx, stdout, out)
	_ = stdout.Close()
	waitErr := wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if scanErr != nil {
		return scanErr
	}
	if waitErr != nil {
		return fmt.Errorf("gdbus monitor exited: %w", waitErr)
	}
	return fmt.Errorf("gdbus monitor exited")
}

// scanEvents parses r line by line and forwards property changes to out.
func scanEvents(ctx context.Context, r io.Reader, out chan<- power.Event) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		ev, ok := ParseMonitorLine(scanner.Text())
		if !ok {
			logrus.WithField("line", scanner.Text()).Trace("ignoring monitor line")
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}
