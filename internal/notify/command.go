package notify

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// NotifySendCommand is the desktop notification dispatcher binary.
const NotifySendCommand = "notify-send"

// CommandRunner runs an external command to completion.
type CommandRunner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", name, err, out)
	}
	return nil
}

// CommandSink sends desktop notifications with notify-send.
type CommandSink struct {
	appName string
	timeout time.Duration
	run     CommandRunner
}

// NewCommandSink returns a CommandSink; each invocation is bounded by timeout.
func NewCommandSink(appName string, timeout time.Duration) *CommandSink {
	return &CommandSink{appName: appName, timeout: timeout, run: runCommand}
}

// Send implements Sink.
func (c *CommandSink) Send(n Notification) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.run(ctx, NotifySendCommand, c.args(n)...)
}

func (c *CommandSink) args(n Notification) []string {
	return []string{
		"--app-name", c.appName,
		"--urgency", n.Urgency.String(),
		"--icon", iconFor(n.Kind),
		n.Title,
		n.Body,
	}
}

// iconFor returns a freedesktop icon name for k.
func iconFor(k Kind) string {
	switch k {
	case KindACConnected:
		return "ac-adapter"
	case KindACDisconnected:
		return "battery"
	case KindBatteryCritical:
		return "battery-caution"
	case KindBatteryLow:
		return "battery-low"
	case KindBatteryHigh:
		return "battery-full"
	}
	return "dialog-information"
}
