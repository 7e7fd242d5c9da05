// Command power-notify watches AC and battery state and raises desktop
// notifications when the charger is plugged or unplugged and when the
// battery enters the critical, low or high zone.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/power-notify/internal/config"
	"github.com/sweeney/power-notify/internal/detector"
	"github.com/sweeney/power-notify/internal/lock"
	"github.com/sweeney/power-notify/internal/logging"
	"github.com/sweeney/power-notify/internal/notify"
	"github.com/sweeney/power-notify/internal/nut"
	"github.com/sweeney/power-notify/internal/power"
	"github.com/sweeney/power-notify/internal/publisher"
	"github.com/sweeney/power-notify/internal/sysfs"
	"github.com/sweeney/power-notify/internal/upower"
)

var (
	errUsage             = errors.New("usage error")
	errMissingDependency = errors.New("missing dependency")
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run executes the root command and maps its outcome to an exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "Error: %v\n%s", err, cmd.UsageString())
	case err != nil && !errors.Is(err, lock.ErrAlreadyRunning):
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, lock.ErrAlreadyRunning):
		return 0
	case errors.Is(err, errUsage), errors.Is(err, errMissingDependency):
		return 2
	default:
		return 1
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   config.AppName,
		Short: "Desktop notifications for charger and battery transitions",
		Long: `power-notify watches the AC adapter and battery and notifies when the
charger is connected or disconnected and when the battery becomes
critical, low, or charged past the high threshold.

Configuration is read from --config, or the first existing file of
$XDG_CONFIG_HOME/power-notify/config.toml and /etc/power-notify/config.toml.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%w: unexpected argument %q", errUsage, args[0])
			}
			return nil
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths := config.DefaultPaths()
			if configPath != "" {
				if _, err := os.Stat(configPath); err != nil {
					return fmt.Errorf("config file: %w", err)
				}
				paths = []string{configPath}
			}
			cfg, err := config.Load(paths...)
			if err != nil {
				return err
			}
			return daemon(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})
	return cmd
}

// daemon runs the notification loop until ctx is cancelled.
func daemon(ctx context.Context, cfg *config.Config) error {
	if err := logging.Setup(logrus.StandardLogger(), cfg.Log.Output, cfg.Log.Level, config.AppName); err != nil {
		return err
	}

	pidFile, pid, err := lock.Acquire(lock.DefaultPath(config.AppName))
	if errors.Is(err, lock.ErrAlreadyRunning) {
		logrus.WithField("pid", pid).Info("already running, exiting")
		return err
	}
	if err != nil {
		return err
	}
	defer pidFile.Release() //nolint:errcheck

	if err := checkDependencies(cfg, exec.LookPath); err != nil {
		logrus.WithError(err).Error("cannot start")
		return err
	}

	logrus.WithFields(logrus.Fields{
		"backend":  cfg.Backend,
		"notifier": cfg.Notifier,
		"critical": cfg.Thresholds.Critical,
		"low":      cfg.Thresholds.Low,
		"high":     cfg.Thresholds.High,
	}).Info("power-notify starting")

	player := notify.NewSoundPlayer(cfg.AudioPlayer, nil)

	backend, closeBackend, defaults, err := newBackend(ctx, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer closeBackend() //nolint:errcheck

	configured := power.Devices{AC: cfg.ACDevice, Battery: cfg.BatteryDevice}
	devices := power.Resolve(ctx, configured, backend, defaults)
	if t, ok := backend.(power.Tracker); ok {
		if err := t.Track(devices); err != nil {
			logrus.WithError(err).Error("configured devices cannot be tracked")
			return fmt.Errorf("power devices: %w", err)
		}
	}

	desktop, closeDesktop, err := newDesktopSink(cfg)
	if err != nil {
		return err
	}
	defer closeDesktop() //nolint:errcheck
	dispatcher := notify.NewDispatcher(player, desktop)

	var mirror *publisher.MQTTSink
	if cfg.MQTT.Enabled {
		if mirror = newMirror(cfg.MQTT, cfg.QueryTimeout.Duration); mirror != nil {
			defer mirror.Close() //nolint:errcheck
			dispatcher.AddSink(mirror)
		}
	}

	det := detector.New(thresholdsFrom(cfg.Thresholds), devices, backend, dispatcher, soundsFrom(cfg.Sounds))
	if mirror != nil {
		det.OnStateChange(mirror.ObserveState)
	}
	err = runLoop(ctx, backend, det)

	logrus.WithField("state", fmt.Sprintf("%+v", det.State())).Info("shutting down")
	return err
}

// runLoop feeds events from src to det until ctx is cancelled or src ends.
// A source ending on its own is an error.
func runLoop(ctx context.Context, src power.Source, det *detector.Detector) error {
	events := make(chan power.Event, 16)
	srcErr := make(chan error, 1)
	go func() {
		srcErr <- src.Run(ctx, events)
		close(events)
	}()

	det.Run(ctx, events)
	err := <-srcErr

	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		err = errors.New("event source ended")
	}
	return fmt.Errorf("power events: %w", err)
}

// requiredCommands lists the executables the configured backend and
// notifier cannot run without.
func requiredCommands(cfg *config.Config) []string {
	var cmds []string
	if cfg.Backend == config.BackendUPowerCmd {
		cmds = append(cmds, upower.GdbusCommand, upower.UPowerCommand)
	}
	if cfg.Notifier == config.NotifierNotifySend {
		cmds = append(cmds, notify.NotifySendCommand)
	}
	return cmds
}

func checkDependencies(cfg *config.Config, lookPath func(string) (string, error)) error {
	var missing []string
	for _, name := range requiredCommands(cfg) {
		if _, err := lookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s not found in PATH", errMissingDependency, strings.Join(missing, ", "))
	}
	return nil
}

func nopClose() error { return nil }

// newBackend builds the configured power backend, its cleanup and the
// device identifiers to fall back on when enumeration finds nothing.
func newBackend(ctx context.Context, cfg *config.Config) (power.Backend, func() error, power.Devices, error) {
	switch cfg.Backend {
	case config.BackendUPowerDBus:
		b, err := upower.NewDBusBackend(cfg.QueryTimeout.Duration)
		if err != nil {
			return nil, nil, power.Devices{}, err
		}
		return b, b.Close, upower.Defaults, nil

	case config.BackendNUT:
		poller, err := nut.Connect(ctx, cfg.NUT, nut.Dial)
		if err != nil {
			return nil, nil, power.Devices{}, err
		}
		b := nut.NewBackend(poller, cfg.NUT.UPSName, cfg.NUT.PollInterval.Duration)
		return b, poller.Close, nut.DeviceIDs(cfg.NUT.UPSName), nil

	case config.BackendSysfs:
		return sysfs.NewBackend(cfg.Sysfs.PollInterval.Duration), nopClose, sysfs.Defaults, nil

	default:
		return upower.NewCommandBackend(cfg.QueryTimeout.Duration), nopClose, upower.Defaults, nil
	}
}

func newDesktopSink(cfg *config.Config) (notify.Sink, func() error, error) {
	if cfg.Notifier == config.NotifierDBus {
		s, err := notify.NewDBusSink(config.AppName)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return notify.NewCommandSink(config.AppName, cfg.QueryTimeout.Duration), nopClose, nil
}

// newMirror connects the MQTT mirror. The mirror is optional: a broker that
// cannot be reached is logged and the daemon runs without it. Each publish
// waits at most timeout.
func newMirror(cfg config.MQTTConfig, timeout time.Duration) *publisher.MQTTSink {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	topics := publisher.TopicsFor(cfg.TopicPrefix, host)

	pub, err := publisher.NewMQTTPublisher(cfg, topics.Availability, timeout)
	if err != nil {
		logrus.WithError(err).Warn("MQTT mirror disabled")
		return nil
	}
	sink := publisher.NewMQTTSink(pub, topics, host)
	if err := sink.Announce(); err != nil {
		logrus.WithError(err).Warn("publishing online announcement")
	}
	return sink
}

func thresholdsFrom(t config.Thresholds) detector.Thresholds {
	return detector.Thresholds{
		Critical: t.Critical,
		Low:      t.Low,
		High:     t.High,
		MinDelta: t.MinDelta,
	}
}

func soundsFrom(s config.Sounds) detector.Sounds {
	return detector.Sounds{
		notify.KindACConnected:     s.ACConnected,
		notify.KindACDisconnected:  s.ACDisconnected,
		notify.KindBatteryLow:      s.Low,
		notify.KindBatteryCritical: s.Critical,
		notify.KindBatteryHigh:     s.High,
	}
}
