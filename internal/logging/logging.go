// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"log/syslog"
	"os"

	"github.com/sirupsen/logrus"
	lsyslog "github.com/sirupsen/logrus/hooks/syslog"
)

// TimestampFormat is the ISO-8601 layout used for stdout log lines.
const TimestampFormat = "2006-01-02T15:04:05"

// Output names accepted by Setup.
const (
	OutputStdout = "stdout"
	OutputSyslog = "syslog"
)

// newSyslogHook is swapped in tests; the real hook needs a running syslogd.
var newSyslogHook = func(tag string) (logrus.Hook, error) {
	return lsyslog.NewSyslogHook("", "", syslog.LOG_INFO|syslog.LOG_USER, tag)
}

// Setup configures logger to write either timestamped text lines to stdout or
// forward entries to the system logger under tag.
func Setup(logger *logrus.Logger, output, level, tag string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}
	logger.SetLevel(lvl)

	switch output {
	case OutputStdout, "":
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: TimestampFormat,
			DisableColors:   true,
		})
	case OutputSyslog:
		hook, err := newSyslogHook(tag)
		if err != nil {
			return fmt.Errorf("connecting to syslog: %w", err)
		}
		logger.AddHook(hook)
		logger.SetOutput(io.Discard)
		// syslog stamps entries itself
		logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	default:
		return fmt.Errorf("unknown log output %q", output)
	}
	return nil
}
