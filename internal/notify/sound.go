package notify

import (
	"os"
	"os/exec"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// SoundPlayer launches an external audio player for notification sounds.
// Availability is probed once; a missing player, or one that fails to
// start, disables sound for the rest of the run.
type SoundPlayer struct {
	argv    []string
	enabled atomic.Bool
	start   func(*exec.Cmd) error
}

// NewSoundPlayer parses command (e.g. "paplay" or "pw-play --volume 0.6") and
// checks that its executable exists using lookPath (exec.LookPath if nil).
func NewSoundPlayer(command string, lookPath func(string) (string, error)) *SoundPlayer {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	p := &SoundPlayer{argv: strings.Fields(command), start: startDetached}
	if len(p.argv) == 0 {
		logrus.Info("no audio player configured, sound disabled")
		return p
	}
	if _, err := lookPath(p.argv[0]); err != nil {
		logrus.WithField("player", p.argv[0]).WithError(err).Warn("audio player not found, sound disabled")
		return p
	}
	p.enabled.Store(true)
	return p
}

// Enabled reports whether the player passed the startup probe.
func (p *SoundPlayer) Enabled() bool {
	return p != nil && p.enabled.Load()
}

// Play launches playback of path and returns immediately. The player process
// is never awaited by the caller; a blank path or missing file is a no-op.
func (p *SoundPlayer) Play(path string) {
	if !p.Enabled() || path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		logrus.WithField("sound", path).WithError(err).Debug("sound file unavailable, skipping")
		return
	}

	args := append(append([]string{}, p.argv[1:]...), path)
	cmd := exec.Command(p.argv[0], args...)
	if err := p.start(cmd); err != nil {
		p.enabled.Store(false)
		logrus.WithFields(logrus.Fields{
			"sound":  path,
			"player": p.argv[0],
		}).WithError(err).Warn("sound playback failed, sound disabled")
	}
}

// startDetached starts cmd and reaps it in the background so the exited
// player does not linger as a zombie.
func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			logrus.WithError(err).Debug("audio player exited with error")
		}
	}()
	return nil
}
