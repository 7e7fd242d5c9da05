// Package lock implements the per-user single-instance PID file.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning indicates a live process already holds the lock.
var ErrAlreadyRunning = errors.New("instance already running")

// PIDFile is an acquired single-instance lock. The file stays open with an
// exclusive flock until Release; the kernel drops the lock if the process
// dies, so a leftover file never blocks a later start.
type PIDFile struct {
	path string
	pid  int
	f    *os.File
}

// DefaultPath returns the lock location in the user's runtime directory.
func DefaultPath(appName string) string {
	return filepath.Join(xdg.RuntimeDir, appName+".pid")
}

// Acquire takes an exclusive lock on path and writes the current process id
// to it. If another process holds the lock, ErrAlreadyRunning is returned
// along with the pid recorded in the file (0 if unreadable).
func Acquire(path string) (*PIDFile, int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, 0, fmt.Errorf("creating lock directory: %w", err)
	}

	for {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, 0, fmt.Errorf("opening lock file: %w", err)
		}

		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			f.Close() //nolint:errcheck
			if errors.Is(err, unix.EWOULDBLOCK) {
				pid, _ := readPID(path)
				return nil, pid, ErrAlreadyRunning
			}
			return nil, 0, fmt.Errorf("locking %s: %w", path, err)
		}

		// The previous holder may have unlinked the file between our open
		// and flock; the lock is only good on the inode path still names.
		same, err := sameFile(f, path)
		if err != nil {
			f.Close() //nolint:errcheck
			return nil, 0, err
		}
		if !same {
			f.Close() //nolint:errcheck
			continue
		}

		self := os.Getpid()
		if err := writePID(f, self); err != nil {
			f.Close() //nolint:errcheck
			return nil, 0, fmt.Errorf("writing lock file: %w", err)
		}
		return &PIDFile{path: path, pid: self, f: f}, self, nil
	}
}

func sameFile(f *os.File, path string) (bool, error) {
	held, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat lock file: %w", err)
	}
	named, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat lock file: %w", err)
	}
	return os.SameFile(held, named), nil
}

func writePID(f *os.File, pid int) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0); err != nil {
		return err
	}
	return f.Sync()
}

// Path returns the lock file location.
func (p *PIDFile) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// Release removes the lock file and drops the lock. The file is left alone
// if it no longer names this process.
func (p *PIDFile) Release() error {
	if p == nil || p.f == nil {
		return nil
	}
	defer func() {
		p.f.Close() //nolint:errcheck
		p.f = nil
	}()

	pid, err := readPID(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if pid != p.pid {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing lock file %q: %w", path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid pid %d in %q", pid, path)
	}
	return pid, nil
}
