package store

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"
)

// lockInfo is the JSON body of the writer lock file.
type lockInfo struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	CreatedAt time.Time `json:"created_at"`
}

// staleLockAge is the age after which a lock from an unverifiable owner
// (different host, or a PID we cannot probe) is considered abandoned.
const staleLockAge = 10 * time.Minute

// FileLock serializes store mutations across CLI invocations. Exactly one
// live process may hold it; locks left behind by crashed processes are
// reclaimed automatically.
type FileLock struct {
	path string
	held bool
}

// AcquireLock takes the writer lock at path. Returns ErrLocked if another
// live process holds it.
func AcquireLock(path string) (*FileLock, error) {
	l := &FileLock{path: path}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			host, _ := os.Hostname()
			info := lockInfo{PID: os.Getpid(), Hostname: host, CreatedAt: time.Now()}
			data, _ := json.Marshal(info)
			if _, werr := f.Write(data); werr != nil {
				f.Close()
				os.Remove(path)
				return nil, fmt.Errorf("writing lock file: %w", werr)
			}
			f.Close()
			l.held = true
			return l, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("creating lock file: %w", err)
		}

		stale, oerr := isStale(path)
		if oerr != nil {
			return nil, oerr
		}
		if !stale {
			return nil, fmt.Errorf("%w: %s", ErrLocked, describeOwner(path))
		}
		// Reclaim and retry once.
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			return nil, fmt.Errorf("reclaiming stale lock: %w", rerr)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrLocked, describeOwner(path))
}

// Release removes the lock file. Safe to call multiple times.
func (l *FileLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	return nil
}

// isStale reports whether the lock at path belongs to a process that is no
// longer alive.
func isStale(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil // Released between our attempts.
		}
		return false, fmt.Errorf("reading lock file: %w", err)
	}

	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		// Unparseable lock file: treat as stale once old enough.
		st, serr := os.Stat(path)
		if serr != nil {
			return true, nil
		}
		return time.Since(st.ModTime()) > staleLockAge, nil
	}

	host, _ := os.Hostname()
	if info.Hostname != host {
		// Cannot probe a PID on another host (shared filesystem); fall
		// back to age.
		return time.Since(info.CreatedAt) > staleLockAge, nil
	}

	return !processAlive(info.PID), nil
}

// processAlive probes a PID with signal 0.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}

// describeOwner returns a short description of the lock holder for error
// messages.
func describeOwner(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return path
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return path
	}
	return fmt.Sprintf("held by pid %d on %s since %s",
		info.PID, info.Hostname, info.CreatedAt.Format(time.RFC3339))
}
