// Package actions executes remote process and system control requests.
// Every action fails in isolation: a bad pid or a locked temp file never
// affects other actions or shared state.
package actions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/internal/logstream"
)

var (
	// ErrNotFound reports a pid with no live process behind it.
	ErrNotFound = errors.New("process not found")
	// ErrPermission reports insufficient rights for a process action.
	ErrPermission = errors.New("permission denied")
	// ErrInvalidMode reports an unknown boost mode.
	ErrInvalidMode = errors.New("boost mode must be soft or hard")
)

// Boost modes.
const (
	BoostSoft = "soft"
	BoostHard = "hard"
)

// DefaultTempMinAge keeps freshly written temp files out of ClearTemp's
// reach unless configured otherwise.
const DefaultTempMinAge = time.Hour

// Dispatcher executes control actions against the local host.
type Dispatcher struct {
	tempDirs   []string
	tempMinAge time.Duration

	broadcaster *logstream.Broadcaster
	logger      *zap.Logger
}

// New creates a dispatcher. A nil or empty tempDirs list falls back to
// the OS temp directory.
func New(tempDirs []string, tempMinAge time.Duration, broadcaster *logstream.Broadcaster, logger *zap.Logger) *Dispatcher {
	if len(tempDirs) == 0 {
		tempDirs = []string{os.TempDir()}
	}
	if tempMinAge < 0 {
		tempMinAge = DefaultTempMinAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		tempDirs:    tempDirs,
		tempMinAge:  tempMinAge,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Kill requests termination of a process. It returns once the signal is
// delivered; it does not wait for the process to exit.
func (d *Dispatcher) Kill(pid int) error {
	err := d.signal(pid, syscall.SIGKILL)
	d.report("kill", pid, err)
	return err
}

// Suspend stops a process. Suspending an already stopped process is not
// an error: SIGSTOP is idempotent from the caller's point of view.
func (d *Dispatcher) Suspend(pid int) error {
	err := d.signal(pid, syscall.SIGSTOP)
	d.report("suspend", pid, err)
	return err
}

// Resume continues a stopped process. Resuming a running process is a
// no-op, not an error.
func (d *Dispatcher) Resume(pid int) error {
	err := d.signal(pid, syscall.SIGCONT)
	d.report("resume", pid, err)
	return err
}

// signal delivers sig to pid and maps the OS errno onto the package
// error taxonomy.
func (d *Dispatcher) signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("%w: pid %d", ErrNotFound, pid)
	}
	err := syscall.Kill(pid, sig)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, syscall.ESRCH):
		return fmt.Errorf("%w: pid %d", ErrNotFound, pid)
	case errors.Is(err, syscall.EPERM):
		return fmt.Errorf("%w: pid %d", ErrPermission, pid)
	default:
		return fmt.Errorf("signal %s to pid %d: %w", sig, pid, err)
	}
}

func (d *Dispatcher) report(action string, pid int, err error) {
	if err != nil {
		d.broadcaster.Printf("action %s pid=%d failed: %v", action, pid, err)
		d.logger.Warn("process action failed",
			zap.String("action", action),
			zap.Int("pid", pid),
			zap.Error(err))
		return
	}
	d.broadcaster.Printf("action %s pid=%d ok", action, pid)
	d.logger.Info("process action completed",
		zap.String("action", action),
		zap.Int("pid", pid))
}

// ClearTemp removes stale regular files from the configured temp
// directories and returns how many it removed. A file that cannot be
// removed is skipped, never aborts the sweep.
func (d *Dispatcher) ClearTemp() int {
	cutoff := time.Now().Add(-d.tempMinAge)
	removed := 0
	failed := 0

	for _, dir := range d.tempDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			d.logger.Warn("temp directory unreadable",
				zap.String("dir", dir),
				zap.Error(err))
			continue
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				failed++
				continue
			}
			removed++
		}
	}

	d.broadcaster.Printf("clear_temp removed %d files (%d skipped)", removed, failed)
	d.logger.Info("temp sweep finished",
		zap.Int("removed", removed),
		zap.Int("failed", failed))
	return removed
}

// Boost applies a best-effort set of system adjustments. Each step
// reports its own outcome; a failed step never fails the boost.
func (d *Dispatcher) Boost(mode string) ([]string, error) {
	if mode != BoostSoft && mode != BoostHard {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidMode, mode)
	}

	limit := 3
	if mode == BoostHard {
		limit = 10
	}

	steps := []string{
		fmt.Sprintf("clear_temp: removed %d files", d.ClearTemp()),
	}
	steps = append(steps, d.reniceTopProcesses(limit)...)
	if mode == BoostHard {
		steps = append(steps, dropCaches())
	}

	d.broadcaster.Printf("boost (%s) finished: %s", mode, strings.Join(steps, "; "))
	d.logger.Info("boost finished",
		zap.String("mode", mode),
		zap.Strings("steps", steps))
	return steps, nil
}

// procUsage is one /proc sample used to rank CPU offenders.
type procUsage struct {
	pid   int
	comm  string
	ticks uint64
}

// reniceTopProcesses lowers the scheduling priority of the busiest
// processes so interactive work gets the CPU back.
func (d *Dispatcher) reniceTopProcesses(limit int) []string {
	procs, err := sampleProcs()
	if err != nil {
		return []string{fmt.Sprintf("renice: proc scan failed: %v", err)}
	}

	sort.Slice(procs, func(i, j int) bool { return procs[i].ticks > procs[j].ticks })
	if len(procs) > limit {
		procs = procs[:limit]
	}

	self := os.Getpid()
	steps := make([]string, 0, len(procs))
	for _, p := range procs {
		if p.pid == self || p.pid == 1 {
			continue
		}
		if err := syscall.Setpriority(syscall.PRIO_PROCESS, p.pid, 10); err != nil {
			steps = append(steps, fmt.Sprintf("renice %s (pid %d): %v", p.comm, p.pid, err))
			continue
		}
		steps = append(steps, fmt.Sprintf("renice %s (pid %d): ok", p.comm, p.pid))
	}
	if len(steps) == 0 {
		steps = append(steps, "renice: nothing to adjust")
	}
	return steps
}

// dropCaches asks the kernel to release page cache. Needs root; the
// failure is reported as a step outcome like everything else.
func dropCaches() string {
	if err := os.WriteFile("/proc/sys/vm/drop_caches", []byte("1\n"), 0o200); err != nil {
		return fmt.Sprintf("drop_caches: %v", err)
	}
	return "drop_caches: ok"
}

// sampleProcs reads cumulative CPU ticks for every live process from
// /proc/<pid>/stat.
func sampleProcs() ([]procUsage, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	procs := make([]procUsage, 0, len(entries))
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "stat"))
		if err != nil {
			continue
		}
		usage, ok := parseStat(pid, string(data))
		if !ok {
			continue
		}
		procs = append(procs, usage)
	}
	return procs, nil
}

// parseStat extracts the comm and utime+stime tick count from one
// /proc/<pid>/stat line. The comm field may contain spaces, so fields
// are counted from the closing paren.
func parseStat(pid int, stat string) (procUsage, bool) {
	end := strings.LastIndex(stat, ")")
	if end < 0 {
		return procUsage{}, false
	}
	open := strings.Index(stat, "(")
	if open < 0 || open > end {
		return procUsage{}, false
	}

	fields := strings.Fields(stat[end+1:])
	// utime and stime are fields 14 and 15 of stat; 11 and 12 relative
	// to the post-comm remainder.
	if len(fields) < 13 {
		return procUsage{}, false
	}
	utime, err1 := strconv.ParseUint(fields[11], 10, 64)
	stime, err2 := strconv.ParseUint(fields[12], 10, 64)
	if err1 != nil || err2 != nil {
		return procUsage{}, false
	}

	return procUsage{
		pid:   pid,
		comm:  stat[open+1 : end],
		ticks: utime + stime,
	}, true
}
