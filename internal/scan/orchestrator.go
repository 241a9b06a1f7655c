// Package scan coordinates fleet-wide collector runs. At most one scan is
// in flight at any time; concurrent start requests are rejected, not
// queued, and callers are expected to poll status and retry.
package scan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/internal/logstream"
	"github.com/pulsewatch/pulsewatch/internal/models"
)

var (
	// ErrConflict reports an already running scan.
	ErrConflict = errors.New("a scan is already running")
	// ErrInvalidMode reports an unknown scan mode.
	ErrInvalidMode = errors.New("scan mode must be partial or full")
)

// DefaultTimeout bounds a collector run when the configuration does not
// say otherwise.
const DefaultTimeout = 10 * time.Minute

// Orchestrator is the single-flight scan state machine. All state
// transitions go through its mutex; Start is test-and-set so two callers
// can never both observe idle and both launch.
type Orchestrator struct {
	mu        sync.Mutex
	running   bool
	mode      string
	startedAt time.Time

	command []string
	timeout time.Duration

	broadcaster *logstream.Broadcaster
	logger      *zap.Logger

	// wg tracks the in-flight run so tests can wait for completion.
	wg sync.WaitGroup
}

// New creates an orchestrator that launches command with the scan mode
// appended as its last argument.
func New(command []string, timeout time.Duration, broadcaster *logstream.Broadcaster, logger *zap.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		command:     command,
		timeout:     timeout,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Start begins an asynchronous scan. It returns as soon as the run is
// launched; progress goes to the log broadcaster, never to the caller.
func (o *Orchestrator) Start(mode string) error {
	if mode != models.ScanModePartial && mode != models.ScanModeFull {
		return fmt.Errorf("%w: got %q", ErrInvalidMode, mode)
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrConflict
	}
	o.running = true
	o.mode = mode
	o.startedAt = time.Now().UTC()
	o.mu.Unlock()

	o.broadcaster.Printf("scan started (mode=%s)", mode)
	o.logger.Info("scan started", zap.String("mode", mode))

	o.wg.Add(1)
	go o.run(mode)
	return nil
}

// Status reports the current state. It never blocks on a running scan.
func (o *Orchestrator) Status() models.ScanStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	status := models.ScanStatus{Running: o.running}
	if o.running {
		status.Mode = o.mode
		startedAt := o.startedAt
		status.StartedAt = &startedAt
	}
	return status
}

// Wait blocks until no scan is in flight. Intended for tests and
// shutdown, not for request handlers.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// run executes the collector process and unconditionally resets the
// state when it finishes, whatever the outcome.
func (o *Orchestrator) run(mode string) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mode = ""
		o.mu.Unlock()
	}()

	start := time.Now()
	err := o.execute(mode)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		o.broadcaster.Printf("scan failed after %s: %v", elapsed, err)
		o.logger.Error("scan failed",
			zap.String("mode", mode),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return
	}

	o.broadcaster.Printf("scan completed in %s (mode=%s)", elapsed, mode)
	o.logger.Info("scan completed",
		zap.String("mode", mode),
		zap.Duration("elapsed", elapsed))
}

// execute launches the configured collector command and streams its
// combined output into the broadcaster line by line.
func (o *Orchestrator) execute(mode string) error {
	if len(o.command) == 0 {
		return errors.New("no collector command configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	args := append(append([]string{}, o.command[1:]...), mode)
	cmd := exec.CommandContext(ctx, o.command[0], args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open collector output: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch collector: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		o.broadcaster.Publish(scanner.Text())
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("collector timed out after %s", o.timeout)
		}
		return fmt.Errorf("collector exited with error: %w", err)
	}
	return nil
}
