package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/tejas96/sdlc-agents-sub000/internal/log"
)

// ErrTimeout is returned when a process exceeds its configured timeout.
var ErrTimeout = errors.New("process timed out")

const (
	eventBufferSize = 100
	errorBufferSize = 10

	// maxLineSize bounds a single stdout line. Tool results that embed whole
	// files can exceed bufio's 64KB default by a wide margin.
	maxLineSize = 10 * 1024 * 1024
)

// BaseProcessOption is a functional option for configuring BaseProcess.
type BaseProcessOption func(*BaseProcess)

// WithEventParser sets the parser used for every stdout line.
func WithEventParser(p EventParser) BaseProcessOption {
	return func(bp *BaseProcess) {
		bp.parser = p
	}
}

// WithStderrCapture enables stderr line capture for error messages.
func WithStderrCapture(capture bool) BaseProcessOption {
	return func(bp *BaseProcess) {
		bp.captureStderr = capture
	}
}

// WithProviderName sets the provider name for logging.
func WithProviderName(name string) BaseProcessOption {
	return func(bp *BaseProcess) {
		bp.providerName = name
	}
}

// BaseProcess runs a CLI that writes one JSON event per stdout line and
// implements HeadlessProcess on top of it.
type BaseProcess struct {
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	stderr     io.ReadCloser
	sessionRef string
	workDir    string
	status     ProcessStatus
	events     chan OutputEvent
	errors     chan error
	cancelFunc context.CancelFunc
	ctx        context.Context
	mu         sync.RWMutex
	wg         sync.WaitGroup
	readers    sync.WaitGroup

	stderrLines   []string
	captureStderr bool
	providerName  string
	parser        EventParser
}

// NewBaseProcess creates a BaseProcess around a command whose stdout and
// stderr pipes are already set up.
func NewBaseProcess(
	ctx context.Context,
	cancelFunc context.CancelFunc,
	cmd *exec.Cmd,
	stdout io.ReadCloser,
	stderr io.ReadCloser,
	workDir string,
	opts ...BaseProcessOption,
) *BaseProcess {
	bp := &BaseProcess{
		cmd:          cmd,
		stdout:       stdout,
		stderr:       stderr,
		workDir:      workDir,
		status:       StatusPending,
		events:       make(chan OutputEvent, eventBufferSize),
		errors:       make(chan error, errorBufferSize),
		cancelFunc:   cancelFunc,
		ctx:          ctx,
		providerName: "base",
	}
	for _, opt := range opts {
		opt(bp)
	}
	return bp
}

// SetSessionRef sets the session reference.
func (bp *BaseProcess) SetSessionRef(ref string) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.sessionRef = ref
}

// Events returns the channel of parsed output events.
func (bp *BaseProcess) Events() <-chan OutputEvent {
	return bp.events
}

// Errors returns the channel of process errors.
func (bp *BaseProcess) Errors() <-chan error {
	return bp.errors
}

// Status returns the current process status.
func (bp *BaseProcess) Status() ProcessStatus {
	bp.mu.RLock()
	defer bp.mu.RUnlock()
	return bp.status
}

// IsRunning returns true if the process is actively running.
func (bp *BaseProcess) IsRunning() bool {
	return bp.Status() == StatusRunning
}

// WorkDir returns the working directory of the process.
func (bp *BaseProcess) WorkDir() string {
	return bp.workDir
}

// PID returns the OS process ID, or -1 if not running.
func (bp *BaseProcess) PID() int {
	bp.mu.RLock()
	defer bp.mu.RUnlock()
	if bp.cmd == nil || bp.cmd.Process == nil {
		return -1
	}
	return bp.cmd.Process.Pid
}

// SessionRef returns the session reference.
func (bp *BaseProcess) SessionRef() string {
	bp.mu.RLock()
	defer bp.mu.RUnlock()
	return bp.sessionRef
}

// StderrLines returns a copy of the captured stderr lines.
func (bp *BaseProcess) StderrLines() []string {
	bp.mu.RLock()
	defer bp.mu.RUnlock()
	result := make([]string, len(bp.stderrLines))
	copy(result, bp.stderrLines)
	return result
}

// SetStatus updates the process status.
func (bp *BaseProcess) SetStatus(s ProcessStatus) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.status = s
}

// sendError sends without blocking; a full channel drops the error.
func (bp *BaseProcess) sendError(err error) {
	select {
	case bp.errors <- err:
	default:
		log.Debug(log.CatOrch, "error channel full, dropping error",
			"subsystem", bp.providerName, "error", err)
	}
}

// Cancel terminates the process. The status is set before the context is
// cancelled so waitForCompletion never reports a cancelled run as failed.
func (bp *BaseProcess) Cancel() error {
	bp.mu.Lock()
	if bp.status.IsTerminal() {
		bp.mu.Unlock()
		return nil
	}
	bp.status = StatusCancelled
	bp.mu.Unlock()
	bp.cancelFunc()
	return nil
}

// Wait blocks until all process goroutines complete.
func (bp *BaseProcess) Wait() error {
	bp.wg.Wait()
	return nil
}

// StartGoroutines launches output parsing, stderr reading and completion
// handling. Call it after the process is started.
func (bp *BaseProcess) StartGoroutines() {
	bp.wg.Add(3)
	bp.readers.Add(2)
	go bp.parseOutput()
	go bp.parseStderr()
	go bp.waitForCompletion()
}

func (bp *BaseProcess) parseOutput() {
	defer bp.wg.Done()
	defer bp.readers.Done()
	defer close(bp.events)

	scanner := bufio.NewScanner(bp.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || bp.parser == nil {
			continue
		}

		event, err := bp.parser.ParseEvent(line)
		if err != nil {
			log.Debug(log.CatOrch, "parse error",
				"subsystem", bp.providerName, "error", err, "line", string(line))
			continue
		}

		event.Raw = make([]byte, len(line))
		copy(event.Raw, line)
		event.Timestamp = time.Now()

		if ref := bp.parser.ExtractSessionRef(event, line); ref != "" {
			bp.mu.Lock()
			if bp.sessionRef == "" {
				bp.sessionRef = ref
				log.Debug(log.CatOrch, "got session ref",
					"subsystem", bp.providerName, "sessionRef", ref)
			}
			bp.mu.Unlock()
		}

		select {
		case bp.events <- event:
		case <-bp.ctx.Done():
			// Keep draining stdout so the child never blocks on a full pipe.
			_, _ = io.Copy(io.Discard, bp.stdout)
			return
		}
	}

	if err := scanner.Err(); err != nil {
		log.Debug(log.CatOrch, "scanner error", "subsystem", bp.providerName, "error", err)
		bp.sendError(fmt.Errorf("stdout scanner error: %w", err))
	}
}

func (bp *BaseProcess) parseStderr() {
	defer bp.wg.Done()
	defer bp.readers.Done()

	scanner := bufio.NewScanner(bp.stderr)
	for scanner.Scan() {
		line := scanner.Text()
		log.Debug(log.CatOrch, "STDERR", "subsystem", bp.providerName, "line", line)

		if bp.captureStderr {
			bp.mu.Lock()
			bp.stderrLines = append(bp.stderrLines, line)
			bp.mu.Unlock()
		}
	}
	if err := scanner.Err(); err != nil {
		log.Debug(log.CatOrch, "stderr scanner error", "subsystem", bp.providerName, "error", err)
	}
}

// waitForCompletion reaps the process after both pipes are drained and closes
// the errors channel.
func (bp *BaseProcess) waitForCompletion() {
	defer bp.wg.Done()
	defer close(bp.errors)

	bp.readers.Wait()
	err := bp.cmd.Wait()

	bp.mu.Lock()
	defer bp.mu.Unlock()

	if bp.status == StatusCancelled {
		log.Debug(log.CatOrch, "process was cancelled", "subsystem", bp.providerName)
		return
	}

	if errors.Is(bp.ctx.Err(), context.DeadlineExceeded) {
		bp.status = StatusFailed
		log.Debug(log.CatOrch, "process timed out", "subsystem", bp.providerName)
		bp.sendError(ErrTimeout)
		return
	}

	if errors.Is(bp.ctx.Err(), context.Canceled) {
		bp.status = StatusCancelled
		return
	}

	if err != nil {
		bp.status = StatusFailed
		if bp.captureStderr && len(bp.stderrLines) > 0 {
			bp.sendError(fmt.Errorf("%s process failed: %s (exit: %w)",
				bp.providerName, strings.Join(bp.stderrLines, "\n"), err))
		} else {
			bp.sendError(fmt.Errorf("%s process exited: %w", bp.providerName, err))
		}
		return
	}
	bp.status = StatusCompleted
}
