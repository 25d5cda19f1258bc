package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/tejas96/sdlc-agents-sub000/internal/log"
)

// CommandFactoryFunc creates an exec.Cmd. Tests use it to substitute the binary.
type CommandFactoryFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// SpawnBuilder assembles and starts a BaseProcess.
type SpawnBuilder struct {
	ctx            context.Context
	timeout        time.Duration
	execPath       string
	args           []string
	workDir        string
	sessionRef     string
	env            []string
	parser         EventParser
	providerName   string
	captureStderr  bool
	commandFactory CommandFactoryFunc
}

// NewSpawnBuilder creates a new SpawnBuilder with the given context.
func NewSpawnBuilder(ctx context.Context) *SpawnBuilder {
	return &SpawnBuilder{
		ctx:          ctx,
		providerName: "unknown",
	}
}

// WithExecutable sets the executable path and arguments.
func (b *SpawnBuilder) WithExecutable(path string, args []string) *SpawnBuilder {
	b.execPath = path
	b.args = args
	return b
}

// WithWorkDir sets the working directory for the process.
func (b *SpawnBuilder) WithWorkDir(dir string) *SpawnBuilder {
	b.workDir = dir
	return b
}

// WithSessionRef sets the initial session reference.
func (b *SpawnBuilder) WithSessionRef(ref string) *SpawnBuilder {
	b.sessionRef = ref
	return b
}

// WithTimeout sets the process timeout. Zero or negative means cancel-only.
func (b *SpawnBuilder) WithTimeout(d time.Duration) *SpawnBuilder {
	b.timeout = d
	return b
}

// WithParser sets the EventParser. Required.
func (b *SpawnBuilder) WithParser(p EventParser) *SpawnBuilder {
	b.parser = p
	return b
}

// WithEnv appends KEY=VALUE pairs to os.Environ().
func (b *SpawnBuilder) WithEnv(env []string) *SpawnBuilder {
	b.env = env
	return b
}

// WithProviderName sets the provider name for logging and error messages.
func (b *SpawnBuilder) WithProviderName(name string) *SpawnBuilder {
	b.providerName = name
	return b
}

// WithStderrCapture enables stderr line capture for error messages.
func (b *SpawnBuilder) WithStderrCapture(capture bool) *SpawnBuilder {
	b.captureStderr = capture
	return b
}

// WithCommandFactory overrides exec.CommandContext.
func (b *SpawnBuilder) WithCommandFactory(fn CommandFactoryFunc) *SpawnBuilder {
	b.commandFactory = fn
	return b
}

// Build validates the configuration, starts the process and its goroutines.
// On error every created resource is released.
func (b *SpawnBuilder) Build() (*BaseProcess, error) {
	if b.execPath == "" {
		return nil, errors.New("spawn builder: executable path is required")
	}
	if b.parser == nil {
		return nil, errors.New("spawn builder: parser is required")
	}

	var procCtx context.Context
	var cancel context.CancelFunc
	if b.timeout > 0 {
		procCtx, cancel = context.WithTimeout(b.ctx, b.timeout)
	} else {
		procCtx, cancel = context.WithCancel(b.ctx)
	}

	var stdout, stderr io.ReadCloser
	cleanup := func() {
		cancel()
		if stdout != nil {
			_ = stdout.Close()
		}
		if stderr != nil {
			_ = stderr.Close()
		}
	}

	var cmd *exec.Cmd
	if b.commandFactory != nil {
		cmd = b.commandFactory(procCtx, b.execPath, b.args...)
	} else {
		// #nosec G204 -- args are built from Config, not shell-interpreted
		cmd = exec.CommandContext(procCtx, b.execPath, b.args...)
	}
	cmd.Dir = b.workDir
	if len(b.env) > 0 {
		cmd.Env = append(os.Environ(), b.env...)
	}

	var err error
	stdout, err = cmd.StdoutPipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("spawn builder: failed to create stdout pipe: %w", err)
	}
	stderr, err = cmd.StderrPipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("spawn builder: failed to create stderr pipe: %w", err)
	}

	bp := NewBaseProcess(procCtx, cancel, cmd, stdout, stderr, b.workDir,
		WithEventParser(b.parser),
		WithStderrCapture(b.captureStderr),
		WithProviderName(b.providerName),
	)
	if b.sessionRef != "" {
		bp.SetSessionRef(b.sessionRef)
	}

	log.Debug(log.CatOrch, "Spawning process",
		"subsystem", b.providerName,
		"execPath", b.execPath,
		"workDir", b.workDir)

	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("spawn builder: failed to start %s process: %w", b.providerName, err)
	}

	log.Debug(log.CatOrch, "Process started", "subsystem", b.providerName, "pid", cmd.Process.Pid)

	bp.SetStatus(StatusRunning)
	bp.StartGoroutines()
	return bp, nil
}
