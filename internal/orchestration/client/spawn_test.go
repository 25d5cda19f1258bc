package client

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// lineParser decodes each line straight into an OutputEvent.
type lineParser struct{}

func (lineParser) ParseEvent(data []byte) (OutputEvent, error) {
	var ev OutputEvent
	err := json.Unmarshal(data, &ev)
	return ev, err
}

func (lineParser) ExtractSessionRef(ev OutputEvent, _ []byte) string {
	if ev.IsInit() {
		return ev.SessionID
	}
	return ""
}

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func collect(proc HeadlessProcess) ([]OutputEvent, []error) {
	var events []OutputEvent
	for ev := range proc.Events() {
		events = append(events, ev)
	}
	var errs []error
	for err := range proc.Errors() {
		errs = append(errs, err)
	}
	return events, errs
}

func TestSpawnBuilder_MissingExecutable(t *testing.T) {
	_, err := NewSpawnBuilder(context.Background()).WithParser(lineParser{}).Build()
	require.ErrorContains(t, err, "executable path is required")
}

func TestSpawnBuilder_MissingParser(t *testing.T) {
	_, err := NewSpawnBuilder(context.Background()).WithExecutable("/bin/true", nil).Build()
	require.ErrorContains(t, err, "parser is required")
}

func TestSpawnBuilder_StartFailure(t *testing.T) {
	_, err := NewSpawnBuilder(context.Background()).
		WithExecutable(filepath.Join(t.TempDir(), "missing"), nil).
		WithParser(lineParser{}).
		Build()
	require.ErrorContains(t, err, "failed to start")
}

func TestSpawnBuilder_StreamsEvents(t *testing.T) {
	sh := requireShell(t)
	script := `printf '%s\n' '{"type":"system","subtype":"init","session_id":"s-1"}' 'not json' '' '{"type":"result","subtype":"success"}'`

	proc, err := NewSpawnBuilder(context.Background()).
		WithExecutable(sh, []string{"-c", script}).
		WithParser(lineParser{}).
		WithProviderName("test").
		Build()
	require.NoError(t, err)

	events, errs := collect(proc)
	require.NoError(t, proc.Wait())

	require.Empty(t, errs)
	require.Len(t, events, 2)
	require.True(t, events[0].IsInit())
	require.True(t, events[1].IsResult())
	require.NotEmpty(t, events[0].Raw)
	require.Equal(t, "s-1", proc.SessionRef())
	require.Equal(t, StatusCompleted, proc.Status())
}

func TestSpawnBuilder_ExitErrorIncludesStderr(t *testing.T) {
	sh := requireShell(t)

	proc, err := NewSpawnBuilder(context.Background()).
		WithExecutable(sh, []string{"-c", "echo 'auth required' >&2; exit 3"}).
		WithParser(lineParser{}).
		WithStderrCapture(true).
		WithProviderName("test").
		Build()
	require.NoError(t, err)

	events, errs := collect(proc)
	require.NoError(t, proc.Wait())

	require.Empty(t, events)
	require.Len(t, errs, 1)
	require.ErrorContains(t, errs[0], "auth required")
	require.Equal(t, StatusFailed, proc.Status())
	require.Equal(t, []string{"auth required"}, proc.StderrLines())
}

func TestSpawnBuilder_Timeout(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}

	proc, err := NewSpawnBuilder(context.Background()).
		WithExecutable(sleep, []string{"10"}).
		WithParser(lineParser{}).
		WithTimeout(100 * time.Millisecond).
		Build()
	require.NoError(t, err)

	_, errs := collect(proc)
	require.Len(t, errs, 1)
	require.True(t, errors.Is(errs[0], ErrTimeout))
	require.Equal(t, StatusFailed, proc.Status())
}

func TestSpawnBuilder_ParentCancel(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	ctx, cancel := context.WithCancel(context.Background())

	proc, err := NewSpawnBuilder(ctx).
		WithExecutable(sleep, []string{"10"}).
		WithParser(lineParser{}).
		Build()
	require.NoError(t, err)
	require.True(t, proc.IsRunning())
	require.Greater(t, proc.PID(), 0)

	cancel()
	_, errs := collect(proc)
	require.Empty(t, errs)
	require.Equal(t, StatusCancelled, proc.Status())
}

func TestBaseProcess_CancelIsIdempotent(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}

	proc, err := NewSpawnBuilder(context.Background()).
		WithExecutable(sleep, []string{"10"}).
		WithParser(lineParser{}).
		Build()
	require.NoError(t, err)

	require.NoError(t, proc.Cancel())
	require.NoError(t, proc.Cancel())
	_, errs := collect(proc)
	require.Empty(t, errs)
	require.Equal(t, StatusCancelled, proc.Status())
}

func TestBaseProcess_PIDWithoutCommand(t *testing.T) {
	bp := NewBaseProcess(context.Background(), func() {}, nil, nil, nil, "/work")
	require.Equal(t, -1, bp.PID())
	require.Equal(t, "/work", bp.WorkDir())
	require.Equal(t, StatusPending, bp.Status())
}

func TestExecutableFinder_KnownPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	// A directory named like the binary is skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".agent", "local", "agent"), 0o755))
	want := filepath.Join(home, ".agent", "agent")
	require.NoError(t, os.WriteFile(want, []byte("#!/bin/sh\n"), 0o755))

	got, err := NewExecutableFinder("agent",
		WithKnownPaths("~/.agent/local/{name}", "~/.agent/{name}"),
	).Find()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestExecutableFinder_NotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := NewExecutableFinder("definitely-not-installed").Find()
	require.ErrorContains(t, err, "executable not found")
}

func TestRegistry(t *testing.T) {
	RegisterClient("test-registry", func() HeadlessClient { return nil })
	require.True(t, IsRegistered("test-registry"))
	require.Contains(t, RegisteredClients(), ClientType("test-registry"))

	_, err := NewClient("nope")
	require.ErrorIs(t, err, ErrUnknownClientType)
}
