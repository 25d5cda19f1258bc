package log

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLog_FormatsFields(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelDebug)

	Info(CatArtifact, "artifact emitted", "type", "epic", "id", "EPIC-1")

	out := buf.String()
	require.Contains(t, out, "[INFO] [artifact] artifact emitted")
	require.Contains(t, out, "type=epic")
	require.Contains(t, out, "id=EPIC-1")
}

func TestLog_OddFieldCount(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelDebug)

	Debug(CatOrch, "orphan", "lonely")

	require.Contains(t, buf.String(), "lonely=<missing>")
}

func TestLog_MinLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelWarn)

	Debug(CatOrch, "hidden")
	Info(CatOrch, "hidden too")
	Warn(CatOrch, "shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}

func TestLog_ErrorErr(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelDebug)

	ErrorErr(CatGit, "clone failed", errors.New("boom"), "url", "https://example.com/r.git")
	ErrorErr(CatGit, "nil error", nil)

	require.Contains(t, buf.String(), "error=boom")
	require.Contains(t, buf.String(), "error=<nil>")
}

func TestLog_SetEnabled(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelDebug)

	SetEnabled(false)
	Error(CatStore, "dropped")
	SetEnabled(true)

	require.Empty(t, buf.String())
}

func TestLog_Listener(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelDebug)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := NewListener(ctx)
	require.NotNil(t, ch)

	Warn(CatHTTP, "client gone")

	select {
	case entry := <-ch:
		require.Contains(t, entry.Payload, "client gone")
		require.Equal(t, string(CatHTTP), entry.Topic)
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "timeout waiting for log entry")
	}
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, LevelDebug, ParseLevel("debug"))
	require.Equal(t, LevelWarn, ParseLevel("warning"))
	require.Equal(t, LevelError, ParseLevel("ERROR"))
	require.Equal(t, LevelInfo, ParseLevel("nonsense"))
}
