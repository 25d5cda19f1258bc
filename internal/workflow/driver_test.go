package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/tejas96/sdlc-agents-sub000/internal/artifacts"
	"github.com/tejas96/sdlc-agents-sub000/internal/git"
	"github.com/tejas96/sdlc-agents-sub000/internal/orchestration/client"
	"github.com/tejas96/sdlc-agents-sub000/internal/orchestration/mock"
	"github.com/tejas96/sdlc-agents-sub000/internal/orchestrator"
	"github.com/tejas96/sdlc-agents-sub000/internal/stream"
	"github.com/tejas96/sdlc-agents-sub000/internal/templates"
)

const wsDir = "/ws/s1"

// fakeCloner records clones and fails for URLs in errs.
type fakeCloner struct {
	mu     sync.Mutex
	clones map[string]string
	errs   map[string]error
}

func newFakeCloner() *fakeCloner {
	return &fakeCloner{clones: map[string]string{}, errs: map[string]error{}}
}

func (c *fakeCloner) Clone(_ context.Context, repo git.Repository, dest string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.errs[repo.URL]; err != nil {
		return err
	}
	c.clones[repo.URL] = dest
	return nil
}

func (c *fakeCloner) dest(url string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clones[url]
}

type harness struct {
	fs     afero.Fs
	client *mock.Client
	cloner *fakeCloner
	driver *Driver
}

func newHarness(t *testing.T, c *mock.Client) *harness {
	t.Helper()
	tmpl, err := templates.Load()
	require.NoError(t, err)
	h := &harness{fs: afero.NewMemMapFs(), client: c, cloner: newFakeCloner()}
	h.driver = NewDriver(
		orchestrator.New(c, orchestrator.Options{}),
		DefaultRegistry(nil),
		tmpl,
		WithFs(h.fs),
		WithCloner(h.cloner),
	)
	return h
}

func collect(t *testing.T, ch <-chan stream.Event) []stream.Event {
	t.Helper()
	var out []stream.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			require.Fail(t, "stream did not close")
			return out
		}
	}
}

func userMessage(content string) orchestrator.Message {
	return orchestrator.Message{Role: orchestrator.RoleUser, Content: content}
}

func TestRun_FreshTicketingTurn(t *testing.T) {
	c := mock.NewScriptedClient([]client.OutputEvent{
		mock.InitEvent("llm-1", wsDir),
		mock.TextEvent("Planning the epic."),
		mock.ToolUseEvent("t1", "Write", map[string]any{
			"file_path": "artifacts/epics/EPIC-1.json",
			"content":   `{"id":"EPIC-1","title":"Login"}`,
		}),
		mock.ToolResultEvent("t1", "File created", false),
		mock.ToolUseEvent("t2", "Write", map[string]any{"file_path": "notes.txt", "content": "scratch"}),
		mock.ToolResultEvent("t2", "File created", false),
		mock.ResultEvent(10, 5, 0),
	}, nil)
	h := newHarness(t, c)

	var ids []string
	session := &Session{
		ID:           "s1",
		Workflow:     Ticketing,
		WorkspaceDir: wsDir,
		Messages:     []orchestrator.Message{userMessage("Add a login page")},
	}
	ch, err := h.driver.Run(t.Context(), session, RunOptions{
		OnSessionID: func(id string) { ids = append(ids, id) },
	})
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 4)
	require.Equal(t, "llm-1", events[0].(stream.System).SessionID())
	require.Equal(t, stream.Text{Text: "Planning the epic."}, events[1])

	data := events[2].(stream.Data)
	require.Equal(t, stream.Kind("data-epic"), data.Kind())
	art := data.Payload.(*artifacts.Artifact)
	require.Equal(t, "EPIC-1", art.ID)
	require.Equal(t, "artifacts/epics/EPIC-1.json", art.FilePath)

	require.Equal(t, stream.FinishStop, events[3].(stream.Finish).Reason)
	require.Equal(t, []string{"llm-1"}, ids)

	for _, dir := range []string{"artifacts/epics", "artifacts/stories", "artifacts/tasks"} {
		ok, err := afero.DirExists(h.fs, wsDir+"/"+dir)
		require.NoError(t, err)
		require.True(t, ok, dir)
	}

	cfgs := c.Configs()
	require.Len(t, cfgs, 1)
	require.Equal(t, wsDir, cfgs[0].WorkDir)
	require.Empty(t, cfgs[0].SessionID)
	require.Contains(t, cfgs[0].Prompt, "User: Create the tickets for the following request.")
	require.Contains(t, cfgs[0].Prompt, "Add a login page")
	require.Contains(t, cfgs[0].SystemPrompt, "senior product engineer")
	require.Contains(t, cfgs[0].SystemPrompt, wsDir)
}

func TestRun_ContinuationResumes(t *testing.T) {
	c := mock.NewScriptedClient([]client.OutputEvent{
		mock.InitEvent("llm-2", wsDir),
		mock.ResultEvent(1, 1, 0),
	}, nil)
	h := newHarness(t, c)

	called := false
	session := &Session{
		ID:           "s1",
		Workflow:     Ticketing,
		WorkspaceDir: wsDir,
		LLMSessionID: "llm-1",
		Messages: []orchestrator.Message{
			userMessage("Add a login page"),
			{Role: orchestrator.RoleAssistant, Content: "Done."},
			userMessage("Split EPIC-1 into two"),
		},
	}
	ch, err := h.driver.Run(t.Context(), session, RunOptions{OnSessionID: func(string) { called = true }})
	require.NoError(t, err)
	events := collect(t, ch)
	require.Len(t, events, 2)
	require.False(t, called, "sessions that already have an id are not signalled")

	cfg := c.Configs()[0]
	require.Equal(t, "llm-1", cfg.SessionID)
	require.Contains(t, cfg.Prompt, "Revise the existing tickets")
	require.Contains(t, cfg.Prompt, "Split EPIC-1 into two")
	require.NotContains(t, cfg.Prompt, "Add a login page")
	require.Contains(t, cfg.SystemPrompt, "revising delivery tickets")

	exists, err := afero.DirExists(h.fs, wsDir+"/artifacts/epics")
	require.NoError(t, err)
	require.False(t, exists, "prepare is skipped on continuation")
}

func TestRun_ContinuationWithoutFollowUpSystem(t *testing.T) {
	c := mock.NewScriptedClient([]client.OutputEvent{mock.ResultEvent(1, 1, 0)}, nil)
	h := newHarness(t, c)

	session := &Session{
		ID:           "s1",
		Workflow:     Testcase,
		WorkspaceDir: wsDir,
		LLMSessionID: "llm-1",
		SystemPrompt: "custom system",
		Messages:     []orchestrator.Message{userMessage("more edge cases")},
	}
	ch, err := h.driver.Run(t.Context(), session, RunOptions{})
	require.NoError(t, err)
	collect(t, ch)

	cfg := c.Configs()[0]
	require.Equal(t, "custom system", cfg.SystemPrompt)
	require.Contains(t, cfg.Prompt, "Revise the test cases")
}

func TestRun_ContinuationUsesLatestUserMessage(t *testing.T) {
	c := mock.NewScriptedClient([]client.OutputEvent{mock.ResultEvent(1, 1, 0)}, nil)
	h := newHarness(t, c)

	session := &Session{
		ID:           "s1",
		Workflow:     Ticketing,
		WorkspaceDir: wsDir,
		LLMSessionID: "llm-1",
		Messages: []orchestrator.Message{
			userMessage("Split EPIC-1 into two"),
			{Role: orchestrator.RoleAssistant, Content: "I split the epic."},
		},
	}
	ch, err := h.driver.Run(t.Context(), session, RunOptions{})
	require.NoError(t, err)
	collect(t, ch)

	cfg := c.Configs()[0]
	require.True(t, strings.HasPrefix(cfg.Prompt, "User: "), cfg.Prompt)
	require.Contains(t, cfg.Prompt, "Split EPIC-1 into two")
	require.NotContains(t, cfg.Prompt, "I split the epic.")
	require.NotContains(t, cfg.Prompt, "Assistant:")

	session.Messages = []orchestrator.Message{{Role: orchestrator.RoleAssistant, Content: "hello"}}
	_, err = h.driver.Run(t.Context(), session, RunOptions{})
	require.ErrorIs(t, err, ErrMissingInput)
	require.Equal(t, 1, c.SpawnCount())
}

func TestRun_SessionIDSignalledOnce(t *testing.T) {
	c := mock.NewScriptedClient([]client.OutputEvent{
		mock.InitEvent("", wsDir),
		mock.InitEvent("llm-a", wsDir),
		mock.InitEvent("llm-b", wsDir),
		mock.ResultEvent(1, 1, 0),
	}, nil)
	h := newHarness(t, c)

	var ids []string
	session := &Session{ID: "s1", Workflow: Testcase, WorkspaceDir: wsDir,
		Messages: []orchestrator.Message{userMessage("go")}}
	ch, err := h.driver.Run(t.Context(), session, RunOptions{
		OnSessionID: func(id string) { ids = append(ids, id) },
	})
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 4, "every system event is still forwarded")
	require.Equal(t, []string{"llm-a"}, ids)
}

func TestRun_FatalPrepare(t *testing.T) {
	c := mock.NewScriptedClient(nil, nil)
	h := newHarness(t, c)

	session := &Session{ID: "s1", Workflow: RCA, WorkspaceDir: wsDir,
		Messages: []orchestrator.Message{userMessage("why did checkout fail?")}}
	_, err := h.driver.Run(t.Context(), session, RunOptions{})
	require.ErrorIs(t, err, ErrPrepareFailed)
	require.ErrorIs(t, err, ErrMissingInput)
	require.Zero(t, c.SpawnCount(), "nothing is started after a fatal prepare")

	session.Workflow = CodeAnalysis
	_, err = h.driver.Run(t.Context(), session, RunOptions{})
	require.ErrorIs(t, err, ErrPrepareFailed)
	require.Zero(t, c.SpawnCount())
}

func TestRun_NonFatalPrepare(t *testing.T) {
	c := mock.NewScriptedClient([]client.OutputEvent{mock.ResultEvent(1, 1, 0)}, nil)
	h := newHarness(t, c)
	h.cloner.errs["https://github.com/acme/api.git"] = git.ErrAuthFailed

	session := &Session{
		ID:           "s1",
		Workflow:     Ticketing,
		WorkspaceDir: wsDir,
		Repositories: []git.Repository{{URL: "https://github.com/acme/api.git"}},
		Messages:     []orchestrator.Message{userMessage("go")},
	}
	ch, err := h.driver.Run(t.Context(), session, RunOptions{})
	require.NoError(t, err)
	events := collect(t, ch)
	require.Len(t, events, 1)
	require.Equal(t, 1, c.SpawnCount())
	require.Contains(t, c.Configs()[0].SystemPrompt, "repos/api (https://github.com/acme/api.git)")
}

func TestRun_RCAWithIncident(t *testing.T) {
	c := mock.NewScriptedClient([]client.OutputEvent{
		mock.ToolUseEvent("t1", "Write", map[string]any{
			"file_path": wsDir + "/artifacts/rca.json",
			"content":   `{"rca_id":"RCA-7"}`,
		}),
		mock.ToolResultEvent("t1", "ok", false),
		mock.ToolUseEvent("t2", "Write", map[string]any{"file_path": "artifacts/readme.md", "content": "# notes"}),
		mock.ToolResultEvent("t2", "ok", false),
		mock.ResultEvent(1, 1, 0),
	}, nil)
	h := newHarness(t, c)

	session := &Session{
		ID:           "s1",
		Workflow:     RCA,
		WorkspaceDir: wsDir,
		Inputs: map[string]any{
			"incident_id": "INC-7",
			"incident":    map[string]any{"id": "INC-7", "title": "Checkout 500s"},
		},
		Repositories: []git.Repository{{URL: "https://github.com/acme/shop.git", Branch: "main"}},
		Messages:     []orchestrator.Message{userMessage("find the cause")},
	}
	ch, err := h.driver.Run(t.Context(), session, RunOptions{})
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 2)
	require.Equal(t, stream.Kind("data-rca"), events[0].Kind())
	require.Equal(t, "RCA-7", events[0].(stream.Data).Payload.(*artifacts.Artifact).ID)
	require.Equal(t, stream.KindFinish, events[1].Kind())

	raw, err := afero.ReadFile(h.fs, wsDir+"/"+IncidentContextFile)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"INC-7","title":"Checkout 500s"}`, string(raw))
	require.Equal(t, wsDir+"/repos/shop", h.cloner.dest("https://github.com/acme/shop.git"))
	require.Contains(t, c.Configs()[0].Prompt, "Investigate the incident INC-7.")
}

func TestRun_EditResolvedFromWorkspace(t *testing.T) {
	c := mock.NewScriptedClient([]client.OutputEvent{
		mock.ToolUseEvent("t1", "Edit", map[string]any{
			"file_path":  "artifacts/findings/f-1.json",
			"old_string": "low",
			"new_string": "high",
		}),
		mock.ToolResultEvent("t1", "ok", false),
		mock.ResultEvent(1, 1, 0),
	}, nil)
	h := newHarness(t, c)
	require.NoError(t, afero.WriteFile(h.fs, wsDir+"/artifacts/findings/f-1.json",
		[]byte(`{"finding_id":"F-1","severity":"high"}`), 0o644))

	session := &Session{
		ID:           "s1",
		Workflow:     CodeAnalysis,
		WorkspaceDir: wsDir,
		LLMSessionID: "llm-1",
		Messages:     []orchestrator.Message{userMessage("raise severity")},
	}
	ch, err := h.driver.Run(t.Context(), session, RunOptions{})
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 2)
	art := events[0].(stream.Data).Payload.(*artifacts.Artifact)
	require.Equal(t, artifacts.TypeFinding, art.Type)
	require.Equal(t, "high", art.Content.(map[string]any)["severity"])
}

func TestRun_UpstreamFailureMidStream(t *testing.T) {
	c := mock.NewScriptedClient([]client.OutputEvent{
		mock.TextEvent("one"),
		mock.TextEvent("two"),
	}, errors.New("runtime crashed"))
	h := newHarness(t, c)

	session := &Session{ID: "s1", Workflow: Testcase, WorkspaceDir: wsDir,
		Messages: []orchestrator.Message{userMessage("go")}}
	ch, err := h.driver.Run(t.Context(), session, RunOptions{})
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 3)
	require.Equal(t, stream.Text{Text: "one"}, events[0])
	require.Equal(t, stream.Text{Text: "two"}, events[1])
	finish := events[2].(stream.Finish)
	require.Equal(t, stream.FinishError, finish.Reason)
	require.Contains(t, finish.Message, "runtime crashed")
}

func TestRun_CancelClosesStream(t *testing.T) {
	c := mock.NewClient()
	h := newHarness(t, c)

	ctx, cancel := context.WithCancel(t.Context())
	session := &Session{ID: "s1", Workflow: Testcase, WorkspaceDir: wsDir,
		Messages: []orchestrator.Message{userMessage("go")}}
	ch, err := h.driver.Run(ctx, session, RunOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return c.SpawnCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.Empty(t, collect(t, ch))
}

func TestRun_InvalidSessions(t *testing.T) {
	h := newHarness(t, mock.NewScriptedClient(nil, nil))

	_, err := h.driver.Run(t.Context(), &Session{Workflow: "bugs", WorkspaceDir: wsDir,
		Messages: []orchestrator.Message{userMessage("x")}}, RunOptions{})
	require.ErrorIs(t, err, ErrUnknownWorkflow)

	_, err = h.driver.Run(t.Context(), &Session{Workflow: Ticketing, WorkspaceDir: wsDir}, RunOptions{})
	require.ErrorIs(t, err, ErrMissingInput)

	_, err = h.driver.Run(t.Context(), &Session{Workflow: Ticketing,
		Messages: []orchestrator.Message{userMessage("x")}}, RunOptions{})
	require.ErrorIs(t, err, ErrMissingInput)
}

func TestRun_AgentOptionsAndMCP(t *testing.T) {
	c := mock.NewScriptedClient([]client.OutputEvent{mock.ResultEvent(1, 1, 0)}, nil)
	h := newHarness(t, c)

	session := &Session{
		ID:           "s1",
		Workflow:     Testcase,
		WorkspaceDir: wsDir,
		MCPConfigs:   map[string]any{"jira": map[string]any{"command": "jira-mcp"}},
		Messages:     []orchestrator.Message{userMessage("go")},
	}
	ch, err := h.driver.Run(t.Context(), session, RunOptions{Agent: orchestrator.Options{
		Model:           "opus",
		WorkDir:         "/elsewhere",
		ResumeSessionID: "ignored",
	}})
	require.NoError(t, err)
	collect(t, ch)

	cfg := c.Configs()[0]
	require.Equal(t, "opus", cfg.Model)
	require.Equal(t, wsDir, cfg.WorkDir)
	require.Empty(t, cfg.SessionID)
	require.JSONEq(t, `{"mcpServers":{"jira":{"command":"jira-mcp"}}}`, cfg.MCPConfig)
}
