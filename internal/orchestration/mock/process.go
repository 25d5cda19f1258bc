package mock

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tejas96/sdlc-agents-sub000/internal/orchestration/client"
)

// Process is a mock implementation of client.HeadlessProcess for testing.
// Events and errors are injected by the test; Complete, Fail and Cancel close
// both channels.
type Process struct {
	events    chan client.OutputEvent
	errors    chan error
	done      chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
	sessionID string
	workDir   string
	pid       int
	status    client.ProcessStatus
	waitErr   error
	mu        sync.RWMutex
}

// NewProcess creates a running mock process with buffered channels.
func NewProcess() *Process {
	return &Process{
		events: make(chan client.OutputEvent, 100),
		errors: make(chan error, 10),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
		status: client.StatusRunning,
	}
}

// NewProcessWithConfig creates a mock process configured from client.Config.
func NewProcessWithConfig(cfg client.Config) *Process {
	p := NewProcess()
	p.workDir = cfg.WorkDir
	p.sessionID = cfg.SessionID
	return p
}

// Replay starts a goroutine that sends events in order and then completes,
// or fails with err when err is non-nil. Cancelling ctx cancels the process.
func (p *Process) Replay(ctx context.Context, events []client.OutputEvent, err error) {
	go func() {
		for _, ev := range events {
			select {
			case <-ctx.Done():
				_ = p.Cancel()
				return
			default:
			}
			p.SendEvent(ev)
		}
		if err != nil {
			p.Fail(err)
			return
		}
		p.Complete()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = p.Cancel()
		case <-p.done:
		}
	}()
}

// Events returns the events channel.
func (p *Process) Events() <-chan client.OutputEvent {
	return p.events
}

// Errors returns the errors channel.
func (p *Process) Errors() <-chan error {
	return p.errors
}

// SessionRef returns the session reference.
func (p *Process) SessionRef() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sessionID
}

// Status returns the current process status.
func (p *Process) Status() client.ProcessStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// IsRunning returns true if the process is running.
func (p *Process) IsRunning() bool {
	return p.Status() == client.StatusRunning
}

// WorkDir returns the working directory.
func (p *Process) WorkDir() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.workDir
}

// PID returns the mock process ID.
func (p *Process) PID() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pid
}

// Cancel terminates the mock process.
func (p *Process) Cancel() error {
	p.finish(client.StatusCancelled, nil)
	return nil
}

// Wait blocks until the process completes.
func (p *Process) Wait() error {
	<-p.done
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.waitErr
}

// Done returns a channel that's closed when the process completes.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// SendEvent sends an event while the process is running. It returns without
// sending once the process has finished.
func (p *Process) SendEvent(event client.OutputEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.status != client.StatusRunning {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.events <- event:
	case <-p.stop:
	}
}

// Complete marks the process as successfully completed.
func (p *Process) Complete() {
	p.finish(client.StatusCompleted, nil)
}

// Fail marks the process as failed and delivers err on the errors channel.
func (p *Process) Fail(err error) {
	p.finish(client.StatusFailed, err)
}

func (p *Process) finish(status client.ProcessStatus, err error) {
	p.stopOnce.Do(func() { close(p.stop) })

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != client.StatusRunning {
		return
	}
	p.status = status
	if err != nil {
		p.waitErr = err
		select {
		case p.errors <- err:
		default:
		}
	}
	close(p.events)
	close(p.errors)
	close(p.done)
}

// SetSessionID sets the session ID.
func (p *Process) SetSessionID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionID = id
}

// SetPID sets the mock process ID.
func (p *Process) SetPID(pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pid = pid
}

// --- Event builders ---

// InitEvent builds a system init event.
func InitEvent(sessionID, workDir string) client.OutputEvent {
	return client.OutputEvent{
		Type:      client.EventSystem,
		SubType:   "init",
		SessionID: sessionID,
		WorkDir:   workDir,
		Raw:       mustJSON(map[string]any{"type": "system", "subtype": "init", "session_id": sessionID, "cwd": workDir}),
	}
}

// TextEvent builds an assistant message with one text block.
func TextEvent(text string) client.OutputEvent {
	return assistant(client.ContentBlock{Type: client.BlockText, Text: text})
}

// ThinkingEvent builds an assistant message with one native thinking block.
func ThinkingEvent(text, signature string) client.OutputEvent {
	return assistant(client.ContentBlock{Type: client.BlockThinking, Thinking: text, Signature: signature})
}

// ToolUseEvent builds an assistant message with one tool_use block.
func ToolUseEvent(toolID, toolName string, input any) client.OutputEvent {
	return assistant(client.ContentBlock{
		Type:  client.BlockToolUse,
		ID:    toolID,
		Name:  toolName,
		Input: mustJSON(input),
	})
}

// ToolResultEvent builds a user echo carrying one tool_result block.
func ToolResultEvent(toolID string, content any, isError bool) client.OutputEvent {
	return client.OutputEvent{
		Type: client.EventUser,
		Message: &client.MessageContent{
			Role: "user",
			Content: []client.ContentBlock{{
				Type:      client.BlockToolResult,
				ToolUseID: toolID,
				Content:   mustJSON(content),
				IsError:   isError,
			}},
		},
	}
}

// LegacyToolResultEvent builds a flat tool_result line.
func LegacyToolResultEvent(toolID, toolName, output string) client.OutputEvent {
	return client.OutputEvent{
		Type: client.EventToolResult,
		Tool: &client.ToolContent{ID: toolID, Name: toolName, Output: output},
	}
}

// ResultEvent builds a successful result with token usage.
func ResultEvent(inputTokens, outputTokens int, costUSD float64) client.OutputEvent {
	return client.OutputEvent{
		Type:         client.EventResult,
		SubType:      "success",
		Usage:        &client.UsageInfo{InputTokens: inputTokens, OutputTokens: outputTokens},
		TotalCostUSD: costUSD,
		Result:       "done",
	}
}

// ErrorResultEvent builds a result flagged is_error.
func ErrorResultEvent(errMsg string) client.OutputEvent {
	return client.OutputEvent{
		Type:          client.EventResult,
		SubType:       "error_during_execution",
		IsErrorResult: true,
		Result:        errMsg,
	}
}

func assistant(block client.ContentBlock) client.OutputEvent {
	return client.OutputEvent{
		Type: client.EventAssistant,
		Message: &client.MessageContent{
			Role:    "assistant",
			Content: []client.ContentBlock{block},
		},
	}
}

func mustJSON(v any) json.RawMessage {
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
