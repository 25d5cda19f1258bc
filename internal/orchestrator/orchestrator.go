// Package orchestrator drives the upstream agent runtime and normalizes its
// output into stream events.
//
// Run builds one linear prompt from the conversation, spawns the runtime
// through a client.HeadlessClient and translates each runtime line:
//
//   - system lines become System events
//   - assistant text blocks go through ExtractThinking, so one block may
//     yield a Thinking event followed by the remaining Text
//   - native thinking blocks become Thinking events
//   - tool_use blocks become ToolCall events named by MapToolName
//   - user echoes yield Text and ToolResult events
//   - the result line becomes the single Finish event; its text is not
//     re-emitted
//
// Every failure (spawn error, error line, non-zero exit) ends the stream with
// one Finish whose reason is "error".
package orchestrator

import (
	"context"
	"time"

	"github.com/tejas96/sdlc-agents-sub000/internal/log"
	"github.com/tejas96/sdlc-agents-sub000/internal/orchestration/client"
	"github.com/tejas96/sdlc-agents-sub000/internal/stream"
)

// exitGrace bounds how long a runtime that reported its result may keep
// running before it is terminated.
var exitGrace = 10 * time.Second

// Orchestrator runs conversations against one runtime client.
type Orchestrator struct {
	client   client.HeadlessClient
	defaults Options
}

// New creates an Orchestrator. defaults fill every option a call leaves unset.
func New(c client.HeadlessClient, defaults Options) *Orchestrator {
	return &Orchestrator{client: c, defaults: defaults}
}

// Run starts one upstream call and returns its normalized events. The channel
// is closed when the runtime finishes, after a Finish, or when ctx is
// cancelled. Cancelling ctx terminates the runtime process.
func (o *Orchestrator) Run(ctx context.Context, messages []Message, opts Options) <-chan stream.Event {
	out := make(chan stream.Event)
	go func() {
		defer close(out)
		o.run(ctx, messages, opts.Merge(o.defaults), out)
	}()
	return out
}

func (o *Orchestrator) run(ctx context.Context, messages []Message, opts Options, out chan<- stream.Event) {
	emit := func(ev stream.Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	cfg, err := opts.clientConfig(BuildPrompt(messages))
	if err != nil {
		emit(stream.ErrorFinish(err.Error()))
		return
	}

	log.Debug(log.CatOrch, "starting upstream call",
		"client", o.client.Type(),
		"workDir", cfg.WorkDir,
		"permissionMode", cfg.PermissionMode,
		"resume", cfg.SessionID)

	proc, err := o.client.Spawn(ctx, cfg)
	if err != nil {
		log.ErrorErr(log.CatOrch, "spawn failed", err)
		emit(stream.ErrorFinish(err.Error()))
		return
	}
	// A clean result lets the runtime exit on its own; every other exit path
	// terminates it.
	completed := false
	defer func() {
		if completed {
			go reap(proc)
			return
		}
		_ = proc.Cancel()
	}()

	events := proc.Events()
	for {
		select {
		case <-ctx.Done():
			log.Debug(log.CatOrch, "consumer gone, stopping upstream")
			return
		case line, ok := <-events:
			if !ok {
				o.drainErrors(ctx, proc, emit)
				return
			}
			converted, terminal := normalize(line)
			for _, ev := range converted {
				if !emit(ev) {
					return
				}
			}
			if terminal {
				if f, ok := converted[len(converted)-1].(stream.Finish); ok && f.Reason == stream.FinishStop {
					completed = true
				}
				return
			}
		}
	}
}

// drainErrors turns the first process error into the terminal event.
func (o *Orchestrator) drainErrors(ctx context.Context, proc client.HeadlessProcess, emit func(stream.Event) bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-proc.Errors():
			if !ok {
				return
			}
			log.ErrorErr(log.CatOrch, "upstream failed", err)
			emit(stream.ErrorFinish(err.Error()))
			return
		}
	}
}

// reap drains whatever a finished runtime still prints so its reader never
// blocks, then waits for it to exit. A runtime still alive after exitGrace is
// terminated.
func reap(proc client.HeadlessProcess) {
	timer := time.NewTimer(exitGrace)
	defer timer.Stop()

	events, errs := proc.Events(), proc.Errors()
	for events != nil || errs != nil {
		select {
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
			} else if err != nil {
				log.Debug(log.CatOrch, "upstream error after result", "error", err)
			}
		case <-timer.C:
			log.Warn(log.CatOrch, "upstream still running after result, terminating", "pid", proc.PID())
			_ = proc.Cancel()
			return
		}
	}
	_ = proc.Wait()
}
