package workflow

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tejas96/sdlc-agents-sub000/internal/artifacts"
	"github.com/tejas96/sdlc-agents-sub000/internal/git"
	"github.com/tejas96/sdlc-agents-sub000/internal/log"
	"github.com/tejas96/sdlc-agents-sub000/internal/orchestrator"
	"github.com/tejas96/sdlc-agents-sub000/internal/stream"
	"github.com/tejas96/sdlc-agents-sub000/internal/templates"
	"github.com/tejas96/sdlc-agents-sub000/internal/tracing"
	"github.com/tejas96/sdlc-agents-sub000/internal/workspace"
)

// Driver runs workflow turns.
type Driver struct {
	orch      *orchestrator.Orchestrator
	registry  *Registry
	templates templates.Set
	fs        afero.Fs
	cloner    git.Cloner
	tracer    trace.Tracer
}

// Option configures a Driver.
type Option func(*Driver)

// WithFs sets the filesystem workspaces live on. Defaults to the OS.
func WithFs(fs afero.Fs) Option {
	return func(d *Driver) { d.fs = fs }
}

// WithCloner sets the cloner used by prepare phases.
func WithCloner(c git.Cloner) Option {
	return func(d *Driver) { d.cloner = c }
}

// WithTracer sets the tracer. Defaults to a no-op tracer.
func WithTracer(t trace.Tracer) Option {
	return func(d *Driver) { d.tracer = t }
}

// NewDriver creates a Driver.
func NewDriver(orch *orchestrator.Orchestrator, registry *Registry, tmpl templates.Set, opts ...Option) *Driver {
	d := &Driver{
		orch:      orch,
		registry:  registry,
		templates: tmpl,
		fs:        afero.NewOsFs(),
		tracer:    tracing.Noop().Tracer(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunOptions configures one turn.
type RunOptions struct {
	// OnSessionID is called at most once per run, before the event carrying
	// the id is delivered, when a session without an upstream id learns one.
	OnSessionID func(id string)
	// Agent overrides the orchestrator defaults. Workspace, system prompt and
	// resume id are always set by the driver.
	Agent orchestrator.Options
}

// Run executes one turn of session.
//
// A session without an LLMSessionID is fresh: its workflow's prepare phase
// runs and the first-turn prompt is rendered around the first message. A
// session with one resumes it with the follow-up prompt rendered around the
// latest user message. Errors returned here happen before any event is produced;
// failures after that arrive as a Finish event on the channel.
//
// The channel closes when the turn ends or ctx is cancelled.
func (d *Driver) Run(ctx context.Context, session *Session, opts RunOptions) (<-chan stream.Event, error) {
	def, err := d.registry.Get(session.Workflow)
	if err != nil {
		return nil, err
	}
	if session.WorkspaceDir == "" {
		return nil, fmt.Errorf("%w: session %s has no workspace", ErrMissingInput, session.ID)
	}
	if len(session.Messages) == 0 {
		return nil, fmt.Errorf("%w: session %s has no messages", ErrMissingInput, session.ID)
	}

	continuation := session.IsContinuation()
	if _, ok := latestFeedback(session.Messages); continuation && !ok {
		return nil, fmt.Errorf("%w: session %s has no user message to follow up on", ErrMissingInput, session.ID)
	}
	ctx, span := tracing.Start(ctx, d.tracer, tracing.SpanWorkflowRun,
		attribute.String(tracing.AttrSessionID, session.ID),
		attribute.String(tracing.AttrWorkflowName, def.Name),
		attribute.Bool(tracing.AttrContinuation, continuation),
	)

	ws := workspace.New(d.fs, session.WorkspaceDir)
	if err := ws.MkdirAll("."); err != nil {
		tracing.End(span, err)
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	if !continuation {
		if err := d.prepare(ctx, def, session, ws); err != nil {
			tracing.End(span, err)
			return nil, err
		}
	}

	messages, system, err := d.render(ctx, session, ws.Dir(), continuation)
	if err != nil {
		tracing.End(span, err)
		return nil, err
	}

	agent := opts.Agent
	agent.WorkDir = ws.Dir()
	agent.SystemPrompt = system
	if len(session.MCPConfigs) > 0 {
		agent.MCPServers = session.MCPConfigs
	}
	agent.Continue = false
	agent.ResumeSessionID = ""
	if continuation {
		agent.ResumeSessionID = session.LLMSessionID
		span.SetAttributes(attribute.String(tracing.AttrLLMSessionID, session.LLMSessionID))
	}

	log.Info(log.CatWorkflow, "starting turn",
		"session", session.ID,
		"workflow", def.Name,
		"continuation", continuation,
		"messages", len(messages))

	corr := artifacts.NewCorrelator(def.NewClassifier(ws), ws)
	upstream := d.orch.Run(ctx, messages, agent)
	out := make(chan stream.Event)
	go d.forward(ctx, span, session, corr, upstream, out, opts.OnSessionID)
	return out, nil
}

// prepare runs the workflow's prepare phase. Non-fatal failures are logged.
func (d *Driver) prepare(ctx context.Context, def Definition, session *Session, ws *workspace.Workspace) error {
	if def.Prepare == nil {
		return nil
	}
	ctx, span := tracing.Start(ctx, d.tracer, tracing.SpanPrepare,
		attribute.String(tracing.AttrWorkflowName, def.Name))
	err := def.Prepare(ctx, PrepareEnv{
		Session:   session,
		Workspace: ws,
		Cloner:    d.cloner,
		Tracer:    d.tracer,
	})
	tracing.End(span, err)
	if err == nil {
		return nil
	}
	if def.FatalPrepare {
		log.ErrorErr(log.CatWorkflow, "prepare failed", err, "workflow", def.Name, "session", session.ID)
		return fmt.Errorf("%w: %s: %w", ErrPrepareFailed, def.Name, err)
	}
	log.Warn(log.CatWorkflow, "prepare failed, continuing", "workflow", def.Name, "session", session.ID, "error", err)
	return nil
}

// render builds the messages sent upstream and the system prompt.
//
// Fresh sessions send every message with the first one wrapped in the
// first-turn prompt. Continuations send only the latest user message, wrapped
// in the follow-up prompt, since the upstream session already holds the history.
func (d *Driver) render(ctx context.Context, session *Session, dir string, continuation bool) ([]orchestrator.Message, string, error) {
	_, span := tracing.Start(ctx, d.tracer, tracing.SpanRender,
		attribute.String(tracing.AttrWorkflowName, session.Workflow))

	tmpl, ok := d.templates[session.Workflow]
	if !ok {
		err := fmt.Errorf("%w: no templates for %q", ErrUnknownWorkflow, session.Workflow)
		tracing.End(span, err)
		return nil, "", err
	}

	data := templates.Data{
		SessionID:    session.ID,
		WorkspaceDir: dir,
		Inputs:       session.Inputs,
	}
	for _, r := range session.Repositories {
		data.Repositories = append(data.Repositories, templates.Repo{Dir: r.DirName(), URL: git.RedactURL(r.URL)})
	}
	for _, s := range SourcesFrom(session.Inputs) {
		data.Sources = append(data.Sources, s.Key())
	}

	var (
		messages []orchestrator.Message
		system   string
		err      error
	)
	if continuation {
		last, _ := latestFeedback(session.Messages)
		data.Message = last.Content
		if system, err = systemPrompt(tmpl, session, data, true); err == nil {
			last.Content, err = renderOr(tmpl, templates.FollowUp, data)
		}
		messages = []orchestrator.Message{last}
	} else {
		messages = slices.Clone(session.Messages)
		data.Message = messages[0].Content
		if system, err = systemPrompt(tmpl, session, data, false); err == nil {
			messages[0].Content, err = renderOr(tmpl, templates.FirstTurn, data)
		}
	}
	tracing.End(span, err)
	if err != nil {
		return nil, "", err
	}
	return messages, system, nil
}

// latestFeedback returns the last user message. Assistant replies recorded
// after it are already part of the upstream session.
func latestFeedback(messages []orchestrator.Message) (orchestrator.Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == orchestrator.RoleUser {
			return messages[i], true
		}
	}
	return orchestrator.Message{}, false
}

// systemPrompt picks the follow-up variant when the workflow has one, then a
// prompt set on the session, then the workflow's own.
func systemPrompt(tmpl *templates.Workflow, session *Session, data templates.Data, continuation bool) (string, error) {
	if continuation && tmpl.Has(templates.FollowUpSystem) {
		return tmpl.Render(templates.FollowUpSystem, data)
	}
	if session.SystemPrompt != "" {
		return session.SystemPrompt, nil
	}
	return tmpl.Render(templates.System, data)
}

// renderOr renders kind, or returns the message unchanged when the workflow
// does not define it.
func renderOr(tmpl *templates.Workflow, kind templates.Kind, data templates.Data) (string, error) {
	if !tmpl.Has(kind) {
		return data.Message, nil
	}
	return tmpl.Render(kind, data)
}

// forward pipes normalized events through the correlator to out.
func (d *Driver) forward(
	ctx context.Context,
	span trace.Span,
	session *Session,
	corr *artifacts.Correlator,
	upstream <-chan stream.Event,
	out chan<- stream.Event,
	onSessionID func(string),
) {
	var (
		count     int
		reason    stream.FinishReason
		signalled = session.IsContinuation()
	)
	defer func() {
		if n := corr.Pending(); n > 0 {
			log.Debug(log.CatWorkflow, "dropping unmatched writes", "session", session.ID, "pending", n)
		}
		corr.Reset()
		span.SetAttributes(
			attribute.Int(tracing.AttrEventCount, count),
			attribute.String(tracing.AttrFinishReason, string(reason)),
		)
		tracing.End(span, ctx.Err())
		close(out)
	}()

	for ev := range upstream {
		if sys, ok := ev.(stream.System); ok && !signalled {
			if id := sys.SessionID(); id != "" {
				signalled = true
				span.AddEvent(tracing.EventSessionID,
					trace.WithAttributes(attribute.String(tracing.AttrLLMSessionID, id)))
				log.Debug(log.CatWorkflow, "upstream session", "session", session.ID, "llmSession", id)
				if onSessionID != nil {
					onSessionID(id)
				}
			}
		}

		handled, replacement := corr.Intercept(ev)
		if handled {
			if replacement == nil {
				continue
			}
			ev = replacement
		}

		switch e := ev.(type) {
		case stream.Data:
			attrs := []attribute.KeyValue{attribute.String(tracing.AttrArtifactType, e.ArtifactType)}
			if a, ok := e.Payload.(*artifacts.Artifact); ok {
				attrs = append(attrs, attribute.String(tracing.AttrArtifactID, a.ID))
			}
			span.AddEvent(tracing.EventArtifact, trace.WithAttributes(attrs...))
		case stream.Finish:
			reason = e.Reason
			span.AddEvent(tracing.EventFinish)
		}

		select {
		case out <- ev:
			count++
		case <-ctx.Done():
			log.Debug(log.CatWorkflow, "consumer gone", "session", session.ID)
			return
		}
	}
}
