// Package sessions runs workflow turns against persisted sessions. It is the
// layer shared by the run and serve commands: it provisions workspaces, keeps
// the conversation in the store and records the artifacts each turn emits.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tejas96/sdlc-agents-sub000/internal/artifacts"
	"github.com/tejas96/sdlc-agents-sub000/internal/artifactstore"
	"github.com/tejas96/sdlc-agents-sub000/internal/git"
	"github.com/tejas96/sdlc-agents-sub000/internal/log"
	"github.com/tejas96/sdlc-agents-sub000/internal/orchestrator"
	"github.com/tejas96/sdlc-agents-sub000/internal/store"
	"github.com/tejas96/sdlc-agents-sub000/internal/stream"
	"github.com/tejas96/sdlc-agents-sub000/internal/tracing"
	"github.com/tejas96/sdlc-agents-sub000/internal/workflow"
	"github.com/tejas96/sdlc-agents-sub000/internal/workspace"
)

// ErrBusy is returned when a turn is requested while another turn of the same
// session is still streaming.
var ErrBusy = errors.New("session has a turn in progress")

// Config configures a Service.
type Config struct {
	Driver   *workflow.Driver
	Registry *workflow.Registry
	Store    *store.Store
	// Blobs receives artifact content. Optional.
	Blobs artifactstore.Store
	// Fs is where workspaces are provisioned. Defaults to the OS.
	Fs            afero.Fs
	WorkspaceRoot string
	// Agent is passed to every turn.
	Agent  orchestrator.Options
	Tracer trace.Tracer
}

// Service creates sessions and runs their turns.
type Service struct {
	driver   *workflow.Driver
	registry *workflow.Registry
	store    *store.Store
	blobs    artifactstore.Store
	fs       afero.Fs
	root     string
	agent    orchestrator.Options
	tracer   trace.Tracer

	mu     sync.Mutex
	active map[string]struct{}
}

// New creates a Service.
func New(cfg Config) *Service {
	s := &Service{
		driver:   cfg.Driver,
		registry: cfg.Registry,
		store:    cfg.Store,
		blobs:    cfg.Blobs,
		fs:       cfg.Fs,
		root:     cfg.WorkspaceRoot,
		agent:    cfg.Agent,
		tracer:   cfg.Tracer,
		active:   make(map[string]struct{}),
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.tracer == nil {
		s.tracer = tracing.Noop().Tracer()
	}
	return s
}

// CreateRequest describes a new session.
type CreateRequest struct {
	Workflow     string
	Message      string
	SystemPrompt string
	MCPConfigs   map[string]any
	Repositories []git.Repository
	Inputs       map[string]any
}

// Create provisions a workspace for a new session and stores it. The
// message, when given, becomes the first user message.
func (s *Service) Create(ctx context.Context, req CreateRequest) (workflow.Session, error) {
	if _, err := s.registry.Get(req.Workflow); err != nil {
		return workflow.Session{}, err
	}
	for _, r := range req.Repositories {
		if strings.TrimSpace(r.URL) == "" {
			return workflow.Session{}, fmt.Errorf("%w: repository without url", workflow.ErrMissingInput)
		}
		if err := r.Validate(); err != nil {
			return workflow.Session{}, err
		}
	}

	id := uuid.NewString()
	ws, err := workspace.Provision(s.fs, s.root, id)
	if err != nil {
		return workflow.Session{}, err
	}

	sess := workflow.Session{
		ID:           id,
		Workflow:     req.Workflow,
		WorkspaceDir: ws.Dir(),
		MCPConfigs:   req.MCPConfigs,
		SystemPrompt: req.SystemPrompt,
		Repositories: req.Repositories,
		Inputs:       req.Inputs,
	}
	if req.Message != "" {
		sess.Messages = []orchestrator.Message{{Role: orchestrator.RoleUser, Content: req.Message}}
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return workflow.Session{}, err
	}
	log.Info(log.CatWorkflow, "session created", "session", id, "workflow", req.Workflow, "workspace", ws.Dir())
	return sess, nil
}

// Get returns a stored session.
func (s *Service) Get(ctx context.Context, id string) (workflow.Session, error) {
	return s.store.GetSession(ctx, id)
}

// List returns every stored session, most recently updated first.
func (s *Service) List(ctx context.Context) ([]store.Summary, error) {
	return s.store.ListSessions(ctx)
}

// Artifacts returns the latest artifacts of a session, optionally filtered by type.
func (s *Service) Artifacts(ctx context.Context, id, artifactType string) ([]store.ArtifactRecord, error) {
	if _, err := s.store.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListArtifacts(ctx, id, artifactType)
}

// Delete removes a session from the store. Its workspace is left on disk.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteSession(ctx, id)
}

// Workflows returns the registered workflow names.
func (s *Service) Workflows() []string {
	return s.registry.Names()
}

// Turn appends content as a user message, when non-empty, and runs the next
// turn of the session. Continuing a session requires content. The message is
// stored once the turn has started. The upstream session id and every artifact are
// persisted as the events pass through; the assistant's text is appended to
// the conversation once the stream ends.
//
// The returned channel closes when the turn ends or ctx is cancelled.
func (s *Service) Turn(ctx context.Context, id, content string) (<-chan stream.Event, error) {
	if !s.acquire(id) {
		return nil, fmt.Errorf("%w: %s", ErrBusy, id)
	}

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		s.release(id)
		return nil, err
	}
	if content == "" && sess.IsContinuation() {
		s.release(id)
		return nil, fmt.Errorf("%w: a message is required to continue session %s", workflow.ErrMissingInput, id)
	}
	userMsg := orchestrator.Message{Role: orchestrator.RoleUser, Content: content}
	if content != "" {
		sess.Messages = append(sess.Messages, userMsg)
	}

	// Persistence outlives the caller so a disconnect does not lose what was
	// already produced.
	persistCtx := context.WithoutCancel(ctx)
	runCtx, cancel := context.WithCancel(ctx)
	events, err := s.driver.Run(runCtx, &sess, workflow.RunOptions{
		Agent: s.agent,
		OnSessionID: func(llmID string) {
			if _, err := s.store.SetLLMSessionID(persistCtx, sess.ID, llmID); err != nil {
				log.ErrorErr(log.CatStore, "recording llm session id", err, "session", sess.ID)
			}
		},
	})
	if err != nil {
		cancel()
		s.release(id)
		return nil, err
	}

	// The message is stored only once the turn has started, so a failed
	// prepare can be retried without duplicating it.
	if content != "" {
		if err := s.store.AppendMessage(persistCtx, id, userMsg); err != nil {
			cancel()
			go func() {
				for range events {
				}
				s.release(id)
			}()
			return nil, err
		}
	}

	out := make(chan stream.Event)
	go func() {
		defer cancel()
		s.record(runCtx, persistCtx, sess.ID, events, out)
	}()
	return out, nil
}

// record persists artifacts and the assistant reply while forwarding events.
func (s *Service) record(ctx, persistCtx context.Context, id string, events <-chan stream.Event, out chan<- stream.Event) {
	var reply strings.Builder
	defer func() {
		if reply.Len() > 0 {
			msg := orchestrator.Message{Role: orchestrator.RoleAssistant, Content: reply.String()}
			if err := s.store.AppendMessage(persistCtx, id, msg); err != nil {
				log.ErrorErr(log.CatStore, "recording assistant reply", err, "session", id)
			}
		}
		s.release(id)
		close(out)
	}()

	for ev := range events {
		switch e := ev.(type) {
		case stream.Text:
			if reply.Len() > 0 {
				reply.WriteString("\n\n")
			}
			reply.WriteString(e.Text)
		case stream.Data:
			if a, ok := e.Payload.(*artifacts.Artifact); ok {
				s.saveArtifact(persistCtx, id, a)
			}
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			// Drain so the driver can finish and close its channel.
			for range events {
			}
			return
		}
	}
}

func (s *Service) saveArtifact(ctx context.Context, id string, a *artifacts.Artifact) {
	ctx, span := tracing.Start(ctx, s.tracer, tracing.SpanStoreArtifact,
		attribute.String(tracing.AttrSessionID, id),
		attribute.String(tracing.AttrArtifactType, a.Type),
		attribute.String(tracing.AttrArtifactID, a.ID),
	)

	var (
		key string
		err error
	)
	if s.blobs != nil {
		if key, err = artifactstore.Save(ctx, s.blobs, a); err != nil {
			log.ErrorErr(log.CatArtifact, "saving artifact blob", err, "session", id, "path", a.FilePath)
			key = ""
		}
	}
	if serr := s.store.SaveArtifact(ctx, id, a, key); serr != nil {
		log.ErrorErr(log.CatStore, "saving artifact", serr, "session", id, "path", a.FilePath)
		err = errors.Join(err, serr)
	}
	tracing.End(span, err)
}

func (s *Service) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[id]; ok {
		return false
	}
	s.active[id] = struct{}{}
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}
