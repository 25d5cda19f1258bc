package workflow

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/trace"

	"github.com/tejas96/sdlc-agents-sub000/internal/artifacts"
	"github.com/tejas96/sdlc-agents-sub000/internal/cachemanager"
	"github.com/tejas96/sdlc-agents-sub000/internal/git"
	"github.com/tejas96/sdlc-agents-sub000/internal/workspace"
)

// Workflow names.
const (
	Ticketing    = "ticketing"
	RCA          = "rca"
	Testcase     = "testcase"
	APISuite     = "apisuite"
	CodeAnalysis = "codeanalysis"
)

// PrepareEnv is what a prepare phase works with.
type PrepareEnv struct {
	Session   *Session
	Workspace *workspace.Workspace
	Cloner    git.Cloner
	Tracer    trace.Tracer
}

// PrepareFunc sets up a workspace before the first turn.
type PrepareFunc func(ctx context.Context, env PrepareEnv) error

// Definition describes one workflow.
type Definition struct {
	Name string
	// NewClassifier returns the classifier for one run. ws resolves edits.
	NewClassifier func(ws *workspace.Workspace) artifacts.Classifier
	// Prepare may be nil.
	Prepare PrepareFunc
	// FatalPrepare makes a prepare failure abort the run instead of being
	// logged.
	FatalPrepare bool
}

// Registry holds the known workflows by name.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry creates a registry holding defs.
func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		r.Register(d)
	}
	return r
}

// Register adds d, replacing any definition with the same name.
func (r *Registry) Register(d Definition) {
	r.defs[d.Name] = d
}

// Get returns the definition named name.
func (r *Registry) Get(name string) (Definition, error) {
	d, ok := r.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownWorkflow, name)
	}
	return d, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns the five built-in workflows. manifests is shared by
// every API-suite run; nil gives each run its own cache.
func DefaultRegistry(manifests cachemanager.CacheManager[string, artifacts.Manifest]) *Registry {
	return NewRegistry(
		Definition{
			Name: Ticketing,
			NewClassifier: func(ws *workspace.Workspace) artifacts.Classifier {
				return artifacts.NewTicketingClassifier(ws.Dir())
			},
			Prepare: prepareTicketing,
		},
		Definition{
			Name: RCA,
			NewClassifier: func(ws *workspace.Workspace) artifacts.Classifier {
				return artifacts.NewRCAClassifier(ws.Dir())
			},
			Prepare:      prepareRCA,
			FatalPrepare: true,
		},
		Definition{
			Name: Testcase,
			NewClassifier: func(ws *workspace.Workspace) artifacts.Classifier {
				return artifacts.NewTestcaseClassifier(ws.Dir())
			},
			Prepare: prepareTestcase,
		},
		Definition{
			Name: APISuite,
			NewClassifier: func(ws *workspace.Workspace) artifacts.Classifier {
				return artifacts.NewAPISuiteClassifier(ws.Dir(), ws, manifests)
			},
			Prepare: prepareAPISuite,
		},
		Definition{
			Name: CodeAnalysis,
			NewClassifier: func(ws *workspace.Workspace) artifacts.Classifier {
				return artifacts.NewCodeAnalysisClassifier(ws.Dir())
			},
			Prepare:      prepareCodeAnalysis,
			FatalPrepare: true,
		},
	)
}
