package workflow

import (
	"context"
	"errors"
	"fmt"
	"path"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/tejas96/sdlc-agents-sub000/internal/artifacts"
	"github.com/tejas96/sdlc-agents-sub000/internal/git"
	"github.com/tejas96/sdlc-agents-sub000/internal/log"
	"github.com/tejas96/sdlc-agents-sub000/internal/tracing"
)

// Workspace layout shared by the prepare phases.
const (
	ReposDir            = "repos"
	IncidentContextFile = "artifacts/incident_context.json"
	SuiteManifestFile   = "tests/" + artifacts.ManifestFile
)

const maxParallelClones = 4

// Source is one requirement source of the testcase workflow.
type Source struct {
	Type       string `json:"type"`
	Provider   string `json:"provider"`
	Identifier string `json:"identifier"`
}

// Key is the source's folder name under artifacts/.
func (s Source) Key() string {
	return artifacts.SourceKey(s.Type, s.Provider, s.Identifier)
}

// SourcesFrom reads inputs["sources"]. Entries without an identifier are
// skipped.
func SourcesFrom(inputs map[string]any) []Source {
	var out []Source
	add := func(s Source) {
		if s.Identifier != "" {
			out = append(out, s)
		}
	}
	switch v := inputs["sources"].(type) {
	case []Source:
		for _, s := range v {
			add(s)
		}
	case []map[string]any:
		for _, m := range v {
			add(sourceFromMap(m))
		}
	case []any:
		for _, item := range v {
			switch s := item.(type) {
			case map[string]any:
				add(sourceFromMap(s))
			case Source:
				add(s)
			}
		}
	}
	return out
}

func sourceFromMap(m map[string]any) Source {
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	return Source{Type: str("type"), Provider: str("provider"), Identifier: str("identifier")}
}

func prepareTicketing(ctx context.Context, env PrepareEnv) error {
	if err := env.Workspace.MkdirAll("artifacts/epics", "artifacts/stories", "artifacts/tasks"); err != nil {
		return err
	}
	return cloneAll(ctx, env)
}

func prepareRCA(ctx context.Context, env PrepareEnv) error {
	incident, ok := env.Session.Inputs["incident"]
	if !ok || incident == nil {
		return fmt.Errorf("%w: rca needs an incident", ErrMissingInput)
	}
	if err := env.Workspace.WriteJSON(IncidentContextFile, incident); err != nil {
		return fmt.Errorf("writing incident context: %w", err)
	}
	if err := env.Workspace.MkdirAll("artifacts/solutions"); err != nil {
		return err
	}
	return cloneAll(ctx, env)
}

func prepareTestcase(_ context.Context, env PrepareEnv) error {
	sources := SourcesFrom(env.Session.Inputs)
	if len(sources) == 0 {
		log.Warn(log.CatWorkflow, "testcase session has no sources", "session", env.Session.ID)
	}
	dirs := make([]string, 0, len(sources)+1)
	dirs = append(dirs, "artifacts")
	for _, s := range sources {
		dirs = append(dirs, path.Join("artifacts", s.Key()))
	}
	return env.Workspace.MkdirAll(dirs...)
}

func prepareAPISuite(ctx context.Context, env PrepareEnv) error {
	if err := env.Workspace.MkdirAll("tests"); err != nil {
		return err
	}
	if !env.Workspace.Exists(SuiteManifestFile) {
		seed := map[string]any{"relevantArtifacts": []string{}}
		if err := env.Workspace.WriteJSON(SuiteManifestFile, seed); err != nil {
			return fmt.Errorf("seeding manifest: %w", err)
		}
	}
	return cloneAll(ctx, env)
}

func prepareCodeAnalysis(ctx context.Context, env PrepareEnv) error {
	if len(env.Session.Repositories) == 0 {
		return fmt.Errorf("%w: codeanalysis needs at least one repository", ErrMissingInput)
	}
	if err := env.Workspace.MkdirAll("artifacts/findings"); err != nil {
		return err
	}
	return cloneAll(ctx, env)
}

// cloneAll clones every session repository into repos/<dir> concurrently.
func cloneAll(ctx context.Context, env PrepareEnv) error {
	repos := env.Session.Repositories
	if len(repos) == 0 {
		return nil
	}
	if env.Cloner == nil {
		return errors.New("no cloner configured")
	}

	seen := make(map[string]string, len(repos))
	for _, r := range repos {
		if err := r.Validate(); err != nil {
			return err
		}
		dir := r.DirName()
		if rel, ok := env.Workspace.Rel(path.Join(ReposDir, dir)); !ok || path.Dir(rel) != ReposDir {
			return fmt.Errorf("%w: %q escapes %s", git.ErrInvalidName, dir, ReposDir)
		}
		if prev, ok := seen[dir]; ok {
			return fmt.Errorf("%s and %s both clone into %s/%s",
				git.RedactURL(prev), git.RedactURL(r.URL), ReposDir, dir)
		}
		seen[dir] = r.URL
	}
	if err := env.Workspace.MkdirAll(ReposDir); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelClones)
	for _, repo := range repos {
		g.Go(func() error {
			dest := env.Workspace.Abs(path.Join(ReposDir, repo.DirName()))
			cctx, span := tracing.Start(gctx, env.Tracer, tracing.SpanClone,
				attribute.String(tracing.AttrRepoURL, git.RedactURL(repo.URL)),
				attribute.String(tracing.AttrRepoDir, dest),
			)
			err := env.Cloner.Clone(cctx, repo, dest)
			tracing.End(span, err)
			if err != nil {
				return fmt.Errorf("cloning %s: %w", git.RedactURL(repo.URL), err)
			}
			log.Info(log.CatGit, "cloned", "repo", git.RedactURL(repo.URL), "dir", dest)
			return nil
		})
	}
	return g.Wait()
}
