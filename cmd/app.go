package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/tejas96/sdlc-agents-sub000/internal/artifacts"
	"github.com/tejas96/sdlc-agents-sub000/internal/artifactstore"
	"github.com/tejas96/sdlc-agents-sub000/internal/cachemanager"
	"github.com/tejas96/sdlc-agents-sub000/internal/config"
	"github.com/tejas96/sdlc-agents-sub000/internal/git"
	"github.com/tejas96/sdlc-agents-sub000/internal/log"
	"github.com/tejas96/sdlc-agents-sub000/internal/orchestration/client"
	"github.com/tejas96/sdlc-agents-sub000/internal/orchestrator"
	"github.com/tejas96/sdlc-agents-sub000/internal/sessions"
	"github.com/tejas96/sdlc-agents-sub000/internal/store"
	"github.com/tejas96/sdlc-agents-sub000/internal/templates"
	"github.com/tejas96/sdlc-agents-sub000/internal/tracing"
	"github.com/tejas96/sdlc-agents-sub000/internal/workflow"

	// Register runtime clients.
	_ "github.com/tejas96/sdlc-agents-sub000/internal/orchestration/claude"
	_ "github.com/tejas96/sdlc-agents-sub000/internal/orchestration/mock"
)

// app holds the wired components shared by run and serve.
type app struct {
	templates templates.Set
	registry  *workflow.Registry
	store     *store.Store
	tracing   *tracing.Provider
	sessions  *sessions.Service
}

// newApp wires the runtime client, driver, store and artifact backend from cfg.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	tmpl, err := templates.LoadDir(expandHome(cfg.Agent.TemplatesDir))
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("creating tracer: %w", err)
	}

	runtime, err := client.NewClient(client.ClientType(cfg.Agent.Client))
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	manifests := cachemanager.NewInMemoryCacheManager[string, artifacts.Manifest]("apisuite-manifest",
		cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	registry := workflow.DefaultRegistry(manifests)

	fs := afero.NewOsFs()
	driver := workflow.NewDriver(
		orchestrator.New(runtime, agentDefaults(cfg.Agent)),
		registry,
		tmpl,
		workflow.WithFs(fs),
		workflow.WithCloner(git.NewCloner(cfg.Credentials)),
		workflow.WithTracer(provider.Tracer()),
	)

	st, err := store.Open(ctx, expandHome(cfg.Storage.Path))
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	artifactsCfg := cfg.Artifacts
	artifactsCfg.Dir = expandHome(artifactsCfg.Dir)
	blobs, err := artifactstore.New(ctx, artifactsCfg, fs)
	if err != nil {
		_ = st.Close()
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("opening artifact store: %w", err)
	}

	log.Info(log.CatConfig, "components ready",
		"client", runtime.Type(),
		"workflows", len(tmpl),
		"artifacts", cfg.Artifacts.Backend,
		"tracing", provider.Enabled())

	return &app{
		templates: tmpl,
		registry:  registry,
		store:     st,
		tracing:   provider,
		sessions: sessions.New(sessions.Config{
			Driver:        driver,
			Registry:      registry,
			Store:         st,
			Blobs:         blobs,
			Fs:            fs,
			WorkspaceRoot: expandHome(cfg.Workspace.Root),
			Tracer:        provider.Tracer(),
		}),
	}, nil
}

// Close flushes traces and closes the store.
func (a *app) Close(ctx context.Context) error {
	return errors.Join(a.tracing.Shutdown(ctx), a.store.Close())
}

func agentDefaults(a config.AgentConfig) orchestrator.Options {
	return orchestrator.Options{
		AllowedTools:   a.AllowedTools,
		PermissionMode: orchestrator.ParsePermissionMode(a.PermissionMode),
		Model:          a.Model,
		MaxTurns:       a.MaxTurns,
		Timeout:        a.Timeout,
		Executable:     expandHome(a.Executable),
	}
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
