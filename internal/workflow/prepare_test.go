package workflow

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/tejas96/sdlc-agents-sub000/internal/git"
	"github.com/tejas96/sdlc-agents-sub000/internal/tracing"
	"github.com/tejas96/sdlc-agents-sub000/internal/workspace"
)

func newEnv(session *Session) (PrepareEnv, *fakeCloner) {
	cloner := newFakeCloner()
	return PrepareEnv{
		Session:   session,
		Workspace: workspace.New(afero.NewMemMapFs(), wsDir),
		Cloner:    cloner,
		Tracer:    tracing.Noop().Tracer(),
	}, cloner
}

func TestSourcesFrom(t *testing.T) {
	inputs := map[string]any{"sources": []any{
		map[string]any{"type": "jira", "provider": "Atlassian", "identifier": "PROJ-1"},
		map[string]any{"type": "confluence", "provider": "Atlassian"},
		Source{Type: "file", Provider: "upload", Identifier: "spec.pdf"},
		"junk",
	}}
	sources := SourcesFrom(inputs)
	require.Equal(t, []Source{
		{Type: "jira", Provider: "Atlassian", Identifier: "PROJ-1"},
		{Type: "file", Provider: "upload", Identifier: "spec.pdf"},
	}, sources)
	require.Equal(t, "jira-atlassian-proj-1", sources[0].Key())
	require.Equal(t, "file-upload-spec-pdf", sources[1].Key())

	require.Len(t, SourcesFrom(map[string]any{"sources": []Source{{Identifier: "x"}}}), 1)
	require.Len(t, SourcesFrom(map[string]any{"sources": []map[string]any{{"identifier": "x"}}}), 1)
	require.Empty(t, SourcesFrom(nil))
}

func TestPrepareTestcase(t *testing.T) {
	env, _ := newEnv(&Session{Inputs: map[string]any{"sources": []any{
		map[string]any{"type": "jira", "provider": "atlassian", "identifier": "PROJ-1"},
	}}})
	require.NoError(t, prepareTestcase(t.Context(), env))
	require.True(t, env.Workspace.Exists("artifacts/jira-atlassian-proj-1"))

	env, _ = newEnv(&Session{})
	require.NoError(t, prepareTestcase(t.Context(), env), "no sources is not an error")
	require.True(t, env.Workspace.Exists("artifacts"))
}

func TestPrepareAPISuite_SeedsManifest(t *testing.T) {
	env, cloner := newEnv(&Session{Repositories: []git.Repository{{URL: "git@github.com:acme/api.git"}}})
	require.NoError(t, prepareAPISuite(t.Context(), env))

	raw, err := env.Workspace.ReadFile(SuiteManifestFile)
	require.NoError(t, err)
	require.JSONEq(t, `{"relevantArtifacts":[]}`, string(raw))
	require.Equal(t, wsDir+"/repos/api", cloner.dest("git@github.com:acme/api.git"))

	require.NoError(t, env.Workspace.WriteFile(SuiteManifestFile, []byte(`{"relevantArtifacts":["a.ts"]}`)))
	require.NoError(t, prepareAPISuite(t.Context(), env))
	raw, err = env.Workspace.ReadFile(SuiteManifestFile)
	require.NoError(t, err)
	require.JSONEq(t, `{"relevantArtifacts":["a.ts"]}`, string(raw), "existing manifest kept")
}

func TestPrepareCodeAnalysis(t *testing.T) {
	env, _ := newEnv(&Session{})
	require.ErrorIs(t, prepareCodeAnalysis(t.Context(), env), ErrMissingInput)

	env, cloner := newEnv(&Session{Repositories: []git.Repository{
		{URL: "https://github.com/acme/api.git"},
		{URL: "https://gitlab.com/acme/web", Name: "frontend"},
	}})
	require.NoError(t, prepareCodeAnalysis(t.Context(), env))
	require.True(t, env.Workspace.Exists("artifacts/findings"))
	require.Equal(t, wsDir+"/repos/api", cloner.dest("https://github.com/acme/api.git"))
	require.Equal(t, wsDir+"/repos/frontend", cloner.dest("https://gitlab.com/acme/web"))
}

func TestCloneAll_Errors(t *testing.T) {
	env, cloner := newEnv(&Session{Repositories: []git.Repository{
		{URL: "https://github.com/acme/api.git"},
		{URL: "https://github.com/acme/web.git"},
	}})
	cloner.errs["https://github.com/acme/web.git"] = git.ErrNotFound
	err := cloneAll(t.Context(), env)
	require.ErrorIs(t, err, git.ErrNotFound)

	env, _ = newEnv(&Session{Repositories: []git.Repository{
		{URL: "https://github.com/acme/api.git"},
		{URL: "https://gitlab.com/other/api"},
	}})
	require.ErrorContains(t, cloneAll(t.Context(), env), "repos/api")

	env, _ = newEnv(&Session{Repositories: []git.Repository{{URL: "https://github.com/acme/api.git"}}})
	env.Cloner = nil
	require.Error(t, cloneAll(t.Context(), env))

	env.Session.Repositories = nil
	require.NoError(t, cloneAll(t.Context(), env), "nothing to clone")
}

func TestCloneAll_RejectsEscapingNames(t *testing.T) {
	for _, name := range []string{"../../evil", "..", "nested/dir", `..\evil`} {
		env, cloner := newEnv(&Session{Repositories: []git.Repository{
			{URL: "https://github.com/acme/api.git"},
			{URL: "https://github.com/acme/evil.git", Name: name},
		}})
		err := cloneAll(t.Context(), env)
		require.ErrorIs(t, err, git.ErrInvalidName, name)
		require.Empty(t, cloner.dest("https://github.com/acme/evil.git"), name)
		require.Empty(t, cloner.dest("https://github.com/acme/api.git"), "nothing is cloned once a name is rejected")
	}
}

func TestPrepareRCA_RequiresIncident(t *testing.T) {
	env, _ := newEnv(&Session{Inputs: map[string]any{"incident": nil}})
	require.ErrorIs(t, prepareRCA(t.Context(), env), ErrMissingInput)
	require.False(t, env.Workspace.Exists(IncidentContextFile))
}
