package workflow

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/tejas96/sdlc-agents-sub000/internal/artifacts"
	"github.com/tejas96/sdlc-agents-sub000/internal/templates"
	"github.com/tejas96/sdlc-agents-sub000/internal/workspace"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry(nil)
	require.Equal(t, []string{APISuite, CodeAnalysis, RCA, Testcase, Ticketing}, r.Names())

	fatal := map[string]bool{RCA: true, CodeAnalysis: true}
	ws := workspace.New(afero.NewMemMapFs(), wsDir)
	for _, name := range r.Names() {
		def, err := r.Get(name)
		require.NoError(t, err)
		require.NotNil(t, def.Prepare, name)
		require.Equal(t, fatal[name], def.FatalPrepare, name)
		require.NotEmpty(t, def.NewClassifier(ws).Types(), name)
	}

	_, err := r.Get("bugs")
	require.ErrorIs(t, err, ErrUnknownWorkflow)
}

func TestDefaultRegistry_MatchesTemplates(t *testing.T) {
	set, err := templates.Load()
	require.NoError(t, err)
	require.Equal(t, set.IDs(), DefaultRegistry(nil).Names())
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register(Definition{Name: "custom", NewClassifier: func(ws *workspace.Workspace) artifacts.Classifier {
		return artifacts.NewCodeAnalysisClassifier(ws.Dir())
	}})
	def, err := r.Get("custom")
	require.NoError(t, err)
	require.Nil(t, def.Prepare)
	require.Equal(t, []string{"custom"}, r.Names())
}
