package templates

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestLoad_Embedded(t *testing.T) {
	set, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"apisuite", "codeanalysis", "rca", "testcase", "ticketing"}, set.IDs())

	for id, wf := range set {
		require.NotEmpty(t, wf.Name, id)
		require.NotEmpty(t, wf.Description, id)
		require.True(t, wf.Has(System), id)
		require.True(t, wf.Has(FirstTurn), id)
		require.True(t, wf.Has(FollowUp), id)
	}
	require.True(t, set["rca"].Has(FollowUpSystem))
	require.True(t, set["ticketing"].Has(FollowUpSystem))
	require.False(t, set["apisuite"].Has(FollowUpSystem))
}

func TestRender_Embedded(t *testing.T) {
	set, err := Load()
	require.NoError(t, err)

	data := Data{
		WorkspaceDir: "/ws/s1",
		Message:      "Add SSO login",
		Repositories: []Repo{{Dir: "web", URL: "https://github.com/acme/web.git"}},
		Sources:      []string{"jira-atlassian-proj-1"},
		Inputs:       map[string]any{"incident_id": "INC-7"},
	}

	// Every prompt renders without leaking missing values.
	for _, id := range set.IDs() {
		for _, kind := range []Kind{System, FirstTurn, FollowUp, FollowUpSystem} {
			if !set[id].Has(kind) {
				continue
			}
			out, err := set[id].Render(kind, data)
			require.NoError(t, err, "%s/%s", id, kind)
			require.NotEmpty(t, out)
			require.NotContains(t, out, "<no value>", "%s/%s", id, kind)
		}
	}

	sys, err := set["ticketing"].Render(System, data)
	require.NoError(t, err)
	require.Contains(t, sys, "/ws/s1")
	require.Contains(t, sys, "repos/web (https://github.com/acme/web.git)")
	require.NotContains(t, sys, "name:", "frontmatter is not part of the prompt")

	first, err := set["rca"].Render(FirstTurn, data)
	require.NoError(t, err)
	require.Equal(t, "Investigate the incident INC-7.\n\nAdd SSO login", first)

	first, err = set["rca"].Render(FirstTurn, Data{Message: "x"})
	require.NoError(t, err)
	require.Equal(t, "Investigate the incident.\n\nx", first)

	tc, err := set["testcase"].Render(System, data)
	require.NoError(t, err)
	require.Contains(t, tc, "artifacts/jira-atlassian-proj-1/")
}

func TestRender_MissingKind(t *testing.T) {
	set, err := Load()
	require.NoError(t, err)

	_, err = set["apisuite"].Render(FollowUpSystem, Data{})
	require.ErrorIs(t, err, ErrNoTemplate)
}

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"wf/demo/workflow.md":   {Data: []byte("---\nname: \"Demo\"\ndescription: \"d\"\n---\nHello {{.SessionID}}\n")},
		"wf/demo/first_turn.md": {Data: []byte("{{.Message}}")},
		"wf/demo/follow_up.md":  {Data: []byte("again: {{.Message}}")},
		"wf/empty/readme.txt":   {Data: []byte("not a workflow")},
	}

	set, err := LoadFS(fsys, "wf")
	require.NoError(t, err)
	require.Equal(t, []string{"demo"}, set.IDs())

	out, err := set["demo"].Render(System, Data{SessionID: "s-1"})
	require.NoError(t, err)
	require.Equal(t, "Hello s-1", out)
}

func TestLoadFS_Errors(t *testing.T) {
	tests := []struct {
		name  string
		files fstest.MapFS
	}{
		{"no frontmatter", fstest.MapFS{
			"wf/a/workflow.md": {Data: []byte("just text")},
		}},
		{"unclosed frontmatter", fstest.MapFS{
			"wf/a/workflow.md": {Data: []byte("---\nname: x\n")},
		}},
		{"missing name", fstest.MapFS{
			"wf/a/workflow.md": {Data: []byte("---\ndescription: x\n---\nbody")},
		}},
		{"missing first turn", fstest.MapFS{
			"wf/a/workflow.md":  {Data: []byte("---\nname: x\n---\nbody")},
			"wf/a/follow_up.md": {Data: []byte("f")},
		}},
		{"bad template", fstest.MapFS{
			"wf/a/workflow.md":   {Data: []byte("---\nname: x\n---\n{{.Broken")},
			"wf/a/first_turn.md": {Data: []byte("f")},
			"wf/a/follow_up.md":  {Data: []byte("f")},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFS(tt.files, "wf")
			require.Error(t, err)
		})
	}
}

func TestLoadDir_Overrides(t *testing.T) {
	dir := t.TempDir()
	wfDir := filepath.Join(dir, "ticketing")
	require.NoError(t, os.MkdirAll(wfDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(wfDir, "workflow.md"), []byte("---\nname: \"Custom\"\n---\ncustom"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(wfDir, "first_turn.md"), []byte("{{.Message}}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(wfDir, "follow_up.md"), []byte("{{.Message}}"), 0o600))

	set, err := LoadDir(dir)
	require.NoError(t, err)
	require.Equal(t, "Custom", set["ticketing"].Name)
	require.Equal(t, "Root Cause Analysis", set["rca"].Name)

	set, err = LoadDir(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	require.Equal(t, "Ticketing", set["ticketing"].Name)
}
