package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tejas96/sdlc-agents-sub000/internal/templates"
	"github.com/tejas96/sdlc-agents-sub000/internal/workflow"
)

var workflowsJSON bool

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List the available workflows",
	Long: `List every registered workflow with the description from its templates.

Examples:
  sdlc-agents workflows
  sdlc-agents workflows --json | jq '.[].id'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		tmpl, err := templates.LoadDir(expandHome(cfg.Agent.TemplatesDir))
		if err != nil {
			return fmt.Errorf("loading templates: %w", err)
		}
		entries := listWorkflows(workflow.DefaultRegistry(nil), tmpl)

		out := cmd.OutOrStdout()
		if workflowsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tNAME\tPREPARE\tDESCRIPTION")
		for _, e := range entries {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Name, e.Prepare, e.Description)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(workflowsCmd)

	workflowsCmd.Flags().BoolVar(&workflowsJSON, "json", false, "print JSON")
}

type workflowEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Prepare     string `json:"prepare"`
}

// listWorkflows joins registry definitions with template metadata.
func listWorkflows(reg *workflow.Registry, tmpl templates.Set) []workflowEntry {
	names := reg.Names()
	entries := make([]workflowEntry, 0, len(names))
	for _, name := range names {
		def, err := reg.Get(name)
		if err != nil {
			continue
		}
		e := workflowEntry{ID: name, Name: name, Prepare: "optional"}
		if def.FatalPrepare {
			e.Prepare = "required"
		}
		if t, ok := tmpl[name]; ok {
			if t.Name != "" {
				e.Name = t.Name
			}
			e.Description = t.Description
		}
		entries = append(entries, e)
	}
	return entries
}
