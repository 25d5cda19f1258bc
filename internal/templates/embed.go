// Package templates loads the prompt templates of each workflow.
//
// Every workflow owns a directory under workflows/:
//
//	workflows/<id>/workflow.md            frontmatter + system prompt
//	workflows/<id>/first_turn.md          user prompt for a fresh session
//	workflows/<id>/follow_up.md           user prompt for a continuation
//	workflows/<id>/follow_up_system.md    optional continuation system prompt
//
// Bodies are text/template sources rendered with Data.
package templates

import (
	"embed"
	"io/fs"
)

//go:embed workflows
var workflowTemplates embed.FS

// WorkflowsFS returns the embedded filesystem rooted above workflows/.
func WorkflowsFS() fs.FS {
	return workflowTemplates
}
