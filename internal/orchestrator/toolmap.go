package orchestrator

// Capability names for file-writing tools.
const (
	ToolCreateFile = "create_file"
	ToolEditFile   = "edit_file"
)

var toolNames = map[string]string{
	"Read":         "read_file",
	"Write":        ToolCreateFile,
	"Edit":         ToolEditFile,
	"MultiEdit":    ToolEditFile,
	"Bash":         "execute_command",
	"Grep":         "search_files",
	"LS":           "list_directory",
	"Glob":         "glob_files",
	"WebSearch":    "web_search",
	"WebFetch":     "web_fetch",
	"TodoWrite":    "todo",
	"Task":         "task_manager",
	"ExitPlanMode": "exit_plan_mode",
	"NotebookRead": "read_notebook",
	"NotebookEdit": "edit_notebook",
}

// MapToolName translates a runtime tool name to its capability name.
// Unknown names are returned unchanged.
func MapToolName(native string) string {
	if name, ok := toolNames[native]; ok {
		return name
	}
	return native
}

// IsFileWrite reports whether a capability name writes a file.
func IsFileWrite(capability string) bool {
	return capability == ToolCreateFile || capability == ToolEditFile
}
