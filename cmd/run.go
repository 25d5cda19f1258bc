package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tejas96/sdlc-agents-sub000/internal/git"
	"github.com/tejas96/sdlc-agents-sub000/internal/log"
	"github.com/tejas96/sdlc-agents-sub000/internal/sessions"
	"github.com/tejas96/sdlc-agents-sub000/internal/stream"
)

var runCmd = &cobra.Command{
	Use:   "run [message]",
	Short: "Run one workflow turn and print its events as JSON lines",
	Long: `Run one turn of a workflow. Events are written to stdout, one JSON
object per line. The session id is printed to stderr so the conversation can
be continued with --session.

Examples:
  # Start a ticketing session
  sdlc-agents run -w ticketing "Add password reset to the login page"

  # Clone repositories for a code analysis
  sdlc-agents run -w codeanalysis --repo https://github.com/acme/api.git "Review error handling"

  # RCA with the incident loaded from a file
  sdlc-agents run -w rca --inputs incident.yaml "Why did checkout fail?"

  # Continue an existing session
  sdlc-agents run -s 3f1c... "Split the epic into smaller stories"

  # Only artifact events
  sdlc-agents run -w testcase --input 'sources=[{"type":"jira","provider":"atlassian","identifier":"PROJ-1"}]' \
    "Write test cases" | jq 'select(.type | startswith("data-"))'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTurn,
}

var (
	runWorkflow     string
	runSession      string
	runRepos        []string
	runInputs       []string
	runInputsFile   string
	runSystemPrompt string
	runMCPConfig    string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runWorkflow, "workflow", "w", "", "workflow to start a new session with")
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "session to continue")
	runCmd.Flags().StringArrayVar(&runRepos, "repo", nil, "repository to clone, as url[#branch] (repeatable)")
	runCmd.Flags().StringArrayVar(&runInputs, "input", nil, "workflow input key=value; JSON values are decoded (repeatable)")
	runCmd.Flags().StringVar(&runInputsFile, "inputs", "", "YAML or JSON file of workflow inputs")
	runCmd.Flags().StringVar(&runSystemPrompt, "system-prompt", "", "replace the workflow's system prompt")
	runCmd.Flags().StringVar(&runMCPConfig, "mcp-config", "", `JSON file of MCP servers ({"mcpServers": {...}} or the bare map)`)
	runCmd.MarkFlagsMutuallyExclusive("workflow", "session")
	runCmd.MarkFlagsOneRequired("workflow", "session")
}

func runTurn(cmd *cobra.Command, args []string) error {
	message := ""
	if len(args) == 1 {
		message = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			log.ErrorErr(log.CatConfig, "shutdown", err)
		}
	}()

	id := runSession
	if id == "" {
		req, err := buildCreateRequest(message)
		if err != nil {
			return err
		}
		sess, err := a.sessions.Create(ctx, req)
		if err != nil {
			return err
		}
		id = sess.ID
		message = ""
	} else if message == "" {
		return errors.New("a message is required to continue a session")
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", id)

	events, err := a.sessions.Turn(ctx, id, message)
	if err != nil {
		return err
	}
	return printEvents(cmd.OutOrStdout(), events)
}

// printEvents writes one JSON line per event. A turn that ends with an error
// finish is reported as a command failure after every event was printed.
func printEvents(w io.Writer, events <-chan stream.Event) error {
	var failed *stream.Finish
	for ev := range events {
		data, err := stream.Encode(ev)
		if err != nil {
			log.Error(log.CatOrch, "Failed to marshal event", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return err
		}
		if f, ok := ev.(stream.Finish); ok && f.Reason == stream.FinishError {
			failed = &f
		}
	}
	if failed != nil {
		return fmt.Errorf("turn failed: %s", failed.Message)
	}
	return nil
}

func buildCreateRequest(message string) (sessions.CreateRequest, error) {
	req := sessions.CreateRequest{
		Workflow:     runWorkflow,
		Message:      message,
		SystemPrompt: runSystemPrompt,
	}

	for _, repo := range runRepos {
		req.Repositories = append(req.Repositories, parseRepo(repo))
	}

	inputs, err := parseInputs(runInputsFile, runInputs)
	if err != nil {
		return req, err
	}
	req.Inputs = inputs

	if runMCPConfig != "" {
		servers, err := readMCPConfig(runMCPConfig)
		if err != nil {
			return req, err
		}
		req.MCPConfigs = servers
	}
	return req, nil
}

// parseRepo splits url#branch.
func parseRepo(arg string) git.Repository {
	url, branch, _ := strings.Cut(arg, "#")
	return git.Repository{URL: url, Branch: branch}
}

// parseInputs merges the inputs file with key=value pairs, pairs winning.
func parseInputs(file string, pairs []string) (map[string]any, error) {
	inputs := map[string]any{}
	if file != "" {
		data, err := os.ReadFile(file) //nolint:gosec // G304: user-supplied inputs file
		if err != nil {
			return nil, fmt.Errorf("reading inputs: %w", err)
		}
		// YAML is a superset of JSON, so one decoder handles both.
		if err := yaml.Unmarshal(data, &inputs); err != nil {
			return nil, fmt.Errorf("parsing inputs %s: %w", file, err)
		}
	}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --input %q, want key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		inputs[key] = v
	}
	if len(inputs) == 0 {
		return nil, nil
	}
	return inputs, nil
}

// readMCPConfig accepts either {"mcpServers": {...}} or the bare server map.
func readMCPConfig(file string) (map[string]any, error) {
	data, err := os.ReadFile(file) //nolint:gosec // G304: user-supplied config file
	if err != nil {
		return nil, fmt.Errorf("reading mcp config: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing mcp config %s: %w", file, err)
	}
	if servers, ok := doc["mcpServers"].(map[string]any); ok {
		return servers, nil
	}
	return doc, nil
}
