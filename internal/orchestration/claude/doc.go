// Package claude runs the Claude Code CLI in headless mode
// (--print --output-format stream-json --verbose) and parses its JSONL output
// into client.OutputEvent values.
//
// The stream contains these line types:
//
//   - system (subtype init): session id, cwd, model and tool list
//   - assistant: a message whose content blocks are text, thinking,
//     redacted_thinking or tool_use
//   - user: the echo of tool results as tool_result blocks, or plain text
//   - result: terminal line with usage, cost, duration and is_error
//   - error: an error reported outside a result
//
// Known quirks:
//
//  1. The prompt must follow "--". Flags that take lists would otherwise
//     consume it.
//  2. No stdin pipe is created. In --print mode an open stdin can make the
//     CLI wait for input.
//  3. The error field is a string on some failures and an object on others.
//  4. Tool results are echoed back as user messages, not separate events.
//
// Importing the package registers the client under client.ClientClaude.
package claude
