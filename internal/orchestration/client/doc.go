// Package client defines the contract between the orchestrator and a headless
// agent runtime.
//
// A HeadlessClient spawns a HeadlessProcess from a Config. The process exposes
// the runtime's stdout as a channel of OutputEvent values and its exit status
// through an error channel. BaseProcess and SpawnBuilder implement the exec
// lifecycle shared by providers that run a CLI emitting one JSON object per
// line.
//
// Example:
//
//	c, err := client.NewClient(client.ClientClaude)
//	if err != nil {
//	    return err
//	}
//	proc, err := c.Spawn(ctx, client.Config{WorkDir: dir, Prompt: "User: hi"})
//	if err != nil {
//	    return err
//	}
//	for ev := range proc.Events() {
//	    fmt.Println(ev.Type)
//	}
//	for err := range proc.Errors() {
//	    return err
//	}
package client
