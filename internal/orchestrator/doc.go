// Package orchestrator owns every Claude instance of a session and drives
// them from a single loop.
//
// The loop is the only place instances and the registry are mutated. It
// merges four sources:
//   - user input submitted by the rendering collaborator
//   - IPC commands from the control socket
//   - results of background analysis (coordination and stall interventions)
//   - a poll ticker that drains instance events and runs the stall check
//
// Background goroutines never touch instances; they hand their results back
// to the loop.
//
// Example usage:
//
//	orch := orchestrator.New(orchestrator.RequiredConfig{
//		WorkDir: dir,
//		Factory: agent.NewFactory(log),
//	}, orchestrator.WithAnalyzer(a), orchestrator.WithLogger(log))
//	go orch.Run(ctx)
//	orch.Submit("refactor the storage layer")
package orchestrator
