// Package orchestrator implements the core orchestration logic for plan execution.
//
// The execution grouper partitions a plan's calls into dependency waves.
// The orchestrator runs those waves against a capability resolver:
//   - Calls within a wave run concurrently
//   - A wave is a barrier for the next one
//   - A failed result in a wave abandons the remaining waves
//   - Cancellation and orchestration faults end the run with a top-level error
//
// The manager adds the asynchronous lifecycle (submit, monitor, cancel),
// publishing events to the event bus and tracking records in storage.
// The validator checks the structural shape of submitted plans.
package orchestrator
