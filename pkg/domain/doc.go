// Package domain defines the data model shared by the orchestration engine,
// its adapters and its API surfaces.
//
// Types:
//   - CapabilityCall / QueryPlan: what a caller asks to run
//   - CapabilityResult / OrchestrationResult: what the engine returns
//   - ExecutionRecord / Event: lifecycle of an asynchronously submitted plan
package domain
