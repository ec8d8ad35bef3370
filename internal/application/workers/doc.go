// Package workers implements the worker pool for executing submitted plans.
//
// The worker pool manages a fixed number of goroutines that:
//   - Pull queued jobs from a bounded queue
//   - Run each job with the context it was submitted with
//   - Drain the queue on shutdown
//
// The health monitor tracks worker status, logs it and records metrics.
package workers
