// Package pool runs backlog tasks in a fixed set of execution slots.
//
// The pool is owned by a single control goroutine. Dispatch starts a task in
// its own goroutine and returns immediately; Reconcile polls every running slot
// without blocking and moves finished slots back to idle.
//
// Slot lifecycle:
//   - Idle → Running on Dispatch (lowest free index first)
//   - Running → Idle on the first Reconcile that observes the result
//
// Outcome classification:
//   - exit code 0 → success counter
//   - non-zero exit, death by signal, or failure to start → failure counter
//
// A failing task never stops the pool and is never re-dispatched. Running
// processes are not killed; shutdown waits for them.
package pool
