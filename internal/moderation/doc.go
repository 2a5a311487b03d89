// Package moderation runs an external analyzer against a single video and
// turns its result file into a model.ModerationResult.
//
// Overview
// A Detector is a stateless value built from model.Analyzer config. Every
// call to Detect creates a fresh Task and drives it through three steps:
//
//   - Launcher starts the analyzer in its own process group, with the
//     source and output paths as arguments, stdin detached and
//     stdout/stderr captured.
//   - Guard races the process exit against a wall clock deadline. When
//     the deadline fires, the whole process group is killed and the exit
//     is awaited.
//   - Reconciler turns the Outcome into a result or a
//     *model.ModerationError and always removes the result artifact.
//
// Data flow:
//
//	Detector           Launcher            Task{cmd}            Guard         Reconciler
//	   |                   |                   |                   |               |
//	Detect -> Launch ----->| cmd.Start ------->| Wait() goroutine  |               |
//	   |                   |                   |                   |               |
//	   | Wait(task) ---------------------------------------------->| timer         |
//	   |                   |                   |--- done (exit) -->| timer.Stop    |
//	   |                   |                   |<-- Kill (timeout)-| drain done    |
//	   |<------------------------------ Outcome -------------------|               |
//	   | Reconcile(task, outcome) -------------------------------------------------->| read, validate
//	   |<------------------------- ModerationResult | error ------------------------| defer remove
//
// Invariants:
//   - Each Task gets its own output path, derived from a UUIDv7.
//   - Reconcile runs only after the process exit has been observed.
//   - The artifact is removed on every path, a missing file is not an error.
//   - Task.Kill on an exited task is a no-op.
//   - The Guard is the only source of cancellation, ctx carries log
//     attributes and the tracing parent.
package moderation
