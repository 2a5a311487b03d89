// Package service runs moderation as a long living process.
//
// Overview
// The Supervisor owns an event loop which starts inbox scans and an
// optional AMQP consumer. Both feed moderation requests to a Moderator
// (moderation.Detector) and pass the resulting model.Verdict to all
// configured uploaders.
//
// Request sources:
//   - Inbox: directories scanned once in manual mode or on a gocron
//     schedule in timer mode. A video is moderated again only when its
//     modification time changes.
//   - AMQP: requests consumed from the broker in timer mode.
//
// Uploaders:
//   - WriteUploader writes JSON lines, stdout is the default.
//   - DirUploader writes a file per verdict atomically.
//   - VerdictRepoUploader POSTs verdicts to a moderation repository.
//   - queue.Broker publishes verdicts back to the exchange.
//
// Data flow:
//
//	Supervisor              parallel.Map            Moderator
//	    |                        |                      |
//	Start -> scan() ------------>| DetectRequest ------>| launch, guard, reconcile
//	    |                        |<----- Verdict -------|
//	    |<-- upload(Verdict) ----|                      |
//	broker.Consume -> handleRequest -> DetectRequest -> upload -> ack
//
// Invariants:
//   - At most one inbox scan runs at a time.
//   - Parallelism of both sources is bounded by service.parallelism.
//   - Every request produces exactly one Verdict, failed moderation included.
//   - Uploaders are closed only after all goroutines of the supervisor end.
package service
