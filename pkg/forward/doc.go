// Package forward routes data-store writes from replica processes to the primary.
//
// Only one node (the primary) may write to the database. Worker processes on
// other nodes still need to record job status and perform handler side effects,
// so every write is expressed as a Command {model, operation, args}:
//
//   - Registry maps (model, operation) pairs to typed executors.
//   - Forwarder executes a Command locally on the primary, or for Read
//     commands, and POSTs it to the primary otherwise.
//   - Client is the HTTP side of that POST.
//   - Handler is the primary's authenticated write endpoint.
//
// Do is the typed entry point used by storage and handler code:
//
//	job, err := forward.Do[*core.Job](ctx, w, "job", "claimNext", claimArgs{WorkerID: id})
package forward
