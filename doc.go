// Package fetchpool dispatches remotely stored files to a fixed set of workers
// sharing a single Processor.
//
// A producer discovers files and pushes them with Manager.Enqueue. Every
// handoff is a rendezvous: Enqueue returns only once a worker has taken the
// file, so the producer is throttled by the processing speed of the pool.
// Both sides wait in short bounded rounds (DefaultPollTimeout) and re-check the
// shutdown flag in between, which keeps Manager.Stop responsive without
// interrupting a file that is being handled.
package fetchpool
