// Package outbox keeps answer outcomes that could not be recorded and replays
// them on a schedule until they land or run out of attempts.
//
// A popped outcome is leased, not removed: it stays in the queue's processing
// area until the scheduler acknowledges, retries or buries it, and Recover
// returns leases left behind by a crash. Replays are idempotent on the outcome
// ID, so recovering a lease that did land is harmless.
package outbox

import (
	"context"

	"interviewprep/cmd/internal/quota"
)

// Lease is an outcome taken from a Queue. Callers may change Outcome.Attempts
// before passing the lease to Retry or Bury.
type Lease struct {
	Outcome quota.Outcome

	// ref identifies the leased entry inside the queue implementation.
	ref string
}

// Queue is a FIFO of pending outcomes with at-least-once delivery.
type Queue interface {
	Push(ctx context.Context, o quota.Outcome) error
	// Pop leases the oldest outcome. ok is false when the queue is empty.
	Pop(ctx context.Context) (l Lease, ok bool, err error)
	// Ack forgets a lease whose outcome was recorded or deliberately dropped.
	Ack(ctx context.Context, l Lease) error
	// Retry returns a lease to the tail of the queue with l.Outcome as stored.
	Retry(ctx context.Context, l Lease) error
	// Bury moves a lease that ran out of attempts to the dead-letter list.
	Bury(ctx context.Context, l Lease) error
	// Recover puts every outstanding lease back in front of the queue.
	Recover(ctx context.Context) (int, error)
	// Len counts pending outcomes, excluding leases and the dead-letter list.
	Len(ctx context.Context) (int, error)
}
