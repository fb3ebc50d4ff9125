// Package taskgroup runs a fixed set of operations as one unit. The group
// returns only after every operation has returned, so an operation never
// outlives the group that started it: several callers hand operations
// exclusive resources (a socket, a feed registration) that must not be
// touched concurrently after teardown.
package taskgroup

import (
	"context"
	"errors"
)

// Operation is one member of a group. It must honor ctx cancellation within
// one suspension point and may return ctx.Err() to report a cooperative
// stop; that is not treated as a failure.
type Operation func(ctx context.Context) error

// Run starts every operation concurrently and waits for all of them.
//
// The first error that is not a cooperative cancellation is recorded,
// every other operation is cancelled, and Run still waits for each one to
// actually finish before returning the recorded error. If parent is
// cancelled externally, the same cancel-then-drain sequence applies and the
// parent's cause is the result.
func Run(parent context.Context, ops ...Operation) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	results := make(chan error, len(ops))
	for _, op := range ops {
		go func(op Operation) {
			results <- op(ctx)
		}(op)
	}

	var first error
	for range ops {
		err := <-results
		if err == nil || errors.Is(err, context.Canceled) {
			continue
		}
		if first == nil {
			first = err
			cancel()
		}
	}

	if first != nil {
		return first
	}
	// all operations finished without a real failure; if the parent was
	// cancelled externally, that cancellation is the result
	if parent.Err() != nil {
		return context.Cause(parent)
	}
	return nil
}
