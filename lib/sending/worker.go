// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package sending

import "runtime/debug"

// Worker owns the sender goroutine. It executes the state machine
// until the terminal state is reached, then signals Done. A panic in
// state logic is recorded and treated as a terminal transition so the
// SDK degrades instead of crashing the host application.
type Worker struct {
	context *Context
	done    chan struct{}
}

// NewWorker creates a Worker for the given context. Start must be
// called to launch the sender goroutine.
func NewWorker(c *Context) *Worker {
	return &Worker{
		context: c,
		done:    make(chan struct{}),
	}
}

// Start launches the sender goroutine.
func (w *Worker) Start() {
	go w.run()
}

// Done returns the channel closed when the sender goroutine has
// exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) run() {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			w.context.logger.Error("sender goroutine panicked",
				"panic", r,
				"stack", string(debug.Stack()),
				"state", w.context.State().String(),
			)
			// Unblock init waiters; the SDK is done sending.
			w.context.completeInit(false)
		}
	}()

	for w.context.State() != StateTerminal {
		Execute(w.context)
	}
	// Run the terminal state once so initialization waiters are
	// released even when init never completed.
	Execute(w.context)
}
